package telegram

import (
	"strings"
	"testing"
)

func TestToMarkdownV2Bold(t *testing.T) {
	out := ToMarkdownV2("this is **important** text")
	if !strings.Contains(out, "*important*") {
		t.Errorf("bold not converted: %q", out)
	}
}

func TestToMarkdownV2Italic(t *testing.T) {
	out := ToMarkdownV2("an *emphasized* word")
	if !strings.Contains(out, "_emphasized_") {
		t.Errorf("italic not converted: %q", out)
	}
}

func TestToMarkdownV2EscapesReserved(t *testing.T) {
	out := ToMarkdownV2("version 1.2 (beta) costs $5!")
	for _, want := range []string{`1\.2`, `\(beta\)`, `\!`} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}

func TestToMarkdownV2CodeBlock(t *testing.T) {
	out := ToMarkdownV2("Run this:\n```go\nfmt.Println(\"hi\")\n```")
	if !strings.Contains(out, "```go\n") {
		t.Errorf("fence lost: %q", out)
	}
	// Code content stays verbatim apart from backtick/backslash escapes.
	if !strings.Contains(out, `fmt.Println("hi")`) {
		t.Errorf("code body mangled: %q", out)
	}
}

func TestToMarkdownV2CodeSpan(t *testing.T) {
	out := ToMarkdownV2("use `go test` here")
	if !strings.Contains(out, "`go test`") {
		t.Errorf("code span lost: %q", out)
	}
}

func TestToMarkdownV2Link(t *testing.T) {
	out := ToMarkdownV2("see [the docs](https://go.dev/doc) for more")
	if !strings.Contains(out, "[the docs](https://go.dev/doc)") {
		t.Errorf("link not preserved: %q", out)
	}
}

func TestToMarkdownV2LinkTextEscaped(t *testing.T) {
	out := ToMarkdownV2("[v1.0 notes](https://example.com/notes)")
	if !strings.Contains(out, `[v1\.0 notes]`) {
		t.Errorf("link text not escaped: %q", out)
	}
}

func TestToMarkdownV2Strikethrough(t *testing.T) {
	out := ToMarkdownV2("that is ~~wrong~~ right")
	if !strings.Contains(out, "~wrong~") {
		t.Errorf("strikethrough not converted: %q", out)
	}
}

func TestToMarkdownV2Heading(t *testing.T) {
	out := ToMarkdownV2("# Summary\n\nBody text.")
	if !strings.Contains(out, "*Summary*") {
		t.Errorf("heading not bolded: %q", out)
	}
	if strings.Contains(out, "#") {
		t.Errorf("raw heading marker leaked: %q", out)
	}
}

func TestToMarkdownV2List(t *testing.T) {
	out := ToMarkdownV2("- alpha\n- beta")
	if !strings.Contains(out, "• alpha") || !strings.Contains(out, "• beta") {
		t.Errorf("bullets missing: %q", out)
	}
}

func TestToMarkdownV2OrderedList(t *testing.T) {
	out := ToMarkdownV2("1. one\n2. two")
	if !strings.Contains(out, `1\. one`) || !strings.Contains(out, `2\. two`) {
		t.Errorf("ordered items missing: %q", out)
	}
}

func TestEscapeMarkdownV2(t *testing.T) {
	in := "_*[]()~`>#+-=|{}.!"
	out := EscapeMarkdownV2(in)
	for _, r := range in {
		if !strings.Contains(out, `\`+string(r)) {
			t.Errorf("%q not escaped in %q", string(r), out)
		}
	}
}

func TestEscapeMarkdownV2PlainUntouched(t *testing.T) {
	in := "plain words and numbers 42"
	if out := EscapeMarkdownV2(in); out != in {
		t.Errorf("plain text altered: %q", out)
	}
}

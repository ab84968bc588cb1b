package telegram

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// parseModeMarkdownV2 is the parse_mode value for formatted sends.
const parseModeMarkdownV2 = "MarkdownV2"

// ToMarkdownV2 converts standard Markdown to Telegram's MarkdownV2 dialect.
//
// Bold/italic/strikethrough map to *, _, ~; fenced code blocks are kept
// verbatim inside ``` fences; link text is escaped but link syntax kept.
// All other reserved punctuation is escaped so Telegram accepts the message.
func ToMarkdownV2(md string) string {
	r := renderer.NewRenderer(
		renderer.WithNodeRenderers(
			util.Prioritized(&markdownV2Renderer{}, 1),
		),
	)

	gm := goldmark.New(
		goldmark.WithExtensions(extension.Strikethrough),
		goldmark.WithRenderer(r),
	)

	var buf bytes.Buffer
	if err := gm.Convert([]byte(md), &buf); err != nil {
		// Fallback: escape everything and send as-is.
		return EscapeMarkdownV2(md)
	}
	return strings.TrimSpace(buf.String())
}

// reservedV2 is the set of characters MarkdownV2 requires escaping in
// regular text.
const reservedV2 = "_*[]()~`>#+-=|{}.!\\"

// EscapeMarkdownV2 escapes all MarkdownV2 reserved characters in s.
func EscapeMarkdownV2(s string) string {
	var out strings.Builder
	out.Grow(len(s))
	for _, r := range s {
		if r < 128 && strings.ContainsRune(reservedV2, r) {
			out.WriteByte('\\')
		}
		out.WriteRune(r)
	}
	return out.String()
}

// escapeCode escapes the two characters with meaning inside code spans and
// pre blocks.
func escapeCode(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "`", "\\`")
	return s
}

// escapeURL escapes the characters with meaning inside a link destination.
func escapeURL(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ")", "\\)")
	return s
}

// markdownV2Renderer implements goldmark's renderer.NodeRenderer and emits
// Telegram MarkdownV2.
type markdownV2Renderer struct {
	listCounter int
}

func (r *markdownV2Renderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	// Block nodes
	reg.Register(ast.KindDocument, r.renderDocument)
	reg.Register(ast.KindHeading, r.renderHeading)
	reg.Register(ast.KindParagraph, r.renderParagraph)
	reg.Register(ast.KindBlockquote, r.renderBlockquote)
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCodeBlock)
	reg.Register(ast.KindCodeBlock, r.renderCodeBlock)
	reg.Register(ast.KindList, r.renderList)
	reg.Register(ast.KindListItem, r.renderListItem)
	reg.Register(ast.KindTextBlock, r.renderTextBlock)
	reg.Register(ast.KindThematicBreak, r.renderThematicBreak)
	reg.Register(ast.KindHTMLBlock, r.renderHTMLBlock)

	// Inline nodes
	reg.Register(ast.KindText, r.renderText)
	reg.Register(ast.KindString, r.renderString)
	reg.Register(ast.KindCodeSpan, r.renderCodeSpan)
	reg.Register(ast.KindEmphasis, r.renderEmphasis)
	reg.Register(ast.KindLink, r.renderLink)
	reg.Register(ast.KindAutoLink, r.renderAutoLink)
	reg.Register(ast.KindImage, r.renderImage)
	reg.Register(ast.KindRawHTML, r.renderRawHTML)

	// Extension: strikethrough
	reg.Register(extast.KindStrikethrough, r.renderStrikethrough)
}

func (r *markdownV2Renderer) renderDocument(_ util.BufWriter, _ []byte, _ ast.Node, _ bool) (ast.WalkStatus, error) {
	return ast.WalkContinue, nil
}

func (r *markdownV2Renderer) renderHeading(w util.BufWriter, _ []byte, _ ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString("\n*")
	} else {
		_, _ = w.WriteString("*\n")
	}
	return ast.WalkContinue, nil
}

func (r *markdownV2Renderer) renderParagraph(w util.BufWriter, _ []byte, _ ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		_, _ = w.WriteString("\n\n")
	}
	return ast.WalkContinue, nil
}

func (r *markdownV2Renderer) renderBlockquote(w util.BufWriter, _ []byte, _ ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString(">")
	}
	return ast.WalkContinue, nil
}

func (r *markdownV2Renderer) renderFencedCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		n := node.(*ast.FencedCodeBlock)
		lang := n.Language(source)
		if len(lang) > 0 {
			_, _ = fmt.Fprintf(w, "```%s\n", string(lang))
		} else {
			_, _ = w.WriteString("```\n")
		}
		writeCodeBlockLines(w, source, node)
		_, _ = w.WriteString("```\n")
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (r *markdownV2Renderer) renderCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString("```\n")
		writeCodeBlockLines(w, source, node)
		_, _ = w.WriteString("```\n")
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func writeCodeBlockLines(w util.BufWriter, source []byte, node ast.Node) {
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		_, _ = w.WriteString(escapeCode(string(line.Value(source))))
	}
}

func (r *markdownV2Renderer) renderList(_ util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.List)
	if entering {
		if n.IsOrdered() {
			r.listCounter = int(n.Start)
		} else {
			r.listCounter = 0
		}
	}
	return ast.WalkContinue, nil
}

func (r *markdownV2Renderer) renderListItem(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		parent := node.Parent().(*ast.List)
		if parent.IsOrdered() {
			_, _ = fmt.Fprintf(w, "%d\\. ", r.listCounter)
			r.listCounter++
		} else {
			_, _ = w.WriteString("• ")
		}
	} else {
		_, _ = w.WriteString("\n")
	}
	return ast.WalkContinue, nil
}

func (r *markdownV2Renderer) renderTextBlock(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		// List items write their own trailing newline.
		if node.Parent() != nil && node.Parent().Kind() != ast.KindListItem {
			_, _ = w.WriteString("\n")
		}
	}
	return ast.WalkContinue, nil
}

func (r *markdownV2Renderer) renderThematicBreak(w util.BufWriter, _ []byte, _ ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString("\n\\-\\-\\-\n")
	}
	return ast.WalkContinue, nil
}

func (r *markdownV2Renderer) renderHTMLBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		lines := node.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			_, _ = w.WriteString(EscapeMarkdownV2(string(line.Value(source))))
		}
	}
	return ast.WalkContinue, nil
}

// --- Inline renderers ---

func (r *markdownV2Renderer) renderText(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.Text)
	_, _ = w.WriteString(EscapeMarkdownV2(string(n.Segment.Value(source))))

	if n.SoftLineBreak() || n.HardLineBreak() {
		_, _ = w.WriteString("\n")
	}
	return ast.WalkContinue, nil
}

func (r *markdownV2Renderer) renderString(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.String)
	_, _ = w.WriteString(EscapeMarkdownV2(string(n.Value)))
	return ast.WalkContinue, nil
}

func (r *markdownV2Renderer) renderCodeSpan(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString("`")
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				_, _ = w.WriteString(escapeCode(string(t.Segment.Value(source))))
			}
		}
		_, _ = w.WriteString("`")
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (r *markdownV2Renderer) renderEmphasis(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.Emphasis)
	marker := "_"
	if n.Level == 2 {
		marker = "*"
	}
	_, _ = w.WriteString(marker)
	return ast.WalkContinue, nil
}

func (r *markdownV2Renderer) renderLink(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.Link)
	if entering {
		_, _ = w.WriteString("[")
	} else {
		_, _ = fmt.Fprintf(w, "](%s)", escapeURL(string(n.Destination)))
	}
	return ast.WalkContinue, nil
}

func (r *markdownV2Renderer) renderAutoLink(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.AutoLink)
	if entering {
		url := string(n.URL(source))
		_, _ = fmt.Fprintf(w, "[%s](%s)", EscapeMarkdownV2(url), escapeURL(url))
	}
	return ast.WalkContinue, nil
}

func (r *markdownV2Renderer) renderImage(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	// No inline images over the Bot API text interface; render as a link.
	n := node.(*ast.Image)
	if entering {
		_, _ = w.WriteString("[")
	} else {
		_, _ = fmt.Fprintf(w, "](%s)", escapeURL(string(n.Destination)))
	}
	return ast.WalkContinue, nil
}

func (r *markdownV2Renderer) renderRawHTML(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.RawHTML)
	for i := 0; i < n.Segments.Len(); i++ {
		seg := n.Segments.At(i)
		_, _ = w.WriteString(EscapeMarkdownV2(string(seg.Value(source))))
	}
	return ast.WalkContinue, nil
}

func (r *markdownV2Renderer) renderStrikethrough(w util.BufWriter, _ []byte, _ ast.Node, entering bool) (ast.WalkStatus, error) {
	_, _ = w.WriteString("~")
	return ast.WalkContinue, nil
}

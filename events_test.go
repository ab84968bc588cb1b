package skiff

import (
	"encoding/json"
	"testing"
)

func TestTerminal(t *testing.T) {
	cases := []struct {
		ev   Event
		want bool
	}{
		{TokenEvent("x"), false},
		{ToolStartEvent("web_search", nil), false},
		{ToolResultEvent("web_search", "r"), false},
		{DoneEvent("full", nil), true},
		{ErrorEvent("boom"), true},
	}
	for _, c := range cases {
		if got := c.ev.Terminal(); got != c.want {
			t.Errorf("%s: Terminal() = %v, want %v", c.ev.Type, got, c.want)
		}
	}
}

func TestEventJSONShape(t *testing.T) {
	ev := DoneEvent("hello", []ToolCallRecord{{Name: "fetch_url", Args: map[string]string{"url": "https://x"}, Result: "body"}})
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != "done" {
		t.Errorf("wrong type tag: %v", decoded["type"])
	}
	if decoded["fullText"] != "hello" {
		t.Errorf("wrong fullText: %v", decoded["fullText"])
	}
	// Empty fields stay off the wire.
	if _, present := decoded["text"]; present {
		t.Error("token text should be omitted from a done event")
	}
}

func TestTokenEventJSON(t *testing.T) {
	b, _ := json.Marshal(TokenEvent("frag"))
	var decoded map[string]any
	json.Unmarshal(b, &decoded)
	if decoded["type"] != "token" || decoded["text"] != "frag" {
		t.Errorf("wrong token event: %v", decoded)
	}
}

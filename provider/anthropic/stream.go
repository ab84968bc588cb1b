package anthropic

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	skiff "github.com/avitkov/skiff"
)

// turnOutcome is one iteration's accumulated result.
type turnOutcome struct {
	content   string
	toolCalls []skiff.ToolCall
}

// openBlock tracks a content block between its start and stop events.
// Tool arguments arrive as input_json_delta fragments that are only parsed
// once the block closes.
type openBlock struct {
	kind string // "text" or "tool_use"
	id   string
	name string
	json strings.Builder
}

// readStream incrementally decodes one Messages API SSE body. Each payload
// line is a typed event; the event: lines are redundant with the embedded
// type field and are ignored. Unparsable lines are skipped. Lines may be
// split across network reads; bufio buffers them.
func readStream(ctx context.Context, body io.Reader, emit func(skiff.Event) bool) (turnOutcome, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var content strings.Builder
	var out turnOutcome
	blocks := map[int]*openBlock{}

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "content_block_start":
			if ev.ContentBlock == nil {
				continue
			}
			blocks[ev.Index] = &openBlock{
				kind: ev.ContentBlock.Type,
				id:   ev.ContentBlock.ID,
				name: ev.ContentBlock.Name,
			}

		case "content_block_delta":
			b := blocks[ev.Index]
			if b == nil || ev.Delta == nil {
				continue
			}
			switch ev.Delta.Type {
			case "text_delta":
				content.WriteString(ev.Delta.Text)
				if !emit(skiff.TokenEvent(ev.Delta.Text)) {
					return turnOutcome{}, ctx.Err()
				}
			case "input_json_delta":
				b.json.WriteString(ev.Delta.PartialJSON)
			}

		case "content_block_stop":
			b := blocks[ev.Index]
			if b == nil {
				continue
			}
			delete(blocks, ev.Index)
			if b.kind != "tool_use" {
				continue
			}
			// Arguments are parsed exactly once, at block close. A parse
			// failure yields empty args rather than aborting the loop.
			args := json.RawMessage(b.json.String())
			if !json.Valid(args) || len(args) == 0 {
				args = json.RawMessage(`{}`)
			}
			out.toolCalls = append(out.toolCalls, skiff.ToolCall{ID: b.id, Name: b.name, Args: args})

		case "message_stop":
			// Terminal for this request; keep scanning until EOF in case
			// the server trails further lines.

		case "error":
			if ev.Error != nil {
				return turnOutcome{}, &skiff.ErrLLM{Provider: "anthropic", Message: ev.Error.Message}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return turnOutcome{}, err
	}

	out.content = content.String()
	return out, nil
}

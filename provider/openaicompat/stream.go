package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	skiff "github.com/avitkov/skiff"
)

// turnOutcome is one iteration's accumulated result: the text streamed so
// far and any tool calls the model finished the iteration with.
type turnOutcome struct {
	content   string
	toolCalls []skiff.ToolCall
}

// readStream incrementally decodes one SSE response body. Text deltas are
// forwarded to emit as they arrive; tool-call fragments are accumulated by
// stream index and assembled once the stream ends. Lines may be split
// across network reads; bufio buffers them. Unparsable data lines are
// skipped, not fatal.
//
// emit returns false when the consumer is gone; readStream then stops with
// ctx.Err().
func readStream(ctx context.Context, body io.Reader, emit func(skiff.Event) bool) (turnOutcome, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var content strings.Builder

	// Tool calls stream incrementally: each delta carries an index, the
	// first one the id/name, and arguments arrive as string fragments.
	type partialCall struct {
		id   string
		name string
		args strings.Builder
	}
	var partials []*partialCall

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		// End-of-stream sentinel.
		if data == "[DONE]" {
			break
		}

		var c chunk
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			continue
		}
		if len(c.Choices) == 0 || c.Choices[0].Delta == nil {
			continue
		}
		delta := c.Choices[0].Delta

		if delta.Content != "" {
			content.WriteString(delta.Content)
			if !emit(skiff.TokenEvent(delta.Content)) {
				return turnOutcome{}, ctx.Err()
			}
		}

		for _, tc := range delta.ToolCalls {
			for len(partials) <= tc.Index {
				partials = append(partials, &partialCall{})
			}
			p := partials[tc.Index]
			if tc.ID != "" {
				p.id = tc.ID
			}
			if tc.Function.Name != "" {
				p.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				p.args.WriteString(tc.Function.Arguments)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return turnOutcome{}, err
	}

	out := turnOutcome{content: content.String()}
	for _, p := range partials {
		if p.name == "" {
			continue
		}
		args := json.RawMessage(p.args.String())
		// A fragment that never became valid JSON yields empty args rather
		// than aborting the loop.
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out.toolCalls = append(out.toolCalls, skiff.ToolCall{ID: p.id, Name: p.name, Args: args})
	}
	return out, nil
}

package skiff

import (
	"context"
	"encoding/json"
	"fmt"
)

// Provider drives one complete agentic loop against one upstream
// chat-completions-style API and emits normalized events.
//
// StreamTurn must emit exactly one terminal event (done or error), then
// close ch. The event sequence is single-pass and non-restartable. Tool
// invocations are executed through the executor the adapter was constructed
// with; a tool failure becomes a synthetic result string, never a terminal
// error.
type Provider interface {
	// Name identifies the provider family (e.g. "openai", "anthropic").
	Name() string
	// StreamTurn runs the bounded agentic loop for one turn.
	StreamTurn(ctx context.Context, req TurnRequest, ch chan<- Event)
}

// ToolExecutor is the adapter-facing surface of the tool system.
// ToolRegistry implements it.
type ToolExecutor interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// DecodeArgs converts a raw JSON arguments object into the flat string map
// carried by tool_start events and ToolCallRecords. Non-string values are
// rendered compactly. A parse failure yields an empty map, never an error:
// adapters must always supply a best-effort object.
func DecodeArgs(raw json.RawMessage) map[string]string {
	out := map[string]string{}
	if len(raw) == 0 {
		return out
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return out
	}
	for k, v := range m {
		switch t := v.(type) {
		case string:
			out[k] = t
		default:
			b, err := json.Marshal(v)
			if err != nil {
				out[k] = fmt.Sprintf("%v", v)
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}

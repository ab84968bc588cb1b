package skiff

import "encoding/json"

// --- LLM protocol types ---

// ChatMessage is a provider-neutral conversation message. Provider adapters
// translate these into their own wire format.
type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolDefinition describes a callable tool for the model.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// TurnRequest is the input to a Provider's streaming agentic loop.
type TurnRequest struct {
	// System is the assembled system prompt.
	System string
	// History is the conversation so far, ending with the current user message.
	History []ChatMessage
}

// TurnResult is the collapsed outcome of a complete turn, used by blocking
// callers (the Telegram adapter, the non-streaming HTTP endpoint).
type TurnResult struct {
	RunID     string           `json:"runId"`
	Text      string           `json:"response"`
	ToolCalls []ToolCallRecord `json:"toolCalls"`
}

// --- Event log records ---

// Turn is one append-only conversation entry. Written once, never mutated.
type Turn struct {
	ID        string           `json:"id"`
	Role      string           `json:"role"` // "user", "assistant", "error"
	Text      string           `json:"text"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
	CreatedAt int64            `json:"created_at"`
}

// ToolCallRecord is an immutable record of one executed tool call,
// aggregated into the assistant's turn. Result holds the bounded preview
// surfaced in events, not the full output fed back to the model.
type ToolCallRecord struct {
	Name   string            `json:"name"`
	Args   map[string]string `json:"arguments"`
	Result string            `json:"result"`
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text}
}

// Package anthropic implements the messages-style provider adapter: the
// streaming agentic loop against the Anthropic Messages API, whose SSE
// stream carries typed events (content_block_start/delta/stop,
// message_delta) rather than index-keyed deltas.
package anthropic

import "encoding/json"

// --- Request types ---

// messagesRequest is the Messages API request body.
type messagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []wireMessage `json:"messages"`
	Tools     []wireTool    `json:"tools,omitempty"`
	Stream    bool          `json:"stream"`
}

// wireMessage is one conversation message. Content is a list of typed
// blocks; plain text still travels as a single text block.
type wireMessage struct {
	Role    string      `json:"role"` // "user" or "assistant"
	Content []wireBlock `json:"content"`
}

// wireBlock is a typed content block.
type wireBlock struct {
	Type string `json:"type"` // "text", "tool_use", "tool_result"

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// wireTool is a tool definition in the Messages API shape.
type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// --- Stream event types ---

// streamEvent is the union of all typed SSE payloads; Type discriminates.
type streamEvent struct {
	Type string `json:"type"`

	// content_block_start
	Index        int        `json:"index"`
	ContentBlock *wireBlock `json:"content_block,omitempty"`

	// content_block_delta
	Delta *blockDelta `json:"delta,omitempty"`

	// error
	Error *apiError `json:"error,omitempty"`
}

// blockDelta carries either a text fragment or a JSON-arguments fragment.
type blockDelta struct {
	Type        string `json:"type"` // "text_delta", "input_json_delta"
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// errorBody is the non-2xx response envelope.
type errorBody struct {
	Error apiError `json:"error"`
}

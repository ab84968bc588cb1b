package skiff

// EventType identifies the kind of a normalized protocol event.
type EventType string

const (
	// EventToken carries a fragment of assistant-visible text, concatenated
	// in arrival order.
	EventToken EventType = "token"
	// EventToolStart signals a tool invocation whose name and arguments are
	// fully known.
	EventToolStart EventType = "tool_start"
	// EventToolResult carries the bounded preview of a completed tool call.
	EventToolResult EventType = "tool_result"
	// EventDone is the terminal success event. FullText is the complete
	// assistant message across all loop iterations.
	EventDone EventType = "done"
	// EventError is the terminal failure event. No events follow it.
	EventError EventType = "error"
)

// Event is the normalized protocol event emitted by every provider adapter
// and understood by every consumer. Exactly one terminal event (done or
// error) ends each stream; consumers must stop reading after either.
type Event struct {
	Type EventType `json:"type"`

	// Text is the token fragment (token only).
	Text string `json:"text,omitempty"`

	// Name is the tool name (tool_start, tool_result).
	Name string `json:"name,omitempty"`
	// Args are the tool arguments, best-effort decoded (tool_start only).
	Args map[string]string `json:"args,omitempty"`
	// Result is the truncated tool result preview (tool_result only).
	Result string `json:"result,omitempty"`

	// FullText is the complete assistant message (done only).
	FullText string `json:"fullText,omitempty"`
	// ToolCalls is the full tool-call history across all iterations (done only).
	ToolCalls []ToolCallRecord `json:"toolCalls,omitempty"`

	// Message is the failure description (error only).
	Message string `json:"message,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// TokenEvent wraps a text fragment.
func TokenEvent(text string) Event { return Event{Type: EventToken, Text: text} }

// ToolStartEvent announces a tool invocation.
func ToolStartEvent(name string, args map[string]string) Event {
	return Event{Type: EventToolStart, Name: name, Args: args}
}

// ToolResultEvent carries a truncated result preview.
func ToolResultEvent(name, preview string) Event {
	return Event{Type: EventToolResult, Name: name, Result: preview}
}

// DoneEvent is the terminal success event.
func DoneEvent(fullText string, calls []ToolCallRecord) Event {
	return Event{Type: EventDone, FullText: fullText, ToolCalls: calls}
}

// ErrorEvent is the terminal failure event.
func ErrorEvent(message string) Event { return Event{Type: EventError, Message: message} }

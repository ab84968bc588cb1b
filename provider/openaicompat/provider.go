package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	skiff "github.com/avitkov/skiff"
)

// maxIterations bounds the agentic loop: after this many tool-requesting
// rounds the adapter forces a done event rather than looping forever.
const maxIterations = 10

// previewLimit bounds tool-result text surfaced in events and records. The
// full result still goes back into the model's context untruncated.
const previewLimit = 500

// Provider is the completions-style streaming adapter. It owns the bounded
// agentic loop: request, parse the SSE stream, execute requested tools,
// append results, repeat.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	name    string
	client  *http.Client
	exec    skiff.ToolExecutor
	logger  *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithName overrides the provider name (default "openai").
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithHTTPClient replaces the HTTP client (tests, custom transports).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a completions-style adapter. baseURL is the API base
// (e.g. "https://api.openai.com/v1"); /chat/completions is appended.
func New(apiKey, model, baseURL string, exec skiff.ToolExecutor, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		name:    "openai",
		client:  &http.Client{},
		exec:    exec,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider family name.
func (p *Provider) Name() string { return p.name }

// StreamTurn drives the full agentic loop for one turn, emitting normalized
// events into ch and closing it after exactly one terminal event.
func (p *Provider) StreamTurn(ctx context.Context, req skiff.TurnRequest, ch chan<- skiff.Event) {
	defer close(ch)

	emit := func(ev skiff.Event) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	msgs := p.buildMessages(req)
	tools := wireTools(p.exec.Definitions())

	var fullText strings.Builder
	var records []skiff.ToolCallRecord

	for i := 0; i < maxIterations; i++ {
		outcome, err := p.streamOnce(ctx, msgs, tools, emit)
		if err != nil {
			emit(skiff.ErrorEvent(err.Error()))
			return
		}
		fullText.WriteString(outcome.content)

		// The model stopped without requesting tools: natural end of turn.
		if len(outcome.toolCalls) == 0 {
			emit(skiff.DoneEvent(fullText.String(), records))
			return
		}

		msgs = append(msgs, assistantToolMessage(outcome))

		for _, tc := range outcome.toolCalls {
			args := skiff.DecodeArgs(tc.Args)
			if !emit(skiff.ToolStartEvent(tc.Name, args)) {
				return
			}

			result := p.execute(ctx, tc)
			preview := skiff.Truncate(result, previewLimit)
			if !emit(skiff.ToolResultEvent(tc.Name, preview)) {
				return
			}

			// Full, untruncated result back into the model's context.
			msgs = append(msgs, message{Role: "tool", Content: result, ToolCallID: tc.ID})
			records = append(records, skiff.ToolCallRecord{Name: tc.Name, Args: args, Result: preview})
		}
	}

	// Tool budget exhausted: a recoverable outcome, not a failure.
	p.logger.Warn("tool iteration cap reached", "provider", p.name, "cap", maxIterations)
	text := fullText.String()
	if text == "" {
		text = "I ran out of tool iterations before finishing. Here is what I gathered so far."
	}
	emit(skiff.DoneEvent(text, records))
}

// execute runs one tool call, converting every failure mode (error result,
// Go error, panic) into a result string so the loop continues.
func (p *Provider) execute(ctx context.Context, tc skiff.ToolCall) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = fmt.Sprintf("Error: tool %s panicked: %v", tc.Name, r)
		}
	}()
	res, err := p.exec.Execute(ctx, tc.Name, tc.Args)
	if err != nil {
		return "Error: " + err.Error()
	}
	if res.Error != "" {
		return "Error: " + res.Error
	}
	return res.Content
}

// streamOnce issues one streaming request and decodes the response.
func (p *Provider) streamOnce(ctx context.Context, msgs []message, tools []tool, emit func(skiff.Event) bool) (turnOutcome, error) {
	body := chatRequest{Model: p.model, Messages: msgs, Tools: tools, Stream: true}
	payload, err := json.Marshal(body)
	if err != nil {
		return turnOutcome{}, &skiff.ErrLLM{Provider: p.name, Message: "marshal request: " + err.Error()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return turnOutcome{}, &skiff.ErrLLM{Provider: p.name, Message: "create request: " + err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return turnOutcome{}, &skiff.ErrLLM{Provider: p.name, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return turnOutcome{}, p.httpErr(resp)
	}

	return readStream(ctx, resp.Body, emit)
}

// httpErr extracts the best available message from an error response body.
func (p *Provider) httpErr(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Error.Message != "" {
		return &skiff.ErrLLM{Provider: p.name, Message: eb.Error.Message}
	}
	return &skiff.ErrHTTP{Status: resp.StatusCode, Body: string(raw)}
}

// buildMessages translates the neutral request into wire messages.
func (p *Provider) buildMessages(req skiff.TurnRequest) []message {
	msgs := make([]message, 0, len(req.History)+1)
	if req.System != "" {
		msgs = append(msgs, message{Role: "system", Content: req.System})
	}
	for _, m := range req.History {
		msgs = append(msgs, message{Role: m.Role, Content: m.Content})
	}
	return msgs
}

// assistantToolMessage records the model's tool-requesting turn in the wire
// history so the next iteration sees its own calls.
func assistantToolMessage(o turnOutcome) message {
	m := message{Role: "assistant", Content: o.content}
	for _, tc := range o.toolCalls {
		m.ToolCalls = append(m.ToolCalls, toolCallReq{
			ID:       tc.ID,
			Type:     "function",
			Function: functionCall{Name: tc.Name, Arguments: string(tc.Args)},
		})
	}
	return m
}

// wireTools converts neutral tool definitions to the OpenAI tool format.
func wireTools(defs []skiff.ToolDefinition) []tool {
	out := make([]tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, tool{
			Type:     "function",
			Function: function{Name: d.Name, Description: d.Description, Parameters: d.Parameters},
		})
	}
	return out
}

// Compile-time interface check.
var _ skiff.Provider = (*Provider)(nil)

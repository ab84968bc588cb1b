package anthropic

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

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"

	// maxIterations bounds the agentic loop, same cap as the
	// completions-style adapter.
	maxIterations = 10

	// previewLimit bounds tool-result text surfaced in events and records.
	previewLimit = 500

	// maxTokens is the required output cap on every Messages request.
	maxTokens = 8192
)

// Provider is the messages-style streaming adapter.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	exec    skiff.ToolExecutor
	logger  *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base (tests, proxies).
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
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

// New creates a messages-style adapter.
func New(apiKey, model string, exec skiff.ToolExecutor, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
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
func (p *Provider) Name() string { return "anthropic" }

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

	msgs := buildMessages(req)
	tools := wireToolDefs(p.exec.Definitions())

	var fullText strings.Builder
	var records []skiff.ToolCallRecord

	for i := 0; i < maxIterations; i++ {
		outcome, err := p.streamOnce(ctx, req.System, msgs, tools, emit)
		if err != nil {
			emit(skiff.ErrorEvent(err.Error()))
			return
		}
		fullText.WriteString(outcome.content)

		if len(outcome.toolCalls) == 0 {
			emit(skiff.DoneEvent(fullText.String(), records))
			return
		}

		msgs = append(msgs, assistantMessage(outcome))

		// Tool results go back as a single user message of tool_result
		// blocks, the shape the Messages API requires.
		reply := wireMessage{Role: "user"}
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

			reply.Content = append(reply.Content, wireBlock{
				Type:      "tool_result",
				ToolUseID: tc.ID,
				Content:   result, // untruncated
			})
			records = append(records, skiff.ToolCallRecord{Name: tc.Name, Args: args, Result: preview})
		}
		msgs = append(msgs, reply)
	}

	p.logger.Warn("tool iteration cap reached", "provider", "anthropic", "cap", maxIterations)
	text := fullText.String()
	if text == "" {
		text = "I ran out of tool iterations before finishing. Here is what I gathered so far."
	}
	emit(skiff.DoneEvent(text, records))
}

// execute runs one tool call, converting every failure mode into a result
// string so the loop continues.
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
func (p *Provider) streamOnce(ctx context.Context, system string, msgs []wireMessage, tools []wireTool, emit func(skiff.Event) bool) (turnOutcome, error) {
	body := messagesRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  msgs,
		Tools:     tools,
		Stream:    true,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return turnOutcome{}, &skiff.ErrLLM{Provider: "anthropic", Message: "marshal request: " + err.Error()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return turnOutcome{}, &skiff.ErrLLM{Provider: "anthropic", Message: "create request: " + err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return turnOutcome{}, &skiff.ErrLLM{Provider: "anthropic", Message: err.Error()}
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
		return &skiff.ErrLLM{Provider: "anthropic", Message: eb.Error.Message}
	}
	return &skiff.ErrHTTP{Status: resp.StatusCode, Body: string(raw)}
}

// buildMessages translates the neutral history into wire messages. The
// system prompt travels as a top-level field, not a message.
func buildMessages(req skiff.TurnRequest) []wireMessage {
	msgs := make([]wireMessage, 0, len(req.History))
	for _, m := range req.History {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		msgs = append(msgs, wireMessage{
			Role:    m.Role,
			Content: []wireBlock{{Type: "text", Text: m.Content}},
		})
	}
	return msgs
}

// assistantMessage records the model's tool-requesting turn, preserving any
// text alongside the tool_use blocks.
func assistantMessage(o turnOutcome) wireMessage {
	m := wireMessage{Role: "assistant"}
	if o.content != "" {
		m.Content = append(m.Content, wireBlock{Type: "text", Text: o.content})
	}
	for _, tc := range o.toolCalls {
		m.Content = append(m.Content, wireBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: tc.Args})
	}
	return m
}

// wireToolDefs converts neutral tool definitions to the Messages API shape.
func wireToolDefs(defs []skiff.ToolDefinition) []wireTool {
	out := make([]wireTool, 0, len(defs))
	for _, d := range defs {
		out = append(out, wireTool{Name: d.Name, Description: d.Description, InputSchema: d.Parameters})
	}
	return out
}

// Compile-time interface check.
var _ skiff.Provider = (*Provider)(nil)

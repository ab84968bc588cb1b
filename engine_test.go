package skiff

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestEngine(p Provider, log EventLog, opts ...EngineOption) *Engine {
	base := []EngineOption{WithWorkspace("")}
	return NewEngine(p, log, append(base, opts...)...)
}

func TestStreamTurnTokensAndDone(t *testing.T) {
	provider := &scriptedProvider{events: []Event{
		TokenEvent("one "),
		TokenEvent("two "),
		TokenEvent("three"),
		DoneEvent("one two three", nil),
	}}
	log := &memLog{}
	e := newTestEngine(provider, log)

	events := drain(e.StreamTurn(context.Background(), "count to three"))

	var full strings.Builder
	var terminal Event
	for _, ev := range events {
		switch ev.Type {
		case EventToken:
			full.WriteString(ev.Text)
		case EventDone, EventError:
			terminal = ev
		}
	}
	if terminal.Type != EventDone {
		t.Fatalf("expected done, got %+v", terminal)
	}
	if terminal.FullText != full.String() {
		t.Errorf("fullText %q != concatenated tokens %q", terminal.FullText, full.String())
	}

	if got := len(log.byRole("user")); got != 1 {
		t.Errorf("expected 1 user turn persisted, got %d", got)
	}
	assistant := log.byRole("assistant")
	if len(assistant) != 1 || assistant[0].Text != "one two three" {
		t.Errorf("assistant turn wrong: %+v", assistant)
	}
}

func TestStreamTurnBusyReject(t *testing.T) {
	provider := &scriptedProvider{
		started: make(chan struct{}),
		release: make(chan struct{}),
		events:  []Event{DoneEvent("done", nil)},
	}
	e := newTestEngine(provider, &memLog{})

	first := e.StreamTurn(context.Background(), "long job")
	<-provider.started

	second := drain(e.StreamTurn(context.Background(), "impatient"))
	if len(second) != 1 || second[0].Type != EventError {
		t.Fatalf("expected single error event, got %+v", second)
	}
	if !strings.Contains(second[0].Message, "busy") {
		t.Errorf("expected busy message, got %q", second[0].Message)
	}

	close(provider.release)
	drain(first)

	// Gate released after the first turn finishes.
	third := drain(e.StreamTurn(context.Background(), "again"))
	if last := third[len(third)-1]; last.Type != EventDone {
		t.Errorf("expected done after release, got %+v", last)
	}
}

func TestStreamTurnNotConfigured(t *testing.T) {
	e := newTestEngine(nil, &memLog{})
	events := drain(e.StreamTurn(context.Background(), "hello"))
	if len(events) != 1 || events[0].Type != EventError {
		t.Fatalf("expected single error event, got %+v", events)
	}
	if !strings.Contains(events[0].Message, ErrNotConfigured.Error()) {
		t.Errorf("wrong message: %q", events[0].Message)
	}
}

func TestStreamTurnCancelReleasesGate(t *testing.T) {
	provider := &scriptedProvider{
		started: make(chan struct{}),
		release: make(chan struct{}), // never closed; cancellation unblocks
		events:  []Event{DoneEvent("ok", nil)},
	}
	e := newTestEngine(provider, &memLog{})

	ctx, cancel := context.WithCancel(context.Background())
	ch := e.StreamTurn(ctx, "doomed")
	<-provider.started
	cancel()
	drain(ch)

	// The gate must be free for the next caller. The release happens in the
	// turn goroutine's deferred cleanup, so allow a short window.
	deadline := time.After(time.Second)
	for {
		events := drain(e.StreamTurn(context.Background(), "after cancel"))
		if len(events) > 0 && events[len(events)-1].Type == EventDone {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("gate still held after cancel: %+v", events)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStreamTurnProviderError(t *testing.T) {
	provider := &scriptedProvider{events: []Event{ErrorEvent("upstream 500")}}
	log := &memLog{}
	e := newTestEngine(provider, log)

	events := drain(e.StreamTurn(context.Background(), "hello"))
	last := events[len(events)-1]
	if last.Type != EventError || last.Message != "upstream 500" {
		t.Fatalf("expected error event, got %+v", last)
	}
	if got := len(log.byRole("error")); got != 1 {
		t.Errorf("expected 1 error turn persisted, got %d", got)
	}
}

func TestRunTurnCollapses(t *testing.T) {
	calls := []ToolCallRecord{{Name: "web_search", Args: map[string]string{"query": "x"}, Result: "r"}}
	provider := &scriptedProvider{events: []Event{
		TokenEvent("answer"),
		DoneEvent("answer", calls),
	}}
	e := newTestEngine(provider, &memLog{})

	result, err := e.RunTurn(context.Background(), "question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "answer" {
		t.Errorf("wrong text: %q", result.Text)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Name != "web_search" {
		t.Errorf("tool calls lost: %+v", result.ToolCalls)
	}
	if result.RunID == "" {
		t.Error("missing run ID")
	}
}

func TestRunTurnErrorEvent(t *testing.T) {
	provider := &scriptedProvider{events: []Event{ErrorEvent("model exploded")}}
	e := newTestEngine(provider, &memLog{})

	_, err := e.RunTurn(context.Background(), "question")
	var llmErr *ErrLLM
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected ErrLLM, got %v", err)
	}
	if llmErr.Message != "model exploded" {
		t.Errorf("wrong message: %q", llmErr.Message)
	}
}

func TestRunTurnBusy(t *testing.T) {
	provider := &scriptedProvider{
		started: make(chan struct{}),
		release: make(chan struct{}),
		events:  []Event{DoneEvent("done", nil)},
	}
	e := newTestEngine(provider, &memLog{})

	first := e.StreamTurn(context.Background(), "slow")
	<-provider.started

	_, err := e.RunTurn(context.Background(), "second")
	if !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}

	close(provider.release)
	drain(first)
}

func TestRunTurnNotConfigured(t *testing.T) {
	e := newTestEngine(nil, &memLog{})
	_, err := e.RunTurn(context.Background(), "hello")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestHistoryOrder(t *testing.T) {
	log := &memLog{}
	ctx := context.Background()
	log.Append(ctx, Turn{ID: "1", Role: "user", Text: "earlier question", CreatedAt: 1})
	log.Append(ctx, Turn{ID: "2", Role: "assistant", Text: "earlier answer", CreatedAt: 2})
	log.Append(ctx, Turn{ID: "3", Role: "error", Text: "transient failure", CreatedAt: 3})

	var captured TurnRequest
	provider := &capturingProvider{req: &captured}
	e := newTestEngine(provider, log)
	drain(e.StreamTurn(ctx, "new question"))

	msgs := captured.History
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages (error skipped), got %d: %+v", len(msgs), msgs)
	}
	if msgs[0].Content != "earlier question" || msgs[0].Role != "user" {
		t.Errorf("wrong first message: %+v", msgs[0])
	}
	if msgs[2].Content != "new question" {
		t.Errorf("current message must come last: %+v", msgs[2])
	}
}

// capturingProvider records the request it was given and completes.
type capturingProvider struct {
	req *TurnRequest
}

func (p *capturingProvider) Name() string { return "capturing" }
func (p *capturingProvider) StreamTurn(_ context.Context, req TurnRequest, out chan<- Event) {
	defer close(out)
	*p.req = req
	out <- DoneEvent("", nil)
}

package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	skiff "github.com/avitkov/skiff"
	"github.com/avitkov/skiff/frontend/telegram"
)

// fakeEngine replays a canned event sequence.
type fakeEngine struct {
	events []skiff.Event
	result skiff.TurnResult
	err    error
}

func (f *fakeEngine) StreamTurn(ctx context.Context, _ string) <-chan skiff.Event {
	out := make(chan skiff.Event)
	go func() {
		defer close(out)
		for _, ev := range f.events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (f *fakeEngine) RunTurn(context.Context, string) (skiff.TurnResult, error) {
	return f.result, f.err
}

type fakeChannel struct {
	running  bool
	startErr error
}

func (f *fakeChannel) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}
func (f *fakeChannel) Stop() { f.running = false }
func (f *fakeChannel) Restart() error {
	f.Stop()
	return f.Start()
}
func (f *fakeChannel) Status() telegram.Status {
	return telegram.Status{Running: f.running, PairedUser: 42}
}

func TestChatStreamSSE(t *testing.T) {
	engine := &fakeEngine{events: []skiff.Event{
		skiff.TokenEvent("Hel"),
		skiff.TokenEvent("lo"),
		skiff.DoneEvent("Hello", nil),
	}}
	srv := httptest.NewServer(NewServer(engine).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/chat/stream", "application/json",
		strings.NewReader(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("wrong content type: %s", ct)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	var events []skiff.Event
	for _, line := range strings.Split(string(raw), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev skiff.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad event line %q: %v", line, err)
		}
		events = append(events, ev)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != skiff.EventToken || events[0].Text != "Hel" {
		t.Errorf("wrong first event: %+v", events[0])
	}
	if events[2].Type != skiff.EventDone || events[2].FullText != "Hello" {
		t.Errorf("wrong terminal event: %+v", events[2])
	}
}

func TestChatBlocking(t *testing.T) {
	engine := &fakeEngine{result: skiff.TurnResult{RunID: "r1", Text: "answer"}}
	srv := httptest.NewServer(NewServer(engine).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/chat", "application/json",
		strings.NewReader(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body struct {
		Response string `json:"response"`
		RunID    string `json:"runId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Response != "answer" || body.RunID != "r1" {
		t.Errorf("wrong body: %+v", body)
	}
}

func TestChatBusyConflict(t *testing.T) {
	engine := &fakeEngine{err: skiff.ErrBusy}
	srv := httptest.NewServer(NewServer(engine).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/chat", "application/json",
		strings.NewReader(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", resp.StatusCode)
	}
}

func TestChatMissingMessage(t *testing.T) {
	srv := httptest.NewServer(NewServer(&fakeEngine{}).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestChannelLifecycle(t *testing.T) {
	ch := &fakeChannel{}
	srv := httptest.NewServer(NewServer(&fakeEngine{}, WithChannel(ch)).Handler())
	defer srv.Close()

	resp, _ := http.Post(srv.URL+"/api/channel/start", "application/json", nil)
	resp.Body.Close()
	if !ch.running {
		t.Fatal("channel not started")
	}

	resp, _ = http.Get(srv.URL + "/api/channel/status")
	var st telegram.Status
	json.NewDecoder(resp.Body).Decode(&st)
	resp.Body.Close()
	if !st.Running || st.PairedUser != 42 {
		t.Errorf("wrong status: %+v", st)
	}

	resp, _ = http.Post(srv.URL+"/api/channel/stop", "application/json", nil)
	resp.Body.Close()
	if ch.running {
		t.Error("channel not stopped")
	}
}

func TestChannelNotConfigured(t *testing.T) {
	srv := httptest.NewServer(NewServer(&fakeEngine{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/channel/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(NewServer(&fakeEngine{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

// idleProvider completes immediately; it exists so a real engine can be
// built and its gate held externally.
type idleProvider struct{}

func (idleProvider) Name() string { return "idle" }
func (idleProvider) StreamTurn(_ context.Context, _ skiff.TurnRequest, ch chan<- skiff.Event) {
	defer close(ch)
	ch <- skiff.DoneEvent("", nil)
}

type nopLog struct{}

func (nopLog) Append(context.Context, skiff.Turn) error          { return nil }
func (nopLog) Recent(context.Context, int) ([]skiff.Turn, error) { return nil, nil }

// A held gate on the real engine must come back as 409, not a generic
// upstream failure.
func TestChatBusyConflictThroughEngine(t *testing.T) {
	engine := skiff.NewEngine(idleProvider{}, nopLog{})
	if !engine.Gate().TryAcquire() {
		t.Fatal("could not hold the gate")
	}
	defer engine.Gate().Release()

	srv := httptest.NewServer(NewServer(engine).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/chat", "application/json",
		strings.NewReader(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", resp.StatusCode)
	}
}

func TestChatNotConfiguredThroughEngine(t *testing.T) {
	engine := skiff.NewEngine(nil, nopLog{})
	srv := httptest.NewServer(NewServer(engine).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/chat", "application/json",
		strings.NewReader(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

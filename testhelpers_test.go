package skiff

import (
	"context"
	"sync"
)

// memLog is an in-memory EventLog for engine tests.
type memLog struct {
	mu    sync.Mutex
	turns []Turn
}

func (m *memLog) Append(_ context.Context, turn Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turn)
	return nil
}

func (m *memLog) Recent(_ context.Context, limit int) ([]Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.turns) <= limit {
		return append([]Turn(nil), m.turns...), nil
	}
	return append([]Turn(nil), m.turns[len(m.turns)-limit:]...), nil
}

func (m *memLog) byRole(role string) []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Turn
	for _, t := range m.turns {
		if t.Role == role {
			out = append(out, t)
		}
	}
	return out
}

// scriptedProvider emits a fixed event sequence, optionally blocking until
// released so tests can hold the gate open. It closes out when it returns,
// matching the Provider contract.
type scriptedProvider struct {
	name    string
	events  []Event
	started chan struct{} // closed when StreamTurn first begins, if non-nil
	release chan struct{} // first StreamTurn blocks until closed, if non-nil

	mu    sync.Mutex
	calls int
}

func (p *scriptedProvider) Name() string {
	if p.name == "" {
		return "scripted"
	}
	return p.name
}

func (p *scriptedProvider) StreamTurn(ctx context.Context, _ TurnRequest, out chan<- Event) {
	defer close(out)

	p.mu.Lock()
	p.calls++
	first := p.calls == 1
	p.mu.Unlock()

	if first && p.started != nil {
		close(p.started)
	}
	if first && p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return
		}
	}
	for _, ev := range p.events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func drain(ch <-chan Event) []Event {
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

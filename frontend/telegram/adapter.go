// Package telegram bridges a single Telegram chat to the chat engine. The
// adapter long-polls the Bot API, pairs itself with the first human who
// writes to it, and relays turns through the engine's blocking interface.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	skiff "github.com/avitkov/skiff"
)

const (
	// maxMessageLength is Telegram's hard limit per sendMessage call.
	maxMessageLength = 4096
	// errorBackoff is how long the poll loop sleeps after a network error.
	errorBackoff = 5 * time.Second

	rejectionReply = "Sorry, I'm already paired with someone else."
)

// Responder runs one blocking conversational turn. *skiff.Engine satisfies
// it.
type Responder interface {
	RunTurn(ctx context.Context, message string) (skiff.TurnResult, error)
}

// botAPI is the slice of the Bot API the adapter uses. Tests substitute a
// fake.
type botAPI interface {
	GetUpdates(ctx context.Context, offset int64) ([]Update, error)
	SendMessage(ctx context.Context, chatID int64, text, parseMode string) error
	SendTyping(ctx context.Context, chatID int64) error
}

// Status reports the adapter's lifecycle and pairing state.
type Status struct {
	Running    bool  `json:"running"`
	PairedUser int64 `json:"pairedUser,omitempty"`
}

// Adapter is the lifecycle handle for the Telegram bridge.
type Adapter struct {
	api       botAPI
	responder Responder
	logger    *slog.Logger

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	pairedUser int64 // 0 until the first message binds a sender
	offset     int64
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// New creates an adapter for the given bot token. The adapter is inert until
// Start is called.
func New(token string, responder Responder, opts ...Option) *Adapter {
	a := &Adapter{
		api:       NewClient(token),
		responder: responder,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start launches the polling loop. Starting a running adapter is an error.
func (a *Adapter) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("telegram adapter already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	a.running = true

	go a.pollLoop(ctx)
	a.logger.Info("telegram adapter started")
	return nil
}

// Stop cancels the poll loop and waits for it to exit. Stopping a stopped
// adapter is a no-op.
func (a *Adapter) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	cancel()
	<-done
	a.logger.Info("telegram adapter stopped")
}

// Restart stops and restarts the poll loop. Pairing and the poll offset
// survive a restart; only a process restart clears them.
func (a *Adapter) Restart() error {
	a.Stop()
	return a.Start()
}

// Status reports whether the loop is running and who it is paired with.
func (a *Adapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{Running: a.running, PairedUser: a.pairedUser}
}

func (a *Adapter) pollLoop(ctx context.Context) {
	defer close(a.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := a.api.GetUpdates(ctx, a.nextOffset())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Warn("poll error", "error", err)
			select {
			case <-time.After(errorBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, u := range updates {
			a.advanceOffset(u.UpdateID)
			if u.Message == nil || u.Message.From == nil || u.Message.Text == "" {
				continue
			}
			a.handleMessage(ctx, u.Message)
		}
	}
}

func (a *Adapter) nextOffset() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.offset
}

func (a *Adapter) advanceOffset(updateID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if updateID >= a.offset {
		a.offset = updateID + 1
	}
}

// handleMessage enforces pairing, runs the turn, and delivers the reply.
func (a *Adapter) handleMessage(ctx context.Context, msg *Message) {
	if !a.admit(msg.From.ID) {
		a.logger.Info("rejected message from unpaired sender", "sender", msg.From.ID)
		if err := a.api.SendMessage(ctx, msg.Chat.ID, rejectionReply, ""); err != nil {
			a.logger.Warn("rejection reply failed", "error", err)
		}
		return
	}

	a.logger.Info("inbound message", "sender", msg.From.ID, "chars", len(msg.Text))
	if err := a.api.SendTyping(ctx, msg.Chat.ID); err != nil {
		a.logger.Debug("typing indicator failed", "error", err)
	}

	result, err := a.responder.RunTurn(ctx, msg.Text)
	if err != nil {
		a.logger.Error("turn failed", "error", err)
		if sendErr := a.api.SendMessage(ctx, msg.Chat.ID, "Error: "+err.Error(), ""); sendErr != nil {
			a.logger.Warn("error reply failed", "error", sendErr)
		}
		return
	}

	a.deliver(ctx, msg.Chat.ID, result.Text)
}

// admit binds the first sender and rejects everyone else afterwards.
func (a *Adapter) admit(senderID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pairedUser == 0 {
		a.pairedUser = senderID
		a.logger.Info("paired with sender", "sender", senderID)
		return true
	}
	return a.pairedUser == senderID
}

// deliver splits, formats, and sends the reply. A formatted send that the
// platform rejects is retried once as plain text; a chunk whose escaped
// form exceeds the platform limit goes out plain directly, since the raw
// chunk is the one guaranteed to fit.
func (a *Adapter) deliver(ctx context.Context, chatID int64, text string) {
	for _, chunk := range splitMessage(text, maxMessageLength) {
		formatted := ToMarkdownV2(chunk)
		if len(formatted) > maxMessageLength {
			if err := a.api.SendMessage(ctx, chatID, chunk, ""); err != nil {
				a.logger.Error("send failed", "error", err)
				return
			}
			continue
		}
		err := a.api.SendMessage(ctx, chatID, formatted, parseModeMarkdownV2)
		if err == nil {
			continue
		}
		a.logger.Warn("formatted send rejected, retrying plain", "error", err)
		if err := a.api.SendMessage(ctx, chatID, chunk, ""); err != nil {
			a.logger.Error("send failed", "error", err)
			return
		}
	}
}

// splitMessage splits text into chunks of at most limit bytes, preferring a
// paragraph break, then a line break, then a hard cut on a rune boundary.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > limit {
		window := remaining[:limit]

		cut := strings.LastIndex(window, "\n\n")
		if cut > 0 {
			cut += 2
		} else if cut = strings.LastIndex(window, "\n"); cut > 0 {
			cut++
		} else {
			cut = limit
			for cut > 0 && !utf8.RuneStart(remaining[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}

		chunks = append(chunks, remaining[:cut])
		remaining = remaining[cut:]
	}
	if len(remaining) > 0 {
		chunks = append(chunks, remaining)
	}
	return chunks
}

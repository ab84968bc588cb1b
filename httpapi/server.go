// Package httpapi exposes the chat engine and channel adapter over HTTP: a
// streaming SSE endpoint, a blocking endpoint, and channel lifecycle
// controls.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	skiff "github.com/avitkov/skiff"
	"github.com/avitkov/skiff/frontend/telegram"
)

// ChatService is the engine surface the API depends on. *skiff.Engine
// satisfies it.
type ChatService interface {
	StreamTurn(ctx context.Context, message string) <-chan skiff.Event
	RunTurn(ctx context.Context, message string) (skiff.TurnResult, error)
}

// ChannelHandle controls the messaging channel's lifecycle.
// *telegram.Adapter satisfies it.
type ChannelHandle interface {
	Start() error
	Stop()
	Restart() error
	Status() telegram.Status
}

// Server routes HTTP traffic to the engine and channel.
type Server struct {
	engine  ChatService
	channel ChannelHandle
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithChannel attaches a channel adapter to the lifecycle endpoints.
func WithChannel(c ChannelHandle) Option {
	return func(s *Server) { s.channel = c }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates an HTTP server around the engine.
func NewServer(engine ChatService, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the route table as an http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/channel/status", s.handleChannelStatus)
	mux.HandleFunc("POST /api/channel/start", s.handleChannelStart)
	mux.HandleFunc("POST /api/channel/stop", s.handleChannelStop)
	mux.HandleFunc("POST /api/channel/restart", s.handleChannelRestart)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) decodeChat(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return "", false
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return "", false
	}
	return req.Message, true
}

// handleChatStream streams normalized events as SSE, one JSON object per
// data line. The stream ends after the terminal event.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	message, ok := s.decodeChat(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range s.engine.StreamTurn(r.Context(), message) {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("event marshal failed", "error", err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}

// handleChat runs a blocking turn and returns the collapsed result.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	message, ok := s.decodeChat(w, r)
	if !ok {
		return
	}

	result, err := s.engine.RunTurn(r.Context(), message)
	if err != nil {
		switch {
		case errors.Is(err, skiff.ErrBusy):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, skiff.ErrNotConfigured):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleChannelStatus(w http.ResponseWriter, _ *http.Request) {
	if s.channel == nil {
		writeError(w, http.StatusServiceUnavailable, "channel not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.channel.Status())
}

func (s *Server) handleChannelStart(w http.ResponseWriter, _ *http.Request) {
	if s.channel == nil {
		writeError(w, http.StatusServiceUnavailable, "channel not configured")
		return
	}
	if err := s.channel.Start(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.channel.Status())
}

func (s *Server) handleChannelStop(w http.ResponseWriter, _ *http.Request) {
	if s.channel == nil {
		writeError(w, http.StatusServiceUnavailable, "channel not configured")
		return
	}
	s.channel.Stop()
	writeJSON(w, http.StatusOK, s.channel.Status())
}

func (s *Server) handleChannelRestart(w http.ResponseWriter, _ *http.Request) {
	if s.channel == nil {
		writeError(w, http.StatusServiceUnavailable, "channel not configured")
		return
	}
	if err := s.channel.Restart(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.channel.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

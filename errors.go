package skiff

import (
	"errors"
	"fmt"
)

// ErrBusy is returned (and surfaced as an error event) when a turn is
// requested while another is in flight. The caller is rejected immediately,
// never queued.
var ErrBusy = errors.New("agent is busy with another conversation")

// ErrNotConfigured signals missing provider configuration (credential,
// model, or provider identity).
var ErrNotConfigured = errors.New("no provider configured: set an API key and model")

// ErrLLM is a provider-level failure with a best-effort message.
type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP is a non-2xx upstream response.
type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

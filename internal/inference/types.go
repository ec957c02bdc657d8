// Package inference calls the remote language model that writes assistant
// replies and lead extractions.
package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/ent0n29/tensai/internal/conversation"
)

// Request is the normalized payload handed to a Provider.
type Request struct {
	System    string
	Turns     []conversation.Turn
	MaxTokens int
}

// Provider completes a single request against a model backend. Rate-limit
// failures are returned as *reliability.ThrottleError.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

type Kind string

const (
	// KindExhausted means every attempt was throttled.
	KindExhausted Kind = "exhausted"
	// KindFailed means a non-throttling failure ended the call.
	KindFailed Kind = "failed"
)

const (
	MaxAttempts   = 5
	errorPrefix   = "An error occurred: "
	ExhaustedText = errorPrefix + "Max retries exceeded."
)

var ErrNoProvider = errors.New("inference provider is not configured")

// InferenceError accompanies the fallback text returned by Client.Infer.
type InferenceError struct {
	Kind     Kind
	Provider string
	Attempts int
	Err      error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference %s via %s after %d attempt(s): %v", e.Kind, e.Provider, e.Attempts, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// ErrorText renders err the way it is shown to the user in place of a reply.
func ErrorText(err error) string {
	if err == nil {
		return errorPrefix + "unknown error"
	}
	return errorPrefix + err.Error()
}

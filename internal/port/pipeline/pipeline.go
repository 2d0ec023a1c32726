// Package pipeline defines the port interface for the upstream agent
// pipeline that turns requirement text into a hierarchy fragment.
package pipeline

import (
	"context"
	"errors"
)

// ErrSessionExpired reports that the backend no longer knows the session.
// Callers rebuild the session and retry once.
var ErrSessionExpired = errors.New("pipeline session expired")

// Request is one prompt sent within a conversational session.
type Request struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Prompt    string `json:"query"`

	// NewSession asks the backend to start a fresh conversation.
	NewSession bool `json:"-"`
}

// Runner executes the generation pipeline.
type Runner interface {
	// Query returns the pipeline's final answer, expected to be a fragment
	// in JSON (possibly fenced).
	Query(ctx context.Context, req Request) (string, error)
}

// Package llm defines the text-generation and embedding capabilities the trust
// pipeline consumes, and an Ollama-backed client for both.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// GenerateRequest is one non-streaming completion call. Empty Model and
// SystemPrompt select the client defaults.
type GenerateRequest struct {
	Prompt       string
	Model        string
	SystemPrompt string
}

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// ErrorCategory is the normalized failure taxonomy of a capability call.
type ErrorCategory string

const (
	// ErrorTimeout indicates the call exceeded its deadline.
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorTransport indicates the backend was unreachable or answered with a
	// non-success status.
	ErrorTransport ErrorCategory = "transport"

	// ErrorBadResponse indicates the backend answered with an undecodable body.
	ErrorBadResponse ErrorCategory = "bad_response"
)

// CapabilityError wraps capability failures with a normalized category.
type CapabilityError struct {
	Category ErrorCategory
	Op       string
	Err      error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("llm %s [%s]: %v", e.Op, e.Category, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// CategoryOf extracts the category from err, or "" when err is not a
// CapabilityError.
func CategoryOf(err error) ErrorCategory {
	var ce *CapabilityError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ""
}

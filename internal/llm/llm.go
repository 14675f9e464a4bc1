// Package llm defines the text-generation contract used by the report
// pipeline and an HTTP client for Ollama-compatible backends.
package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable is returned when the backend cannot be reached
	// or the exchange is cut off before a response arrives.
	ErrBackendUnavailable = errors.New("text generation backend unavailable")
	// ErrEmptyGeneration is returned when the backend produced no usable text.
	ErrEmptyGeneration = errors.New("empty generation")
	// ErrMalformedResponse is returned when a 2xx response cannot be decoded.
	ErrMalformedResponse = errors.New("malformed backend response")
)

// BackendError is a non-2xx answer from the backend.
type BackendError struct {
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Body)
}

// GenerateRequest is one prompt sent to the backend.
type GenerateRequest struct {
	// Model names the backend model. Empty means the client default.
	Model string
	// Prompt is the full prompt text.
	Prompt string
}

// Generator sends a prompt and returns the raw generated text.
// Implementations do not retry.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return f(ctx, req)
}

// IsBackendFailure reports whether err came from the backend exchange
// itself rather than from interpreting its output.
func IsBackendFailure(err error) bool {
	if errors.Is(err, ErrBackendUnavailable) {
		return true
	}
	var be *BackendError
	return errors.As(err, &be)
}

// Package llm sends prompts to a language model backend and returns text.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrGeneration wraps every failure returned by a Generator.
	ErrGeneration = errors.New("generation failed")
	// ErrCircuitOpen is returned without calling the backend after too many
	// consecutive failures.
	ErrCircuitOpen = errors.New("model backend circuit open")
	// ErrUnknownProvider is returned by New for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Request is a single generation call.
type Request struct {
	Prompt      string
	System      string // optional system instruction
	Temperature float64
	MaxTokens   int
}

// Generator produces text for a prompt. Implementations are stateless per
// call and safe for sequential reuse.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

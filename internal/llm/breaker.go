package llm

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// CircuitBreaker opens after consecutive generation failures.
type CircuitBreaker struct {
	mu                  sync.Mutex
	consecutiveFailures int
	threshold           int
	open                bool
}

// NewCircuitBreaker creates a circuit breaker with the given threshold.
func NewCircuitBreaker(threshold int) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3 // default
	}
	return &CircuitBreaker{threshold: threshold}
}

// RecordFailure increments the failure counter.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures++
	if cb.consecutiveFailures >= cb.threshold {
		cb.open = true
	}
}

// RecordSuccess resets the failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures = 0
	cb.open = false
}

// Open returns true once the threshold has been reached.
func (cb *CircuitBreaker) Open() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.open
}

// ConsecutiveFailures returns the current failure count.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFailures
}

type guardedGenerator struct {
	next    Generator
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// WithBreaker wraps next so that, once breaker is open, calls fail with
// ErrCircuitOpen without reaching the backend. Cancelled calls are not
// counted as failures.
func WithBreaker(next Generator, breaker *CircuitBreaker, logger *zap.Logger) Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &guardedGenerator{next: next, breaker: breaker, logger: logger}
}

func (g *guardedGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if g.breaker.Open() {
		return "", fmt.Errorf("%w: %w", ErrGeneration, ErrCircuitOpen)
	}

	text, err := g.next.Generate(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			g.breaker.RecordFailure()
			if g.breaker.Open() {
				g.logger.Warn("model backend failing, skipping further calls",
					zap.Int("consecutive_failures", g.breaker.ConsecutiveFailures()))
			}
		}
		return "", err
	}

	g.breaker.RecordSuccess()
	return text, nil
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"invoicechat/internal/resilience"
)

const (
	OperationExtractText = "extract_text"
	OperationAnswer      = "answer"
)

// Observer receives one sample per guarded call.
type Observer interface {
	ObserveOracleCall(operation, outcome string, duration time.Duration)
}

type GuardOptions struct {
	Timeout  time.Duration
	Limiter  *rate.Limiter
	Executor *resilience.Executor
	Observer Observer
}

// Guard bounds every oracle call with a per-attempt timeout, a shared rate
// limit and the retry/breaker executor.
type Guard struct {
	inner Oracle
	opts  GuardOptions
}

func NewGuard(inner Oracle, opts GuardOptions) *Guard {
	if opts.Executor == nil {
		opts.Executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Guard{inner: inner, opts: opts}
}

func (g *Guard) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	var text string
	err := g.run(ctx, OperationExtractText, func(ctx context.Context) error {
		out, err := g.inner.ExtractText(ctx, data, mimeType)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	return text, err
}

func (g *Guard) Answer(ctx context.Context, req AnswerRequest) (string, error) {
	var answer string
	err := g.run(ctx, OperationAnswer, func(ctx context.Context) error {
		out, err := g.inner.Answer(ctx, req)
		if err != nil {
			return err
		}
		answer = out
		return nil
	})
	return answer, err
}

func (g *Guard) run(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := time.Now()

	if g.opts.Limiter != nil {
		if err := g.opts.Limiter.Wait(ctx); err != nil {
			g.observe(operation, "rate_limited", start)
			return fmt.Errorf("%w: rate limit wait: %v", ErrUnavailable, err)
		}
	}

	err := g.opts.Executor.Execute(ctx, operation, func(ctx context.Context) error {
		if g.opts.Timeout <= 0 {
			return fn(ctx)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
		return fn(attemptCtx)
	}, resilience.ClassifyOracleError)

	switch {
	case err == nil:
		g.observe(operation, "ok", start)
		return nil
	case resilience.IsCircuitOpen(err):
		g.observe(operation, "circuit_open", start)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		g.observe(operation, "timeout", start)
		return err
	default:
		g.observe(operation, "error", start)
		return err
	}
}

func (g *Guard) observe(operation, outcome string, start time.Time) {
	if g.opts.Observer != nil {
		g.opts.Observer.ObserveOracleCall(operation, outcome, time.Since(start))
	}
}

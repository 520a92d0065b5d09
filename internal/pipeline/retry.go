package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/DeusData/odoo-graph/internal/errs"
)

// withRetry runs one store call with a per-call timeout, retrying
// retryable failures with doubling backoff.
func (p *Pipeline) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := p.Backoff
	attempts := 0
	for {
		attempts++
		err := p.call(ctx, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errs.IsRetryable(err) || attempts > p.Retries {
			var se *errs.StoreIOError
			if errors.As(err, &se) {
				se.Attempts = attempts
				return se
			}
			sioe := errs.NewStoreIOError(op, errs.IsRetryable(err), err)
			sioe.Attempts = attempts
			return sioe
		}
		slog.Warn("store.retry", "op", op, "attempt", attempts, "backoff", backoff, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (p *Pipeline) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.StoreTimeout <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, p.StoreTimeout)
	defer cancel()
	err := fn(cctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return errs.NewStoreIOError("timeout", true, err)
	}
	return err
}

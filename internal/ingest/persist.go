package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/telcoingest/invoice-pipeline/internal/application/port"
	"github.com/telcoingest/invoice-pipeline/internal/domain/ingesterr"
)

// persist calls the persister with a per-attempt deadline. Only errors wrapping
// port.ErrTransient are retried, immediately and at most PersistAttempts times in
// total. A duplicate race is returned as-is, wrapping port.ErrDuplicate, together
// with the winner's id.
func (o *Orchestrator) persist(ctx context.Context, req *port.PersistRequest) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= o.cfg.PersistAttempts; attempt++ {
		id, err := o.upsertOnce(ctx, req)
		if err == nil {
			if attempt > 1 {
				o.logger.Info("Persist succeeded after retry",
					zap.String("fingerprint", req.Fingerprint),
					zap.Int("attempt", attempt))
			}
			return id, nil
		}

		switch {
		case errors.Is(err, port.ErrDuplicate):
			return id, err
		case errors.Is(err, context.DeadlineExceeded):
			return "", ingesterr.Persistence("timeout", err)
		case errors.Is(err, context.Canceled):
			return "", ingesterr.Persistence("cancelled", err)
		case !errors.Is(err, port.ErrTransient):
			return "", ingesterr.Persistence("upsert failed", err)
		}

		lastErr = err
		o.logger.Warn("Transient persistence failure",
			zap.String("fingerprint", req.Fingerprint),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", o.cfg.PersistAttempts),
			zap.Error(err))
	}
	return "", ingesterr.Persistence(
		fmt.Sprintf("upsert failed after %d attempts", o.cfg.PersistAttempts), lastErr)
}

func (o *Orchestrator) upsertOnce(ctx context.Context, req *port.PersistRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.PersistTimeout)
	defer cancel()

	id, err := bounded(ctx, func(ctx context.Context) (string, error) {
		return o.persister.Upsert(ctx, req)
	})
	if err == nil && ctx.Err() != nil {
		// the port returned after the deadline without noticing it
		return "", ctx.Err()
	}
	return id, err
}

// callResult carries one port call's outcome back from its goroutine
type callResult[T any] struct {
	val    T
	err    error
	panicV any
}

// bounded returns when fn does or when ctx ends, whichever comes first. A port
// that ignores ctx keeps running in the background and its late result is
// dropped; a panic in fn is raised again on the caller's goroutine.
func bounded[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	done := make(chan callResult[T], 1)
	go func() {
		var r callResult[T]
		defer func() {
			if p := recover(); p != nil {
				r.panicV = p
			}
			done <- r
		}()
		r.val, r.err = fn(ctx)
	}()

	select {
	case r := <-done:
		return r.unwrap()
	case <-ctx.Done():
		select {
		case r := <-done:
			return r.unwrap()
		default:
		}
		var zero T
		return zero, ctx.Err()
	}
}

func (r callResult[T]) unwrap() (T, error) {
	if r.panicV != nil {
		panic(r.panicV)
	}
	return r.val, r.err
}

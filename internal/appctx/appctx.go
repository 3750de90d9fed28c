// Package appctx builds background contexts that outlive the request or
// event that triggered them, but still respect daemon shutdown.
package appctx

import (
	"context"
	"time"
)

// Detached returns a context.Background()-rooted context bounded by timeout,
// which is also canceled early if stopCh fires. Use it for work (orphan
// sweeps, retry-via-resume companions) that must not be cut short by the
// lifetime of an incoming HTTP request or actor mailbox loop.
func Detached(parent context.Context, stopCh <-chan struct{}, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// DetachedWithValues is Detached, but seeded with the values carried on
// parent (logger fields, correlation IDs) without inheriting its deadline
// or cancellation.
func DetachedWithValues(parent context.Context, stopCh <-chan struct{}, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/kbukum/streamkit/component"
	"github.com/kbukum/streamkit/loop"
)

// DefaultRunTimeout bounds RunLoop.
const DefaultRunTimeout = 5 * time.Second

// CleanupFunc is a function that performs cleanup, typically stopping a component.
type CleanupFunc func() error

// Setup starts a component and returns a cleanup function.
//
// Example:
//
//	cleanup, err := testutil.Setup(l)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer cleanup()
func Setup(c component.Component) (CleanupFunc, error) {
	return SetupWithContext(context.Background(), c)
}

// SetupWithContext starts a component with a custom context and returns a cleanup function.
func SetupWithContext(ctx context.Context, c component.Component) (CleanupFunc, error) {
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	return func() error { return c.Stop(ctx) }, nil
}

// Teardown stops a component.
// This is the inverse of Setup and is provided for symmetry.
func Teardown(c component.Component) error {
	return c.Stop(context.Background())
}

// THelper provides testing.TB integration for easier test setup.
type THelper struct {
	t       testing.TB
	ctx     context.Context
	timeout time.Duration
}

// T wraps a testing.TB to provide helper methods.
func T(t testing.TB) *THelper {
	return &THelper{t: t, ctx: context.Background(), timeout: DefaultRunTimeout}
}

// WithContext sets a custom context for the helper.
func (h *THelper) WithContext(ctx context.Context) *THelper {
	h.ctx = ctx
	return h
}

// WithTimeout changes how long RunLoop waits.
func (h *THelper) WithTimeout(d time.Duration) *THelper {
	h.timeout = d
	return h
}

// Setup starts a component and registers cleanup with the test.
// The component will be automatically stopped when the test ends.
func (h *THelper) Setup(c component.Component) {
	h.t.Helper()
	if err := c.Start(h.ctx); err != nil {
		h.t.Fatalf("failed to start component %s: %v", c.Name(), err)
	}
	h.t.Cleanup(func() {
		if err := c.Stop(h.ctx); err != nil {
			h.t.Errorf("failed to stop component %s: %v", c.Name(), err)
		}
	})
}

// RunLoop runs l on the test goroutine until it is idle with no refs
// held, failing the test if that takes longer than the timeout.
func (h *THelper) RunLoop(l *loop.Loop) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(h.ctx, h.timeout)
	defer cancel()
	if err := l.Run(ctx); err != nil {
		h.t.Fatalf("loop did not settle: %v", err)
	}
}

// RunLoop is T(t).RunLoop(l).
func RunLoop(t testing.TB, l *loop.Loop) {
	t.Helper()
	T(t).RunLoop(l)
}

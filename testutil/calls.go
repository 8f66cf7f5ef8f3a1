package testutil

import (
	"sync/atomic"
	"testing"
)

type bound int8

const (
	exactly bound = iota
	atLeast
)

type counter struct {
	t     testing.TB
	want  int64
	bound bound
	got   atomic.Int64
}

func track(t testing.TB, want int, b bound) *counter {
	t.Helper()
	c := &counter{t: t, want: int64(want), bound: b}
	t.Cleanup(c.verify)
	return c
}

func (c *counter) hit() { c.got.Add(1) }

func (c *counter) verify() {
	c.t.Helper()
	got := c.got.Load()
	switch c.bound {
	case exactly:
		if got != c.want {
			c.t.Errorf("expected %d call(s), got %d", c.want, got)
		}
	case atLeast:
		if got < c.want {
			c.t.Errorf("expected at least %d call(s), got %d", c.want, got)
		}
	}
}

// MustCall wraps fn so the test fails unless the wrapper runs exactly n
// times. fn may be nil.
func MustCall[T any](t testing.TB, n int, fn func(T)) func(T) {
	t.Helper()
	c := track(t, n, exactly)
	return func(v T) {
		c.hit()
		if fn != nil {
			fn(v)
		}
	}
}

// MustCallAtLeast is MustCall with n as a lower bound.
func MustCallAtLeast[T any](t testing.TB, n int, fn func(T)) func(T) {
	t.Helper()
	c := track(t, n, atLeast)
	return func(v T) {
		c.hit()
		if fn != nil {
			fn(v)
		}
	}
}

// MustNotCall returns a callback that fails the test when invoked.
func MustNotCall[T any](t testing.TB, msg string) func(T) {
	return func(v T) {
		t.Errorf("unexpected call: %s (argument %v)", msg, v)
	}
}

// MustCallFunc is MustCall for callbacks without arguments.
func MustCallFunc(t testing.TB, n int, fn func()) func() {
	t.Helper()
	c := track(t, n, exactly)
	return func() {
		c.hit()
		if fn != nil {
			fn()
		}
	}
}

// MustCallAtLeastFunc is MustCallAtLeast for callbacks without arguments.
func MustCallAtLeastFunc(t testing.TB, n int, fn func()) func() {
	t.Helper()
	c := track(t, n, atLeast)
	return func() {
		c.hit()
		if fn != nil {
			fn()
		}
	}
}

// MustNotCallFunc is MustNotCall for callbacks without arguments.
func MustNotCallFunc(t testing.TB, msg string) func() {
	return func() {
		t.Errorf("unexpected call: %s", msg)
	}
}

package loop

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/deque"

	"github.com/kbukum/streamkit/component"
	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
)

// Loop is a cooperative scheduler with a microtask-style tick queue and a
// macrotask-style immediate queue.
type Loop struct {
	mu         sync.Mutex
	ticks      *deque.Deque[func()]
	immediates *deque.Deque[func()]
	refs       int
	wake       chan struct{}

	log *logger.Logger

	// component lifecycle
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	lastErr error
}

// New creates an idle loop.
func New() *Loop {
	return &Loop{
		ticks:      deque.New[func()](),
		immediates: deque.New[func()](),
		wake:       make(chan struct{}, 1),
		log:        logger.Get("loop"),
	}
}

// NextTick queues fn to run before the next immediate.
func (l *Loop) NextTick(fn func()) {
	l.mu.Lock()
	l.ticks.PushBack(fn)
	l.mu.Unlock()
	l.signal()
}

// SetImmediate queues fn behind the immediates already scheduled.
func (l *Loop) SetImmediate(fn func()) {
	l.mu.Lock()
	l.immediates.PushBack(fn)
	l.mu.Unlock()
	l.signal()
}

// Post hands fn to the loop from any goroutine.
func (l *Loop) Post(fn func()) {
	l.SetImmediate(fn)
}

// Ref keeps Run alive while no work is queued, typically while a
// goroutine is about to Post a result.
func (l *Loop) Ref() {
	l.mu.Lock()
	l.refs++
	l.mu.Unlock()
}

// Unref releases a hold taken with Ref.
func (l *Loop) Unref() {
	l.mu.Lock()
	if l.refs > 0 {
		l.refs--
	}
	l.mu.Unlock()
	l.signal()
}

// Pending reports the number of queued callbacks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticks.Len() + l.immediates.Len()
}

// RunUntilIdle runs turns until both queues are empty. It ignores refs
// and never blocks, which makes it the driver of choice in tests.
func (l *Loop) RunUntilIdle() {
	for l.Pending() > 0 {
		l.turn()
	}
}

// Run runs turns until the loop is idle with no refs held, or ctx is done.
// A panic raised by a callback propagates to the caller.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.Pending() > 0 {
			l.turn()
			continue
		}

		l.mu.Lock()
		idle := l.refs == 0 && l.ticks.Len() == 0 && l.immediates.Len() == 0
		l.mu.Unlock()
		if idle {
			return nil
		}

		select {
		case <-l.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// turn drains ticks, then runs the immediates that were queued when the
// turn began, draining ticks after each.
func (l *Loop) turn() {
	l.drainTicks()

	l.mu.Lock()
	n := l.immediates.Len()
	l.mu.Unlock()

	for i := 0; i < n; i++ {
		l.mu.Lock()
		if l.immediates.Len() == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.immediates.PopFront()
		l.mu.Unlock()

		fn()
		l.drainTicks()
	}
}

func (l *Loop) drainTicks() {
	for {
		l.mu.Lock()
		if l.ticks.Len() == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.ticks.PopFront()
		l.mu.Unlock()

		fn()
	}
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// --- component.Component ---

var _ component.Component = (*Loop)(nil)

// Name implements component.Component.
func (l *Loop) Name() string { return "loop" }

// Start runs the loop on its own goroutine until Stop. The loop holds a
// ref while started, so it keeps waiting for posted work when idle.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return errors.StreamState("start", "loop already running")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true
	l.lastErr = nil
	l.refs++
	done := l.done
	l.mu.Unlock()

	go func() {
		defer close(done)
		err := l.runRecovered(runCtx)

		l.mu.Lock()
		l.running = false
		l.lastErr = err
		l.mu.Unlock()
		if err != nil && err != context.Canceled {
			l.log.Error("loop stopped", logger.ErrorFields("run", err))
		}
	}()

	l.log.Debug("loop started")
	return nil
}

func (l *Loop) runRecovered(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = errors.Internal(e)
				return
			}
			err = errors.Internal(fmt.Errorf("%v", r))
		}
	}()
	return l.Run(ctx)
}

// Stop releases the loop's own ref and waits for queued work to finish.
// If ctx expires first the loop is cancelled.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	done, cancel := l.done, l.cancel
	l.mu.Unlock()
	if done == nil {
		return nil
	}

	l.Unref()
	select {
	case <-done:
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
	cancel()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.done = nil
	if l.lastErr == context.Canceled {
		return nil
	}
	return l.lastErr
}

// Health implements component.Component.
func (l *Loop) Health(ctx context.Context) component.Health {
	l.mu.Lock()
	defer l.mu.Unlock()

	h := component.Health{Name: l.Name(), Status: component.StatusHealthy}
	switch {
	case l.lastErr != nil && l.lastErr != context.Canceled:
		h.Status = component.StatusUnhealthy
		h.Message = l.lastErr.Error()
	case !l.running:
		h.Status = component.StatusDegraded
		h.Message = "not running"
	}
	return h
}

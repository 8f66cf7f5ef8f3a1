package event

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitOrder(t *testing.T) {
	var e Emitter
	var got []string

	e.On(Data, func(any) { got = append(got, "first") })
	e.On(Data, func(any) { got = append(got, "second") })
	e.Prepend(Data, func(any) { got = append(got, "prepended") })

	assert.True(t, e.Emit(Data, nil))
	assert.Equal(t, []string{"prepended", "first", "second"}, got)
}

func TestEmitWithoutListeners(t *testing.T) {
	var e Emitter
	assert.False(t, e.Emit(End, nil))
}

func TestOnce(t *testing.T) {
	var e Emitter
	calls := 0
	e.Once(Finish, func(any) { calls++ })

	e.Emit(Finish, nil)
	e.Emit(Finish, nil)
	assert.Equal(t, 1, calls)
	assert.Zero(t, e.ListenerCount(Finish))
}

func TestOffDuringEmitSkipsRemovedListener(t *testing.T) {
	var e Emitter
	var second ListenerID
	calls := 0

	e.On(Drain, func(any) { e.Off(Drain, second) })
	second = e.On(Drain, func(any) { calls++ })

	e.Emit(Drain, nil)
	assert.Zero(t, calls)
	assert.Equal(t, 1, e.ListenerCount(Drain))
}

func TestAddDuringEmitWaitsForNextEmit(t *testing.T) {
	var e Emitter
	calls := 0
	added := false

	e.On(Data, func(any) {
		if !added {
			added = true
			e.On(Data, func(any) { calls++ })
		}
	})

	e.Emit(Data, nil)
	assert.Zero(t, calls)
	e.Emit(Data, nil)
	assert.Equal(t, 1, calls)
}

func TestRemoveAll(t *testing.T) {
	var e Emitter
	removed := 0
	e.OnListenerRemoved = func(Name) { removed++ }
	e.On(Close, func(any) {})
	e.On(Close, func(any) {})

	e.RemoveAll(Close)
	assert.Zero(t, e.ListenerCount(Close))
	assert.Equal(t, 1, removed)
	assert.False(t, e.Off(Close, 1))
}

func TestListenerHooks(t *testing.T) {
	var e Emitter
	var added []Name
	e.OnListenerAdded = func(n Name) { added = append(added, n) }

	id := e.On(Readable, func(any) {})
	e.Once(Data, func(any) {})
	assert.Equal(t, []Name{Readable, Data}, added)
	assert.True(t, e.Off(Readable, id))
}

func TestUnhandledErrorPanics(t *testing.T) {
	var e Emitter
	boom := fmt.Errorf("boom")

	assert.PanicsWithValue(t, boom, func() { e.Emit(Error, boom) })
	assert.PanicsWithError(t, "unhandled error event: oops", func() { e.Emit(Error, "oops") })
}

func TestHandledErrorDoesNotPanic(t *testing.T) {
	var e Emitter
	var got error
	e.On(Error, func(p any) { got = p.(error) })

	require.NotPanics(t, func() { e.Emit(Error, fmt.Errorf("handled")) })
	assert.EqualError(t, got, "handled")
}

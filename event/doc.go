// Package event implements the named-event emitter embedded in every
// stream.
//
// Listeners run synchronously in registration order. A listener removed
// while an emit is in progress is skipped for the rest of that emit, and
// a listener added during an emit first runs on the next one. Emitting
// Error with no listener registered panics with the payload.
package event

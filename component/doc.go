// Package component defines the lifecycle contract shared by long-running
// streamkit parts such as the event loop.
//
// A Registry starts components in registration order and stops them in
// reverse, so a loop registered first is still running while the
// components that post onto it shut down.
package component

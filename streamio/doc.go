// Package streamio bridges io.Reader and io.Writer onto streams.
//
// Blocking I/O runs on helper goroutines. Each one holds a loop ref while
// it is in flight and hands its result back with Post, so a loop driven by
// Run stays alive until the I/O settles. Spawn wires a subprocess's
// standard streams the same way.
package streamio

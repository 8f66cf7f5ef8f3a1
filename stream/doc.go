// Package stream implements readable and writable streams with
// backpressure on top of a cooperative loop.
//
// A Readable buffers chunks its Source pushes and delivers them either on
// demand (Read) or as data events while flowing. A Writable serializes
// chunks into its Sink one at a time and reports saturation through the
// return value of Write and the drain event. Pipe couples the two so a
// slow Writable pauses the Readable feeding it.
//
//	l := loop.New()
//	src, _ := stream.NewReadable(l, stream.SourceFunc(func(r *stream.Readable, size int) {
//	    r.Push(next())
//	}))
//	dst, _ := stream.NewWritable(l, stream.SinkFunc(func(chunk any, done func(error)) {
//	    done(store(chunk))
//	}))
//	src.Pipe(dst)
//	l.RunUntilIdle()
//
// Streams are owned by the goroutine running their loop. Sources and sinks
// doing blocking work should do it on another goroutine and hand the
// result back with loop.Post; see package streamio.
//
// In byte mode chunks are []byte (strings are accepted and converted) and
// sizes are byte counts. In object mode every chunk counts as one unit and
// nil is reserved as the end-of-stream marker.
package stream

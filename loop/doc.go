// Package loop provides the cooperative, single-threaded scheduler that
// drives every stream.
//
// Two queues exist. NextTick callbacks run before anything else and are
// drained completely after each callback the loop runs. SetImmediate
// callbacks run one per step in FIFO order; callbacks scheduled while a
// turn is in progress wait for the next turn. Post is the only entry
// point safe to call from other goroutines: it queues an immediate and
// wakes a loop blocked in Run.
//
// Stream state is owned by the goroutine running the loop. Code on other
// goroutines must hand results back through Post.
package loop

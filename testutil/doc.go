// Package testutil provides test helpers for code built on streamkit.
//
// Call trackers assert how many times a callback ran. The check happens
// in the test's cleanup, so a callback that was never invoked fails the
// test just like one invoked too often:
//
//	func TestEnd(t *testing.T) {
//	    l := loop.New()
//	    r, _ := stream.NewReadable(l, nil)
//	    r.OnEnd(testutil.MustCallFunc(t, 1, nil))
//	    r.Push(nil)
//	    r.Resume()
//	    l.RunUntilIdle()
//	}
//
// Components such as the event loop can be started with T(t).Setup and
// are stopped automatically when the test ends.
package testutil

package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/kbukum/streamkit/loop"
)

// recorder captures failures instead of failing the enclosing test.
type recorder struct {
	testing.TB
	errors   []string
	cleanups []func()
}

func (r *recorder) Helper() {}

func (r *recorder) Cleanup(fn func()) { r.cleanups = append(r.cleanups, fn) }

func (r *recorder) Errorf(format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func (r *recorder) finish() {
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		r.cleanups[i]()
	}
}

func TestMustCall(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		calls   int
		atLeast bool
		fail    bool
	}{
		{"exact match", 2, 2, false, false},
		{"too few", 2, 1, false, true},
		{"too many", 1, 3, false, true},
		{"never called", 1, 0, false, true},
		{"at least met", 2, 5, true, false},
		{"at least missed", 3, 2, true, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			var seen []int
			record := func(v int) { seen = append(seen, v) }
			var fn func(int)
			if tc.atLeast {
				fn = MustCallAtLeast(rec, tc.want, record)
			} else {
				fn = MustCall(rec, tc.want, record)
			}
			for i := 0; i < tc.calls; i++ {
				fn(i)
			}
			rec.finish()

			if (len(rec.errors) > 0) != tc.fail {
				t.Errorf("failures = %v, want fail=%v", rec.errors, tc.fail)
			}
			if len(seen) != tc.calls {
				t.Errorf("wrapped func ran %d times, want %d", len(seen), tc.calls)
			}
		})
	}
}

func TestMustCallFunc(t *testing.T) {
	rec := &recorder{}
	ran := 0
	fn := MustCallFunc(rec, 1, func() { ran++ })
	fn()
	rec.finish()

	if len(rec.errors) != 0 {
		t.Errorf("unexpected failures: %v", rec.errors)
	}
	if ran != 1 {
		t.Errorf("expected wrapped func to run once, ran %d", ran)
	}
}

func TestMustCallAtLeastFunc_NilFn(t *testing.T) {
	rec := &recorder{}
	fn := MustCallAtLeastFunc(rec, 2, nil)
	fn()
	fn()
	fn()
	rec.finish()

	if len(rec.errors) != 0 {
		t.Errorf("unexpected failures: %v", rec.errors)
	}
}

func TestMustNotCall(t *testing.T) {
	rec := &recorder{}
	MustNotCall[string](rec, "late data")("chunk")
	MustNotCallFunc(rec, "finish")()

	if len(rec.errors) != 2 {
		t.Fatalf("expected 2 failures, got %v", rec.errors)
	}
}

func TestSetupStartsAndStopsLoop(t *testing.T) {
	l := loop.New()
	cleanup, err := Setup(l)
	if err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}

	done := make(chan struct{})
	l.Post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("posted callback did not run on the started loop")
	}

	if err := cleanup(); err != nil {
		t.Fatalf("cleanup() failed: %v", err)
	}
}

func TestTHelperSetup(t *testing.T) {
	l := loop.New()
	T(t).Setup(l)

	done := make(chan struct{})
	l.Post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("posted callback did not run")
	}
}

func TestRunLoop(t *testing.T) {
	l := loop.New()
	ran := false
	l.Ref()
	go func() {
		l.Post(func() {
			ran = true
			l.Unref()
		})
	}()

	RunLoop(t, l)

	if !ran {
		t.Error("expected posted callback to run before RunLoop returned")
	}
}

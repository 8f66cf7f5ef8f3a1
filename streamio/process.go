package streamio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/loop"
	"github.com/kbukum/streamkit/stream"
)

// Command configures a subprocess to spawn.
type Command struct {
	// Binary is the executable path or name (resolved via PATH).
	Binary string
	// Args are the command-line arguments.
	Args []string
	// Dir is the working directory. If empty, uses the current directory.
	Dir string
	// Env is additional environment variables (key=value). Merged with os.Environ.
	Env []string
	// GracePeriod is how long to wait after SIGTERM before SIGKILL.
	// Defaults to 5 seconds if zero.
	GracePeriod time.Duration
}

// Result is the exit status of a subprocess.
type Result struct {
	// ExitCode is the process exit code. -1 if the process was killed.
	ExitCode int
	// Duration is how long the process ran.
	Duration time.Duration
}

// Process is a running subprocess with its standard streams attached.
// Ending Stdin closes the child's standard input.
type Process struct {
	Stdin  *stream.Writable
	Stdout *stream.Readable
	Stderr *stream.Readable

	l       *loop.Loop
	exited  bool
	result  Result
	err     error
	waiters []func(Result, error)
}

// Spawn starts c. Cancelling ctx sends SIGTERM to the process group, then
// SIGKILL after the grace period. Stdout and Stderr destroy themselves
// once drained. Must be called from the loop.
func Spawn(ctx context.Context, l *loop.Loop, c Command, opts ...stream.Option) (*Process, error) {
	if c.Binary == "" {
		return nil, errors.InvalidInput("binary", "binary is required")
	}

	gracePeriod := c.GracePeriod
	if gracePeriod == 0 {
		gracePeriod = 5 * time.Second
	}

	cmd := exec.CommandContext(ctx, c.Binary, c.Args...) //nolint:gosec // dynamic args are the purpose of this package
	cmd.Dir = c.Dir
	cmd.Env = mergeEnv(c.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = gracePeriod

	// The parent keeps one end of each pipe; the child's ends are closed
	// after Start so EOF arrives when the child exits.
	pipes, err := openPipes()
	if err != nil {
		return nil, err
	}
	cmd.Stdin = pipes.inR
	cmd.Stdout = pipes.outW
	cmd.Stderr = pipes.errW

	start := time.Now()
	if err := cmd.Start(); err != nil {
		pipes.closeAll()
		return nil, fmt.Errorf("process: start %s: %w", c.Binary, err)
	}
	pipes.closeChildEnds()

	p := &Process{l: l}
	outOpts := append(append([]stream.Option{}, opts...), stream.WithAutoDestroy())
	if p.Stdin, err = ToWriter(l, pipes.inW, opts...); err == nil {
		if p.Stdout, err = FromReader(l, pipes.outR, outOpts...); err == nil {
			p.Stderr, err = FromReader(l, pipes.errR, outOpts...)
		}
	}
	if err != nil {
		_ = cmd.Process.Kill()
		pipes.closeParentEnds()
		return nil, err
	}

	l.Ref()
	go func() {
		werr := cmd.Wait()
		res := Result{ExitCode: cmd.ProcessState.ExitCode(), Duration: time.Since(start)}
		if werr != nil {
			// Context cancellation is the expected way to kill a process
			if ctx.Err() != nil {
				werr = fmt.Errorf("process: killed by context: %w", ctx.Err())
			} else {
				werr = fmt.Errorf("process: exit code %d: %w", res.ExitCode, werr)
			}
		}
		l.Post(func() {
			l.Unref()
			p.exit(res, werr)
		})
	}()
	return p, nil
}

// OnExit calls fn once the process has exited. A non-zero exit is
// reported as an error alongside the result.
func (p *Process) OnExit(fn func(Result, error)) {
	if p.exited {
		res, err := p.result, p.err
		p.l.NextTick(func() { fn(res, err) })
		return
	}
	p.waiters = append(p.waiters, fn)
}

func (p *Process) exit(res Result, err error) {
	p.exited = true
	p.result, p.err = res, err
	waiters := p.waiters
	p.waiters = nil
	for _, fn := range waiters {
		fn(res, err)
	}
}

type procPipes struct {
	inR, inW   *os.File
	outR, outW *os.File
	errR, errW *os.File
}

func openPipes() (*procPipes, error) {
	p := &procPipes{}
	var err error
	if p.inR, p.inW, err = os.Pipe(); err != nil {
		return nil, fmt.Errorf("process: stdin pipe: %w", err)
	}
	if p.outR, p.outW, err = os.Pipe(); err != nil {
		p.closeAll()
		return nil, fmt.Errorf("process: stdout pipe: %w", err)
	}
	if p.errR, p.errW, err = os.Pipe(); err != nil {
		p.closeAll()
		return nil, fmt.Errorf("process: stderr pipe: %w", err)
	}
	return p, nil
}

func (p *procPipes) closeChildEnds() {
	closeFiles(p.inR, p.outW, p.errW)
}

func (p *procPipes) closeParentEnds() {
	closeFiles(p.inW, p.outR, p.errR)
}

func (p *procPipes) closeAll() {
	p.closeChildEnds()
	p.closeParentEnds()
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}

// mergeEnv merges additional env vars with the current environment.
func mergeEnv(extra []string) []string {
	if len(extra) == 0 {
		return nil // inherit parent env
	}
	env := os.Environ()
	return append(env, extra...)
}

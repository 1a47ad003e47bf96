package cmdwrapper

// Package cmdwrapper is a simple wrapper around exec.Command. It
// exists to provide a unified place to capture child output, mirror it
// into the logs, and enforce execution timeouts.

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/kit/log/level"
	"github.com/kolide/msibuild/pkg/contexts/ctxlog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWaitDelay = 5 * time.Second
	maxLineLength    = 1024 * 1024
)

type Runner struct {
	timeout   time.Duration // Set an execution timeout. (default: none)
	waitDelay time.Duration // How long output is read after the child exits. (default: 5s)
	dir       string
	env       []string
	output    io.Writer // Receives a copy of every output line

	execCC func(context.Context, string, ...string) *exec.Cmd // Allows test overrides
}

type Option func(*Runner)

// WithTimeout sets the execution timeout. Zero means wait forever.
func WithTimeout(t time.Duration) Option {
	return func(r *Runner) {
		r.timeout = t
	}
}

// WithWaitDelay bounds how long output is still read once the child
// has exited. Grandchildren, such as wine under docker, can hold the
// output open after their parent is gone.
func WithWaitDelay(d time.Duration) Option {
	return func(r *Runner) {
		r.waitDelay = d
	}
}

// WithDir sets the working directory of the child.
func WithDir(dir string) Option {
	return func(r *Runner) {
		r.dir = dir
	}
}

// WithEnv appends to the child's environment.
func WithEnv(env ...string) Option {
	return func(r *Runner) {
		r.env = append(r.env, env...)
	}
}

// WithOutput copies the child's combined output, line by line, to w.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		r.output = w
	}
}

func WithExecCC(fn func(context.Context, string, ...string) *exec.Cmd) Option {
	return func(r *Runner) {
		r.execCC = fn
	}
}

// New returns a configured Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		waitDelay: defaultWaitDelay,
		execCC:    exec.CommandContext,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run executes arg0 and blocks until it exits. stdout and stderr are
// drained concurrently into a single buffer, which is returned
// trimmed. A nonzero exit is returned as an error carrying the command
// line and the captured output.
func (r *Runner) Run(ctx context.Context, arg0 string, args ...string) (string, error) {
	logger := ctxlog.FromContext(ctx)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := r.execCC(ctx, arg0, args...)
	cmd.Dir = r.dir
	if len(r.env) > 0 {
		cmd.Env = append(cmd.Environ(), r.env...)
	}

	level.Debug(logger).Log(
		"msg", "execing",
		"cmd", strings.Join(cmd.Args, " "),
	)

	// The pipes are ours, not exec's, so Wait can run while they are
	// still being read.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return "", errors.Wrap(err, "create stdout pipe")
	}
	defer stdoutR.Close()
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutW.Close()
		return "", errors.Wrap(err, "create stderr pipe")
	}
	defer stderrR.Close()

	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	startErr := cmd.Start()
	stdoutW.Close()
	stderrW.Close()
	if startErr != nil {
		return "", errors.Wrapf(startErr, "start command %s", arg0)
	}

	combined := &lockedBuffer{}
	var g errgroup.Group
	for _, pipe := range []*os.File{stdoutR, stderrR} {
		pipe := pipe
		g.Go(func() error {
			return r.drain(pipe, combined)
		})
	}

	waitErr := cmd.Wait()

	// Anything still holding the pipes past the delay is a grandchild.
	// Closing our ends unblocks the readers.
	closer := time.AfterFunc(r.waitDelay, func() {
		stdoutR.Close()
		stderrR.Close()
	})
	drainErr := g.Wait()
	closer.Stop()

	output := strings.TrimSpace(combined.String())

	level.Debug(logger).Log(
		"msg", "command finished",
		"cmd", arg0,
		"output", output,
	)

	if waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return output, errors.Wrapf(ctxErr, "run command %s %v\noutput=%s", arg0, args, output)
		}
		return output, errors.Wrapf(waitErr, "run command %s %v\noutput=%s", arg0, args, output)
	}

	if drainErr != nil {
		return output, errors.Wrapf(drainErr, "reading output of %s", arg0)
	}

	return output, nil
}

// drain reads pipe line by line into combined. After a read error the
// rest of the pipe is discarded, so the child never blocks writing.
func (r *Runner) drain(pipe io.Reader, combined *lockedBuffer) error {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)
	for scanner.Scan() {
		combined.writeLine(scanner.Text(), r.output)
	}

	err := scanner.Err()
	if err == nil || errors.Is(err, os.ErrClosed) {
		return nil
	}

	io.Copy(io.Discard, pipe)
	return err
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) writeLine(line string, mirror io.Writer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf.WriteString(line)
	b.buf.WriteByte('\n')

	if mirror != nil {
		io.WriteString(mirror, line+"\n")
	}
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

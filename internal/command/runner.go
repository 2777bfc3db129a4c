// Package command runs external commands as the work of action targets.
package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aristath/bullseye/internal/ctxlog"
	"github.com/aristath/bullseye/internal/events"
	"github.com/aristath/bullseye/internal/scheduler"
)

// Spec describes one command target's work.
type Spec struct {
	Name    string            // Target name, used to prefix output
	Args    []string          // argv; Args[0] is the program
	Dir     string            // Working directory, empty for the current one
	Env     map[string]string // Added to the process environment
	Retries int               // Extra attempts after a failure
	Locks   []string          // Resources held while the command runs
}

// CommandLine renders the spec's argv for listings.
func (s Spec) CommandLine() string {
	quoted := make([]string, len(s.Args))
	for i, arg := range s.Args {
		if arg == "" || strings.ContainsAny(arg, " \t\"'") {
			quoted[i] = fmt.Sprintf("%q", arg)
		} else {
			quoted[i] = arg
		}
	}
	return strings.Join(quoted, " ")
}

// ExitError reports a command that ran and exited non-zero. The command's
// own output already explains the failure.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.Code)
}

// IsExitError reports whether err is or wraps an *ExitError.
func IsExitError(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr)
}

// Publisher receives output events.
type Publisher interface {
	Publish(topic string, event events.Event)
}

// Option configures a Runner.
type Option func(*Runner)

// WithOutput sets where prefixed stdout and stderr lines go.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithPublisher publishes every output line as a TargetOutputEvent.
func WithPublisher(p Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithBackOff overrides the retry policy factory.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(r *Runner) { r.newBackOff = newBackOff }
}

// WithPrefix sets how each output line is prefixed for a target.
func WithPrefix(prefix func(name string) string) Option {
	return func(r *Runner) { r.prefix = prefix }
}

// Runner executes Specs. One Runner is shared by every command target in a run.
type Runner struct {
	pm         *ProcessManager
	locks      *Locks
	outMu      sync.Mutex
	stdout     io.Writer
	stderr     io.Writer
	publisher  Publisher
	newBackOff func() backoff.BackOff
	prefix     func(name string) string
}

// NewRunner creates a Runner tracking its processes in pm.
func NewRunner(pm *ProcessManager, opts ...Option) *Runner {
	r := &Runner{
		pm:     pm,
		locks:  NewLocks(),
		stdout: os.Stdout,
		stderr: os.Stderr,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
		prefix: func(name string) string { return name + ": " },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Action adapts spec into a target action.
func (r *Runner) Action(spec Spec) scheduler.Action {
	return func(ctx context.Context) error {
		return r.Run(ctx, spec)
	}
}

// Run executes spec, retrying failures up to spec.Retries times with
// exponential backoff. Resources in spec.Locks are held across all attempts.
func (r *Runner) Run(ctx context.Context, spec Spec) error {
	if len(spec.Args) == 0 {
		return fmt.Errorf("target %q has an empty command", spec.Name)
	}

	logger := ctxlog.FromContext(ctx).With("target", spec.Name)

	if len(spec.Locks) > 0 {
		logger.Debug("acquiring locks", "locks", spec.Locks)
		release, err := r.locks.Acquire(ctx, spec.Locks)
		if err != nil {
			return fmt.Errorf("waiting for locks: %w", err)
		}
		defer release()
	}

	attempt := func() error {
		err := r.runOnce(ctx, spec)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	if spec.Retries <= 0 {
		return attempt()
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), uint64(spec.Retries)), ctx)
	notify := func(err error, wait time.Duration) {
		logger.Warn("command failed, retrying", "error", err, "wait", wait)
	}
	return backoff.RetryNotify(attempt, policy, notify)
}

// runOnce starts the command and drains both pipes concurrently before
// waiting, so output larger than the pipe buffer cannot deadlock it.
func (r *Runner) runOnce(ctx context.Context, spec Spec) error {
	cmd := newCommand(ctx, spec.Args)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = os.Environ()
		for _, k := range slices.Sorted(maps.Keys(spec.Env)) {
			cmd.Env = append(cmd.Env, k+"="+spec.Env[k])
		}
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}
	r.pm.Track(cmd)
	defer r.pm.Untrack(cmd)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.forward(ctx, spec.Name, stdoutPipe, r.stdout, false)
	}()
	go func() {
		defer wg.Done()
		r.forward(ctx, spec.Name, stderrPipe, r.stderr, true)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return &ExitError{Code: exitErr.ExitCode()}
		}
		if ctx.Err() != nil {
			return fmt.Errorf("command interrupted: %w", ctx.Err())
		}
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

// maxLineSize bounds a forwarded line; longer lines are forwarded in chunks.
const maxLineSize = 1024 * 1024

func (r *Runner) forward(ctx context.Context, name string, src io.Reader, dst io.Writer, stderr bool) {
	logger := ctxlog.FromContext(ctx).With("target", name)
	reader := bufio.NewReaderSize(src, 64*1024)

	var (
		buf   []byte
		split bool
	)
	for {
		fragment, isPrefix, err := reader.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("output stream ended", "error", err)
			}
			break
		}
		buf = append(buf, fragment...)
		if isPrefix && len(buf) < maxLineSize {
			continue
		}
		if isPrefix && !split {
			logger.Warn("output line too long, forwarding in chunks", "limit", maxLineSize)
		}
		split = isPrefix
		r.emit(name, string(buf), dst, stderr)
		buf = buf[:0]
	}
	if len(buf) > 0 {
		r.emit(name, string(buf), dst, stderr)
	}
	// Keep the pipe drained if reading failed, so the process is not blocked.
	_, _ = io.Copy(io.Discard, src)
}

func (r *Runner) emit(name, line string, dst io.Writer, stderr bool) {
	r.outMu.Lock()
	fmt.Fprintln(dst, r.prefix(name)+line)
	r.outMu.Unlock()

	if r.publisher != nil {
		r.publisher.Publish(events.TopicOutput, events.TargetOutputEvent{
			Name:      name,
			Line:      line,
			Stderr:    stderr,
			Timestamp: time.Now(),
		})
	}
}

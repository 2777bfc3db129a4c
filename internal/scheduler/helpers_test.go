package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingReporter captures every notification for assertions.
type recordingReporter struct {
	mu        sync.Mutex
	running   [][]string
	verbose   [][]string
	starting  []string
	succeeded map[string]*time.Duration
	failed    map[string]time.Duration
	errored   []string
	summaries [][]Result
	finished  []error
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{
		succeeded: make(map[string]*time.Duration),
		failed:    make(map[string]time.Duration),
	}
}

func (r *recordingReporter) Running(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = append(r.running, names)
}

func (r *recordingReporter) Verbose(stack []string, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verbose = append(r.verbose, append([]string(nil), stack...))
}

func (r *recordingReporter) Starting(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starting = append(r.starting, name)
}

func (r *recordingReporter) Succeeded(name string, d *time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.succeeded[name] = d
}

func (r *recordingReporter) Failed(name string, err error, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[name] = d
}

func (r *recordingReporter) Error(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errored = append(r.errored, name)
}

func (r *recordingReporter) Summary(results []Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, results)
}

func (r *recordingReporter) Finished(names []string, elapsed time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, err)
}

// span records when an action started and finished.
type span struct {
	start, end time.Time
}

// tracker counts action invocations and records their spans.
type tracker struct {
	mu    sync.Mutex
	calls map[string]*atomic.Int32
	spans map[string][]span
}

func newTracker() *tracker {
	return &tracker{
		calls: make(map[string]*atomic.Int32),
		spans: make(map[string][]span),
	}
}

// action returns an action for name that sleeps for delay and returns err.
func (tr *tracker) action(name string, delay time.Duration, err error) Action {
	tr.mu.Lock()
	if tr.calls[name] == nil {
		tr.calls[name] = &atomic.Int32{}
	}
	counter := tr.calls[name]
	tr.mu.Unlock()

	return func(ctx context.Context) error {
		counter.Add(1)
		start := time.Now()
		if delay > 0 {
			time.Sleep(delay)
		}
		tr.mu.Lock()
		tr.spans[name] = append(tr.spans[name], span{start: start, end: time.Now()})
		tr.mu.Unlock()
		return err
	}
}

func (tr *tracker) count(name string) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.calls[name] == nil {
		return 0
	}
	return int(tr.calls[name].Load())
}

func (tr *tracker) span(t *testing.T, name string) span {
	t.Helper()
	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.Len(t, tr.spans[name], 1, "target %q should have run exactly once", name)
	return tr.spans[name][0]
}

// addAction registers an action target, failing the test on error.
func addAction(t *testing.T, g *Graph, name string, deps []string, action Action) {
	t.Helper()
	require.NoError(t, g.AddTarget(name, deps, action))
}

package scheduler

import (
	"context"
	"slices"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// RunOptions configures a single invocation of Graph.Run.
type RunOptions struct {
	SkipDependencies bool // Run dependency work only if explicitly requested
	DryRun           bool // Report lifecycle events without running actions
	Parallel         bool // Walk siblings and roots concurrently
	Reporter         Reporter
	// MessageOnly decides whether a failure is reported without full detail.
	// It only affects what the Reporter is shown.
	MessageOnly func(error) bool
}

// runState is the ephemeral state of one invocation.
type runState struct {
	opts     RunOptions
	explicit map[string]bool
	done     *completions
}

// Run validates the graph and runs the named targets and their dependencies.
//
// Every target's action runs at most once per call, after all of its
// dependencies have finished. A configuration error is returned before any
// work starts; otherwise the first *TargetFailedError encountered is returned.
// In parallel mode branches already started when a failure occurs run to
// completion; in sequential mode nothing further is started.
//
// A summary is always reported, even on failure, and the returned Report is
// non-nil in every case.
func (g *Graph) Run(ctx context.Context, names []string, opts RunOptions) (*Report, error) {
	if opts.Reporter == nil {
		opts.Reporter = NopReporter{}
	}
	if opts.MessageOnly == nil {
		opts.MessageOnly = func(error) bool { return false }
	}

	// Actions may read or extend g while the run walks its own copy.
	g = g.snapshot()

	r := opts.Reporter
	r.Running(names)
	start := time.Now()

	state := &runState{
		opts:     opts,
		explicit: make(map[string]bool, len(names)),
		done:     &completions{},
	}
	for _, name := range names {
		state.explicit[name] = true
	}

	err := g.validate(names, opts.SkipDependencies)
	if err == nil {
		err = g.runRoots(ctx, names, state)
	}

	report := &Report{
		Names:   append([]string(nil), names...),
		Results: g.summarize(state.done.finished()),
		Elapsed: time.Since(start),
	}
	r.Summary(report.Results)
	r.Finished(names, report.Elapsed, err)
	return report, err
}

func (g *Graph) runRoots(ctx context.Context, names []string, state *runState) error {
	if !state.opts.Parallel {
		for _, name := range names {
			if err := g.walk(ctx, name, state, nil); err != nil {
				return err
			}
		}
		return nil
	}

	var eg errgroup.Group
	for _, name := range names {
		eg.Go(func() error {
			return g.walk(ctx, name, state, nil)
		})
	}
	return eg.Wait()
}

// walk runs name's dependencies, then name itself. stack is the call chain
// of this branch only and is never shared with sibling branches.
func (g *Graph) walk(ctx context.Context, name string, state *runState, stack []string) error {
	r := state.opts.Reporter
	stack = append(slices.Clip(stack), name)

	t, ok := g.targets[name]
	if !ok {
		r.Verbose(stack, "Doesn't exist. Ignoring.")
		return nil
	}

	r.Verbose(stack, "Walking dependencies...")

	if state.opts.Parallel {
		var eg errgroup.Group
		for _, dep := range t.deps {
			eg.Go(func() error {
				return g.walk(ctx, dep, state, stack)
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	} else {
		for _, dep := range t.deps {
			if err := g.walk(ctx, dep, state, stack); err != nil {
				return err
			}
		}
	}

	if state.opts.SkipDependencies && !state.explicit[name] {
		return nil
	}

	r.Verbose(stack, "Awaiting...")
	_, err := state.done.do(name, func() (*time.Duration, error) {
		return t.run(ctx, state.opts.DryRun, r, state.opts.MessageOnly)
	})
	return err
}

// summarize orders results so dependencies precede their dependents.
func (g *Graph) summarize(results map[string]Result) []Result {
	out := make([]Result, 0, len(results))
	for _, res := range results {
		out = append(out, res)
	}

	rank := make(map[string]int, len(g.order))
	if order, err := g.topoOrder(); err == nil {
		for i, name := range order {
			rank[name] = i
		}
	}

	sort.Slice(out, func(i, j int) bool {
		ri, iok := rank[out[i].Name]
		rj, jok := rank[out[j].Name]
		if iok && jok && ri != rj {
			return ri < rj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

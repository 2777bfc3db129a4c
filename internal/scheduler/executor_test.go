package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var modes = []struct {
	name     string
	parallel bool
}{
	{"sequential", false},
	{"parallel", true},
}

func TestRun_UndefinedDependency(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			tr := newTracker()
			g := NewGraph()
			addAction(t, g, "Y", []string{"X"}, tr.action("Y", 0, nil))

			_, err := g.Run(context.Background(), []string{"Y"}, RunOptions{Parallel: mode.parallel})
			require.Error(t, err)
			assert.True(t, IsConfigError(err))
			assert.EqualError(t, err, "missing dependency: X, required by Y")
			assert.Zero(t, tr.count("Y"), "no work runs when validation fails")

			_, err = g.Run(context.Background(), []string{"Y"}, RunOptions{Parallel: mode.parallel, SkipDependencies: true})
			require.NoError(t, err)
			assert.Equal(t, 1, tr.count("Y"))
		})
	}
}

func TestRun_CycleDetected(t *testing.T) {
	for _, mode := range modes {
		for _, skip := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/skip=%v", mode.name, skip), func(t *testing.T) {
				tr := newTracker()
				g := NewGraph()
				addAction(t, g, "A", []string{"B"}, tr.action("A", 0, nil))
				addAction(t, g, "B", []string{"C"}, tr.action("B", 0, nil))
				addAction(t, g, "C", []string{"A"}, tr.action("C", 0, nil))

				_, err := g.Run(context.Background(), []string{"A"}, RunOptions{Parallel: mode.parallel, SkipDependencies: skip})
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrCircularDependency)
				assert.EqualError(t, err, "circular dependency: A -> B -> C -> A")
				assert.Zero(t, tr.count("A")+tr.count("B")+tr.count("C"))
			})
		}
	}
}

func TestRun_UnknownRequestedName(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddTarget("build", nil, nil))
	r := newRecordingReporter()

	report, err := g.Run(context.Background(), []string{"nonexistent"}, RunOptions{Reporter: r})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTarget)
	assert.Contains(t, err.Error(), "nonexistent")

	require.NotNil(t, report)
	assert.Empty(t, report.Results)
	assert.Len(t, r.summaries, 1, "summary is reported even when validation fails")
	require.Len(t, r.finished, 1)
	assert.Error(t, r.finished[0])
}

func TestRun_AtMostOnceDiamond(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			tr := newTracker()
			g := NewGraph()
			addAction(t, g, "D", []string{"B", "C"}, tr.action("D", 0, nil))
			addAction(t, g, "B", []string{"A"}, tr.action("B", 5*time.Millisecond, nil))
			addAction(t, g, "C", []string{"A"}, tr.action("C", 5*time.Millisecond, nil))
			addAction(t, g, "A", nil, tr.action("A", 20*time.Millisecond, nil))

			report, err := g.Run(context.Background(), []string{"D"}, RunOptions{Parallel: mode.parallel})
			require.NoError(t, err)

			for _, name := range []string{"A", "B", "C", "D"} {
				assert.Equal(t, 1, tr.count(name), "target %s", name)
			}
			assert.Len(t, report.Results, 4)
		})
	}
}

func TestRun_AtMostOnceAcrossRoots(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			tr := newTracker()
			g := NewGraph()
			addAction(t, g, "shared", nil, tr.action("shared", 10*time.Millisecond, nil))
			for i := 0; i < 10; i++ {
				name := fmt.Sprintf("root-%d", i)
				addAction(t, g, name, []string{"shared"}, tr.action(name, 0, nil))
			}

			var roots []string
			for i := 0; i < 10; i++ {
				roots = append(roots, fmt.Sprintf("root-%d", i))
			}
			roots = append(roots, "shared")

			_, err := g.Run(context.Background(), roots, RunOptions{Parallel: mode.parallel})
			require.NoError(t, err)
			assert.Equal(t, 1, tr.count("shared"))
		})
	}
}

func TestRun_DependencyOrdering(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			tr := newTracker()
			g := NewGraph()
			deps := map[string][]string{
				"app":     {"lib", "assets"},
				"lib":     {"codegen", "vendor"},
				"assets":  {"vendor"},
				"codegen": nil,
				"vendor":  nil,
				"release": {"app", "docs"},
				"docs":    {"codegen"},
			}
			for name, d := range deps {
				addAction(t, g, name, d, tr.action(name, 5*time.Millisecond, nil))
			}

			_, err := g.Run(context.Background(), []string{"release"}, RunOptions{Parallel: mode.parallel})
			require.NoError(t, err)

			var transitive func(name string, seen map[string]bool)
			transitive = func(name string, seen map[string]bool) {
				for _, dep := range deps[name] {
					if !seen[dep] {
						seen[dep] = true
						transitive(dep, seen)
					}
				}
			}
			for name := range deps {
				seen := make(map[string]bool)
				transitive(name, seen)
				started := tr.span(t, name).start
				for dep := range seen {
					finished := tr.span(t, dep).end
					assert.False(t, started.Before(finished), "%s started before dependency %s finished", name, dep)
				}
			}
		})
	}
}

func TestRun_ParallelRunsSiblingsConcurrently(t *testing.T) {
	tr := newTracker()
	g := NewGraph()
	addAction(t, g, "a", nil, tr.action("a", 100*time.Millisecond, nil))
	addAction(t, g, "b", nil, tr.action("b", 100*time.Millisecond, nil))
	addAction(t, g, "c", nil, tr.action("c", 100*time.Millisecond, nil))
	require.NoError(t, g.AddTarget("all", []string{"a", "b", "c"}, nil))

	start := time.Now()
	_, err := g.Run(context.Background(), []string{"all"}, RunOptions{Parallel: true})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestRun_SkipDependenciesScoping(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			tr := newTracker()
			g := NewGraph()
			addAction(t, g, "D", []string{"A"}, tr.action("D", 0, nil))
			addAction(t, g, "A", nil, tr.action("A", 0, nil))

			_, err := g.Run(context.Background(), []string{"D"}, RunOptions{Parallel: mode.parallel, SkipDependencies: true})
			require.NoError(t, err)
			assert.Equal(t, 1, tr.count("D"))
			assert.Equal(t, 0, tr.count("A"))

			_, err = g.Run(context.Background(), []string{"D", "A"}, RunOptions{Parallel: mode.parallel, SkipDependencies: true})
			require.NoError(t, err)
			assert.Equal(t, 2, tr.count("D"), "graph is reusable across runs")
			assert.Equal(t, 1, tr.count("A"))
		})
	}
}

func TestRun_SkipDependenciesStillWalks(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddTarget("D", []string{"A"}, nil))
	require.NoError(t, g.AddTarget("A", nil, nil))
	r := newRecordingReporter()

	_, err := g.Run(context.Background(), []string{"D"}, RunOptions{SkipDependencies: true, Reporter: r})
	require.NoError(t, err)
	assert.Contains(t, r.verbose, []string{"D", "A"})
	assert.NotContains(t, r.succeeded, "A")
	assert.Contains(t, r.succeeded, "D")
}

func TestRun_DryRun(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			tr := newTracker()
			g := NewGraph()
			addAction(t, g, "deploy", []string{"build"}, tr.action("deploy", 0, nil))
			addAction(t, g, "build", nil, tr.action("build", 0, errors.New("never runs")))
			r := newRecordingReporter()

			report, err := g.Run(context.Background(), []string{"deploy"}, RunOptions{Parallel: mode.parallel, DryRun: true, Reporter: r})
			require.NoError(t, err)

			assert.Zero(t, tr.count("deploy"))
			assert.Zero(t, tr.count("build"))
			assert.ElementsMatch(t, []string{"build", "deploy"}, r.starting)
			for _, name := range []string{"build", "deploy"} {
				assert.Contains(t, r.succeeded, name)
				assert.Nil(t, r.succeeded[name], "dry-run durations are absent")
				res, ok := report.Result(name)
				require.True(t, ok)
				assert.Nil(t, res.Duration)
				assert.Equal(t, OutcomeSucceeded, res.Outcome)
			}
		})
	}
}

func TestRun_FailureDuration(t *testing.T) {
	boom := errors.New("boom")
	g := NewGraph()
	require.NoError(t, g.AddTarget("slow", nil, func(context.Context) error {
		time.Sleep(50 * time.Millisecond)
		return boom
	}))

	report, err := g.Run(context.Background(), []string{"slow"}, RunOptions{})
	require.Error(t, err)
	assert.False(t, IsConfigError(err))
	assert.ErrorIs(t, err, boom)

	var failed *TargetFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "slow", failed.Name)
	assert.GreaterOrEqual(t, failed.Duration, 50*time.Millisecond)
	assert.Less(t, failed.Duration, 2*time.Second)

	res, ok := report.Result("slow")
	require.True(t, ok)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	require.NotNil(t, res.Duration)
	assert.Equal(t, failed.Duration, *res.Duration)
	assert.Equal(t, boom, res.Err)
}

func TestRun_SequentialStopsAtFirstFailure(t *testing.T) {
	tr := newTracker()
	g := NewGraph()
	addAction(t, g, "a", nil, tr.action("a", 0, nil))
	addAction(t, g, "b", nil, tr.action("b", 0, errors.New("b failed")))
	addAction(t, g, "c", nil, tr.action("c", 0, nil))
	addAction(t, g, "top", []string{"a", "b", "c"}, tr.action("top", 0, nil))
	addAction(t, g, "later", nil, tr.action("later", 0, nil))
	r := newRecordingReporter()

	report, err := g.Run(context.Background(), []string{"top", "later"}, RunOptions{Reporter: r})
	require.Error(t, err)

	assert.Equal(t, 1, tr.count("a"))
	assert.Equal(t, 1, tr.count("b"))
	assert.Zero(t, tr.count("c"), "later siblings never start")
	assert.Zero(t, tr.count("top"), "dependents of a failure never start")
	assert.Zero(t, tr.count("later"), "later roots never start")

	require.Len(t, r.summaries, 1)
	assert.Len(t, report.Results, 2)
	res, ok := report.Result("b")
	require.True(t, ok)
	assert.Equal(t, OutcomeFailed, res.Outcome)
}

func TestRun_ParallelLetsInFlightSiblingsFinish(t *testing.T) {
	tr := newTracker()
	g := NewGraph()
	addAction(t, g, "fast-fail", nil, tr.action("fast-fail", 0, errors.New("fast failure")))
	addAction(t, g, "slow", nil, tr.action("slow", 80*time.Millisecond, nil))
	addAction(t, g, "top", []string{"fast-fail", "slow"}, tr.action("top", 0, nil))

	report, err := g.Run(context.Background(), []string{"top"}, RunOptions{Parallel: true})
	require.Error(t, err)

	assert.Equal(t, 1, tr.count("slow"), "already launched sibling completes")
	assert.Zero(t, tr.count("top"))

	slow, ok := report.Result("slow")
	require.True(t, ok)
	assert.Equal(t, OutcomeSucceeded, slow.Outcome)
}

func TestRun_SharedFailureSeenByAllDependents(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			tr := newTracker()
			g := NewGraph()
			addAction(t, g, "base", nil, tr.action("base", 10*time.Millisecond, errors.New("base broke")))
			addAction(t, g, "x", []string{"base"}, tr.action("x", 0, nil))
			addAction(t, g, "y", []string{"base"}, tr.action("y", 0, nil))

			_, err := g.Run(context.Background(), []string{"x", "y"}, RunOptions{Parallel: mode.parallel})
			var failed *TargetFailedError
			require.ErrorAs(t, err, &failed)
			assert.Equal(t, "base", failed.Name)
			assert.Equal(t, 1, tr.count("base"))
			assert.Zero(t, tr.count("x")+tr.count("y"))
		})
	}
}

func TestRun_MessageOnly(t *testing.T) {
	quiet := errors.New("already explained")
	g := NewGraph()
	require.NoError(t, g.AddTarget("a", nil, func(context.Context) error { return quiet }))
	r := newRecordingReporter()

	_, err := g.Run(context.Background(), []string{"a"}, RunOptions{
		Reporter:    r,
		MessageOnly: func(err error) bool { return errors.Is(err, quiet) },
	})
	require.Error(t, err)
	assert.Empty(t, r.errored)
	assert.Contains(t, r.failed, "a")
}

func TestRun_VerboseStacksAreBranchLocal(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddTarget("root", []string{"left", "right"}, nil))
	require.NoError(t, g.AddTarget("left", []string{"leaf"}, nil))
	require.NoError(t, g.AddTarget("right", []string{"leaf"}, nil))
	require.NoError(t, g.AddTarget("leaf", nil, nil))
	r := newRecordingReporter()

	_, err := g.Run(context.Background(), []string{"root"}, RunOptions{Parallel: true, Reporter: r})
	require.NoError(t, err)

	valid := map[string]bool{
		"root":            true,
		"root/left":       true,
		"root/right":      true,
		"root/left/leaf":  true,
		"root/right/leaf": true,
	}
	for _, stack := range r.verbose {
		key := ""
		for i, name := range stack {
			if i > 0 {
				key += "/"
			}
			key += name
		}
		assert.True(t, valid[key], "unexpected call chain %v", stack)
	}
}

func TestRun_SummaryOrder(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddTarget("c", []string{"b"}, nil))
	require.NoError(t, g.AddTarget("b", []string{"a"}, nil))
	require.NoError(t, g.AddTarget("a", nil, nil))

	report, err := g.Run(context.Background(), []string{"c"}, RunOptions{Parallel: true})
	require.NoError(t, err)

	var names []string
	for _, res := range report.Results {
		names = append(names, res.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestRun_ActionReceivesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "value")

	var got any
	g := NewGraph()
	require.NoError(t, g.AddTarget("a", nil, func(ctx context.Context) error {
		got = ctx.Value(key{})
		return nil
	}))

	_, err := g.Run(ctx, []string{"a"}, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "value", got)
}

func TestRun_EmptyNames(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddTarget("a", nil, nil))

	report, err := g.Run(context.Background(), nil, RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, report.Results)
}

func TestRun_ActionsCanUseGraph(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddTarget("a", nil, func(context.Context) error {
		if _, ok := g.Get("a"); !ok {
			return errors.New("a not found")
		}
		// A writer while the run is in progress must not block it.
		return g.AddTarget("late", nil, nil)
	}))
	require.NoError(t, g.AddTarget("b", []string{"a"}, func(context.Context) error {
		_ = g.Names()
		return nil
	}))

	done := make(chan error, 1)
	go func() {
		_, err := g.Run(context.Background(), []string{"b"}, RunOptions{Parallel: true})
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run blocked on the graph lock")
	}
	assert.True(t, g.Contains("late"))
}

package scheduler

import (
	"errors"
	"time"
)

// Outcome is the terminal state of a target within one run.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeFailed
)

func (o Outcome) String() string {
	if o == OutcomeFailed {
		return "failed"
	}
	return "succeeded"
}

// Result is the per-target outcome reported in a run summary.
type Result struct {
	Name     string
	Outcome  Outcome
	Duration *time.Duration // nil for plain targets and dry runs
	Err      error          // Original cause when Outcome is OutcomeFailed
}

// Report is returned by Graph.Run.
type Report struct {
	Names   []string // Requested names
	Results []Result // Dependencies before dependents
	Elapsed time.Duration
}

// Result looks up the outcome for a target name.
func (r *Report) Result(name string) (Result, bool) {
	if r == nil {
		return Result{}, false
	}
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return Result{}, false
}

// resultFor converts a completed execution into a Result. A failed target
// still reports the duration carried by its TargetFailedError.
func resultFor(name string, duration *time.Duration, err error) Result {
	if err == nil {
		return Result{Name: name, Outcome: OutcomeSucceeded, Duration: duration}
	}

	res := Result{Name: name, Outcome: OutcomeFailed, Err: err}
	var failed *TargetFailedError
	if errors.As(err, &failed) {
		d := failed.Duration
		res.Duration = &d
		res.Err = failed.Err
	}
	return res
}

package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes the two target variants.
type Kind int

const (
	KindPlain  Kind = iota // Groups dependencies under one name, no work
	KindAction             // Carries a unit of work
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindAction:
		return "action"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Action is a target's unit of work.
type Action func(ctx context.Context) error

// Target is a named node in the dependency graph.
// Targets are immutable once constructed.
type Target struct {
	name   string
	deps   []string
	kind   Kind
	action Action
	inputs []string // Descriptive only, shown by --list-inputs
}

// NewTarget creates a plain target that performs no work.
func NewTarget(name string, dependencies []string) (*Target, error) {
	if name == "" {
		return nil, &ConfigError{Kind: ErrEmptyName, Msg: "target name cannot be empty"}
	}
	return &Target{
		name: name,
		deps: sanitize(dependencies),
		kind: KindPlain,
	}, nil
}

// NewActionTarget creates a target that runs action when executed.
// A nil action is allowed; the target is then timed but does nothing.
func NewActionTarget(name string, dependencies []string, action Action) (*Target, error) {
	t, err := NewTarget(name, dependencies)
	if err != nil {
		return nil, err
	}
	t.kind = KindAction
	t.action = action
	return t, nil
}

// WithInputs returns a copy of t that describes its inputs, e.g. a command line.
func (t *Target) WithInputs(inputs ...string) *Target {
	cp := *t
	cp.deps = append([]string(nil), t.deps...)
	cp.inputs = append([]string(nil), inputs...)
	return &cp
}

// Name returns the target's unique name.
func (t *Target) Name() string { return t.name }

// Kind returns the target variant.
func (t *Target) Kind() Kind { return t.kind }

// Dependencies returns a copy of the sanitized dependency names.
func (t *Target) Dependencies() []string {
	return append([]string(nil), t.deps...)
}

// Inputs returns a copy of the target's descriptive inputs.
func (t *Target) Inputs() []string {
	return append([]string(nil), t.inputs...)
}

// run executes the target once and reports its lifecycle.
// The returned duration is nil for plain targets and dry runs.
func (t *Target) run(ctx context.Context, dryRun bool, r Reporter, messageOnly func(error) bool) (*time.Duration, error) {
	if t.kind == KindPlain {
		r.Succeeded(t.name, nil)
		return nil, nil
	}

	r.Starting(t.name)

	if dryRun {
		r.Succeeded(t.name, nil)
		return nil, nil
	}

	start := time.Now()
	if t.action != nil {
		if err := invoke(ctx, t.action); err != nil {
			if !messageOnly(err) {
				r.Error(t.name, err)
			}
			elapsed := time.Since(start)
			r.Failed(t.name, err, elapsed)
			return nil, &TargetFailedError{Name: t.name, Duration: elapsed, Err: err}
		}
	}

	elapsed := time.Since(start)
	r.Succeeded(t.name, &elapsed)
	return &elapsed, nil
}

// invoke calls action, turning a panic into an error.
func invoke(ctx context.Context, action Action) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return action(ctx)
}

// sanitize drops blank and duplicate names, keeping first occurrences in order.
func sanitize(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

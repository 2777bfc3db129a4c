package scheduler

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/gammazero/toposort"
)

// Graph is a collection of targets indexed by name.
// It is built once, then run any number of times.
type Graph struct {
	mu      sync.RWMutex
	targets map[string]*Target // All targets indexed by name
	order   []string           // Registration order
}

// NewGraph creates an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		targets: make(map[string]*Target),
	}
}

// Add registers a target. Returns a configuration error if the name is taken.
func (g *Graph) Add(t *Target) error {
	if t == nil || t.name == "" {
		return &ConfigError{Kind: ErrEmptyName, Msg: "target name cannot be empty"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.targets[t.name]; exists {
		return &ConfigError{
			Kind: ErrDuplicateTarget,
			Msg:  fmt.Sprintf("target %q is already defined", t.name),
		}
	}

	g.targets[t.name] = t
	g.order = append(g.order, t.name)
	return nil
}

// AddTarget builds and registers a target in one step. A nil action
// registers a plain target.
func (g *Graph) AddTarget(name string, dependencies []string, action Action) error {
	var (
		t   *Target
		err error
	)
	if action == nil {
		t, err = NewTarget(name, dependencies)
	} else {
		t, err = NewActionTarget(name, dependencies, action)
	}
	if err != nil {
		return err
	}
	return g.Add(t)
}

// Get returns the target registered under name.
func (g *Graph) Get(name string) (*Target, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	t, ok := g.targets[name]
	return t, ok
}

// Contains reports whether name is registered.
func (g *Graph) Contains(name string) bool {
	_, ok := g.Get(name)
	return ok
}

// Len returns the number of registered targets.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.targets)
}

// Names returns all target names sorted alphabetically.
func (g *Graph) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := append([]string(nil), g.order...)
	sort.Strings(names)
	return names
}

// Targets returns all targets in registration order.
func (g *Graph) Targets() []*Target {
	g.mu.RLock()
	defer g.mu.RUnlock()

	targets := make([]*Target, 0, len(g.order))
	for _, name := range g.order {
		targets = append(targets, g.targets[name])
	}
	return targets
}

// snapshot copies the registered targets so a run can proceed without
// holding g.mu. Targets are immutable once added.
func (g *Graph) snapshot() *Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return &Graph{
		targets: maps.Clone(g.targets),
		order:   slices.Clone(g.order),
	}
}

// Order returns the registered target names in dependency order: every
// target appears after all of its registered dependencies. Dependencies that
// are not registered are ignored. Returns an error if the graph has a cycle.
func (g *Graph) Order() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.topoOrder()
}

// topoOrder is Order without locking.
func (g *Graph) topoOrder() ([]string, error) {
	names := append([]string(nil), g.order...)
	sort.Strings(names)

	// Build edges for topological sort
	var edges []toposort.Edge
	for _, name := range names {
		resolved := 0
		for _, dep := range g.targets[name].deps {
			if _, ok := g.targets[dep]; !ok {
				continue
			}
			// Edge (dep, name) means dep must come before name
			edges = append(edges, toposort.Edge{dep, name})
			resolved++
		}
		if resolved == 0 {
			// No registered dependencies - edge from nil keeps it in the result
			edges = append(edges, toposort.Edge{nil, name})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("target graph contains a cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	return order, nil
}

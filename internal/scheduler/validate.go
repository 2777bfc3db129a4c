package scheduler

import (
	"fmt"
	"sort"
	"strings"
)

// validate runs the pre-run checks in order on a snapshot.
func (g *Graph) validate(names []string, skipDependencies bool) error {
	if !skipDependencies {
		if err := g.validateDependenciesDefined(); err != nil {
			return err
		}
	}
	if err := g.validateAcyclic(); err != nil {
		return err
	}
	return g.validateNames(names)
}

// validateDependenciesDefined reports every unregistered dependency together
// with the targets that require it.
func (g *Graph) validateDependenciesDefined() error {
	missing := make(map[string]map[string]struct{})
	for _, name := range g.order {
		for _, dep := range g.targets[name].deps {
			if _, ok := g.targets[dep]; ok {
				continue
			}
			if missing[dep] == nil {
				missing[dep] = make(map[string]struct{})
			}
			missing[dep][name] = struct{}{}
		}
	}

	if len(missing) == 0 {
		return nil
	}

	deps := make([]string, 0, len(missing))
	for dep := range missing {
		deps = append(deps, dep)
	}
	sort.Strings(deps)

	parts := make([]string, 0, len(deps))
	for _, dep := range deps {
		parts = append(parts, fmt.Sprintf("%s, required by %s", dep, strings.Join(sortedKeys(missing[dep]), " ")))
	}

	label := "missing dependency"
	if len(deps) > 1 {
		label = "missing dependencies"
	}
	return &ConfigError{
		Kind: ErrMissingDependency,
		Msg:  label + ": " + strings.Join(parts, "; "),
	}
}

// validateAcyclic walks every target depth-first in registration order and
// reports the first cycle found as the chain of names in visit order.
func (g *Graph) validateAcyclic() error {
	cleared := make(map[string]bool) // Fully explored, no cycle reachable
	var chain []string

	var walk func(name string) error
	walk = func(name string) error {
		for _, onChain := range chain {
			if onChain == name {
				cycle := append(append([]string(nil), chain...), name)
				return &ConfigError{
					Kind: ErrCircularDependency,
					Msg:  "circular dependency: " + strings.Join(cycle, " -> "),
				}
			}
		}
		if cleared[name] {
			return nil
		}

		chain = append(chain, name)
		for _, dep := range g.targets[name].deps {
			if _, ok := g.targets[dep]; !ok {
				continue
			}
			if err := walk(dep); err != nil {
				return err
			}
		}
		chain = chain[:len(chain)-1]
		cleared[name] = true
		return nil
	}

	for _, name := range g.order {
		if err := walk(name); err != nil {
			return err
		}
	}
	return nil
}

// validateNames checks every requested name is registered.
func (g *Graph) validateNames(names []string) error {
	unknown := make(map[string]struct{})
	for _, name := range names {
		if _, ok := g.targets[name]; !ok {
			unknown[name] = struct{}{}
		}
	}
	if len(unknown) == 0 {
		return nil
	}

	label := "target not found"
	if len(unknown) > 1 {
		label = "targets not found"
	}
	return &ConfigError{
		Kind: ErrUnknownTarget,
		Msg:  label + ": " + strings.Join(sortedKeys(unknown), " "),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

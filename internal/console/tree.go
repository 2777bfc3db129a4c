package console

import (
	"slices"
	"strings"

	"github.com/aristath/bullseye/internal/scheduler"
)

const (
	corner      = "└─"
	teeJunction = "├─"
	line        = "│ "
)

// ListOptions selects what Tree renders.
type ListOptions struct {
	MaxDepth       int  // 0 lists roots only, 1 adds direct dependencies
	MaxInputsDepth int  // Deepest level at which inputs are shown
	ShowInputs     bool // Show each target's inputs below it
}

// Tree renders roots and their dependencies as an indented tree.
// Missing targets and circular references are marked rather than followed.
func Tree(g *scheduler.Graph, roots []string, opts ListOptions, p Palette) string {
	var b strings.Builder
	for _, root := range roots {
		appendTree(&b, g, []string{root}, nil, true, "", 0, opts, p)
	}
	return b.String()
}

func appendTree(b *strings.Builder, g *scheduler.Graph, names []string, seen []string, isRoot bool, previousPrefix string, depth int, opts ListOptions, p Palette) {
	if depth > opts.MaxDepth {
		return
	}

	for i, name := range names {
		circular := slices.Contains(seen, name)

		prefix := ""
		if !isRoot {
			prefix = continuation(previousPrefix)
			if i == len(names)-1 {
				prefix += corner
			} else {
				prefix += teeJunction
			}
		}

		nameStyle := p.Dependency
		if isRoot {
			nameStyle = p.Target
		}
		b.WriteString(p.Tree.Render(prefix) + nameStyle.Render(name))

		target, ok := g.Get(name)
		if !ok {
			b.WriteString(" " + p.Failed.Render("(missing)") + "\n")
			continue
		}
		if circular {
			b.WriteString(" " + p.Failed.Render("(circular dependency)") + "\n")
			continue
		}
		b.WriteString("\n")

		deps := target.Dependencies()
		if opts.ShowInputs && depth <= opts.MaxInputsDepth {
			inputPrefix := continuation(prefix)
			if len(deps) > 0 && depth+1 <= opts.MaxDepth {
				inputPrefix += line
			} else {
				inputPrefix += "  "
			}
			for _, input := range target.Inputs() {
				b.WriteString(p.Tree.Render(inputPrefix) + p.Input.Render(input) + "\n")
			}
		}

		appendTree(b, g, deps, append(slices.Clip(seen), name), false, prefix, depth+1, opts, p)
	}
}

// continuation turns a parent's prefix into the prefix its children indent under.
func continuation(prefix string) string {
	return strings.ReplaceAll(strings.ReplaceAll(prefix, corner, "  "), teeJunction, line)
}

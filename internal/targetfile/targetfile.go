// Package targetfile loads target definitions from an HCL file.
//
//	target "build" {
//	  depends_on = ["restore"]
//	  command    = ["go", "build", "./..."]
//	  env        = { CGO_ENABLED = "0" }
//	}
//
//	target "default" {
//	  depends_on = ["build"]
//	}
//
// Expressions can read the process environment through env.NAME and use a
// small set of string functions.
package targetfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/aristath/bullseye/internal/command"
	"github.com/aristath/bullseye/internal/ctxlog"
	"github.com/aristath/bullseye/internal/scheduler"
)

// DefaultPath is the targets file used when none is configured.
const DefaultPath = "bullseye.hcl"

// ErrInvalidFile is returned for targets files that cannot be parsed or decoded.
var ErrInvalidFile = fmt.Errorf("%w: invalid targets file", scheduler.ErrInvalidUsage)

// hclFile is the decoding schema of a targets file.
type hclFile struct {
	Targets []*hclTarget `hcl:"target,block"`
}

type hclTarget struct {
	Name      string            `hcl:"name,label"`
	DependsOn []string          `hcl:"depends_on,optional"`
	Command   []string          `hcl:"command,optional"`
	Run       *string           `hcl:"run,optional"`
	Dir       string            `hcl:"dir,optional"`
	Env       map[string]string `hcl:"env,optional"`
	Retries   int               `hcl:"retries,optional"`
	Locks     []string          `hcl:"locks,optional"`
	Inputs    []string          `hcl:"inputs,optional"`
}

// Definition is one decoded target.
type Definition struct {
	Name      string
	DependsOn []string
	Inputs    []string
	Command   *command.Spec // nil for plain targets
}

// File is a decoded targets file.
type File struct {
	Path    string
	Targets []Definition
}

// Options controls decoding.
type Options struct {
	// Env is exposed to expressions as env.NAME. Nil uses the process environment.
	Env map[string]string
	// Shell runs `run` strings as Shell -c <run>. Empty uses "sh".
	Shell string
}

// Load reads and decodes the targets file at path.
func Load(ctx context.Context, path string, opts Options) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrInvalidFile, path)
		}
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}
	return Parse(ctx, src, path, opts)
}

// Parse decodes src. Relative `dir` values resolve against filename's directory.
func Parse(ctx context.Context, src []byte, filename string, opts Options) (*File, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("decoding targets file", "path", filename)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFile, diags.Error())
	}

	var decoded hclFile
	diags = gohcl.DecodeBody(file.Body, evalContext(opts.Env), &decoded)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFile, diags.Error())
	}

	shell := opts.Shell
	if shell == "" {
		shell = "sh"
	}
	baseDir := filepath.Dir(filename)

	out := &File{Path: filename, Targets: make([]Definition, 0, len(decoded.Targets))}
	for _, t := range decoded.Targets {
		def, err := t.definition(shell, baseDir)
		if err != nil {
			return nil, err
		}
		out.Targets = append(out.Targets, def)
	}

	logger.Debug("decoded targets file", "path", filename, "targets", len(out.Targets))
	return out, nil
}

func (t *hclTarget) definition(shell, baseDir string) (Definition, error) {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: target %q: %s", ErrInvalidFile, t.Name, fmt.Sprintf(format, args...))
	}

	def := Definition{Name: t.Name, DependsOn: t.DependsOn, Inputs: t.Inputs}

	var args []string
	switch {
	case t.Run != nil && len(t.Command) > 0:
		return def, invalid("command and run are mutually exclusive")
	case t.Run != nil:
		if strings.TrimSpace(*t.Run) == "" {
			return def, invalid("run cannot be empty")
		}
		args = []string{shell, "-c", *t.Run}
	case t.Command != nil:
		if len(t.Command) == 0 || t.Command[0] == "" {
			return def, invalid("command cannot be empty")
		}
		args = t.Command
	}

	if args == nil {
		if t.Dir != "" || len(t.Env) > 0 || t.Retries != 0 || len(t.Locks) > 0 {
			return def, invalid("dir, env, retries and locks require a command")
		}
		return def, nil
	}

	if t.Retries < 0 {
		return def, invalid("retries cannot be negative")
	}

	dir := t.Dir
	if dir != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(baseDir, dir)
	}

	def.Command = &command.Spec{
		Name:    t.Name,
		Args:    args,
		Dir:     dir,
		Env:     t.Env,
		Retries: t.Retries,
		Locks:   t.Locks,
	}
	return def, nil
}

// Register adds every definition to g, in file order. Command targets run
// through runner.
func (f *File) Register(g *scheduler.Graph, runner *command.Runner) error {
	for _, def := range f.Targets {
		var (
			target *scheduler.Target
			err    error
		)
		inputs := def.Inputs
		if def.Command == nil {
			target, err = scheduler.NewTarget(def.Name, def.DependsOn)
		} else {
			target, err = scheduler.NewActionTarget(def.Name, def.DependsOn, runner.Action(*def.Command))
			inputs = append([]string{def.Command.CommandLine()}, inputs...)
		}
		if err != nil {
			return err
		}
		if err := g.Add(target.WithInputs(inputs...)); err != nil {
			return err
		}
	}
	return nil
}

func evalContext(env map[string]string) *hcl.EvalContext {
	if env == nil {
		env = environ()
	}
	vars := make(map[string]cty.Value, len(env))
	for k, v := range env {
		vars[k] = cty.StringVal(v)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
		Functions: map[string]function.Function{
			"concat":    stdlib.ConcatFunc,
			"format":    stdlib.FormatFunc,
			"join":      stdlib.JoinFunc,
			"lower":     stdlib.LowerFunc,
			"split":     stdlib.SplitFunc,
			"trimspace": stdlib.TrimSpaceFunc,
			"upper":     stdlib.UpperFunc,
		},
	}
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

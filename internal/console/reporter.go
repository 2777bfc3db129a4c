package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aristath/bullseye/internal/scheduler"
)

// Options controls how the Reporter renders a run.
type Options struct {
	Prefix           string // Leading label on every line, e.g. "bullseye"
	SkipDependencies bool
	DryRun           bool
	Parallel         bool
	Verbose          bool
}

// Reporter renders run notifications as human-readable lines.
// It implements scheduler.Reporter and is safe for concurrent use.
type Reporter struct {
	mu   sync.Mutex
	w    io.Writer
	p    Palette
	opts Options
}

var _ scheduler.Reporter = (*Reporter)(nil)

// NewReporter creates a Reporter writing to w.
func NewReporter(w io.Writer, p Palette, opts Options) *Reporter {
	if opts.Prefix == "" {
		opts.Prefix = "bullseye"
	}
	return &Reporter{w: w, p: p, opts: opts}
}

// Palette returns the reporter's palette.
func (r *Reporter) Palette() Palette { return r.p }

func (r *Reporter) writeLine(parts ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, r.p.Prefix.Render(r.opts.Prefix+":")+" "+strings.Join(parts, " "))
}

// Info writes a plain line with the reporter's prefix.
func (r *Reporter) Info(message string) {
	r.writeLine(r.p.Text.Render(message))
}

// Note writes message only in verbose mode.
func (r *Reporter) Note(message string) {
	if !r.opts.Verbose {
		return
	}
	r.writeLine(r.p.Verbose.Render(message))
}

// ErrorMessage writes a failure message that is not tied to a target.
func (r *Reporter) ErrorMessage(message string) {
	r.writeLine(r.p.Failed.Render(message))
}

func (r *Reporter) Running(names []string) {
	r.writeLine(r.p.Text.Render("Starting..."), r.names(names)+r.modes())
}

func (r *Reporter) Verbose(stack []string, message string) {
	if !r.opts.Verbose {
		return
	}
	r.writeLine(r.p.Verbose.Render("/"+strings.Join(stack, "/")+":"), r.p.Verbose.Render(message))
}

func (r *Reporter) Starting(name string) {
	r.writeLine(r.p.Target.Render(name+":"), r.p.Text.Render("Starting..."))
}

func (r *Reporter) Succeeded(name string, duration *time.Duration) {
	parts := []string{r.p.Target.Render(name + ":"), r.p.Succeeded.Render("Succeeded")}
	if duration != nil {
		parts = append(parts, r.p.Timing.Render("("+FormatDuration(*duration)+")"))
	}
	r.writeLine(parts...)
}

func (r *Reporter) Failed(name string, err error, duration time.Duration) {
	r.writeLine(
		r.p.Target.Render(name+":"),
		r.p.Failed.Render("Failed!"),
		r.p.Failed.Render(err.Error()),
		r.p.Timing.Render("("+FormatDuration(duration)+")"),
	)
}

// Error writes the full diagnostic detail of a failure.
func (r *Reporter) Error(name string, err error) {
	r.writeLine(r.p.Target.Render(name+":"), r.p.Failed.Render(fmt.Sprintf("%+v", err)))
}

func (r *Reporter) Summary(results []scheduler.Result) {
	if len(results) == 0 {
		return
	}

	var total time.Duration
	for _, res := range results {
		if res.Duration != nil {
			total += *res.Duration
		}
	}

	type row struct{ target, outcome, duration, percent string }
	rows := []row{{"Target", "Outcome", "Duration", ""}}
	for _, res := range results {
		rw := row{target: res.Name}
		if res.Outcome == scheduler.OutcomeFailed {
			rw.outcome = "Failed!"
		} else {
			rw.outcome = "Succeeded"
		}
		if res.Duration != nil {
			rw.duration = FormatDuration(*res.Duration)
			if total > 0 {
				rw.percent = fmt.Sprintf("%.1f%%", 100*float64(*res.Duration)/float64(total))
			}
		}
		rows = append(rows, rw)
	}

	var wTarget, wOutcome, wDuration int
	for _, rw := range rows {
		wTarget = max(wTarget, len(rw.target))
		wOutcome = max(wOutcome, len(rw.outcome))
		wDuration = max(wDuration, len(rw.duration))
	}

	divider := r.p.Tree.Render(strings.Repeat("─", wTarget+wOutcome+wDuration+14))
	r.writeLine(divider)
	for i, rw := range rows {
		outcome := r.p.Succeeded
		switch {
		case i == 0:
			outcome = r.p.Label
		case rw.outcome == "Failed!":
			outcome = r.p.Failed
		}
		target := r.p.Target
		if i == 0 {
			target = r.p.Label
		}
		r.writeLine(
			target.Render(pad(rw.target, wTarget)),
			outcome.Render(pad(rw.outcome, wOutcome)),
			r.p.Timing.Render(pad(rw.duration, wDuration)),
			r.p.Timing.Render(rw.percent),
		)
		if i == 0 {
			r.writeLine(divider)
		}
	}
	r.writeLine(divider)
}

func (r *Reporter) Finished(names []string, elapsed time.Duration, err error) {
	status := r.p.Succeeded.Render("Succeeded.")
	if err != nil {
		status = r.p.Failed.Render("Failed!")
	}
	r.writeLine(status, r.names(names)+r.modes(), r.p.Timing.Render("("+FormatDuration(elapsed)+")"))
}

func (r *Reporter) names(names []string) string {
	styled := make([]string, 0, len(names))
	for _, name := range names {
		styled = append(styled, r.p.Target.Render(name))
	}
	return "(" + strings.Join(styled, " ") + ")"
}

func (r *Reporter) modes() string {
	var modes []string
	if r.opts.DryRun {
		modes = append(modes, "dry run")
	}
	if r.opts.Parallel {
		modes = append(modes, "parallel")
	}
	if r.opts.SkipDependencies {
		modes = append(modes, "skip dependencies")
	}
	if len(modes) == 0 {
		return ""
	}
	return " " + r.p.Warning.Render("("+strings.Join(modes, ", ")+")")
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// FormatDuration renders d the way run output shows it: milliseconds below
// one second, seconds below one minute, then minutes and seconds.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%d ms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2f s", d.Seconds())
	default:
		m := int(d / time.Minute)
		s := int((d % time.Minute) / time.Second)
		return fmt.Sprintf("%d min %d s", m, s)
	}
}

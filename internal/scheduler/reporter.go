package scheduler

import "time"

// Reporter receives lifecycle notifications from a run.
// Implementations must be safe for concurrent use: in parallel mode
// notifications arrive from many goroutines.
type Reporter interface {
	Running(names []string)
	Verbose(stack []string, message string)
	Starting(name string)
	Succeeded(name string, duration *time.Duration)
	Failed(name string, err error, duration time.Duration)
	Error(name string, err error)
	Summary(results []Result)
	Finished(names []string, elapsed time.Duration, err error)
}

// NopReporter discards every notification.
type NopReporter struct{}

func (NopReporter) Running([]string)                        {}
func (NopReporter) Verbose([]string, string)                {}
func (NopReporter) Starting(string)                         {}
func (NopReporter) Succeeded(string, *time.Duration)        {}
func (NopReporter) Failed(string, error, time.Duration)     {}
func (NopReporter) Error(string, error)                     {}
func (NopReporter) Summary([]Result)                        {}
func (NopReporter) Finished([]string, time.Duration, error) {}

// MultiReporter fans notifications out to several reporters in order.
type MultiReporter []Reporter

func (m MultiReporter) Running(names []string) {
	for _, r := range m {
		r.Running(names)
	}
}

func (m MultiReporter) Verbose(stack []string, message string) {
	for _, r := range m {
		r.Verbose(stack, message)
	}
}

func (m MultiReporter) Starting(name string) {
	for _, r := range m {
		r.Starting(name)
	}
}

func (m MultiReporter) Succeeded(name string, duration *time.Duration) {
	for _, r := range m {
		r.Succeeded(name, duration)
	}
}

func (m MultiReporter) Failed(name string, err error, duration time.Duration) {
	for _, r := range m {
		r.Failed(name, err, duration)
	}
}

func (m MultiReporter) Error(name string, err error) {
	for _, r := range m {
		r.Error(name, err)
	}
}

func (m MultiReporter) Summary(results []Result) {
	for _, r := range m {
		r.Summary(results)
	}
}

func (m MultiReporter) Finished(names []string, elapsed time.Duration, err error) {
	for _, r := range m {
		r.Finished(names, elapsed, err)
	}
}

package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/aristath/bullseye/internal/scheduler"
)

// BusReporter publishes run notifications to a Bus.
type BusReporter struct {
	bus *Bus
	now func() time.Time
}

var _ scheduler.Reporter = (*BusReporter)(nil)

// NewBusReporter creates a reporter publishing to bus.
func NewBusReporter(bus *Bus) *BusReporter {
	return &BusReporter{bus: bus, now: time.Now}
}

func (r *BusReporter) Running([]string)           {}
func (r *BusReporter) Verbose([]string, string)   {}
func (r *BusReporter) Error(string, error)        {}
func (r *BusReporter) Summary([]scheduler.Result) {}

func (r *BusReporter) Starting(name string) {
	r.bus.Publish(TopicTarget, TargetStartingEvent{Name: name, Timestamp: r.now()})
}

func (r *BusReporter) Succeeded(name string, duration *time.Duration) {
	r.bus.Publish(TopicTarget, TargetSucceededEvent{Name: name, Duration: duration, Timestamp: r.now()})
}

func (r *BusReporter) Failed(name string, err error, duration time.Duration) {
	r.bus.Publish(TopicTarget, TargetFailedEvent{Name: name, Err: err, Duration: duration, Timestamp: r.now()})
}

func (r *BusReporter) Finished(names []string, elapsed time.Duration, err error) {
	r.bus.Publish(TopicRun, RunFinishedEvent{Names: names, Elapsed: elapsed, Err: err, Timestamp: r.now()})
}

// Log writes each event from ch to logger until ch is closed or ctx is done.
func Log(ctx context.Context, logger *slog.Logger, ch <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			logEvent(ctx, logger, ev)
		}
	}
}

func logEvent(ctx context.Context, logger *slog.Logger, ev Event) {
	switch e := ev.(type) {
	case TargetStartingEvent:
		logger.DebugContext(ctx, "target starting", "target", e.Name)
	case TargetOutputEvent:
		logger.DebugContext(ctx, "target output", "target", e.Name, "line", e.Line, "stderr", e.Stderr)
	case TargetSucceededEvent:
		attrs := []any{"target", e.Name}
		if e.Duration != nil {
			attrs = append(attrs, "duration", *e.Duration)
		}
		logger.InfoContext(ctx, "target succeeded", attrs...)
	case TargetFailedEvent:
		logger.ErrorContext(ctx, "target failed", "target", e.Name, "duration", e.Duration, "error", e.Err)
	case RunFinishedEvent:
		if e.Err != nil {
			logger.ErrorContext(ctx, "run failed", "targets", e.Names, "elapsed", e.Elapsed, "error", e.Err)
			return
		}
		logger.InfoContext(ctx, "run succeeded", "targets", e.Names, "elapsed", e.Elapsed)
	default:
		logger.DebugContext(ctx, "event", "type", ev.EventType(), "target", ev.Target())
	}
}

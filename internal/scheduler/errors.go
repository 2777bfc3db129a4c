package scheduler

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidUsage is the root of every configuration error.
var ErrInvalidUsage = errors.New("invalid usage")

// Configuration error kinds. Each wraps ErrInvalidUsage.
var (
	ErrEmptyName          = fmt.Errorf("%w: empty target name", ErrInvalidUsage)
	ErrDuplicateTarget    = fmt.Errorf("%w: duplicate target", ErrInvalidUsage)
	ErrMissingDependency  = fmt.Errorf("%w: missing dependency", ErrInvalidUsage)
	ErrCircularDependency = fmt.Errorf("%w: circular dependency", ErrInvalidUsage)
	ErrUnknownTarget      = fmt.Errorf("%w: unknown target", ErrInvalidUsage)
	ErrUnknownOption      = fmt.Errorf("%w: unknown option", ErrInvalidUsage)
)

// ConfigError reports graph or caller misuse detected before any work runs.
type ConfigError struct {
	Kind error  // One of the Err* kinds above
	Msg  string // Human-readable, deterministic
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Kind }

// IsConfigError reports whether err is, or wraps, a configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidUsage)
}

// TargetFailedError is returned when a target's unit of work fails.
// It carries the elapsed duration of the failed attempt.
type TargetFailedError struct {
	Name     string
	Duration time.Duration
	Err      error
}

func (e *TargetFailedError) Error() string {
	return fmt.Sprintf("target %q failed after %s: %v", e.Name, e.Duration.Round(time.Millisecond), e.Err)
}

func (e *TargetFailedError) Unwrap() error { return e.Err }

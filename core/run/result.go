package run

import "time"

// Shell exit code conventions.
const (
	ExitSuccess  = 0
	ExitFailure  = 1
	ExitUsage    = 2
	ExitTimeout  = 124
	ExitNotFound = 127
	// ExitSignalBase plus the signal number is the exit code of a
	// signal-terminated process (130 = SIGINT, 143 = SIGTERM).
	ExitSignalBase = 128
)

// Result is the outcome of one executed segment or chain.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	// Streamed is set when stdout was already written to the terminal
	// live; callers should not print Stdout again.
	Streamed bool
}

// merge folds a later segment's result into an aggregate: output is
// concatenated in order, durations sum, and the exit code takes the
// latest executed segment's value.
func (r *Result) merge(other Result) {
	r.Stdout += other.Stdout
	r.Stderr += other.Stderr
	r.Duration += other.Duration
	r.Streamed = r.Streamed || other.Streamed
	r.ExitCode = other.ExitCode
}

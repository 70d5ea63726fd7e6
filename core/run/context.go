package run

import (
	"io"
	"syscall"

	"josephlewis.net/gosh/core/job"
	"josephlewis.net/gosh/core/plugin"
)

// Builtin is a command implemented in-process by the shell itself.
type Builtin interface {
	// Execute runs the builtin. Output is buffered into the Result
	// rather than written to file descriptors.
	Execute(args []string, ctx Context) Result
	// Description is a one line summary for help output.
	Description() string
}

// Context is the shell surface the executor and builtins operate on. It is
// implemented by *shell.Shell; all state behind it is owned by a single
// shell instance, never ambient globals.
type Context interface {
	// Environment.
	Getenv(key string) string
	Setenv(key, value string)
	Unsetenv(key string)
	Environ() []string
	// ChildEnviron is the merged environment handed to spawned
	// processes: the process environment overlaid with the shell's,
	// plus fixed color-support variables.
	ChildEnviron() []string

	// Working directory.
	Getwd() string
	Chdir(dir string) error

	// Alias table.
	LookupAlias(name string) (string, bool)
	SetAlias(name, value string)
	UnsetAlias(name string) bool
	Aliases() map[string]string

	// Registries.
	Builtins() map[string]Builtin
	Plugins() *plugin.Manager
	Jobs() *job.Manager

	// Execution options, mutable via the set builtin.
	Options() *Options

	// Terminal streams for live output.
	TerminalIn() io.Reader
	TerminalOut() io.Writer
	TerminalErr() io.Writer

	// History of executed lines, newest last.
	History() []string

	// RequestExit asks the surrounding REPL to stop after the current
	// line completes.
	RequestExit(code int)
}

// Options control execution behavior per shell instance.
type Options struct {
	// Pipefail makes a pipeline's exit code the right-most non-zero
	// stage code instead of the last stage's.
	Pipefail bool
	// Stream writes foreground external output to the terminal live
	// instead of only buffering it.
	Stream bool
	// TimeoutMillis bounds foreground external commands. Zero disables
	// the timeout. Background commands are exempt.
	TimeoutMillis int
	// KillSignal is delivered on timeout (SIGTERM, SIGKILL, SIGINT).
	KillSignal string
}

// Signal resolves KillSignal to a syscall signal, defaulting to SIGTERM.
func (o *Options) Signal() syscall.Signal {
	switch o.KillSignal {
	case "SIGKILL", "KILL":
		return syscall.SIGKILL
	case "SIGINT", "INT":
		return syscall.SIGINT
	case "SIGHUP", "HUP":
		return syscall.SIGHUP
	default:
		return syscall.SIGTERM
	}
}

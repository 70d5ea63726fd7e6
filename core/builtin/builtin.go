// Package builtin implements the commands the shell runs in-process.
// Builtins buffer their output into the returned result rather than
// writing to file descriptors; the executor simulates redirections on the
// buffers afterwards.
package builtin

import (
	"fmt"
	"io"
	"strings"

	getopt "github.com/pborman/getopt/v2"
	"josephlewis.net/gosh/core/run"
)

type builtinFunc struct {
	desc string
	fn   func(args []string, ctx run.Context) run.Result
}

func (b *builtinFunc) Execute(args []string, ctx run.Context) run.Result {
	return b.fn(args, ctx)
}

func (b *builtinFunc) Description() string {
	return b.desc
}

var all = make(map[string]run.Builtin)

// register adds a builtin to the default registry.
func register(name, desc string, fn func([]string, run.Context) run.Result) {
	all[name] = &builtinFunc{desc: desc, fn: fn}
}

// Registry returns a copy of the default builtin table.
func Registry() map[string]run.Builtin {
	out := make(map[string]run.Builtin, len(all))
	for k, v := range all {
		out[k] = v
	}
	return out
}

// SimpleCommand wraps getopt-style flag parsing for a builtin. Construct
// one per invocation; getopt sets keep state between parses.
type SimpleCommand struct {
	// Use holds a one line usage string.
	Use string
	// Short holds a one line description of the command.
	Short string

	flags *getopt.Set
}

// Flags gets the command's flag set.
func (s *SimpleCommand) Flags() *getopt.Set {
	if s.flags == nil {
		s.flags = getopt.New()
	}
	return s.flags
}

// PrintHelp writes help for the command to the given writer.
func (s *SimpleCommand) PrintHelp(w io.Writer) {
	fmt.Fprint(w, "usage: ")
	fmt.Fprintln(w, s.Use)
	fmt.Fprintln(w, s.Short)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	s.Flags().PrintOptions(w)
}

// Run parses flags and, on success, calls the callback with buffered
// output writers and the remaining positional arguments.
func (s *SimpleCommand) Run(name string, args []string, callback func(stdout, stderr io.Writer, args []string) int) run.Result {
	opts := s.Flags()
	showHelp := opts.BoolLong("help", 'h', "show this help and exit")

	var stdout, stderr strings.Builder

	argv := append([]string{name}, args...)
	if err := opts.Getopt(argv, nil); err != nil {
		fmt.Fprintf(&stderr, "%s: %v\n", name, err)
		s.PrintHelp(&stderr)
		return run.Result{ExitCode: run.ExitUsage, Stderr: stderr.String()}
	}

	if *showHelp {
		s.PrintHelp(&stdout)
		return run.Result{ExitCode: run.ExitSuccess, Stdout: stdout.String()}
	}

	code := callback(&stdout, &stderr, opts.Args())
	return run.Result{
		ExitCode: code,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
}

// failf is shorthand for an error result.
func failf(code int, format string, a ...interface{}) run.Result {
	return run.Result{ExitCode: code, Stderr: fmt.Sprintf(format, a...)}
}

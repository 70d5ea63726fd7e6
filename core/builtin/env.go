package builtin

import (
	"fmt"
	"sort"
	"strings"

	"josephlewis.net/gosh/core/run"
)

// Export sets environment variables, or lists them when called bare.
func Export(args []string, ctx run.Context) run.Result {
	if len(args) == 0 {
		return envList(ctx, "declare -x ")
	}

	for _, arg := range args {
		split := strings.SplitN(arg, "=", 2)
		key, value := split[0], ""
		if len(split) > 1 {
			value = split[1]
		}
		if key == "" {
			return failf(run.ExitUsage, "export: `%s': not a valid identifier\n", arg)
		}
		if len(split) == 1 {
			// Exporting an existing name without a value is a no-op
			// here; every shell variable is already exported.
			continue
		}
		ctx.Setenv(key, value)
	}
	return run.Result{ExitCode: run.ExitSuccess}
}

// Unset removes environment variables.
func Unset(args []string, ctx run.Context) run.Result {
	for _, key := range args {
		ctx.Unsetenv(key)
	}
	return run.Result{ExitCode: run.ExitSuccess}
}

// Env prints the environment.
func Env(args []string, ctx run.Context) run.Result {
	return envList(ctx, "")
}

func envList(ctx run.Context, prefix string) run.Result {
	environ := ctx.Environ()
	sort.Strings(environ)

	var out strings.Builder
	for _, kv := range environ {
		fmt.Fprintf(&out, "%s%s\n", prefix, kv)
	}
	return run.Result{ExitCode: run.ExitSuccess, Stdout: out.String()}
}

// Set toggles shell options: set -o pipefail, set +o stream.
func Set(args []string, ctx run.Context) run.Result {
	opts := ctx.Options()

	if len(args) == 0 {
		var out strings.Builder
		fmt.Fprintf(&out, "pipefail\t%s\n", onOff(opts.Pipefail))
		fmt.Fprintf(&out, "stream\t%s\n", onOff(opts.Stream))
		return run.Result{ExitCode: run.ExitSuccess, Stdout: out.String()}
	}

	i := 0
	for i < len(args) {
		enable := false
		switch args[i] {
		case "-o":
			enable = true
		case "+o":
			enable = false
		default:
			return failf(run.ExitUsage, "set: usage: set [-o|+o] option\n")
		}
		if i+1 >= len(args) {
			return failf(run.ExitUsage, "set: %s requires an option name\n", args[i])
		}

		switch args[i+1] {
		case "pipefail":
			opts.Pipefail = enable
		case "stream":
			opts.Stream = enable
		default:
			return failf(run.ExitUsage, "set: unknown option %q\n", args[i+1])
		}
		i += 2
	}
	return run.Result{ExitCode: run.ExitSuccess}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// History prints the numbered command history.
func History(args []string, ctx run.Context) run.Result {
	var out strings.Builder
	for i, line := range ctx.History() {
		fmt.Fprintf(&out, "%5d  %s\n", i+1, line)
	}
	return run.Result{ExitCode: run.ExitSuccess, Stdout: out.String()}
}

// Type reports how each name would be resolved.
func Type(args []string, ctx run.Context) run.Result {
	var stdout strings.Builder
	var stderr strings.Builder
	code := run.ExitSuccess

	for _, name := range args {
		switch {
		case hasAlias(ctx, name):
			value, _ := ctx.LookupAlias(name)
			fmt.Fprintf(&stdout, "%s is aliased to `%s'\n", name, value)
		case ctx.Builtins()[name] != nil:
			fmt.Fprintf(&stdout, "%s is a shell builtin\n", name)
		case pluginHas(ctx, name):
			fmt.Fprintf(&stdout, "%s is a plugin command\n", name)
		default:
			if path, err := run.LookPath(ctx.Getenv("PATH"), name); err == nil {
				fmt.Fprintf(&stdout, "%s is %s\n", name, path)
			} else {
				fmt.Fprintf(&stderr, "type: %s: not found\n", name)
				code = run.ExitFailure
			}
		}
	}

	return run.Result{ExitCode: code, Stdout: stdout.String(), Stderr: stderr.String()}
}

func hasAlias(ctx run.Context, name string) bool {
	_, ok := ctx.LookupAlias(name)
	return ok
}

func pluginHas(ctx run.Context, name string) bool {
	_, ok := ctx.Plugins().LookupCommand(name)
	return ok
}

func init() {
	register("export", "Set environment variables.", Export)
	register("unset", "Remove environment variables.", Unset)
	register("env", "Print the environment.", Env)
	register("set", "Toggle shell options such as pipefail.", Set)
	register("history", "Print the command history.", History)
	register("type", "Describe how a command name resolves.", Type)
}

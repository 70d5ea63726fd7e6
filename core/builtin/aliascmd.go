package builtin

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"josephlewis.net/gosh/core/run"
)

// Alias defines aliases, or prints them when called without a value.
func Alias(args []string, ctx run.Context) run.Result {
	if len(args) == 0 {
		return run.Result{ExitCode: run.ExitSuccess, Stdout: aliasListing(ctx, nil)}
	}

	var stdout strings.Builder
	var stderr strings.Builder
	code := run.ExitSuccess

	for _, arg := range args {
		if eq := strings.Index(arg, "="); eq >= 0 {
			name, value := arg[:eq], arg[eq+1:]
			if name == "" {
				fmt.Fprintf(&stderr, "alias: `%s': invalid alias name\n", arg)
				code = run.ExitFailure
				continue
			}
			ctx.SetAlias(name, value)
			continue
		}
		if value, ok := ctx.LookupAlias(arg); ok {
			fmt.Fprintf(&stdout, "alias %s='%s'\n", arg, value)
		} else {
			fmt.Fprintf(&stderr, "alias: %s: not found\n", arg)
			code = run.ExitFailure
		}
	}

	return run.Result{ExitCode: code, Stdout: stdout.String(), Stderr: stderr.String()}
}

// Unalias removes alias definitions.
func Unalias(args []string, ctx run.Context) run.Result {
	cmd := &SimpleCommand{
		Use:   "unalias [-a] name [name ...]",
		Short: "Remove aliases.",
	}
	removeAll := cmd.Flags().BoolLong("all", 'a', "remove every alias")

	return cmd.Run("unalias", args, func(stdout, stderr io.Writer, args []string) int {
		if *removeAll {
			for name := range ctx.Aliases() {
				ctx.UnsetAlias(name)
			}
			return run.ExitSuccess
		}
		if len(args) == 0 {
			fmt.Fprintln(stderr, "unalias: usage: unalias [-a] name [name ...]")
			return run.ExitUsage
		}

		code := run.ExitSuccess
		for _, name := range args {
			if !ctx.UnsetAlias(name) {
				fmt.Fprintf(stderr, "unalias: %s: not found\n", name)
				code = run.ExitFailure
			}
		}
		return code
	})
}

// aliasListing renders the alias table sorted by name, one definition per
// line in a form that could be pasted back into the shell.
func aliasListing(ctx run.Context, only []string) string {
	aliases := ctx.Aliases()

	names := only
	if names == nil {
		for name := range aliases {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	var out strings.Builder
	for _, name := range names {
		fmt.Fprintf(&out, "alias %s='%s'\n", name, aliases[name])
	}
	return out.String()
}

func init() {
	register("alias", "Define or display aliases.", Alias)
	register("unalias", "Remove aliases.", Unalias)
}

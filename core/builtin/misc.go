package builtin

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"josephlewis.net/gosh/core/run"
)

// True succeeds.
func True(args []string, ctx run.Context) run.Result {
	return run.Result{ExitCode: run.ExitSuccess}
}

// False fails.
func False(args []string, ctx run.Context) run.Result {
	return run.Result{ExitCode: run.ExitFailure}
}

// Echo writes its arguments to stdout. It parses flags by hand the way
// real echo does, so `echo -x` prints "-x" instead of erroring.
func Echo(args []string, ctx run.Context) run.Result {
	noNewline := false
	interpret := false

	for len(args) > 0 && isEchoFlag(args[0]) {
		for _, c := range args[0][1:] {
			switch c {
			case 'n':
				noNewline = true
			case 'e':
				interpret = true
			case 'E':
				interpret = false
			}
		}
		args = args[1:]
	}

	text := strings.Join(args, " ")
	if interpret {
		text = expandEscapes(text)
	}
	if !noNewline {
		text += "\n"
	}
	return run.Result{ExitCode: run.ExitSuccess, Stdout: text}
}

// isEchoFlag reports whether arg is a run of echo's flag characters.
func isEchoFlag(arg string) bool {
	if len(arg) < 2 || arg[0] != '-' {
		return false
	}
	for _, c := range arg[1:] {
		switch c {
		case 'n', 'e', 'E':
		default:
			return false
		}
	}
	return true
}

// expandEscapes interprets the backslash escapes echo -e supports.
func expandEscapes(s string) string {
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			out.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			out.WriteByte('\n')
		case 't':
			out.WriteByte('\t')
		case 'r':
			out.WriteByte('\r')
		case 'a':
			out.WriteByte('\a')
		case 'b':
			out.WriteByte('\b')
		case 'f':
			out.WriteByte('\f')
		case 'v':
			out.WriteByte('\v')
		case 'e':
			out.WriteByte(0x1b)
		case '\\':
			out.WriteByte('\\')
		case '0':
			// Up to three octal digits.
			j := i + 1
			for j < len(s) && j <= i+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			if n, err := strconv.ParseUint(s[i+1:j], 8, 8); err == nil && j > i+1 {
				out.WriteByte(byte(n))
				i = j - 1
			} else {
				out.WriteByte(0)
			}
		default:
			out.WriteByte('\\')
			out.WriteByte(s[i])
		}
	}
	return out.String()
}

// Exit asks the shell to terminate after the current line.
func Exit(args []string, ctx run.Context) run.Result {
	code := run.ExitSuccess
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			ctx.RequestExit(run.ExitUsage)
			return failf(run.ExitUsage, "exit: %s: numeric argument required\n", args[0])
		}
		code = n & 0xff
	}
	ctx.RequestExit(code)
	return run.Result{ExitCode: code}
}

// Help lists the available builtins with their descriptions.
func Help(args []string, ctx run.Context) run.Result {
	builtins := ctx.Builtins()

	var names []string
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)

	var out strings.Builder
	w := tabwriter.NewWriter(&out, 0, 4, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%s\n", name, builtins[name].Description())
	}
	w.Flush()
	return run.Result{ExitCode: run.ExitSuccess, Stdout: out.String()}
}

func init() {
	register("true", "Return success.", True)
	register("false", "Return failure.", False)
	register("echo", "Write arguments to standard output.", Echo)
	register("exit", "Exit the shell.", Exit)
	register("help", "List the available builtins.", Help)
}

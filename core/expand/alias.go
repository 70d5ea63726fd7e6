// Package expand rewrites parsed commands through alias substitution:
// positional and environment parameters, brace expansion, nested pipes and
// sequences, with cycle detection.
package expand

import (
	"strings"

	"josephlewis.net/gosh/core/parse"
	"josephlewis.net/gosh/core/redirect"
)

// Expander resolves command names against an alias table and rewrites the
// command accordingly.
type Expander struct {
	// Lookup consults the alias table.
	Lookup func(name string) (string, bool)
	// Getenv resolves environment variables in replacement text.
	Getenv func(name string) string
	// Getwd resolves the `pwd` and $(pwd) shortcuts.
	Getwd func() string
	// Warnf receives diagnostics such as alias cycles. May be nil.
	Warnf func(format string, args ...interface{})
}

func (e *Expander) warnf(format string, args ...interface{}) {
	if e.Warnf != nil {
		e.Warnf(format, args...)
	}
}

// Expand rewrites cmd through the alias table. Commands whose name has no
// alias are returned untouched.
func (e *Expander) Expand(cmd *parse.Command) *parse.Command {
	return e.expand(cmd, map[string]bool{})
}

func (e *Expander) expand(cmd *parse.Command, visited map[string]bool) *parse.Command {
	if cmd == nil || cmd.Name == "" {
		return cmd
	}

	text, ok := e.Lookup(cmd.Name)
	if !ok {
		return cmd
	}
	if visited[cmd.Name] {
		e.warnf("alias cycle detected for %q, using it literally", cmd.Name)
		return cmd
	}
	visited[cmd.Name] = true

	// An empty replacement shifts the first argument into the command
	// position, or degrades to a no-op when there is nothing to shift.
	if text == "" {
		if len(cmd.Args) == 0 {
			return &parse.Command{
				Name:       "true",
				Raw:        "true",
				Background: cmd.Background,
				Redirs:     cmd.Redirs,
			}
		}
		shifted := &parse.Command{
			Name:       cmd.Args[0],
			Args:       append([]string(nil), cmd.Args[1:]...),
			Raw:        strings.Join(cmd.Args, " "),
			Background: cmd.Background,
			Redirs:     cmd.Redirs,
		}
		return e.expand(shifted, visited)
	}

	endsWithSpace := strings.HasSuffix(text, " ")

	text = e.substituteWorkdir(text)
	text = envVarsUpper(text, e.Getenv)
	text, consumed, hasPositionals := substitutePositionals(text, cmd.Args)

	// Leftover caller arguments are appended verbatim unless the alias
	// placed positionals and did not opt back in with a trailing space.
	if !hasPositionals || endsWithSpace {
		remaining := cmd.Args
		if consumed < len(remaining) {
			remaining = remaining[consumed:]
		} else {
			remaining = nil
		}
		for _, arg := range remaining {
			text = strings.TrimRight(text, " ") + " " + quoteIfNeeded(arg)
		}
	}

	text = bracesInText(text)

	// The replacement may itself be a chain of commands.
	segments := parse.SplitByOperators(text)
	if len(segments) == 0 {
		return cmd
	}

	cmds := make([]*parse.Command, 0, len(segments))
	for _, seg := range segments {
		sub := e.buildSub(seg.Text, visited)
		if sub == nil {
			continue
		}
		cmds = append(cmds, sub)
	}
	if len(cmds) == 0 {
		return cmd
	}

	for i := 0; i < len(cmds)-1; i++ {
		op := segments[i+1].Op
		if op == parse.OpNone {
			op = parse.OpSeq
		}
		cmds[i].Next = &parse.Chained{Op: op, Cmd: cmds[i+1]}
	}

	head := cmds[0]
	head.Background = cmd.Background

	// Caller redirections land on the stage producing the final output,
	// which is the last pipe stage when the replacement ends in a
	// pipeline.
	last := cmds[len(cmds)-1]
	if n := len(last.Pipe); n > 0 {
		last = last.Pipe[n-1]
	}
	last.Redirs = append(last.Redirs, cmd.Redirs...)

	return head
}

// buildSub parses one sub-command of a replacement: stdin file and pipe
// detection, tokenization, and recursive re-resolution of the new name.
func (e *Expander) buildSub(text string, visited map[string]bool) *parse.Command {
	stages := parse.SplitPipes(text)

	head := e.stageCommand(stages[0])
	if head == nil {
		return nil
	}

	for _, stageText := range stages[1:] {
		stage := e.stageCommand(stageText)
		if stage == nil {
			continue
		}
		head.Pipe = append(head.Pipe, e.expand(stage, visited))
	}

	expanded := e.expand(head, visited)
	if expanded != head && len(head.Pipe) > 0 && len(expanded.Pipe) == 0 {
		expanded.Pipe = head.Pipe
	}
	return expanded
}

// stageCommand builds a Command from one pipe stage of replacement text.
// Only unquoted < counts as a stdin redirection; a quoted < is literal.
func (e *Expander) stageCommand(text string) *parse.Command {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	clean := text
	var stdinFile string
	var redirs []*redirect.Redirection

	if parsed, err := redirect.Parse(text); err == nil {
		clean = parsed.Clean
		for _, r := range parsed.Redirections {
			if r.Kind == redirect.KindFile && r.Direction == redirect.Input && stdinFile == "" {
				stdinFile = r.Target
				continue
			}
			redirs = append(redirs, r)
		}
	}

	tokens, err := parse.Tokenize(clean)
	if err != nil || len(tokens) == 0 {
		return nil
	}

	return &parse.Command{
		Name:      tokens[0],
		Args:      tokens[1:],
		Raw:       text,
		StdinFile: stdinFile,
		Redirs:    redirs,
	}
}

// substituteWorkdir replaces the command-substitution shortcuts for the
// working directory.
func (e *Expander) substituteWorkdir(text string) string {
	if !strings.Contains(text, "pwd") {
		return text
	}
	wd := e.Getwd()
	text = strings.ReplaceAll(text, "`pwd`", wd)
	text = strings.ReplaceAll(text, "$(pwd)", wd)
	return text
}

// substitutePositionals replaces $1..$N and $@ with caller arguments.
// Quoted markers like "$1" keep their quotes so a value with spaces stays
// one token. It reports how many arguments were consumed and whether any
// positional appeared at all.
func substitutePositionals(text string, args []string) (string, int, bool) {
	var out strings.Builder

	maxUsed := 0
	usedAll := false
	found := false

	var quote byte
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			out.WriteByte(c)
			escaped = false
		case c == '\\' && quote != '\'':
			out.WriteByte(c)
			escaped = true
		case quote == '\'':
			if c == '\'' {
				quote = 0
			}
			out.WriteByte(c)
		case c == '\'':
			quote = c
			out.WriteByte(c)
		case c == '"':
			// Check for the exact quoted form "$@": each argument
			// becomes its own quoted token.
			if quote == 0 && strings.HasPrefix(text[i:], `"$@"`) {
				quoted := make([]string, len(args))
				for j, a := range args {
					quoted[j] = `"` + a + `"`
				}
				out.WriteString(strings.Join(quoted, " "))
				usedAll = true
				found = true
				i += 3
				continue
			}
			if quote == '"' {
				quote = 0
			} else {
				quote = c
			}
			out.WriteByte(c)
		case c == '$' && i+1 < len(text) && text[i+1] == '@':
			out.WriteString(strings.Join(args, " "))
			usedAll = true
			found = true
			i++
		case c == '$' && i+1 < len(text) && text[i+1] >= '1' && text[i+1] <= '9':
			j := i + 1
			for j < len(text) && text[j] >= '0' && text[j] <= '9' {
				j++
			}
			n := 0
			for _, d := range text[i+1 : j] {
				n = n*10 + int(d-'0')
			}
			if n <= len(args) {
				out.WriteString(args[n-1])
			}
			if n > maxUsed {
				maxUsed = n
			}
			found = true
			i = j - 1
		default:
			out.WriteByte(c)
		}
	}

	consumed := maxUsed
	if usedAll {
		consumed = len(args)
	}
	return out.String(), consumed, found
}

func quoteIfNeeded(arg string) string {
	if strings.ContainsAny(arg, " \t") {
		return `"` + arg + `"`
	}
	return arg
}

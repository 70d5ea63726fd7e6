// Package parse turns raw input lines into pipelines of commands with
// their redirections, honoring shell quoting and escaping rules.
package parse

import (
	"strings"

	"josephlewis.net/gosh/core/redirect"
)

// Command is one pipeline stage. Alias expansion may attach a chain of
// follow-up commands via Next or an inner pipeline via Pipe.
type Command struct {
	Name       string
	Args       []string
	Background bool
	// Raw is the original text of this stage, redirections included.
	Raw string
	// StdinFile is set when alias expansion found an unquoted < inside
	// the replacement text.
	StdinFile string
	Redirs    []*redirect.Redirection
	// Pipe holds downstream pipeline stages created by alias expansion.
	Pipe []*Command
	Next *Chained
}

// Chained links a command to the one that follows it and the operator
// joining them.
type Chained struct {
	Op  Op
	Cmd *Command
}

// ParsedCommand is the parse result for one segment: the pipeline stages
// and the redirections of the final stage.
type ParsedCommand struct {
	Commands     []*Command
	Redirections []*redirect.Redirection
}

// Empty reports whether the segment contained no command at all.
func (p *ParsedCommand) Empty() bool {
	return len(p.Commands) == 0
}

// PendingHeredoc returns the first here-doc still waiting for its
// delimiter, if any. The caller is expected to keep feeding input lines to
// it before executing.
func (p *ParsedCommand) PendingHeredoc() *redirect.Redirection {
	for _, c := range p.Commands {
		for _, r := range c.Redirs {
			if r.Kind == redirect.KindHereDoc && !r.Complete {
				return r
			}
		}
	}
	return nil
}

// Parse parses one segment into a ParsedCommand. Empty or whitespace-only
// input parses to a no-op with no commands.
func Parse(input string) (*ParsedCommand, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return &ParsedCommand{}, nil
	}

	if idx, ok := unterminatedQuote(input); ok {
		return nil, &ParseError{Input: input, Index: idx, Msg: "unterminated quoted string"}
	}

	// A trailing unquoted & backgrounds the whole pipeline.
	background := false
	if strings.HasSuffix(trimmed, "&") && !strings.HasSuffix(trimmed, "\\&") {
		background = true
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "&"))
		if trimmed == "" {
			return nil, &ParseError{Input: input, Index: 0, Msg: "syntax error near unexpected token `&'"}
		}
	}

	stageTexts := SplitPipes(trimmed)
	out := &ParsedCommand{}

	for _, stageText := range stageTexts {
		if strings.TrimSpace(stageText) == "" {
			idx := len(input)
			if i := IndexUnquoted(trimmed, '|'); i >= 0 && strings.TrimSpace(trimmed[:i]) == "" {
				idx = i
			}
			return nil, &ParseError{Input: input, Index: idx, Msg: "syntax error near unexpected token `|'"}
		}

		parsed, err := redirect.Parse(stageText)
		if err != nil {
			return nil, &ParseError{Input: input, Index: len(input), Msg: err.Error()}
		}

		tokens, err := Tokenize(parsed.Clean)
		if err != nil {
			return nil, err
		}
		if len(tokens) == 0 && len(parsed.Redirections) == 0 {
			continue
		}

		cmd := &Command{
			Raw:        strings.TrimSpace(stageText),
			Background: background,
			Redirs:     parsed.Redirections,
		}
		if len(tokens) > 0 {
			cmd.Name = tokens[0]
			cmd.Args = tokens[1:]
		}
		out.Commands = append(out.Commands, cmd)
	}

	if len(out.Commands) > 0 {
		out.Redirections = out.Commands[len(out.Commands)-1].Redirs
	}
	return out, nil
}

// Tokenize splits s into words. Whitespace separates tokens outside
// quotes, both quote styles group, and backslash escapes the next
// character outside quotes and inside double quotes only.
func Tokenize(s string) ([]string, error) {
	var tokens []string
	var b strings.Builder
	haveToken := false

	flush := func() {
		if haveToken || b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
			haveToken = false
		}
	}

	var quote byte
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		switch {
		case escaped:
			b.WriteByte(c)
			escaped = false
		case c == '\\' && quote != '\'':
			escaped = true
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				b.WriteByte(c)
			}
		case c == '\'' || c == '"':
			quote = c
			haveToken = true
		case c == ' ' || c == '\t':
			flush()
		default:
			b.WriteByte(c)
		}
	}

	if quote != 0 {
		return nil, &ParseError{Input: s, Index: len(s), Msg: "unterminated quoted string"}
	}
	flush()

	return tokens, nil
}

// unterminatedQuote scans the whole input and reports whether a quote is
// still open at the end. The index points just past the final character.
func unterminatedQuote(s string) (int, bool) {
	var quote byte
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && quote != '\'':
			escaped = true
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		}
	}

	if quote != 0 {
		return len(s), true
	}
	return 0, false
}

package parse

import "strings"

// Op is a chaining operator between segments.
type Op string

const (
	OpNone Op = ""
	OpSeq  Op = ";"
	OpAnd  Op = "&&"
	OpOr   Op = "||"
)

// Segment is one chunk of an input line together with the operator that
// immediately preceded it (OpNone for the first).
type Segment struct {
	Text string
	Op   Op
}

// SplitByOperators splits input on unquoted ;, && and ||. Newlines behave
// like ;. Operators inside quotes or escaped with a backslash are literal.
// A solitary & is a backgrounding marker, not an operator, and is only
// treated as such when it is not immediately followed by another &.
func SplitByOperators(input string) []Segment {
	var out []Segment
	var b strings.Builder

	pendingOp := OpNone
	emit := func(next Op) {
		text := strings.TrimSpace(b.String())
		b.Reset()
		if text != "" {
			out = append(out, Segment{Text: text, Op: pendingOp})
		}
		pendingOp = next
	}

	var quote byte
	escaped := false
	n := len(input)

	for i := 0; i < n; i++ {
		c := input[i]

		switch {
		case escaped:
			b.WriteByte(c)
			escaped = false
		case c == '\\' && quote != '\'':
			b.WriteByte(c)
			escaped = true
		case quote != 0:
			if c == quote {
				quote = 0
			}
			b.WriteByte(c)
		case c == '\'' || c == '"':
			quote = c
			b.WriteByte(c)
		case c == '&' && i+1 < n && input[i+1] == '&':
			emit(OpAnd)
			i++
		case c == '|' && i+1 < n && input[i+1] == '|':
			emit(OpOr)
			i++
		case c == ';' || c == '\n':
			emit(OpSeq)
		default:
			b.WriteByte(c)
		}
	}
	emit(OpNone)

	return out
}

// SplitPipes splits s on unquoted single | characters. A || pair is not a
// pipe and passes through as literal text.
func SplitPipes(s string) []string {
	var out []string
	var b strings.Builder

	var quote byte
	escaped := false
	n := len(s)

	for i := 0; i < n; i++ {
		c := s[i]

		switch {
		case escaped:
			b.WriteByte(c)
			escaped = false
		case c == '\\' && quote != '\'':
			b.WriteByte(c)
			escaped = true
		case quote != 0:
			if c == quote {
				quote = 0
			}
			b.WriteByte(c)
		case c == '\'' || c == '"':
			quote = c
			b.WriteByte(c)
		case c == '|' && i+1 < n && s[i+1] == '|':
			b.WriteByte(c)
			b.WriteByte(s[i+1])
			i++
		case c == '|':
			out = append(out, b.String())
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	out = append(out, b.String())

	return out
}

// IndexUnquoted returns the index of the first unquoted, unescaped
// occurrence of target in s, or -1.
func IndexUnquoted(s string, target byte) int {
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
		case c == target:
			return i
		}
	}
	return -1
}

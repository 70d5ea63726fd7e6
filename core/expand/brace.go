package expand

import (
	"fmt"
	"strconv"
	"strings"
)

// Braces performs brace expansion on a single word, returning the list of
// words it produces. Words without an expandable brace group are returned
// unchanged. Supported forms are comma lists ({a,b,c}) and numeric or
// single-letter ranges ({1..5}, {a..e}), both directions.
func Braces(word string) []string {
	open, inner, rest, ok := findBraceGroup(word)
	if !ok {
		return []string{word}
	}

	prefix := word[:open]
	parts := braceParts(inner)
	if parts == nil {
		return []string{word}
	}

	var out []string
	for _, part := range parts {
		// The suffix may hold further brace groups.
		for _, tail := range Braces(rest) {
			out = append(out, prefix+part+tail)
		}
	}
	return out
}

// findBraceGroup locates the first unquoted { ... } pair in word.
func findBraceGroup(word string) (open int, inner, rest string, ok bool) {
	var quote byte
	escaped := false

	for i := 0; i < len(word); i++ {
		c := word[i]
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
		case c == '{':
			if end := strings.IndexByte(word[i:], '}'); end > 0 {
				return i, word[i+1 : i+end], word[i+end+1:], true
			}
		}
	}
	return 0, "", "", false
}

// braceParts interprets the text between braces. It returns nil when the
// content is not an expandable group.
func braceParts(inner string) []string {
	if from, to, ok := parseRange(inner); ok {
		return rangeParts(from, to)
	}
	if strings.Contains(inner, ",") {
		return strings.Split(inner, ",")
	}
	return nil
}

func parseRange(inner string) (from, to string, ok bool) {
	idx := strings.Index(inner, "..")
	if idx <= 0 || idx+2 >= len(inner) {
		return "", "", false
	}
	return inner[:idx], inner[idx+2:], true
}

func rangeParts(from, to string) []string {
	if a, errA := strconv.Atoi(from); errA == nil {
		b, errB := strconv.Atoi(to)
		if errB != nil {
			return nil
		}
		var out []string
		if a <= b {
			for i := a; i <= b; i++ {
				out = append(out, fmt.Sprintf("%d", i))
			}
		} else {
			for i := a; i >= b; i-- {
				out = append(out, fmt.Sprintf("%d", i))
			}
		}
		return out
	}

	if len(from) == 1 && len(to) == 1 && isLetter(from[0]) && isLetter(to[0]) {
		a, b := from[0], to[0]
		var out []string
		if a <= b {
			for c := a; c <= b; c++ {
				out = append(out, string(c))
			}
		} else {
			for c := a; c >= b; c-- {
				out = append(out, string(c))
			}
		}
		return out
	}

	return nil
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// bracesInText applies brace expansion to every unquoted word of text.
func bracesInText(text string) string {
	words := splitWordsKeepQuotes(text)
	var out []string
	for _, w := range words {
		if strings.ContainsAny(w, "{}") && !startsQuoted(w) {
			out = append(out, Braces(w)...)
		} else {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}

func startsQuoted(w string) bool {
	return len(w) > 0 && (w[0] == '\'' || w[0] == '"')
}

// splitWordsKeepQuotes splits on unquoted whitespace but keeps quote
// characters in place so later tokenization sees them.
func splitWordsKeepQuotes(text string) []string {
	var out []string
	var b strings.Builder

	flush := func() {
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}

	var quote byte
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
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
		case c == ' ' || c == '\t':
			flush()
		default:
			b.WriteByte(c)
		}
	}
	flush()

	return out
}

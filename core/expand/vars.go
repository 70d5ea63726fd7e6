package expand

import "strings"

// Vars expands $NAME references in s using getenv. Text inside single
// quotes is left alone; references inside double quotes expand. Unknown
// variables expand to the empty string, matching shell behavior.
func Vars(s string, getenv func(string) string) string {
	var out strings.Builder

	var quote byte
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
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
			if quote == '"' {
				quote = 0
			} else {
				quote = c
			}
			out.WriteByte(c)
		case c == '$':
			name, width := readVarName(s[i+1:], false)
			if width == 0 {
				out.WriteByte(c)
				continue
			}
			out.WriteString(getenv(name))
			i += width
		default:
			out.WriteByte(c)
		}
	}

	return out.String()
}

// envVarsUpper expands only $NAME references whose name matches
// [A-Z_][A-Z0-9_]*, the form allowed inside alias replacement text.
// Positional parameters ($1, $@) are left for the positional pass.
func envVarsUpper(s string, getenv func(string) string) string {
	var out strings.Builder

	var quote byte
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
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
			if quote == '"' {
				quote = 0
			} else {
				quote = c
			}
			out.WriteByte(c)
		case c == '$':
			name, width := readVarName(s[i+1:], true)
			if width == 0 {
				out.WriteByte(c)
				continue
			}
			out.WriteString(getenv(name))
			i += width
		default:
			out.WriteByte(c)
		}
	}

	return out.String()
}

// readVarName reads a variable name. When upperOnly is set the name must
// match [A-Z_][A-Z0-9_]*, otherwise [A-Za-z_][A-Za-z0-9_]*.
func readVarName(s string, upperOnly bool) (string, int) {
	first := func(c byte) bool {
		if c == '_' || (c >= 'A' && c <= 'Z') {
			return true
		}
		return !upperOnly && c >= 'a' && c <= 'z'
	}
	rest := func(c byte) bool {
		return first(c) || (c >= '0' && c <= '9')
	}

	if len(s) == 0 || !first(s[0]) {
		return "", 0
	}
	i := 1
	for i < len(s) && rest(s[i]) {
		i++
	}
	return s[:i], i
}

// Package redirect parses shell redirection operators out of raw command
// text and applies them to spawned processes or buffered builtin output.
package redirect

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Kind describes how a redirection's target is interpreted.
type Kind string

const (
	// KindFile redirections read from or write to a file path.
	KindFile Kind = "file"
	// KindFd redirections duplicate or close a file descriptor.
	KindFd Kind = "fd"
	// KindHereString feeds a literal string as stdin.
	KindHereString Kind = "here-string"
	// KindHereDoc feeds lines up to a delimiter as stdin.
	KindHereDoc Kind = "here-doc"
)

// Direction describes which stream a redirection affects.
type Direction string

const (
	Input       Direction = "input"
	Output      Direction = "output"
	Append      Direction = "append"
	Error       Direction = "error"
	ErrorAppend Direction = "error-append"
	Both        Direction = "both"
	Close       Direction = "close"
)

// Redirection is a single parsed redirection operator.
//
// Fd is only meaningful for KindFd and holds the source descriptor; Target
// then holds the destination descriptor ("1", "2") or "-" for close.
// Delimiter is only meaningful for KindHereDoc.
type Redirection struct {
	Kind      Kind
	Direction Direction
	Target    string
	Fd        int
	Delimiter string
	// Complete reports whether a here-doc has seen its closing delimiter.
	Complete bool
}

// AddLine appends one line of here-doc body. It returns true when the
// delimiter line was consumed and the here-doc is complete.
func (r *Redirection) AddLine(line string) bool {
	if r.Kind != KindHereDoc || r.Complete {
		return r.Complete
	}
	if line == r.Delimiter {
		r.Complete = true
		return true
	}
	r.Target += line + "\n"
	return false
}

// Parsed is the result of extracting redirections from raw command text.
type Parsed struct {
	// Clean is the command text with all redirection operators and their
	// operands removed.
	Clean        string
	Redirections []*Redirection
}

// Pending returns the first incomplete here-doc, if any.
func (p *Parsed) Pending() *Redirection {
	for _, r := range p.Redirections {
		if r.Kind == KindHereDoc && !r.Complete {
			return r
		}
	}
	return nil
}

// Parse extracts redirection operators from raw command text. Operators
// inside single or double quotes are left alone.
func Parse(raw string) (*Parsed, error) {
	out := &Parsed{}
	var clean strings.Builder

	var quote byte
	escaped := false
	i := 0
	n := len(raw)

	for i < n {
		c := raw[i]

		switch {
		case escaped:
			clean.WriteByte(c)
			escaped = false
			i++
			continue
		case c == '\\' && quote != '\'':
			clean.WriteByte(c)
			escaped = true
			i++
			continue
		case quote != 0:
			if c == quote {
				quote = 0
			}
			clean.WriteByte(c)
			i++
			continue
		case c == '\'' || c == '"':
			quote = c
			clean.WriteByte(c)
			i++
			continue
		}

		r, width, err := matchOperator(raw, i)
		if err != nil {
			return nil, err
		}
		if r == nil {
			clean.WriteByte(c)
			i++
			continue
		}

		i += width
		if needsTarget(r) {
			target, next, err := readTarget(raw, i)
			if err != nil {
				return nil, err
			}
			if r.Kind == KindHereDoc {
				r.Delimiter = target
			} else {
				r.Target = target
			}
			i = next
		}
		out.Redirections = append(out.Redirections, r)
	}

	out.Clean = strings.TrimSpace(clean.String())
	return out, nil
}

// matchOperator tries to read a redirection operator at raw[i]. It returns
// the redirection (nil if none matched) and the operator's width.
func matchOperator(raw string, i int) (*Redirection, int, error) {
	rest := raw[i:]

	// N>&M, N>&-, optionally preceded by a digit. A bare >&M duplicates
	// fd 1, a bare >&- closes it.
	if fd, dst, width, ok := matchFdDup(rest); ok {
		r := &Redirection{Kind: KindFd, Fd: fd, Target: dst}
		switch dst {
		case "-":
			r.Direction = Close
		case "2":
			r.Direction = Error
		default:
			r.Direction = Output
		}
		return r, width, nil
	}

	switch {
	case strings.HasPrefix(rest, "2>>"):
		return &Redirection{Kind: KindFile, Direction: ErrorAppend}, 3, nil
	case strings.HasPrefix(rest, "2>"):
		return &Redirection{Kind: KindFile, Direction: Error}, 2, nil
	case strings.HasPrefix(rest, "&>") || strings.HasPrefix(rest, ">&"):
		return &Redirection{Kind: KindFile, Direction: Both}, 2, nil
	case strings.HasPrefix(rest, ">>"):
		return &Redirection{Kind: KindFile, Direction: Append}, 2, nil
	case strings.HasPrefix(rest, "1>"):
		return &Redirection{Kind: KindFile, Direction: Output}, 2, nil
	case strings.HasPrefix(rest, ">"):
		return &Redirection{Kind: KindFile, Direction: Output}, 1, nil
	case strings.HasPrefix(rest, "<<<"):
		return &Redirection{Kind: KindHereString, Direction: Input}, 3, nil
	case strings.HasPrefix(rest, "<<"):
		return &Redirection{Kind: KindHereDoc, Direction: Input}, 2, nil
	case strings.HasPrefix(rest, "<"):
		return &Redirection{Kind: KindFile, Direction: Input}, 1, nil
	}

	return nil, 0, nil
}

// matchFdDup matches the N>&M / N>&- family at the start of s.
func matchFdDup(s string) (fd int, dst string, width int, ok bool) {
	fd = 1
	width = 0

	if len(s) > 0 && s[0] >= '0' && s[0] <= '9' {
		fd = int(s[0] - '0')
		s = s[1:]
		width = 1
	}

	if !strings.HasPrefix(s, ">&") {
		return 0, "", 0, false
	}
	s = s[2:]
	width += 2

	switch {
	case len(s) > 0 && s[0] >= '0' && s[0] <= '9':
		return fd, string(s[0]), width + 1, true
	case len(s) > 0 && s[0] == '-':
		return fd, "-", width + 1, true
	}
	return 0, "", 0, false
}

func needsTarget(r *Redirection) bool {
	return r.Kind != KindFd
}

// readTarget reads the word following a redirection operator, stripping one
// layer of surrounding matching quotes.
func readTarget(raw string, i int) (string, int, error) {
	n := len(raw)
	for i < n && (raw[i] == ' ' || raw[i] == '\t') {
		i++
	}
	if i >= n {
		return "", i, fmt.Errorf("redirect: missing target after operator")
	}

	if q := raw[i]; q == '\'' || q == '"' {
		end := strings.IndexByte(raw[i+1:], q)
		if end < 0 {
			return "", i, fmt.Errorf("redirect: unterminated quoted target")
		}
		return raw[i+1 : i+1+end], i + end + 2, nil
	}

	start := i
	for i < n && raw[i] != ' ' && raw[i] != '\t' {
		i++
	}
	return raw[start:i], i, nil
}

// HasInput reports whether the list contains a stdin redirection.
func HasInput(redirs []*Redirection) bool {
	for _, r := range redirs {
		if r.Direction == Input {
			return true
		}
	}
	return false
}

// StdoutDiverted reports whether stdout no longer reaches the default
// destination: redirected to a file, closed, or duplicated onto stderr.
func StdoutDiverted(redirs []*Redirection) bool {
	for _, r := range redirs {
		switch {
		case r.Kind == KindFile && (r.Direction == Output || r.Direction == Append || r.Direction == Both):
			return true
		case r.Kind == KindFd && r.Fd == 1 && (r.Direction == Close || r.Target == "2"):
			return true
		}
	}
	return false
}

// resolve makes target an absolute path relative to cwd.
func resolve(target, cwd string) string {
	if filepath.IsAbs(target) || cwd == "" {
		return target
	}
	return filepath.Join(cwd, target)
}

// StdinReader builds the stdin source described by the redirection list.
// The second return is false when the list contains no input redirection.
func StdinReader(redirs []*Redirection, cwd string, fs afero.Fs) (string, bool, error) {
	for _, r := range redirs {
		if r.Direction != Input {
			continue
		}
		switch r.Kind {
		case KindFile:
			content, err := afero.ReadFile(fs, resolve(r.Target, cwd))
			if err != nil {
				return "", true, err
			}
			return string(content), true, nil
		case KindHereString:
			return r.Target + "\n", true, nil
		case KindHereDoc:
			return r.Target, true, nil
		}
	}
	return "", false, nil
}

// openOut opens a file target for writing, truncating or appending.
func openOut(fs afero.Fs, path string, appendTo bool) (afero.File, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if appendTo {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	return fs.OpenFile(path, flags, 0644)
}

// WriteFileTargets writes buffered stdout/stderr into the file targets in
// the list, clearing each buffer that was diverted. This is the buffered
// builtin analog of wiring file descriptors: fd duplication becomes buffer
// concatenation and fd close discards the buffer.
func WriteFileTargets(stdout, stderr *string, redirs []*Redirection, cwd string, fs afero.Fs) error {
	for _, r := range redirs {
		switch r.Kind {
		case KindFile:
			if r.Direction == Input {
				continue
			}
			f, err := openOut(fs, resolve(r.Target, cwd), r.Direction == Append || r.Direction == ErrorAppend)
			if err != nil {
				return err
			}
			switch r.Direction {
			case Output, Append:
				_, err = f.WriteString(*stdout)
				*stdout = ""
			case Error, ErrorAppend:
				_, err = f.WriteString(*stderr)
				*stderr = ""
			case Both:
				// Interleaving approximation: stdout fully, then stderr.
				if _, err = f.WriteString(*stdout); err == nil {
					_, err = f.WriteString(*stderr)
				}
				*stdout = ""
				*stderr = ""
			}
			f.Close()
			if err != nil {
				return err
			}

		case KindFd:
			switch {
			case r.Direction == Close && r.Fd == 1:
				*stdout = ""
			case r.Direction == Close && r.Fd == 2:
				*stderr = ""
			case r.Fd == 2 && r.Target == "1":
				*stdout += *stderr
				*stderr = ""
			case r.Fd == 1 && r.Target == "2":
				*stderr += *stdout
				*stdout = ""
			}
		}
	}
	return nil
}

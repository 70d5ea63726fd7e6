package parse

import (
	"fmt"
	"strings"
)

// ParseError reports a syntax problem at a character index of the input.
type ParseError struct {
	Input string
	Index int
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s at index %d", e.Msg, e.Index)
}

// Caret renders the offending input with a caret line pointing at Index.
func (e *ParseError) Caret() string {
	idx := e.Index
	if idx > len(e.Input) {
		idx = len(e.Input)
	}
	if idx < 0 {
		idx = 0
	}
	return e.Input + "\n" + strings.Repeat(" ", idx) + "^"
}

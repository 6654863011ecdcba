package cfg

import (
	"fmt"
	"strings"
)

// PrettyPrint renders a ParseError the way cfg_pretty_print_error does: the
// message, then the offending line with a caret under the column.
func PrettyPrint(src string, err *ParseError) string {
	lines := strings.Split(src, "\n")

	var b strings.Builder
	fmt.Fprintf(&b, "config:%d:%d: error: %s\n", err.Line, err.Column, err.Message)

	lineIdx := err.Line - 1
	if lineIdx < 0 || lineIdx >= len(lines) {
		return b.String()
	}

	line := lines[lineIdx]
	b.WriteString(line)
	b.WriteByte('\n')

	col := err.Column
	if col > len(line) {
		col = len(line)
	}
	if col < 0 {
		col = 0
	}
	b.WriteString(strings.Repeat(" ", col))
	b.WriteByte('^')

	return b.String()
}

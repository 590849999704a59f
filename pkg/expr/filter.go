package expr

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// ellipsis is appended by the max filter when a value is truncated.
const ellipsis = "…"

// filter is one |name:arg segment of a placeholder.
type filter struct {
	name string
	arg  string
}

func (f filter) known() bool {
	switch f.name {
	case "def", "max", "align":
		return true
	}
	return false
}

// apply runs the filter. Unknown filters pass the value through.
func (f filter) apply(v string) string {
	switch f.name {
	case "def":
		if v == "" {
			return f.arg
		}
		return v
	case "max":
		return truncate(v, f.arg)
	case "align":
		return align(v, f.arg)
	}
	return v
}

// truncate cuts the value to at most n runes and appends an ellipsis.
// Values already within the limit pass through unchanged.
func truncate(v, arg string) string {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n < 0 {
		return v
	}
	runes := []rune(v)
	if len(runes) <= n {
		return v
	}
	return string(runes[:n]) + ellipsis
}

// align pads the value to a fixed width. The argument is
// <filler><dir><width> where dir is '<' (pad on the right), '^'
// (center) or '>' (pad on the left). Values at or above the width pass
// through unchanged. For '^' with an odd amount of padding, the extra
// filler character goes on the right.
func align(v, arg string) string {
	filler, size := utf8.DecodeRuneInString(arg)
	if size == 0 || filler == utf8.RuneError {
		return v
	}
	rest := arg[size:]
	if rest == "" {
		return v
	}
	dir := rest[0]
	width, err := strconv.Atoi(rest[1:])
	if err != nil || width <= 0 {
		return v
	}
	length := utf8.RuneCountInString(v)
	if length >= width {
		return v
	}
	pad := width - length
	switch dir {
	case '<':
		return v + strings.Repeat(string(filler), pad)
	case '>':
		return strings.Repeat(string(filler), pad) + v
	case '^':
		left := pad / 2
		return strings.Repeat(string(filler), left) + v + strings.Repeat(string(filler), pad-left)
	}
	return v
}

package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// NumberKind declares how a number block's raw resolved string is
// parsed.
type NumberKind string

const (
	// NumberPlain parses a plain decimal number.
	NumberPlain NumberKind = "number"
	// NumberPercent strips a literal trailing '%' if present.
	NumberPercent NumberKind = "percent"
	// NumberBytes parses byte sizes with decimal (kB, GB: powers of
	// 1000) or binary (KiB, GiB: powers of 1024) suffixes.
	NumberBytes NumberKind = "bytes"
)

// ParseNumberKind validates a configured kind string. Empty means
// plain.
func ParseNumberKind(s string) (NumberKind, error) {
	switch NumberKind(s) {
	case "", NumberPlain:
		return NumberPlain, nil
	case NumberPercent:
		return NumberPercent, nil
	case NumberBytes:
		return NumberBytes, nil
	}
	return NumberPlain, fmt.Errorf("unknown number kind %q", s)
}

// ParseNumber parses a raw display string according to the kind.
// Callers treat any error as the sentinel value 0; a malformed
// upstream number must never crash the render path.
func ParseNumber(kind NumberKind, raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	switch kind {
	case NumberPercent:
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
		return strconv.ParseFloat(s, 64)
	case NumberBytes:
		n, err := humanize.ParseBytes(s)
		if err != nil {
			return 0, fmt.Errorf("parse bytes %q: %w", raw, err)
		}
		return float64(n), nil
	default:
		return strconv.ParseFloat(s, 64)
	}
}

// RampEntry maps a numeric threshold to a display format. The format
// template sees the current display string as ${value}.
type RampEntry struct {
	Threshold float64
	Format    *Template
}

// SelectRamp picks the entry with the largest threshold not exceeding
// value. Entries must be sorted ascending by threshold. Returns nil if
// no entry qualifies.
func SelectRamp(entries []RampEntry, value float64) *Template {
	var chosen *Template
	for i := range entries {
		if entries[i].Threshold <= value {
			chosen = entries[i].Format
		} else {
			break
		}
	}
	return chosen
}

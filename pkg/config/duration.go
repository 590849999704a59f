package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration that decodes from TOML strings such as
// "500ms", "5s" or "1m". Declarations use it for restart intervals and
// popup dwell times; the zero value means "unset" and callers apply
// their own defaults via RestartInterval and DwellOrDefault.
type Duration struct {
	time.Duration
}

// UnmarshalText decodes a Go duration string. Empty means unset;
// negative durations are rejected at load time so the supervisor and
// popup timers never see one.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if v < 0 {
		return fmt.Errorf("negative duration %q not allowed", s)
	}
	d.Duration = v
	return nil
}

// MarshalText renders the duration back in Go's notation.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

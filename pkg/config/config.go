// Package config defines the declaration records barkeep runs from:
// commands to supervise, standalone variables, blocks, bars, and the
// default-block cascade. Declarations are loaded from a TOML file and
// merged at load time; the engine compiles them into templates once and
// never re-reads the file.
package config

import (
	"fmt"
	"time"
)

// Format selects how a command's stdout is decoded.
type Format string

const (
	// FormatAuto sniffs the first structural token of the output:
	// a JSON marker selects the structured protocol, anything else the
	// plain format. Once detected the format is fixed until the
	// process restarts.
	FormatAuto Format = "auto"
	// FormatPlain decodes newline-delimited values.
	FormatPlain Format = "plain"
	// FormatStructured decodes the multi-stream JSON protocol.
	FormatStructured Format = "structured"
)

// BlockType is the widget kind of a block.
type BlockType string

const (
	BlockText   BlockType = "text"
	BlockNumber BlockType = "number"
	BlockEnum   BlockType = "enum"
	BlockImage  BlockType = "image"
)

// PopupMode is the scope a popup trigger re-opens.
type PopupMode string

const (
	// PopupBlock pops only the triggering block.
	PopupBlock PopupMode = "block"
	// PopupPartialBar pops the contiguous run of blocks between the
	// nearest separator blocks.
	PopupPartialBar PopupMode = "partial_bar"
	// PopupBar pops the whole bar.
	PopupBar PopupMode = "bar"
)

// Command declares one supervised external process.
type Command struct {
	Name    string   `toml:"name"`
	Command string   `toml:"command"`
	// Interval is the delay between one process exiting and the next
	// launch. Zero means 10 seconds.
	Interval Duration `toml:"interval"`
	// LineNames groups plain-format output into repeating batches of
	// len(LineNames) lines, one variable per name.
	LineNames []string `toml:"line_names"`
	Format    Format   `toml:"format"`
}

// Var declares a standalone derived variable. Vars are evaluated in
// declaration order; a declaration may reference command variables and
// vars declared before it. The result is published as var:<name>.
type Var struct {
	Name              string     `toml:"name"`
	Input             string     `toml:"input"`
	Replace           [][]string `toml:"replace"`
	ReplaceFirstMatch bool       `toml:"replace_first_match"`
}

// Match is one (expression, regex) visibility predicate.
type Match struct {
	Expr  string
	Regex string
}

// UnmarshalTOML accepts a two-element array ["expr", "regex"].
func (m *Match) UnmarshalTOML(v interface{}) error {
	arr, ok := v.([]interface{})
	if !ok || len(arr) != 2 {
		return fmt.Errorf("match predicate: want [expression, regex]")
	}
	expr, ok1 := arr[0].(string)
	re, ok2 := arr[1].(string)
	if !ok1 || !ok2 {
		return fmt.Errorf("match predicate: both elements must be strings")
	}
	m.Expr, m.Regex = expr, re
	return nil
}

// Block declares one widget. Most properties are template strings; the
// engine expands them against the variable store every pass.
type Block struct {
	Name    string    `toml:"name"`
	Type    BlockType `toml:"type"`
	Inherit string    `toml:"inherit"`

	Value      string `toml:"value"`
	Foreground string `toml:"foreground"`
	Background string `toml:"background"`

	Separator bool `toml:"separator"`

	ShowIfMatches     []Match    `toml:"show_if_matches"`
	Replace           [][]string `toml:"replace"`
	ReplaceFirstMatch bool       `toml:"replace_first_match"`

	Popup      PopupMode `toml:"popup"`
	PopupValue string    `toml:"popup_value"`
	// PopupDwell is how long a popup stays open after its last
	// trigger. Zero means 1 second.
	PopupDwell Duration `toml:"popup_dwell"`

	// Number block options.
	NumberKind   string     `toml:"number_kind"`
	Ramp         [][]string `toml:"ramp"`
	OutputFormat string     `toml:"output_format"`

	// Enum block options.
	Variants          string `toml:"variants"`
	VariantsSeparator string `toml:"variants_separator"`
	Active            string `toml:"active"`
	ActiveFormat      string `toml:"active_format"`

	// Click actions, resolved to a command string on demand.
	OnMouseLeft   string `toml:"on_mouse_left"`
	OnMouseMiddle string `toml:"on_mouse_middle"`
	OnMouseRight  string `toml:"on_mouse_right"`
	OnScrollUp    string `toml:"on_scroll_up"`
	OnScrollDown  string `toml:"on_scroll_down"`
}

// Bar declares one bar: ordered block names per alignment zone plus its
// own visibility and popup behavior.
type Bar struct {
	Name         string    `toml:"name"`
	BlocksLeft   []string  `toml:"blocks_left"`
	BlocksCenter []string  `toml:"blocks_center"`
	BlocksRight  []string  `toml:"blocks_right"`
	ShowIfMatches []Match  `toml:"show_if_matches"`
	Popup        PopupMode `toml:"popup"`
	PopupDwell   Duration  `toml:"popup_dwell"`
}

// Config is the full declaration set.
type Config struct {
	// Instance distinguishes multiple running daemons; it names the
	// control socket and pidfile.
	Instance string `toml:"instance"`

	GlobalDefault Block   `toml:"global_default"`
	Defaults      []Block `toml:"default_block"`

	Commands []Command `toml:"command"`
	Vars     []Var     `toml:"var"`
	Blocks   []Block   `toml:"block"`
	Bars     []Bar     `toml:"bar"`
}

// BlockByName finds a declared block.
func (c *Config) BlockByName(name string) (*Block, bool) {
	for i := range c.Blocks {
		if c.Blocks[i].Name == name {
			return &c.Blocks[i], true
		}
	}
	return nil, false
}

// Validate checks cross-references and enum values. It does not
// compile templates or regexes; the engine reports those per
// declaration so one bad block degrades only itself.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for _, cmd := range c.Commands {
		if cmd.Name == "" {
			return fmt.Errorf("command with empty name")
		}
		if cmd.Command == "" {
			return fmt.Errorf("command %q: empty invocation", cmd.Name)
		}
		if seen[cmd.Name] {
			return fmt.Errorf("duplicate command name %q", cmd.Name)
		}
		seen[cmd.Name] = true
		switch cmd.Format {
		case "", FormatAuto, FormatPlain, FormatStructured:
		default:
			return fmt.Errorf("command %q: unknown format %q", cmd.Name, cmd.Format)
		}
	}

	blockNames := map[string]bool{}
	defaultNames := map[string]bool{}
	for _, d := range c.Defaults {
		if d.Name == "" {
			return fmt.Errorf("default_block with empty name")
		}
		defaultNames[d.Name] = true
	}
	for _, b := range c.Blocks {
		if b.Name == "" {
			return fmt.Errorf("block with empty name")
		}
		if blockNames[b.Name] {
			return fmt.Errorf("duplicate block name %q", b.Name)
		}
		blockNames[b.Name] = true
		switch b.Type {
		case "", BlockText, BlockNumber, BlockEnum, BlockImage:
		default:
			return fmt.Errorf("block %q: unknown type %q", b.Name, b.Type)
		}
		switch b.Popup {
		case "", PopupBlock, PopupPartialBar, PopupBar:
		default:
			return fmt.Errorf("block %q: unknown popup mode %q", b.Name, b.Popup)
		}
		if b.Inherit != "" && !defaultNames[b.Inherit] {
			return fmt.Errorf("block %q: inherit references unknown default_block %q", b.Name, b.Inherit)
		}
	}

	for _, bar := range c.Bars {
		for _, zone := range [][]string{bar.BlocksLeft, bar.BlocksCenter, bar.BlocksRight} {
			for _, name := range zone {
				if !blockNames[name] {
					return fmt.Errorf("bar %q references unknown block %q", bar.Name, name)
				}
			}
		}
		switch bar.Popup {
		case "", PopupBar:
		default:
			return fmt.Errorf("bar %q: popup mode must be %q", bar.Name, PopupBar)
		}
	}

	for _, v := range c.Vars {
		if v.Name == "" {
			return fmt.Errorf("var with empty name")
		}
	}
	return nil
}

// RestartInterval returns the command's restart interval with the
// default applied.
func (c Command) RestartInterval() time.Duration {
	if c.Interval.Duration <= 0 {
		return 10 * time.Second
	}
	return c.Interval.Duration
}

// DwellOrDefault returns the popup dwell duration with the default
// applied.
func (b Block) DwellOrDefault() time.Duration {
	if b.PopupDwell.Duration <= 0 {
		return time.Second
	}
	return b.PopupDwell.Duration
}

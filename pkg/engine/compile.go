package engine

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"gitlab.com/tinyland/lab/barkeep/pkg/config"
	"gitlab.com/tinyland/lab/barkeep/pkg/expr"
)

// Declarations are compiled once at startup: every template is parsed
// and every regex compiled exactly once, and the evaluation pass only
// re-resolves them against snapshots. A declaration that fails to
// compile degrades to an inert form (empty template, skipped rule) with
// a logged warning; it never prevents the rest of the config from
// running.

type compiledVar struct {
	name  string
	input *expr.Template
	chain expr.ReplaceChain
}

type compiledMatch struct {
	expr *expr.Template
	re   *regexp.Regexp
}

type compiledBlock struct {
	cfg config.Block

	value      *expr.Template
	foreground *expr.Template
	background *expr.Template

	chain   expr.ReplaceChain
	matches []compiledMatch

	popupValue *expr.Template // nil: trigger on any property change

	// number
	kind         expr.NumberKind
	ramp         []expr.RampEntry
	outputFormat *expr.Template

	// enum
	variants     *expr.Template
	variantsSep  string
	active       *expr.Template
	activeFormat *expr.Template

	actions map[Button]*expr.Template
}

type compiledBar struct {
	cfg     config.Bar
	matches []compiledMatch
	zones   [3][]*compiledBlock
}

// compileTemplate parses a template, logging unknown filters once per
// declaration. A parse failure yields an empty template and a warning.
func compileTemplate(s, where string, log *slog.Logger) *expr.Template {
	t, err := expr.Parse(s)
	if err != nil {
		log.Warn("invalid template, treating as empty", "where", where, "error", err)
		return expr.MustParse("")
	}
	for _, f := range t.UnknownFilters() {
		log.Warn("unknown filter, passing value through", "where", where, "filter", f)
	}
	return t
}

func compileMatches(ms []config.Match, where string, log *slog.Logger) []compiledMatch {
	var out []compiledMatch
	for i, m := range ms {
		re, err := regexp.Compile(m.Regex)
		if err != nil {
			// A broken predicate cannot be satisfied; forcing Hidden
			// would make the whole block vanish silently, so skip the
			// one rule instead.
			log.Warn("invalid show_if_matches regex, skipping predicate",
				"where", where, "index", i, "error", err)
			continue
		}
		out = append(out, compiledMatch{
			expr: compileTemplate(m.Expr, where, log),
			re:   re,
		})
	}
	return out
}

func compileChain(pairs [][]string, first bool, where string, log *slog.Logger) expr.ReplaceChain {
	chain, err := expr.CompileChain(pairs, first)
	if err != nil {
		log.Warn("invalid replace chain, skipping", "where", where, "error", err)
		return expr.ReplaceChain{FirstMatchOnly: first}
	}
	return chain
}

func compileVar(v config.Var, log *slog.Logger) *compiledVar {
	where := "var " + v.Name
	return &compiledVar{
		name:  v.Name,
		input: compileTemplate(v.Input, where, log),
		chain: compileChain(v.Replace, v.ReplaceFirstMatch, where, log),
	}
}

func compileBlock(b config.Block, log *slog.Logger) *compiledBlock {
	where := "block " + b.Name
	cb := &compiledBlock{
		cfg:        b,
		value:      compileTemplate(b.Value, where, log),
		foreground: compileTemplate(b.Foreground, where, log),
		background: compileTemplate(b.Background, where, log),
		chain:      compileChain(b.Replace, b.ReplaceFirstMatch, where, log),
		matches:    compileMatches(b.ShowIfMatches, where, log),
		actions:    map[Button]*expr.Template{},
	}

	if b.PopupValue != "" {
		cb.popupValue = compileTemplate(b.PopupValue, where, log)
	}

	if b.Type == config.BlockNumber {
		kind, err := expr.ParseNumberKind(b.NumberKind)
		if err != nil {
			log.Warn("bad number kind, defaulting to plain", "where", where, "error", err)
		}
		cb.kind = kind
		cb.ramp = compileRamp(b.Ramp, kind, where, log)
	}
	if b.OutputFormat != "" {
		cb.outputFormat = compileTemplate(b.OutputFormat, where, log)
	}

	if b.Type == config.BlockEnum {
		cb.variants = compileTemplate(b.Variants, where, log)
		cb.active = compileTemplate(b.Active, where, log)
		cb.variantsSep = b.VariantsSeparator
		if cb.variantsSep == "" {
			cb.variantsSep = ","
		}
		if b.ActiveFormat != "" {
			cb.activeFormat = compileTemplate(b.ActiveFormat, where, log)
		}
	}

	for button, tmpl := range map[Button]string{
		ButtonLeft:       b.OnMouseLeft,
		ButtonMiddle:     b.OnMouseMiddle,
		ButtonRight:      b.OnMouseRight,
		ButtonScrollUp:   b.OnScrollUp,
		ButtonScrollDown: b.OnScrollDown,
	} {
		if tmpl != "" {
			cb.actions[button] = compileTemplate(tmpl, where, log)
		}
	}
	return cb
}

// compileRamp parses [threshold, format] pairs and sorts them
// ascending by threshold. Thresholds are parsed in the same unit as
// the block's number kind, so a bytes ramp can say "1.5GB".
func compileRamp(pairs [][]string, kind expr.NumberKind, where string, log *slog.Logger) []expr.RampEntry {
	var out []expr.RampEntry
	for i, pair := range pairs {
		if len(pair) < 2 {
			log.Warn("ramp entry needs [threshold, format]", "where", where, "index", i)
			continue
		}
		threshold, err := expr.ParseNumber(kind, pair[0])
		if err != nil {
			log.Warn("bad ramp threshold, skipping entry",
				"where", where, "index", i, "error", err)
			continue
		}
		out = append(out, expr.RampEntry{
			Threshold: threshold,
			Format:    compileTemplate(pair[1], where, log),
		})
	}
	sortRamp(out)
	return out
}

func sortRamp(entries []expr.RampEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Threshold < entries[j-1].Threshold; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func compileBar(bar config.Bar, blocks map[string]*compiledBlock, log *slog.Logger) *compiledBar {
	cb := &compiledBar{
		cfg:     bar,
		matches: compileMatches(bar.ShowIfMatches, "bar "+bar.Name, log),
	}
	for zi, names := range [][]string{bar.BlocksLeft, bar.BlocksCenter, bar.BlocksRight} {
		for _, name := range names {
			if b, ok := blocks[name]; ok {
				cb.zones[zi] = append(cb.zones[zi], b)
			} else {
				log.Warn("bar references unknown block", "bar", bar.Name, "block", name)
			}
		}
	}
	return cb
}

// parseActiveIndex parses an enum block's resolved active expression.
// Empty means 0; garbage means -1 (nothing active).
func parseActiveIndex(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

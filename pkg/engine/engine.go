// Package engine performs the re-evaluation pass: it re-derives
// standalone variables, resolves every block's templates against one
// consistent store snapshot, decides visibility and popup state, and
// publishes a fresh render model. The pass is a pure function of the
// snapshot plus the popup timing state; it is triggered by debounced
// store notifications and by popup dwell expiry, and it never blocks
// the decoder pipelines.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/barkeep/pkg/config"
	"gitlab.com/tinyland/lab/barkeep/pkg/expr"
	"gitlab.com/tinyland/lab/barkeep/pkg/store"
)

// defaultDebounce collapses bursts of near-simultaneous updates across
// commands into a single evaluation pass.
const defaultDebounce = 16 * time.Millisecond

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDebounce overrides the update debounce window.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.debounce = d }
}

// Engine owns the evaluation pass state.
type Engine struct {
	st  *store.Store
	log *slog.Logger

	vars   []*compiledVar
	blocks map[string]*compiledBlock
	bars   []*compiledBar

	debounce time.Duration
	now      func() time.Time

	mu             sync.Mutex
	popups         *popupTracker
	lastProps      map[string]map[string]string
	lastPopupValue map[string]string
	seeded         bool
	lastModel      *RenderModel
	warned         map[string]bool

	out chan *RenderModel
}

// New compiles the declarations and returns an engine ready to run.
// Compilation never fails: broken declarations are logged and degrade
// to inert forms.
func New(cfg *config.Config, st *store.Store, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		st:             st,
		log:            log,
		blocks:         make(map[string]*compiledBlock),
		debounce:       defaultDebounce,
		now:            time.Now,
		popups:         newPopupTracker(),
		lastProps:      make(map[string]map[string]string),
		lastPopupValue: make(map[string]string),
		warned:         make(map[string]bool),
		out:            make(chan *RenderModel, 1),
	}
	for _, v := range cfg.Vars {
		e.vars = append(e.vars, compileVar(v, log))
	}
	for _, b := range cfg.Blocks {
		e.blocks[b.Name] = compileBlock(b, log)
	}
	for _, bar := range cfg.Bars {
		e.bars = append(e.bars, compileBar(bar, e.blocks, log))
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Models returns the channel of published render models. Only the
// latest model is retained; a slow consumer never blocks evaluation.
func (e *Engine) Models() <-chan *RenderModel {
	return e.out
}

// Run evaluates once immediately, then re-evaluates on every debounced
// store notification and on popup dwell expiry until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.publish(e.Evaluate())
	for {
		var timerC <-chan time.Time
		e.mu.Lock()
		if deadline, ok := e.popups.next(e.now()); ok {
			timerC = time.After(time.Until(deadline))
		}
		e.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.st.Updates():
			e.drainUpdates(ctx)
		case <-timerC:
		}
		e.publish(e.Evaluate())
	}
}

// drainUpdates soaks up further notifications for one debounce window
// so a burst across many commands produces one pass.
func (e *Engine) drainUpdates(ctx context.Context) {
	deadline := time.After(e.debounce)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.st.Updates():
		case <-deadline:
			return
		}
	}
}

// publish replaces any unconsumed model with the newest one.
func (e *Engine) publish(m *RenderModel) {
	for {
		select {
		case e.out <- m:
			return
		default:
			select {
			case <-e.out:
			default:
			}
		}
	}
}

// Evaluate runs one full pass and returns the render model. It is
// idempotent: re-running against unchanged inputs produces an
// identical model and no new popup triggers.
func (e *Engine) Evaluate() *RenderModel {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	snap := e.st.Snapshot()
	derived := e.evalVars(snap)
	lookup := snap.Overlay(derived)

	resolved := make(map[string]*BlockModel, len(e.blocks))
	props := make(map[string]map[string]string, len(e.blocks))
	for name, cb := range e.blocks {
		bm, pr := e.resolveBlock(cb, lookup)
		resolved[name] = bm
		props[name] = pr
	}

	e.firePopupTriggers(props, lookup, now)
	e.lastProps = props
	e.seeded = true

	model := &RenderModel{}
	for _, bar := range e.bars {
		model.Bars = append(model.Bars, e.resolveBar(bar, resolved, lookup, now))
	}
	e.lastModel = model
	return model
}

// evalVars recomputes the standalone variables in declaration order.
// Each declaration sees command variables plus the vars evaluated
// before it in the same pass; the results are written back silently
// under var:<name> so the control interface can read them without
// re-waking the engine.
func (e *Engine) evalVars(snap store.Snapshot) map[string]string {
	derived := make(map[string]string, len(e.vars))
	for _, v := range e.vars {
		val := v.chain.Apply(v.input.Resolve(snap.Overlay(derived)))
		derived["var:"+v.name] = val
	}
	if len(derived) > 0 {
		entries := make([]store.Entry, 0, len(derived))
		for _, v := range e.vars {
			name := "var:" + v.name
			entries = append(entries, store.Entry{Name: name, Value: derived[name]})
		}
		e.st.ApplySilent(store.Batch{Entries: entries})
	}
	return derived
}

// firePopupTriggers compares this pass against the previous one and
// arms dwell deadlines. A block with popup_value triggers only when
// that expression's expanded value changes; otherwise any changed
// property of the block triggers. The first pass only records the
// baseline, so startup never opens popups.
func (e *Engine) firePopupTriggers(props map[string]map[string]string, lookup expr.Lookup, now time.Time) {
	for name, cb := range e.blocks {
		if cb.cfg.Popup == "" {
			continue
		}
		if cb.popupValue != nil {
			cur := cb.popupValue.Resolve(lookup)
			if e.seeded && cur != e.lastPopupValue[name] {
				e.popups.trigger(name, now, cb.cfg.DwellOrDefault())
			}
			e.lastPopupValue[name] = cur
			continue
		}
		if e.seeded && propsChanged(e.lastProps[name], props[name]) {
			e.popups.trigger(name, now, cb.cfg.DwellOrDefault())
		}
	}
}

func propsChanged(prev, cur map[string]string) bool {
	if len(prev) != len(cur) {
		return true
	}
	for k, v := range cur {
		if prev[k] != v {
			return true
		}
	}
	return false
}

// resolveBlock expands one block's properties against the snapshot.
// The returned props map is what popup change detection compares.
func (e *Engine) resolveBlock(cb *compiledBlock, lookup expr.Lookup) (*BlockModel, map[string]string) {
	bm := &BlockModel{
		Name:      cb.cfg.Name,
		Type:      blockType(cb.cfg),
		Separator: cb.cfg.Separator,
		Active:    -1,
	}
	props := map[string]string{}

	bm.Foreground = cb.foreground.Resolve(lookup)
	bm.Background = cb.background.Resolve(lookup)
	props["foreground"] = bm.Foreground
	props["background"] = bm.Background

	switch bm.Type {
	case config.BlockEnum:
		e.resolveEnum(cb, lookup, bm, props)
	case config.BlockNumber:
		e.resolveNumber(cb, lookup, bm, props)
	default:
		bm.Text = cb.chain.Apply(cb.value.Resolve(lookup))
		props["value"] = bm.Text
	}
	return bm, props
}

func blockType(b config.Block) config.BlockType {
	if b.Type == "" {
		return config.BlockText
	}
	return b.Type
}

func (e *Engine) resolveNumber(cb *compiledBlock, lookup expr.Lookup, bm *BlockModel, props map[string]string) {
	raw := cb.chain.Apply(cb.value.Resolve(lookup))
	props["value"] = raw

	n, err := expr.ParseNumber(cb.kind, raw)
	if err != nil {
		// Sentinel zero: a malformed upstream number degrades the one
		// widget, never the render path.
		e.warnOnce("number:"+cb.cfg.Name, "unparseable number value",
			"block", cb.cfg.Name, "value", raw)
		n = 0
	}
	bm.Number = n

	display := raw
	if f := expr.SelectRamp(cb.ramp, n); f != nil {
		display = f.Resolve(withValue(lookup, display))
	}
	if cb.outputFormat != nil {
		display = cb.outputFormat.Resolve(withValue(lookup, display))
	}
	bm.Text = display
}

func (e *Engine) resolveEnum(cb *compiledBlock, lookup expr.Lookup, bm *BlockModel, props map[string]string) {
	variantsStr := cb.variants.Resolve(lookup)
	activeStr := cb.active.Resolve(lookup)
	props["variants"] = variantsStr
	props["active"] = activeStr

	active := parseActiveIndex(activeStr)
	bm.Active = active

	var text []byte
	for i, candidate := range splitVariants(variantsStr, cb.variantsSep) {
		replaced := cb.chain.Apply(candidate)
		omitted := replaced == ""
		formatted := replaced
		if !omitted {
			switch {
			case i == active && cb.activeFormat != nil:
				formatted = cb.activeFormat.Resolve(withValue(lookup, replaced))
			case cb.outputFormat != nil:
				formatted = cb.outputFormat.Resolve(withValue(lookup, replaced))
			}
			text = append(text, formatted...)
		}
		bm.Candidates = append(bm.Candidates, EnumCandidate{
			Text:    formatted,
			Active:  i == active,
			Omitted: omitted,
		})
	}
	if active >= len(bm.Candidates) {
		bm.Active = -1
	}
	bm.Text = string(text)
}

func splitVariants(s, sep string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, sep)
}

// withValue overlays the special ${value} binding used by ramp,
// output_format and active_format templates.
func withValue(lookup expr.Lookup, value string) expr.Lookup {
	return func(name string) (string, bool) {
		if name == "value" {
			return value, true
		}
		return lookup(name)
	}
}

// resolveBar computes one bar's visibility, applies active popup
// scopes and collapses separators.
func (e *Engine) resolveBar(bar *compiledBar, resolved map[string]*BlockModel, lookup expr.Lookup, now time.Time) BarModel {
	popped := map[string]bool{}
	barPopped := false
	for _, zone := range bar.zones {
		for _, cb := range zone {
			if cb.cfg.Popup == "" || !e.popups.active(cb.cfg.Name, now) {
				continue
			}
			for _, name := range popupScope(cb.cfg.Popup, cb.cfg.Name, zone, bar) {
				popped[name] = true
			}
			if cb.cfg.Popup == config.PopupBar {
				barPopped = true
			}
		}
	}

	bm := BarModel{Name: bar.cfg.Name}
	switch {
	case !matchesAll(bar.matches, lookup):
		bm.State = StateHidden
	case bar.cfg.Popup == config.PopupBar:
		if barPopped {
			bm.State = StatePoppedUp
		} else {
			bm.State = StateHidden
		}
	default:
		bm.State = StateVisible
	}

	zones := make([][]BlockModel, 3)
	for zi, zone := range bar.zones {
		models := make([]BlockModel, 0, len(zone))
		for _, cb := range zone {
			blk := *resolved[cb.cfg.Name]
			blk.State = e.blockState(cb, lookup, popped)
			models = append(models, blk)
		}
		collapseSeparators(models)
		zones[zi] = models
	}
	bm.Left, bm.Center, bm.Right = zones[0], zones[1], zones[2]
	return bm
}

// blockState decides Hidden/Visible/PoppedUp for one block instance.
// A failed show_if_matches predicate forces Hidden regardless of popup
// state; a popup container is Hidden unless a covering trigger is
// active.
func (e *Engine) blockState(cb *compiledBlock, lookup expr.Lookup, popped map[string]bool) BlockState {
	if !matchesAll(cb.matches, lookup) {
		return StateHidden
	}
	if cb.cfg.Popup != "" {
		if popped[cb.cfg.Name] {
			return StatePoppedUp
		}
		return StateHidden
	}
	if popped[cb.cfg.Name] {
		return StatePoppedUp
	}
	return StateVisible
}

func matchesAll(ms []compiledMatch, lookup expr.Lookup) bool {
	for _, m := range ms {
		if !m.re.MatchString(m.expr.Resolve(lookup)) {
			return false
		}
	}
	return true
}

// collapseSeparators suppresses separator blocks with no visible
// non-separator neighbor on either side: leading, trailing and doubled
// separators disappear along with the content that would have
// justified them.
func collapseSeparators(models []BlockModel) {
	lastNonSep := false
	for i := range models {
		if !models[i].State.Visible() {
			continue
		}
		if models[i].Separator {
			if !lastNonSep {
				models[i].State = StateHidden
				continue
			}
			lastNonSep = false
		} else {
			lastNonSep = true
		}
	}
	seenNonSep := false
	for i := len(models) - 1; i >= 0; i-- {
		if !models[i].State.Visible() {
			continue
		}
		if models[i].Separator {
			if !seenNonSep {
				models[i].State = StateHidden
			}
		} else {
			seenNonSep = true
		}
	}
}

// warnOnce logs a degradation once per key so a malfunctioning source
// does not flood the log on every pass.
func (e *Engine) warnOnce(key, msg string, args ...any) {
	if e.warned[key] {
		return
	}
	e.warned[key] = true
	e.log.Warn(msg, args...)
}

// LastModel returns the most recently evaluated model, or nil before
// the first pass.
func (e *Engine) LastModel() *RenderModel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastModel
}

// Rotate cycles a var: variable through the candidate list: the value
// after the current one is stored, wrapping to the first when the
// current value is last or absent. It returns the new value.
func (e *Engine) Rotate(name string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("rotate %q: no candidate values", name)
	}
	cur, _ := e.st.Get(name)
	next := candidates[0]
	for i, c := range candidates {
		if c == cur && i+1 < len(candidates) {
			next = candidates[i+1]
			break
		}
	}
	e.st.Set(name, next)
	return next, nil
}

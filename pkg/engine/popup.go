package engine

import (
	"time"

	"gitlab.com/tinyland/lab/barkeep/pkg/config"
)

// popupTracker holds the dwell deadlines of triggered popups, keyed by
// the triggering block. A new trigger resets the deadline; the state
// auto-reverts once the dwell duration passes without another trigger.
type popupTracker struct {
	deadlines map[string]time.Time
}

func newPopupTracker() *popupTracker {
	return &popupTracker{deadlines: make(map[string]time.Time)}
}

// trigger records a popup firing for a block at time now.
func (p *popupTracker) trigger(block string, now time.Time, dwell time.Duration) {
	p.deadlines[block] = now.Add(dwell)
}

// active reports whether the block's popup is currently held open.
func (p *popupTracker) active(block string, now time.Time) bool {
	d, ok := p.deadlines[block]
	return ok && now.Before(d)
}

// next returns the earliest pending deadline, if any. Expired entries
// are pruned.
func (p *popupTracker) next(now time.Time) (time.Time, bool) {
	var earliest time.Time
	found := false
	for block, d := range p.deadlines {
		if !now.Before(d) {
			delete(p.deadlines, block)
			continue
		}
		if !found || d.Before(earliest) {
			earliest = d
			found = true
		}
	}
	return earliest, found
}

// popupScope computes the set of blocks a trigger holds open, given
// the triggering block's position inside a bar. The scopes follow the
// block's configured popup mode:
//
//   - block: only the trigger itself
//   - partial_bar: the contiguous run of blocks between the nearest
//     separator blocks in the trigger's alignment zone
//   - bar: every block of the bar
func popupScope(mode config.PopupMode, trigger string, zone []*compiledBlock, bar *compiledBar) []string {
	switch mode {
	case config.PopupPartialBar:
		return partialBarGroup(trigger, zone)
	case config.PopupBar:
		var names []string
		for _, z := range bar.zones {
			for _, b := range z {
				names = append(names, b.cfg.Name)
			}
		}
		return names
	default:
		return []string{trigger}
	}
}

// partialBarGroup returns the run of non-separator blocks containing
// trigger, bounded by separator blocks (exclusive).
func partialBarGroup(trigger string, zone []*compiledBlock) []string {
	idx := -1
	for i, b := range zone {
		if b.cfg.Name == trigger {
			idx = i
			break
		}
	}
	if idx < 0 {
		return []string{trigger}
	}
	start := idx
	for start > 0 && !zone[start-1].cfg.Separator {
		start--
	}
	end := idx
	for end < len(zone)-1 && !zone[end+1].cfg.Separator {
		end++
	}
	names := make([]string, 0, end-start+1)
	for _, b := range zone[start : end+1] {
		names = append(names, b.cfg.Name)
	}
	return names
}

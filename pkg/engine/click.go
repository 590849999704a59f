package engine

import (
	"strconv"

	"gitlab.com/tinyland/lab/barkeep/pkg/config"
)

// Button identifies the mouse control that produced a click event.
type Button string

const (
	ButtonLeft       Button = "left"
	ButtonMiddle     Button = "middle"
	ButtonRight      Button = "right"
	ButtonScrollUp   Button = "scroll_up"
	ButtonScrollDown Button = "scroll_down"
)

// ClickEvent is a pointer event routed to a block. VariantIndex is the
// ordinal of the clicked enum candidate, or -1 when the event does not
// address a particular variant.
type ClickEvent struct {
	Block        string
	Button       Button
	VariantIndex int
}

// Action is a shell command ready to spawn in response to a click,
// with the block context exported through the environment.
type Action struct {
	Command string
	Env     []string
}

// HandleClick resolves the action bound to the event's block and
// button against the current store state. The second return is false
// when the block is unknown or has no binding for that button.
//
// The spawned command sees BLOCK_NAME, BLOCK_VALUE and, for enum
// blocks, BLOCK_INDEX in its environment, mirroring what the block
// currently displays.
func (e *Engine) HandleClick(ev ClickEvent) (Action, bool) {
	cb, ok := e.blocks[ev.Block]
	if !ok {
		e.log.Warn("click for unknown block", "block", ev.Block)
		return Action{}, false
	}
	tmpl, ok := cb.actions[ev.Button]
	if !ok {
		return Action{}, false
	}

	snap := e.st.Snapshot()
	action := Action{
		Command: tmpl.Resolve(snap.Get),
		Env:     []string{"BLOCK_NAME=" + ev.Block},
	}

	value := ""
	index := ev.VariantIndex
	if m := e.LastModel(); m != nil {
		if blk, ok := m.Block(ev.Block); ok {
			value = blk.Text
			if index < 0 {
				index = blk.Active
			}
		}
	}
	action.Env = append(action.Env, "BLOCK_VALUE="+value)
	if blockType(cb.cfg) == config.BlockEnum {
		action.Env = append(action.Env, "BLOCK_INDEX="+strconv.Itoa(index))
	}
	return action, true
}

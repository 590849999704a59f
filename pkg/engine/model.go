package engine

import "gitlab.com/tinyland/lab/barkeep/pkg/config"

// BlockState is the visibility state of a block or bar.
type BlockState int

const (
	// StateHidden means the element is not rendered this tick.
	StateHidden BlockState = iota
	// StateVisible means the element occupies its normal place.
	StateVisible
	// StatePoppedUp means a popup trigger is holding the element open.
	StatePoppedUp
)

func (s BlockState) String() string {
	switch s {
	case StateVisible:
		return "visible"
	case StatePoppedUp:
		return "popped-up"
	default:
		return "hidden"
	}
}

// Visible reports whether the element is rendered.
func (s BlockState) Visible() bool { return s != StateHidden }

// EnumCandidate is one variant of an enum block. Omitted candidates
// (empty after their replace chain) keep their position so that the
// active index and click-index mapping refer to the original ordinal.
type EnumCandidate struct {
	Text    string
	Active  bool
	Omitted bool
}

// BlockModel is the fully resolved display state of one block for the
// current tick. It is recomputed from scratch every pass, never
// mutated incrementally.
type BlockModel struct {
	Name      string
	Type      config.BlockType
	State     BlockState
	Separator bool

	// Text is the final expanded display string.
	Text string

	// Style attributes for the rendering collaborator.
	Foreground string
	Background string

	// Number is the parsed numeric value for number blocks.
	Number float64

	// Candidates holds the enum variants; nil for other types.
	Candidates []EnumCandidate
	// Active is the pre-filtering ordinal of the active candidate,
	// -1 when out of range.
	Active int
}

// BarModel is one bar's resolved state.
type BarModel struct {
	Name   string
	State  BlockState
	Left   []BlockModel
	Center []BlockModel
	Right  []BlockModel
}

// Zones returns the three alignment zones in order.
func (b *BarModel) Zones() [][]BlockModel {
	return [][]BlockModel{b.Left, b.Center, b.Right}
}

// RenderModel is the only artifact exposed to rendering: every bar's
// resolved blocks plus visibility, for one evaluation pass.
type RenderModel struct {
	Bars []BarModel
}

// Block finds a block model by name across all bars and zones.
func (m *RenderModel) Block(name string) (*BlockModel, bool) {
	for i := range m.Bars {
		for _, zone := range []*[]BlockModel{&m.Bars[i].Left, &m.Bars[i].Center, &m.Bars[i].Right} {
			for j := range *zone {
				if (*zone)[j].Name == name {
					return &(*zone)[j], true
				}
			}
		}
	}
	return nil, false
}

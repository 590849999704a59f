// Package display renders evaluated bar models to a terminal. It is a
// consumer of the engine's render models only: all template expansion,
// visibility and popup logic happens upstream, and this package just
// turns the resolved blocks into styled text lines.
package display

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"gitlab.com/tinyland/lab/barkeep/pkg/engine"
)

// Renderer writes one line per visible bar. On a terminal it redraws
// in place; on a pipe it emits each frame as plain lines, which makes
// the output usable as a feed for external bar programs.
type Renderer struct {
	w         io.Writer
	tty       bool
	color     bool
	lastLines int
}

// New creates a renderer for w. Styling is enabled only when w is a
// terminal.
func New(w io.Writer) *Renderer {
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd())
	}
	return &Renderer{w: w, tty: tty, color: tty}
}

// NewPlain creates an unstyled renderer, for tests and piped output.
func NewPlain(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

// Run draws every model published on models until ctx is cancelled.
func (r *Renderer) Run(ctx context.Context, models <-chan *engine.RenderModel) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-models:
			if !ok {
				return nil
			}
			if err := r.Draw(m); err != nil {
				return err
			}
		}
	}
}

// Draw renders one frame.
func (r *Renderer) Draw(m *engine.RenderModel) error {
	var lines []string
	for i := range m.Bars {
		bar := &m.Bars[i]
		if !bar.State.Visible() {
			continue
		}
		lines = append(lines, r.renderBar(bar))
	}

	var out strings.Builder
	if r.tty && r.lastLines > 0 {
		// Move back over the previous frame and clear it.
		fmt.Fprintf(&out, "\033[%dA", r.lastLines)
	}
	for _, line := range lines {
		if r.tty {
			out.WriteString("\033[2K")
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	r.lastLines = len(lines)

	_, err := io.WriteString(r.w, out.String())
	return err
}

// renderBar joins the three zones with double spaces; blocks within a
// zone are joined with single spaces.
func (r *Renderer) renderBar(bar *engine.BarModel) string {
	var zones []string
	for _, zone := range bar.Zones() {
		if s := r.renderZone(zone); s != "" {
			zones = append(zones, s)
		}
	}
	return strings.Join(zones, "  ")
}

func (r *Renderer) renderZone(blocks []engine.BlockModel) string {
	var parts []string
	for i := range blocks {
		b := &blocks[i]
		if !b.State.Visible() || b.Text == "" {
			continue
		}
		parts = append(parts, r.renderBlock(b))
	}
	return strings.Join(parts, " ")
}

func (r *Renderer) renderBlock(b *engine.BlockModel) string {
	if !r.color {
		return b.Text
	}
	style := lipgloss.NewStyle()
	if b.Foreground != "" {
		style = style.Foreground(lipgloss.Color(b.Foreground))
	}
	if b.Background != "" {
		style = style.Background(lipgloss.Color(b.Background))
	}
	if b.State == engine.StatePoppedUp {
		style = style.Bold(true)
	}
	return style.Render(b.Text)
}

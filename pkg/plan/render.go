package plan

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Renderer formats plan steps for dry-run, verbose and explain output.
// Widths are always computed on unstyled text.
type Renderer struct {
	color bool

	prefixStyle  lipgloss.Style
	commandStyle lipgloss.Style
	skipStyle    lipgloss.Style
	headerStyle  lipgloss.Style
}

// NewRenderer returns a renderer. When color is false, output is plain text.
func NewRenderer(color bool) *Renderer {
	lr := lipgloss.NewRenderer(io.Discard)
	if color {
		lr.SetColorProfile(termenv.ANSI256)
	} else {
		lr.SetColorProfile(termenv.Ascii)
	}
	return &Renderer{
		color:        color,
		prefixStyle:  lr.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		commandStyle: lr.NewStyle().Foreground(lipgloss.Color("15")),
		skipStyle:    lr.NewStyle().Foreground(lipgloss.Color("8")).Faint(true),
		headerStyle:  lr.NewStyle().Bold(true),
	}
}

func (r *Renderer) style(st lipgloss.Style, s string) string {
	if r == nil || !r.color {
		return s
	}
	return st.Render(s)
}

// Prefix returns "> [<phase-tag><script>]".
func (r *Renderer) Prefix(s Step) string {
	return "> [" + s.Phase.Tag() + s.Script + "]"
}

// Block renders one step as a header line plus its indented command.
func (r *Renderer) Block(s Step) string {
	indent := strings.Repeat("  ", s.Depth)
	head := indent + r.style(r.prefixStyle, r.Prefix(s))
	body := indent + "  " + s.Command
	if s.Skip {
		return head + " " + r.style(r.skipStyle, "(skipped)") + "\n" + r.style(r.skipStyle, body)
	}
	return head + "\n" + r.style(r.commandStyle, body)
}

// ExplainLines renders one line per step, with commands aligned on a column one space past the
// longest prefix in the plan.
func (r *Renderer) ExplainLines(p Plan) []string {
	width := 0
	for _, s := range p.Steps {
		width = max(width, lipgloss.Width(r.Prefix(s)))
	}

	lines := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		prefix := r.Prefix(s)
		pad := strings.Repeat(" ", width-lipgloss.Width(prefix))
		ln := r.style(r.prefixStyle, prefix) + pad + " " + s.Command
		if s.Skip {
			ln += "  " + r.style(r.skipStyle, "# skipped")
		}
		lines = append(lines, ln)
	}
	return lines
}

// DryRunLines returns a header followed by every step block.
func (r *Renderer) DryRunLines(p Plan) []string {
	lines := []string{r.style(r.headerStyle, r.header(p))}
	for _, s := range p.Steps {
		lines = append(lines, strings.Split(r.Block(s), "\n")...)
	}
	return lines
}

// RenderDryRun joins DryRunLines.
func (r *Renderer) RenderDryRun(p Plan) string {
	return strings.Join(r.DryRunLines(p), "\n")
}

func (r *Renderer) header(p Plan) string {
	h := fmt.Sprintf("dry run: %s (%d steps", p.Target, len(p.Steps))
	if n := p.Skipped(); n > 0 {
		h += fmt.Sprintf(", %d skipped", n)
	}
	return h + ")"
}

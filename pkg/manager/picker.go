package manager

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"bnrun/pkg/script"
)

// ErrNoSelection is returned by PickScript when the picker is closed without choosing a script.
var ErrNoSelection = errors.New("no script selected")

// PickerOptions controls the interactive script picker.
type PickerOptions struct {
	InitialQuery string

	// MaxResults limits the list height (0 means auto).
	MaxResults int

	// Input/Output default to the terminal.
	Input  io.Reader
	Output io.Writer
}

// PickScript lets the user choose a script from reg and returns the invocation to run.
// Parameterized templates prompt for their parameter value.
func PickScript(reg *script.Registry, scriptsDir string, opts PickerOptions) (string, error) {
	m := newPicker(Describe(reg, scriptsDir), opts)

	popts := []tea.ProgramOption{tea.WithAltScreen()}
	if opts.Input != nil {
		popts = append(popts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		popts = append(popts, tea.WithOutput(opts.Output))
	}
	final, err := tea.NewProgram(m, popts...).Run()
	if err != nil {
		return "", fmt.Errorf("picker: %w", err)
	}
	pm, ok := final.(picker)
	if !ok || pm.choice == "" {
		return "", ErrNoSelection
	}
	return pm.choice, nil
}

type picker struct {
	opts PickerOptions

	// input is the incremental search.
	input textinput.Model

	// param is the prompt for a parameterized template's value.
	param     textinput.Model
	paramMode bool
	paramFor  ScriptInfo

	items    []ScriptInfo
	filtered []ScriptInfo

	selected int
	scroll   int

	status      string
	statusUntil time.Time

	width  int
	height int

	choice   string
	quitting bool
}

func newPicker(items []ScriptInfo, opts PickerOptions) picker {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 20
	}

	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "search..."
	ti.CharLimit = 256
	ti.Width = 40
	ti.SetValue(opts.InitialQuery)
	ti.Blur()

	pi := textinput.New()
	pi.Prompt = "value> "
	pi.CharLimit = 256
	pi.Width = 40
	pi.Blur()

	m := picker{
		opts:  opts,
		input: ti,
		param: pi,
		items: items,
	}
	m.recomputeFilter()
	return m
}

func (m picker) Init() tea.Cmd {
	return nil
}

func (m picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch x := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = x.Width
		m.height = x.Height
		m.input.Width = clampInt(m.width-6, 10, 80)
		return m, nil

	case tea.KeyMsg:
		if x.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		if m.paramMode {
			return m.handleParamKeys(x)
		}
		return m.handleListKeys(x)
	}
	return m, nil
}

func (m picker) handleParamKeys(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.String() {
	case "esc":
		m.paramMode = false
		m.param.SetValue("")
		m.param.Blur()
		m.setStatus("cancelled", 1200*time.Millisecond)
		return m, nil
	case "enter":
		v := strings.TrimSpace(m.param.Value())
		if v == "" {
			m.setStatus("a value is required for "+m.paramFor.Name, 1500*time.Millisecond)
			return m, nil
		}
		m.choice = invocationFor(m.paramFor.Name, v)
		m.quitting = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.param, cmd = m.param.Update(k)
	return m, cmd
}

func (m picker) handleListKeys(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	// While searching, only esc/enter/arrows are bindings; everything else edits the query.
	if m.input.Focused() {
		switch k.String() {
		case "esc":
			m.input.Blur()
			return m, nil
		case "enter":
			m.input.Blur()
			return m.accept()
		case "down":
			m.move(1)
			return m, nil
		case "up":
			m.move(-1)
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(k)
		m.recomputeFilter()
		return m, cmd
	}

	switch k.String() {
	case "q", "esc":
		m.quitting = true
		return m, tea.Quit
	case "/":
		m.input.Focus()
		return m, textinput.Blink
	case "j", "down":
		m.move(1)
	case "k", "up":
		m.move(-1)
	case "g", "home":
		m.selected, m.scroll = 0, 0
	case "G", "end":
		m.move(len(m.filtered))
	case "enter":
		return m.accept()
	}
	return m, nil
}

func (m picker) accept() (tea.Model, tea.Cmd) {
	if m.selected < 0 || m.selected >= len(m.filtered) {
		m.setStatus("no script selected", 1500*time.Millisecond)
		return m, nil
	}
	it := m.filtered[m.selected]
	if it.Parameterized {
		m.paramMode = true
		m.paramFor = it
		m.param.SetValue("")
		m.param.Focus()
		return m, textinput.Blink
	}
	m.choice = it.Name
	m.quitting = true
	return m, tea.Quit
}

func (m *picker) recomputeFilter() {
	q := strings.ToLower(strings.TrimSpace(m.input.Value()))
	m.filtered = nil
	for _, it := range m.items {
		if fuzzyContains(strings.ToLower(it.Name), q) {
			m.filtered = append(m.filtered, it)
		}
	}
	if len(m.filtered) == 0 {
		m.selected, m.scroll = 0, 0
		return
	}
	m.selected = clampInt(m.selected, 0, len(m.filtered)-1)
	m.scroll = clampInt(m.scroll, 0, m.selected)
}

func (m *picker) move(delta int) {
	n := len(m.filtered)
	if n <= 0 {
		m.selected, m.scroll = 0, 0
		return
	}
	m.selected = clampInt(m.selected+delta, 0, n-1)

	visible := m.visibleListHeight()
	if m.selected < m.scroll {
		m.scroll = m.selected
	} else if m.selected >= m.scroll+visible {
		m.scroll = m.selected - visible + 1
	}
}

func (m picker) visibleListHeight() int {
	if m.height <= 0 {
		return m.opts.MaxResults
	}
	// Header (2) + prompt (1) + footer (2).
	return clampInt(m.height-5, 3, m.opts.MaxResults)
}

func (m *picker) setStatus(s string, d time.Duration) {
	m.status = s
	m.statusUntil = time.Now().Add(d)
}

func (m picker) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	hlStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)

	fmt.Fprintf(&b, "%s  %s\n", titleStyle.Render("bnrun"), dimStyle.Render(fmt.Sprintf("[%d scripts]", len(m.items))))

	switch {
	case m.paramMode:
		fmt.Fprintf(&b, "%s %s\n", hlStyle.Render(m.paramFor.Name), m.param.View())
	case m.input.Focused():
		fmt.Fprintf(&b, "%s\n", hlStyle.Render(m.input.View()))
	default:
		if q := strings.TrimSpace(m.input.Value()); q != "" {
			fmt.Fprintf(&b, "%s\n", dimStyle.Render("query: "+q+"  (/ to edit)"))
		} else {
			fmt.Fprintf(&b, "%s\n", dimStyle.Render("/ search  j/k move  enter run  q quit"))
		}
	}

	if len(m.filtered) == 0 {
		fmt.Fprintf(&b, "%s\n", dimStyle.Render("(no scripts)"))
	} else {
		end := min(len(m.filtered), m.scroll+m.visibleListHeight())
		for i := m.scroll; i < end; i++ {
			it := m.filtered[i]
			prefix := "  "
			lineStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
			if i == m.selected {
				prefix = "> "
				lineStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
			}
			meta := fmt.Sprintf("  %d/%d/%d", it.Pre, it.Commands, it.Post)
			if it.Source != "" {
				meta += "  " + it.Source
			}
			fmt.Fprintf(&b, "%s%s%s\n", prefix, lineStyle.Render(it.Name), dimStyle.Render(meta))
		}
	}

	if m.status != "" && time.Now().Before(m.statusUntil) {
		fmt.Fprintf(&b, "\n%s\n", dimStyle.Render(m.status))
	}
	return b.String()
}

// invocationFor substitutes value into every placeholder of a template name.
func invocationFor(name, value string) string {
	var bindings []script.Binding
	for _, seg := range script.Tokenize(name) {
		if seg.Kind == script.Placeholder {
			bindings = append(bindings, script.Binding{Token: seg.Text, Value: value})
		}
	}
	return script.Substitute(name, bindings)
}

// fuzzyContains is an ordered-subsequence match.
func fuzzyContains(hay, needle string) bool {
	if needle == "" {
		return true
	}
	want := []rune(needle)
	i := 0
	for _, r := range hay {
		if i >= len(want) {
			break
		}
		if r == want[i] {
			i++
		}
	}
	return i == len(want)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

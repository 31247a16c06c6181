package command

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/textinput"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/olivoil/projectboard/internal/ui"
)

// ExecuteMsg asks the parent to run a CLI command.
type ExecuteMsg struct {
	Args []string
}

// SearchMsg asks the parent to search the active list.
type SearchMsg struct {
	Term string
}

// FilterMsg asks the parent to apply a local list filter.
type FilterMsg struct {
	Field string // sprint, status, role, sort or clear
	Value string
}

const (
	menuRows     = 10
	historyLimit = 50
)

// Model is the command bar: an input line with a completion menu above it
// and a result pane for command output.
type Model struct {
	input     textinput.Model
	output    viewport.Model
	completer *Completer
	menu      menu

	history []string
	recall  int // index into history while browsing, len(history) otherwise

	focused bool
	showing bool // output pane has content
	width   int
	height  int
}

// New creates the command bar.
func New() Model {
	in := textinput.New()
	in.Prompt = "> "
	in.Placeholder = "search, or: status done · sprint Sprint 1 · project list"
	in.CharLimit = 256

	return Model{
		input:     in,
		output:    viewport.New(viewport.WithWidth(80), viewport.WithHeight(10)),
		completer: NewCompleter(),
		menu:      menu{cursor: -1},
	}
}

// SetSize updates dimensions.
func (m *Model) SetSize(w, h int) {
	m.width, m.height = w, h
	m.input.SetWidth(w - 4)
	m.output.SetWidth(w - 2)
	m.output.SetHeight(h - 3)
}

// Completer returns the completer so the parent can feed it ids, sprints
// and roles.
func (m *Model) Completer() *Completer { return m.completer }

// SetResult shows command output.
func (m *Model) SetResult(content string) { m.show(content) }

// SetError shows an error in the output pane.
func (m *Model) SetError(err error) {
	m.show(ui.StyleError.Render("Error: " + err.Error()))
}

// SetRunning shows a placeholder while a command runs.
func (m *Model) SetRunning(args []string) {
	m.show(ui.StyleDim.Render("Running " + strings.Join(args, " ") + "..."))
}

func (m *Model) show(content string) {
	m.showing = true
	m.menu.clear()
	m.output.SetContent(content)
	m.output.GotoTop()
}

// ClearResult empties the output pane.
func (m *Model) ClearResult() {
	m.showing = false
	m.menu.clear()
	m.output.SetContent("")
}

// HasResult reports whether the output pane has content.
func (m *Model) HasResult() bool { return m.showing }

// Focus activates the input and opens the menu with every top-level entry.
func (m *Model) Focus() tea.Cmd {
	m.focused = true
	m.showing = false
	m.recall = len(m.history)
	m.complete()
	return m.input.Focus()
}

// Blur deactivates the input.
func (m *Model) Blur() {
	m.focused = false
	m.menu.clear()
	m.input.Blur()
}

// Focused reports whether the input has focus.
func (m *Model) Focused() bool { return m.focused }

// Update handles messages while focused.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if !m.focused {
		return m, nil
	}
	k, ok := msg.(tea.KeyPressMsg)
	if !ok {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch k.String() {
	case "up", "down":
		if m.menu.open() {
			m.menu.move(k.String() == "down")
		} else {
			m.browseHistory(k.String() == "up")
		}
		return m, nil

	case "tab":
		if m.menu.open() {
			m.accept(max(m.menu.cursor, 0))
		}
		return m, nil

	case "enter":
		if m.menu.cursor >= 0 {
			m.accept(m.menu.cursor)
			return m, nil
		}
		return m, m.submit()

	case "esc":
		m.Blur()
		m.ClearResult()
		return m, nil
	}

	// Typing dismisses previous output.
	if m.showing {
		m.ClearResult()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.complete()
	return m, cmd
}

// submit routes the input line and returns the message for the parent.
func (m *Model) submit() tea.Cmd {
	line := strings.TrimSpace(m.input.Value())
	if line == "" {
		return nil
	}
	m.remember(line)
	m.input.SetValue("")
	m.menu.clear()

	r := ParseRoute(line)
	var out tea.Msg
	switch r.Kind {
	case RouteCLI:
		out = ExecuteMsg{Args: r.Args}
	case RouteFilter:
		out = FilterMsg{Field: r.Field, Value: r.Value}
	default:
		out = SearchMsg{Term: r.Value}
	}
	return func() tea.Msg { return out }
}

func (m *Model) remember(line string) {
	if n := len(m.history); n == 0 || m.history[n-1] != line {
		m.history = append(m.history, line)
	}
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}
	m.recall = len(m.history)
}

func (m *Model) browseHistory(back bool) {
	if len(m.history) == 0 {
		return
	}
	if back {
		m.recall = max(m.recall-1, 0)
	} else {
		m.recall = min(m.recall+1, len(m.history))
	}
	if m.recall == len(m.history) {
		m.input.SetValue("")
	} else {
		m.input.SetValue(m.history[m.recall])
	}
	m.input.CursorEnd()
}

// accept puts candidate i into the input, replacing a partial last word.
func (m *Model) accept(i int) {
	c, ok := m.menu.at(i)
	if !ok {
		return
	}
	line := m.input.Value()
	if words := strings.Fields(line); len(words) > 0 && !strings.HasSuffix(line, " ") {
		words[len(words)-1] = c.Value
		line = strings.Join(words, " ")
	} else {
		line += c.Value
	}
	m.input.SetValue(line + " ")
	m.input.CursorEnd()
	m.complete()
}

func (m *Model) complete() {
	if m.showing {
		m.menu.clear()
		return
	}
	m.menu.set(m.completer.Complete(m.input.Value()))
}

// MenuHeight returns the lines taken by the completion menu, border
// included.
func (m Model) MenuHeight() int {
	if !m.focused || m.showing || !m.menu.open() {
		return 0
	}
	return min(len(m.menu.items), menuRows) + 2
}

// ViewInput renders the completion menu above the input line, followed by
// a hint of what enter will do.
func (m Model) ViewInput() string {
	if !m.focused {
		return ""
	}
	var b strings.Builder
	if m.menu.open() && !m.showing {
		b.WriteString(m.menu.view(max(m.width-4, 40)))
		b.WriteByte('\n')
	}
	b.WriteString(m.input.View())
	if hint := routeHint(m.input.Value()); hint != "" {
		b.WriteString("  " + styleHint.Render(hint))
	}
	return b.String()
}

// ViewResult renders the output pane.
func (m Model) ViewResult() string {
	if !m.showing {
		return ""
	}
	return m.output.View()
}

func routeHint(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}
	r := ParseRoute(line)
	switch r.Kind {
	case RouteCLI:
		return "↵ run"
	case RouteFilter:
		if r.Field == "clear" {
			return "↵ clear filters"
		}
		return "↵ filter " + r.Field
	}
	return "↵ search"
}

// menu is the completion list with an optional highlighted row.
type menu struct {
	items  []Candidate
	cursor int // -1 when nothing is highlighted
}

func (mn *menu) set(items []Candidate) {
	mn.items = items
	mn.cursor = -1
}

func (mn *menu) clear() { mn.set(nil) }

func (mn *menu) open() bool { return len(mn.items) > 0 }

func (mn *menu) at(i int) (Candidate, bool) {
	if i < 0 || i >= len(mn.items) {
		return Candidate{}, false
	}
	return mn.items[i], true
}

func (mn *menu) move(down bool) {
	n := len(mn.items)
	if down {
		mn.cursor = (mn.cursor + 1) % n
		return
	}
	if mn.cursor <= 0 {
		mn.cursor = n - 1
		return
	}
	mn.cursor--
}

var (
	styleMenu       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(ui.ColorBorder).Padding(0, 1)
	styleMenuCursor = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ui.T.Background)).Background(lipgloss.Color(ui.T.Accent))
	styleMenuValue  = lipgloss.NewStyle().Foreground(ui.ColorWhite)
	styleHint       = lipgloss.NewStyle().Foreground(ui.ColorDim).Italic(true)
)

func (mn menu) view(width int) string {
	// Keep the highlighted row on screen.
	start := 0
	if mn.cursor >= menuRows {
		start = mn.cursor - menuRows + 1
	}
	end := min(start+menuRows, len(mn.items))

	pad := 0
	for _, c := range mn.items[start:end] {
		pad = max(pad, len(c.Value))
	}

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		c := mn.items[i]
		value := fmt.Sprintf("%-*s", pad, c.Value)
		desc := ""
		if c.Desc != "" {
			desc = "  " + c.Desc
		}
		if i == mn.cursor {
			lines = append(lines, styleMenuCursor.Render(value+desc))
			continue
		}
		lines = append(lines, styleMenuValue.Render(value)+ui.StyleDim.Render(desc))
	}
	return styleMenu.Width(width).Render(strings.Join(lines, "\n"))
}

package dashboard

import (
	"fmt"
	"image/color"
	"strings"

	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/olivoil/projectboard/internal/backend"
	"github.com/olivoil/projectboard/internal/status"
	"github.com/olivoil/projectboard/internal/ui"
)

const (
	cardWidth      = 18
	sprintBarWidth = 30
)

// Model is the dashboard view: totals, modules by status and sprint progress.
type Model struct {
	viewport viewport.Model
	stats    backend.DashboardStats
	recent   []backend.Project
	width    int
	height   int
}

// New creates a new dashboard model.
func New() Model {
	return Model{
		viewport: viewport.New(viewport.WithWidth(80), viewport.WithHeight(20)),
	}
}

// SetData recomputes the dashboard from the loaded rows.
func (m *Model) SetData(projects []backend.Project, modules []backend.Module, members int) {
	m.stats = backend.ComputeStats(projects, modules, members)
	m.recent = backend.SortProjects(projects, backend.SortCreated)
	if len(m.recent) > 5 {
		m.recent = m.recent[:5]
	}
	m.viewport.SetContent(m.render())
}

// Stats returns the current totals.
func (m *Model) Stats() backend.DashboardStats { return m.stats }

// SetSize updates the view dimensions.
func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.SetWidth(w)
	m.viewport.SetHeight(h)
	m.viewport.SetContent(m.render())
}

// Update handles scrolling.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the dashboard.
func (m Model) View() string {
	return m.viewport.View()
}

func (m *Model) render() string {
	s := m.stats

	cards := lipgloss.JoinHorizontal(lipgloss.Top,
		card("Projects", s.TotalProjects, ui.ColorAccent),
		card("Modules", s.TotalModules, ui.ColorBlue),
		card("Members", s.ActiveMembers, ui.ColorYellow),
		card("Completed", s.CompletedModules, ui.ColorGreen),
	)

	var b strings.Builder
	b.WriteString(cards + "\n\n")

	b.WriteString(ui.StyleHeader.Render("Modules by status") + "\n")
	b.WriteString(statusBar(s.ModulesByStatus, m.barWidth()) + "\n")
	for _, c := range s.ModulesByStatus {
		b.WriteString(fmt.Sprintf("  %s %3d\n", padRight(ui.StatusBadge(c.Value, status.KindModule), 14), c.N))
	}

	b.WriteString("\n" + ui.StyleHeader.Render("Sprint progress") + "\n")
	if len(s.SprintProgress) == 0 {
		b.WriteString(ui.StyleDim.Render("  (no projects)") + "\n")
	}
	for _, sp := range s.SprintProgress {
		b.WriteString(fmt.Sprintf("  %-14s %s  %s\n",
			ui.Truncate(sp.Sprint, 14),
			ui.ProgressBar(sp.Completed, sp.Total, sprintBarWidth),
			ui.StyleDim.Render(fmt.Sprintf("%d/%d", sp.Completed, sp.Total))))
	}

	b.WriteString("\n" + ui.StyleHeader.Render("Recent projects") + "\n")
	if len(m.recent) == 0 {
		b.WriteString(ui.StyleDim.Render("  (none yet)") + "\n")
	}
	for _, p := range m.recent {
		b.WriteString(fmt.Sprintf("  %s  %s  %s\n",
			ui.StatusIcon(p.Status, status.KindProject),
			ui.Truncate(p.Title, 40),
			ui.StyleDim.Render(ui.FormatTime(p.CreatedAt))))
	}
	return b.String()
}

func (m *Model) barWidth() int {
	w := m.width - 4
	if w > 60 {
		w = 60
	}
	if w < 10 {
		w = 10
	}
	return w
}

func card(label string, n int, c color.Color) string {
	body := lipgloss.NewStyle().Bold(true).Foreground(c).Render(fmt.Sprintf("%d", n)) +
		"\n" + ui.StyleDim.Render(label)
	return ui.StyleCard.Width(cardWidth).Render(body)
}

// statusBar renders one stacked bar whose segments are sized by count and
// coloured by status token.
func statusBar(counts []status.Count, width int) string {
	total := 0
	for _, c := range counts {
		total += c.N
	}
	if total == 0 {
		return "  " + ui.StyleDim.Render(strings.Repeat("░", width))
	}
	var b strings.Builder
	b.WriteString("  ")
	used := 0
	for _, c := range counts {
		n := c.N * width / total
		if c.N > 0 && n == 0 {
			n = 1
		}
		if used+n > width {
			n = width - used
		}
		used += n
		b.WriteString(lipgloss.NewStyle().Foreground(ui.TokenColor(c.Color)).Render(strings.Repeat("█", n)))
	}
	if used < width {
		b.WriteString(ui.StyleDim.Render(strings.Repeat("░", width-used)))
	}
	return b.String()
}

func padRight(s string, w int) string {
	if pad := w - lipgloss.Width(s); pad > 0 {
		return s + strings.Repeat(" ", pad)
	}
	return s
}

package projects

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/table"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/olivoil/projectboard/internal/backend"
	"github.com/olivoil/projectboard/internal/status"
	"github.com/olivoil/projectboard/internal/ui"
)

const (
	previewWidthFrac = 0.4
	minPreviewWidth  = 30
	numCols          = 6
)

// Model is the projects view: a filtered table with a preview pane.
type Model struct {
	table   table.Model
	preview viewport.Model

	all          []backend.Project
	rows         []backend.Project // all, filtered and sorted
	memberCounts map[string]int
	query        backend.ProjectQuery
	sortBy       string
	loading      bool

	width   int
	height  int
	focused bool
}

// New creates a new projects view model.
func New() Model {
	cols := []table.Column{
		{Title: " ", Width: 2},
		{Title: "title", Width: 24},
		{Title: "stack", Width: 16},
		{Title: "sprint", Width: 10},
		{Title: "status", Width: 12},
		{Title: "members", Width: 7},
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	t.SetStyles(ui.TableStyles())

	vp := viewport.New(viewport.WithWidth(40), viewport.WithHeight(10))

	return Model{
		table:   t,
		preview: vp,
		focused: true,
		sortBy:  backend.SortCreated,
	}
}

// SetProjects replaces the project list. memberCounts maps project id to
// its number of members.
func (m *Model) SetProjects(projects []backend.Project, memberCounts map[string]int) {
	m.all = projects
	m.memberCounts = memberCounts
	m.rebuild()
}

// SetLoading marks whether a refresh is in flight.
func (m *Model) SetLoading(v bool) { m.loading = v }

// Query returns the active filter.
func (m *Model) Query() backend.ProjectQuery { return m.query }

// SetSearch filters by title or stack.
func (m *Model) SetSearch(s string) {
	m.query.Search = s
	m.rebuild()
}

// SetSprint filters by sprint ("all" clears).
func (m *Model) SetSprint(s string) {
	m.query.Sprint = s
	m.rebuild()
}

// SetStatusFilter filters by status ("all" clears).
func (m *Model) SetStatusFilter(s string) {
	m.query.Status = s
	m.rebuild()
}

// SetSort changes the order: created, title or status.
func (m *Model) SetSort(by string) {
	m.sortBy = by
	m.rebuild()
}

// ClearFilters removes every filter.
func (m *Model) ClearFilters() {
	m.query = backend.ProjectQuery{}
	m.rebuild()
}

// CycleStatusFilter steps the status filter through all, then each status.
func (m *Model) CycleStatusFilter() {
	values := append([]string{backend.FilterAll}, status.Values(status.KindProject)...)
	cur := m.query.Status
	if cur == "" {
		cur = backend.FilterAll
	}
	next := values[0]
	for i, v := range values {
		if v == cur {
			next = values[(i+1)%len(values)]
			break
		}
	}
	m.SetStatusFilter(next)
}

// Sprints returns the distinct sprints of all projects.
func (m *Model) Sprints() []string { return backend.UniqueSprints(m.all) }

// Visible returns the projects currently listed.
func (m *Model) Visible() []backend.Project { return m.rows }

func (m *Model) rebuild() {
	selected := m.SelectedID()

	m.rows = backend.SortProjects(backend.FilterProjects(m.all, m.query), m.sortBy)
	rows := make([]table.Row, len(m.rows))
	cursor := 0
	for i, p := range m.rows {
		rows[i] = table.Row{
			ui.StatusIcon(p.Status, status.KindProject),
			p.Title,
			p.Stack,
			p.Sprint,
			ui.StatusLabel(p.Status, status.KindProject),
			fmt.Sprintf("%d", m.memberCounts[p.ID]),
		}
		if p.ID == selected {
			cursor = i
		}
	}
	m.table.SetRows(rows)
	if len(rows) > 0 {
		m.table.SetCursor(cursor)
	}
	m.refreshPreview()
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h

	previewW := m.previewWidth()
	tableW := w - previewW - 3

	m.table.SetWidth(tableW)
	m.table.SetHeight(h - 1) // filter line
	m.preview.SetWidth(previewW)
	m.preview.SetHeight(h)

	fixedW := 2 + 16 + 10 + 12 + 7 + numCols
	titleW := tableW - fixedW
	if titleW < 10 {
		titleW = 10
	}
	cols := m.table.Columns()
	if len(cols) == numCols {
		cols[1].Width = titleW
		m.table.SetColumns(cols)
	}
	m.refreshPreview()
}

// Selected returns the selected project, if any.
func (m *Model) Selected() *backend.Project {
	idx := m.table.Cursor()
	if idx >= 0 && idx < len(m.rows) {
		return &m.rows[idx]
	}
	return nil
}

// SelectedID returns the id of the selected project.
func (m *Model) SelectedID() string {
	if p := m.Selected(); p != nil {
		return p.ID
	}
	return ""
}

// Focus sets focus on the projects table.
func (m *Model) Focus() {
	m.focused = true
	m.table.Focus()
}

// Blur removes focus from the projects table.
func (m *Model) Blur() {
	m.focused = false
	m.table.Blur()
}

// Update handles messages for the projects view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	prev := m.SelectedID()
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	if m.SelectedID() != prev {
		m.refreshPreview()
	}
	return m, cmd
}

// View renders the table and preview side by side.
func (m Model) View() string {
	left := m.filterLine() + "\n" + m.table.View()

	previewContent := m.preview.View()
	if previewContent == "" {
		previewContent = ui.StyleDim.Render("Select a project to preview")
	}
	previewView := ui.StylePreviewBorder.
		Width(m.previewWidth()).
		Height(m.height).
		Render(previewContent)

	return lipgloss.JoinHorizontal(lipgloss.Top, left, previewView)
}

func (m *Model) filterLine() string {
	var parts []string
	if !isAll(m.query.Status) {
		parts = append(parts, "status="+m.query.Status)
	}
	if !isAll(m.query.Sprint) {
		parts = append(parts, "sprint="+m.query.Sprint)
	}
	if m.query.Search != "" {
		parts = append(parts, fmt.Sprintf("search=%q", m.query.Search))
	}
	parts = append(parts, "sort="+m.sortBy)
	line := fmt.Sprintf(" %d/%d projects  %s", len(m.rows), len(m.all), strings.Join(parts, "  "))
	if m.loading {
		line += "  (refreshing)"
	}
	return ui.StyleDim.Render(line)
}

func (m *Model) previewWidth() int {
	pw := int(float64(m.width) * previewWidthFrac)
	if pw < minPreviewWidth {
		pw = minPreviewWidth
	}
	return pw
}

func (m *Model) refreshPreview() {
	m.preview.SetContent(m.renderPreview(m.Selected()))
	m.preview.GotoTop()
}

func (m *Model) renderPreview(p *backend.Project) string {
	if p == nil {
		return ui.StyleDim.Render("No project selected")
	}

	var s strings.Builder
	s.WriteString(ui.StyleAccent.Render(p.Title) + "\n")
	s.WriteString(ui.StyleDim.Render("Status:  ") + ui.StatusBadge(p.Status, status.KindProject) + "\n")
	if p.Stack != "" {
		s.WriteString(ui.StyleDim.Render("Stack:   ") + p.Stack + "\n")
	}
	if p.Sprint != "" {
		s.WriteString(ui.StyleDim.Render("Sprint:  ") + p.Sprint + "\n")
	}
	s.WriteString(ui.StyleDim.Render("Members: ") + fmt.Sprintf("%d", m.memberCounts[p.ID]) + "\n")
	s.WriteString(ui.StyleDim.Render("Created: ") + ui.FormatTime(p.CreatedAt) + "\n")
	s.WriteString(ui.StyleDim.Render("ID:      ") + p.ID + "\n")

	s.WriteString("\n" + ui.StyleDim.Render("─── Notes ───") + "\n\n")
	if notes := ui.RenderMarkdown(p.Notes, m.previewWidth()-2); notes != "" {
		s.WriteString(notes)
	} else {
		s.WriteString(ui.StyleDim.Render("(no notes)"))
	}
	return s.String()
}

func isAll(v string) bool {
	return v == "" || strings.EqualFold(v, backend.FilterAll)
}

package modules

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/table"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/olivoil/projectboard/internal/backend"
	"github.com/olivoil/projectboard/internal/status"
	"github.com/olivoil/projectboard/internal/ui"
)

const progressWidth = 30

// Model is the modules view of one project.
type Model struct {
	table   table.Model
	project *backend.Project
	modules []backend.Module
	names   map[string]string // user id -> name
	search  string
	visible []backend.Module
	loading bool
	width   int
	height  int
}

// New creates a new modules view model.
func New() Model {
	cols := []table.Column{
		{Title: " ", Width: 2},
		{Title: "name", Width: 24},
		{Title: "status", Width: 12},
		{Title: "assignee", Width: 16},
		{Title: "description", Width: 30},
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	t.SetStyles(ui.TableStyles())

	return Model{table: t}
}

// Open targets the view at a project. Modules arrive through SetModules.
func (m *Model) Open(p backend.Project) {
	m.project = &p
	m.search = ""
	m.modules = nil
	m.rebuild()
	m.table.GotoTop()
}

// Project returns the project being shown, or nil.
func (m *Model) Project() *backend.Project { return m.project }

// ProjectID returns the id of the project being shown.
func (m *Model) ProjectID() string {
	if m.project == nil {
		return ""
	}
	return m.project.ID
}

// SetProject refreshes the project header without resetting the list.
func (m *Model) SetProject(p backend.Project) {
	if m.project != nil && m.project.ID == p.ID {
		m.project = &p
	}
}

// SetModules replaces the module list. names maps user ids to display names.
func (m *Model) SetModules(modules []backend.Module, names map[string]string) {
	m.modules = modules
	m.names = names
	m.rebuild()
}

// SetLoading marks whether a refresh is in flight.
func (m *Model) SetLoading(v bool) { m.loading = v }

// SetSearch filters by name or description.
func (m *Model) SetSearch(s string) {
	m.search = strings.ToLower(strings.TrimSpace(s))
	m.rebuild()
}

// Selected returns the selected module, if any.
func (m *Model) Selected() *backend.Module {
	idx := m.table.Cursor()
	if idx >= 0 && idx < len(m.visible) {
		return &m.visible[idx]
	}
	return nil
}

func (m *Model) rebuild() {
	selected := ""
	if s := m.Selected(); s != nil {
		selected = s.ID
	}

	m.visible = make([]backend.Module, 0, len(m.modules))
	for _, mod := range m.modules {
		if m.search != "" &&
			!strings.Contains(strings.ToLower(mod.Name), m.search) &&
			!strings.Contains(strings.ToLower(mod.Description), m.search) {
			continue
		}
		m.visible = append(m.visible, mod)
	}

	rows := make([]table.Row, len(m.visible))
	cursor := 0
	for i, mod := range m.visible {
		assignee := m.names[mod.AssignedTo]
		if assignee == "" && mod.AssignedTo != "" {
			assignee = ui.ShortID(mod.AssignedTo)
		}
		rows[i] = table.Row{
			ui.StatusIcon(mod.Status, status.KindModule),
			mod.Name,
			ui.StatusLabel(mod.Status, status.KindModule),
			assignee,
			strings.ReplaceAll(mod.Description, "\n", " "),
		}
		if mod.ID == selected {
			cursor = i
		}
	}
	m.table.SetRows(rows)
	if len(rows) > 0 {
		m.table.SetCursor(cursor)
	}
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.table.SetWidth(w)
	m.table.SetHeight(h - 3) // header and progress lines

	cols := m.table.Columns()
	if len(cols) == 5 {
		descW := w - (2 + 24 + 12 + 16) - len(cols)
		if descW < 10 {
			descW = 10
		}
		cols[4].Width = descW
		m.table.SetColumns(cols)
	}
}

// Update handles messages for the modules view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the project header, progress bar and module table.
func (m Model) View() string {
	if m.project == nil {
		return ui.StyleDim.Render("No project selected")
	}

	header := ui.StyleAccent.Render(m.project.Title) + "  " +
		ui.StatusBadge(m.project.Status, status.KindProject)
	if m.project.Sprint != "" {
		header += "  " + ui.StyleDim.Render(m.project.Sprint)
	}
	if m.loading {
		header += "  " + ui.StyleDim.Render("(refreshing)")
	}

	done, total, _ := backend.ModuleProgress(m.modules)
	progress := fmt.Sprintf("%s  %s",
		ui.ProgressBar(done, total, progressWidth),
		ui.StyleDim.Render(fmt.Sprintf("%d/%d modules done", done, total)))

	body := m.table.View()
	if len(m.visible) == 0 {
		body = ui.StyleDim.Render("(no modules)")
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, progress, "", body)
}

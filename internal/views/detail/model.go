package detail

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"

	"github.com/olivoil/projectboard/internal/backend"
	"github.com/olivoil/projectboard/internal/status"
	"github.com/olivoil/projectboard/internal/ui"
)

// Model is the full-screen project viewer.
type Model struct {
	viewport viewport.Model
	project  *backend.Project
	modules  []backend.Module
	members  []string
	width    int
	height   int
	active   bool
}

// New creates a new detail view model.
func New() Model {
	vp := viewport.New(viewport.WithWidth(80), viewport.WithHeight(24))
	return Model{
		viewport: vp,
	}
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.SetWidth(w - 2)
	m.viewport.SetHeight(h)
	if m.project != nil {
		m.setContent()
	}
}

// Show opens the detail view for a project. members are display names.
func (m *Model) Show(p backend.Project, modules []backend.Module, members []string) {
	m.project = &p
	m.modules = modules
	m.members = members
	m.active = true
	m.setContent()
	m.viewport.GotoTop()
}

// Refresh updates the content when the shown project or its modules change.
func (m *Model) Refresh(p backend.Project, modules []backend.Module) {
	if m.project == nil || m.project.ID != p.ID {
		return
	}
	m.project = &p
	m.modules = modules
	m.setContent()
}

// Hide closes the detail view.
func (m *Model) Hide() {
	m.active = false
	m.project = nil
}

// Active returns whether the detail view is visible.
func (m *Model) Active() bool {
	return m.active
}

// Project returns the project being viewed.
func (m *Model) Project() *backend.Project {
	return m.project
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if !m.active {
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	return m.viewport.View()
}

func (m *Model) setContent() {
	p := m.project
	var s strings.Builder

	s.WriteString(ui.StyleAccent.Render(p.Title))
	s.WriteString("  " + ui.StatusBadge(p.Status, status.KindProject) + "\n")
	if p.Stack != "" {
		s.WriteString(ui.StyleDim.Render("stack   ") + p.Stack + "\n")
	}
	if p.Sprint != "" {
		s.WriteString(ui.StyleDim.Render("sprint  ") + p.Sprint + "\n")
	}
	if len(m.members) > 0 {
		s.WriteString(ui.StyleDim.Render("members ") + strings.Join(m.members, ", ") + "\n")
	}
	s.WriteString(ui.StyleDim.Render("created ") + ui.FormatTime(p.CreatedAt))
	s.WriteString(ui.StyleDim.Render("  id ") + p.ID + "\n")
	s.WriteString(ui.StyleDim.Render(strings.Repeat("─", 40)) + "\n\n")

	if notes := ui.RenderMarkdown(p.Notes, m.width-4); notes != "" {
		s.WriteString(notes + "\n\n")
	} else {
		s.WriteString(ui.StyleDim.Render("(no notes)") + "\n\n")
	}

	done, total, _ := backend.ModuleProgress(m.modules)
	s.WriteString(ui.StyleHeader.Render("Modules") + "  " + ui.ProgressBar(done, total, 20) + "\n\n")
	if len(m.modules) == 0 {
		s.WriteString(ui.StyleDim.Render("(no modules)"))
	}
	for _, mod := range m.modules {
		s.WriteString(fmt.Sprintf("%s  %s", ui.StatusBadge(mod.Status, status.KindModule), mod.Name))
		if mod.Description != "" {
			s.WriteString("  " + ui.StyleDim.Render(ui.Truncate(mod.Description, 60)))
		}
		s.WriteString("\n")
	}

	m.viewport.SetContent(s.String())
}

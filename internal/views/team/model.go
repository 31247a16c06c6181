package team

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
	previewWidthFrac = 0.45
	minPreviewWidth  = 30
)

// Model is the team view.
type Model struct {
	table   table.Model
	preview viewport.Model

	all     []backend.Member
	members []backend.Member // filtered
	modules []backend.Module // all modules, for the assignment preview
	query   backend.MemberQuery

	width   int
	height  int
	focused bool
}

// New creates a new team view model.
func New() Model {
	cols := []table.Column{
		{Title: "name", Width: 20},
		{Title: "email", Width: 26},
		{Title: "role", Width: 10},
		{Title: "projects", Width: 8},
		{Title: "active", Width: 6},
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(false),
		table.WithHeight(10),
	)
	t.SetStyles(ui.TableStyles())

	vp := viewport.New(viewport.WithWidth(40), viewport.WithHeight(10))

	return Model{
		table:   t,
		preview: vp,
	}
}

// SetMembers updates the member data. Derived fields must already be
// joined (see backend.JoinMembers).
func (m *Model) SetMembers(members []backend.Member) {
	m.all = members
	m.rebuild()
}

// SetModules stores module data for the assignment preview.
func (m *Model) SetModules(modules []backend.Module) {
	m.modules = modules
	m.updatePreview()
}

// SetSearch filters by name or email.
func (m *Model) SetSearch(s string) {
	m.query.Search = s
	m.rebuild()
}

// SetRole filters by role name ("all" clears).
func (m *Model) SetRole(role string) {
	m.query.Role = role
	m.rebuild()
}

// ClearFilters removes every filter.
func (m *Model) ClearFilters() {
	m.query = backend.MemberQuery{}
	m.rebuild()
}

// CycleRoleFilter steps the role filter through all, then each role present.
func (m *Model) CycleRoleFilter() {
	values := append([]string{backend.FilterAll}, backend.UniqueRoles(m.all)...)
	cur := m.query.Role
	if cur == "" {
		cur = backend.FilterAll
	}
	next := values[0]
	for i, v := range values {
		if strings.EqualFold(v, cur) {
			next = values[(i+1)%len(values)]
			break
		}
	}
	m.SetRole(next)
}

// Roles returns the distinct role names of all members.
func (m *Model) Roles() []string { return backend.UniqueRoles(m.all) }

// Visible returns the members currently listed.
func (m *Model) Visible() []backend.Member { return m.members }

func (m *Model) rebuild() {
	selected := ""
	if s := m.Selected(); s != nil {
		selected = s.ID
	}

	m.members = backend.FilterMembers(m.all, m.query)
	rows := make([]table.Row, len(m.members))
	cursor := 0
	for i, mem := range m.members {
		rows[i] = table.Row{
			mem.Name,
			mem.Email,
			mem.RoleName,
			fmt.Sprintf("%d", mem.ProjectCount),
			fmt.Sprintf("%d", mem.ActiveModules),
		}
		if mem.ID == selected {
			cursor = i
		}
	}
	m.table.SetRows(rows)
	if len(rows) > 0 {
		m.table.SetCursor(cursor)
	}
	m.updatePreview()
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h

	previewW := int(float64(w) * previewWidthFrac)
	if previewW < minPreviewWidth {
		previewW = minPreviewWidth
	}
	tableW := w - previewW - 3

	m.table.SetWidth(tableW)
	m.table.SetHeight(h - 1)
	m.preview.SetWidth(previewW)
	m.preview.SetHeight(h)
}

// Selected returns the currently selected member, if any.
func (m *Model) Selected() *backend.Member {
	idx := m.table.Cursor()
	if idx >= 0 && idx < len(m.members) {
		return &m.members[idx]
	}
	return nil
}

// Focus sets focus on the team table.
func (m *Model) Focus() {
	m.focused = true
	m.table.Focus()
}

// Blur removes focus from the team table.
func (m *Model) Blur() {
	m.focused = false
	m.table.Blur()
}

// Update handles messages for the team view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	prev := m.table.Cursor()
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	if m.table.Cursor() != prev {
		m.updatePreview()
	}
	return m, cmd
}

// View renders the team view.
func (m Model) View() string {
	line := fmt.Sprintf(" %d/%d members", len(m.members), len(m.all))
	if !strings.EqualFold(m.query.Role, backend.FilterAll) && m.query.Role != "" {
		line += "  role=" + m.query.Role
	}
	if m.query.Search != "" {
		line += fmt.Sprintf("  search=%q", m.query.Search)
	}
	tableView := ui.StyleDim.Render(line) + "\n" + m.table.View()
	previewStyle := ui.StylePreviewBorder.Height(m.height)
	previewView := previewStyle.Render(m.preview.View())
	return lipgloss.JoinHorizontal(lipgloss.Top, tableView, previewView)
}

func (m *Model) updatePreview() {
	mem := m.Selected()
	if mem == nil {
		m.preview.SetContent(ui.StyleDim.Render("No member selected"))
		return
	}

	var b strings.Builder

	b.WriteString(ui.StyleAccent.Render(mem.Name) + "\n")
	b.WriteString(ui.StyleDim.Render("Email:   ") + mem.Email + "\n")
	b.WriteString(ui.StyleDim.Render("Role:    ") + mem.RoleName + "\n")
	b.WriteString(ui.StyleDim.Render("Joined:  ") + ui.FormatTime(mem.CreatedAt) + "\n")
	b.WriteString(ui.StyleDim.Render("ID:      ") + mem.ID + "\n")

	b.WriteString("\n" + ui.StyleDim.Render("─── Assigned modules ───") + "\n\n")

	count := 0
	for _, mod := range m.modules {
		if mod.AssignedTo != mem.ID {
			continue
		}
		b.WriteString(fmt.Sprintf("%s  %s  %s\n",
			ui.StatusIcon(mod.Status, status.KindModule),
			ui.Truncate(mod.Name, 28),
			ui.StyleDim.Render(ui.ShortID(mod.ProjectID))))
		count++
	}
	if count == 0 {
		b.WriteString(ui.StyleDim.Render("(no modules)"))
	}

	m.preview.SetContent(b.String())
	m.preview.GotoTop()
}

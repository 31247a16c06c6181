package app

import (
	"context"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"go.uber.org/zap"

	"github.com/olivoil/projectboard/internal/auth"
	"github.com/olivoil/projectboard/internal/backend"
	"github.com/olivoil/projectboard/internal/mirror"
	"github.com/olivoil/projectboard/internal/status"
	"github.com/olivoil/projectboard/internal/ui"
	"github.com/olivoil/projectboard/internal/views/command"
	"github.com/olivoil/projectboard/internal/views/dashboard"
	"github.com/olivoil/projectboard/internal/views/detail"
	"github.com/olivoil/projectboard/internal/views/modules"
	"github.com/olivoil/projectboard/internal/views/projects"
	"github.com/olivoil/projectboard/internal/views/team"
)

// Options configures Run.
type Options struct {
	Client  *backend.Client
	Profile auth.Profile
	Logger  *zap.Logger

	// CommandArgs are prepended to every command line invocation of the
	// binary, e.g. ["--config", path].
	CommandArgs []string
}

// Run starts the TUI application and blocks until it exits.
func Run(ctx context.Context, opts Options) error {
	m := newModel(ctx, opts)
	if err := m.data.start(); err != nil {
		_ = m.data.stop()
		return err
	}
	defer func() {
		if err := m.data.stop(); err != nil {
			m.log.Warn("stop mirrors", zap.Error(err))
		}
	}()

	p := tea.NewProgram(m)
	_, err := p.Run()
	close(m.done)
	return err
}

// viewMode identifies which view is active.
type viewMode int

const (
	viewDashboard viewMode = iota
	viewProjects
	viewTeam
	viewModules
	viewDetail
)

var tabs = []struct {
	mode  viewMode
	title string
}{
	{viewDashboard, "Dashboard"},
	{viewProjects, "Projects"},
	{viewTeam, "Team"},
}

// model is the root application model.
type model struct {
	width    int
	height   int
	mode     viewMode
	prevMode viewMode
	ready    bool
	showHelp bool
	keys     KeyMap
	help     help.Model

	ctx     context.Context
	client  *backend.Client
	profile auth.Profile
	log     *zap.Logger
	cmdArgs []string

	data   *mirrors
	notify chan struct{}
	done   chan struct{}

	dashboardView dashboard.Model
	projectsView  projects.Model
	teamView      team.Model
	modulesView   modules.Model
	detailView    detail.Model
	commandView   command.Model
}

func newModel(ctx context.Context, opts Options) model {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	notify := make(chan struct{}, 1)
	signal := func() {
		select {
		case notify <- struct{}{}:
		default: // a wake-up is already pending
		}
	}

	m := model{
		mode:          viewDashboard,
		keys:          DefaultKeyMap(),
		help:          help.New(),
		ctx:           ctx,
		client:        opts.Client,
		profile:       opts.Profile,
		log:           log,
		cmdArgs:       opts.CommandArgs,
		data:          newMirrors(opts.Client.Store(), log, signal),
		notify:        notify,
		done:          make(chan struct{}),
		dashboardView: dashboard.New(),
		projectsView:  projects.New(),
		teamView:      team.New(),
		modulesView:   modules.New(),
		detailView:    detail.New(),
		commandView:   command.New(),
	}
	m.projectsView.Blur()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.refreshAll(),
		m.waitForChange(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.layoutViews()
		return m, nil

	case MirrorChangedMsg:
		m.syncViews()
		return m, m.waitForChange()

	case RefreshedMsg:
		if msg.Err != nil {
			m.commandView.SetError(msg.Err)
		}
		return m, nil

	case MutationResultMsg:
		if msg.Err != nil {
			m.log.Warn("edit failed", zap.String("what", msg.What), zap.Error(msg.Err))
			m.commandView.SetError(fmt.Errorf("%s: %w", msg.What, msg.Err))
			return m, m.refreshTable(msg.Table)
		}
		return m, nil

	case command.ExecuteMsg:
		m.commandView.SetRunning(msg.Args)
		return m, m.executeCommand(msg.Args)

	case command.SearchMsg:
		m.applySearch(msg.Term)
		m.commandView.Blur()
		m.restorePreviousView()
		return m, nil

	case command.FilterMsg:
		m.applyFilter(msg.Field, msg.Value)
		m.commandView.Blur()
		m.restorePreviousView()
		return m, nil

	case ActionResultMsg:
		if msg.Err != nil {
			m.commandView.SetError(msg.Err)
		} else {
			out := strings.TrimRight(msg.Output, "\n")
			if out == "" {
				out = ui.StyleDim.Render("(done)")
			}
			m.commandView.SetResult(out)
		}
		// Writes made by the subprocess reach the mirrors through the feed.
		return m, nil

	case tea.KeyPressMsg:
		// If command line has focus, let it handle keys first.
		if m.commandView.Focused() {
			var cmd tea.Cmd
			m.commandView, cmd = m.commandView.Update(msg)
			if !m.commandView.Focused() {
				m.restorePreviousView()
			}
			return m, cmd
		}
		return m.handleKey(msg)
	}

	return m.updateActiveView(msg)
}

func (m model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	// Detail view has its own key handling.
	if m.mode == viewDetail {
		switch {
		case key.Matches(msg, m.keys.Back), msg.String() == "q":
			m.detailView.Hide()
			m.mode = m.prevMode
			m.focusCurrentView()
			return m, nil
		case msg.String() == "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.detailView, cmd = m.detailView.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Tab):
		m.nextTab()
		return m, nil

	case key.Matches(msg, m.keys.Back):
		if m.commandView.HasResult() {
			m.commandView.ClearResult()
			return m, nil
		}
		if m.mode == viewModules {
			m.closeModules()
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		return m.handleEnter()

	case key.Matches(msg, m.keys.Detail):
		return m.openDetail()

	case key.Matches(msg, m.keys.Status):
		return m.cycleStatus()

	case key.Matches(msg, m.keys.Delete):
		return m.deleteSelected()

	case key.Matches(msg, m.keys.Filter):
		switch m.mode {
		case viewProjects:
			m.projectsView.CycleStatusFilter()
		case viewTeam:
			m.teamView.CycleRoleFilter()
		}
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.Command):
		m.prevMode = m.mode
		m.blurViews()
		cmd := m.commandView.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.Refresh):
		return m, m.refreshAll()
	}

	return m.updateActiveView(msg)
}

func (m *model) nextTab() {
	if m.mode == viewModules {
		m.closeModules()
	}
	next := tabs[0].mode
	for i, t := range tabs {
		if t.mode == m.mode {
			next = tabs[(i+1)%len(tabs)].mode
			break
		}
	}
	m.blurViews()
	m.mode = next
	m.focusCurrentView()
}

func (m model) handleEnter() (tea.Model, tea.Cmd) {
	switch m.mode {
	case viewProjects:
		p := m.projectsView.Selected()
		if p == nil {
			return m, nil
		}
		cmd := m.openModules(*p)
		return m, cmd
	case viewDashboard:
		m.blurViews()
		m.mode = viewProjects
		m.focusCurrentView()
	}
	return m, nil
}

// openModules retargets the modules mirror at project p and switches to the
// modules view.
func (m *model) openModules(p backend.Project) tea.Cmd {
	m.blurViews()
	m.mode = viewModules
	m.modulesView.Open(p)
	if err := m.data.modules.Retarget(backend.TableModules, backend.Eq("project_id", p.ID)); err != nil {
		m.commandView.SetError(err)
		return nil
	}
	// Retarget keeps the previous project's rows until the refresh lands.
	m.data.modules.SetData(func([]backend.Module) []backend.Module { return nil })
	return m.refresh(m.data.modules)
}

func (m *model) closeModules() {
	m.mode = viewProjects
	m.focusCurrentView()
}

func (m model) openDetail() (tea.Model, tea.Cmd) {
	var p *backend.Project
	switch m.mode {
	case viewProjects:
		p = m.projectsView.Selected()
	case viewModules:
		p = m.modulesView.Project()
	}
	if p == nil {
		return m, nil
	}
	mods := m.projectModules(p.ID)
	m.prevMode = m.mode
	m.blurViews()
	m.mode = viewDetail
	m.detailView.Show(*p, mods, m.projectMemberNames(p.ID))
	return m, nil
}

// cycleStatus advances the selected project or module to its next status.
// The mirror is updated before the write so the list reacts at once.
func (m model) cycleStatus() (tea.Model, tea.Cmd) {
	switch m.mode {
	case viewProjects:
		p := m.projectsView.Selected()
		if p == nil {
			return m, nil
		}
		if !m.profile.CanManageProjects() {
			m.commandView.SetError(auth.ErrForbidden)
			return m, nil
		}
		id, next := p.ID, status.Next(p.Status, status.KindProject)
		m.data.projects.SetData(func(ps []backend.Project) []backend.Project {
			for i := range ps {
				if ps[i].ID == id {
					ps[i].Status = next
				}
			}
			return ps
		})
		client, ctx := m.client, m.ctx
		return m, func() tea.Msg {
			err := client.UpdateProjectStatus(ctx, id, next)
			return MutationResultMsg{What: "update project status", Table: backend.TableProjects, Err: err}
		}

	case viewModules:
		mod := m.modulesView.Selected()
		if mod == nil {
			return m, nil
		}
		if !m.profile.CanManageProjects() && mod.AssignedTo != m.profile.ID {
			m.commandView.SetError(auth.ErrForbidden)
			return m, nil
		}
		id, next := mod.ID, status.Next(mod.Status, status.KindModule)
		setStatus := func(ms []backend.Module) []backend.Module {
			for i := range ms {
				if ms[i].ID == id {
					ms[i].Status = next
				}
			}
			return ms
		}
		m.data.modules.SetData(setStatus)
		m.data.allModules.SetData(setStatus)
		client, ctx := m.client, m.ctx
		return m, func() tea.Msg {
			err := client.UpdateModuleStatus(ctx, id, next)
			return MutationResultMsg{What: "update module status", Table: backend.TableModules, Err: err}
		}
	}
	return m, nil
}

// deleteSelected removes the selected record optimistically.
func (m model) deleteSelected() (tea.Model, tea.Cmd) {
	client, ctx := m.client, m.ctx
	switch m.mode {
	case viewProjects:
		p := m.projectsView.Selected()
		if p == nil {
			return m, nil
		}
		if !m.profile.CanManageProjects() {
			m.commandView.SetError(auth.ErrForbidden)
			return m, nil
		}
		id := p.ID
		m.data.projects.SetData(func(ps []backend.Project) []backend.Project {
			return without(ps, id)
		})
		return m, func() tea.Msg {
			err := client.DeleteProject(ctx, id)
			return MutationResultMsg{What: "delete project", Table: backend.TableProjects, Err: err}
		}

	case viewModules:
		mod := m.modulesView.Selected()
		if mod == nil {
			return m, nil
		}
		if !m.profile.CanManageProjects() {
			m.commandView.SetError(auth.ErrForbidden)
			return m, nil
		}
		id := mod.ID
		drop := func(ms []backend.Module) []backend.Module { return without(ms, id) }
		m.data.modules.SetData(drop)
		m.data.allModules.SetData(drop)
		return m, func() tea.Msg {
			err := client.DeleteModule(ctx, id)
			return MutationResultMsg{What: "delete module", Table: backend.TableModules, Err: err}
		}

	case viewTeam:
		mem := m.teamView.Selected()
		if mem == nil {
			return m, nil
		}
		if !m.profile.CanManageTeam() || mem.ID == m.profile.ID {
			m.commandView.SetError(auth.ErrForbidden)
			return m, nil
		}
		id := mem.ID
		m.data.users.SetData(func(us []backend.Member) []backend.Member {
			return without(us, id)
		})
		return m, func() tea.Msg {
			err := client.RemoveMember(ctx, id)
			return MutationResultMsg{What: "remove member", Table: backend.TableUsers, Err: err}
		}
	}
	return m, nil
}

func without[T mirror.Record](rows []T, id string) []T {
	out := rows[:0]
	for _, r := range rows {
		if r.RecordID() != id {
			out = append(out, r)
		}
	}
	return out
}

func (m *model) applySearch(term string) {
	switch m.prevMode {
	case viewProjects, viewDashboard:
		m.prevMode = viewProjects
		m.projectsView.SetSearch(term)
	case viewTeam:
		m.teamView.SetSearch(term)
	case viewModules:
		m.modulesView.SetSearch(term)
	}
}

func (m *model) applyFilter(field, value string) {
	switch field {
	case "sprint":
		m.projectsView.SetSprint(value)
		m.prevMode = viewProjects
	case "status":
		m.projectsView.SetStatusFilter(value)
		m.prevMode = viewProjects
	case "sort":
		m.projectsView.SetSort(value)
		m.prevMode = viewProjects
	case "role":
		m.teamView.SetRole(value)
		m.prevMode = viewTeam
	case "clear":
		m.projectsView.ClearFilters()
		m.teamView.ClearFilters()
		m.modulesView.SetSearch("")
	}
}

func (m *model) restorePreviousView() {
	m.mode = m.prevMode
	m.focusCurrentView()
}

func (m *model) blurViews() {
	m.projectsView.Blur()
	m.teamView.Blur()
}

func (m *model) focusCurrentView() {
	switch m.mode {
	case viewProjects:
		m.projectsView.Focus()
	case viewTeam:
		m.teamView.Focus()
	}
}

func (m model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.mode {
	case viewDashboard:
		m.dashboardView, cmd = m.dashboardView.Update(msg)
	case viewProjects:
		m.projectsView, cmd = m.projectsView.Update(msg)
	case viewTeam:
		m.teamView, cmd = m.teamView.Update(msg)
	case viewModules:
		m.modulesView, cmd = m.modulesView.Update(msg)
	case viewDetail:
		m.detailView, cmd = m.detailView.Update(msg)
	}
	return m, cmd
}

// syncViews pushes the mirrored collections into every view.
func (m *model) syncViews() {
	d := m.data
	projectRows := d.projects.Data()
	users := d.users.Data()
	roles := d.roles.Data()
	allMods := d.allModules.Data()
	memberships := d.members.Data()

	counts := memberCounts(memberships)
	m.projectsView.SetProjects(projectRows, counts)
	m.projectsView.SetLoading(d.projects.Loading())

	members := backend.JoinMembers(users, roles, projectRows, allMods)
	m.teamView.SetMembers(members)
	m.teamView.SetModules(allMods)

	m.dashboardView.SetData(projectRows, allMods, len(users))

	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	m.modulesView.SetModules(d.modules.Data(), names)
	m.modulesView.SetLoading(d.modules.Loading())
	if id := m.modulesView.ProjectID(); id != "" {
		if p, ok := d.projects.Find(id); ok {
			m.modulesView.SetProject(p)
			m.detailView.Refresh(p, m.projectModules(id))
		} else if m.mode == viewModules && !d.projects.Loading() {
			m.closeModules()
		}
	}

	c := m.commandView.Completer()
	c.SetProjectIDs(ids(projectRows))
	c.SetModuleIDs(ids(allMods))
	c.SetMemberIDs(ids(users))
	c.SetSprints(m.projectsView.Sprints())
	c.SetRoles(backend.UniqueRoles(members))
}

func (m *model) projectModules(projectID string) []backend.Module {
	if projectID == m.modulesView.ProjectID() {
		return m.data.modules.Data()
	}
	var out []backend.Module
	for _, mod := range m.data.allModules.Data() {
		if mod.ProjectID == projectID {
			out = append(out, mod)
		}
	}
	return out
}

func (m *model) projectMemberNames(projectID string) []string {
	var names []string
	for _, pm := range m.data.members.Data() {
		if pm.ProjectID != projectID {
			continue
		}
		if u, ok := m.data.users.Find(pm.UserID); ok {
			names = append(names, u.Name)
		}
	}
	return names
}

// memberCounts counts distinct users per project.
func memberCounts(memberships []backend.ProjectMember) map[string]int {
	seen := map[[2]string]bool{}
	out := map[string]int{}
	for _, pm := range memberships {
		k := [2]string{pm.ProjectID, pm.UserID}
		if seen[k] {
			continue
		}
		seen[k] = true
		out[pm.ProjectID]++
	}
	return out
}

func ids[T mirror.Record](rows []T) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.RecordID()
	}
	return out
}

func (m model) View() tea.View {
	var v tea.View
	v.AltScreen = true

	if !m.ready {
		v.SetContent("Loading...")
		return v
	}

	var b strings.Builder

	// Help overlay.
	if m.showHelp {
		v.SetContent(m.renderHelpOverlay())
		return v
	}

	// Full-screen detail view (no header/footer).
	if m.mode == viewDetail {
		b.WriteString(m.detailView.View())
		b.WriteByte('\n')
		b.WriteString(ui.StyleDim.Render(" esc back  │  j/k scroll  │  ctrl+c quit"))
		v.SetContent(b.String())
		return v
	}

	// Header (3 lines: title, tabs, bar).
	b.WriteString(m.renderHeader())
	b.WriteByte('\n')

	menuHeight := m.commandView.MenuHeight()

	// Resize content area to fit.
	contentHeight := m.height - 4 - menuHeight // 4 = header(3) + bottom(1)
	if contentHeight < 5 {
		contentHeight = 5
	}
	m.dashboardView.SetSize(m.width, contentHeight)
	m.projectsView.SetSize(m.width, contentHeight)
	m.teamView.SetSize(m.width, contentHeight)
	m.modulesView.SetSize(m.width, contentHeight)

	// Main content area.
	if resultView := m.commandView.ViewResult(); resultView != "" {
		b.WriteString(resultView)
	} else {
		switch m.mode {
		case viewDashboard:
			b.WriteString(m.dashboardView.View())
		case viewProjects:
			b.WriteString(m.projectsView.View())
		case viewTeam:
			b.WriteString(m.teamView.View())
		case viewModules:
			b.WriteString(m.modulesView.View())
		}
	}

	// Bottom: command input (with menu) or help line.
	b.WriteByte('\n')
	if m.commandView.Focused() {
		b.WriteString(m.commandView.ViewInput())
	} else {
		b.WriteString(m.renderHelpLine())
	}

	v.SetContent(b.String())
	return v
}

func (m *model) renderHeader() string {
	title := ui.StyleHeader.Render(fmt.Sprintf(" %s ", AppName))

	user := ui.StyleAccent.Render(m.profile.Name) + ui.StyleDim.Render(" ("+m.profile.RoleName+")")

	var live string
	switch {
	case m.data.loading():
		live = ui.StyleDim.Render("◌ syncing")
	case m.data.live():
		live = ui.StyleActive.Render("● live")
	default:
		live = ui.StyleInactive.Render("○ offline")
	}

	st := m.dashboardView.Stats()
	stats := ui.StyleDim.Render(fmt.Sprintf(
		"projects: %d   modules: %d/%d done   members: %d",
		st.TotalProjects, st.CompletedModules, st.TotalModules, st.ActiveMembers,
	))

	sep := ui.StyleDim.Render("   ")
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		title, sep, user, sep, live, sep, stats,
	)

	var tabBar []string
	for _, t := range tabs {
		active := t.mode == m.mode || (t.mode == viewProjects && m.mode == viewModules)
		if active {
			tabBar = append(tabBar, ui.StyleTabActive.Render(t.title))
		} else {
			tabBar = append(tabBar, ui.StyleTab.Render(t.title))
		}
	}
	if m.mode == viewModules {
		if p := m.modulesView.Project(); p != nil {
			tabBar = append(tabBar, ui.StyleDim.Render("› "+ui.Truncate(p.Title, 30)))
		}
	}

	bar := strings.Repeat("━", m.width)
	return header + "\n" + strings.Join(tabBar, " ") + "\n" + ui.StyleDim.Render(bar)
}

func (m *model) renderHelpLine() string {
	k := m.keys
	var bindings []key.Binding
	switch m.mode {
	case viewDashboard:
		bindings = []key.Binding{k.Tab, k.Command, k.Refresh, k.Help, k.Quit}
	case viewProjects:
		bindings = []key.Binding{k.Enter, k.Detail, k.Status, k.Delete, k.Filter, k.Command, k.Tab, k.Quit}
	case viewModules:
		bindings = []key.Binding{k.Status, k.Delete, k.Detail, k.Back, k.Command, k.Quit}
	case viewTeam:
		bindings = []key.Binding{k.Delete, k.Filter, k.Command, k.Tab, k.Quit}
	}
	return " " + m.help.ShortHelpView(bindings)
}

func (m *model) renderHelpOverlay() string {
	title := ui.StyleHeader.Render(fmt.Sprintf(" %s help ", AppName))
	help := `
  Navigation
    ↑/↓, j/k       Navigate list
    tab             Dashboard → Projects → Team
    enter           Open the project's modules
    v               View project notes full-screen
    esc             Back to previous view
    q, ctrl+c       Quit

  Editing
    s               Next status (project or module)
    d               Delete project / module, remove member
    f               Cycle status filter (projects) or role filter (team)

  Command Line
    /               Open command line
    enter           Execute command
    tab             Tab completion
    esc             Close command line

  Commands
    project add X   Create project X
    module add P X  Add module X to project P
    sprint X        Show only sprint X
    status X        Show only status X
    role X          Show only role X
    sort title      Sort projects (created, title, status)
    clear           Clear filters
    <anything>      Search the current list

  Other
    ctrl+l          Refresh all data
    ?               Toggle this help

  ` + ui.StyleDim.Render("Press ? to close")
	return title + "\n" + help
}

func (m *model) layoutViews() {
	viewHeight := m.height - 4
	if viewHeight < 5 {
		viewHeight = 5
	}
	m.dashboardView.SetSize(m.width, viewHeight)
	m.projectsView.SetSize(m.width, viewHeight)
	m.teamView.SetSize(m.width, viewHeight)
	m.modulesView.SetSize(m.width, viewHeight)
	m.commandView.SetSize(m.width, viewHeight)
	m.detailView.SetSize(m.width, m.height-1) // full height minus help line
}

// --- Commands ---

// waitForChange blocks until a mirror signals a change.
func (m model) waitForChange() tea.Cmd {
	notify, done := m.notify, m.done
	return func() tea.Msg {
		select {
		case <-notify:
			return MirrorChangedMsg{}
		case <-done:
			return nil
		}
	}
}

type refresher interface {
	Refresh(ctx context.Context) error
	Table() string
}

func (m *model) refresh(r refresher) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return RefreshedMsg{Table: r.Table(), Err: r.Refresh(ctx)}
	}
}

func (m *model) refreshAll() tea.Cmd {
	var cmds []tea.Cmd
	for _, r := range m.data.all() {
		cmds = append(cmds, m.refresh(r))
	}
	return tea.Batch(cmds...)
}

// refreshTable refreshes every mirror of table.
func (m *model) refreshTable(table string) tea.Cmd {
	var cmds []tea.Cmd
	for _, r := range m.data.all() {
		if r.Table() == table {
			cmds = append(cmds, m.refresh(r))
		}
	}
	return tea.Batch(cmds...)
}

func (m *model) executeCommand(args []string) tea.Cmd {
	client := m.client
	full := append(append([]string{}, m.cmdArgs...), args...)
	return func() tea.Msg {
		out, err := client.RunCommand(full...)
		return ActionResultMsg{Output: string(out), Err: err}
	}
}

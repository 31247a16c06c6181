package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/olivoil/projectboard/internal/status"
)

// ErrInvalid is returned when a mutation fails validation.
var ErrInvalid = errors.New("invalid input")

// UnassignedSprint buckets projects without a sprint in dashboard stats.
const UnassignedSprint = "Unassigned"

// Client is the typed API over the store, plus access to the projectboard
// binary for commands typed into the TUI command line.
type Client struct {
	store *Store
	log   *zap.Logger
	bin   string // path or name of the CLI binary
}

// NewClient creates a client over store. The CLI binary defaults to the
// running executable.
func NewClient(store *Store, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	bin, err := os.Executable()
	if err != nil {
		bin = "projectboard"
	}
	return &Client{store: store, log: log, bin: bin}
}

// Store returns the underlying store.
func (c *Client) Store() *Store { return c.store }

// --- Projects ---

// NewProject is the input of CreateProject.
type NewProject struct {
	Title     string
	Stack     string
	Sprint    string
	Notes     string
	Status    string
	CreatedBy string   // user id of the creator
	Members   []string // user ids added as project members
}

// Projects returns all projects in insertion order.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	return queryAll[Project](ctx, c.store, TableProjects, nil)
}

// Project returns the project with id.
func (c *Client) Project(ctx context.Context, id string) (Project, error) {
	ps, err := queryAll[Project](ctx, c.store, TableProjects, Eq("id", id))
	if err != nil {
		return Project{}, err
	}
	if len(ps) == 0 {
		return Project{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return ps[0], nil
}

// CreateProject inserts a project and its memberships. The creator is added
// as owner, every other member with the "member" role.
func (c *Client) CreateProject(ctx context.Context, in NewProject) (string, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return "", fmt.Errorf("%w: project title is required", ErrInvalid)
	}
	st := status.Normalize(strings.TrimSpace(in.Status), status.KindProject)
	if st == "" {
		st = status.ProjectStatuses()[0].Value
	}
	if !status.Valid(st, status.KindProject) {
		return "", fmt.Errorf("%w: project status %q", ErrInvalid, in.Status)
	}

	id, err := c.store.Insert(ctx, TableProjects, Row{
		"title":      title,
		"stack":      strings.TrimSpace(in.Stack),
		"sprint":     strings.TrimSpace(in.Sprint),
		"notes":      in.Notes,
		"status":     st,
		"created_by": in.CreatedBy,
	})
	if err != nil {
		return "", err
	}

	seen := map[string]bool{}
	add := func(userID, role string) error {
		if userID == "" || seen[userID] {
			return nil
		}
		seen[userID] = true
		_, err := c.store.Insert(ctx, TableProjectMembers, Row{
			"project_id":      id,
			"user_id":         userID,
			"role_in_project": role,
		})
		return err
	}
	if err := add(in.CreatedBy, "owner"); err != nil {
		return id, fmt.Errorf("add project owner: %w", err)
	}
	for _, m := range in.Members {
		if err := add(m, "member"); err != nil {
			return id, fmt.Errorf("add project member %s: %w", m, err)
		}
	}
	c.log.Info("project created", zap.String("id", id), zap.String("title", title))
	return id, nil
}

// UpdateProjectStatus sets a project's status. Either vocabulary is accepted.
func (c *Client) UpdateProjectStatus(ctx context.Context, id, value string) error {
	st := status.Normalize(strings.TrimSpace(value), status.KindProject)
	if !status.Valid(st, status.KindProject) {
		return fmt.Errorf("%w: project status %q", ErrInvalid, value)
	}
	return c.store.Update(ctx, TableProjects, id, Row{"status": st})
}

// UpdateProject applies a patch to a project. Status values are normalised.
func (c *Client) UpdateProject(ctx context.Context, id string, patch Row) error {
	if v, ok := patch["status"].(string); ok {
		st := status.Normalize(v, status.KindProject)
		if !status.Valid(st, status.KindProject) {
			return fmt.Errorf("%w: project status %q", ErrInvalid, v)
		}
		patch["status"] = st
	}
	if v, ok := patch["title"].(string); ok && strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: project title is required", ErrInvalid)
	}
	return c.store.Update(ctx, TableProjects, id, patch)
}

// DeleteProject removes a project together with its modules and memberships.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	if err := c.store.Delete(ctx, TableProjects, id); err != nil {
		return err
	}
	c.log.Info("project deleted", zap.String("id", id))
	return nil
}

// ProjectMembers returns the memberships of a project.
func (c *Client) ProjectMembers(ctx context.Context, projectID string) ([]ProjectMember, error) {
	return queryAll[ProjectMember](ctx, c.store, TableProjectMembers, Eq("project_id", projectID))
}

// --- Modules ---

// NewModule is the input of CreateModule.
type NewModule struct {
	ProjectID   string
	Name        string
	Description string
	Status      string
	AssignedTo  string
}

// Modules returns the modules of a project, or every module when projectID
// is empty.
func (c *Client) Modules(ctx context.Context, projectID string) ([]Module, error) {
	var f *Filter
	if projectID != "" {
		f = Eq("project_id", projectID)
	}
	return queryAll[Module](ctx, c.store, TableModules, f)
}

// Module returns the module with id.
func (c *Client) Module(ctx context.Context, id string) (Module, error) {
	ms, err := queryAll[Module](ctx, c.store, TableModules, Eq("id", id))
	if err != nil {
		return Module{}, err
	}
	if len(ms) == 0 {
		return Module{}, fmt.Errorf("module %s: %w", id, ErrNotFound)
	}
	return ms[0], nil
}

// CreateModule inserts a module into a project.
func (c *Client) CreateModule(ctx context.Context, in NewModule) (string, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", fmt.Errorf("%w: module name is required", ErrInvalid)
	}
	if in.ProjectID == "" {
		return "", fmt.Errorf("%w: project id is required", ErrInvalid)
	}
	if _, err := c.Project(ctx, in.ProjectID); err != nil {
		return "", err
	}
	st := status.Normalize(strings.TrimSpace(in.Status), status.KindModule)
	if st == "" {
		st = status.ModuleStatuses()[0].Value
	}
	if !status.Valid(st, status.KindModule) {
		return "", fmt.Errorf("%w: module status %q", ErrInvalid, in.Status)
	}
	return c.store.Insert(ctx, TableModules, Row{
		"project_id":  in.ProjectID,
		"name":        name,
		"description": strings.TrimSpace(in.Description),
		"status":      st,
		"assigned_to": in.AssignedTo,
	})
}

// UpdateModuleStatus sets a module's status. Either vocabulary is accepted.
func (c *Client) UpdateModuleStatus(ctx context.Context, id, value string) error {
	st := status.Normalize(strings.TrimSpace(value), status.KindModule)
	if !status.Valid(st, status.KindModule) {
		return fmt.Errorf("%w: module status %q", ErrInvalid, value)
	}
	return c.store.Update(ctx, TableModules, id, Row{"status": st})
}

// DeleteModule removes a module.
func (c *Client) DeleteModule(ctx context.Context, id string) error {
	return c.store.Delete(ctx, TableModules, id)
}

// --- Team ---

// Roles returns all roles.
func (c *Client) Roles(ctx context.Context) ([]Role, error) {
	return queryAll[Role](ctx, c.store, TableRoles, nil)
}

// RoleByName returns the role named name.
func (c *Client) RoleByName(ctx context.Context, name string) (Role, error) {
	rs, err := queryAll[Role](ctx, c.store, TableRoles, Eq("name", strings.ToLower(strings.TrimSpace(name))))
	if err != nil {
		return Role{}, err
	}
	if len(rs) == 0 {
		return Role{}, fmt.Errorf("role %q: %w", name, ErrNotFound)
	}
	return rs[0], nil
}

// Members returns every user with role name, number of projects created and
// number of assigned modules that are not done. Newest first.
func (c *Client) Members(ctx context.Context) ([]Member, error) {
	var (
		users    []Member
		roles    []Role
		projects []Project
		modules  []Module
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { users, err = queryAll[Member](gctx, c.store, TableUsers, nil); return })
	g.Go(func() (err error) { roles, err = c.Roles(gctx); return })
	g.Go(func() (err error) { projects, err = c.Projects(gctx); return })
	g.Go(func() (err error) { modules, err = c.Modules(gctx, ""); return })
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	return JoinMembers(users, roles, projects, modules), nil
}

// JoinMembers fills the derived fields of users from the other tables.
func JoinMembers(users []Member, roles []Role, projects []Project, modules []Module) []Member {
	roleNames := make(map[string]string, len(roles))
	for _, r := range roles {
		roleNames[r.ID] = r.Name
	}
	projectCounts := map[string]int{}
	for _, p := range projects {
		projectCounts[p.CreatedBy]++
	}
	active := map[string]int{}
	for _, m := range modules {
		if m.AssignedTo != "" && m.Status != "done" {
			active[m.AssignedTo]++
		}
	}

	out := make([]Member, len(users))
	for i, u := range users {
		u.RoleName = roleNames[u.RoleID]
		if u.RoleName == "" {
			u.RoleName = "unknown"
		}
		u.ProjectCount = projectCounts[u.ID]
		u.ActiveModules = active[u.ID]
		out[i] = u
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out
}

// RemoveMember deletes a user. Their memberships cascade.
func (c *Client) RemoveMember(ctx context.Context, id string) error {
	if err := c.store.Delete(ctx, TableUsers, id); err != nil {
		return err
	}
	c.log.Info("member removed", zap.String("id", id))
	return nil
}

// --- Dashboard ---

// DashboardStats are the totals shown on the dashboard.
type DashboardStats struct {
	TotalProjects    int              `json:"total_projects" yaml:"total_projects"`
	TotalModules     int              `json:"total_modules" yaml:"total_modules"`
	ActiveMembers    int              `json:"active_members" yaml:"active_members"`
	CompletedModules int              `json:"completed_modules" yaml:"completed_modules"`
	ModulesByStatus  []status.Count   `json:"modules_by_status" yaml:"modules_by_status"`
	SprintProgress   []SprintProgress `json:"sprint_progress" yaml:"sprint_progress"`
}

// DashboardStats loads projects, modules and users concurrently and
// computes the dashboard totals.
func (c *Client) DashboardStats(ctx context.Context) (DashboardStats, error) {
	var (
		projects []Project
		modules  []Module
		users    []Member
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { projects, err = c.Projects(gctx); return })
	g.Go(func() (err error) { modules, err = c.Modules(gctx, ""); return })
	g.Go(func() (err error) { users, err = queryAll[Member](gctx, c.store, TableUsers, nil); return })
	if err := g.Wait(); err != nil {
		return DashboardStats{}, fmt.Errorf("load dashboard: %w", err)
	}
	return ComputeStats(projects, modules, len(users)), nil
}

// ComputeStats derives dashboard totals from loaded rows.
func ComputeStats(projects []Project, modules []Module, members int) DashboardStats {
	statuses := make([]string, len(modules))
	for i, m := range modules {
		statuses[i] = m.Status
	}
	byStatus := status.Counts(statuses, status.KindModule)

	return DashboardStats{
		TotalProjects:    len(projects),
		TotalModules:     len(modules),
		ActiveMembers:    members,
		CompletedModules: byStatus[len(byStatus)-1].N,
		ModulesByStatus:  byStatus,
		SprintProgress:   sprintProgress(projects),
	}
}

// sprintProgress groups projects by sprint, sorted by sprint name with the
// unassigned bucket last.
func sprintProgress(projects []Project) []SprintProgress {
	idx := map[string]int{}
	var out []SprintProgress
	for _, p := range projects {
		sprint := strings.TrimSpace(p.Sprint)
		if sprint == "" {
			sprint = UnassignedSprint
		}
		i, ok := idx[sprint]
		if !ok {
			i = len(out)
			idx[sprint] = i
			out = append(out, SprintProgress{Sprint: sprint})
		}
		out[i].Total++
		if status.Normalize(p.Status, status.KindProject) == "done" {
			out[i].Completed++
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Sprint, out[j].Sprint
		if (a == UnassignedSprint) != (b == UnassignedSprint) {
			return b == UnassignedSprint
		}
		return a < b
	})
	return out
}

// --- CLI ---

// RunCommand executes a projectboard CLI command and returns its output.
func (c *Client) RunCommand(args ...string) ([]byte, error) {
	return c.run(args...)
}

// --- internal ---

func (c *Client) run(args ...string) ([]byte, error) {
	cmd := exec.Command(c.bin, args...)
	cmd.Env = append(os.Environ(), "NO_COLOR=1")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if msg == "" {
			msg = stdout.String()
		}
		return nil, fmt.Errorf("%s %s: %w: %s", c.bin, strings.Join(args, " "), err, strings.TrimSpace(msg))
	}
	return stdout.Bytes(), nil
}

func queryAll[T any](ctx context.Context, s *Store, table string, f *Filter) ([]T, error) {
	rows, err := s.Query(ctx, table, f)
	if err != nil {
		return nil, err
	}
	return DecodeRows[T](rows), nil
}

package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	return NewClient(openTestStore(t), zap.NewNop())
}

func addUser(t *testing.T, c *Client, id, email, roleID string) {
	t.Helper()
	_, err := c.Store().Insert(context.Background(), TableUsers, Row{
		"id": id, "auth_id": "auth-" + id, "name": id, "email": email, "role_id": roleID,
	})
	require.NoError(t, err)
}

func TestCreateProjectNormalisesStatusAndAddsMembers(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	addUser(t, c, "U1", "u1@example.com", "role-pm")
	addUser(t, c, "U2", "u2@example.com", "role-dev")

	id, err := c.CreateProject(ctx, NewProject{
		Title:     "  Atlas ",
		Status:    "in-progress",
		CreatedBy: "U1",
		Members:   []string{"U2", "U1", "U2"},
	})
	require.NoError(t, err)

	p, err := c.Project(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Atlas", p.Title)
	assert.Equal(t, "in_progress", p.Status)

	pms, err := c.ProjectMembers(ctx, id)
	require.NoError(t, err)
	require.Len(t, pms, 2)
	assert.Equal(t, "owner", pms[0].RoleInProject)
	assert.Equal(t, "U2", pms[1].UserID)
	assert.Equal(t, "member", pms[1].RoleInProject)
}

func TestCreateProjectValidation(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	_, err := c.CreateProject(ctx, NewProject{Title: " "})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = c.CreateProject(ctx, NewProject{Title: "x", Status: "paused"})
	assert.ErrorIs(t, err, ErrInvalid)

	id, err := c.CreateProject(ctx, NewProject{Title: "x"})
	require.NoError(t, err)
	p, err := c.Project(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "not_started", p.Status)
}

func TestStatusUpdatesAcceptEitherVocabulary(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	pid, err := c.CreateProject(ctx, NewProject{Title: "Atlas"})
	require.NoError(t, err)
	mid, err := c.CreateModule(ctx, NewModule{ProjectID: pid, Name: "api"})
	require.NoError(t, err)

	require.NoError(t, c.UpdateProjectStatus(ctx, pid, "in-progress"))
	require.NoError(t, c.UpdateModuleStatus(ctx, mid, "in_progress"))
	assert.ErrorIs(t, c.UpdateModuleStatus(ctx, mid, "later"), ErrInvalid)
	assert.ErrorIs(t, c.UpdateProjectStatus(ctx, "missing", "done"), ErrNotFound)

	p, err := c.Project(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, "in_progress", p.Status)

	mods, err := c.Modules(ctx, pid)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, "in-progress", mods[0].Status)

	mod, err := c.Module(ctx, mid)
	require.NoError(t, err)
	assert.Equal(t, "api", mod.Name)
	_, err = c.Module(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateProjectPatch(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	pid, err := c.CreateProject(ctx, NewProject{Title: "Atlas"})
	require.NoError(t, err)

	require.NoError(t, c.UpdateProject(ctx, pid, Row{"sprint": "S2", "status": "done"}))
	assert.ErrorIs(t, c.UpdateProject(ctx, pid, Row{"title": ""}), ErrInvalid)

	p, err := c.Project(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, "S2", p.Sprint)
	assert.Equal(t, "done", p.Status)
}

func TestCreateModuleRequiresProject(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	_, err := c.CreateModule(ctx, NewModule{ProjectID: "missing", Name: "api"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.CreateModule(ctx, NewModule{Name: "api"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestDeleteProjectCascades(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	addUser(t, c, "U1", "u1@example.com", "role-pm")
	pid, err := c.CreateProject(ctx, NewProject{Title: "Atlas", CreatedBy: "U1"})
	require.NoError(t, err)
	_, err = c.CreateModule(ctx, NewModule{ProjectID: pid, Name: "api"})
	require.NoError(t, err)

	require.NoError(t, c.DeleteProject(ctx, pid))

	mods, err := c.Modules(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, mods)
	pms, err := c.ProjectMembers(ctx, pid)
	require.NoError(t, err)
	assert.Empty(t, pms)
}

func TestMembersJoinsDerivedFields(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	addUser(t, c, "U1", "u1@example.com", "role-admin")
	addUser(t, c, "U2", "u2@example.com", "role-dev")

	pid, err := c.CreateProject(ctx, NewProject{Title: "Atlas", CreatedBy: "U1"})
	require.NoError(t, err)
	_, err = c.CreateModule(ctx, NewModule{ProjectID: pid, Name: "a", AssignedTo: "U2"})
	require.NoError(t, err)
	_, err = c.CreateModule(ctx, NewModule{ProjectID: pid, Name: "b", AssignedTo: "U2", Status: "done"})
	require.NoError(t, err)

	members, err := c.Members(ctx)
	require.NoError(t, err)
	require.Len(t, members, 2)

	byID := map[string]Member{}
	for _, m := range members {
		byID[m.ID] = m
	}
	assert.Equal(t, "admin", byID["U1"].RoleName)
	assert.Equal(t, 1, byID["U1"].ProjectCount)
	assert.Equal(t, "dev", byID["U2"].RoleName)
	assert.Equal(t, 1, byID["U2"].ActiveModules)

	require.NoError(t, c.RemoveMember(ctx, "U2"))
	members, err = c.Members(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestRoleByName(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	r, err := c.RoleByName(ctx, " PM ")
	require.NoError(t, err)
	assert.Equal(t, "role-pm", r.ID)

	_, err = c.RoleByName(ctx, "owner")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDashboardStats(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	addUser(t, c, "U1", "u1@example.com", "role-admin")

	p1, err := c.CreateProject(ctx, NewProject{Title: "a", Sprint: "S1", Status: "done"})
	require.NoError(t, err)
	_, err = c.CreateProject(ctx, NewProject{Title: "b", Sprint: "S1"})
	require.NoError(t, err)
	_, err = c.CreateProject(ctx, NewProject{Title: "c"})
	require.NoError(t, err)
	for _, st := range []string{"done", "done", "blocked", "in-progress"} {
		_, err := c.CreateModule(ctx, NewModule{ProjectID: p1, Name: st, Status: st})
		require.NoError(t, err)
	}

	stats, err := c.DashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalProjects)
	assert.Equal(t, 4, stats.TotalModules)
	assert.Equal(t, 1, stats.ActiveMembers)
	assert.Equal(t, 2, stats.CompletedModules)

	counts := make([]int, len(stats.ModulesByStatus))
	for i, cnt := range stats.ModulesByStatus {
		counts[i] = cnt.N
	}
	assert.Equal(t, []int{0, 1, 1, 2}, counts)
	assert.Equal(t, []SprintProgress{
		{Sprint: "S1", Completed: 1, Total: 2},
		{Sprint: UnassignedSprint, Completed: 0, Total: 1},
	}, stats.SprintProgress)
}

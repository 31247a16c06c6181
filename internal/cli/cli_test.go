package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gopkg.in/yaml.v3"

	"github.com/olivoil/projectboard/internal/auth"
	"github.com/olivoil/projectboard/internal/backend"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// syncBuffer is a bytes.Buffer safe for a command writing while the test
// reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func setupEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PROJECTBOARD_CONFIG", filepath.Join(dir, "missing.toml"))
	t.Setenv("PROJECTBOARD_STATE_DIR", dir)
	t.Setenv("PROJECTBOARD_SECRET", "test-secret")
	t.Setenv("PROJECTBOARD_FEED_POLL", "50ms")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := run(context.Background(), args, strings.NewReader(""), &out, &errOut)
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	require.NoError(t, err, "projectboard %s", strings.Join(args, " "))
	return out
}

func signup(t *testing.T, email, role string) {
	t.Helper()
	mustRun(t, "signup", "--email", email, "--name", strings.Split(email, "@")[0], "--role", role, "--password", "secret1")
}

func addProject(t *testing.T, title string, extra ...string) backend.Project {
	t.Helper()
	out := mustRun(t, append([]string{"project", "add", title, "-o", "json"}, extra...)...)
	var p backend.Project
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	return p
}

func TestVersionNeedsNoState(t *testing.T) {
	out := mustRun(t, "version")
	assert.Contains(t, out, "projectboard")
}

func TestCommandsRequireSession(t *testing.T) {
	setupEnv(t)
	_, err := runCLI(t, "project", "list")
	assert.ErrorIs(t, err, auth.ErrNoSession)
}

func TestRejectsUnknownOutput(t *testing.T) {
	setupEnv(t)
	_, err := runCLI(t, "whoami", "-o", "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestSignupSigninWhoami(t *testing.T) {
	setupEnv(t)
	signup(t, "ada@example.com", "pm")

	out := mustRun(t, "whoami", "-o", "json")
	var p auth.Profile
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, "ada@example.com", p.Email)
	assert.Equal(t, "pm", p.RoleName)

	mustRun(t, "signout")
	_, err := runCLI(t, "whoami")
	assert.ErrorIs(t, err, auth.ErrNoSession)

	_, err = runCLI(t, "signin", "--email", "ada@example.com", "--password", "wrong-pw")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	out = mustRun(t, "signin", "--email", "ada@example.com", "--password", "secret1")
	assert.Contains(t, out, "Signed in as ada")
}

func TestSigninReadsPasswordFromStdin(t *testing.T) {
	setupEnv(t)
	signup(t, "ada@example.com", "pm")
	mustRun(t, "signout")

	var out, errOut bytes.Buffer
	err := run(context.Background(), []string{"signin", "--email", "ada@example.com"},
		strings.NewReader("secret1\n"), &out, &errOut)
	require.NoError(t, err)
	assert.Contains(t, errOut.String(), "Password:")
	assert.Contains(t, out.String(), "Signed in as")
}

func TestProjectLifecycle(t *testing.T) {
	setupEnv(t)
	signup(t, "ada@example.com", "pm")

	p := addProject(t, "Atlas", "--stack", "Go", "--sprint", "Sprint 1")
	assert.Equal(t, "not_started", p.Status)
	addProject(t, "Borealis", "--sprint", "Sprint 2", "--status", "done")

	out := mustRun(t, "project", "list")
	assert.Contains(t, out, "Atlas")
	assert.Contains(t, out, "Borealis")

	out = mustRun(t, "project", "list", "--sprint", "Sprint 1", "-o", "json")
	var listed []backend.Project
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, p.ID, listed[0].ID)

	// Module spelling is accepted and stored in the project vocabulary.
	out = mustRun(t, "project", "status", p.ID, "in-progress", "-o", "yaml")
	var updated backend.Project
	require.NoError(t, yaml.Unmarshal([]byte(out), &updated))
	assert.Equal(t, "in_progress", updated.Status)

	_, err := runCLI(t, "project", "status", p.ID, "shipped")
	assert.ErrorIs(t, err, backend.ErrInvalid)

	mustRun(t, "project", "delete", p.ID)
	out = mustRun(t, "project", "list", "-o", "json")
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	assert.Len(t, listed, 1)
}

func TestProjectEdit(t *testing.T) {
	setupEnv(t)
	signup(t, "ada@example.com", "pm")
	p := addProject(t, "Atlas", "--stack", "Go", "--sprint", "Sprint 1")

	out := mustRun(t, "project", "edit", p.ID, "--title", "Atlas v2", "--notes", "# Plan", "-o", "json")
	var edited backend.Project
	require.NoError(t, json.Unmarshal([]byte(out), &edited))
	assert.Equal(t, "Atlas v2", edited.Title)
	assert.Equal(t, "# Plan", edited.Notes)
	assert.Equal(t, "Go", edited.Stack, "untouched fields kept")
	assert.Equal(t, "Sprint 1", edited.Sprint)

	out = mustRun(t, "project", "edit", p.ID, "--sprint", "", "-o", "json")
	require.NoError(t, json.Unmarshal([]byte(out), &edited))
	assert.Empty(t, edited.Sprint)

	_, err := runCLI(t, "project", "edit", p.ID)
	assert.ErrorContains(t, err, "nothing to change")
	_, err = runCLI(t, "project", "edit", p.ID, "--title", " ")
	assert.ErrorIs(t, err, backend.ErrInvalid)
	_, err = runCLI(t, "project", "edit", "missing", "--title", "x")
	assert.ErrorIs(t, err, backend.ErrNotFound)

	signup(t, "bo@example.com", "dev")
	_, err = runCLI(t, "project", "edit", p.ID, "--title", "x")
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestDevCannotManageProjects(t *testing.T) {
	setupEnv(t)
	signup(t, "bo@example.com", "dev")
	_, err := runCLI(t, "project", "add", "Atlas")
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestModuleCommands(t *testing.T) {
	setupEnv(t)
	signup(t, "bo@example.com", "dev")
	out := mustRun(t, "whoami", "-o", "json")
	var bo auth.Profile
	require.NoError(t, json.Unmarshal([]byte(out), &bo))

	signup(t, "ada@example.com", "pm")
	p := addProject(t, "Atlas")

	out = mustRun(t, "module", "add", p.ID, "Auth", "--assignee", bo.ID, "-o", "json")
	var mine backend.Module
	require.NoError(t, json.Unmarshal([]byte(out), &mine))
	assert.Equal(t, "not-started", mine.Status)

	out = mustRun(t, "module", "add", p.ID, "Billing", "-o", "json")
	var other backend.Module
	require.NoError(t, json.Unmarshal([]byte(out), &other))

	out = mustRun(t, "module", "list", p.ID)
	assert.Contains(t, out, "Auth")
	assert.Contains(t, out, "bo")
	assert.Contains(t, out, "0/2 done")

	// The assignee may move their own module, nobody else's.
	mustRun(t, "signin", "--email", "bo@example.com", "--password", "secret1")
	out = mustRun(t, "module", "status", mine.ID, "in_progress", "-o", "json")
	require.NoError(t, json.Unmarshal([]byte(out), &mine))
	assert.Equal(t, "in-progress", mine.Status)

	_, err := runCLI(t, "module", "status", other.ID, "done")
	assert.ErrorIs(t, err, auth.ErrForbidden)
	_, err = runCLI(t, "module", "delete", mine.ID)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = runCLI(t, "module", "list", "missing")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestMemberCommands(t *testing.T) {
	setupEnv(t)
	signup(t, "bo@example.com", "dev")
	signup(t, "root@example.com", "admin")

	out := mustRun(t, "member", "list", "--role", "dev", "-o", "json")
	var members []backend.Member
	require.NoError(t, json.Unmarshal([]byte(out), &members))
	require.Len(t, members, 1)
	assert.Equal(t, "bo@example.com", members[0].Email)

	out = mustRun(t, "whoami", "-o", "json")
	var me auth.Profile
	require.NoError(t, json.Unmarshal([]byte(out), &me))
	_, err := runCLI(t, "member", "remove", me.ID)
	assert.ErrorContains(t, err, "cannot remove yourself")

	mustRun(t, "member", "remove", members[0].ID)
	out = mustRun(t, "member", "list", "-o", "json")
	require.NoError(t, json.Unmarshal([]byte(out), &members))
	assert.Len(t, members, 1)

	out = mustRun(t, "role", "list")
	for _, r := range []string{"admin", "pm", "dev"} {
		assert.Contains(t, out, r)
	}
}

func TestMemberAddKeepsAdminSession(t *testing.T) {
	setupEnv(t)
	signup(t, "root@example.com", "admin")

	out := mustRun(t, "member", "add", "--email", "cy@example.com", "--name", "Cy", "--role", "pm", "--password", "secret1", "-o", "json")
	var added auth.Profile
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	assert.Equal(t, "cy@example.com", added.Email)
	assert.Equal(t, "pm", added.RoleName)

	out = mustRun(t, "whoami", "-o", "json")
	var me auth.Profile
	require.NoError(t, json.Unmarshal([]byte(out), &me))
	assert.Equal(t, "root@example.com", me.Email)

	_, err := runCLI(t, "member", "add", "--email", "cy@example.com", "--name", "Cy", "--password", "secret1")
	assert.ErrorIs(t, err, auth.ErrEmailTaken)

	mustRun(t, "signin", "--email", "cy@example.com", "--password", "secret1")
	_, err = runCLI(t, "member", "add", "--email", "dee@example.com", "--name", "Dee", "--password", "secret1")
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestProfileSet(t *testing.T) {
	setupEnv(t)
	signup(t, "taken@example.com", "dev")
	signup(t, "ada@example.com", "dev")

	out := mustRun(t, "profile", "set", "--name", "Ada Lovelace", "--email", "lovelace@example.com", "-o", "json")
	var p auth.Profile
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, "Ada Lovelace", p.Name)
	assert.Equal(t, "lovelace@example.com", p.Email)

	out = mustRun(t, "profile")
	assert.Contains(t, out, "Ada Lovelace")

	_, err := runCLI(t, "profile", "set", "--email", "taken@example.com")
	assert.ErrorIs(t, err, auth.ErrEmailTaken)
	_, err = runCLI(t, "profile", "set")
	assert.Error(t, err)

	mustRun(t, "signin", "--email", "lovelace@example.com", "--password", "secret1")
}

func TestStats(t *testing.T) {
	setupEnv(t)
	signup(t, "ada@example.com", "pm")
	p := addProject(t, "Atlas", "--sprint", "Sprint 1")
	mustRun(t, "module", "add", p.ID, "Auth", "--status", "done")
	mustRun(t, "module", "add", p.ID, "Billing")

	out := mustRun(t, "stats", "-o", "json")
	var st backend.DashboardStats
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 1, st.TotalProjects)
	assert.Equal(t, 2, st.TotalModules)
	assert.Equal(t, 1, st.CompletedModules)
	assert.Equal(t, 1, st.ActiveMembers)

	out = mustRun(t, "stats")
	assert.Contains(t, out, "Sprint 1")
	assert.Contains(t, out, "50%")
}

func TestWatchPrintsAppliedChanges(t *testing.T) {
	setupEnv(t)
	signup(t, "ada@example.com", "pm")
	p := addProject(t, "Atlas")

	var out syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- run(context.Background(),
			[]string{"watch", backend.TableModules, "--filter", "project_id=" + p.ID, "--limit", "2"},
			strings.NewReader(""), &out, &bytes.Buffer{})
	}()
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "watching")
	}, 5*time.Second, 10*time.Millisecond)

	mustRun(t, "module", "add", p.ID, "Auth")
	other := addProject(t, "Other")
	mustRun(t, "module", "add", other.ID, "Ignored")
	mustRun(t, "module", "add", p.ID, "Billing")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not exit")
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "(0 rows)")
	assert.Contains(t, lines[1], "INSERT")
	assert.Contains(t, lines[1], "rows=1")
	assert.Contains(t, lines[2], "rows=2")
}

func TestWatchRejectsUnknownTable(t *testing.T) {
	setupEnv(t)
	signup(t, "ada@example.com", "pm")
	_, err := runCLI(t, "watch", "nope")
	assert.ErrorContains(t, err, "unknown table")
}

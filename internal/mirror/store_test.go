package mirror

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olivoil/projectboard/internal/backend"
)

func openStore(t *testing.T) *backend.Store {
	t.Helper()
	s, err := backend.Open(filepath.Join(t.TempDir(), "board.db"), backend.WithPollInterval(50*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func moduleIDs(ms []backend.Module) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func TestStoreBackedRefreshHonoursFilter(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	for _, id := range []string{"P1", "P2"} {
		_, err := s.Insert(ctx, backend.TableProjects, backend.Row{"id": id, "title": id})
		require.NoError(t, err)
	}
	for _, m := range []struct{ id, project string }{{"M1", "P1"}, {"M2", "P2"}, {"M3", "P1"}} {
		_, err := s.Insert(ctx, backend.TableModules, backend.Row{"id": m.id, "project_id": m.project, "name": m.id})
		require.NoError(t, err)
	}

	m := New[backend.Module](s, backend.TableModules, backend.Eq("project_id", "P1"), nil)
	require.NoError(t, m.Refresh(ctx))

	got := m.Data()
	assert.Equal(t, []string{"M1", "M3"}, moduleIDs(got))
	for _, mod := range got {
		assert.Equal(t, "P1", mod.ProjectID)
	}
}

func TestStoreBackedMirrorFollowsChanges(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	for _, id := range []string{"P1", "P2"} {
		_, err := s.Insert(ctx, backend.TableProjects, backend.Row{"id": id, "title": id})
		require.NoError(t, err)
	}

	m := New[backend.Module](s, backend.TableModules, backend.Eq("project_id", "P1"), nil)
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Stop() })
	require.NoError(t, m.Refresh(ctx))

	_, err := s.Insert(ctx, backend.TableModules, backend.Row{"id": "M1", "project_id": "P1", "name": "api"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, backend.TableModules, backend.Row{"id": "M2", "project_id": "P2", "name": "ui"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Update(ctx, backend.TableModules, "M1", backend.Row{"status": "done"}))
	require.Eventually(t, func() bool {
		mod, ok := m.Find("M1")
		return ok && mod.Status == "done"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Delete(ctx, backend.TableModules, "M1"))
	require.Eventually(t, func() bool { return m.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStoreBackedRetarget(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	for _, id := range []string{"P1", "P2"} {
		_, err := s.Insert(ctx, backend.TableProjects, backend.Row{"id": id, "title": id})
		require.NoError(t, err)
	}
	_, err := s.Insert(ctx, backend.TableModules, backend.Row{"id": "M2", "project_id": "P2", "name": "ui"})
	require.NoError(t, err)

	m := New[backend.Module](s, backend.TableModules, backend.Eq("project_id", "P1"), nil)
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Stop() })

	require.NoError(t, m.Retarget(backend.TableModules, backend.Eq("project_id", "P2")))
	require.NoError(t, m.Refresh(ctx))
	assert.Equal(t, []string{"M2"}, moduleIDs(m.Data()))

	_, err = s.Insert(ctx, backend.TableModules, backend.Row{"id": "M1", "project_id": "P1", "name": "api"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, backend.TableModules, backend.Row{"id": "M3", "project_id": "P2", "name": "db"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return m.Len() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"M2", "M3"}, moduleIDs(m.Data()))
}

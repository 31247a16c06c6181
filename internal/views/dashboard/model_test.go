package dashboard

import (
	"testing"

	"charm.land/lipgloss/v2"
	"github.com/stretchr/testify/assert"

	"github.com/olivoil/projectboard/internal/backend"
	"github.com/olivoil/projectboard/internal/status"
)

func TestSetDataComputesStats(t *testing.T) {
	m := New()
	m.SetData(
		[]backend.Project{{ID: "p1", Sprint: "Sprint 1", Status: "done"}, {ID: "p2"}},
		[]backend.Module{{ID: "m1", Status: "done"}, {ID: "m2", Status: "in_progress"}},
		3,
	)
	st := m.Stats()
	assert.Equal(t, 2, st.TotalProjects)
	assert.Equal(t, 2, st.TotalModules)
	assert.Equal(t, 1, st.CompletedModules)
	assert.Equal(t, 3, st.ActiveMembers)
	assert.Equal(t, 1, st.ModulesByStatus[1].N, "project spelling counted as in-progress")
}

func TestStatusBarFillsWidth(t *testing.T) {
	counts := status.Counts([]string{"done", "done", "blocked", "not-started", "in-progress"}, status.KindModule)
	for _, w := range []int{1, 3, 10, 40} {
		assert.Equal(t, w+2, lipgloss.Width(statusBar(counts, w)), "width %d", w)
	}
	assert.Equal(t, 12, lipgloss.Width(statusBar(status.Counts(nil, status.KindModule), 10)))
}

package projects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olivoil/projectboard/internal/backend"
)

func fixture() []backend.Project {
	return []backend.Project{
		{ID: "p1", Title: "Atlas", Stack: "Go", Sprint: "Sprint 1", Status: "done", CreatedAt: "2026-01-01T00:00:00Z"},
		{ID: "p2", Title: "Borealis", Stack: "Rust", Sprint: "Sprint 2", Status: "in_progress", CreatedAt: "2026-01-02T00:00:00Z"},
		{ID: "p3", Title: "Cirrus", Stack: "Go", Sprint: "Sprint 1", Status: "not_started", CreatedAt: "2026-01-03T00:00:00Z"},
	}
}

func titles(ps []backend.Project) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Title
	}
	return out
}

func TestNewestFirstByDefault(t *testing.T) {
	m := New()
	m.SetProjects(fixture(), nil)
	assert.Equal(t, []string{"Cirrus", "Borealis", "Atlas"}, titles(m.Visible()))
}

func TestFiltersCombine(t *testing.T) {
	m := New()
	m.SetProjects(fixture(), nil)

	m.SetSearch("go")
	assert.Equal(t, []string{"Cirrus", "Atlas"}, titles(m.Visible()))

	m.SetSprint("Sprint 1")
	m.SetStatusFilter("done")
	assert.Equal(t, []string{"Atlas"}, titles(m.Visible()))

	// Module spelling of the same status.
	m.SetStatusFilter("not-started")
	assert.Equal(t, []string{"Cirrus"}, titles(m.Visible()))

	m.ClearFilters()
	assert.Len(t, m.Visible(), 3)
}

func TestSortKeepsSelection(t *testing.T) {
	m := New()
	m.SetProjects(fixture(), nil)
	m.table.SetCursor(1)
	require.Equal(t, "p2", m.SelectedID())

	m.SetSort(backend.SortTitle)
	assert.Equal(t, []string{"Atlas", "Borealis", "Cirrus"}, titles(m.Visible()))
	assert.Equal(t, "p2", m.SelectedID())
}

func TestCycleStatusFilter(t *testing.T) {
	m := New()
	m.SetProjects(fixture(), nil)

	var seen []string
	for range 5 {
		m.CycleStatusFilter()
		seen = append(seen, m.Query().Status)
	}
	assert.Equal(t, []string{"not_started", "in_progress", "blocked", "done", "all"}, seen)
}

func TestSprints(t *testing.T) {
	m := New()
	m.SetProjects(fixture(), nil)
	assert.Equal(t, []string{"Sprint 1", "Sprint 2"}, m.Sprints())
}

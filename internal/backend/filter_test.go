package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func projectTitles(ps []Project) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Title
	}
	return out
}

var sampleProjects = []Project{
	{ID: "1", Title: "Atlas", Stack: "Go, SQLite", Sprint: "S1", Status: "done", CreatedAt: "2026-01-01T00:00:00Z"},
	{ID: "2", Title: "beacon", Stack: "React", Sprint: "S2", Status: "blocked", CreatedAt: "2026-03-01T00:00:00Z"},
	{ID: "3", Title: "Comet", Stack: "go", Sprint: "", Status: "in_progress", CreatedAt: "2026-02-01T00:00:00Z"},
}

func TestFilterProjects(t *testing.T) {
	tests := []struct {
		name string
		q    ProjectQuery
		want []string
	}{
		{"empty query", ProjectQuery{}, []string{"Atlas", "beacon", "Comet"}},
		{"all", ProjectQuery{Status: "all", Sprint: "ALL"}, []string{"Atlas", "beacon", "Comet"}},
		{"search stack", ProjectQuery{Search: "GO"}, []string{"Atlas", "Comet"}},
		{"search title", ProjectQuery{Search: "eac"}, []string{"beacon"}},
		{"status", ProjectQuery{Status: "blocked"}, []string{"beacon"}},
		{"module vocabulary status", ProjectQuery{Status: "in-progress"}, []string{"Comet"}},
		{"sprint", ProjectQuery{Sprint: "S1"}, []string{"Atlas"}},
		{"combined", ProjectQuery{Search: "go", Sprint: "S2"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, projectTitles(FilterProjects(sampleProjects, tt.q)))
		})
	}
}

func TestUniqueSprints(t *testing.T) {
	assert.Equal(t, []string{"S1", "S2"}, UniqueSprints(sampleProjects))
}

func TestSortProjects(t *testing.T) {
	assert.Equal(t, []string{"beacon", "Comet", "Atlas"}, projectTitles(SortProjects(sampleProjects, SortCreated)))
	assert.Equal(t, []string{"beacon", "Comet", "Atlas"}, projectTitles(SortProjects(sampleProjects, "")))
	assert.Equal(t, []string{"Atlas", "beacon", "Comet"}, projectTitles(SortProjects(sampleProjects, SortTitle)))
	assert.Equal(t, []string{"Comet", "beacon", "Atlas"}, projectTitles(SortProjects(sampleProjects, SortStatus)))
	// Input is untouched.
	assert.Equal(t, "Atlas", sampleProjects[0].Title)
}

func TestFilterMembers(t *testing.T) {
	members := []Member{
		{ID: "1", Name: "Ada", Email: "ada@example.com", RoleName: "admin"},
		{ID: "2", Name: "Bob", Email: "bob@corp.io", RoleName: "dev"},
		{ID: "3", Name: "Cy", Email: "cy@example.com", RoleName: "dev"},
	}
	ids := func(ms []Member) []string {
		out := make([]string, len(ms))
		for i, m := range ms {
			out[i] = m.ID
		}
		return out
	}

	assert.Equal(t, []string{"1", "2", "3"}, ids(FilterMembers(members, MemberQuery{Role: "all"})))
	assert.Equal(t, []string{"2", "3"}, ids(FilterMembers(members, MemberQuery{Role: "DEV"})))
	assert.Equal(t, []string{"1", "3"}, ids(FilterMembers(members, MemberQuery{Search: "example"})))
	assert.Equal(t, []string{"2"}, ids(FilterMembers(members, MemberQuery{Search: "bob", Role: "dev"})))
	assert.Equal(t, []string{"admin", "dev"}, UniqueRoles(members))
}

func TestModuleProgress(t *testing.T) {
	done, total, pct := ModuleProgress(nil)
	assert.Equal(t, [3]int{0, 0, 0}, [3]int{done, total, pct})

	done, total, pct = ModuleProgress([]Module{{Status: "done"}, {Status: "blocked"}, {Status: "done"}, {Status: "not-started"}})
	assert.Equal(t, [3]int{2, 4, 50}, [3]int{done, total, pct})
}

package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRoute(t *testing.T) {
	tests := []struct {
		in    string
		kind  RouteKind
		field string
		value string
	}{
		{"project list", RouteCLI, "", ""},
		{"module status M1 done", RouteCLI, "", ""},
		{"stats", RouteCLI, "", ""},
		{"project edit P1 --sprint S2", RouteCLI, "", ""},
		{"member add --email cy@example.com --name Cy", RouteCLI, "", ""},
		{"profile set --name Ada", RouteCLI, "", ""},
		{"role list", RouteCLI, "", ""},
		{"role admin", RouteFilter, "role", "admin"},
		{"sprint Sprint 3", RouteFilter, "sprint", "Sprint 3"},
		{"status in_progress", RouteFilter, "status", "in_progress"},
		{"sort title", RouteFilter, "sort", "title"},
		{"clear", RouteFilter, "clear", ""},
		{"status", RouteSearch, "", "status"},
		{"project", RouteSearch, "", "project"},
		{"billing api", RouteSearch, "", "billing api"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r := ParseRoute(tt.in)
			assert.Equal(t, tt.kind, r.Kind)
			assert.Equal(t, tt.field, r.Field)
			if tt.kind == RouteCLI {
				assert.Equal(t, tt.in, r.Raw)
				assert.NotEmpty(t, r.Args)
			} else {
				assert.Equal(t, tt.value, r.Value)
			}
		})
	}
}

func values(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Value
	}
	return out
}

func TestCompleteTopLevel(t *testing.T) {
	c := NewCompleter()
	assert.Equal(t, []string{"sort", "sprint", "stats", "status"}, values(c.Complete("s")))
	assert.Len(t, c.Complete(""), len(commands))
	assert.Nil(t, c.Complete("nope "))
}

func TestCompleteSubcommands(t *testing.T) {
	c := NewCompleter()
	assert.Equal(t, []string{"list", "add", "edit", "status", "delete"}, values(c.Complete("project ")))
	assert.Equal(t, []string{"remove"}, values(c.Complete("member r")))
	assert.Equal(t, []string{"add"}, values(c.Complete("member a")))
	assert.Equal(t, []string{"set"}, values(c.Complete("profile ")))
	assert.Equal(t, []string{"--name"}, values(c.Complete("profile set --n")))
	assert.Equal(t, []string{"--email", "--name", "--role", "--password"}, values(c.Complete("member add ")))
}

func TestCompleteDynamic(t *testing.T) {
	c := NewCompleter()
	c.SetProjectIDs([]string{"p-1", "p-2", "q-3"})
	c.SetModuleIDs([]string{"m-1"})
	c.SetSprints([]string{"Sprint 1"})
	c.SetRoles([]string{"admin", "developer"})

	assert.Equal(t, []string{"p-1", "p-2"}, values(c.Complete("project delete p")))
	assert.Equal(t, []string{"p-1", "p-2", "q-3"}, values(c.Complete("project edit ")))
	assert.Equal(t, []string{"--stack", "--sprint"}, values(c.Complete("project edit p-1 --s")))
	assert.Equal(t, []string{"p-1", "p-2", "q-3"}, values(c.Complete("module add ")))
	assert.Equal(t, []string{"m-1"}, values(c.Complete("module status ")))
	assert.Equal(t, []string{"all", "Sprint 1"}, values(c.Complete("sprint ")))
	assert.Equal(t, []string{"list", "all", "admin"}, values(c.Complete("role ")[:3]))
	assert.Equal(t, []string{"done"}, values(c.Complete("module status m-1 d")))
	assert.Equal(t, []string{"in_progress"}, values(c.Complete("project status p-1 in")))
	assert.Equal(t, []string{"in-progress"}, values(c.Complete("module status m-1 in")))
}

func TestCompleteStatusFilterOffersAll(t *testing.T) {
	c := NewCompleter()
	got := values(c.Complete("status "))
	assert.Equal(t, []string{"all", "not_started", "in_progress", "blocked", "done"}, got)
}

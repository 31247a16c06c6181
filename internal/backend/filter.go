package backend

import (
	"sort"
	"strings"

	"github.com/olivoil/projectboard/internal/status"
)

// FilterAll matches every value of a status, sprint or role filter.
const FilterAll = "all"

// ProjectQuery narrows a project list.
type ProjectQuery struct {
	Search string // substring of title or stack, case-insensitive
	Status string // project status (either vocabulary) or "all"
	Sprint string // exact sprint or "all"
}

// FilterProjects returns the projects matching q, preserving order.
func FilterProjects(projects []Project, q ProjectQuery) []Project {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	st := ""
	if !isAll(q.Status) {
		st = status.Normalize(q.Status, status.KindProject)
	}
	out := make([]Project, 0, len(projects))
	for _, p := range projects {
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Title), search) &&
			!strings.Contains(strings.ToLower(p.Stack), search) {
			continue
		}
		if st != "" && status.Normalize(p.Status, status.KindProject) != st {
			continue
		}
		if !isAll(q.Sprint) && p.Sprint != q.Sprint {
			continue
		}
		out = append(out, p)
	}
	return out
}

// UniqueSprints returns the distinct non-empty sprints, sorted.
func UniqueSprints(projects []Project) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range projects {
		if p.Sprint != "" && !seen[p.Sprint] {
			seen[p.Sprint] = true
			out = append(out, p.Sprint)
		}
	}
	sort.Strings(out)
	return out
}

// Sort orders for SortProjects.
const (
	SortCreated = "created"
	SortTitle   = "title"
	SortStatus  = "status"
)

// SortProjects returns a sorted copy of projects. Unknown orders sort by
// creation time, newest first.
func SortProjects(projects []Project, by string) []Project {
	out := make([]Project, len(projects))
	copy(out, projects)
	switch by {
	case SortTitle:
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Title) < strings.ToLower(out[j].Title)
		})
	case SortStatus:
		sort.SliceStable(out, func(i, j int) bool {
			return status.Ordinal(status.Normalize(out[i].Status, status.KindProject), status.KindProject) <
				status.Ordinal(status.Normalize(out[j].Status, status.KindProject), status.KindProject)
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedTime().After(out[j].CreatedTime())
		})
	}
	return out
}

// MemberQuery narrows a team list.
type MemberQuery struct {
	Search string // substring of name or email, case-insensitive
	Role   string // role name or "all"
}

// FilterMembers returns the members matching q, preserving order.
func FilterMembers(members []Member, q MemberQuery) []Member {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]Member, 0, len(members))
	for _, m := range members {
		if search != "" &&
			!strings.Contains(strings.ToLower(m.Name), search) &&
			!strings.Contains(strings.ToLower(m.Email), search) {
			continue
		}
		if !isAll(q.Role) && !strings.EqualFold(m.RoleName, q.Role) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// UniqueRoles returns the distinct role names of members, sorted.
func UniqueRoles(members []Member) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range members {
		if m.RoleName != "" && !seen[m.RoleName] {
			seen[m.RoleName] = true
			out = append(out, m.RoleName)
		}
	}
	sort.Strings(out)
	return out
}

// ModuleProgress returns the done/total counts and the percentage done
// (0 for an empty list).
func ModuleProgress(modules []Module) (done, total, percent int) {
	total = len(modules)
	for _, m := range modules {
		if status.Normalize(m.Status, status.KindModule) == "done" {
			done++
		}
	}
	if total > 0 {
		percent = done * 100 / total
	}
	return done, total, percent
}

func isAll(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, FilterAll)
}

package command

import (
	"sort"
	"strings"

	"github.com/olivoil/projectboard/internal/status"
)

// Candidate is a completion option with a description.
type Candidate struct {
	Value string // the text to insert
	Desc  string // short description
}

// Completer provides live completion for the command line.
type Completer struct {
	projectIDs []string
	moduleIDs  []string
	memberIDs  []string
	sprints    []string
	roles      []string
}

// NewCompleter creates a completer.
func NewCompleter() *Completer {
	return &Completer{}
}

// SetProjectIDs updates the available project ids.
func (c *Completer) SetProjectIDs(ids []string) { c.projectIDs = ids }

// SetModuleIDs updates the available module ids.
func (c *Completer) SetModuleIDs(ids []string) { c.moduleIDs = ids }

// SetMemberIDs updates the available member ids.
func (c *Completer) SetMemberIDs(ids []string) { c.memberIDs = ids }

// SetSprints updates the sprint names offered by the sprint filter.
func (c *Completer) SetSprints(sprints []string) { c.sprints = sprints }

// SetRoles updates the role names offered by the role filter.
func (c *Completer) SetRoles(roles []string) { c.roles = roles }

// command tree with descriptions
type cmdEntry struct {
	subs []subEntry
	desc string
}

type subEntry struct {
	name string
	desc string
}

var commands = map[string]cmdEntry{
	"project": {desc: "Manage projects", subs: []subEntry{
		{"list", "List projects"},
		{"add", "Create a project"},
		{"edit", "Change title, stack, sprint or notes"},
		{"status", "Set project status"},
		{"delete", "Delete a project"},
	}},
	"module": {desc: "Manage project modules", subs: []subEntry{
		{"list", "List modules of a project"},
		{"add", "Add a module to a project"},
		{"status", "Set module status"},
		{"delete", "Delete a module"},
	}},
	"member": {desc: "Manage team members", subs: []subEntry{
		{"list", "List members"},
		{"add", "Create an account (admin)"},
		{"remove", "Remove a member"},
	}},
	"profile": {desc: "Show or change your profile", subs: []subEntry{
		{"set", "Change your name or email"},
	}},
	"role":    {desc: "List roles, or filter the team by role"},
	"stats":   {desc: "Show dashboard totals"},
	"whoami":  {desc: "Show the signed-in user"},
	"version": {desc: "Show version"},
	"sprint":  {desc: "Filter projects by sprint"},
	"status":  {desc: "Filter projects by status"},
	"sort":    {desc: "Sort projects (created, title, status)"},
	"clear":   {desc: "Clear filters"},
}

var sortOrders = []string{"created", "title", "status"}

var (
	projectEditFlags = []subEntry{
		{"--title", "New title"},
		{"--stack", "New tech stack"},
		{"--sprint", "New sprint"},
		{"--notes", "New notes"},
	}
	memberAddFlags = []subEntry{
		{"--email", "Email address"},
		{"--name", "Display name"},
		{"--role", "admin, pm or dev"},
		{"--password", "Initial password"},
	}
	profileFlags = []subEntry{
		{"--name", "New display name"},
		{"--email", "New email address"},
	}
)

// Complete returns candidates for the current input.
func (c *Completer) Complete(input string) []Candidate {
	parts := strings.Fields(input)
	trailing := strings.HasSuffix(input, " ")

	// No input yet or partial first word: show top-level commands.
	if len(parts) == 0 || (len(parts) == 1 && !trailing) {
		prefix := ""
		if len(parts) == 1 {
			prefix = parts[0]
		}
		return c.topLevelCandidates(prefix)
	}

	cmd := parts[0]
	entry, ok := commands[cmd]
	if !ok {
		return nil
	}

	// Second word: subcommands, or the value of a local filter.
	if (len(parts) == 1 && trailing) || (len(parts) == 2 && !trailing) {
		prefix := ""
		if len(parts) == 2 {
			prefix = parts[1]
		}
		switch cmd {
		case "sprint":
			return c.dynamicCandidates(append([]string{"all"}, c.sprints...), prefix, "sprint")
		case "status":
			cands := c.dynamicCandidates([]string{"all"}, prefix, "every status")
			return append(cands, statusCandidates(status.KindProject, prefix)...)
		case "sort":
			return c.dynamicCandidates(sortOrders, prefix, "order")
		case "role":
			cands := subCandidates([]subEntry{{"list", "List roles"}}, prefix)
			return append(cands, c.dynamicCandidates(append([]string{"all"}, c.roles...), prefix, "role")...)
		}
		return subCandidates(entry.subs, prefix)
	}

	// Subcommand complete: ids.
	if (len(parts) == 2 && trailing) || (len(parts) == 3 && !trailing) {
		prefix := ""
		if len(parts) == 3 {
			prefix = parts[2]
		}
		sub := parts[1]

		switch cmd {
		case "project":
			switch sub {
			case "edit", "status", "delete":
				return c.dynamicCandidates(c.projectIDs, prefix, "project")
			}
		case "module":
			switch sub {
			case "list", "add":
				return c.dynamicCandidates(c.projectIDs, prefix, "project")
			case "status", "delete":
				return c.dynamicCandidates(c.moduleIDs, prefix, "module")
			}
		case "member":
			switch sub {
			case "add":
				return subCandidates(memberAddFlags, prefix)
			case "remove":
				return c.dynamicCandidates(c.memberIDs, prefix, "member")
			}
		case "profile":
			if sub == "set" {
				return subCandidates(profileFlags, prefix)
			}
		}
	}

	// Status value after the id.
	if (len(parts) == 3 && trailing) || (len(parts) == 4 && !trailing) {
		prefix := ""
		if len(parts) == 4 {
			prefix = parts[3]
		}
		switch {
		case parts[1] == "status" && cmd == "project":
			return statusCandidates(status.KindProject, prefix)
		case parts[1] == "status" && cmd == "module":
			return statusCandidates(status.KindModule, prefix)
		case parts[1] == "edit" && cmd == "project":
			return subCandidates(projectEditFlags, prefix)
		}
	}

	return nil
}

func (c *Completer) topLevelCandidates(prefix string) []Candidate {
	// Sorted keys.
	keys := make([]string, 0, len(commands))
	for k := range commands {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var result []Candidate
	for _, k := range keys {
		if prefix == "" || strings.HasPrefix(k, prefix) {
			result = append(result, Candidate{Value: k, Desc: commands[k].desc})
		}
	}
	return result
}

func subCandidates(subs []subEntry, prefix string) []Candidate {
	var result []Candidate
	for _, s := range subs {
		if prefix == "" || strings.HasPrefix(s.name, prefix) {
			result = append(result, Candidate{Value: s.name, Desc: s.desc})
		}
	}
	return result
}

func statusCandidates(kind status.Kind, prefix string) []Candidate {
	var result []Candidate
	for _, cfg := range status.Table(kind) {
		if prefix == "" || strings.HasPrefix(cfg.Value, prefix) {
			result = append(result, Candidate{Value: cfg.Value, Desc: cfg.Label})
		}
	}
	return result
}

func (c *Completer) dynamicCandidates(items []string, prefix, kind string) []Candidate {
	var result []Candidate
	for _, item := range items {
		if prefix == "" || strings.HasPrefix(item, prefix) {
			result = append(result, Candidate{Value: item, Desc: kind})
		}
	}
	return result
}

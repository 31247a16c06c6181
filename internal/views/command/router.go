package command

import "strings"

// RouteKind identifies how the command line input is handled.
type RouteKind int

const (
	RouteSearch RouteKind = iota // free text → search the active list
	RouteFilter                  // local list filter (sprint, status, role, sort, clear)
	RouteCLI                     // structured CLI command, run as a subprocess
)

// Route represents a parsed command input.
type Route struct {
	Kind  RouteKind
	Args  []string // for CLI commands
	Field string   // for filters: sprint, status, role, sort or clear
	Value string   // filter value or search term
	Raw   string   // original input
}

// known CLI commands and their subcommands
var commandTree = map[string][]string{
	"project": {"list", "add", "edit", "status", "delete"},
	"module":  {"list", "add", "status", "delete"},
	"member":  {"list", "add", "remove"},
	"role":    {"list"},
	"profile": nil,
	"stats":   nil,
	"whoami":  nil,
	"version": nil,
}

// local filter verbs
var filterVerbs = map[string]bool{
	"sprint": true,
	"status": true,
	"role":   true,
	"sort":   true,
	"clear":  true,
}

// ParseRoute decides whether input is a CLI command, a filter or a search.
// "role list" is the CLI command; "role <name>" filters the team.
func ParseRoute(input string) Route {
	input = strings.TrimSpace(input)
	if input == "" {
		return Route{Kind: RouteSearch, Raw: input}
	}

	parts := strings.Fields(input)
	cmd := parts[0]

	if subs, ok := commandTree[cmd]; ok {
		if len(subs) == 0 || len(parts) > 1 && contains(subs, parts[1]) {
			return Route{Kind: RouteCLI, Args: parts, Raw: input}
		}
	}

	if filterVerbs[cmd] {
		value := strings.TrimSpace(strings.TrimPrefix(input, cmd))
		if cmd == "clear" || value != "" {
			return Route{Kind: RouteFilter, Field: cmd, Value: value, Raw: input}
		}
	}

	return Route{Kind: RouteSearch, Value: input, Raw: input}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

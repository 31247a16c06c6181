// Package status holds the lifecycle taxonomy shared by projects and modules.
//
// Projects and modules describe the same four states with different
// spellings ("not_started" vs "not-started"). Both spellings are stored in
// the database, so they are kept as two tables plus a translator instead of
// being unified.
package status

// Kind identifies which vocabulary a status string belongs to.
type Kind string

const (
	KindProject Kind = "project"
	KindModule  Kind = "module"
)

// Config is the display metadata for one status value.
// Color and BgColor are theme tokens resolved by the ui package.
type Config struct {
	Value   string `json:"value" yaml:"value"`
	Label   string `json:"label" yaml:"label"`
	Color   string `json:"color" yaml:"color"`
	BgColor string `json:"bg_color" yaml:"bg_color"`
}

// Count is a tally of records in one status.
type Count struct {
	Config `yaml:",inline"`
	N      int `json:"n" yaml:"n"`
}

// Declared order matters: views list statuses in this order.
var projectStatuses = [...]Config{
	{Value: "not_started", Label: "Not Started", Color: "text-muted-foreground", BgColor: "bg-muted"},
	{Value: "in_progress", Label: "In Progress", Color: "text-warning", BgColor: "bg-warning/20 border-warning/30"},
	{Value: "blocked", Label: "Blocked", Color: "text-destructive", BgColor: "bg-destructive/20 border-destructive/30"},
	{Value: "done", Label: "Completed", Color: "text-success", BgColor: "bg-success/20 border-success/30"},
}

var moduleStatuses = [...]Config{
	{Value: "not-started", Label: "Not Started", Color: "text-muted-foreground", BgColor: "bg-muted"},
	{Value: "in-progress", Label: "In Progress", Color: "text-warning", BgColor: "bg-warning/20 border-warning/30"},
	{Value: "blocked", Label: "Blocked", Color: "text-destructive", BgColor: "bg-destructive/20 border-destructive/30"},
	{Value: "done", Label: "Completed", Color: "text-success", BgColor: "bg-success/20 border-success/30"},
}

var (
	projectToModule = map[string]string{
		"not_started": "not-started",
		"in_progress": "in-progress",
		"blocked":     "blocked",
		"done":        "done",
	}
	moduleToProject = map[string]string{
		"not-started": "not_started",
		"in-progress": "in_progress",
		"blocked":     "blocked",
		"done":        "done",
	}
)

// ProjectStatuses returns the ordered project status table.
func ProjectStatuses() []Config { return Table(KindProject) }

// ModuleStatuses returns the ordered module status table.
func ModuleStatuses() []Config { return Table(KindModule) }

func table(kind Kind) []Config {
	if kind == KindModule {
		return moduleStatuses[:]
	}
	return projectStatuses[:]
}

// Table returns a copy of the ordered table for kind.
func Table(kind Kind) []Config {
	t := table(kind)
	out := make([]Config, len(t))
	copy(out, t)
	return out
}

// Values returns the ordered status spellings for kind.
func Values(kind Kind) []string {
	t := table(kind)
	out := make([]string, len(t))
	for i, c := range t {
		out[i] = c.Value
	}
	return out
}

// Lookup returns the config for status in the kind's table.
// Unknown values fall back to the first (not started) entry.
func Lookup(status string, kind Kind) Config {
	t := table(kind)
	for _, c := range t {
		if c.Value == status {
			return c
		}
	}
	return t[0]
}

// Normalize translates status into the target kind's vocabulary.
// Values that are not recognised are returned unchanged.
func Normalize(status string, target Kind) string {
	m := moduleToProject
	if target == KindModule {
		m = projectToModule
	}
	if v, ok := m[status]; ok {
		return v
	}
	return status
}

// Valid reports whether status is a canonical value for kind.
func Valid(status string, kind Kind) bool {
	return index(status, kind) >= 0
}

// Next returns the status following status in declared order, wrapping
// from done back to not started. Unknown input starts at the first entry.
func Next(status string, kind Kind) string {
	t := table(kind)
	i := index(status, kind)
	if i < 0 {
		return t[0].Value
	}
	return t[(i+1)%len(t)].Value
}

// Ordinal returns the position of status in the kind's table, or len(table)
// for unknown values so they sort last.
func Ordinal(status string, kind Kind) int {
	if i := index(status, kind); i >= 0 {
		return i
	}
	return len(table(kind))
}

// Counts tallies statuses per state in declared order. Inputs in the other
// vocabulary are normalised first; unknown values are not counted.
func Counts(statuses []string, kind Kind) []Count {
	t := table(kind)
	out := make([]Count, len(t))
	for i, c := range t {
		out[i].Config = c
	}
	for _, s := range statuses {
		if i := index(Normalize(s, kind), kind); i >= 0 {
			out[i].N++
		}
	}
	return out
}

func index(status string, kind Kind) int {
	for i, c := range table(kind) {
		if c.Value == status {
			return i
		}
	}
	return -1
}

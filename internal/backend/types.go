package backend

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Table names served by the store.
const (
	TableProjects       = "projects"
	TableModules        = "project_modules"
	TableUsers          = "users"
	TableProjectMembers = "project_members"
	TableRoles          = "roles"
)

// Row is a column → value map used for inserts and patches.
type Row map[string]any

// Filter restricts a query or subscription to rows whose Column equals Value.
type Filter struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// Eq builds a filter on column = value.
func Eq(column, value string) *Filter {
	return &Filter{Column: column, Value: value}
}

// String renders the filter as "column=eq.value".
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.Column + "=eq." + f.Value
}

// ParseFilter parses "column=value" (or "column=eq.value").
func ParseFilter(s string) (*Filter, error) {
	col, val, ok := strings.Cut(s, "=")
	col = strings.TrimSpace(col)
	if !ok || col == "" {
		return nil, fmt.Errorf("filter %q: want column=value", s)
	}
	val = strings.TrimPrefix(strings.TrimSpace(val), "eq.")
	return &Filter{Column: col, Value: val}, nil
}

// EventKind is the kind of row change carried by a ChangeEvent.
type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventUpdate EventKind = "UPDATE"
	EventDelete EventKind = "DELETE"
	// EventResync tells a subscriber that events were dropped because it
	// fell behind. It carries no row; the subscriber should reload.
	EventResync EventKind = "RESYNC"
)

// ChangeEvent is one journal entry pushed to subscribers.
// New is set for inserts and updates, Old for updates and deletes.
type ChangeEvent struct {
	Seq   int64           `json:"seq"`
	Table string          `json:"table"`
	Kind  EventKind       `json:"kind"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
	At    string          `json:"at,omitempty"`
}

// Project is a row of the projects table.
type Project struct {
	ID        string `json:"id" yaml:"id"`
	Title     string `json:"title" yaml:"title"`
	Stack     string `json:"stack" yaml:"stack"`
	Sprint    string `json:"sprint" yaml:"sprint"`
	Notes     string `json:"notes" yaml:"notes"`
	Status    string `json:"status" yaml:"status"`
	CreatedBy string `json:"created_by" yaml:"created_by"`
	CreatedAt string `json:"created_at" yaml:"created_at"`
	UpdatedAt string `json:"updated_at" yaml:"updated_at"`
}

// RecordID returns the project id.
func (p Project) RecordID() string { return p.ID }

// CreatedTime parses CreatedAt.
func (p Project) CreatedTime() time.Time { return parseTime(p.CreatedAt) }

// Module is a row of the project_modules table.
type Module struct {
	ID          string `json:"id" yaml:"id"`
	ProjectID   string `json:"project_id" yaml:"project_id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Status      string `json:"status" yaml:"status"`
	AssignedTo  string `json:"assigned_to" yaml:"assigned_to"`
	CreatedAt   string `json:"created_at" yaml:"created_at"`
}

// RecordID returns the module id.
func (m Module) RecordID() string { return m.ID }

// Member is a row of the users table (a team member).
type Member struct {
	ID        string `json:"id" yaml:"id"`
	AuthID    string `json:"auth_id" yaml:"auth_id"`
	Name      string `json:"name" yaml:"name"`
	Email     string `json:"email" yaml:"email"`
	RoleID    string `json:"role_id" yaml:"role_id"`
	AvatarURL string `json:"avatar_url" yaml:"avatar_url"`
	CreatedAt string `json:"created_at" yaml:"created_at"`

	// Derived by Client.Members; not stored.
	RoleName      string `json:"role_name,omitempty" yaml:"role_name,omitempty"`
	ProjectCount  int    `json:"project_count,omitempty" yaml:"project_count,omitempty"`
	ActiveModules int    `json:"active_modules,omitempty" yaml:"active_modules,omitempty"`
}

// RecordID returns the user id.
func (m Member) RecordID() string { return m.ID }

// Role is a row of the roles table.
type Role struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// RecordID returns the role id.
func (r Role) RecordID() string { return r.ID }

// ProjectMember links a user to a project.
type ProjectMember struct {
	ID            string `json:"id" yaml:"id"`
	ProjectID     string `json:"project_id" yaml:"project_id"`
	UserID        string `json:"user_id" yaml:"user_id"`
	RoleInProject string `json:"role_in_project" yaml:"role_in_project"`
	CreatedAt     string `json:"created_at" yaml:"created_at"`
}

// RecordID returns the membership id.
func (pm ProjectMember) RecordID() string { return pm.ID }

// SprintProgress is the done/total project count of one sprint.
type SprintProgress struct {
	Sprint    string `json:"sprint" yaml:"sprint"`
	Completed int    `json:"completed" yaml:"completed"`
	Total     int    `json:"total" yaml:"total"`
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// DecodeRows unmarshals JSON row images into T, skipping malformed rows.
func DecodeRows[T any](rows []json.RawMessage) []T {
	out := make([]T, 0, len(rows))
	for _, raw := range rows {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			continue // skip malformed
		}
		out = append(out, v)
	}
	return out
}

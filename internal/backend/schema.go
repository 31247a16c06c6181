package backend

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownTable  = errors.New("unknown table")
	ErrUnknownColumn = errors.New("unknown column")
)

// tableSchema lists the public columns of a mirrored table in the order the
// journal triggers serialise them. private columns are writable but never
// returned by Query or carried in change events.
type tableSchema struct {
	name    string
	columns []string
	private []string
}

var schemas = map[string]tableSchema{
	TableRoles: {
		name:    TableRoles,
		columns: []string{"id", "name", "description"},
	},
	TableUsers: {
		name:    TableUsers,
		columns: []string{"id", "auth_id", "name", "email", "role_id", "avatar_url", "created_at"},
		private: []string{"password_hash"},
	},
	TableProjects: {
		name:    TableProjects,
		columns: []string{"id", "title", "stack", "sprint", "notes", "status", "created_by", "created_at", "updated_at"},
	},
	TableModules: {
		name:    TableModules,
		columns: []string{"id", "project_id", "name", "description", "status", "assigned_to", "created_at"},
	},
	TableProjectMembers: {
		name:    TableProjectMembers,
		columns: []string{"id", "project_id", "user_id", "role_in_project", "created_at"},
	},
}

// Tables returns the names of all mirrored tables.
func Tables() []string {
	return []string{TableProjects, TableModules, TableUsers, TableProjectMembers, TableRoles}
}

func lookupSchema(table string) (tableSchema, error) {
	s, ok := schemas[table]
	if !ok {
		return tableSchema{}, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return s, nil
}

func (s tableSchema) has(column string) bool {
	for _, c := range s.columns {
		if c == column {
			return true
		}
	}
	return false
}

func (s tableSchema) writable(column string) bool {
	if s.has(column) {
		return true
	}
	for _, c := range s.private {
		if c == column {
			return true
		}
	}
	return false
}

func (s tableSchema) checkColumn(column string) error {
	if !s.has(column) {
		return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, s.name, column)
	}
	return nil
}

// jsonObjectExpr renders json_object('a', a, 'b', b, ...) over the public columns.
func (s tableSchema) jsonObjectExpr() string {
	parts := make([]string, 0, len(s.columns)*2)
	for _, c := range s.columns {
		parts = append(parts, "'"+c+"'", c)
	}
	return "json_object(" + strings.Join(parts, ", ") + ")"
}

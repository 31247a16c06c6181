package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/olivoil/projectboard/internal/backend/migrations"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrClosed        = errors.New("store is closed")
)

const (
	defaultPollInterval = 2 * time.Second
	journalKeep         = 10000
)

// Store is the SQLite-backed data store shared by every projectboard process.
// Mutations are journaled by triggers; the journal feeds subscriptions.
type Store struct {
	path         string
	db           *sql.DB
	log          *zap.Logger
	pollInterval time.Duration

	mu     sync.Mutex
	feed   *Feed
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used by the store and its change feed.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithPollInterval sets how often the change feed polls the journal when no
// filesystem notification arrives.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	dsn := "file:" + path +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &Store{
		path:         path,
		db:           db,
		log:          zap.NewNop(),
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if n, err := s.Prune(ctx, journalKeep); err != nil {
		s.log.Warn("prune change journal", zap.Error(err))
	} else if n > 0 {
		s.log.Debug("pruned change journal", zap.Int64("rows", n))
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close stops the change feed and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	feed := s.feed
	s.feed = nil
	s.mu.Unlock()

	if feed != nil {
		feed.close()
	}
	return s.db.Close()
}

// Query returns every row of table matching filter (all rows when filter is
// nil) as JSON objects, in insertion order.
func (s *Store) Query(ctx context.Context, table string, filter *Filter) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sch, err := lookupSchema(table)
	if err != nil {
		return nil, err
	}

	q := "SELECT " + sch.jsonObjectExpr() + " FROM " + sch.name
	var args []any
	if filter != nil {
		if err := sch.checkColumn(filter.Column); err != nil {
			return nil, err
		}
		q += " WHERE " + filter.Column + " = ?"
		args = append(args, filter.Value)
	}
	q += " ORDER BY rowid"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, json.RawMessage(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	return out, nil
}

// Insert adds a row and returns its id. Missing id, created_at and
// updated_at values are filled in.
func (s *Store) Insert(ctx context.Context, table string, row Row) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sch, err := lookupSchema(table)
	if err != nil {
		return "", err
	}

	vals := make(Row, len(row)+3)
	for k, v := range row {
		vals[k] = v
	}
	if blank(vals["id"]) {
		vals["id"] = uuid.NewString()
	}
	ts := now()
	for _, c := range []string{"created_at", "updated_at"} {
		if sch.has(c) && blank(vals[c]) {
			vals[c] = ts
		}
	}

	cols := sortedKeys(vals)
	args := make([]any, len(cols))
	for i, c := range cols {
		if !sch.writable(c) {
			return "", fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, c)
		}
		args[i] = vals[c]
	}

	q := "INSERT INTO " + sch.name + " (" + strings.Join(cols, ", ") + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("insert %s: %w", table, ErrAlreadyExists)
		}
		return "", fmt.Errorf("insert %s: %w", table, err)
	}
	s.notify()

	id, _ := vals["id"].(string)
	return id, nil
}

// Update applies patch to the row with the given id.
func (s *Store) Update(ctx context.Context, table, id string, patch Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sch, err := lookupSchema(table)
	if err != nil {
		return err
	}
	if len(patch) == 0 {
		return fmt.Errorf("update %s: empty patch", table)
	}

	vals := make(Row, len(patch)+1)
	for k, v := range patch {
		if k == "id" {
			return fmt.Errorf("update %s: id is immutable", table)
		}
		vals[k] = v
	}
	if sch.has("updated_at") && blank(vals["updated_at"]) {
		vals["updated_at"] = now()
	}

	cols := sortedKeys(vals)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		if !sch.writable(c) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, c)
		}
		sets[i] = c + " = ?"
		args = append(args, vals[c])
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE "+sch.name+" SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update %s: %w", table, ErrAlreadyExists)
		}
		return fmt.Errorf("update %s: %w", table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update %s %s: %w", table, id, ErrNotFound)
	}
	s.notify()
	return nil
}

// Delete removes the row with the given id. Dependent rows are removed by
// foreign key cascades and journaled like any other delete.
func (s *Store) Delete(ctx context.Context, table, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sch, err := lookupSchema(table)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+sch.name+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete %s %s: %w", table, id, ErrNotFound)
	}
	s.notify()
	return nil
}

// Credentials returns the user id and password hash for email.
func (s *Store) Credentials(ctx context.Context, email string) (string, string, error) {
	var id, hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email = ?`, strings.TrimSpace(email),
	).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("load credentials: %w", err)
	}
	return id, hash, nil
}

// Subscribe registers fn for changes to table matching filter. Events are
// delivered in journal order on a goroutine owned by the subscription,
// starting with the first change committed after Subscribe returns. A
// subscriber that falls too far behind gets one EventResync in place of
// the events it missed.
func (s *Store) Subscribe(table string, filter *Filter, fn func(ChangeEvent)) (Subscription, error) {
	sch, err := lookupSchema(table)
	if err != nil {
		return nil, err
	}
	if filter != nil {
		if err := sch.checkColumn(filter.Column); err != nil {
			return nil, err
		}
	}
	if fn == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", table)
	}
	feed, err := s.ensureFeed()
	if err != nil {
		return nil, err
	}
	sub, err := feed.subscribe(table, filter, fn)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", table, err)
	}
	return sub, nil
}

// Unsubscribe releases a subscription.
func (s *Store) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return nil
	}
	return sub.Close()
}

// ChangesSince returns up to limit journal entries with seq > after.
func (s *Store) ChangesSince(ctx context.Context, after int64, limit int) ([]ChangeEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, tbl, kind, new_row, old_row, at FROM changes WHERE seq > ? ORDER BY seq LIMIT ?`,
		after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("read changes: %w", err)
	}
	defer rows.Close()

	var events []ChangeEvent
	for rows.Next() {
		var (
			ev     ChangeEvent
			kind   string
			newRow sql.NullString
			oldRow sql.NullString
		)
		if err := rows.Scan(&ev.Seq, &ev.Table, &kind, &newRow, &oldRow, &ev.At); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		ev.Kind = EventKind(kind)
		if newRow.Valid {
			ev.New = json.RawMessage(newRow.String)
		}
		if oldRow.Valid {
			ev.Old = json.RawMessage(oldRow.String)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// LastSeq returns the newest journal sequence number (0 when empty).
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM changes`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read last seq: %w", err)
	}
	return seq.Int64, nil
}

// Prune keeps only the newest keep journal entries.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM changes WHERE seq <= (SELECT COALESCE(MAX(seq), 0) FROM changes) - ?`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune changes: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) ensureFeed() (*Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.feed == nil {
		f, err := startFeed(s, s.log.Named("feed"), s.pollInterval)
		if err != nil {
			return nil, err
		}
		s.feed = f
	}
	return s.feed, nil
}

// notify wakes the in-process feed after a local mutation.
func (s *Store) notify() {
	s.mu.Lock()
	f := s.feed
	s.mu.Unlock()
	if f != nil {
		f.Nudge()
	}
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	str, ok := v.(string)
	return ok && str == ""
}

func sortedKeys(r Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

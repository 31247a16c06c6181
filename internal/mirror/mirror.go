// Package mirror keeps a local copy of a store table in sync with its change
// feed.
//
// A Mirror is filled by Refresh (a full query) and then kept current by
// change events: inserts are appended, updates replace the record with the
// same id, deletes remove it. Inserts are not deduplicated, so a refresh
// racing with an insert event can leave the same record twice until the next
// refresh. When the feed drops events for a slow mirror, the mirror
// refreshes itself.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/olivoil/projectboard/internal/backend"
)

const resyncTimeout = 10 * time.Second

// Record is a mirrored row.
type Record interface {
	RecordID() string
}

// Source is the remote side of a mirror. *backend.Store implements it.
type Source interface {
	Query(ctx context.Context, table string, filter *backend.Filter) ([]json.RawMessage, error)
	Subscribe(table string, filter *backend.Filter, fn func(backend.ChangeEvent)) (backend.Subscription, error)
}

// Option configures a Mirror.
type Option func(*options)

type options struct {
	log      *zap.Logger
	onChange func()
}

// WithLogger sets the mirror's logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithOnChange sets the change hook. See Mirror.OnChange.
func WithOnChange(fn func()) Option {
	return func(o *options) { o.onChange = fn }
}

// Mirror is a live local replica of the rows of one table matching an
// optional filter. It is safe for concurrent use.
type Mirror[T Record] struct {
	src Source
	log *zap.Logger

	mu       sync.Mutex
	table    string
	filter   *backend.Filter
	data     []T
	inflight int
	gen      uint64 // bumped by Stop and Retarget; stale work is dropped
	sub      backend.Subscription
	started  bool
	onChange func()
}

// New returns a stopped mirror of table seeded with initial.
func New[T Record](src Source, table string, filter *backend.Filter, initial []T, opts ...Option) *Mirror[T] {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	data := make([]T, len(initial))
	copy(data, initial)
	return &Mirror[T]{
		src:      src,
		log:      o.log,
		table:    table,
		filter:   cloneFilter(filter),
		data:     data,
		onChange: o.onChange,
	}
}

// Data returns a copy of the current collection in arrival order.
func (m *Mirror[T]) Data() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]T, len(m.data))
	copy(out, m.data)
	return out
}

// Len returns the number of records.
func (m *Mirror[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// Find returns the first record with id.
func (m *Mirror[T]) Find(id string) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.data {
		if r.RecordID() == id {
			return r, true
		}
	}
	var zero T
	return zero, false
}

// Loading reports whether a Refresh is in flight.
func (m *Mirror[T]) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight > 0
}

// Table returns the mirrored table.
func (m *Mirror[T]) Table() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table
}

// Filter returns a copy of the current filter, nil when unfiltered.
func (m *Mirror[T]) Filter() *backend.Filter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneFilter(m.filter)
}

// OnChange sets a hook called after every change to the collection or the
// loading flag. It runs on the goroutine that made the change, without the
// mirror's lock held.
func (m *Mirror[T]) OnChange(fn func()) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Start opens the change channel. Calling Start on a started mirror is a
// no-op.
func (m *Mirror[T]) Start() error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	gen, table, filter := m.gen, m.table, cloneFilter(m.filter)
	m.mu.Unlock()

	return m.subscribe(gen, table, filter)
}

func (m *Mirror[T]) subscribe(gen uint64, table string, filter *backend.Filter) error {
	sub, err := m.src.Subscribe(table, filter, func(ev backend.ChangeEvent) {
		m.apply(gen, ev)
	})
	if err != nil {
		m.mu.Lock()
		if m.gen == gen {
			m.started = false
		}
		m.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", topic(table, filter), err)
	}

	m.mu.Lock()
	if m.gen != gen {
		// Stopped or retargeted while subscribing.
		m.mu.Unlock()
		return sub.Close()
	}
	m.sub = sub
	m.mu.Unlock()
	m.log.Debug("mirror subscribed", zap.String("topic", sub.Topic()))
	return nil
}

// Stop closes the change channel. Events not yet applied and refreshes in
// flight are discarded. Stop does not wait for them.
func (m *Mirror[T]) Stop() error {
	m.mu.Lock()
	m.gen++
	m.started = false
	sub := m.sub
	m.sub = nil
	m.mu.Unlock()

	if sub == nil {
		return nil
	}
	m.log.Debug("mirror unsubscribed", zap.String("topic", sub.Topic()))
	return sub.Close()
}

// Retarget switches the mirror to another table or filter. The old channel
// is closed and its pending events dropped; a new channel is opened if the
// mirror was started. The collection is kept until the next Refresh.
func (m *Mirror[T]) Retarget(table string, filter *backend.Filter) error {
	m.mu.Lock()
	m.gen++
	old := m.sub
	m.sub = nil
	m.table = table
	m.filter = cloneFilter(filter)
	started := m.started
	gen := m.gen
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	if !started {
		return nil
	}
	return m.subscribe(gen, table, cloneFilter(filter))
}

// Refresh replaces the collection with a full query of the current table
// and filter. On failure the collection is left as it was. Results are
// dropped when the mirror was stopped or retargeted in the meantime.
func (m *Mirror[T]) Refresh(ctx context.Context) error {
	m.mu.Lock()
	gen, table, filter := m.gen, m.table, cloneFilter(m.filter)
	m.inflight++
	m.mu.Unlock()
	m.changed()

	rows, err := m.src.Query(ctx, table, filter)

	m.mu.Lock()
	m.inflight--
	if err != nil {
		m.mu.Unlock()
		m.log.Warn("mirror refresh failed", zap.String("topic", topic(table, filter)), zap.Error(err))
		m.changed()
		return fmt.Errorf("refresh %s: %w", topic(table, filter), err)
	}
	if gen != m.gen {
		m.mu.Unlock()
		m.log.Debug("mirror refresh discarded", zap.String("topic", topic(table, filter)))
		m.changed()
		return nil
	}
	m.data = backend.DecodeRows[T](rows)
	n := len(m.data)
	m.mu.Unlock()

	m.log.Debug("mirror refreshed", zap.String("topic", topic(table, filter)), zap.Int("rows", n))
	m.changed()
	return nil
}

// SetData replaces the collection with fn(current). The change is visible
// to Data as soon as SetData returns. fn gets a copy it may modify; it runs
// under the mirror's lock and must not call back into the mirror.
func (m *Mirror[T]) SetData(fn func([]T) []T) {
	m.mu.Lock()
	cur := make([]T, len(m.data))
	copy(cur, m.data)
	m.data = fn(cur)
	m.mu.Unlock()
	m.changed()
}

// Apply applies one change event to the collection.
func (m *Mirror[T]) Apply(ev backend.ChangeEvent) {
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()
	m.apply(gen, ev)
}

func (m *Mirror[T]) apply(gen uint64, ev backend.ChangeEvent) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	if ev.Kind == backend.EventResync {
		m.mu.Unlock()
		m.resync(ev)
		return
	}
	ok := m.applyLocked(ev)
	m.mu.Unlock()
	if ok {
		m.changed()
	}
}

// resync reloads after the channel dropped events. A Stop or Retarget in
// the meantime discards the result like any other refresh.
func (m *Mirror[T]) resync(ev backend.ChangeEvent) {
	m.log.Info("mirror resync", zap.String("table", ev.Table), zap.Int64("seq", ev.Seq))
	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()
	_ = m.Refresh(ctx)
}

// applyLocked reports whether the collection changed.
func (m *Mirror[T]) applyLocked(ev backend.ChangeEvent) bool {
	switch ev.Kind {
	case backend.EventInsert:
		rec, ok := m.decode(ev.New)
		if !ok {
			return false
		}
		m.data = append(m.data, rec)
		return true

	case backend.EventUpdate:
		rec, ok := m.decode(ev.New)
		if !ok {
			return false
		}
		id := rec.RecordID()
		if id == "" {
			m.log.Debug("update without id", zap.Int64("seq", ev.Seq))
			return false
		}
		for i := range m.data {
			if m.data[i].RecordID() == id {
				m.data[i] = rec
				return true
			}
		}
		return false

	case backend.EventDelete:
		id := gjson.GetBytes(ev.Old, "id").String()
		if id == "" {
			m.log.Debug("delete without id", zap.Int64("seq", ev.Seq))
			return false
		}
		kept := m.data[:0:0]
		for _, r := range m.data {
			if r.RecordID() != id {
				kept = append(kept, r)
			}
		}
		if len(kept) == len(m.data) {
			return false
		}
		m.data = kept
		return true

	default:
		m.log.Debug("unknown event kind", zap.String("kind", string(ev.Kind)))
		return false
	}
}

func (m *Mirror[T]) decode(raw json.RawMessage) (T, bool) {
	var rec T
	if len(raw) == 0 {
		m.log.Debug("event without row image")
		return rec, false
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		m.log.Debug("decode event row", zap.Error(err))
		return rec, false
	}
	return rec, true
}

func (m *Mirror[T]) changed() {
	m.mu.Lock()
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func cloneFilter(f *backend.Filter) *backend.Filter {
	if f == nil {
		return nil
	}
	cp := *f
	return &cp
}

func topic(table string, f *backend.Filter) string {
	if f == nil {
		return table
	}
	return table + ":" + f.String()
}

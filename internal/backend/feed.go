package backend

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	feedBatch     = 500
	feedDebounce  = 25 * time.Millisecond
	feedQueueSize = 256
)

// Subscription is a live channel of change events for one (table, filter).
type Subscription interface {
	// Topic names the channel, e.g. "project_modules:project_id=eq.P1".
	Topic() string
	// Close releases the channel. Events not yet delivered are dropped.
	Close() error
}

// Feed tails the change journal and fans events out to subscriptions.
// Writes from other processes are noticed through fsnotify on the database
// directory; local writes nudge the feed directly; a ticker covers the rest.
type Feed struct {
	store  *Store
	log    *zap.Logger
	w      *fsnotify.Watcher
	files  map[string]bool // database file basenames that signal a write
	poll   time.Duration
	nudge  chan struct{}
	done   chan struct{}
	exited chan struct{}

	mu      sync.Mutex
	subs    map[uint64]*subscription
	nextID  uint64
	lastSeq int64
}

func startFeed(store *Store, log *zap.Logger, poll time.Duration) (*Feed, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	head, err := store.LastSeq(ctx)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(store.Path())
	f := &Feed{
		store:   store,
		log:     log,
		files:   map[string]bool{base: true, base + "-wal": true},
		poll:    poll,
		nudge:   make(chan struct{}, 1),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
		subs:    make(map[uint64]*subscription),
		lastSeq: head,
	}

	// Without notifications the feed still works off the poll ticker.
	if w, err := fsnotify.NewWatcher(); err != nil {
		log.Warn("fsnotify unavailable, polling only", zap.Error(err))
	} else if err := w.Add(filepath.Dir(store.Path())); err != nil {
		log.Warn("watch database dir, polling only", zap.Error(err))
		_ = w.Close()
	} else {
		f.w = w
	}

	go f.loop()
	return f, nil
}

// Nudge asks the feed to read the journal now.
func (f *Feed) Nudge() {
	select {
	case f.nudge <- struct{}{}:
	default:
	}
}

func (f *Feed) close() {
	close(f.done)
	<-f.exited
	if f.w != nil {
		_ = f.w.Close()
	}

	f.mu.Lock()
	subs := f.subs
	f.subs = make(map[uint64]*subscription)
	f.mu.Unlock()
	for _, s := range subs {
		s.stop()
	}
}

func (f *Feed) subscribe(table string, filter *Filter, fn func(ChangeEvent)) (*subscription, error) {
	// The feed cursor may lag the journal; rows already committed belong to
	// the subscriber's initial load, not to its stream.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	head, err := f.store.LastSeq(ctx)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	var fc *Filter
	if filter != nil {
		cp := *filter
		fc = &cp
	}
	s := &subscription{
		id:     f.nextID,
		table:  table,
		filter: fc,
		after:  head,
		fn:     fn,
		queue:  make(chan ChangeEvent, feedQueueSize),
		done:   make(chan struct{}),
		feed:   f,
	}
	f.subs[s.id] = s
	go s.run()
	f.log.Debug("subscribed", zap.String("topic", s.Topic()), zap.Int64("after", head))
	return s, nil
}

func (f *Feed) remove(id uint64) {
	f.mu.Lock()
	delete(f.subs, id)
	f.mu.Unlock()
}

func (f *Feed) loop() {
	defer close(f.exited)

	ticker := time.NewTicker(f.poll)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if f.w != nil {
		events = f.w.Events
		errs = f.w.Errors
	}

	var debounce <-chan time.Time
	for {
		select {
		case <-f.done:
			return

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if f.files[filepath.Base(event.Name)] && debounce == nil {
				debounce = time.After(feedDebounce)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			f.log.Warn("watcher error", zap.Error(err))

		case <-debounce:
			debounce = nil
			f.pull()

		case <-f.nudge:
			f.pull()

		case <-ticker.C:
			f.pull()
		}
	}
}

// pull reads every journal entry past lastSeq and dispatches it.
func (f *Feed) pull() {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		f.mu.Lock()
		after := f.lastSeq
		f.mu.Unlock()
		batch, err := f.store.ChangesSince(ctx, after, feedBatch)
		cancel()
		if err != nil {
			f.log.Warn("read change journal", zap.Error(err))
			return
		}
		for _, ev := range batch {
			f.dispatch(ev)
		}
		if len(batch) > 0 {
			f.mu.Lock()
			f.lastSeq = batch[len(batch)-1].Seq
			f.mu.Unlock()
		}
		if len(batch) < feedBatch {
			return
		}
	}
}

func (f *Feed) dispatch(ev ChangeEvent) {
	f.mu.Lock()
	targets := make([]*subscription, 0, len(f.subs))
	for _, s := range f.subs {
		if s.matches(ev) {
			targets = append(targets, s)
		}
	}
	f.mu.Unlock()

	for _, s := range targets {
		s.enqueue(ev)
	}
}

type subscription struct {
	id      uint64
	table   string
	filter  *Filter
	after   int64 // journal head when subscribed
	fn      func(ChangeEvent)
	queue   chan ChangeEvent
	done    chan struct{}
	once    sync.Once
	feed    *Feed
	dropped atomic.Int64
}

func (s *subscription) Topic() string {
	if s.filter == nil {
		return s.table
	}
	return s.table + ":" + s.filter.String()
}

func (s *subscription) Close() error {
	s.feed.remove(s.id)
	s.stop()
	return nil
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// matches applies the table and filter to the event's row image. Deletes
// are matched on the old row, everything else on the new one.
func (s *subscription) matches(ev ChangeEvent) bool {
	if ev.Seq <= s.after || ev.Table != s.table {
		return false
	}
	if s.filter == nil {
		return true
	}
	row := ev.New
	if ev.Kind == EventDelete {
		row = ev.Old
	}
	if len(row) == 0 {
		return false
	}
	v := gjson.GetBytes(row, s.filter.Column)
	return v.Exists() && v.String() == s.filter.Value
}

// enqueue never blocks the feed. When the queue is full the backlog is
// discarded and replaced by a single EventResync; only the feed goroutine
// sends, so the queue has room once drained.
func (s *subscription) enqueue(ev ChangeEvent) {
	select {
	case <-s.done:
		return
	case s.queue <- ev:
		return
	default:
	}

	n := int64(1)
	for drained := false; !drained; {
		select {
		case <-s.queue:
			n++
		default:
			drained = true
		}
	}
	total := s.dropped.Add(n)
	s.feed.log.Warn("subscriber fell behind, dropping events",
		zap.String("topic", s.Topic()),
		zap.Int64("dropped", n),
		zap.Int64("total_dropped", total))

	select {
	case s.queue <- ChangeEvent{Seq: ev.Seq, Table: s.table, Kind: EventResync, At: ev.At}:
	default:
	}
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.queue:
			// Close may race with a ready event; prefer dropping it.
			select {
			case <-s.done:
				return
			default:
			}
			s.fn(ev)
		}
	}
}

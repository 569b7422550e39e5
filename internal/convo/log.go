package convo

import (
	"context"
	log "log/slog"
	"sync"
	"time"
)

// Store is the persistence collaborator. The log is written and read back
// wholesale.
type Store interface {
	Load(ctx context.Context) ([]Turn, error)
	Save(ctx context.Context, turns []Turn) error
}

// Log is the ordered, append-only conversation. Insertion order is
// chronological and is the order turns are rendered in.
type Log struct {
	mu    sync.RWMutex
	turns []Turn
	seq   uint64 // bumped on every append
	store Store
	now   func() time.Time

	// saveMu orders Saves; saved is the seq of the last snapshot written.
	saveMu sync.Mutex
	saved  uint64
}

type LogOption func(*Log)

func WithStore(s Store) LogOption {
	return func(l *Log) { l.store = s }
}

func WithClock(now func() time.Time) LogOption {
	return func(l *Log) { l.now = now }
}

func NewLog(opts ...LogOption) *Log {
	l := &Log{now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Restore replaces the in-memory log with whatever the store holds. A failed
// load leaves the log empty and is only logged.
func (l *Log) Restore(ctx context.Context) {
	if l.store == nil {
		return
	}

	turns, err := l.store.Load(ctx)
	if err != nil {
		log.Error("Failed to load conversation", "err", err)
		return
	}

	l.mu.Lock()
	l.turns = append([]Turn(nil), turns...)
	l.seq++
	l.mu.Unlock()

	log.Debug("Restored conversation", "turns", len(turns))
}

// Append records a new turn and persists the whole log.
func (l *Log) Append(ctx context.Context, sender Sender, text string) (Turn, error) {
	t, err := NewTurn(sender, text, l.now())
	if err != nil {
		return Turn{}, err
	}

	l.mu.Lock()
	l.turns = append(l.turns, t)
	l.seq++
	seq := l.seq
	snapshot := append([]Turn(nil), l.turns...)
	l.mu.Unlock()

	l.persist(ctx, seq, snapshot)
	return t, nil
}

// persist writes snapshots in append order. A snapshot older than one
// already written is dropped, since the store replaces its contents.
func (l *Log) persist(ctx context.Context, seq uint64, turns []Turn) {
	if l.store == nil {
		return
	}

	l.saveMu.Lock()
	defer l.saveMu.Unlock()
	if seq <= l.saved {
		log.Debug("Skipping stale snapshot", "turns", len(turns))
		return
	}
	if err := l.store.Save(ctx, turns); err == nil {
		l.saved = seq
	} else {
		log.Error("Failed to save conversation", "turns", len(turns), "err", err)
	}
}

func (l *Log) Turns() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Turn(nil), l.turns...)
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

func (l *Log) Last() (Turn, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.turns) == 0 {
		return Turn{}, false
	}
	return l.turns[len(l.turns)-1], true
}

package sighting

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCapacity bounds the rolling log when no explicit capacity is
// configured.
const DefaultCapacity = 200

const persistTimeout = 3 * time.Second

// AppendResult reports what Append did with a sighting.
type AppendResult int

const (
	// Accepted means the sighting was new and is now stored.
	Accepted AppendResult = iota
	// Duplicate means a sighting with the same message id is already stored;
	// the store is unchanged. Redelivery by the feed is expected, so this is
	// a fact, not an error.
	Duplicate
)

// Persister saves and loads full snapshots of the log. Saves happen after
// every mutation; failures are logged and absorbed because the in-process log
// stays authoritative.
type Persister interface {
	Save(ctx context.Context, sightings []Sighting) error
	Load(ctx context.Context) ([]Sighting, error)
}

// Store is the bounded, order-preserving, deduplicated sighting log. All
// mutations serialize on one mutex; Append, Clear and Snapshot are atomic
// with respect to concurrent ingestion.
type Store struct {
	mu        sync.Mutex
	capacity  int
	log       []Sighting
	byMsgID   map[int64]struct{}
	persister Persister
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPersister attaches a snapshot persister invoked after each mutation.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates an empty store. A non-positive capacity falls back to
// DefaultCapacity.
func NewStore(capacity int, opts ...Option) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		capacity: capacity,
		byMsgID:  make(map[int64]struct{}),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append stores a new sighting, evicting from the front once the log exceeds
// capacity. A sighting whose message id is already present is rejected as
// Duplicate and the stored record keeps its original coordinates and time.
func (s *Store) Append(ctx context.Context, sg Sighting) AppendResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byMsgID[sg.MessageID]; exists {
		return Duplicate
	}

	s.log = append(s.log, sg)
	s.byMsgID[sg.MessageID] = struct{}{}
	for len(s.log) > s.capacity {
		delete(s.byMsgID, s.log[0].MessageID)
		s.log = s.log[1:]
	}

	s.persistLocked(ctx)
	return Accepted
}

// Snapshot returns a copy of the current contents in arrival order.
func (s *Store) Snapshot() []Sighting {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Sighting, len(s.log))
	copy(out, s.log)
	return out
}

// Len returns the current number of stored sightings.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.log)
}

// CountSince returns how many stored sightings occurred after the cutoff.
func (s *Store) CountSince(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sg := range s.log {
		if sg.OccurredAt.After(cutoff) {
			n++
		}
	}
	return n
}

// Clear empties the store. Administrative action.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = nil
	s.byMsgID = make(map[int64]struct{})
	s.persistLocked(ctx)
}

// Rehydrate replaces the contents with the persisted snapshot, rebuilding the
// dedup index. Called once at startup before ingestion begins. When the
// persisted snapshot exceeds capacity only the newest entries are kept.
func (s *Store) Rehydrate(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	loaded, err := s.persister.Load(ctx)
	if err != nil {
		return err
	}
	if len(loaded) > s.capacity {
		loaded = loaded[len(loaded)-s.capacity:]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = nil
	s.byMsgID = make(map[int64]struct{})
	for _, sg := range loaded {
		if _, exists := s.byMsgID[sg.MessageID]; exists {
			continue
		}
		s.log = append(s.log, sg)
		s.byMsgID[sg.MessageID] = struct{}{}
	}
	return nil
}

// persistLocked saves the current log. Must be called while holding s.mu so
// saves land in mutation order.
func (s *Store) persistLocked(ctx context.Context) {
	if s.persister == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	snap := make([]Sighting, len(s.log))
	copy(snap, s.log)
	if err := s.persister.Save(ctx, snap); err != nil {
		s.logger.Warn("sighting snapshot persist failed", "count", len(snap), "error", err)
	}
}

package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultStorageKey is the backend key the snapshot blob lives under.
const DefaultStorageKey = "htmx-history-cache"

// ErrCacheMiss indicates no snapshot exists for the requested key
var ErrCacheMiss = errors.New("cache miss")

// Store is the bounded snapshot cache. The bound is whatever the backend
// accepts: there is no fixed entry count.
type Store struct {
	backend   Backend
	key       string
	compactor Compactor
	logger    zerolog.Logger

	// mu serialises read-modify-write cycles within this process only.
	mu sync.Mutex
}

// Option customises a Store.
type Option func(*Store)

// WithStorageKey sets the backend key. Default: DefaultStorageKey.
func WithStorageKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithLogger sets the store logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithCompactor compacts content on every upsert.
func WithCompactor(c Compactor) Option {
	return func(s *Store) { s.compactor = c }
}

// NewStore creates a snapshot store over backend.
func NewStore(backend Backend, opts ...Option) *Store {
	if backend == nil {
		panic("snapshot backend cannot be nil")
	}
	s := &Store{
		backend: backend,
		key:     DefaultStorageKey,
		logger:  log.With().Str("component", "snapshot-store").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StorageKey returns the backend key of the blob.
func (s *Store) StorageKey() string {
	return s.key
}

// Get returns the snapshot stored for key.
// Returns ErrCacheMiss if there is none.
func (s *Store) Get(ctx context.Context, key string) (*Snapshot, error) {
	snaps, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	for i := range snaps {
		if snaps[i].CacheKey == key {
			CacheHits.Inc()
			s.logger.Debug().Str("key", key).Msg("Snapshot cache hit")
			return &snaps[i], nil
		}
	}

	CacheMisses.Inc()
	s.logger.Debug().Str("key", key).Msg("Snapshot cache miss")
	return nil, ErrCacheMiss
}

// Upsert replaces any snapshot with the same key, appends snap at the end
// of the sequence and persists the sequence. Quota failures evict from the
// head and retry; if nothing fits the snapshot is dropped and Upsert still
// returns nil. Only non-quota backend failures are returned.
func (s *Store) Upsert(ctx context.Context, snap *Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	entry := snap.Clone()
	if s.compactor != nil {
		compacted, err := s.compactor.Compact(entry.Content)
		if err != nil {
			CacheErrors.WithLabelValues("compact").Inc()
			s.logger.Warn().Err(err).Str("key", entry.CacheKey).Msg("Content compaction failed, storing as captured")
		} else {
			entry.Content = compacted
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snaps, err := s.load(ctx)
	if err != nil {
		return err
	}

	snaps = removeKey(snaps, entry.CacheKey)
	snaps = append(snaps, *entry)

	return s.persist(ctx, snaps)
}

// All returns every snapshot, oldest first.
func (s *Store) All(ctx context.Context) ([]Snapshot, error) {
	return s.load(ctx)
}

// Len returns the number of stored snapshots.
func (s *Store) Len(ctx context.Context) (int, error) {
	snaps, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(snaps), nil
}

// Delete removes the snapshot stored for key, if any.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snaps, err := s.load(ctx)
	if err != nil {
		return err
	}

	remaining := removeKey(snaps, key)
	if len(remaining) == len(snaps) {
		return nil
	}
	return s.persist(ctx, remaining)
}

// Clear removes the whole blob.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Delete(ctx, s.key); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("clear snapshots: %w", err)
	}
	BlobSize.Set(0)
	Entries.Set(0)
	return nil
}

// load reads the blob. Absent, corrupted and outdated blobs read as empty.
func (s *Store) load(ctx context.Context) ([]Snapshot, error) {
	data, err := s.backend.Load(ctx, s.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		CacheErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("load snapshots: %w", err)
	}

	snaps, err := decodeBlob(data)
	if err != nil {
		CacheErrors.WithLabelValues("decode").Inc()
		s.logger.Warn().Err(err).Str("storage_key", s.key).Int("bytes", len(data)).Msg("Discarding unreadable snapshot blob")
		return nil, nil
	}
	return snaps, nil
}

// persist writes snaps, evicting from the head while the backend reports
// quota exhaustion. The caller holds s.mu.
func (s *Store) persist(ctx context.Context, snaps []Snapshot) error {
	evicted := 0
	for len(snaps) > 0 {
		data, err := encodeBlob(snaps)
		if err != nil {
			return err
		}

		err = s.backend.Save(ctx, s.key, data)
		if err == nil {
			BlobSize.Set(float64(len(data)))
			Entries.Set(float64(len(snaps)))
			if evicted > 0 {
				s.logger.Debug().
					Int("evicted", evicted).
					Int("entries", len(snaps)).
					Int("bytes", len(data)).
					Msg("Persisted snapshots after eviction")
			}
			return nil
		}

		if !errors.Is(err, ErrQuotaExceeded) {
			CacheErrors.WithLabelValues("save").Inc()
			return fmt.Errorf("save snapshots: %w", err)
		}

		s.logger.Debug().
			Str("evicted_key", snaps[0].CacheKey).
			Int("bytes", len(data)).
			Msg("Quota exceeded, evicting oldest snapshot")
		Evictions.Inc()
		evicted++
		snaps = snaps[1:]
	}

	Dropped.Inc()
	s.logger.Warn().Int("evicted", evicted).Msg("Snapshot dropped, nothing fits the storage quota")
	return nil
}

func removeKey(snaps []Snapshot, key string) []Snapshot {
	for i := range snaps {
		if snaps[i].CacheKey == key {
			out := make([]Snapshot, 0, len(snaps)-1)
			out = append(out, snaps[:i]...)
			return append(out, snaps[i+1:]...)
		}
	}
	return snaps
}

package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/antonkk/formpilot/api/schemas"
)

// Backend is the durable storage behind the learning store. The engine only
// requires eventual persistence and read-your-writes within a process.
type Backend interface {
	LoadAll(ctx context.Context) (map[string]schemas.LearnedEntry, error)
	Persist(ctx context.Context, entry schemas.LearnedEntry) error
	Close() error
}

// Store is the shared label->answer memory. Reads are served from the
// last-committed in-process snapshot; writes go through a single writer lock
// and write through to the backend, so concurrent sessions cannot lose
// updates.
type Store struct {
	logger  *zap.Logger
	backend Backend
	mu      sync.RWMutex
	entries map[string]schemas.LearnedEntry
}

// NewStore loads the backend's current contents into memory. The returned
// store serves reads from that snapshot plus any writes made through it.
func NewStore(ctx context.Context, backend Backend, logger *zap.Logger) (*Store, error) {
	entries, err := backend.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load learned entries: %w", err)
	}
	if entries == nil {
		entries = make(map[string]schemas.LearnedEntry)
	}
	logger.Info("Learning store loaded.", zap.Int("entries", len(entries)))
	return &Store{
		logger:  logger.Named("memory"),
		backend: backend,
		entries: entries,
	}, nil
}

// Lookup returns the entry for a raw (un-normalized) label.
func (s *Store) Lookup(label string) (schemas.LearnedEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[NormalizeLabel(label)]
	return entry, ok
}

// GetAll returns a copy of the current snapshot.
func (s *Store) GetAll() map[string]schemas.LearnedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]schemas.LearnedEntry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Upsert records a resolution under the normalized label. Writes are
// last-write-wins; upserting an identical (key, answer) pair leaves exactly
// one stored entry.
func (s *Store) Upsert(ctx context.Context, label, answer, origin string, hint *schemas.StrategyHint) error {
	key := NormalizeLabel(label)
	if key == "" || answer == "" {
		return fmt.Errorf("refusing to learn empty key or answer for label %q", label)
	}
	entry := schemas.LearnedEntry{
		Key:       key,
		Answer:    answer,
		Hint:      hint,
		Origin:    origin,
		UpdatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Persist(ctx, entry); err != nil {
		return fmt.Errorf("failed to persist learned entry %q: %w", key, err)
	}
	s.entries[key] = entry
	s.logger.Debug("Learned entry upserted.", zap.String("key", key), zap.String("origin", origin))
	return nil
}

// Len reports the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close flushes and releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// MemoryBackend is a volatile Backend for tests and dry runs.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]schemas.LearnedEntry
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]schemas.LearnedEntry)}
}

func (m *MemoryBackend) LoadAll(ctx context.Context) (map[string]schemas.LearnedEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]schemas.LearnedEntry, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryBackend) Persist(ctx context.Context, entry schemas.LearnedEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Key] = entry
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

package infra

import (
	"context"
	"sync"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
)

const watchBuffer = 64

// MemoryStore implements domain.RecordStore in process memory.
// Used by tests and by single-process runs (foreground and daemon in one binary).
type MemoryStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	watchers map[string][]chan domain.Change
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     make(map[string][]byte),
		watchers: make(map[string][]chan domain.Change),
	}
}

// Get returns a copy of the stored value.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores value and notifies watchers of key.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := append([]byte(nil), value...)
	s.data[key] = v
	for _, ch := range s.watchers[key] {
		offer(ch, domain.Change{Key: key, Value: append([]byte(nil), v...)})
	}
	return nil
}

// Watch streams changes to key until ctx is canceled or the store is closed.
func (s *MemoryStore) Watch(ctx context.Context, key string) (<-chan domain.Change, error) {
	ch := make(chan domain.Change, watchBuffer)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, nil
	}
	s.watchers[key] = append(s.watchers[key], ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.removeWatcher(key, ch)
	}()
	return ch, nil
}

// Close closes every open watch channel.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	for key, chans := range s.watchers {
		for _, ch := range chans {
			close(ch)
		}
		delete(s.watchers, key)
	}
	return nil
}

func (s *MemoryStore) removeWatcher(key string, ch chan domain.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chans := s.watchers[key]
	for i, c := range chans {
		if c == ch {
			s.watchers[key] = append(chans[:i], chans[i+1:]...)
			close(ch)
			return
		}
	}
}

// offer sends c without blocking. When the buffer is full the oldest pending
// change is dropped so the latest value is always delivered.
// Callers must hold the lock that guards all senders on ch.
func offer(ch chan domain.Change, c domain.Change) {
	select {
	case ch <- c:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- c
}

// Ensure MemoryStore implements domain.RecordStore.
var _ domain.RecordStore = (*MemoryStore)(nil)

package transcript

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps transcript logs in process memory. Suitable for a
// single instance; expired logs are swept by a janitor goroutine.
type MemoryStore struct {
	mu   sync.RWMutex
	logs map[string]*memoryLog
	ttl  time.Duration
	now  func() time.Time
}

type memoryLog struct {
	entries  []Entry
	deadline time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		logs: make(map[string]*memoryLog),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (s *MemoryStore) Append(_ context.Context, key string, entry Entry) error {
	if key == "" {
		return ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.logs[key]
	if !ok || s.now().After(log.deadline) {
		log = &memoryLog{}
		s.logs[key] = log
	}
	log.entries = append(log.entries, entry)
	log.deadline = s.now().Add(s.ttl)
	return nil
}

func (s *MemoryStore) Range(_ context.Context, key string, cursor int) ([]Entry, int, error) {
	if key == "" {
		return nil, cursor, ErrInvalidKey
	}
	if cursor < 0 {
		cursor = 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, ok := s.logs[key]
	if !ok || s.now().After(log.deadline) {
		return nil, cursor, nil
	}
	if cursor >= len(log.entries) {
		return nil, cursor, nil
	}
	out := make([]Entry, len(log.entries)-cursor)
	copy(out, log.entries[cursor:])
	return out, len(log.entries), nil
}

// StartJanitor sweeps expired logs until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *MemoryStore) sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, log := range s.logs {
		if now.After(log.deadline) {
			delete(s.logs, key)
		}
	}
}

package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore keeps call records in process memory, used when no
// database is configured. Records vanish on restart.
type InMemoryStore struct {
	mu      sync.RWMutex
	byCall  map[string]*Record
	ordered []string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byCall: make(map[string]*Record)}
}

func (s *InMemoryStore) Save(_ context.Context, rec Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byCall[rec.CallSid]; !exists {
		s.ordered = append(s.ordered, rec.CallSid)
	}
	stored := rec
	s.byCall[rec.CallSid] = &stored
	return nil
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, callSid, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byCall[callSid]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) List(_ context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.byCall))
	for _, sid := range s.ordered {
		out = append(out, *s.byCall[sid])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

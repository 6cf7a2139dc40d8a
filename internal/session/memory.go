package session

import (
	"context"
	"sync"
	"time"

	"goodscommunity/internal/domain"
)

type memEntry struct {
	member   domain.MemberView
	lastSeen time.Time
}

// MemoryStore keeps sessions in process. Entries idle longer than the
// timeout are dropped on the next access.
type MemoryStore struct {
	mu      sync.Mutex
	idle    time.Duration
	entries map[string]*memEntry
	now     func() time.Time
}

func NewMemoryStore(idle time.Duration) *MemoryStore {
	return &MemoryStore{idle: idle, entries: map[string]*memEntry{}, now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.MemberView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	now := s.now()
	if s.idle > 0 && now.Sub(e.lastSeen) > s.idle {
		delete(s.entries, id)
		return nil, nil
	}
	e.lastSeen = now
	m := e.member
	return &m, nil
}

func (s *MemoryStore) Set(_ context.Context, id string, m domain.MemberView) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = &memEntry{member: m, lastSeen: s.now()}
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// Sweep removes every expired entry and reports how many were dropped.
func (s *MemoryStore) Sweep() int {
	if s.idle <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, e := range s.entries {
		if now.Sub(e.lastSeen) > s.idle {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryStore) RunSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep()
		}
	}
}

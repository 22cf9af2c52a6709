package memory

import (
	"context"
	"sync"
	"time"

	"github.com/gabzinnn/av-continua-sub000/internal/domain"
)

// HandleStore keeps session handles in memory with a TTL, mirroring the redis
// implementation for dev mode and tests.
type HandleStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu      sync.RWMutex
	handles map[string]storedHandle
}

type storedHandle struct {
	handle    domain.SessionHandle
	expiresAt time.Time
}

func NewHandleStore(ttl time.Duration) *HandleStore {
	return &HandleStore{
		ttl:     ttl,
		clock:   time.Now,
		handles: make(map[string]storedHandle),
	}
}

// NewHandleStoreWithClock is test-only for deterministic expiry.
func NewHandleStoreWithClock(ttl time.Duration, clock func() time.Time) *HandleStore {
	s := NewHandleStore(ttl)
	s.clock = clock
	return s
}

func (s *HandleStore) Put(_ context.Context, h domain.SessionHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[h.Token] = storedHandle{handle: h, expiresAt: s.clock().Add(s.ttl)}
	return nil
}

func (s *HandleStore) Get(_ context.Context, token string) (domain.SessionHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.handles[token]
	if !ok || !stored.expiresAt.After(s.clock()) {
		return domain.SessionHandle{}, domain.ErrHandleNotFound
	}
	return stored.handle, nil
}

func (s *HandleStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, token)
	return nil
}

func (s *HandleStore) DeleteByResult(_ context.Context, resultID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, stored := range s.handles {
		if stored.handle.ResultID == resultID {
			delete(s.handles, token)
		}
	}
	return nil
}

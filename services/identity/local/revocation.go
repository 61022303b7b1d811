package localidp

import (
	"context"
	"sync"
	"time"
)

// RevocationStore remembers revoked token IDs until the tokens expire on their own.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type memoryRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time // {jti: expiry}
}

// NewMemoryRevocationStore only suits single-instance deployments.
func NewMemoryRevocationStore() RevocationStore {
	return &memoryRevocations{revoked: make(map[string]time.Time)}
}

func (s *memoryRevocations) Revoke(_ context.Context, jti string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}
	if now.Before(until) {
		s.revoked[jti] = until
	}
	return nil
}

func (s *memoryRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.revoked[jti]
	return ok && time.Now().Before(exp), nil
}

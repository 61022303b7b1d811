package localidp

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "sapp:revoked:"

type redisRevocations struct {
	rdb redis.UniversalClient
}

// NewRedisRevocationStore shares revocations between instances; keys expire with the tokens.
func NewRedisRevocationStore(rdb redis.UniversalClient) RevocationStore {
	return &redisRevocations{rdb: rdb}
}

func revokedKey(jti string) string { return revokedKeyPrefix + jti }

func (s *redisRevocations) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, revokedKey(jti), 1, ttl).Err(); err != nil {
		return errors.Wrap(err, "storing revoked token")
	}
	return nil
}

func (s *redisRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	err := s.rdb.Get(ctx, revokedKey(jti)).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "reading revoked token")
	}
	return true, nil
}

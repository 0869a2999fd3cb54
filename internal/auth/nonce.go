package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// NonceStore remembers signature nonces so a captured callback cannot be
// replayed. UseNonce reports false when the nonce was already used.
type NonceStore interface {
	UseNonce(ctx context.Context, scope, nonce string, expiry time.Time) (bool, error)
}

type InMemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]time.Time
	now    func() time.Time
}

// NewInMemoryNonceStore expires nonces against now, which should be the clock
// the verifier stamps expiries with. A nil now means time.Now.
func NewInMemoryNonceStore(now func() time.Time) *InMemoryNonceStore {
	if now == nil {
		now = time.Now
	}
	return &InMemoryNonceStore{nonces: make(map[string]time.Time), now: now}
}

func (s *InMemoryNonceStore) UseNonce(_ context.Context, scope, nonce string, expiry time.Time) (bool, error) {
	if scope == "" || nonce == "" {
		return false, errors.New("auth: scope and nonce are required")
	}
	key := scope + "::" + nonce

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.nonces {
		if exp.Before(now) {
			delete(s.nonces, k)
		}
	}

	if _, ok := s.nonces[key]; ok {
		return false, nil
	}
	s.nonces[key] = expiry
	return true, nil
}

// RedisNonceStore shares nonces between replicas through SET NX.
type RedisNonceStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisNonceStore stores keys as <prefix>:<scope>:<nonce>.
func NewRedisNonceStore(client redis.Cmdable, prefix string) *RedisNonceStore {
	return &RedisNonceStore{client: client, prefix: strings.TrimRight(prefix, ":")}
}

func (s *RedisNonceStore) UseNonce(ctx context.Context, scope, nonce string, expiry time.Time) (bool, error) {
	if scope == "" || nonce == "" {
		return false, errors.New("auth: scope and nonce are required")
	}
	ttl := time.Until(expiry)
	if ttl <= 0 {
		ttl = time.Second
	}
	return s.client.SetNX(ctx, s.prefix+":"+scope+":"+nonce, 1, ttl).Result()
}

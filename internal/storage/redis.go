package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"keywarden/pkg/logging"
	"keywarden/pkg/oauth"
)

const (
	// DefaultRedisPrefix namespaces all keywarden keys in a shared Redis.
	DefaultRedisPrefix = "keywarden"

	// DefaultRedisLockTTL is the lease on a refresh lock. A crashed holder's
	// lock expires on its own after this, so other processes recover without
	// intervention.
	DefaultRedisLockTTL = 30 * time.Second
)

// RedisStorageConfig configures a RedisStorage.
type RedisStorageConfig struct {
	// Prefix namespaces keys. Defaults to DefaultRedisPrefix.
	Prefix string

	// LockTTL is the lease duration on token locks. Zero means
	// DefaultRedisLockTTL.
	LockTTL time.Duration

	// LockTimeout bounds LockToken acquisition. Zero means DefaultLockTimeout.
	LockTimeout time.Duration

	// LockRetryDelay is the lock polling interval. Zero means
	// DefaultLockRetryDelay.
	LockRetryDelay time.Duration
}

// RedisStorage persists sessions and tokens in Redis and coordinates
// cross-process refreshes with a SET-NX lease lock per token key. It serves
// deployments where multiple hosts share one credential store and a shared
// filesystem is not available.
type RedisStorage struct {
	client         redis.UniversalClient
	prefix         string
	lockTTL        time.Duration
	lockTimeout    time.Duration
	lockRetryDelay time.Duration
}

// NewRedisStorage creates a Redis-backed storage on the given client.
func NewRedisStorage(client redis.UniversalClient, cfg RedisStorageConfig) *RedisStorage {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = DefaultRedisLockTTL
	}
	lockTimeout := cfg.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	lockRetryDelay := cfg.LockRetryDelay
	if lockRetryDelay <= 0 {
		lockRetryDelay = DefaultLockRetryDelay
	}

	return &RedisStorage{
		client:         client,
		prefix:         prefix,
		lockTTL:        lockTTL,
		lockTimeout:    lockTimeout,
		lockRetryDelay: lockRetryDelay,
	}
}

// SaveSession persists a session under the given state.
func (r *RedisStorage) SaveSession(ctx context.Context, state string, session *oauth.Session) error {
	return r.setJSON(ctx, r.sessionKey(state), session)
}

// GetSession returns the session for the given state, or nil if absent.
func (r *RedisStorage) GetSession(ctx context.Context, state string) (*oauth.Session, error) {
	var session oauth.Session
	ok, err := r.getJSON(ctx, r.sessionKey(state), &session)
	if err != nil || !ok {
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes the session for the given state.
func (r *RedisStorage) DeleteSession(ctx context.Context, state string) error {
	return r.del(ctx, r.sessionKey(state))
}

// SaveToken persists a token under the given key.
func (r *RedisStorage) SaveToken(ctx context.Context, key string, token *oauth.Token) error {
	return r.setJSON(ctx, r.tokenKey(key), token)
}

// GetToken returns the token for the given key, or nil if absent.
func (r *RedisStorage) GetToken(ctx context.Context, key string) (*oauth.Token, error) {
	var token oauth.Token
	ok, err := r.getJSON(ctx, r.tokenKey(key), &token)
	if err != nil || !ok {
		return nil, err
	}
	return &token, nil
}

// DeleteToken removes the token for the given key.
func (r *RedisStorage) DeleteToken(ctx context.Context, key string) error {
	return r.del(ctx, r.tokenKey(key))
}

// unlockScript deletes the lock only if it still belongs to the caller, so a
// holder whose lease already expired cannot release someone else's lock.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// LockToken acquires the lease lock for the given token key, polling until
// the configured timeout. The lease expires on its own after LockTTL, which
// is the crash-recovery path for holders that died without releasing.
func (r *RedisStorage) LockToken(ctx context.Context, key string) (UnlockFunc, error) {
	lockKey := r.lockKey(key)
	owner := uuid.NewString()

	deadline := time.Now().Add(r.lockTimeout)
	for {
		ok, err := r.client.SetNX(ctx, lockKey, owner, r.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: acquire lock %s: %v", oauth.ErrStorageFailure, lockKey, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			logging.Warn("Storage", "Lease lock acquisition timed out for key=%s", key)
			return nil, fmt.Errorf("%w: %s", oauth.ErrLockTimeout, lockKey)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", oauth.ErrLockTimeout, lockKey)
		case <-time.After(r.lockRetryDelay):
		}
	}

	return func() error {
		// Release outside the caller's (possibly cancelled) context so the
		// lock never outlives its holder by a full TTL unnecessarily.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := unlockScript.Run(releaseCtx, r.client, []string{lockKey}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: release lock %s: %v", oauth.ErrStorageFailure, lockKey, err)
		}
		return nil
	}, nil
}

func (r *RedisStorage) sessionKey(state string) string {
	return r.prefix + ":session:" + state
}

func (r *RedisStorage) tokenKey(key string) string {
	return r.prefix + ":token:" + key
}

func (r *RedisStorage) lockKey(key string) string {
	return r.prefix + ":lock:" + key
}

func (r *RedisStorage) setJSON(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: marshal record: %v", oauth.ErrStorageFailure, err)
	}
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", oauth.ErrStorageFailure, key, err)
	}
	return nil
}

// getJSON reads a record into value. Returns (false, nil) if the key does not
// exist.
func (r *RedisStorage) getJSON(ctx context.Context, key string, value interface{}) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: get %s: %v", oauth.ErrStorageFailure, key, err)
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", oauth.ErrStorageFailure, key, err)
	}
	return true, nil
}

func (r *RedisStorage) del(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: del %s: %v", oauth.ErrStorageFailure, key, err)
	}
	return nil
}

package storage

import (
	"context"

	"keywarden/pkg/oauth"
)

// Storage is the capability interface for persisting sessions and tokens.
// Keys are opaque UTF-8 strings; no ordering between keys may be assumed.
//
// Contract:
//   - Save overwrites any existing entry under the same key (last-writer-wins).
//   - Get returns (nil, nil) when the key does not exist; a non-nil error
//     means a storage malfunction (wrapping oauth.ErrStorageFailure), never
//     a mere absence.
//   - Delete is idempotent: deleting an absent key succeeds silently.
type Storage interface {
	SaveSession(ctx context.Context, state string, session *oauth.Session) error
	GetSession(ctx context.Context, state string) (*oauth.Session, error)
	DeleteSession(ctx context.Context, state string) error

	SaveToken(ctx context.Context, key string, token *oauth.Token) error
	GetToken(ctx context.Context, key string) (*oauth.Token, error)
	DeleteToken(ctx context.Context, key string) error
}

// UnlockFunc releases a previously acquired token lock. It must be called on
// every exit path, including error paths.
type UnlockFunc func() error

// TokenLocker is an optional capability of Storage implementations that can
// coordinate mutual exclusion across independent processes. The lock is
// identified by the same key as the token so unrelated credentials never
// contend.
//
// LockToken blocks until the lock is acquired or the bound expires, in which
// case the returned error wraps oauth.ErrLockTimeout. Acquisition must happen
// before any read-modify-write sequence on the key's token, not merely before
// the write.
type TokenLocker interface {
	LockToken(ctx context.Context, key string) (UnlockFunc, error)
}

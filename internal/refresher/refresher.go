package refresher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"keywarden/internal/oauth"
	"keywarden/internal/storage"
	"keywarden/pkg/logging"
	pkgoauth "keywarden/pkg/oauth"
)

// refreshPlan tells the coordinated executor how to decide, after the
// re-read, whether a network call is still needed.
type refreshPlan struct {
	// threshold is the elapsed-lifetime policy for policy-driven refreshes.
	threshold float64

	// forced marks an unconditional refresh. observed is the token the
	// caller saw before entering the coordinated section; a re-read that
	// differs means another holder already refreshed it.
	forced   bool
	observed *pkgoauth.Token
}

// inflightRefresh tracks one in-flight refresh for a key. The done channel
// closes when the last participant (callers and the executor) lets go.
type inflightRefresh struct {
	done chan struct{}
	refs int
}

// TokenRefresher coordinates token refreshes so that at most one refresh per
// credential key is in flight at a time. In-process callers for the same key
// join the running refresh via singleflight; independent processes sharing a
// lock-capable storage serialize on the storage's per-key advisory lock.
// Operations on different keys never contend.
type TokenRefresher struct {
	client *oauth.Client
	store  storage.Storage

	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]*inflightRefresh
}

// New creates a refresher over the given flow client. The refresher shares
// the client's storage handle.
func New(client *oauth.Client) *TokenRefresher {
	return &TokenRefresher{
		client:   client,
		store:    client.Storage(),
		inflight: make(map[string]*inflightRefresh),
	}
}

// GetValidToken returns the stored token for key, refreshing it first if it
// is expired. Equivalent to GetValidTokenWithThreshold(ctx, key, 1.0).
func (r *TokenRefresher) GetValidToken(ctx context.Context, key string) (*pkgoauth.Token, error) {
	return r.GetValidTokenWithThreshold(ctx, key, 1.0)
}

// GetValidTokenWithThreshold returns the stored token for key, refreshing it
// first if the fraction of its lifetime already elapsed is at or above
// threshold (clamped to [0, 1]) or it is past its absolute expiration.
// Tokens without an expiration are returned unchanged, never refreshed by
// policy.
//
// The valid-token path takes no locks; the policy check happens on a plain
// read so hot callers never contend.
func (r *TokenRefresher) GetValidTokenWithThreshold(ctx context.Context, key string, threshold float64) (*pkgoauth.Token, error) {
	if threshold < 0 {
		threshold = 0
	} else if threshold > 1 {
		threshold = 1
	}

	token, err := r.store.GetToken(ctx, key)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, fmt.Errorf("%w: key %q", pkgoauth.ErrTokenNotFound, key)
	}

	if !token.ShouldRefresh(threshold, time.Now()) {
		return token, nil
	}

	logging.Debug("Refresher", "Token for key=%s needs refresh (threshold=%.2f)", key, threshold)
	return r.refresh(ctx, key, refreshPlan{threshold: threshold})
}

// RefreshTokenForKey refreshes the stored token for key unconditionally,
// still coordinated: concurrent callers, in this process or another, share a
// single network call. Used when the caller already knows the token is
// unusable, e.g. after a 401. The token observed here is compared against
// the re-read after acquiring the lock, so a caller that lost the race to
// another holder gets that holder's result instead of a second network call.
func (r *TokenRefresher) RefreshTokenForKey(ctx context.Context, key string) (*pkgoauth.Token, error) {
	observed, err := r.store.GetToken(ctx, key)
	if err != nil {
		return nil, err
	}
	if observed == nil {
		return nil, fmt.Errorf("%w: key %q", pkgoauth.ErrTokenNotFound, key)
	}
	return r.refresh(ctx, key, refreshPlan{forced: true, observed: observed})
}

// WaitForRefresh blocks until any in-flight refresh for key completes. It is
// a no-op when none is in flight, and it does not consume the result. A
// cancelled wait does not affect the refresh itself.
func (r *TokenRefresher) WaitForRefresh(ctx context.Context, key string) error {
	r.mu.Lock()
	fl, ok := r.inflight[key]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-fl.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// refresh runs the coordinated refresh for key. All concurrent callers for
// the same key receive the executing caller's result or error verbatim; a
// failed refresh is never downgraded to a stale-token return.
//
// The inflight marker is registered before dispatch so a WaitForRefresh
// racing a just-started refresh observes it.
func (r *TokenRefresher) refresh(ctx context.Context, key string, plan refreshPlan) (*pkgoauth.Token, error) {
	fl := r.retainInflight(key)
	defer r.releaseInflight(key, fl)

	ch := r.group.DoChan(key, func() (interface{}, error) {
		exec := r.retainInflight(key)
		defer r.releaseInflight(key, exec)
		// The refresh runs to completion even if the initiating caller
		// abandons its wait; waiters and storage still see the outcome.
		return r.doRefresh(context.WithoutCancel(ctx), key, plan)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*pkgoauth.Token), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// doRefresh is the single-executor body. It acquires the cross-process lock
// when storage supports one, re-reads the stored token, and only then decides
// whether a network call is still needed: another holder may have refreshed
// the token while this process waited on the lock. Forced refreshes apply the
// same re-read, against the token the caller observed rather than the policy.
func (r *TokenRefresher) doRefresh(ctx context.Context, key string, plan refreshPlan) (*pkgoauth.Token, error) {
	unlock, err := r.lockKey(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := unlock(); err != nil {
			logging.Warn("Refresher", "Failed to release lock for key=%s: %v", key, err)
		}
	}()

	token, err := r.store.GetToken(ctx, key)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, fmt.Errorf("%w: key %q", pkgoauth.ErrTokenNotFound, key)
	}

	if plan.forced {
		if refreshedSince(plan.observed, token) {
			logging.Debug("Refresher", "Token for key=%s already refreshed by another holder", key)
			return token, nil
		}
	} else if !token.ShouldRefresh(plan.threshold, time.Now()) {
		logging.Debug("Refresher", "Token for key=%s already refreshed by another holder", key)
		return token, nil
	}

	fresh, err := r.client.Refresh(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := r.store.SaveToken(ctx, key, fresh); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	logging.Info("Refresher", "Refreshed token for key=%s (expires_in=%d)", key, fresh.ExpiresIn)
	return fresh, nil
}

// refreshedSince reports whether current is a different issuance than
// observed. A changed access token or a later expiration means another
// holder completed a refresh in the meantime.
func refreshedSince(observed, current *pkgoauth.Token) bool {
	if current.AccessToken != observed.AccessToken {
		return true
	}
	return current.ExpiresAt.After(observed.ExpiresAt)
}

// lockKey acquires the storage-level per-key lock when the storage provides
// one. In-memory storages rely on singleflight alone; there is no second
// process to exclude.
func (r *TokenRefresher) lockKey(ctx context.Context, key string) (storage.UnlockFunc, error) {
	locker, ok := r.store.(storage.TokenLocker)
	if !ok {
		return func() error { return nil }, nil
	}
	return locker.LockToken(ctx, key)
}

// retainInflight registers participation in the in-flight refresh for key,
// creating the marker if none exists.
func (r *TokenRefresher) retainInflight(key string) *inflightRefresh {
	r.mu.Lock()
	defer r.mu.Unlock()
	fl, ok := r.inflight[key]
	if !ok {
		fl = &inflightRefresh{done: make(chan struct{})}
		r.inflight[key] = fl
	}
	fl.refs++
	return fl
}

// releaseInflight drops one participant; the last one out closes the done
// channel and removes the marker.
func (r *TokenRefresher) releaseInflight(key string, fl *inflightRefresh) {
	r.mu.Lock()
	fl.refs--
	last := fl.refs == 0
	if last && r.inflight[key] == fl {
		delete(r.inflight, key)
	}
	r.mu.Unlock()
	if last {
		close(fl.done)
	}
}

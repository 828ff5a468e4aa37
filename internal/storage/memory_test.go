package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keywarden/pkg/oauth"
)

func TestMemoryStorage_SessionRoundTrip(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	session := oauth.NewSession("state-1", "verifier-1")
	require.NoError(t, store.SaveSession(ctx, session.State, session))

	loaded, err := store.GetSession(ctx, "state-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "state-1", loaded.State)
	assert.Equal(t, "verifier-1", loaded.CodeVerifier)

	require.NoError(t, store.DeleteSession(ctx, "state-1"))

	loaded, err = store.GetSession(ctx, "state-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMemoryStorage_TokenRoundTrip(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	token := &oauth.Token{
		AccessToken:  "at",
		RefreshToken: "rt",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	require.NoError(t, store.SaveToken(ctx, "service-a", token))

	loaded, err := store.GetToken(ctx, "service-a")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "at", loaded.AccessToken)
	assert.Equal(t, "rt", loaded.RefreshToken)
}

func TestMemoryStorage_AbsentKeyIsNilNil(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	token, err := store.GetToken(ctx, "never-stored")
	require.NoError(t, err)
	assert.Nil(t, token)

	session, err := store.GetSession(ctx, "never-stored")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestMemoryStorage_DeleteIsIdempotent(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	assert.NoError(t, store.DeleteToken(ctx, "absent"))
	assert.NoError(t, store.DeleteSession(ctx, "absent"))

	require.NoError(t, store.SaveToken(ctx, "k", &oauth.Token{AccessToken: "at"}))
	assert.NoError(t, store.DeleteToken(ctx, "k"))
	assert.NoError(t, store.DeleteToken(ctx, "k"))
}

func TestMemoryStorage_SaveOverwrites(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	require.NoError(t, store.SaveToken(ctx, "k", &oauth.Token{AccessToken: "first"}))
	require.NoError(t, store.SaveToken(ctx, "k", &oauth.Token{AccessToken: "second"}))

	loaded, err := store.GetToken(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "second", loaded.AccessToken)
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	require.NoError(t, store.SaveToken(ctx, "k", &oauth.Token{AccessToken: "original"}))

	loaded, err := store.GetToken(ctx, "k")
	require.NoError(t, err)
	loaded.AccessToken = "mutated"

	again, err := store.GetToken(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "original", again.AccessToken)
}

func TestMemoryStorage_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", n%5)
			_ = store.SaveToken(ctx, key, &oauth.Token{AccessToken: fmt.Sprintf("at-%d", n)})
			_, _ = store.GetToken(ctx, key)
			_ = store.SaveSession(ctx, key, oauth.NewSession(key, "v"))
			_, _ = store.GetSession(ctx, key)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		token, err := store.GetToken(ctx, fmt.Sprintf("key-%d", i))
		require.NoError(t, err)
		assert.NotNil(t, token)
	}
}

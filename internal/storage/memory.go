package storage

import (
	"context"
	"sync"

	"keywarden/pkg/oauth"
)

// MemoryStorage is a process-local Storage backed by two maps. Sessions and
// tokens are guarded by independent read/write locks so session traffic never
// blocks token traffic. Suitable for testing and single-process embedding.
type MemoryStorage struct {
	sessionMu sync.RWMutex
	sessions  map[string]oauth.Session

	tokenMu sync.RWMutex
	tokens  map[string]oauth.Token
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[string]oauth.Session),
		tokens:   make(map[string]oauth.Token),
	}
}

// SaveSession stores a session under the given state, overwriting any
// existing entry.
func (m *MemoryStorage) SaveSession(_ context.Context, state string, session *oauth.Session) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	m.sessions[state] = *session
	return nil
}

// GetSession returns the session for the given state, or nil if absent.
func (m *MemoryStorage) GetSession(_ context.Context, state string) (*oauth.Session, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()
	session, ok := m.sessions[state]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

// DeleteSession removes the session for the given state. Deleting an absent
// state is a no-op.
func (m *MemoryStorage) DeleteSession(_ context.Context, state string) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	delete(m.sessions, state)
	return nil
}

// SaveToken stores a token under the given key, overwriting any existing
// entry.
func (m *MemoryStorage) SaveToken(_ context.Context, key string, token *oauth.Token) error {
	m.tokenMu.Lock()
	defer m.tokenMu.Unlock()
	m.tokens[key] = *token
	return nil
}

// GetToken returns the token for the given key, or nil if absent.
func (m *MemoryStorage) GetToken(_ context.Context, key string) (*oauth.Token, error) {
	m.tokenMu.RLock()
	defer m.tokenMu.RUnlock()
	token, ok := m.tokens[key]
	if !ok {
		return nil, nil
	}
	return &token, nil
}

// DeleteToken removes the token for the given key. Deleting an absent key is
// a no-op.
func (m *MemoryStorage) DeleteToken(_ context.Context, key string) error {
	m.tokenMu.Lock()
	defer m.tokenMu.Unlock()
	delete(m.tokens, key)
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Empty(t, cfg.OAuth.ClientID)
}

func TestLoad_ParsesFullConfig(t *testing.T) {
	dir := t.TempDir()
	content := `
oauth:
  clientID: my-client
  authorizationEndpoint: https://auth.example.com/authorize
  tokenEndpoint: https://auth.example.com/token
  redirectURI: http://localhost:9000/callback
  scope: openid profile
storage:
  backend: redis
  redis:
    addr: localhost:6379
    db: 2
    prefix: myapp
callbackPort: 9000
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "my-client", cfg.OAuth.ClientID)
	assert.Equal(t, "https://auth.example.com/token", cfg.OAuth.TokenEndpoint)
	assert.Equal(t, "openid profile", cfg.OAuth.Scope)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "localhost:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, 2, cfg.Storage.Redis.DB)
	assert.Equal(t, "myapp", cfg.Storage.Redis.Prefix)
	assert.Equal(t, 9000, cfg.CallbackPort)
}

func TestLoad_EmptyBackendDefaultsToFile(t *testing.T) {
	dir := t.TempDir()
	content := `
oauth:
  clientID: my-client
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("oauth: [not: valid"), 0600))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error parsing config")
}

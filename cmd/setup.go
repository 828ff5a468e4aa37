package cmd

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"keywarden/internal/config"
	"keywarden/internal/oauth"
	"keywarden/internal/storage"
)

// loadConfig loads the configuration from the --config directory or the
// default location.
func loadConfig() (config.Config, error) {
	path := flagConfigPath
	if path == "" {
		var err error
		path, err = config.DefaultConfigPath()
		if err != nil {
			return config.Config{}, err
		}
	}
	return config.Load(path)
}

// openStorage builds the storage backend selected by the configuration.
func openStorage(cfg config.Config) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return storage.NewMemoryStorage(), nil
	case config.BackendFile, "":
		return storage.NewFileStorage(storage.FileStorageConfig{
			Dir: cfg.Storage.Dir,
		})
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		return storage.NewRedisStorage(client, storage.RedisStorageConfig{
			Prefix: cfg.Storage.Redis.Prefix,
		}), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// newClient builds the flow client from the configuration.
func newClient(cfg config.Config) (*oauth.Client, error) {
	store, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}
	return oauth.NewClient(cfg.OAuth, store), nil
}

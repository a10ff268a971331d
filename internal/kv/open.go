package kv

import (
	"fmt"

	"codeberg.org/pdgen/server/internal/config"
	"codeberg.org/pdgen/server/internal/logger"
)

// opens the store selected by configuration. selection happens once at startup.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.StoreKind() {
	case config.StoreRedis:
		store, err := NewRedisStoreFromURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis store: %w", err)
		}

		logger.Info("connected to redis")
		return store, nil

	case config.StoreREST:
		logger.Info("using REST key-value store", "url", cfg.KVRestURL)
		return NewRESTStore(cfg.KVRestURL, cfg.KVRestToken), nil

	default:
		logger.Warn("no REDIS_URL or KV_REST_API_URL configured, using in-memory store; " +
			"counters and credits will not survive a restart")
		return NewMemoryStore(defaultSweepInterval), nil
	}
}

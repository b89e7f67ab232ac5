package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/mesh-reader/internal/config"
	redisstorage "github.com/taoyao-code/mesh-reader/internal/storage/redis"
)

// NewRedisClient 创建Redis客户端；未启用时返回 nil, nil
func NewRedisClient(cfg cfgpkg.RedisConfig, logger *zap.Logger) (*redisstorage.Client, error) {
	if !cfg.Enable {
		logger.Info("redis is disabled, skipping initialization")
		return nil, nil
	}

	client, err := redisstorage.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("redis client initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize))

	return client, nil
}

// NewRecordCache 基于已连接的客户端创建记录缓存；client 为 nil 时返回 nil
func NewRecordCache(client *redisstorage.Client) *redisstorage.RecordCache {
	if client == nil {
		return nil
	}
	return client.RecordCache()
}

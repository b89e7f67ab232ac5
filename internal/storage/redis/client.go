package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	cfgpkg "github.com/taoyao-code/mesh-reader/internal/config"
)

// Client Redis客户端封装，同时记住记录缓存的保留条数
type Client struct {
	*redis.Client
	recentLimit int
}

// NewClient 创建Redis客户端并做一次连通性检查
func NewClient(cfg cfgpkg.RedisConfig) (*Client, error) {
	if !cfg.Enable {
		return nil, fmt.Errorf("redis is not enabled")
	}

	rdb := redis.NewClient(options(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	return &Client{Client: rdb, recentLimit: cfg.RecentLimit}, nil
}

// options 零值超时回落到 go-redis 的默认值，连接池至少保留 1 条连接
func options(cfg cfgpkg.RedisConfig) *redis.Options {
	opt := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if opt.PoolSize > 0 && opt.MinIdleConns > opt.PoolSize {
		opt.MinIdleConns = opt.PoolSize
	}
	return opt
}

// RecordCache 基于本连接创建记录缓存
func (c *Client) RecordCache() *RecordCache {
	return NewRecordCache(c.Client, c.recentLimit)
}

// Close 关闭Redis连接
func (c *Client) Close() error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

// HealthCheck 健康检查
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// PoolUtilization 连接池统计与占用率（已借出连接 / 总连接）
func (c *Client) PoolUtilization() (*redis.PoolStats, float64) {
	stats := c.PoolStats()
	if stats.TotalConns == 0 {
		return stats, 0
	}
	return stats, float64(stats.TotalConns-stats.IdleConns) / float64(stats.TotalConns)
}

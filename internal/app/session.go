package app

import (
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/mesh-reader/internal/session"
	redisstorage "github.com/taoyao-code/mesh-reader/internal/storage/redis"
)

// NewTrackerAndPolicy 构造节点联络记录与加权策略
// 如果Redis客户端可用，则使用Redis联络记录，否则使用内存实现
func NewTrackerAndPolicy(cycleDelay time.Duration, redisClient *redisstorage.Client, logger *zap.Logger) (session.ContactTracker, session.WeightedPolicy) {
	policy := session.DefaultWeightedPolicy(cycleDelay)

	if redisClient != nil {
		logger.Info("using redis contact tracker", zap.Duration("timeout", policy.ContactTimeout))
		return session.NewRedisManager(redisClient.Client, policy.ContactTimeout), policy
	}
	logger.Info("using memory contact tracker", zap.Duration("timeout", policy.ContactTimeout))
	return session.New(policy.ContactTimeout), policy
}

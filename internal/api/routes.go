package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/mesh-reader/internal/api/middleware"
)

// RegisterReadOnlyRoutes 注册只读查询路由
func RegisterReadOnlyRoutes(r gin.IRouter, handler *ReadOnlyHandler, authCfg middleware.AuthConfig, logger *zap.Logger) {
	if r == nil || handler == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	api := r.Group("/api/v1")
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled")
	}

	api.GET("/records", handler.ListRecords)
	api.GET("/records/latest", handler.LatestRecords)
	api.GET("/cycles", handler.ListCycles)
	api.GET("/cycles/last", handler.LastCycle)
	api.GET("/nodes", handler.ListNodes)

	logger.Info("readonly routes registered", zap.Int("endpoints", 5))
}

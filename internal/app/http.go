package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/mesh-reader/internal/api"
	"github.com/taoyao-code/mesh-reader/internal/api/middleware"
	cfgpkg "github.com/taoyao-code/mesh-reader/internal/config"
	"github.com/taoyao-code/mesh-reader/internal/health"
	"github.com/taoyao-code/mesh-reader/internal/httpserver"
)

// NewHTTPServer 根据配置创建 HTTP 服务器并挂载健康检查与只读 API
func NewHTTPServer(
	cfg *cfgpkg.Config,
	metricsHandler http.Handler,
	readyFn func() bool,
	healthAgg *health.Aggregator,
	handler *api.ReadOnlyHandler,
	log *zap.Logger,
) *httpserver.Server {
	if !cfg.Metrics.Enable {
		metricsHandler = nil
	}
	return httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler, readyFn, log, func(r *gin.Engine) {
		health.RegisterHTTPRoutes(r, healthAgg)
		if cfg.API.Enable {
			authCfg := middleware.AuthConfig{
				APIKeys: cfg.API.Auth.APIKeys,
				Enabled: cfg.API.Auth.Enable,
			}
			api.RegisterReadOnlyRoutes(r, handler, authCfg, log)
		}
	})
}

package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/mesh-reader/internal/config"
	"github.com/taoyao-code/mesh-reader/internal/migrate"
	pgstorage "github.com/taoyao-code/mesh-reader/internal/storage/pg"
)

// ConnectDBAndMigrate 建立数据库连接并按需执行内置迁移
func ConnectDBAndMigrate(ctx context.Context, cfg cfgpkg.DatabaseConfig, log *zap.Logger) (*pgxpool.Pool, error) {
	dbpool, err := pgstorage.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error("db connect error", zap.Error(err))
		return nil, err
	}
	if cfg.AutoMigrate {
		n, err := (migrate.Runner{FS: migrate.Embedded()}).Up(ctx, dbpool)
		if err != nil {
			log.Error("db migrate error", zap.Error(err))
			dbpool.Close()
			return nil, err
		}
		log.Info("db migrations applied", zap.Int("count", n))
	}
	return dbpool, nil
}

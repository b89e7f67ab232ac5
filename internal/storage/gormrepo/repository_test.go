package gormrepo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"未指定", 0, DefaultLimit},
		{"负数", -5, DefaultLimit},
		{"正常", 20, 20},
		{"超过上限", 5000, MaxLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clamp(tt.in))
		})
	}
}

func TestZapLogger_Trace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &zapLogger{log: zap.New(core), level: gormlogger.Warn, slow: 100 * time.Millisecond}
	sql := func() (string, int64) { return "SELECT 1", 1 }
	ctx := context.Background()

	l.Trace(ctx, time.Now(), sql, nil)
	assert.Equal(t, 0, logs.Len(), "Warn 级别不记录普通查询")

	l.Trace(ctx, time.Now(), sql, gorm.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len(), "未找到记录不算错误")

	l.Trace(ctx, time.Now(), sql, errors.New("relation does not exist"))
	assert.Equal(t, 1, logs.FilterMessage("gorm query failed").Len())

	l.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	assert.Equal(t, 1, logs.FilterMessage("gorm slow query").Len())

	silent := l.LogMode(gormlogger.Silent)
	silent.Trace(ctx, time.Now(), sql, errors.New("boom"))
	assert.Equal(t, 2, logs.Len())
}

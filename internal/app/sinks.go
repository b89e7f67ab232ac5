package app

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/taoyao-code/mesh-reader/internal/capture"
	cfgpkg "github.com/taoyao-code/mesh-reader/internal/config"
	"github.com/taoyao-code/mesh-reader/internal/sink"
)

// NewSink 按配置组装下游；extra 为已初始化的存储下游（PostgreSQL、Redis）
func NewSink(cfg cfgpkg.SinkConfig, log *zap.Logger, extra ...sink.Named) (sink.Multi, error) {
	var out sink.Multi
	if cfg.JSON.Enable {
		if err := os.MkdirAll(cfg.JSON.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sink dir: %w", err)
		}
		out = append(out, sink.Named{Name: "json", Sink: sink.NewFileSink(cfg.JSON.Dir)})
	}
	if cfg.Log.Enable {
		out = append(out, sink.Named{Name: "log", Sink: sink.NewLogSink(log.Named("records"))})
	}
	for _, e := range extra {
		if e.Sink != nil {
			out = append(out, e)
		}
	}

	names := make([]string, 0, len(out))
	for _, s := range out {
		names = append(names, s.Name)
	}
	log.Info("sinks configured", zap.Strings("sinks", names))
	return out, nil
}

// NewRecorder 打开抓包文件；未启用时返回空实现
func NewRecorder(cfg cfgpkg.CaptureConfig, log *zap.Logger) (capture.Recorder, func() error, error) {
	if !cfg.Enable {
		return capture.Nop{}, func() error { return nil }, nil
	}
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create capture dir: %w", err)
		}
	}
	rec, err := capture.NewFileRecorder(cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	log.Info("frame capture enabled", zap.String("path", cfg.Path))
	return rec, rec.Close, nil
}

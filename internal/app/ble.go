package app

import (
	"fmt"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/mesh-reader/internal/config"
	"github.com/taoyao-code/mesh-reader/internal/link/gattlink"
	"github.com/taoyao-code/mesh-reader/internal/nodes"
	"github.com/taoyao-code/mesh-reader/internal/poller"
)

// OpenLink 打开本机蓝牙适配器
func OpenLink(cfg cfgpkg.BLEConfig, log *zap.Logger) (*gattlink.Link, error) {
	return gattlink.Open(gattlink.Config{
		DeviceID:    cfg.DeviceID,
		CheckLE:     true,
		InitTimeout: cfg.InitTimeout,
	}, log.Named("ble"))
}

// NewDirectory 加载节点目录：目录文件中的条目在前，ble.nodes 中未登记的地址追加在后
func NewDirectory(cfg cfgpkg.BLEConfig, log *zap.Logger) (*nodes.Directory, error) {
	dir := nodes.NewDirectory()
	if cfg.NodesFile != "" {
		d, err := nodes.LoadDirectory(cfg.NodesFile)
		if err != nil {
			return nil, err
		}
		dir = d
		log.Info("node directory loaded", zap.String("path", cfg.NodesFile), zap.Int("nodes", len(d.Nodes)))
	}
	dir.Merge(cfg.Nodes...)
	if len(dir.Nodes) == 0 {
		return nil, fmt.Errorf("no mesh node configured: set ble.nodes or ble.nodesFile")
	}
	return dir, nil
}

// NewPollerConfig 由配置构造轮询参数，零值字段保留默认
func NewPollerConfig(cfg *cfgpkg.Config) (poller.Config, error) {
	codes, err := cfg.Protocol.Codes()
	if err != nil {
		return poller.Config{}, err
	}

	pc := poller.DefaultConfig()
	pc.Session.Codes = codes
	if cfg.BLE.ServiceUUID != "" {
		pc.Service = cfg.BLE.ServiceUUID
	}
	if cfg.BLE.CharacteristicUUID != "" {
		pc.Session.Characteristic = cfg.BLE.CharacteristicUUID
	}
	if cfg.BLE.ScanWindow > 0 {
		pc.ScanWindow = cfg.BLE.ScanWindow
	}
	if cfg.BLE.StabilizeDelay > 0 {
		pc.StabilizeDelay = cfg.BLE.StabilizeDelay
	}
	if cfg.Protocol.OperationTimeout > 0 {
		pc.Session.OperationTimeout = cfg.Protocol.OperationTimeout
	}
	if cfg.Protocol.FragmentIdle > 0 {
		pc.Session.FragmentIdle = cfg.Protocol.FragmentIdle
	}
	if cfg.Poll.Pacing > 0 {
		pc.Pacing = cfg.Poll.Pacing
	}
	if cfg.Poll.CycleDelay > 0 {
		pc.CycleDelay = cfg.Poll.CycleDelay
	}
	return pc, nil
}

package health

import "sync/atomic"

// Readiness 就绪状态聚合（蓝牙适配器、已启用的存储）
type Readiness struct {
	adapterReady atomic.Bool
	storeReady   atomic.Bool
}

// New 创建就绪状态；存储默认就绪，未启用存储时无需设置
func New() *Readiness {
	r := &Readiness{}
	r.storeReady.Store(true)
	return r
}

func (r *Readiness) SetAdapterReady(v bool) { r.adapterReady.Store(v) }
func (r *Readiness) SetStoreReady(v bool)   { r.storeReady.Store(v) }

// Ready 总体就绪：各子系统均为 true
func (r *Readiness) Ready() bool {
	return r.adapterReady.Load() && r.storeReady.Load()
}

// Package link 定义节点协议所依赖的 BLE 链路层能力接口。
// 扫描、连接、GATT 发现、写入、通知订阅均由外部协议栈实现，
// 核心逻辑只依赖这里的六个操作，并把它们的失败当作不透明错误向上传递。
package link

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAdapterUnavailable = errors.New("link: no usable adapter")
	ErrConnectFailed      = errors.New("link: connect failed")
	ErrCapabilityMissing  = errors.New("link: required characteristic missing")
	ErrNotConnected       = errors.New("link: not connected")
)

// Endpoint 扫描发现的远端设备
type Endpoint interface {
	Address() string
	Name() string
}

// Conn 已建立的链路连接
type Conn interface {
	Endpoint() Endpoint
}

// Link 链路层能力接口
type Link interface {
	// Scan 在 window 内扫描广播了 service 的设备，按发现顺序返回
	Scan(ctx context.Context, service string, window time.Duration) ([]Endpoint, error)
	Connect(ctx context.Context, ep Endpoint) (Conn, error)
	// DiscoverCapabilities 发现服务/特征，之后才能 Write/Subscribe
	DiscoverCapabilities(ctx context.Context, c Conn) error
	// Write 写特征值；ack=false 为无响应写
	Write(ctx context.Context, c Conn, characteristic string, p []byte, ack bool) error
	// Subscribe 订阅特征通知，连接断开时通道关闭
	Subscribe(ctx context.Context, c Conn, characteristic string) (<-chan []byte, error)
	Disconnect(ctx context.Context, c Conn) error
}

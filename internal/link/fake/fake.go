// Package fake 提供内存版链路层，用于在没有蓝牙硬件的情况下驱动协议与轮询逻辑。
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taoyao-code/mesh-reader/internal/link"
)

// Node 模拟的远端节点
type Node struct {
	Addr  string
	Label string
	// Handler 处理一条写入的命令，返回需要以通知下发的分片；nil 表示不响应
	Handler func(cmd []byte) [][]byte
	// FragmentDelay 分片之间的下发间隔，0 表示写入时同步入队
	FragmentDelay time.Duration
}

func (n *Node) Address() string { return n.Addr }
func (n *Node) Name() string    { return n.Label }

type conn struct {
	node   *Node
	mu     sync.Mutex
	notify chan []byte
	closed bool
	ready  bool
}

func (c *conn) Endpoint() link.Endpoint { return c.node }

func (c *conn) push(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.notify <- p:
	default: // 缓冲满时丢弃，与真实协议栈一致
	}
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.notify)
	}
}

// Link 内存链路实现，可注入各阶段错误并统计调用次数
type Link struct {
	Nodes []*Node

	ScanErr       error
	ConnectErr    error
	DiscoverErr   error
	SubscribeErr  error
	DisconnectErr error
	// WriteErr 返回非 nil 时本次写入失败
	WriteErr func(cmd []byte) error

	mu          sync.Mutex
	scans       int
	connects    int
	disconnects int
	writes      [][]byte
	active      *conn
}

var _ link.Link = (*Link)(nil)

// New 创建广播给定节点的内存链路
func New(nodes ...*Node) *Link {
	return &Link{Nodes: nodes}
}

func (l *Link) Scan(ctx context.Context, service string, window time.Duration) ([]link.Endpoint, error) {
	l.mu.Lock()
	l.scans++
	l.mu.Unlock()
	if l.ScanErr != nil {
		return nil, l.ScanErr
	}
	eps := make([]link.Endpoint, 0, len(l.Nodes))
	for _, n := range l.Nodes {
		eps = append(eps, n)
	}
	return eps, nil
}

func (l *Link) Connect(ctx context.Context, ep link.Endpoint) (link.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connects++
	if l.ConnectErr != nil {
		return nil, fmt.Errorf("%w: %v", link.ErrConnectFailed, l.ConnectErr)
	}
	n, ok := ep.(*Node)
	if !ok {
		return nil, fmt.Errorf("%w: unknown endpoint %s", link.ErrConnectFailed, ep.Address())
	}
	c := &conn{node: n, notify: make(chan []byte, 256)}
	l.active = c
	return c, nil
}

func (l *Link) DiscoverCapabilities(ctx context.Context, c link.Conn) error {
	if l.DiscoverErr != nil {
		return l.DiscoverErr
	}
	fc, err := l.conn(c)
	if err != nil {
		return err
	}
	fc.mu.Lock()
	fc.ready = true
	fc.mu.Unlock()
	return nil
}

func (l *Link) Write(ctx context.Context, c link.Conn, characteristic string, p []byte, ack bool) error {
	fc, err := l.conn(c)
	if err != nil {
		return err
	}
	cmd := append([]byte(nil), p...)
	l.mu.Lock()
	l.writes = append(l.writes, cmd)
	l.mu.Unlock()
	if l.WriteErr != nil {
		if err := l.WriteErr(cmd); err != nil {
			return err
		}
	}
	if fc.node.Handler == nil {
		return nil
	}
	frags := fc.node.Handler(cmd)
	if fc.node.FragmentDelay <= 0 {
		for _, f := range frags {
			fc.push(f)
		}
		return nil
	}
	go func() {
		for _, f := range frags {
			time.Sleep(fc.node.FragmentDelay)
			fc.push(f)
		}
	}()
	return nil
}

func (l *Link) Subscribe(ctx context.Context, c link.Conn, characteristic string) (<-chan []byte, error) {
	if l.SubscribeErr != nil {
		return nil, l.SubscribeErr
	}
	fc, err := l.conn(c)
	if err != nil {
		return nil, err
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if !fc.ready {
		return nil, fmt.Errorf("%w: %s (capabilities not discovered)", link.ErrCapabilityMissing, characteristic)
	}
	return fc.notify, nil
}

func (l *Link) Disconnect(ctx context.Context, c link.Conn) error {
	l.mu.Lock()
	l.disconnects++
	l.mu.Unlock()
	fc, err := l.conn(c)
	if err != nil {
		return err
	}
	fc.close()
	l.mu.Lock()
	if l.active == fc {
		l.active = nil
	}
	l.mu.Unlock()
	return l.DisconnectErr
}

// Notify 主动向当前连接推送一个分片（模拟节点的迟到/多余通知）
func (l *Link) Notify(p []byte) {
	l.mu.Lock()
	c := l.active
	l.mu.Unlock()
	if c != nil {
		c.push(p)
	}
}

func (l *Link) conn(c link.Conn) (*conn, error) {
	fc, ok := c.(*conn)
	if !ok || fc == nil {
		return nil, link.ErrNotConnected
	}
	return fc, nil
}

// Scans 扫描次数
func (l *Link) Scans() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scans
}

// Connects 连接次数
func (l *Link) Connects() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connects
}

// Disconnects 断开次数
func (l *Link) Disconnects() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.disconnects
}

// Writes 返回所有写入过的命令
func (l *Link) Writes() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.writes...)
}

// Split 按 mtu 切分一帧
func Split(frame []byte, mtu int) [][]byte {
	if mtu <= 0 {
		mtu = len(frame)
	}
	var out [][]byte
	for len(frame) > 0 {
		n := mtu
		if n > len(frame) {
			n = len(frame)
		}
		out = append(out, frame[:n])
		frame = frame[n:]
	}
	return out
}


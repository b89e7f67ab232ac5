// Package gattlink 基于 paypal/gatt（Linux HCI）实现 link.Link。
// gatt 以回调驱动，这里用按外设地址索引的通道把回调转换为阻塞调用。
package gattlink

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/paypal/gatt"
	"go.uber.org/zap"

	"github.com/taoyao-code/mesh-reader/internal/link"
)

// Config 适配器配置
type Config struct {
	// DeviceID HCI 设备号，-1 表示自动选择
	DeviceID int
	// CheckLE 打开设备时校验 LE 能力位
	CheckLE bool
	// InitTimeout 等待适配器上电的时间
	InitTimeout time.Duration
	// NotifyBuffer 每个订阅的通知缓冲
	NotifyBuffer int
}

type connectResult struct {
	p   gatt.Peripheral
	err error
}

// Link gatt 链路适配器
type Link struct {
	dev gatt.Device
	cfg Config
	log *zap.Logger

	mu         sync.Mutex
	scanning   bool
	scanFilter string
	found      []link.Endpoint
	seen       map[string]bool
	connecting map[string]chan connectResult
	closing    map[string]chan error
	conns      map[string]*conn
}

var _ link.Link = (*Link)(nil)

// Open 打开 HCI 设备并等待上电；无可用适配器时返回 link.ErrAdapterUnavailable
func Open(cfg Config, log *zap.Logger) (*Link, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = 10 * time.Second
	}
	if cfg.NotifyBuffer <= 0 {
		cfg.NotifyBuffer = 64
	}

	dev, err := gatt.NewDevice(gatt.LnxDeviceID(cfg.DeviceID, cfg.CheckLE))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", link.ErrAdapterUnavailable, err)
	}

	l := &Link{
		dev:        dev,
		cfg:        cfg,
		log:        log,
		seen:       make(map[string]bool),
		connecting: make(map[string]chan connectResult),
		closing:    make(map[string]chan error),
		conns:      make(map[string]*conn),
	}
	dev.Handle(
		gatt.PeripheralDiscovered(l.onDiscovered),
		gatt.PeripheralConnected(l.onConnected),
		gatt.PeripheralDisconnected(l.onDisconnected),
	)

	states := make(chan gatt.State, 8)
	if err := dev.Init(func(_ gatt.Device, s gatt.State) {
		select {
		case states <- s:
		default:
		}
	}); err != nil {
		return nil, fmt.Errorf("%w: init: %v", link.ErrAdapterUnavailable, err)
	}

	timeout := time.NewTimer(cfg.InitTimeout)
	defer timeout.Stop()
	for {
		select {
		case s := <-states:
			log.Info("ble adapter state", zap.String("state", s.String()))
			if s == gatt.StatePoweredOn {
				return l, nil
			}
		case <-timeout.C:
			return nil, fmt.Errorf("%w: adapter not powered on within %s", link.ErrAdapterUnavailable, cfg.InitTimeout)
		}
	}
}

// Scan 在 window 内收集广播了 service 的外设
func (l *Link) Scan(ctx context.Context, service string, window time.Duration) ([]link.Endpoint, error) {
	l.mu.Lock()
	l.scanning = true
	l.scanFilter = canonicalUUID(service)
	l.found = nil
	l.seen = make(map[string]bool)
	l.mu.Unlock()

	// 过滤在回调中按规范化 UUID 完成，避免 16/128 位表示不一致
	l.dev.Scan(nil, false)
	t := time.NewTimer(window)
	select {
	case <-t.C:
	case <-ctx.Done():
		t.Stop()
	}
	l.dev.StopScanning()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.scanning = false
	return append([]link.Endpoint(nil), l.found...), ctx.Err()
}

func (l *Link) onDiscovered(p gatt.Peripheral, a *gatt.Advertisement, rssi int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.scanning || l.seen[p.ID()] {
		return
	}
	if l.scanFilter != "" && !advertises(a, l.scanFilter) {
		return
	}
	l.seen[p.ID()] = true
	name := p.Name()
	if a != nil && a.LocalName != "" {
		name = a.LocalName
	}
	l.found = append(l.found, &endpoint{p: p, addr: p.ID(), name: name, rssi: rssi})
}

func (l *Link) Connect(ctx context.Context, ep link.Endpoint) (link.Conn, error) {
	e, ok := ep.(*endpoint)
	if !ok {
		return nil, fmt.Errorf("%w: endpoint %s not from this adapter", link.ErrConnectFailed, ep.Address())
	}
	id := e.addr
	ch := make(chan connectResult, 1)
	l.mu.Lock()
	l.connecting[id] = ch
	l.mu.Unlock()

	l.dev.Connect(e.p)
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("%w: %s: %v", link.ErrConnectFailed, id, res.err)
		}
		c := &conn{ep: e, p: res.p, chars: make(map[string]*gatt.Characteristic), notify: make(map[string]chan []byte)}
		l.mu.Lock()
		l.conns[id] = c
		l.mu.Unlock()
		return c, nil
	case <-ctx.Done():
		l.mu.Lock()
		delete(l.connecting, id)
		l.mu.Unlock()
		l.dev.CancelConnection(e.p)
		return nil, fmt.Errorf("%w: %s: %v", link.ErrConnectFailed, id, ctx.Err())
	}
}

func (l *Link) onConnected(p gatt.Peripheral, err error) {
	l.mu.Lock()
	ch := l.connecting[p.ID()]
	delete(l.connecting, p.ID())
	l.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- connectResult{p: p, err: err}:
	default:
	}
}

// DiscoverCapabilities 发现全部服务与特征；可通知的特征同时发现描述符（CCCD）
func (l *Link) DiscoverCapabilities(ctx context.Context, c link.Conn) error {
	gc, err := l.conn(c)
	if err != nil {
		return err
	}
	return call(ctx, func() error {
		ss, err := gc.p.DiscoverServices(nil)
		if err != nil {
			return fmt.Errorf("discover services: %w", err)
		}
		for _, s := range ss {
			cs, err := gc.p.DiscoverCharacteristics(nil, s)
			if err != nil {
				return fmt.Errorf("discover characteristics of %s: %w", s.UUID().String(), err)
			}
			for _, ch := range cs {
				if ch.Properties()&(gatt.CharNotify|gatt.CharIndicate) != 0 {
					if _, err := gc.p.DiscoverDescriptors(nil, ch); err != nil {
						return fmt.Errorf("discover descriptors of %s: %w", ch.UUID().String(), err)
					}
				}
				gc.mu.Lock()
				gc.chars[canonicalUUID(ch.UUID().String())] = ch
				gc.mu.Unlock()
			}
		}
		l.log.Debug("ble capabilities discovered", zap.String("addr", gc.ep.Address()), zap.Int("services", len(ss)))
		return nil
	})
}

func (l *Link) Write(ctx context.Context, c link.Conn, characteristic string, p []byte, ack bool) error {
	gc, err := l.conn(c)
	if err != nil {
		return err
	}
	ch, err := gc.characteristic(characteristic)
	if err != nil {
		return err
	}
	return call(ctx, func() error { return gc.p.WriteCharacteristic(ch, p, !ack) })
}

func (l *Link) Subscribe(ctx context.Context, c link.Conn, characteristic string) (<-chan []byte, error) {
	gc, err := l.conn(c)
	if err != nil {
		return nil, err
	}
	ch, err := gc.characteristic(characteristic)
	if err != nil {
		return nil, err
	}
	key := canonicalUUID(characteristic)
	out := gc.subscribe(key, l.cfg.NotifyBuffer)
	err = call(ctx, func() error {
		return gc.p.SetNotifyValue(ch, func(_ *gatt.Characteristic, b []byte, err error) {
			if err != nil {
				l.log.Warn("ble notification error", zap.String("addr", gc.ep.Address()), zap.Error(err))
				return
			}
			if !gc.push(key, append([]byte(nil), b...)) {
				l.log.Warn("ble notification dropped", zap.String("addr", gc.ep.Address()), zap.Int("bytes", len(b)))
			}
		})
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", characteristic, err)
	}
	return out, nil
}

func (l *Link) Disconnect(ctx context.Context, c link.Conn) error {
	gc, err := l.conn(c)
	if err != nil {
		return err
	}
	id := gc.ep.addr
	ch := make(chan error, 1)
	l.mu.Lock()
	l.closing[id] = ch
	l.mu.Unlock()

	l.dev.CancelConnection(gc.p)
	defer gc.close()
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		l.mu.Lock()
		delete(l.closing, id)
		delete(l.conns, id)
		l.mu.Unlock()
		return fmt.Errorf("disconnect %s: %w", id, ctx.Err())
	}
}

func (l *Link) onDisconnected(p gatt.Peripheral, err error) {
	id := p.ID()
	l.mu.Lock()
	ch := l.closing[id]
	delete(l.closing, id)
	c := l.conns[id]
	delete(l.conns, id)
	l.mu.Unlock()

	if c != nil {
		c.close()
	}
	if ch == nil {
		l.log.Info("ble peripheral disconnected", zap.String("addr", id), zap.Error(err))
		return
	}
	select {
	case ch <- err:
	default:
	}
}

// Close 停止扫描并断开仍在连接中的外设，进程退出时调用
func (l *Link) Close() error {
	l.mu.Lock()
	scanning := l.scanning
	open := make([]*conn, 0, len(l.conns))
	for _, c := range l.conns {
		open = append(open, c)
	}
	l.mu.Unlock()

	if scanning {
		l.dev.StopScanning()
	}
	for _, c := range open {
		l.dev.CancelConnection(c.p)
		c.close()
	}
	return nil
}

func (l *Link) conn(c link.Conn) (*conn, error) {
	gc, ok := c.(*conn)
	if !ok || gc == nil {
		return nil, link.ErrNotConnected
	}
	return gc, nil
}

// call 在 ctx 约束下执行阻塞的 gatt 调用；超时后调用本身仍在后台完成
func call(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// canonicalUUID 统一为 32 位小写十六进制；16/32 位短 UUID 按蓝牙基准 UUID 展开
func canonicalUUID(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, "-", ""))
	const base = "00001000800000805f9b34fb"
	switch len(s) {
	case 4:
		return "0000" + s + base
	case 8:
		return s + base
	default:
		return s
	}
}

func advertises(a *gatt.Advertisement, service string) bool {
	if a == nil {
		return false
	}
	for _, u := range a.Services {
		if canonicalUUID(u.String()) == service {
			return true
		}
	}
	return false
}

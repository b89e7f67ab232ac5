package gattlink

import (
	"fmt"
	"sync"

	"github.com/paypal/gatt"

	"github.com/taoyao-code/mesh-reader/internal/link"
)

type endpoint struct {
	p    gatt.Peripheral
	addr string
	name string
	rssi int
}

func (e *endpoint) Address() string { return e.addr }
func (e *endpoint) Name() string    { return e.name }

// RSSI 扫描时的信号强度
func (e *endpoint) RSSI() int { return e.rssi }

// conn 一次 GATT 连接；p 为连接回调给出的外设对象，与扫描得到的不是同一实例
type conn struct {
	ep *endpoint
	p  gatt.Peripheral

	mu     sync.Mutex
	chars  map[string]*gatt.Characteristic
	notify map[string]chan []byte
	closed bool
}

func (c *conn) Endpoint() link.Endpoint { return c.ep }

func (c *conn) characteristic(uuid string) (*gatt.Characteristic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.chars[canonicalUUID(uuid)]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", link.ErrCapabilityMissing, uuid, c.ep.Address())
	}
	return ch, nil
}

func (c *conn) subscribe(key string, buffer int) chan []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.notify[key]; ok {
		return ch
	}
	ch := make(chan []byte, buffer)
	if c.closed {
		close(ch)
	}
	c.notify[key] = ch
	return ch
}

func (c *conn) push(key string, p []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.notify[key]
	if !ok || c.closed {
		return false
	}
	select {
	case ch <- p:
		return true
	default:
		return false
	}
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, ch := range c.notify {
		close(ch)
	}
}

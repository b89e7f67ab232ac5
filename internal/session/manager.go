package session

import (
	"sync"
	"time"
)

// Manager 内存版联络记录：记录节点最近成功会话时间，判断是否在线
type Manager struct {
	mu       sync.RWMutex
	contacts map[string]*contact // addr -> contact
	timeout  time.Duration
}

var _ ContactTracker = (*Manager)(nil)

func New(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Manager{contacts: make(map[string]*contact), timeout: timeout}
}

func (m *Manager) get(addr string) *contact {
	c, ok := m.contacts[addr]
	if !ok {
		c = &contact{Addr: addr}
		m.contacts[addr] = c
	}
	return c
}

// OnContact 更新节点最近成功会话时间并清零失败计数
func (m *Manager) OnContact(addr string, t time.Time) {
	m.mu.Lock()
	c := m.get(addr)
	c.LastSeen = t
	c.Failures = 0
	m.mu.Unlock()
}

// OnFailure 记录一次失败
func (m *Manager) OnFailure(addr string, t time.Time) {
	m.mu.Lock()
	c := m.get(addr)
	c.LastFailure = t
	c.Failures++
	m.mu.Unlock()
}

func (m *Manager) LastContact(addr string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contacts[addr]
	if !ok || c.LastSeen.IsZero() {
		return time.Time{}, false
	}
	return c.LastSeen, true
}

// IsOnline 判断节点是否在线
func (m *Manager) IsOnline(addr string, now time.Time) bool {
	m.mu.RLock()
	c, ok := m.contacts[addr]
	m.mu.RUnlock()
	if !ok || c.LastSeen.IsZero() {
		return false
	}
	return now.Sub(c.LastSeen) <= m.timeout
}

// IsOnlineWeighted 按加权策略判断节点是否在线
func (m *Manager) IsOnlineWeighted(addr string, now time.Time, p WeightedPolicy) bool {
	if !p.Enabled {
		return m.IsOnline(addr, now)
	}
	m.mu.RLock()
	c, ok := m.contacts[addr]
	var snapshot contact
	if ok {
		snapshot = *c
	}
	m.mu.RUnlock()
	if !ok {
		return false
	}
	return snapshot.score(now, p) >= p.Threshold
}

// OnlineCount 返回当前在线节点数量
func (m *Manager) OnlineCount(now time.Time) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, c := range m.contacts {
		if !c.LastSeen.IsZero() && now.Sub(c.LastSeen) <= m.timeout {
			count++
		}
	}
	return count
}

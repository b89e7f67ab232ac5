package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisManager Redis版本的联络记录，进程重启后保留节点在线状态，供 API 与其他实例读取
type RedisManager struct {
	client  *redis.Client
	timeout time.Duration // 联络超时时间
}

var _ ContactTracker = (*RedisManager)(nil)

// Redis Key设计
const (
	// mesh:contact:{addr} -> contact JSON
	keyContactPrefix = "mesh:contact:"
)

// NewRedisManager 创建Redis联络记录
func NewRedisManager(client *redis.Client, timeout time.Duration) *RedisManager {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &RedisManager{client: client, timeout: timeout}
}

// OnContact 更新节点最近成功会话时间
func (m *RedisManager) OnContact(addr string, t time.Time) {
	ctx := context.Background()

	data, err := m.getContact(ctx, addr)
	if err != nil {
		data = &contact{Addr: addr}
	}
	data.LastSeen = t
	data.Failures = 0

	_ = m.setContact(ctx, data)
}

// OnFailure 记录一次失败
func (m *RedisManager) OnFailure(addr string, t time.Time) {
	ctx := context.Background()

	data, err := m.getContact(ctx, addr)
	if err != nil {
		data = &contact{Addr: addr}
	}
	data.LastFailure = t
	data.Failures++

	_ = m.setContact(ctx, data)
}

func (m *RedisManager) LastContact(addr string) (time.Time, bool) {
	data, err := m.getContact(context.Background(), addr)
	if err != nil || data.LastSeen.IsZero() {
		return time.Time{}, false
	}
	return data.LastSeen, true
}

// IsOnline 判断节点是否在线（仅最近联络）
func (m *RedisManager) IsOnline(addr string, now time.Time) bool {
	data, err := m.getContact(context.Background(), addr)
	if err != nil || data.LastSeen.IsZero() {
		return false
	}
	return now.Sub(data.LastSeen) <= m.timeout
}

// IsOnlineWeighted 按加权策略判断节点是否在线
func (m *RedisManager) IsOnlineWeighted(addr string, now time.Time, p WeightedPolicy) bool {
	if !p.Enabled {
		return m.IsOnline(addr, now)
	}
	data, err := m.getContact(context.Background(), addr)
	if err != nil {
		return false
	}
	return data.score(now, p) >= p.Threshold
}

// OnlineCount 返回当前在线节点数量
func (m *RedisManager) OnlineCount(now time.Time) int {
	ctx := context.Background()

	// 扫描所有节点记录
	var cursor uint64
	count := 0

	for {
		keys, nextCursor, err := m.client.Scan(ctx, cursor, keyContactPrefix+"*", 100).Result()
		if err != nil {
			break
		}

		for _, key := range keys {
			if m.IsOnline(key[len(keyContactPrefix):], now) {
				count++
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return count
}

// --- 辅助方法 ---

func (m *RedisManager) getContact(ctx context.Context, addr string) (*contact, error) {
	val, err := m.client.Get(ctx, keyContactPrefix+addr).Result()
	if err != nil {
		return nil, err
	}

	var data contact
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (m *RedisManager) setContact(ctx context.Context, data *contact) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	// 过期时间为联络超时的2倍
	return m.client.Set(ctx, keyContactPrefix+data.Addr, jsonData, m.timeout*2).Err()
}

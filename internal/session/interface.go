package session

import "time"

// ContactTracker 节点联络记录，支持内存和Redis两种实现
type ContactTracker interface {
	// OnContact 记录一次成功的会话（LIST 成功）
	OnContact(addr string, t time.Time)

	// OnFailure 记录一次连接或 LIST 失败
	OnFailure(addr string, t time.Time)

	// LastContact 返回最近一次成功会话时间
	LastContact(addr string) (time.Time, bool)

	// IsOnline 判断节点是否在线（仅最近联络）
	IsOnline(addr string, now time.Time) bool

	// IsOnlineWeighted 按加权策略判断节点是否在线
	IsOnlineWeighted(addr string, now time.Time, p WeightedPolicy) bool

	// OnlineCount 返回当前在线节点数量
	OnlineCount(now time.Time) int
}

// WeightedPolicy 加权在线判定：联络新鲜得 1 分，窗口内的失败按次扣分
type WeightedPolicy struct {
	Enabled        bool
	ContactTimeout time.Duration
	FailureWindow  time.Duration
	FailurePenalty float64
	Threshold      float64
}

// DefaultWeightedPolicy 以三轮间隔为联络超时，最近一次失败扣 0.6 分
func DefaultWeightedPolicy(cycle time.Duration) WeightedPolicy {
	return WeightedPolicy{
		Enabled:        true,
		ContactTimeout: 3 * cycle,
		FailureWindow:  cycle,
		FailurePenalty: 0.6,
		Threshold:      0.5,
	}
}

// contact 单个节点的联络状态
type contact struct {
	Addr        string    `json:"addr"`
	LastSeen    time.Time `json:"last_seen"`
	LastFailure time.Time `json:"last_failure,omitempty"`
	Failures    int       `json:"failures"` // 自上次成功以来连续失败次数
}

func (c contact) score(now time.Time, p WeightedPolicy) float64 {
	s := 0.0
	if !c.LastSeen.IsZero() && now.Sub(c.LastSeen) <= p.ContactTimeout {
		s += 1.0
	}
	if !c.LastFailure.IsZero() && p.FailureWindow > 0 && now.Sub(c.LastFailure) <= p.FailureWindow {
		s -= p.FailurePenalty * float64(c.Failures)
	}
	return s
}

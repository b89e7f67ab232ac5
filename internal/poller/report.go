package poller

import (
	"context"
	"time"
)

// Stage 轮询状态机阶段
type Stage string

const (
	StageDiscovering   Stage = "discovering"
	StageConnecting    Stage = "connecting"
	StageListing       Stage = "listing"
	StageFetching      Stage = "fetching"
	StageDelivering    Stage = "delivering"
	StageDisconnecting Stage = "disconnecting"
	StageDone          Stage = "done"
)

// 轮次结果，同时作为 mesh_cycles_total 的 result 标签
const (
	ResultOK           = "ok"
	ResultNoNode       = "no_node"
	ResultScanError    = "scan_error"
	ResultConnectError = "connect_error"
	ResultListError    = "list_error"
	ResultSinkError    = "sink_error"
)

// CycleReport 一轮轮询的摘要
type CycleReport struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Stage 本轮到达的最远阶段
	Stage     Stage  `json:"stage"`
	Result    string `json:"result"`
	Node      string `json:"node,omitempty"`
	Label     string `json:"label,omitempty"`
	Listed    int    `json:"listed"`
	Fetched   int    `json:"fetched"`
	Failed    int    `json:"failed"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// Duration 本轮耗时
func (r CycleReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ReportStore 轮次摘要的持久化
type ReportStore interface {
	SaveCycle(ctx context.Context, rep CycleReport) error
}

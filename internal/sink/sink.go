// Package sink 定义一轮轮询结果的投递接口及文件、日志、扇出实现。
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taoyao-code/mesh-reader/internal/protocol/mesh"
)

// ErrSinkFailure 投递失败
var ErrSinkFailure = errors.New("sink: delivery failed")

// Batch 一轮轮询从单个节点采集到的记录，按 LIST 顺序排列
type Batch struct {
	CycleID     string        `json:"cycle_id"`
	Node        string        `json:"node"`
	CollectedAt time.Time     `json:"collected_at"`
	Records     []mesh.Record `json:"records"`
}

// Sink 记录的下游消费者
type Sink interface {
	Deliver(ctx context.Context, b Batch) error
}

// Func 适配普通函数
type Func func(ctx context.Context, b Batch) error

func (f Func) Deliver(ctx context.Context, b Batch) error { return f(ctx, b) }

// Named 带名称的下游，用于错误信息
type Named struct {
	Name string
	Sink Sink
}

// Multi 依次投递到全部下游；单个失败不影响其余，错误汇总后以 ErrSinkFailure 包装返回
type Multi []Named

func (m Multi) Deliver(ctx context.Context, b Batch) error {
	var errs []error
	for _, s := range m {
		if err := s.Sink.Deliver(ctx, b); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrSinkFailure, errors.Join(errs...))
}

package mesh

import (
	"context"
	"encoding/binary"
	"time"
)

// DefaultFragmentIdle 两个通知分片之间允许的最大空闲时间
const DefaultFragmentIdle = 500 * time.Millisecond

// Shape 响应形态，由发出的命令决定
type Shape int

const (
	ShapeList Shape = iota
	ShapeFetch
)

func (s Shape) String() string {
	if s == ShapeList {
		return "list"
	}
	return "fetch"
}

// Assembler 将任意切分的通知分片拼成一个逻辑响应帧。
// 同一时刻只服务一条在途命令。
type Assembler struct {
	shape Shape
	codes Codes
	buf   []byte

	// OnFragment 每收到一个分片回调一次（抓包/指标）
	OnFragment func(p []byte)
}

// NewAssembler 创建指定形态的组帧器
func NewAssembler(shape Shape, codes Codes) *Assembler {
	return &Assembler{shape: shape, codes: codes}
}

// Feed 追加分片并返回帧是否已完整
func (a *Assembler) Feed(p []byte) bool {
	a.buf = append(a.buf, p...)
	return a.Complete()
}

// Complete 按形态判断帧是否完整
func (a *Assembler) Complete() bool {
	if len(a.buf) == 0 {
		return false
	}
	switch a.shape {
	case ShapeList:
		if a.buf[0] != a.codes.OK {
			return true
		}
		if len(a.buf) < listHeaderLen {
			return false
		}
		n := int(binary.LittleEndian.Uint16(a.buf[1:3]))
		return len(a.buf) >= ListFrameLen(n)
	default:
		if a.buf[0] == a.codes.Error {
			return true
		}
		// 记录无长度字段，按最大编码长度作上界
		return len(a.buf) >= FetchFrameLen
	}
}

// Bytes 返回已累计的字节
func (a *Assembler) Bytes() []byte { return a.buf }

// Result 一次收集的结果
type Result struct {
	Frame     []byte
	Fragments int
	Complete  bool
	// Expired ctx 在收集期间结束（整体超时）
	Expired bool
}

// Collect 持续读取分片直到帧完整、空闲超时、通知流关闭或 ctx 结束。
// 从不因超时报错，返回已累计（可能为空或不完整）的数据，由调用方判定可用性。
func (a *Assembler) Collect(ctx context.Context, fragments <-chan []byte, idle time.Duration) Result {
	if idle <= 0 {
		idle = DefaultFragmentIdle
	}
	var res Result
	timer := time.NewTimer(idle)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			res.Expired = true
			res.Frame = a.buf
			return res
		case <-timer.C:
			res.Frame = a.buf
			return res
		case p, ok := <-fragments:
			if !ok {
				res.Frame = a.buf
				return res
			}
			res.Fragments++
			if a.OnFragment != nil {
				a.OnFragment(p)
			}
			if a.Feed(p) {
				res.Complete = true
				res.Frame = a.buf
				return res
			}
			timer.Reset(idle)
		}
	}
}

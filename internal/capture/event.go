// Package capture 以 CBOR 流记录发出的命令、收到的分片与组帧结果，
// 用于离线复核组帧上界与字段布局。
package capture

import (
	"time"
)

// Kind 事件类型
type Kind uint8

const (
	// KindCommand 写往节点的命令
	KindCommand Kind = 0
	// KindFragment 收到的一个通知分片
	KindFragment Kind = 1
	// KindFrame 组帧器交出的响应帧
	KindFrame Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindFragment:
		return "fragment"
	case KindFrame:
		return "frame"
	default:
		return "unknown"
	}
}

// Event 一条抓包事件，CBOR 使用整数键
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`
	CycleID   string    `cbor:"2,keyasint,omitempty"`
	Node      string    `cbor:"3,keyasint,omitempty"`
	Kind      Kind      `cbor:"4,keyasint"`
	// Shape 帧形态 list|fetch，仅 KindFrame
	Shape    string `cbor:"5,keyasint,omitempty"`
	Data     []byte `cbor:"6,keyasint"`
	Complete bool   `cbor:"7,keyasint,omitempty"`
}

// Recorder 抓包接收端，实现方需并发安全且不得阻塞调用方
type Recorder interface {
	Record(Event)
}

// Nop 丢弃全部事件
type Nop struct{}

func (Nop) Record(Event) {}

package capture

import (
	"errors"
	"io"
	"time"

	"github.com/taoyao-code/mesh-reader/internal/protocol/mesh"
)

// Exchange 一条命令与其后续分片离线重组的结果
type Exchange struct {
	At        time.Time
	CycleID   string
	Node      string
	Command   []byte
	Shape     mesh.Shape
	Fragments int
	// Frame 由抓到的分片重新组帧得到
	Frame    []byte
	Complete bool
	// Trailing 帧完整后仍收到的字节数，非零说明上界判定可能偏小
	Trailing int
	// Recorded 在线时组帧器交出的帧
	Recorded []byte

	IDs    []mesh.RecordID
	Record *mesh.Record
	Err    error
}

// Replay 顺序读取抓包事件，对每条 LIST/GET 命令重新组帧并解析，逐条回调 fn。
// 无法识别的命令及其分片被跳过。
func Replay(r *Reader, codes mesh.Codes, fn func(Exchange)) error {
	var (
		cur *Exchange
		asm *mesh.Assembler
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.Frame = asm.Bytes()
		cur.Complete = asm.Complete()
		switch cur.Shape {
		case mesh.ShapeList:
			cur.IDs, cur.Err = codes.ParseList(cur.Frame)
		default:
			rec, err := codes.ParseFetch(cur.Frame, cur.Node, cur.At)
			if err == nil {
				cur.Record = &rec
			}
			cur.Err = err
		}
		fn(*cur)
		cur, asm = nil, nil
	}

	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			flush()
			return nil
		}
		if err != nil {
			flush()
			return err
		}
		switch ev.Kind {
		case KindCommand:
			flush()
			if len(ev.Data) == 0 {
				continue
			}
			var shape mesh.Shape
			switch ev.Data[0] {
			case codes.List:
				shape = mesh.ShapeList
			case codes.Get:
				shape = mesh.ShapeFetch
			default:
				continue
			}
			cur = &Exchange{At: ev.Timestamp, CycleID: ev.CycleID, Node: ev.Node, Command: ev.Data, Shape: shape}
			asm = mesh.NewAssembler(shape, codes)
		case KindFragment:
			if cur == nil {
				continue
			}
			cur.Fragments++
			if asm.Complete() {
				cur.Trailing += len(ev.Data)
				continue
			}
			asm.Feed(ev.Data)
		case KindFrame:
			if cur != nil {
				cur.Recorded = ev.Data
			}
		}
	}
}

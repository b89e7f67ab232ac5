package mesh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

var (
	ErrTruncatedRecord   = errors.New("mesh: truncated record")
	ErrMalformedResponse = errors.New("mesh: malformed response")
	ErrRemoteError       = errors.New("mesh: remote error")
	ErrOperationTimedOut = errors.New("mesh: operation timed out")
)

// CheckStatus 状态字节校验：空帧或 ERROR 视为节点端错误，未知状态视为畸形响应
func (c Codes) CheckStatus(frame []byte) error {
	if len(frame) == 0 {
		return fmt.Errorf("%w: empty response", ErrRemoteError)
	}
	switch frame[0] {
	case c.OK:
		return nil
	case c.Error:
		return ErrRemoteError
	default:
		return fmt.Errorf("%w: unexpected status 0x%02X", ErrMalformedResponse, frame[0])
	}
}

// ParseList 解析 LIST 响应：status(1) | countLE(2) | RecordID(4)*count
// 多余的尾部字节忽略。
func (c Codes) ParseList(frame []byte) ([]RecordID, error) {
	if err := c.CheckStatus(frame); err != nil {
		return nil, err
	}
	if len(frame) < listHeaderLen {
		return nil, fmt.Errorf("%w: list header %d bytes", ErrMalformedResponse, len(frame))
	}
	n := int(binary.LittleEndian.Uint16(frame[1:3]))
	if want := ListFrameLen(n); len(frame) < want {
		return nil, fmt.Errorf("%w: list declares %d entries, need %d bytes, got %d",
			ErrMalformedResponse, n, want, len(frame))
	}
	ids := make([]RecordID, 0, n)
	for i := 0; i < n; i++ {
		off := listHeaderLen + i*recordIDLen
		ids = append(ids, readRecordID(frame[off:off+recordIDLen]))
	}
	return ids, nil
}

// ParseFetch 解析 GET 响应并盖上采集时间与来源地址
func (c Codes) ParseFetch(frame []byte, source string, at time.Time) (Record, error) {
	if err := c.CheckStatus(frame); err != nil {
		return Record{}, err
	}
	r, _, err := DecodeRecord(frame[1:])
	if err != nil {
		return Record{}, err
	}
	r.CapturedAt = at
	r.Source = source
	return r, nil
}

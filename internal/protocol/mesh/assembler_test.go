package mesh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedChunks 将帧按 size 切片后放入带缓冲的通道
func feedChunks(frame []byte, size int) chan []byte {
	ch := make(chan []byte, len(frame)/size+2)
	for len(frame) > 0 {
		n := size
		if n > len(frame) {
			n = len(frame)
		}
		ch <- frame[:n]
		frame = frame[n:]
	}
	return ch
}

func TestAssembler_ListAcrossFragments(t *testing.T) {
	frame := listFrame(RecordID{1, 1}, RecordID{2, 2}, RecordID{3, 3}, RecordID{4, 4}, RecordID{5, 5})
	for _, size := range []int{1, 2, 3, 7, 20, len(frame)} {
		ch := feedChunks(frame, size)
		ch <- []byte{0xEE} // 下一条响应的数据不应被吞掉

		a := NewAssembler(ShapeList, DefaultCodes())
		res := a.Collect(context.Background(), ch, 50*time.Millisecond)
		require.True(t, res.Complete, "chunk size %d", size)
		assert.Equal(t, frame, res.Frame, "chunk size %d", size)
		assert.Len(t, ch, 1, "chunk size %d", size)
	}
}

func TestAssembler_ErrorCompletesImmediately(t *testing.T) {
	for _, shape := range []Shape{ShapeList, ShapeFetch} {
		ch := make(chan []byte, 1)
		ch <- []byte{StatusError}
		a := NewAssembler(shape, DefaultCodes())
		start := time.Now()
		res := a.Collect(context.Background(), ch, time.Second)
		assert.True(t, res.Complete, shape.String())
		assert.Equal(t, []byte{StatusError}, res.Frame)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	}
}

func TestAssembler_FetchUpperBound(t *testing.T) {
	frame := append([]byte{StatusOK}, EncodeRecord(Record{ID: RecordID{1, 2}})...)
	require.Len(t, frame, FetchFrameLen)

	a := NewAssembler(ShapeFetch, DefaultCodes())
	res := a.Collect(context.Background(), feedChunks(frame, 20), time.Second)
	assert.True(t, res.Complete)
	assert.Equal(t, 2, res.Fragments)
	assert.Equal(t, frame, res.Frame)
}

func TestAssembler_IdleTimeoutReturnsPartial(t *testing.T) {
	ch := make(chan []byte, 1)
	ch <- []byte{StatusOK, 0x02, 0x00, 0x01}

	var seen int
	a := NewAssembler(ShapeList, DefaultCodes())
	a.OnFragment = func(p []byte) { seen += len(p) }
	res := a.Collect(context.Background(), ch, 20*time.Millisecond)

	assert.False(t, res.Complete)
	assert.False(t, res.Expired)
	assert.Equal(t, []byte{StatusOK, 0x02, 0x00, 0x01}, res.Frame)
	assert.Equal(t, 4, seen)
}

func TestAssembler_IdleTimeoutEmpty(t *testing.T) {
	a := NewAssembler(ShapeFetch, DefaultCodes())
	res := a.Collect(context.Background(), make(chan []byte), 10*time.Millisecond)
	assert.Empty(t, res.Frame)
	assert.False(t, res.Expired)
}

func TestAssembler_ContextExpired(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// 分片间隔短于空闲超时，但整体超过 ctx 截止时间
	ch := make(chan []byte)
	go func() {
		for i := 0; i < 10; i++ {
			select {
			case ch <- []byte{StatusOK}:
			case <-time.After(time.Second):
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
	a := NewAssembler(ShapeFetch, DefaultCodes())
	res := a.Collect(ctx, ch, 200*time.Millisecond)
	assert.True(t, res.Expired)
	assert.False(t, res.Complete)
	assert.NotEmpty(t, res.Frame)
}

func TestAssembler_StreamClosed(t *testing.T) {
	ch := make(chan []byte, 1)
	ch <- []byte{StatusOK}
	close(ch)
	a := NewAssembler(ShapeFetch, DefaultCodes())
	res := a.Collect(context.Background(), ch, time.Second)
	assert.Equal(t, []byte{StatusOK}, res.Frame)
	assert.False(t, res.Complete)
}

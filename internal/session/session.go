package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/mesh-reader/internal/capture"
	"github.com/taoyao-code/mesh-reader/internal/link"
	"github.com/taoyao-code/mesh-reader/internal/metrics"
	"github.com/taoyao-code/mesh-reader/internal/protocol/mesh"
)

// DefaultOperationTimeout 单条命令的整体超时
const DefaultOperationTimeout = 5 * time.Second

// Config 会话参数
type Config struct {
	Characteristic   string
	Codes            mesh.Codes
	OperationTimeout time.Duration
	FragmentIdle     time.Duration
	// CycleID 写入抓包事件，便于按轮次检索
	CycleID string
}

// DefaultConfig 节点固件的默认特征、命令码与超时
func DefaultConfig() Config {
	return Config{
		Characteristic:   mesh.DefaultCharacteristicUUID,
		Codes:            mesh.DefaultCodes(),
		OperationTimeout: DefaultOperationTimeout,
		FragmentIdle:     mesh.DefaultFragmentIdle,
	}
}

// Session 一次连接上的 LIST/GET 请求会话，生命周期为一轮轮询。
// 同一时刻只允许一条在途命令。
type Session struct {
	link   link.Link
	conn   link.Conn
	cfg    Config
	node   string
	notify <-chan []byte

	log     *zap.Logger
	rec     capture.Recorder
	metrics *metrics.AppMetrics
	now     func() time.Time

	mu sync.Mutex
}

// Option 会话可选项
type Option func(*Session)

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

func WithRecorder(r capture.Recorder) Option {
	return func(s *Session) {
		if r != nil {
			s.rec = r
		}
	}
}

func WithMetrics(m *metrics.AppMetrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithClock 替换采集时间来源
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// Open 订阅特征通知并建立会话，会话独占该通知流
func Open(ctx context.Context, l link.Link, c link.Conn, cfg Config, opts ...Option) (*Session, error) {
	def := DefaultConfig()
	if cfg.Characteristic == "" {
		cfg.Characteristic = def.Characteristic
	}
	if cfg.Codes == (mesh.Codes{}) {
		cfg.Codes = def.Codes
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = def.OperationTimeout
	}
	if cfg.FragmentIdle <= 0 {
		cfg.FragmentIdle = def.FragmentIdle
	}

	s := &Session{
		link: l,
		conn: c,
		cfg:  cfg,
		node: c.Endpoint().Address(),
		log:  zap.NewNop(),
		rec:  capture.Nop{},
		now:  time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	ch, err := l.Subscribe(ctx, c, cfg.Characteristic)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", cfg.Characteristic, err)
	}
	s.notify = ch
	return s, nil
}

// Node 会话对端地址
func (s *Session) Node() string { return s.node }

// ListRecords 请求节点的记录索引
func (s *Session) ListRecords(ctx context.Context) ([]mesh.RecordID, error) {
	frame, err := s.exchange(ctx, s.cfg.Codes.BuildList(), mesh.ShapeList)
	if err != nil {
		s.metrics.ObserveList(resultLabel(err))
		return nil, err
	}
	ids, err := s.cfg.Codes.ParseList(frame)
	s.metrics.ObserveList(resultLabel(err))
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// FetchRecord 拉取并解码一条记录，盖上本地采集时间与来源地址
func (s *Session) FetchRecord(ctx context.Context, id mesh.RecordID) (mesh.Record, error) {
	frame, err := s.exchange(ctx, s.cfg.Codes.BuildGet(id), mesh.ShapeFetch)
	if err != nil {
		s.metrics.ObserveFetch(resultLabel(err))
		return mesh.Record{}, err
	}
	rec, err := s.cfg.Codes.ParseFetch(frame, s.node, s.now())
	s.metrics.ObserveFetch(resultLabel(err))
	if err != nil {
		return mesh.Record{}, err
	}
	if rec.ID != id {
		s.log.Warn("fetched record id differs from request",
			zap.String("node", s.node), zap.Stringer("want", id), zap.Stringer("got", rec.ID))
	}
	return rec, nil
}

// exchange 写入命令并收集一帧响应；空响应在整体超时时报 ErrOperationTimedOut，否则报 ErrRemoteError
func (s *Session) exchange(ctx context.Context, cmd []byte, shape mesh.Shape) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	if n := s.drain(); n > 0 {
		s.log.Debug("stale fragments discarded", zap.String("node", s.node), zap.Int("count", n))
	}

	s.record(capture.Event{Kind: capture.KindCommand, Data: cmd})
	if err := s.link.Write(ctx, s.conn, s.cfg.Characteristic, cmd, false); err != nil {
		return nil, fmt.Errorf("write %s command: %w", shape, err)
	}

	asm := mesh.NewAssembler(shape, s.cfg.Codes)
	asm.OnFragment = func(p []byte) {
		s.metrics.ObserveFragment(len(p))
		s.record(capture.Event{Kind: capture.KindFragment, Data: p})
	}
	res := asm.Collect(ctx, s.notify, s.cfg.FragmentIdle)
	s.record(capture.Event{Kind: capture.KindFrame, Shape: shape.String(), Data: res.Frame, Complete: res.Complete})

	s.log.Debug("response collected",
		zap.String("node", s.node),
		zap.Stringer("shape", shape),
		zap.Int("fragments", res.Fragments),
		zap.Int("bytes", len(res.Frame)),
		zap.Bool("complete", res.Complete),
		zap.Bool("expired", res.Expired),
	)

	if len(res.Frame) == 0 {
		if res.Expired {
			return nil, fmt.Errorf("%w: %s after %s", mesh.ErrOperationTimedOut, shape, s.cfg.OperationTimeout)
		}
		return nil, fmt.Errorf("%w: no %s response", mesh.ErrRemoteError, shape)
	}
	return res.Frame, nil
}

// drain 丢弃命令发出前已排队的分片，返回丢弃数量
func (s *Session) drain() int {
	n := 0
	for {
		select {
		case _, ok := <-s.notify:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

func (s *Session) record(ev capture.Event) {
	ev.Timestamp = s.now()
	ev.CycleID = s.cfg.CycleID
	ev.Node = s.node
	s.rec.Record(ev)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, mesh.ErrOperationTimedOut):
		return "timeout"
	case errors.Is(err, mesh.ErrRemoteError):
		return "remote_error"
	case errors.Is(err, mesh.ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, mesh.ErrTruncatedRecord):
		return "truncated"
	default:
		return "error"
	}
}

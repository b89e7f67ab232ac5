// Package poller 驱动单节点轮询：发现 → 连接 → 列表 → 逐条拉取 → 投递 → 断开 → 休眠。
// 全程串行，一轮内的任何失败都只结束本轮，不会终止 Run。
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/mesh-reader/internal/capture"
	"github.com/taoyao-code/mesh-reader/internal/link"
	"github.com/taoyao-code/mesh-reader/internal/metrics"
	"github.com/taoyao-code/mesh-reader/internal/nodes"
	"github.com/taoyao-code/mesh-reader/internal/protocol/mesh"
	"github.com/taoyao-code/mesh-reader/internal/session"
	"github.com/taoyao-code/mesh-reader/internal/sink"
)

// ErrNoMatchingEndpoint 扫描结果中没有白名单内的节点
var ErrNoMatchingEndpoint = errors.New("poller: no matching endpoint")

// 断开与投递使用独立的超时，进程退出时也能完成收尾
const cleanupTimeout = 5 * time.Second

// Config 轮询参数
type Config struct {
	Service        string
	Session        session.Config
	ScanWindow     time.Duration
	StabilizeDelay time.Duration
	Pacing         time.Duration
	CycleDelay     time.Duration
}

// DefaultConfig 现场节点固件对应的默认节奏
func DefaultConfig() Config {
	return Config{
		Service:        mesh.DefaultServiceUUID,
		Session:        session.DefaultConfig(),
		ScanWindow:     5 * time.Second,
		StabilizeDelay: 500 * time.Millisecond,
		Pacing:         100 * time.Millisecond,
		CycleDelay:     30 * time.Second,
	}
}

// Controller 轮询控制器
type Controller struct {
	link  link.Link
	sink  sink.Sink
	allow *nodes.AllowList
	dir   *nodes.Directory
	cfg   Config

	log     *zap.Logger
	metrics *metrics.AppMetrics
	tracker session.ContactTracker
	rec     capture.Recorder
	reports ReportStore
	now     func() time.Time

	mu   sync.RWMutex
	last *CycleReport
}

// Option 控制器可选项
type Option func(*Controller)

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMetrics(m *metrics.AppMetrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithTracker 记录每个节点的联络结果
func WithTracker(t session.ContactTracker) Option {
	return func(c *Controller) {
		if t != nil {
			c.tracker = t
		}
	}
}

func WithRecorder(r capture.Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.rec = r
		}
	}
}

// WithReportStore 每轮结束后持久化摘要，失败只记日志
func WithReportStore(s ReportStore) Option {
	return func(c *Controller) { c.reports = s }
}

// WithDirectory 节点目录，仅用于日志与报告中的标签
func WithDirectory(d *nodes.Directory) Option {
	return func(c *Controller) { c.dir = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// New 创建控制器
func New(l link.Link, s sink.Sink, allow *nodes.AllowList, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		link:    l,
		sink:    s,
		allow:   allow,
		cfg:     cfg,
		log:     zap.NewNop(),
		tracker: session.New(3 * cfg.CycleDelay),
		rec:     capture.Nop{},
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run 循环执行轮询直到 ctx 取消；取消属于正常退出，返回 nil
func (c *Controller) Run(ctx context.Context) error {
	c.log.Info("poller started",
		zap.Strings("allow_list", c.allow.Entries()),
		zap.Duration("cycle_delay", c.cfg.CycleDelay),
	)
	for {
		_, _ = c.RunCycle(ctx)
		if err := sleep(ctx, c.cfg.CycleDelay); err != nil {
			c.log.Info("poller stopped")
			return nil
		}
	}
}

// LastReport 最近一轮的摘要
func (c *Controller) LastReport() (CycleReport, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return CycleReport{}, false
	}
	return *c.last, true
}

// Tracker 节点联络记录
func (c *Controller) Tracker() session.ContactTracker { return c.tracker }

// RunCycle 执行一轮轮询并返回摘要；error 为导致本轮提前结束或投递失败的原因
func (c *Controller) RunCycle(ctx context.Context) (rep CycleReport, err error) {
	rep = CycleReport{ID: uuid.NewString(), StartedAt: c.now(), Stage: StageDiscovering}
	log := c.log.With(zap.String("cycle_id", rep.ID))
	log.Info("cycle started")

	defer func() {
		rep.FinishedAt = c.now()
		if err != nil {
			rep.Error = err.Error()
		}
		c.publish(ctx, rep, log)
		c.metrics.ObserveCycle(rep.Result, rep.Duration(), rep.Fetched*boolInt(rep.Delivered), rep.FinishedAt)
		c.metrics.SetNodesOnline(c.tracker.OnlineCount(rep.FinishedAt))
		log.Info("cycle finished",
			zap.String("result", rep.Result),
			zap.String("stage", string(rep.Stage)),
			zap.Int("listed", rep.Listed),
			zap.Int("fetched", rep.Fetched),
			zap.Int("failed", rep.Failed),
			zap.Duration("took", rep.Duration()),
		)
	}()

	ep, err := c.discover(ctx)
	if err != nil {
		rep.Result = ResultScanError
		if errors.Is(err, ErrNoMatchingEndpoint) {
			rep.Result = ResultNoNode
		}
		log.Warn("no mesh node available", zap.Error(err))
		return rep, err
	}
	addr := ep.Address()
	rep.Node = addr
	rep.Label = c.dir.Label(addr)
	log = log.With(zap.String("node", addr), zap.String("label", rep.Label))
	log.Info("mesh node found", zap.String("name", ep.Name()))

	rep.Stage = StageConnecting
	conn, err := c.connect(ctx, ep)
	if err != nil {
		rep.Result = ResultConnectError
		c.tracker.OnFailure(addr, c.now())
		log.Warn("connect failed", zap.Error(err))
		return rep, err
	}
	defer func() {
		rep.Stage = StageDisconnecting
		c.disconnect(ctx, conn, log)
		if rep.Result == ResultOK || rep.Result == ResultSinkError {
			rep.Stage = StageDone
		}
	}()

	rep.Stage = StageListing
	scfg := c.cfg.Session
	scfg.CycleID = rep.ID
	sess, err := session.Open(ctx, c.link, conn, scfg,
		session.WithLogger(log),
		session.WithRecorder(c.rec),
		session.WithMetrics(c.metrics),
		session.WithClock(c.now),
	)
	if err != nil {
		rep.Result = ResultListError
		c.tracker.OnFailure(addr, c.now())
		log.Warn("open session failed", zap.Error(err))
		return rep, err
	}
	ids, err := sess.ListRecords(ctx)
	if err != nil {
		rep.Result = ResultListError
		c.tracker.OnFailure(addr, c.now())
		log.Warn("list records failed", zap.Error(err))
		return rep, err
	}
	c.tracker.OnContact(addr, c.now())
	rep.Listed = len(ids)
	log.Info("records listed", zap.Int("count", len(ids)))

	rep.Stage = StageFetching
	records := c.fetchAll(ctx, sess, ids, &rep, log)

	rep.Stage = StageDelivering
	batch := sink.Batch{CycleID: rep.ID, Node: addr, CollectedAt: c.now(), Records: records}
	if err := c.deliver(ctx, batch); err != nil {
		rep.Result = ResultSinkError
		log.Error("deliver batch failed", zap.Int("records", len(records)), zap.Error(err))
		return rep, err
	}
	rep.Delivered = true
	rep.Result = ResultOK
	return rep, nil
}

func (c *Controller) discover(ctx context.Context) (link.Endpoint, error) {
	eps, err := c.link.Scan(ctx, c.cfg.Service, c.cfg.ScanWindow)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	for _, ep := range eps {
		if _, ok := c.allow.Match(ep.Address()); ok {
			return ep, nil
		}
	}
	return nil, fmt.Errorf("%w: %d endpoints advertised the service", ErrNoMatchingEndpoint, len(eps))
}

// connect 连接、等待链路稳定并发现服务；发现失败时不主动断开
func (c *Controller) connect(ctx context.Context, ep link.Endpoint) (link.Conn, error) {
	conn, err := c.link.Connect(ctx, ep)
	if err != nil {
		return nil, err
	}
	if err := sleep(ctx, c.cfg.StabilizeDelay); err != nil {
		return nil, err
	}
	if err := c.link.DiscoverCapabilities(ctx, conn); err != nil {
		return nil, fmt.Errorf("discover capabilities: %w", err)
	}
	return conn, nil
}

// fetchAll 按列表顺序逐条拉取，失败的记录跳过；每次调用后固定间隔
func (c *Controller) fetchAll(ctx context.Context, sess *session.Session, ids []mesh.RecordID, rep *CycleReport, log *zap.Logger) []mesh.Record {
	records := make([]mesh.Record, 0, len(ids))
	for i, id := range ids {
		if ctx.Err() != nil {
			rep.Failed += len(ids) - i
			log.Warn("fetch aborted", zap.Int("remaining", len(ids)-i), zap.Error(ctx.Err()))
			break
		}
		rec, err := sess.FetchRecord(ctx, id)
		if err != nil {
			rep.Failed++
			log.Warn("fetch record failed", zap.Int("index", i+1), zap.Stringer("record", id), zap.Error(err))
		} else {
			records = append(records, rec)
			log.Info("fetch record ok", zap.Int("index", i+1), zap.Stringer("record", id))
		}
		_ = sleep(ctx, c.cfg.Pacing)
	}
	rep.Fetched = len(records)
	return records
}

func (c *Controller) deliver(ctx context.Context, b sink.Batch) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := c.sink.Deliver(ctx, b); err != nil {
		if errors.Is(err, sink.ErrSinkFailure) {
			return err
		}
		return fmt.Errorf("%w: %w", sink.ErrSinkFailure, err)
	}
	return nil
}

func (c *Controller) disconnect(ctx context.Context, conn link.Conn, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := c.link.Disconnect(ctx, conn); err != nil {
		log.Warn("disconnect failed", zap.Error(err))
		return
	}
	log.Debug("disconnected")
}

func (c *Controller) publish(ctx context.Context, rep CycleReport, log *zap.Logger) {
	c.mu.Lock()
	c.last = &rep
	c.mu.Unlock()

	if c.reports == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := c.reports.SaveCycle(ctx, rep); err != nil {
		log.Warn("save cycle report failed", zap.Error(err))
	}
}

// sleep 可被 ctx 打断的等待
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

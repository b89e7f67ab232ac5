package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/mesh-reader/internal/nodes"
	"github.com/taoyao-code/mesh-reader/internal/poller"
	"github.com/taoyao-code/mesh-reader/internal/protocol/mesh"
	"github.com/taoyao-code/mesh-reader/internal/session"
	"github.com/taoyao-code/mesh-reader/internal/storage"
)

// CycleSource 提供最近一轮轮询摘要
type CycleSource interface {
	LastReport() (poller.CycleReport, bool)
}

// ReadOnlyHandler 只读API处理器；records/cycles 未配置存储时为 nil
type ReadOnlyHandler struct {
	records storage.RecordReader
	cycles  storage.CycleReader
	last    CycleSource
	tracker session.ContactTracker
	policy  session.WeightedPolicy
	dir     *nodes.Directory
	logger  *zap.Logger
	now     func() time.Time
}

// NewReadOnlyHandler 创建只读API处理器
func NewReadOnlyHandler(
	records storage.RecordReader,
	cycles storage.CycleReader,
	last CycleSource,
	tracker session.ContactTracker,
	policy session.WeightedPolicy,
	dir *nodes.Directory,
	logger *zap.Logger,
) *ReadOnlyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadOnlyHandler{
		records: records,
		cycles:  cycles,
		last:    last,
		tracker: tracker,
		policy:  policy,
		dir:     dir,
		logger:  logger,
		now:     time.Now,
	}
}

// ListRecords 查询最近的记录
// GET /api/v1/records?device_id=&limit=
func (h *ReadOnlyHandler) ListRecords(c *gin.Context) {
	if h.records == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "record storage not configured"})
		return
	}

	var deviceID *uint16
	if v := c.Query("device_id"); v != "" {
		id, err := strconv.ParseUint(v, 0, 16)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid device_id"})
			return
		}
		d := uint16(id)
		deviceID = &d
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	list, err := h.records.Recent(c.Request.Context(), deviceID, limit)
	if err != nil {
		h.logger.Error("list records failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": nonNil(list)})
}

// LatestRecords 每个设备的最新记录
// GET /api/v1/records/latest
func (h *ReadOnlyHandler) LatestRecords(c *gin.Context) {
	if h.records == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "record storage not configured"})
		return
	}
	list, err := h.records.Latest(c.Request.Context())
	if err != nil {
		h.logger.Error("latest records failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": nonNil(list)})
}

// LastCycle 当前进程最近一轮摘要
// GET /api/v1/cycles/last
func (h *ReadOnlyHandler) LastCycle(c *gin.Context) {
	if h.last == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cycle finished yet"})
		return
	}
	rep, ok := h.last.LastReport()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cycle finished yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cycle": rep, "duration_ms": rep.Duration().Milliseconds()})
}

// ListCycles 历史轮次摘要
// GET /api/v1/cycles?limit=
func (h *ReadOnlyHandler) ListCycles(c *gin.Context) {
	if h.cycles == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cycle storage not configured"})
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	list, err := h.cycles.RecentCycles(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("list cycles failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if list == nil {
		list = []poller.CycleReport{}
	}
	c.JSON(http.StatusOK, gin.H{"cycles": list})
}

// ListNodes 节点目录与联络状态
// GET /api/v1/nodes
func (h *ReadOnlyHandler) ListNodes(c *gin.Context) {
	type nodeView struct {
		nodes.Node
		Online      bool       `json:"online"`
		LastContact *time.Time `json:"last_contact,omitempty"`
	}

	now := h.now()
	out := []nodeView{}
	if h.dir != nil {
		for _, n := range h.dir.Nodes {
			v := nodeView{Node: n}
			if h.tracker != nil {
				v.Online = h.tracker.IsOnlineWeighted(n.Address, now, h.policy)
				if t, ok := h.tracker.LastContact(n.Address); ok {
					v.LastContact = &t
				}
			}
			out = append(out, v)
		}
	}
	online := 0
	if h.tracker != nil {
		online = h.tracker.OnlineCount(now)
	}
	c.JSON(http.StatusOK, gin.H{"nodes": out, "online": online})
}

func queryLimit(c *gin.Context) (int, bool) {
	v := c.Query("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return 0, false
	}
	return n, true
}

// nonNil 空结果序列化为 []，避免 null
func nonNil(list []mesh.Record) []mesh.Record {
	if list == nil {
		return []mesh.Record{}
	}
	return list
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/mesh-reader/internal/api/middleware"
	"github.com/taoyao-code/mesh-reader/internal/nodes"
	"github.com/taoyao-code/mesh-reader/internal/poller"
	"github.com/taoyao-code/mesh-reader/internal/protocol/mesh"
	"github.com/taoyao-code/mesh-reader/internal/session"
)

type fakeRecords struct {
	list     []mesh.Record
	err      error
	deviceID *uint16
	limit    int
}

func (f *fakeRecords) Recent(_ context.Context, deviceID *uint16, limit int) ([]mesh.Record, error) {
	f.deviceID, f.limit = deviceID, limit
	return f.list, f.err
}

func (f *fakeRecords) Latest(context.Context) ([]mesh.Record, error) { return f.list, f.err }

type fakeCycles struct{ list []poller.CycleReport }

func (f fakeCycles) RecentCycles(context.Context, int) ([]poller.CycleReport, error) {
	return f.list, nil
}

type lastReport struct {
	rep poller.CycleReport
	ok  bool
}

func (l lastReport) LastReport() (poller.CycleReport, bool) { return l.rep, l.ok }

func newRouter(h *ReadOnlyHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterReadOnlyRoutes(r, h, middleware.AuthConfig{}, zap.NewNop())
	return r
}

func get(t *testing.T, r http.Handler, path string) (int, map[string]json.RawMessage) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w.Code, body
}

func TestListRecords(t *testing.T) {
	noise := uint16(42)
	recs := &fakeRecords{list: []mesh.Record{{ID: mesh.RecordID{DeviceID: 0x1A2B, Sequence: 3}, Fields: mesh.FieldNoise, Noise: &noise}}}
	r := newRouter(NewReadOnlyHandler(recs, nil, lastReport{}, nil, session.WeightedPolicy{}, nil, nil))

	t.Run("按设备过滤", func(t *testing.T) {
		code, body := get(t, r, "/api/v1/records?device_id=0x1A2B&limit=5")
		assert.Equal(t, http.StatusOK, code)
		require.NotNil(t, recs.deviceID)
		assert.Equal(t, uint16(0x1A2B), *recs.deviceID)
		assert.Equal(t, 5, recs.limit)

		var list []map[string]interface{}
		require.NoError(t, json.Unmarshal(body["records"], &list))
		require.Len(t, list, 1)
		assert.EqualValues(t, 0x1A2B, list[0]["device_id"])
		assert.EqualValues(t, 42, list[0]["noise_level"])
	})

	t.Run("非法设备号", func(t *testing.T) {
		code, _ := get(t, r, "/api/v1/records?device_id=70000")
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("非法limit", func(t *testing.T) {
		code, _ := get(t, r, "/api/v1/records?limit=-1")
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("空结果为数组", func(t *testing.T) {
		empty := newRouter(NewReadOnlyHandler(&fakeRecords{}, nil, lastReport{}, nil, session.WeightedPolicy{}, nil, nil))
		code, body := get(t, empty, "/api/v1/records/latest")
		assert.Equal(t, http.StatusOK, code)
		assert.JSONEq(t, `[]`, string(body["records"]))
	})

	t.Run("查询失败", func(t *testing.T) {
		bad := newRouter(NewReadOnlyHandler(&fakeRecords{err: errors.New("db down")}, nil, lastReport{}, nil, session.WeightedPolicy{}, nil, nil))
		code, _ := get(t, bad, "/api/v1/records")
		assert.Equal(t, http.StatusInternalServerError, code)
	})

	t.Run("未配置存储", func(t *testing.T) {
		none := newRouter(NewReadOnlyHandler(nil, nil, lastReport{}, nil, session.WeightedPolicy{}, nil, nil))
		code, _ := get(t, none, "/api/v1/records")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		code, _ = get(t, none, "/api/v1/cycles")
		assert.Equal(t, http.StatusServiceUnavailable, code)
	})
}

func TestCycles(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	rep := poller.CycleReport{ID: "c1", Result: poller.ResultOK, Stage: poller.StageDone, StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond)}

	t.Run("尚无轮次", func(t *testing.T) {
		r := newRouter(NewReadOnlyHandler(nil, nil, lastReport{}, nil, session.WeightedPolicy{}, nil, nil))
		code, _ := get(t, r, "/api/v1/cycles/last")
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("最近一轮", func(t *testing.T) {
		r := newRouter(NewReadOnlyHandler(nil, nil, lastReport{rep: rep, ok: true}, nil, session.WeightedPolicy{}, nil, nil))
		code, body := get(t, r, "/api/v1/cycles/last")
		assert.Equal(t, http.StatusOK, code)
		assert.JSONEq(t, `1500`, string(body["duration_ms"]))

		var got poller.CycleReport
		require.NoError(t, json.Unmarshal(body["cycle"], &got))
		assert.Equal(t, "c1", got.ID)
	})

	t.Run("历史轮次", func(t *testing.T) {
		r := newRouter(NewReadOnlyHandler(nil, fakeCycles{list: []poller.CycleReport{rep}}, lastReport{}, nil, session.WeightedPolicy{}, nil, nil))
		code, body := get(t, r, "/api/v1/cycles?limit=10")
		assert.Equal(t, http.StatusOK, code)
		var list []poller.CycleReport
		require.NoError(t, json.Unmarshal(body["cycles"], &list))
		assert.Len(t, list, 1)
	})
}

func TestListNodes(t *testing.T) {
	now := time.Now()
	tracker := session.New(time.Minute)
	tracker.OnContact("68:5E:1C:1A:68:CF", now.Add(-10*time.Second))

	dir := nodes.NewDirectory("68:5E:1C:1A:68:CF", "68:5E:1C:1A:5A:30")
	dir.Nodes[0].Label = "north"

	h := NewReadOnlyHandler(nil, nil, lastReport{}, tracker, session.DefaultWeightedPolicy(30*time.Second), dir, nil)
	h.now = func() time.Time { return now }
	code, body := get(t, newRouter(h), "/api/v1/nodes")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `1`, string(body["online"]))

	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(body["nodes"], &list))
	require.Len(t, list, 2)
	assert.Equal(t, "north", list[0]["label"])
	assert.Equal(t, true, list[0]["online"])
	assert.Contains(t, list[0], "last_contact")
	assert.Equal(t, false, list[1]["online"])
	assert.NotContains(t, list[1], "last_contact")
}

func TestRegisterReadOnlyRoutes_Auth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewReadOnlyHandler(nil, nil, lastReport{}, nil, session.WeightedPolicy{}, nil, nil)
	RegisterReadOnlyRoutes(r, h, middleware.AuthConfig{Enabled: true, APIKeys: []string{"sk_test_key_123"}}, zap.NewNop())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nodes", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nodes", nil)
	req.Header.Set("X-API-Key", "sk_test_key_123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标。
// 所有方法对 nil 接收者安全，未启用指标时核心逻辑可直接传 nil。
type AppMetrics struct {
	CycleTotal        *prometheus.CounterVec // labels: result=ok|no_node|connect_error|list_error|sink_error
	CycleDuration     prometheus.Histogram
	ListTotal         *prometheus.CounterVec // labels: result=ok|timeout|remote_error|malformed|error
	FetchTotal        *prometheus.CounterVec // labels: result
	RecordsDelivered  prometheus.Counter
	FragmentsReceived prometheus.Counter
	BytesReceived     prometheus.Counter
	NodesOnline       prometheus.Gauge // 最近超时窗口内成功通信过的节点数
	LastCycle         prometheus.Gauge // 最近一轮结束的 Unix 时间戳
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		CycleTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mesh_cycles_total",
			Help: "Poll cycles by final result.",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mesh_cycle_duration_seconds",
			Help:    "Wall time of a poll cycle excluding the inter-cycle sleep.",
			Buckets: []float64{1, 2, 5, 7.5, 10, 15, 20, 30, 60, 120},
		}),
		ListTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mesh_list_total",
			Help: "LIST operations by result.",
		}, []string{"result"}),
		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mesh_fetch_total",
			Help: "GET operations by result.",
		}, []string{"result"}),
		RecordsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mesh_records_delivered_total",
			Help: "Records handed to the sink.",
		}),
		FragmentsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mesh_fragments_received_total",
			Help: "Notification fragments received.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mesh_bytes_received_total",
			Help: "Notification payload bytes received.",
		}),
		NodesOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mesh_nodes_online",
			Help: "Nodes successfully contacted within the online window.",
		}),
		LastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mesh_last_cycle_timestamp_seconds",
			Help: "Unix time the last poll cycle finished.",
		}),
	}
	reg.MustRegister(m.CycleTotal, m.CycleDuration, m.ListTotal, m.FetchTotal, m.RecordsDelivered,
		m.FragmentsReceived, m.BytesReceived, m.NodesOnline, m.LastCycle)
	return m
}

// ObserveFragment 记录一个通知分片
func (m *AppMetrics) ObserveFragment(n int) {
	if m == nil {
		return
	}
	m.FragmentsReceived.Inc()
	m.BytesReceived.Add(float64(n))
}

// ObserveList 记录一次 LIST 结果
func (m *AppMetrics) ObserveList(result string) {
	if m == nil {
		return
	}
	m.ListTotal.WithLabelValues(result).Inc()
}

// ObserveFetch 记录一次 GET 结果
func (m *AppMetrics) ObserveFetch(result string) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(result).Inc()
}

// ObserveCycle 记录一轮轮询的结果、耗时与投递条数
func (m *AppMetrics) ObserveCycle(result string, took time.Duration, delivered int, at time.Time) {
	if m == nil {
		return
	}
	m.CycleTotal.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(took.Seconds())
	m.RecordsDelivered.Add(float64(delivered))
	m.LastCycle.Set(float64(at.Unix()))
}

// SetNodesOnline 更新在线节点数
func (m *AppMetrics) SetNodesOnline(n int) {
	if m == nil {
		return
	}
	m.NodesOnline.Set(float64(n))
}

package dht

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dep2p/go-kaddht/internal/core/storage/engine"
)

const metricsNamespace = "kaddht"

// 查询结果标签
const (
	outcomeSuccess   = "success"
	outcomeNotFound  = "not_found"
	outcomeTimeout   = "timeout"
	outcomeCancelled = "cancelled"
	outcomeNoPeers   = "no_peers"
	outcomeError     = "error"
)

// metrics DHT 指标
//
// 所有方法对 nil 接收者安全。
type metrics struct {
	runsStarted  prometheus.Counter
	runsFinished *prometheus.CounterVec
	runDuration  prometheus.Histogram
	rpcsSent     prometheus.Counter
	rpcsFailed   prometheus.Counter
	requests     *prometheus.CounterVec
	rejected     *prometheus.CounterVec

	factory promauto.Factory
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &metrics{
		factory: f,
		runsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "query_runs_started_total",
			Help:      "Total number of lookup runs started",
		}),
		runsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "query_runs_finished_total",
			Help:      "Total number of lookup runs finished, by outcome",
		}, []string{"outcome"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "query_run_duration_seconds",
			Help:      "Lookup run duration",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		rpcsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rpcs_sent_total",
			Help:      "Total number of outbound RPCs issued by lookups",
		}),
		rpcsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rpcs_failed_total",
			Help:      "Total number of outbound RPCs that failed or timed out",
		}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handler_requests_total",
			Help:      "Total number of inbound requests, by message type",
		}, []string{"type"}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handler_rejected_total",
			Help:      "Total number of inbound requests rejected, by message type",
		}, []string{"type"}),
	}
}

// watchStorage 导出存储引擎的磁盘占用
func (m *metrics) watchStorage(eng engine.Engine) {
	if m == nil || eng == nil {
		return
	}
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "storage_disk_bytes",
		Help:      "On-disk size of the persistent provider and record store",
	}, func() float64 {
		return float64(eng.Stats().DiskSize())
	})
}

func (m *metrics) runStarted() {
	if m == nil {
		return
	}
	m.runsStarted.Inc()
}

func (m *metrics) runFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.runsFinished.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.runDuration.Observe(d.Seconds())
	}
}

func (m *metrics) rpcSent() {
	if m == nil {
		return
	}
	m.rpcsSent.Inc()
}

func (m *metrics) rpcFailed() {
	if m == nil {
		return
	}
	m.rpcsFailed.Inc()
}

func (m *metrics) request(typ string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(typ).Inc()
}

func (m *metrics) reject(typ string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(typ).Inc()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, ErrNotFound):
		return outcomeNotFound
	case errors.Is(err, ErrTimeout):
		return outcomeTimeout
	case errors.Is(err, ErrCancelled):
		return outcomeCancelled
	case errors.Is(err, ErrNoPeersAvailable):
		return outcomeNoPeers
	default:
		return outcomeError
	}
}

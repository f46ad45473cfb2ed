package bitcask

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics 是单个 DB 的监控指标
type metrics struct {
	reg prometheus.Registerer

	ops                *prometheus.CounterVec
	compactions        prometheus.Counter
	compactionDuration prometheus.Histogram
	logSize            prometheus.Gauge
	staleBytes         prometheus.Gauge
	liveKeys           prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &metrics{
		reg: reg,
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kvs_operations_total",
			Help: "Number of engine operations by type.",
		}, []string{"op"}),
		compactions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvs_compactions_total",
			Help: "Number of completed log compactions.",
		}),
		compactionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kvs_compaction_duration_seconds",
			Help:    "Time spent rewriting the log during compaction.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		logSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kvs_log_size_bytes",
			Help: "Current size of the command log.",
		}),
		staleBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kvs_stale_bytes",
			Help: "Bytes of superseded or removal records that compaction would reclaim.",
		}),
		liveKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kvs_live_keys",
			Help: "Number of keys currently in the index.",
		}),
	}

	registered := make([]prometheus.Collector, 0, 6)
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			for _, r := range registered {
				reg.Unregister(r)
			}
			return nil, fmt.Errorf("注册监控指标失败: %w", err)
		}
		registered = append(registered, c)
	}
	return m, nil
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ops, m.compactions, m.compactionDuration,
		m.logSize, m.staleBytes, m.liveKeys,
	}
}

// unregister 让同一个 Registerer 可以在关闭后重新打开数据库
func (m *metrics) unregister() {
	for _, c := range m.collectors() {
		m.reg.Unregister(c)
	}
}

package session

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce       sync.Once
	sessionCounter    *prometheus.CounterVec
	sessionDuration   *prometheus.HistogramVec
	nonceReuseCounter prometheus.Counter
	nonceSlotsGauge   prometheus.Gauge
)

func ensureMetrics() {
	metricsOnce.Do(func() {
		sessionCounter = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threshold",
			Subsystem: "session",
			Name:      "total",
			Help:      "Coordinated sessions by kind and final status",
		}, []string{"kind", "status"})

		sessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "threshold",
			Subsystem: "session",
			Name:      "duration_seconds",
			Help:      "End-to-end session latency as seen by the coordinator",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"kind"})

		nonceReuseCounter = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "threshold",
			Subsystem: "session",
			Name:      "nonce_reuse_attempts_total",
			Help:      "Rejected attempts to consume an already-spent signing nonce",
		})

		nonceSlotsGauge = promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "threshold",
			Subsystem: "session",
			Name:      "nonce_slots",
			Help:      "Responder nonce slots currently held in memory",
		})
	})
}

// ObserveSession 记录会话结果与耗时，供协调者在会话收尾时调用
func ObserveSession(kind Kind, status Status, elapsed time.Duration) {
	ensureMetrics()
	sessionCounter.WithLabelValues(string(kind), string(status)).Inc()
	if status == StatusCompleted {
		sessionDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	}
}

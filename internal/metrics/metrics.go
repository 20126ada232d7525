package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stop_spying"

// Recorder 汇总认证相关指标，使用独立的 Registry 便于测试隔离。
type Recorder struct {
	registry        *prometheus.Registry
	authOutcomes    *prometheus.CounterVec
	emailDeliveries *prometheus.CounterVec
	sweepDeleted    *prometheus.CounterVec
}

func New() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Recorder{
		registry: registry,
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts by flow and result reason.",
		}, []string{"flow", "reason"}),
		emailDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_deliveries_total",
			Help:      "Outbound email deliveries by result.",
		}, []string{"result"}),
		sweepDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_deleted_total",
			Help:      "Expired rows removed by the cleanup sweep.",
		}, []string{"kind"}),
	}
	registry.MustRegister(r.authOutcomes, r.emailDeliveries, r.sweepDeleted)
	return r
}

// AuthOutcome 记录一次认证结果；成功时 reason 为 "none"。
func (r *Recorder) AuthOutcome(flow, reason string) {
	if r == nil {
		return
	}
	r.authOutcomes.WithLabelValues(flow, reason).Inc()
}

func (r *Recorder) EmailDelivery(delivered bool) {
	if r == nil {
		return
	}
	result := "failed"
	if delivered {
		result = "delivered"
	}
	r.emailDeliveries.WithLabelValues(result).Inc()
}

func (r *Recorder) SweepDeleted(kind string, n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.sweepDeleted.WithLabelValues(kind).Add(float64(n))
}

// Handler 暴露 /metrics。
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

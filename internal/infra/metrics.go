package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: входящие webhook-и и интерактивные действия
	WebhookTotal  *prometheus.CounterVec
	DecisionTotal *prometheus.CounterVec

	// Fanout: исходы доставки по беседам
	DeliveryTotal *prometheus.CounterVec

	// Latency: полный цикл обработки решения (токен + downstream)
	RelayDuration *prometheus.HistogramVec

	// Saturation: заполненность буфера аудита (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern — без регистратора метрики живут в локальном
	// реестре и никуда не экспортируются (удобно в тестах)
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		WebhookTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "relay_webhook_requests_total",
			Help: "Total number of inbound approval-request webhooks.",
		}, []string{"status"}),

		DecisionTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "relay_decisions_total",
			Help: "Total number of processed approver decisions.",
		}, []string{"decision", "path", "status"}),

		DeliveryTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Per-conversation card delivery outcomes.",
		}, []string{"status"}),

		RelayDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_decision_duration_seconds",
			Help:    "Histogram of decision relay latencies.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"path"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "relay_audit_buffer_fill",
			Help: "Current number of events waiting in the audit buffer.",
		}),
	}
}

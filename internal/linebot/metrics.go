package linebot

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics Bot の Prometheus 指標
type Metrics struct {
	// メッセージ処理指標
	MessagesTotal  *prometheus.CounterVec
	HandleDuration *prometheus.HistogramVec

	// 作業報告指標
	ReportsParsed   prometheus.Counter
	ParseConfidence prometheus.Histogram

	// 外部呼び出し指標
	AgentErrors prometheus.Counter
	ReplyErrors prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics 指標を作り専用レジストリに登録する
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		MessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Total handled messages by kind",
			},
			[]string{"kind"},
		),
		HandleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "handle_duration_seconds",
				Help:      "Message handling duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind"},
		),
		ReportsParsed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "work_reports_parsed_total",
				Help:      "Total parsed work reports",
			},
		),
		ParseConfidence: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "parse_confidence",
				Help:      "Confidence score distribution of parsed reports",
				Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
			},
		),
		AgentErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_errors_total",
				Help:      "Total dialogue agent failures",
			},
		),
		ReplyErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reply_errors_total",
				Help:      "Total LINE reply failures",
			},
		),
		registry: registry,
	}
}

// RecordMessage メッセージ処理を記録する
func (m *Metrics) RecordMessage(kind string, duration time.Duration) {
	m.MessagesTotal.WithLabelValues(kind).Inc()
	m.HandleDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordReport 作業報告の解析を記録する
func (m *Metrics) RecordReport(confidence float64) {
	m.ReportsParsed.Inc()
	m.ParseConfidence.Observe(confidence)
}

// Handler /metrics 用のハンドラーを返す
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

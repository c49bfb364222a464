// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// クエリパイプラインとオーケストレーターから利用する。
type MetricsCollector interface {
	RecordQuerySuccess()
	RecordQueryDegraded()
	RecordValidationReject(reason string)
	RecordSourceSuccess(sourceID string)
	RecordSourceFailure(sourceID string)
	RecordSourceLatency(sourceID string, duration time.Duration)
	RecordGenerationLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	querySuccess      prometheus.Counter
	queryDegraded     prometheus.Counter
	validationReject  *prometheus.CounterVec
	sourceSuccess     *prometheus.CounterVec
	sourceFailure     *prometheus.CounterVec
	sourceLatency     *prometheus.HistogramVec
	generationLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		querySuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "genie_query_success_total",
			Help: "クエリリクエスト成功の合計数",
		}),
		queryDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "genie_query_degraded_total",
			Help: "生成サービス不達による劣化応答の合計数",
		}),
		validationReject: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genie_validation_reject_total",
			Help: "安全性検査による生成クエリ拒否の合計数",
		}, []string{"reason"}),
		sourceSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genie_source_success_total",
			Help: "データソースごとのクエリ成功の合計数",
		}, []string{"source_id"}),
		sourceFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genie_source_failure_total",
			Help: "データソースごとのクエリ失敗の合計数",
		}, []string{"source_id"}),
		sourceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "genie_source_latency_seconds",
			Help:    "データソースごとのクエリ実行レイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"source_id"}),
		generationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "genie_generation_latency_seconds",
			Help:    "生成APIの呼び出しレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.querySuccess,
		c.queryDegraded,
		c.validationReject,
		c.sourceSuccess,
		c.sourceFailure,
		c.sourceLatency,
		c.generationLatency,
	)

	return c
}

// RecordQuerySuccess はクエリリクエスト成功を記録する。
func (c *Collector) RecordQuerySuccess() {
	c.querySuccess.Inc()
}

// RecordQueryDegraded は劣化応答を記録する。
func (c *Collector) RecordQueryDegraded() {
	c.queryDegraded.Inc()
}

// RecordValidationReject は安全性検査による拒否を記録する。
func (c *Collector) RecordValidationReject(reason string) {
	c.validationReject.WithLabelValues(reason).Inc()
}

// RecordSourceSuccess はソースごとのクエリ成功を記録する。
func (c *Collector) RecordSourceSuccess(sourceID string) {
	c.sourceSuccess.WithLabelValues(sourceID).Inc()
}

// RecordSourceFailure はソースごとのクエリ失敗を記録する。
func (c *Collector) RecordSourceFailure(sourceID string) {
	c.sourceFailure.WithLabelValues(sourceID).Inc()
}

// RecordSourceLatency はソースごとのクエリ実行レイテンシを記録する。
func (c *Collector) RecordSourceLatency(sourceID string, duration time.Duration) {
	c.sourceLatency.WithLabelValues(sourceID).Observe(duration.Seconds())
}

// RecordGenerationLatency は生成APIのレイテンシを記録する。
func (c *Collector) RecordGenerationLatency(duration time.Duration) {
	c.generationLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordJoin(result string)
	RecordDecline()
	RecordCapacityRejection(publicCode string)
	RecordAuthCallback(outcome string)
	RecordPaymentScan(result string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Joinの結果ラベル。
const (
	JoinResultCreated  = "created"
	JoinResultRejoined = "rejoined"
	JoinResultRejected = "rejected"
	JoinResultError    = "error"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	joins              *prometheus.CounterVec
	declines           prometheus.Counter
	capacityRejections prometheus.Counter
	authCallbacks      *prometheus.CounterVec
	paymentScans       *prometheus.CounterVec
	httpStatus         *prometheus.CounterVec
	requestLatency     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reserv_rsvp_join_total",
			Help: "RSVP参加リクエストの結果別合計数",
		}, []string{"result"}),
		declines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reserv_rsvp_decline_total",
			Help: "RSVP辞退の合計数",
		}),
		capacityRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reserv_capacity_rejection_total",
			Help: "定員超過による参加拒否の合計数",
		}),
		authCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reserv_auth_callback_total",
			Help: "OAuthコールバックの結果別合計数",
		}, []string{"outcome"}),
		paymentScans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reserv_payment_scan_total",
			Help: "支払い証明OCRスキャンの結果別合計数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reserv_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reserv_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.joins,
		c.declines,
		c.capacityRejections,
		c.authCallbacks,
		c.paymentScans,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordJoin は参加リクエストの結果を記録する。
func (c *Collector) RecordJoin(result string) {
	c.joins.WithLabelValues(result).Inc()
}

// RecordDecline は辞退を記録する。
func (c *Collector) RecordDecline() {
	c.declines.Inc()
}

// RecordCapacityRejection は定員超過による拒否を記録する。
func (c *Collector) RecordCapacityRejection(publicCode string) {
	c.capacityRejections.Inc()
}

// RecordAuthCallback はOAuthコールバックの結果を記録する。
// outcomeはsuccess/no_code/exchange_failed/no_session/exceptionのいずれか。
func (c *Collector) RecordAuthCallback(outcome string) {
	c.authCallbacks.WithLabelValues(outcome).Inc()
}

// RecordPaymentScan はOCRスキャンの結果を記録する。
func (c *Collector) RecordPaymentScan(result string) {
	c.paymentScans.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
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

var _ MetricsCollector = (*Collector)(nil)

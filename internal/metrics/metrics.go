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
// ミドルウェア、AIクライアント、ワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method string, statusCode int, duration time.Duration)
	RecordAIRequest(endpoint, outcome string, duration time.Duration)
	RecordAIFallback(endpoint string)
	RecordRateLimited(group string)
	RecordRecommendationsExpired(count int64)
}

// AIリクエストの結果区分
const (
	OutcomeSuccess     = "success"
	OutcomeUnavailable = "unavailable"
	OutcomeUpstream    = "upstream_error"
	OutcomeError       = "error"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests   *prometheus.CounterVec
	httpDuration   prometheus.Histogram
	aiRequests     *prometheus.CounterVec
	aiFallbacks    *prometheus.CounterVec
	aiLatency      prometheus.Histogram
	rateLimited    *prometheus.CounterVec
	expiredRecords prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "closetiq_http_requests_total",
			Help: "メソッド・ステータスコード別のHTTPリクエスト数",
		}, []string{"method", "status"}),
		httpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "closetiq_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		aiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "closetiq_ai_requests_total",
			Help: "AIエンジン呼び出しのエンドポイント・結果別の回数",
		}, []string{"endpoint", "outcome"}),
		aiFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "closetiq_ai_fallback_total",
			Help: "AIエンジン接続不可により代替レスポンスを返した回数",
		}, []string{"endpoint"}),
		aiLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "closetiq_ai_latency_seconds",
			Help:    "AIエンジン呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "closetiq_rate_limited_total",
			Help: "レート制限で拒否したリクエスト数",
		}, []string{"group"}),
		expiredRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "closetiq_recommendations_expired_total",
			Help: "期限切れで削除したおすすめの合計数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.aiRequests,
		c.aiFallbacks,
		c.aiLatency,
		c.rateLimited,
		c.expiredRecords,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの結果と処理時間を記録する。
func (c *Collector) RecordHTTPRequest(method string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.httpDuration.Observe(duration.Seconds())
}

// RecordAIRequest はAIエンジン呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordAIRequest(endpoint, outcome string, duration time.Duration) {
	c.aiRequests.WithLabelValues(endpoint, outcome).Inc()
	c.aiLatency.Observe(duration.Seconds())
}

// RecordAIFallback は代替レスポンスの返却を記録する。
func (c *Collector) RecordAIFallback(endpoint string) {
	c.aiFallbacks.WithLabelValues(endpoint).Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(group string) {
	c.rateLimited.WithLabelValues(group).Inc()
}

// RecordRecommendationsExpired は期限切れで削除したおすすめ数を記録する。
func (c *Collector) RecordRecommendationsExpired(count int64) {
	c.expiredRecords.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。メトリクス不要な場面とテストで使う。
type Nop struct{}

func (Nop) RecordHTTPRequest(string, int, time.Duration) {}
func (Nop) RecordAIRequest(string, string, time.Duration) {}
func (Nop) RecordAIFallback(string) {}
func (Nop) RecordRateLimited(string) {}
func (Nop) RecordRecommendationsExpired(int64) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ゲートウェイ、フィードローダー、キャッシュ層から利用する。
type MetricsCollector interface {
	RecordRequest(method string, outcome string)
	RecordRequestLatency(duration time.Duration)
	RecordPageFetched(itemCount int)
	RecordDuplicatesDropped(count int)
	RecordCacheHit()
	RecordCacheMiss()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	requests       *prometheus.CounterVec
	requestLatency prometheus.Histogram
	pagesFetched   prometheus.Counter
	itemsFetched   prometheus.Counter
	dupsDropped    prometheus.Counter
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recipeman_requests_total",
			Help: "APIリクエストのメソッド・結果別の合計数",
		}, []string{"method", "outcome"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recipeman_request_latency_seconds",
			Help:    "APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recipeman_pages_fetched_total",
			Help: "取得したフィードページの合計数",
		}),
		itemsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recipeman_items_fetched_total",
			Help: "取得したレシピサマリーの合計数",
		}),
		dupsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recipeman_duplicates_dropped_total",
			Help: "ページマージ時に重複排除されたレシピの合計数",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recipeman_cache_hits_total",
			Help: "ローカルキャッシュヒットの合計数",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recipeman_cache_misses_total",
			Help: "ローカルキャッシュミスの合計数",
		}),
	}

	reg.MustRegister(
		c.requests,
		c.requestLatency,
		c.pagesFetched,
		c.itemsFetched,
		c.dupsDropped,
		c.cacheHits,
		c.cacheMisses,
	)

	return c
}

// RecordRequest はAPIリクエストの結果を記録する。
// outcomeは"ok"または正規化済みエラーのKind文字列。
func (c *Collector) RecordRequest(method string, outcome string) {
	c.requests.WithLabelValues(method, outcome).Inc()
}

// RecordRequestLatency はAPIリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordPageFetched はページ取得1回分を記録する。
func (c *Collector) RecordPageFetched(itemCount int) {
	c.pagesFetched.Inc()
	c.itemsFetched.Add(float64(itemCount))
}

// RecordDuplicatesDropped はマージ時の重複排除数を記録する。
func (c *Collector) RecordDuplicatesDropped(count int) {
	c.dupsDropped.Add(float64(count))
}

// RecordCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit() {
	c.cacheHits.Inc()
}

// RecordCacheMiss はキャッシュミスを記録する。
func (c *Collector) RecordCacheMiss() {
	c.cacheMisses.Inc()
}

// NopCollector は何も記録しないMetricsCollector実装。
// メトリクス公開を行わない単発コマンドで使用する。
type NopCollector struct{}

// RecordRequest は何もしない。
func (NopCollector) RecordRequest(method string, outcome string) {}

// RecordRequestLatency は何もしない。
func (NopCollector) RecordRequestLatency(duration time.Duration) {}

// RecordPageFetched は何もしない。
func (NopCollector) RecordPageFetched(itemCount int) {}

// RecordDuplicatesDropped は何もしない。
func (NopCollector) RecordDuplicatesDropped(count int) {}

// RecordCacheHit は何もしない。
func (NopCollector) RecordCacheHit() {}

// RecordCacheMiss は何もしない。
func (NopCollector) RecordCacheMiss() {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NewRouter は/metricsと/healthzを提供するルーターを返す。
// watchモードでのみ起動される。
func NewRouter(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", Handler(gatherer))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return r
}

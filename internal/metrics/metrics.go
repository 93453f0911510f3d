// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ResultOK は取り込み成功時の結果ラベル。失敗時はエラーコードをラベルにする。
const ResultOK = "OK"

// MetricsCollector はメトリクス収集のインターフェース。
// 取り込みコーディネーターから利用する。
type MetricsCollector interface {
	RecordIngest(site, result string)
	RecordFetchLatency(site string, duration time.Duration)
	RecordDocumentUpserted(collection string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	ingestTotal       *prometheus.CounterVec
	fetchLatency      *prometheus.HistogramVec
	documentsUpserted *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booruvault_ingest_total",
			Help: "サイト・結果別の取り込み数",
		}, []string{"site", "result"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "booruvault_fetch_latency_seconds",
			Help:    "プロバイダーからの投稿取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"site"}),
		documentsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booruvault_documents_upserted_total",
			Help: "コレクション別の保存ドキュメント数",
		}, []string{"collection"}),
	}

	reg.MustRegister(
		c.ingestTotal,
		c.fetchLatency,
		c.documentsUpserted,
	)

	return c
}

// RecordIngest は取り込み結果を記録する。ルーティングに失敗した場合のsiteは空文字列。
func (c *Collector) RecordIngest(site, result string) {
	c.ingestTotal.WithLabelValues(site, result).Inc()
}

// RecordFetchLatency は投稿取得のレイテンシを記録する。
func (c *Collector) RecordFetchLatency(site string, duration time.Duration) {
	c.fetchLatency.WithLabelValues(site).Observe(duration.Seconds())
}

// RecordDocumentUpserted は保存したドキュメントを記録する。
func (c *Collector) RecordDocumentUpserted(collection string) {
	c.documentsUpserted.WithLabelValues(collection).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないMetricsCollector。CLIの単発取り込みで使用する。
type NopCollector struct{}

func (NopCollector) RecordIngest(string, string)              {}
func (NopCollector) RecordFetchLatency(string, time.Duration) {}
func (NopCollector) RecordDocumentUpserted(string)            {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)

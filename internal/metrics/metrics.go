// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 判定エンジン、ゲートウェイ、ポーリングワーカーから利用する。
type MetricsCollector interface {
	RecordDecision(role, kind, outcome string)
	RecordWarning(delivered bool)
	RecordEvictionArmed()
	RecordEviction(outcome string)
	RecordDeliveryFailure(op string)
	RecordGatewayLatency(op string, duration time.Duration)
	RecordUpdatesReceived(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	decisions        *prometheus.CounterVec
	warnings         *prometheus.CounterVec
	evictionsArmed   prometheus.Counter
	evictions        *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
	gatewayLatency   *prometheus.HistogramVec
	updatesReceived  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomguard_decisions_total",
			Help: "ロール・種別・結果別のメッセージ判定数",
		}, []string{"role", "kind", "outcome"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomguard_warnings_total",
			Help: "未登録ユーザーへの警告試行数（delivered/throttled）",
		}, []string{"result"}),
		evictionsArmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomguard_evictions_armed_total",
			Help: "予約された退室処理の合計数",
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomguard_evictions_total",
			Help: "退室処理の実行結果（evicted/cancelled/failed）",
		}, []string{"outcome"}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomguard_delivery_failures_total",
			Help: "ゲートウェイ呼び出し失敗の合計数",
		}, []string{"op"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roomguard_gateway_latency_seconds",
			Help:    "ゲートウェイ呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		updatesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomguard_updates_received_total",
			Help: "受信したアップデートの合計数",
		}),
	}

	reg.MustRegister(
		c.decisions,
		c.warnings,
		c.evictionsArmed,
		c.evictions,
		c.deliveryFailures,
		c.gatewayLatency,
		c.updatesReceived,
	)

	return c
}

// RecordDecision はメッセージ判定の結果を記録する。
func (c *Collector) RecordDecision(role, kind, outcome string) {
	c.decisions.WithLabelValues(role, kind, outcome).Inc()
}

// RecordWarning は警告の試行を記録する。
func (c *Collector) RecordWarning(delivered bool) {
	result := "throttled"
	if delivered {
		result = "delivered"
	}
	c.warnings.WithLabelValues(result).Inc()
}

// RecordEvictionArmed は退室予約を記録する。
func (c *Collector) RecordEvictionArmed() {
	c.evictionsArmed.Inc()
}

// RecordEviction は退室処理の実行結果を記録する。
func (c *Collector) RecordEviction(outcome string) {
	c.evictions.WithLabelValues(outcome).Inc()
}

// RecordDeliveryFailure はゲートウェイ呼び出しの失敗を記録する。
func (c *Collector) RecordDeliveryFailure(op string) {
	c.deliveryFailures.WithLabelValues(op).Inc()
}

// RecordGatewayLatency はゲートウェイ呼び出しのレイテンシを記録する。
func (c *Collector) RecordGatewayLatency(op string, duration time.Duration) {
	c.gatewayLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordUpdatesReceived は受信したアップデート数を記録する。
func (c *Collector) RecordUpdatesReceived(count int) {
	c.updatesReceived.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストや計測不要な構成で使う。
type Nop struct{}

func (Nop) RecordDecision(role, kind, outcome string)              {}
func (Nop) RecordWarning(delivered bool)                           {}
func (Nop) RecordEvictionArmed()                                   {}
func (Nop) RecordEviction(outcome string)                          {}
func (Nop) RecordDeliveryFailure(op string)                        {}
func (Nop) RecordGatewayLatency(op string, duration time.Duration) {}
func (Nop) RecordUpdatesReceived(count int)                        {}

// PendingFunc は現在の値を返す関数をゲージとして登録する。
// 退室予約中の件数のように、保持している側に問い合わせる値に使う。
func PendingFunc(reg prometheus.Registerer, name, help string, fn func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}, func() float64 { return float64(fn()) }))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

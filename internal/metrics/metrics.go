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
// サービス層、ハンドラー、ワーカーから利用する。
type MetricsCollector interface {
	RecordGeneration(mock bool)
	RecordQuotaDenied()
	RecordCompletionFailure(provider string)
	RecordCompletionLatency(provider string, duration time.Duration)
	RecordSettlement(gateway string, applied bool)
	RecordSignatureFailure(gateway string)
	RecordUserMismatch(gateway string)
	RecordSessionClaim()
	RecordSessionRevoked()
	RecordPremiumExpired(count int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	generations       *prometheus.CounterVec
	quotaDenied       prometheus.Counter
	completionFail    *prometheus.CounterVec
	completionLatency *prometheus.HistogramVec
	settlements       *prometheus.CounterVec
	signatureFail     *prometheus.CounterVec
	userMismatch      *prometheus.CounterVec
	sessionClaims     prometheus.Counter
	sessionRevoked    prometheus.Counter
	premiumExpired    prometheus.Counter
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sellerpro_generations_total",
			Help: "成功した商品説明生成の合計数",
		}, []string{"mock"}),
		quotaDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sellerpro_quota_denied_total",
			Help: "無料枠上限により拒否された生成リクエスト数",
		}),
		completionFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sellerpro_completion_fail_total",
			Help: "文章生成サービス呼び出し失敗の合計数",
		}, []string{"provider"}),
		completionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sellerpro_completion_latency_seconds",
			Help:    "文章生成サービスのレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"provider"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sellerpro_settlements_total",
			Help: "検証済み決済の処理数（appliedは新規付与かどうか）",
		}, []string{"gateway", "applied"}),
		signatureFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sellerpro_signature_fail_total",
			Help: "署名検証に失敗したコールバック数",
		}, []string{"gateway"}),
		userMismatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sellerpro_user_mismatch_total",
			Help: "他ユーザーの決済IDによる照会数",
		}, []string{"gateway"}),
		sessionClaims: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sellerpro_session_claims_total",
			Help: "セッション取得の合計数",
		}),
		sessionRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sellerpro_session_revoked_total",
			Help: "無効化されたセッションでのリクエスト数",
		}),
		premiumExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sellerpro_premium_expired_total",
			Help: "失効処理されたプレミアム契約数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sellerpro_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.generations,
		c.quotaDenied,
		c.completionFail,
		c.completionLatency,
		c.settlements,
		c.signatureFail,
		c.userMismatch,
		c.sessionClaims,
		c.sessionRevoked,
		c.premiumExpired,
		c.httpStatus,
	)

	return c
}

// RecordGeneration は生成成功を記録する。
func (c *Collector) RecordGeneration(mock bool) {
	c.generations.WithLabelValues(strconv.FormatBool(mock)).Inc()
}

// RecordQuotaDenied は上限到達による拒否を記録する。
func (c *Collector) RecordQuotaDenied() {
	c.quotaDenied.Inc()
}

// RecordCompletionFailure は生成失敗を記録する。
func (c *Collector) RecordCompletionFailure(provider string) {
	c.completionFail.WithLabelValues(provider).Inc()
}

// RecordCompletionLatency は生成のレイテンシを記録する。
func (c *Collector) RecordCompletionLatency(provider string, duration time.Duration) {
	c.completionLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordSettlement は決済の付与結果を記録する。
func (c *Collector) RecordSettlement(gateway string, applied bool) {
	c.settlements.WithLabelValues(gateway, strconv.FormatBool(applied)).Inc()
}

// RecordSignatureFailure は署名不一致を記録する。
func (c *Collector) RecordSignatureFailure(gateway string) {
	c.signatureFail.WithLabelValues(gateway).Inc()
}

// RecordUserMismatch は決済ユーザー不一致を記録する。
func (c *Collector) RecordUserMismatch(gateway string) {
	c.userMismatch.WithLabelValues(gateway).Inc()
}

// RecordSessionClaim はセッション取得を記録する。
func (c *Collector) RecordSessionClaim() {
	c.sessionClaims.Inc()
}

// RecordSessionRevoked は無効セッションでのアクセスを記録する。
func (c *Collector) RecordSessionRevoked() {
	c.sessionRevoked.Inc()
}

// RecordPremiumExpired は失効件数を記録する。
func (c *Collector) RecordPremiumExpired(count int) {
	c.premiumExpired.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordGeneration(bool) {}
func (Nop) RecordQuotaDenied() {}
func (Nop) RecordCompletionFailure(string) {}
func (Nop) RecordCompletionLatency(string, time.Duration) {}
func (Nop) RecordSettlement(string, bool) {}
func (Nop) RecordSignatureFailure(string) {}
func (Nop) RecordUserMismatch(string) {}
func (Nop) RecordSessionClaim() {}
func (Nop) RecordSessionRevoked() {}
func (Nop) RecordPremiumExpired(int) {}
func (Nop) RecordHTTPStatus(int) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

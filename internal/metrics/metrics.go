// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービスとコメントサービスから利用する。
type MetricsCollector interface {
	RecordLoginSuccess()
	RecordLoginFailure(reason string)
	RecordCommentCreated()
	RecordCommentDeleted(byAdmin bool)
	RecordRateLimited()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginSuccess    prometheus.Counter
	loginFail       *prometheus.CounterVec
	commentsCreated prometheus.Counter
	commentsDeleted *prometheus.CounterVec
	rateLimited     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mangatalk_login_success_total",
			Help: "Telegramログイン成功の合計数",
		}),
		loginFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mangatalk_login_fail_total",
			Help: "Telegramログイン失敗の合計数（原因別）",
		}, []string{"reason"}),
		commentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mangatalk_comments_created_total",
			Help: "作成されたコメントの合計数",
		}),
		commentsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mangatalk_comments_deleted_total",
			Help: "削除されたコメントの合計数（実行者別）",
		}, []string{"actor"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mangatalk_comment_rate_limited_total",
			Help: "レート制限で拒否されたコメント投稿の合計数",
		}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFail,
		c.commentsCreated,
		c.commentsDeleted,
		c.rateLimited,
	)

	return c
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure はログイン失敗を原因付きで記録する。
func (c *Collector) RecordLoginFailure(reason string) {
	c.loginFail.WithLabelValues(reason).Inc()
}

// RecordCommentCreated はコメント作成を記録する。
func (c *Collector) RecordCommentCreated() {
	c.commentsCreated.Inc()
}

// RecordCommentDeleted はコメント削除を実行者（owner/admin）付きで記録する。
func (c *Collector) RecordCommentDeleted(byAdmin bool) {
	actor := "owner"
	if byAdmin {
		actor = "admin"
	}
	c.commentsDeleted.WithLabelValues(actor).Inc()
}

// RecordRateLimited はレート制限による投稿拒否を記録する。
func (c *Collector) RecordRateLimited() {
	c.rateLimited.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

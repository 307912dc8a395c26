package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/mangatalk/internal/metrics"
	"github.com/hitoshi/mangatalk/internal/middleware"
	"github.com/hitoshi/mangatalk/internal/security"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionResolver   middleware.SessionResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// コメント
	CommentService CommentServiceInterface

	// アバタープロキシ
	AvatarGuard        security.AvatarURLGuardService
	AvatarFetchTimeout time.Duration
	AvatarMaxSize      int64

	// 運用
	HealthChecker   HealthChecker
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Session（注釈のみ） → Logging
//
// 書き込み操作の認可判断はサービス層がトークンから直接行うため、
// セッションミドルウェアはリクエストを拒否しない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	commentHandler := NewCommentHandler(deps.CommentService)
	avatarHandler := NewAvatarHandler(deps.AvatarGuard, deps.AvatarFetchTimeout, deps.AvatarMaxSize)

	// 認証ルート
	r.Route("/auth", func(r chi.Router) {
		r.Post("/telegram", authHandler.Login)
		r.Get("/session", authHandler.Session)
		r.Post("/logout", authHandler.Logout)
	})

	// APIルート（一般レート制限を適用）
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/comments", func(r chi.Router) {
			r.Get("/", commentHandler.ListComments)
			r.Post("/", commentHandler.CreateComment)
			r.Delete("/", commentHandler.DeleteComment)
		})

		r.Get("/api/avatar", avatarHandler.GetAvatar)
	})

	// 運用ルート
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))

	return r
}

// NewHealthHandler はDB接続を確認するヘルスチェックハンドラーを返す。
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := checker.PingContext(ctx); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

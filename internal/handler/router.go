package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/roomguard/internal/metrics"
	"github.com/hitoshi/roomguard/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// 運用エンドポイント
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer // nilの場合は/metricsを提供しない

	// 管理API。AdminAPITokenが空の場合は/api/*を提供しない
	AdminAPIToken string
	RateLimiter   *middleware.RateLimiter
	MemberService MemberServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → AdminAuth → RateLimit（変更操作のみ）
//
// /healthと/metricsは認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker).ServeHTTP)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	if deps.AdminAPIToken == "" {
		return r
	}

	// --- 管理API ---
	// ミドルウェアスタック: AdminAuth → RateLimit(変更操作)
	memberHandler := NewMemberHandler(deps.MemberService)
	limited := func(h http.HandlerFunc) http.Handler { return h }
	if deps.RateLimiter != nil {
		limited = func(h http.HandlerFunc) http.Handler { return deps.RateLimiter.Middleware()(h) }
	}

	r.Route("/api/members", func(r chi.Router) {
		r.Use(middleware.NewAdminAuthMiddleware(deps.AdminAPIToken))

		r.Get("/", memberHandler.ListMembers)
		r.Method(http.MethodPost, "/", limited(memberHandler.RegisterMember))

		r.Route("/{id}", func(r chi.Router) {
			r.Method(http.MethodDelete, "/", limited(memberHandler.RemoveMember))
			r.Get("/access", memberHandler.GetAccessState)
		})
	})

	return r
}

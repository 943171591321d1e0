package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/sellerpro/internal/metrics"
	"github.com/hitoshi/sellerpro/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector
	Gatherer          prometheus.Gatherer
	HealthChecker     HealthChecker
	Logger            *slog.Logger

	// 生成
	GenerationService GenerationServiceInterface

	// 決済
	PaymentService PaymentServiceInterface

	// セッション
	SessionService SessionServiceInterface
	SessionEvents  SessionEventSource
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → (Auth|OptionalAuth) → SessionGate → RateLimit
//
// 決済通知（/api/payment/result）はゲートウェイから直接呼ばれるため認証の外に置く。
// セッション取得（/api/session/claim）はセッション検証の対象外。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, mc))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	genHandler := NewGenerationHandler(deps.GenerationService)
	payHandler := NewPaymentHandler(deps.PaymentService, logger)
	sessHandler := NewSessionHandler(deps.SessionService, deps.SessionEvents, deps.CORSAllowedOrigin, logger)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker, logger))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// 決済ゲートウェイからの通知（IP単位のレート制限のみ）
	r.With(deps.RateLimiter.GeneralMiddleware()).Post("/api/payment/result", payHandler.Result)

	// 生成は未ログインでも利用できる（デモモード）
	r.With(
		middleware.NewOptionalAuthMiddleware(deps.TokenVerifier, logger),
		middleware.NewSessionGateMiddleware(deps.SessionService, logger),
		deps.RateLimiter.GenerateMiddleware(),
	).Post("/api/generate", genHandler.Generate)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier, logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/api/session/claim", sessHandler.Claim)

		// 有効セッションを保持する端末のみ
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionGateMiddleware(deps.SessionService, logger))

			r.Get("/api/session/events", sessHandler.Events)
			r.Get("/api/profile", genHandler.Profile)

			r.Route("/api/generations", func(r chi.Router) {
				r.Get("/", genHandler.ListGenerations)
				r.Delete("/{id}", genHandler.DeleteGeneration)
			})

			r.Post("/api/payment/init", payHandler.Init)
			r.Post("/api/payment/check", payHandler.Check)
		})
	})

	return r
}

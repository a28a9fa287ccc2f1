package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/devicehub/internal/auth"
	"github.com/hitoshi/devicehub/internal/metrics"
	"github.com/hitoshi/devicehub/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Verifier          auth.TokenVerifier
	CORSAllowedOrigin string
	RequestTimeout    time.Duration
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Collector         metrics.MetricsCollector

	// 運用エンドポイント
	DB             Pinger
	MetricsHandler http.Handler

	// サービス
	AccountService      AccountServiceInterface
	DeviceService       DeviceServiceInterface
	SubscriptionService SubscriptionServiceInterface
	WebhookReconciler   WebhookReconciler
	Products            ProductLister
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → CORS → SecurityHeaders → Logging → Recovery → Deadline
//	→ (認証が必要なルートのみ) Auth → RateLimit(General)
//
// /health、/metrics、/webhook、/api/auth/register、/api/auth/login、/api/products は認証不要。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Collector))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewDeadlineMiddleware(deps.RequestTimeout))

	authHandler := NewAuthHandler(deps.AccountService)
	deviceHandler := NewDeviceHandler(deps.DeviceService)
	subHandler := NewSubscriptionHandler(deps.SubscriptionService)
	webhookHandler := NewWebhookHandler(deps.WebhookReconciler)
	productHandler := NewProductHandler(deps.Products)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.DB))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// 署名で認証するため、ベアラートークンは要求しない
	r.Post("/webhook", webhookHandler.Receive)

	r.Post("/api/auth/register", authHandler.Register)
	r.Post("/api/auth/login", authHandler.Login)
	r.Get("/api/products", productHandler.List)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Verifier))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}

		r.Get("/api/auth/me", authHandler.Me)

		r.Route("/api/iot", func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.With(deps.RateLimiter.DeviceRegistrationMiddleware()).Post("/register", deviceHandler.Register)
			} else {
				r.Post("/register", deviceHandler.Register)
			}
			r.Get("/my-devices", deviceHandler.MyDevices)
			r.Post("/control", deviceHandler.Control)
			r.Delete("/devices/{deviceId}", deviceHandler.Delete)
		})

		r.Route("/api/subscription", func(r chi.Router) {
			r.Post("/create-checkout", subHandler.CreateCheckout)
			r.Get("/status", subHandler.Status)
		})
	})

	return r
}

package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/reserv/internal/metrics"
	"github.com/hitoshi/reserv/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionFinder     middleware.AuthSessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Collector         metrics.MetricsCollector
	Gatherer          prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 公開RSVP
	RSVPService   RSVPServiceInterface
	SessionReader PublicSessionReader
	ProofUploader ProofUploader
	RSVPConfig    RSVPHandlerConfig

	// ホスト
	SessionService SessionServiceInterface
	PaymentService PaymentServiceInterface
	UserFinder     UserFinder
	CSRFConfig     middleware.CSRFConfig
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → (ルートグループごとの追加)
//
// 公開RSVPルートはIP単位、ホストルートはユーザー単位のレート制限がかかる。
// ホストルートはさらにSession → CSRF検証を通る。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.Collector)
	rsvpHandler := NewRSVPHandler(deps.RSVPService, deps.SessionReader, deps.ProofUploader, deps.AuthService, deps.RSVPConfig)
	sessionHandler := NewSessionHandler(deps.SessionService, deps.UserFinder)
	paymentHandler := NewPaymentHandler(deps.PaymentService)

	// --- 運用エンドポイント ---

	r.Get("/health", healthCheck)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 認証ルート（OAuthフロー） ---

	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.Post("/signout", authHandler.SignOut)
		r.Get("/me", authHandler.Me)
	})

	// CSRFトークン取得（Cookie認証のホストAPI向け）
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 公開RSVPルート（認証不要、IP単位レート制限） ---

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.PublicMiddleware())

		r.Route("/api/sessions/{code}", func(r chi.Router) {
			r.Get("/", rsvpHandler.GetSession)
			r.Post("/join", rsvpHandler.Join)
			r.Post("/decline", rsvpHandler.Decline)
			r.Get("/rsvp", rsvpHandler.Status)
			r.Get("/participants", rsvpHandler.Participants)
			r.Post("/payments", rsvpHandler.UploadPayment)
		})
	})

	// --- ホストルート（認証必須、ユーザー単位レート制限） ---

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.HostMiddleware())

		r.Route("/api/host/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)
			r.Get("/", sessionHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Patch("/", sessionHandler.Update)
				r.Post("/publish", sessionHandler.Publish)
				r.Post("/close", sessionHandler.Close)
				r.Post("/cancel", sessionHandler.Cancel)
				r.Get("/participants", sessionHandler.Participants)
				r.Get("/payments", paymentHandler.ListBySession)
			})
		})

		r.Patch("/api/host/payments/{id}", paymentHandler.Review)
		r.Post("/api/payments/{id}/scan", paymentHandler.Scan)
	})

	return r
}

// healthCheck は死活監視エンドポイント。
// GET /health
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

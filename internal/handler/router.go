// Package handler はHTTPエンドポイントのルーティングとハンドラーを提供する。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/booruvault/internal/ingest"
	"github.com/hitoshi/booruvault/internal/metrics"
	"github.com/hitoshi/booruvault/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Ingester      ingest.Ingester
	HealthChecker HealthChecker
	RateLimiter   *middleware.RateLimiter
	Gatherer      prometheus.Gatherer
	Logger        *slog.Logger
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders
//
// 取り込みエンドポイントのみクライアントIP単位のレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	healthHandler := NewHealthHandler(deps.HealthChecker, deps.Logger)
	ingestHandler := NewIngestHandler(deps.Ingester, deps.Logger)

	r.Get("/health", healthHandler.Health)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.With(deps.RateLimiter.Middleware()).Post("/ingest", ingestHandler.Ingest)
		} else {
			r.Post("/ingest", ingestHandler.Ingest)
		}
	})

	return r
}

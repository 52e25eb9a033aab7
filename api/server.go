/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging through zap
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/units/{unitID}/*   Payments, bills, credit, water, dues
  /api/transactions/*     Lookup and compensating deletion
  /api/accounts/*         Receiving accounts
  /api/audit              Audit log queries
  /api/admin/*            Manual refresh
  /api/scenarios/*        Demo scenarios
  /metrics                Prometheus
  /health                 Liveness

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)
	if h.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/units/{unitID}", func(r chi.Router) {
			r.Post("/payments/preview", h.PreviewPayment)
			r.Post("/payments", h.RecordPayment)
			r.Get("/bills", h.ListBills)
			r.Get("/balance", h.GetBalance)
			r.Get("/credit", h.GetCredit)
			r.Get("/transactions", h.ListTransactions)
			r.Get("/aggregates", h.GetAggregates)

			// Water
			r.Post("/readings", h.GenerateBill)
			r.Post("/penalties/recalculate", h.RecalculatePenalties)

			// Dues
			r.Route("/dues/{fiscalYear}", func(r chi.Router) {
				r.Put("/", h.ScheduleDues)
				r.Get("/", h.GetDuesStatus)
				r.Post("/payments", h.RecordDuesPayment)
			})
		})

		// Transaction routes
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/{id}", h.GetTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", h.SaveAccount)
			r.Get("/{id}", h.GetAccount)
		})

		r.Get("/audit", h.QueryAudit)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/refresh", h.TriggerRefresh)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// requestLogger logs one line per request.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			switch {
			case status >= 500:
				log.Error("request", fields...)
			case status >= 400:
				log.Warn("request", fields...)
			default:
				log.Debug("request", fields...)
			}
		})
	}
}

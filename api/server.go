/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RealIP:        Client IP from proxy headers
  3. RequestLogger: Structured JSON request logs (httplog over slog)
  4. Recoverer:     Panic recovery (500 instead of crash)
  5. CORS:          Cross-origin requests for frontend

ROUTE GROUPS:
  /api/arrears/*     Arrears ledger operations
  /api/employees/*   Per-employee settlement views
  /api/bonus/*       Bonus computation
  /api/attendance/*  Timestamp normalization
  /api/reports/*     Read-only projections

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	logFormat := httplog.SchemaECS.Concise(false)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "payroll-engine"),
	)

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelInfo,
		Schema: httplog.SchemaECS,
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID", "X-Workspace"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Arrears ledger
		r.Route("/arrears", func(r chi.Router) {
			r.Get("/", h.ListArrears)
			r.Post("/", h.CreateArrear)
			r.Get("/{id}", h.GetArrear)
			r.Post("/{id}/approve", h.ApproveArrear)
			r.Post("/{id}/reject", h.RejectArrear)
			r.Post("/{id}/settle", h.SettleArrear)
			r.Post("/{id}/split", h.SplitArrear)
		})

		// Per-employee settlement views
		r.Route("/employees/{id}/arrears", func(r chi.Router) {
			r.Get("/pending", h.ListPendingArrears)
			r.Post("/settle", h.SettleForEmployee)
		})

		// Bonus computation
		r.Post("/bonus/compute", h.ComputeBonus)

		// Attendance helpers
		r.Post("/attendance/normalize", h.NormalizeTimestamps)
		r.Post("/attendance/aggregate", h.AggregateAttendance)

		// Reports
		r.Get("/reports/outstanding", h.DepartmentOutstanding)
	})

	return r
}

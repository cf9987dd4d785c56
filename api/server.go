/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in access logs
  2. RealIP:     Client address from X-Forwarded-For / X-Real-IP
  3. Logger:     zap access log (method, path, status, bytes, duration)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for a browser frontend

ROUTE GROUPS:
  /healthz, /readyz      Liveness and store readiness
  /api/faculty/*         Faculty, balances, journal, submission, inbox
  /api/applications/*    Approver inbox and actions
  /api/notifications/*   Read receipts
  /api/holidays/*        Holiday calendar
  /api/admin/*           Lapse runs and casual cycles
  /api/reports/*         Spreadsheet exports

SECURITY NOTE:
  No authentication middleware. The acting user comes from X-User-ID.

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
	"go.uber.org/zap"
)

// RouterOptions tunes NewRouter.
type RouterOptions struct {
	AllowOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", UserHeader},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	r.Route("/api", func(r chi.Router) {
		r.Route("/faculty", func(r chi.Router) {
			r.Post("/", h.CreateFaculty)
			r.Get("/{id}", h.GetFaculty)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/journal", h.GetJournal)
			r.Get("/{id}/applications", h.ListFacultyApplications)
			r.Post("/{id}/applications", h.SubmitApplication)
			r.Get("/{id}/notifications", h.ListNotifications)
		})

		r.Route("/applications", func(r chi.Router) {
			r.Get("/", h.ListInbox)
			r.Get("/{id}", h.GetApplication)
			r.Post("/{id}/actions", h.ActOnApplication)
			r.Put("/{id}/adjustments", h.ReplaceAdjustments)
		})

		r.Post("/notifications/{id}/read", h.MarkNotificationRead)

		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
			r.Post("/import", h.ImportHolidays)
			r.Delete("/{id}", h.DeleteHoliday)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/lapse", h.RunLapse)
			r.Get("/lapse/runs", h.ListLapseRuns)
			r.Post("/cycles", h.OpenCycle)
		})

		r.Get("/reports/balances.xlsx", h.ExportBalances)
	})

	return r
}

// requestLogger writes one zap line per request.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("remote", r.RemoteAddr),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				}
				if actor := r.Header.Get(UserHeader); actor != "" {
					fields = append(fields, zap.String("actor", actor))
				}
				switch {
				case ww.Status() >= http.StatusInternalServerError:
					logger.Error("request", fields...)
				case ww.Status() >= http.StatusBadRequest:
					logger.Warn("request", fields...)
				default:
					logger.Info("request", fields...)
				}
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

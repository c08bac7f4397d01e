package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	mw "github.com/kiranshivaraju/booktrans/internal/api/middleware"
	"github.com/kiranshivaraju/booktrans/internal/api/handler"
	"github.com/kiranshivaraju/booktrans/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
// A nil Auth leaves the API open; a nil RateLimit disables throttling.
// Empty CORSOrigins sends no CORS headers.
type Dependencies struct {
	Auth        *mw.Auth
	RateLimit   *mw.RateLimit
	CORSOrigins []string

	HealthHandler    http.HandlerFunc
	TranslateHandler http.HandlerFunc
	UploadHandler    http.HandlerFunc
	StatusHandler    http.HandlerFunc
	DownloadHandler  http.HandlerFunc
	CancelHandler    http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware. CORS runs first so preflights never reach auth.
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
			ExposedHeaders:   []string{"Content-Disposition", "X-Request-Id", "X-Process-Time", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.NotFound(handler.NotFound)

	// Public
	r.Get("/", handler.Info)
	r.Get("/api/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		if deps.Auth != nil {
			r.Use(deps.Auth.Authenticate)
		}

		// Status polling runs for the whole life of a job, so it is not throttled.
		r.Get("/api/translation/status/{jobID}", orNotImplemented(deps.StatusHandler))

		r.Group(func(r chi.Router) {
			if deps.RateLimit != nil {
				r.Use(deps.RateLimit.Limit)
			}
			r.Post("/api/translation/translate", orNotImplemented(deps.TranslateHandler))
			r.Post("/api/upload/pdf", orNotImplemented(deps.UploadHandler))
			r.Get("/api/translation/download/{jobID}", orNotImplemented(deps.DownloadHandler))
			r.Post("/api/translation/cancel/{jobID}", orNotImplemented(deps.CancelHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}

package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/booktrans/internal/api/response"
)

// Version is reported by the info endpoint.
var Version = "1.0.0"

// Endpoints lists the public routes for the info and not-found responses.
var Endpoints = map[string]string{
	"info":      "GET /",
	"health":    "GET /api/health",
	"translate": "POST /api/translation/translate",
	"upload":    "POST /api/upload/pdf",
	"status":    "GET /api/translation/status/{job_id}",
	"download":  "GET /api/translation/download/{job_id}",
	"cancel":    "POST /api/translation/cancel/{job_id}",
}

// Info handles GET /.
func Info(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, map[string]any{
		"name":      "booktrans",
		"version":   Version,
		"status":    "running",
		"endpoints": Endpoints,
	})
}

// NotFound answers unknown routes with the list of valid ones.
func NotFound(w http.ResponseWriter, r *http.Request) {
	response.Error(w, http.StatusNotFound, "NOT_FOUND",
		"No route for "+r.Method+" "+r.URL.Path, map[string]any{"endpoints": Endpoints})
}

// Pinger is anything with a connectivity check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler reports store and cache connectivity.
func NewHealthHandler(s, c Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"version":  Version,
			"services": checks,
		})
	}
}

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/booktrans/internal/ai"
	"github.com/kiranshivaraju/booktrans/internal/ai/mock"
	"github.com/kiranshivaraju/booktrans/internal/api"
	"github.com/kiranshivaraju/booktrans/internal/api/handler"
	mw "github.com/kiranshivaraju/booktrans/internal/api/middleware"
	"github.com/kiranshivaraju/booktrans/internal/cache"
	"github.com/kiranshivaraju/booktrans/internal/extract"
	"github.com/kiranshivaraju/booktrans/internal/render"
	"github.com/kiranshivaraju/booktrans/internal/store"
	"github.com/kiranshivaraju/booktrans/internal/translation"
	"github.com/kiranshivaraju/booktrans/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testRawKey = "bt_router_key_1234567890"

// newTestRouter wires the real stack with the mock provider.
func newTestRouter(t *testing.T, keyHash string) http.Handler {
	t.Helper()
	return newTestRouterWith(t, keyHash, 1000, []string{"*"})
}

func newTestRouterWith(t *testing.T, keyHash string, perMinute int, origins []string) http.Handler {
	t.Helper()
	st := store.NewMemoryStore()
	ca := cache.NewMemoryCache()
	svc := translation.NewService(st,
		ai.NewClient(mock.NewMockProvider(), ai.WithCache(ca, time.Hour)),
		render.NewFileRenderer(t.TempDir(), render.DefaultLayout()),
		worker.NewPool(2, 8),
		translation.Options{})
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	return api.NewRouter(api.Dependencies{
		Auth:             mw.NewAuth(keyHash),
		RateLimit:        mw.NewRateLimit(ca, perMinute),
		CORSOrigins:      origins,
		HealthHandler:    handler.NewHealthHandler(st, ca),
		TranslateHandler: handler.NewTranslateHandler(svc, 1<<20),
		UploadHandler:    handler.NewUploadPDFHandler(svc, extract.NewPDFExtractor(), 1<<20),
		StatusHandler:    handler.NewStatusHandler(svc),
		DownloadHandler:  handler.NewDownloadHandler(svc),
		CancelHandler:    handler.NewCancelHandler(svc),
	})
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "no data in %s", w.Body.String())
	return data
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "no error in %s", w.Body.String())
	return errObj
}

func TestRouter_HealthAndInfo_Public(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte(testRawKey), bcrypt.MinCost)
	require.NoError(t, err)
	router := newTestRouter(t, string(hash))

	for path, want := range map[string]string{"/": "running", "/api/health": "ok"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, want, decodeData(t, w)["status"], path)
	}
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte(testRawKey), bcrypt.MinCost)
	require.NoError(t, err)
	router := newTestRouter(t, string(hash))

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/translation/translate"},
		{"POST", "/api/upload/pdf"},
		{"GET", "/api/translation/status/dddddddd-dddd-dddd-dddd-dddddddddddd"},
		{"GET", "/api/translation/download/dddddddd-dddd-dddd-dddd-dddddddddddd"},
		{"POST", "/api/translation/cancel/dddddddd-dddd-dddd-dddd-dddddddddddd"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(ep.method, ep.path, nil))

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "INVALID_TOKEN", decodeError(t, w)["code"])
		})
	}
}

func TestRouter_NotFoundListsEndpoints(t *testing.T) {
	router := newTestRouter(t, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/nonexistent", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	errObj := decodeError(t, w)
	assert.Equal(t, "NOT_FOUND", errObj["code"])
	endpoints := errObj["details"].(map[string]any)["endpoints"].(map[string]any)
	assert.Equal(t, "POST /api/translation/translate", endpoints["translate"])
}

// TestRouter_TranslateLifecycle drives a job from submission to download.
func TestRouter_TranslateLifecycle(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte(testRawKey), bcrypt.MinCost)
	require.NoError(t, err)
	router := newTestRouter(t, string(hash))

	do := func(method, path string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+testRawKey)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	body, _ := json.Marshal(map[string]any{
		"chapters": []map[string]any{
			{"id": 1, "content": "Hello."},
			{"id": 2, "content": "World."},
			{"id": 3, "content": "End."},
		},
		"target_language": "Spanish",
	})
	w := do("POST", "/api/translation/translate?output_format=pdf", body)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	data := decodeData(t, w)
	jobID := data["job_id"].(string)
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, "/api/translation/status/"+jobID, data["status_url"])

	var status map[string]any
	require.Eventually(t, func() bool {
		w := do("GET", "/api/translation/status/"+jobID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		status = decodeData(t, w)
		return status["status"] == "completed" || status["status"] == "failed"
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, "completed", status["status"], status)
	assert.Equal(t, 1.0, status["progress"])
	assert.Equal(t, float64(3), status["current_chapter"])
	assert.Equal(t, float64(3), status["total_chapters"])
	assert.Equal(t, "pdf", status["output_format"])
	assert.Equal(t, "/api/translation/download/"+jobID, status["download_url"])

	w = do("GET", "/api/translation/download/"+jobID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))

	w = do("POST", "/api/translation/cancel/"+jobID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "JOB_FINISHED", decodeError(t, w)["code"])
}

func TestRouter_ValidationError(t *testing.T) {
	router := newTestRouter(t, "")

	body, _ := json.Marshal(map[string]any{"chapters": []any{}, "target_language": "Spanish"})
	req := httptest.NewRequest("POST", "/api/translation/translate", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	errObj := decodeError(t, w)
	assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
	assert.Contains(t, errObj["details"], "chapters")
}

func TestRouter_UnknownJob(t *testing.T) {
	router := newTestRouter(t, "")

	for _, path := range []string{
		"/api/translation/status/dddddddd-dddd-dddd-dddd-dddddddddddd",
		"/api/translation/download/dddddddd-dddd-dddd-dddd-dddddddddddd",
		"/api/translation/status/not-a-uuid",
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, "JOB_NOT_FOUND", decodeError(t, w)["code"], path)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte(testRawKey), bcrypt.MinCost)
	require.NoError(t, err)
	router := newTestRouterWith(t, string(hash), 1000, []string{"http://localhost:3000"})

	preflight := func(origin string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodOptions, "/api/translation/translate", nil)
		r.Header.Set("Origin", origin)
		r.Header.Set("Access-Control-Request-Method", "POST")
		r.Header.Set("Access-Control-Request-Headers", "Content-Type, Authorization")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		return w
	}

	w := preflight("http://localhost:3000")
	assert.Less(t, w.Code, 300, "preflight never reaches auth")
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")

	w = preflight("http://evil.test")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_CORSWildcard(t *testing.T) {
	router := newTestRouter(t, "")

	r := httptest.NewRequest(http.MethodOptions, "/api/upload/pdf", nil)
	r.Header.Set("Origin", "http://frontend.test")
	r.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Less(t, w.Code, 300)
	assert.Contains(t, []string{"*", "http://frontend.test"}, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_CORSDisabled(t *testing.T) {
	router := newTestRouterWith(t, "", 1000, nil)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_StatusPollingNotThrottled(t *testing.T) {
	router := newTestRouterWith(t, "", 1, nil)
	statusPath := "/api/translation/status/dddddddd-dddd-dddd-dddd-dddddddddddd"

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, statusPath, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, "poll %d", i)
	}

	submit := func() int {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/translation/translate",
			bytes.NewBufferString(`{}`)))
		return w.Code
	}
	assert.Equal(t, http.StatusBadRequest, submit())
	assert.Equal(t, http.StatusTooManyRequests, submit(), "other routes keep the per-client budget")
}

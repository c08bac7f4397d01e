// Package handler implements the HTTP handlers for the translation API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/booktrans/internal/api/response"
	"github.com/kiranshivaraju/booktrans/internal/store"
	"github.com/kiranshivaraju/booktrans/internal/translation"
	"github.com/kiranshivaraju/booktrans/pkg/models"
)

// TranslationService defines the job operations the handlers depend on.
type TranslationService interface {
	Submit(ctx context.Context, p translation.SubmitParams) (*models.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

type translateRequest struct {
	Chapters       []models.Chapter `json:"chapters"`
	TargetLanguage string           `json:"target_language"`
	OutputFormat   string           `json:"output_format"`
}

type submitResponse struct {
	JobID             uuid.UUID        `json:"job_id"`
	Status            models.JobStatus `json:"status"`
	StatusURL         string           `json:"status_url"`
	ChaptersExtracted int              `json:"chapters_extracted,omitempty"`
}

type jobStatusResponse struct {
	JobID          uuid.UUID           `json:"job_id"`
	Status         models.JobStatus    `json:"status"`
	Progress       float64             `json:"progress"`
	CurrentChapter int                 `json:"current_chapter"`
	TotalChapters  int                 `json:"total_chapters"`
	Message        string              `json:"message"`
	Error          *string             `json:"error,omitempty"`
	TargetLanguage string              `json:"target_language"`
	OutputFormat   models.OutputFormat `json:"output_format"`
	DownloadURL    string              `json:"download_url,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func statusURL(id uuid.UUID) string   { return "/api/translation/status/" + id.String() }
func downloadURL(id uuid.UUID) string { return "/api/translation/download/" + id.String() }

func newStatusResponse(j *models.Job) jobStatusResponse {
	resp := jobStatusResponse{
		JobID:          j.ID,
		Status:         j.Status,
		Progress:       j.Progress,
		CurrentChapter: j.CurrentChapter,
		TotalChapters:  j.TotalChapters,
		Message:        j.Message,
		Error:          j.ErrorMessage,
		TargetLanguage: j.TargetLanguage,
		OutputFormat:   j.OutputFormat,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
	if j.Status == models.JobStatusCompleted {
		resp.DownloadURL = downloadURL(j.ID)
	}
	return resp
}

// NewTranslateHandler returns an http.HandlerFunc for POST /api/translation/translate.
// output_format may also come from the query string; the body wins.
func NewTranslateHandler(svc TranslationService, maxBodyBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

		var req translateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
					fmt.Sprintf("Request body exceeds %d bytes", maxBodyBytes), nil)
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.OutputFormat == "" {
			req.OutputFormat = r.URL.Query().Get("output_format")
		}

		job, err := svc.Submit(r.Context(), translation.SubmitParams{
			Chapters:       req.Chapters,
			TargetLanguage: req.TargetLanguage,
			OutputFormat:   req.OutputFormat,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		response.Accepted(w, submitResponse{
			JobID:     job.ID,
			Status:    job.Status,
			StatusURL: statusURL(job.ID),
		})
	}
}

// NewStatusHandler returns an http.HandlerFunc for GET /api/translation/status/{jobID}.
func NewStatusHandler(svc TranslationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}
		job, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.JSON(w, newStatusResponse(job))
	}
}

// NewCancelHandler returns an http.HandlerFunc for POST /api/translation/cancel/{jobID}.
func NewCancelHandler(svc TranslationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}
		job, err := svc.Cancel(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.JSON(w, newStatusResponse(job))
	}
}

// NewDownloadHandler returns an http.HandlerFunc for GET /api/translation/download/{jobID}.
func NewDownloadHandler(svc TranslationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}
		job, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if job.Status != models.JobStatusCompleted {
			response.Error(w, http.StatusConflict, "JOB_NOT_READY",
				fmt.Sprintf("Job is %s; download is available once it completes", job.Status),
				map[string]any{"status": job.Status, "progress": job.Progress})
			return
		}
		if job.OutputPath == nil {
			response.Error(w, http.StatusNotFound, "FILE_NOT_FOUND", "Output file not found", nil)
			return
		}

		f, err := os.Open(*job.OutputPath)
		if err != nil {
			slog.Warn("output file unavailable", "job_id", id, "path", *job.OutputPath, "error", err)
			response.Error(w, http.StatusNotFound, "FILE_NOT_FOUND", "Output file not found", nil)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		name := "translated_" + id.String() + filepath.Ext(*job.OutputPath)
		w.Header().Set("Content-Type", job.OutputFormat.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		http.ServeContent(w, r, name, info.ModTime(), f)
	}
}

// jobIDParam parses {jobID}. Malformed ids cannot name a job, so they get
// the same 404 as unknown ones.
func jobIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	var verr *translation.ValidationError
	switch {
	case errors.As(err, &verr):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error(),
			map[string]string{verr.Field: verr.Message})
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
	case errors.Is(err, store.ErrTerminal):
		response.Error(w, http.StatusConflict, "JOB_FINISHED", "Job has already finished", nil)
	case errors.Is(err, translation.ErrUnavailable):
		response.Error(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
			"Server is busy, try again later", nil)
	default:
		slog.Error("translation request failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}

// drain discards what is left of a request body so the connection can be reused.
func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 1<<20))
}

// Package translation runs translation jobs: it validates submissions,
// drives chapters through the translation client and hands the result to
// the renderer.
package translation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/booktrans/internal/ai"
	"github.com/kiranshivaraju/booktrans/internal/chunker"
	"github.com/kiranshivaraju/booktrans/internal/render"
	"github.com/kiranshivaraju/booktrans/internal/store"
	"github.com/kiranshivaraju/booktrans/internal/worker"
	"github.com/kiranshivaraju/booktrans/pkg/models"
)

// ErrUnavailable is returned when the service cannot take more work.
var ErrUnavailable = errors.New("translation service unavailable")

const cancelledMessage = "cancelled by client"

// ValidationError reports a rejected submission. No job is created.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ChunkTranslator translates one chunk. *ai.Client satisfies it.
type ChunkTranslator interface {
	Translate(ctx context.Context, text, targetLanguage string, notify ai.Notifier) (string, error)
}

// Options tunes job execution.
type Options struct {
	ChunkSize          int
	ChapterConcurrency int
	MaxChapters        int
}

// SubmitParams is the client request, before validation.
type SubmitParams struct {
	Chapters       []models.Chapter
	TargetLanguage string
	OutputFormat   string
}

// Service owns the job lifecycle. It is safe for concurrent use.
type Service struct {
	store      store.Store
	translator ChunkTranslator
	renderer   render.Renderer
	dispatcher worker.Dispatcher
	opts       Options

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
	closed  atomic.Bool
}

func NewService(st store.Store, tr ChunkTranslator, rd render.Renderer, d worker.Dispatcher, opts Options) *Service {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunker.DefaultSize
	}
	if opts.ChapterConcurrency < 1 {
		opts.ChapterConcurrency = 1
	}
	if opts.MaxChapters < 1 {
		opts.MaxChapters = 100
	}
	return &Service{
		store:      st,
		translator: tr,
		renderer:   rd,
		dispatcher: d,
		opts:       opts,
		running:    make(map[uuid.UUID]context.CancelFunc),
	}
}

// Submit validates p, stores a pending job and queues it. It returns as soon
// as the job is queued.
func (s *Service) Submit(ctx context.Context, p SubmitParams) (*models.Job, error) {
	if s.closed.Load() {
		return nil, ErrUnavailable
	}
	spec, err := s.validate(p)
	if err != nil {
		return nil, err
	}

	job, err := s.store.CreateJob(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	id := job.ID
	if err := s.dispatcher.Submit(func(ctx context.Context) { s.run(ctx, id) }); err != nil {
		slog.Warn("job rejected by dispatcher", "job_id", id, "error", err)
		s.fail(id, fmt.Sprintf("job could not be scheduled: %v", err))
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	slog.Info("translation job queued", "job_id", id, "chapters", job.TotalChapters,
		"target_language", job.TargetLanguage, "output_format", job.OutputFormat)
	return job, nil
}

func (s *Service) validate(p SubmitParams) (models.JobSpec, error) {
	lang := strings.TrimSpace(p.TargetLanguage)
	if lang == "" {
		return models.JobSpec{}, &ValidationError{Field: "target_language", Message: "is required"}
	}
	format, ok := models.ParseOutputFormat(strings.ToLower(strings.TrimSpace(p.OutputFormat)))
	if !ok {
		return models.JobSpec{}, &ValidationError{Field: "output_format", Message: "must be docx or pdf"}
	}
	if len(p.Chapters) == 0 {
		return models.JobSpec{}, &ValidationError{Field: "chapters", Message: "at least one chapter is required"}
	}
	if len(p.Chapters) > s.opts.MaxChapters {
		return models.JobSpec{}, &ValidationError{
			Field:   "chapters",
			Message: fmt.Sprintf("at most %d chapters are allowed, got %d", s.opts.MaxChapters, len(p.Chapters)),
		}
	}

	seen := make(map[int]struct{}, len(p.Chapters))
	for _, ch := range p.Chapters {
		if _, dup := seen[ch.ID]; dup {
			return models.JobSpec{}, &ValidationError{Field: "chapters", Message: fmt.Sprintf("duplicate chapter id %d", ch.ID)}
		}
		seen[ch.ID] = struct{}{}
		if strings.TrimSpace(ch.Content) == "" {
			return models.JobSpec{}, &ValidationError{Field: "chapters", Message: fmt.Sprintf("chapter %d has no content", ch.ID)}
		}
	}

	return models.JobSpec{
		Chapters:       slices.Clone(p.Chapters),
		TargetLanguage: lang,
		OutputFormat:   format,
	}, nil
}

// Get returns the current job snapshot. Unknown ids yield store.ErrNotFound.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.store.GetJob(ctx, id)
}

// Cancel marks a job failed and stops its run. Provider calls already in
// flight may finish; their results are discarded. Finished jobs yield
// store.ErrTerminal.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := s.store.UpdateJob(ctx, id,
		store.WithStatus(models.JobStatusFailed),
		store.WithErrorMessage(cancelledMessage),
		store.WithMessage("Job cancelled"))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	cancel := s.running[id]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	slog.Info("translation job cancelled", "job_id", id)
	return job, nil
}

// Shutdown stops accepting jobs, interrupts running ones and waits for the
// dispatcher to drain or ctx to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	s.closed.Store(true)
	return s.dispatcher.Shutdown(ctx)
}

func (s *Service) track(id uuid.UUID, cancel context.CancelFunc) {
	s.mu.Lock()
	s.running[id] = cancel
	s.mu.Unlock()
}

func (s *Service) untrack(id uuid.UUID) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}

// fail records a terminal failure. A job already finished (e.g. cancelled)
// is left alone.
func (s *Service) fail(id uuid.UUID, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s.store.UpdateJob(ctx, id,
		store.WithStatus(models.JobStatusFailed),
		store.WithErrorMessage(msg),
		store.WithMessage("Translation failed"))
	switch {
	case err == nil:
		slog.Error("translation job failed", "job_id", id, "error", msg)
	case errors.Is(err, store.ErrTerminal):
	default:
		slog.Error("failed to record job failure", "job_id", id, "error", err)
	}
}

package translation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/booktrans/internal/ai"
	"github.com/kiranshivaraju/booktrans/internal/chunker"
	"github.com/kiranshivaraju/booktrans/internal/render"
	"github.com/kiranshivaraju/booktrans/internal/store"
	"github.com/kiranshivaraju/booktrans/pkg/models"
	"golang.org/x/sync/errgroup"
)

// run executes one job to completion or failure. It recovers panics and
// always leaves the job terminal unless it was already.
func (s *Service) run(ctx context.Context, id uuid.UUID) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in translation run", "job_id", id, "error", r)
			s.fail(id, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		s.fail(id, "server shut down before the job started")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.track(id, cancel)
	defer s.untrack(id)

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		slog.Error("load job for run", "job_id", id, "error", err)
		s.fail(id, fmt.Sprintf("load job: %v", err))
		return
	}
	if job.Status != models.JobStatusPending {
		return
	}

	total := len(job.Chapters)
	job, err = s.store.UpdateJob(ctx, id,
		store.WithStatus(models.JobStatusTranslating),
		store.WithCurrentChapter(1),
		store.WithMessage(fmt.Sprintf("Translating chapter 1 of %d", total)))
	if err != nil {
		if !errors.Is(err, store.ErrTerminal) {
			s.fail(id, fmt.Sprintf("start job: %v", err))
		}
		return
	}

	started := time.Now()
	slog.Info("translation job started", "job_id", id, "chapters", total)

	translated, err := s.translateAll(ctx, job)
	if err != nil {
		s.fail(id, failureMessage(ctx, err))
		return
	}

	path, err := s.renderer.Render(ctx, job.OutputFormat, render.Book{
		JobID:    id,
		Language: job.TargetLanguage,
		Chapters: translated,
	})
	if err != nil {
		s.fail(id, failureMessage(ctx, fmt.Errorf("render document: %w", err)))
		return
	}

	_, err = s.store.UpdateJob(context.WithoutCancel(ctx), id,
		store.WithStatus(models.JobStatusCompleted),
		store.WithOutputPath(path),
		store.WithMessage("Translation completed"))
	if err != nil {
		// Cancelled while rendering: the job is failed, so its document goes.
		_ = os.Remove(path)
		if !errors.Is(err, store.ErrTerminal) {
			s.fail(id, fmt.Sprintf("record completion: %v", err))
		}
		return
	}

	slog.Info("translation job completed", "job_id", id, "path", path,
		"duration_ms", time.Since(started).Milliseconds())
}

// translateAll translates every chapter and returns them in ascending ID
// order. Chapters run up to ChapterConcurrency at a time; results are
// placed by index so completion order never matters.
func (s *Service) translateAll(ctx context.Context, job *models.Job) ([]models.Chapter, error) {
	chapters := slices.Clone(job.Chapters)
	slices.SortStableFunc(chapters, func(a, b models.Chapter) int { return a.ID - b.ID })

	total := len(chapters)
	out := make([]models.Chapter, total)
	tracker := &progressTracker{svc: s, jobID: job.ID, total: total}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.ChapterConcurrency)
	for i, ch := range chapters {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text, err := s.translateChapter(gctx, job, ch)
			if err != nil {
				return fmt.Errorf("chapter %d: %w", ch.ID, err)
			}
			out[i] = models.Chapter{ID: ch.ID, Content: text}
			tracker.chapterDone(gctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// translateChapter translates chunks sequentially and reassembles them with
// each chunk's surrounding whitespace intact.
func (s *Service) translateChapter(ctx context.Context, job *models.Job, ch models.Chapter) (string, error) {
	notify := func(n ai.RetryNotice) {
		msg := retryMessage(ch.ID, n)
		slog.Warn("translation retry scheduled", "job_id", job.ID, "chapter_id", ch.ID,
			"attempt", n.Attempt, "wait_ms", n.Wait.Milliseconds(), "rate_limited", n.RateLimited, "error", n.Err)
		if _, err := s.store.UpdateJob(ctx, job.ID, store.WithMessage(msg)); err != nil && !errors.Is(err, store.ErrTerminal) {
			slog.Warn("update retry message", "job_id", job.ID, "error", err)
		}
	}

	var b strings.Builder
	for chunk := range chunker.Split(ch.Content, s.opts.ChunkSize) {
		core := strings.TrimSpace(chunk)
		if core == "" {
			b.WriteString(chunk)
			continue
		}
		start := strings.Index(chunk, core)
		res, err := s.translator.Translate(ctx, core, job.TargetLanguage, notify)
		if err != nil {
			return "", err
		}
		b.WriteString(chunk[:start])
		b.WriteString(strings.TrimSpace(res))
		b.WriteString(chunk[start+len(core):])
	}
	return b.String(), nil
}

// progressTracker publishes per-chapter progress. Updates are serialized so
// the stored values only ever grow.
type progressTracker struct {
	svc   *Service
	jobID uuid.UUID
	total int

	mu   sync.Mutex
	done int
}

func (t *progressTracker) chapterDone(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.done++
	opts := []store.JobUpdateOption{
		store.WithCurrentChapter(min(t.done+1, t.total)),
		store.WithMessage(fmt.Sprintf("Translated chapter %d of %d", t.done, t.total)),
	}
	// Reaching 1.0 belongs to completion, after the document exists.
	if t.done < t.total {
		opts = append(opts, store.WithProgress(float64(t.done)/float64(t.total)))
	}

	_, err := t.svc.store.UpdateJob(ctx, t.jobID, opts...)
	switch {
	case err == nil:
		slog.Info("chapter translated", "job_id", t.jobID, "completed", t.done, "total", t.total)
	case errors.Is(err, store.ErrTerminal):
		// Cancelled meanwhile; the run notices through its context.
	default:
		slog.Warn("update job progress", "job_id", t.jobID, "error", err)
	}
}

// failureMessage describes why a job stopped, for clients polling status.
func failureMessage(ctx context.Context, err error) string {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return "translation interrupted: server shutting down"
	}
	switch {
	case errors.Is(err, ai.ErrRetriesExhausted) && errors.Is(err, ai.ErrRateLimited):
		return "translation provider rate limit persisted: " + err.Error()
	case errors.Is(err, ai.ErrRetriesExhausted):
		return "translation provider kept failing: " + err.Error()
	case errors.Is(err, ai.ErrFatal):
		return "translation provider rejected the request: " + err.Error()
	default:
		return err.Error()
	}
}

// retryMessage is the job message published while a chapter waits to retry.
func retryMessage(chapterID int, n ai.RetryNotice) string {
	if n.RateLimited {
		return fmt.Sprintf("Waiting on rate limit for chapter %d, retrying in %s (attempt %d/%d)",
			chapterID, n.Wait.Round(100*time.Millisecond), n.Attempt+1, n.MaxAttempts)
	}
	return fmt.Sprintf("Retrying chapter %d after a temporary error (attempt %d/%d)",
		chapterID, n.Attempt+1, n.MaxAttempts)
}

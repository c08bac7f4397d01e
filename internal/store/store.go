package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/booktrans/pkg/models"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrDuplicateKey      = errors.New("duplicate key violation")
	ErrTerminal          = errors.New("job already finished")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrInvalidUpdate     = errors.New("invalid job update")
)

// Store is the data access interface for translation jobs.
// Implementations must be safe for concurrent use.
type Store interface {
	Ping(ctx context.Context) error

	// CreateJob assigns a fresh id and stores the job as pending.
	CreateJob(ctx context.Context, spec models.JobSpec) (*models.Job, error)
	// GetJob returns a snapshot or ErrNotFound.
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// UpdateJob applies all options atomically and returns the new snapshot.
	UpdateJob(ctx context.Context, id uuid.UUID, opts ...JobUpdateOption) (*models.Job, error)
}

type jobUpdateParams struct {
	Status         *models.JobStatus
	Progress       *float64
	CurrentChapter *int
	Message        *string
	OutputPath     *string
	ErrorMessage   *string
}

type JobUpdateOption func(*jobUpdateParams)

func WithStatus(s models.JobStatus) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Status = &s
	}
}

// WithProgress sets the completed fraction in [0, 1).
func WithProgress(f float64) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Progress = &f
	}
}

// WithCurrentChapter sets the 1-based position of the chapter in work.
func WithCurrentChapter(n int) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.CurrentChapter = &n
	}
}

func WithMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Message = &msg
	}
}

func WithOutputPath(path string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.OutputPath = &path
	}
}

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

var validTransitions = map[models.JobStatus][]models.JobStatus{
	models.JobStatusPending:     {models.JobStatusTranslating, models.JobStatusFailed},
	models.JobStatusTranslating: {models.JobStatusCompleted, models.JobStatusFailed},
}

func canTransition(from, to models.JobStatus) bool {
	for _, a := range validTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

func collectParams(opts []JobUpdateOption) *jobUpdateParams {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}
	return params
}

// newJob builds the initial pending snapshot for spec.
func newJob(id uuid.UUID, spec models.JobSpec, now time.Time) *models.Job {
	return &models.Job{
		ID:             id,
		Status:         models.JobStatusPending,
		Chapters:       append([]models.Chapter(nil), spec.Chapters...),
		TargetLanguage: spec.TargetLanguage,
		OutputFormat:   spec.OutputFormat,
		TotalChapters:  len(spec.Chapters),
		Message:        "Job queued",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// applyUpdate validates params against j and mutates j in place. Every store
// implementation funnels updates through here so the rules are identical.
func applyUpdate(j *models.Job, p *jobUpdateParams, now time.Time) error {
	if j.Status.Terminal() {
		return fmt.Errorf("%w: job %s is %s", ErrTerminal, j.ID, j.Status)
	}

	next := j.Status
	if p.Status != nil && *p.Status != j.Status {
		if !canTransition(j.Status, *p.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, *p.Status)
		}
		next = *p.Status
	}

	progress := j.Progress
	if p.Progress != nil {
		f := *p.Progress
		if math.IsNaN(f) || f < j.Progress || f > 1 {
			return fmt.Errorf("%w: progress %v after %v", ErrInvalidUpdate, f, j.Progress)
		}
		progress = f
	}

	current := j.CurrentChapter
	if p.CurrentChapter != nil {
		c := *p.CurrentChapter
		if c < j.CurrentChapter || c > j.TotalChapters {
			return fmt.Errorf("%w: current chapter %d after %d of %d", ErrInvalidUpdate, c, j.CurrentChapter, j.TotalChapters)
		}
		current = c
	}

	outputPath := j.OutputPath
	if p.OutputPath != nil {
		outputPath = p.OutputPath
	}

	switch next {
	case models.JobStatusCompleted:
		if outputPath == nil || *outputPath == "" {
			return fmt.Errorf("%w: completing requires an output path", ErrInvalidUpdate)
		}
		progress = 1
		current = j.TotalChapters
	case models.JobStatusFailed:
		if p.ErrorMessage == nil || *p.ErrorMessage == "" {
			return fmt.Errorf("%w: failing requires an error message", ErrInvalidUpdate)
		}
	default:
		if progress >= 1 {
			return fmt.Errorf("%w: progress reaches 1 only on completion", ErrInvalidUpdate)
		}
	}

	j.Status = next
	j.Progress = progress
	j.CurrentChapter = current
	j.OutputPath = outputPath
	if p.Message != nil {
		j.Message = *p.Message
	}
	if p.ErrorMessage != nil {
		j.ErrorMessage = p.ErrorMessage
	}
	j.UpdatedAt = now
	return nil
}

func nowUTC() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

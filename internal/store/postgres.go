package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/booktrans/pkg/models"
)

const jobColumns = `id, status, chapters, target_language, output_format, progress, current_chapter,
	total_chapters, message, output_path, error_message, created_at, updated_at`

// PostgresStore implements the Store interface using pgx/v5.
// Updates lock the row for the length of a transaction; reads see the last
// committed snapshot and never wait on them.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CreateJob(ctx context.Context, spec models.JobSpec) (*models.Job, error) {
	job := newJob(uuid.New(), spec, nowUTC())
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		job.ID, string(job.Status), job.Chapters, job.TargetLanguage, string(job.OutputFormat),
		job.Progress, job.CurrentChapter, job.TotalChapters, job.Message,
		job.OutputPath, job.ErrorMessage, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, id uuid.UUID, opts ...JobUpdateOption) (*models.Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin job update: %w", err)
	}
	defer tx.Rollback(ctx)

	j, err := scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock job: %w", err)
	}

	if err := applyUpdate(j, collectParams(opts), nowUTC()); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE jobs SET status = $2, progress = $3, current_chapter = $4, message = $5,
		   output_path = $6, error_message = $7, updated_at = $8
		 WHERE id = $1`,
		id, string(j.Status), j.Progress, j.CurrentChapter, j.Message,
		j.OutputPath, j.ErrorMessage, j.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit job update: %w", err)
	}
	return j, nil
}

// ListUnfinished returns ids of jobs left pending or translating, oldest first.
// Used at startup to fail jobs whose worker died with the previous process.
func (s *PostgresStore) ListUnfinished(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM jobs WHERE status IN ('pending', 'translating') ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list unfinished jobs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	var status, format string
	err := row.Scan(&j.ID, &status, &j.Chapters, &j.TargetLanguage, &format, &j.Progress,
		&j.CurrentChapter, &j.TotalChapters, &j.Message, &j.OutputPath, &j.ErrorMessage,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Status = models.JobStatus(status)
	j.OutputFormat = models.OutputFormat(format)
	return &j, nil
}

// isDuplicateKeyError checks if the error is a Postgres unique violation (23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "duplicate key")
}

var _ Store = (*PostgresStore)(nil)

package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/booktrans/pkg/models"
)

// MemoryStore keeps jobs in process. Updates to one job serialize on that
// job's mutex; readers load an immutable snapshot and never wait on writers.
type MemoryStore struct {
	jobs sync.Map // uuid.UUID -> *memoryEntry
	now  func() time.Time
}

type memoryEntry struct {
	mu   sync.Mutex
	snap atomic.Pointer[models.Job]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: nowUTC}
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) CreateJob(_ context.Context, spec models.JobSpec) (*models.Job, error) {
	for {
		job := newJob(uuid.New(), spec, s.now())
		e := &memoryEntry{}
		e.snap.Store(job)
		if _, loaded := s.jobs.LoadOrStore(job.ID, e); !loaded {
			return job.Clone(), nil
		}
	}
}

func (s *MemoryStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, ErrNotFound
	}
	return e.snap.Load().Clone(), nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, id uuid.UUID, opts ...JobUpdateOption) (*models.Job, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.snap.Load().Clone()
	if err := applyUpdate(next, collectParams(opts), s.now()); err != nil {
		return nil, err
	}
	e.snap.Store(next)
	return next.Clone(), nil
}

func (s *MemoryStore) entry(id uuid.UUID) (*memoryEntry, bool) {
	v, ok := s.jobs.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*memoryEntry), true
}

var _ Store = (*MemoryStore)(nil)

package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"server/internal/domain"
	"server/internal/provider"
)

// In-memory repositories mirroring the semantics of the pgx
// implementations, including the unique constraints the service relies on.

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: make(map[string]*domain.Job)}
}

func (m *memJobs) Create(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.jobs {
		if existing.OwnerID != job.OwnerID {
			continue
		}
		if !existing.Status.IsTerminal() {
			return domain.ErrTooManyInflight
		}
		if job.IdempotencyKey != "" && existing.IdempotencyKey == job.IdempotencyKey {
			return domain.ErrDuplicateOperation
		}
	}
	clone := *job
	clone.CreatedAt = time.Now().UTC()
	m.jobs[job.ID] = &clone
	job.CreatedAt = clone.CreatedAt
	return nil
}

func (m *memJobs) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[jobID]; ok {
		clone := *job
		return &clone, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memJobs) GetForOwner(_ context.Context, jobID, ownerID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[jobID]; ok && job.OwnerID == ownerID {
		clone := *job
		return &clone, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memJobs) GetByPredictionID(_ context.Context, predictionID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.PredictionID == predictionID && predictionID != "" {
			clone := *job
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memJobs) FindByIdempotencyKey(_ context.Context, ownerID, key string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.OwnerID == ownerID && job.IdempotencyKey == key && key != "" {
			clone := *job
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memJobs) FindActive(_ context.Context, ownerID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.OwnerID == ownerID && !job.Status.IsTerminal() {
			clone := *job
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *memJobs) SetPredictionID(_ context.Context, jobID, predictionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.PredictionID != "" {
		return fmt.Errorf("prediction id already assigned")
	}
	job.PredictionID = predictionID
	return nil
}

func (m *memJobs) UpdateStatus(_ context.Context, jobID string, status domain.JobStatus, errMsg *string, completedAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return false, nil
	}
	if job.Status.IsTerminal() {
		return false, nil
	}
	job.Status = status
	if errMsg != nil {
		job.Error = *errMsg
	}
	if completedAt != nil {
		job.CompletedAt = completedAt
	}
	return true, nil
}

type memRenders struct {
	mu       sync.Mutex
	renders  map[string]*domain.Render // by job id
	variants map[string][]domain.RenderVariant
}

func newMemRenders() *memRenders {
	return &memRenders{
		renders:  make(map[string]*domain.Render),
		variants: make(map[string][]domain.RenderVariant),
	}
}

func (m *memRenders) CreateWithVariants(_ context.Context, render *domain.Render, variants []domain.RenderVariant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.renders[render.JobID]; ok {
		return errors.New("render already exists for job")
	}
	clone := *render
	m.renders[render.JobID] = &clone
	m.variants[render.ID] = append([]domain.RenderVariant(nil), variants...)
	return nil
}

func (m *memRenders) ExistsForJob(_ context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.renders[jobID]
	return ok, nil
}

func (m *memRenders) GetByJobID(_ context.Context, jobID string) (*domain.Render, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if render, ok := m.renders[jobID]; ok {
		clone := *render
		return &clone, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memRenders) ListByOwner(_ context.Context, ownerID string, _ int) ([]domain.Render, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Render
	for _, render := range m.renders {
		if render.OwnerID == ownerID {
			out = append(out, *render)
		}
	}
	return out, nil
}

func (m *memRenders) ListVariants(_ context.Context, renderID string) ([]domain.RenderVariant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.RenderVariant(nil), m.variants[renderID]...), nil
}

func (m *memRenders) countRenders() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.renders)
}

type memUsage struct {
	mu      sync.Mutex
	entries []*domain.UsageEntry
}

func newMemUsage() *memUsage {
	return &memUsage{}
}

func (m *memUsage) InsertDebit(_ context.Context, entry *domain.UsageEntry) (*domain.UsageEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobID, _ := entry.Meta["job_id"].(string)
	for _, existing := range m.entries {
		existingJob, _ := existing.Meta["job_id"].(string)
		if existing.OwnerID == entry.OwnerID && existing.Kind == domain.UsageKindGenerationDebit && existingJob == jobID {
			return existing, nil
		}
	}
	clone := *entry
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	m.entries = append(m.entries, &clone)
	return &clone, nil
}

func (m *memUsage) Totals(_ context.Context, ownerID string, from, to time.Time) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var debits, credits int
	for _, entry := range m.entries {
		if entry.OwnerID != ownerID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		switch entry.Kind {
		case domain.UsageKindGenerationDebit:
			debits += entry.Amount
		case domain.UsageKindCreditAdjustment:
			credits += entry.Amount
		}
	}
	return debits, credits, nil
}

func (m *memUsage) add(entry *domain.UsageEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
}

func (m *memUsage) debitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, entry := range m.entries {
		if entry.Kind == domain.UsageKindGenerationDebit {
			n++
		}
	}
	return n
}

type memFailures struct {
	mu       sync.Mutex
	failures []*domain.Failure
}

func newMemFailures() *memFailures {
	return &memFailures{}
}

func (m *memFailures) Create(_ context.Context, failure *domain.Failure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *failure
	m.failures = append(m.failures, &clone)
	return nil
}

func (m *memFailures) last() *domain.Failure {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.failures) == 0 {
		return nil
	}
	return m.failures[len(m.failures)-1]
}

type stubProvider struct {
	mu          sync.Mutex
	submits     int
	cancels     []string
	lastSubmit  provider.SubmitRequest
	submitErr   error
	predictions int
}

func (s *stubProvider) Submit(_ context.Context, req provider.SubmitRequest) (*provider.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits++
	s.lastSubmit = req
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	s.predictions++
	return &provider.Prediction{
		ID:     fmt.Sprintf("pred-%d", s.predictions),
		Status: "starting",
	}, nil
}

func (s *stubProvider) GetStatus(_ context.Context, predictionID string) (*provider.Prediction, error) {
	return &provider.Prediction{ID: predictionID, Status: "processing"}, nil
}

func (s *stubProvider) Cancel(_ context.Context, predictionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels = append(s.cancels, predictionID)
	return nil
}

func (s *stubProvider) submitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submits
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failKey string // Put fails when the key contains this substring
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failKey != "" && containsKey(key, m.failKey) {
		return "", fmt.Errorf("storage: upload object %s: simulated failure", key)
	}
	m.objects[key] = append([]byte(nil), data...)
	return key, nil
}

func (m *memStore) URL(key string) string {
	if key == "" {
		return ""
	}
	return "https://cdn.test/" + key
}

func (m *memStore) objectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func containsKey(key, sub string) bool {
	return sub != "" && len(key) >= len(sub) && indexOf(key, sub) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/generation"
	"server/internal/infra"
	"server/internal/provider"
)

// singleJobRepo serves exactly one job, keyed by its prediction id.
type singleJobRepo struct {
	job *domain.Job
}

func (s *singleJobRepo) Create(context.Context, *domain.Job) error { return nil }

func (s *singleJobRepo) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	if s.job != nil && s.job.ID == jobID {
		return s.job, nil
	}
	return nil, domain.ErrNotFound
}

func (s *singleJobRepo) GetForOwner(_ context.Context, jobID, ownerID string) (*domain.Job, error) {
	if s.job != nil && s.job.ID == jobID && s.job.OwnerID == ownerID {
		return s.job, nil
	}
	return nil, domain.ErrNotFound
}

func (s *singleJobRepo) GetByPredictionID(_ context.Context, predictionID string) (*domain.Job, error) {
	if s.job != nil && s.job.PredictionID == predictionID {
		return s.job, nil
	}
	return nil, domain.ErrNotFound
}

func (s *singleJobRepo) FindByIdempotencyKey(context.Context, string, string) (*domain.Job, error) {
	return nil, domain.ErrNotFound
}

func (s *singleJobRepo) FindActive(_ context.Context, ownerID string) (*domain.Job, error) {
	if s.job != nil && s.job.OwnerID == ownerID && !s.job.Status.IsTerminal() {
		return s.job, nil
	}
	return nil, nil
}

func (s *singleJobRepo) SetPredictionID(context.Context, string, string) error { return nil }

func (s *singleJobRepo) UpdateStatus(_ context.Context, jobID string, status domain.JobStatus, errMsg *string, completedAt *time.Time) (bool, error) {
	if s.job == nil || s.job.ID != jobID || s.job.Status.IsTerminal() {
		return false, nil
	}
	s.job.Status = status
	if errMsg != nil {
		s.job.Error = *errMsg
	}
	s.job.CompletedAt = completedAt
	return true, nil
}

type noopFailures struct{}

func (noopFailures) Create(context.Context, *domain.Failure) error { return nil }

type noopUsage struct{}

func (noopUsage) InsertDebit(_ context.Context, e *domain.UsageEntry) (*domain.UsageEntry, error) {
	return e, nil
}

func (noopUsage) Totals(context.Context, string, time.Time, time.Time) (int, int, error) {
	return 0, 0, nil
}

type noopRenders struct{}

func (noopRenders) CreateWithVariants(context.Context, *domain.Render, []domain.RenderVariant) error {
	return nil
}
func (noopRenders) ExistsForJob(context.Context, string) (bool, error) { return false, nil }
func (noopRenders) GetByJobID(context.Context, string) (*domain.Render, error) {
	return nil, domain.ErrNotFound
}
func (noopRenders) ListByOwner(context.Context, string, int) ([]domain.Render, error) {
	return nil, nil
}
func (noopRenders) ListVariants(context.Context, string) ([]domain.RenderVariant, error) {
	return nil, nil
}

type noopProvider struct{}

func (noopProvider) Submit(context.Context, provider.SubmitRequest) (*provider.Prediction, error) {
	return &provider.Prediction{ID: "pred-1", Status: "starting"}, nil
}
func (noopProvider) GetStatus(_ context.Context, id string) (*provider.Prediction, error) {
	return &provider.Prediction{ID: id, Status: "processing"}, nil
}
func (noopProvider) Cancel(context.Context, string) error { return nil }

type noopStore struct{}

func (noopStore) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	return key, nil
}
func (noopStore) URL(key string) string { return "https://cdn.test/" + key }

func newWebhookApp(secret string, jobs *singleJobRepo) *App {
	logger := zerolog.Nop()
	svc := generation.NewService(generation.Options{
		Jobs:         jobs,
		Failures:     noopFailures{},
		Ledger:       generation.NewLedger(noopUsage{}),
		Plans:        generation.StaticPlanSource{Limit: 10},
		Provider:     noopProvider{},
		Materializer: generation.NewMaterializer(noopRenders{}, noopStore{}, nil, logger),
		Store:        noopStore{},
		Logger:       logger,
	})
	return &App{
		Config:      &infra.Config{WebhookSecret: secret},
		Logger:      logger,
		Generations: svc,
		Renders:     noopRenders{},
		Store:       noopStore{},
	}
}

func postWebhook(app *App, body []byte, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/generation", bytes.NewReader(body))
	if sig != "" {
		req.Header.Set(provider.SignatureHeader, sig)
	}
	rec := httptest.NewRecorder()
	app.GenerationWebhook(rec, req)
	return rec
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	jobs := &singleJobRepo{job: &domain.Job{
		ID: "job-1", OwnerID: "user-1", PredictionID: "pred-1",
		Status: domain.JobStatusProcessing,
	}}
	app := newWebhookApp("whsec-test", jobs)
	body := []byte(`{"id":"pred-1","status":"failed","error":"boom"}`)

	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-2] = 'x'
	rec := postWebhook(app, tampered, provider.SignBody("whsec-test", body))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	// A rejected delivery must not touch job state.
	if jobs.job.Status != domain.JobStatusProcessing {
		t.Errorf("job status = %q, want processing", jobs.job.Status)
	}

	if rec := postWebhook(app, body, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing signature: status = %d, want 401", rec.Code)
	}
}

func TestWebhookValidSignatureDrivesState(t *testing.T) {
	jobs := &singleJobRepo{job: &domain.Job{
		ID: "job-1", OwnerID: "user-1", PredictionID: "pred-1",
		Status: domain.JobStatusProcessing,
	}}
	app := newWebhookApp("whsec-test", jobs)
	body := []byte(`{"id":"pred-1","status":"failed","error":"model crashed"}`)

	rec := postWebhook(app, body, provider.SignBody("whsec-test", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if jobs.job.Status != domain.JobStatusFailed {
		t.Errorf("job status = %q, want failed", jobs.job.Status)
	}
	if jobs.job.Error != "model crashed" {
		t.Errorf("job error = %q", jobs.job.Error)
	}
}

func TestWebhookAcknowledgesGarbage(t *testing.T) {
	app := newWebhookApp("", &singleJobRepo{})

	cases := []struct {
		name string
		body []byte
	}{
		{name: "malformed json", body: []byte("not json at all")},
		{name: "missing prediction id", body: []byte(`{"status":"succeeded"}`)},
		{name: "unknown prediction", body: []byte(`{"id":"pred-unknown","status":"succeeded"}`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postWebhook(app, tc.body, "")
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
		})
	}
}

func TestWebhookNoSecretSkipsVerification(t *testing.T) {
	jobs := &singleJobRepo{job: &domain.Job{
		ID: "job-1", OwnerID: "user-1", PredictionID: "pred-1",
		Status: domain.JobStatusStarting,
	}}
	app := newWebhookApp("", jobs)
	body := []byte(`{"id":"pred-1","status":"processing"}`)

	rec := postWebhook(app, body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if jobs.job.Status != domain.JobStatusProcessing {
		t.Errorf("job status = %q, want processing", jobs.job.Status)
	}
}

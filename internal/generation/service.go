// Package generation holds the asynchronous generation job lifecycle:
// submission with idempotency and concurrency limits, webhook-driven state
// reconciliation, asset materialization and usage accounting.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/provider"
	"server/internal/storage"
)

// PlanSource is the billing collaborator: it supplies the monthly
// generation cap for a user.
type PlanSource interface {
	MonthlyLimit(ctx context.Context, ownerID string) (int, error)
}

// StaticPlanSource serves a single configured limit for every user. It is
// the default until a billing service is wired in.
type StaticPlanSource struct {
	Limit int
}

func (s StaticPlanSource) MonthlyLimit(context.Context, string) (int, error) {
	return s.Limit, nil
}

// Options configures a Service.
type Options struct {
	Jobs          domain.JobRepository
	Failures      domain.FailureRepository
	Ledger        *Ledger
	Plans         PlanSource
	Provider      provider.Client
	Materializer  *Materializer
	Store         storage.ObjectStore
	WebhookURL    string // absolute callback URL handed to the provider
	SubmitTimeout time.Duration
	Logger        zerolog.Logger
}

// Service orchestrates the generation job lifecycle. All coordination
// happens through the durable job store and ledger; the service itself
// holds no mutable state shared across requests.
type Service struct {
	jobs          domain.JobRepository
	failures      domain.FailureRepository
	ledger        *Ledger
	plans         PlanSource
	provider      provider.Client
	materializer  *Materializer
	store         storage.ObjectStore
	webhookURL    string
	submitTimeout time.Duration
	logger        zerolog.Logger
	validate      *validator.Validate
}

// NewService builds the generation service.
func NewService(opts Options) *Service {
	timeout := opts.SubmitTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		jobs:          opts.Jobs,
		failures:      opts.Failures,
		ledger:        opts.Ledger,
		plans:         opts.Plans,
		provider:      opts.Provider,
		materializer:  opts.Materializer,
		store:         opts.Store,
		webhookURL:    opts.WebhookURL,
		submitTimeout: timeout,
		logger:        opts.Logger,
		validate:      validator.New(),
	}
}

// SubmitInput carries one validated generation request.
type SubmitInput struct {
	OwnerID        string         `validate:"required"`
	Mode           domain.JobMode `validate:"required,oneof=redesign staging compose imagine"`
	Prompt         string         `validate:"omitempty,max=2000"`
	RoomType       string         `validate:"omitempty,max=100"`
	Style          string         `validate:"omitempty,max=100"`
	Input1Path     string         `validate:"omitempty,max=500"`
	Input2Path     string         `validate:"omitempty,max=500"`
	IdempotencyKey string         `validate:"omitempty,uuid"`
	Country        string         `validate:"omitempty,len=2"`
}

// Submit validates a request, enforces the idempotency, concurrency and
// usage rules, persists the job, hands it to the provider and debits one
// usage unit. It returns as soon as the provider has accepted the job; the
// caller never blocks on completion.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*domain.Job, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	// Idempotent replay: the same (owner, key) returns the original job
	// with no new provider call and no new debit.
	if in.IdempotencyKey != "" {
		existing, err := s.jobs.FindByIdempotencyKey(ctx, in.OwnerID, in.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("lookup idempotency key: %w", err)
		}
	}

	active, err := s.jobs.FindActive(ctx, in.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("lookup active job: %w", err)
	}
	if active != nil {
		return nil, domain.ErrTooManyInflight
	}

	limit, err := s.plans.MonthlyLimit(ctx, in.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("resolve monthly limit: %w", err)
	}
	remaining, err := s.ledger.Remaining(ctx, in.OwnerID, limit)
	if err != nil {
		return nil, err
	}
	if remaining <= 0 {
		return nil, domain.ErrLimitExceeded
	}

	job := &domain.Job{
		ID:             uuid.NewString(),
		OwnerID:        in.OwnerID,
		IdempotencyKey: in.IdempotencyKey,
		Mode:           in.Mode,
		RoomType:       in.RoomType,
		Style:          in.Style,
		Prompt:         in.Prompt,
		Input1Path:     in.Input1Path,
		Input2Path:     in.Input2Path,
		Status:         domain.JobStatusStarting,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		switch {
		case errors.Is(err, domain.ErrTooManyInflight):
			// Lost the double-submit race: the partial unique index on
			// active jobs rejected the insert.
			return nil, domain.ErrTooManyInflight
		case errors.Is(err, domain.ErrDuplicateOperation) && in.IdempotencyKey != "":
			return s.jobs.FindByIdempotencyKey(ctx, in.OwnerID, in.IdempotencyKey)
		default:
			return nil, fmt.Errorf("create job: %w", err)
		}
	}

	submitCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	defer cancel()
	pred, err := s.provider.Submit(submitCtx, provider.SubmitRequest{
		Mode:       string(in.Mode),
		Prompt:     in.Prompt,
		RoomType:   in.RoomType,
		Style:      in.Style,
		Input1URL:  s.inputURL(in.Input1Path),
		Input2URL:  s.inputURL(in.Input2Path),
		WebhookURL: s.webhookURL,
	})
	if err != nil {
		// The job stays in starting with no prediction id; recovery is
		// user-initiated via retry.
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("provider submit failed")
		return nil, fmt.Errorf("%w: %s", domain.ErrConfiguration, domain.TruncateJobError(err.Error()))
	}

	if err := s.jobs.SetPredictionID(ctx, job.ID, pred.ID); err != nil {
		return nil, fmt.Errorf("store prediction id: %w", err)
	}
	job.PredictionID = pred.ID

	meta := map[string]any{}
	if in.Country != "" {
		meta["country"] = in.Country
	}
	if _, err := s.ledger.Debit(ctx, in.OwnerID, job.ID, 1, in.IdempotencyKey, meta); err != nil {
		// The prediction is already running; an unrecorded debit is an
		// accounting gap, not a reason to fail the submission.
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("usage debit failed")
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("prediction_id", pred.ID).
		Str("mode", string(in.Mode)).
		Msg("generation submitted")
	return job, nil
}

// Cancel moves an in-flight job to canceled. Cancellation is cooperative:
// the provider may still finish, in which case the sticky terminal state
// rejects the late callback.
func (s *Service) Cancel(ctx context.Context, jobID, ownerID string) (*domain.Job, error) {
	job, err := s.jobs.GetForOwner(ctx, jobID, ownerID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, domain.ErrInvalidState
	}
	if job.PredictionID != "" {
		if err := s.provider.Cancel(ctx, job.PredictionID); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("provider cancel failed")
		}
	}
	now := time.Now().UTC()
	applied, err := s.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusCanceled, nil, &now)
	if err != nil {
		return nil, fmt.Errorf("cancel job: %w", err)
	}
	if !applied {
		// A terminal callback won the race.
		return nil, domain.ErrInvalidState
	}
	job.Status = domain.JobStatusCanceled
	job.CompletedAt = &now
	s.logger.Info().Str("job_id", job.ID).Msg("generation canceled")
	return job, nil
}

// Retry clones a failed job into a brand-new submission with a fresh
// idempotency key. The in-flight and usage checks apply again.
func (s *Service) Retry(ctx context.Context, jobID, ownerID string) (*domain.Job, error) {
	job, err := s.jobs.GetForOwner(ctx, jobID, ownerID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusFailed {
		return nil, domain.ErrInvalidState
	}
	return s.Submit(ctx, SubmitInput{
		OwnerID:        ownerID,
		Mode:           job.Mode,
		Prompt:         job.Prompt,
		RoomType:       job.RoomType,
		Style:          job.Style,
		Input1Path:     job.Input1Path,
		Input2Path:     job.Input2Path,
		IdempotencyKey: uuid.NewString(),
	})
}

// GetForOwner returns an owner-scoped job.
func (s *Service) GetForOwner(ctx context.Context, jobID, ownerID string) (*domain.Job, error) {
	return s.jobs.GetForOwner(ctx, jobID, ownerID)
}

// MonthlyLimit exposes the effective plan limit for an owner.
func (s *Service) MonthlyLimit(ctx context.Context, ownerID string) (int, error) {
	return s.plans.MonthlyLimit(ctx, ownerID)
}

func (s *Service) validateInput(in SubmitInput) error {
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
	}
	switch in.Mode {
	case domain.JobModeImagine:
		if in.Prompt == "" {
			return fmt.Errorf("%w: prompt is required for imagine", domain.ErrValidation)
		}
	case domain.JobModeCompose:
		if in.Input1Path == "" || in.Input2Path == "" {
			return fmt.Errorf("%w: compose requires two input images", domain.ErrValidation)
		}
	default:
		if in.Input1Path == "" {
			return fmt.Errorf("%w: an input image is required for %s", domain.ErrValidation, in.Mode)
		}
	}
	return nil
}

func (s *Service) inputURL(path string) string {
	if path == "" {
		return ""
	}
	return s.store.URL(path)
}

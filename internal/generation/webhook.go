package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"server/internal/domain"
	"server/internal/provider"
)

// genericStorageFailure is what the job surfaces when materialization
// fails; internal storage errors never leak into the job's error field.
const genericStorageFailure = "Failed to store generated images"

// HandleCallback drives a job's state machine from one provider callback.
// It tolerates duplicates, out-of-order delivery and callbacks for unknown
// predictions; terminal states are sticky. Errors returned here are for
// internal logging only, the webhook transport always acknowledges.
func (s *Service) HandleCallback(ctx context.Context, cb *provider.Callback) error {
	job, err := s.jobs.GetByPredictionID(ctx, cb.PredictionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Acknowledge anyway; an unknown prediction must not trigger
			// provider retries.
			s.logger.Warn().Str("prediction_id", cb.PredictionID).Msg("callback for unknown prediction")
			return nil
		}
		return fmt.Errorf("lookup prediction %s: %w", cb.PredictionID, err)
	}
	if job.Status.IsTerminal() {
		s.logger.Info().
			Str("job_id", job.ID).
			Str("status", string(job.Status)).
			Str("callback_status", cb.Status).
			Msg("callback for terminal job ignored")
		return nil
	}

	switch cb.Status {
	case "starting", "processing":
		return s.markProcessing(ctx, job)
	case "succeeded":
		return s.handleSucceeded(ctx, job, cb)
	case "failed":
		return s.handleFailed(ctx, job, cb.Error)
	case "canceled":
		return s.markTerminal(ctx, job, domain.JobStatusCanceled, "")
	default:
		s.logger.Warn().Str("job_id", job.ID).Str("callback_status", cb.Status).Msg("unrecognized callback status ignored")
		return nil
	}
}

func (s *Service) markProcessing(ctx context.Context, job *domain.Job) error {
	applied, err := s.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusProcessing, nil, nil)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if !applied {
		s.logger.Info().Str("job_id", job.ID).Msg("processing callback after terminal state ignored")
	}
	return nil
}

func (s *Service) handleSucceeded(ctx context.Context, job *domain.Job, cb *provider.Callback) error {
	if len(cb.Output) == 0 {
		return s.markTerminal(ctx, job, domain.JobStatusFailed, "No output generated")
	}
	if err := s.materializer.Process(ctx, job, cb.Output); err != nil {
		cls := Classify(err.Error())
		s.recordFailure(ctx, job.ID, domain.FailureStageStorage, cls, map[string]any{
			"output_count": len(cb.Output),
		})
		return s.markTerminal(ctx, job, domain.JobStatusFailed, genericStorageFailure)
	}
	return s.markTerminal(ctx, job, domain.JobStatusSucceeded, "")
}

func (s *Service) handleFailed(ctx context.Context, job *domain.Job, rawError string) error {
	cls := Classify(rawError)
	s.recordFailure(ctx, job.ID, domain.FailureStageWebhook, cls, nil)
	return s.markTerminal(ctx, job, domain.JobStatusFailed, rawError)
}

func (s *Service) markTerminal(ctx context.Context, job *domain.Job, status domain.JobStatus, errMsg string) error {
	var msgPtr *string
	if errMsg != "" {
		truncated := domain.TruncateJobError(errMsg)
		msgPtr = &truncated
	}
	now := time.Now().UTC()
	applied, err := s.jobs.UpdateStatus(ctx, job.ID, status, msgPtr, &now)
	if err != nil {
		return fmt.Errorf("mark %s: %w", status, err)
	}
	if !applied {
		s.logger.Info().
			Str("job_id", job.ID).
			Str("status", string(status)).
			Msg("terminal transition rejected, job already terminal")
		return nil
	}
	s.logger.Info().Str("job_id", job.ID).Str("status", string(status)).Msg("job reconciled")
	return nil
}

// recordFailure appends a diagnostic row. Failures here are observational;
// a write error is logged and swallowed so it cannot affect job state.
func (s *Service) recordFailure(ctx context.Context, jobID string, stage domain.FailureStage, cls Classification, meta map[string]any) {
	failure := &domain.Failure{
		JobID:        jobID,
		Stage:        stage,
		Code:         cls.Code,
		ProviderCode: cls.ProviderCode,
		Message:      cls.Message,
		Meta:         meta,
	}
	if err := s.failures.Create(ctx, failure); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("record generation failure")
	}
}

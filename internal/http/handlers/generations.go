package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/generation"
)

type generateRequest struct {
	Mode           string `json:"mode"`
	Prompt         string `json:"prompt"`
	RoomType       string `json:"room_type"`
	Style          string `json:"style"`
	Input1Path     string `json:"input1_path"`
	Input2Path     string `json:"input2_path"`
	IdempotencyKey string `json:"idempotency_key"`
}

type generationResponse struct {
	ID           string `json:"id"`
	PredictionID string `json:"prediction_id,omitempty"`
	Status       string `json:"status"`
}

// GenerationsCreate accepts a new generation request and returns as soon
// as the provider has the job; completion arrives via webhook.
func (a *App) GenerationsCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "validation_error", "invalid payload")
		return
	}
	mode := domain.NormalizeJobMode(req.Mode)
	if mode == "" {
		a.error(w, http.StatusBadRequest, "validation_error", "mode must be one of redesign, staging, compose, imagine")
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}

	job, err := a.Generations.Submit(r.Context(), generation.SubmitInput{
		OwnerID:        userID,
		Mode:           mode,
		Prompt:         strings.TrimSpace(req.Prompt),
		RoomType:       strings.TrimSpace(req.RoomType),
		Style:          strings.TrimSpace(req.Style),
		Input1Path:     strings.TrimSpace(req.Input1Path),
		Input2Path:     strings.TrimSpace(req.Input2Path),
		IdempotencyKey: req.IdempotencyKey,
		Country:        a.lookupCountry(r),
	})
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, generationResponse{
		ID:           job.ID,
		PredictionID: job.PredictionID,
		Status:       string(job.Status),
	})
}

// GenerationsGet returns the job's current state and, once succeeded, the
// resolved output URLs.
func (a *App) GenerationsGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "id")
	job, err := a.Generations.GetForOwner(r.Context(), jobID, userID)
	if err != nil {
		a.domainError(w, err)
		return
	}

	resp := map[string]any{
		"id":           job.ID,
		"status":       job.Status,
		"mode":         job.Mode,
		"room_type":    job.RoomType,
		"style":        job.Style,
		"prompt":       job.Prompt,
		"created_at":   job.CreatedAt,
		"completed_at": job.CompletedAt,
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	if job.Status == domain.JobStatusSucceeded {
		outputs, err := a.renderOutputs(r, job.ID)
		if err != nil {
			a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("resolve render outputs")
		} else {
			resp["outputs"] = outputs
		}
	}
	a.json(w, http.StatusOK, resp)
}

type patchRequest struct {
	Action string `json:"action"`
}

// GenerationsPatch handles state actions on a job; cancel is the only one.
func (a *App) GenerationsPatch(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req patchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "validation_error", "invalid payload")
		return
	}
	if req.Action != "cancel" {
		a.error(w, http.StatusBadRequest, "validation_error", "unsupported action")
		return
	}
	job, err := a.Generations.Cancel(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, generationResponse{ID: job.ID, Status: string(job.Status)})
}

// GenerationsRetry clones a failed job into a fresh submission.
func (a *App) GenerationsRetry(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, err := a.Generations.Retry(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, generationResponse{
		ID:           job.ID,
		PredictionID: job.PredictionID,
		Status:       string(job.Status),
	})
}

type outputVariant struct {
	Idx      int    `json:"idx"`
	URL      string `json:"url"`
	ThumbURL string `json:"thumb_url,omitempty"`
	Cover    bool   `json:"cover"`
}

func (a *App) renderOutputs(r *http.Request, jobID string) ([]outputVariant, error) {
	render, err := a.Renders.GetByJobID(r.Context(), jobID)
	if err != nil {
		return nil, err
	}
	variants, err := a.Renders.ListVariants(r.Context(), render.ID)
	if err != nil {
		return nil, err
	}
	outputs := make([]outputVariant, 0, len(variants))
	for _, v := range variants {
		out := outputVariant{
			Idx:   v.Idx,
			URL:   a.Store.URL(v.ImagePath),
			Cover: v.Idx == render.CoverVariant,
		}
		if v.ThumbPath != "" {
			out.ThumbURL = a.Store.URL(v.ThumbPath)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/generation"
	"server/internal/infra"
	"server/internal/infra/geoip"
	"server/internal/middleware"
	"server/internal/storage"
)

// App is the handler container; everything it needs is injected at
// startup.
type App struct {
	Config      *infra.Config
	Logger      zerolog.Logger
	Generations *generation.Service
	Ledger      *generation.Ledger
	Renders     domain.RenderRepository
	Store       storage.ObjectStore
	Geo         geoip.CountryResolver
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}

// domainError maps service-level sentinel errors onto the API taxonomy.
func (a *App) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "not allowed")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrTooManyInflight):
		a.error(w, http.StatusConflict, "too_many_inflight", "another generation is still running")
	case errors.Is(err, domain.ErrLimitExceeded):
		a.error(w, http.StatusPaymentRequired, "limit_exceeded", "monthly generation limit reached")
	case errors.Is(err, domain.ErrInvalidState):
		a.error(w, http.StatusConflict, "invalid_state", "operation not allowed in the job's current state")
	case errors.Is(err, domain.ErrConfiguration):
		a.error(w, http.StatusBadGateway, "configuration_error", err.Error())
	default:
		a.Logger.Error().Err(err).Msg("unhandled error")
		a.error(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// lookupCountry best-effort resolves the caller's country for usage
// accounting. Missing resolver or lookup failure yields an empty code.
func (a *App) lookupCountry(r *http.Request) string {
	if a.Geo == nil {
		return ""
	}
	code, err := a.Geo.CountryCode(middleware.ClientIP(r))
	if err != nil {
		return ""
	}
	return code
}

package handlers

import (
	"net/http"
	"time"
)

// Usage reports the current month's generation accounting for the caller.
func (a *App) Usage(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit, err := a.Generations.MonthlyLimit(r.Context(), userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	now := time.Now().UTC()
	usage, err := a.Ledger.MonthlyNet(r.Context(), userID, now.Year(), now.Month())
	if err != nil {
		a.domainError(w, err)
		return
	}
	remaining := limit - usage.Net
	if remaining < 0 {
		remaining = 0
	}
	a.json(w, http.StatusOK, map[string]int{
		"used":      usage.Net,
		"debits":    usage.Debits,
		"credits":   usage.Credits,
		"limit":     limit,
		"remaining": remaining,
	})
}

package handlers

import (
	"net/http"
	"strconv"
)

// RendersList returns the caller's materialized renders, newest first.
func (a *App) RendersList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	renders, err := a.Renders.ListByOwner(r.Context(), userID, limit)
	if err != nil {
		a.domainError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(renders))
	for _, render := range renders {
		variants, err := a.Renders.ListVariants(r.Context(), render.ID)
		if err != nil {
			a.domainError(w, err)
			return
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
		items = append(items, map[string]any{
			"id":         render.ID,
			"job_id":     render.JobID,
			"mode":       render.Mode,
			"room_type":  render.RoomType,
			"style":      render.Style,
			"created_at": render.CreatedAt,
			"outputs":    outputs,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

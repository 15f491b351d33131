package handlers

import (
	"io"
	"net/http"

	"server/internal/provider"
)

// maxWebhookBody bounds a callback payload.
const maxWebhookBody = 1 << 20

// GenerationWebhook receives asynchronous provider callbacks. Apart from a
// signature mismatch it always acknowledges with 200: a permanently
// unprocessable callback must not trigger a provider retry storm, so
// internal failures are recorded and swallowed here.
func (a *App) GenerationWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		a.Logger.Error().Err(err).Msg("read webhook body")
		a.json(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	if secret := a.Config.WebhookSecret; secret != "" {
		sig := r.Header.Get(provider.SignatureHeader)
		if !provider.VerifySignature(secret, body, sig) {
			a.error(w, http.StatusUnauthorized, "unauthorized", "invalid webhook signature")
			return
		}
	}

	cb, err := provider.ParseCallback(body)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("unparseable webhook callback")
		a.json(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	if err := a.Generations.HandleCallback(r.Context(), cb); err != nil {
		a.Logger.Error().Err(err).Str("prediction_id", cb.PredictionID).Msg("webhook reconciliation failed")
	}
	a.json(w, http.StatusOK, map[string]bool{"ok": true})
}

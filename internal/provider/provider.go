// Package provider defines the narrow contract between the generation
// services and any hosted prediction backend. The orchestrator and the
// webhook reconciler depend only on Client; one adapter package exists per
// backend.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// SubmitRequest is the normalized generation request handed to an adapter.
// Input URLs must already be resolvable by the provider (signed or public).
type SubmitRequest struct {
	Mode       string
	Prompt     string
	RoomType   string
	Style      string
	Input1URL  string
	Input2URL  string
	WebhookURL string
}

// Prediction is the provider's view of an in-flight generation.
type Prediction struct {
	ID     string
	Status string
	Output []string
	Error  string
}

// Client is the contract implemented by all generation backends.
type Client interface {
	Submit(ctx context.Context, req SubmitRequest) (*Prediction, error)
	GetStatus(ctx context.Context, predictionID string) (*Prediction, error)
	Cancel(ctx context.Context, predictionID string) error
}

// Callback is a parsed webhook delivery. Callbacks correlate by the
// provider-assigned prediction id, never by the internal job id.
type Callback struct {
	PredictionID string
	Status       string
	Output       []string
	Error        string
}

type callbackPayload struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
}

// ParseCallback decodes a raw webhook body.
func ParseCallback(body []byte) (*Callback, error) {
	var payload callbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("provider: decode callback: %w", err)
	}
	if strings.TrimSpace(payload.ID) == "" {
		return nil, fmt.Errorf("provider: callback missing prediction id")
	}
	return &Callback{
		PredictionID: payload.ID,
		Status:       strings.ToLower(strings.TrimSpace(payload.Status)),
		Output:       NormalizeOutput(payload.Output),
		Error:        decodeErrorField(payload.Error),
	}, nil
}

// NormalizeOutput flattens the provider's output field, which may be
// absent, null, a single URL string, or an array of URL strings, into a
// list of URLs. Unparseable shapes normalize to an empty list.
func NormalizeOutput(raw json.RawMessage) []string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return []string{}
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single = strings.TrimSpace(single); single == "" {
			return []string{}
		}
		return []string{single}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		urls := make([]string, 0, len(many))
		for _, u := range many {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		return urls
	}
	return []string{}
}

// decodeErrorField tolerates both string errors and structured ones.
func decodeErrorField(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return trimmed
}

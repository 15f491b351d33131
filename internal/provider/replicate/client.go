// Package replicate adapts the hosted prediction API to the provider
// contract. Predictions run asynchronously; completion arrives through the
// webhook URL passed at submission time.
package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"server/internal/provider"
)

type Options struct {
	BaseURL    string
	APIToken   string
	Version    string // model version identifier submitted with every prediction
	HTTPClient *http.Client
	Timeout    time.Duration
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	version    string
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.replicate.com/v1"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: client,
		baseURL:    base,
		token:      strings.TrimSpace(opts.APIToken),
		version:    strings.TrimSpace(opts.Version),
	}
}

type predictionRequest struct {
	Version string         `json:"version"`
	Input   map[string]any `json:"input"`
	Webhook string         `json:"webhook,omitempty"`
}

type predictionResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
	Detail string          `json:"detail"`
}

// Submit creates a prediction and returns the provider-assigned id.
func (c *Client) Submit(ctx context.Context, req provider.SubmitRequest) (*provider.Prediction, error) {
	if c == nil || c.token == "" {
		return nil, errors.New("replicate: API token is missing")
	}
	if c.version == "" {
		return nil, errors.New("replicate: model version is missing")
	}
	payload := predictionRequest{
		Version: c.version,
		Input:   buildInput(req),
		Webhook: req.WebhookURL,
	}
	var out predictionResponse
	if err := c.do(ctx, http.MethodPost, "/predictions", payload, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("replicate: response missing prediction id")
	}
	return toPrediction(out), nil
}

// GetStatus fetches the current state of a prediction.
func (c *Client) GetStatus(ctx context.Context, predictionID string) (*provider.Prediction, error) {
	if c == nil || c.token == "" {
		return nil, errors.New("replicate: API token is missing")
	}
	predictionID = strings.TrimSpace(predictionID)
	if predictionID == "" {
		return nil, errors.New("replicate: prediction id required")
	}
	var out predictionResponse
	if err := c.do(ctx, http.MethodGet, "/predictions/"+predictionID, nil, &out); err != nil {
		return nil, err
	}
	return toPrediction(out), nil
}

// Cancel asks the provider to stop a running prediction. Best effort: the
// provider may still deliver a terminal callback afterwards.
func (c *Client) Cancel(ctx context.Context, predictionID string) error {
	if c == nil || c.token == "" {
		return errors.New("replicate: API token is missing")
	}
	predictionID = strings.TrimSpace(predictionID)
	if predictionID == "" {
		return errors.New("replicate: prediction id required")
	}
	return c.do(ctx, http.MethodPost, "/predictions/"+predictionID+"/cancel", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("replicate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr predictionResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil {
			if msg := firstNonEmpty(apiErr.Detail, apiErr.Error); msg != "" {
				return fmt.Errorf("replicate: %s (http %d)", msg, resp.StatusCode)
			}
		}
		return fmt.Errorf("replicate: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("replicate: decode response: %w", err)
	}
	return nil
}

// buildInput translates the normalized request into the model's input
// shape. Only non-empty fields are sent.
func buildInput(req provider.SubmitRequest) map[string]any {
	input := map[string]any{"mode": req.Mode}
	if req.Prompt != "" {
		input["prompt"] = req.Prompt
	}
	if req.RoomType != "" {
		input["room_type"] = req.RoomType
	}
	if req.Style != "" {
		input["style"] = req.Style
	}
	if req.Input1URL != "" {
		input["image"] = req.Input1URL
	}
	if req.Input2URL != "" {
		input["image_2"] = req.Input2URL
	}
	return input
}

func toPrediction(resp predictionResponse) *provider.Prediction {
	return &provider.Prediction{
		ID:     resp.ID,
		Status: strings.ToLower(strings.TrimSpace(resp.Status)),
		Output: provider.NormalizeOutput(resp.Output),
		Error:  resp.Error,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var _ provider.Client = (*Client)(nil)

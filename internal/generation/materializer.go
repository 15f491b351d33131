package generation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/storage"
)

const (
	// maxOutputBytes bounds a single provider output download.
	maxOutputBytes = 32 << 20
	thumbnailWidth = 512
)

// Materializer copies provider output URLs into owned storage and records
// the resulting render. It runs inline during webhook handling, so every
// network call is bounded by the client timeout.
type Materializer struct {
	renders    domain.RenderRepository
	store      storage.ObjectStore
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewMaterializer builds a materializer with a bounded download client.
func NewMaterializer(renders domain.RenderRepository, store storage.ObjectStore, httpClient *http.Client, logger zerolog.Logger) *Materializer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Materializer{renders: renders, store: store, httpClient: httpClient, logger: logger}
}

// Process downloads every output URL, uploads the bytes into owned storage
// and writes the Render plus its variants in one transaction. All-or-
// nothing: any download or upload error aborts before anything becomes
// visible. Duplicate deliveries are absorbed by the render-per-job guard.
func (m *Materializer) Process(ctx context.Context, job *domain.Job, outputURLs []string) error {
	if len(outputURLs) == 0 {
		return fmt.Errorf("materialize: no output urls for job %s", job.ID)
	}
	exists, err := m.renders.ExistsForJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("materialize: check existing render: %w", err)
	}
	if exists {
		m.logger.Info().Str("job_id", job.ID).Msg("render already materialized, skipping")
		return nil
	}

	render := &domain.Render{
		ID:           uuid.NewString(),
		JobID:        job.ID,
		OwnerID:      job.OwnerID,
		Mode:         job.Mode,
		RoomType:     job.RoomType,
		Style:        job.Style,
		CoverVariant: 0,
	}
	variants := make([]domain.RenderVariant, 0, len(outputURLs))
	for idx, outputURL := range outputURLs {
		data, contentType, err := m.download(ctx, outputURL)
		if err != nil {
			return fmt.Errorf("materialize: download output %d: %w", idx, err)
		}
		imageKey := fmt.Sprintf("renders/%s/output-%d%s", job.ID, idx, extensionFor(outputURL, contentType))
		imagePath, err := m.store.Put(ctx, imageKey, data, contentType)
		if err != nil {
			return fmt.Errorf("materialize: upload output %d: %w", idx, err)
		}
		variants = append(variants, domain.RenderVariant{
			ID:        uuid.NewString(),
			RenderID:  render.ID,
			OwnerID:   job.OwnerID,
			Idx:       idx,
			ImagePath: imagePath,
			ThumbPath: m.uploadThumbnail(ctx, job.ID, idx, data),
		})
	}

	if err := m.renders.CreateWithVariants(ctx, render, variants); err != nil {
		return fmt.Errorf("materialize: persist render: %w", err)
	}
	m.logger.Info().
		Str("job_id", job.ID).
		Int("variants", len(variants)).
		Msg("render materialized")
	return nil
}

func (m *Materializer) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("http %d from %s", resp.StatusCode, rawURL)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxOutputBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty body from %s", rawURL)
	}
	if len(data) > maxOutputBytes {
		return nil, "", fmt.Errorf("output from %s exceeds %d bytes", rawURL, maxOutputBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// uploadThumbnail derives and stores a downscaled preview. Thumbnails are
// best effort: a decode or upload error leaves the thumb path empty and
// does not fail materialization.
func (m *Materializer) uploadThumbnail(ctx context.Context, jobID string, idx int, data []byte) string {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Int("idx", idx).Msg("thumbnail decode failed")
		return ""
	}
	thumb := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Int("idx", idx).Msg("thumbnail encode failed")
		return ""
	}
	key := fmt.Sprintf("renders/%s/thumb-%d.jpg", jobID, idx)
	thumbPath, err := m.store.Put(ctx, key, buf.Bytes(), "image/jpeg")
	if err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Int("idx", idx).Msg("thumbnail upload failed")
		return ""
	}
	return thumbPath
}

// extensionFor picks a file extension from the output URL path, falling
// back to the response content type.
func extensionFor(rawURL, contentType string) string {
	if parsed, err := url.Parse(rawURL); err == nil {
		if ext := strings.ToLower(path.Ext(parsed.Path)); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".png"
}

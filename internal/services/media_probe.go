package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
)

// MediaInfo is what the probe reports for an uploaded video. Any field the
// probe could not determine is left zero and stored as null.
type MediaInfo struct {
	DurationSeconds float64 `json:"duration_seconds"`
	SizeBytes       int64   `json:"size_bytes"`
	ThumbnailRef    string  `json:"thumbnail_ref"`
}

// MediaProber resolves playback metadata for a source ref. Implementations
// must be safe to call concurrently. Callers treat failures as soft: a video
// is still created when the probe errors out.
type MediaProber interface {
	Probe(ctx context.Context, sourceRef string) (*MediaInfo, error)
}

type httpMediaProber struct {
	log     *logger.Logger
	baseURL string
	client  *http.Client
}

func NewHTTPMediaProber(log *logger.Logger, baseURL string) MediaProber {
	return &httpMediaProber{
		log:     log.With("service", "MediaProber"),
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *httpMediaProber) Probe(ctx context.Context, sourceRef string) (*MediaInfo, error) {
	if p.baseURL == "" {
		return nil, fmt.Errorf("media probe not configured")
	}
	endpoint := fmt.Sprintf("%s/probe?source=%s", p.baseURL, url.QueryEscape(sourceRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	var info MediaInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding probe response: %w", err)
	}
	return &info, nil
}

package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
)

// GeneratedQuestion is the provider's output before validation. QuestionData
// is raw here; it goes through the same tagged-union validation as manually
// authored questions during ingestion.
type GeneratedQuestion struct {
	Type          string          `json:"type"`
	PromptMD      string          `json:"prompt_md"`
	QuestionData  json.RawMessage `json:"question_data"`
	Explanation   *string         `json:"explanation,omitempty"`
	Points        int             `json:"points"`
	PassThreshold float64         `json:"pass_threshold"`
}

// QuestionGenerator produces question batches for a milestone. Failures are
// soft for callers: milestone authoring never fails because generation did.
type QuestionGenerator interface {
	Generate(ctx context.Context, videoID, milestoneID uuid.UUID, count int) ([]GeneratedQuestion, error)
}

type httpQuestionGenerator struct {
	log     *logger.Logger
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPQuestionGenerator(log *logger.Logger, baseURL, apiKey string) QuestionGenerator {
	return &httpQuestionGenerator{
		log:     log.With("service", "QuestionGenerator"),
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (g *httpQuestionGenerator) Generate(ctx context.Context, videoID, milestoneID uuid.UUID, count int) ([]GeneratedQuestion, error) {
	if g.baseURL == "" {
		return nil, fmt.Errorf("question generator not configured")
	}
	payload, err := json.Marshal(map[string]any{
		"video_id":     videoID,
		"milestone_id": milestoneID,
		"count":        count,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding generation request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/questions/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generator returned status %d", resp.StatusCode)
	}
	var out struct {
		Questions []GeneratedQuestion `json:"questions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding generation response: %w", err)
	}
	return out.Questions, nil
}

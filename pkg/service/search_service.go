package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/solace-ai/solace/pkg/config"
	"github.com/solace-ai/solace/pkg/utils"
)

// ErrSearchDisabled is returned when no search endpoint is configured.
var ErrSearchDisabled = errors.New("search is not configured")

const searchTimeout = 30 * time.Second

// SearchService forwards factual queries to an external search collaborator.
// The collaborator is opaque: one POST in, one condensed answer out.
type SearchService struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Answer string `json:"answer"`
}

// NewSearchService builds a search client from config. With search disabled
// the service still constructs, and every call returns ErrSearchDisabled.
func NewSearchService(cfg *config.AppConfig) *SearchService {
	s := &SearchService{
		client: &http.Client{Timeout: searchTimeout},
		logger: utils.GetLogger(),
	}
	if cfg != nil && cfg.SearchEnabled() {
		s.baseURL = cfg.SearchBaseURL()
	}
	return s
}

// Enabled reports whether a search endpoint is configured.
func (s *SearchService) Enabled() bool {
	return s.baseURL != ""
}

// Search posts the query to the collaborator and returns its answer.
func (s *SearchService) Search(ctx context.Context, query string) (string, error) {
	if s.baseURL == "" {
		return "", ErrSearchDisabled
	}

	body, err := json.Marshal(searchRequest{Query: query})
	if err != nil {
		return "", fmt.Errorf("encode search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("search endpoint returned status %d", resp.StatusCode)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode search response: %w", err)
	}
	return out.Answer, nil
}

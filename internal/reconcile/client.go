package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/platform/errors"
)

const clientTimeout = 10 * time.Second

// Fetcher is the idempotent read surface the reconciliation layer polls.
type Fetcher interface {
	GetLiveSessionStatus(ctx context.Context, presentationID uuid.UUID) (*domain.LiveStatus, error)
	GetQuestionResults(ctx context.Context, presentationID, questionID uuid.UUID) (*domain.QuestionResults, error)
	GetAudienceCount(ctx context.Context, presentationID uuid.UUID) (int, error)
}

// Mutator is the write surface behind optimistic presenter actions.
type Mutator interface {
	StartLiveSession(ctx context.Context, presentationID uuid.UUID) error
	EndLiveSession(ctx context.Context, presentationID uuid.UUID) error
	ActivateQuestion(ctx context.Context, questionID uuid.UUID) error
	DeactivateQuestion(ctx context.Context, questionID uuid.UUID) error
}

// Client talks to the REST surface. It implements Fetcher and Mutator.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: clientTimeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var remote errors.ErrorResponse
		if json.Unmarshal(body, &remote) == nil && remote.Error != "" {
			return &errors.Error{Type: remote.Type, Message: remote.Error}
		}
		return fmt.Errorf("unexpected status %d for %s %s", resp.StatusCode, method, path)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) GetLiveSessionStatus(ctx context.Context, presentationID uuid.UUID) (*domain.LiveStatus, error) {
	var status domain.LiveStatus
	path := fmt.Sprintf("/api/presentations/%s/live-status", presentationID)
	if err := c.do(ctx, http.MethodGet, path, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) GetQuestionResults(ctx context.Context, presentationID, questionID uuid.UUID) (*domain.QuestionResults, error) {
	var results domain.QuestionResults
	path := fmt.Sprintf("/api/presentations/%s/questions/%s/results", presentationID, questionID)
	if err := c.do(ctx, http.MethodGet, path, &results); err != nil {
		return nil, err
	}
	return &results, nil
}

func (c *Client) GetAudienceCount(ctx context.Context, presentationID uuid.UUID) (int, error) {
	var payload domain.AudienceCountPayload
	path := fmt.Sprintf("/api/presentations/%s/audience-count", presentationID)
	if err := c.do(ctx, http.MethodGet, path, &payload); err != nil {
		return 0, err
	}
	return payload.Count, nil
}

func (c *Client) ListPresentations(ctx context.Context) ([]domain.Presentation, error) {
	var presentations []domain.Presentation
	if err := c.do(ctx, http.MethodGet, "/api/presentations", &presentations); err != nil {
		return nil, err
	}
	return presentations, nil
}

func (c *Client) StartLiveSession(ctx context.Context, presentationID uuid.UUID) error {
	path := fmt.Sprintf("/api/presentations/%s/live-session", presentationID)
	return c.do(ctx, http.MethodPost, path, nil)
}

func (c *Client) EndLiveSession(ctx context.Context, presentationID uuid.UUID) error {
	path := fmt.Sprintf("/api/presentations/%s/live-session", presentationID)
	return c.do(ctx, http.MethodDelete, path, nil)
}

func (c *Client) ActivateQuestion(ctx context.Context, questionID uuid.UUID) error {
	path := fmt.Sprintf("/api/questions/%s/activation", questionID)
	return c.do(ctx, http.MethodPost, path, nil)
}

func (c *Client) DeactivateQuestion(ctx context.Context, questionID uuid.UUID) error {
	path := fmt.Sprintf("/api/questions/%s/activation", questionID)
	return c.do(ctx, http.MethodDelete, path, nil)
}

func (c *Client) ReanalyzeQuestion(ctx context.Context, questionID uuid.UUID) error {
	path := fmt.Sprintf("/api/questions/%s/reanalyze", questionID)
	return c.do(ctx, http.MethodPost, path, nil)
}

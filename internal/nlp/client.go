// Package nlp implements the external NLP provider contract over HTTP.
// The core does not care which provider or model answers it; anything that
// speaks the analyze request/response shape works.
package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/metrics"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/platform/retry"
)

const maxResponseBytes = 1 << 20

var errRateLimited = errors.New("nlp provider rate limited")

type analyzeRequest struct {
	Text            string `json:"text"`
	EnableSentiment bool   `json:"enableSentiment"`
	EnableEmotion   bool   `json:"enableEmotion"`
	EnableKeywords  bool   `json:"enableKeywords"`
}

type analyzeResponse struct {
	Sentiment *scoredLabel  `json:"sentiment"`
	Emotion   *scoredLabel  `json:"emotion"`
	Keywords  []scoredLabel `json:"keywords"`
}

type scoredLabel struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Client calls the provider's analyze endpoint with a circuit breaker and a
// small retry budget. Analysis is already non-fatal upstream, so the breaker
// only protects the worker pool from hammering a dead provider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	provider   string
	breaker    *gobreaker.CircuitBreaker
	policy     retry.Policy
}

func NewClient(baseURL, apiKey, provider string, timeout time.Duration) *Client {
	settings := gobreaker.Settings{
		Name: "nlp-provider",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		Timeout: 30 * time.Second,
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			var state float64
			switch to {
			case gobreaker.StateHalfOpen:
				state = 1
			case gobreaker.StateOpen:
				state = 2
			}
			metrics.NLPCircuitState.Set(state)
			slog.Warn("NLP circuit breaker state changed", "state", to.String())
		},
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		provider:   provider,
		breaker:    gobreaker.NewCircuitBreaker(settings),
		policy: retry.Policy{
			MaxAttempts:      3,
			InitialBackoff:   200 * time.Millisecond,
			RateLimitBackoff: 2 * time.Second,
		},
	}
}

// Provider identifies which provider produced the results, recorded on the
// response row.
func (c *Client) Provider() string {
	return c.provider
}

// Analyze runs the enabled enrichments on text.
func (c *Client) Analyze(ctx context.Context, text string, opts domain.AnalysisOptions) (*domain.AnalysisResults, error) {
	classify := func(err error) retry.Action {
		switch {
		case errors.Is(err, errRateLimited):
			return retry.After
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return retry.Stop
		}
		var permanent *permanentStatusError
		if errors.As(err, &permanent) {
			return retry.Stop
		}
		return retry.Retry
	}

	return retry.Do(ctx, c.policy, classify, func() (*domain.AnalysisResults, error) {
		result, err := c.breaker.Execute(func() (any, error) {
			return c.analyzeOnce(ctx, text, opts)
		})
		if err != nil {
			return nil, err
		}
		return result.(*domain.AnalysisResults), nil
	})
}

func (c *Client) analyzeOnce(ctx context.Context, text string, opts domain.AnalysisOptions) (*domain.AnalysisResults, error) {
	body, err := json.Marshal(analyzeRequest{
		Text:            text,
		EnableSentiment: opts.Sentiment,
		EnableEmotion:   opts.Emotion,
		EnableKeywords:  opts.Keywords,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.NLPRequestsTotal.WithLabelValues("transport_error").Inc()
		return nil, fmt.Errorf("analyze request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		metrics.NLPRequestsTotal.WithLabelValues("rate_limited").Inc()
		return nil, errRateLimited
	case resp.StatusCode >= 500:
		metrics.NLPRequestsTotal.WithLabelValues("server_error").Inc()
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		metrics.NLPRequestsTotal.WithLabelValues("client_error").Inc()
		return nil, &permanentStatusError{status: resp.StatusCode}
	}

	var decoded analyzeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
		metrics.NLPRequestsTotal.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("malformed provider response: %w", err)
	}

	results, err := toResults(decoded)
	if err != nil {
		metrics.NLPRequestsTotal.WithLabelValues("malformed").Inc()
		return nil, err
	}

	metrics.NLPRequestsTotal.WithLabelValues("ok").Inc()
	return results, nil
}

// toResults validates the provider output: every present field must carry a
// label with a score in [0,1].
func toResults(decoded analyzeResponse) (*domain.AnalysisResults, error) {
	results := &domain.AnalysisResults{}

	if decoded.Sentiment != nil {
		label, err := toScoredLabel(*decoded.Sentiment, "sentiment")
		if err != nil {
			return nil, err
		}
		results.Sentiment = label
	}
	if decoded.Emotion != nil {
		label, err := toScoredLabel(*decoded.Emotion, "emotion")
		if err != nil {
			return nil, err
		}
		results.Emotion = label
	}
	for _, keyword := range decoded.Keywords {
		label, err := toScoredLabel(keyword, "keyword")
		if err != nil {
			return nil, err
		}
		results.Keywords = append(results.Keywords, *label)
	}
	return results, nil
}

func toScoredLabel(in scoredLabel, field string) (*domain.ScoredLabel, error) {
	if in.Label == "" {
		return nil, fmt.Errorf("malformed provider response: %s without label", field)
	}
	if in.Score < 0 || in.Score > 1 {
		return nil, fmt.Errorf("malformed provider response: %s score %v outside [0,1]", field, in.Score)
	}
	return &domain.ScoredLabel{Label: in.Label, Score: in.Score}, nil
}

type permanentStatusError struct {
	status int
}

func (e *permanentStatusError) Error() string {
	return fmt.Sprintf("provider returned status %d", e.status)
}

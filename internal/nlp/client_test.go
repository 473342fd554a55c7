package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
)

func TestClient_AnalyzeSuccess(t *testing.T) {
	var gotRequest analyzeRequest
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/analyze", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		json.NewEncoder(w).Encode(analyzeResponse{
			Sentiment: &scoredLabel{Label: "positive", Score: 0.92},
			Keywords: []scoredLabel{
				{Label: "latency", Score: 0.8},
				{Label: "throughput", Score: 0.4},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key", "acme", 5*time.Second)
	results, err := client.Analyze(context.Background(), "great talk about latency", domain.AnalysisOptions{
		Sentiment: true,
		Keywords:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "great talk about latency", gotRequest.Text)
	assert.True(t, gotRequest.EnableSentiment)
	assert.False(t, gotRequest.EnableEmotion)
	assert.True(t, gotRequest.EnableKeywords)

	require.NotNil(t, results.Sentiment)
	assert.Equal(t, "positive", results.Sentiment.Label)
	assert.InDelta(t, 0.92, results.Sentiment.Score, 1e-9)
	assert.Len(t, results.Keywords, 2)
	assert.Nil(t, results.Emotion)
}

func TestClient_AnalyzeOmitsAuthHeaderWithoutKey(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(analyzeResponse{Sentiment: &scoredLabel{Label: "neutral", Score: 0.5}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "acme", 5*time.Second)
	_, err := client.Analyze(context.Background(), "some text", domain.AnalysisOptions{Sentiment: true})
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestClient_AnalyzeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(analyzeResponse{Sentiment: &scoredLabel{Label: "positive", Score: 0.7}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "acme", 5*time.Second)
	results, err := client.Analyze(context.Background(), "some text", domain.AnalysisOptions{Sentiment: true})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "positive", results.Sentiment.Label)
}

func TestClient_AnalyzeGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "acme", 5*time.Second)
	_, err := client.Analyze(context.Background(), "some text", domain.AnalysisOptions{Sentiment: true})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, err.Error(), "failed after 3 attempts")
}

func TestClient_AnalyzeClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "acme", 5*time.Second)
	_, err := client.Analyze(context.Background(), "some text", domain.AnalysisOptions{Sentiment: true})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var permanent *permanentStatusError
	assert.ErrorAs(t, err, &permanent)
}

func TestClient_AnalyzeRateLimitUsesLongerBackoff(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the rate limit backoff")
	}

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(analyzeResponse{Sentiment: &scoredLabel{Label: "positive", Score: 0.7}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "acme", 5*time.Second)
	start := time.Now()
	_, err := client.Analyze(context.Background(), "some text", domain.AnalysisOptions{Sentiment: true})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.GreaterOrEqual(t, time.Since(start), 2*time.Second)
}

func TestClient_AnalyzeRejectsScoreOutOfRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(analyzeResponse{Sentiment: &scoredLabel{Label: "positive", Score: 1.5}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "acme", 5*time.Second)
	_, err := client.Analyze(context.Background(), "some text", domain.AnalysisOptions{Sentiment: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside [0,1]")
}

func TestClient_AnalyzeRejectsMissingLabel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(analyzeResponse{Sentiment: &scoredLabel{Score: 0.5}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "acme", 5*time.Second)
	_, err := client.Analyze(context.Background(), "some text", domain.AnalysisOptions{Sentiment: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without label")
}

func TestClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "acme", 5*time.Second)
	ctx := context.Background()

	// Three failed attempts per call; the breaker trips on the fifth.
	_, err := client.Analyze(ctx, "some text", domain.AnalysisOptions{Sentiment: true})
	require.Error(t, err)
	_, err = client.Analyze(ctx, "some text", domain.AnalysisOptions{Sentiment: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(5), calls.Load())

	// Open breaker rejects without touching the provider.
	_, err = client.Analyze(ctx, "some text", domain.AnalysisOptions{Sentiment: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(5), calls.Load())
}

func TestDisabled_AlwaysFails(t *testing.T) {
	var d Disabled
	_, err := d.Analyze(context.Background(), "anything", domain.AnalysisOptions{Sentiment: true})
	require.Error(t, err)
	assert.Equal(t, "disabled", d.Provider())
}

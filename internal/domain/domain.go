package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// --- Model types ---

type Presentation struct {
	ID            uuid.UUID  `db:"id"`
	OwnerID       uuid.UUID  `db:"owner_id"`
	Title         string     `db:"title"`
	IsLive        bool       `db:"is_live"`
	LiveStartedAt *time.Time `db:"live_started_at"`
	LiveEndedAt   *time.Time `db:"live_ended_at"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

type Question struct {
	ID             uuid.UUID      `db:"id"`
	PresentationID uuid.UUID      `db:"presentation_id"`
	Order          int            `db:"position"`
	Type           QuestionType   `db:"type"`
	Config         QuestionConfig `db:"config"`
	IsLive         bool           `db:"is_live"`
	LiveStartedAt  *time.Time     `db:"live_started_at"`
	LiveEndedAt    *time.Time     `db:"live_ended_at"`
}

// Response rows are append-only. Analysis fields stay zero until the
// pipeline completes or fails; a failed analysis never invalidates the row.
type Response struct {
	ID                uuid.UUID        `db:"id"`
	QuestionID        uuid.UUID        `db:"question_id"`
	SessionID         string           `db:"session_id"`
	Value             string           `db:"value"`
	CreatedAt         time.Time        `db:"created_at"`
	AnalysisResults   *AnalysisResults `db:"analysis_results"`
	AnalysisCompleted bool             `db:"analysis_completed"`
	AnalysisProvider  string           `db:"analysis_provider"`
	AnalysisError     string           `db:"analysis_error"`
}

// ScoredLabel is a label with a confidence/relevance score in [0,1].
type ScoredLabel struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// AnalysisResults carries whatever enrichment the provider returned.
// Absent fields mean the matching option was not enabled.
type AnalysisResults struct {
	Sentiment *ScoredLabel  `json:"sentiment,omitempty"`
	Emotion   *ScoredLabel  `json:"emotion,omitempty"`
	Keywords  []ScoredLabel `json:"keywords,omitempty"`
}

// AnalysisOptions selects which enrichments the provider should run.
type AnalysisOptions struct {
	Sentiment bool `json:"enableSentiment"`
	Emotion   bool `json:"enableEmotion"`
	Keywords  bool `json:"enableKeywords"`
}

// Enabled reports whether at least one enrichment is requested.
func (o AnalysisOptions) Enabled() bool {
	return o.Sentiment || o.Emotion || o.Keywords
}

// Identity is a verified presenter identity as supplied by the auth collaborator.
type Identity struct {
	UserID uuid.UUID
	Name   string
}

// LiveStatus is the authoritative snapshot served by the REST fallback.
type LiveStatus struct {
	PresentationID   uuid.UUID  `json:"presentationId"`
	IsLive           bool       `json:"isLive"`
	LiveStartedAt    *time.Time `json:"liveStartedAt,omitempty"`
	ActiveQuestionID *uuid.UUID `json:"activeQuestionId,omitempty"`
	AudienceCount    int        `json:"audienceCount"`
	PeakAudience     int        `json:"peakAudience"`
}

// QuestionResults is the aggregated results view for one question.
type QuestionResults struct {
	QuestionID uuid.UUID      `json:"questionId"`
	Total      int            `json:"total"`
	Counts     map[string]int `json:"counts"`
	Responses  []Response     `json:"responses"`
}

// --- Repository interfaces ---

type PresentationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Presentation, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Presentation, error)
	SetLive(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	SetNotLive(ctx context.Context, id uuid.UUID, endedAt time.Time) error
}

type QuestionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Question, error)
	ListByPresentation(ctx context.Context, presentationID uuid.UUID) ([]Question, error)
	SetActive(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	SetInactive(ctx context.Context, id uuid.UUID, endedAt time.Time) error
	// DeactivateAllForPresentation forces every active question of the
	// presentation back to inactive and returns the affected question IDs.
	DeactivateAllForPresentation(ctx context.Context, presentationID uuid.UUID, endedAt time.Time) ([]uuid.UUID, error)
}

type ResponseRepository interface {
	Insert(ctx context.Context, response *Response) error
	GetByID(ctx context.Context, id uuid.UUID) (*Response, error)
	ListByQuestion(ctx context.Context, questionID uuid.UUID) ([]Response, error)
	SetAnalysis(ctx context.Context, id uuid.UUID, results *AnalysisResults, provider string) error
	SetAnalysisError(ctx context.Context, id uuid.UUID, message string) error
	ClearAnalysis(ctx context.Context, questionID uuid.UUID) error
}

// --- Collaborator interfaces ---

// Authorizer verifies a bearer credential and resolves the presenter identity.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (*Identity, error)
}

// Analyzer is the external NLP provider contract. Implementations decide
// which provider or model answers it.
type Analyzer interface {
	Analyze(ctx context.Context, text string, opts AnalysisOptions) (*AnalysisResults, error)
	Provider() string
}

// Publisher fans events out to presentation-scoped groups. Delivery is
// at-most-once and best-effort; a disconnected client misses events.
type Publisher interface {
	ToAudience(presentationID uuid.UUID, event Event)
	ToPresenter(presentationID uuid.UUID, event Event)
}

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType tags the broadcast event union.
type EventType string

const (
	EventLiveSessionStarted     EventType = "live_session_started"
	EventLiveSessionEnded       EventType = "live_session_ended"
	EventQuestionActivated      EventType = "question_activated"
	EventQuestionDeactivated    EventType = "question_deactivated"
	EventResponseReceived       EventType = "response_received"
	EventAudienceCountUpdated   EventType = "audience_count_updated"
	EventNLPAnalysisCompleted   EventType = "nlp_analysis_completed"
	EventError                  EventType = "error"
	EventJoinedPresentation     EventType = "joined_presentation"
	EventLeftPresentation       EventType = "left_presentation"
	EventJoinedPresenterSession EventType = "joined_presenter_session"
)

// Event is the wire envelope broadcast to clients. Data holds the payload
// specific to the event kind.
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals payload into an Event envelope. Marshal failures are a
// programming error on payload types, so they panic rather than vanish.
func NewEvent(t EventType, payload any) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		panic("unmarshalable event payload: " + err.Error())
	}
	return Event{Type: t, Data: data}
}

// --- Event payloads ---

type LiveSessionPayload struct {
	PresentationID uuid.UUID  `json:"presentationId"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
}

type QuestionTransitionPayload struct {
	PresentationID uuid.UUID `json:"presentationId"`
	QuestionID     uuid.UUID `json:"questionId"`
	At             time.Time `json:"at"`
}

type ResponseReceivedPayload struct {
	PresentationID uuid.UUID `json:"presentationId"`
	QuestionID     uuid.UUID `json:"questionId"`
	ResponseID     uuid.UUID `json:"responseId"`
	SessionID      string    `json:"sessionId"`
	Value          string    `json:"value"`
	ReceivedAt     time.Time `json:"receivedAt"`
}

type AudienceCountPayload struct {
	PresentationID uuid.UUID `json:"presentationId"`
	Count          int       `json:"count"`
}

type AnalysisCompletedPayload struct {
	QuestionID uuid.UUID        `json:"questionId"`
	ResponseID uuid.UUID        `json:"responseId"`
	Provider   string           `json:"provider,omitempty"`
	Results    *AnalysisResults `json:"results,omitempty"`
	Failed     bool             `json:"failed,omitempty"`
	Error      string           `json:"error,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type JoinAckPayload struct {
	PresentationID uuid.UUID `json:"presentationId"`
	Role           Role      `json:"role"`
}

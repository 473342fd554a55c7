// Package live owns the presentation and question live-state transitions.
// Transitions are serialized per presentation, commit to the store first,
// and notify the hub only after a successful commit.
package live

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/metrics"
)

const lockStripes = 64

// AudienceEvictor drops a presentation's audience connections out of their
// broadcast group when its live session ends. The connections stay on the
// transport; only the group membership goes.
type AudienceEvictor interface {
	EvictAudience(presentationID uuid.UUID)
}

// Machine validates and commits live-state transitions.
type Machine struct {
	presentations domain.PresentationRepository
	questions     domain.QuestionRepository
	publisher     domain.Publisher
	evictor       AudienceEvictor
	clock         clockwork.Clock

	// Striped per-presentation locks. Two concurrent transitions for the
	// same presentation serialize here, which is what keeps the
	// one-active-question invariant intact under racing activations.
	locks [lockStripes]sync.Mutex
}

func NewMachine(presentations domain.PresentationRepository, questions domain.QuestionRepository, publisher domain.Publisher, evictor AudienceEvictor, clock clockwork.Clock) *Machine {
	return &Machine{
		presentations: presentations,
		questions:     questions,
		publisher:     publisher,
		evictor:       evictor,
		clock:         clock,
	}
}

func (m *Machine) lock(presentationID uuid.UUID) *sync.Mutex {
	h := fnv.New32a()
	h.Write(presentationID[:])
	return &m.locks[h.Sum32()%lockStripes]
}

// StartSession transitions a presentation from NotLive to Live.
func (m *Machine) StartSession(ctx context.Context, presentationID uuid.UUID) error {
	mu := m.lock(presentationID)
	mu.Lock()
	defer mu.Unlock()

	presentation, err := m.presentations.GetByID(ctx, presentationID)
	if err != nil {
		metrics.LiveTransitionsTotal.WithLabelValues("start_session", "error").Inc()
		return err
	}
	if presentation.IsLive {
		metrics.LiveTransitionsTotal.WithLabelValues("start_session", "rejected").Inc()
		return domain.ErrSessionAlreadyLive
	}

	now := m.clock.Now().UTC()
	if err := m.presentations.SetLive(ctx, presentationID, now); err != nil {
		metrics.LiveTransitionsTotal.WithLabelValues("start_session", "error").Inc()
		return err
	}

	metrics.LiveTransitionsTotal.WithLabelValues("start_session", "success").Inc()
	slog.Info("Live session started", "presentation_id", presentationID.String())
	m.publisher.ToAudience(presentationID, domain.NewEvent(domain.EventLiveSessionStarted, domain.LiveSessionPayload{
		PresentationID: presentationID,
		StartedAt:      &now,
	}))
	return nil
}

// EndSession transitions a presentation from Live back to NotLive, forces any
// active question under it to inactive, and evicts the audience from its
// broadcast group.
func (m *Machine) EndSession(ctx context.Context, presentationID uuid.UUID) error {
	mu := m.lock(presentationID)
	mu.Lock()
	defer mu.Unlock()

	presentation, err := m.presentations.GetByID(ctx, presentationID)
	if err != nil {
		metrics.LiveTransitionsTotal.WithLabelValues("end_session", "error").Inc()
		return err
	}
	if !presentation.IsLive {
		metrics.LiveTransitionsTotal.WithLabelValues("end_session", "rejected").Inc()
		return domain.ErrSessionNotLive
	}

	now := m.clock.Now().UTC()
	forced, err := m.questions.DeactivateAllForPresentation(ctx, presentationID, now)
	if err != nil {
		metrics.LiveTransitionsTotal.WithLabelValues("end_session", "error").Inc()
		return err
	}
	if err := m.presentations.SetNotLive(ctx, presentationID, now); err != nil {
		metrics.LiveTransitionsTotal.WithLabelValues("end_session", "error").Inc()
		return err
	}

	metrics.LiveTransitionsTotal.WithLabelValues("end_session", "success").Inc()
	slog.Info("Live session ended", "presentation_id", presentationID.String(), "forced_inactive", len(forced))

	for _, questionID := range forced {
		m.publisher.ToAudience(presentationID, domain.NewEvent(domain.EventQuestionDeactivated, domain.QuestionTransitionPayload{
			PresentationID: presentationID,
			QuestionID:     questionID,
			At:             now,
		}))
	}
	m.publisher.ToAudience(presentationID, domain.NewEvent(domain.EventLiveSessionEnded, domain.LiveSessionPayload{
		PresentationID: presentationID,
		EndedAt:        &now,
	}))

	if m.evictor != nil {
		m.evictor.EvictAudience(presentationID)
	}
	return nil
}

// ActivateQuestion transitions a question from Inactive to Active. The
// presentation must be live. Any other active question of the same
// presentation is forced to inactive first, so at most one question per
// presentation is active at a time.
func (m *Machine) ActivateQuestion(ctx context.Context, questionID uuid.UUID) error {
	question, err := m.questions.GetByID(ctx, questionID)
	if err != nil {
		metrics.LiveTransitionsTotal.WithLabelValues("activate_question", "error").Inc()
		return err
	}

	mu := m.lock(question.PresentationID)
	mu.Lock()
	defer mu.Unlock()

	presentation, err := m.presentations.GetByID(ctx, question.PresentationID)
	if err != nil {
		metrics.LiveTransitionsTotal.WithLabelValues("activate_question", "error").Inc()
		return err
	}
	if !presentation.IsLive {
		metrics.LiveTransitionsTotal.WithLabelValues("activate_question", "rejected").Inc()
		return domain.ErrSessionNotLive
	}

	now := m.clock.Now().UTC()
	forced, err := m.questions.DeactivateAllForPresentation(ctx, question.PresentationID, now)
	if err != nil {
		metrics.LiveTransitionsTotal.WithLabelValues("activate_question", "error").Inc()
		return err
	}
	if err := m.questions.SetActive(ctx, questionID, now); err != nil {
		metrics.LiveTransitionsTotal.WithLabelValues("activate_question", "error").Inc()
		return err
	}

	metrics.LiveTransitionsTotal.WithLabelValues("activate_question", "success").Inc()
	slog.Info("Question activated", "presentation_id", question.PresentationID.String(), "question_id", questionID.String())

	for _, forcedID := range forced {
		if forcedID == questionID {
			continue
		}
		m.publisher.ToAudience(question.PresentationID, domain.NewEvent(domain.EventQuestionDeactivated, domain.QuestionTransitionPayload{
			PresentationID: question.PresentationID,
			QuestionID:     forcedID,
			At:             now,
		}))
	}
	m.publisher.ToAudience(question.PresentationID, domain.NewEvent(domain.EventQuestionActivated, domain.QuestionTransitionPayload{
		PresentationID: question.PresentationID,
		QuestionID:     questionID,
		At:             now,
	}))
	return nil
}

// DeactivateQuestion transitions a question from Active to Inactive. It is
// idempotent: deactivating an already-inactive question succeeds without
// re-broadcasting.
func (m *Machine) DeactivateQuestion(ctx context.Context, questionID uuid.UUID) error {
	question, err := m.questions.GetByID(ctx, questionID)
	if err != nil {
		metrics.LiveTransitionsTotal.WithLabelValues("deactivate_question", "error").Inc()
		return err
	}

	mu := m.lock(question.PresentationID)
	mu.Lock()
	defer mu.Unlock()

	// Re-read under the lock so an already-inactive question short-circuits.
	question, err = m.questions.GetByID(ctx, questionID)
	if err != nil {
		metrics.LiveTransitionsTotal.WithLabelValues("deactivate_question", "error").Inc()
		return err
	}
	if !question.IsLive {
		metrics.LiveTransitionsTotal.WithLabelValues("deactivate_question", "noop").Inc()
		return nil
	}

	now := m.clock.Now().UTC()
	if err := m.questions.SetInactive(ctx, questionID, now); err != nil {
		metrics.LiveTransitionsTotal.WithLabelValues("deactivate_question", "error").Inc()
		return err
	}

	metrics.LiveTransitionsTotal.WithLabelValues("deactivate_question", "success").Inc()
	slog.Info("Question deactivated", "presentation_id", question.PresentationID.String(), "question_id", questionID.String())
	m.publisher.ToAudience(question.PresentationID, domain.NewEvent(domain.EventQuestionDeactivated, domain.QuestionTransitionPayload{
		PresentationID: question.PresentationID,
		QuestionID:     questionID,
		At:             now,
	}))
	return nil
}

package live

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
)

type fakePresentationRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*domain.Presentation
}

func newFakePresentationRepo(presentations ...*domain.Presentation) *fakePresentationRepo {
	r := &fakePresentationRepo{items: make(map[uuid.UUID]*domain.Presentation)}
	for _, p := range presentations {
		r.items[p.ID] = p
	}
	return r
}

func (r *fakePresentationRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Presentation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[id]
	if !ok {
		return nil, domain.ErrPresentationNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *fakePresentationRepo) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]domain.Presentation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Presentation
	for _, p := range r.items {
		if p.OwnerID == ownerID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakePresentationRepo) SetLive(_ context.Context, id uuid.UUID, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[id]
	if !ok {
		return domain.ErrPresentationNotFound
	}
	p.IsLive = true
	p.LiveStartedAt = &startedAt
	p.LiveEndedAt = nil
	return nil
}

func (r *fakePresentationRepo) SetNotLive(_ context.Context, id uuid.UUID, endedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[id]
	if !ok {
		return domain.ErrPresentationNotFound
	}
	p.IsLive = false
	p.LiveEndedAt = &endedAt
	return nil
}

type fakeQuestionRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*domain.Question
}

func newFakeQuestionRepo(questions ...*domain.Question) *fakeQuestionRepo {
	r := &fakeQuestionRepo{items: make(map[uuid.UUID]*domain.Question)}
	for _, q := range questions {
		r.items[q.ID] = q
	}
	return r
}

func (r *fakeQuestionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.items[id]
	if !ok {
		return nil, domain.ErrQuestionNotFound
	}
	copied := *q
	return &copied, nil
}

func (r *fakeQuestionRepo) ListByPresentation(_ context.Context, presentationID uuid.UUID) ([]domain.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Question
	for _, q := range r.items {
		if q.PresentationID == presentationID {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (r *fakeQuestionRepo) SetActive(_ context.Context, id uuid.UUID, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.items[id]
	if !ok {
		return domain.ErrQuestionNotFound
	}
	q.IsLive = true
	q.LiveStartedAt = &startedAt
	q.LiveEndedAt = nil
	return nil
}

func (r *fakeQuestionRepo) SetInactive(_ context.Context, id uuid.UUID, endedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.items[id]
	if !ok {
		return domain.ErrQuestionNotFound
	}
	q.IsLive = false
	q.LiveEndedAt = &endedAt
	return nil
}

func (r *fakeQuestionRepo) DeactivateAllForPresentation(_ context.Context, presentationID uuid.UUID, endedAt time.Time) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var forced []uuid.UUID
	for _, q := range r.items {
		if q.PresentationID == presentationID && q.IsLive {
			q.IsLive = false
			q.LiveEndedAt = &endedAt
			forced = append(forced, q.ID)
		}
	}
	return forced, nil
}

func (r *fakeQuestionRepo) activeCount(presentationID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, q := range r.items {
		if q.PresentationID == presentationID && q.IsLive {
			count++
		}
	}
	return count
}

type recordedEvent struct {
	group string
	event domain.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) ToAudience(presentationID uuid.UUID, event domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{group: "audience:" + presentationID.String(), event: event})
}

func (p *recordingPublisher) ToPresenter(presentationID uuid.UUID, event domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{group: "presenter:" + presentationID.String(), event: event})
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.event.Type)
	}
	return out
}

type recordingEvictor struct {
	mu      sync.Mutex
	evicted []uuid.UUID
}

func (e *recordingEvictor) EvictAudience(presentationID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evicted = append(e.evicted, presentationID)
}

func testMachine(presentations *fakePresentationRepo, questions *fakeQuestionRepo) (*Machine, *recordingPublisher, *recordingEvictor) {
	publisher := &recordingPublisher{}
	evictor := &recordingEvictor{}
	machine := NewMachine(presentations, questions, publisher, evictor, clockwork.NewFakeClock())
	return machine, publisher, evictor
}

func TestMachine_StartSession(t *testing.T) {
	presentationID := uuid.New()
	presentations := newFakePresentationRepo(&domain.Presentation{ID: presentationID})
	machine, publisher, _ := testMachine(presentations, newFakeQuestionRepo())

	require.NoError(t, machine.StartSession(context.Background(), presentationID))

	p, err := presentations.GetByID(context.Background(), presentationID)
	require.NoError(t, err)
	assert.True(t, p.IsLive)
	assert.NotNil(t, p.LiveStartedAt)
	assert.Equal(t, []domain.EventType{domain.EventLiveSessionStarted}, publisher.types())
}

func TestMachine_StartSessionAlreadyLive(t *testing.T) {
	presentationID := uuid.New()
	presentations := newFakePresentationRepo(&domain.Presentation{ID: presentationID, IsLive: true})
	machine, publisher, _ := testMachine(presentations, newFakeQuestionRepo())

	err := machine.StartSession(context.Background(), presentationID)
	assert.ErrorIs(t, err, domain.ErrSessionAlreadyLive)
	assert.Empty(t, publisher.types())
}

func TestMachine_StartSessionUnknownPresentation(t *testing.T) {
	machine, _, _ := testMachine(newFakePresentationRepo(), newFakeQuestionRepo())

	err := machine.StartSession(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrPresentationNotFound)
}

func TestMachine_EndSessionNotLive(t *testing.T) {
	presentationID := uuid.New()
	presentations := newFakePresentationRepo(&domain.Presentation{ID: presentationID})
	machine, publisher, evictor := testMachine(presentations, newFakeQuestionRepo())

	err := machine.EndSession(context.Background(), presentationID)
	assert.ErrorIs(t, err, domain.ErrSessionNotLive)
	assert.Empty(t, publisher.types())
	assert.Empty(t, evictor.evicted)
}

func TestMachine_EndSessionForcesActiveQuestionInactive(t *testing.T) {
	presentationID := uuid.New()
	questionID := uuid.New()
	presentations := newFakePresentationRepo(&domain.Presentation{ID: presentationID, IsLive: true})
	questions := newFakeQuestionRepo(&domain.Question{ID: questionID, PresentationID: presentationID, IsLive: true})
	machine, publisher, evictor := testMachine(presentations, questions)

	require.NoError(t, machine.EndSession(context.Background(), presentationID))

	p, err := presentations.GetByID(context.Background(), presentationID)
	require.NoError(t, err)
	assert.False(t, p.IsLive)
	assert.Equal(t, 0, questions.activeCount(presentationID))

	// Forced deactivation is announced before the session end
	assert.Equal(t, []domain.EventType{domain.EventQuestionDeactivated, domain.EventLiveSessionEnded}, publisher.types())
	assert.Equal(t, []uuid.UUID{presentationID}, evictor.evicted)
}

func TestMachine_ActivateQuestionRequiresLiveSession(t *testing.T) {
	presentationID := uuid.New()
	questionID := uuid.New()
	presentations := newFakePresentationRepo(&domain.Presentation{ID: presentationID})
	questions := newFakeQuestionRepo(&domain.Question{ID: questionID, PresentationID: presentationID})
	machine, publisher, _ := testMachine(presentations, questions)

	err := machine.ActivateQuestion(context.Background(), questionID)
	assert.ErrorIs(t, err, domain.ErrSessionNotLive)
	assert.Equal(t, 0, questions.activeCount(presentationID))
	assert.Empty(t, publisher.types())
}

func TestMachine_ActivateQuestionReplacesActive(t *testing.T) {
	presentationID := uuid.New()
	q1 := uuid.New()
	q2 := uuid.New()
	presentations := newFakePresentationRepo(&domain.Presentation{ID: presentationID, IsLive: true})
	questions := newFakeQuestionRepo(
		&domain.Question{ID: q1, PresentationID: presentationID, IsLive: true},
		&domain.Question{ID: q2, PresentationID: presentationID},
	)
	machine, publisher, _ := testMachine(presentations, questions)

	require.NoError(t, machine.ActivateQuestion(context.Background(), q2))

	assert.Equal(t, 1, questions.activeCount(presentationID))
	active, err := questions.GetByID(context.Background(), q2)
	require.NoError(t, err)
	assert.True(t, active.IsLive)

	assert.Equal(t, []domain.EventType{domain.EventQuestionDeactivated, domain.EventQuestionActivated}, publisher.types())
}

func TestMachine_ActivateQuestionUnknown(t *testing.T) {
	machine, _, _ := testMachine(newFakePresentationRepo(), newFakeQuestionRepo())

	err := machine.ActivateQuestion(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)
}

func TestMachine_DeactivateQuestion(t *testing.T) {
	presentationID := uuid.New()
	questionID := uuid.New()
	presentations := newFakePresentationRepo(&domain.Presentation{ID: presentationID, IsLive: true})
	questions := newFakeQuestionRepo(&domain.Question{ID: questionID, PresentationID: presentationID, IsLive: true})
	machine, publisher, _ := testMachine(presentations, questions)

	require.NoError(t, machine.DeactivateQuestion(context.Background(), questionID))
	assert.Equal(t, 0, questions.activeCount(presentationID))
	assert.Equal(t, []domain.EventType{domain.EventQuestionDeactivated}, publisher.types())
}

func TestMachine_DeactivateInactiveQuestionIsNoop(t *testing.T) {
	presentationID := uuid.New()
	questionID := uuid.New()
	presentations := newFakePresentationRepo(&domain.Presentation{ID: presentationID, IsLive: true})
	questions := newFakeQuestionRepo(&domain.Question{ID: questionID, PresentationID: presentationID})
	machine, publisher, _ := testMachine(presentations, questions)

	require.NoError(t, machine.DeactivateQuestion(context.Background(), questionID))
	assert.Empty(t, publisher.types())
}

func TestMachine_ConcurrentActivationsKeepSingleActiveQuestion(t *testing.T) {
	presentationID := uuid.New()
	q1 := uuid.New()
	q2 := uuid.New()
	presentations := newFakePresentationRepo(&domain.Presentation{ID: presentationID, IsLive: true})
	questions := newFakeQuestionRepo(
		&domain.Question{ID: q1, PresentationID: presentationID},
		&domain.Question{ID: q2, PresentationID: presentationID},
	)
	machine, _, _ := testMachine(presentations, questions)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		target := q1
		if i%2 == 0 {
			target = q2
		}
		go func() {
			defer wg.Done()
			_ = machine.ActivateQuestion(context.Background(), target)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, questions.activeCount(presentationID), 1)
}

package reconcile

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/metrics"
)

// PushState reflects the health of the push channel as shown to the user.
type PushState string

const (
	PushConnected    PushState = "connected"
	PushReconnecting PushState = "reconnecting"
	PushOffline      PushState = "offline"
)

const (
	refreshDebounce    = 1 * time.Second
	backupPollInterval = 10 * time.Second
	fetchTimeout       = 10 * time.Second
)

// View is the reconciled local state for one presentation. Push events mark
// parts of it stale; REST fetches are the only writes of remote state. One
// shared poll ticker covers all expanded questions, so backup request volume
// stays constant no matter how many questions are open.
type View struct {
	presentationID uuid.UUID
	fetcher        Fetcher
	mutator        Mutator
	clock          clockwork.Clock

	mu          sync.Mutex
	status      domain.LiveStatus
	results     map[uuid.UUID]domain.QuestionResults
	expanded    map[uuid.UUID]bool
	lastRefresh map[uuid.UUID]time.Time
	pending     map[uuid.UUID]bool
	pushState   PushState

	stopC    chan struct{}
	stopOnce sync.Once
}

func NewView(presentationID uuid.UUID, fetcher Fetcher, mutator Mutator, clock clockwork.Clock) *View {
	v := &View{
		presentationID: presentationID,
		fetcher:        fetcher,
		mutator:        mutator,
		clock:          clock,
		status:         domain.LiveStatus{PresentationID: presentationID},
		results:        make(map[uuid.UUID]domain.QuestionResults),
		expanded:       make(map[uuid.UUID]bool),
		lastRefresh:    make(map[uuid.UUID]time.Time),
		pending:        make(map[uuid.UUID]bool),
		pushState:      PushReconnecting,
		stopC:          make(chan struct{}),
	}
	go v.pollLoop()
	return v
}

func (v *View) Stop() {
	v.stopOnce.Do(func() { close(v.stopC) })
}

// --- Snapshots ---

func (v *View) Status() domain.LiveStatus {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

func (v *View) Results(questionID uuid.UUID) (domain.QuestionResults, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	results, ok := v.results[questionID]
	return results, ok
}

func (v *View) ConnectionState() PushState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pushState
}

// --- Push channel hooks ---

// SetPushState records channel health. Regaining the connection refetches the
// authoritative status, since events were missed while it was down.
func (v *View) SetPushState(state PushState) {
	v.mu.Lock()
	previous := v.pushState
	v.pushState = state
	v.mu.Unlock()

	if state == PushConnected && previous != PushConnected {
		go v.refreshStatus()
	}
}

// HandleEvent consumes one push event. Events never carry state into the
// view directly; they mark the status or one question's results stale.
func (v *View) HandleEvent(event domain.Event) {
	metrics.ReconcilePushEventsTotal.WithLabelValues(string(event.Type)).Inc()

	switch event.Type {
	case domain.EventLiveSessionStarted, domain.EventLiveSessionEnded,
		domain.EventQuestionActivated, domain.EventQuestionDeactivated:
		go v.refreshStatus()

	case domain.EventAudienceCountUpdated:
		var payload domain.AudienceCountPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return
		}
		v.mu.Lock()
		v.status.AudienceCount = payload.Count
		if payload.Count > v.status.PeakAudience {
			v.status.PeakAudience = payload.Count
		}
		v.mu.Unlock()

	case domain.EventResponseReceived:
		var payload domain.ResponseReceivedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return
		}
		v.scheduleResultsRefresh(payload.QuestionID)

	case domain.EventNLPAnalysisCompleted:
		var payload domain.AnalysisCompletedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return
		}
		v.scheduleResultsRefresh(payload.QuestionID)
	}
}

// --- Expansion and refresh ---

func (v *View) Expand(questionID uuid.UUID) {
	v.mu.Lock()
	v.expanded[questionID] = true
	v.mu.Unlock()
	go v.refreshResults(questionID)
}

func (v *View) Collapse(questionID uuid.UUID) {
	v.mu.Lock()
	delete(v.expanded, questionID)
	v.mu.Unlock()
}

// Refresh bypasses both the debounce window and the backup poll.
func (v *View) Refresh(ctx context.Context, questionID uuid.UUID) error {
	results, err := v.fetcher.GetQuestionResults(ctx, v.presentationID, questionID)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.results[questionID] = *results
	v.lastRefresh[questionID] = v.clock.Now()
	v.mu.Unlock()
	return nil
}

// scheduleResultsRefresh coalesces refreshes for one question to at most one
// per debounce window.
func (v *View) scheduleResultsRefresh(questionID uuid.UUID) {
	v.mu.Lock()
	if v.pending[questionID] {
		v.mu.Unlock()
		return
	}

	elapsed := v.clock.Since(v.lastRefresh[questionID])
	if elapsed >= refreshDebounce {
		v.lastRefresh[questionID] = v.clock.Now()
		v.mu.Unlock()
		go v.refreshResults(questionID)
		return
	}

	v.pending[questionID] = true
	v.mu.Unlock()

	v.clock.AfterFunc(refreshDebounce-elapsed, func() {
		v.mu.Lock()
		delete(v.pending, questionID)
		v.lastRefresh[questionID] = v.clock.Now()
		v.mu.Unlock()
		v.refreshResults(questionID)
	})
}

func (v *View) refreshResults(questionID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	results, err := v.fetcher.GetQuestionResults(ctx, v.presentationID, questionID)
	if err != nil {
		slog.Warn("results refresh failed", "question_id", questionID, "error", err)
		return
	}
	v.mu.Lock()
	v.results[questionID] = *results
	v.mu.Unlock()
}

func (v *View) refreshStatus() {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	status, err := v.fetcher.GetLiveSessionStatus(ctx, v.presentationID)
	if err != nil {
		slog.Warn("status refresh failed", "presentation_id", v.presentationID, "error", err)
		return
	}
	v.mu.Lock()
	v.status = *status
	v.mu.Unlock()
}

// pollLoop drives the backup poll. It fires only while the push channel is
// down, and only refreshes expanded questions that are currently active.
func (v *View) pollLoop() {
	ticker := v.clock.NewTicker(backupPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-v.stopC:
			return
		case <-ticker.Chan():
		}

		v.mu.Lock()
		connected := v.pushState == PushConnected
		v.mu.Unlock()
		if connected {
			continue
		}

		metrics.ReconcileBackupPollsTotal.Inc()
		v.refreshStatus()

		v.mu.Lock()
		var active uuid.UUID
		if v.status.ActiveQuestionID != nil {
			active = *v.status.ActiveQuestionID
		}
		refresh := active != uuid.Nil && v.expanded[active]
		v.mu.Unlock()

		if refresh {
			v.refreshResults(active)
		}
	}
}

// --- Optimistic presenter actions ---

// StartLiveSession flips the local status live before the call resolves and
// restores the captured prior value if it fails.
func (v *View) StartLiveSession(ctx context.Context) error {
	v.mu.Lock()
	prior := v.status
	now := v.clock.Now()
	v.status.IsLive = true
	v.status.LiveStartedAt = &now
	v.mu.Unlock()

	if err := v.mutator.StartLiveSession(ctx, v.presentationID); err != nil {
		v.rollbackStatus(prior)
		return err
	}
	return nil
}

func (v *View) EndLiveSession(ctx context.Context) error {
	v.mu.Lock()
	prior := v.status
	v.status.IsLive = false
	v.status.ActiveQuestionID = nil
	v.mu.Unlock()

	if err := v.mutator.EndLiveSession(ctx, v.presentationID); err != nil {
		v.rollbackStatus(prior)
		return err
	}
	return nil
}

func (v *View) ActivateQuestion(ctx context.Context, questionID uuid.UUID) error {
	v.mu.Lock()
	prior := v.status
	id := questionID
	v.status.ActiveQuestionID = &id
	v.mu.Unlock()

	if err := v.mutator.ActivateQuestion(ctx, questionID); err != nil {
		v.rollbackStatus(prior)
		return err
	}
	return nil
}

func (v *View) DeactivateQuestion(ctx context.Context, questionID uuid.UUID) error {
	v.mu.Lock()
	prior := v.status
	if v.status.ActiveQuestionID != nil && *v.status.ActiveQuestionID == questionID {
		v.status.ActiveQuestionID = nil
	}
	v.mu.Unlock()

	if err := v.mutator.DeactivateQuestion(ctx, questionID); err != nil {
		v.rollbackStatus(prior)
		return err
	}
	return nil
}

func (v *View) rollbackStatus(prior domain.LiveStatus) {
	v.mu.Lock()
	v.status = prior
	v.mu.Unlock()
	metrics.ReconcileRollbacksTotal.Inc()
}

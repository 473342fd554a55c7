// Package registry tracks which connection belongs to which presentation and
// role. Membership is per-process and in-memory: it is populated on connect,
// purged on disconnect, and starts from zero connections after a process
// restart. No reconnect state survives a restart; clients re-join through the
// hub. The interface is narrow so the membership table could later be swapped
// for a shared backplane without touching callers.
package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/metrics"
)

// AudienceChangeHandler is called after every successful join or leave that
// affects an audience group, with the recomputed count.
type AudienceChangeHandler func(presentationID uuid.UUID, count int)

type Registry struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]domain.Connection
	audience    map[uuid.UUID]map[uuid.UUID]struct{}
	presenters  map[uuid.UUID]map[uuid.UUID]struct{}
	peaks       map[uuid.UUID]int
	onAudience  AudienceChangeHandler
}

func New() *Registry {
	return &Registry{
		connections: make(map[uuid.UUID]domain.Connection),
		audience:    make(map[uuid.UUID]map[uuid.UUID]struct{}),
		presenters:  make(map[uuid.UUID]map[uuid.UUID]struct{}),
		peaks:       make(map[uuid.UUID]int),
	}
}

// SetAudienceChangeHandler wires the callback that announces audience counts
// to the presenter group. Must be called before connections arrive.
func (r *Registry) SetAudienceChangeHandler(fn AudienceChangeHandler) {
	r.mu.Lock()
	r.onAudience = fn
	r.mu.Unlock()
}

// JoinAudience registers an anonymous audience connection. It never requires
// an identity and succeeds for never-before-seen connections.
func (r *Registry) JoinAudience(presentationID, connectionID uuid.UUID) int {
	r.mu.Lock()
	r.leaveLocked(connectionID)

	r.connections[connectionID] = domain.Connection{
		ConnectionID:   connectionID,
		PresentationID: presentationID,
		Role:           domain.RoleAudience,
	}
	group := r.audience[presentationID]
	if group == nil {
		group = make(map[uuid.UUID]struct{})
		r.audience[presentationID] = group
	}
	group[connectionID] = struct{}{}
	count := len(group)
	if count > r.peaks[presentationID] {
		r.peaks[presentationID] = count
	}
	onAudience := r.onAudience
	r.mu.Unlock()

	metrics.RegistryAudienceConnections.Inc()
	if onAudience != nil {
		onAudience(presentationID, count)
	}
	return count
}

// JoinPresenter registers a presenter connection. Identity verification
// happens at the hub boundary before this is called.
func (r *Registry) JoinPresenter(presentationID, connectionID uuid.UUID) {
	r.mu.Lock()
	r.leaveLocked(connectionID)

	r.connections[connectionID] = domain.Connection{
		ConnectionID:   connectionID,
		PresentationID: presentationID,
		Role:           domain.RolePresenter,
	}
	group := r.presenters[presentationID]
	if group == nil {
		group = make(map[uuid.UUID]struct{})
		r.presenters[presentationID] = group
	}
	group[connectionID] = struct{}{}
	r.mu.Unlock()

	metrics.RegistryPresenterConnections.Inc()
}

// Leave removes a connection from its group. It reports the membership the
// connection had, if any.
func (r *Registry) Leave(connectionID uuid.UUID) (domain.Connection, bool) {
	r.mu.Lock()
	conn, existed := r.connections[connectionID]
	if !existed {
		r.mu.Unlock()
		return domain.Connection{}, false
	}
	count := r.leaveLocked(connectionID)
	onAudience := r.onAudience
	r.mu.Unlock()

	switch conn.Role {
	case domain.RoleAudience:
		metrics.RegistryAudienceConnections.Dec()
		if onAudience != nil {
			onAudience(conn.PresentationID, count)
		}
	case domain.RolePresenter:
		metrics.RegistryPresenterConnections.Dec()
	}
	return conn, true
}

// leaveLocked removes the connection under the held lock and returns the
// remaining audience count of the presentation it belonged to.
func (r *Registry) leaveLocked(connectionID uuid.UUID) int {
	conn, ok := r.connections[connectionID]
	if !ok {
		return 0
	}
	delete(r.connections, connectionID)

	var groups map[uuid.UUID]map[uuid.UUID]struct{}
	switch conn.Role {
	case domain.RoleAudience:
		groups = r.audience
	case domain.RolePresenter:
		groups = r.presenters
	}
	group := groups[conn.PresentationID]
	delete(group, connectionID)
	if len(group) == 0 {
		delete(groups, conn.PresentationID)
	}
	return len(r.audience[conn.PresentationID])
}

// AudienceCount returns the live audience-connection count for a presentation.
func (r *Registry) AudienceCount(presentationID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.audience[presentationID])
}

// PeakAudience returns the highest audience count observed for a presentation
// since the last ResetPeak (or process start).
func (r *Registry) PeakAudience(presentationID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.peaks[presentationID]
}

// ResetPeak clears the peak counter, typically when a live session starts.
func (r *Registry) ResetPeak(presentationID uuid.UUID) {
	r.mu.Lock()
	r.peaks[presentationID] = len(r.audience[presentationID])
	r.mu.Unlock()
}

// EvictAudience removes every audience connection of a presentation from its
// group and returns the evicted connection IDs. The connections themselves
// stay on the transport; only the membership is dropped. Used when a live
// session ends.
func (r *Registry) EvictAudience(presentationID uuid.UUID) []uuid.UUID {
	r.mu.Lock()
	group := r.audience[presentationID]
	evicted := make([]uuid.UUID, 0, len(group))
	for connectionID := range group {
		delete(r.connections, connectionID)
		evicted = append(evicted, connectionID)
	}
	delete(r.audience, presentationID)
	onAudience := r.onAudience
	r.mu.Unlock()

	for range evicted {
		metrics.RegistryAudienceConnections.Dec()
	}
	if onAudience != nil && len(evicted) > 0 {
		onAudience(presentationID, 0)
	}
	return evicted
}

// Lookup returns the membership record for a connection.
func (r *Registry) Lookup(connectionID uuid.UUID) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[connectionID]
	return conn, ok
}

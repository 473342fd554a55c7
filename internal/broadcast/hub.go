package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/metrics"
)

const (
	commandTimeout    = 5 * time.Second
	stopTimeout       = 10 * time.Second
	commandBufferSize = 256
)

// AudienceGroup names the broadcast group for a presentation's audience.
func AudienceGroup(presentationID uuid.UUID) string {
	return "audience:" + presentationID.String()
}

// PresenterGroup names the broadcast group for a presentation's presenter
// dashboard connections.
func PresenterGroup(presentationID uuid.UUID) string {
	return "presenter:" + presentationID.String()
}

// --- Commands ---

type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	connectionID uuid.UUID
	connection   *websocket.Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseHubCmd
	connectionID uuid.UUID
}

type joinGroupCmd struct {
	baseHubCmd
	connectionID uuid.UUID
	group        string
	limit        int
	errorChannel chan error
}

type leaveGroupCmd struct {
	baseHubCmd
	connectionID uuid.UUID
	group        string
}

type broadcastCmd struct {
	baseHubCmd
	group string
	event domain.Event
}

type sendCmd struct {
	baseHubCmd
	connectionID uuid.UUID
	event        domain.Event
}

type groupSizeCmd struct {
	baseHubCmd
	group        string
	replyChannel chan int
}

type stopCmd struct {
	baseHubCmd
}

type hubClient struct {
	connection *websocket.Conn
	writer     *clientWriter
	groups     map[string]struct{}
}

// Hub is the actor that owns all WebSocket clients and group membership.
// One goroutine processes commands; per-client writer goroutines drain send
// buffers. A client whose buffer is full when an event fans out is evicted
// rather than allowed to stall the broadcast.
type Hub struct {
	cmdCh   chan hubCmd
	clock   clockwork.Clock
	clients map[uuid.UUID]*hubClient
	groups  map[string]map[uuid.UUID]*hubClient
	done    chan struct{}
}

func NewHub(clock clockwork.Clock) *Hub {
	h := &Hub{
		cmdCh:   make(chan hubCmd, commandBufferSize),
		clock:   clock,
		clients: make(map[uuid.UUID]*hubClient),
		groups:  make(map[string]map[uuid.UUID]*hubClient),
		done:    make(chan struct{}),
	}
	go h.run()
	return h
}

// Register adds a connection to the hub and starts its writer.
func (h *Hub) Register(connectionID uuid.UUID, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	h.cmdCh <- registerCmd{connectionID: connectionID, connection: conn, errorChannel: errCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a connection from the hub and every group it joined.
func (h *Hub) Unregister(connectionID uuid.UUID) {
	h.cmdCh <- unregisterCmd{connectionID: connectionID}
}

// Join adds a registered connection to a group. limit bounds the group size;
// 0 means unbounded.
func (h *Hub) Join(connectionID uuid.UUID, group string, limit int) error {
	errCh := make(chan error, 1)
	h.cmdCh <- joinGroupCmd{connectionID: connectionID, group: group, limit: limit, errorChannel: errCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("join command timed out after %v", commandTimeout)
	}
}

// Leave removes a connection from a group without disconnecting it.
func (h *Hub) Leave(connectionID uuid.UUID, group string) {
	h.cmdCh <- leaveGroupCmd{connectionID: connectionID, group: group}
}

// Broadcast fans an event out to every member of a group.
func (h *Hub) Broadcast(group string, event domain.Event) {
	h.cmdCh <- broadcastCmd{group: group, event: event}
}

// Send delivers an event to a single connection only.
func (h *Hub) Send(connectionID uuid.UUID, event domain.Event) {
	h.cmdCh <- sendCmd{connectionID: connectionID, event: event}
}

// GroupSize returns the number of clients in a group, or -1 on timeout.
func (h *Hub) GroupSize(group string) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- groupSizeCmd{group: group, replyChannel: replyCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case size := <-replyCh:
		return size
	case <-timer.Chan():
		slog.Warn("GroupSize timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts down the hub, sending close frames to all clients. Blocks until
// the hub goroutine has exited or the stop timeout is reached.
func (h *Hub) Stop() {
	h.cmdCh <- stopCmd{}

	timeout := h.clock.NewTimer(stopTimeout)
	defer timeout.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Hub stop timeout exceeded, forcing exit", "timeout", stopTimeout)
		metrics.HubStopTimeoutsTotal.Inc()
		close(h.done)
	}
}

func (h *Hub) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			metrics.HubPanicsTotal.Inc()
			h.closeAllClients("hub panic")
			close(h.done)
		}
	}()

	// Track command channel depth every second
	depthTicker := h.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(h.cmdCh)
			metrics.HubCommandChannelDepth.Set(float64(depth))
			if depth > commandBufferSize*4/5 {
				slog.Warn("Hub command channel near capacity", "depth", depth, "capacity", cap(h.cmdCh))
			}

		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				h.handleRegister(c)
			case unregisterCmd:
				h.handleUnregister(c.connectionID)
			case joinGroupCmd:
				h.handleJoin(c)
			case leaveGroupCmd:
				h.handleLeave(c.connectionID, c.group)
			case broadcastCmd:
				h.handleBroadcast(c)
			case sendCmd:
				h.handleSend(c)
			case groupSizeCmd:
				c.replyChannel <- len(h.groups[c.group])
			case stopCmd:
				h.handleStop()
				close(h.done)
				return
			default:
				slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	if _, exists := h.clients[c.connectionID]; exists {
		c.errorChannel <- fmt.Errorf("connection %s already registered", c.connectionID)
		return
	}

	h.clients[c.connectionID] = &hubClient{
		connection: c.connection,
		writer:     newClientWriter(c.connection, h.clock),
		groups:     make(map[string]struct{}),
	}
	metrics.HubConnectedClients.Inc()
	slog.Debug("Client registered", "connection_id", c.connectionID.String(), "total_clients", len(h.clients))
	c.errorChannel <- nil
}

func (h *Hub) handleUnregister(connectionID uuid.UUID) {
	client, exists := h.clients[connectionID]
	if !exists {
		return
	}

	for group := range client.groups {
		h.removeFromGroup(connectionID, group)
	}
	client.writer.stop()
	delete(h.clients, connectionID)
	metrics.HubConnectedClients.Dec()
	slog.Debug("Client unregistered", "connection_id", connectionID.String(), "remaining_clients", len(h.clients))
}

func (h *Hub) handleJoin(c joinGroupCmd) {
	client, exists := h.clients[c.connectionID]
	if !exists {
		c.errorChannel <- fmt.Errorf("connection %s not registered", c.connectionID)
		return
	}

	members := h.groups[c.group]
	if members == nil {
		members = make(map[uuid.UUID]*hubClient)
		h.groups[c.group] = members
		metrics.HubActiveGroups.Set(float64(len(h.groups)))
	}

	if c.limit > 0 && len(members) >= c.limit {
		slog.Warn("Rejecting client: group full", "group", c.group, "limit", c.limit)
		c.errorChannel <- fmt.Errorf("group %s is full (%d members)", c.group, c.limit)
		return
	}

	members[c.connectionID] = client
	client.groups[c.group] = struct{}{}
	slog.Debug("Client joined group", "connection_id", c.connectionID.String(), "group", c.group, "members", len(members))
	c.errorChannel <- nil
}

func (h *Hub) handleLeave(connectionID uuid.UUID, group string) {
	client, exists := h.clients[connectionID]
	if !exists {
		return
	}
	delete(client.groups, group)
	h.removeFromGroup(connectionID, group)
}

func (h *Hub) removeFromGroup(connectionID uuid.UUID, group string) {
	members := h.groups[group]
	delete(members, connectionID)
	if len(members) == 0 {
		delete(h.groups, group)
		metrics.HubActiveGroups.Set(float64(len(h.groups)))
	}
}

func (h *Hub) handleBroadcast(c broadcastCmd) {
	members := h.groups[c.group]
	if len(members) == 0 {
		return
	}

	data, err := json.Marshal(c.event)
	if err != nil {
		slog.Error("Failed to marshal broadcast event", "event_type", c.event.Type, "error", err)
		return
	}

	var slow []uuid.UUID
	for connectionID, client := range members {
		select {
		case client.writer.sendChannel <- data:
			metrics.HubEventsDelivered.WithLabelValues(string(c.event.Type)).Inc()
		default:
			slow = append(slow, connectionID)
		}
	}

	for _, connectionID := range slow {
		slog.Warn("Disconnecting slow client", "connection_id", connectionID.String(), "group", c.group)
		metrics.HubSlowClientsEvicted.Inc()
		h.handleUnregister(connectionID)
	}
}

func (h *Hub) handleSend(c sendCmd) {
	client, exists := h.clients[c.connectionID]
	if !exists {
		return
	}

	data, err := json.Marshal(c.event)
	if err != nil {
		slog.Error("Failed to marshal event", "event_type", c.event.Type, "error", err)
		return
	}

	select {
	case client.writer.sendChannel <- data:
		metrics.HubEventsDelivered.WithLabelValues(string(c.event.Type)).Inc()
	default:
		slog.Warn("Disconnecting slow client", "connection_id", c.connectionID.String())
		metrics.HubSlowClientsEvicted.Inc()
		h.handleUnregister(c.connectionID)
	}
}

func (h *Hub) handleStop() {
	slog.Info("Hub shutting down", "groups", len(h.groups), "clients", len(h.clients))
	h.closeAllClients("Server shutting down")
	slog.Info("Hub shutdown complete")
}

// closeAllClients closes all client connections with the given reason.
// Used during panic recovery and graceful shutdown.
func (h *Hub) closeAllClients(reason string) {
	for connectionID, client := range h.clients {
		client.writer.stopGraceful(reason)
		delete(h.clients, connectionID)
	}
	h.groups = make(map[string]map[uuid.UUID]*hubClient)
	metrics.HubConnectedClients.Set(0)
	metrics.HubActiveGroups.Set(0)
}

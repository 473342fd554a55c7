package broadcast

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
)

// testHub sets up a Hub behind a test HTTP server. dial returns the client
// side of a freshly registered connection together with its connection ID.
func testHub(t *testing.T) (*Hub, func() (uuid.UUID, *ws.Conn)) {
	t.Helper()

	hub := NewHub(clockwork.NewRealClock())
	t.Cleanup(hub.Stop)

	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		connectionID := uuid.MustParse(r.URL.Query().Get("connection"))
		_ = hub.Register(connectionID, conn)

		go func() {
			defer hub.Unregister(connectionID)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					break
				}
			}
		}()
	}))
	t.Cleanup(server.Close)

	dial := func() (uuid.UUID, *ws.Conn) {
		t.Helper()
		connectionID := uuid.New()
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "?connection=" + connectionID.String()
		conn, _, err := ws.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return connectionID, conn
	}

	return hub, dial
}

func waitForGroupSize(h *Hub, group string, expected int) bool {
	for i := 0; i < 100; i++ {
		if h.GroupSize(group) == expected {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func readEvent(t *testing.T, conn *ws.Conn) domain.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var event domain.Event
	require.NoError(t, json.Unmarshal(msg, &event))
	return event
}

func assertNoEvent(t *testing.T, conn *ws.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHub_SendToSingleConnection(t *testing.T) {
	hub, dial := testHub(t)

	id1, conn1 := dial()
	_, conn2 := dial()

	hub.Send(id1, domain.NewEvent(domain.EventError, domain.ErrorPayload{Code: "bad_request", Message: "nope"}))

	event := readEvent(t, conn1)
	assert.Equal(t, domain.EventError, event.Type)
	assert.Contains(t, string(event.Data), "bad_request")

	assertNoEvent(t, conn2)
}

func TestHub_BroadcastReachesGroupMembersOnly(t *testing.T) {
	hub, dial := testHub(t)
	presentationID := uuid.New()
	group := AudienceGroup(presentationID)

	id1, conn1 := dial()
	id2, conn2 := dial()
	_, outsider := dial()

	require.NoError(t, hub.Join(id1, group, 0))
	require.NoError(t, hub.Join(id2, group, 0))
	require.True(t, waitForGroupSize(hub, group, 2))

	hub.Broadcast(group, domain.NewEvent(domain.EventLiveSessionStarted, domain.LiveSessionPayload{PresentationID: presentationID}))

	for _, conn := range []*ws.Conn{conn1, conn2} {
		event := readEvent(t, conn)
		assert.Equal(t, domain.EventLiveSessionStarted, event.Type)
	}
	assertNoEvent(t, outsider)
}

func TestHub_AudienceAndPresenterGroupsAreDisjoint(t *testing.T) {
	hub, dial := testHub(t)
	presentationID := uuid.New()

	audienceID, audienceConn := dial()
	presenterID, presenterConn := dial()

	require.NoError(t, hub.Join(audienceID, AudienceGroup(presentationID), 0))
	require.NoError(t, hub.Join(presenterID, PresenterGroup(presentationID), 0))
	require.True(t, waitForGroupSize(hub, AudienceGroup(presentationID), 1))
	require.True(t, waitForGroupSize(hub, PresenterGroup(presentationID), 1))

	publisher := NewPublisher(hub)
	publisher.ToPresenter(presentationID, domain.NewEvent(domain.EventResponseReceived, domain.ResponseReceivedPayload{
		PresentationID: presentationID,
	}))
	publisher.ToAudience(presentationID, domain.NewEvent(domain.EventQuestionActivated, domain.QuestionTransitionPayload{
		PresentationID: presentationID,
	}))

	// Each side sees only its own group's event, and nothing after it. A
	// timed-out read poisons the gorilla connection, so the negative reads
	// come last.
	event := readEvent(t, presenterConn)
	assert.Equal(t, domain.EventResponseReceived, event.Type)

	event = readEvent(t, audienceConn)
	assert.Equal(t, domain.EventQuestionActivated, event.Type)

	assertNoEvent(t, presenterConn)
	assertNoEvent(t, audienceConn)
}

func TestHub_GroupLimit(t *testing.T) {
	hub, dial := testHub(t)
	group := AudienceGroup(uuid.New())

	id1, _ := dial()
	id2, _ := dial()

	require.NoError(t, hub.Join(id1, group, 1))

	err := hub.Join(id2, group, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "full")
	assert.Equal(t, 1, hub.GroupSize(group))
}

func TestHub_JoinRequiresRegistration(t *testing.T) {
	hub, _ := testHub(t)

	err := hub.Join(uuid.New(), AudienceGroup(uuid.New()), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestHub_DuplicateRegisterRejected(t *testing.T) {
	hub, _ := testHub(t)

	connectionID := uuid.New()
	server, client := newTestConnPair(t)
	defer client.Close()

	require.NoError(t, hub.Register(connectionID, server))

	server2, client2 := newTestConnPair(t)
	defer client2.Close()
	err := hub.Register(connectionID, server2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	hub, dial := testHub(t)
	group := AudienceGroup(uuid.New())

	id1, conn1 := dial()
	require.NoError(t, hub.Join(id1, group, 0))
	require.True(t, waitForGroupSize(hub, group, 1))

	hub.Leave(id1, group)
	require.True(t, waitForGroupSize(hub, group, 0))

	hub.Broadcast(group, domain.NewEvent(domain.EventLiveSessionEnded, domain.LiveSessionPayload{}))
	assertNoEvent(t, conn1)
}

func TestHub_UnregisterLeavesAllGroups(t *testing.T) {
	hub, dial := testHub(t)
	groupA := AudienceGroup(uuid.New())
	groupB := AudienceGroup(uuid.New())

	id1, conn1 := dial()
	require.NoError(t, hub.Join(id1, groupA, 0))
	require.NoError(t, hub.Join(id1, groupB, 0))

	// Closing the client side drives the read loop's Unregister
	conn1.Close()
	require.True(t, waitForGroupSize(hub, groupA, 0))
	require.True(t, waitForGroupSize(hub, groupB, 0))
}

func TestHub_BroadcastToEmptyGroup(t *testing.T) {
	hub, _ := testHub(t)

	hub.Broadcast(AudienceGroup(uuid.New()), domain.NewEvent(domain.EventLiveSessionStarted, domain.LiveSessionPayload{}))
	assert.Equal(t, 0, hub.GroupSize(AudienceGroup(uuid.New())))
}

func TestHub_StopSendsCloseFrames(t *testing.T) {
	hub := NewHub(clockwork.NewRealClock())

	connectionID := uuid.New()
	server, client := newTestConnPair(t)
	require.NoError(t, hub.Register(connectionID, server))

	hub.Stop()

	client.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := client.ReadMessage()
	require.Error(t, err)
	var closeErr *ws.CloseError
	if assert.ErrorAs(t, err, &closeErr) {
		assert.Equal(t, ws.CloseNormalClosure, closeErr.Code)
	}
}

func TestHub_StopReturnsPromptlyAfterRecoveredPanic(t *testing.T) {
	hub := NewHub(clockwork.NewRealClock())

	// A reply on a closed channel panics inside the run loop.
	replyCh := make(chan int)
	close(replyCh)
	hub.cmdCh <- groupSizeCmd{group: "g", replyChannel: replyCh}

	stopped := make(chan struct{})
	go func() {
		hub.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked after a recovered hub panic")
	}
}

func TestHub_StopIdempotent(t *testing.T) {
	hub := NewHub(clockwork.NewRealClock())

	hub.Stop()
	hub.Stop()
}

func newTestConnPair(t *testing.T) (server *ws.Conn, client *ws.Conn) {
	t.Helper()
	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ready := make(chan *ws.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ready <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	serverConn := <-ready
	t.Cleanup(func() { serverConn.Close() })

	return serverConn, clientConn
}

package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/metrics"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/platform/retry"
)

const (
	reconnectInterval  = 5 * time.Second
	reconnectAttempts  = 5
	handshakeTimeout   = 10 * time.Second
	listenerWriteLimit = 5 * time.Second
)

// Listener owns the push connection for one presentation view. It joins the
// matching group after each (re)connect, feeds every event into the view, and
// reconnects on a fixed interval up to a bounded attempt count. Once the
// attempts are exhausted Run returns and the view survives on backup polling
// and manual refresh alone.
type Listener struct {
	wsURL          string
	token          string
	presentationID uuid.UUID
	role           domain.Role
	view           *View
	dialer         *websocket.Dialer
}

func NewListener(wsURL, token string, presentationID uuid.UUID, role domain.Role, view *View) *Listener {
	return &Listener{
		wsURL:          wsURL,
		token:          token,
		presentationID: presentationID,
		role:           role,
		view:           view,
		dialer:         &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}
}

// Run blocks until the context is cancelled or reconnection is exhausted.
func (l *Listener) Run(ctx context.Context) error {
	for {
		conn, err := l.connect(ctx)
		if err != nil {
			l.view.SetPushState(PushOffline)
			metrics.ReconcileReconnectsTotal.WithLabelValues("exhausted").Inc()
			return fmt.Errorf("push connection exhausted: %w", err)
		}
		metrics.ReconcileReconnectsTotal.WithLabelValues("connected").Inc()
		l.view.SetPushState(PushConnected)

		l.consume(ctx, conn)
		if ctx.Err() != nil {
			l.view.SetPushState(PushOffline)
			return ctx.Err()
		}

		l.view.SetPushState(PushReconnecting)
	}
}

// connect dials and joins on a fixed interval, never backing off further.
func (l *Listener) connect(ctx context.Context) (*websocket.Conn, error) {
	policy := retry.Policy{
		MaxAttempts:       reconnectAttempts,
		InitialBackoff:    reconnectInterval,
		BackoffMultiplier: 1,
		OnRetry: func(attempt int, err error, _ time.Duration) {
			metrics.ReconcileReconnectsTotal.WithLabelValues("retry").Inc()
			slog.Warn("push connect failed", "attempt", attempt, "error", err)
		},
	}
	classify := func(error) retry.Action { return retry.Retry }

	return retry.Do(ctx, policy, classify, func() (*websocket.Conn, error) {
		return l.dial(ctx)
	})
}

func (l *Listener) dial(ctx context.Context) (*websocket.Conn, error) {
	url := l.wsURL
	if l.token != "" {
		url += "?access_token=" + l.token
	}
	conn, _, err := l.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	if err := l.join(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (l *Listener) join(conn *websocket.Conn) error {
	method := "join_presentation"
	if l.role == domain.RolePresenter {
		method = "join_presenter_session"
	}

	payload, err := json.Marshal(map[string]any{
		"type": method,
		"data": map[string]string{"presentationId": l.presentationID.String()},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal join message: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(listenerWriteLimit))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("join write failed: %w", err)
	}
	return nil
}

// consume reads events until the connection drops or the context ends.
func (l *Listener) consume(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return
		}

		var event domain.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			slog.Warn("dropping malformed push event", "error", err)
			continue
		}
		l.view.HandleEvent(event)
	}
}

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/broadcast"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/platform/errors"
)

const (
	maxMessageSize  = 8192
	dispatchTimeout = 10 * time.Second
)

const (
	methodJoinPresentation     = "join_presentation"
	methodLeavePresentation    = "leave_presentation"
	methodSubmitResponse       = "submit_response"
	methodJoinPresenterSession = "join_presenter_session"
	methodStartLiveSession     = "start_live_session"
	methodEndLiveSession       = "end_live_session"
	methodActivateQuestion     = "activate_question"
	methodDeactivateQuestion   = "deactivate_question"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // audience clients connect from arbitrary origins
	},
}

// clientMessage is the client-to-server envelope.
type clientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// wsSession is the per-connection dispatch state. It lives on the read
// goroutine only; all outbound traffic goes through the hub writer.
type wsSession struct {
	server       *Server
	connectionID uuid.UUID
	identity     *domain.Identity

	joinedPresentation uuid.UUID
	role               domain.Role
	sessionID          string
}

func (s *Server) handleWebSocket(c echo.Context) error {
	// Presenter methods need the credential from the upgrade request. An
	// absent or invalid token still allows an audience connection.
	var identity *domain.Identity
	if token := bearerToken(c); token != "" {
		verified, err := s.deps.Authorizer.Authorize(c.Request().Context(), token)
		if err == nil {
			identity = verified
		}
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return nil
	}

	connectionID := uuid.New()
	if err := s.deps.Hub.Register(connectionID, conn); err != nil {
		slog.Warn("hub rejected connection", "connection_id", connectionID, "error", err)
		conn.Close()
		return nil
	}

	session := &wsSession{
		server:       s,
		connectionID: connectionID,
		identity:     identity,
	}

	conn.SetReadLimit(maxMessageSize)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		session.dispatch(raw)
	}

	s.deps.Registry.Leave(connectionID)
	s.deps.Hub.Unregister(connectionID)
	return nil
}

func (ws *wsSession) dispatch(raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		ws.sendError(errors.ValidationError("malformed message envelope"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	var err error
	switch msg.Type {
	case methodJoinPresentation:
		err = ws.joinPresentation(ctx, msg.Data)
	case methodLeavePresentation:
		err = ws.leavePresentation()
	case methodSubmitResponse:
		err = ws.submitResponse(ctx, msg.Data)
	case methodJoinPresenterSession:
		err = ws.joinPresenterSession(ctx, msg.Data)
	case methodStartLiveSession:
		err = ws.presenterAction(ctx, msg.Data, ws.server.deps.Machine.StartSession)
	case methodEndLiveSession:
		err = ws.presenterAction(ctx, msg.Data, ws.server.deps.Machine.EndSession)
	case methodActivateQuestion:
		err = ws.questionAction(ctx, msg.Data, ws.server.deps.Machine.ActivateQuestion)
	case methodDeactivateQuestion:
		err = ws.questionAction(ctx, msg.Data, ws.server.deps.Machine.DeactivateQuestion)
	default:
		err = errors.ValidationError("unknown message type: " + msg.Type)
	}

	if err != nil {
		ws.sendError(err)
	}
}

// sendError reports a failure to the originating connection only.
func (ws *wsSession) sendError(err error) {
	structuredErr := structured(err)
	ws.server.deps.Hub.Send(ws.connectionID, domain.NewEvent(domain.EventError, domain.ErrorPayload{
		Code:    string(structuredErr.Type),
		Message: structuredErr.Message,
	}))
}

func (ws *wsSession) send(event domain.Event) {
	ws.server.deps.Hub.Send(ws.connectionID, event)
}

type joinPresentationRequest struct {
	PresentationID uuid.UUID `json:"presentationId"`
	SessionID      string    `json:"sessionId"`
}

func (ws *wsSession) joinPresentation(ctx context.Context, data json.RawMessage) error {
	var req joinPresentationRequest
	if err := json.Unmarshal(data, &req); err != nil || req.PresentationID == uuid.Nil {
		return errors.ValidationError("join_presentation requires presentationId")
	}

	if _, err := ws.server.deps.Presentations.GetByID(ctx, req.PresentationID); err != nil {
		return err
	}

	// A connection belongs to at most one presentation at a time.
	if ws.joinedPresentation != uuid.Nil {
		if err := ws.leavePresentation(); err != nil {
			return err
		}
	}

	if err := ws.server.deps.Hub.Join(ws.connectionID, broadcast.AudienceGroup(req.PresentationID), ws.server.config.MaxClientsPerPresentation); err != nil {
		return err
	}
	ws.server.deps.Registry.JoinAudience(req.PresentationID, ws.connectionID)

	ws.joinedPresentation = req.PresentationID
	ws.role = domain.RoleAudience
	ws.sessionID = req.SessionID
	if ws.sessionID == "" {
		ws.sessionID = ws.connectionID.String()
	}

	ws.send(domain.NewEvent(domain.EventJoinedPresentation, domain.JoinAckPayload{
		PresentationID: req.PresentationID,
		Role:           domain.RoleAudience,
	}))
	return nil
}

func (ws *wsSession) leavePresentation() error {
	if ws.joinedPresentation == uuid.Nil {
		return errors.InvalidStateError("not joined to a presentation")
	}

	presentationID := ws.joinedPresentation
	role := ws.role

	ws.server.deps.Registry.Leave(ws.connectionID)
	switch role {
	case domain.RolePresenter:
		ws.server.deps.Hub.Leave(ws.connectionID, broadcast.PresenterGroup(presentationID))
	default:
		ws.server.deps.Hub.Leave(ws.connectionID, broadcast.AudienceGroup(presentationID))
	}

	ws.joinedPresentation = uuid.Nil
	ws.role = ""
	ws.sessionID = ""

	ws.send(domain.NewEvent(domain.EventLeftPresentation, domain.JoinAckPayload{
		PresentationID: presentationID,
		Role:           role,
	}))
	return nil
}

type submitResponseRequest struct {
	QuestionID uuid.UUID `json:"questionId"`
	Value      string    `json:"value"`
}

func (ws *wsSession) submitResponse(ctx context.Context, data json.RawMessage) error {
	var req submitResponseRequest
	if err := json.Unmarshal(data, &req); err != nil || req.QuestionID == uuid.Nil {
		return errors.ValidationError("submit_response requires questionId")
	}
	if ws.joinedPresentation == uuid.Nil || ws.role != domain.RoleAudience {
		return errors.InvalidStateError("join a presentation before submitting")
	}

	_, err := ws.server.deps.Pipeline.SubmitResponse(ctx, req.QuestionID, ws.sessionID, req.Value)
	return err
}

type presenterRequest struct {
	PresentationID uuid.UUID `json:"presentationId"`
}

func (ws *wsSession) joinPresenterSession(ctx context.Context, data json.RawMessage) error {
	var req presenterRequest
	if err := json.Unmarshal(data, &req); err != nil || req.PresentationID == uuid.Nil {
		return errors.ValidationError("join_presenter_session requires presentationId")
	}

	presentation, err := ws.server.deps.Presentations.GetByID(ctx, req.PresentationID)
	if err != nil {
		return err
	}
	if ws.identity == nil || presentation.OwnerID != ws.identity.UserID {
		return domain.ErrNotAuthorized
	}

	if ws.joinedPresentation != uuid.Nil {
		if err := ws.leavePresentation(); err != nil {
			return err
		}
	}

	if err := ws.server.deps.Hub.Join(ws.connectionID, broadcast.PresenterGroup(req.PresentationID), 0); err != nil {
		return err
	}
	ws.server.deps.Registry.JoinPresenter(req.PresentationID, ws.connectionID)

	ws.joinedPresentation = req.PresentationID
	ws.role = domain.RolePresenter

	ws.send(domain.NewEvent(domain.EventJoinedPresenterSession, domain.JoinAckPayload{
		PresentationID: req.PresentationID,
		Role:           domain.RolePresenter,
	}))
	return nil
}

// presenterAction guards a live-session transition behind ownership of the
// target presentation.
func (ws *wsSession) presenterAction(ctx context.Context, data json.RawMessage, action func(context.Context, uuid.UUID) error) error {
	var req presenterRequest
	if err := json.Unmarshal(data, &req); err != nil || req.PresentationID == uuid.Nil {
		return errors.ValidationError("request requires presentationId")
	}

	presentation, err := ws.server.deps.Presentations.GetByID(ctx, req.PresentationID)
	if err != nil {
		return err
	}
	if ws.identity == nil || presentation.OwnerID != ws.identity.UserID {
		return domain.ErrNotAuthorized
	}

	return action(ctx, req.PresentationID)
}

type questionRequest struct {
	QuestionID uuid.UUID `json:"questionId"`
}

// questionAction guards a question transition behind ownership of its
// presentation.
func (ws *wsSession) questionAction(ctx context.Context, data json.RawMessage, action func(context.Context, uuid.UUID) error) error {
	var req questionRequest
	if err := json.Unmarshal(data, &req); err != nil || req.QuestionID == uuid.Nil {
		return errors.ValidationError("request requires questionId")
	}

	question, err := ws.server.deps.Questions.GetByID(ctx, req.QuestionID)
	if err != nil {
		return err
	}
	presentation, err := ws.server.deps.Presentations.GetByID(ctx, question.PresentationID)
	if err != nil {
		return err
	}
	if ws.identity == nil || presentation.OwnerID != ws.identity.UserID {
		return domain.ErrNotAuthorized
	}

	return action(ctx, req.QuestionID)
}

package server

import (
	stderrors "errors"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/platform/errors"
)

const identityContextKey = "identity"

// bearerToken extracts the credential from the Authorization header or the
// access_token query parameter (websocket clients cannot set headers).
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.QueryParam("access_token")
}

func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, err := s.deps.Authorizer.Authorize(c.Request().Context(), bearerToken(c))
		if err != nil {
			return writeError(c, err)
		}
		c.Set(identityContextKey, identity)
		return next(c)
	}
}

func identityFrom(c echo.Context) *domain.Identity {
	identity, _ := c.Get(identityContextKey).(*domain.Identity)
	return identity
}

// structured maps domain sentinel errors onto the typed error model so both
// the REST and websocket surfaces report them uniformly.
func structured(err error) *errors.Error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, domain.ErrPresentationNotFound),
		stderrors.Is(err, domain.ErrQuestionNotFound),
		stderrors.Is(err, domain.ErrResponseNotFound):
		return errors.NotFoundError(err.Error())
	case stderrors.Is(err, domain.ErrNotAuthorized):
		return errors.AuthorizationError(err.Error())
	case stderrors.Is(err, domain.ErrSessionAlreadyLive),
		stderrors.Is(err, domain.ErrSessionNotLive),
		stderrors.Is(err, domain.ErrQuestionNotActive):
		return errors.InvalidStateError(err.Error())
	case stderrors.Is(err, domain.ErrDuplicateResponse),
		stderrors.Is(err, domain.ErrRateLimited):
		return errors.RateLimitedError(err.Error())
	default:
		return errors.AsStructuredError(err)
	}
}

func writeError(c echo.Context, err error) error {
	structuredErr := structured(err)
	return c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse())
}

func parseUUIDParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, errors.ValidationError("invalid " + name + " parameter")
	}
	return id, nil
}

// requireOwner loads the presentation and checks it belongs to the caller.
func (s *Server) requireOwner(c echo.Context, presentationID uuid.UUID) (*domain.Presentation, error) {
	presentation, err := s.deps.Presentations.GetByID(c.Request().Context(), presentationID)
	if err != nil {
		return nil, err
	}
	identity := identityFrom(c)
	if identity == nil || presentation.OwnerID != identity.UserID {
		return nil, domain.ErrNotAuthorized
	}
	return presentation, nil
}

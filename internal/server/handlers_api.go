package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
)

func (s *Server) handleListPresentations(c echo.Context) error {
	identity := identityFrom(c)
	presentations, err := s.deps.Presentations.ListByOwner(c.Request().Context(), identity.UserID)
	if err != nil {
		return writeError(c, err)
	}
	if presentations == nil {
		presentations = []domain.Presentation{}
	}
	return c.JSON(http.StatusOK, presentations)
}

func (s *Server) handleLiveStatus(c echo.Context) error {
	presentationID, err := parseUUIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	ctx := c.Request().Context()
	presentation, err := s.deps.Presentations.GetByID(ctx, presentationID)
	if err != nil {
		return writeError(c, err)
	}

	status := domain.LiveStatus{
		PresentationID: presentation.ID,
		IsLive:         presentation.IsLive,
		LiveStartedAt:  presentation.LiveStartedAt,
		AudienceCount:  s.deps.Registry.AudienceCount(presentationID),
		PeakAudience:   s.deps.Registry.PeakAudience(presentationID),
	}

	if presentation.IsLive {
		questions, err := s.deps.Questions.ListByPresentation(ctx, presentationID)
		if err != nil {
			return writeError(c, err)
		}
		for i := range questions {
			if questions[i].IsLive {
				id := questions[i].ID
				status.ActiveQuestionID = &id
				break
			}
		}
	}

	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleAudienceCount(c echo.Context) error {
	presentationID, err := parseUUIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, domain.AudienceCountPayload{
		PresentationID: presentationID,
		Count:          s.deps.Registry.AudienceCount(presentationID),
	})
}

func (s *Server) handleQuestionResults(c echo.Context) error {
	presentationID, err := parseUUIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	questionID, err := parseUUIDParam(c, "qid")
	if err != nil {
		return writeError(c, err)
	}

	ctx := c.Request().Context()
	question, err := s.deps.Questions.GetByID(ctx, questionID)
	if err != nil {
		return writeError(c, err)
	}
	if question.PresentationID != presentationID {
		return writeError(c, domain.ErrQuestionNotFound)
	}

	responses, err := s.deps.Responses.ListByQuestion(ctx, questionID)
	if err != nil {
		return writeError(c, err)
	}

	results := domain.QuestionResults{
		QuestionID: questionID,
		Total:      len(responses),
		Counts:     make(map[string]int),
		Responses:  responses,
	}
	if results.Responses == nil {
		results.Responses = []domain.Response{}
	}
	if !question.Type.FreeText() {
		for _, response := range responses {
			results.Counts[response.Value]++
		}
	}

	return c.JSON(http.StatusOK, results)
}

func (s *Server) handleStartLiveSession(c echo.Context) error {
	presentationID, err := parseUUIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	if _, err := s.requireOwner(c, presentationID); err != nil {
		return writeError(c, err)
	}
	if err := s.deps.Machine.StartSession(c.Request().Context(), presentationID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "live"})
}

func (s *Server) handleEndLiveSession(c echo.Context) error {
	presentationID, err := parseUUIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	if _, err := s.requireOwner(c, presentationID); err != nil {
		return writeError(c, err)
	}
	if err := s.deps.Machine.EndSession(c.Request().Context(), presentationID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ended"})
}

func (s *Server) requireQuestionOwner(c echo.Context) (*domain.Question, error) {
	questionID, err := parseUUIDParam(c, "qid")
	if err != nil {
		return nil, err
	}
	question, err := s.deps.Questions.GetByID(c.Request().Context(), questionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireOwner(c, question.PresentationID); err != nil {
		return nil, err
	}
	return question, nil
}

func (s *Server) handleActivateQuestion(c echo.Context) error {
	question, err := s.requireQuestionOwner(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := s.deps.Machine.ActivateQuestion(c.Request().Context(), question.ID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "active"})
}

func (s *Server) handleDeactivateQuestion(c echo.Context) error {
	question, err := s.requireQuestionOwner(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := s.deps.Machine.DeactivateQuestion(c.Request().Context(), question.ID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "inactive"})
}

func (s *Server) handleReanalyzeQuestion(c echo.Context) error {
	question, err := s.requireQuestionOwner(c)
	if err != nil {
		return writeError(c, err)
	}
	count, err := s.deps.Pipeline.ReanalyzeQuestion(c.Request().Context(), question.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"reanalyzed": count})
}

package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)

	// WebSocket endpoint (audience joins anonymously; presenter methods
	// require the JWT carried on the upgrade request)
	s.echo.GET("/ws", s.handleWebSocket)

	// Idempotent REST reads, the reconciliation fallback
	s.echo.GET("/api/presentations", s.handleListPresentations, s.requireAuth)
	s.echo.GET("/api/presentations/:id/live-status", s.handleLiveStatus)
	s.echo.GET("/api/presentations/:id/audience-count", s.handleAudienceCount)
	s.echo.GET("/api/presentations/:id/questions/:qid/results", s.handleQuestionResults)

	// REST writes mirroring the hub methods (presenter JWT required)
	s.echo.POST("/api/presentations/:id/live-session", s.handleStartLiveSession, s.requireAuth)
	s.echo.DELETE("/api/presentations/:id/live-session", s.handleEndLiveSession, s.requireAuth)
	s.echo.POST("/api/questions/:qid/activation", s.handleActivateQuestion, s.requireAuth)
	s.echo.DELETE("/api/questions/:qid/activation", s.handleDeactivateQuestion, s.requireAuth)
	s.echo.POST("/api/questions/:qid/reanalyze", s.handleReanalyzeQuestion, s.requireAuth)
}

package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/caihaoran-00/memchr/internal/apperr"
	"github.com/caihaoran-00/memchr/memory"
	"github.com/caihaoran-00/memchr/store"
)

// writeErr maps an apperr.Kind to an HTTP status and writes a small JSON
// error body. UnknownSession is the only kind with a distinct status;
// everything else surfaces as 500 since the caller already retried or
// fell back where that was meaningful.
func writeErr(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	if apperr.Is(err, apperr.KindUnknownSession) {
		status = http.StatusNotFound
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

type sessionStartRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleSessionStart(c echo.Context) error {
	var req sessionStartRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	session, err := s.manager.StartSession(c.Request().Context(), req.UserID)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"session_id": session.SessionID})
}

type sessionMessageRequest struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
}

func (s *Server) handleSessionMessage(c echo.Context) error {
	var req sessionMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := s.manager.AddMessage(c.Request().Context(), req.SessionID, req.Role, req.Text); err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{})
}

type sessionEndRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleSessionEnd(c echo.Context) error {
	var req sessionEndRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	episode, err := s.manager.EndSession(c.Request().Context(), req.SessionID)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"episode": episode})
}

type contextRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

type contextResponse struct {
	Prompt   string             `json:"prompt"`
	Profile  *store.UserProfile `json:"profile"`
	Facts    []store.Fact       `json:"facts"`
	Episodes []store.Episode    `json:"episodes"`
}

func (s *Server) handleContext(c echo.Context) error {
	var req contextRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	memCtx, err := s.manager.GetMemoryContext(c.Request().Context(), req.SessionID, req.Query)
	if err != nil {
		return writeErr(c, err)
	}
	resp := contextResponse{
		Prompt:   memory.RenderPrompt(memCtx),
		Profile:  memCtx.Profile,
		Facts:    memCtx.Facts,
		Episodes: memCtx.Episodes,
	}
	if resp.Facts == nil {
		resp.Facts = []store.Fact{}
	}
	if resp.Episodes == nil {
		resp.Episodes = []store.Episode{}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetProfile(c echo.Context) error {
	userID := c.Param("user_id")
	profile, err := s.manager.GetProfile(c.Request().Context(), userID)
	if err != nil {
		return writeErr(c, err)
	}
	if profile == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no profile for user"})
	}
	return c.JSON(http.StatusOK, profile)
}

func (s *Server) handlePutProfile(c echo.Context) error {
	var profile store.UserProfile
	if err := c.Bind(&profile); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if profile.UserID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id required"})
	}
	if err := s.manager.PutProfile(c.Request().Context(), &profile); err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{})
}

func (s *Server) handleStats(c echo.Context) error {
	userID := c.Param("user_id")
	stats, err := s.manager.Stats(c.Request().Context(), userID)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleExport(c echo.Context) error {
	userID := c.Param("user_id")
	payload, err := s.manager.ExportUser(c.Request().Context(), userID)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, payload)
}

func (s *Server) handleImport(c echo.Context) error {
	var payload store.ExportPayload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := s.manager.ImportUser(c.Request().Context(), &payload); err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{})
}

func (s *Server) handleMaintenanceForget(c echo.Context) error {
	userID := c.Param("user_id")
	removed, err := s.manager.RunMaintenanceForget(c.Request().Context(), userID)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"removed_n": removed})
}

func (s *Server) handleMaintenanceCleanup(c echo.Context) error {
	removed, err := s.manager.RunMaintenanceCleanup(c.Request().Context())
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"removed_n": removed})
}

package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alem-hub/wellness-hub/internal/application/view"
	"github.com/alem-hub/wellness-hub/pkg/logger"
)

// settleTimeout bounds how long a request waits for pending recomputes.
const settleTimeout = 2 * time.Second

// ══════════════════════════════════════════════════════════════════════════════
// SESSION HANDLERS
// Each dashboard session owns a view controller. Inputs are echoed at once;
// with ?settle=true the response waits for the recomputes they scheduled.
// ══════════════════════════════════════════════════════════════════════════════

type openSessionRequest struct {
	Actor actorRequest `json:"actor"`
}

type sessionQueryRequest struct {
	Query string `json:"query"`
}

type sessionBandRequest struct {
	Band string `json:"band"`
}

type sessionSelectRequest struct {
	StudentID string `json:"student_id" binding:"required"`
}

type sessionTransitionRequest struct {
	Action  string     `json:"action" binding:"required"`
	DueDate *time.Time `json:"due_date"`
}

// sessionResponse is returned by every session endpoint.
type sessionResponse struct {
	Session view.SessionInfo `json:"session"`
	State   view.State       `json:"state"`
}

// handleOpenSession handles POST /api/v1/sessions
func (s *Server) handleOpenSession(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	id, ctrl, err := s.deps.Sessions.Open(req.Actor.toActor())
	if err != nil {
		respondError(c, err)
		return
	}

	// A failed first load still opens the session; the state carries the banner.
	if err := ctrl.Load(c.Request.Context()); err != nil {
		s.logger.Warn("initial snapshot load failed", logger.SessionID(id), logger.Err(err))
	}
	s.respondSession(c, http.StatusCreated, id, ctrl)
}

// handleSessionView handles GET /api/v1/sessions/:sid
func (s *Server) handleSessionView(c *gin.Context) {
	id, ctrl, ok := s.session(c)
	if !ok {
		return
	}
	s.respondSession(c, http.StatusOK, id, ctrl)
}

// handleCloseSession handles DELETE /api/v1/sessions/:sid
func (s *Server) handleCloseSession(c *gin.Context) {
	if err := s.deps.Sessions.Close(c.Param("sid")); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"closed": true})
}

// handleSessionReload handles POST /api/v1/sessions/:sid/reload
func (s *Server) handleSessionReload(c *gin.Context) {
	id, ctrl, ok := s.session(c)
	if !ok {
		return
	}
	if err := ctrl.Retry(c.Request.Context()); err != nil {
		respondErrorWithData(c, err, s.sessionPayload(c, id, ctrl))
		return
	}
	s.respondSession(c, http.StatusOK, id, ctrl)
}

// handleSessionQuery handles POST /api/v1/sessions/:sid/query
func (s *Server) handleSessionQuery(c *gin.Context) {
	var req sessionQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	id, ctrl, ok := s.session(c)
	if !ok {
		return
	}
	ctrl.SetQuery(req.Query)
	s.respondSession(c, http.StatusOK, id, ctrl)
}

// handleSessionBand handles POST /api/v1/sessions/:sid/band
func (s *Server) handleSessionBand(c *gin.Context) {
	var req sessionBandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	id, ctrl, ok := s.session(c)
	if !ok {
		return
	}
	if err := ctrl.SetBand(req.Band); err != nil {
		respondError(c, err)
		return
	}
	s.respondSession(c, http.StatusOK, id, ctrl)
}

// handleSessionSelect handles POST /api/v1/sessions/:sid/select
func (s *Server) handleSessionSelect(c *gin.Context) {
	var req sessionSelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	id, ctrl, ok := s.session(c)
	if !ok {
		return
	}
	ctrl.Select(req.StudentID)
	s.respondSession(c, http.StatusOK, id, ctrl)
}

// handleSessionBack handles POST /api/v1/sessions/:sid/back
func (s *Server) handleSessionBack(c *gin.Context) {
	id, ctrl, ok := s.session(c)
	if !ok {
		return
	}
	ctrl.Back()
	s.respondSession(c, http.StatusOK, id, ctrl)
}

// handleSessionDismissBanner handles DELETE /api/v1/sessions/:sid/banner
func (s *Server) handleSessionDismissBanner(c *gin.Context) {
	id, ctrl, ok := s.session(c)
	if !ok {
		return
	}
	ctrl.DismissBanner()
	s.respondSession(c, http.StatusOK, id, ctrl)
}

// handleSessionTransition handles POST /api/v1/sessions/:sid/interventions/:id/transitions
func (s *Server) handleSessionTransition(c *gin.Context) {
	var req sessionTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	id, ctrl, ok := s.session(c)
	if !ok {
		return
	}
	action, ok := s.parseUserAction(c, req.Action)
	if !ok {
		return
	}

	if _, err := ctrl.Transition(c.Request.Context(), c.Param("id"), action, derefTime(req.DueDate)); err != nil {
		respondErrorWithData(c, err, s.sessionPayload(c, id, ctrl))
		return
	}
	s.respondSession(c, http.StatusOK, id, ctrl)
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

// session resolves :sid, answering 404 itself when the session is gone.
func (s *Server) session(c *gin.Context) (string, *view.Controller, bool) {
	id := c.Param("sid")
	ctrl, err := s.deps.Sessions.Get(id)
	if err != nil {
		respondError(c, err)
		return "", nil, false
	}
	return id, ctrl, true
}

func (s *Server) respondSession(c *gin.Context, status int, id string, ctrl *view.Controller) {
	respond(c, status, s.sessionPayload(c, id, ctrl))
}

func (s *Server) sessionPayload(c *gin.Context, id string, ctrl *view.Controller) sessionResponse {
	if settle, _ := strconv.ParseBool(c.Query("settle")); settle {
		ctx, cancel := context.WithTimeout(c.Request.Context(), settleTimeout)
		if err := ctrl.Settle(ctx); err != nil {
			s.logger.Debug("settle interrupted", logger.SessionID(id), logger.Err(err))
		}
		cancel()
	}
	info, _ := s.deps.Sessions.Info(id)
	return sessionResponse{Session: info, State: ctrl.View()}
}

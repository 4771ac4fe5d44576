package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alem-hub/wellness-hub/config"
	"github.com/alem-hub/wellness-hub/internal/application/command"
	"github.com/alem-hub/wellness-hub/internal/application/eventhandler"
	"github.com/alem-hub/wellness-hub/internal/application/query"
	"github.com/alem-hub/wellness-hub/internal/domain/intervention"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
	"github.com/alem-hub/wellness-hub/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(c *gin.Context) {
	respond(c, http.StatusOK, gin.H{
		"name":        "Wellness Hub API",
		"version":     s.config.Version,
		"description": "Student risk assessment and intervention tracking",
		"endpoints": gin.H{
			"health":     "/health",
			"students":   "/api/v1/students",
			"indicators": "/api/v1/indicators",
			"summary":    "/api/v1/summary",
			"sessions":   "/api/v1/sessions",
		},
	})
}

// handleHealth reports every registered check.
func (s *Server) handleHealth(c *gin.Context) {
	status := s.deps.HealthChecker.Check(c.Request.Context())
	if !status.Healthy {
		respond(c, http.StatusServiceUnavailable, status)
		return
	}
	respond(c, http.StatusOK, status)
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(c *gin.Context) {
	status := s.deps.HealthChecker.Check(c.Request.Context())
	if !status.Ready {
		respond(c, http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"reason": status.Message,
		})
		return
	}
	respond(c, http.StatusOK, gin.H{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(c *gin.Context) {
	respond(c, http.StatusOK, gin.H{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// POPULATION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListStudents handles GET /api/v1/students?q=&band=&sort=
func (s *Server) handleListStudents(c *gin.Context) {
	result, err := s.deps.ListStudentsHandler.Handle(c.Request.Context(), query.ListStudentsQuery{
		Query: c.Query("q"),
		Band:  c.Query("band"),
		Sort:  c.Query("sort"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondWithMeta(c, http.StatusOK, result, &ResponseMeta{TotalCount: result.Total})
}

// handleGetStudent handles GET /api/v1/students/:id
func (s *Server) handleGetStudent(c *gin.Context) {
	profile, err := s.deps.GetStudentProfileHandler.Handle(c.Request.Context(), query.GetStudentProfileQuery{
		StudentID: c.Param("id"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, profile)
}

// handleListIndicators handles GET /api/v1/indicators?urgency=
func (s *Server) handleListIndicators(c *gin.Context) {
	result, err := s.deps.ListIndicatorsHandler.Handle(c.Request.Context(), query.ListIndicatorsQuery{
		Urgency: c.Query("urgency"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondWithMeta(c, http.StatusOK, result, &ResponseMeta{TotalCount: len(result.Indicators)})
}

// handleGetSummary handles GET /api/v1/summary
func (s *Server) handleGetSummary(c *gin.Context) {
	summary, err := s.deps.GetSummaryHandler.Handle(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, summary)
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERVENTION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// actorRequest identifies the staff member behind a stateless command.
type actorRequest struct {
	Name string `json:"name" binding:"required"`
	Role string `json:"role"`
}

func (a actorRequest) toActor() intervention.Actor {
	return intervention.Actor{Name: a.Name, Role: a.Role}
}

type createInterventionRequest struct {
	Type        string       `json:"type" binding:"required"`
	Description string       `json:"description"`
	Assignee    string       `json:"assignee"`
	DueDate     time.Time    `json:"due_date" binding:"required"`
	Impact      *int         `json:"impact" binding:"omitempty,min=0,max=100"`
	Actor       actorRequest `json:"actor"`
}

type transitionRequest struct {
	Action  string       `json:"action" binding:"required"`
	DueDate *time.Time   `json:"due_date"`
	Actor   actorRequest `json:"actor"`
}

// transitionResponse is the outcome of an applied transition.
type transitionResponse struct {
	Intervention query.InterventionDTO     `json:"intervention"`
	Entries      []intervention.AuditEntry `json:"entries"`
	From         intervention.Status       `json:"from"`
	To           intervention.Status       `json:"to"`
}

func newTransitionResponse(res *command.TransitionResult, now time.Time) *transitionResponse {
	return &transitionResponse{
		Intervention: query.ToInterventionDTO(res.Intervention, now),
		Entries:      res.Entries,
		From:         res.From,
		To:           res.To,
	}
}

// handleCreateIntervention handles POST /api/v1/students/:id/interventions
func (s *Server) handleCreateIntervention(c *gin.Context) {
	var req createInterventionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	iv, err := s.deps.CreateInterventionHandler.Handle(c.Request.Context(), command.CreateInterventionCommand{
		StudentID:     c.Param("id"),
		Type:          req.Type,
		Description:   req.Description,
		Assignee:      req.Assignee,
		DueDate:       req.DueDate,
		Impact:        req.Impact,
		Actor:         req.Actor.toActor(),
		CorrelationID: handlers.GetRequestID(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, query.ToInterventionDTO(*iv, time.Now()))
}

// handleTransition handles POST /api/v1/interventions/:id/transitions
func (s *Server) handleTransition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	action, ok := s.parseUserAction(c, req.Action)
	if !ok {
		return
	}

	res, err := s.deps.TransitionInterventionHandler.Handle(c.Request.Context(), command.TransitionInterventionCommand{
		InterventionID: c.Param("id"),
		Action:         action,
		Actor:          req.Actor.toActor(),
		DueDate:        derefTime(req.DueDate),
		CorrelationID:  handlers.GetRequestID(c),
	})
	if err != nil {
		if res != nil {
			respondErrorWithData(c, err, newTransitionResponse(res, time.Now()))
			return
		}
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, newTransitionResponse(res, time.Now()))
}

// parseUserAction accepts the actions staff may request. mark-overdue is only
// ever applied by the clock.
func (s *Server) parseUserAction(c *gin.Context, raw string) (intervention.Action, bool) {
	action, err := intervention.ParseAction(raw)
	if err != nil {
		respondErrorCode(c, http.StatusBadRequest, "invalid_input", "unknown action "+strconv.Quote(raw))
		return "", false
	}
	if action == intervention.ActionMarkOverdue {
		respondErrorCode(c, http.StatusBadRequest, "invalid_input", "mark-overdue is applied automatically")
		return "", false
	}
	if action == intervention.ActionReschedule && !s.featureEnabled(config.FeatureReschedule) {
		respondErrorCode(c, http.StatusForbidden, "feature_disabled", "rescheduling is disabled")
		return "", false
	}
	return action, true
}

// handleGetAuditTrail handles GET /api/v1/interventions/:id/audit
func (s *Server) handleGetAuditTrail(c *gin.Context) {
	trail, err := s.deps.GetAuditTrailHandler.Handle(c.Request.Context(), query.GetAuditTrailQuery{
		InterventionID: c.Param("id"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondWithMeta(c, http.StatusOK, trail, &ResponseMeta{TotalCount: len(trail.Entries)})
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY & SOURCE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleActivity handles GET /api/v1/activity?limit=&student_id=
func (s *Server) handleActivity(c *gin.Context) {
	var items []eventhandler.FeedItem
	if s.deps.Feed != nil {
		if studentID := c.Query("student_id"); studentID != "" {
			items = s.deps.Feed.ForStudent(studentID)
		} else {
			items = s.deps.Feed.Recent(getQueryInt(c, "limit", 50))
		}
	}
	if items == nil {
		items = []eventhandler.FeedItem{}
	}
	respondWithMeta(c, http.StatusOK, items, &ResponseMeta{TotalCount: len(items)})
}

// handleSourceHealth handles GET /api/v1/source/health
func (s *Server) handleSourceHealth(c *gin.Context) {
	if s.deps.SourceMonitor == nil {
		respondError(c, shared.NewDomainError("http", "SourceHealth", shared.ErrNotFound, "source monitor not configured"))
		return
	}
	respond(c, http.StatusOK, s.deps.SourceMonitor.Health())
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

// getQueryInt extracts an integer query parameter with a default value.
func getQueryInt(c *gin.Context, key string, defaultValue int) int {
	value := c.Query(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return defaultValue
	}
	return n
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

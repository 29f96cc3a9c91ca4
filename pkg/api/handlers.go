package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/codeready-toolchain/deepsoc/ent/message"
	"github.com/codeready-toolchain/deepsoc/ent/prompt"
	"github.com/codeready-toolchain/deepsoc/pkg/database"
	"github.com/codeready-toolchain/deepsoc/pkg/models"
	"github.com/codeready-toolchain/deepsoc/pkg/services"
)

var validate = validator.New()

// handleHealth reports database connectivity and every wired worker
// pool's liveness, the single endpoint ops points a readiness probe at.
func (s *Server) handleHealth(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(reqCtx, s.dbClient.DB())
	resp := HealthResponse{Status: "healthy", Database: dbHealth}
	if err != nil {
		resp.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	if len(s.pools) > 0 {
		resp.Pools = make(map[string]queuePoolStats, len(s.pools))
		for role, pool := range s.pools {
			if pool == nil {
				continue
			}
			h := pool.Health()
			resp.Pools[role] = queuePoolStats{
				ActiveWorkers:    h.ActiveWorkers,
				TotalWorkers:     h.TotalWorkers,
				OrphansRecovered: h.OrphansRecovered,
			}
		}
	}

	c.JSON(http.StatusOK, resp)
}

// handleLogin authenticates a username/password pair and issues a bearer
// token.
func (s *Server) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := s.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token := s.authSessions.Issue(u.ID, u.Username, string(u.Role))
	c.JSON(http.StatusOK, LoginResponse{Token: token, Username: u.Username, Role: string(u.Role)})
}

// handleLogout revokes the caller's bearer token.
func (s *Server) handleLogout(c *gin.Context) {
	token := c.GetHeader("Authorization")
	if len(token) > 7 {
		s.authSessions.Revoke(token[7:])
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

// handleCreateEvent handles POST /api/v1/events, the entry point for both
// external alert sources and operators filing a manual Event.
func (s *Server) handleCreateEvent(c *gin.Context) {
	var req models.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ev, err := s.events.CreateEvent(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ev)
}

// handleListEvents handles GET /api/v1/events.
func (s *Server) handleListEvents(c *gin.Context) {
	filters := models.EventFilters{
		Status:         c.Query("status"),
		Source:         c.Query("source"),
		Severity:       c.Query("severity"),
		IncludeDeleted: c.Query("include_deleted") == "true",
	}
	if limit, err := parseQueryInt(c, "limit"); err == nil {
		filters.Limit = limit
	}
	if offset, err := parseQueryInt(c, "offset"); err == nil {
		filters.Offset = offset
	}

	resp, err := s.events.ListEvents(c.Request.Context(), filters)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetEvent handles GET /api/v1/events/:id.
func (s *Server) handleGetEvent(c *gin.Context) {
	ev, err := s.events.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

// handleListMessages handles GET /api/v1/events/:id/messages, the
// incremental polling endpoint dashboard clients use to tail an Event's
// narrative. ?since=<sequence_number> bounds the result to messages after
// the client's last-seen one.
func (s *Server) handleListMessages(c *gin.Context) {
	since, _ := parseQueryInt(c, "since")
	from := c.Query("from")

	msgs, err := s.messages.SinceID(c.Request.Context(), c.Param("id"), since, from)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// handlePostMessage handles POST /api/v1/events/:id/messages, a human
// operator adding a note to an Event's timeline.
func (s *Server) handlePostMessage(c *gin.Context) {
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := req.UserID
	if userID == "" {
		if v, ok := c.Get("user_id"); ok {
			userID, _ = v.(string)
		}
	}

	m, err := s.messages.Append(c.Request.Context(), c.Param("id"), message.MessageFromUser, "operator_note",
		map[string]any{"content": req.Content}, "", userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// handleResolveEvent handles POST /api/v1/events/:id/resolve, the manual
// "any -> resolved" edge of the Event state machine.
func (s *Server) handleResolveEvent(c *gin.Context) {
	var req models.ResolveEventRequest
	_ = c.ShouldBindJSON(&req)

	if err := s.events.Resolve(c.Request.Context(), c.Param("id"), req.ResolutionNote); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}

// handleCompleteExecution handles POST
// /api/v1/events/:id/executions/:execution_id/complete, the human handoff
// for a manual Command's `waiting` Execution. Completing the Execution
// also closes out its Command with SetResult, as executor.Worker.runPlaybook
// does for a playbook Command; then the same Action/Task propagation as
// executor.Worker.finish applies before the change is visible to the round
// lifecycle manager.
func (s *Server) handleCompleteExecution(c *gin.Context) {
	var req models.CompleteExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	e, err := s.executions.CompleteManual(ctx, c.Param("execution_id"), req.Result)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	if err := s.commands.SetResult(ctx, e.CommandID, map[string]any{"result": req.Result}, false); err != nil {
		respondServiceError(c, err)
		return
	}
	if err := services.PropagateActionAndTask(ctx, s.dbClient.Client, e.ActionID, e.TaskID); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}

// handleRequestRoundAdvance handles POST
// /api/v1/events/:id/rounds/advance, the operator action that unparks an
// Event sitting in round_finished while driving_mode is "manual". It
// records a round_advance_requested Message against the Event's current
// round; the Lifecycle manager's next cycle picks it up.
func (s *Server) handleRequestRoundAdvance(c *gin.Context) {
	ctx := c.Request.Context()
	ev, err := s.events.GetEvent(ctx, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	userID, _ := c.Get("user_id")
	uid, _ := userID.(string)

	m, err := s.messages.Append(ctx, ev.ID, message.MessageFromUser, "round_advance_requested",
		map[string]any{"round_id": ev.CurrentRound}, strconv.Itoa(ev.CurrentRound), uid)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// handleGetDrivingMode handles GET /api/v1/admin/driving-mode.
func (s *Server) handleGetDrivingMode(c *gin.Context) {
	mode, err := s.settings.DrivingMode(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": mode})
}

// handleSetDrivingMode handles PUT /api/v1/admin/driving-mode.
func (s *Server) handleSetDrivingMode(c *gin.Context) {
	var req DrivingModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.settings.Set(c.Request.Context(), services.DrivingModeKey, req.Mode); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": req.Mode})
}

// handleGetPrompt handles GET /api/v1/admin/prompts/:name.
func (s *Server) handleGetPrompt(c *gin.Context) {
	p, err := s.prompts.ByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// handleSetPrompt handles PUT /api/v1/admin/prompts/:name, the admin
// endpoint used to tune a role's system prompt without a redeploy.
func (s *Server) handleSetPrompt(c *gin.Context) {
	var req PromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := s.prompts.Upsert(c.Request.Context(), c.Param("name"), prompt.Category(req.Category), req.Content)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, services.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, services.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func parseQueryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, errors.New("empty")
	}
	return strconv.Atoi(v)
}

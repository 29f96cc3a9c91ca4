// Package api provides the HTTP surface operators and the dashboard use
// to create Events, inspect their progress, and intervene manually.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/deepsoc/pkg/database"
	"github.com/codeready-toolchain/deepsoc/pkg/events"
	"github.com/codeready-toolchain/deepsoc/pkg/queue"
	"github.com/codeready-toolchain/deepsoc/pkg/services"
)

// Server is the HTTP API server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server

	dbClient *database.Client

	events     *services.EventService
	messages   *services.MessageService
	executions *services.ExecutionService
	commands   *services.CommandService
	summaries  *services.SummaryService
	prompts    *services.PromptService
	settings   *services.GlobalSettingService
	users      *services.UserService

	listener *events.Listener
	pools    map[string]*queue.WorkerPool

	authSessions *authSessionManager
}

// NewServer wires a Server against the given ent client and optional
// worker pools (nil entries are skipped in the health report).
func NewServer(dbClient *database.Client, listener *events.Listener, pools map[string]*queue.WorkerPool) *Server {
	client := dbClient.Client

	s := &Server{
		dbClient:     dbClient,
		events:       services.NewEventService(client),
		messages:     services.NewMessageService(client),
		executions:   services.NewExecutionService(client),
		commands:     services.NewCommandService(client),
		summaries:    services.NewSummaryService(client),
		prompts:      services.NewPromptService(client),
		settings:     services.NewGlobalSettingService(client),
		users:        services.NewUserService(client),
		listener:     listener,
		pools:        pools,
		authSessions: newAuthSessionManager(),
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery(), securityHeaders())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	s.router.POST("/api/auth/login", s.handleLogin)
	s.router.POST("/api/auth/logout", s.requireAuth(), s.handleLogout)

	v1 := s.router.Group("/api/v1")
	v1.Use(s.requireAuth())

	v1.POST("/events", s.handleCreateEvent)
	v1.GET("/events", s.handleListEvents)
	v1.GET("/events/:id", s.handleGetEvent)
	v1.GET("/events/:id/messages", s.handleListMessages)
	v1.POST("/events/:id/messages", s.handlePostMessage)
	v1.POST("/events/:id/resolve", s.handleResolveEvent)
	v1.POST("/events/:id/executions/:execution_id/complete", s.handleCompleteExecution)
	v1.POST("/events/:id/rounds/advance", s.handleRequestRoundAdvance)

	admin := v1.Group("/admin")
	admin.Use(s.requireAdmin())
	admin.GET("/driving-mode", s.handleGetDrivingMode)
	admin.PUT("/driving-mode", s.handleSetDrivingMode)
	admin.GET("/prompts/:name", s.handleGetPrompt)
	admin.PUT("/prompts/:name", s.handleSetPrompt)
}

// Start runs the server, blocking until it stops or ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// StartWithListener runs the server on a pre-created net.Listener, used by
// tests that need a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.router}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests that want to issue requests
// directly via httptest without binding a socket.
func (s *Server) Router() *gin.Engine {
	return s.router
}

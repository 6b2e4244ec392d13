// Package api serves the direct-caller HTTP surface of Bruno.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/bruno/internal/agent"
	"github.com/zulandar/bruno/internal/chat"
	"github.com/zulandar/bruno/internal/core"
	"github.com/zulandar/bruno/internal/logging"
	"github.com/zulandar/bruno/internal/memory"
	"go.uber.org/zap"
)

// Conversations runs conversation turns and serves history to the
// conversation's owner. *chat.Service satisfies it.
type Conversations interface {
	Reply(ctx context.Context, req chat.Request) (chat.Reply, error)
	ReplyStream(ctx context.Context, req chat.Request, emit func(string) error) (chat.Reply, error)
	History(ctx context.Context, platform, userID, conversationID string, limit int) ([]core.Message, error)
	ClearHistory(ctx context.Context, platform, userID, conversationID string, keepSystem bool) error
}

// HealthReporter reports agent health. *agent.Agent satisfies it.
type HealthReporter interface {
	HealthCheck(ctx context.Context) agent.Health
	Metadata() agent.Info
}

// ServerOpts holds configuration for the API server.
type ServerOpts struct {
	Conversations Conversations
	Memory        *memory.Manager
	Agent         HealthReporter
	Port          int
	Logger        *zap.Logger
}

// Server is the gin-backed HTTP API.
type Server struct {
	convs  Conversations
	memory *memory.Manager
	agent  HealthReporter
	port   int
	logger *zap.Logger
	router *gin.Engine
}

// New creates a Server and registers its routes.
func New(opts ServerOpts) (*Server, error) {
	if opts.Conversations == nil {
		return nil, fmt.Errorf("api: conversations is required")
	}
	if opts.Memory == nil {
		return nil, fmt.Errorf("api: memory is required")
	}
	if opts.Agent == nil {
		return nil, fmt.Errorf("api: agent is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		convs:  opts.Conversations,
		memory: opts.Memory,
		agent:  opts.Agent,
		port:   opts.Port,
		logger: logging.OrNop(opts.Logger),
		router: gin.New(),
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.registerRoutes()
	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on the configured port. It blocks until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api listening", zap.Int("port", s.port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

func (s *Server) registerRoutes() {
	g := s.router.Group("/api")
	g.POST("/chat", s.handleChat)
	g.POST("/chat/stream", s.handleChatStream)
	g.GET("/conversations/:id/messages", s.handleMessages)
	g.DELETE("/conversations/:id/messages", s.handleClear)
	g.GET("/health", s.handleHealth)
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("api request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atlashq/atlas/internal/queue"
	"github.com/atlashq/atlas/internal/queue/config"
	"github.com/atlashq/atlas/pkg/logging"
)

// Server exposes the queue admin surface: health, stats, task inspection
// and the operator actions (retry, dead-letter, breaker reset).
type Server struct {
	router  *gin.Engine
	manager *queue.Manager
	logger  logging.Logger
	srv     *http.Server
}

func NewServer(manager *queue.Manager, logger logging.Logger) *Server {
	if !config.IsDevMode() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:  router,
		manager: manager,
		logger:  logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	handler := NewHandler(s.manager, s.logger)

	api := s.router.Group("/api/queue")

	api.GET("/health", handler.GetQueueHealth)
	api.GET("/stats", handler.GetQueueStats)

	api.POST("/tasks", handler.EnqueueTask)
	api.GET("/tasks/:id", handler.GetTask)
	api.POST("/tasks/:id/retry", handler.RetryTask)
	api.POST("/tasks/:id/dead-letter", handler.EscalateTask)
	api.POST("/tasks/:id/dead-letter/retry", handler.RetryDeadLetterTask)

	api.GET("/breakers/:worker_id", handler.GetBreakerStatus)
	api.POST("/breakers/:worker_id/reset", handler.ResetBreaker)
}

// Router returns the underlying gin engine so callers can mount extra
// handlers (e.g. the metrics endpoint) before Start.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Start(port string) error {
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: s.router,
	}
	s.logger.Info("Queue admin API listening", "port", port)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// internal/common/server/server.go
package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"freelance-lifecycle/internal/common/config"
	"freelance-lifecycle/internal/common/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Server hosts the API routes next to /health, /ready and /metrics.
type Server struct {
	engine          *gin.Engine
	httpServer      *http.Server
	shutdownTimeout time.Duration
	checks          map[string]ReadinessCheck
	serviceName     string
	logger          logger.Logger
}

func New(cfg config.HTTPConfig, serviceName string, log logger.Logger, checks map[string]ReadinessCheck, middleware ...gin.HandlerFunc) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware...)

	s := &Server{
		engine:          engine,
		shutdownTimeout: config.GetDuration(cfg.ShutdownTimeout),
		checks:          checks,
		serviceName:     serviceName,
		logger:          log.WithFields(map[string]interface{}{"component": "http-server"}),
	}

	engine.GET("/health", s.handleHealth())
	engine.GET("/ready", s.handleReady())
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      engine,
		ReadTimeout:  config.GetDuration(cfg.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.WriteTimeout),
	}
	return s
}

// Engine exposes the router so services can mount their groups.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": s.serviceName,
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (s *Server) handleReady() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		failed := gin.H{}
		for _, name := range names {
			if err := s.checks[name](ctx); err != nil {
				failed[name] = err.Error()
			}
		}

		if len(failed) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "failed": failed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", map[string]interface{}{"address": s.httpServer.Addr})
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info("http server shutting down", nil)
	return s.httpServer.Shutdown(shutdownCtx)
}

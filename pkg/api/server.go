package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/laminacfg/lamina/pkg/engine"
	"github.com/laminacfg/lamina/pkg/telemetry"
)

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	ListenAddress   string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server serves the engine's HTTP API.
type Server struct {
	cfg     ServerConfig
	service *engine.Service
	metrics *telemetry.Metrics
	logger  zerolog.Logger
	httpSrv *http.Server
}

// NewServer builds a Server around the engine service.
func NewServer(cfg ServerConfig, service *engine.Service, metrics *telemetry.Metrics, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		service: service,
		metrics: metrics,
		logger:  logger,
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           s.Router(),
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/entity-definitions", EntityDefinitionsHandler(s.service))

		apiGroup.GET("/namespaces", NamespacesHandler(s.service))
		apiGroup.GET("/namespaces/:ns/entities", ListEntitiesHandler(s.service))
		apiGroup.POST("/namespaces/:ns/entities", CreateEntityHandler(s.service))
		apiGroup.GET("/namespaces/:ns/ui-config", UIConfigHandler(s.service))
		apiGroup.POST("/namespaces/:ns/validate", ValidateHandler(s.service))
		apiGroup.POST("/namespaces/:ns/generate", GenerateHandler(s.service))

		apiGroup.GET("/entities/:id", GetEntityHandler(s.service))
		apiGroup.PATCH("/entities/:id", UpdateEntityHandler(s.service))
		apiGroup.DELETE("/entities/:id", DeleteEntityHandler(s.service))
		apiGroup.GET("/entities/:id/children", ChildrenHandler(s.service))
		apiGroup.GET("/entities/:id/resolved", ResolveHandler(s.service))
	}

	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.ListenAddress).Msg("http server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info().Msg("http server shutting down")
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	}
}

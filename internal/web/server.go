package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abishek-baskaran/zvision/internal/analytics"
	"github.com/abishek-baskaran/zvision/internal/camera"
	"github.com/abishek-baskaran/zvision/internal/config"
	"github.com/abishek-baskaran/zvision/internal/counting"
	"github.com/abishek-baskaran/zvision/internal/detection"
	"github.com/abishek-baskaran/zvision/internal/logger"
	"github.com/abishek-baskaran/zvision/internal/service"
	"github.com/abishek-baskaran/zvision/internal/state"
)

// Server is the operator HTTP API
type Server struct {
	*service.ServiceBase

	cfg      config.ServerConfig
	log      *logger.Logger
	engine   *gin.Engine
	srv      *http.Server
	cameras  *camera.Manager
	det      *detection.Manager
	sink     *analytics.Sink
	store    *state.Manager
	counting *counting.Service
	started  time.Time
}

// NewServer creates the API server. The counting service is optional;
// calibration endpoints still persist without it.
func NewServer(cfg config.ServerConfig, cameras *camera.Manager, det *detection.Manager, sink *analytics.Sink, store *state.Manager, cnt *counting.Service, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		ServiceBase: service.NewServiceBase("web-server", log),
		cfg:         cfg,
		log:         log,
		cameras:     cameras,
		det:         det,
		sink:        sink,
		store:       store,
		counting:    cnt,
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.requestLogger())
	s.engine.Use(corsMiddleware())
	s.setupRoutes()
	return s
}

// Engine exposes the router for tests
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	if s.sink != nil {
		s.engine.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(s.sink.Registry(), promhttp.HandlerOpts{})))
	}

	api := s.engine.Group("/api/v1")
	{
		api.POST("/cameras", s.handleAddCamera)
		api.GET("/cameras", s.handleListCameras)
		api.PUT("/cameras/:id", s.handleReplaceCamera)
		api.DELETE("/cameras/:id", s.handleReleaseCamera)
		api.GET("/cameras/:id/status", s.handleCameraStatus)

		api.POST("/cameras/:id/detection", s.handleEnableDetection)
		api.DELETE("/cameras/:id/detection", s.handleDisableDetection)
		api.GET("/cameras/:id/detection/latest", s.handleLatestDetection)

		api.GET("/cameras/:id/metrics", s.handleCameraMetrics)
		api.GET("/metrics/all", s.handleAllMetrics)

		api.PUT("/cameras/:id/calibration", s.handleSaveCalibration)
		api.GET("/cameras/:id/calibration", s.handleGetCalibration)
		api.GET("/cameras/:id/events", s.handleCrossingEvents)
	}
}

// Start begins serving. Disabled servers start as a no-op so the
// service list stays uniform.
func (s *Server) Start(ctx context.Context) error {
	s.GetStatus().SetStatus(service.StatusStarting)

	if !s.cfg.Enabled {
		s.LogInfo("web server disabled")
		s.GetStatus().SetStatus(service.StatusRunning)
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}
	s.started = time.Now()

	go func() {
		s.LogInfo("web server listening", "addr", addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.LogError("web server failed", err)
			s.GetStatus().SetError(err)
		}
	}()

	s.GetStatus().SetStatus(service.StatusRunning)
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.GetStatus().SetStatus(service.StatusStopping)
	defer s.GetStatus().SetStatus(service.StatusStopped)

	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// requestLogger logs each request with method, path, status and timing
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

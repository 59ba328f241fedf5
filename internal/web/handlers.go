package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abishek-baskaran/zvision/internal/analytics"
	"github.com/abishek-baskaran/zvision/internal/camera"
	"github.com/abishek-baskaran/zvision/internal/counting"
	"github.com/abishek-baskaran/zvision/internal/state"
)

func notFoundBody(cameraID string) gin.H {
	return gin.H{"found": false, "camera_id": cameraID, "error": "camera not found"}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).String(),
	})
}

type addCameraRequest struct {
	CameraID        string `json:"camera_id" binding:"required"`
	Source          string `json:"source" binding:"required"`
	EnableDetection bool   `json:"enable_detection"`
}

func (s *Server) handleAddCamera(c *gin.Context) {
	var req addCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := s.cameras.GetOrCreate(c.Request.Context(), req.CameraID, req.Source, req.EnableDetection)
	if err != nil {
		if errors.Is(err, camera.ErrSourceMismatch) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "camera exists with a different source, use PUT to replace",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"camera_id": req.CameraID, "source": req.Source})
}

type replaceCameraRequest struct {
	Source string `json:"source" binding:"required"`
}

func (s *Server) handleReplaceCamera(c *gin.Context) {
	id := c.Param("id")

	var req replaceCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.cameras.Replace(c.Request.Context(), id, req.Source); err != nil {
		if errors.Is(err, camera.ErrNotFound) {
			c.JSON(http.StatusNotFound, notFoundBody(id))
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"camera_id": id, "source": req.Source})
}

func (s *Server) handleReleaseCamera(c *gin.Context) {
	id := c.Param("id")
	if err := s.cameras.Release(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"released": id})
}

func (s *Server) handleListCameras(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cameras": s.cameras.AllStatuses()})
}

func (s *Server) handleCameraStatus(c *gin.Context) {
	id := c.Param("id")
	view := s.cameras.Status(id)
	if !view.Found {
		c.JSON(http.StatusNotFound, view)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleEnableDetection(c *gin.Context) {
	id := c.Param("id")
	if err := s.cameras.EnableDetection(c.Request.Context(), id); err != nil {
		if errors.Is(err, camera.ErrNotFound) {
			c.JSON(http.StatusNotFound, notFoundBody(id))
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"camera_id": id, "detection": "enabled"})
}

func (s *Server) handleDisableDetection(c *gin.Context) {
	id := c.Param("id")
	if err := s.cameras.DisableDetection(id); err != nil {
		if errors.Is(err, camera.ErrNotFound) {
			c.JSON(http.StatusNotFound, notFoundBody(id))
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"camera_id": id, "detection": "disabled"})
}

func (s *Server) handleLatestDetection(c *gin.Context) {
	id := c.Param("id")
	result, ok := s.det.LatestResult(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"camera_id": id, "error": "no detection result available",
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

type cameraMetricsResponse struct {
	analytics.Metrics
	RecentClassCounts map[int]int `json:"recent_class_counts"`
	ClassWindow       string      `json:"class_window"`
}

func (s *Server) handleCameraMetrics(c *gin.Context) {
	id := c.Param("id")
	metrics, ok := s.sink.CameraMetrics(id)
	if !ok {
		c.JSON(http.StatusNotFound, notFoundBody(id))
		return
	}

	window := s.sink.ClassWindow()
	if raw := c.Query("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "window must be a positive duration"})
			return
		}
		window = d
	}

	c.JSON(http.StatusOK, cameraMetricsResponse{
		Metrics:           metrics,
		RecentClassCounts: s.sink.ClassCountsSince(id, window),
		ClassWindow:       window.String(),
	})
}

func (s *Server) handleAllMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cameras": s.sink.AllMetrics()})
}

type calibrationRequest struct {
	X1          float64 `json:"x1"`
	Y1          float64 `json:"y1"`
	X2          float64 `json:"x2"`
	Y2          float64 `json:"y2"`
	Orientation string  `json:"orientation"`
}

func (s *Server) handleSaveCalibration(c *gin.Context) {
	id := c.Param("id")

	var req calibrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.X1 == req.X2 && req.Y1 == req.Y2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "line endpoints must differ"})
		return
	}
	if req.Orientation == "" {
		req.Orientation = counting.OrientationLeftToRight
	}

	cal := &state.Calibration{
		CameraID:    id,
		X1:          req.X1,
		Y1:          req.Y1,
		X2:          req.X2,
		Y2:          req.Y2,
		Orientation: req.Orientation,
	}
	if err := s.store.SaveCalibration(cal); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if s.counting != nil {
		s.counting.Evaluator().Configure(id,
			counting.Line{X1: req.X1, Y1: req.Y1, X2: req.X2, Y2: req.Y2},
			req.Orientation)
	}
	c.JSON(http.StatusOK, cal)
}

func (s *Server) handleGetCalibration(c *gin.Context) {
	id := c.Param("id")
	cal, err := s.store.GetCalibration(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cal == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"camera_id": id, "error": "no calibration configured",
		})
		return
	}
	c.JSON(http.StatusOK, cal)
}

func (s *Server) handleCrossingEvents(c *gin.Context) {
	id := c.Param("id")

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		since = ts
	}

	events, err := s.store.ListCrossingEvents(id, since, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	entries, exits, err := s.store.CountCrossingEvents(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"camera_id": id,
		"entries":   entries,
		"exits":     exits,
		"events":    events,
	})
}

package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fieldscope/fieldscope/internal/engine"
	"github.com/fieldscope/fieldscope/internal/export"
	"github.com/fieldscope/fieldscope/internal/model"
)

// StateEngine is the narrow engine contract required by the HTTP API.
type StateEngine interface {
	SetSensors(sensorIDs []string)
	DropSensors(sensorIDs []string)
	SetChannels(sensorID string, metricIDs []string) error
	ApplyDefaultChannels()
	Selection() []string
	Channels(sensorID string) []string
	ActiveMetricIDs() []string

	Start()
	Stop()
	Save() (string, error)
	ConfigureDuration(value float64, unit string)
	DurationLimit() *float64
	State() engine.SessionState
	Elapsed() float64

	CurrentView() model.View
	SelectForDisplay(name string)
	SnapshotNames() []string
	Snapshots() []model.SeriesSnapshot
	ClearAll()
}

// SensorLister reports which sensors are currently publishing.
type SensorLister interface {
	Snapshot(now time.Time, staleAfter time.Duration) []string
}

// SeriesArchiver persists saved series outside the process.
type SeriesArchiver interface {
	Archive(ctx context.Context, snapshots []model.SeriesSnapshot) error
}

// Server exposes the measurement engine over HTTP for UI collaborators.
type Server struct {
	addr       string
	eng        StateEngine
	sensors    SensorLister
	archiver   SeriesArchiver
	staleAfter time.Duration
	server     *http.Server
	listener   net.Listener
	ctx        context.Context
	cancel     context.CancelFunc
	startTime  time.Time
}

// ServerConfig holds the optional collaborators of the API server.
type ServerConfig struct {
	Sensors    SensorLister
	Archiver   SeriesArchiver
	StaleAfter time.Duration
}

// NewServer creates a new HTTP API server. Default addr is "0.0.0.0:3000".
func NewServer(addr string, eng StateEngine, conf ...ServerConfig) *Server {
	if addr == "" {
		addr = "0.0.0.0:3000"
	}
	staleAfter := model.DefaultSensorStaleAfter
	var sensors SensorLister
	var archiver SeriesArchiver
	if len(conf) > 0 {
		sensors = conf[0].Sensors
		archiver = conf[0].Archiver
		if conf[0].StaleAfter > 0 {
			staleAfter = conf[0].StaleAfter
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:       addr,
		eng:        eng,
		sensors:    sensors,
		archiver:   archiver,
		staleAfter: staleAfter,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	s.registerRoutes(r)

	s.server = &http.Server{
		Handler:           r,
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Addr returns the bound listen address, useful when the port was 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/api/health", s.handleHealth)

	r.GET("/api/sensors", s.handleListSensors)
	r.POST("/api/sensors", s.handleSetSensors)
	r.POST("/api/sensors/drop", s.handleDropSensors)
	r.POST("/api/channels", s.handleSetChannels)

	r.POST("/api/session/start", s.handleStart)
	r.POST("/api/session/stop", s.handleStop)
	r.POST("/api/session/save", s.handleSave)
	r.POST("/api/session/duration", s.handleDuration)

	r.GET("/api/view", s.handleView)
	r.POST("/api/view/select", s.handleSelectView)

	r.GET("/api/series", s.handleListSeries)
	r.POST("/api/series/clear", s.handleClearSeries)
	r.POST("/api/series/archive", s.handleArchiveSeries)
	r.GET("/api/export.csv", s.handleExportCSV)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).String(),
		"state":   s.eng.State().String(),
		"elapsed": s.eng.Elapsed(),
	})
}

func (s *Server) handleListSensors(c *gin.Context) {
	var detected []string
	if s.sensors != nil {
		detected = s.sensors.Snapshot(time.Now(), s.staleAfter)
	}
	selected := s.eng.Selection()
	channels := make(map[string][]string, len(selected))
	for _, id := range selected {
		channels[id] = s.eng.Channels(id)
	}
	c.JSON(http.StatusOK, gin.H{
		"detected":       detected,
		"selected":       selected,
		"channels":       channels,
		"active_metrics": s.eng.ActiveMetricIDs(),
	})
}

func (s *Server) handleSetSensors(c *gin.Context) {
	var req struct {
		Sensors         []string `json:"sensors" binding:"required"`
		DefaultChannels bool     `json:"default_channels"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing sensors field"})
		return
	}
	s.eng.SetSensors(req.Sensors)
	if req.DefaultChannels {
		s.eng.ApplyDefaultChannels()
	}
	c.JSON(http.StatusOK, gin.H{
		"selected":       s.eng.Selection(),
		"active_metrics": s.eng.ActiveMetricIDs(),
	})
}

func (s *Server) handleDropSensors(c *gin.Context) {
	var req struct {
		Sensors []string `json:"sensors" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing sensors field"})
		return
	}
	s.eng.DropSensors(req.Sensors)
	c.JSON(http.StatusOK, gin.H{"selected": s.eng.Selection()})
}

func (s *Server) handleSetChannels(c *gin.Context) {
	var req struct {
		Sensor  string   `json:"sensor" binding:"required"`
		Metrics []string `json:"metrics" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing sensor/metrics fields"})
		return
	}
	if err := s.eng.SetChannels(req.Sensor, req.Metrics); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active_metrics": s.eng.ActiveMetricIDs()})
}

func (s *Server) handleStart(c *gin.Context) {
	s.eng.Start()
	c.JSON(http.StatusOK, gin.H{"state": s.eng.State().String()})
}

func (s *Server) handleStop(c *gin.Context) {
	s.eng.Stop()
	c.JSON(http.StatusOK, gin.H{"state": s.eng.State().String()})
}

func (s *Server) handleSave(c *gin.Context) {
	name, err := s.eng.Save()
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, engine.ErrEmptyRecording) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": name, "series": s.eng.SnapshotNames()})
}

func (s *Server) handleDuration(c *gin.Context) {
	var req struct {
		Value float64 `json:"value"`
		Unit  string  `json:"unit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	s.eng.ConfigureDuration(req.Value, req.Unit)
	c.JSON(http.StatusOK, gin.H{"limit_seconds": s.eng.DurationLimit()})
}

func (s *Server) handleView(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":   s.eng.State().String(),
		"elapsed": s.eng.Elapsed(),
		"view":    s.eng.CurrentView(),
	})
}

func (s *Server) handleSelectView(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	s.eng.SelectForDisplay(req.Name)
	c.JSON(http.StatusOK, gin.H{"view": s.eng.CurrentView().SeriesName, "state": s.eng.State().String()})
}

func (s *Server) handleListSeries(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"series": s.eng.SnapshotNames()})
}

func (s *Server) handleClearSeries(c *gin.Context) {
	s.eng.ClearAll()
	c.JSON(http.StatusOK, gin.H{"series": s.eng.SnapshotNames()})
}

func (s *Server) handleArchiveSeries(c *gin.Context) {
	if s.archiver == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive sink not configured"})
		return
	}
	snaps := s.eng.Snapshots()
	if len(snaps) == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "no saved series to archive"})
		return
	}
	if err := s.archiver.Archive(c.Request.Context(), snaps); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"archived": len(snaps)})
}

func (s *Server) handleExportCSV(c *gin.Context) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="fieldscope-series.csv"`)
	if err := export.WriteCSV(c.Writer, s.eng.Snapshots()); err != nil {
		// Headers are already out; the truncated body is the best signal left.
		c.Status(http.StatusInternalServerError)
	}
}

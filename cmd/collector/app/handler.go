package app

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
)

const (
	defaultLimit = 100

	errRequired = "Latitude, longitude, and altitude are required"
)

type logRequest struct {
	DroneID     string   `json:"droneId"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Altitude    *float64 `json:"altitude"`
	Heading     *float64 `json:"heading"`
	GroundSpeed *float64 `json:"groundspeed"`
	Satellites  *int     `json:"satellites"`
	GPSFixType  *int     `json:"gps_fix_type"`
	Timestamp   string   `json:"timestamp"`
}

// WithFailEvery makes every n-th POST fail with HTTP 500. Zero disables it.
func WithFailEvery(n int) func(*LogHandler) {
	return func(h *LogHandler) {
		h.failEvery = int64(n)
	}
}

// WithLogger sets the logger for the handler
func WithLogger(logger *slog.Logger) func(*LogHandler) {
	return func(h *LogHandler) {
		h.logger = logger.With(slog.String("component", "handler"))
	}
}

// WithNow sets the time source
func WithNow(now func() time.Time) func(*LogHandler) {
	return func(h *LogHandler) {
		h.now = now
	}
}

// LogHandler serves the telemetry log API.
type LogHandler struct {
	ring      *Ring
	failEvery int64
	posts     atomic.Int64
	rejected  atomic.Int64
	started   time.Time
	now       func() time.Time
	logger    *slog.Logger
}

// NewLogHandler creates a handler storing accepted records in ring
func NewLogHandler(ring *Ring, options ...func(*LogHandler)) *LogHandler {
	h := LogHandler{
		ring:   ring,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&h)
	}

	h.started = h.now()
	return &h
}

// CreateLog handles a single telemetry log entry
func (h *LogHandler) CreateLog(c *gin.Context) {
	n := h.posts.Add(1)

	var req logRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.rejected.Add(1)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload", "details": err.Error()})
		return
	}

	if req.Latitude == nil || req.Longitude == nil || req.Altitude == nil {
		h.rejected.Add(1)
		c.JSON(http.StatusBadRequest, gin.H{"error": errRequired, "details": "missing one of latitude, longitude, altitude"})
		return
	}

	if err := validateCoordinates(*req.Latitude, *req.Longitude); err != nil {
		h.rejected.Add(1)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid coordinates", "details": err.Error()})
		return
	}

	if h.failEvery > 0 && n%h.failEvery == 0 {
		h.rejected.Add(1)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store telemetry data", "details": "injected failure"})
		return
	}

	now := h.now().UTC()
	ts := now
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339Nano, req.Timestamp)
		if err != nil {
			h.rejected.Add(1)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid timestamp", "details": err.Error()})
			return
		}
		ts = parsed.UTC()
	}

	rec := h.ring.Add(Record{
		DroneID:     req.DroneID,
		Latitude:    *req.Latitude,
		Longitude:   *req.Longitude,
		Altitude:    *req.Altitude,
		Heading:     req.Heading,
		GroundSpeed: req.GroundSpeed,
		Satellites:  req.Satellites,
		GPSFixType:  req.GPSFixType,
		Timestamp:   ts,
		ReceivedAt:  now,
	})

	h.logger.Debug("telemetry stored",
		slog.Int64("id", rec.ID),
		slog.String("droneId", rec.DroneID),
		slog.Float64("lat", rec.Latitude),
		slog.Float64("lon", rec.Longitude),
	)

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Telemetry data stored successfully",
		"data":    rec,
	})
}

// ListLogs returns the most recent records, optionally filtered by drone
func (h *LogHandler) ListLogs(c *gin.Context) {
	limit := defaultLimit
	if s := c.Query("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit", "details": fmt.Sprintf("limit must be a positive integer, got '%s'", s)})
			return
		}
		limit = v
	}

	records := h.ring.Recent(c.Query("droneId"), limit)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(records),
		"data":    records,
	})
}

// HealthCheck returns the health status and counters of the collector
func (h *LogHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": h.now().UTC(),
		"received":  humanize.Comma(h.posts.Load()),
		"rejected":  humanize.Comma(h.rejected.Load()),
		"stored":    humanize.Comma(int64(h.ring.Len())),
		"started":   humanize.RelTime(h.started, h.now(), "ago", "from now"),
	})
}

func validateCoordinates(lat, lon float64) error {
	switch {
	case lat < -90 || lat > 90:
		return fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	case lon < -180 || lon > 180:
		return fmt.Errorf("longitude %v out of range [-180, 180]", lon)
	}
	return nil
}

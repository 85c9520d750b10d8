package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/credio/credio-alerts/internal/catalog"
	"github.com/credio/credio-alerts/internal/geo"
	"github.com/credio/credio-alerts/internal/ingestion"
	"github.com/credio/credio-alerts/internal/metrics"
	"github.com/credio/credio-alerts/internal/models"
	"github.com/credio/credio-alerts/internal/repository"
	"github.com/credio/credio-alerts/internal/risk"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// ActiveSet is the in-memory view of current events.
type ActiveSet interface {
	Get(id string) (models.Disaster, bool)
	Active() []models.Disaster
}

// Injector runs a synthetic record through ingestion.
type Injector interface {
	Inject(ctx context.Context, rec ingestion.RawRecord) (models.Disaster, catalog.Change, error)
}

type Options struct {
	// DebugEndpoints enables POST /api/debug/test-disaster.
	DebugEndpoints bool
}

type Handler struct {
	repo     repository.DisasterRepository
	active   ActiveSet
	engine   *risk.Engine
	injector Injector
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	opts     Options
}

func NewHandler(
	repo repository.DisasterRepository,
	active ActiveSet,
	engine *risk.Engine,
	injector Injector,
	clock clockwork.Clock,
	logger *slog.Logger,
	m *metrics.Metrics,
	opts Options,
) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		repo:     repo,
		active:   active,
		engine:   engine,
		injector: injector,
		clock:    clock,
		logger:   logger,
		metrics:  m,
		opts:     opts,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/api/disasters", h.getDisasters)
	r.GET("/api/disasters/:id", h.getDisaster)
	r.GET("/api/risk", h.assessRisk)
	if h.opts.DebugEndpoints {
		r.POST("/api/debug/test-disaster", h.createTestDisaster)
	}
}

func (h *Handler) getDisasters(c *gin.Context) {
	filter := repository.Filter{
		Limit: defaultListLimit, // Default to 20 disasters if limit param not supplied
	}

	if t := c.Query("type"); t != "" {
		dt := models.ParseDisasterType(t)
		if dt != models.DisasterTypeUnknown {
			filter.Type = &dt
		}
	}
	if s := c.Query("min_severity"); s != "" {
		if sev, err := models.ParseSeverity(s); err == nil {
			filter.MinSeverity = &sev
		}
	}
	if s := c.Query("status"); s != "" {
		if st, err := models.ParseStatus(s); err == nil {
			filter.Status = &st
		}
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			filter.Since = &t
		}
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= maxListLimit {
			filter.Limit = lim
		}
	}
	if o := c.Query("offset"); o != "" {
		if off, err := strconv.Atoi(o); err == nil && off >= 0 {
			filter.Offset = off
		}
	}

	disasters, err := h.repo.ListDisasters(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("error listing disasters", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch disasters",
		})
		return
	}

	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, toGeoJSON(disasters))
}

func (h *Handler) getDisaster(c *gin.Context) {
	id := c.Param("id")

	if d, ok := h.active.Get(id); ok {
		c.JSON(http.StatusOK, toFeature(&d))
		return
	}

	d, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "disaster not found"})
		return
	}
	if err != nil {
		h.logger.Error("error getting disaster", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch disaster"})
		return
	}
	c.JSON(http.StatusOK, toFeature(d))
}

func (h *Handler) assessRisk(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	loc := geo.Point{Latitude: lat, Longitude: lon}
	if errLat != nil || errLon != nil || !loc.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon must be valid coordinates"})
		return
	}

	h.metrics.RiskAssessments.Inc()
	c.JSON(http.StatusOK, h.engine.Assess(&loc, h.active.Active()))
}

type testDisasterRequest struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Severity    string   `json:"severity"`
	Status      string   `json:"status"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	RadiusKm    float64  `json:"radiusKm"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
}

func (h *Handler) createTestDisaster(c *gin.Context) {
	var req testDisasterRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	rec := ingestion.RawRecord{
		Source:      "debug",
		ExternalID:  req.ID,
		Type:        models.DisasterTypeEarthquake,
		Severity:    models.SeverityCritical,
		Point:       geo.Point{Latitude: 35.6762, Longitude: 139.6503},
		RadiusKm:    req.RadiusKm,
		Title:       "Test Earthquake - M7.5",
		Description: "This is a test disaster for debugging",
		Magnitude:   7.5,
		StartedAt:   h.clock.Now(),
	}
	if rec.ExternalID == "" {
		rec.ExternalID = fmt.Sprintf("test_%d", h.clock.Now().UnixNano())
	}
	if req.Type != "" {
		rec.Type = models.ParseDisasterType(req.Type)
		rec.Magnitude = 0
	}
	if req.Latitude != nil && req.Longitude != nil {
		rec.Point = geo.Point{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}
	if req.Title != "" {
		rec.Title = req.Title
	}
	if req.Description != "" {
		rec.Description = req.Description
	}
	var err error
	if req.Severity != "" {
		if rec.Severity, err = models.ParseSeverity(req.Severity); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Status != "" {
		if rec.Status, err = models.ParseStatus(req.Status); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	d, change, err := h.injector.Inject(c.Request.Context(), rec)
	if errors.Is(err, ingestion.ErrInvalidRecord) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("error injecting test disaster", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to inject test disaster"})
		return
	}

	msg := "test disaster published"
	if !change.Publishable() {
		msg = "test disaster unchanged, nothing published"
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   msg,
		"id":        d.ID,
		"version":   d.Version,
		"change":    change.String(),
		"published": change.Publishable(),
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

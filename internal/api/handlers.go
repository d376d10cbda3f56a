package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ggnhomes/server/internal/autocomplete"
	"ggnhomes/server/internal/database"
	"ggnhomes/server/internal/discovery"
	"ggnhomes/server/internal/engagement"
	"ggnhomes/server/internal/history"
	"ggnhomes/server/internal/location"
	"ggnhomes/server/internal/models"
	"ggnhomes/server/internal/recommend"
)

// EventDispatcher accepts fire-and-forget engagement events
type EventDispatcher interface {
	Dispatch(ctx context.Context, event models.EngagementEvent) error
}

// IndexRefresher rebuilds the autocomplete index after catalogue changes
type IndexRefresher interface {
	Refresh() error
}

type Handler struct {
	db            *database.Database
	logger        *logrus.Logger
	geocoder      location.ReverseGeocoder
	discovery     *discovery.Service
	tracker       *engagement.Tracker
	events        EventDispatcher
	history       *history.Store
	assembler     *recommend.Assembler
	index         *autocomplete.Index
	refresher     IndexRefresher
	locateTimeout time.Duration
}

// Dependencies are the services the HTTP handlers sit on
type Dependencies struct {
	DB            *database.Database
	Geocoder      location.ReverseGeocoder
	Discovery     *discovery.Service
	Tracker       *engagement.Tracker
	Events        EventDispatcher
	History       *history.Store
	Assembler     *recommend.Assembler
	Index         *autocomplete.Index
	Refresher     IndexRefresher
	LocateTimeout time.Duration
}

func NewHandler(deps Dependencies, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Handler{
		db:            deps.DB,
		logger:        logger,
		geocoder:      deps.Geocoder,
		discovery:     deps.Discovery,
		tracker:       deps.Tracker,
		events:        deps.Events,
		history:       deps.History,
		assembler:     deps.Assembler,
		index:         deps.Index,
		refresher:     deps.Refresher,
		locateTimeout: deps.LocateTimeout,
	}
}

type LocationRequest struct {
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	PermissionDenied bool     `json:"permission_denied"`
}

// ResolveLocation turns device coordinates into a location fix
func (h *Handler) ResolveLocation(c *gin.Context) {
	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	var geolocator location.Geolocator
	switch {
	case req.PermissionDenied:
		geolocator = location.Denied{}
	case req.Latitude != nil && req.Longitude != nil:
		geolocator = location.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	resolver := location.NewResolver(geolocator, h.geocoder, h.locateTimeout, h.logger)
	fix, err := resolver.RequestLocation(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, location.ErrPermissionDenied):
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Location permission denied",
				"retry": "Allow location access and try again",
			})
		case errors.Is(err, location.ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Location unavailable"})
		default:
			h.logger.WithError(err).Warn("Failed to resolve location")
			c.JSON(http.StatusBadGateway, gin.H{"error": "Could not determine a place name for this location"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"fix":     fix,
		"feature": fix.Feature(),
	})
}

type LocationQuery struct {
	QueryFields []string `json:"query_fields"`
	ActiveOnly  *bool    `json:"active_only"`
}

// PropertiesByLocation lists the properties matching any of the given place
// names. A store outage answers with an empty list.
func (h *Handler) PropertiesByLocation(c *gin.Context) {
	var req LocationQuery
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	activeOnly := true
	if req.ActiveOnly != nil {
		activeOnly = *req.ActiveOnly
	}

	properties, err := h.discovery.FindByLocation(c.Request.Context(), req.QueryFields, activeOnly)
	if err != nil {
		h.logger.WithError(err).Warn("Location lookup failed, answering with no properties")
		properties = []models.Property{}
	}
	c.JSON(http.StatusOK, properties)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func splitFields(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// GetRecommendations serves the recommended and nearby feeds. The client
// passes its last fix as comma separated fields.
func (h *Handler) GetRecommendations(c *gin.Context) {
	identity := identityFrom(c)
	state := models.SessionState{LastSector: strings.TrimSpace(c.Query("last_sector"))}

	var fix *models.LocationFix
	if fields := splitFields(c.Query("fields")); len(fields) > 0 {
		fix = &models.LocationFix{Fields: fields}
	}

	feeds := h.assembler.Assemble(c.Request.Context(), identity, state, fix)

	c.JSON(http.StatusOK, gin.H{
		"recommended":       models.Page(feeds.Recommended, queryInt(c, "recommended_offset", 0), queryInt(c, "recommended_limit", 0)),
		"recommended_total": len(feeds.Recommended),
		"nearby":            models.Page(feeds.Nearby, queryInt(c, "nearby_offset", 0), queryInt(c, "nearby_limit", 0)),
		"nearby_total":      len(feeds.Nearby),
		"preferred_area":    feeds.PreferredArea,
		"personalized":      feeds.Personalized,
	})
}

// SuggestAreas answers autocomplete lookups
func (h *Handler) SuggestAreas(c *gin.Context) {
	c.JSON(http.StatusOK, h.index.Suggest(c.Query("q")))
}

// GetSearchHistory lists the caller's recent searches; anonymous callers get none
func (h *Handler) GetSearchHistory(c *gin.Context) {
	identity := identityFrom(c)
	entries, err := h.history.Recent(c.Request.Context(), identity.UserID, queryInt(c, "limit", 0))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Search history unavailable"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

type SearchRequest struct {
	Query string `json:"query"`
}

// RecordSearch appends a committed search to the caller's history
func (h *Handler) RecordSearch(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	identity := identityFrom(c)
	if err := h.history.Record(c.Request.Context(), identity.UserID, req.Query); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Search history unavailable"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"recorded": !identity.Anonymous() && strings.TrimSpace(req.Query) != "",
	})
}

type EngagementRequest struct {
	PropertyID int64  `json:"property_id" binding:"required"`
	Seconds    int64  `json:"seconds"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment"`
}

func (h *Handler) engagementError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engagement.ErrValidation), errors.Is(err, engagement.ErrUnknownEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Analytics unavailable"})
	}
}

func (h *Handler) dispatch(c *gin.Context, event models.EngagementEvent) {
	if err := h.events.Dispatch(c.Request.Context(), event); err != nil {
		h.engagementError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// AddView records a property view without waiting for the write
func (h *Handler) AddView(c *gin.Context) {
	var req EngagementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "property_id is required"})
		return
	}
	h.dispatch(c, models.EngagementEvent{Kind: models.EventView, PropertyID: req.PropertyID})
}

// AddEngagementTime records dwell seconds without waiting for the write
func (h *Handler) AddEngagementTime(c *gin.Context) {
	var req EngagementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "property_id is required"})
		return
	}
	h.dispatch(c, models.EngagementEvent{Kind: models.EventEngagement, PropertyID: req.PropertyID, Seconds: req.Seconds})
}

func (h *Handler) AddRating(c *gin.Context) {
	var req EngagementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "property_id is required"})
		return
	}

	identity := identityFrom(c)
	if err := h.tracker.AddRating(c.Request.Context(), req.PropertyID, req.Rating, req.Comment, identity.UserID); err != nil {
		h.engagementError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "rated"})
}

func (h *Handler) AddSave(c *gin.Context) {
	identity := identityFrom(c)
	if identity.Anonymous() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign in to save properties"})
		return
	}

	var req EngagementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "property_id is required"})
		return
	}

	alreadySaved, err := h.tracker.AddSave(c.Request.Context(), req.PropertyID, identity.UserID)
	if err != nil {
		h.engagementError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"already_saved": alreadySaved})
}

func (h *Handler) GetMetrics(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid property ID"})
		return
	}

	metrics, err := h.tracker.GetMetrics(c.Request.Context(), id)
	if err != nil {
		h.engagementError(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

func (h *Handler) GetSavedProperties(c *gin.Context) {
	identity := identityFrom(c)
	if identity.Anonymous() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	properties, err := h.tracker.SavedProperties(c.Request.Context(), identity.UserID)
	if err != nil {
		h.engagementError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":      len(properties),
		"properties": properties,
	})
}

type SummaryRequest struct {
	PropertyIDs []int64 `json:"property_ids"`
}

// GetSummary aggregates engagement over a set of properties
func (h *Handler) GetSummary(c *gin.Context) {
	var req SummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	summary, err := h.tracker.Summary(c.Request.Context(), req.PropertyIDs)
	if err != nil {
		h.engagementError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.db.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ggnhomes/server/config"
	"ggnhomes/server/internal/database"
)

// ListAreas returns the stored area catalogue
func (h *Handler) ListAreas(c *gin.Context) {
	areas, err := h.db.ListAreas()
	if err != nil {
		h.logger.WithError(err).Error("Failed to list areas")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list areas"})
		return
	}
	c.JSON(http.StatusOK, areas)
}

// CreateArea adds an area to the catalogue and refreshes autocomplete
func (h *Handler) CreateArea(c *gin.Context) {
	var area config.Area
	if err := c.ShouldBindJSON(&area); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	area.Name = strings.TrimSpace(area.Name)
	if area.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Area name is required"})
		return
	}

	if err := h.db.UpsertArea(area); err != nil {
		h.logger.WithError(err).WithField("area", area.Name).Error("Failed to create area")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create area"})
		return
	}
	h.refreshIndex()

	c.JSON(http.StatusCreated, area)
}

// DeleteArea removes an area from the catalogue
func (h *Handler) DeleteArea(c *gin.Context) {
	name := c.Param("name")
	if err := h.db.DeleteArea(name); err != nil {
		if errors.Is(err, database.ErrAreaNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Area not found"})
			return
		}
		h.logger.WithError(err).WithField("area", name).Error("Failed to delete area")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete area"})
		return
	}
	h.refreshIndex()

	c.JSON(http.StatusOK, gin.H{"message": "Area deleted successfully"})
}

// refreshIndex rebuilds autocomplete after a catalogue change. A failure
// leaves the previous index serving and the next scheduled refresh retries.
func (h *Handler) refreshIndex() {
	if h.refresher == nil {
		return
	}
	if err := h.refresher.Refresh(); err != nil {
		h.logger.WithError(err).Warn("Failed to refresh autocomplete index")
	}
}

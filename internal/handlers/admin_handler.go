package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"opinion-market/internal/config"
	"opinion-market/internal/models"
	"opinion-market/internal/services"
)

type AdminHandler struct {
	db         *gorm.DB
	serializer *services.Serializer
	market     config.MarketConfig
}

func NewAdminHandler(db *gorm.DB, serializer *services.Serializer, market config.MarketConfig) *AdminHandler {
	return &AdminHandler{
		db:         db,
		serializer: serializer,
		market:     market,
	}
}

// Pause blocks all state-changing calls (operator/admin only)
// POST /api/admin/pause
func (h *AdminHandler) Pause(c *gin.Context) {
	h.serializer.Pause()
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

// Unpause re-enables state-changing calls (operator/admin only)
// POST /api/admin/unpause
func (h *AdminHandler) Unpause(c *gin.Context) {
	h.serializer.Unpause()
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

// Params exposes the current market parameters (admin only)
// GET /api/admin/params
func (h *AdminHandler) Params(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"paused": h.serializer.IsPaused(),
		"params": h.market,
	})
}

// Stats returns platform-wide counters
// GET /api/admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	var opinionCount, poolCount, eventCount int64
	var totalVolume int64

	if err := h.db.Model(&models.Opinion{}).Count(&opinionCount).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count opinions"})
		return
	}
	if err := h.db.Model(&models.Pool{}).Count(&poolCount).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count pools"})
		return
	}
	if err := h.db.Model(&models.ActivityEvent{}).Count(&eventCount).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count events"})
		return
	}
	row := h.db.Model(&models.Opinion{}).Select("COALESCE(SUM(total_volume), 0)").Row()
	if err := row.Scan(&totalVolume); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sum volume"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"opinions":            opinionCount,
		"pools":               poolCount,
		"events":              eventCount,
		"total_volume":        totalVolume,
		"total_volume_tokens": models.AmountDecimal(totalVolume),
	})
}

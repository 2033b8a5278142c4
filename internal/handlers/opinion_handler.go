package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"opinion-market/internal/auth"
	"opinion-market/internal/models"
	"opinion-market/internal/services"
)

type OpinionHandler struct {
	opinions  *services.OpinionService
	sequencer *services.Sequencer
}

func NewOpinionHandler(opinions *services.OpinionService, sequencer *services.Sequencer) *OpinionHandler {
	return &OpinionHandler{
		opinions:  opinions,
		sequencer: sequencer,
	}
}

// Create creates a new opinion
// POST /api/opinions
func (h *OpinionHandler) Create(c *gin.Context) {
	caller, exists := auth.GetWalletAddress(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req models.CreateOpinionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opinion, err := h.opinions.CreateOpinion(c.Request.Context(), h.sequencer.Call(caller), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, opinion)
}

// Submit submits a competing answer
// POST /api/opinions/:id/answers
func (h *OpinionHandler) Submit(c *gin.Context) {
	caller, exists := auth.GetWalletAddress(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	opinionID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req models.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opinion, err := h.opinions.SubmitAnswer(c.Request.Context(), h.sequencer.Call(caller), opinionID, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, opinion)
}

// Get retrieves one opinion
// GET /api/opinions/:id
func (h *OpinionHandler) Get(c *gin.Context) {
	opinionID, ok := parseID(c, "id")
	if !ok {
		return
	}

	opinion, err := h.opinions.GetOpinion(c.Request.Context(), opinionID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"opinion":            opinion,
		"next_price_tokens":  opinion.NextPriceDecimal(),
		"total_volume_tokens": opinion.TotalVolumeDecimal(),
	})
}

// List retrieves opinions
// GET /api/opinions
func (h *OpinionHandler) List(c *gin.Context) {
	limit, offset := parsePagination(c)
	activeOnly := c.DefaultQuery("active", "true") == "true"

	opinions, err := h.opinions.ListOpinions(c.Request.Context(), activeOnly, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, opinions)
}

// History retrieves the full answer history of an opinion
// GET /api/opinions/:id/history
func (h *OpinionHandler) History(c *gin.Context) {
	opinionID, ok := parseID(c, "id")
	if !ok {
		return
	}

	entries, err := h.opinions.GetHistory(c.Request.Context(), opinionID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

// Deactivate soft-deletes an opinion (moderator only)
// POST /api/opinions/:id/deactivate
func (h *OpinionHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

// Reactivate re-enables an opinion (moderator only)
// POST /api/opinions/:id/reactivate
func (h *OpinionHandler) Reactivate(c *gin.Context) {
	h.setActive(c, true)
}

func (h *OpinionHandler) setActive(c *gin.Context, active bool) {
	caller, exists := auth.GetWalletAddress(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	opinionID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var err error
	if active {
		err = h.opinions.Reactivate(c.Request.Context(), h.sequencer.Call(caller), opinionID)
	} else {
		err = h.opinions.Deactivate(c.Request.Context(), h.sequencer.Call(caller), opinionID)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"opinion_id": opinionID, "is_active": active})
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"opinion-market/internal/auth"
	"opinion-market/internal/models"
	"opinion-market/internal/services"
)

type PoolHandler struct {
	pools     *services.PoolService
	sequencer *services.Sequencer
}

func NewPoolHandler(pools *services.PoolService, sequencer *services.Sequencer) *PoolHandler {
	return &PoolHandler{
		pools:     pools,
		sequencer: sequencer,
	}
}

// Create opens a new pool
// POST /api/pools
func (h *PoolHandler) Create(c *gin.Context) {
	caller, exists := auth.GetWalletAddress(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req models.CreatePoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pool, err := h.pools.CreatePool(c.Request.Context(), h.sequencer.Call(caller), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, pool)
}

// Contribute adds funds to a pool
// POST /api/pools/:id/contributions
func (h *PoolHandler) Contribute(c *gin.Context) {
	caller, exists := auth.GetWalletAddress(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	poolID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req models.ContributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pool, err := h.pools.Contribute(c.Request.Context(), h.sequencer.Call(caller), poolID, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, pool)
}

// Execute settles a fully funded pool (manual retry path)
// POST /api/pools/:id/execute
func (h *PoolHandler) Execute(c *gin.Context) {
	caller, exists := auth.GetWalletAddress(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	poolID, ok := parseID(c, "id")
	if !ok {
		return
	}

	pool, err := h.pools.Execute(c.Request.Context(), h.sequencer.Call(caller), poolID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, pool)
}

// Withdraw refunds the caller's contribution from an expired pool
// POST /api/pools/:id/withdraw
func (h *PoolHandler) Withdraw(c *gin.Context) {
	caller, exists := auth.GetWalletAddress(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	poolID, ok := parseID(c, "id")
	if !ok {
		return
	}

	refund, err := h.pools.WithdrawFromExpiredPool(c.Request.Context(), h.sequencer.Call(caller), poolID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pool_id":       poolID,
		"refund":        refund,
		"refund_tokens": models.AmountDecimal(refund),
	})
}

// Get retrieves one pool
// GET /api/pools/:id
func (h *PoolHandler) Get(c *gin.Context) {
	poolID, ok := parseID(c, "id")
	if !ok {
		return
	}

	pool, err := h.pools.GetPool(c.Request.Context(), poolID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pool":               pool,
		"target_tokens":      pool.TargetDecimal(),
		"contributed_tokens": pool.ContributedDecimal(),
	})
}

// List retrieves pools, optionally filtered by opinion and status
// GET /api/pools
func (h *PoolHandler) List(c *gin.Context) {
	limit, offset := parsePagination(c)

	var opinionID uint
	if raw := c.Query("opinion_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid opinion_id"})
			return
		}
		opinionID = uint(parsed)
	}
	status := models.PoolStatus(c.Query("status"))

	pools, err := h.pools.ListPools(c.Request.Context(), opinionID, status, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, pools)
}

// Contributions lists contribution entries of a pool
// GET /api/pools/:id/contributions
func (h *PoolHandler) Contributions(c *gin.Context) {
	poolID, ok := parseID(c, "id")
	if !ok {
		return
	}

	entries, err := h.pools.ListContributions(c.Request.Context(), poolID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

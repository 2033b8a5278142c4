package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"opinion-market/internal/auth"
	"opinion-market/internal/models"
	"opinion-market/internal/services"
)

type FeeHandler struct {
	fees      *services.FeeLedger
	sequencer *services.Sequencer
}

func NewFeeHandler(fees *services.FeeLedger, sequencer *services.Sequencer) *FeeHandler {
	return &FeeHandler{
		fees:      fees,
		sequencer: sequencer,
	}
}

// Balance returns the caller's accumulated claimable fees
// GET /api/fees/balance
func (h *FeeHandler) Balance(c *gin.Context) {
	caller, exists := auth.GetWalletAddress(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	balance, err := h.fees.GetBalance(c.Request.Context(), caller)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":       balance.Address,
		"amount":        balance.Amount,
		"amount_tokens": balance.AmountDecimal(),
	})
}

// Withdraw pays out the caller's full accumulated balance
// POST /api/fees/withdraw
func (h *FeeHandler) Withdraw(c *gin.Context) {
	caller, exists := auth.GetWalletAddress(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	amount, err := h.fees.Withdraw(c.Request.Context(), h.sequencer.Call(caller))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":       caller,
		"amount":        amount,
		"amount_tokens": models.AmountDecimal(amount),
	})
}

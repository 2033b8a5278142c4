package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"opinion-market/internal/services"
)

// writeError maps typed engine errors onto HTTP statuses: validation 400,
// resource 402, state-conflict 409, rate-limit 429. Anything untyped is a 500.
func writeError(c *gin.Context, err error) {
	var marketErr *services.MarketError
	if !errors.As(err, &marketErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch marketErr.Kind {
	case services.KindValidation:
		status = http.StatusBadRequest
	case services.KindResource:
		status = http.StatusPaymentRequired
	case services.KindStateConflict:
		status = http.StatusConflict
	case services.KindRateLimit:
		status = http.StatusTooManyRequests
	}

	c.JSON(status, gin.H{
		"error": marketErr.Code,
		"kind":  marketErr.Kind,
		"message": marketErr.Message,
	})
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func parsePagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

package services

import (
	"math"

	"opinion-market/internal/config"
)

// PriceEngine computes the price the next submitter must pay. It is pure
// math over smallest-unit integer amounts; percentages are basis points.
// Division rounds up so rounding never favors the submitter.
type PriceEngine struct {
	minPrice                  int64
	standardIncreaseBps       int64
	competitiveIncreaseBps    int64
	competitiveMinIncreaseBps int64
	maxStepIncreaseBps        int64
}

// NewPriceEngine creates a price engine from validated market parameters.
func NewPriceEngine(cfg config.MarketConfig) *PriceEngine {
	return &PriceEngine{
		minPrice:                  cfg.MinPrice,
		standardIncreaseBps:       cfg.StandardIncreaseBps,
		competitiveIncreaseBps:    cfg.CompetitiveIncreaseBps,
		competitiveMinIncreaseBps: cfg.CompetitiveMinIncreaseBps,
		maxStepIncreaseBps:        cfg.MaxStepIncreaseBps,
	}
}

// maxSupportedPrice guards the bps multiplication against int64 overflow.
const maxSupportedPrice = math.MaxInt64 / 20001

// NextPriceAfter returns the price a future submitter must pay, given the
// price just paid and whether at least two distinct addresses have ever
// owned the answer. The result never decreases and never exceeds the
// configured per-step ceiling.
func (pe *PriceEngine) NextPriceAfter(lastPrice int64, competitive bool) int64 {
	if lastPrice < pe.minPrice {
		lastPrice = pe.minPrice
	}
	if lastPrice >= maxSupportedPrice {
		return lastPrice
	}

	incBps := pe.standardIncreaseBps
	if competitive {
		incBps = pe.competitiveIncreaseBps
		if incBps < pe.competitiveMinIncreaseBps {
			incBps = pe.competitiveMinIncreaseBps
		}
	}
	if incBps > pe.maxStepIncreaseBps {
		incBps = pe.maxStepIncreaseBps
	}

	next := lastPrice + ceilDiv(lastPrice*incBps, 10000)

	// Per-step ceiling; rounding up above may not push past it, but the
	// ceiling is what the anti-runaway property is stated against.
	ceiling := lastPrice + lastPrice*pe.maxStepIncreaseBps/10000
	if next > ceiling {
		next = ceiling
	}
	if next <= lastPrice {
		next = lastPrice + 1
	}
	return next
}

// ceilDiv divides rounding toward positive infinity. Both arguments must be
// non-negative.
func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"opinion-market/internal/config"
	"opinion-market/internal/models"
)

// RateGuard is the admission control run before any answer submission is
// accepted: a per-caller per-block trade cap, a per-opinion per-block
// cooldown, and the rapid-retrade penalty applied to the fee split.
type RateGuard struct {
	maxTradesPerBlock int
	mevWindow         int64
	mevMaxPenaltyBps  int64
}

func NewRateGuard(cfg config.MarketConfig) *RateGuard {
	return &RateGuard{
		maxTradesPerBlock: cfg.MaxTradesPerBlock,
		mevWindow:         cfg.MEVWindow,
		mevMaxPenaltyBps:  cfg.MEVMaxPenaltyBps,
	}
}

// Admit records the trade attempt inside the submission transaction and
// fails it when a limit is hit. Counter increments roll back with the
// transaction, so rejected submissions leave no trace.
func (rg *RateGuard) Admit(tx *gorm.DB, caller string, opinionID uint, block int64) error {
	var counter models.TradeCounter
	err := tx.Where("address = ?", caller).First(&counter).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		counter = models.TradeCounter{Address: caller, BlockNumber: block, Count: 1}
		if err := tx.Create(&counter).Error; err != nil {
			return fmt.Errorf("failed to create trade counter: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to load trade counter: %w", err)
	default:
		if counter.BlockNumber != block {
			counter.BlockNumber = block
			counter.Count = 1
		} else {
			counter.Count++
			if counter.Count > rg.maxTradesPerBlock {
				return ErrMaxTradesPerBlock
			}
		}
		if err := tx.Save(&counter).Error; err != nil {
			return fmt.Errorf("failed to update trade counter: %w", err)
		}
	}

	var mark models.OpinionTradeMark
	err = tx.Where("address = ? AND opinion_id = ?", caller, opinionID).First(&mark).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		mark = models.OpinionTradeMark{Address: caller, OpinionID: opinionID, BlockNumber: block}
		if err := tx.Create(&mark).Error; err != nil {
			return fmt.Errorf("failed to create trade mark: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to load trade mark: %w", err)
	default:
		if mark.BlockNumber == block {
			return ErrOneTradePerBlock
		}
		mark.BlockNumber = block
		if err := tx.Save(&mark).Error; err != nil {
			return fmt.Errorf("failed to update trade mark: %w", err)
		}
	}

	return nil
}

// PenaltyBps returns the fee-split penalty for retrading an opinion shortly
// after its last trade: the maximum penalty right at the last trade,
// decaying linearly to zero at the window edge. Zero outside the window and
// for never-traded opinions.
func (rg *RateGuard) PenaltyBps(lastTradeAt, now int64) int64 {
	if lastTradeAt <= 0 {
		return 0
	}
	elapsed := now - lastTradeAt
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= rg.mevWindow {
		return 0
	}
	return rg.mevMaxPenaltyBps * (rg.mevWindow - elapsed) / rg.mevWindow
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"opinion-market/internal/config"
	"opinion-market/internal/ledger"
	"opinion-market/internal/models"
)

// FeeSplit is the three-way division of one payment. The shares always sum
// exactly to the price that was split.
type FeeSplit struct {
	Platform      int64
	Creator       int64
	PreviousOwner int64
}

// Total returns the sum of the three shares.
func (s FeeSplit) Total() int64 {
	return s.Platform + s.Creator + s.PreviousOwner
}

// FeeLedger computes fee splits and tracks per-address claimable balances.
// Platform shares go straight to the treasury; creator and previous-owner
// shares accumulate until withdrawn.
type FeeLedger struct {
	db             *gorm.DB
	logger         *zap.Logger
	tokens         ledger.TokenLedger
	serializer     *Serializer
	platformFeeBps int64
	creatorFeeBps  int64
	treasury       string
}

func NewFeeLedger(db *gorm.DB, logger *zap.Logger, tokens ledger.TokenLedger, serializer *Serializer, cfg config.MarketConfig) *FeeLedger {
	return &FeeLedger{
		db:             db,
		logger:         logger,
		tokens:         tokens,
		serializer:     serializer,
		platformFeeBps: cfg.PlatformFeeBps,
		creatorFeeBps:  cfg.CreatorFeeBps,
		treasury:       cfg.TreasuryAddress,
	}
}

// SplitPayment divides a price into platform, creator and previous-owner
// shares. The integer remainder after the platform and creator cuts goes to
// the previous owner, so the shares always sum exactly to price.
func (fl *FeeLedger) SplitPayment(price int64) FeeSplit {
	platform := price * fl.platformFeeBps / 10000
	creator := price * fl.creatorFeeBps / 10000
	return FeeSplit{
		Platform:      platform,
		Creator:       creator,
		PreviousOwner: price - platform - creator,
	}
}

// ApplyPenalty moves a slice of the previous-owner share to the platform.
// It transforms a computed split; the platform's base percentage is never
// recomputed. penaltyBps is applied to the previous-owner share.
func (fl *FeeLedger) ApplyPenalty(split FeeSplit, penaltyBps int64) FeeSplit {
	if penaltyBps <= 0 {
		return split
	}
	shift := split.PreviousOwner * penaltyBps / 10000
	split.Platform += shift
	split.PreviousOwner -= shift
	return split
}

// CreditSplit accrues the creator and previous-owner shares inside the given
// transaction. When creator and previous owner are the same address the two
// shares collapse into a single credit. The platform share is not credited
// here; it is paid out to the treasury after the transaction commits.
func (fl *FeeLedger) CreditSplit(tx *gorm.DB, creator, previousOwner string, split FeeSplit) error {
	if creator == previousOwner {
		return fl.credit(tx, creator, split.Creator+split.PreviousOwner)
	}
	if err := fl.credit(tx, creator, split.Creator); err != nil {
		return err
	}
	return fl.credit(tx, previousOwner, split.PreviousOwner)
}

func (fl *FeeLedger) credit(tx *gorm.DB, address string, amount int64) error {
	if amount == 0 {
		return nil
	}
	var balance models.FeeBalance
	err := tx.Where("address = ?", address).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		balance = models.FeeBalance{Address: address, Amount: amount}
		if err := tx.Create(&balance).Error; err != nil {
			return fmt.Errorf("failed to create fee balance for %s: %w", address, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load fee balance for %s: %w", address, err)
	}
	balance.Amount += amount
	if err := tx.Save(&balance).Error; err != nil {
		return fmt.Errorf("failed to update fee balance for %s: %w", address, err)
	}
	return nil
}

// PayPlatform sends the platform share to the treasury. Called after the
// state transaction for the payment has committed.
func (fl *FeeLedger) PayPlatform(ctx context.Context, amount int64) {
	if amount == 0 {
		return
	}
	if err := fl.tokens.TransferOut(ctx, fl.treasury, amount); err != nil {
		fl.logger.Error("treasury transfer failed",
			zap.Int64("amount", amount),
			zap.Error(err))
	}
}

// GetBalance returns the accumulated claimable balance for an address.
func (fl *FeeLedger) GetBalance(ctx context.Context, address string) (*models.FeeBalance, error) {
	var balance models.FeeBalance
	err := fl.db.WithContext(ctx).Where("address = ?", address).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.FeeBalance{Address: address, Amount: 0}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load fee balance for %s: %w", address, err)
	}
	return &balance, nil
}

// Withdraw zeroes the payee's accumulated balance and issues one external
// transfer for the full amount. State is committed before the transfer goes
// out; if the transfer then fails the balance is restored.
func (fl *FeeLedger) Withdraw(ctx context.Context, call CallContext) (int64, error) {
	fl.serializer.Lock()
	defer fl.serializer.Unlock()

	if fl.serializer.pausedLocked() {
		return 0, ErrPaused
	}

	var amount int64
	err := fl.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var balance models.FeeBalance
		err := tx.Where("address = ?", call.Caller).First(&balance).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && balance.Amount == 0) {
			return ErrNothingToWithdraw
		}
		if err != nil {
			return fmt.Errorf("failed to load fee balance: %w", err)
		}

		amount = balance.Amount
		balance.Amount = 0
		if err := tx.Save(&balance).Error; err != nil {
			return fmt.Errorf("failed to zero fee balance: %w", err)
		}

		return tx.Create(&models.ActivityEvent{
			ID:     uuid.New(),
			Type:   models.EventFeesWithdrawn,
			Actor:  call.Caller,
			Amount: amount,
		}).Error
	})
	if err != nil {
		return 0, err
	}

	if err := fl.tokens.TransferOut(ctx, call.Caller, amount); err != nil {
		fl.logger.Error("fee withdrawal transfer failed, restoring balance",
			zap.String("payee", call.Caller),
			zap.Int64("amount", amount),
			zap.Error(err))
		if restoreErr := fl.credit(fl.db.WithContext(ctx), call.Caller, amount); restoreErr != nil {
			fl.logger.Error("failed to restore fee balance", zap.Error(restoreErr))
		}
		return 0, fmt.Errorf("fee withdrawal transfer failed: %w", err)
	}

	fl.logger.Info("fees withdrawn",
		zap.String("payee", call.Caller),
		zap.Int64("amount", amount),
		zap.Time("at", time.Now()))

	return amount, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"opinion-market/internal/config"
	"opinion-market/internal/ledger"
	"opinion-market/internal/models"
)

// PoolService owns pools and contributions. A pool crowdfunds one proposed
// answer; when funding reaches the target captured at creation it executes
// through the registry's force-update path. Expiry is lazy: it is realized
// the next time the pool is touched.
type PoolService struct {
	db         *gorm.DB
	logger     *zap.Logger
	cfg        config.MarketConfig
	opinions   *OpinionService
	fees       *FeeLedger
	tokens     ledger.TokenLedger
	serializer *Serializer
}

func NewPoolService(
	db *gorm.DB,
	logger *zap.Logger,
	cfg config.MarketConfig,
	opinions *OpinionService,
	fees *FeeLedger,
	tokens ledger.TokenLedger,
	serializer *Serializer,
) *PoolService {
	return &PoolService{
		db:         db,
		logger:     logger,
		cfg:        cfg,
		opinions:   opinions,
		fees:       fees,
		tokens:     tokens,
		serializer: serializer,
	}
}

// CreatePool opens a pool against an active opinion. The funding target is
// the opinion's next price at this moment; the creator's initial
// contribution is recorded as the first contribution entry.
func (s *PoolService) CreatePool(ctx context.Context, call CallContext, req *models.CreatePoolRequest) (*models.Pool, error) {
	s.serializer.Lock()
	defer s.serializer.Unlock()

	if s.serializer.pausedLocked() {
		return nil, ErrPaused
	}

	opinion, err := s.opinions.loadOpinion(ctx, req.OpinionID)
	if err != nil {
		return nil, err
	}
	if !opinion.IsActive {
		return nil, ErrOpinionNotActive
	}

	answer := strings.TrimSpace(req.ProposedAnswer)
	if answer == "" {
		return nil, ErrEmptyString
	}
	if len(answer) > s.cfg.AnswerMaxLen {
		return nil, ErrInvalidAnswerLength
	}
	if answer == opinion.CurrentAnswer {
		return nil, ErrPoolSameAnswer
	}
	if req.Deadline <= call.Timestamp {
		return nil, ErrPoolDeadlineInvalid
	}
	if req.InitialContribution <= 0 {
		return nil, ErrInvalidAmount
	}

	target := opinion.NextPrice
	contribution := req.InitialContribution
	if contribution > target {
		contribution = target
	}

	if err := s.transferIn(ctx, call.Caller, contribution+s.cfg.PoolCreationFee); err != nil {
		return nil, err
	}

	pool := &models.Pool{
		OpinionID:         req.OpinionID,
		Name:              req.Name,
		ProposedAnswer:    answer,
		Description:       req.Description,
		IpfsHash:          req.IpfsHash,
		Creator:           call.Caller,
		Beneficiary:       req.Beneficiary,
		TargetAmount:      target,
		ContributedAmount: contribution,
		Deadline:          req.Deadline,
		Status:            models.PoolStatusActive,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(pool).Error; err != nil {
			return fmt.Errorf("failed to create pool: %w", err)
		}
		if pool.Beneficiary == "" {
			pool.Beneficiary = fmt.Sprintf("pool:%d", pool.ID)
			if err := tx.Save(pool).Error; err != nil {
				return fmt.Errorf("failed to set pool beneficiary: %w", err)
			}
		}
		entry := models.PoolContribution{
			PoolID:      pool.ID,
			Contributor: call.Caller,
			Amount:      contribution,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to record initial contribution: %w", err)
		}
		return emitEvent(tx, models.ActivityEvent{
			Type:      models.EventPoolCreated,
			Actor:     call.Caller,
			OpinionID: opinionRef(pool.OpinionID),
			PoolID:    poolRef(pool.ID),
			Amount:    contribution,
		})
	})
	if err != nil {
		s.refund(ctx, call.Caller, contribution+s.cfg.PoolCreationFee)
		return nil, err
	}

	s.fees.PayPlatform(ctx, s.cfg.PoolCreationFee)

	s.logger.Info("pool created",
		zap.Uint("pool_id", pool.ID),
		zap.Uint("opinion_id", pool.OpinionID),
		zap.Int64("target", target),
		zap.Int64("initial_contribution", contribution))

	if pool.ContributedAmount >= pool.TargetAmount && !s.cfg.PoolManualExecution {
		s.executeFunded(ctx, call, pool)
	}

	return pool, nil
}

// Contribute adds funds to an active pool. Only the amount still needed to
// reach the target is pulled from the caller. Reaching the target triggers
// execution unless the platform is configured for manual execution; an
// execution failure does not undo the contribution.
func (s *PoolService) Contribute(ctx context.Context, call CallContext, poolID uint, amount int64) (*models.Pool, error) {
	s.serializer.Lock()
	defer s.serializer.Unlock()

	if s.serializer.pausedLocked() {
		return nil, ErrPaused
	}

	pool, err := s.loadPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if pool.Status != models.PoolStatusActive {
		return nil, ErrPoolNotActive
	}
	if call.Timestamp >= pool.Deadline {
		if err := s.expire(ctx, call, pool); err != nil {
			return nil, err
		}
		return nil, ErrPoolNotActive
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	remaining := pool.RemainingAmount()
	if remaining == 0 {
		return nil, ErrPoolAlreadyFunded
	}
	if amount > remaining {
		amount = remaining
	}

	if err := s.transferIn(ctx, call.Caller, amount); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pool.ContributedAmount += amount
		if err := tx.Save(pool).Error; err != nil {
			return fmt.Errorf("failed to update pool funding: %w", err)
		}

		var entry models.PoolContribution
		err := tx.Where("pool_id = ? AND contributor = ?", pool.ID, call.Caller).First(&entry).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			entry = models.PoolContribution{PoolID: pool.ID, Contributor: call.Caller, Amount: amount}
			if err := tx.Create(&entry).Error; err != nil {
				return fmt.Errorf("failed to create contribution: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to load contribution: %w", err)
		default:
			entry.Amount += amount
			if err := tx.Save(&entry).Error; err != nil {
				return fmt.Errorf("failed to update contribution: %w", err)
			}
		}

		return emitEvent(tx, models.ActivityEvent{
			Type:      models.EventPoolContribution,
			Actor:     call.Caller,
			OpinionID: opinionRef(pool.OpinionID),
			PoolID:    poolRef(pool.ID),
			Amount:    amount,
		})
	})
	if err != nil {
		s.refund(ctx, call.Caller, amount)
		return nil, err
	}

	s.logger.Info("pool contribution",
		zap.Uint("pool_id", pool.ID),
		zap.String("contributor", call.Caller),
		zap.Int64("amount", amount),
		zap.Int64("funded", pool.ContributedAmount),
		zap.Int64("target", pool.TargetAmount))

	if pool.ContributedAmount >= pool.TargetAmount && !s.cfg.PoolManualExecution {
		s.executeFunded(ctx, call, pool)
	}

	return pool, nil
}

// Execute settles a fully funded pool: the pooled payment is fee-split, the
// opinion is force-updated to the proposed answer with the pool beneficiary
// as owner, and the pool becomes Executed. A failed execution leaves the
// pool Active for manual retry; it is never retried automatically.
func (s *PoolService) Execute(ctx context.Context, call CallContext, poolID uint) (*models.Pool, error) {
	s.serializer.Lock()
	defer s.serializer.Unlock()

	if s.serializer.pausedLocked() {
		return nil, ErrPaused
	}

	pool, err := s.loadPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if err := s.executeLocked(ctx, call, pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// executeFunded runs execution after a contribution pushed the pool to its
// target. The contribution already committed, so a failure here only logs
// and records the failure signal; the pool stays Active for manual retry.
func (s *PoolService) executeFunded(ctx context.Context, call CallContext, pool *models.Pool) {
	if err := s.executeLocked(ctx, call, pool); err != nil {
		s.logger.Error("pool execution failed",
			zap.Uint("pool_id", pool.ID),
			zap.Error(err))
	}
}

func (s *PoolService) executeLocked(ctx context.Context, call CallContext, pool *models.Pool) error {
	if pool.Status != models.PoolStatusActive {
		return ErrPoolNotActive
	}
	if pool.ContributedAmount < pool.TargetAmount {
		if call.Timestamp >= pool.Deadline {
			if err := s.expire(ctx, call, pool); err != nil {
				return err
			}
			return ErrPoolNotActive
		}
		return ErrPoolInsufficientFunds
	}

	price := pool.ContributedAmount
	var split FeeSplit
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		opinion, previousOwner, err := s.opinions.forceUpdate(tx, call, pool.OpinionID, pool.ProposedAnswer, pool.Description, pool.Beneficiary, price)
		if err != nil {
			return err
		}

		// The pooled funds are the payment: split them the same way a
		// direct submission's payment is split, without any penalty.
		split = s.fees.SplitPayment(price)
		if err := s.fees.CreditSplit(tx, opinion.Creator, previousOwner, split); err != nil {
			return err
		}

		now := time.Now()
		pool.Status = models.PoolStatusExecuted
		pool.ExecutedAt = &now
		if err := tx.Save(pool).Error; err != nil {
			return fmt.Errorf("failed to mark pool executed: %w", err)
		}
		return emitEvent(tx, models.ActivityEvent{
			Type:      models.EventPoolExecuted,
			Actor:     call.Caller,
			OpinionID: opinionRef(pool.OpinionID),
			PoolID:    poolRef(pool.ID),
			Amount:    price,
		})
	})
	if err != nil {
		s.recordExecutionFailure(ctx, call, pool, err)
		return err
	}

	s.fees.PayPlatform(ctx, split.Platform)

	s.logger.Info("pool executed",
		zap.Uint("pool_id", pool.ID),
		zap.Uint("opinion_id", pool.OpinionID),
		zap.String("new_owner", pool.Beneficiary),
		zap.Int64("price", price))
	return nil
}

// WithdrawFromExpiredPool refunds the caller's full contribution from a pool
// that passed its deadline without reaching target. Each contributor
// withdraws individually, and only once.
func (s *PoolService) WithdrawFromExpiredPool(ctx context.Context, call CallContext, poolID uint) (int64, error) {
	s.serializer.Lock()
	defer s.serializer.Unlock()

	if s.serializer.pausedLocked() {
		return 0, ErrPaused
	}

	pool, err := s.loadPool(ctx, poolID)
	if err != nil {
		return 0, err
	}
	if pool.Status == models.PoolStatusActive &&
		call.Timestamp >= pool.Deadline &&
		pool.ContributedAmount < pool.TargetAmount {
		if err := s.expire(ctx, call, pool); err != nil {
			return 0, err
		}
	}
	if pool.Status != models.PoolStatusExpired {
		return 0, ErrPoolNotExpired
	}

	var refund int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.PoolContribution
		err := tx.Where("pool_id = ? AND contributor = ?", pool.ID, call.Caller).First(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && entry.Amount == 0) {
			return ErrPoolNoContribution
		}
		if err != nil {
			return fmt.Errorf("failed to load contribution: %w", err)
		}

		refund = entry.Amount
		entry.Amount = 0
		if err := tx.Save(&entry).Error; err != nil {
			return fmt.Errorf("failed to zero contribution: %w", err)
		}

		pool.ContributedAmount -= refund
		if err := tx.Save(pool).Error; err != nil {
			return fmt.Errorf("failed to update pool funding: %w", err)
		}

		return emitEvent(tx, models.ActivityEvent{
			Type:      models.EventPoolRefund,
			Actor:     call.Caller,
			OpinionID: opinionRef(pool.OpinionID),
			PoolID:    poolRef(pool.ID),
			Amount:    refund,
		})
	})
	if err != nil {
		return 0, err
	}

	if err := s.tokens.TransferOut(ctx, call.Caller, refund); err != nil {
		s.logger.Error("pool refund transfer failed, restoring contribution",
			zap.Uint("pool_id", pool.ID),
			zap.String("contributor", call.Caller),
			zap.Error(err))
		s.restoreContribution(ctx, pool, call.Caller, refund)
		return 0, fmt.Errorf("pool refund transfer failed: %w", err)
	}

	s.logger.Info("pool refund",
		zap.Uint("pool_id", pool.ID),
		zap.String("contributor", call.Caller),
		zap.Int64("amount", refund))
	return refund, nil
}

// GetPool retrieves one pool.
func (s *PoolService) GetPool(ctx context.Context, poolID uint) (*models.Pool, error) {
	return s.loadPool(ctx, poolID)
}

// ListPools retrieves pools, optionally filtered by opinion and status.
func (s *PoolService) ListPools(ctx context.Context, opinionID uint, status models.PoolStatus, limit, offset int) ([]models.Pool, error) {
	q := s.db.WithContext(ctx).Model(&models.Pool{})
	if opinionID != 0 {
		q = q.Where("opinion_id = ?", opinionID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var pools []models.Pool
	if err := q.Order("id DESC").Limit(limit).Offset(offset).Find(&pools).Error; err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}
	return pools, nil
}

// ListContributions returns all contribution entries of a pool.
func (s *PoolService) ListContributions(ctx context.Context, poolID uint) ([]models.PoolContribution, error) {
	if _, err := s.loadPool(ctx, poolID); err != nil {
		return nil, err
	}
	var entries []models.PoolContribution
	err := s.db.WithContext(ctx).
		Where("pool_id = ?", poolID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	return entries, nil
}

// expire realizes the one-way Active -> Expired transition. The transition
// persists even when the observing call then fails.
func (s *PoolService) expire(ctx context.Context, call CallContext, pool *models.Pool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pool.Status = models.PoolStatusExpired
		if err := tx.Save(pool).Error; err != nil {
			return fmt.Errorf("failed to expire pool: %w", err)
		}
		return emitEvent(tx, models.ActivityEvent{
			Type:      models.EventPoolExpired,
			Actor:     call.Caller,
			OpinionID: opinionRef(pool.OpinionID),
			PoolID:    poolRef(pool.ID),
		})
	})
}

func (s *PoolService) recordExecutionFailure(ctx context.Context, call CallContext, pool *models.Pool, cause error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return emitEvent(tx, models.ActivityEvent{
			Type:      models.EventPoolExecutionFailed,
			Actor:     call.Caller,
			OpinionID: opinionRef(pool.OpinionID),
			PoolID:    poolRef(pool.ID),
			Amount:    pool.ContributedAmount,
			Detail:    cause.Error(),
		})
	})
	if err != nil {
		s.logger.Error("failed to record pool execution failure", zap.Error(err))
	}
}

func (s *PoolService) restoreContribution(ctx context.Context, pool *models.Pool, contributor string, amount int64) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.PoolContribution
		if err := tx.Where("pool_id = ? AND contributor = ?", pool.ID, contributor).First(&entry).Error; err != nil {
			return err
		}
		entry.Amount += amount
		if err := tx.Save(&entry).Error; err != nil {
			return err
		}
		pool.ContributedAmount += amount
		return tx.Save(pool).Error
	})
	if err != nil {
		s.logger.Error("failed to restore contribution", zap.Error(err))
	}
}

func (s *PoolService) loadPool(ctx context.Context, poolID uint) (*models.Pool, error) {
	var pool models.Pool
	err := s.db.WithContext(ctx).First(&pool, poolID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPoolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pool: %w", err)
	}
	return &pool, nil
}

func (s *PoolService) transferIn(ctx context.Context, from string, amount int64) error {
	err := s.tokens.TransferIn(ctx, from, amount)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrInsufficientAllowance):
		return ErrInsufficientAllowance
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return ErrInsufficientBalance
	default:
		return fmt.Errorf("transfer in failed: %w", err)
	}
}

func (s *PoolService) refund(ctx context.Context, to string, amount int64) {
	if amount == 0 {
		return
	}
	if err := s.tokens.TransferOut(ctx, to, amount); err != nil {
		s.logger.Error("refund transfer failed",
			zap.String("to", to),
			zap.Int64("amount", amount),
			zap.Error(err))
	}
}

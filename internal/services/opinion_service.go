package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"opinion-market/internal/config"
	"opinion-market/internal/ledger"
	"opinion-market/internal/models"
)

// OpinionService owns opinions and their answer history and orchestrates
// the price engine, fee ledger and rate guard on every submission. Every
// state-changing call runs in one transaction with the serializer held, and
// the single outbound transfer it performs is issued only after commit.
type OpinionService struct {
	db         *gorm.DB
	logger     *zap.Logger
	cfg        config.MarketConfig
	prices     *PriceEngine
	fees       *FeeLedger
	guard      *RateGuard
	tokens     ledger.TokenLedger
	serializer *Serializer
}

func NewOpinionService(
	db *gorm.DB,
	logger *zap.Logger,
	cfg config.MarketConfig,
	prices *PriceEngine,
	fees *FeeLedger,
	guard *RateGuard,
	tokens ledger.TokenLedger,
	serializer *Serializer,
) *OpinionService {
	return &OpinionService{
		db:         db,
		logger:     logger,
		cfg:        cfg,
		prices:     prices,
		fees:       fees,
		guard:      guard,
		tokens:     tokens,
		serializer: serializer,
	}
}

// CreateOpinion validates and creates a new opinion. The caller pays the
// fixed creation fee and becomes both creator and first answer owner.
func (s *OpinionService) CreateOpinion(ctx context.Context, call CallContext, req *models.CreateOpinionRequest) (*models.Opinion, error) {
	s.serializer.Lock()
	defer s.serializer.Unlock()

	if s.serializer.pausedLocked() {
		return nil, ErrPaused
	}
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	if err := s.transferIn(ctx, call.Caller, s.cfg.OpinionCreationFee); err != nil {
		return nil, err
	}

	opinion := &models.Opinion{
		Question:           strings.TrimSpace(req.Question),
		CurrentAnswer:      strings.TrimSpace(req.Answer),
		CurrentDescription: req.Description,
		Link:               req.Link,
		IpfsHash:           req.IpfsHash,
		Categories:         strings.Join(req.Categories, ","),
		Creator:            call.Caller,
		CurrentOwner:       call.Caller,
		LastPrice:          req.InitialPrice,
		NextPrice:          req.InitialPrice,
		IsActive:           true,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(opinion).Error; err != nil {
			return fmt.Errorf("failed to create opinion: %w", err)
		}
		if err := s.appendHistory(tx, opinion, call, opinion.CurrentOwner, req.InitialPrice, models.AnswerSourceCreate); err != nil {
			return err
		}
		return emitEvent(tx, models.ActivityEvent{
			Type:      models.EventOpinionCreated,
			Actor:     call.Caller,
			OpinionID: opinionRef(opinion.ID),
			Amount:    s.cfg.OpinionCreationFee,
		})
	})
	if err != nil {
		s.refund(ctx, call.Caller, s.cfg.OpinionCreationFee)
		return nil, err
	}

	s.fees.PayPlatform(ctx, s.cfg.OpinionCreationFee)

	s.logger.Info("opinion created",
		zap.Uint("opinion_id", opinion.ID),
		zap.String("creator", call.Caller),
		zap.Int64("initial_price", req.InitialPrice))

	return opinion, nil
}

// SubmitAnswer accepts a competing answer: the caller pays the opinion's
// next price, the payment is fee-split (with a possible rapid-retrade
// penalty), and ownership, pricing and history move forward atomically.
func (s *OpinionService) SubmitAnswer(ctx context.Context, call CallContext, opinionID uint, req *models.SubmitAnswerRequest) (*models.Opinion, error) {
	s.serializer.Lock()
	defer s.serializer.Unlock()

	if s.serializer.pausedLocked() {
		return nil, ErrPaused
	}

	opinion, err := s.loadOpinion(ctx, opinionID)
	if err != nil {
		return nil, err
	}
	if !opinion.IsActive {
		return nil, ErrOpinionNotActive
	}
	if opinion.CurrentOwner == call.Caller {
		return nil, ErrSameOwner
	}
	if err := s.validateAnswer(req); err != nil {
		return nil, err
	}

	price := opinion.NextPrice
	penaltyBps := s.guard.PenaltyBps(opinion.LastTradeAt, call.Timestamp)

	if err := s.transferIn(ctx, call.Caller, price); err != nil {
		return nil, err
	}

	var split FeeSplit
	previousOwner := opinion.CurrentOwner
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.guard.Admit(tx, call.Caller, opinionID, call.Block); err != nil {
			return err
		}

		split = s.fees.SplitPayment(price)
		split = s.fees.ApplyPenalty(split, penaltyBps)
		if err := s.fees.CreditSplit(tx, opinion.Creator, previousOwner, split); err != nil {
			return err
		}

		opinion.LastPrice = price
		opinion.NextPrice = s.prices.NextPriceAfter(price, opinion.Competitive)
		opinion.CurrentOwner = call.Caller
		opinion.CurrentAnswer = strings.TrimSpace(req.Answer)
		opinion.CurrentDescription = req.Description
		opinion.Link = req.Link
		opinion.IpfsHash = req.IpfsHash
		opinion.TotalVolume += price
		opinion.LastTradeAt = call.Timestamp
		// The caller and the previous owner are necessarily distinct, so
		// the opinion is contested from here on.
		opinion.Competitive = true
		if err := tx.Save(opinion).Error; err != nil {
			return fmt.Errorf("failed to update opinion: %w", err)
		}

		if err := s.appendHistory(tx, opinion, call, call.Caller, price, models.AnswerSourceTrade); err != nil {
			return err
		}
		return emitEvent(tx, models.ActivityEvent{
			Type:      models.EventAnswerSubmitted,
			Actor:     call.Caller,
			OpinionID: opinionRef(opinion.ID),
			Amount:    price,
		})
	})
	if err != nil {
		s.refund(ctx, call.Caller, price)
		return nil, err
	}

	s.fees.PayPlatform(ctx, split.Platform)

	s.logger.Info("answer submitted",
		zap.Uint("opinion_id", opinion.ID),
		zap.String("owner", call.Caller),
		zap.Int64("price", price),
		zap.Int64("next_price", opinion.NextPrice),
		zap.Int64("penalty_bps", penaltyBps))

	return opinion, nil
}

// forceUpdate is the pool execution path: it bypasses the rate guard and the
// normal payment flow (the pool collected and split its own funds) and
// rewrites price, owner and answer directly. It runs inside the caller's
// transaction with the serializer already held, and returns the updated
// opinion along with the owner it displaced.
func (s *OpinionService) forceUpdate(tx *gorm.DB, call CallContext, opinionID uint, answer, description, newOwner string, price int64) (*models.Opinion, string, error) {
	var opinion models.Opinion
	err := tx.First(&opinion, opinionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", ErrOpinionNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load opinion: %w", err)
	}
	if !opinion.IsActive {
		return nil, "", ErrOpinionNotActive
	}

	previousOwner := opinion.CurrentOwner
	opinion.LastPrice = price
	opinion.NextPrice = s.prices.NextPriceAfter(price, opinion.Competitive)
	opinion.CurrentOwner = newOwner
	opinion.CurrentAnswer = answer
	opinion.CurrentDescription = description
	opinion.TotalVolume += price
	opinion.LastTradeAt = call.Timestamp
	opinion.Competitive = true
	if err := tx.Save(&opinion).Error; err != nil {
		return nil, "", fmt.Errorf("failed to force-update opinion: %w", err)
	}

	if err := s.appendHistory(tx, &opinion, call, newOwner, price, models.AnswerSourcePool); err != nil {
		return nil, "", err
	}
	return &opinion, previousOwner, nil
}

// Deactivate soft-deletes an opinion: submissions fail while reads keep
// working. Moderator only; the role check sits in the facade.
func (s *OpinionService) Deactivate(ctx context.Context, call CallContext, opinionID uint) error {
	return s.setActive(ctx, call, opinionID, false)
}

// Reactivate reverses a deactivation. Moderator only.
func (s *OpinionService) Reactivate(ctx context.Context, call CallContext, opinionID uint) error {
	return s.setActive(ctx, call, opinionID, true)
}

func (s *OpinionService) setActive(ctx context.Context, call CallContext, opinionID uint, active bool) error {
	s.serializer.Lock()
	defer s.serializer.Unlock()

	opinion, err := s.loadOpinion(ctx, opinionID)
	if err != nil {
		return err
	}
	if opinion.IsActive == active {
		return nil
	}

	evtType := models.EventOpinionDeactivated
	if active {
		evtType = models.EventOpinionReactivated
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		opinion.IsActive = active
		if err := tx.Save(opinion).Error; err != nil {
			return fmt.Errorf("failed to update opinion state: %w", err)
		}
		return emitEvent(tx, models.ActivityEvent{
			Type:      evtType,
			Actor:     call.Caller,
			OpinionID: opinionRef(opinion.ID),
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("opinion state changed",
		zap.Uint("opinion_id", opinionID),
		zap.Bool("active", active),
		zap.String("moderator", call.Caller))
	return nil
}

// GetOpinion retrieves one opinion. Reads work for inactive opinions too.
func (s *OpinionService) GetOpinion(ctx context.Context, opinionID uint) (*models.Opinion, error) {
	return s.loadOpinion(ctx, opinionID)
}

// ListOpinions retrieves opinions, newest first.
func (s *OpinionService) ListOpinions(ctx context.Context, activeOnly bool, limit, offset int) ([]models.Opinion, error) {
	q := s.db.WithContext(ctx).Model(&models.Opinion{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var opinions []models.Opinion
	if err := q.Order("id DESC").Limit(limit).Offset(offset).Find(&opinions).Error; err != nil {
		return nil, fmt.Errorf("failed to list opinions: %w", err)
	}
	return opinions, nil
}

// GetHistory returns the full answer history of an opinion in submission
// order, creation entry first.
func (s *OpinionService) GetHistory(ctx context.Context, opinionID uint) ([]models.AnswerHistory, error) {
	if _, err := s.loadOpinion(ctx, opinionID); err != nil {
		return nil, err
	}
	var entries []models.AnswerHistory
	err := s.db.WithContext(ctx).
		Where("opinion_id = ?", opinionID).
		Order("position ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load answer history: %w", err)
	}
	return entries, nil
}

func (s *OpinionService) loadOpinion(ctx context.Context, opinionID uint) (*models.Opinion, error) {
	var opinion models.Opinion
	err := s.db.WithContext(ctx).First(&opinion, opinionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOpinionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load opinion: %w", err)
	}
	return &opinion, nil
}

func (s *OpinionService) appendHistory(tx *gorm.DB, opinion *models.Opinion, call CallContext, owner string, price int64, source models.AnswerSource) error {
	var count int64
	if err := tx.Model(&models.AnswerHistory{}).Where("opinion_id = ?", opinion.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count history: %w", err)
	}
	entry := models.AnswerHistory{
		ID:          uuid.New(),
		OpinionID:   opinion.ID,
		Position:    int(count) + 1,
		Answer:      opinion.CurrentAnswer,
		Description: opinion.CurrentDescription,
		Owner:       owner,
		Price:       price,
		Source:      source,
		Block:       call.Block,
		LogicalTime: call.Timestamp,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (s *OpinionService) validateCreate(req *models.CreateOpinionRequest) error {
	question := strings.TrimSpace(req.Question)
	answer := strings.TrimSpace(req.Answer)
	if question == "" || answer == "" {
		return ErrEmptyString
	}
	if len(question) > s.cfg.QuestionMaxLen {
		return ErrInvalidQuestionLength
	}
	if len(answer) > s.cfg.AnswerMaxLen {
		return ErrInvalidAnswerLength
	}
	if len(req.Description) > s.cfg.DescriptionMaxLen {
		return ErrInvalidDescriptionLength
	}
	if len(req.Link) > s.cfg.LinkMaxLen {
		return ErrInvalidLinkLength
	}
	if len(req.Categories) < 1 || len(req.Categories) > 3 {
		return ErrInvalidCategoryCount
	}
	seen := make(map[string]bool, len(req.Categories))
	for _, category := range req.Categories {
		if !models.IsAllowedCategory(category) {
			return ErrUnknownCategory
		}
		if seen[category] {
			return ErrDuplicateCategory
		}
		seen[category] = true
	}
	if req.InitialPrice < s.cfg.MinInitialPrice || req.InitialPrice > s.cfg.MaxInitialPrice {
		return ErrInitialPriceOutOfRange
	}
	return nil
}

func (s *OpinionService) validateAnswer(req *models.SubmitAnswerRequest) error {
	answer := strings.TrimSpace(req.Answer)
	if answer == "" {
		return ErrEmptyString
	}
	if len(answer) > s.cfg.AnswerMaxLen {
		return ErrInvalidAnswerLength
	}
	if len(req.Description) > s.cfg.DescriptionMaxLen {
		return ErrInvalidDescriptionLength
	}
	if len(req.Link) > s.cfg.LinkMaxLen {
		return ErrInvalidLinkLength
	}
	return nil
}

func (s *OpinionService) transferIn(ctx context.Context, from string, amount int64) error {
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

// refund returns a payment after the state transaction failed. Best effort;
// a failed refund is logged for manual follow-up.
func (s *OpinionService) refund(ctx context.Context, to string, amount int64) {
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

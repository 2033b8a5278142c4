package services

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"opinion-market/internal/config"
	"opinion-market/internal/ledger"
	"opinion-market/internal/models"
)

// setupTestDB opens a per-test in-memory database. The name keys the shared
// cache so every test gets its own isolated database.
func setupTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	err = db.AutoMigrate(
		&models.Opinion{},
		&models.AnswerHistory{},
		&models.Pool{},
		&models.PoolContribution{},
		&models.FeeBalance{},
		&models.TradeCounter{},
		&models.OpinionTradeMark{},
		&models.ActivityEvent{},
	)
	if err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	return db
}

func testMarketConfig() config.MarketConfig {
	return config.MarketConfig{
		TreasuryAddress:           "treasury",
		MinPrice:                  1000,
		MinInitialPrice:           1000,
		MaxInitialPrice:           1_000_000,
		OpinionCreationFee:        500,
		PoolCreationFee:           200,
		StandardIncreaseBps:       5000,
		CompetitiveIncreaseBps:    1200,
		CompetitiveMinIncreaseBps: 800,
		MaxStepIncreaseBps:        20000,
		PlatformFeeBps:            200,
		CreatorFeeBps:             300,
		MaxTradesPerBlock:         3,
		MEVWindow:                 30,
		MEVMaxPenaltyBps:          2000,
		QuestionMaxLen:            52,
		AnswerMaxLen:              52,
		DescriptionMaxLen:         120,
		LinkMaxLen:                256,
		BlockIntervalSeconds:      12,
	}
}

type testEngine struct {
	db         *gorm.DB
	tokens     *ledger.MemoryLedger
	serializer *Serializer
	fees       *FeeLedger
	opinions   *OpinionService
	pools      *PoolService
}

func newTestEngine(t *testing.T, cfg config.MarketConfig) *testEngine {
	db := setupTestDB(t)
	tokens := ledger.NewMemoryLedger()
	serializer := NewSerializer()
	zlog := zap.NewNop()
	fees := NewFeeLedger(db, zlog, tokens, serializer, cfg)
	opinions := NewOpinionService(db, zlog, cfg, NewPriceEngine(cfg), fees, NewRateGuard(cfg), tokens, serializer)
	pools := NewPoolService(db, zlog, cfg, opinions, fees, tokens, serializer)
	return &testEngine{
		db:         db,
		tokens:     tokens,
		serializer: serializer,
		fees:       fees,
		opinions:   opinions,
		pools:      pools,
	}
}

// fund gives an address spendable, pre-approved units.
func (e *testEngine) fund(address string, amount int64) {
	e.tokens.Mint(address, amount)
	e.tokens.Approve(address, amount)
}

// createOpinion creates a funded opinion owned by the given address.
func (e *testEngine) createOpinion(t *testing.T, call CallContext, initialPrice int64) *models.Opinion {
	t.Helper()
	e.fund(call.Caller, 500)
	opinion, err := e.opinions.CreateOpinion(context.Background(), call, &models.CreateOpinionRequest{
		Question:     "Will it rain tomorrow?",
		Answer:       "Yes",
		InitialPrice: initialPrice,
		Categories:   []string{"science"},
	})
	if err != nil {
		t.Fatalf("CreateOpinion failed: %v", err)
	}
	return opinion
}

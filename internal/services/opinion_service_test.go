package services

import (
	"context"
	"errors"
	"testing"

	"opinion-market/internal/models"
)

func TestCreateOpinion(t *testing.T) {
	e := newTestEngine(t, testMarketConfig())
	ctx := context.Background()

	opinion := e.createOpinion(t, CallContext{Caller: "alice", Block: 1, Timestamp: 10}, 10000)

	if opinion.Creator != "alice" || opinion.CurrentOwner != "alice" {
		t.Errorf("creator/owner not set: %+v", opinion)
	}
	if opinion.NextPrice != 10000 {
		t.Errorf("expected next price 10000, got %d", opinion.NextPrice)
	}
	if !opinion.IsActive || opinion.Competitive {
		t.Errorf("unexpected flags: active=%v competitive=%v", opinion.IsActive, opinion.Competitive)
	}

	// Creation is the first history entry.
	history, err := e.opinions.GetHistory(ctx, opinion.ID)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	if history[0].Position != 1 || history[0].Source != models.AnswerSourceCreate {
		t.Errorf("unexpected creation entry: %+v", history[0])
	}

	// The creation fee went straight to the treasury.
	if got, _ := e.tokens.BalanceOf(ctx, "treasury"); got != 500 {
		t.Errorf("expected treasury balance 500, got %d", got)
	}
}

func TestCreateOpinionValidation(t *testing.T) {
	e := newTestEngine(t, testMarketConfig())
	ctx := context.Background()
	call := CallContext{Caller: "alice", Block: 1, Timestamp: 10}
	e.fund("alice", 10000)

	base := func() *models.CreateOpinionRequest {
		return &models.CreateOpinionRequest{
			Question:     "Will it rain tomorrow?",
			Answer:       "Yes",
			InitialPrice: 10000,
			Categories:   []string{"science"},
		}
	}

	cases := []struct {
		name    string
		mutate  func(*models.CreateOpinionRequest)
		wantErr error
	}{
		{"empty question", func(r *models.CreateOpinionRequest) { r.Question = "  " }, ErrEmptyString},
		{"empty answer", func(r *models.CreateOpinionRequest) { r.Answer = "" }, ErrEmptyString},
		{"question too long", func(r *models.CreateOpinionRequest) {
			r.Question = "this question is deliberately padded far beyond the configured limit"
		}, ErrInvalidQuestionLength},
		{"no categories", func(r *models.CreateOpinionRequest) { r.Categories = nil }, ErrInvalidCategoryCount},
		{"too many categories", func(r *models.CreateOpinionRequest) {
			r.Categories = []string{"science", "crypto", "sports", "finance"}
		}, ErrInvalidCategoryCount},
		{"unknown category", func(r *models.CreateOpinionRequest) { r.Categories = []string{"astrology"} }, ErrUnknownCategory},
		{"duplicate category", func(r *models.CreateOpinionRequest) { r.Categories = []string{"science", "science"} }, ErrDuplicateCategory},
		{"price too low", func(r *models.CreateOpinionRequest) { r.InitialPrice = 999 }, ErrInitialPriceOutOfRange},
		{"price too high", func(r *models.CreateOpinionRequest) { r.InitialPrice = 1_000_001 }, ErrInitialPriceOutOfRange},
	}
	for _, tc := range cases {
		req := base()
		tc.mutate(req)
		if _, err := e.opinions.CreateOpinion(ctx, call, req); !errors.Is(err, tc.wantErr) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.wantErr, err)
		}
	}
}

func TestSubmitAnswer(t *testing.T) {
	e := newTestEngine(t, testMarketConfig())
	ctx := context.Background()

	opinion := e.createOpinion(t, CallContext{Caller: "alice", Block: 1, Timestamp: 10}, 10000)
	e.fund("bob", 10000)

	updated, err := e.opinions.SubmitAnswer(ctx, CallContext{Caller: "bob", Block: 2, Timestamp: 100}, opinion.ID, &models.SubmitAnswerRequest{
		Answer: "No",
	})
	if err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}

	if updated.CurrentOwner != "bob" || updated.CurrentAnswer != "No" {
		t.Errorf("ownership not transferred: %+v", updated)
	}
	if updated.LastPrice != 10000 {
		t.Errorf("expected last price 10000, got %d", updated.LastPrice)
	}
	// First trade is priced at the standard 50% step.
	if updated.NextPrice != 15000 {
		t.Errorf("expected next price 15000, got %d", updated.NextPrice)
	}
	if updated.TotalVolume != 10000 {
		t.Errorf("expected volume 10000, got %d", updated.TotalVolume)
	}
	if !updated.Competitive {
		t.Error("opinion not marked competitive after a trade")
	}

	// Creator and previous owner are both alice: one merged credit of 98%.
	balance, _ := e.fees.GetBalance(ctx, "alice")
	if balance.Amount != 9800 {
		t.Errorf("expected alice credit 9800, got %d", balance.Amount)
	}
	// Platform share plus the earlier creation fee.
	if got, _ := e.tokens.BalanceOf(ctx, "treasury"); got != 200+500 {
		t.Errorf("expected treasury balance 700, got %d", got)
	}

	history, _ := e.opinions.GetHistory(ctx, opinion.ID)
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[1].Position != 2 || history[1].Source != models.AnswerSourceTrade || history[1].Owner != "bob" {
		t.Errorf("unexpected trade entry: %+v", history[1])
	}
}

// Two trades back to back: 10000 -> 15000 standard, then the competitive
// step keeps the third price at least 8% above the second.
func TestSubmitAnswerPriceEscalation(t *testing.T) {
	e := newTestEngine(t, testMarketConfig())
	ctx := context.Background()

	opinion := e.createOpinion(t, CallContext{Caller: "alice", Block: 1, Timestamp: 10}, 10000)
	e.fund("bob", 10000)
	e.fund("carol", 15000)

	if _, err := e.opinions.SubmitAnswer(ctx, CallContext{Caller: "bob", Block: 2, Timestamp: 100}, opinion.ID, &models.SubmitAnswerRequest{Answer: "No"}); err != nil {
		t.Fatalf("bob's submission failed: %v", err)
	}
	updated, err := e.opinions.SubmitAnswer(ctx, CallContext{Caller: "carol", Block: 3, Timestamp: 200}, opinion.ID, &models.SubmitAnswerRequest{Answer: "Maybe"})
	if err != nil {
		t.Fatalf("carol's submission failed: %v", err)
	}

	if updated.LastPrice != 15000 {
		t.Errorf("expected carol to pay 15000, got %d", updated.LastPrice)
	}
	if updated.NextPrice != 16800 {
		t.Errorf("expected next price 16800, got %d", updated.NextPrice)
	}
	if updated.TotalVolume != 25000 {
		t.Errorf("expected volume 25000, got %d", updated.TotalVolume)
	}
}

func TestSubmitAnswerSameOwner(t *testing.T) {
	e := newTestEngine(t, testMarketConfig())

	opinion := e.createOpinion(t, CallContext{Caller: "alice", Block: 1, Timestamp: 10}, 10000)
	e.fund("alice", 10000)

	_, err := e.opinions.SubmitAnswer(context.Background(), CallContext{Caller: "alice", Block: 2, Timestamp: 100}, opinion.ID, &models.SubmitAnswerRequest{Answer: "Still yes"})
	if !errors.Is(err, ErrSameOwner) {
		t.Errorf("expected ErrSameOwner, got %v", err)
	}
}

func TestSubmitAnswerInactiveOpinion(t *testing.T) {
	e := newTestEngine(t, testMarketConfig())
	ctx := context.Background()

	opinion := e.createOpinion(t, CallContext{Caller: "alice", Block: 1, Timestamp: 10}, 10000)
	mod := CallContext{Caller: "moderator", Block: 2, Timestamp: 50}
	if err := e.opinions.Deactivate(ctx, mod, opinion.ID); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}

	e.fund("bob", 10000)
	call := CallContext{Caller: "bob", Block: 3, Timestamp: 100}
	if _, err := e.opinions.SubmitAnswer(ctx, call, opinion.ID, &models.SubmitAnswerRequest{Answer: "No"}); !errors.Is(err, ErrOpinionNotActive) {
		t.Errorf("expected ErrOpinionNotActive, got %v", err)
	}

	// Reads keep working while deactivated.
	if _, err := e.opinions.GetOpinion(ctx, opinion.ID); err != nil {
		t.Errorf("read of inactive opinion failed: %v", err)
	}

	if err := e.opinions.Reactivate(ctx, mod, opinion.ID); err != nil {
		t.Fatalf("Reactivate failed: %v", err)
	}
	if _, err := e.opinions.SubmitAnswer(ctx, call, opinion.ID, &models.SubmitAnswerRequest{Answer: "No"}); err != nil {
		t.Errorf("submission after reactivation failed: %v", err)
	}
}

func TestSubmitAnswerInsufficientAllowance(t *testing.T) {
	e := newTestEngine(t, testMarketConfig())
	ctx := context.Background()

	opinion := e.createOpinion(t, CallContext{Caller: "alice", Block: 1, Timestamp: 10}, 10000)
	e.tokens.Mint("bob", 10000) // funded but nothing approved

	_, err := e.opinions.SubmitAnswer(ctx, CallContext{Caller: "bob", Block: 2, Timestamp: 100}, opinion.ID, &models.SubmitAnswerRequest{Answer: "No"})
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Errorf("expected ErrInsufficientAllowance, got %v", err)
	}

	// Nothing changed.
	reloaded, _ := e.opinions.GetOpinion(ctx, opinion.ID)
	if reloaded.CurrentOwner != "alice" || reloaded.TotalVolume != 0 {
		t.Errorf("state changed after rejected payment: %+v", reloaded)
	}
	history, _ := e.opinions.GetHistory(ctx, opinion.ID)
	if len(history) != 1 {
		t.Errorf("history grew after rejected payment: %d entries", len(history))
	}
}

func TestSubmitAnswerRateLimitRefunds(t *testing.T) {
	e := newTestEngine(t, testMarketConfig())
	ctx := context.Background()

	// Four opinions, all owned by alice; bob hits the per-block cap on
	// the fourth and gets his payment back.
	var opinions []*models.Opinion
	for i := 0; i < 4; i++ {
		opinions = append(opinions, e.createOpinion(t, CallContext{Caller: "alice", Block: 1, Timestamp: 10}, 10000))
	}
	e.fund("bob", 40000)

	call := CallContext{Caller: "bob", Block: 5, Timestamp: 100}
	for i := 0; i < 3; i++ {
		if _, err := e.opinions.SubmitAnswer(ctx, call, opinions[i].ID, &models.SubmitAnswerRequest{Answer: "No"}); err != nil {
			t.Fatalf("submission %d failed: %v", i, err)
		}
	}
	_, err := e.opinions.SubmitAnswer(ctx, call, opinions[3].ID, &models.SubmitAnswerRequest{Answer: "No"})
	if !errors.Is(err, ErrMaxTradesPerBlock) {
		t.Fatalf("expected ErrMaxTradesPerBlock, got %v", err)
	}

	if got, _ := e.tokens.BalanceOf(ctx, "bob"); got != 10000 {
		t.Errorf("rejected payment not refunded: balance %d", got)
	}
	reloaded, _ := e.opinions.GetOpinion(ctx, opinions[3].ID)
	if reloaded.CurrentOwner != "alice" {
		t.Errorf("fourth opinion changed owner: %s", reloaded.CurrentOwner)
	}
}

func TestSubmitAnswerRapidRetradePenalty(t *testing.T) {
	e := newTestEngine(t, testMarketConfig())
	ctx := context.Background()

	opinion := e.createOpinion(t, CallContext{Caller: "alice", Block: 1, Timestamp: 10}, 10000)
	e.fund("bob", 10000)
	e.fund("carol", 15000)

	if _, err := e.opinions.SubmitAnswer(ctx, CallContext{Caller: "bob", Block: 2, Timestamp: 100}, opinion.ID, &models.SubmitAnswerRequest{Answer: "No"}); err != nil {
		t.Fatalf("bob's submission failed: %v", err)
	}
	// Carol retrades in the same logical second: the full penalty moves
	// a fifth of bob's share to the platform.
	if _, err := e.opinions.SubmitAnswer(ctx, CallContext{Caller: "carol", Block: 3, Timestamp: 100}, opinion.ID, &models.SubmitAnswerRequest{Answer: "Maybe"}); err != nil {
		t.Fatalf("carol's submission failed: %v", err)
	}

	// Split of 15000: platform 300, creator 450, owner 14250; penalty
	// shifts 2850 of bob's share to the platform.
	bob, _ := e.fees.GetBalance(ctx, "bob")
	if bob.Amount != 14250-2850 {
		t.Errorf("expected bob credit 11400, got %d", bob.Amount)
	}
}

func TestSubmitAnswerPaused(t *testing.T) {
	e := newTestEngine(t, testMarketConfig())

	opinion := e.createOpinion(t, CallContext{Caller: "alice", Block: 1, Timestamp: 10}, 10000)
	e.fund("bob", 10000)

	e.serializer.Pause()
	_, err := e.opinions.SubmitAnswer(context.Background(), CallContext{Caller: "bob", Block: 2, Timestamp: 100}, opinion.ID, &models.SubmitAnswerRequest{Answer: "No"})
	if !errors.Is(err, ErrPaused) {
		t.Errorf("expected ErrPaused, got %v", err)
	}

	e.serializer.Unpause()
	if _, err := e.opinions.SubmitAnswer(context.Background(), CallContext{Caller: "bob", Block: 2, Timestamp: 100}, opinion.ID, &models.SubmitAnswerRequest{Answer: "No"}); err != nil {
		t.Errorf("submission after unpause failed: %v", err)
	}
}

func TestSubmitAnswerNotFound(t *testing.T) {
	e := newTestEngine(t, testMarketConfig())

	_, err := e.opinions.SubmitAnswer(context.Background(), CallContext{Caller: "bob"}, 999, &models.SubmitAnswerRequest{Answer: "No"})
	if !errors.Is(err, ErrOpinionNotFound) {
		t.Errorf("expected ErrOpinionNotFound, got %v", err)
	}
}

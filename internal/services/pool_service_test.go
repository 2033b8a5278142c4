package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"opinion-market/internal/models"
)

func TestCreatePoolValidation(t *testing.T) {
	e := newTestEngine(t, testMarketConfig())
	ctx := context.Background()

	opinion := e.createOpinion(t, CallContext{Caller: "alice", Block: 1, Timestamp: 10}, 10000)
	e.fund("bob", 20000)
	call := CallContext{Caller: "bob", Block: 2, Timestamp: 100}

	cases := []struct {
		name    string
		req     *models.CreatePoolRequest
		wantErr error
	}{
		{"unknown opinion", &models.CreatePoolRequest{
			OpinionID: 999, ProposedAnswer: "No", Deadline: 200, InitialContribution: 1000,
		}, ErrOpinionNotFound},
		{"empty answer", &models.CreatePoolRequest{
			OpinionID: opinion.ID, ProposedAnswer: "  ", Deadline: 200, InitialContribution: 1000,
		}, ErrEmptyString},
		{"same answer", &models.CreatePoolRequest{
			OpinionID: opinion.ID, ProposedAnswer: "Yes", Deadline: 200, InitialContribution: 1000,
		}, ErrPoolSameAnswer},
		{"deadline in the past", &models.CreatePoolRequest{
			OpinionID: opinion.ID, ProposedAnswer: "No", Deadline: 100, InitialContribution: 1000,
		}, ErrPoolDeadlineInvalid},
		{"zero contribution", &models.CreatePoolRequest{
			OpinionID: opinion.ID, ProposedAnswer: "No", Deadline: 200, InitialContribution: 0,
		}, ErrInvalidAmount},
	}
	for _, tc := range cases {
		if _, err := e.pools.CreatePool(ctx, call, tc.req); !errors.Is(err, tc.wantErr) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.wantErr, err)
		}
	}
}

func TestCreatePool(t *testing.T) {
	e := newTestEngine(t, testMarketConfig())
	ctx := context.Background()

	opinion := e.createOpinion(t, CallContext{Caller: "alice", Block: 1, Timestamp: 10}, 10000)
	e.fund("bob", 20000)

	pool, err := e.pools.CreatePool(ctx, CallContext{Caller: "bob", Block: 2, Timestamp: 100}, &models.CreatePoolRequest{
		OpinionID:           opinion.ID,
		ProposedAnswer:      "No",
		Deadline:            1000,
		InitialContribution: 4000,
	})
	if err != nil {
		t.Fatalf("CreatePool failed: %v", err)
	}

	// Target is the opinion's next price at creation time.
	if pool.TargetAmount != 10000 {
		t.Errorf("expected target 10000, got %d", pool.TargetAmount)
	}
	if pool.ContributedAmount != 4000 {
		t.Errorf("expected contributed 4000, got %d", pool.ContributedAmount)
	}
	if pool.Status != models.PoolStatusActive {
		t.Errorf("expected ACTIVE, got %s", pool.Status)
	}
	if pool.Beneficiary != fmt.Sprintf("pool:%d", pool.ID) {
		t.Errorf("default beneficiary not set: %q", pool.Beneficiary)
	}

	contributions, err := e.pools.ListContributions(ctx, pool.ID)
	if err != nil {
		t.Fatalf("ListContributions failed: %v", err)
	}
	if len(contributions) != 1 || contributions[0].Contributor != "bob" || contributions[0].Amount != 4000 {
		t.Errorf("unexpected contributions: %+v", contributions)
	}
}

func TestCreatePoolClampsToTarget(t *testing.T) {
	cfg := testMarketConfig()
	cfg.PoolManualExecution = true
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	opinion := e.createOpinion(t, CallContext{Caller: "alice", Block: 1, Timestamp: 10}, 10000)
	e.fund("bob", 20000)

	pool, err := e.pools.CreatePool(ctx, CallContext{Caller: "bob", Block: 2, Timestamp: 100}, &models.CreatePoolRequest{
		OpinionID:           opinion.ID,
		ProposedAnswer:      "No",
		Deadline:            1000,
		InitialContribution: 15000, // more than the target
	})
	if err != nil {
		t.Fatalf("CreatePool failed: %v", err)
	}

	if pool.ContributedAmount != 10000 {
		t.Errorf("contribution not clamped: %d", pool.ContributedAmount)
	}
	// Only the clamped amount plus the creation fee was pulled.
	if got, _ := e.tokens.BalanceOf(ctx, "bob"); got != 20000-10000-200 {
		t.Errorf("expected bob balance 9800, got %d", got)
	}
}

func TestPoolFundingExecutes(t *testing.T) {
	e := newTestEngine(t, testMarketConfig())
	ctx := context.Background()

	opinion := e.createOpinion(t, CallContext{Caller: "alice", Block: 1, Timestamp: 10}, 10000)
	e.fund("bob", 20000)
	e.fund("carol", 20000)

	pool, err := e.pools.CreatePool(ctx, CallContext{Caller: "bob", Block: 2, Timestamp: 100}, &models.CreatePoolRequest{
		OpinionID:           opinion.ID,
		ProposedAnswer:      "No",
		Deadline:            1000,
		InitialContribution: 4000,
	})
	if err != nil {
		t.Fatalf("CreatePool failed: %v", err)
	}

	// Carol offers more than the 6000 still needed; the overshoot stays
	// in her wallet and the funded pool executes.
	funded, err := e.pools.Contribute(ctx, CallContext{Caller: "carol", Block: 3, Timestamp: 200}, pool.ID, 9000)
	if err != nil {
		t.Fatalf("Contribute failed: %v", err)
	}
	if funded.ContributedAmount != 10000 {
		t.Errorf("expected contributed 10000, got %d", funded.ContributedAmount)
	}
	if funded.Status != models.PoolStatusExecuted {
		t.Errorf("expected EXECUTED, got %s", funded.Status)
	}
	if funded.ExecutedAt == nil {
		t.Error("ExecutedAt not set")
	}
	if got, _ := e.tokens.BalanceOf(ctx, "carol"); got != 20000-6000 {
		t.Errorf("expected carol balance 14000, got %d", got)
	}

	// The opinion took the pooled answer at the pooled price.
	reloaded, _ := e.opinions.GetOpinion(ctx, opinion.ID)
	if reloaded.CurrentAnswer != "No" {
		t.Errorf("expected answer No, got %q", reloaded.CurrentAnswer)
	}
	if reloaded.CurrentOwner != funded.Beneficiary {
		t.Errorf("expected owner %q, got %q", funded.Beneficiary, reloaded.CurrentOwner)
	}
	if reloaded.LastPrice != 10000 || reloaded.NextPrice != 15000 {
		t.Errorf("unexpected pricing: last %d next %d", reloaded.LastPrice, reloaded.NextPrice)
	}
	if reloaded.TotalVolume != 10000 {
		t.Errorf("expected volume 10000, got %d", reloaded.TotalVolume)
	}

	history, _ := e.opinions.GetHistory(ctx, opinion.ID)
	if len(history) != 2 || history[1].Source != models.AnswerSourcePool {
		t.Errorf("pool execution not in history: %+v", history)
	}

	// The pooled payment was fee-split; creator and displaced owner are
	// both alice, so she holds the merged 98%.
	alice, _ := e.fees.GetBalance(ctx, "alice")
	if alice.Amount != 9800 {
		t.Errorf("expected alice credit 9800, got %d", alice.Amount)
	}

	// Contribution entries still sum to the pooled total.
	contributions, _ := e.pools.ListContributions(ctx, pool.ID)
	var sum int64
	for _, c := range contributions {
		sum += c.Amount
	}
	if sum != funded.ContributedAmount {
		t.Errorf("contributions sum %d, pool total %d", sum, funded.ContributedAmount)
	}
}

func TestContributeToFundedPool(t *testing.T) {
	cfg := testMarketConfig()
	cfg.PoolManualExecution = true
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	opinion := e.createOpinion(t, CallContext{Caller: "alice", Block: 1, Timestamp: 10}, 10000)
	e.fund("bob", 20000)
	e.fund("carol", 20000)

	pool, err := e.pools.CreatePool(ctx, CallContext{Caller: "bob", Block: 2, Timestamp: 100}, &models.CreatePoolRequest{
		OpinionID:           opinion.ID,
		ProposedAnswer:      "No",
		Deadline:            1000,
		InitialContribution: 10000,
	})
	if err != nil {
		t.Fatalf("CreatePool failed: %v", err)
	}
	if pool.Status != models.PoolStatusActive {
		t.Fatalf("manual execution should leave the pool ACTIVE, got %s", pool.Status)
	}

	_, err = e.pools.Contribute(ctx, CallContext{Caller: "carol", Block: 3, Timestamp: 200}, pool.ID, 1000)
	if !errors.Is(err, ErrPoolAlreadyFunded) {
		t.Errorf("expected ErrPoolAlreadyFunded, got %v", err)
	}
}

func TestManualExecute(t *testing.T) {
	cfg := testMarketConfig()
	cfg.PoolManualExecution = true
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	opinion := e.createOpinion(t, CallContext{Caller: "alice", Block: 1, Timestamp: 10}, 10000)
	e.fund("bob", 20000)

	pool, err := e.pools.CreatePool(ctx, CallContext{Caller: "bob", Block: 2, Timestamp: 100}, &models.CreatePoolRequest{
		OpinionID:           opinion.ID,
		ProposedAnswer:      "No",
		Deadline:            1000,
		InitialContribution: 4000,
	})
	if err != nil {
		t.Fatalf("CreatePool failed: %v", err)
	}

	// Underfunded pools cannot be executed.
	if _, err := e.pools.Execute(ctx, CallContext{Caller: "bob", Block: 3, Timestamp: 200}, pool.ID); !errors.Is(err, ErrPoolInsufficientFunds) {
		t.Errorf("expected ErrPoolInsufficientFunds, got %v", err)
	}

	if _, err := e.pools.Contribute(ctx, CallContext{Caller: "bob", Block: 4, Timestamp: 300}, pool.ID, 6000); err != nil {
		t.Fatalf("Contribute failed: %v", err)
	}

	executed, err := e.pools.Execute(ctx, CallContext{Caller: "bob", Block: 5, Timestamp: 400}, pool.ID)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if executed.Status != models.PoolStatusExecuted {
		t.Errorf("expected EXECUTED, got %s", executed.Status)
	}

	// Executed is final.
	if _, err := e.pools.Execute(ctx, CallContext{Caller: "bob", Block: 6, Timestamp: 500}, pool.ID); !errors.Is(err, ErrPoolNotActive) {
		t.Errorf("expected ErrPoolNotActive, got %v", err)
	}
}

func TestPoolExpiryAndRefund(t *testing.T) {
	e := newTestEngine(t, testMarketConfig())
	ctx := context.Background()

	opinion := e.createOpinion(t, CallContext{Caller: "alice", Block: 1, Timestamp: 10}, 10000)
	e.fund("bob", 20000)
	e.fund("carol", 20000)

	pool, err := e.pools.CreatePool(ctx, CallContext{Caller: "bob", Block: 2, Timestamp: 100}, &models.CreatePoolRequest{
		OpinionID:           opinion.ID,
		ProposedAnswer:      "No",
		Deadline:            500,
		InitialContribution: 4000,
	})
	if err != nil {
		t.Fatalf("CreatePool failed: %v", err)
	}
	if _, err := e.pools.Contribute(ctx, CallContext{Caller: "carol", Block: 3, Timestamp: 200}, pool.ID, 2000); err != nil {
		t.Fatalf("Contribute failed: %v", err)
	}

	// Past the deadline a contribution realizes the expiry and bounces.
	_, err = e.pools.Contribute(ctx, CallContext{Caller: "carol", Block: 4, Timestamp: 600}, pool.ID, 1000)
	if !errors.Is(err, ErrPoolNotActive) {
		t.Fatalf("expected ErrPoolNotActive, got %v", err)
	}
	expired, _ := e.pools.GetPool(ctx, pool.ID)
	if expired.Status != models.PoolStatusExpired {
		t.Fatalf("expected EXPIRED, got %s", expired.Status)
	}

	// Each contributor gets back exactly what they put in.
	refund, err := e.pools.WithdrawFromExpiredPool(ctx, CallContext{Caller: "bob", Block: 5, Timestamp: 700}, pool.ID)
	if err != nil {
		t.Fatalf("bob's withdrawal failed: %v", err)
	}
	if refund != 4000 {
		t.Errorf("expected refund 4000, got %d", refund)
	}
	if got, _ := e.tokens.BalanceOf(ctx, "bob"); got != 20000-200 {
		t.Errorf("expected bob made whole minus the creation fee, got %d", got)
	}

	// Withdrawing twice yields nothing.
	if _, err := e.pools.WithdrawFromExpiredPool(ctx, CallContext{Caller: "bob", Block: 6, Timestamp: 800}, pool.ID); !errors.Is(err, ErrPoolNoContribution) {
		t.Errorf("expected ErrPoolNoContribution, got %v", err)
	}
	// Non-contributors have no claim.
	if _, err := e.pools.WithdrawFromExpiredPool(ctx, CallContext{Caller: "mallory", Block: 6, Timestamp: 800}, pool.ID); !errors.Is(err, ErrPoolNoContribution) {
		t.Errorf("expected ErrPoolNoContribution, got %v", err)
	}

	if refund, err := e.pools.WithdrawFromExpiredPool(ctx, CallContext{Caller: "carol", Block: 6, Timestamp: 800}, pool.ID); err != nil || refund != 2000 {
		t.Errorf("carol's withdrawal: refund %d, err %v", refund, err)
	}

	drained, _ := e.pools.GetPool(ctx, pool.ID)
	if drained.ContributedAmount != 0 {
		t.Errorf("pool not drained: %d", drained.ContributedAmount)
	}
}

func TestWithdrawFromActivePool(t *testing.T) {
	e := newTestEngine(t, testMarketConfig())
	ctx := context.Background()

	opinion := e.createOpinion(t, CallContext{Caller: "alice", Block: 1, Timestamp: 10}, 10000)
	e.fund("bob", 20000)

	pool, err := e.pools.CreatePool(ctx, CallContext{Caller: "bob", Block: 2, Timestamp: 100}, &models.CreatePoolRequest{
		OpinionID:           opinion.ID,
		ProposedAnswer:      "No",
		Deadline:            1000,
		InitialContribution: 4000,
	})
	if err != nil {
		t.Fatalf("CreatePool failed: %v", err)
	}

	if _, err := e.pools.WithdrawFromExpiredPool(ctx, CallContext{Caller: "bob", Block: 3, Timestamp: 200}, pool.ID); !errors.Is(err, ErrPoolNotExpired) {
		t.Errorf("expected ErrPoolNotExpired, got %v", err)
	}
}

func TestCreatePoolOnInactiveOpinion(t *testing.T) {
	e := newTestEngine(t, testMarketConfig())
	ctx := context.Background()

	opinion := e.createOpinion(t, CallContext{Caller: "alice", Block: 1, Timestamp: 10}, 10000)
	if err := e.opinions.Deactivate(ctx, CallContext{Caller: "moderator", Block: 2, Timestamp: 50}, opinion.ID); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}

	e.fund("bob", 20000)
	_, err := e.pools.CreatePool(ctx, CallContext{Caller: "bob", Block: 3, Timestamp: 100}, &models.CreatePoolRequest{
		OpinionID:           opinion.ID,
		ProposedAnswer:      "No",
		Deadline:            1000,
		InitialContribution: 4000,
	})
	if !errors.Is(err, ErrOpinionNotActive) {
		t.Errorf("expected ErrOpinionNotActive, got %v", err)
	}
}

// Execution failure must not undo a committed contribution: the opinion is
// deactivated between funding rounds, so the triggered execution fails and
// the pool stays ACTIVE with the contribution recorded.
func TestExecutionFailureKeepsContribution(t *testing.T) {
	e := newTestEngine(t, testMarketConfig())
	ctx := context.Background()

	opinion := e.createOpinion(t, CallContext{Caller: "alice", Block: 1, Timestamp: 10}, 10000)
	e.fund("bob", 20000)
	e.fund("carol", 20000)

	pool, err := e.pools.CreatePool(ctx, CallContext{Caller: "bob", Block: 2, Timestamp: 100}, &models.CreatePoolRequest{
		OpinionID:           opinion.ID,
		ProposedAnswer:      "No",
		Deadline:            1000,
		InitialContribution: 4000,
	})
	if err != nil {
		t.Fatalf("CreatePool failed: %v", err)
	}

	if err := e.opinions.Deactivate(ctx, CallContext{Caller: "moderator", Block: 3, Timestamp: 150}, opinion.ID); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}

	// The contribution itself succeeds; only the triggered execution fails.
	funded, err := e.pools.Contribute(ctx, CallContext{Caller: "carol", Block: 4, Timestamp: 200}, pool.ID, 6000)
	if err != nil {
		t.Fatalf("Contribute failed: %v", err)
	}
	if funded.ContributedAmount != 10000 {
		t.Errorf("expected contributed 10000, got %d", funded.ContributedAmount)
	}

	reloaded, _ := e.pools.GetPool(ctx, pool.ID)
	if reloaded.Status != models.PoolStatusActive {
		t.Errorf("expected pool to stay ACTIVE, got %s", reloaded.Status)
	}

	// A failure signal was recorded.
	var count int64
	e.db.Model(&models.ActivityEvent{}).Where("type = ?", models.EventPoolExecutionFailed).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 execution-failure event, got %d", count)
	}

	// Reactivation allows a manual retry.
	if err := e.opinions.Reactivate(ctx, CallContext{Caller: "moderator", Block: 5, Timestamp: 300}, opinion.ID); err != nil {
		t.Fatalf("Reactivate failed: %v", err)
	}
	executed, err := e.pools.Execute(ctx, CallContext{Caller: "carol", Block: 6, Timestamp: 400}, pool.ID)
	if err != nil {
		t.Fatalf("retry Execute failed: %v", err)
	}
	if executed.Status != models.PoolStatusExecuted {
		t.Errorf("expected EXECUTED after retry, got %s", executed.Status)
	}
}

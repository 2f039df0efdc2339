package escrow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// rewardTask builds a done, unpaid task with a plain (non-escrow) reward
func rewardTask(id, assignee string, amount float64) *Task {
	now := time.Now()
	return &Task{
		ID:           id,
		OwnerID:      "owner",
		Title:        "Task " + id,
		Status:       TaskStatusDone,
		RewardToken:  "USDC",
		RewardAmount: amount,
		AssigneeID:   assignee,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestPlanFromTasksBlockingIssues(t *testing.T) {
	ledger := newFakeLedger(t)
	store := newFakeStore()
	store.putTask(rewardTask("task-1", "assignee", 100))
	store.putTask(rewardTask("task-2", "other", 50))
	noWallet := rewardTask("task-3", "ghost", 25) // no wallet on file
	store.putTask(noWallet)
	engine := NewEngine(store, ledger.client())
	ctx := context.Background()

	plan, err := engine.PlanFromTasks(ctx, []string{"task-1", "task-2", "task-3"})
	if err != nil {
		t.Fatalf("PlanFromTasks returned error: %v", err)
	}
	if len(plan.Targets) != 2 {
		t.Errorf("valid targets = %d, want 2", len(plan.Targets))
	}
	if len(plan.Issues) != 1 || plan.Issues[0].TaskID != "task-3" {
		t.Errorf("expected one blocking issue for task-3, got %+v", plan.Issues)
	}
	if plan.Ready() {
		t.Error("a plan with blocking issues must not be ready")
	}

	// execution is refused outright while any issue remains
	if _, err := engine.SettlePlan(ctx, ownerSession(), plan); err == nil {
		t.Error("SettlePlan must refuse plans with unresolved issues")
	}
	if ledger.sentCount() != 0 {
		t.Error("a refused plan must not touch the ledger")
	}
}

func TestPlanFromTasksRejectsMixedTokens(t *testing.T) {
	ledger := newFakeLedger(t)
	store := newFakeStore()
	store.putTask(rewardTask("task-1", "assignee", 100))
	usdt := rewardTask("task-2", "other", 50)
	usdt.RewardToken = "USDT"
	store.putTask(usdt)
	engine := NewEngine(store, ledger.client())

	var mixed *MixedTokenError
	if _, err := engine.PlanFromTasks(context.Background(), []string{"task-1", "task-2"}); !errors.As(err, &mixed) {
		t.Fatalf("expected MixedTokenError, got %v", err)
	}
}

func TestPlanFromTasksRejectsOversizedBatch(t *testing.T) {
	ledger := newFakeLedger(t)
	engine := NewEngine(newFakeStore(), ledger.client())

	ids := make([]string, 201)
	for i := range ids {
		ids[i] = fmt.Sprintf("task-%d", i)
	}
	var tooLarge *BatchTooLargeError
	if _, err := engine.PlanFromTasks(context.Background(), ids); !errors.As(err, &tooLarge) {
		t.Fatalf("expected BatchTooLargeError, got %v", err)
	}
}

func TestPlanFlagsPaidAndEscrowTasks(t *testing.T) {
	ledger := newFakeLedger(t)
	store := newFakeStore()
	paid := rewardTask("task-1", "assignee", 100)
	paid.Paid = true
	store.putTask(paid)
	escrowed := rewardTask("task-2", "other", 50)
	escrowed.EscrowEnabled = true
	escrowed.EscrowStatus = EscrowStatusLocked
	store.putTask(escrowed)
	engine := NewEngine(store, ledger.client())

	plan, err := engine.PlanFromTasks(context.Background(), []string{"task-1", "task-2"})
	if err != nil {
		t.Fatalf("PlanFromTasks returned error: %v", err)
	}
	if len(plan.Targets) != 0 || len(plan.Issues) != 2 {
		t.Errorf("paid and escrow-backed tasks must be flagged, got targets=%d issues=%d", len(plan.Targets), len(plan.Issues))
	}
}

func TestBatchSettlement(t *testing.T) {
	ledger := newFakeLedger(t)
	ledger.fund(ownerWallet, 1e15, 500e6)
	store := newFakeStore()
	store.putTask(rewardTask("task-1", "assignee", 100))
	store.putTask(rewardTask("task-2", "other", 50))
	engine := NewEngine(store, ledger.client())
	ctx := context.Background()

	plan, err := engine.PlanFromTasks(ctx, []string{"task-1", "task-2"})
	if err != nil {
		t.Fatalf("PlanFromTasks returned error: %v", err)
	}
	if !plan.Ready() {
		t.Fatalf("plan should be ready, issues: %+v", plan.Issues)
	}
	if plan.TotalUnits.String() != "150000000" {
		t.Errorf("total = %s units, want 150000000", plan.TotalUnits)
	}

	result, err := engine.SettlePlan(ctx, ownerSession(), plan)
	if err != nil {
		t.Fatalf("SettlePlan returned error: %v", err)
	}
	if result.ApprovalTx == "" {
		t.Error("zero standing allowance should force an approval first")
	}
	if result.BatchTx == "" {
		t.Error("batch settlement should record the batch transaction")
	}
	if result.Succeeded != 2 || result.Failed != 0 {
		t.Errorf("succeeded=%d failed=%d, want 2/0", result.Succeeded, result.Failed)
	}
	for _, target := range result.Targets {
		if target.State != TargetSuccess {
			t.Errorf("target %s state = %s, want success", target.Address, target.State)
		}
	}

	// every included task is marked paid
	for _, id := range []string{"task-1", "task-2"} {
		task, _ := store.GetTask(ctx, id)
		if !task.Paid {
			t.Errorf("task %s not marked paid after confirmed batch", id)
		}
	}
}

func TestBatchSkipsApprovalWhenAllowanceSuffices(t *testing.T) {
	ledger := newFakeLedger(t)
	ledger.fund(ownerWallet, 1e15, 500e6)
	store := newFakeStore()
	store.putTask(rewardTask("task-1", "assignee", 100))
	store.putTask(rewardTask("task-2", "other", 50))
	client := ledger.client()
	ledger.setAllowance(ownerWallet, client.Network().BatchContract, 500e6)
	engine := NewEngine(store, client)
	ctx := context.Background()

	plan, _ := engine.PlanFromTasks(ctx, []string{"task-1", "task-2"})
	result, err := engine.SettlePlan(ctx, ownerSession(), plan)
	if err != nil {
		t.Fatalf("SettlePlan returned error: %v", err)
	}
	if result.ApprovalTx != "" {
		t.Error("sufficient allowance must skip the redundant approval")
	}
	if ledger.sentCount() != 1 {
		t.Errorf("expected a single batch transaction, got %d", ledger.sentCount())
	}
}

func TestBatchIsAllOrNothing(t *testing.T) {
	ledger := newFakeLedger(t)
	ledger.fund(ownerWallet, 1e15, 500e6)
	ledger.revertSends = true
	store := newFakeStore()
	store.putTask(rewardTask("task-1", "assignee", 100))
	store.putTask(rewardTask("task-2", "other", 50))
	engine := NewEngine(store, ledger.client())
	ctx := context.Background()

	plan, _ := engine.PlanFromTasks(ctx, []string{"task-1", "task-2"})
	result, err := engine.SettlePlan(ctx, ownerSession(), plan)
	if err == nil {
		t.Fatal("a reverting batch call must surface an error")
	}
	if result.Succeeded != 0 {
		t.Errorf("reverted batch reported %d successes, want 0", result.Succeeded)
	}
	for _, target := range result.Targets {
		if target.State == TargetSuccess {
			t.Errorf("target %s marked success after a revert", target.Address)
		}
	}
	// no task may be marked paid
	for _, id := range []string{"task-1", "task-2"} {
		task, _ := store.GetTask(ctx, id)
		if task.Paid {
			t.Errorf("task %s marked paid after a reverted batch", id)
		}
	}
}

func TestBatchPreflightFailsLocally(t *testing.T) {
	ledger := newFakeLedger(t)
	ledger.fund(ownerWallet, 1e15, 10e6) // 10 USDC for a 150 USDC batch
	store := newFakeStore()
	store.putTask(rewardTask("task-1", "assignee", 100))
	store.putTask(rewardTask("task-2", "other", 50))
	engine := NewEngine(store, ledger.client())
	ctx := context.Background()

	plan, _ := engine.PlanFromTasks(ctx, []string{"task-1", "task-2"})
	var funds *InsufficientFundsError
	if _, err := engine.SettlePlan(ctx, ownerSession(), plan); !errors.As(err, &funds) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if ledger.sentCount() != 0 {
		t.Error("preflight failures must not touch the ledger")
	}
}

func TestSequentialHaltsOnError(t *testing.T) {
	ledger := newFakeLedger(t)
	ledger.fund(ownerWallet, 1e15, 500e6)
	store := newFakeStore()
	store.putTask(rewardTask("task-1", "assignee", 100))
	store.putTask(rewardTask("task-2", "other", 50))
	store.putTask(rewardTask("task-3", "assignee", 25))
	engine := NewEngine(store, ledger.client())
	ctx := context.Background()

	// first transfer confirms, then the wallet starts declining
	targets := []PayoutTarget{
		{TaskID: "task-1", Address: assigneeWallet, Amount: 100, Token: "USDC"},
		{TaskID: "task-2", Address: otherWallet, Amount: 50, Token: "USDC"},
		{TaskID: "task-3", Address: assigneeWallet, Amount: 25, Token: "USDC"},
	}

	settler := engine.Sequential()
	// the wallet signs the first transfer, then declines the rest
	ledger.rejectAfter = 1

	result, err := settler.Settle(ctx, ownerSession(), targets)
	if err == nil {
		t.Fatal("halted run must surface the failing target's error")
	}
	if result.Succeeded != 1 {
		t.Fatalf("succeeded = %d, want 1", result.Succeeded)
	}

	// the confirmed prefix stays confirmed, the queue after the failure is untouched
	if result.Targets[0].State != TargetSuccess {
		t.Errorf("target 0 state = %s, want success", result.Targets[0].State)
	}
	if result.Targets[1].State != TargetError {
		t.Errorf("target 1 state = %s, want error", result.Targets[1].State)
	}
	if result.Targets[2].State != TargetIdle {
		t.Errorf("target 2 state = %s, want idle (never attempted)", result.Targets[2].State)
	}

	task1, _ := store.GetTask(ctx, "task-1")
	if !task1.Paid {
		t.Error("task-1 should stay paid, confirmed transfers are never rolled back")
	}
	task2, _ := store.GetTask(ctx, "task-2")
	if task2.Paid {
		t.Error("task-2 must not be paid after its transfer failed")
	}
}

func TestSequentialValidatesTargets(t *testing.T) {
	ledger := newFakeLedger(t)
	ledger.fund(ownerWallet, 1e15, 500e6)
	engine := NewEngine(newFakeStore(), ledger.client())
	ctx := context.Background()

	tests := []struct {
		name    string
		targets []PayoutTarget
		check   func(error) bool
	}{
		{
			"bad address",
			[]PayoutTarget{{Address: "not-an-address", Amount: 10, Token: "USDC"}},
			func(err error) bool { var v *ValidationError; return errors.As(err, &v) },
		},
		{
			"zero amount",
			[]PayoutTarget{{Address: assigneeWallet, Amount: 0, Token: "USDC"}},
			func(err error) bool { var v *ValidationError; return errors.As(err, &v) },
		},
		{
			"mixed tokens",
			[]PayoutTarget{
				{Address: assigneeWallet, Amount: 10, Token: "USDC"},
				{Address: otherWallet, Amount: 10, Token: "USDT"},
			},
			func(err error) bool { var m *MixedTokenError; return errors.As(err, &m) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Sequential().Settle(ctx, ownerSession(), tt.targets)
			if err == nil || !tt.check(err) {
				t.Errorf("unexpected error %v", err)
			}
			if ledger.sentCount() != 0 {
				t.Error("validation failures must stay local")
			}
		})
	}
}

func TestMarkPaidRetries(t *testing.T) {
	ledger := newFakeLedger(t)
	ledger.fund(ownerWallet, 1e15, 500e6)
	store := newFakeStore()
	store.putTask(rewardTask("task-1", "assignee", 100))
	store.putTask(rewardTask("task-2", "other", 50))
	store.failTaskUpdates = 2 // first marking pass partially fails
	engine := NewEngine(store, ledger.client())
	ctx := context.Background()

	plan, _ := engine.PlanFromTasks(ctx, []string{"task-1", "task-2"})
	if _, err := engine.SettlePlan(ctx, ownerSession(), plan); err != nil {
		t.Fatalf("SettlePlan returned error: %v", err)
	}

	// ledger truth won: both tasks end up marked despite transient store failures
	for _, id := range []string{"task-1", "task-2"} {
		task, _ := store.GetTask(ctx, id)
		if !task.Paid {
			t.Errorf("task %s not marked paid after retries", id)
		}
	}
}

func TestMixedTokenErrorMessageListsTokens(t *testing.T) {
	err := &MixedTokenError{Tokens: []string{"USDC", "USDT"}}
	if !strings.Contains(err.Error(), "USDC") || !strings.Contains(err.Error(), "USDT") {
		t.Errorf("error should name the conflicting tokens: %s", err)
	}
}

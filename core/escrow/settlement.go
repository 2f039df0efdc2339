package escrow

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/Malik434/TaskWiser-V2-sub000/chain"
)

// PlanIssue is a blocking problem found while assembling a payout plan.
// Settlement refuses to run while any issue remains; paying "the valid
// subset" silently is not allowed.
type PlanIssue struct {
	TaskID  string `json:"task_id"`
	Problem string `json:"problem"`
}

// PayoutPlan is a validated set of payout targets sharing one token
type PayoutPlan struct {
	Token      chain.TokenConfig `json:"token"`
	Targets    []PayoutTarget    `json:"targets"`
	Issues     []PlanIssue       `json:"issues,omitempty"`
	TotalUnits *big.Int          `json:"-"`
}

// Ready reports whether the plan can execute
func (p *PayoutPlan) Ready() bool {
	return len(p.Issues) == 0 && len(p.Targets) > 0
}

// SettlementResult is the outcome of one settlement run. Per-target states
// let the caller show partial progress; confirmed transfers are never
// rolled back.
type SettlementResult struct {
	Targets    []PayoutTarget `json:"targets"`
	ApprovalTx string         `json:"approval_tx,omitempty"`
	BatchTx    string         `json:"batch_tx,omitempty"`
	Submitted  bool           `json:"submitted"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
}

// Settler is the one settlement contract both payout strategies implement
type Settler interface {
	Settle(ctx context.Context, session Session, targets []PayoutTarget) (*SettlementResult, error)
}

// Engine executes payouts against the ledger. It carries no per-run state:
// targets live for the duration of one call and receipts are the durable
// record.
type Engine struct {
	store  Store
	client *chain.Client
	batch  *chain.BatchContract
}

// NewEngine creates a settlement engine over the given ledger client
func NewEngine(store Store, client *chain.Client) *Engine {
	return &Engine{
		store:  store,
		client: client,
		batch:  chain.NewBatchContract(client),
	}
}

// Sequential returns the one-transfer-per-recipient strategy
func (e *Engine) Sequential() Settler { return &sequentialSettler{engine: e} }

// Batch returns the single-atomic-call strategy
func (e *Engine) Batch() Settler { return &batchSettler{engine: e} }

// PlanFromTasks assembles a payout plan for a set of done, unpaid tasks.
// Per-task problems (missing wallet, no reward) become blocking issues;
// mixed tokens and oversized batches reject the whole plan.
func (e *Engine) PlanFromTasks(ctx context.Context, taskIDs []string) (*PayoutPlan, error) {
	if len(taskIDs) == 0 {
		return nil, NewValidationError("tasks", "no tasks selected for settlement")
	}
	if len(taskIDs) > chain.MaxBatchRecipients {
		return nil, &BatchTooLargeError{Size: len(taskIDs), Max: chain.MaxBatchRecipients}
	}

	plan := &PayoutPlan{TotalUnits: new(big.Int)}
	tokens := map[string]bool{}

	for _, id := range taskIDs {
		task, err := e.store.GetTask(ctx, id)
		if err != nil {
			plan.Issues = append(plan.Issues, PlanIssue{TaskID: id, Problem: fmt.Sprintf("task lookup failed: %v", err)})
			continue
		}
		if task.Paid {
			plan.Issues = append(plan.Issues, PlanIssue{TaskID: id, Problem: "task is already paid"})
			continue
		}
		if task.RewardToken == "" || task.RewardAmount <= 0 {
			plan.Issues = append(plan.Issues, PlanIssue{TaskID: id, Problem: "task has no positive reward"})
			continue
		}
		if task.EscrowEnabled {
			plan.Issues = append(plan.Issues, PlanIssue{TaskID: id, Problem: "escrow-backed tasks settle through escrow release, not direct payout"})
			continue
		}
		if task.AssigneeID == "" {
			plan.Issues = append(plan.Issues, PlanIssue{TaskID: id, Problem: "task has no assignee"})
			continue
		}

		tokenCfg := e.client.Network().Token(task.RewardToken)
		if tokenCfg == nil {
			plan.Issues = append(plan.Issues, PlanIssue{TaskID: id, Problem: fmt.Sprintf("unsupported reward token %q", task.RewardToken)})
			continue
		}
		tokens[tokenCfg.Symbol] = true

		addr, err := e.store.GetUserWalletAddress(ctx, task.AssigneeID)
		if err != nil || !chain.IsAddress(addr) {
			plan.Issues = append(plan.Issues, PlanIssue{TaskID: id, Problem: "assignee has no valid wallet address"})
			continue
		}

		units, err := chain.ParseAmount(task.RewardAmount, tokenCfg.Decimals)
		if err != nil || units.Sign() <= 0 {
			plan.Issues = append(plan.Issues, PlanIssue{TaskID: id, Problem: fmt.Sprintf("invalid reward amount %v", task.RewardAmount)})
			continue
		}

		plan.Targets = append(plan.Targets, PayoutTarget{
			TaskID:  task.ID,
			Address: addr,
			Amount:  task.RewardAmount,
			Token:   tokenCfg.Symbol,
			State:   TargetIdle,
		})
		plan.TotalUnits.Add(plan.TotalUnits, units)
	}

	if len(tokens) > 1 {
		symbols := make([]string, 0, len(tokens))
		for s := range tokens {
			symbols = append(symbols, s)
		}
		sort.Strings(symbols)
		return nil, &MixedTokenError{Tokens: symbols}
	}
	if len(plan.Targets) > 0 {
		plan.Token = *e.client.Network().Token(plan.Targets[0].Token)
	}
	return plan, nil
}

// validateTargets runs the shared target checks and resolves the single
// token the run settles in
func (e *Engine) validateTargets(targets []PayoutTarget) (*chain.TokenConfig, *big.Int, error) {
	if len(targets) == 0 {
		return nil, nil, NewValidationError("targets", "no payout targets")
	}
	if len(targets) > chain.MaxBatchRecipients {
		return nil, nil, &BatchTooLargeError{Size: len(targets), Max: chain.MaxBatchRecipients}
	}

	tokens := map[string]bool{}
	for _, t := range targets {
		tokens[t.Token] = true
	}
	if len(tokens) > 1 {
		symbols := make([]string, 0, len(tokens))
		for s := range tokens {
			symbols = append(symbols, s)
		}
		sort.Strings(symbols)
		return nil, nil, &MixedTokenError{Tokens: symbols}
	}

	tokenCfg := e.client.Network().Token(targets[0].Token)
	if tokenCfg == nil {
		return nil, nil, NewValidationError("token", fmt.Sprintf("unsupported token %q", targets[0].Token))
	}

	total := new(big.Int)
	for i, t := range targets {
		if !chain.IsAddress(t.Address) {
			return nil, nil, NewValidationError("address", fmt.Sprintf("target %d has invalid address %q", i, t.Address))
		}
		units, err := chain.ParseAmount(t.Amount, tokenCfg.Decimals)
		if err != nil || units.Sign() <= 0 {
			return nil, nil, NewValidationError("amount", fmt.Sprintf("target %d has invalid amount %v", i, t.Amount))
		}
		total.Add(total, units)
	}
	return tokenCfg, total, nil
}

// preflight verifies network, token balance and native gas budget before
// any transaction is submitted
func (e *Engine) preflight(ctx context.Context, session Session, tokenCfg *chain.TokenConfig, total, gasLimit *big.Int) error {
	want := e.client.Network().ChainID
	if !strings.EqualFold(session.ChainID, want) {
		return &NetworkMismatchError{Have: session.ChainID, Want: want}
	}
	nodeChain, err := e.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("ledger unreachable: %w", err)
	}
	if !strings.EqualFold(nodeChain, want) {
		return &NetworkMismatchError{Have: nodeChain, Want: want}
	}

	token := chain.NewERC20(e.client, *tokenCfg)
	balance, err := token.BalanceOf(ctx, session.Account)
	if err != nil {
		return fmt.Errorf("failed to query token balance: %w", err)
	}
	if balance.Cmp(total) < 0 {
		return &InsufficientFundsError{
			Token:     tokenCfg.Symbol,
			Required:  chain.FormatUnits(total, tokenCfg.Decimals),
			Available: chain.FormatUnits(balance, tokenCfg.Decimals),
		}
	}

	price, err := e.client.GasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to query gas price: %w", err)
	}
	required := new(big.Int).Mul(gasLimit, price)
	required.Add(required, e.client.Network().MinGasBufferWei)

	native, err := e.client.GetBalance(ctx, session.Account)
	if err != nil {
		return fmt.Errorf("failed to query native balance: %w", err)
	}
	if native.Cmp(required) < 0 {
		return &InsufficientGasError{Required: required.String(), Available: native.String()}
	}
	return nil
}

// markPaid records ledger-confirmed payouts on their tasks. The transfer
// already happened, so a store failure is retried until every task is
// marked rather than leaving a partial set.
func (e *Engine) markPaid(ctx context.Context, targets []PayoutTarget, txRef string) error {
	pending := make([]string, 0, len(targets))
	for _, t := range targets {
		if t.TaskID != "" {
			pending = append(pending, t.TaskID)
		}
	}

	paid := true
	done := TaskStatusDone
	for attempt := 0; len(pending) > 0; attempt++ {
		if attempt > 0 {
			if attempt > 10 {
				return fmt.Errorf("payout %s confirmed but tasks %v could not be marked paid", txRef, pending)
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("payout %s confirmed but marking interrupted, tasks %v still unpaid locally: %w", txRef, pending, ctx.Err())
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		var failed []string
		for _, id := range pending {
			if _, err := e.store.UpdateTask(ctx, id, TaskPatch{Paid: &paid, Status: &done, EscrowTxRef: &txRef}); err != nil {
				log.Printf("Failed to mark task %s paid after payout %s: %v", id, txRef, err)
				failed = append(failed, id)
			}
		}
		pending = failed
	}
	return nil
}

// sequentialSettler pays each target with its own transfer transaction.
// An error on target i halts the rest of the queue; earlier confirmed
// transfers stay confirmed.
type sequentialSettler struct {
	engine *Engine
}

func (s *sequentialSettler) Settle(ctx context.Context, session Session, targets []PayoutTarget) (*SettlementResult, error) {
	e := s.engine
	tokenCfg, total, err := e.validateTargets(targets)
	if err != nil {
		return nil, err
	}
	if err := e.preflight(ctx, session, tokenCfg, total, chain.SequentialGasLimit(len(targets))); err != nil {
		return nil, err
	}

	result := &SettlementResult{Targets: make([]PayoutTarget, len(targets))}
	copy(result.Targets, targets)
	for i := range result.Targets {
		result.Targets[i].State = TargetIdle
	}
	token := chain.NewERC20(e.client, *tokenCfg)

	for i := range result.Targets {
		target := &result.Targets[i]
		units, _ := chain.ParseAmount(target.Amount, tokenCfg.Decimals)

		target.State = TargetPending
		txRef, err := token.Transfer(ctx, session.Account, target.Address, units)
		target.TxRef = txRef
		if txRef != "" {
			result.Submitted = true
		}
		if err != nil {
			target.State = TargetError
			target.Error = err.Error()
			result.Failed++
			log.Printf("Sequential payout halted at target %d (%s): %v", i, target.Address, err)
			return result, err
		}

		target.State = TargetSuccess
		result.Succeeded++
		if target.TaskID != "" {
			if err := e.markPaid(ctx, []PayoutTarget{*target}, txRef); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

// batchSettler pays every target in one atomic contract call, inserting an
// approval transaction first when the standing allowance is short
type batchSettler struct {
	engine *Engine
}

func (b *batchSettler) Settle(ctx context.Context, session Session, targets []PayoutTarget) (*SettlementResult, error) {
	e := b.engine
	tokenCfg, total, err := e.validateTargets(targets)
	if err != nil {
		return nil, err
	}
	// worst case two transactions: approval then the batch call
	gasLimit := new(big.Int).Add(chain.BatchGasLimit(len(targets)), chain.SequentialGasLimit(1))
	if err := e.preflight(ctx, session, tokenCfg, total, gasLimit); err != nil {
		return nil, err
	}

	result := &SettlementResult{Targets: make([]PayoutTarget, len(targets))}
	copy(result.Targets, targets)

	token := chain.NewERC20(e.client, *tokenCfg)
	allowance, err := token.Allowance(ctx, session.Account, e.batch.Address())
	if err != nil {
		return result, fmt.Errorf("failed to query batch allowance: %w", err)
	}
	if allowance.Cmp(total) < 0 {
		log.Printf("Batch payout: approving %s %s for the disbursement contract",
			chain.FormatUnits(total, tokenCfg.Decimals), tokenCfg.Symbol)
		approveTx, err := token.Approve(ctx, session.Account, e.batch.Address(), total)
		result.ApprovalTx = approveTx
		if approveTx != "" {
			result.Submitted = true
		}
		if err != nil {
			b.markAll(result, TargetError, err)
			return result, err
		}
	}

	recipients := make([]string, len(result.Targets))
	amounts := make([]*big.Int, len(result.Targets))
	for i, t := range result.Targets {
		recipients[i] = t.Address
		amounts[i], _ = chain.ParseAmount(t.Amount, tokenCfg.Decimals)
		result.Targets[i].State = TargetPending
	}

	batchTx, err := e.batch.Pay(ctx, tokenCfg.Address, session.Account, recipients, amounts)
	result.BatchTx = batchTx
	if batchTx != "" {
		result.Submitted = true
		for i := range result.Targets {
			result.Targets[i].TxRef = batchTx
		}
	}
	if err != nil {
		// the call is atomic: it reverted for everyone or timed out for everyone
		b.markAll(result, TargetError, err)
		return result, err
	}

	for i := range result.Targets {
		result.Targets[i].State = TargetSuccess
	}
	result.Succeeded = len(result.Targets)
	log.Printf("Batch payout confirmed: %d recipients, %s %s total (tx %s)",
		len(result.Targets), chain.FormatUnits(total, tokenCfg.Decimals), tokenCfg.Symbol, batchTx)

	if err := e.markPaid(ctx, result.Targets, batchTx); err != nil {
		return result, err
	}
	return result, nil
}

func (b *batchSettler) markAll(result *SettlementResult, state TargetState, err error) {
	for i := range result.Targets {
		result.Targets[i].State = state
		result.Targets[i].Error = err.Error()
	}
	result.Failed = len(result.Targets)
}

// SettlePlan executes a payout plan with the batch strategy, refusing to
// run while any blocking issue remains
func (e *Engine) SettlePlan(ctx context.Context, session Session, plan *PayoutPlan) (*SettlementResult, error) {
	if plan == nil || len(plan.Targets) == 0 {
		return nil, NewValidationError("plan", "payout plan is empty")
	}
	if len(plan.Issues) > 0 {
		return nil, NewValidationError("plan",
			fmt.Sprintf("%d blocking issue(s) must be resolved before settlement", len(plan.Issues)))
	}
	if len(plan.Targets) == 1 {
		return e.Sequential().Settle(ctx, session, plan.Targets)
	}
	return e.Batch().Settle(ctx, session, plan.Targets)
}

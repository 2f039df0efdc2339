package escrow

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/Malik434/TaskWiser-V2-sub000/chain"
	"github.com/google/uuid"
)

// Outcome reports what a ledger-touching operation actually did. Submitted
// distinguishes "nothing happened" from "a transaction left this system",
// which is financially material when the error path fires.
type Outcome struct {
	Submitted bool   `json:"submitted"`
	TxRef     string `json:"tx_ref,omitempty"`
}

// Manager owns the escrow custody state machine and issues the ledger
// calls that drive it. Every transition is validated locally, re-checked
// against ledger truth where funds are at stake, and only then persisted.
type Manager struct {
	store  Store
	client *chain.Client
	vault  *chain.EscrowContract
}

// NewManager creates an escrow state machine over the given ledger client
func NewManager(store Store, client *chain.Client) *Manager {
	return &Manager{
		store:  store,
		client: client,
		vault:  chain.NewEscrowContract(client),
	}
}

// Vault exposes the bound escrow contract for read-only callers
func (m *Manager) Vault() *chain.EscrowContract {
	return m.vault
}

// checkNetwork fails closed when the signer's session or the node is not on
// the expected chain. Runs immediately before every ledger call.
func (m *Manager) checkNetwork(ctx context.Context, session Session) error {
	want := m.client.Network().ChainID
	if !strings.EqualFold(session.ChainID, want) {
		return &NetworkMismatchError{Have: session.ChainID, Want: want}
	}
	nodeChain, err := m.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("ledger unreachable: %w", err)
	}
	if !strings.EqualFold(nodeChain, want) {
		return &NetworkMismatchError{Have: nodeChain, Want: want}
	}
	return nil
}

// resolveReward maps a task's reward onto a whitelisted token and its
// smallest-unit amount
func (m *Manager) resolveReward(task *Task) (*chain.TokenConfig, *big.Int, error) {
	token := m.client.Network().Token(task.RewardToken)
	if token == nil {
		return nil, nil, NewValidationError("reward_token", fmt.Sprintf("unsupported token %q", task.RewardToken))
	}
	amount, err := chain.ParseAmount(task.RewardAmount, token.Decimals)
	if err != nil {
		return nil, nil, NewValidationError("reward_amount", err.Error())
	}
	if amount.Sign() <= 0 {
		return nil, nil, NewValidationError("reward_amount", "reward amount must be positive")
	}
	return token, amount, nil
}

// preflightGas verifies the signer can cover an estimated gas spend plus
// the configured safety buffer, without touching the ledger state
func (m *Manager) preflightGas(ctx context.Context, account string, gasLimit *big.Int) error {
	price, err := m.client.GasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to query gas price: %w", err)
	}
	required := new(big.Int).Mul(gasLimit, price)
	required.Add(required, m.client.Network().MinGasBufferWei)

	native, err := m.client.GetBalance(ctx, account)
	if err != nil {
		return fmt.Errorf("failed to query native balance: %w", err)
	}
	if native.Cmp(required) < 0 {
		return &InsufficientGasError{Required: required.String(), Available: native.String()}
	}
	return nil
}

// Lock moves the task's reward into custody: pending -> locked. The payer
// is the session account; an approval transaction is inserted first when
// the vault's allowance does not already cover the amount.
func (m *Manager) Lock(ctx context.Context, session Session, taskID string) (*Outcome, error) {
	outcome := &Outcome{}

	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return outcome, err
	}
	if !task.EscrowEnabled {
		return outcome, NewValidationError("escrow_enabled", "task does not use escrow")
	}
	if !task.EscrowStatus.CanTransition(EscrowStatusLocked) {
		return outcome, NewValidationError("escrow_status",
			fmt.Sprintf("cannot lock from %q, escrow must be pending", task.EscrowStatus))
	}
	if task.AssigneeID == "" {
		return outcome, NewValidationError("assignee_id", "cannot lock escrow before an assignee is bound")
	}

	assigneeAddr, err := m.store.GetUserWalletAddress(ctx, task.AssigneeID)
	if err != nil {
		return outcome, fmt.Errorf("failed to resolve assignee wallet: %w", err)
	}
	if !chain.IsAddress(assigneeAddr) {
		return outcome, NewValidationError("assignee_address", fmt.Sprintf("invalid wallet address %q", assigneeAddr))
	}

	tokenCfg, amount, err := m.resolveReward(task)
	if err != nil {
		return outcome, err
	}
	if err := m.checkNetwork(ctx, session); err != nil {
		return outcome, err
	}

	token := chain.NewERC20(m.client, *tokenCfg)
	balance, err := token.BalanceOf(ctx, session.Account)
	if err != nil {
		return outcome, fmt.Errorf("failed to query token balance: %w", err)
	}
	if balance.Cmp(amount) < 0 {
		return outcome, &InsufficientFundsError{
			Token:     tokenCfg.Symbol,
			Required:  chain.FormatUnits(amount, tokenCfg.Decimals),
			Available: chain.FormatUnits(balance, tokenCfg.Decimals),
		}
	}
	// two transactions worst case: approval then lock
	if err := m.preflightGas(ctx, session.Account, chain.SequentialGasLimit(2)); err != nil {
		return outcome, err
	}

	allowance, err := token.Allowance(ctx, session.Account, m.vault.Address())
	if err != nil {
		return outcome, fmt.Errorf("failed to query vault allowance: %w", err)
	}
	if allowance.Cmp(amount) < 0 {
		log.Printf("Escrow lock for task %s: approving vault for %s %s",
			task.ID, chain.FormatUnits(amount, tokenCfg.Decimals), tokenCfg.Symbol)
		approveTx, err := token.Approve(ctx, session.Account, m.vault.Address(), amount)
		if approveTx != "" {
			outcome.Submitted = true
			outcome.TxRef = approveTx
		}
		if err != nil {
			return outcome, err
		}
	}

	lockTx, err := m.vault.Lock(ctx, session.Account, task.ID, assigneeAddr, tokenCfg.Address, amount)
	if lockTx != "" {
		outcome.Submitted = true
		outcome.TxRef = lockTx
	}
	if err != nil {
		return outcome, err
	}

	locked := EscrowStatusLocked
	if _, err := m.store.UpdateTask(ctx, task.ID, TaskPatch{EscrowStatus: &locked, EscrowTxRef: &lockTx}); err != nil {
		// funds are in custody; local record converges on next reconcile
		log.Printf("WARNING: escrow for task %s locked on ledger (%s) but local update failed: %v", task.ID, lockTx, err)
		return outcome, fmt.Errorf("escrow locked on ledger but record update failed: %w", err)
	}
	log.Printf("Escrow locked for task %s (%s %s -> vault, tx %s)",
		task.ID, chain.FormatUnits(amount, tokenCfg.Decimals), tokenCfg.Symbol, lockTx)
	return outcome, nil
}

// Release pays the custody out to the assignee: locked -> released. Only
// the owner or reviewer may trigger it, as part of approving the work.
// On success the task is marked paid and done.
func (m *Manager) Release(ctx context.Context, session Session, taskID, actor string) (*Outcome, error) {
	outcome := &Outcome{}

	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return outcome, err
	}
	if task.EscrowStatus != EscrowStatusLocked {
		return outcome, NewValidationError("escrow_status",
			fmt.Sprintf("cannot release from %q, escrow must be locked", task.EscrowStatus))
	}
	if actor != task.OwnerID && actor != task.ReviewerID {
		return outcome, NewValidationError("actor", "only the task owner or reviewer may release escrow")
	}
	if err := m.checkNetwork(ctx, session); err != nil {
		return outcome, err
	}

	// the vault record, not the local row, decides whether funds exist
	locked, err := m.vault.IsLocked(ctx, task.ID)
	if err != nil {
		return outcome, err
	}
	if !locked {
		return outcome, NewValidationError("escrow_status", "ledger shows no locked funds for this task")
	}
	if err := m.preflightGas(ctx, session.Account, chain.SequentialGasLimit(1)); err != nil {
		return outcome, err
	}

	releaseTx, err := m.vault.Release(ctx, session.Account, task.ID)
	if releaseTx != "" {
		outcome.Submitted = true
		outcome.TxRef = releaseTx
	}
	if err != nil {
		return outcome, err
	}

	released := EscrowStatusReleased
	done := TaskStatusDone
	paid := true
	if _, err := m.store.UpdateTask(ctx, task.ID, TaskPatch{
		EscrowStatus: &released,
		Status:       &done,
		Paid:         &paid,
		EscrowTxRef:  &releaseTx,
	}); err != nil {
		log.Printf("WARNING: escrow for task %s released on ledger (%s) but local update failed: %v", task.ID, releaseTx, err)
		return outcome, fmt.Errorf("escrow released on ledger but record update failed: %w", err)
	}
	log.Printf("Escrow released for task %s (tx %s)", task.ID, releaseTx)
	return outcome, nil
}

// RefundByAssignee lets the bound assignee hand the custody back to the
// owner: locked -> refunded. Allowed only while the task has not been
// completed; a task sitting in done keeps its payout path.
func (m *Manager) RefundByAssignee(ctx context.Context, session Session, taskID, actor, reason string) (*Outcome, error) {
	outcome := &Outcome{}

	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return outcome, err
	}
	if actor != task.AssigneeID {
		return outcome, NewValidationError("actor", "only the bound assignee may refund the escrow")
	}
	switch task.Status {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusReview:
	default:
		return outcome, NewValidationError("status",
			fmt.Sprintf("refund is not available while the task is %q", task.Status))
	}
	if task.EscrowStatus != EscrowStatusLocked {
		return outcome, NewValidationError("escrow_status",
			fmt.Sprintf("cannot refund from %q, escrow must be locked", task.EscrowStatus))
	}
	if err := m.checkNetwork(ctx, session); err != nil {
		return outcome, err
	}

	// defend against a stale local row before moving money
	locked, err := m.vault.IsLocked(ctx, task.ID)
	if err != nil {
		return outcome, err
	}
	if !locked {
		return outcome, NewValidationError("escrow_status", "ledger shows no locked funds for this task")
	}
	if err := m.preflightGas(ctx, session.Account, chain.SequentialGasLimit(1)); err != nil {
		return outcome, err
	}

	refundTx, err := m.vault.RefundByAssignee(ctx, session.Account, task.ID, reason)
	if refundTx != "" {
		outcome.Submitted = true
		outcome.TxRef = refundTx
	}
	if err != nil {
		return outcome, err
	}

	refunded := EscrowStatusRefunded
	if _, err := m.store.UpdateTask(ctx, task.ID, TaskPatch{EscrowStatus: &refunded, EscrowTxRef: &refundTx}); err != nil {
		log.Printf("WARNING: escrow for task %s refunded on ledger (%s) but local update failed: %v", task.ID, refundTx, err)
		return outcome, fmt.Errorf("escrow refunded on ledger but record update failed: %w", err)
	}
	log.Printf("Escrow refunded for task %s by assignee %s (tx %s)", task.ID, actor, refundTx)
	return outcome, nil
}

// OpenDispute records a disagreement over a locked escrow and freezes the
// payout path: locked -> disputed. Purely local; funds stay in custody
// until an admin resolution.
func (m *Manager) OpenDispute(ctx context.Context, taskID, raisedBy, evidence string) (*Dispute, error) {
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.EscrowStatus.CanTransition(EscrowStatusDisputed) {
		return nil, &DisputeNotEligibleError{TaskID: task.ID,
			Reason: fmt.Sprintf("escrow is %q, disputes need locked funds", task.EscrowStatus)}
	}
	if existing, err := m.store.GetDisputeByTask(ctx, task.ID); err == nil && existing != nil && existing.Status != DisputeStatusResolved {
		return nil, &DisputeNotEligibleError{TaskID: task.ID, Reason: "a dispute is already open"}
	}

	role, err := disputeRole(task, raisedBy)
	if err != nil {
		return nil, err
	}
	creatorAddr, err := m.store.GetUserWalletAddress(ctx, task.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve owner wallet: %w", err)
	}
	contributorAddr, err := m.store.GetUserWalletAddress(ctx, task.AssigneeID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve assignee wallet: %w", err)
	}

	now := time.Now()
	dispute := &Dispute{
		ID:                 uuid.NewString(),
		TaskID:             task.ID,
		CreatorAddress:     creatorAddr,
		ContributorAddress: contributorAddr,
		EscrowAmount:       task.RewardAmount,
		EscrowToken:        task.RewardToken,
		Status:             DisputeStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	switch role {
	case RoleCreator:
		dispute.CreatorEvidence = evidence
	case RoleContributor:
		dispute.ContributorEvidence = evidence
	}

	if _, err := m.store.CreateDispute(ctx, dispute); err != nil {
		return nil, fmt.Errorf("failed to record dispute: %w", err)
	}
	disputed := EscrowStatusDisputed
	if _, err := m.store.UpdateTask(ctx, task.ID, TaskPatch{EscrowStatus: &disputed}); err != nil {
		return nil, fmt.Errorf("failed to mark task disputed: %w", err)
	}
	log.Printf("Dispute %s opened on task %s by %s (%s)", dispute.ID, task.ID, raisedBy, role)
	return dispute, nil
}

// disputeRole maps a user to their side of the disagreement
func disputeRole(task *Task, userID string) (DisputeRole, error) {
	switch userID {
	case task.OwnerID, task.ReviewerID:
		return RoleCreator, nil
	case task.AssigneeID:
		return RoleContributor, nil
	default:
		return "", NewValidationError("raised_by", "only the task owner, reviewer or assignee may raise a dispute")
	}
}

// ResolveDispute pays the custody out to the chosen winner and settles the
// dispute: disputed -> released (assignee wins) or refunded (owner wins).
// All local writes happen only after the ledger call confirms; on a second
// call for an already-resolved dispute it succeeds without doing anything.
func (m *Manager) ResolveDispute(ctx context.Context, session Session, disputeID string, winner DisputeWinner) (*Outcome, error) {
	outcome := &Outcome{}

	if !session.IsAdmin {
		return outcome, NewValidationError("session", "dispute resolution requires an admin signer")
	}
	if winner != WinnerAssignee && winner != WinnerOwner {
		return outcome, NewValidationError("winner", fmt.Sprintf("unknown winner %q", winner))
	}

	dispute, err := m.store.GetDispute(ctx, disputeID)
	if err != nil {
		return outcome, err
	}
	if dispute.Status == DisputeStatusResolved {
		// retry of a finished resolution is a no-op success
		if dispute.Resolution != nil {
			outcome.Submitted = true
			outcome.TxRef = dispute.Resolution.TxRef
		}
		return outcome, nil
	}

	task, err := m.store.GetTask(ctx, dispute.TaskID)
	if err != nil {
		return outcome, err
	}
	if task.EscrowStatus != EscrowStatusDisputed {
		return outcome, NewValidationError("escrow_status",
			fmt.Sprintf("task escrow is %q, expected disputed", task.EscrowStatus))
	}

	winnerAddr := dispute.ContributorAddress
	if winner == WinnerOwner {
		winnerAddr = dispute.CreatorAddress
	}
	if !chain.IsAddress(winnerAddr) {
		return outcome, NewValidationError("winner", fmt.Sprintf("invalid winner address %q", winnerAddr))
	}

	if err := m.checkNetwork(ctx, session); err != nil {
		return outcome, err
	}
	if err := m.preflightGas(ctx, session.Account, chain.SequentialGasLimit(1)); err != nil {
		return outcome, err
	}

	resolveTx, err := m.vault.ResolveDispute(ctx, session.Account, task.ID, winnerAddr)
	if resolveTx != "" {
		outcome.Submitted = true
		outcome.TxRef = resolveTx
	}
	if err != nil {
		return outcome, err
	}

	// the ledger has spoken; bring task and dispute records in line together
	resolution := &Resolution{
		Winner:     winner,
		ReleasedTo: winnerAddr,
		TxRef:      resolveTx,
		SettledAt:  time.Now(),
	}
	resolved := DisputeStatusResolved
	if _, err := m.store.UpdateDispute(ctx, dispute.ID, DisputePatch{Status: &resolved, Resolution: resolution}); err != nil {
		log.Printf("WARNING: dispute %s resolved on ledger (%s) but dispute update failed: %v", dispute.ID, resolveTx, err)
		return outcome, fmt.Errorf("dispute resolved on ledger but record update failed: %w", err)
	}

	var patch TaskPatch
	if winner == WinnerAssignee {
		released := EscrowStatusReleased
		done := TaskStatusDone
		paid := true
		patch = TaskPatch{EscrowStatus: &released, Status: &done, Paid: &paid, EscrowTxRef: &resolveTx}
	} else {
		refunded := EscrowStatusRefunded
		inProgress := TaskStatusInProgress
		patch = TaskPatch{EscrowStatus: &refunded, Status: &inProgress, EscrowTxRef: &resolveTx}
	}
	if _, err := m.store.UpdateTask(ctx, task.ID, patch); err != nil {
		log.Printf("WARNING: dispute %s resolved on ledger (%s) but task update failed: %v", dispute.ID, resolveTx, err)
		return outcome, fmt.Errorf("dispute resolved on ledger but task update failed: %w", err)
	}

	log.Printf("Dispute %s resolved in favor of %s (%s, tx %s)", dispute.ID, winner, winnerAddr, resolveTx)
	return outcome, nil
}

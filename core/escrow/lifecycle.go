package escrow

import (
	"context"
	"fmt"
	"log"
)

// SettlementRoute tells the caller of a done-transition which payout path
// to follow next
type SettlementRoute string

const (
	// RouteNone means the task carries no reward; nothing to settle
	RouteNone SettlementRoute = "none"
	// RouteEscrowRelease means funds are in custody and must be released
	RouteEscrowRelease SettlementRoute = "escrow_release"
	// RouteDirectPay means the reward is paid by a direct transfer
	RouteDirectPay SettlementRoute = "direct_pay"
)

// Lifecycle owns the task workflow state machine and the immutability
// rules that guard paid and escrowed tasks
type Lifecycle struct {
	store Store
}

// NewLifecycle creates a task lifecycle controller
func NewLifecycle(store Store) *Lifecycle {
	return &Lifecycle{store: store}
}

// Transition moves a task to a new workflow status on behalf of actor.
// Paid tasks never move again; only the owner or the designated reviewer
// may move a task out of review.
func (lc *Lifecycle) Transition(ctx context.Context, taskID string, newStatus TaskStatus, actor string) (*Task, error) {
	if !ValidTaskStatus(newStatus) {
		return nil, NewValidationError("status", fmt.Sprintf("unknown status %q", newStatus))
	}

	task, err := lc.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Paid {
		return nil, &ImmutableTaskError{TaskID: task.ID}
	}
	if task.Status == newStatus {
		return task, nil
	}
	if task.Status == TaskStatusReview && actor != task.OwnerID && actor != task.ReviewerID {
		return nil, NewValidationError("actor", "only the task owner or reviewer may move a task out of review")
	}

	updated, err := lc.store.UpdateTask(ctx, task.ID, TaskPatch{Status: &newStatus})
	if err != nil {
		return nil, fmt.Errorf("failed to update task status: %w", err)
	}
	log.Printf("Task %s moved %s -> %s by %s", task.ID, task.Status, newStatus, actor)
	return updated, nil
}

// Edit applies a partial update to a task. Escrow-enabled tasks freeze their
// reward fields and assignee; paid tasks reject every edit.
func (lc *Lifecycle) Edit(ctx context.Context, taskID string, patch TaskPatch, actor string) (*Task, error) {
	task, err := lc.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Paid {
		return nil, &ImmutableTaskError{TaskID: task.ID}
	}
	if err := checkEscrowFrozenFields(task, patch); err != nil {
		return nil, err
	}
	if patch.Status != nil {
		// status moves go through Transition so its actor rules apply
		return nil, NewValidationError("status", "use the status transition operation to move a task")
	}
	if patch.AssigneeID != nil && *patch.AssigneeID != "" && task.IsOpenBounty {
		return nil, NewValidationError("assignee_id", "open bounties bind their assignee through proposal approval")
	}
	if patch.RewardAmount != nil && *patch.RewardAmount <= 0 {
		return nil, NewValidationError("reward_amount", "reward amount must be positive")
	}
	if patch.Escrow != nil && *patch.Escrow {
		if err := validateEscrowEnable(task, patch); err != nil {
			return nil, err
		}
	}

	updated, err := lc.store.UpdateTask(ctx, task.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return updated, nil
}

// checkEscrowFrozenFields rejects patches that touch fields frozen once
// escrow is enabled
func checkEscrowFrozenFields(task *Task, patch TaskPatch) error {
	if !task.EscrowEnabled {
		return nil
	}
	if patch.Escrow != nil && !*patch.Escrow {
		return &EscrowFieldLockedError{TaskID: task.ID, Field: "escrow_enabled"}
	}
	if patch.RewardToken != nil {
		return &EscrowFieldLockedError{TaskID: task.ID, Field: "reward_token"}
	}
	if patch.RewardAmount != nil {
		return &EscrowFieldLockedError{TaskID: task.ID, Field: "reward_amount"}
	}
	if patch.AssigneeID != nil {
		return &EscrowFieldLockedError{TaskID: task.ID, Field: "assignee_id"}
	}
	return nil
}

// validateEscrowEnable checks the requirements for turning escrow on:
// a whitelisted reward and either a bound assignee or an open bounty
func validateEscrowEnable(task *Task, patch TaskPatch) error {
	token := task.RewardToken
	if patch.RewardToken != nil {
		token = *patch.RewardToken
	}
	amount := task.RewardAmount
	if patch.RewardAmount != nil {
		amount = *patch.RewardAmount
	}
	assignee := task.AssigneeID
	if patch.AssigneeID != nil {
		assignee = *patch.AssigneeID
	}
	openBounty := task.IsOpenBounty
	if patch.IsOpenBounty != nil {
		openBounty = *patch.IsOpenBounty
	}

	if token == "" {
		return NewValidationError("reward_token", "escrow requires a reward token")
	}
	if amount <= 0 {
		return NewValidationError("reward_amount", "escrow requires a positive reward amount")
	}
	if assignee == "" && !openBounty {
		return NewValidationError("assignee_id", "escrow requires an assignee or an open bounty")
	}
	return nil
}

// MoveToDone is the single transition that can trigger a payout. It moves
// the task to done and reports which settlement path the caller must take;
// it performs no ledger work itself.
func (lc *Lifecycle) MoveToDone(ctx context.Context, taskID string, actor string) (*Task, SettlementRoute, error) {
	task, err := lc.Transition(ctx, taskID, TaskStatusDone, actor)
	if err != nil {
		return nil, RouteNone, err
	}

	switch {
	case task.Paid || task.RewardToken == "" || task.RewardAmount <= 0:
		return task, RouteNone, nil
	case task.EscrowEnabled && task.EscrowStatus == EscrowStatusLocked:
		return task, RouteEscrowRelease, nil
	case !task.EscrowEnabled:
		return task, RouteDirectPay, nil
	default:
		// escrow enabled but not holding funds: nothing to release yet
		return task, RouteNone, nil
	}
}

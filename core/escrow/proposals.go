package escrow

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Proposals manages open-bounty bids and the approval step that binds an
// assignee. Approval can trigger an escrow lock; a lock failure leaves the
// assignment in place and is reported for manual retry.
type Proposals struct {
	store   Store
	manager *Manager
}

// NewProposals creates the bounty proposal workflow
func NewProposals(store Store, manager *Manager) *Proposals {
	return &Proposals{store: store, manager: manager}
}

// Submit files a bid on an open bounty. Owners cannot bid on their own
// tasks and each user gets at most one live bid per task.
func (p *Proposals) Submit(ctx context.Context, taskID, proposer, message string) (*Proposal, error) {
	task, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Paid {
		return nil, &ImmutableTaskError{TaskID: task.ID}
	}
	if !task.IsOpenBounty {
		return nil, NewValidationError("task", "task is not an open bounty")
	}
	if proposer == task.OwnerID {
		return nil, NewValidationError("proposer", "task owner cannot bid on their own bounty")
	}
	if proposer == task.AssigneeID && task.AssigneeID != "" {
		return nil, NewValidationError("proposer", "user is already the bound assignee")
	}
	for _, existing := range task.Proposals {
		if existing.UserID == proposer &&
			(existing.Status == ProposalStatusPending || existing.Status == ProposalStatusApproved) {
			return nil, NewValidationError("proposer", "user already has a live proposal on this task")
		}
	}

	proposal := Proposal{
		ID:          uuid.NewString(),
		TaskID:      task.ID,
		UserID:      proposer,
		Message:     message,
		Status:      ProposalStatusPending,
		SubmittedAt: time.Now(),
	}
	proposals := append(append([]Proposal{}, task.Proposals...), proposal)
	if _, err := p.store.UpdateTask(ctx, task.ID, TaskPatch{Proposals: &proposals}); err != nil {
		return nil, fmt.Errorf("failed to record proposal: %w", err)
	}
	log.Printf("Proposal %s submitted on bounty %s by %s", proposal.ID, task.ID, proposer)
	return &proposal, nil
}

// Approve accepts one proposal: it binds the proposer as assignee, closes
// the bounty and auto-rejects every other pending bid in the same write.
// When the task is escrow-backed, the lock is attempted right away; the
// assignment stands even if the lock fails, so escrow can be retried.
func (p *Proposals) Approve(ctx context.Context, session Session, taskID, proposalID, approver string) (*Task, *Outcome, error) {
	task, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if task.Paid {
		return nil, nil, &ImmutableTaskError{TaskID: task.ID}
	}
	if approver != task.OwnerID && approver != task.ReviewerID {
		return nil, nil, NewValidationError("approver", "only the task owner or reviewer may approve proposals")
	}

	var winner *Proposal
	proposals := make([]Proposal, len(task.Proposals))
	copy(proposals, task.Proposals)
	for i := range proposals {
		if proposals[i].ID == proposalID {
			winner = &proposals[i]
		}
	}
	if winner == nil {
		return nil, nil, NewValidationError("proposal_id", fmt.Sprintf("proposal %s not found on task %s", proposalID, taskID))
	}
	if winner.Status != ProposalStatusPending {
		return nil, nil, NewValidationError("proposal_id", fmt.Sprintf("proposal is %s, only pending proposals can be approved", winner.Status))
	}

	winner.Status = ProposalStatusApproved
	for i := range proposals {
		if proposals[i].ID != proposalID && proposals[i].Status == ProposalStatusPending {
			proposals[i].Status = ProposalStatusRejected
		}
	}

	closed := false
	updated, err := p.store.UpdateTask(ctx, task.ID, TaskPatch{
		AssigneeID:   &winner.UserID,
		IsOpenBounty: &closed,
		Proposals:    &proposals,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to bind assignee: %w", err)
	}
	log.Printf("Proposal %s approved on task %s; assignee %s bound", proposalID, task.ID, winner.UserID)

	if updated.EscrowEnabled && updated.EscrowStatus == EscrowStatusPending {
		outcome, err := p.manager.Lock(ctx, session, updated.ID)
		if err != nil {
			// the assignee stays bound; surfaced so escrow can be retried
			log.Printf("Escrow lock after approval of proposal %s failed: %v", proposalID, err)
			return updated, outcome, fmt.Errorf("assignee bound, but escrow lock failed: %w", err)
		}
		refreshed, err := p.store.GetTask(ctx, updated.ID)
		if err == nil {
			updated = refreshed
		}
		return updated, outcome, nil
	}
	return updated, nil, nil
}

// Reject declines a single pending proposal with no other side effects
func (p *Proposals) Reject(ctx context.Context, taskID, proposalID, approver string) (*Task, error) {
	task, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Paid {
		return nil, &ImmutableTaskError{TaskID: task.ID}
	}
	if approver != task.OwnerID && approver != task.ReviewerID {
		return nil, NewValidationError("approver", "only the task owner or reviewer may reject proposals")
	}

	proposals := make([]Proposal, len(task.Proposals))
	copy(proposals, task.Proposals)
	found := false
	for i := range proposals {
		if proposals[i].ID == proposalID {
			if proposals[i].Status != ProposalStatusPending {
				return nil, NewValidationError("proposal_id", fmt.Sprintf("proposal is %s, only pending proposals can be rejected", proposals[i].Status))
			}
			proposals[i].Status = ProposalStatusRejected
			found = true
		}
	}
	if !found {
		return nil, NewValidationError("proposal_id", fmt.Sprintf("proposal %s not found on task %s", proposalID, taskID))
	}

	updated, err := p.store.UpdateTask(ctx, task.ID, TaskPatch{Proposals: &proposals})
	if err != nil {
		return nil, fmt.Errorf("failed to reject proposal: %w", err)
	}
	return updated, nil
}

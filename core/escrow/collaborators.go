package escrow

import (
	"context"
	"time"
)

var timeNow = time.Now

// TaskPatch is a partial task update. Nil fields are left untouched.
type TaskPatch struct {
	Title        *string       `json:"title,omitempty"`
	Description  *string       `json:"description,omitempty"`
	Status       *TaskStatus   `json:"status,omitempty"`
	Priority     *string       `json:"priority,omitempty"`
	Tags         *[]string     `json:"tags,omitempty"`
	RewardToken  *string       `json:"reward_token,omitempty"`
	RewardAmount *float64      `json:"reward_amount,omitempty"`
	Escrow       *bool         `json:"escrow_enabled,omitempty"`
	EscrowStatus *EscrowStatus `json:"escrow_status,omitempty"`
	EscrowTxRef  *string       `json:"escrow_tx_ref,omitempty"`
	AssigneeID   *string       `json:"assignee_id,omitempty"`
	ReviewerID   *string       `json:"reviewer_id,omitempty"`
	IsOpenBounty *bool         `json:"is_open_bounty,omitempty"`
	Proposals    *[]Proposal   `json:"proposals,omitempty"`
	Paid         *bool         `json:"paid,omitempty"`
	Submission   *Submission   `json:"submission,omitempty"`
}

// Store is the persistence collaborator the engines write through. Local
// records are a convenience cache; ledger state wins whenever they disagree.
type Store interface {
	GetTask(ctx context.Context, id string) (*Task, error)
	UpdateTask(ctx context.Context, id string, patch TaskPatch) (*Task, error)
	GetDispute(ctx context.Context, id string) (*Dispute, error)
	GetDisputeByTask(ctx context.Context, taskID string) (*Dispute, error)
	CreateDispute(ctx context.Context, dispute *Dispute) (string, error)
	UpdateDispute(ctx context.Context, id string, patch DisputePatch) (*Dispute, error)
	GetUserWalletAddress(ctx context.Context, userID string) (string, error)
}

// DisputePatch is a partial dispute update. Nil fields are left untouched.
type DisputePatch struct {
	Status              *DisputeStatus `json:"status,omitempty"`
	CreatorEvidence     *string        `json:"creator_evidence,omitempty"`
	ContributorEvidence *string        `json:"contributor_evidence,omitempty"`
	Resolution          *Resolution    `json:"resolution,omitempty"`
}

// ApplyPatch copies the non-nil fields of patch onto task and bumps its
// update timestamp. Store implementations share this so patch semantics
// stay identical across backends.
func ApplyPatch(task *Task, patch TaskPatch) {
	if patch.Title != nil {
		task.Title = *patch.Title
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Status != nil {
		task.Status = *patch.Status
	}
	if patch.Priority != nil {
		task.Priority = *patch.Priority
	}
	if patch.Tags != nil {
		task.Tags = *patch.Tags
	}
	if patch.RewardToken != nil {
		task.RewardToken = *patch.RewardToken
	}
	if patch.RewardAmount != nil {
		task.RewardAmount = *patch.RewardAmount
	}
	if patch.Escrow != nil {
		task.EscrowEnabled = *patch.Escrow
		if task.EscrowEnabled && task.EscrowStatus == EscrowStatusNone {
			task.EscrowStatus = EscrowStatusPending
		}
	}
	if patch.EscrowStatus != nil {
		task.EscrowStatus = *patch.EscrowStatus
	}
	if patch.EscrowTxRef != nil {
		task.EscrowTxRef = *patch.EscrowTxRef
	}
	if patch.AssigneeID != nil {
		task.AssigneeID = *patch.AssigneeID
	}
	if patch.ReviewerID != nil {
		task.ReviewerID = *patch.ReviewerID
	}
	if patch.IsOpenBounty != nil {
		task.IsOpenBounty = *patch.IsOpenBounty
	}
	if patch.Proposals != nil {
		task.Proposals = *patch.Proposals
	}
	if patch.Paid != nil {
		task.Paid = *patch.Paid
	}
	if patch.Submission != nil {
		task.Submission = patch.Submission
	}
	task.UpdatedAt = timeNow()
}

// ApplyDisputePatch copies the non-nil fields of patch onto dispute
func ApplyDisputePatch(dispute *Dispute, patch DisputePatch) {
	if patch.Status != nil {
		dispute.Status = *patch.Status
	}
	if patch.CreatorEvidence != nil {
		dispute.CreatorEvidence = *patch.CreatorEvidence
	}
	if patch.ContributorEvidence != nil {
		dispute.ContributorEvidence = *patch.ContributorEvidence
	}
	if patch.Resolution != nil {
		dispute.Resolution = patch.Resolution
	}
	dispute.UpdatedAt = timeNow()
}

// DisputeContext is what the arbitration collaborator sees about a dispute
type DisputeContext struct {
	TaskTitle         string `json:"task_title"`
	TaskDescription   string `json:"task_description"`
	SubmissionContent string `json:"submission_content"`
	DisputeReason     string `json:"dispute_reason"`
}

// Arbiter produces an advisory recommendation for a dispute. It never
// decides anything on its own; a human admin stays in the loop.
type Arbiter interface {
	AnalyzeDispute(ctx context.Context, dc DisputeContext) (*DisputeAnalysis, error)
}

package escrow

import (
	"context"
	"fmt"
	"log"
)

// Disputes is the human-facing dispute workflow: raising, assisted
// analysis, and the admin decision that settles the money
type Disputes struct {
	store   Store
	manager *Manager
	arbiter Arbiter
}

// NewDisputes creates the dispute workflow. The arbiter may be nil, in
// which case automated analysis is reported as unavailable.
func NewDisputes(store Store, manager *Manager, arbiter Arbiter) *Disputes {
	return &Disputes{store: store, manager: manager, arbiter: arbiter}
}

// Raise opens a dispute over a task's locked escrow. Evidence is
// attributed to the raiser's side of the disagreement, never free-form.
func (d *Disputes) Raise(ctx context.Context, taskID, raisedBy, evidence string) (*Dispute, error) {
	return d.manager.OpenDispute(ctx, taskID, raisedBy, evidence)
}

// AddEvidence attaches evidence to an open dispute for the given user's side
func (d *Disputes) AddEvidence(ctx context.Context, disputeID, userID, evidence string) (*Dispute, error) {
	dispute, err := d.store.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status == DisputeStatusResolved {
		return nil, NewValidationError("dispute", "dispute is already resolved")
	}
	task, err := d.store.GetTask(ctx, dispute.TaskID)
	if err != nil {
		return nil, err
	}
	role, err := disputeRole(task, userID)
	if err != nil {
		return nil, err
	}

	patch := DisputePatch{}
	if role == RoleCreator {
		patch.CreatorEvidence = &evidence
	} else {
		patch.ContributorEvidence = &evidence
	}
	return d.store.UpdateDispute(ctx, disputeID, patch)
}

// RequestAnalysis asks the arbitration collaborator for an advisory read
// of the dispute. It never mutates any state; the admin decides.
func (d *Disputes) RequestAnalysis(ctx context.Context, disputeID string) (*DisputeAnalysis, error) {
	if d.arbiter == nil {
		return nil, NewValidationError("arbiter", "automated analysis is not configured")
	}

	dispute, err := d.store.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	task, err := d.store.GetTask(ctx, dispute.TaskID)
	if err != nil {
		return nil, err
	}

	submission := ""
	if task.Submission != nil {
		submission = task.Submission.Content
	}
	reason := dispute.CreatorEvidence
	if reason == "" {
		reason = dispute.ContributorEvidence
	}

	analysis, err := d.arbiter.AnalyzeDispute(ctx, DisputeContext{
		TaskTitle:         task.Title,
		TaskDescription:   task.Description,
		SubmissionContent: submission,
		DisputeReason:     reason,
	})
	if err != nil {
		return nil, fmt.Errorf("dispute analysis failed: %w", err)
	}
	log.Printf("Dispute %s analysis: recommend %s (confidence %d)", disputeID, analysis.Recommendation, analysis.Confidence)
	return analysis, nil
}

// AdminResolve is the administrative decision point. It delegates to the
// escrow state machine and stays idempotent: resolving an already-resolved
// dispute again succeeds without a second ledger call.
func (d *Disputes) AdminResolve(ctx context.Context, session Session, disputeID string, winner DisputeWinner) (*Outcome, error) {
	return d.manager.ResolveDispute(ctx, session, disputeID, winner)
}

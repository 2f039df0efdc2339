package escrow

import (
	"time"
)

// TaskStatus is the workflow position of a task
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "inprogress"
	TaskStatusReview     TaskStatus = "review"
	TaskStatusDone       TaskStatus = "done"
)

// ValidTaskStatus reports whether s is one of the workflow states
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusReview, TaskStatusDone:
		return true
	}
	return false
}

// EscrowStatus tracks custody of a task's reward
type EscrowStatus string

const (
	EscrowStatusNone     EscrowStatus = "none"
	EscrowStatusPending  EscrowStatus = "pending"
	EscrowStatusLocked   EscrowStatus = "locked"
	EscrowStatusReleased EscrowStatus = "released"
	EscrowStatusRefunded EscrowStatus = "refunded"
	EscrowStatusDisputed EscrowStatus = "disputed"
)

// escrowTransitions encodes the forward-only custody state machine.
// The only path out of disputed is an admin resolution.
var escrowTransitions = map[EscrowStatus][]EscrowStatus{
	EscrowStatusNone:     {EscrowStatusPending},
	EscrowStatusPending:  {EscrowStatusLocked},
	EscrowStatusLocked:   {EscrowStatusReleased, EscrowStatusRefunded, EscrowStatusDisputed},
	EscrowStatusDisputed: {EscrowStatusReleased, EscrowStatusRefunded},
}

// CanTransition reports whether custody may move from one state to another
func (s EscrowStatus) CanTransition(to EscrowStatus) bool {
	for _, next := range escrowTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ProposalStatus is the review state of a bounty proposal
type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "pending"
	ProposalStatusApproved ProposalStatus = "approved"
	ProposalStatusRejected ProposalStatus = "rejected"
)

// Proposal is one contributor's bid on an open bounty
type Proposal struct {
	ID          string         `json:"id"`
	TaskID      string         `json:"task_id"`
	UserID      string         `json:"user_id"`
	Message     string         `json:"message"`
	Status      ProposalStatus `json:"status"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

// SubmissionStatus is the review state of submitted work
type SubmissionStatus string

const (
	SubmissionStatusPending  SubmissionStatus = "pending"
	SubmissionStatusApproved SubmissionStatus = "approved"
	SubmissionStatusRejected SubmissionStatus = "rejected"
)

// Submission is the work a contributor turned in for review
type Submission struct {
	Content     string           `json:"content"`
	SubmittedAt time.Time        `json:"submitted_at"`
	Status      SubmissionStatus `json:"status"`
}

// Task is a unit of work, optionally backed by an escrowed reward
type Task struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Priority    string     `json:"priority"`
	Tags        []string   `json:"tags"`

	RewardToken  string  `json:"reward_token,omitempty"`
	RewardAmount float64 `json:"reward_amount,omitempty"`

	EscrowEnabled bool         `json:"escrow_enabled"`
	EscrowStatus  EscrowStatus `json:"escrow_status"`
	EscrowTxRef   string       `json:"escrow_tx_ref,omitempty"`

	AssigneeID   string     `json:"assignee_id,omitempty"`
	ReviewerID   string     `json:"reviewer_id,omitempty"`
	IsOpenBounty bool       `json:"is_open_bounty"`
	Proposals    []Proposal `json:"proposals,omitempty"`

	Paid       bool        `json:"paid"`
	Submission *Submission `json:"submission,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasEscrowFunds reports whether custody currently holds this task's reward
func (t *Task) HasEscrowFunds() bool {
	return t.EscrowEnabled && (t.EscrowStatus == EscrowStatusLocked || t.EscrowStatus == EscrowStatusDisputed)
}

// DisputeStatus is the lifecycle state of a dispute
type DisputeStatus string

const (
	DisputeStatusPending  DisputeStatus = "pending"
	DisputeStatusResolved DisputeStatus = "resolved"
)

// DisputeWinner names the party an arbiter sided with
type DisputeWinner string

const (
	WinnerAssignee DisputeWinner = "assignee"
	WinnerOwner    DisputeWinner = "owner"

	// WinnerManualReview is an advisory-only value: the arbiter declined to
	// pick a side. It is never a valid resolution winner.
	WinnerManualReview DisputeWinner = "manual_review"
)

// Resolution records how a dispute was settled on the ledger
type Resolution struct {
	Winner     DisputeWinner `json:"winner"`
	ReleasedTo string        `json:"released_to"`
	TxRef      string        `json:"tx_ref,omitempty"`
	SettledAt  time.Time     `json:"settled_at"`
}

// Dispute is a disagreement over a locked escrow's rightful recipient
type Dispute struct {
	ID                  string        `json:"id"`
	TaskID              string        `json:"task_id"`
	CreatorAddress      string        `json:"creator_address"`
	ContributorAddress  string        `json:"contributor_address"`
	EscrowAmount        float64       `json:"escrow_amount"`
	EscrowToken         string        `json:"escrow_token"`
	Status              DisputeStatus `json:"status"`
	CreatorEvidence     string        `json:"creator_evidence,omitempty"`
	ContributorEvidence string        `json:"contributor_evidence,omitempty"`
	Resolution          *Resolution   `json:"resolution,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// DisputeRole attributes evidence to a side of the disagreement
type DisputeRole string

const (
	RoleCreator     DisputeRole = "creator"
	RoleContributor DisputeRole = "contributor"
)

// Session carries the acting signer's wallet state into every ledger
// operation. Operations re-check it against the expected network right
// before each submission instead of trusting ambient state.
type Session struct {
	Account string `json:"account"`
	ChainID string `json:"chain_id"`
	IsAdmin bool   `json:"is_admin,omitempty"`
}

// TargetState is the per-recipient progress marker of a settlement run
type TargetState string

const (
	TargetIdle    TargetState = "idle"
	TargetPending TargetState = "pending"
	TargetSuccess TargetState = "success"
	TargetError   TargetState = "error"
)

// PayoutTarget is one recipient of a settlement run. Targets live only for
// the duration of the run; ledger receipts are the durable record.
type PayoutTarget struct {
	TaskID  string      `json:"task_id,omitempty"`
	Address string      `json:"address"`
	Amount  float64     `json:"amount"`
	Token   string      `json:"token"`
	State   TargetState `json:"state"`
	TxRef   string      `json:"tx_ref,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// DisputeAnalysis is the advisory output of the arbitration collaborator
type DisputeAnalysis struct {
	Analysis       string        `json:"analysis"`
	Recommendation DisputeWinner `json:"recommendation"`
	Confidence     int           `json:"confidence"`
}

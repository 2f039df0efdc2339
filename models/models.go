package models

import (
	"time"

	"github.com/Malik434/TaskWiser-V2-sub000/core/escrow"
)

// CreateTaskRequest is the payload for creating a task
type CreateTaskRequest struct {
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Priority      string   `json:"priority,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	RewardToken   string   `json:"reward_token,omitempty"`
	RewardAmount  float64  `json:"reward_amount,omitempty"`
	EscrowEnabled bool     `json:"escrow_enabled,omitempty"`
	AssigneeID    string   `json:"assignee_id,omitempty"`
	ReviewerID    string   `json:"reviewer_id,omitempty"`
	IsOpenBounty  bool     `json:"is_open_bounty,omitempty"`
}

// UpdateTaskRequest is the payload for a partial task update. Absent
// fields are left alone.
type UpdateTaskRequest struct {
	Title         *string            `json:"title,omitempty"`
	Description   *string            `json:"description,omitempty"`
	Priority      *string            `json:"priority,omitempty"`
	Tags          *[]string          `json:"tags,omitempty"`
	RewardToken   *string            `json:"reward_token,omitempty"`
	RewardAmount  *float64           `json:"reward_amount,omitempty"`
	EscrowEnabled *bool              `json:"escrow_enabled,omitempty"`
	AssigneeID    *string            `json:"assignee_id,omitempty"`
	ReviewerID    *string            `json:"reviewer_id,omitempty"`
	Submission    *escrow.Submission `json:"submission,omitempty"`
}

// Patch converts the request into the patch shape the engines consume
func (r UpdateTaskRequest) Patch() escrow.TaskPatch {
	return escrow.TaskPatch{
		Title:        r.Title,
		Description:  r.Description,
		Priority:     r.Priority,
		Tags:         r.Tags,
		RewardToken:  r.RewardToken,
		RewardAmount: r.RewardAmount,
		Escrow:       r.EscrowEnabled,
		AssigneeID:   r.AssigneeID,
		ReviewerID:   r.ReviewerID,
		Submission:   r.Submission,
	}
}

// TransitionRequest moves a task to a new lifecycle status
type TransitionRequest struct {
	Status  string `json:"status"`
	ActorID string `json:"actor_id"`
}

// TasksResponse represents a task listing
type TasksResponse struct {
	Tasks []escrow.Task `json:"tasks"`
	Total int           `json:"total"`
}

// EscrowActionRequest carries the wallet session for a custody action
type EscrowActionRequest struct {
	Session escrow.Session `json:"session"`
	ActorID string         `json:"actor_id"`
	Reason  string         `json:"reason,omitempty"`
}

// SettlementPlanRequest selects the tasks to settle
type SettlementPlanRequest struct {
	TaskIDs []string `json:"task_ids"`
}

// SettlementExecuteRequest settles a previously planned set of tasks
type SettlementExecuteRequest struct {
	Session escrow.Session `json:"session"`
	TaskIDs []string       `json:"task_ids"`
}

// ProposalRequest is the payload for submitting a bounty proposal
type ProposalRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message,omitempty"`
}

// ProposalDecisionRequest approves or rejects a proposal
type ProposalDecisionRequest struct {
	Session escrow.Session `json:"session"`
	ActorID string         `json:"actor_id"`
}

// DisputeRequest raises a dispute over a locked escrow
type DisputeRequest struct {
	Session escrow.Session `json:"session"`
	ActorID string         `json:"actor_id"`
	Reason  string         `json:"reason"`
}

// EvidenceRequest attaches evidence to an open dispute
type EvidenceRequest struct {
	ActorID  string `json:"actor_id"`
	Evidence string `json:"evidence"`
}

// ResolveRequest settles a dispute in favor of one side
type ResolveRequest struct {
	Session escrow.Session       `json:"session"`
	Winner  escrow.DisputeWinner `json:"winner"`
}

// DisputesResponse represents a dispute listing
type DisputesResponse struct {
	Disputes []escrow.Dispute `json:"disputes"`
	Total    int              `json:"total"`
}

// ConnectRequest binds a wallet account to a session key
type ConnectRequest struct {
	Account string `json:"account"`
	ChainID string `json:"chain_id"`
}

// ErrorResponse represents API error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Code      int    `json:"code,omitempty"`
	Hint      string `json:"hint,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// APIResponse represents a generic API response
type APIResponse struct {
	Success bool                   `json:"success"`
	Data    interface{}            `json:"data,omitempty"`
	Error   *ErrorResponse         `json:"error,omitempty"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data interface{}) *APIResponse {
	return &APIResponse{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(error string, code int) *APIResponse {
	return &APIResponse{
		Success: false,
		Error: &ErrorResponse{
			Error:     error,
			Message:   error,
			Code:      code,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// NewErrorResponseWithHint creates an error response with a hint.
func NewErrorResponseWithHint(error string, code int, hint string) *APIResponse {
	resp := NewErrorResponse(error, code)
	if resp != nil && resp.Error != nil {
		resp.Error.Hint = hint
	}
	return resp
}

// NewSuccessResponseWithMeta creates a success response with metadata
func NewSuccessResponseWithMeta(data interface{}, meta map[string]interface{}) *APIResponse {
	return &APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	}
}

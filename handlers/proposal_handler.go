package handlers

import (
	"net/http"

	"github.com/Malik434/TaskWiser-V2-sub000/core/escrow"
	"github.com/Malik434/TaskWiser-V2-sub000/models"
)

// ProposalHandler handles open-bounty proposal requests
type ProposalHandler struct {
	*BaseHandler
	proposals *escrow.Proposals
}

// NewProposalHandler creates a new proposal handler
func NewProposalHandler(proposals *escrow.Proposals) *ProposalHandler {
	return &ProposalHandler{
		BaseHandler: NewBaseHandler(),
		proposals:   proposals,
	}
}

// HandleSubmit handles a contributor bidding on an open bounty
func (h *ProposalHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req models.ProposalRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	proposer := req.UserID
	if binding, ok := sessionBinding(r); ok && proposer == "" {
		proposer = binding.Account
	}
	if proposer == "" {
		h.sendError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	proposal, err := h.proposals.Submit(r.Context(), r.PathValue("id"), proposer, req.Message)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, http.StatusCreated, models.NewSuccessResponse(proposal))
}

// HandleApprove handles the owner picking a winning proposal. Approval
// binds the assignee first and then locks escrow when the task is
// escrow-backed; a lock failure leaves the assignment in place.
func (h *ProposalHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	var req models.ProposalDecisionRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	task, outcome, err := h.proposals.Approve(r.Context(), resolveSession(r, req.Session),
		r.PathValue("id"), r.PathValue("proposalID"), req.ActorID)
	if err != nil {
		code := statusForError(err)
		resp := models.NewErrorResponse(err.Error(), code)
		if task != nil {
			// assignment may have stuck even though the lock failed
			resp.Data = map[string]interface{}{"task": task, "escrow": outcome}
			if resp.Error != nil {
				resp.Error.Hint = "the proposal was approved; retry the escrow lock separately"
			}
		}
		h.sendJSON(w, code, resp)
		return
	}
	h.sendSuccess(w, map[string]interface{}{"task": task, "escrow": outcome})
}

// HandleReject handles the owner declining a proposal
func (h *ProposalHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	var req models.ProposalDecisionRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	task, err := h.proposals.Reject(r.Context(), r.PathValue("id"), r.PathValue("proposalID"), req.ActorID)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, task)
}

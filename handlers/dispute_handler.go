package handlers

import (
	"net/http"

	"github.com/Malik434/TaskWiser-V2-sub000/core/escrow"
	"github.com/Malik434/TaskWiser-V2-sub000/models"
	"github.com/Malik434/TaskWiser-V2-sub000/storage"
)

// DisputeHandler handles dispute workflow requests
type DisputeHandler struct {
	*BaseHandler
	store    storage.Store
	disputes *escrow.Disputes
}

// NewDisputeHandler creates a new dispute handler
func NewDisputeHandler(store storage.Store, disputes *escrow.Disputes) *DisputeHandler {
	return &DisputeHandler{
		BaseHandler: NewBaseHandler(),
		store:       store,
		disputes:    disputes,
	}
}

// HandleListDisputes handles dispute listing, optionally by status
func (h *DisputeHandler) HandleListDisputes(w http.ResponseWriter, r *http.Request) {
	status := escrow.DisputeStatus(r.URL.Query().Get("status"))
	disputes, err := h.store.ListDisputes(r.Context(), status)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, models.DisputesResponse{Disputes: disputes, Total: len(disputes)})
}

// HandleGetDispute handles fetching one dispute
func (h *DisputeHandler) HandleGetDispute(w http.ResponseWriter, r *http.Request) {
	dispute, err := h.store.GetDispute(r.Context(), r.PathValue("id"))
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, dispute)
}

// HandleRaise opens a dispute over a task with locked escrow
func (h *DisputeHandler) HandleRaise(w http.ResponseWriter, r *http.Request) {
	var req models.DisputeRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	actor := req.ActorID
	if binding, ok := sessionBinding(r); ok && actor == "" {
		actor = binding.Account
	}

	dispute, err := h.disputes.Raise(r.Context(), r.PathValue("id"), actor, req.Reason)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, http.StatusCreated, models.NewSuccessResponse(dispute))
}

// HandleAddEvidence attaches evidence to an open dispute
func (h *DisputeHandler) HandleAddEvidence(w http.ResponseWriter, r *http.Request) {
	var req models.EvidenceRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if req.Evidence == "" {
		h.sendError(w, http.StatusBadRequest, "evidence is required")
		return
	}

	actor := req.ActorID
	if binding, ok := sessionBinding(r); ok && actor == "" {
		actor = binding.Account
	}

	dispute, err := h.disputes.AddEvidence(r.Context(), r.PathValue("id"), actor, req.Evidence)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, dispute)
}

// HandleAnalyze asks the arbitration service for an advisory
// recommendation. Nothing is settled by this call.
func (h *DisputeHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.disputes.RequestAnalysis(r.Context(), r.PathValue("id"))
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, analysis)
}

// HandleResolve settles a dispute in favor of one side. Admin sessions
// only; enforced again inside the engine.
func (h *DisputeHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	var req models.ResolveRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	outcome, err := h.disputes.AdminResolve(r.Context(), resolveSession(r, req.Session), r.PathValue("id"), req.Winner)
	if err != nil {
		code := statusForError(err)
		resp := models.NewErrorResponse(err.Error(), code)
		if outcome != nil && outcome.Submitted {
			resp.Data = outcome
			if resp.Error != nil {
				resp.Error.Hint = "a transaction was submitted before the failure; check tx_ref on the ledger"
			}
		}
		h.sendJSON(w, code, resp)
		return
	}
	h.sendSuccess(w, outcome)
}

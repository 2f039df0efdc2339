package handlers

import (
	"net/http"

	"github.com/Malik434/TaskWiser-V2-sub000/core/escrow"
	"github.com/Malik434/TaskWiser-V2-sub000/models"
)

// SettlementHandler handles batch and single payout requests
type SettlementHandler struct {
	*BaseHandler
	engine *escrow.Engine
}

// NewSettlementHandler creates a new settlement handler
func NewSettlementHandler(engine *escrow.Engine) *SettlementHandler {
	return &SettlementHandler{
		BaseHandler: NewBaseHandler(),
		engine:      engine,
	}
}

// HandlePlan builds a payout plan for the selected tasks without
// touching the ledger. Issues come back alongside the viable targets so
// the caller can fix them before executing.
func (h *SettlementHandler) HandlePlan(w http.ResponseWriter, r *http.Request) {
	var req models.SettlementPlanRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if len(req.TaskIDs) == 0 {
		h.sendError(w, http.StatusBadRequest, "task_ids is required")
		return
	}

	plan, err := h.engine.PlanFromTasks(r.Context(), req.TaskIDs)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, plan)
}

// HandleExecute re-plans and settles the selected tasks. Plans with
// outstanding issues are refused outright; no partial batches.
func (h *SettlementHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req models.SettlementExecuteRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if len(req.TaskIDs) == 0 {
		h.sendError(w, http.StatusBadRequest, "task_ids is required")
		return
	}

	plan, err := h.engine.PlanFromTasks(r.Context(), req.TaskIDs)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}

	result, err := h.engine.SettlePlan(r.Context(), resolveSession(r, req.Session), plan)
	if err != nil {
		code := statusForError(err)
		resp := models.NewErrorResponse(err.Error(), code)
		if result != nil && result.Submitted {
			resp.Data = result
			if resp.Error != nil {
				resp.Error.Hint = "a transaction was submitted before the failure; check per-target states"
			}
		}
		h.sendJSON(w, code, resp)
		return
	}
	h.sendSuccess(w, result)
}

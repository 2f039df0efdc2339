package handlers

import (
	"net/http"

	"github.com/Malik434/TaskWiser-V2-sub000/core/escrow"
	"github.com/Malik434/TaskWiser-V2-sub000/middleware"
	"github.com/Malik434/TaskWiser-V2-sub000/models"
	"github.com/Malik434/TaskWiser-V2-sub000/storage"
	auth "github.com/Malik434/TaskWiser-V2-sub000/storage/auth"
)

// sessionBinding pulls the wallet session the auth middleware attached
func sessionBinding(r *http.Request) (auth.SessionBinding, bool) {
	return middleware.SessionFromContext(r.Context())
}

// resolveSession prefers the middleware-attached session and falls back
// to the one in the request body for wallet-signed calls.
func resolveSession(r *http.Request, fromBody escrow.Session) escrow.Session {
	if binding, ok := sessionBinding(r); ok {
		session := binding.Session()
		// the wallet reports the chain it is connected to per request
		if fromBody.ChainID != "" {
			session.ChainID = fromBody.ChainID
		}
		return session
	}
	return fromBody
}

// EscrowHandler handles escrow custody requests
type EscrowHandler struct {
	*BaseHandler
	store   storage.Store
	manager *escrow.Manager
}

// NewEscrowHandler creates a new escrow handler
func NewEscrowHandler(store storage.Store, manager *escrow.Manager) *EscrowHandler {
	return &EscrowHandler{
		BaseHandler: NewBaseHandler(),
		store:       store,
		manager:     manager,
	}
}

// HandleStatus reports a task's custody state. The local record and the
// vault can drift, so ledger truth rides along for callers to reconcile.
func (h *EscrowHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	task, err := h.store.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		h.sendDomainError(w, err)
		return
	}

	status := map[string]interface{}{
		"task_id":        task.ID,
		"escrow_enabled": task.EscrowEnabled,
		"escrow_status":  task.EscrowStatus,
		"holds_funds":    task.HasEscrowFunds(),
		"tx_ref":         task.EscrowTxRef,
	}
	if task.EscrowEnabled {
		if locked, err := h.manager.Vault().IsLocked(r.Context(), task.ID); err == nil {
			status["ledger_locked"] = locked
		}
	}
	h.sendSuccess(w, status)
}

// HandleLock funds a task's escrow on the ledger
func (h *EscrowHandler) HandleLock(w http.ResponseWriter, r *http.Request) {
	var req models.EscrowActionRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	outcome, err := h.manager.Lock(r.Context(), resolveSession(r, req.Session), r.PathValue("id"))
	if err != nil {
		h.sendEscrowError(w, outcome, err)
		return
	}
	h.sendSuccess(w, outcome)
}

// HandleRelease releases a locked escrow to the assignee
func (h *EscrowHandler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	var req models.EscrowActionRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	outcome, err := h.manager.Release(r.Context(), resolveSession(r, req.Session), r.PathValue("id"), req.ActorID)
	if err != nil {
		h.sendEscrowError(w, outcome, err)
		return
	}
	h.sendSuccess(w, outcome)
}

// HandleRefund returns a locked escrow to the task owner, initiated by
// the assignee walking away
func (h *EscrowHandler) HandleRefund(w http.ResponseWriter, r *http.Request) {
	var req models.EscrowActionRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	outcome, err := h.manager.RefundByAssignee(r.Context(), resolveSession(r, req.Session), r.PathValue("id"), req.ActorID, req.Reason)
	if err != nil {
		h.sendEscrowError(w, outcome, err)
		return
	}
	h.sendSuccess(w, outcome)
}

// sendEscrowError reports a failed custody action. When a transaction
// was already submitted the outcome rides along so the caller can find
// the funds.
func (h *EscrowHandler) sendEscrowError(w http.ResponseWriter, outcome *escrow.Outcome, err error) {
	code := statusForError(err)
	resp := models.NewErrorResponse(err.Error(), code)
	if outcome != nil && outcome.Submitted {
		resp.Data = outcome
		if resp.Error != nil {
			resp.Error.Hint = "a transaction was submitted before the failure; check tx_ref on the ledger"
		}
	}
	h.sendJSON(w, code, resp)
}

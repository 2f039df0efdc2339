package handlers

import (
	"net/http"
	"strconv"

	"github.com/Malik434/TaskWiser-V2-sub000/core/escrow"
	"github.com/Malik434/TaskWiser-V2-sub000/models"
	"github.com/Malik434/TaskWiser-V2-sub000/storage"
)

// TaskHandler handles task CRUD and lifecycle requests
type TaskHandler struct {
	*BaseHandler
	store     storage.Store
	lifecycle *escrow.Lifecycle
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(store storage.Store, lifecycle *escrow.Lifecycle) *TaskHandler {
	return &TaskHandler{
		BaseHandler: NewBaseHandler(),
		store:       store,
		lifecycle:   lifecycle,
	}
}

// HandleListTasks handles task listing with query filters
func (h *TaskHandler) HandleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.TaskFilter{
		Status:       q.Get("status"),
		OwnerID:      q.Get("owner_id"),
		AssigneeID:   q.Get("assignee_id"),
		EscrowStatus: q.Get("escrow_status"),
	}
	if v := q.Get("open_bounty"); v != "" {
		b := v == "true" || v == "1"
		filter.OpenBounty = &b
	}
	if v := q.Get("paid"); v != "" {
		b := v == "true" || v == "1"
		filter.Paid = &b
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	tasks, err := h.store.ListTasks(r.Context(), filter)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, models.TasksResponse{Tasks: tasks, Total: len(tasks)})
}

// HandleCreateTask handles task creation
func (h *TaskHandler) HandleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTaskRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if req.Title == "" {
		h.sendError(w, http.StatusBadRequest, "title is required")
		return
	}

	binding, ok := sessionBinding(r)
	if !ok {
		h.sendError(w, http.StatusUnauthorized, "Session required")
		return
	}

	task := &escrow.Task{
		OwnerID:       binding.Account,
		Title:         req.Title,
		Description:   req.Description,
		Priority:      req.Priority,
		Tags:          req.Tags,
		RewardToken:   req.RewardToken,
		RewardAmount:  req.RewardAmount,
		EscrowEnabled: req.EscrowEnabled,
		AssigneeID:    req.AssigneeID,
		ReviewerID:    req.ReviewerID,
		IsOpenBounty:  req.IsOpenBounty,
	}
	if _, err := h.store.CreateTask(r.Context(), task); err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, http.StatusCreated, models.NewSuccessResponse(task))
}

// HandleGetTask handles fetching one task
func (h *TaskHandler) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.store.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, task)
}

// HandleUpdateTask handles partial task edits, subject to escrow field
// freezing and paid-task immutability
func (h *TaskHandler) HandleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateTaskRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	binding, ok := sessionBinding(r)
	if !ok {
		h.sendError(w, http.StatusUnauthorized, "Session required")
		return
	}

	task, err := h.lifecycle.Edit(r.Context(), r.PathValue("id"), req.Patch(), binding.Account)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, task)
}

// HandleDeleteTask handles task deletion. Paid tasks are immutable.
func (h *TaskHandler) HandleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteTask(r.Context(), r.PathValue("id")); err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, map[string]string{"deleted": r.PathValue("id")})
}

// HandleTransition moves a task to a new lifecycle status
func (h *TaskHandler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	var req models.TransitionRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	actor := req.ActorID
	if binding, ok := sessionBinding(r); ok && actor == "" {
		actor = binding.Account
	}

	newStatus := escrow.TaskStatus(req.Status)
	if newStatus == escrow.TaskStatusDone {
		task, route, err := h.lifecycle.MoveToDone(r.Context(), r.PathValue("id"), actor)
		if err != nil {
			h.sendDomainError(w, err)
			return
		}
		h.sendSuccess(w, map[string]interface{}{
			"task":             task,
			"settlement_route": route,
		})
		return
	}

	task, err := h.lifecycle.Transition(r.Context(), r.PathValue("id"), newStatus, actor)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, task)
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Malik434/TaskWiser-V2-sub000/chain"
	"github.com/Malik434/TaskWiser-V2-sub000/core/escrow"
	"github.com/Malik434/TaskWiser-V2-sub000/models"
	"github.com/Malik434/TaskWiser-V2-sub000/services"
	"github.com/Malik434/TaskWiser-V2-sub000/storage"
)

// BaseHandler provides common functionality for all handlers
type BaseHandler struct{}

// NewBaseHandler creates a new base handler
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// sendJSON sends a JSON response
func (h *BaseHandler) sendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// sendError sends an error response
func (h *BaseHandler) sendError(w http.ResponseWriter, statusCode int, message string) {
	errorResp := models.NewErrorResponse(message, statusCode)
	h.sendJSON(w, statusCode, errorResp)
}

// sendSuccess sends a success response
func (h *BaseHandler) sendSuccess(w http.ResponseWriter, data interface{}) {
	successResp := models.NewSuccessResponse(data)
	h.sendJSON(w, http.StatusOK, successResp)
}

// parseJSON parses JSON from request
func (h *BaseHandler) parseJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// sendDomainError maps engine errors onto HTTP status codes
func (h *BaseHandler) sendDomainError(w http.ResponseWriter, err error) {
	h.sendError(w, statusForError(err), err.Error())
}

func statusForError(err error) int {
	var validation *escrow.ValidationError
	var immutable *escrow.ImmutableTaskError
	var fieldLocked *escrow.EscrowFieldLockedError
	var mismatch *escrow.NetworkMismatchError
	var noFunds *escrow.InsufficientFundsError
	var noGas *escrow.InsufficientGasError
	var notEligible *escrow.DisputeNotEligibleError
	var tooLarge *escrow.BatchTooLargeError
	var mixed *escrow.MixedTokenError
	var rejected *chain.UserRejectedError
	var txFailed *chain.TransactionFailedError
	var timedOut *chain.ConfirmationTimeoutError

	switch {
	case errors.Is(err, storage.ErrTaskNotFound),
		errors.Is(err, storage.ErrDisputeNotFound),
		errors.Is(err, storage.ErrWalletNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrTaskImmutable),
		errors.Is(err, storage.ErrDuplicateTask),
		errors.As(err, &immutable), errors.As(err, &fieldLocked):
		return http.StatusConflict
	case errors.As(err, &validation), errors.As(err, &notEligible),
		errors.As(err, &tooLarge), errors.As(err, &mixed):
		return http.StatusBadRequest
	case errors.As(err, &mismatch), errors.As(err, &noFunds), errors.As(err, &noGas):
		return http.StatusUnprocessableEntity
	case errors.As(err, &rejected):
		// the wallet owner declined; nothing was submitted
		return http.StatusConflict
	case errors.As(err, &txFailed), errors.As(err, &timedOut):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// HealthHandler handles health check requests
type HealthHandler struct {
	*BaseHandler
	healthService *services.HealthService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(healthService *services.HealthService) *HealthHandler {
	return &HealthHandler{
		BaseHandler:   NewBaseHandler(),
		healthService: healthService,
	}
}

// HandleHealth handles health check requests
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	health := h.healthService.GetHealthStatus()
	h.sendSuccess(w, health)
}

// ReceiptHandler serves settlement receipts
type ReceiptHandler struct {
	*BaseHandler
	receipts *services.ReceiptService
}

// NewReceiptHandler creates a new receipt handler
func NewReceiptHandler(receipts *services.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{
		BaseHandler: NewBaseHandler(),
		receipts:    receipts,
	}
}

// HandleTransactionQR renders a QR code for a settlement transaction
func (h *ReceiptHandler) HandleTransactionQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	txRef := r.URL.Query().Get("tx")
	data, err := h.receipts.TransactionQRCode(txRef)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

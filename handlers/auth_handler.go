package handlers

import (
	"net/http"
	"os"
	"strings"

	"github.com/Malik434/TaskWiser-V2-sub000/chain"
	"github.com/Malik434/TaskWiser-V2-sub000/models"
	"github.com/Malik434/TaskWiser-V2-sub000/storage"
	auth "github.com/Malik434/TaskWiser-V2-sub000/storage/auth"
)

// AuthHandler issues wallet-bound session keys
type AuthHandler struct {
	*BaseHandler
	sessions *auth.SessionStore
	store    storage.Store
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(sessions *auth.SessionStore, store storage.Store) *AuthHandler {
	return &AuthHandler{
		BaseHandler: NewBaseHandler(),
		sessions:    sessions,
		store:       store,
	}
}

// adminAccounts reads the comma-separated admin wallet list from env
func adminAccounts() map[string]bool {
	out := make(map[string]bool)
	for _, acct := range strings.Split(os.Getenv("ADMIN_ACCOUNTS"), ",") {
		acct = strings.TrimSpace(strings.ToLower(acct))
		if acct != "" {
			out[acct] = true
		}
	}
	return out
}

// HandleConnect binds a wallet account to a fresh session key
func (h *AuthHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	var req models.ConnectRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if !chain.IsAddress(req.Account) {
		h.sendError(w, http.StatusBadRequest, "account must be a valid wallet address")
		return
	}

	isAdmin := adminAccounts()[strings.ToLower(req.Account)]
	binding, err := h.sessions.Issue(req.Account, req.ChainID, isAdmin, "connect")
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.sendJSON(w, http.StatusCreated, models.NewSuccessResponse(binding))
}

// HandleDisconnect revokes the caller's session key
func (h *AuthHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	binding, ok := sessionBinding(r)
	if !ok {
		h.sendError(w, http.StatusUnauthorized, "Session required")
		return
	}
	h.sessions.Revoke(binding.Key)
	h.sendSuccess(w, map[string]string{"revoked": "ok"})
}

// HandleGetWallet returns a user's registered payout address
func (h *AuthHandler) HandleGetWallet(w http.ResponseWriter, r *http.Request) {
	address, err := h.store.GetUserWalletAddress(r.Context(), r.PathValue("id"))
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, map[string]string{"user_id": r.PathValue("id"), "address": address})
}

// HandleSetWallet registers a user's payout address
func (h *AuthHandler) HandleSetWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if !chain.IsAddress(req.Address) {
		h.sendError(w, http.StatusBadRequest, "address must be a valid wallet address")
		return
	}

	if err := h.store.SetUserWallet(r.Context(), r.PathValue("id"), req.Address); err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendSuccess(w, map[string]string{"user_id": r.PathValue("id"), "address": req.Address})
}

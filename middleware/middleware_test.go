package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Malik434/TaskWiser-V2-sub000/storage/auth"
)

func TestSessionAuth(t *testing.T) {
	sessions := auth.NewSessionStore()
	sessions.Seed("tw_valid", "0x1111111111111111111111111111111111111111", false, "seed")

	var captured auth.SessionBinding
	protected := SessionAuth(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("invalid key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", "tw_bogus")
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("valid key via header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", "tw_valid")
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if captured.Account != "0x1111111111111111111111111111111111111111" {
			t.Errorf("session binding not attached to context: %+v", captured)
		}
	})

	t.Run("valid key via bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer tw_valid")
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})
}

func TestAdminOnly(t *testing.T) {
	sessions := auth.NewSessionStore()
	sessions.Seed("tw_user", "0xaaaa", false, "seed")
	sessions.Seed("tw_admin", "0xbbbb", true, "seed")

	handler := SessionAuth(sessions)(AdminOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-API-Key", "tw_user")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-admin session should be rejected, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-API-Key", "tw_admin")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("admin session should pass, got %d", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 after panic, got %d", rec.Code)
	}
}

func TestSessionIssueAndRevoke(t *testing.T) {
	sessions := auth.NewSessionStore()

	binding, err := sessions.Issue("0xcccc", "0xaa36a7", false, "connect")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if binding.Key == "" || !sessions.Validate(binding.Key) {
		t.Fatalf("issued key should validate: %+v", binding)
	}

	session := binding.Session()
	if session.Account != "0xcccc" || session.ChainID != "0xaa36a7" {
		t.Errorf("binding did not convert to session: %+v", session)
	}

	sessions.Revoke(binding.Key)
	if sessions.Validate(binding.Key) {
		t.Error("revoked key should no longer validate")
	}
}

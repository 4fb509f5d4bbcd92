package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/dibas-borborah-interface/mobile-core-v1/internal/models"
	"github.com/dibas-borborah-interface/mobile-core-v1/internal/storage"
)

const (
	maxUsernameLength = 100
	maxPasswordLength = 128
	minPasswordLength = 4
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Company  string `json:"company"`
}

type accountSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type authResponse struct {
	AccessToken string         `json:"access_token"`
	User        accountSummary `json:"user"`
}

func newAuthResponse(account models.Account, token string) authResponse {
	return authResponse{
		AccessToken: token,
		User:        accountSummary{ID: account.ID, Username: account.Username},
	}
}

// validateCredentials applies the shared login/register input rules. The
// messages are part of the client contract and must stay stable.
func validateCredentials(req credentialsRequest) error {
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Password) == "" {
		return errors.New("Valid username and password are required")
	}
	if utf8.RuneCountInString(req.Username) > maxUsernameLength ||
		utf8.RuneCountInString(req.Password) > maxPasswordLength {
		return errors.New("Invalid input length")
	}
	return nil
}

// Login authenticates an account and issues a 24h session token, returned
// both in the body and as an HttpOnly cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := validateCredentials(req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// Unknown username and wrong password produce byte-identical
	// responses so the endpoint cannot be used to enumerate accounts.
	account, err := h.Store.AuthenticateAccount(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, errors.New("Invalid credentials"))
			return
		}
		h.logger().Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("Internal server error"))
		return
	}

	token, expiresAt, err := h.Tokens.Issue(account.ID)
	if err != nil {
		h.logger().Error("issue token failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("Internal server error"))
		return
	}

	h.setSessionCookie(w, r, token, expiresAt)
	writeJSON(w, http.StatusOK, newAuthResponse(account, token))
}

// Register creates a company and its first account in two independent
// writes, then issues a session token. The writes are not transactional;
// the unique indexes are the real safety net and duplicate-key failures
// surface as conflicts.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := validateCredentials(req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, fmt.Errorf("Password must be at least %d characters long", minPasswordLength))
		return
	}

	ctx := r.Context()
	// The pre-checks give friendly conflicts; the unique indexes below are
	// what actually guarantees uniqueness under concurrent registration.
	if _, exists, err := h.Store.FindAccountByUsername(ctx, req.Username); err != nil {
		h.logger().Error("registration lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("Internal server error"))
		return
	} else if exists {
		writeError(w, http.StatusConflict, errors.New("Username already registered"))
		return
	}
	if _, exists, err := h.Store.FindCompanyByName(ctx, req.Company); err != nil {
		h.logger().Error("registration lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("Internal server error"))
		return
	} else if exists {
		writeError(w, http.StatusConflict, errors.New("Company already registered"))
		return
	}

	company, err := h.Store.CreateCompany(ctx, storage.CreateCompanyParams{Name: req.Company})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			writeError(w, http.StatusConflict, errors.New("Company already registered"))
		case errors.Is(err, storage.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err)
		default:
			h.logger().Error("create company failed", "error", err)
			writeError(w, http.StatusInternalServerError, errors.New("Internal server error"))
		}
		return
	}

	account, err := h.Store.CreateAccount(ctx, storage.CreateAccountParams{
		Username:  req.Username,
		Password:  req.Password,
		CompanyID: company.ID,
	})
	if err != nil {
		// The company row stays; there is no compensating delete.
		switch {
		case errors.Is(err, storage.ErrConflict):
			writeError(w, http.StatusConflict, errors.New("Username already registered"))
		case errors.Is(err, storage.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err)
		default:
			h.logger().Error("create account failed", "error", err)
			writeError(w, http.StatusInternalServerError, errors.New("Internal server error"))
		}
		return
	}

	token, _, err := h.Tokens.Issue(account.ID)
	if err != nil {
		h.logger().Error("issue token failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("Internal server error"))
		return
	}

	writeJSON(w, http.StatusCreated, newAuthResponse(account, token))
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dibas-borborah-interface/mobile-core-v1/internal/models"
	"github.com/dibas-borborah-interface/mobile-core-v1/internal/storage"
)

type contextKey string

const accountContextKey contextKey = "authenticatedAccount"

// Guard failure sentinels. The strings are client-facing.
var (
	ErrAuthRequired = errors.New("Authentication required")
	ErrInvalidToken = errors.New("Invalid authentication token")
)

// ContextWithAccount stores the authenticated account in the provided context.
func ContextWithAccount(ctx context.Context, account models.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, account)
}

// AccountFromContext retrieves the authenticated account from context if present.
func AccountFromContext(ctx context.Context) (models.Account, bool) {
	account, ok := ctx.Value(accountContextKey).(models.Account)
	return account, ok
}

// ExtractToken pulls the bearer token from the Authorization header. Only
// the "Bearer <token>" form is accepted.
func ExtractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return ""
	}
	return fields[1]
}

// AuthenticateRequest validates the bearer token and resolves its account.
// A missing header, a failed verification, and an account deleted after the
// token was issued all surface as authentication failures; the distinction
// is never leaked to the client.
func (h *Handler) AuthenticateRequest(r *http.Request) (models.Account, error) {
	token := ExtractToken(r)
	if token == "" {
		return models.Account{}, ErrAuthRequired
	}
	accountID, err := h.Tokens.Verify(token)
	if err != nil {
		return models.Account{}, ErrInvalidToken
	}
	account, err := h.Store.GetAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Account{}, ErrInvalidToken
		}
		return models.Account{}, fmt.Errorf("resolve account: %w", err)
	}
	return account, nil
}

func (h *Handler) requireAuthenticatedAccount(w http.ResponseWriter, r *http.Request) (models.Account, bool) {
	account, ok := AccountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrAuthRequired)
		return models.Account{}, false
	}
	return account, true
}

package storage

import (
	"context"
	"errors"

	"github.com/dibas-borborah-interface/mobile-core-v1/internal/models"
)

var (
	// ErrConflict reports a duplicate username or company name. The unique
	// constraint in the backing store is the actual safety net; duplicate-key
	// failures map here rather than surfacing as generic errors.
	ErrConflict = errors.New("already registered")

	// ErrNotFound reports a missing account, company, or media row.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials is returned for both an unknown username and a
	// wrong password so the two cases stay indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidInput marks a field-level validation failure. Callers match
	// it with errors.Is to map the failure to a client error.
	ErrInvalidInput = errors.New("invalid input")
)

// CreateAccountParams carries the fields required to persist a new account.
// Password is the plaintext; the repository hashes it before the write.
type CreateAccountParams struct {
	Username  string
	Password  string
	CompanyID string
}

// CreateCompanyParams carries the fields required to persist a new company.
type CreateCompanyParams struct {
	Name        string
	Description string
}

// CreateMediaParams carries the metadata recorded after a successful object
// storage write.
type CreateMediaParams struct {
	Kind      models.MediaKind
	Title     string
	Link      string
	CompanyID string
	MimeType  string
	SizeBytes int64
	ObjectKey string
}

// Repository exposes the datastore operations required by the API handlers.
type Repository interface {
	Ping(ctx context.Context) error

	CreateCompany(ctx context.Context, params CreateCompanyParams) (models.Company, error)
	GetCompany(ctx context.Context, id string) (models.Company, error)
	FindCompanyByName(ctx context.Context, name string) (models.Company, bool, error)

	CreateAccount(ctx context.Context, params CreateAccountParams) (models.Account, error)
	GetAccount(ctx context.Context, id string) (models.Account, error)
	FindAccountByUsername(ctx context.Context, username string) (models.Account, bool, error)
	AuthenticateAccount(ctx context.Context, username, password string) (models.Account, error)

	CreateMedia(ctx context.Context, params CreateMediaParams) (models.Media, error)
	ListMediaByCompany(ctx context.Context, kind models.MediaKind, companyID string) ([]models.Media, error)

	Close(ctx context.Context) error
}

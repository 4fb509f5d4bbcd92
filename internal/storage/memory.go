package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dibas-borborah-interface/mobile-core-v1/internal/auth"
	"github.com/dibas-borborah-interface/mobile-core-v1/internal/models"
)

// MemoryRepository keeps all records in process memory. It backs tests and
// local development; production deployments use the Postgres driver.
type MemoryRepository struct {
	mu        sync.RWMutex
	accounts  map[string]models.Account
	companies map[string]models.Company
	media     map[string]models.Media
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:  make(map[string]models.Account),
		companies: make(map[string]models.Company),
		media:     make(map[string]models.Media),
	}
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemoryRepository) Close(ctx context.Context) error {
	return nil
}

func (r *MemoryRepository) CreateCompany(ctx context.Context, params CreateCompanyParams) (models.Company, error) {
	name := strings.TrimSpace(params.Name)
	if err := validateCompanyName(name); err != nil {
		return models.Company{}, err
	}
	if err := validateCompanyDescription(params.Description); err != nil {
		return models.Company{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.companies {
		if strings.EqualFold(existing.Name, name) {
			return models.Company{}, fmt.Errorf("company %q: %w", name, ErrConflict)
		}
	}
	company := models.Company{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(params.Description),
		CreatedAt:   time.Now().UTC(),
	}
	r.companies[company.ID] = company
	return company, nil
}

func (r *MemoryRepository) GetCompany(ctx context.Context, id string) (models.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	company, ok := r.companies[id]
	if !ok {
		return models.Company{}, fmt.Errorf("company %s: %w", id, ErrNotFound)
	}
	return company, nil
}

func (r *MemoryRepository) FindCompanyByName(ctx context.Context, name string) (models.Company, bool, error) {
	trimmed := strings.TrimSpace(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, company := range r.companies {
		if strings.EqualFold(company.Name, trimmed) {
			return company, true, nil
		}
	}
	return models.Company{}, false, nil
}

func (r *MemoryRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (models.Account, error) {
	username := strings.TrimSpace(params.Username)
	if err := validateUsername(username); err != nil {
		return models.Account{}, err
	}
	if params.CompanyID == "" {
		return models.Account{}, fmt.Errorf("companyID is required")
	}
	hash, err := auth.HashPassword(params.Password)
	if err != nil {
		return models.Account{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.companies[params.CompanyID]; !ok {
		return models.Account{}, fmt.Errorf("company %s: %w", params.CompanyID, ErrNotFound)
	}
	for _, existing := range r.accounts {
		if strings.EqualFold(existing.Username, username) {
			return models.Account{}, fmt.Errorf("username %q: %w", username, ErrConflict)
		}
	}
	account := models.Account{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		CompanyID:    params.CompanyID,
		CreatedAt:    time.Now().UTC(),
	}
	r.accounts[account.ID] = account
	return account, nil
}

func (r *MemoryRepository) GetAccount(ctx context.Context, id string) (models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.accounts[id]
	if !ok {
		return models.Account{}, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	return account, nil
}

func (r *MemoryRepository) FindAccountByUsername(ctx context.Context, username string) (models.Account, bool, error) {
	trimmed := strings.TrimSpace(username)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, account := range r.accounts {
		if strings.EqualFold(account.Username, trimmed) {
			return account, true, nil
		}
	}
	return models.Account{}, false, nil
}

func (r *MemoryRepository) AuthenticateAccount(ctx context.Context, username, password string) (models.Account, error) {
	account, ok, err := r.FindAccountByUsername(ctx, username)
	if err != nil {
		return models.Account{}, err
	}
	if !ok {
		return models.Account{}, ErrInvalidCredentials
	}
	if err := auth.VerifyPassword(account.PasswordHash, password); err != nil {
		return models.Account{}, ErrInvalidCredentials
	}
	return account, nil
}

func (r *MemoryRepository) CreateMedia(ctx context.Context, params CreateMediaParams) (models.Media, error) {
	if err := validateMediaParams(params); err != nil {
		return models.Media{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.companies[params.CompanyID]; !ok {
		return models.Media{}, fmt.Errorf("company %s: %w", params.CompanyID, ErrNotFound)
	}
	media := models.Media{
		ID:        uuid.NewString(),
		Kind:      params.Kind,
		Title:     params.Title,
		Link:      params.Link,
		CompanyID: params.CompanyID,
		MimeType:  params.MimeType,
		SizeBytes: params.SizeBytes,
		ObjectKey: params.ObjectKey,
		CreatedAt: time.Now().UTC(),
	}
	r.media[media.ID] = media
	return media, nil
}

func (r *MemoryRepository) ListMediaByCompany(ctx context.Context, kind models.MediaKind, companyID string) ([]models.Media, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Media
	for _, media := range r.media {
		if media.CompanyID != companyID {
			continue
		}
		if kind != "" && media.Kind != kind {
			continue
		}
		out = append(out, media)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dibas-borborah-interface/mobile-core-v1/internal/auth"
	"github.com/dibas-borborah-interface/mobile-core-v1/internal/models"
)

const pgUniqueViolation = "23505"

// PostgresRepository persists accounts, companies, and media rows to
// Postgres, letting multiple API replicas share state. Unique indexes on
// account usernames and company names back the registration conflict
// semantics under concurrent writes.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository opens a pooled Postgres connection and ensures the
// schema exists.
func NewPostgresRepository(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresRepository, error) {
	cfg := PostgresConfig{DSN: strings.TrimSpace(dsn)}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	repo := &PostgresRepository{pool: pool}
	if err := repo.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *PostgresRepository) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS companies (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS companies_name_key ON companies (lower(name))`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id UUID PRIMARY KEY,
			username TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			company_id UUID NOT NULL REFERENCES companies(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS accounts_username_key ON accounts (lower(username))`,
		`CREATE TABLE IF NOT EXISTS media (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			link TEXT NOT NULL,
			company_id UUID NOT NULL REFERENCES companies(id),
			mimetype TEXT NOT NULL,
			size_bytes BIGINT NOT NULL,
			object_key TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS media_company_kind_idx ON media (company_id, kind)`,
	}
	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("postgres pool not configured")
	}
	return r.pool.Ping(ctx)
}

// Close releases the connection pool, bounded by the provided context.
func (r *PostgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *PostgresRepository) CreateCompany(ctx context.Context, params CreateCompanyParams) (models.Company, error) {
	name := strings.TrimSpace(params.Name)
	if err := validateCompanyName(name); err != nil {
		return models.Company{}, err
	}
	if err := validateCompanyDescription(params.Description); err != nil {
		return models.Company{}, err
	}
	company := models.Company{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(params.Description),
		CreatedAt:   time.Now().UTC(),
	}
	_, err := r.pool.Exec(ctx, `
INSERT INTO companies (id, name, description, created_at)
VALUES ($1, $2, $3, $4)
`, company.ID, company.Name, company.Description, company.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Company{}, fmt.Errorf("company %q: %w", name, ErrConflict)
		}
		return models.Company{}, fmt.Errorf("insert company: %w", err)
	}
	return company, nil
}

func (r *PostgresRepository) GetCompany(ctx context.Context, id string) (models.Company, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, name, description, created_at FROM companies WHERE id = $1
`, id)
	return scanCompany(row, id)
}

func (r *PostgresRepository) FindCompanyByName(ctx context.Context, name string) (models.Company, bool, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, name, description, created_at FROM companies WHERE lower(name) = lower($1)
`, strings.TrimSpace(name))
	company, err := scanCompany(row, name)
	if errors.Is(err, ErrNotFound) {
		return models.Company{}, false, nil
	}
	if err != nil {
		return models.Company{}, false, err
	}
	return company, true, nil
}

func (r *PostgresRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (models.Account, error) {
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
	account := models.Account{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		CompanyID:    params.CompanyID,
		CreatedAt:    time.Now().UTC(),
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO accounts (id, username, password_hash, company_id, created_at)
VALUES ($1, $2, $3, $4, $5)
`, account.ID, account.Username, account.PasswordHash, account.CompanyID, account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Account{}, fmt.Errorf("username %q: %w", username, ErrConflict)
		}
		return models.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return account, nil
}

func (r *PostgresRepository) GetAccount(ctx context.Context, id string) (models.Account, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, username, password_hash, company_id, created_at FROM accounts WHERE id = $1
`, id)
	return scanAccount(row, id)
}

func (r *PostgresRepository) FindAccountByUsername(ctx context.Context, username string) (models.Account, bool, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, username, password_hash, company_id, created_at
FROM accounts WHERE lower(username) = lower($1)
`, strings.TrimSpace(username))
	account, err := scanAccount(row, username)
	if errors.Is(err, ErrNotFound) {
		return models.Account{}, false, nil
	}
	if err != nil {
		return models.Account{}, false, err
	}
	return account, true, nil
}

func (r *PostgresRepository) AuthenticateAccount(ctx context.Context, username, password string) (models.Account, error) {
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

func (r *PostgresRepository) CreateMedia(ctx context.Context, params CreateMediaParams) (models.Media, error) {
	if err := validateMediaParams(params); err != nil {
		return models.Media{}, err
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
	_, err := r.pool.Exec(ctx, `
INSERT INTO media (id, kind, title, link, company_id, mimetype, size_bytes, object_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`, media.ID, string(media.Kind), media.Title, media.Link, media.CompanyID, media.MimeType, media.SizeBytes, media.ObjectKey, media.CreatedAt)
	if err != nil {
		return models.Media{}, fmt.Errorf("insert media: %w", err)
	}
	return media, nil
}

func (r *PostgresRepository) ListMediaByCompany(ctx context.Context, kind models.MediaKind, companyID string) ([]models.Media, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, kind, title, link, company_id, mimetype, size_bytes, object_key, created_at
FROM media
WHERE company_id = $1 AND ($2 = '' OR kind = $2)
ORDER BY created_at, id
`, companyID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var out []models.Media
	for rows.Next() {
		var media models.Media
		var kindValue string
		if err := rows.Scan(&media.ID, &kindValue, &media.Title, &media.Link, &media.CompanyID, &media.MimeType, &media.SizeBytes, &media.ObjectKey, &media.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		media.Kind = models.MediaKind(kindValue)
		out = append(out, media)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	return out, nil
}

func scanCompany(row pgx.Row, ref string) (models.Company, error) {
	var company models.Company
	if err := row.Scan(&company.ID, &company.Name, &company.Description, &company.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Company{}, fmt.Errorf("company %s: %w", ref, ErrNotFound)
		}
		return models.Company{}, err
	}
	return company, nil
}

func scanAccount(row pgx.Row, ref string) (models.Account, error) {
	var account models.Account
	if err := row.Scan(&account.ID, &account.Username, &account.PasswordHash, &account.CompanyID, &account.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, fmt.Errorf("account %s: %w", ref, ErrNotFound)
		}
		return models.Account{}, err
	}
	return account, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dibas-borborah-interface/mobile-core-v1/internal/models"
)

func newSeededRepository(t *testing.T) (*MemoryRepository, models.Company, models.Account) {
	t.Helper()
	repo := NewMemoryRepository()
	company, err := repo.CreateCompany(context.Background(), CreateCompanyParams{Name: "Acme Media"})
	if err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	account, err := repo.CreateAccount(context.Background(), CreateAccountParams{
		Username:  "uploader",
		Password:  "supersecret",
		CompanyID: company.ID,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return repo, company, account
}

func TestCreateCompanyConflictIsCaseInsensitive(t *testing.T) {
	repo, _, _ := newSeededRepository(t)
	_, err := repo.CreateCompany(context.Background(), CreateCompanyParams{Name: "ACME MEDIA"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateAccountConflictIsCaseInsensitive(t *testing.T) {
	repo, company, _ := newSeededRepository(t)
	_, err := repo.CreateAccount(context.Background(), CreateAccountParams{
		Username:  "UPLOADER",
		Password:  "anotherpass",
		CompanyID: company.ID,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateAccountRequiresExistingCompany(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.CreateAccount(context.Background(), CreateAccountParams{
		Username:  "orphan",
		Password:  "supersecret",
		CompanyID: "missing",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateAccountStoresHashedPassword(t *testing.T) {
	_, _, account := newSeededRepository(t)
	if account.PasswordHash == "supersecret" {
		t.Fatal("expected stored password to be hashed")
	}
	if !strings.HasPrefix(account.PasswordHash, "$2") {
		t.Fatalf("expected bcrypt digest, got %q", account.PasswordHash)
	}
}

func TestValidationFailuresMatchErrInvalidInput(t *testing.T) {
	repo, company, _ := newSeededRepository(t)
	ctx := context.Background()
	cases := []struct {
		name string
		run  func() error
	}{
		{
			name: "short username",
			run: func() error {
				_, err := repo.CreateAccount(ctx, CreateAccountParams{Username: "ab", Password: "supersecret", CompanyID: company.ID})
				return err
			},
		},
		{
			name: "long username",
			run: func() error {
				_, err := repo.CreateAccount(ctx, CreateAccountParams{Username: strings.Repeat("x", 51), Password: "supersecret", CompanyID: company.ID})
				return err
			},
		},
		{
			name: "short company name",
			run: func() error {
				_, err := repo.CreateCompany(ctx, CreateCompanyParams{Name: "x"})
				return err
			},
		},
		{
			name: "long company description",
			run: func() error {
				_, err := repo.CreateCompany(ctx, CreateCompanyParams{Name: "Fine Name", Description: strings.Repeat("d", 501)})
				return err
			},
		},
		{
			name: "media without title",
			run: func() error {
				_, err := repo.CreateMedia(ctx, CreateMediaParams{Kind: models.MediaKindImage, Link: "https://example.com/x", CompanyID: company.ID, MimeType: "image/png"})
				return err
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if err == nil || err.Error() == ErrInvalidInput.Error() {
				t.Fatalf("expected descriptive message, got %v", err)
			}
		})
	}
}

func TestAuthenticateAccountCollapsesFailures(t *testing.T) {
	repo, _, _ := newSeededRepository(t)
	ctx := context.Background()

	if _, err := repo.AuthenticateAccount(ctx, "uploader", "supersecret"); err != nil {
		t.Fatalf("expected login to succeed, got %v", err)
	}
	if _, err := repo.AuthenticateAccount(ctx, "nobody", "supersecret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
	if _, err := repo.AuthenticateAccount(ctx, "uploader", "wrongpass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
}

func TestFindAccountByUsernameTrimsAndIgnoresCase(t *testing.T) {
	repo, _, account := newSeededRepository(t)
	found, ok, err := repo.FindAccountByUsername(context.Background(), "  Uploader ")
	if err != nil {
		t.Fatalf("FindAccountByUsername: %v", err)
	}
	if !ok || found.ID != account.ID {
		t.Fatalf("expected to find account %s, got ok=%v id=%s", account.ID, ok, found.ID)
	}
}

func TestListMediaByCompanyFiltersKindAndOrders(t *testing.T) {
	repo, company, _ := newSeededRepository(t)
	ctx := context.Background()
	other, err := repo.CreateCompany(ctx, CreateCompanyParams{Name: "Other Co"})
	if err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}

	seed := []CreateMediaParams{
		{Kind: models.MediaKindImage, Title: "a.png", Link: "https://cdn/a.png", CompanyID: company.ID, MimeType: "image/png", SizeBytes: 10},
		{Kind: models.MediaKindVideo, Title: "b.mp4", Link: "https://cdn/b.mp4", CompanyID: company.ID, MimeType: "video/mp4", SizeBytes: 20},
		{Kind: models.MediaKindImage, Title: "c.gif", Link: "https://cdn/c.gif", CompanyID: other.ID, MimeType: "image/gif", SizeBytes: 30},
	}
	for _, params := range seed {
		if _, err := repo.CreateMedia(ctx, params); err != nil {
			t.Fatalf("CreateMedia %s: %v", params.Title, err)
		}
	}

	images, err := repo.ListMediaByCompany(ctx, models.MediaKindImage, company.ID)
	if err != nil {
		t.Fatalf("ListMediaByCompany: %v", err)
	}
	if len(images) != 1 || images[0].Title != "a.png" {
		t.Fatalf("unexpected image listing: %+v", images)
	}

	all, err := repo.ListMediaByCompany(ctx, "", company.ID)
	if err != nil {
		t.Fatalf("ListMediaByCompany: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected two media rows for company, got %d", len(all))
	}
}

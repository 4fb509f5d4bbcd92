package models

import "time"

// Account is an authenticable identity. Every account belongs to exactly one
// company; media uploaded by the account is attributed to that company, not
// to the account itself.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	CompanyID    string    `json:"companyId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Company is the tenant boundary. Company names are globally unique.
type Company struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MediaKind distinguishes the two media collections. Records are otherwise
// structurally identical.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// Media is the metadata row written after a successful object-storage upload.
// Rows are immutable once created.
type Media struct {
	ID        string    `json:"id"`
	Kind      MediaKind `json:"kind"`
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	CompanyID string    `json:"companyId"`
	MimeType  string    `json:"mimetype"`
	SizeBytes int64     `json:"size"`
	ObjectKey string    `json:"objectKey,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

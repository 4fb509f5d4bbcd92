package storage

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// invalidInputError keeps the human-readable message while matching
// ErrInvalidInput under errors.Is.
type invalidInputError struct{ msg string }

func (e invalidInputError) Error() string { return e.msg }

func (e invalidInputError) Is(target error) bool { return target == ErrInvalidInput }

func invalidInputf(format string, args ...interface{}) error {
	return invalidInputError{msg: fmt.Sprintf(format, args...)}
}

// Field limits mirror the schema constraints enforced by the database so both
// drivers reject the same inputs before touching the backing store.
const (
	usernameMinLength    = 3
	usernameMaxLength    = 50
	companyNameMinLength = 2
	companyNameMaxLength = 100
	descriptionMaxLength = 500
)

func validateUsername(username string) error {
	length := utf8.RuneCountInString(username)
	if length < usernameMinLength || length > usernameMaxLength {
		return invalidInputf("username must be between %d and %d characters", usernameMinLength, usernameMaxLength)
	}
	return nil
}

func validateCompanyName(name string) error {
	length := utf8.RuneCountInString(name)
	if length < companyNameMinLength || length > companyNameMaxLength {
		return invalidInputf("company name must be between %d and %d characters", companyNameMinLength, companyNameMaxLength)
	}
	return nil
}

func validateCompanyDescription(description string) error {
	if utf8.RuneCountInString(description) > descriptionMaxLength {
		return invalidInputf("company description must be at most %d characters", descriptionMaxLength)
	}
	return nil
}

func validateMediaParams(params CreateMediaParams) error {
	if strings.TrimSpace(params.Title) == "" {
		return invalidInputf("media title is required")
	}
	if strings.TrimSpace(params.Link) == "" {
		return invalidInputf("media link is required")
	}
	if params.CompanyID == "" {
		return invalidInputf("companyID is required")
	}
	if strings.TrimSpace(params.MimeType) == "" {
		return invalidInputf("media mimetype is required")
	}
	if params.SizeBytes < 0 {
		return invalidInputf("media size must not be negative")
	}
	return nil
}

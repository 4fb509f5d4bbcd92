package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// passwordHashCost pins the bcrypt work factor. Raising it invalidates no
// existing hashes; bcrypt encodes the cost alongside the digest.
const passwordHashCost = 10

// ErrPasswordMismatch is returned when a candidate password does not match
// the stored digest.
var ErrPasswordMismatch = errors.New("password mismatch")

// HashPassword derives a salted one-way digest of the plaintext password.
// It fails only when the underlying entropy source or resource limits do.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares the candidate against the stored digest in constant
// time. A mismatch yields ErrPasswordMismatch; any other error indicates a
// malformed digest.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return fmt.Errorf("verify password: empty digest")
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	return nil
}

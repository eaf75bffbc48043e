package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const passwordHashCost = 10

var (
	// ErrPasswordMismatch indicates the supplied password does not match the stored hash.
	ErrPasswordMismatch = errors.New("auth: password mismatch")
	errEmptyPassword    = errors.New("auth: password must not be empty")
)

// HashPassword derives a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ComparePassword checks password against a stored bcrypt hash.
func ComparePassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}

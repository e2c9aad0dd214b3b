package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrWeakSecret = errors.New("secret does not meet the minimum policy")

const MinSecretLength = 8

// HashPassword hashes a plain text secret with bcrypt.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)

	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// CheckPassword compares a bcrypt hash with a plaintext secret.
// bcrypt's comparison is constant-time over the hash.
func CheckPassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}

// ValidateNewSecret enforces the minimum policy for freshly set secrets.
func ValidateNewSecret(plain string) error {
	if len(plain) < MinSecretLength {
		return ErrWeakSecret
	}

	return nil
}

package security

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const maxEmailLength = 254

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// SanitizeEmail normalizes a login email: trimmed, lowercased, length-capped.
// Returns false when the result cannot possibly be an address.
func SanitizeEmail(raw string) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if len(email) > maxEmailLength {
		email = email[:maxEmailLength]
	}
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 {
		return "", false
	}
	return email, true
}

// internal/utils/crypto.go
package utils

import (
	"crypto/rand"
	"math/big"
)

const base62Charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateRandomString returns a crypto-random base62 string.
func GenerateRandomString(length int) (string, error) {
	b := make([]byte, length)

	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base62Charset))))
		if err != nil {
			return "", err
		}
		b[i] = base62Charset[n.Int64()]
	}

	return string(b), nil
}

// GenerateVisitorID returns an opaque id for the visitor cookie.
func GenerateVisitorID() (string, error) {
	return GenerateRandomString(32)
}

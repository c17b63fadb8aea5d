package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

func GenerateRandomKey(length int) (string, error) {
	b := make([]byte, length)
	// err == nil only if we read len(b) bytes.
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashKey is the stored form of an API key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// KeysEqual compares two secrets in constant time.
func KeysEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(HashKey(a)), []byte(HashKey(b))) == 1
}

package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
)

var (
	ErrKeyLength        = errors.New("encryption key must be 16, 24 or 32 bytes")
	ErrCiphertextLength = errors.New("ciphertext too short")
)

func newGCM(key []byte) (cipher.AEAD, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, ErrKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext with AES-GCM and returns base64(nonce|ciphertext).
func Encrypt(plaintext, key []byte) (string, error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		slog.Info(err.Error())
		return "", err
	}

	sealed := aesGCM.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func Decrypt(encryptedData string, key []byte) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encryptedData)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	aesGCM, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize {
		return "", ErrCiphertextLength
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	return string(plaintext), nil
}

package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"

	"agromind/internal/constants"

	"golang.org/x/crypto/pbkdf2"
)

const (
	envEnableEncryption = "AGROMIND_ENABLE_ENCRYPTION"
	envEncryptionSecret = "AGROMIND_ENCRYPTION_SECRET"

	keySize          = 32 // AES-256
	nonceSize        = 12
	pbkdf2Iterations = 100000
)

// encryptor protects phone numbers at rest. A nil gcm means encryption is off
// and every method passes values through.
type encryptor struct {
	gcm cipher.AEAD
}

func NewEncryptor() (*encryptor, error) {
	if !isEncryptionEnabled() {
		return &encryptor{}, nil
	}

	key, err := deriveKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &encryptor{gcm: gcm}, nil
}

func (e *encryptor) Enabled() bool {
	return e.gcm != nil
}

func (e *encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || e.gcm == nil {
		return plaintext, nil
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := e.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(append(nonce, ciphertext...)), nil
}

func (e *encryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" || e.gcm == nil {
		return ciphertext, nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

// LookupKey returns a deterministic value for equality lookups: the phone
// itself when encryption is off, otherwise ciphertext sealed with a nonce
// derived from the plaintext.
func (e *encryptor) LookupKey(plaintext string) string {
	if plaintext == "" || e.gcm == nil {
		return plaintext
	}

	hash := sha256.Sum256([]byte(plaintext + constants.EncryptionLookupSalt))
	nonce := hash[:nonceSize]

	// #nosec G407 - deterministic nonce needed for lookups
	ciphertext := e.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(append(nonce, ciphertext...))
}

func deriveKey() ([]byte, error) {
	secret := os.Getenv(envEncryptionSecret)
	if secret == "" {
		return nil, fmt.Errorf("%s environment variable is required when encryption is enabled", envEncryptionSecret)
	}

	if len(secret) < 32 {
		return nil, fmt.Errorf("encryption secret must be at least 32 characters long")
	}

	salt := []byte(constants.EncryptionSalt)
	return pbkdf2.Key([]byte(secret), salt, pbkdf2Iterations, keySize, sha256.New), nil
}

func isEncryptionEnabled() bool {
	return os.Getenv(envEnableEncryption) == "true"
}

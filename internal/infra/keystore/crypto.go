package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/EmerBV/figrclub-sub001/internal/infra/security"
)

const (
	keyLength   = 32
	nonceLength = 12
	saltLength  = 16
)

// seal serializes v to JSON and encrypts it with AES-256-GCM under a key
// derived from the device secret and a fresh salt. The salt and nonce are
// prepended to the ciphertext so the blob is self-contained.
func seal(v any, secret []byte) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	nonce := make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	aead, err := newAEAD(secret, salt)
	if err != nil {
		return nil, err
	}

	blob := make([]byte, 0, saltLength+nonceLength+len(plaintext)+aead.Overhead())
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = aead.Seal(blob, nonce, plaintext, nil)

	return blob, nil
}

// open decrypts a blob produced by seal and unmarshals it into v.
func open(blob, secret []byte, v any) error {
	if len(blob) < saltLength+nonceLength {
		return fmt.Errorf("sealed blob too short")
	}

	salt := blob[:saltLength]
	nonce := blob[saltLength : saltLength+nonceLength]
	ciphertext := blob[saltLength+nonceLength:]

	aead, err := newAEAD(secret, salt)
	if err != nil {
		return err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("decrypt payload: %w", err)
	}

	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	return nil
}

func newAEAD(secret, salt []byte) (cipher.AEAD, error) {
	key := security.DeriveKey(secret, salt, keyLength)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	return aead, nil
}

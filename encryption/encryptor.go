package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Constants for encryption parameters
const (
	iterationCount = 10000 // PBKDF2 iterations
	keyLength      = 32    // 256 bits for AES-256
	saltLength     = 16    // 128 bits for salt
)

var (
	ErrInvalidKey    = errors.New("invalid key or corrupted ciphertext")
	ErrInvalidFormat = errors.New("not an encrypted clip")
)

type Encryptor interface {
	// Encrypt encrypts the given data using the provided key
	Encrypt(data []byte, key []byte) ([]byte, error)
	// Decrypt decrypts the given data using the provided key
	Decrypt(data []byte, key []byte) ([]byte, error)
	// GenerateSalt generates a new salt for key derivation
	GenerateSalt() ([]byte, error)
	// DeriveKeyFromSecret derives an encryption key from a secret and salt
	DeriveKeyFromSecret(secret []byte, salt []byte) ([]byte, error)
}

// AESEncryptor implements the Encryptor interface using AES-GCM
type AESEncryptor struct{}

func NewAESEncryptor() *AESEncryptor {
	return &AESEncryptor{}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != keyLength {
		return nil, errors.New("invalid key length")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt encrypts data using AES-GCM; the nonce is prepended to the ciphertext
func (e *AESEncryptor) Encrypt(data []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, data, nil), nil
}

// Decrypt decrypts data produced by Encrypt
func (e *AESEncryptor) Decrypt(data []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return plaintext, nil
}

func (e *AESEncryptor) GenerateSalt() ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// DeriveKeyFromSecret derives an encryption key from a secret and salt using PBKDF2
func (e *AESEncryptor) DeriveKeyFromSecret(secret []byte, salt []byte) ([]byte, error) {
	if len(salt) == 0 {
		return nil, errors.New("salt cannot be empty")
	}
	return pbkdf2.Key(secret, salt, iterationCount, keyLength, sha256.New), nil
}

package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
)

// EncryptedExtension is appended to the name of an encrypted clip
const EncryptedExtension = ".enc"

// file layout: magic | salt | nonce | ciphertext
var fileMagic = []byte("DBCLIP1\x00")

// ClipEncryptor encrypts finished clip files at rest with a key derived from a passphrase.
// Every file gets its own salt.
type ClipEncryptor struct {
	encryptor  Encryptor
	passphrase []byte
}

func NewClipEncryptor(passphrase string) (*ClipEncryptor, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase cannot be empty")
	}
	return &ClipEncryptor{
		encryptor:  NewAESEncryptor(),
		passphrase: []byte(passphrase),
	}, nil
}

// EncryptFile writes <path>.enc and removes the plaintext file
func (c *ClipEncryptor) EncryptFile(path string) (string, error) {
	plaintext, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read clip: %w", err)
	}

	salt, err := c.encryptor.GenerateSalt()
	if err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	key, err := c.encryptor.DeriveKeyFromSecret(c.passphrase, salt)
	if err != nil {
		return "", fmt.Errorf("failed to derive key: %w", err)
	}
	ciphertext, err := c.encryptor.Encrypt(plaintext, key)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt clip: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(fileMagic) + len(salt) + len(ciphertext))
	buf.Write(fileMagic)
	buf.Write(salt)
	buf.Write(ciphertext)

	outPath := path + EncryptedExtension
	if err := os.WriteFile(outPath, buf.Bytes(), 0600); err != nil {
		return "", fmt.Errorf("failed to write encrypted clip: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return outPath, fmt.Errorf("failed to remove plaintext clip: %w", err)
	}
	return outPath, nil
}

// DecryptFile decrypts an encrypted clip to outPath. An empty outPath strips the .enc suffix.
func (c *ClipEncryptor) DecryptFile(path, outPath string) (string, error) {
	if outPath == "" {
		outPath = DecryptedPath(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read encrypted clip: %w", err)
	}
	if len(data) < len(fileMagic)+saltLength || !bytes.Equal(data[:len(fileMagic)], fileMagic) {
		return "", ErrInvalidFormat
	}

	salt := data[len(fileMagic) : len(fileMagic)+saltLength]
	key, err := c.encryptor.DeriveKeyFromSecret(c.passphrase, salt)
	if err != nil {
		return "", fmt.Errorf("failed to derive key: %w", err)
	}
	plaintext, err := c.encryptor.Decrypt(data[len(fileMagic)+saltLength:], key)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt %s: %w", path, err)
	}

	if err := os.WriteFile(outPath, plaintext, 0600); err != nil {
		return "", fmt.Errorf("failed to write decrypted clip: %w", err)
	}
	return outPath, nil
}

// DecryptedPath returns path without its .enc suffix, or path + ".dec" when there is none
func DecryptedPath(path string) string {
	if trimmed, ok := strings.CutSuffix(path, EncryptedExtension); ok {
		return trimmed
	}
	return path + ".dec"
}

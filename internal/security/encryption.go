// Package security provides at-rest encryption for session files and
// constant-time token verification for the gateway.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const encPrefix = "enc:"

// SessionCipher encrypts session content with AES-256-GCM. The key is derived
// from a passphrase via Argon2id. Each encrypted value embeds its salt, so
// content written by one process can be decrypted by a later one with the same
// passphrase.
type SessionCipher struct {
	passphrase []byte

	mu       sync.Mutex
	keyCache map[string][]byte // salt -> derived key
}

// NewSessionCipher creates a cipher from a passphrase.
// Returns an error if the passphrase is empty.
func NewSessionCipher(passphrase string) (*SessionCipher, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase must not be empty")
	}
	return &SessionCipher{
		passphrase: []byte(passphrase),
		keyCache:   make(map[string][]byte),
	}, nil
}

// Encrypt encrypts plaintext and returns "enc:" + base64(salt + nonce + ciphertext).
func (c *SessionCipher) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := c.aeadFor(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	blob := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)
	return encPrefix + base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt decrypts a value produced by Encrypt. Input without the "enc:"
// prefix is returned as-is, so plaintext files written before encryption was
// enabled still load.
func (c *SessionCipher) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, encPrefix) {
		return ciphertext, nil // plaintext passthrough
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, encPrefix))
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	if len(data) < 16 {
		return "", fmt.Errorf("ciphertext too short")
	}
	salt, rest := data[:16], data[16:]

	gcm, err := c.aeadFor(salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := rest[:nonceSize], rest[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// IsEncrypted checks if a string has the "enc:" prefix.
func (c *SessionCipher) IsEncrypted(s string) bool {
	return strings.HasPrefix(s, encPrefix)
}

// Zeroize clears key material from memory. Call on shutdown.
func (c *SessionCipher) Zeroize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.passphrase {
		c.passphrase[i] = 0
	}
	for _, key := range c.keyCache {
		for i := range key {
			key[i] = 0
		}
	}
	c.keyCache = make(map[string][]byte)
}

// aeadFor returns an AES-GCM instance keyed for the given salt. Derived keys
// are cached: Argon2id is deliberately slow, and sessions re-encrypt on every
// save.
func (c *SessionCipher) aeadFor(salt []byte) (cipher.AEAD, error) {
	c.mu.Lock()
	key, ok := c.keyCache[string(salt)]
	if !ok {
		key = argon2.IDKey(c.passphrase, salt, 1, 64*1024, 4, 32)
		c.keyCache[string(salt)] = key
	}
	c.mu.Unlock()

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// TokenDigest returns the hex-free base64 SHA-256 digest of a token. Gateway
// auth compares digests so raw tokens never sit in long-lived maps.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// VerifyToken compares a presented token against a stored digest in constant
// time.
func VerifyToken(token, digest string) bool {
	want, err := base64.StdEncoding.DecodeString(digest)
	if err != nil {
		return false
	}
	got := sha256.Sum256([]byte(token))
	return subtle.ConstantTimeCompare(got[:], want) == 1
}

// Package fieldcrypt encrypts free-text columns with AES-256-CBC.
//
// Stored values are base64(hex(iv) + ":" + hex(ciphertext)). Rows written before
// encryption was introduced hold plaintext; SafeDecrypt returns those unchanged.
package fieldcrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// DevelopmentSecret is used when no secret is configured outside production.
const DevelopmentSecret = "medical-ai-default-key-for-development"

const ivHexLength = aes.BlockSize * 2

var (
	ErrMalformedEnvelope = errors.New("fieldcrypt: malformed envelope")
	ErrBadPadding        = errors.New("fieldcrypt: bad padding")

	base64Shape = regexp.MustCompile(`^[A-Za-z0-9+/]*={0,2}$`)
	hexShape    = regexp.MustCompile(`^[0-9a-fA-F]+$`)
)

type Cipher struct {
	block   cipher.Block
	devKey  bool
	entropy io.Reader
}

// New derives the AES-256 key as sha256(secret). An empty secret selects
// DevelopmentSecret unless required is set.
func New(secret string, required bool) (*Cipher, error) {
	devKey := false
	if secret == "" {
		if required {
			return nil, errors.New("fieldcrypt: encryption secret is required")
		}
		secret = DevelopmentSecret
		devKey = true
	}

	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: init cipher: %w", err)
	}
	return &Cipher{block: block, devKey: devKey, entropy: rand.Reader}, nil
}

func (c *Cipher) UsesDevelopmentKey() bool {
	return c.devKey
}

// Encrypt seals plaintext with a fresh IV. Empty input stays empty.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	iv, ciphertext, err := c.seal([]byte(plaintext))
	if err != nil {
		return "", err
	}
	envelope := hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext)
	return base64.StdEncoding.EncodeToString([]byte(envelope)), nil
}

func (c *Cipher) Decrypt(value string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	parts := strings.Split(string(raw), ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: expected 2 segments, got %d", ErrMalformedEnvelope, len(parts))
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != aes.BlockSize {
		return "", fmt.Errorf("%w: invalid iv", ErrMalformedEnvelope)
	}
	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: invalid ciphertext", ErrMalformedEnvelope)
	}

	plaintext, err := c.open(iv, ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// LooksEncrypted reports whether value has the envelope shape. It is a heuristic:
// a plaintext value that happens to match is indistinguishable from ciphertext.
func LooksEncrypted(value string) bool {
	if value == "" || !base64Shape.MatchString(value) {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return false
	}
	parts := strings.Split(string(raw), ":")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) == ivHexLength && hexShape.MatchString(parts[0])
}

func (c *Cipher) LooksEncrypted(value string) bool {
	return LooksEncrypted(value)
}

// SafeDecrypt never fails: legacy plaintext and undecryptable values are returned verbatim.
func (c *Cipher) SafeDecrypt(value string) string {
	if value == "" || !LooksEncrypted(value) {
		return value
	}
	plaintext, err := c.Decrypt(value)
	if err != nil {
		slog.Warn("field_decrypt_failed", "error", err, "length", len(value))
		return value
	}
	return plaintext
}

// SealBytes encrypts binary data as iv || ciphertext.
func (c *Cipher) SealBytes(data []byte) ([]byte, error) {
	iv, ciphertext, err := c.seal(data)
	if err != nil {
		return nil, err
	}
	return append(iv, ciphertext...), nil
}

func (c *Cipher) OpenBytes(sealed []byte) ([]byte, error) {
	if len(sealed) < 2*aes.BlockSize || len(sealed)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: sealed blob has invalid length %d", ErrMalformedEnvelope, len(sealed))
	}
	return c.open(sealed[:aes.BlockSize], sealed[aes.BlockSize:])
}

func (c *Cipher) seal(plaintext []byte) ([]byte, []byte, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(c.entropy, iv); err != nil {
		return nil, nil, fmt.Errorf("fieldcrypt: generate iv: %w", err)
	}

	padded := pad(plaintext)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(ciphertext, padded)
	return iv, ciphertext, nil
}

func (c *Cipher) open(iv, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a whole number of blocks", ErrMalformedEnvelope)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plaintext, ciphertext)
	return unpad(plaintext)
}

// PKCS#7
func pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	return append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrBadPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, ErrBadPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrBadPadding
		}
	}
	return data[:len(data)-n], nil
}

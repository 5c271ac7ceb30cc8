package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// GenerateSecureToken returns a base64 URL-safe random string using the
// specified number of random bytes.
func GenerateSecureToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateNumericCode returns a uniformly random numeric string of the given
// length. Each digit is drawn by rejection sampling so no value is favored.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	digits := make([]byte, length)
	buf := make([]byte, 1)
	for i := 0; i < length; {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		// 250 is the largest multiple of 10 below 256; anything above it
		// would skew the distribution.
		if buf[0] >= 250 {
			continue
		}
		digits[i] = '0' + buf[0]%10
		i++
	}

	return string(digits), nil
}

// HashToken calculates a SHA-256 hash of the provided value. Opaque refresh
// and remember-me tokens are stored only through this hash.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Digester derives deterministic lookup digests keyed with a server secret.
// It enables O(1) lookup of single-use tokens without storing raw values:
// the digest locates the row, a slow verification hash confirms it.
type Digester struct {
	secret []byte
}

// NewDigester constructs a Digester from the server secret.
func NewDigester(secret string) (*Digester, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("digest secret must be at least 16 bytes")
	}
	return &Digester{secret: []byte(secret)}, nil
}

// Digest returns the hex-encoded HMAC-SHA256 of the value.
func (d *Digester) Digest(value string) string {
	mac := hmac.New(sha256.New, d.secret)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// Sealer encrypts short secrets at rest with AES-256-GCM. Invitation tokens
// are sealed so the original email can be re-sent without rotating the token.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the AES key from the server secret.
func NewSealer(secret string) (*Sealer, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("seal secret must be at least 16 bytes")
	}

	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	return &Sealer{aead: aead}, nil
}

// Seal encrypts the value with a random nonce prepended to the ciphertext.
func (s *Sealer) Seal(value string) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, []byte(value), nil), nil
}

// Open decrypts a sealed value.
func (s *Sealer) Open(sealed []byte) (string, error) {
	if len(sealed) < s.aead.NonceSize() {
		return "", fmt.Errorf("sealed value too short")
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(plain), nil
}

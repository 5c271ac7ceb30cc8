package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const totpSecretBytes = 20

// TOTPConfig tunes time-step verification. Skew is the number of adjacent
// steps accepted on either side of the current one.
type TOTPConfig struct {
	Issuer string
	Period int
	Digits int
	Skew   int
}

// DefaultTOTPConfig returns RFC 6238 defaults: 30s steps, 6 digits, ±1 step.
func DefaultTOTPConfig(issuer string) TOTPConfig {
	return TOTPConfig{Issuer: issuer, Period: 30, Digits: 6, Skew: 1}
}

// TOTPManager generates secrets and verifies time-step codes.
type TOTPManager struct {
	cfg TOTPConfig
}

// NewTOTPManager constructs a manager, filling zero fields with defaults.
func NewTOTPManager(cfg TOTPConfig) *TOTPManager {
	if cfg.Period <= 0 {
		cfg.Period = 30
	}
	if cfg.Digits <= 0 {
		cfg.Digits = 6
	}
	if cfg.Skew < 0 {
		cfg.Skew = 0
	}
	return &TOTPManager{cfg: cfg}
}

// GenerateSecret returns a fresh 160-bit secret, base32 encoded without padding.
func (m *TOTPManager) GenerateSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate totp secret: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// ProvisionURI renders the otpauth:// URI for authenticator apps.
func (m *TOTPManager) ProvisionURI(secretBase32, account string) string {
	label := url.PathEscape(m.cfg.Issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", m.cfg.Issuer)
	v.Set("period", strconv.Itoa(m.cfg.Period))
	v.Set("digits", strconv.Itoa(m.cfg.Digits))
	v.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// VerifyCode checks a submitted code against the secret at the supplied
// moment, accepting the configured skew window. Comparison is constant-time.
func (m *TOTPManager) VerifyCode(secretBase32, code string, at time.Time) (bool, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != m.cfg.Digits || !isNumericString(trimmed) {
		return false, nil
	}

	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secretBase32))
	if err != nil {
		return false, fmt.Errorf("decode totp secret: %w", err)
	}
	if len(secret) == 0 {
		return false, errors.New("empty totp secret")
	}

	baseCounter := at.Unix() / int64(m.cfg.Period)
	for step := -m.cfg.Skew; step <= m.cfg.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated := hotpCode(secret, uint64(counter), m.cfg.Digits)
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, nil
		}
	}

	return false, nil
}

func hotpCode(secret []byte, counter uint64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod)
}

func isNumericString(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

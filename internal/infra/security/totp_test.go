package security

import (
	"encoding/base32"
	"strings"
	"testing"
	"time"
)

// RFC 6238 appendix B test secret for SHA-1.
var rfcSecret = []byte("12345678901234567890")

func rfcSecretBase32() string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(rfcSecret)
}

func TestHOTPCodeRFC6238Vectors(t *testing.T) {
	// RFC 6238 appendix B, 8-digit SHA-1 vectors. The counter is the
	// unix time divided by the 30 second step.
	cases := []struct {
		unix int64
		want string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
		{20000000000, "65353130"},
	}

	for _, tc := range cases {
		counter := uint64(tc.unix / 30)
		if got := hotpCode(rfcSecret, counter, 8); got != tc.want {
			t.Errorf("hotpCode(t=%d) = %s, want %s", tc.unix, got, tc.want)
		}
	}
}

func TestVerifyCode(t *testing.T) {
	m := NewTOTPManager(TOTPConfig{Issuer: "test", Period: 30, Digits: 8, Skew: 1})
	at := time.Unix(1111111109, 0)

	ok, err := m.VerifyCode(rfcSecretBase32(), "07081804", at)
	if err != nil || !ok {
		t.Fatalf("valid code: ok=%v err=%v", ok, err)
	}

	// A lowercase secret decodes the same.
	ok, err = m.VerifyCode(strings.ToLower(rfcSecretBase32()), "07081804", at)
	if err != nil || !ok {
		t.Fatalf("lowercase secret: ok=%v err=%v", ok, err)
	}

	ok, err = m.VerifyCode(rfcSecretBase32(), "00000000", at)
	if err != nil || ok {
		t.Fatalf("wrong code: ok=%v err=%v", ok, err)
	}
}

func TestVerifyCodeSkewWindow(t *testing.T) {
	m := NewTOTPManager(TOTPConfig{Issuer: "test", Period: 30, Digits: 8, Skew: 1})

	// 1111111109 and 1111111111 land in adjacent 30s steps, so either
	// code passes with one step of skew around the other moment.
	ok, _ := m.VerifyCode(rfcSecretBase32(), "14050471", time.Unix(1111111109, 0))
	if !ok {
		t.Fatal("next-step code must pass within the skew window")
	}
	ok, _ = m.VerifyCode(rfcSecretBase32(), "07081804", time.Unix(1111111111, 0))
	if !ok {
		t.Fatal("previous-step code must pass within the skew window")
	}

	// With zero skew the same codes fail.
	strict := NewTOTPManager(TOTPConfig{Issuer: "test", Period: 30, Digits: 8, Skew: 0})
	ok, _ = strict.VerifyCode(rfcSecretBase32(), "14050471", time.Unix(1111111109, 0))
	if ok {
		t.Fatal("zero skew must reject the adjacent step")
	}
}

func TestVerifyCodeRejectsMalformedInput(t *testing.T) {
	m := NewTOTPManager(DefaultTOTPConfig("test"))
	secret, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}

	for _, code := range []string{"", "12345", "1234567", "12345a", "123 456"} {
		ok, err := m.VerifyCode(secret, code, time.Now())
		if err != nil || ok {
			t.Errorf("VerifyCode(%q): ok=%v err=%v, want rejection without error", code, ok, err)
		}
	}

	if _, err := m.VerifyCode("not base32!!!", "123456", time.Now()); err == nil {
		t.Fatal("undecodable secret must surface an error")
	}
}

func TestGenerateSecret(t *testing.T) {
	m := NewTOTPManager(DefaultTOTPConfig("test"))

	first, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first == second {
		t.Fatal("secrets must be random")
	}
	if strings.Contains(first, "=") {
		t.Fatal("secret must be encoded without padding")
	}
	if _, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(first); err != nil {
		t.Fatalf("secret must decode as base32: %v", err)
	}
}

func TestProvisionURI(t *testing.T) {
	m := NewTOTPManager(DefaultTOTPConfig("Accounting"))
	uri := m.ProvisionURI("JBSWY3DPEHPK3PXP", "user@example.com")

	if !strings.HasPrefix(uri, "otpauth://totp/Accounting:user@example.com?") {
		t.Fatalf("uri = %q", uri)
	}
	for _, fragment := range []string{"secret=JBSWY3DPEHPK3PXP", "issuer=Accounting", "period=30", "digits=6", "algorithm=SHA1"} {
		if !strings.Contains(uri, fragment) {
			t.Errorf("uri missing %q: %q", fragment, uri)
		}
	}
}

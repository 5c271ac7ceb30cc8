package security

import (
	"fmt"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/jash90/accounting-platform-sub001/internal/infra/config"
)

// Policy floors applied when the configuration leaves a knob unset. The
// zxcvbn scale tops out at 4.
const (
	fallbackMinLength        = 10
	fallbackCharacterClasses = 3
	fallbackStrengthScore    = 3
	maxStrengthScore         = 4
)

// PasswordValidationError reports which policy check a candidate failed.
// Code is stable and safe to surface to API clients; Message is the
// human-readable form.
type PasswordValidationError struct {
	Code    string
	Message string
}

func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordPolicy validates candidate passwords against the configured
// minimums: rune length, distinct character classes, and a zxcvbn strength
// floor. Contextual user inputs (email, organization name) are fed to zxcvbn
// so passwords derived from them score poorly.
type PasswordPolicy struct {
	minLength  int
	minClasses int
	minScore   int
}

// NewPasswordPolicy builds a policy from configuration, falling back to the
// built-in floors for unset values.
func NewPasswordPolicy(cfg config.PasswordSettings) *PasswordPolicy {
	policy := &PasswordPolicy{
		minLength:  cfg.MinLength,
		minClasses: cfg.MinCharacterClasses,
		minScore:   cfg.MinStrengthScore,
	}
	if policy.minLength <= 0 {
		policy.minLength = fallbackMinLength
	}
	if policy.minClasses <= 0 {
		policy.minClasses = fallbackCharacterClasses
	}
	if policy.minScore <= 0 {
		policy.minScore = fallbackStrengthScore
	}
	if policy.minScore > maxStrengthScore {
		policy.minScore = maxStrengthScore
	}
	return policy
}

// Validate runs the checks cheapest-first and returns the first violation.
func (p *PasswordPolicy) Validate(password string, userInputs ...string) error {
	if p == nil {
		return fmt.Errorf("password policy not configured")
	}
	if err := p.checkLength(password); err != nil {
		return err
	}
	if err := p.checkCharacterClasses(password); err != nil {
		return err
	}
	return p.checkStrength(password, userInputs)
}

func (p *PasswordPolicy) checkLength(password string) error {
	if len([]rune(password)) >= p.minLength {
		return nil
	}
	return &PasswordValidationError{
		Code:    "min_length",
		Message: fmt.Sprintf("password must be at least %d characters long", p.minLength),
	}
}

func (p *PasswordPolicy) checkCharacterClasses(password string) error {
	if countCharacterClasses(password) >= p.minClasses {
		return nil
	}
	return &PasswordValidationError{
		Code:    "character_classes",
		Message: fmt.Sprintf("password must include at least %d character types", p.minClasses),
	}
}

func (p *PasswordPolicy) checkStrength(password string, userInputs []string) error {
	if zxcvbn.PasswordStrength(password, userInputs).Score >= p.minScore {
		return nil
	}
	return &PasswordValidationError{
		Code:    "weak_password",
		Message: "password is too weak; choose a more complex value",
	}
}

// countCharacterClasses tallies how many of upper, lower, digit, and symbol
// appear in the candidate.
func countCharacterClasses(password string) int {
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsSymbol(r) || unicode.IsPunct(r):
			symbol = true
		}
	}

	classes := 0
	for _, present := range []bool{upper, lower, digit, symbol} {
		if present {
			classes++
		}
	}
	return classes
}

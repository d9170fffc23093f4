// Package totpx wraps pquerna/otp with the fixed TOTP profile used for second
// factors: SHA1, six digits, thirty second steps and a one step skew window.
package totpx

import (
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	DefaultPeriod     = 30
	DefaultSkew       = 1
	DefaultSecretSize = 20 // 160 bits
	CodeLength        = 6
)

var (
	// ErrMalformedCode is returned before the secret is touched when the
	// submitted code is not exactly six ASCII digits.
	ErrMalformedCode = errors.New("totpx: code must be 6 digits")

	// ErrInvalidSecret reports a secret that is not valid base32.
	ErrInvalidSecret = errors.New("totpx: invalid secret")
)

// Secret is a freshly generated TOTP key.
type Secret struct {
	Base32          string
	Issuer          string
	Label           string
	ProvisioningURI string
}

// Match is the outcome of a verification. Step is the 30s time step the
// code matched, used by callers to reject replays within the same window.
type Match struct {
	OK   bool
	Step int64
}

// Engine generates and verifies codes. The zero value is not usable, use New.
type Engine struct {
	Period     uint
	Skew       uint
	SecretSize uint
}

// New returns an Engine with the standard authenticator profile and the
// given skew window (in steps).
func New(skew uint) *Engine {
	return &Engine{
		Period:     DefaultPeriod,
		Skew:       skew,
		SecretSize: DefaultSecretSize,
	}
}

// GenerateSecret creates a new random secret bound to label.
func (e *Engine) GenerateSecret(issuer, label string) (Secret, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: label,
		Period:      e.Period,
		SecretSize:  e.SecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Secret{}, fmt.Errorf("totpx: generate: %w", err)
	}

	return Secret{
		Base32:          key.Secret(),
		Issuer:          issuer,
		Label:           label,
		ProvisioningURI: BuildProvisioningURI(label, key.Secret(), issuer),
	}, nil
}

// BuildProvisioningURI renders the otpauth URI authenticator apps import.
// The parameter order is fixed so the output is deterministic.
func BuildProvisioningURI(label, secretBase32, issuer string) string {
	return fmt.Sprintf(
		"otpauth://totp/%s:%s?secret=%s&issuer=%s&algorithm=SHA1&digits=6&period=%d",
		url.PathEscape(issuer),
		url.PathEscape(label),
		secretBase32,
		url.QueryEscape(issuer),
		DefaultPeriod,
	)
}

// Code returns the code for the step containing at.
func (e *Engine) Code(secretBase32 string, at time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secretBase32, at, e.opts())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSecret, err)
	}
	return code, nil
}

// Verify checks code against the step containing at and the Skew steps
// either side of it. Malformed codes fail with ErrMalformedCode without the
// secret being evaluated.
func (e *Engine) Verify(secretBase32, code string, at time.Time) (Match, error) {
	if !WellFormed(code) {
		return Match{}, ErrMalformedCode
	}

	period := time.Duration(e.Period) * time.Second
	skew := int(e.Skew)
	for offset := -skew; offset <= skew; offset++ {
		t := at.Add(time.Duration(offset) * period)
		candidate, err := e.Code(secretBase32, t)
		if err != nil {
			return Match{}, err
		}
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(code)) == 1 {
			return Match{OK: true, Step: e.Step(t)}, nil
		}
	}

	return Match{}, nil
}

// Step returns the time step index containing at.
func (e *Engine) Step(at time.Time) int64 {
	return at.Unix() / int64(e.Period)
}

func (e *Engine) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    e.Period,
		Skew:      0,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// WellFormed reports whether code is exactly six ASCII digits.
func WellFormed(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// ValidSecret reports whether s decodes as base32 with at least 160 bits.
func ValidSecret(s string) bool {
	raw, err := decodeSecret(s)
	return err == nil && len(raw) >= DefaultSecretSize
}

func decodeSecret(s string) ([]byte, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSecret, err)
	}
	return raw, nil
}

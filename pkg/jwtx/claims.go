package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token purposes. A verifier that accepts one purpose must reject the other
// so a step-up token can never be replayed as a session.
const (
	PurposeSession = "session"
	PurposeStepUp  = "mfa_step_up"
)

// Authentication Methods Reference values (RFC 8176).
const (
	AMRPassword = "pwd"
	AMROTP      = "otp"
	AMRMFA      = "mfa"
)

// Claims are the claims carried by every token this service issues.
type Claims struct {
	jwt.RegisteredClaims

	// Purpose is PurposeSession or PurposeStepUp.
	Purpose string `json:"purpose"`

	// Session ID, empty on step-up tokens.
	SID string `json:"sid,omitempty"`

	Scopes []string `json:"scopes,omitempty"`

	// ["pwd"] after a password check, ["pwd","otp","mfa"] after a second factor.
	AMR []string `json:"amr,omitempty"`

	Username string `json:"username,omitempty"`
}

// ClaimsParams describes a token to mint.
type ClaimsParams struct {
	Subject  string
	Purpose  string
	SID      string
	Scopes   []string
	AMR      []string
	Username string
	Issuer   string
	Audience []string
	TTL      time.Duration
	Now      time.Time
}

// NewClaims builds minimally-correct claims.
func NewClaims(p ClaimsParams) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.Issuer,
			Subject:   p.Subject,
			Audience:  jwt.ClaimStrings(p.Audience),
			IssuedAt:  jwt.NewNumericDate(p.Now),
			NotBefore: jwt.NewNumericDate(p.Now),
			ExpiresAt: jwt.NewNumericDate(p.Now.Add(p.TTL)),
			ID:        NewJTI(),
		},
		Purpose:  p.Purpose,
		SID:      p.SID,
		Scopes:   p.Scopes,
		AMR:      p.AMR,
		Username: p.Username,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidatePurpose checks the purpose claim.
func (c *Claims) ValidatePurpose(expected string) error {
	if c.Purpose != expected {
		return ErrPurpose
	}
	return nil
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't before nbf.
func (c *Claims) ValidateExpiry(now time.Time) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}

// ExpiresIn is the remaining lifetime in whole seconds at now.
func (c *Claims) ExpiresIn(now time.Time) int {
	if c.ExpiresAt == nil {
		return 0
	}
	return int(c.ExpiresAt.Sub(now).Round(time.Second).Seconds())
}

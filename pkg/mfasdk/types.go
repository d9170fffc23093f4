package mfasdk

import (
	"time"

	"github.com/aussiebroadwan/mfagate/pkg/jwtx"
)

// ErrorResponse is the body of every failed response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ValidationErrorResponse is returned when request fields fail validation.
type ValidationErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// ============================================================================
// Health
// ============================================================================

type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database string `json:"database"`
	Pending  string `json:"pending"`
	Identity string `json:"identity"`
	Signer   string `json:"signer"`
}

// JWKSResponse is the public key set that verifies session and step-up
// tokens, served at /.well-known/jwks.json.
type JWKSResponse jwtx.JWKS

// ============================================================================
// Tokens and login
// ============================================================================

// TokenResponse is a signed bearer token. Purpose is "session" or
// "mfa_step_up"; a step-up token only works on the verify endpoints.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Purpose     string `json:"purpose"`
	ExpiresIn   int    `json:"expires_in"`
	SessionID   string `json:"session_id,omitempty"`
}

type LoginRequest struct {
	UserID   string `json:"user_id" validate:"required,max=128"`
	Password string `json:"password" validate:"required,max=1024"`
}

// LoginResponse carries a token unless PasswordChangeRequired is set.
type LoginResponse struct {
	PasswordChangeRequired bool           `json:"password_change_required"`
	RequiresMFA            bool           `json:"requires_mfa"`
	Token                  *TokenResponse `json:"token,omitempty"`
}

// ============================================================================
// First login
// ============================================================================

type FirstLoginStateResponse struct {
	UserID       string `json:"user_id"`
	IsFirstLogin bool   `json:"is_first_login"`
	MFAEnabled   bool   `json:"mfa_enabled"`

	// NextStep is change_password, verify_mfa or offer_mfa.
	NextStep string `json:"next_step"`
}

type ChangePasswordRequest struct {
	UserID          string `json:"user_id" validate:"required,max=128"`
	CurrentPassword string `json:"current_password" validate:"required,max=1024"`
	NewPassword     string `json:"new_password" validate:"required,max=1024"`
}

type PasswordChangeResponse struct {
	RequiresMFA bool          `json:"requires_mfa"`
	Token       TokenResponse `json:"token"`
}

type SetupMFARequest struct {
	Enable bool   `json:"enable"`
	Label  string `json:"label,omitempty" validate:"omitempty,max=64"`
}

// SetupMFAResponse has Enroll set when MFA was accepted and Token set when
// it was declined.
type SetupMFAResponse struct {
	Enroll *EnrollResponse `json:"enroll,omitempty"`
	Token  *TokenResponse  `json:"token,omitempty"`
}

// ============================================================================
// MFA
// ============================================================================

type EnrollRequest struct {
	Label string `json:"label,omitempty" validate:"omitempty,max=64"`
}

type EnrollResponse struct {
	Secret          string    `json:"secret"`
	ProvisioningURI string    `json:"provisioning_uri"`
	QRCode          string    `json:"qr_code"`
	Issuer          string    `json:"issuer"`
	Account         string    `json:"account"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type CodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

type BackupCodeRequest struct {
	Code string `json:"code" validate:"required,min=4,max=32"`
}

type BackupCodesResponse struct {
	Codes []string `json:"codes"`
}

// ConfirmResponse lists the backup codes. They are shown only once.
type ConfirmResponse struct {
	Activated   bool     `json:"activated"`
	BackupCodes []string `json:"backup_codes"`
}

type BackupCodeLoginResponse struct {
	Token     TokenResponse `json:"token"`
	Remaining int           `json:"remaining"`
}

type StatusResponse struct {
	UserID               string             `json:"user_id"`
	Status               string             `json:"status"`
	MFAEnabled           bool               `json:"mfa_enabled"`
	FailedAttempts       int                `json:"failed_attempts"`
	BackupCodesRemaining int                `json:"backup_codes_remaining"`
	BackupCodes          []BackupCodeStatus `json:"backup_codes,omitempty"`
	LastAttemptAt        *time.Time         `json:"last_attempt_at,omitempty"`
	VerifiedAt           *time.Time         `json:"verified_at,omitempty"`
	LockedAt             *time.Time         `json:"locked_at,omitempty"`
	PendingExpiresAt     *time.Time         `json:"pending_expires_at,omitempty"`
}

type BackupCodeStatus struct {
	Position int        `json:"position"`
	UsedAt   *time.Time `json:"used_at,omitempty"`
}

type StatsResponse struct {
	ByStatus           map[string]int `json:"by_status"`
	PendingActivations int            `json:"pending_activations"`
	VerifiedLast24h    int            `json:"verified_last_24h"`
}

// ============================================================================
// Bootstrap
// ============================================================================

type BootstrapUser struct {
	Username  string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Password  string `json:"password" validate:"required,min=8,max=1024"`
	Temporary bool   `json:"temporary_password"`
	Admin     bool   `json:"admin"`
}

type BootstrapRequest struct {
	Users []BootstrapUser `json:"users" validate:"required,min=1,max=100,dive"`
}

type BootstrapResponse struct {
	UserIDs []string `json:"user_ids"`
}

package domain

import "time"

// EnrollResponse is handed back when enrollment starts. It contains the
// secret, so it is shown once and never logged.
type EnrollResponse struct {
	Secret          string
	ProvisioningURI string
	QRCode          string // data:image/png;base64,...
	Issuer          string
	Account         string
	ExpiresAt       time.Time
}

// EnrollResult is returned when a pending activation is confirmed.
type EnrollResult struct {
	Activated   bool
	BackupCodes []string
}

// BackupCodeResult reports a consumption attempt.
type BackupCodeResult struct {
	Valid     bool
	Remaining int
}

// Next steps reported to a user going through first login.
const (
	StepChangePassword = "change_password"
	StepVerifyMFA      = "verify_mfa"
	StepOfferMFA       = "offer_mfa"
	StepNone           = "none"
)

// FirstLoginState is derived from the user record each time it is asked for.
type FirstLoginState struct {
	UserID       string
	IsFirstLogin bool
	MFAEnabled   bool
	NextStep     string
}

// IssuedToken is a signed token plus what a client needs to use it.
type IssuedToken struct {
	AccessToken string
	TokenType   string
	Purpose     string
	ExpiresIn   int
	SessionID   string
}

// PasswordChangeResult says whether MFA is still owed. Token is a step-up
// token when RequiresMFA is set, otherwise a full session token.
type PasswordChangeResult struct {
	RequiresMFA bool
	Token       IssuedToken
}

// LoginResult is the outcome of a password login. Token is empty when a
// password change is required first.
type LoginResult struct {
	PasswordChangeRequired bool
	RequiresMFA            bool
	Token                  IssuedToken
}

// SetupResult answers the post-first-login MFA offer: either enrollment
// material or, when declined, a full session.
type SetupResult struct {
	Enroll  *EnrollResponse
	Session *IssuedToken
}

// StatusView is a user's MFA state as reported to the user or an admin.
type StatusView struct {
	UserID               string
	Status               MFAStatus
	MFAEnabled           bool
	FailedAttempts       int
	BackupCodesRemaining int
	BackupCodes          []BackupCodeState
	LastAttemptAt        *time.Time
	VerifiedAt           *time.Time
	LockedAt             *time.Time
	PendingExpiresAt     *time.Time
}

// BackupCodeState is one slot of a user's backup code set. The code itself
// is never recoverable.
type BackupCodeState struct {
	Position int
	UsedAt   *time.Time
}

// Stats is an aggregate snapshot for operators.
type Stats struct {
	ByStatus           map[MFAStatus]int
	PendingActivations int
	VerifiedLast24h    int
}

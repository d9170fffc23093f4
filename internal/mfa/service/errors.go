package service

import (
	"errors"
	"fmt"

	"github.com/aussiebroadwan/mfagate/internal/mfa/gateway"
)

// Error classes. Every error a service returns matches exactly one of these
// under errors.Is (a lockout also matches ErrUnauthorized), which is what
// callers switch on.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrExpired             = errors.New("expired")
	ErrLocked              = errors.New("locked")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrConflict            = errors.New("conflict")
	ErrInvalidState        = errors.New("invalid state")
)

var (
	ErrMalformedCode       = fmt.Errorf("%w: code must be 6 digits", ErrValidation)
	ErrMalformedBackupCode = fmt.Errorf("%w: malformed backup code", ErrValidation)
	ErrPasswordTooShort    = fmt.Errorf("%w: new password is too short", ErrValidation)
	ErrPasswordUnchanged   = fmt.Errorf("%w: new password must differ from the current one", ErrValidation)
	ErrMissingPassword     = fmt.Errorf("%w: password is required", ErrValidation)

	ErrUserNotFound        = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrNoMFASession        = fmt.Errorf("%w: mfa is not enrolled", ErrNotFound)
	ErrNoPendingActivation = fmt.Errorf("%w: no pending activation", ErrNotFound)

	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrInvalidCode        = fmt.Errorf("%w: invalid code", ErrUnauthorized)
	ErrCodeReplayed       = fmt.Errorf("%w: code already used", ErrUnauthorized)
	ErrInvalidBackupCode  = fmt.Errorf("%w: invalid backup code", ErrUnauthorized)
	ErrBootstrapToken     = fmt.Errorf("%w: invalid bootstrap token", ErrUnauthorized)

	ErrPendingExpired = fmt.Errorf("%w: pending activation expired", ErrExpired)

	ErrMFALocked = fmt.Errorf("%w: too many failed attempts", ErrLocked)

	ErrAlreadyActive       = fmt.Errorf("%w: mfa is already active", ErrConflict)
	ErrAlreadyBootstrapped = fmt.Errorf("%w: already bootstrapped", ErrConflict)

	ErrNoTemporaryPassword    = fmt.Errorf("%w: no temporary password active", ErrInvalidState)
	ErrPasswordChangeRequired = fmt.Errorf("%w: temporary password must be changed first", ErrInvalidState)
	ErrMFANotActive           = fmt.Errorf("%w: mfa is not active", ErrInvalidState)
	ErrNotLocked              = fmt.Errorf("%w: mfa is not locked", ErrInvalidState)
)

// gatewayErr maps identity gateway failures into the taxonomy. Anything
// other than a missing user is reported as the upstream being unavailable.
func gatewayErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gateway.ErrUserNotFound):
		return ErrUserNotFound
	default:
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
}

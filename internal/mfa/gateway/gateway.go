// Package gateway is the boundary to the identity service that owns user
// records. The MFA core reads users through it and asks it to flip the
// MFA flag; it never keeps its own copy of either.
package gateway

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
)

var (
	ErrUserNotFound = errors.New("gateway: user not found")

	// ErrUnavailable covers timeouts, transport failures, 5xx answers and an
	// open circuit. Callers may retry it with backoff.
	ErrUnavailable = errors.New("gateway: identity service unavailable")
)

// Identity is the contract the MFA core needs from the user service.
type Identity interface {
	GetUser(ctx context.Context, id string) (domain.User, error)

	// UpdateUser applies all fields of upd in a single write.
	UpdateUser(ctx context.Context, id string, upd domain.UserUpdate) error

	SetMFA(ctx context.Context, id, secret string, enabled bool) error

	// CreateSession records a login session. Callers treat failures as
	// non-fatal.
	CreateSession(ctx context.Context, s domain.LoginSession) error

	Ping(ctx context.Context) error
}

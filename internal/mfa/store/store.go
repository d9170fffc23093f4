package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface implemented by the memory and
// sqlite drivers. Repositories hang off it so a transaction scoped Store
// exposes exactly the same surface.
type Store interface {
	Users() Users
	LoginSessions() LoginSessions
	MFASessions() MFASessions
	BackupCodes() BackupCodes
	PendingActivations() PendingActivations

	ApplyMigrations() error

	// Tx starts a read/write transaction. The caller MUST Commit or Rollback.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when it returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional Store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Users backs the local identity gateway.
type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// CreateUser fails with ErrAlreadyExists on a duplicate id or username.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateUser applies every non-nil field of upd in one write.
	UpdateUser(ctx context.Context, id string, upd domain.UserUpdate, now time.Time) error

	// SetMFA sets the enabled flag and secret together.
	SetMFA(ctx context.Context, id string, secret string, enabled bool, now time.Time) error

	IsEmpty(ctx context.Context) (bool, error)
}

type LoginSessions interface {
	CreateLoginSession(ctx context.Context, s domain.LoginSession) error
	DeleteExpiredLoginSessions(ctx context.Context, now time.Time) (int64, error)
}

// MFASessions holds one record per user.
type MFASessions interface {
	GetMFASession(ctx context.Context, userID string) (domain.MFASession, error)

	// UpsertMFASession creates or fully replaces the record for s.UserID.
	UpsertMFASession(ctx context.Context, s domain.MFASession) error

	DeleteMFASession(ctx context.Context, userID string) error

	CountByStatus(ctx context.Context) (map[domain.MFAStatus]int, error)
	CountVerifiedSince(ctx context.Context, since time.Time) (int, error)

	// DeleteStaleMFASessions removes pending and disabled records not
	// updated since before.
	DeleteStaleMFASessions(ctx context.Context, before time.Time) (int64, error)
}

// BackupCodes stores fingerprints only.
type BackupCodes interface {
	// ReplaceBackupCodes discards every code the user had and stores hashes
	// in order.
	ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error

	ListBackupCodes(ctx context.Context, userID string) ([]domain.BackupCode, error)

	// MarkBackupCodeUsed flags an unused code. It returns ErrNotFound when no
	// unused code with that hash exists, so a code is consumed at most once.
	MarkBackupCodeUsed(ctx context.Context, userID, hash string, at time.Time) error

	CountUnusedBackupCodes(ctx context.Context, userID string) (int, error)
	DeleteBackupCodes(ctx context.Context, userID string) error
}

// PendingActivations is implemented by the memory, sqlite and redis drivers.
// Expiry is not enforced here; callers check PendingActivation.Expired.
type PendingActivations interface {
	// PutPending replaces any activation in flight for p.UserID.
	PutPending(ctx context.Context, p domain.PendingActivation) error
	GetPending(ctx context.Context, userID string) (domain.PendingActivation, error)
	IncrementPendingAttempts(ctx context.Context, userID string) (int, error)
	DeletePending(ctx context.Context, userID string) error
	DeleteExpiredPending(ctx context.Context, now time.Time) (int64, error)
	CountPending(ctx context.Context, now time.Time) (int, error)
}

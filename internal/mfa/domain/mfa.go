package domain

import "time"

// MFAStatus is the lifecycle state of a user's second factor.
type MFAStatus string

const (
	MFANone     MFAStatus = "" // no session record yet
	MFAPending  MFAStatus = "pending"
	MFAActive   MFAStatus = "active"
	MFALocked   MFAStatus = "locked"
	MFADisabled MFAStatus = "disabled"
)

var transitions = map[MFAStatus][]MFAStatus{
	MFANone:     {MFAPending, MFADisabled},
	MFAPending:  {MFAPending, MFAActive, MFADisabled},
	MFAActive:   {MFAActive, MFALocked, MFADisabled},
	MFALocked:   {MFAActive, MFADisabled},
	MFADisabled: {MFAPending, MFADisabled},
}

// CanTransition reports whether moving from s to next is allowed.
// locked -> active is only taken by an administrative unlock.
func (s MFAStatus) CanTransition(next MFAStatus) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a stored status.
func (s MFAStatus) Valid() bool {
	switch s {
	case MFAPending, MFAActive, MFALocked, MFADisabled:
		return true
	}
	return false
}

func (s MFAStatus) String() string {
	if s == MFANone {
		return "none"
	}
	return string(s)
}

// MFASession is the per-user second factor record.
type MFASession struct {
	UserID         string
	Secret         string // base32; empty while pending or disabled
	Status         MFAStatus
	FailedAttempts int
	LastAttemptAt  *time.Time
	VerifiedAt     *time.Time
	LockedAt       *time.Time

	// LastUsedStep is the TOTP time step of the last accepted code. Codes
	// from that step or earlier are refused.
	LastUsedStep int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PendingActivation holds a candidate secret until the user proves they
// have loaded it into an authenticator.
type PendingActivation struct {
	UserID          string
	Secret          string
	Label           string
	Issuer          string
	ProvisioningURI string
	Attempts        int
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Expired reports whether the activation can no longer be confirmed at now.
func (p PendingActivation) Expired(now time.Time) bool { return now.After(p.ExpiresAt) }

// BackupCode is one stored recovery code. Only its fingerprint is kept.
type BackupCode struct {
	UserID   string
	Position int
	CodeHash string
	UsedAt   *time.Time
}

// Used reports whether the code has been consumed.
func (c BackupCode) Used() bool { return c.UsedAt != nil }

package domain

import "time"

// Roles known to the service. Admins may inspect and unlock other users.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the identity record as the gateway reports it. The MFA core reads
// it but never owns it.
type User struct {
	ID                string
	Username          string
	PasswordHash      string // argon2id PHC or bcrypt
	Role              string
	TemporaryPassword bool
	MFAEnabled        bool
	MFASecret         string // base32, empty unless MFAEnabled
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasMFA reports whether the user must complete a second factor.
func (u User) HasMFA() bool { return u.MFAEnabled && u.MFASecret != "" }

// UserUpdate is a partial update applied as one write. Nil fields are left
// untouched.
type UserUpdate struct {
	PasswordHash      *string
	TemporaryPassword *bool
}

// Empty reports whether the update changes nothing.
func (u UserUpdate) Empty() bool { return u.PasswordHash == nil && u.TemporaryPassword == nil }

// LoginSession records a full session handed out to a user.
type LoginSession struct {
	ID        string // the token's sid claim
	UserID    string
	TokenID   string // jti
	AMR       []string
	CreatedAt time.Time
	ExpiresAt time.Time
}

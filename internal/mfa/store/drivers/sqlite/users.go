package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
)

type usersRepo struct{ q querier }

const userColumns = `id, username, password_hash, role, temporary_password, mfa_enabled, mfa_secret, created_at, updated_at`

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u                domain.User
		temp, mfa        int
		secret           sql.NullString
		created, updated int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &temp, &mfa, &secret, &created, &updated)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.TemporaryPassword = temp != 0
	u.MFAEnabled = mfa != 0
	u.MFASecret = secret.String
	u.CreatedAt = fromNanos(created)
	u.UpdatedAt = fromNanos(updated)
	return u, nil
}

func (r usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.Role,
		boolInt(u.TemporaryPassword), boolInt(u.MFAEnabled),
		sql.NullString{String: u.MFASecret, Valid: u.MFASecret != ""},
		nanos(u.CreatedAt), nanos(u.UpdatedAt),
	)
	return mapConstraint(err)
}

// UpdateUser builds one UPDATE so the password hash and the temporary flag
// change together or not at all.
func (r usersRepo) UpdateUser(ctx context.Context, id string, upd domain.UserUpdate, now time.Time) error {
	sets := []string{"updated_at = ?"}
	args := []any{nanos(now)}

	if upd.PasswordHash != nil {
		sets = append(sets, "password_hash = ?")
		args = append(args, *upd.PasswordHash)
	}
	if upd.TemporaryPassword != nil {
		sets = append(sets, "temporary_password = ?")
		args = append(args, boolInt(*upd.TemporaryPassword))
	}
	args = append(args, id)

	return requireRow(r.q.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...))
}

func (r usersRepo) SetMFA(ctx context.Context, id, secret string, enabled bool, now time.Time) error {
	return requireRow(r.q.ExecContext(ctx,
		`UPDATE users SET mfa_enabled = ?, mfa_secret = ?, updated_at = ? WHERE id = ?`,
		boolInt(enabled), sql.NullString{String: secret, Valid: secret != ""}, nanos(now), id))
}

func (r usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return false, err
	}
	return n == 0, nil
}

type loginSessionsRepo struct{ q querier }

func (r loginSessionsRepo) CreateLoginSession(ctx context.Context, s domain.LoginSession) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO login_sessions (id, user_id, token_id, amr, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.TokenID, strings.Join(s.AMR, " "), nanos(s.CreatedAt), nanos(s.ExpiresAt))
	return mapConstraint(err)
}

func (r loginSessionsRepo) DeleteExpiredLoginSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM login_sessions WHERE expires_at <= ?`, nanos(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
)

type mfaSessionsRepo struct{ q querier }

func (r mfaSessionsRepo) GetMFASession(ctx context.Context, userID string) (domain.MFASession, error) {
	var (
		m                          domain.MFASession
		status                     string
		lastAttempt, verified, lck sql.NullInt64
		created, updated           int64
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT user_id, secret, status, failed_attempts, last_attempt_at, verified_at, locked_at,
		       last_used_step, created_at, updated_at
		FROM mfa_sessions WHERE user_id = ?`, userID,
	).Scan(&m.UserID, &m.Secret, &status, &m.FailedAttempts, &lastAttempt, &verified, &lck,
		&m.LastUsedStep, &created, &updated)
	if err != nil {
		return domain.MFASession{}, mapNotFound(err)
	}

	m.Status = domain.MFAStatus(status)
	m.LastAttemptAt = fromNullNanos(lastAttempt)
	m.VerifiedAt = fromNullNanos(verified)
	m.LockedAt = fromNullNanos(lck)
	m.CreatedAt = fromNanos(created)
	m.UpdatedAt = fromNanos(updated)
	return m, nil
}

func (r mfaSessionsRepo) UpsertMFASession(ctx context.Context, m domain.MFASession) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO mfa_sessions (user_id, secret, status, failed_attempts, last_attempt_at, verified_at,
		                          locked_at, last_used_step, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			secret          = excluded.secret,
			status          = excluded.status,
			failed_attempts = excluded.failed_attempts,
			last_attempt_at = excluded.last_attempt_at,
			verified_at     = excluded.verified_at,
			locked_at       = excluded.locked_at,
			last_used_step  = excluded.last_used_step,
			updated_at      = excluded.updated_at`,
		m.UserID, m.Secret, string(m.Status), m.FailedAttempts,
		nullNanos(m.LastAttemptAt), nullNanos(m.VerifiedAt), nullNanos(m.LockedAt),
		m.LastUsedStep, nanos(m.CreatedAt), nanos(m.UpdatedAt),
	)
	return err
}

func (r mfaSessionsRepo) DeleteMFASession(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM mfa_sessions WHERE user_id = ?`, userID)
	return err
}

func (r mfaSessionsRepo) CountByStatus(ctx context.Context) (map[domain.MFAStatus]int, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT status, COUNT(*) FROM mfa_sessions GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[domain.MFAStatus]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[domain.MFAStatus(status)] = n
	}
	return out, rows.Err()
}

func (r mfaSessionsRepo) CountVerifiedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mfa_sessions WHERE verified_at IS NOT NULL AND verified_at >= ?`,
		nanos(since)).Scan(&n)
	return n, err
}

func (r mfaSessionsRepo) DeleteStaleMFASessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM mfa_sessions WHERE status IN ('pending', 'disabled') AND updated_at < ?`,
		nanos(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type backupCodesRepo struct{ q querier }

// ReplaceBackupCodes is a delete plus inserts; callers run it inside WithTx
// when the swap has to be atomic with other writes.
func (r backupCodesRepo) ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = ?`, userID); err != nil {
		return err
	}
	for i, h := range hashes {
		if _, err := r.q.ExecContext(ctx,
			`INSERT INTO backup_codes (user_id, position, code_hash) VALUES (?, ?, ?)`,
			userID, i, h); err != nil {
			return err
		}
	}
	return nil
}

func (r backupCodesRepo) ListBackupCodes(ctx context.Context, userID string) ([]domain.BackupCode, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT position, code_hash, used_at FROM backup_codes WHERE user_id = ? ORDER BY position`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BackupCode
	for rows.Next() {
		c := domain.BackupCode{UserID: userID}
		var used sql.NullInt64
		if err := rows.Scan(&c.Position, &c.CodeHash, &used); err != nil {
			return nil, err
		}
		c.UsedAt = fromNullNanos(used)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r backupCodesRepo) MarkBackupCodeUsed(ctx context.Context, userID, hash string, at time.Time) error {
	return requireRow(r.q.ExecContext(ctx, `
		UPDATE backup_codes SET used_at = ?
		WHERE rowid = (
			SELECT rowid FROM backup_codes
			WHERE user_id = ? AND code_hash = ? AND used_at IS NULL
			ORDER BY position LIMIT 1
		)`, nanos(at), userID, hash))
}

func (r backupCodesRepo) CountUnusedBackupCodes(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM backup_codes WHERE user_id = ? AND used_at IS NULL`, userID).Scan(&n)
	return n, err
}

func (r backupCodesRepo) DeleteBackupCodes(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = ?`, userID)
	return err
}

type pendingRepo struct{ q querier }

func (r pendingRepo) PutPending(ctx context.Context, p domain.PendingActivation) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO pending_activations (user_id, secret, label, issuer, provisioning_uri, attempts, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			secret           = excluded.secret,
			label            = excluded.label,
			issuer           = excluded.issuer,
			provisioning_uri = excluded.provisioning_uri,
			attempts         = excluded.attempts,
			created_at       = excluded.created_at,
			expires_at       = excluded.expires_at`,
		p.UserID, p.Secret, p.Label, p.Issuer, p.ProvisioningURI, p.Attempts,
		nanos(p.CreatedAt), nanos(p.ExpiresAt))
	return err
}

func (r pendingRepo) GetPending(ctx context.Context, userID string) (domain.PendingActivation, error) {
	var (
		p                domain.PendingActivation
		created, expires int64
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT user_id, secret, label, issuer, provisioning_uri, attempts, created_at, expires_at
		FROM pending_activations WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.Secret, &p.Label, &p.Issuer, &p.ProvisioningURI, &p.Attempts, &created, &expires)
	if err != nil {
		return domain.PendingActivation{}, mapNotFound(err)
	}
	p.CreatedAt = fromNanos(created)
	p.ExpiresAt = fromNanos(expires)
	return p, nil
}

func (r pendingRepo) IncrementPendingAttempts(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`UPDATE pending_activations SET attempts = attempts + 1 WHERE user_id = ? RETURNING attempts`,
		userID).Scan(&n)
	return n, mapNotFound(err)
}

func (r pendingRepo) DeletePending(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM pending_activations WHERE user_id = ?`, userID)
	return err
}

func (r pendingRepo) DeleteExpiredPending(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM pending_activations WHERE expires_at < ?`, nanos(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r pendingRepo) CountPending(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_activations WHERE expires_at >= ?`, nanos(now)).Scan(&n)
	return n, err
}

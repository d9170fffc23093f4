// Package storetest holds behaviour checks shared by every store driver.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfa/store"
	"github.com/aussiebroadwan/mfagate/pkg/idx"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// Run exercises a full store. newStore must return an empty, migrated store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("login sessions", func(t *testing.T) { testLoginSessions(t, newStore(t)) })
	t.Run("mfa sessions", func(t *testing.T) { testMFASessions(t, newStore(t)) })
	t.Run("backup codes", func(t *testing.T) { testBackupCodes(t, newStore(t)) })
	t.Run("transactions", func(t *testing.T) { testTx(t, newStore(t)) })
	t.Run("pending", func(t *testing.T) { RunPending(t, newStore(t).PendingActivations()) })
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()

	empty, err := s.Users().IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	u := domain.User{
		ID:                idx.New().String(),
		Username:          "alice",
		PasswordHash:      "hash-1",
		Role:              domain.RoleUser,
		TemporaryPassword: true,
		CreatedAt:         t0,
		UpdatedAt:         t0,
	}
	require.NoError(t, s.Users().CreateUser(ctx, u))
	require.ErrorIs(t, s.Users().CreateUser(ctx, u), store.ErrAlreadyExists)

	dup := u
	dup.ID = idx.New().String()
	require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Username)
	require.True(t, got.TemporaryPassword)

	hash, temp := "hash-2", false
	require.NoError(t, s.Users().UpdateUser(ctx, u.ID, domain.UserUpdate{PasswordHash: &hash, TemporaryPassword: &temp}, t0.Add(time.Minute)))

	got, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "hash-2", got.PasswordHash)
	require.False(t, got.TemporaryPassword)
	require.Equal(t, t0.Add(time.Minute), got.UpdatedAt)

	require.NoError(t, s.Users().SetMFA(ctx, u.ID, "SECRET", true, t0))
	got, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.HasMFA())

	_, err = s.Users().GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.Users().UpdateUser(ctx, "missing", domain.UserUpdate{TemporaryPassword: &temp}, t0), store.ErrNotFound)
	require.ErrorIs(t, s.Users().SetMFA(ctx, "missing", "", false, t0), store.ErrNotFound)
}

func testLoginSessions(t *testing.T, s store.Store) {
	ctx := context.Background()

	ls := domain.LoginSession{
		ID:        idx.New().String(),
		UserID:    "u1",
		TokenID:   "jti",
		AMR:       []string{"pwd", "otp"},
		CreatedAt: t0,
		ExpiresAt: t0.Add(time.Hour),
	}
	require.NoError(t, s.LoginSessions().CreateLoginSession(ctx, ls))
	require.ErrorIs(t, s.LoginSessions().CreateLoginSession(ctx, ls), store.ErrAlreadyExists)

	deleted, err := s.LoginSessions().DeleteExpiredLoginSessions(ctx, t0)
	require.NoError(t, err)
	require.Zero(t, deleted, "live sessions survive")

	deleted, err = s.LoginSessions().DeleteExpiredLoginSessions(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
}

func testMFASessions(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.MFASessions().GetMFASession(ctx, "u1")
	require.ErrorIs(t, err, store.ErrNotFound)

	m := domain.MFASession{UserID: "u1", Status: domain.MFAPending, CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, s.MFASessions().UpsertMFASession(ctx, m))

	verified := t0.Add(time.Minute)
	m.Status = domain.MFAActive
	m.Secret = "JBSWY3DPEHPK3PXP"
	m.FailedAttempts = 2
	m.VerifiedAt = &verified
	m.LastUsedStep = 42
	m.CreatedAt = t0.Add(time.Hour) // ignored on update
	m.UpdatedAt = verified
	require.NoError(t, s.MFASessions().UpsertMFASession(ctx, m))

	got, err := s.MFASessions().GetMFASession(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, domain.MFAActive, got.Status)
	require.Equal(t, "JBSWY3DPEHPK3PXP", got.Secret)
	require.Equal(t, 2, got.FailedAttempts)
	require.EqualValues(t, 42, got.LastUsedStep)
	require.Equal(t, t0, got.CreatedAt)
	require.NotNil(t, got.VerifiedAt)
	require.True(t, verified.Equal(*got.VerifiedAt))
	require.Nil(t, got.LockedAt)

	require.NoError(t, s.MFASessions().UpsertMFASession(ctx, domain.MFASession{
		UserID: "u2", Status: domain.MFADisabled, CreatedAt: t0, UpdatedAt: t0,
	}))

	counts, err := s.MFASessions().CountByStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts[domain.MFAActive])
	require.Equal(t, 1, counts[domain.MFADisabled])

	n, err := s.MFASessions().CountVerifiedSince(ctx, t0)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// only the disabled record is stale; active ones are kept regardless of age
	deleted, err := s.MFASessions().DeleteStaleMFASessions(ctx, t0.Add(24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	require.NoError(t, s.MFASessions().DeleteMFASession(ctx, "u1"))
	_, err = s.MFASessions().GetMFASession(ctx, "u1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testBackupCodes(t *testing.T, s store.Store) {
	ctx := context.Background()
	codes := s.BackupCodes()

	require.NoError(t, codes.ReplaceBackupCodes(ctx, "u1", []string{"h1", "h2", "h3"}))

	require.NoError(t, codes.MarkBackupCodeUsed(ctx, "u1", "h2", t0))
	require.ErrorIs(t, codes.MarkBackupCodeUsed(ctx, "u1", "h2", t0), store.ErrNotFound)
	require.ErrorIs(t, codes.MarkBackupCodeUsed(ctx, "u2", "h1", t0), store.ErrNotFound)

	n, err := codes.CountUnusedBackupCodes(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	list, err := codes.ListBackupCodes(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "h1", list[0].CodeHash)
	require.True(t, list[1].Used())
	require.Equal(t, 2, list[2].Position)

	// replacing voids every earlier code, used or not
	require.NoError(t, codes.ReplaceBackupCodes(ctx, "u1", []string{"h9"}))
	require.ErrorIs(t, codes.MarkBackupCodeUsed(ctx, "u1", "h1", t0), store.ErrNotFound)
	n, err = codes.CountUnusedBackupCodes(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, codes.DeleteBackupCodes(ctx, "u1"))
	n, err = codes.CountUnusedBackupCodes(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, n)
}

func testTx(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().ReplaceBackupCodes(ctx, "u1", []string{"a"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := s.BackupCodes().CountUnusedBackupCodes(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, n, "rolled back writes must not be visible")

	err = s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().ReplaceBackupCodes(ctx, "u1", []string{"a", "b"}); err != nil {
			return err
		}
		return tx.MFASessions().UpsertMFASession(ctx, domain.MFASession{
			UserID: "u1", Status: domain.MFAActive, CreatedAt: t0, UpdatedAt: t0,
		})
	})
	require.NoError(t, err)

	n, err = s.BackupCodes().CountUnusedBackupCodes(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = s.MFASessions().GetMFASession(ctx, "u1")
	require.NoError(t, err)
}

// RunPending exercises a PendingActivations implementation.
func RunPending(t *testing.T, p store.PendingActivations) {
	ctx := context.Background()

	_, err := p.GetPending(ctx, "u1")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = p.IncrementPendingAttempts(ctx, "u1")
	require.ErrorIs(t, err, store.ErrNotFound)

	// use real time so drivers with native expiry keep the record
	now := time.Now().UTC().Truncate(time.Millisecond)
	first := domain.PendingActivation{
		UserID:          "u1",
		Secret:          "FIRSTSECRET",
		Label:           "alice",
		Issuer:          "mfagate",
		ProvisioningURI: "otpauth://totp/mfagate:alice?secret=FIRSTSECRET",
		CreatedAt:       now,
		ExpiresAt:       now.Add(10 * time.Minute),
	}
	require.NoError(t, p.PutPending(ctx, first))

	n, err := p.IncrementPendingAttempts(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	n, err = p.IncrementPendingAttempts(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got, err := p.GetPending(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "FIRSTSECRET", got.Secret)
	require.Equal(t, 2, got.Attempts)
	require.True(t, first.ExpiresAt.Equal(got.ExpiresAt))
	require.Equal(t, first.ProvisioningURI, got.ProvisioningURI)

	// a new activation replaces the one in flight and resets attempts
	second := first
	second.Secret = "SECONDSECRET"
	require.NoError(t, p.PutPending(ctx, second))
	got, err = p.GetPending(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "SECONDSECRET", got.Secret)
	require.Zero(t, got.Attempts)

	stale := first
	stale.UserID = "u2"
	stale.ExpiresAt = now.Add(time.Second)
	require.NoError(t, p.PutPending(ctx, stale))

	count, err := p.CountPending(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	deleted, err := p.DeleteExpiredPending(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	count, err = p.CountPending(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.NoError(t, p.DeletePending(ctx, "u1"))
	_, err = p.GetPending(ctx, "u1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

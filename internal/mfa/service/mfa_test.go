package service

import (
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfa/gateway"
	"github.com/aussiebroadwan/mfagate/internal/mfa/store"
	"github.com/stretchr/testify/require"
)

func TestEnrollBegin(t *testing.T) {
	t.Parallel()

	t.Run("creates pending activation", func(t *testing.T) {
		h := newHarness(t)
		h.addUser("u1", "password1", false)

		resp, err := h.mfa.EnrollBegin(h.ctx, "u1", "")
		require.NoError(t, err)
		require.NotEmpty(t, resp.Secret)
		require.Contains(t, resp.ProvisioningURI, "otpauth://totp/")
		require.Contains(t, resp.QRCode, "data:image/png;base64,")
		require.Equal(t, "u1-name", resp.Account)
		require.Equal(t, h.clock.Now().Add(10*time.Minute), resp.ExpiresAt)

		sess, err := h.store.MFASessions().GetMFASession(h.ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, domain.MFAPending, sess.Status)
		require.Empty(t, sess.Secret, "candidate secret lives only in the pending record")

		u, err := h.store.Users().GetUserByID(h.ctx, "u1")
		require.NoError(t, err)
		require.False(t, u.HasMFA())
	})

	t.Run("restart replaces the previous secret", func(t *testing.T) {
		h := newHarness(t)
		h.addUser("u1", "password1", false)

		first, err := h.mfa.EnrollBegin(h.ctx, "u1", "phone")
		require.NoError(t, err)
		second, err := h.mfa.EnrollBegin(h.ctx, "u1", "phone")
		require.NoError(t, err)
		require.NotEqual(t, first.Secret, second.Secret)

		_, err = h.mfa.EnrollConfirm(h.ctx, "u1", h.code(first.Secret))
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("active user conflicts", func(t *testing.T) {
		h := newHarness(t)
		h.addUser("u1", "password1", false)
		h.enroll("u1")

		_, err := h.mfa.EnrollBegin(h.ctx, "u1", "")
		require.ErrorIs(t, err, ErrConflict)
	})

	t.Run("unknown user", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.mfa.EnrollBegin(h.ctx, "ghost", "")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("gateway down", func(t *testing.T) {
		h := newHarness(t)
		h.addUser("u1", "password1", false)
		h.id.fail(gateway.ErrUnavailable, nil, nil)

		_, err := h.mfa.EnrollBegin(h.ctx, "u1", "")
		require.ErrorIs(t, err, ErrUpstreamUnavailable)
	})
}

func TestEnrollConfirm(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, newHarness func(*testing.T) *harness) {
		t.Run("activates and issues backup codes", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)

			resp, err := h.mfa.EnrollBegin(h.ctx, "u1", "")
			require.NoError(t, err)

			res, err := h.mfa.EnrollConfirm(h.ctx, "u1", h.code(resp.Secret))
			require.NoError(t, err)
			require.True(t, res.Activated)
			require.Len(t, res.BackupCodes, 8)
			for _, c := range res.BackupCodes {
				require.Len(t, c, 10)
			}

			u, err := h.store.Users().GetUserByID(h.ctx, "u1")
			require.NoError(t, err)
			require.True(t, u.MFAEnabled)
			require.Equal(t, resp.Secret, u.MFASecret)

			sess, err := h.store.MFASessions().GetMFASession(h.ctx, "u1")
			require.NoError(t, err)
			require.Equal(t, domain.MFAActive, sess.Status)
			require.Equal(t, resp.Secret, sess.Secret)
			require.NotNil(t, sess.VerifiedAt)

			_, err = h.store.PendingActivations().GetPending(h.ctx, "u1")
			require.ErrorIs(t, err, store.ErrNotFound)
		})

		t.Run("wrong code keeps pending", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)

			resp, err := h.mfa.EnrollBegin(h.ctx, "u1", "")
			require.NoError(t, err)

			_, err = h.mfa.EnrollConfirm(h.ctx, "u1", h.wrongCode(resp.Secret))
			require.ErrorIs(t, err, ErrInvalidCode)

			p, err := h.store.PendingActivations().GetPending(h.ctx, "u1")
			require.NoError(t, err)
			require.Equal(t, 1, p.Attempts)

			_, err = h.mfa.EnrollConfirm(h.ctx, "u1", h.code(resp.Secret))
			require.NoError(t, err)
		})

		t.Run("malformed code never reaches the engine", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)
			_, err := h.mfa.EnrollBegin(h.ctx, "u1", "")
			require.NoError(t, err)

			for _, code := range []string{"", "12345", "1234567", "12a456", "١٢٣٤٥٦"} {
				_, err := h.mfa.EnrollConfirm(h.ctx, "u1", code)
				require.ErrorIs(t, err, ErrValidation, code)
			}
			require.Zero(t, h.totp.verifies.Load())
		})

		t.Run("pending expires after ttl", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)
			h.addUser("u2", "password2", false)

			a, err := h.mfa.EnrollBegin(h.ctx, "u1", "")
			require.NoError(t, err)
			b, err := h.mfa.EnrollBegin(h.ctx, "u2", "")
			require.NoError(t, err)

			h.clock.Advance(9*time.Minute + 59*time.Second)
			_, err = h.mfa.EnrollConfirm(h.ctx, "u1", h.code(a.Secret))
			require.NoError(t, err)

			h.clock.Advance(2 * time.Second)
			_, err = h.mfa.EnrollConfirm(h.ctx, "u2", h.code(b.Secret))
			require.ErrorIs(t, err, ErrExpired)

			_, err = h.mfa.EnrollConfirm(h.ctx, "u2", h.code(b.Secret))
			require.ErrorIs(t, err, ErrNoPendingActivation, "expired record is discarded")
		})

		t.Run("no pending activation", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)

			_, err := h.mfa.EnrollConfirm(h.ctx, "u1", "123456")
			require.ErrorIs(t, err, ErrNotFound)
		})

		t.Run("gateway failure leaves nothing active", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)

			resp, err := h.mfa.EnrollBegin(h.ctx, "u1", "")
			require.NoError(t, err)

			h.id.fail(nil, gateway.ErrUnavailable, nil)
			_, err = h.mfa.EnrollConfirm(h.ctx, "u1", h.code(resp.Secret))
			require.ErrorIs(t, err, ErrUpstreamUnavailable)

			sess, err := h.store.MFASessions().GetMFASession(h.ctx, "u1")
			require.NoError(t, err)
			require.Equal(t, domain.MFAPending, sess.Status)

			n, err := h.store.BackupCodes().CountUnusedBackupCodes(h.ctx, "u1")
			require.NoError(t, err)
			require.Zero(t, n)
		})
	})
}

func TestVerifyLogin(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, newHarness func(*testing.T) *harness) {
		t.Run("accepts current code", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)
			secret, _ := h.enroll("u1")

			require.NoError(t, h.mfa.VerifyLogin(h.ctx, "u1", h.code(secret)))
		})

		t.Run("locks after five failures", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)
			secret, _ := h.enroll("u1")
			wrong := h.wrongCode(secret)

			for i := 1; i <= 4; i++ {
				err := h.mfa.VerifyLogin(h.ctx, "u1", wrong)
				require.ErrorIs(t, err, ErrInvalidCode)
				require.NotErrorIs(t, err, ErrLocked)
			}

			err := h.mfa.VerifyLogin(h.ctx, "u1", wrong)
			require.ErrorIs(t, err, ErrInvalidCode)
			require.ErrorIs(t, err, ErrLocked)

			sess, err := h.store.MFASessions().GetMFASession(h.ctx, "u1")
			require.NoError(t, err)
			require.Equal(t, domain.MFALocked, sess.Status)
			require.Equal(t, 5, sess.FailedAttempts)
			require.NotNil(t, sess.LockedAt)

			evaluated := h.totp.verifies.Load()
			err = h.mfa.VerifyLogin(h.ctx, "u1", h.code(secret))
			require.ErrorIs(t, err, ErrLocked)
			require.Equal(t, evaluated, h.totp.verifies.Load(), "locked users are refused before the code is checked")
		})

		t.Run("success resets the counter", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)
			secret, _ := h.enroll("u1")
			wrong := h.wrongCode(secret)

			for range 4 {
				require.Error(t, h.mfa.VerifyLogin(h.ctx, "u1", wrong))
			}
			require.NoError(t, h.mfa.VerifyLogin(h.ctx, "u1", h.code(secret)))

			sess, err := h.store.MFASessions().GetMFASession(h.ctx, "u1")
			require.NoError(t, err)
			require.Zero(t, sess.FailedAttempts)
			require.Equal(t, domain.MFAActive, sess.Status)

			h.clock.Advance(30 * time.Second)
			wrong = h.wrongCode(secret)
			for range 4 {
				require.NotErrorIs(t, h.mfa.VerifyLogin(h.ctx, "u1", wrong), ErrLocked)
			}
		})

		t.Run("rejects a replayed code", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)
			secret, _ := h.enroll("u1")

			code := h.code(secret)
			require.NoError(t, h.mfa.VerifyLogin(h.ctx, "u1", code))

			err := h.mfa.VerifyLogin(h.ctx, "u1", code)
			require.ErrorIs(t, err, ErrCodeReplayed)
			require.ErrorIs(t, err, ErrUnauthorized)

			h.clock.Advance(30 * time.Second)
			require.NoError(t, h.mfa.VerifyLogin(h.ctx, "u1", h.code(secret)))
		})

		t.Run("replay allowed when protection is off", func(t *testing.T) {
			h := newHarness(t)
			h.mfa.Config.ReplayProtection = false
			h.addUser("u1", "password1", false)
			secret, _ := h.enroll("u1")

			code := h.code(secret)
			require.NoError(t, h.mfa.VerifyLogin(h.ctx, "u1", code))
			require.NoError(t, h.mfa.VerifyLogin(h.ctx, "u1", code))
		})

		t.Run("not enrolled", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)

			err := h.mfa.VerifyLogin(h.ctx, "u1", "123456")
			require.ErrorIs(t, err, ErrNotFound)
		})

		t.Run("pending is not active", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)
			_, err := h.mfa.EnrollBegin(h.ctx, "u1", "")
			require.NoError(t, err)

			err = h.mfa.VerifyLogin(h.ctx, "u1", "123456")
			require.ErrorIs(t, err, ErrInvalidState)
		})

		t.Run("adopts users enrolled at the gateway", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)
			secret, _ := h.enroll("u1")
			require.NoError(t, h.store.MFASessions().DeleteMFASession(h.ctx, "u1"))

			require.NoError(t, h.mfa.VerifyLogin(h.ctx, "u1", h.code(secret)))
		})
	})
}

func TestUnlockAndDisable(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, newHarness func(*testing.T) *harness) {
		lock := func(h *harness, secret string) {
			wrong := h.wrongCode(secret)
			for range 5 {
				_ = h.mfa.VerifyLogin(h.ctx, "u1", wrong)
			}
		}

		t.Run("unlock restores the same secret", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)
			secret, _ := h.enroll("u1")
			lock(h, secret)

			require.NoError(t, h.mfa.Unlock(h.ctx, "u1"))
			require.NoError(t, h.mfa.VerifyLogin(h.ctx, "u1", h.code(secret)))

			sess, err := h.store.MFASessions().GetMFASession(h.ctx, "u1")
			require.NoError(t, err)
			require.Nil(t, sess.LockedAt)
		})

		t.Run("unlock of an active user", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)
			h.enroll("u1")

			require.ErrorIs(t, h.mfa.Unlock(h.ctx, "u1"), ErrInvalidState)
		})

		t.Run("locked user cannot re-enroll", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)
			secret, _ := h.enroll("u1")
			lock(h, secret)

			_, err := h.mfa.EnrollBegin(h.ctx, "u1", "")
			require.ErrorIs(t, err, ErrLocked)
		})

		t.Run("disable from locked then re-enroll", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)
			secret, _ := h.enroll("u1")
			lock(h, secret)

			require.NoError(t, h.mfa.Disable(h.ctx, "u1"))

			u, err := h.store.Users().GetUserByID(h.ctx, "u1")
			require.NoError(t, err)
			require.False(t, u.HasMFA())

			n, err := h.store.BackupCodes().CountUnusedBackupCodes(h.ctx, "u1")
			require.NoError(t, err)
			require.Zero(t, n)

			next, _ := h.enroll("u1")
			require.NotEqual(t, secret, next)
		})

		t.Run("disable without enrollment", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)
			require.ErrorIs(t, h.mfa.Disable(h.ctx, "u1"), ErrNotFound)
		})
	})
}

func TestStatusAndStats(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.addUser("u1", "password1", false)
	h.addUser("u2", "password2", false)
	h.enroll("u1")
	_, err := h.mfa.EnrollBegin(h.ctx, "u2", "")
	require.NoError(t, err)

	view, err := h.mfa.Status(h.ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, domain.MFAActive, view.Status)
	require.True(t, view.MFAEnabled)
	require.Equal(t, 8, view.BackupCodesRemaining)
	require.Nil(t, view.PendingExpiresAt)

	view, err = h.mfa.Status(h.ctx, "u2")
	require.NoError(t, err)
	require.Equal(t, domain.MFAPending, view.Status)
	require.NotNil(t, view.PendingExpiresAt)

	stats, err := h.mfa.Stats(h.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.ByStatus[domain.MFAActive])
	require.Equal(t, 1, stats.ByStatus[domain.MFAPending])
	require.Equal(t, 1, stats.PendingActivations)
	require.Equal(t, 1, stats.VerifiedLast24h)
}

func TestErrorClasses(t *testing.T) {
	t.Parallel()

	classes := []error{
		ErrValidation, ErrNotFound, ErrUnauthorized, ErrExpired,
		ErrLocked, ErrUpstreamUnavailable, ErrConflict, ErrInvalidState,
	}
	specific := []error{
		ErrMalformedCode, ErrMalformedBackupCode, ErrPasswordTooShort, ErrPasswordUnchanged,
		ErrMissingPassword, ErrUserNotFound, ErrNoMFASession, ErrNoPendingActivation,
		ErrInvalidCredentials, ErrInvalidCode, ErrCodeReplayed, ErrInvalidBackupCode,
		ErrBootstrapToken, ErrPendingExpired, ErrMFALocked, ErrAlreadyActive,
		ErrAlreadyBootstrapped, ErrNoTemporaryPassword, ErrPasswordChangeRequired,
		ErrMFANotActive, ErrNotLocked,
	}

	for _, err := range specific {
		n := 0
		for _, c := range classes {
			if errors.Is(err, c) {
				n++
			}
		}
		require.Equal(t, 1, n, err.Error())
	}

	require.ErrorIs(t, gatewayErr(gateway.ErrUserNotFound), ErrNotFound)
	require.ErrorIs(t, gatewayErr(gateway.ErrUnavailable), ErrUpstreamUnavailable)
	require.ErrorIs(t, gatewayErr(errors.New("rejected")), ErrUpstreamUnavailable)
	require.NoError(t, gatewayErr(nil))
}

func TestStatusListsBackupCodeSlots(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, newHarness func(*testing.T) *harness) {
		h := newHarness(t)
		h.addUser("u1", "password1", false)
		_, codes := h.enroll("u1")

		_, err := h.mfa.ConsumeBackupCode(h.ctx, "u1", codes[3])
		require.NoError(t, err)

		view, err := h.mfa.Status(h.ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, 7, view.BackupCodesRemaining)
		require.Len(t, view.BackupCodes, 8)

		var used []domain.BackupCodeState
		for i, c := range view.BackupCodes {
			require.Equal(t, i, c.Position)
			if c.UsedAt != nil {
				used = append(used, c)
			}
		}
		require.Len(t, used, 1)
		require.True(t, used[0].UsedAt.Equal(h.clock.Now()))

		require.NoError(t, h.mfa.Disable(h.ctx, "u1"))
		view, err = h.mfa.Status(h.ctx, "u1")
		require.NoError(t, err)
		require.Empty(t, view.BackupCodes)
	})
}

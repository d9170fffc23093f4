package mfa_test

import (
	"testing"

	"github.com/aussiebroadwan/mfagate/pkg/mfasdk"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	client := setupMFAContainer(t, nil)

	live, err := client.GetLiveness(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)

	ready, err := client.GetReadiness(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)

	keys, err := client.GetJWKS(t.Context())
	require.NoError(t, err)
	require.Len(t, keys.Keys, 1, "MFA_NUM_KEYS=1")
}

func TestBootstrap_OnlyOnce(t *testing.T) {
	client := setupMFAContainer(t, nil)

	_, err := client.Bootstrap(t.Context(), "wrong-token", mfasdk.BootstrapRequest{
		Users: []mfasdk.BootstrapUser{{Username: "eve", Password: "Eve123!pass"}},
	})
	require.ErrorIs(t, err, mfasdk.ErrUnauthorized)

	bootstrapUsers(t, client, false)

	_, err = client.Bootstrap(t.Context(), bootstrapToken, mfasdk.BootstrapRequest{
		Users: []mfasdk.BootstrapUser{{Username: "eve", Password: "Eve123!pass"}},
	})
	require.ErrorIs(t, err, mfasdk.ErrConflict)
}

// TestMFAEnrollmentAndAuthentication covers enrollment, step-up with TOTP
// and with a backup code, and single use of backup codes.
func TestMFAEnrollmentAndAuthentication(t *testing.T) {
	client := setupMFAContainer(t, nil)
	_, userID := bootstrapUsers(t, client, false)

	session := login(t, client, userID, userPassword)
	clock, backupCodes := enroll(t, session)

	status, err := session.Status(t.Context())
	require.NoError(t, err)
	require.Equal(t, "active", status.Status)
	require.True(t, status.MFAEnabled)
	require.Equal(t, 8, status.BackupCodesRemaining)

	// TOTP
	stepUp := loginStepUp(t, client, userID, userPassword)
	mfaSession, err := stepUp.VerifyTOTP(t.Context(), clock.next(t))
	require.NoError(t, err)
	require.Equal(t, "session", mfaSession.Token().Purpose)

	// A step-up token is not a session.
	_, err = client.NewSession(&mfasdk.TokenResponse{AccessToken: loginStepUpToken(t, client, userID)}).Status(t.Context())
	require.ErrorIs(t, err, mfasdk.ErrInvalidToken)

	// Backup code
	stepUp = loginStepUp(t, client, userID, userPassword)
	_, remaining, err := stepUp.ConsumeBackupCode(t.Context(), backupCodes[0])
	require.NoError(t, err)
	require.Equal(t, 7, remaining)

	stepUp = loginStepUp(t, client, userID, userPassword)
	_, _, err = stepUp.ConsumeBackupCode(t.Context(), backupCodes[0])
	require.ErrorIs(t, err, mfasdk.ErrUnauthorized, "backup code reuse should be rejected")

	// Regenerate invalidates the old set.
	fresh, err := mfaSession.RegenerateBackupCodes(t.Context())
	require.NoError(t, err)
	require.Len(t, fresh, 8)

	stepUp = loginStepUp(t, client, userID, userPassword)
	_, _, err = stepUp.ConsumeBackupCode(t.Context(), backupCodes[1])
	require.Error(t, err)
	_, remaining, err = stepUp.ConsumeBackupCode(t.Context(), fresh[0])
	require.NoError(t, err)
	require.Equal(t, 7, remaining)
}

func loginStepUpToken(t *testing.T, client *mfasdk.SDKClient, userID string) string {
	t.Helper()
	resp, err := client.Login(t.Context(), userID, userPassword)
	require.NoError(t, err)
	require.True(t, resp.RequiresMFA)
	return resp.Token.AccessToken
}

// TestMFALockoutAndAdminUnlock drives a user into lockout and back out
// through the admin API.
func TestMFALockoutAndAdminUnlock(t *testing.T) {
	client := setupMFAContainer(t, nil)
	adminID, userID := bootstrapUsers(t, client, false)

	clock, _ := enroll(t, login(t, client, userID, userPassword))

	stepUp := loginStepUp(t, client, userID, userPassword)
	for range 4 {
		_, err := stepUp.VerifyTOTP(t.Context(), clock.wrong(t))
		require.ErrorIs(t, err, mfasdk.ErrUnauthorized)
	}
	_, err := stepUp.VerifyTOTP(t.Context(), clock.wrong(t))
	require.ErrorIs(t, err, mfasdk.ErrLocked, "fifth failure should lock")

	_, err = stepUp.VerifyTOTP(t.Context(), clock.next(t))
	require.ErrorIs(t, err, mfasdk.ErrLocked, "correct code is refused while locked")

	admin := login(t, client, adminID, adminPassword)

	userStatus, err := admin.UserStatus(t.Context(), userID)
	require.NoError(t, err)
	require.Equal(t, "locked", userStatus.Status)
	require.NotNil(t, userStatus.LockedAt)

	stats, err := admin.Stats(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, stats.ByStatus["locked"])

	require.NoError(t, admin.Unlock(t.Context(), userID))

	_, err = stepUp.VerifyTOTP(t.Context(), clock.next(t))
	require.NoError(t, err)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	client := setupMFAContainer(t, nil)
	adminID, userID := bootstrapUsers(t, client, false)

	user := login(t, client, userID, userPassword)
	_, err := user.Stats(t.Context())
	require.ErrorIs(t, err, mfasdk.ErrInsufficientScope)

	require.ErrorIs(t, user.Unlock(t.Context(), adminID), mfasdk.ErrInsufficientScope)
}

// TestFirstLogin walks a temporary password through the password change
// and the MFA offer.
func TestFirstLogin(t *testing.T) {
	client := setupMFAContainer(t, nil)
	_, userID := bootstrapUsers(t, client, true)

	state, err := client.CheckFirstLogin(t.Context(), userID)
	require.NoError(t, err)
	require.True(t, state.IsFirstLogin)
	require.Equal(t, "change_password", state.NextStep)

	resp, err := client.Login(t.Context(), userID, userPassword)
	require.NoError(t, err)
	require.True(t, resp.PasswordChangeRequired)
	require.Nil(t, resp.Token)

	_, err = client.ChangeTemporaryPassword(t.Context(), userID, userPassword, userPassword)
	require.ErrorIs(t, err, mfasdk.ErrValidation, "unchanged password is rejected")

	changed, err := client.ChangeTemporaryPassword(t.Context(), userID, userPassword, "Brand-new-pass1")
	require.NoError(t, err)
	require.False(t, changed.RequiresMFA)
	require.Equal(t, "session", changed.Token.Purpose)

	_, err = client.ChangeTemporaryPassword(t.Context(), userID, "Brand-new-pass1", "Another-pass22")
	require.ErrorIs(t, err, mfasdk.ErrInvalidState)

	session := client.NewSession(&changed.Token)
	setup, err := session.SetupMFA(t.Context(), true, "alice@laptop")
	require.NoError(t, err)
	require.NotNil(t, setup.Enroll)
	require.Nil(t, setup.Token)
	require.Contains(t, setup.Enroll.ProvisioningURI, "alice")

	clock := newTOTPClock(t, setup.Enroll.Secret)
	confirmed, err := session.Confirm(t.Context(), clock.next(t))
	require.NoError(t, err)
	require.True(t, confirmed.Activated)

	state, err = client.CheckFirstLogin(t.Context(), userID)
	require.NoError(t, err)
	require.False(t, state.IsFirstLogin)
	require.True(t, state.MFAEnabled)
}

func TestDisableMFA(t *testing.T) {
	client := setupMFAContainer(t, nil)
	_, userID := bootstrapUsers(t, client, false)

	session := login(t, client, userID, userPassword)
	enroll(t, session)

	require.NoError(t, session.Disable(t.Context()))

	status, err := session.Status(t.Context())
	require.NoError(t, err)
	require.Equal(t, "disabled", status.Status)
	require.False(t, status.MFAEnabled)

	// Back to a plain password login.
	login(t, client, userID, userPassword)
}

package service

import (
	"testing"

	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
	"github.com/aussiebroadwan/mfagate/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, newHarness func(*testing.T) *harness) {
		t.Run("plain user gets a session", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)

			res, err := h.login.Login(h.ctx, "u1", "password1")
			require.NoError(t, err)
			require.False(t, res.RequiresMFA)
			require.Equal(t, jwtx.PurposeSession, res.Token.Purpose)

			claims, err := h.keys.Verifier.Verify(res.Token.AccessToken)
			require.NoError(t, err)
			require.Equal(t, []string{ScopeSelf}, claims.Scopes)
		})

		t.Run("admin scope", func(t *testing.T) {
			h := newHarness(t)
			u := h.addUser("u1", "password1", false)
			u.Role = domain.RoleAdmin

			tok, err := h.tokens.StartSession(h.ctx, u, []string{jwtx.AMRPassword})
			require.NoError(t, err)
			claims, err := h.keys.Verifier.Verify(tok.AccessToken)
			require.NoError(t, err)
			require.ElementsMatch(t, []string{ScopeSelf, ScopeAdmin}, claims.Scopes)
		})

		t.Run("temporary password", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "changeme1", true)

			res, err := h.login.Login(h.ctx, "u1", "changeme1")
			require.NoError(t, err)
			require.True(t, res.PasswordChangeRequired)
			require.Empty(t, res.Token.AccessToken)
		})

		t.Run("mfa user gets a step-up", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)
			_, codes := h.enroll("u1")

			res, err := h.login.Login(h.ctx, "u1", "password1")
			require.NoError(t, err)
			require.True(t, res.RequiresMFA)

			claims, err := h.keys.Verifier.Verify(res.Token.AccessToken)
			require.NoError(t, err)
			require.NoError(t, claims.ValidatePurpose(jwtx.PurposeStepUp))
			require.Equal(t, []string{ScopeVerify}, claims.Scopes)

			tok, used, err := h.login.CompleteWithBackupCode(h.ctx, "u1", codes[0])
			require.NoError(t, err)
			require.Equal(t, 7, used.Remaining)
			require.Equal(t, jwtx.PurposeSession, tok.Purpose)
		})

		t.Run("unknown user and wrong password look alike", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)

			_, errUnknown := h.login.Login(h.ctx, "ghost", "password1")
			_, errWrong := h.login.Login(h.ctx, "u1", "password2")
			require.ErrorIs(t, errUnknown, ErrInvalidCredentials)
			require.ErrorIs(t, errWrong, ErrInvalidCredentials)
		})

		t.Run("failed second factor gives no session", func(t *testing.T) {
			h := newHarness(t)
			h.addUser("u1", "password1", false)
			secret, _ := h.enroll("u1")

			_, err := h.login.CompleteWithTOTP(h.ctx, "u1", h.wrongCode(secret))
			require.ErrorIs(t, err, ErrUnauthorized)
			require.Empty(t, h.id.sessions)
		})
	})
}

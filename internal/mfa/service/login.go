package service

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfa/gateway"
	"github.com/aussiebroadwan/mfagate/pkg/cryptox"
	"github.com/aussiebroadwan/mfagate/pkg/jwtx"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// LoginService handles password logins and the second factor that may
// follow them.
type LoginService struct {
	Identity gateway.Identity
	Tokens   *TokenService
	MFA      *MFAService
}

func NewLoginService(id gateway.Identity, tokens *TokenService, mfa *MFAService) *LoginService {
	return &LoginService{Identity: id, Tokens: tokens, MFA: mfa}
}

// Login checks a password. Unknown users and wrong passwords look the same.
func (s *LoginService) Login(ctx context.Context, userID, password string) (domain.LoginResult, error) {
	if userID == "" || password == "" {
		return domain.LoginResult{}, ErrMissingPassword
	}

	user, err := s.Identity.GetUser(ctx, userID)
	if errors.Is(err, gateway.ErrUserNotFound) {
		// burn comparable time so unknown ids are not distinguishable
		_, _ = cryptox.HashPassword(password)
		return domain.LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.LoginResult{}, gatewayErr(err)
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		slogx.FromContext(ctx).Info("password login rejected", "user_id", userID)
		return domain.LoginResult{}, ErrInvalidCredentials
	}

	if user.TemporaryPassword {
		return domain.LoginResult{PasswordChangeRequired: true}, nil
	}

	if user.HasMFA() {
		tok, err := s.Tokens.IssueStepUp(ctx, user)
		if err != nil {
			return domain.LoginResult{}, err
		}
		return domain.LoginResult{RequiresMFA: true, Token: tok}, nil
	}

	tok, err := s.Tokens.StartSession(ctx, user, []string{jwtx.AMRPassword})
	if err != nil {
		return domain.LoginResult{}, err
	}
	return domain.LoginResult{Token: tok}, nil
}

// CompleteWithTOTP exchanges a step-up for a session after a TOTP check.
func (s *LoginService) CompleteWithTOTP(ctx context.Context, userID, code string) (domain.IssuedToken, error) {
	if err := s.MFA.VerifyLogin(ctx, userID, code); err != nil {
		return domain.IssuedToken{}, err
	}
	return s.session(ctx, userID)
}

// CompleteWithBackupCode exchanges a step-up for a session by spending a
// backup code.
func (s *LoginService) CompleteWithBackupCode(ctx context.Context, userID, code string) (domain.IssuedToken, domain.BackupCodeResult, error) {
	res, err := s.MFA.ConsumeBackupCode(ctx, userID, code)
	if err != nil {
		return domain.IssuedToken{}, res, err
	}
	tok, err := s.session(ctx, userID)
	return tok, res, err
}

func (s *LoginService) session(ctx context.Context, userID string) (domain.IssuedToken, error) {
	user, err := s.Identity.GetUser(ctx, userID)
	if err != nil {
		return domain.IssuedToken{}, gatewayErr(err)
	}
	return s.Tokens.StartSession(ctx, user, []string{jwtx.AMRPassword, jwtx.AMROTP, jwtx.AMRMFA})
}

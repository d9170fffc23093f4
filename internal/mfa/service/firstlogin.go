package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfa/gateway"
	"github.com/aussiebroadwan/mfagate/pkg/cryptox"
	"github.com/aussiebroadwan/mfagate/pkg/jwtx"
	"github.com/aussiebroadwan/mfagate/pkg/lockx"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// FirstLoginService walks a user from a temporary password to a real one
// and then on to MFA verification or the MFA enrollment offer. Its state is
// derived from the identity record on every call.
type FirstLoginService struct {
	Config   Config
	Identity gateway.Identity
	Tokens   *TokenService
	MFA      *MFAService

	locks lockx.Keyed
}

func NewFirstLoginService(cfg Config, id gateway.Identity, tokens *TokenService, mfa *MFAService) *FirstLoginService {
	return &FirstLoginService{Config: cfg.withDefaults(), Identity: id, Tokens: tokens, MFA: mfa}
}

// CheckFirstLogin reports the step the user has to take next.
func (s *FirstLoginService) CheckFirstLogin(ctx context.Context, userID string) (domain.FirstLoginState, error) {
	user, err := s.Identity.GetUser(ctx, userID)
	if err != nil {
		return domain.FirstLoginState{}, gatewayErr(err)
	}

	state := domain.FirstLoginState{
		UserID:       user.ID,
		IsFirstLogin: user.TemporaryPassword,
		MFAEnabled:   user.HasMFA(),
	}
	switch {
	case user.TemporaryPassword:
		state.NextStep = domain.StepChangePassword
	case user.HasMFA():
		state.NextStep = domain.StepVerifyMFA
	default:
		state.NextStep = domain.StepOfferMFA
	}
	return state, nil
}

// ChangeTemporaryPassword replaces a temporary password. The new digest and
// the cleared flag are written in one update. Afterwards a user with MFA
// gets a step-up token; anyone else gets a full session.
func (s *FirstLoginService) ChangeTemporaryPassword(ctx context.Context, userID, current, next string) (domain.PasswordChangeResult, error) {
	if userID == "" {
		return domain.PasswordChangeResult{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if current == "" || next == "" {
		return domain.PasswordChangeResult{}, ErrMissingPassword
	}

	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return domain.PasswordChangeResult{}, err
	}
	defer unlock()

	log := slogx.FromContext(ctx).With("user_id", userID)

	user, err := s.Identity.GetUser(ctx, userID)
	if err != nil {
		return domain.PasswordChangeResult{}, gatewayErr(err)
	}
	if !user.TemporaryPassword {
		log.Warn("password change attempted without a temporary password")
		return domain.PasswordChangeResult{}, ErrNoTemporaryPassword
	}

	if err := cryptox.VerifyPassword(current, user.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			log.Error("stored password digest unusable", "error", err)
		}
		return domain.PasswordChangeResult{}, ErrInvalidCredentials
	}

	if len([]rune(next)) < s.Config.MinPasswordLength {
		return domain.PasswordChangeResult{}, ErrPasswordTooShort
	}
	if next == current {
		return domain.PasswordChangeResult{}, ErrPasswordUnchanged
	}

	digest, err := cryptox.HashPassword(next)
	if err != nil {
		return domain.PasswordChangeResult{}, fmt.Errorf("hash password: %w", err)
	}

	cleared := false
	if err := s.Identity.UpdateUser(ctx, userID, domain.UserUpdate{
		PasswordHash:      &digest,
		TemporaryPassword: &cleared,
	}); err != nil {
		return domain.PasswordChangeResult{}, gatewayErr(err)
	}
	log.Info("temporary password replaced")

	refreshed, err := s.Identity.GetUser(ctx, userID)
	if err != nil {
		return domain.PasswordChangeResult{}, gatewayErr(err)
	}

	if refreshed.HasMFA() {
		tok, err := s.Tokens.IssueStepUp(ctx, refreshed)
		if err != nil {
			return domain.PasswordChangeResult{}, err
		}
		return domain.PasswordChangeResult{RequiresMFA: true, Token: tok}, nil
	}

	tok, err := s.Tokens.StartSession(ctx, refreshed, []string{jwtx.AMRPassword})
	if err != nil {
		return domain.PasswordChangeResult{}, err
	}
	return domain.PasswordChangeResult{RequiresMFA: false, Token: tok}, nil
}

// SetupMFA answers the enrollment offer made after a first login. Accepting
// starts enrollment; declining hands out a session.
func (s *FirstLoginService) SetupMFA(ctx context.Context, userID string, enable bool, label string) (domain.SetupResult, error) {
	user, err := s.Identity.GetUser(ctx, userID)
	if err != nil {
		return domain.SetupResult{}, gatewayErr(err)
	}
	if user.TemporaryPassword {
		return domain.SetupResult{}, ErrPasswordChangeRequired
	}

	if enable {
		resp, err := s.MFA.EnrollBegin(ctx, userID, label)
		if err != nil {
			return domain.SetupResult{}, err
		}
		return domain.SetupResult{Enroll: &resp}, nil
	}

	if user.HasMFA() {
		return domain.SetupResult{}, ErrAlreadyActive
	}

	tok, err := s.Tokens.StartSession(ctx, user, []string{jwtx.AMRPassword})
	if err != nil {
		return domain.SetupResult{}, err
	}
	slogx.FromContext(ctx).Info("mfa offer declined", "user_id", userID)
	return domain.SetupResult{Session: &tok}, nil
}

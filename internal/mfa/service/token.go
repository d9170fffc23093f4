package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfa/gateway"
	"github.com/aussiebroadwan/mfagate/pkg/idx"
	"github.com/aussiebroadwan/mfagate/pkg/jwtx"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// Scopes carried by issued tokens.
const (
	ScopeSelf   = "mfa:self"
	ScopeAdmin  = "mfa:admin"
	ScopeVerify = "mfa:verify"
)

var errNoSigner = errors.New("no signing key loaded")

// SignerSource hands out the current signing key. *jwtx.KeyManager
// satisfies it.
type SignerSource interface {
	GetSigner() jwtx.Signer
}

// TokenService mints step-up and session tokens.
type TokenService struct {
	Keys       SignerSource
	Identity   gateway.Identity
	Issuer     string
	Audience   []string
	StepUpTTL  time.Duration
	SessionTTL time.Duration
	Now        func() time.Time
}

func NewTokenService(cfg Config, keys SignerSource, id gateway.Identity) *TokenService {
	cfg = cfg.withDefaults()
	return &TokenService{
		Keys:       keys,
		Identity:   id,
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		StepUpTTL:  cfg.StepUpTTL,
		SessionTTL: cfg.SessionTTL,
		Now:        time.Now,
	}
}

func (s *TokenService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *TokenService) sign(p jwtx.ClaimsParams) (domain.IssuedToken, jwtx.Claims, error) {
	signer := s.Keys.GetSigner()
	if signer == nil {
		return domain.IssuedToken{}, jwtx.Claims{}, errNoSigner
	}

	p.Issuer = s.Issuer
	p.Audience = s.Audience
	claims := jwtx.NewClaims(p)

	raw, err := signer.Sign(claims)
	if err != nil {
		return domain.IssuedToken{}, jwtx.Claims{}, fmt.Errorf("sign token: %w", err)
	}

	return domain.IssuedToken{
		AccessToken: raw,
		TokenType:   "Bearer",
		Purpose:     p.Purpose,
		ExpiresIn:   int(p.TTL.Seconds()),
		SessionID:   p.SID,
	}, claims, nil
}

// IssueStepUp mints a short lived token that only allows finishing the
// second factor. No session is recorded.
func (s *TokenService) IssueStepUp(ctx context.Context, user domain.User) (domain.IssuedToken, error) {
	tok, _, err := s.sign(jwtx.ClaimsParams{
		Subject:  user.ID,
		Purpose:  jwtx.PurposeStepUp,
		Scopes:   []string{ScopeVerify},
		AMR:      []string{jwtx.AMRPassword},
		Username: user.Username,
		TTL:      s.StepUpTTL,
		Now:      s.now(),
	})
	if err != nil {
		return domain.IssuedToken{}, err
	}

	slogx.FromContext(ctx).Info("step-up token issued", "user_id", user.ID)
	return tok, nil
}

// StartSession mints a full session token and records the session with the
// identity gateway. Recording is best effort: a failure is logged and the
// token is still returned.
func (s *TokenService) StartSession(ctx context.Context, user domain.User, amr []string) (domain.IssuedToken, error) {
	scopes := []string{ScopeSelf}
	if user.Role == domain.RoleAdmin {
		scopes = append(scopes, ScopeAdmin)
	}

	now := s.now()
	tok, claims, err := s.sign(jwtx.ClaimsParams{
		Subject:  user.ID,
		Purpose:  jwtx.PurposeSession,
		SID:      idx.NewAt(now).String(),
		Scopes:   scopes,
		AMR:      amr,
		Username: user.Username,
		TTL:      s.SessionTTL,
		Now:      now,
	})
	if err != nil {
		return domain.IssuedToken{}, err
	}

	log := slogx.FromContext(ctx).With("user_id", user.ID, "sid", claims.SID)
	err = s.Identity.CreateSession(ctx, domain.LoginSession{
		ID:        claims.SID,
		UserID:    user.ID,
		TokenID:   claims.ID,
		AMR:       amr,
		CreatedAt: now,
		ExpiresAt: now.Add(s.SessionTTL),
	})
	if err != nil {
		log.Warn("session record failed, continuing", "error", err)
	}

	log.Info("session issued", "amr", amr)
	return tok, nil
}

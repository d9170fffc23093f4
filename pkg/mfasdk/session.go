package mfasdk

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Session carries a session token. Sessions are not refreshed; log in again
// once Expired reports true.
type Session struct {
	client    *SDKClient
	token     TokenResponse
	expiresAt time.Time
}

func (c *SDKClient) NewSession(tok *TokenResponse) *Session {
	return &Session{
		client:    c,
		token:     *tok,
		expiresAt: time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}
}

func (s *Session) Token() TokenResponse { return s.token }

func (s *Session) Expired() bool { return !time.Now().Before(s.expiresAt) }

func (s *Session) do(ctx context.Context, method, path string, payload, out any, want int) error {
	return s.client.do(ctx, method, path, s.token.AccessToken, nil, payload, out, want)
}

// SetupMFA answers the enrollment offer after a first login.
func (s *Session) SetupMFA(ctx context.Context, enable bool, label string) (*SetupMFAResponse, error) {
	var out SetupMFAResponse
	req := SetupMFARequest{Enable: enable, Label: label}
	if err := s.do(ctx, http.MethodPost, "/v1/first-login/mfa", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Enroll starts TOTP enrollment. The secret must be confirmed before
// ExpiresAt.
func (s *Session) Enroll(ctx context.Context, label string) (*EnrollResponse, error) {
	var out EnrollResponse
	if err := s.do(ctx, http.MethodPost, "/v1/mfa/totp/enroll", EnrollRequest{Label: label}, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) Confirm(ctx context.Context, code string) (*ConfirmResponse, error) {
	var out ConfirmResponse
	if err := s.do(ctx, http.MethodPost, "/v1/mfa/totp/confirm", CodeRequest{Code: code}, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) RegenerateBackupCodes(ctx context.Context) ([]string, error) {
	var out BackupCodesResponse
	if err := s.do(ctx, http.MethodPost, "/v1/mfa/backup-codes", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Codes, nil
}

func (s *Session) Disable(ctx context.Context) error {
	return s.do(ctx, http.MethodDelete, "/v1/mfa/totp", nil, nil, http.StatusNoContent)
}

func (s *Session) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := s.do(ctx, http.MethodGet, "/v1/mfa/status", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Admin calls. They need the mfa:admin scope.

func (s *Session) Stats(ctx context.Context) (*StatsResponse, error) {
	var out StatsResponse
	if err := s.do(ctx, http.MethodGet, "/v1/admin/mfa/stats", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) UserStatus(ctx context.Context, userID string) (*StatusResponse, error) {
	var out StatusResponse
	if err := s.do(ctx, http.MethodGet, "/v1/admin/mfa/users/"+url.PathEscape(userID), nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) Unlock(ctx context.Context, userID string) error {
	return s.do(ctx, http.MethodPost, "/v1/admin/mfa/users/"+url.PathEscape(userID)+"/unlock", nil, nil, http.StatusNoContent)
}

func (s *Session) DisableUser(ctx context.Context, userID string) error {
	return s.do(ctx, http.MethodDelete, "/v1/admin/mfa/users/"+url.PathEscape(userID), nil, nil, http.StatusNoContent)
}

// StepUp wraps a step-up token. It can only be traded for a session.
type StepUp struct {
	client *SDKClient
	token  string
}

func (c *SDKClient) StepUp(tok *TokenResponse) *StepUp {
	return &StepUp{client: c, token: tok.AccessToken}
}

// VerifyTOTP completes the login with a TOTP code.
func (s *StepUp) VerifyTOTP(ctx context.Context, code string) (*Session, error) {
	var out TokenResponse
	if err := s.client.do(ctx, http.MethodPost, "/v1/mfa/totp/verify", s.token, nil, CodeRequest{Code: code}, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return s.client.NewSession(&out), nil
}

// ConsumeBackupCode completes the login with a backup code and reports how
// many unused codes are left.
func (s *StepUp) ConsumeBackupCode(ctx context.Context, code string) (*Session, int, error) {
	var out BackupCodeLoginResponse
	if err := s.client.do(ctx, http.MethodPost, "/v1/mfa/backup-codes/consume", s.token, nil, BackupCodeRequest{Code: code}, &out, http.StatusOK); err != nil {
		return nil, 0, err
	}
	return s.client.NewSession(&out.Token), out.Remaining, nil
}

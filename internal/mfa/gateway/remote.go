package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
	"github.com/sony/gobreaker"
)

const DefaultTimeout = 10 * time.Second

// errRejected marks a 4xx answer. It is the caller's problem, not the
// service's, so it does not count against the circuit breaker.
var errRejected = errors.New("gateway: request rejected")

// RemoteOptions configures a REST identity gateway.
type RemoteOptions struct {
	BaseURL string

	// Token is sent as a bearer credential when set.
	Token string

	// Timeout bounds each round trip. Zero means DefaultTimeout.
	Timeout time.Duration

	// Consecutive failures that open the breaker. Zero means 5.
	FailureThreshold uint32

	// How long the breaker stays open before probing. Zero means 30s.
	OpenTimeout time.Duration

	Logger *slog.Logger
}

// Remote talks to the user service over REST:
//
//	GET   /users/{id}
//	PUT   /users/{id}
//	PATCH /users/{id}/enable-mfa
//	PATCH /users/{id}/disable-mfa
//	POST  /sessions
//	GET   /health
type Remote struct {
	base    *url.URL
	token   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

var _ Identity = (*Remote)(nil)

func NewRemote(opts RemoteOptions) (*Remote, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("gateway: invalid base url %q", opts.BaseURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	threshold := opts.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openFor := opts.OpenTimeout
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "identity-gateway",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errRejected) || errors.Is(err, ErrUserNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Remote{
		base:    base,
		token:   opts.Token,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
	}, nil
}

type remoteUser struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	PasswordHash      string    `json:"password_hash"`
	Role              string    `json:"role"`
	TemporaryPassword bool      `json:"temporary_password"`
	MFAEnabled        bool      `json:"mfa_enabled"`
	MFASecret         string    `json:"mfa_secret"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (u remoteUser) domain() domain.User {
	role := u.Role
	if role == "" {
		role = domain.RoleUser
	}
	return domain.User{
		ID:                u.ID,
		Username:          u.Username,
		PasswordHash:      u.PasswordHash,
		Role:              role,
		TemporaryPassword: u.TemporaryPassword,
		MFAEnabled:        u.MFAEnabled,
		MFASecret:         u.MFASecret,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

func (r *Remote) GetUser(ctx context.Context, id string) (domain.User, error) {
	body, err := r.do(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil)
	if err != nil {
		return domain.User{}, err
	}

	// Some deployments wrap the record in {"data": ...}.
	var envelope struct {
		Data *remoteUser `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Data != nil {
		return envelope.Data.domain(), nil
	}

	var u remoteUser
	if err := json.Unmarshal(body, &u); err != nil {
		return domain.User{}, fmt.Errorf("gateway: decode user: %w", err)
	}
	if u.ID == "" {
		u.ID = id
	}
	return u.domain(), nil
}

func (r *Remote) UpdateUser(ctx context.Context, id string, upd domain.UserUpdate) error {
	payload := struct {
		PasswordHash      *string `json:"password_hash,omitempty"`
		TemporaryPassword *bool   `json:"temporary_password,omitempty"`
	}{upd.PasswordHash, upd.TemporaryPassword}

	_, err := r.do(ctx, http.MethodPut, "/users/"+url.PathEscape(id), payload)
	return err
}

func (r *Remote) SetMFA(ctx context.Context, id, secret string, enabled bool) error {
	if !enabled {
		_, err := r.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(id)+"/disable-mfa", nil)
		return err
	}

	payload := struct {
		Secret  string `json:"mfa_secret"`
		Enabled bool   `json:"mfa_enabled"`
	}{secret, true}
	_, err := r.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(id)+"/enable-mfa", payload)
	return err
}

func (r *Remote) CreateSession(ctx context.Context, s domain.LoginSession) error {
	payload := struct {
		ID        string    `json:"session_id"`
		UserID    string    `json:"user_id"`
		TokenID   string    `json:"token_id"`
		AMR       []string  `json:"amr"`
		ExpiresAt time.Time `json:"expires_at"`
	}{s.ID, s.UserID, s.TokenID, s.AMR, s.ExpiresAt}

	_, err := r.do(ctx, http.MethodPost, "/sessions", payload)
	return err
}

func (r *Remote) Ping(ctx context.Context) error {
	_, err := r.do(ctx, http.MethodGet, "/health", nil)
	return err
}

// do runs one request through the breaker and returns the response body of
// a 2xx answer.
func (r *Remote) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	out, err := r.breaker.Execute(func() (any, error) {
		return r.roundTrip(ctx, method, path, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (r *Remote) roundTrip(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.base.String()+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrUserNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrUnavailable, method, path, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: %s %s returned %d", errRejected, method, path, resp.StatusCode)
	}
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfa/gateway"
	"github.com/aussiebroadwan/mfagate/internal/mfa/service"
	"github.com/aussiebroadwan/mfagate/internal/mfa/store/drivers/memory"
	"github.com/aussiebroadwan/mfagate/pkg/cryptox"
	"github.com/aussiebroadwan/mfagate/pkg/jwtx"
	"github.com/aussiebroadwan/mfagate/pkg/mfasdk"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
	"github.com/aussiebroadwan/mfagate/pkg/totpx"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testServer struct {
	t     *testing.T
	srv   *httptest.Server
	store *memory.Store
	clock *clock
	totp  *totpx.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := service.DefaultConfig()
	c := &clock{now: time.Now().UTC().Truncate(time.Second)}
	st := memory.New()
	id := gateway.NewLocal(st)
	id.Now = c.Now

	keys, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Issuer: cfg.Issuer, NumKeys: 1})
	require.NoError(t, err)
	keys.Verifier.SetClock(c.Now)

	mfa := service.NewMFAService(cfg, st, nil, id)
	mfa.Now = c.Now
	tokens := service.NewTokenService(cfg, keys, id)
	tokens.Now = c.Now

	r := NewRouter(keys.Verifier, "test", slogx.Discard())
	r.Database = st
	r.Identity = id
	r.Keys = keys
	r.KeySet = keys.KeySet
	r.MFAService = mfa
	r.LoginService = service.NewLoginService(id, tokens, mfa)
	r.FirstLoginService = service.NewFirstLoginService(cfg, id, tokens, mfa)
	r.BootstrapService = &service.BootstrapService{Store: st, Token: "boot", Now: c.Now}
	r.ApplyRoutes()

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{t: t, srv: srv, store: st, clock: c, totp: totpx.New(cfg.TOTPSkew)}
}

func (s *testServer) addUser(id, password string, temporary bool, role string) {
	s.t.Helper()
	digest, err := cryptox.HashPassword(password)
	require.NoError(s.t, err)
	now := s.clock.Now()
	require.NoError(s.t, s.store.Users().CreateUser(context.Background(), domain.User{
		ID: id, Username: id, PasswordHash: digest, Role: role,
		TemporaryPassword: temporary, CreatedAt: now, UpdatedAt: now,
	}))
}

func (s *testServer) code(secret string) string {
	s.t.Helper()
	c, err := s.totp.Code(secret, s.clock.Now())
	require.NoError(s.t, err)
	return c
}

// call sends body as JSON and decodes the response into out when given.
func (s *testServer) call(method, path, token string, body, out any) int {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(s.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.srv.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// wrongCode returns a well-formed code no step in the window accepts.
func (s *testServer) wrongCode(secret string) string {
	s.t.Helper()
	c := []byte(s.code(secret))
	for {
		c[5] = '0' + (c[5]-'0'+1)%10
		m, err := s.totp.Verify(secret, string(c), s.clock.Now())
		require.NoError(s.t, err)
		if !m.OK {
			return string(c)
		}
	}
}

func (s *testServer) login(userID, password string) mfasdk.LoginResponse {
	s.t.Helper()
	var out mfasdk.LoginResponse
	require.Equal(s.t, http.StatusOK, s.call(http.MethodPost, "/v1/login", "", mfasdk.LoginRequest{UserID: userID, Password: password}, &out))
	return out
}

// enroll activates MFA through the API and returns the secret and codes.
func (s *testServer) enroll(token string) (string, []string) {
	s.t.Helper()

	var enroll mfasdk.EnrollResponse
	require.Equal(s.t, http.StatusOK, s.call(http.MethodPost, "/v1/mfa/totp/enroll", token, nil, &enroll))

	var confirm mfasdk.ConfirmResponse
	require.Equal(s.t, http.StatusOK, s.call(http.MethodPost, "/v1/mfa/totp/confirm", token, mfasdk.CodeRequest{Code: s.code(enroll.Secret)}, &confirm))
	require.True(s.t, confirm.Activated)

	s.clock.Advance(30 * time.Second)
	return enroll.Secret, confirm.BackupCodes
}

func TestEnrollAndStepUpFlow(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	s.addUser("alice", "password1", false, domain.RoleUser)

	res := s.login("alice", "password1")
	require.False(t, res.RequiresMFA)
	require.Equal(t, jwtx.PurposeSession, res.Token.Purpose)
	session := res.Token.AccessToken

	secret, codes := s.enroll(session)
	require.Len(t, codes, 8)

	var e mfasdk.ErrorResponse
	require.Equal(t, http.StatusConflict, s.call(http.MethodPost, "/v1/mfa/totp/enroll", session, nil, &e))
	require.Equal(t, mfasdk.ErrorCodeConflict, e.Error)

	res = s.login("alice", "password1")
	require.True(t, res.RequiresMFA)
	stepUp := res.Token.AccessToken

	// a step-up token is not a session
	require.Equal(t, http.StatusUnauthorized, s.call(http.MethodGet, "/v1/mfa/status", stepUp, nil, nil))

	var tok mfasdk.TokenResponse
	require.Equal(t, http.StatusOK, s.call(http.MethodPost, "/v1/mfa/totp/verify", stepUp, mfasdk.CodeRequest{Code: s.code(secret)}, &tok))
	require.Equal(t, jwtx.PurposeSession, tok.Purpose)

	// and a session is not a step-up
	require.Equal(t, http.StatusUnauthorized, s.call(http.MethodPost, "/v1/mfa/totp/verify", tok.AccessToken, mfasdk.CodeRequest{Code: "123456"}, nil))

	var backup mfasdk.BackupCodeLoginResponse
	require.Equal(t, http.StatusOK, s.call(http.MethodPost, "/v1/mfa/backup-codes/consume", stepUp, mfasdk.BackupCodeRequest{Code: codes[0]}, &backup))
	require.Equal(t, 7, backup.Remaining)

	var status mfasdk.StatusResponse
	require.Equal(t, http.StatusOK, s.call(http.MethodGet, "/v1/mfa/status", tok.AccessToken, nil, &status))
	require.Equal(t, "active", status.Status)
	require.Equal(t, 7, status.BackupCodesRemaining)
	require.Len(t, status.BackupCodes, 8)

	var regen mfasdk.BackupCodesResponse
	require.Equal(t, http.StatusOK, s.call(http.MethodPost, "/v1/mfa/backup-codes", tok.AccessToken, nil, &regen))
	require.Len(t, regen.Codes, 8)

	require.Equal(t, http.StatusNoContent, s.call(http.MethodDelete, "/v1/mfa/totp", tok.AccessToken, nil, nil))
	require.False(t, s.login("alice", "password1").RequiresMFA)
}

func TestLockoutAndAdminUnlock(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	s.addUser("alice", "password1", false, domain.RoleUser)
	s.addUser("carol", "password1", false, domain.RoleUser)
	s.addUser("root", "rootpass1", false, domain.RoleAdmin)

	secret, _ := s.enroll(s.login("alice", "password1").Token.AccessToken)
	stepUp := s.login("alice", "password1").Token.AccessToken

	good := s.code(secret)
	wrong := s.wrongCode(secret)

	for range 4 {
		require.Equal(t, http.StatusUnauthorized, s.call(http.MethodPost, "/v1/mfa/totp/verify", stepUp, mfasdk.CodeRequest{Code: wrong}, nil))
	}
	var e mfasdk.ErrorResponse
	require.Equal(t, http.StatusLocked, s.call(http.MethodPost, "/v1/mfa/totp/verify", stepUp, mfasdk.CodeRequest{Code: wrong}, &e))
	require.Equal(t, mfasdk.ErrorCodeLocked, e.Error)
	require.Equal(t, http.StatusLocked, s.call(http.MethodPost, "/v1/mfa/totp/verify", stepUp, mfasdk.CodeRequest{Code: good}, nil))

	plain := s.login("carol", "password1").Token.AccessToken
	admin := s.login("root", "rootpass1").Token.AccessToken

	require.Equal(t, http.StatusForbidden, s.call(http.MethodPost, "/v1/admin/mfa/users/alice/unlock", plain, nil, nil))

	var status mfasdk.StatusResponse
	require.Equal(t, http.StatusOK, s.call(http.MethodGet, "/v1/admin/mfa/users/alice", admin, nil, &status))
	require.Equal(t, "locked", status.Status)
	require.NotNil(t, status.LockedAt)
	require.Equal(t, 5, status.FailedAttempts)

	var stats mfasdk.StatsResponse
	require.Equal(t, http.StatusOK, s.call(http.MethodGet, "/v1/admin/mfa/stats", admin, nil, &stats))
	require.Equal(t, 1, stats.ByStatus["locked"])

	require.Equal(t, http.StatusNoContent, s.call(http.MethodPost, "/v1/admin/mfa/users/alice/unlock", admin, nil, nil))
	require.Equal(t, http.StatusConflict, s.call(http.MethodPost, "/v1/admin/mfa/users/alice/unlock", admin, nil, nil))
	require.Equal(t, http.StatusOK, s.call(http.MethodPost, "/v1/mfa/totp/verify", stepUp, mfasdk.CodeRequest{Code: good}, nil))
}

func TestPendingExpiry(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	s.addUser("alice", "password1", false, domain.RoleUser)
	session := s.login("alice", "password1").Token.AccessToken

	var enroll mfasdk.EnrollResponse
	require.Equal(t, http.StatusOK, s.call(http.MethodPost, "/v1/mfa/totp/enroll", session, mfasdk.EnrollRequest{Label: "phone"}, &enroll))
	require.Equal(t, "phone", enroll.Account)

	s.clock.Advance(10*time.Minute + time.Second)

	var e mfasdk.ErrorResponse
	require.Equal(t, http.StatusGone, s.call(http.MethodPost, "/v1/mfa/totp/confirm", session, mfasdk.CodeRequest{Code: s.code(enroll.Secret)}, &e))
	require.Equal(t, mfasdk.ErrorCodeExpired, e.Error)
	require.Equal(t, http.StatusNotFound, s.call(http.MethodPost, "/v1/mfa/totp/confirm", session, mfasdk.CodeRequest{Code: s.code(enroll.Secret)}, nil))
}

func TestFirstLoginFlow(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	s.addUser("bob", "changeme1", true, domain.RoleUser)

	res := s.login("bob", "changeme1")
	require.True(t, res.PasswordChangeRequired)
	require.Nil(t, res.Token)

	var state mfasdk.FirstLoginStateResponse
	require.Equal(t, http.StatusOK, s.call(http.MethodGet, "/v1/first-login/bob", "", nil, &state))
	require.Equal(t, domain.StepChangePassword, state.NextStep)

	var changed mfasdk.PasswordChangeResponse
	require.Equal(t, http.StatusOK, s.call(http.MethodPost, "/v1/first-login/password", "", mfasdk.ChangePasswordRequest{
		UserID: "bob", CurrentPassword: "changeme1", NewPassword: "better-pass",
	}, &changed))
	require.False(t, changed.RequiresMFA)

	var e mfasdk.ErrorResponse
	require.Equal(t, http.StatusConflict, s.call(http.MethodPost, "/v1/first-login/password", "", mfasdk.ChangePasswordRequest{
		UserID: "bob", CurrentPassword: "better-pass", NewPassword: "even-better",
	}, &e))
	require.Equal(t, mfasdk.ErrorCodeInvalidState, e.Error)

	var setup mfasdk.SetupMFAResponse
	require.Equal(t, http.StatusOK, s.call(http.MethodPost, "/v1/first-login/mfa", changed.Token.AccessToken, mfasdk.SetupMFARequest{Enable: false}, &setup))
	require.Nil(t, setup.Enroll)
	require.NotNil(t, setup.Token)

	require.Equal(t, http.StatusOK, s.call(http.MethodPost, "/v1/first-login/mfa", changed.Token.AccessToken, mfasdk.SetupMFARequest{Enable: true}, &setup))
	require.NotNil(t, setup.Enroll)
}

func TestRequestValidation(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	s.addUser("alice", "password1", false, domain.RoleUser)
	session := s.login("alice", "password1").Token.AccessToken

	var v mfasdk.ValidationErrorResponse
	require.Equal(t, http.StatusBadRequest, s.call(http.MethodPost, "/v1/mfa/totp/confirm", session, mfasdk.CodeRequest{Code: "12ab"}, &v))
	require.Equal(t, mfasdk.ErrorCodeValidation, v.Code)
	require.Contains(t, v.Details, "code")

	var e mfasdk.ErrorResponse
	require.Equal(t, http.StatusBadRequest, s.call(http.MethodPost, "/v1/login", "", map[string]string{"user": "x"}, &e))
	require.Equal(t, mfasdk.ErrorCodeInvalidRequest, e.Error)

	require.Equal(t, http.StatusUnauthorized, s.call(http.MethodPost, "/v1/login", "", mfasdk.LoginRequest{UserID: "ghost", Password: "x"}, &e))
	require.Equal(t, mfasdk.ErrorCodeUnauthorized, e.Error)
}

func TestBootstrapEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	req := mfasdk.BootstrapRequest{Users: []mfasdk.BootstrapUser{{Username: "root", Password: "rootpass1", Admin: true}}}

	require.Equal(t, http.StatusUnauthorized, s.call(http.MethodPost, "/v1/bootstrap", "", req, nil))

	post := func(token string) int {
		b, _ := json.Marshal(req)
		r, _ := http.NewRequest(http.MethodPost, s.srv.URL+"/v1/bootstrap", bytes.NewReader(b))
		r.Header.Set("X-Bootstrap-Token", token)
		resp, err := s.srv.Client().Do(r)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	require.Equal(t, http.StatusUnauthorized, post("nope"))
	require.Equal(t, http.StatusCreated, post("boot"))
	require.Equal(t, http.StatusConflict, post("boot"))
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	var live mfasdk.HealthResponse
	require.Equal(t, http.StatusOK, s.call(http.MethodGet, "/livez", "", nil, &live))
	require.Equal(t, "test", live.Version)

	var ready mfasdk.HealthResponse
	require.Equal(t, http.StatusOK, s.call(http.MethodGet, "/readyz", "", nil, &ready))
	require.Equal(t, "ok", ready.Checks.Signer)
	require.Equal(t, "ok", ready.Checks.Identity)
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

type noKeys struct{}

func (noKeys) IsReady() bool { return false }

func TestReadyzDegraded(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	ReadyzHandler(time.Now(), "v", nil, downPinger{}, nil, noKeys{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var out mfasdk.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.Equal(t, "degraded", out.Status)
	require.Equal(t, "ok", out.Checks.Database)
	require.Contains(t, out.Checks.Pending, "connection refused")
	require.Contains(t, out.Checks.Signer, "no keys")
}

func TestAPIErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err    error
		status int
	}{
		{service.ErrMalformedCode, http.StatusBadRequest},
		{service.ErrNoPendingActivation, http.StatusNotFound},
		{service.ErrInvalidCode, http.StatusUnauthorized},
		{fmt.Errorf("%w: %w", service.ErrInvalidCode, service.ErrMFALocked), http.StatusLocked},
		{service.ErrPendingExpired, http.StatusGone},
		{fmt.Errorf("%w: boom", service.ErrUpstreamUnavailable), http.StatusServiceUnavailable},
		{service.ErrAlreadyActive, http.StatusConflict},
		{service.ErrNoTemporaryPassword, http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.status, apiError(tc.err).StatusCode, tc.err.Error())
	}

	require.Equal(t, "internal server error", apiError(errors.New("secret detail")).Description)
}

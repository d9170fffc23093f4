package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfa/gateway"
	"github.com/aussiebroadwan/mfagate/internal/mfa/store"
	"github.com/aussiebroadwan/mfagate/internal/mfa/store/drivers/memory"
	"github.com/aussiebroadwan/mfagate/internal/mfa/store/drivers/sqlite"
	"github.com/aussiebroadwan/mfagate/pkg/cryptox"
	"github.com/aussiebroadwan/mfagate/pkg/jwtx"
	"github.com/aussiebroadwan/mfagate/pkg/totpx"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// spyTOTP counts how often a secret is evaluated.
type spyTOTP struct {
	*totpx.Engine
	verifies atomic.Int32
}

func (s *spyTOTP) Verify(secret, code string, at time.Time) (totpx.Match, error) {
	s.verifies.Add(1)
	return s.Engine.Verify(secret, code, at)
}

// faultyIdentity is a local gateway with injectable failures.
type faultyIdentity struct {
	*gateway.Local

	mu         sync.Mutex
	getErr     error
	setMFAErr  error
	sessionErr error
	updates    int
	sessions   []domain.LoginSession
}

func (f *faultyIdentity) GetUser(ctx context.Context, id string) (domain.User, error) {
	f.mu.Lock()
	err := f.getErr
	f.mu.Unlock()
	if err != nil {
		return domain.User{}, err
	}
	return f.Local.GetUser(ctx, id)
}

func (f *faultyIdentity) UpdateUser(ctx context.Context, id string, upd domain.UserUpdate) error {
	f.mu.Lock()
	f.updates++
	f.mu.Unlock()
	return f.Local.UpdateUser(ctx, id, upd)
}

func (f *faultyIdentity) SetMFA(ctx context.Context, id, secret string, enabled bool) error {
	f.mu.Lock()
	err := f.setMFAErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Local.SetMFA(ctx, id, secret, enabled)
}

func (f *faultyIdentity) CreateSession(ctx context.Context, s domain.LoginSession) error {
	f.mu.Lock()
	err := f.sessionErr
	if err == nil {
		f.sessions = append(f.sessions, s)
	}
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Local.CreateSession(ctx, s)
}

func (f *faultyIdentity) fail(get, setMFA, session error) {
	f.mu.Lock()
	f.getErr, f.setMFAErr, f.sessionErr = get, setMFA, session
	f.mu.Unlock()
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	clock  *fakeClock
	store  store.Store
	id     *faultyIdentity
	totp   *spyTOTP
	keys   *jwtx.KeyManager
	mfa    *MFAService
	tokens *TokenService
	first  *FirstLoginService
	login  *LoginService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessOn(t, memory.New())
}

func newSQLiteHarness(t *testing.T) *harness {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	return newHarnessOn(t, st)
}

// forEachStore runs fn once per storage driver.
func forEachStore(t *testing.T, fn func(t *testing.T, newHarness func(*testing.T) *harness)) {
	t.Helper()

	for name, build := range map[string]func(*testing.T) *harness{
		"memory": newHarness,
		"sqlite": newSQLiteHarness,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			fn(t, build)
		})
	}
}

func newHarnessOn(t *testing.T, st store.Store) *harness {
	t.Helper()

	cfg := DefaultConfig()
	clock := newClock()

	local := gateway.NewLocal(st)
	local.Now = clock.Now
	id := &faultyIdentity{Local: local}

	keys, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Issuer: cfg.Issuer, NumKeys: 1})
	require.NoError(t, err)
	keys.Verifier.SetClock(clock.Now)

	spy := &spyTOTP{Engine: totpx.New(cfg.TOTPSkew)}

	mfa := NewMFAService(cfg, st, nil, id)
	mfa.TOTP = spy
	mfa.Now = clock.Now

	tokens := NewTokenService(cfg, keys, id)
	tokens.Now = clock.Now

	return &harness{
		t:      t,
		ctx:    context.Background(),
		clock:  clock,
		store:  st,
		id:     id,
		totp:   spy,
		keys:   keys,
		mfa:    mfa,
		tokens: tokens,
		first:  NewFirstLoginService(cfg, id, tokens, mfa),
		login:  NewLoginService(id, tokens, mfa),
	}
}

func (h *harness) addUser(id, password string, temporary bool) domain.User {
	h.t.Helper()

	digest, err := cryptox.HashPassword(password)
	require.NoError(h.t, err)

	now := h.clock.Now()
	u := domain.User{
		ID:                id,
		Username:          id + "-name",
		PasswordHash:      digest,
		Role:              domain.RoleUser,
		TemporaryPassword: temporary,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(h.t, h.store.Users().CreateUser(h.ctx, u))
	return u
}

// code returns the valid code at the fake clock's current time.
func (h *harness) code(secret string) string {
	h.t.Helper()
	c, err := h.totp.Code(secret, h.clock.Now())
	require.NoError(h.t, err)
	return c
}

// wrongCode returns a well-formed code that no step in the window accepts.
func (h *harness) wrongCode(secret string) string {
	h.t.Helper()
	c := []byte(h.code(secret))
	for {
		c[5] = '0' + (c[5]-'0'+1)%10
		m, err := h.totp.Engine.Verify(secret, string(c), h.clock.Now())
		require.NoError(h.t, err)
		if !m.OK {
			return string(c)
		}
	}
}

// enroll takes a user to active and returns the secret and backup codes.
func (h *harness) enroll(userID string) (string, []string) {
	h.t.Helper()

	resp, err := h.mfa.EnrollBegin(h.ctx, userID, "")
	require.NoError(h.t, err)

	res, err := h.mfa.EnrollConfirm(h.ctx, userID, h.code(resp.Secret))
	require.NoError(h.t, err)
	require.True(h.t, res.Activated)

	// the confirming step is spent; move to the next one
	h.clock.Advance(30 * time.Second)
	return resp.Secret, res.BackupCodes
}

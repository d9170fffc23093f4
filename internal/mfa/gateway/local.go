package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfa/store"
)

// Local serves identities from the service's own store. It is used when no
// external user service is configured, and in tests.
type Local struct {
	Store store.Store
	Now   func() time.Time
}

var _ Identity = (*Local)(nil)

func NewLocal(s store.Store) *Local {
	return &Local{Store: s, Now: time.Now}
}

func (l *Local) now() time.Time {
	if l.Now == nil {
		return time.Now().UTC()
	}
	return l.Now().UTC()
}

func (l *Local) GetUser(ctx context.Context, id string) (domain.User, error) {
	u, err := l.Store.Users().GetUserByID(ctx, id)
	return u, mapStoreErr(err)
}

func (l *Local) UpdateUser(ctx context.Context, id string, upd domain.UserUpdate) error {
	return mapStoreErr(l.Store.Users().UpdateUser(ctx, id, upd, l.now()))
}

func (l *Local) SetMFA(ctx context.Context, id, secret string, enabled bool) error {
	return mapStoreErr(l.Store.Users().SetMFA(ctx, id, secret, enabled, l.now()))
}

func (l *Local) CreateSession(ctx context.Context, s domain.LoginSession) error {
	return l.Store.LoginSessions().CreateLoginSession(ctx, s)
}

func (l *Local) Ping(ctx context.Context) error {
	if err := l.Store.Ping(ctx); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

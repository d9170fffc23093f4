package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfa/store"
	"github.com/aussiebroadwan/mfagate/pkg/cryptox"
	"github.com/aussiebroadwan/mfagate/pkg/idx"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// BootstrapUser is one account to seed.
type BootstrapUser struct {
	Username string
	Password string

	// Temporary marks the password as one that must be changed on first login.
	Temporary bool
	Admin     bool
}

// BootstrapService seeds the local identity store once. It is only wired
// when the service is its own identity gateway.
type BootstrapService struct {
	Store store.Store
	Token string
	Now   func() time.Time
}

// IsBootstrapped reports whether any user exists.
func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	empty, err := s.Store.Users().IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	return !empty, nil
}

// Bootstrap creates users and returns their ids, index for index.
func (s *BootstrapService) Bootstrap(ctx context.Context, token string, users []BootstrapUser) ([]string, error) {
	log := slogx.FromContext(ctx)

	if s.Token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) != 1 {
		log.Warn("unauthorized bootstrap attempt")
		return nil, ErrBootstrapToken
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("%w: at least one user is required", ErrValidation)
	}

	// Cheap early exit before hashing; the check that counts runs again
	// inside the transaction.
	if done, err := s.IsBootstrapped(ctx); err != nil {
		return nil, err
	} else if done {
		log.Warn("attempted bootstrap on already-bootstrapped system")
		return nil, ErrAlreadyBootstrapped
	}

	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}

	seen := make(map[string]bool, len(users))
	records := make([]domain.User, len(users))
	for i, u := range users {
		if u.Username == "" || u.Password == "" {
			return nil, fmt.Errorf("%w: user %d needs a username and password", ErrValidation, i)
		}
		if seen[u.Username] {
			return nil, fmt.Errorf("%w: username %q appears more than once", ErrValidation, u.Username)
		}
		seen[u.Username] = true
		digest, err := cryptox.HashPassword(u.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}

		role := domain.RoleUser
		if u.Admin {
			role = domain.RoleAdmin
		}
		records[i] = domain.User{
			ID:                idx.NewAt(now).String(),
			Username:          u.Username,
			PasswordHash:      digest,
			Role:              role,
			TemporaryPassword: u.Temporary,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		empty, err := tx.Users().IsEmpty(ctx)
		if err != nil {
			return err
		}
		if !empty {
			return ErrAlreadyBootstrapped
		}

		for _, u := range records {
			if err := tx.Users().CreateUser(ctx, u); err != nil {
				if errors.Is(err, store.ErrAlreadyExists) {
					return fmt.Errorf("%w: user %q already exists", ErrConflict, u.Username)
				}
				return fmt.Errorf("create user %q: %w", u.Username, err)
			}
		}
		return nil
	})
	if errors.Is(err, ErrAlreadyBootstrapped) {
		log.Warn("concurrent bootstrap lost the race")
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(records))
	for i, u := range records {
		ids[i] = u.ID
	}
	log.Info("bootstrap completed", "users", len(ids))
	return ids, nil
}

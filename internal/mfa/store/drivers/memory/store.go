// Package memory is a concurrency-safe in-process store. It backs tests and
// single-instance deployments that accept losing MFA state on restart.
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfa/store"
)

var errTxDone = errors.New("memory: transaction already finished")

type state struct {
	users         map[string]domain.User
	usernames     map[string]string // username -> id
	loginSessions map[string]domain.LoginSession
	mfa           map[string]domain.MFASession
	codes         map[string][]domain.BackupCode
	pending       map[string]domain.PendingActivation
}

func newState() *state {
	return &state{
		users:         map[string]domain.User{},
		usernames:     map[string]string{},
		loginSessions: map[string]domain.LoginSession{},
		mfa:           map[string]domain.MFASession{},
		codes:         map[string][]domain.BackupCode{},
		pending:       map[string]domain.PendingActivation{},
	}
}

func (s *state) clone() *state {
	c := &state{
		users:         maps.Clone(s.users),
		usernames:     maps.Clone(s.usernames),
		loginSessions: maps.Clone(s.loginSessions),
		mfa:           maps.Clone(s.mfa),
		codes:         make(map[string][]domain.BackupCode, len(s.codes)),
		pending:       maps.Clone(s.pending),
	}
	for k, v := range s.codes {
		c.codes[k] = slices.Clone(v)
	}
	return c
}

// accessor runs repository bodies against a state. The root store guards
// the state with its RWMutex; a transaction already holds the write lock.
type accessor interface {
	read(fn func(*state))
	write(fn func(*state) error) error
}

// Store implements store.Store. The zero value is not usable; call New.
type Store struct {
	mu sync.RWMutex
	st *state
}

var _ store.Store = (*Store)(nil)

func New() *Store { return &Store{st: newState()} }

func (s *Store) read(fn func(*state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.st)
}

func (s *Store) write(fn func(*state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) Users() store.Users                           { return usersRepo{s} }
func (s *Store) LoginSessions() store.LoginSessions           { return loginSessionsRepo{s} }
func (s *Store) MFASessions() store.MFASessions               { return mfaSessionsRepo{s} }
func (s *Store) BackupCodes() store.BackupCodes               { return backupCodesRepo{s} }
func (s *Store) PendingActivations() store.PendingActivations { return pendingRepo{s} }

func (s *Store) ApplyMigrations() error         { return nil }
func (s *Store) Close() error                   { return nil }
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Tx takes the store-wide write lock until Commit or Rollback. Writes go to
// a private copy that replaces the live state on Commit.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &txStore{parent: s, st: s.st.clone()}, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type txStore struct {
	parent *Store
	st     *state
	done   bool
}

func (t *txStore) read(fn func(*state)) { fn(t.st) }

func (t *txStore) write(fn func(*state) error) error {
	if t.done {
		return errTxDone
	}
	return fn(t.st)
}

func (t *txStore) Commit() error {
	if t.done {
		return errTxDone
	}
	t.done = true
	t.parent.st = t.st
	t.parent.mu.Unlock()
	return nil
}

func (t *txStore) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.parent.mu.Unlock()
	return nil
}

func (t *txStore) Users() store.Users                           { return usersRepo{t} }
func (t *txStore) LoginSessions() store.LoginSessions           { return loginSessionsRepo{t} }
func (t *txStore) MFASessions() store.MFASessions               { return mfaSessionsRepo{t} }
func (t *txStore) BackupCodes() store.BackupCodes               { return backupCodesRepo{t} }
func (t *txStore) PendingActivations() store.PendingActivations { return pendingRepo{t} }

func (t *txStore) ApplyMigrations() error         { return nil }
func (t *txStore) Close() error                   { return nil }
func (t *txStore) Ping(context.Context) error     { return nil }

func (t *txStore) Tx(context.Context) (store.Tx, error) { return nil, errTxDone }

func (t *txStore) WithTx(context.Context, func(store.Tx) error) error { return errTxDone }

package memory

import (
	"context"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfa/store"
)

type usersRepo struct{ a accessor }

func (r usersRepo) GetUserByID(_ context.Context, id string) (u domain.User, err error) {
	r.a.read(func(s *state) {
		var ok bool
		if u, ok = s.users[id]; !ok {
			err = store.ErrNotFound
		}
	})
	return u, err
}

func (r usersRepo) CreateUser(_ context.Context, u domain.User) error {
	return r.a.write(func(s *state) error {
		if _, ok := s.users[u.ID]; ok {
			return store.ErrAlreadyExists
		}
		if _, ok := s.usernames[u.Username]; ok {
			return store.ErrAlreadyExists
		}
		s.users[u.ID] = u
		s.usernames[u.Username] = u.ID
		return nil
	})
}

func (r usersRepo) UpdateUser(_ context.Context, id string, upd domain.UserUpdate, now time.Time) error {
	return r.a.write(func(s *state) error {
		u, ok := s.users[id]
		if !ok {
			return store.ErrNotFound
		}
		if upd.PasswordHash != nil {
			u.PasswordHash = *upd.PasswordHash
		}
		if upd.TemporaryPassword != nil {
			u.TemporaryPassword = *upd.TemporaryPassword
		}
		u.UpdatedAt = now
		s.users[id] = u
		return nil
	})
}

func (r usersRepo) SetMFA(_ context.Context, id, secret string, enabled bool, now time.Time) error {
	return r.a.write(func(s *state) error {
		u, ok := s.users[id]
		if !ok {
			return store.ErrNotFound
		}
		u.MFAEnabled = enabled
		u.MFASecret = secret
		u.UpdatedAt = now
		s.users[id] = u
		return nil
	})
}

func (r usersRepo) IsEmpty(context.Context) (empty bool, _ error) {
	r.a.read(func(s *state) { empty = len(s.users) == 0 })
	return empty, nil
}

type loginSessionsRepo struct{ a accessor }

func (r loginSessionsRepo) CreateLoginSession(_ context.Context, ls domain.LoginSession) error {
	return r.a.write(func(s *state) error {
		if _, ok := s.loginSessions[ls.ID]; ok {
			return store.ErrAlreadyExists
		}
		s.loginSessions[ls.ID] = ls
		return nil
	})
}

func (r loginSessionsRepo) DeleteExpiredLoginSessions(_ context.Context, now time.Time) (n int64, _ error) {
	_ = r.a.write(func(s *state) error {
		for id, ls := range s.loginSessions {
			if !ls.ExpiresAt.After(now) {
				delete(s.loginSessions, id)
				n++
			}
		}
		return nil
	})
	return n, nil
}

type mfaSessionsRepo struct{ a accessor }

func (r mfaSessionsRepo) GetMFASession(_ context.Context, userID string) (m domain.MFASession, err error) {
	r.a.read(func(s *state) {
		var ok bool
		if m, ok = s.mfa[userID]; !ok {
			err = store.ErrNotFound
		}
	})
	return m, err
}

func (r mfaSessionsRepo) UpsertMFASession(_ context.Context, m domain.MFASession) error {
	return r.a.write(func(s *state) error {
		if prev, ok := s.mfa[m.UserID]; ok {
			m.CreatedAt = prev.CreatedAt
		}
		s.mfa[m.UserID] = m
		return nil
	})
}

func (r mfaSessionsRepo) DeleteMFASession(_ context.Context, userID string) error {
	return r.a.write(func(s *state) error {
		delete(s.mfa, userID)
		return nil
	})
}

func (r mfaSessionsRepo) CountByStatus(context.Context) (map[domain.MFAStatus]int, error) {
	out := map[domain.MFAStatus]int{}
	r.a.read(func(s *state) {
		for _, m := range s.mfa {
			out[m.Status]++
		}
	})
	return out, nil
}

func (r mfaSessionsRepo) CountVerifiedSince(_ context.Context, since time.Time) (n int, _ error) {
	r.a.read(func(s *state) {
		for _, m := range s.mfa {
			if m.VerifiedAt != nil && !m.VerifiedAt.Before(since) {
				n++
			}
		}
	})
	return n, nil
}

func (r mfaSessionsRepo) DeleteStaleMFASessions(_ context.Context, before time.Time) (n int64, _ error) {
	_ = r.a.write(func(s *state) error {
		for id, m := range s.mfa {
			stale := m.Status == domain.MFAPending || m.Status == domain.MFADisabled
			if stale && m.UpdatedAt.Before(before) {
				delete(s.mfa, id)
				n++
			}
		}
		return nil
	})
	return n, nil
}

type backupCodesRepo struct{ a accessor }

func (r backupCodesRepo) ReplaceBackupCodes(_ context.Context, userID string, hashes []string) error {
	return r.a.write(func(s *state) error {
		codes := make([]domain.BackupCode, len(hashes))
		for i, h := range hashes {
			codes[i] = domain.BackupCode{UserID: userID, Position: i, CodeHash: h}
		}
		s.codes[userID] = codes
		return nil
	})
}

func (r backupCodesRepo) ListBackupCodes(_ context.Context, userID string) (out []domain.BackupCode, _ error) {
	r.a.read(func(s *state) {
		out = append(out, s.codes[userID]...)
	})
	return out, nil
}

func (r backupCodesRepo) MarkBackupCodeUsed(_ context.Context, userID, hash string, at time.Time) error {
	return r.a.write(func(s *state) error {
		codes := s.codes[userID]
		for i := range codes {
			if codes[i].CodeHash == hash && codes[i].UsedAt == nil {
				codes[i].UsedAt = &at
				return nil
			}
		}
		return store.ErrNotFound
	})
}

func (r backupCodesRepo) CountUnusedBackupCodes(_ context.Context, userID string) (n int, _ error) {
	r.a.read(func(s *state) {
		for _, c := range s.codes[userID] {
			if !c.Used() {
				n++
			}
		}
	})
	return n, nil
}

func (r backupCodesRepo) DeleteBackupCodes(_ context.Context, userID string) error {
	return r.a.write(func(s *state) error {
		delete(s.codes, userID)
		return nil
	})
}

type pendingRepo struct{ a accessor }

func (r pendingRepo) PutPending(_ context.Context, p domain.PendingActivation) error {
	return r.a.write(func(s *state) error {
		s.pending[p.UserID] = p
		return nil
	})
}

func (r pendingRepo) GetPending(_ context.Context, userID string) (p domain.PendingActivation, err error) {
	r.a.read(func(s *state) {
		var ok bool
		if p, ok = s.pending[userID]; !ok {
			err = store.ErrNotFound
		}
	})
	return p, err
}

func (r pendingRepo) IncrementPendingAttempts(_ context.Context, userID string) (n int, err error) {
	err = r.a.write(func(s *state) error {
		p, ok := s.pending[userID]
		if !ok {
			return store.ErrNotFound
		}
		p.Attempts++
		s.pending[userID] = p
		n = p.Attempts
		return nil
	})
	return n, err
}

func (r pendingRepo) DeletePending(_ context.Context, userID string) error {
	return r.a.write(func(s *state) error {
		delete(s.pending, userID)
		return nil
	})
}

func (r pendingRepo) DeleteExpiredPending(_ context.Context, now time.Time) (n int64, _ error) {
	_ = r.a.write(func(s *state) error {
		for id, p := range s.pending {
			if p.Expired(now) {
				delete(s.pending, id)
				n++
			}
		}
		return nil
	})
	return n, nil
}

func (r pendingRepo) CountPending(_ context.Context, now time.Time) (n int, _ error) {
	r.a.read(func(s *state) {
		for _, p := range s.pending {
			if !p.Expired(now) {
				n++
			}
		}
	})
	return n, nil
}

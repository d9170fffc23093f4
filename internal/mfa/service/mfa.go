package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfa/gateway"
	"github.com/aussiebroadwan/mfagate/internal/mfa/store"
	"github.com/aussiebroadwan/mfagate/pkg/lockx"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
	"github.com/aussiebroadwan/mfagate/pkg/totpx"
)

// TOTPEngine is the part of totpx.Engine the MFA service uses.
type TOTPEngine interface {
	GenerateSecret(issuer, label string) (totpx.Secret, error)
	Verify(secretBase32, code string, at time.Time) (totpx.Match, error)
}

// MFAService owns the per-user second factor lifecycle:
//
//	none/disabled -> pending -> active <-> locked -> disabled
//
// Every operation on a user runs under that user's lock, so concurrent
// attempts cannot both read and bump the failure counter.
type MFAService struct {
	Config   Config
	Store    store.Store
	Pending  store.PendingActivations
	Identity gateway.Identity
	TOTP     TOTPEngine
	Now      func() time.Time

	locks lockx.Keyed
}

func NewMFAService(cfg Config, s store.Store, pending store.PendingActivations, id gateway.Identity) *MFAService {
	cfg = cfg.withDefaults()
	if pending == nil {
		pending = s.PendingActivations()
	}
	return &MFAService{
		Config:   cfg,
		Store:    s,
		Pending:  pending,
		Identity: id,
		TOTP:     totpx.New(cfg.TOTPSkew),
		Now:      time.Now,
	}
}

func (s *MFAService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *MFAService) lock(ctx context.Context, userID string) (func(), error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	return s.locks.Lock(ctx, userID)
}

// session loads the user's record. A user the gateway reports as enrolled
// but who has no local record (for example after an in-memory restart) is
// adopted as active with the gateway's secret.
func (s *MFAService) session(ctx context.Context, userID string) (domain.MFASession, error) {
	sess, err := s.Store.MFASessions().GetMFASession(ctx, userID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.MFASession{}, err
	}

	user, err := s.Identity.GetUser(ctx, userID)
	if err != nil {
		return domain.MFASession{}, gatewayErr(err)
	}
	if !user.HasMFA() {
		return domain.MFASession{UserID: userID, Status: domain.MFANone}, nil
	}

	now := s.now()
	sess = domain.MFASession{
		UserID:    userID,
		Secret:    user.MFASecret,
		Status:    domain.MFAActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.MFASessions().UpsertMFASession(ctx, sess); err != nil {
		return domain.MFASession{}, err
	}
	slogx.FromContext(ctx).Info("mfa session adopted from identity record", "user_id", userID)
	return sess, nil
}

// EnrollBegin issues a fresh candidate secret and parks it as a pending
// activation. Any activation already in flight for the user is replaced.
func (s *MFAService) EnrollBegin(ctx context.Context, userID, label string) (domain.EnrollResponse, error) {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return domain.EnrollResponse{}, err
	}
	defer unlock()

	log := slogx.FromContext(ctx).With("user_id", userID)

	user, err := s.Identity.GetUser(ctx, userID)
	if err != nil {
		return domain.EnrollResponse{}, gatewayErr(err)
	}
	if label == "" {
		label = user.Username
	}

	sess, err := s.session(ctx, userID)
	if err != nil {
		return domain.EnrollResponse{}, err
	}
	switch sess.Status {
	case domain.MFAActive:
		return domain.EnrollResponse{}, ErrAlreadyActive
	case domain.MFALocked:
		return domain.EnrollResponse{}, ErrMFALocked
	}
	if !sess.Status.CanTransition(domain.MFAPending) {
		return domain.EnrollResponse{}, fmt.Errorf("%w: cannot enroll from %s", ErrInvalidState, sess.Status)
	}

	secret, err := s.TOTP.GenerateSecret(s.Config.Issuer, label)
	if err != nil {
		return domain.EnrollResponse{}, fmt.Errorf("generate secret: %w", err)
	}
	qr, err := totpx.QRCodeDataURI(secret.ProvisioningURI, s.Config.QRSize)
	if err != nil {
		return domain.EnrollResponse{}, fmt.Errorf("render qr code: %w", err)
	}

	now := s.now()
	pending := domain.PendingActivation{
		UserID:          userID,
		Secret:          secret.Base32,
		Label:           label,
		Issuer:          s.Config.Issuer,
		ProvisioningURI: secret.ProvisioningURI,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.Config.PendingTTL),
	}
	if err := s.Pending.PutPending(ctx, pending); err != nil {
		return domain.EnrollResponse{}, fmt.Errorf("store pending activation: %w", err)
	}

	if sess.Status == domain.MFANone {
		sess.CreatedAt = now
	}
	sess.Status = domain.MFAPending
	sess.Secret = ""
	sess.FailedAttempts = 0
	sess.LockedAt = nil
	sess.LastUsedStep = 0
	sess.UpdatedAt = now
	if err := s.Store.MFASessions().UpsertMFASession(ctx, sess); err != nil {
		return domain.EnrollResponse{}, fmt.Errorf("store mfa session: %w", err)
	}

	log.Info("mfa enrollment started", "expires_at", pending.ExpiresAt)

	return domain.EnrollResponse{
		Secret:          secret.Base32,
		ProvisioningURI: secret.ProvisioningURI,
		QRCode:          qr,
		Issuer:          s.Config.Issuer,
		Account:         label,
		ExpiresAt:       pending.ExpiresAt,
	}, nil
}

// fetchPending returns the user's activation. Expired activations are
// deleted and reported as ErrPendingExpired.
func (s *MFAService) fetchPending(ctx context.Context, userID string, now time.Time) (domain.PendingActivation, error) {
	p, err := s.Pending.GetPending(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return p, ErrNoPendingActivation
	}
	if err != nil {
		return p, fmt.Errorf("load pending activation: %w", err)
	}
	if p.Expired(now) {
		if err := s.Pending.DeletePending(ctx, userID); err != nil {
			slogx.FromContext(ctx).Warn("failed to delete expired activation", "user_id", userID, "error", err)
		}
		return p, ErrPendingExpired
	}
	return p, nil
}

// EnrollConfirm checks code against the pending secret. On success the
// identity gateway is told first, then the session becomes active and a
// fresh set of backup codes is stored and returned.
func (s *MFAService) EnrollConfirm(ctx context.Context, userID, code string) (domain.EnrollResult, error) {
	if !totpx.WellFormed(code) {
		return domain.EnrollResult{}, ErrMalformedCode
	}

	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return domain.EnrollResult{}, err
	}
	defer unlock()

	log := slogx.FromContext(ctx).With("user_id", userID)
	now := s.now()

	sess, err := s.Store.MFASessions().GetMFASession(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.EnrollResult{}, err
	}
	switch sess.Status {
	case domain.MFAActive:
		return domain.EnrollResult{}, ErrAlreadyActive
	case domain.MFALocked:
		return domain.EnrollResult{}, ErrMFALocked
	}

	pending, err := s.fetchPending(ctx, userID, now)
	if err != nil {
		return domain.EnrollResult{}, err
	}

	match, err := s.TOTP.Verify(pending.Secret, code, now)
	if err != nil {
		return domain.EnrollResult{}, fmt.Errorf("verify code: %w", err)
	}
	if !match.OK {
		attempts, err := s.Pending.IncrementPendingAttempts(ctx, userID)
		if err != nil {
			log.Warn("failed to count activation attempt", "error", err)
		}
		log.Info("mfa activation code rejected", "attempts", attempts)
		return domain.EnrollResult{}, ErrInvalidCode
	}

	codes, hashes, err := s.newBackupCodes()
	if err != nil {
		return domain.EnrollResult{}, err
	}

	if err := s.Identity.SetMFA(ctx, userID, pending.Secret, true); err != nil {
		return domain.EnrollResult{}, gatewayErr(err)
	}

	if sess.Status == domain.MFANone {
		sess = domain.MFASession{UserID: userID, CreatedAt: now}
	}
	sess.Status = domain.MFAActive
	sess.Secret = pending.Secret
	sess.FailedAttempts = 0
	sess.LockedAt = nil
	sess.LastAttemptAt = &now
	sess.VerifiedAt = &now
	sess.LastUsedStep = match.Step
	sess.UpdatedAt = now

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.MFASessions().UpsertMFASession(ctx, sess); err != nil {
			return err
		}
		return tx.BackupCodes().ReplaceBackupCodes(ctx, userID, hashes)
	})
	if err != nil {
		return domain.EnrollResult{}, fmt.Errorf("activate mfa session: %w", err)
	}

	if err := s.Pending.DeletePending(ctx, userID); err != nil {
		log.Warn("failed to delete confirmed activation", "error", err)
	}

	log.Info("mfa activated")
	return domain.EnrollResult{Activated: true, BackupCodes: codes}, nil
}

// VerifyLogin checks a TOTP code for an active user. A nil error means the
// code was accepted. Locked users are refused before the code is evaluated.
func (s *MFAService) VerifyLogin(ctx context.Context, userID, code string) error {
	if !totpx.WellFormed(code) {
		return ErrMalformedCode
	}

	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	sess, err := s.activeSession(ctx, userID)
	if err != nil {
		return err
	}

	now := s.now()
	match, err := s.TOTP.Verify(sess.Secret, code, now)
	if err != nil {
		return fmt.Errorf("verify code: %w", err)
	}

	var reject error
	switch {
	case !match.OK:
		reject = ErrInvalidCode
	case s.Config.ReplayProtection && match.Step <= sess.LastUsedStep:
		reject = ErrCodeReplayed
	}
	if reject != nil {
		return s.fail(ctx, sess, now, reject)
	}

	s.succeed(&sess, now)
	sess.LastUsedStep = match.Step
	if err := s.Store.MFASessions().UpsertMFASession(ctx, sess); err != nil {
		return fmt.Errorf("record verification: %w", err)
	}
	return nil
}

// activeSession loads the session and turns every non-active status into
// the matching error.
func (s *MFAService) activeSession(ctx context.Context, userID string) (domain.MFASession, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return sess, err
	}
	switch sess.Status {
	case domain.MFAActive:
		return sess, nil
	case domain.MFALocked:
		return sess, ErrMFALocked
	case domain.MFANone:
		return sess, ErrNoMFASession
	default:
		return sess, ErrMFANotActive
	}
}

// fail records one failed attempt, locking the session when the threshold
// is reached, and returns reason (joined with ErrMFALocked on lockout).
func (s *MFAService) fail(ctx context.Context, sess domain.MFASession, now time.Time, reason error) error {
	locked := s.recordFailure(&sess, now)
	if err := s.Store.MFASessions().UpsertMFASession(ctx, sess); err != nil {
		return fmt.Errorf("record failed attempt: %w", err)
	}
	return s.failureResult(ctx, sess, locked, reason)
}

func (s *MFAService) recordFailure(sess *domain.MFASession, now time.Time) (locked bool) {
	sess.FailedAttempts++
	sess.LastAttemptAt = &now
	sess.UpdatedAt = now
	if sess.FailedAttempts >= s.Config.MaxFailedAttempts && sess.Status.CanTransition(domain.MFALocked) {
		sess.Status = domain.MFALocked
		sess.LockedAt = &now
		return true
	}
	return false
}

func (s *MFAService) failureResult(ctx context.Context, sess domain.MFASession, locked bool, reason error) error {
	log := slogx.FromContext(ctx).With("user_id", sess.UserID)
	if locked {
		log.Warn("mfa locked", "failed_attempts", sess.FailedAttempts)
		return fmt.Errorf("%w: %w", reason, ErrMFALocked)
	}
	log.Info("mfa verification failed", "failed_attempts", sess.FailedAttempts)
	return reason
}

func (s *MFAService) succeed(sess *domain.MFASession, now time.Time) {
	sess.FailedAttempts = 0
	sess.LastAttemptAt = &now
	sess.VerifiedAt = &now
	sess.UpdatedAt = now
}

// Disable turns MFA off from any state. The gateway flag is cleared first;
// then the secret, backup codes and any pending activation are discarded.
func (s *MFAService) Disable(ctx context.Context, userID string) error {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	sess, err := s.session(ctx, userID)
	if err != nil {
		return err
	}
	if sess.Status == domain.MFANone {
		return ErrNoMFASession
	}

	if err := s.Identity.SetMFA(ctx, userID, "", false); err != nil {
		return gatewayErr(err)
	}

	now := s.now()
	sess.Status = domain.MFADisabled
	sess.Secret = ""
	sess.FailedAttempts = 0
	sess.LockedAt = nil
	sess.LastUsedStep = 0
	sess.UpdatedAt = now

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.MFASessions().UpsertMFASession(ctx, sess); err != nil {
			return err
		}
		return tx.BackupCodes().DeleteBackupCodes(ctx, userID)
	})
	if err != nil {
		return fmt.Errorf("disable mfa session: %w", err)
	}

	if err := s.Pending.DeletePending(ctx, userID); err != nil {
		slogx.FromContext(ctx).Warn("failed to delete pending activation", "user_id", userID, "error", err)
	}

	slogx.FromContext(ctx).Info("mfa disabled", "user_id", userID)
	return nil
}

// Unlock is the administrative exit from the locked state. The secret is
// kept and the failure counter starts over.
func (s *MFAService) Unlock(ctx context.Context, userID string) error {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	sess, err := s.session(ctx, userID)
	if err != nil {
		return err
	}
	if sess.Status == domain.MFANone {
		return ErrNoMFASession
	}
	if sess.Status != domain.MFALocked {
		return ErrNotLocked
	}

	sess.Status = domain.MFAActive
	sess.FailedAttempts = 0
	sess.LockedAt = nil
	sess.UpdatedAt = s.now()
	if err := s.Store.MFASessions().UpsertMFASession(ctx, sess); err != nil {
		return fmt.Errorf("unlock mfa session: %w", err)
	}

	slogx.FromContext(ctx).Info("mfa unlocked", "user_id", userID)
	return nil
}

// Status reports the user's MFA state.
func (s *MFAService) Status(ctx context.Context, userID string) (domain.StatusView, error) {
	user, err := s.Identity.GetUser(ctx, userID)
	if err != nil {
		return domain.StatusView{}, gatewayErr(err)
	}

	view := domain.StatusView{UserID: userID, MFAEnabled: user.HasMFA()}

	sess, err := s.Store.MFASessions().GetMFASession(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if view.MFAEnabled {
			view.Status = domain.MFAActive
		}
	case err != nil:
		return domain.StatusView{}, err
	default:
		view.Status = sess.Status
		view.FailedAttempts = sess.FailedAttempts
		view.LastAttemptAt = sess.LastAttemptAt
		view.VerifiedAt = sess.VerifiedAt
		view.LockedAt = sess.LockedAt
	}

	codes, err := s.Store.BackupCodes().ListBackupCodes(ctx, userID)
	if err != nil {
		return domain.StatusView{}, err
	}
	for _, c := range codes {
		if !c.Used() {
			view.BackupCodesRemaining++
		}
		view.BackupCodes = append(view.BackupCodes, domain.BackupCodeState{Position: c.Position, UsedAt: c.UsedAt})
	}

	if p, err := s.Pending.GetPending(ctx, userID); err == nil && !p.Expired(s.now()) {
		view.PendingExpiresAt = &p.ExpiresAt
	}

	return view, nil
}

// Stats aggregates the store for operators.
func (s *MFAService) Stats(ctx context.Context) (domain.Stats, error) {
	now := s.now()

	byStatus, err := s.Store.MFASessions().CountByStatus(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	pending, err := s.Pending.CountPending(ctx, now)
	if err != nil {
		return domain.Stats{}, err
	}
	verified, err := s.Store.MFASessions().CountVerifiedSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return domain.Stats{}, err
	}

	return domain.Stats{ByStatus: byStatus, PendingActivations: pending, VerifiedLast24h: verified}, nil
}

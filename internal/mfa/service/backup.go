package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfa/store"
	"github.com/aussiebroadwan/mfagate/pkg/cryptox"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
)

// newBackupCodes returns plaintext codes for the user and the fingerprints
// to store, index for index.
func (s *MFAService) newBackupCodes() (codes, hashes []string, err error) {
	codes = make([]string, s.Config.BackupCodeCount)
	hashes = make([]string, s.Config.BackupCodeCount)
	for i := range codes {
		if codes[i], err = cryptox.GenerateCode(s.Config.BackupCodeLength); err != nil {
			return nil, nil, fmt.Errorf("generate backup code: %w", err)
		}
		hashes[i] = cryptox.FingerprintToken(codes[i])
	}
	return codes, hashes, nil
}

func (s *MFAService) wellFormedBackupCode(code string) bool {
	if len(code) != s.Config.BackupCodeLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(cryptox.CodeAlphabet, r) {
			return false
		}
	}
	return true
}

// ConsumeBackupCode spends one unused backup code in place of a TOTP code.
// A wrong or already spent code counts as a failed attempt towards lockout.
func (s *MFAService) ConsumeBackupCode(ctx context.Context, userID, code string) (domain.BackupCodeResult, error) {
	code = cryptox.NormalizeCode(code)
	if !s.wellFormedBackupCode(code) {
		return domain.BackupCodeResult{}, ErrMalformedBackupCode
	}

	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return domain.BackupCodeResult{}, err
	}
	defer unlock()

	sess, err := s.activeSession(ctx, userID)
	if err != nil {
		return domain.BackupCodeResult{}, err
	}

	now := s.now()
	hash := cryptox.FingerprintToken(code)

	var (
		valid, locked bool
		remaining     int
	)
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		err := tx.BackupCodes().MarkBackupCodeUsed(ctx, userID, hash, now)
		switch {
		case err == nil:
			valid = true
			s.succeed(&sess, now)
		case errors.Is(err, store.ErrNotFound):
			locked = s.recordFailure(&sess, now)
		default:
			return err
		}

		if err := tx.MFASessions().UpsertMFASession(ctx, sess); err != nil {
			return err
		}
		remaining, err = tx.BackupCodes().CountUnusedBackupCodes(ctx, userID)
		return err
	})
	if err != nil {
		return domain.BackupCodeResult{}, fmt.Errorf("consume backup code: %w", err)
	}

	result := domain.BackupCodeResult{Valid: valid, Remaining: remaining}
	if !valid {
		return result, s.failureResult(ctx, sess, locked, ErrInvalidBackupCode)
	}

	slogx.FromContext(ctx).Info("backup code consumed", "user_id", userID, "remaining", remaining)
	return result, nil
}

// RegenerateBackupCodes replaces the user's whole set. Every earlier code,
// used or not, stops working.
func (s *MFAService) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.activeSession(ctx, userID); err != nil {
		return nil, err
	}

	codes, hashes, err := s.newBackupCodes()
	if err != nil {
		return nil, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		return tx.BackupCodes().ReplaceBackupCodes(ctx, userID, hashes)
	})
	if err != nil {
		return nil, fmt.Errorf("store backup codes: %w", err)
	}

	slogx.FromContext(ctx).Info("backup codes regenerated", "user_id", userID, "count", len(codes))
	return codes, nil
}

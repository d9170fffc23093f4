package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfa/store"
	"github.com/aussiebroadwan/mfagate/internal/mfa/store/drivers/memory"
	"github.com/aussiebroadwan/mfagate/internal/mfa/store/storetest"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestConcurrentMarkUsed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.BackupCodes().ReplaceBackupCodes(ctx, "u1", []string{"h1"}))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.BackupCodes().MarkBackupCodeUsed(ctx, "u1", "h1", time.Time{}) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}

func TestTxIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.New()

	tx, err := s.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.MFASessions().UpsertMFASession(ctx, domain.MFASession{UserID: "u1", Status: domain.MFAPending}))
	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Rollback(), "rollback after finish is a no-op")

	_, err = s.MFASessions().GetMFASession(ctx, "u1")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.Error(t, tx.Commit())
}

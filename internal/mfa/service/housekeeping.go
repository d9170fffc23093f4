package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfa/store"
)

// HousekeepingService periodically purges expired pending activations,
// expired login sessions and abandoned MFA records. Expiry is also enforced
// lazily on read, so this only bounds storage growth.
type HousekeepingService struct {
	Store    store.Store
	Pending  store.PendingActivations
	Logger   *slog.Logger
	Interval time.Duration

	// Pending and disabled MFA records untouched for this long are removed.
	StaleAge time.Duration

	Now func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService defaults interval to 1 hour and staleAge to 30 days.
func NewHousekeepingService(s store.Store, pending store.PendingActivations, logger *slog.Logger, interval, staleAge time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	if staleAge <= 0 {
		staleAge = 30 * 24 * time.Hour
	}
	if pending == nil {
		pending = s.PendingActivations()
	}

	return &HousekeepingService{
		Store:    s,
		Pending:  pending,
		Logger:   logger,
		Interval: interval,
		StaleAge: staleAge,
		Now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background. Call Stop to end it.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until an in-progress sweep has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// SweepResult counts what one sweep removed.
type SweepResult struct {
	PendingActivations int64
	LoginSessions      int64
	StaleMFASessions   int64
}

// Sweep runs one cleanup pass. Each step is independent; a failing step is
// logged and the rest still run.
func (s *HousekeepingService) Sweep(ctx context.Context) SweepResult {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}

	var res SweepResult
	var err error

	if res.PendingActivations, err = s.Pending.DeleteExpiredPending(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired pending activations", "error", err)
	}
	if res.LoginSessions, err = s.Store.LoginSessions().DeleteExpiredLoginSessions(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired login sessions", "error", err)
	}
	if res.StaleMFASessions, err = s.Store.MFASessions().DeleteStaleMFASessions(ctx, now.Add(-s.StaleAge)); err != nil {
		s.Logger.Error("failed to delete stale mfa sessions", "error", err)
	}

	s.Logger.Info("housekeeping cleanup completed",
		"pending_activations", res.PendingActivations,
		"login_sessions", res.LoginSessions,
		"stale_mfa_sessions", res.StaleMFASessions,
	)
	return res
}

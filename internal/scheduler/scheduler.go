package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oakroles/discord-bot/internal/metrics"
	"github.com/oakroles/discord-bot/internal/roles"
)

// Evaluator computes the role diff for one identity
type Evaluator interface {
	EvaluateRoles(ctx context.Context, discordID string, forceRefresh bool) roles.RoleDiff
}

// Applier applies a role diff against the guild
type Applier interface {
	ApplyRoleChanges(ctx context.Context, discordID string, diff roles.RoleDiff, skipNotification, silent bool) error
}

// ContentChecker runs the content inference pass
type ContentChecker interface {
	CheckForNewContent(ctx context.Context) (bool, error)
}

// IdentityLister yields every identity with at least one linked account
type IdentityLister interface {
	UsersWithAccounts(ctx context.Context) ([]string, error)
}

// Scheduler periodically re-runs the evaluate/apply pipeline for all
// linked identities and watches for upstream content growth.
type Scheduler struct {
	identities     IdentityLister
	evaluator      Evaluator
	applier        Applier
	contentChecker ContentChecker
	metrics        *metrics.Metrics

	syncInterval    time.Duration
	contentInterval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a Scheduler
func New(identities IdentityLister, evaluator Evaluator, applier Applier, contentChecker ContentChecker, m *metrics.Metrics, syncInterval, contentInterval time.Duration) *Scheduler {
	return &Scheduler{
		identities:      identities,
		evaluator:       evaluator,
		applier:         applier,
		contentChecker:  contentChecker,
		metrics:         m,
		syncInterval:    syncInterval,
		contentInterval: contentInterval,
		stopChan:        make(chan struct{}),
	}
}

// Start begins the sync and content-check loops
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("Starting scheduler", "syncInterval", s.syncInterval, "contentInterval", s.contentInterval)

	s.wg.Add(1)
	defer s.wg.Done()

	syncTicker := time.NewTicker(s.syncInterval)
	defer syncTicker.Stop()
	contentTicker := time.NewTicker(s.contentInterval)
	defer contentTicker.Stop()

	// Initial sync shortly after startup
	initialDelay := time.NewTimer(5 * time.Second)
	defer initialDelay.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopped (context cancelled)")
			return
		case <-s.stopChan:
			slog.Info("Scheduler stopped")
			return
		case <-initialDelay.C:
			s.RunSync(ctx)
		case <-syncTicker.C:
			s.RunSync(ctx)
		case <-contentTicker.C:
			s.runContentCheck(ctx)
		}
	}
}

// Stop signals the scheduler to stop and waits for the loop to exit
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

// RunSync evaluates and applies roles for every identity with linked
// accounts. Identities are processed sequentially; one failure never
// aborts the rest of the batch.
func (s *Scheduler) RunSync(ctx context.Context) {
	processed, failed := s.syncAll(ctx, false)
	s.metrics.SyncRun()
	slog.Info("Scheduled sync complete", "processed", processed, "errors", failed)
}

// ReevaluateAll force-refreshes and re-applies roles for everyone. Used
// after content limit changes; since evaluation is additive-only this can
// only grant newly reachable roles.
func (s *Scheduler) ReevaluateAll(ctx context.Context) {
	processed, failed := s.syncAll(ctx, true)
	slog.Info("Full re-evaluation complete", "processed", processed, "errors", failed)
}

func (s *Scheduler) syncAll(ctx context.Context, forceRefresh bool) (processed, failed int) {
	ids, err := s.identities.UsersWithAccounts(ctx)
	if err != nil {
		slog.Error("Failed to list identities for sync", "error", err)
		return 0, 0
	}

	for _, discordID := range ids {
		select {
		case <-ctx.Done():
			return processed, failed
		default:
		}

		diff := s.evaluator.EvaluateRoles(ctx, discordID, forceRefresh)
		if err := s.applier.ApplyRoleChanges(ctx, discordID, diff, false, true); err != nil {
			failed++
			s.metrics.SyncError()
			slog.Error("Failed to sync roles", "user", discordID, "error", err)
			continue
		}
		processed++
	}
	return processed, failed
}

// runContentCheck runs the daily inference pass and triggers a forced
// re-evaluation when either content total grew.
func (s *Scheduler) runContentCheck(ctx context.Context) {
	grew, err := s.contentChecker.CheckForNewContent(ctx)
	if err != nil {
		slog.Error("Content check failed", "error", err)
		return
	}
	if !grew {
		return
	}

	slog.Info("New content detected, re-evaluating all identities")
	s.ReevaluateAll(ctx)
}

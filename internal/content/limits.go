package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oakroles/discord-bot/internal/metrics"
	"github.com/oakroles/discord-bot/internal/nk"
	"github.com/oakroles/discord-bot/internal/storage"
)

// Fallback totals, used until the first inference pass or staff override
const (
	DefaultTotalMaps         = 82
	DefaultTotalAchievements = 153
)

// How many linked accounts the daily inference samples
const sampleSize = 20

// Limits are the current known content totals, the denominators for the
// completion rules.
type Limits struct {
	TotalMaps         int
	TotalAchievements int
	LastChecked       time.Time
}

// PlayerSource is the cache lookup the inference pass uses
type PlayerSource interface {
	GetPlayerData(ctx context.Context, oak string, forceRefresh bool) *nk.Player
}

// Service owns the persisted content limits. The single-row table
// survives restarts; readers tolerate slightly stale values.
type Service struct {
	repo    *storage.Repository
	players PlayerSource
	metrics *metrics.Metrics
}

// NewService creates the content limit service
func NewService(repo *storage.Repository, players PlayerSource, m *metrics.Metrics) *Service {
	return &Service{repo: repo, players: players, metrics: m}
}

// Limits returns the current totals. Falls back to the hardcoded defaults
// if the row has never been written or the read fails.
func (s *Service) Limits(ctx context.Context) Limits {
	row, err := s.repo.ContentLimitsRow(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNoSnapshot) {
			slog.Error("Failed to read content limits", "error", err)
		}
		return Limits{
			TotalMaps:         DefaultTotalMaps,
			TotalAchievements: DefaultTotalAchievements,
		}
	}
	return Limits{
		TotalMaps:         row.TotalMaps,
		TotalAchievements: row.TotalAchievements,
		LastChecked:       row.LastChecked,
	}
}

// Set applies a staff override. A nil field leaves that total unchanged.
// Returns the resulting limits.
func (s *Service) Set(ctx context.Context, totalMaps, totalAchievements *int) (Limits, error) {
	limits := s.Limits(ctx)
	if totalMaps != nil {
		limits.TotalMaps = *totalMaps
	}
	if totalAchievements != nil {
		limits.TotalAchievements = *totalAchievements
	}
	limits.LastChecked = time.Now()

	if err := s.save(ctx, limits); err != nil {
		return Limits{}, err
	}
	s.metrics.ContentUpdate()
	slog.Info("Content limits updated",
		"totalMaps", limits.TotalMaps,
		"totalAchievements", limits.TotalAchievements)
	return limits, nil
}

// CheckForNewContent infers current totals from a bounded sample of
// linked accounts and reports whether either total strictly grew. The
// upstream API exposes no totals directly, so the best observed player
// values stand in for them.
func (s *Service) CheckForNewContent(ctx context.Context) (bool, error) {
	accounts, err := s.repo.AllAccounts(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list accounts for content check: %w", err)
	}

	maxChimpsBlack := 0
	maxAchievements := 0
	sampled := accounts
	if len(sampled) > sampleSize {
		sampled = sampled[:sampleSize]
	}
	for _, account := range sampled {
		player := s.players.GetPlayerData(ctx, account.NKID, true)
		if player == nil {
			continue
		}
		if n := player.SoloChimpsBlack(); n > maxChimpsBlack {
			maxChimpsBlack = n
		}
		if player.Achievements > maxAchievements {
			maxAchievements = player.Achievements
		}
	}

	inferred := Limits{
		TotalMaps:         DefaultTotalMaps,
		TotalAchievements: DefaultTotalAchievements,
		LastChecked:       time.Now(),
	}
	if maxChimpsBlack > 0 {
		inferred.TotalMaps = maxChimpsBlack
	}
	if maxAchievements > 0 {
		inferred.TotalAchievements = maxAchievements
	}

	stored, err := s.repo.ContentLimitsRow(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNoSnapshot) {
			return false, err
		}
		// First pass establishes the baseline without reporting growth
		if err := s.save(ctx, inferred); err != nil {
			return false, err
		}
		slog.Info("Content baseline initialized",
			"totalMaps", inferred.TotalMaps,
			"totalAchievements", inferred.TotalAchievements)
		return false, nil
	}

	grew := inferred.TotalMaps > stored.TotalMaps || inferred.TotalAchievements > stored.TotalAchievements
	if !grew {
		stored.LastChecked = time.Now()
		if err := s.repo.SaveContentLimits(ctx, stored); err != nil {
			return false, err
		}
		return false, nil
	}

	updated := Limits{
		TotalMaps:         max(inferred.TotalMaps, stored.TotalMaps),
		TotalAchievements: max(inferred.TotalAchievements, stored.TotalAchievements),
		LastChecked:       time.Now(),
	}
	if err := s.save(ctx, updated); err != nil {
		return false, err
	}
	s.metrics.ContentUpdate()
	slog.Info("New content detected",
		"totalMaps", updated.TotalMaps,
		"totalAchievements", updated.TotalAchievements)
	return true, nil
}

func (s *Service) save(ctx context.Context, limits Limits) error {
	return s.repo.SaveContentLimits(ctx, &storage.ContentLimits{
		TotalMaps:         limits.TotalMaps,
		TotalAchievements: limits.TotalAchievements,
		LastChecked:       limits.LastChecked,
	})
}

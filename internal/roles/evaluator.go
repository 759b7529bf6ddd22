package roles

import (
	"context"
	"log/slog"

	"github.com/oakroles/discord-bot/internal/config"
	"github.com/oakroles/discord-bot/internal/content"
	"github.com/oakroles/discord-bot/internal/nk"
	"github.com/oakroles/discord-bot/internal/storage"
)

// RoleDiff is the outcome of one evaluation: roles to grant, roles to
// revoke, and display stats. Evaluation is additive-only, so RolesToRemove
// stays empty here; only the cleanup path fills it.
type RoleDiff struct {
	RolesToAdd    []string
	RolesToRemove []string
	Stats         Stats
}

// Stats are display-only aggregates for command replies
type Stats struct {
	SoloChimpsBlack   int
	CoopChimpsBlack   int
	Achievements      int
	TotalAchievements int
	TotalMaps         int
}

// AccountStore is what the evaluator reads from persistence
type AccountStore interface {
	AccountsByUser(ctx context.Context, discordID string) ([]storage.NKAccount, error)
	AwardedRoles(ctx context.Context, discordID string) ([]string, error)
}

// PlayerSource yields the freshest usable snapshot per OAK, nil if none
type PlayerSource interface {
	GetPlayerData(ctx context.Context, oak string, forceRefresh bool) *nk.Player
}

// AvailabilityGate confirms the upstream service is reachable and our key
// is valid before any mutation is proposed.
type AvailabilityGate interface {
	KeyValid(ctx context.Context) bool
}

// LimitsProvider yields the current content totals
type LimitsProvider interface {
	Limits(ctx context.Context) content.Limits
}

// Evaluator computes role diffs for an identity
type Evaluator struct {
	store   AccountStore
	players PlayerSource
	gate    AvailabilityGate
	limits  LimitsProvider
	roleIDs config.RoleIDs
}

// NewEvaluator creates an evaluator with injected collaborators
func NewEvaluator(store AccountStore, players PlayerSource, gate AvailabilityGate, limits LimitsProvider, roleIDs config.RoleIDs) *Evaluator {
	return &Evaluator{
		store:   store,
		players: players,
		gate:    gate,
		limits:  limits,
		roleIDs: roleIDs,
	}
}

// EvaluateRoles produces the diff for one identity. Never errors for
// expected failures: unavailable upstream, missing data or a flagged
// account all degrade to an empty diff, leaving held roles untouched.
func (e *Evaluator) EvaluateRoles(ctx context.Context, discordID string, forceRefresh bool) RoleDiff {
	// When availability cannot be confirmed, propose nothing
	if !e.gate.KeyValid(ctx) {
		slog.Warn("Availability check failed, skipping role evaluation", "user", discordID)
		return RoleDiff{}
	}

	accounts, err := e.store.AccountsByUser(ctx, discordID)
	if err != nil {
		slog.Error("Failed to load linked accounts", "user", discordID, "error", err)
		return RoleDiff{}
	}
	if len(accounts) == 0 {
		return RoleDiff{}
	}

	var snapshots []*nk.Player
	for _, account := range accounts {
		if player := e.players.GetPlayerData(ctx, account.NKID, forceRefresh); player != nil {
			snapshots = append(snapshots, player)
		}
	}
	if len(snapshots) == 0 {
		return RoleDiff{}
	}

	// One flagged account blocks role computation for the whole identity
	for _, player := range snapshots {
		if player.Flagged() {
			slog.Info("Flagged account, no roles computed", "user", discordID)
			return RoleDiff{}
		}
	}

	limits := e.limits.Limits(ctx)
	results := Evaluate(snapshots, limits)

	awarded, err := e.store.AwardedRoles(ctx, discordID)
	if err != nil {
		slog.Error("Failed to load awarded roles", "user", discordID, "error", err)
		return RoleDiff{}
	}
	tracked := make(map[string]bool, len(awarded))
	for _, roleID := range awarded {
		tracked[roleID] = true
	}

	// Additive only: qualifying roles not yet tracked are proposed;
	// no-longer-qualifying roles are left alone. Removal happens solely
	// through the cleanup path.
	var rolesToAdd []string
	for _, candidate := range []struct {
		qualifies bool
		roleID    string
	}{
		{results.FastMonkey, e.roleIDs.FastMonkey},
		{results.BossSlayer, e.roleIDs.BossSlayer},
		{results.ExpertCompletionist, e.roleIDs.ExpertCompletionist},
		{results.AdvancedCompletionist, e.roleIDs.AdvancedCompletionist},
		{results.Grandmaster, e.roleIDs.Grandmaster},
		{results.TheDartLord, e.roleIDs.TheDartLord},
		{results.AllAchievements, e.roleIDs.AllAchievements},
	} {
		if candidate.qualifies && !tracked[candidate.roleID] {
			rolesToAdd = append(rolesToAdd, candidate.roleID)
		}
	}

	latest := snapshots[len(snapshots)-1]
	return RoleDiff{
		RolesToAdd: rolesToAdd,
		Stats: Stats{
			SoloChimpsBlack:   latest.SoloChimpsBlack(),
			CoopChimpsBlack:   latest.CoopChimpsBlack(),
			Achievements:      latest.Achievements,
			TotalAchievements: limits.TotalAchievements,
			TotalMaps:         limits.TotalMaps,
		},
	}
}

package roles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oakroles/discord-bot/internal/config"
	"github.com/oakroles/discord-bot/internal/content"
	"github.com/oakroles/discord-bot/internal/nk"
	"github.com/oakroles/discord-bot/internal/storage"
)

type fakeAccountStore struct {
	accounts map[string][]storage.NKAccount
	awarded  map[string][]string
}

func (f *fakeAccountStore) AccountsByUser(_ context.Context, discordID string) ([]storage.NKAccount, error) {
	return f.accounts[discordID], nil
}

func (f *fakeAccountStore) AwardedRoles(_ context.Context, discordID string) ([]string, error) {
	return f.awarded[discordID], nil
}

type fakePlayerSource struct {
	players map[string]*nk.Player
}

func (f *fakePlayerSource) GetPlayerData(_ context.Context, oak string, _ bool) *nk.Player {
	return f.players[oak]
}

type fakeGate struct{ valid bool }

func (f *fakeGate) KeyValid(context.Context) bool { return f.valid }

type fakeLimits struct{ limits content.Limits }

func (f *fakeLimits) Limits(context.Context) content.Limits { return f.limits }

func testRoleIDs() config.RoleIDs {
	return config.RoleIDs{
		FastMonkey:            "role-fast",
		BossSlayer:            "role-boss",
		ExpertCompletionist:   "role-expert",
		AdvancedCompletionist: "role-advanced",
		Grandmaster:           "role-grandmaster",
		TheDartLord:           "role-dartlord",
		AllAchievements:       "role-achievements",
	}
}

func newTestEvaluator(store *fakeAccountStore, players *fakePlayerSource, gate *fakeGate) *Evaluator {
	return NewEvaluator(store, players, gate,
		&fakeLimits{limits: content.Limits{TotalMaps: 82, TotalAchievements: 153}},
		testRoleIDs())
}

func TestEvaluateRolesUnavailableGate(t *testing.T) {
	store := &fakeAccountStore{
		accounts: map[string][]storage.NKAccount{
			"u1": {{DiscordID: "u1", NKID: "oak1"}},
		},
	}
	players := &fakePlayerSource{players: map[string]*nk.Player{
		"oak1": playerWith(82, 82, 153),
	}}

	e := newTestEvaluator(store, players, &fakeGate{valid: false})
	diff := e.EvaluateRoles(context.Background(), "u1", false)

	require.Empty(t, diff.RolesToAdd)
	require.Empty(t, diff.RolesToRemove)
}

func TestEvaluateRolesNoAccounts(t *testing.T) {
	e := newTestEvaluator(&fakeAccountStore{}, &fakePlayerSource{}, &fakeGate{valid: true})
	diff := e.EvaluateRoles(context.Background(), "nobody", false)
	require.Empty(t, diff.RolesToAdd)
}

func TestEvaluateRolesProposesUntracked(t *testing.T) {
	store := &fakeAccountStore{
		accounts: map[string][]storage.NKAccount{
			"u1": {{DiscordID: "u1", NKID: "oak1"}},
		},
		awarded: map[string][]string{
			"u1": {"role-expert"},
		},
	}
	players := &fakePlayerSource{players: map[string]*nk.Player{
		"oak1": playerWith(82, 82, 153),
	}}

	e := newTestEvaluator(store, players, &fakeGate{valid: true})
	diff := e.EvaluateRoles(context.Background(), "u1", false)

	// Everything qualifies except the race and boss rules; the already
	// tracked expert role is not re-proposed.
	require.ElementsMatch(t,
		[]string{"role-advanced", "role-grandmaster", "role-dartlord", "role-achievements"},
		diff.RolesToAdd)
	require.Empty(t, diff.RolesToRemove, "evaluation must never propose removals")
}

func TestEvaluateRolesFlaggedAccountBlocksIdentity(t *testing.T) {
	store := &fakeAccountStore{
		accounts: map[string][]storage.NKAccount{
			"u1": {
				{DiscordID: "u1", NKID: "oak1"},
				{DiscordID: "u1", NKID: "oak2"},
			},
		},
	}
	clean := playerWith(82, 82, 153)
	flagged := playerWith(82, 82, 153)
	flagged.Cheater = true
	players := &fakePlayerSource{players: map[string]*nk.Player{
		"oak1": clean,
		"oak2": flagged,
	}}

	e := newTestEvaluator(store, players, &fakeGate{valid: true})
	diff := e.EvaluateRoles(context.Background(), "u1", false)

	require.Empty(t, diff.RolesToAdd)
	require.Empty(t, diff.RolesToRemove)
}

func TestEvaluateRolesSkipsMissingSnapshots(t *testing.T) {
	store := &fakeAccountStore{
		accounts: map[string][]storage.NKAccount{
			"u1": {
				{DiscordID: "u1", NKID: "missing"},
				{DiscordID: "u1", NKID: "oak1"},
			},
		},
	}
	players := &fakePlayerSource{players: map[string]*nk.Player{
		"oak1": playerWith(30, 0, 0),
	}}

	e := newTestEvaluator(store, players, &fakeGate{valid: true})
	diff := e.EvaluateRoles(context.Background(), "u1", false)

	require.Equal(t, []string{"role-advanced"}, diff.RolesToAdd)
	require.Equal(t, 30, diff.Stats.SoloChimpsBlack)
}

func TestEvaluateRolesLostQualificationKeepsRole(t *testing.T) {
	// Limits grew past the player's progress, but the tracked role stays
	store := &fakeAccountStore{
		accounts: map[string][]storage.NKAccount{
			"u1": {{DiscordID: "u1", NKID: "oak1"}},
		},
		awarded: map[string][]string{
			"u1": {"role-expert", "role-grandmaster", "role-dartlord"},
		},
	}
	players := &fakePlayerSource{players: map[string]*nk.Player{
		"oak1": playerWith(82, 82, 0),
	}}

	e := NewEvaluator(store, players, &fakeGate{valid: true},
		&fakeLimits{limits: content.Limits{TotalMaps: 90, TotalAchievements: 160}},
		testRoleIDs())
	diff := e.EvaluateRoles(context.Background(), "u1", false)

	require.Equal(t, []string{"role-advanced"}, diff.RolesToAdd)
	require.Empty(t, diff.RolesToRemove)
}

func TestEvaluateRolesStatsFromLatestAccount(t *testing.T) {
	store := &fakeAccountStore{
		accounts: map[string][]storage.NKAccount{
			"u1": {
				{DiscordID: "u1", NKID: "old"},
				{DiscordID: "u1", NKID: "new"},
			},
		},
	}
	players := &fakePlayerSource{players: map[string]*nk.Player{
		"old": playerWith(82, 82, 153),
		"new": playerWith(3, 1, 40),
	}}

	e := newTestEvaluator(store, players, &fakeGate{valid: true})
	diff := e.EvaluateRoles(context.Background(), "u1", false)

	require.Equal(t, 3, diff.Stats.SoloChimpsBlack)
	require.Equal(t, 1, diff.Stats.CoopChimpsBlack)
	require.Equal(t, 40, diff.Stats.Achievements)
	require.Equal(t, 82, diff.Stats.TotalMaps)
	require.Equal(t, 153, diff.Stats.TotalAchievements)
}

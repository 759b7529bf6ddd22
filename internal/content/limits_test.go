package content

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oakroles/discord-bot/internal/nk"
	"github.com/oakroles/discord-bot/internal/storage"
)

type stubPlayers struct {
	players map[string]*nk.Player
	fetched []string
}

func (s *stubPlayers) GetPlayerData(_ context.Context, oak string, _ bool) *nk.Player {
	s.fetched = append(s.fetched, oak)
	return s.players[oak]
}

func newTestService(t *testing.T, players *stubPlayers) (*Service, *storage.Repository) {
	t.Helper()
	repo, err := storage.NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return NewService(repo, players, nil), repo
}

func link(t *testing.T, repo *storage.Repository, user, oak string) {
	t.Helper()
	require.NoError(t, repo.LinkAccount(context.Background(), user, oak, oak))
}

func TestLimitsDefaultsWhenUnset(t *testing.T) {
	svc, _ := newTestService(t, &stubPlayers{})

	limits := svc.Limits(context.Background())
	require.Equal(t, DefaultTotalMaps, limits.TotalMaps)
	require.Equal(t, DefaultTotalAchievements, limits.TotalAchievements)
	require.True(t, limits.LastChecked.IsZero())
}

func TestSetPartialOverride(t *testing.T) {
	svc, _ := newTestService(t, &stubPlayers{})
	ctx := context.Background()

	maps := 85
	limits, err := svc.Set(ctx, &maps, nil)
	require.NoError(t, err)
	require.Equal(t, 85, limits.TotalMaps)
	require.Equal(t, DefaultTotalAchievements, limits.TotalAchievements)

	// The override persists
	limits = svc.Limits(ctx)
	require.Equal(t, 85, limits.TotalMaps)
	require.False(t, limits.LastChecked.IsZero())

	achievements := 160
	limits, err = svc.Set(ctx, nil, &achievements)
	require.NoError(t, err)
	require.Equal(t, 85, limits.TotalMaps)
	require.Equal(t, 160, limits.TotalAchievements)
}

func TestCheckForNewContentFirstPassSetsBaseline(t *testing.T) {
	players := &stubPlayers{players: map[string]*nk.Player{
		"oak1": {
			Achievements:       155,
			MedalsSinglePlayer: map[string]int{nk.MedalChimpsBlack: 83},
		},
	}}
	svc, repo := newTestService(t, players)
	ctx := context.Background()
	link(t, repo, "u1", "oak1")

	grew, err := svc.CheckForNewContent(ctx)
	require.NoError(t, err)
	require.False(t, grew, "first pass establishes the baseline silently")

	limits := svc.Limits(ctx)
	require.Equal(t, 83, limits.TotalMaps)
	require.Equal(t, 155, limits.TotalAchievements)
}

func TestCheckForNewContentDetectsGrowth(t *testing.T) {
	player := &nk.Player{
		Achievements:       153,
		MedalsSinglePlayer: map[string]int{nk.MedalChimpsBlack: 82},
	}
	players := &stubPlayers{players: map[string]*nk.Player{"oak1": player}}
	svc, repo := newTestService(t, players)
	ctx := context.Background()
	link(t, repo, "u1", "oak1")

	grew, err := svc.CheckForNewContent(ctx)
	require.NoError(t, err)
	require.False(t, grew)

	// An update ships and a player finishes the new map
	player.MedalsSinglePlayer[nk.MedalChimpsBlack] = 83
	grew, err = svc.CheckForNewContent(ctx)
	require.NoError(t, err)
	require.True(t, grew)

	limits := svc.Limits(ctx)
	require.Equal(t, 83, limits.TotalMaps)
	require.Equal(t, 153, limits.TotalAchievements)
}

func TestCheckForNewContentNeverShrinks(t *testing.T) {
	player := &nk.Player{
		Achievements:       155,
		MedalsSinglePlayer: map[string]int{nk.MedalChimpsBlack: 83},
	}
	players := &stubPlayers{players: map[string]*nk.Player{"oak1": player}}
	svc, repo := newTestService(t, players)
	ctx := context.Background()
	link(t, repo, "u1", "oak1")

	_, err := svc.CheckForNewContent(ctx)
	require.NoError(t, err)

	// The top player unlinks; the remaining sample observes less
	player.Achievements = 100
	player.MedalsSinglePlayer[nk.MedalChimpsBlack] = 40

	grew, err := svc.CheckForNewContent(ctx)
	require.NoError(t, err)
	require.False(t, grew)

	limits := svc.Limits(ctx)
	require.Equal(t, 83, limits.TotalMaps)
	require.Equal(t, 155, limits.TotalAchievements)
}

func TestCheckForNewContentBoundsSample(t *testing.T) {
	players := &stubPlayers{players: map[string]*nk.Player{}}
	svc, repo := newTestService(t, players)
	ctx := context.Background()

	for i := 0; i < sampleSize+5; i++ {
		link(t, repo, "u1", fmt.Sprintf("oak-%02d", i))
	}

	_, err := svc.CheckForNewContent(ctx)
	require.NoError(t, err)
	require.Len(t, players.fetched, sampleSize)
}

func TestCheckForNewContentNoAccounts(t *testing.T) {
	svc, _ := newTestService(t, &stubPlayers{})
	ctx := context.Background()

	grew, err := svc.CheckForNewContent(ctx)
	require.NoError(t, err)
	require.False(t, grew)

	// With nothing observed, the defaults hold
	limits := svc.Limits(ctx)
	require.Equal(t, DefaultTotalMaps, limits.TotalMaps)
	require.Equal(t, DefaultTotalAchievements, limits.TotalAchievements)
}

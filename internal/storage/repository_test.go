package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestLinkAccountBasic(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.LinkAccount(ctx, "u1", "oak1", "Alice"))

	accounts, err := repo.AccountsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.Equal(t, "oak1", accounts[0].NKID)
	require.Equal(t, "Alice", accounts[0].DisplayName)

	owner, err := repo.AccountOwner(ctx, "oak1")
	require.NoError(t, err)
	require.Equal(t, "u1", owner)
}

func TestLinkAccountDuplicateSelf(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.LinkAccount(ctx, "u1", "oak1", "Alice"))
	err := repo.LinkAccount(ctx, "u1", "oak1", "Alice")
	require.ErrorIs(t, err, ErrAlreadyLinkedSelf)

	// No duplicate row
	accounts, err := repo.AccountsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
}

func TestLinkAccountConcurrentClaim(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	users := []string{"u1", "u2", "u3", "u4"}
	start := make(chan struct{})
	results := make(chan error, len(users))
	for _, user := range users {
		user := user
		go func() {
			<-start
			results <- repo.LinkAccount(ctx, user, "oak1", "Racer")
		}()
	}
	close(start)

	var winners, losers int
	for range users {
		err := <-results
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrAlreadyLinkedOther):
			losers++
		default:
			t.Fatalf("unexpected link error: %v", err)
		}
	}
	require.Equal(t, 1, winners, "exactly one claim must win")
	require.Equal(t, len(users)-1, losers, "every loser must get a precise conflict")

	// A single row exists and ownership is unambiguous
	owner, err := repo.AccountOwner(ctx, "oak1")
	require.NoError(t, err)
	all, err := repo.AllAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, owner, all[0].DiscordID)
}

func TestLinkAccountClaimedByOther(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.LinkAccount(ctx, "u1", "oak1", "Alice"))
	err := repo.LinkAccount(ctx, "u2", "oak1", "Alice")
	require.ErrorIs(t, err, ErrAlreadyLinkedOther)

	owner, err := repo.AccountOwner(ctx, "oak1")
	require.NoError(t, err)
	require.Equal(t, "u1", owner)
}

func TestLinkAccountMultipleForSameUser(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.LinkAccount(ctx, "u1", "oak1", "Main"))
	require.NoError(t, repo.LinkAccount(ctx, "u1", "oak2", "Alt"))

	accounts, err := repo.AccountsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	// Ordered oldest link first
	require.Equal(t, "oak1", accounts[0].NKID)
	require.Equal(t, "oak2", accounts[1].NKID)
}

func TestForceLinkStealsOwnership(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.LinkAccount(ctx, "u1", "oak1", "Alice"))

	previous, err := repo.ForceLink(ctx, "u2", "oak1", "Alice")
	require.NoError(t, err)
	require.Equal(t, "u1", previous)

	owner, err := repo.AccountOwner(ctx, "oak1")
	require.NoError(t, err)
	require.Equal(t, "u2", owner)

	// The previous owner lost the link entirely
	accounts, err := repo.AccountsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, accounts)
}

func TestForceLinkUnclaimed(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	previous, err := repo.ForceLink(ctx, "u1", "oak1", "Alice")
	require.NoError(t, err)
	require.Empty(t, previous)
}

func TestForceLinkAlreadyOwn(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.LinkAccount(ctx, "u1", "oak1", "Alice"))
	_, err := repo.ForceLink(ctx, "u1", "oak1", "Alice")
	require.ErrorIs(t, err, ErrAlreadyLinkedSelf)
}

func TestUnlinkAccount(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.LinkAccount(ctx, "u1", "oak1", "Alice"))
	require.NoError(t, repo.UnlinkAccount(ctx, "u1", "oak1"))

	_, err := repo.AccountOwner(ctx, "oak1")
	require.ErrorIs(t, err, ErrNotLinked)
}

func TestUnlinkAccountNotLinked(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.ErrorIs(t, repo.UnlinkAccount(ctx, "u1", "oak1"), ErrNotLinked)

	// Owned by someone else counts as not linked for this user
	require.NoError(t, repo.LinkAccount(ctx, "u2", "oak1", "Bob"))
	require.ErrorIs(t, repo.UnlinkAccount(ctx, "u1", "oak1"), ErrNotLinked)
}

func TestUsersWithAccounts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ids, err := repo.UsersWithAccounts(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)

	require.NoError(t, repo.LinkAccount(ctx, "u1", "oak1", "a"))
	require.NoError(t, repo.LinkAccount(ctx, "u1", "oak2", "b"))
	require.NoError(t, repo.LinkAccount(ctx, "u2", "oak3", "c"))

	ids, err = repo.UsersWithAccounts(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"u1", "u2"}, ids)
}

func TestTrackRoleAwardedIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.TrackRoleAwarded(ctx, "u1", "r1", time.Now()))
	require.NoError(t, repo.TrackRoleAwarded(ctx, "u1", "r1", time.Now()))
	require.NoError(t, repo.TrackRoleAwarded(ctx, "u1", "r2", time.Now()))

	roles, err := repo.AwardedRoles(ctx, "u1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"r1", "r2"}, roles)
}

func TestClearAwardedRoleRecords(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.TrackRoleAwarded(ctx, "u1", "r1", time.Now()))
	require.NoError(t, repo.TrackRoleAwarded(ctx, "u1", "r2", time.Now()))
	require.NoError(t, repo.TrackRoleAwarded(ctx, "u2", "r1", time.Now()))

	cleared, err := repo.ClearAwardedRoleRecords(ctx, "u1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"r1", "r2"}, cleared)

	roles, err := repo.AwardedRoles(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, roles)

	// Other users' records untouched
	roles, err = repo.AwardedRoles(ctx, "u2")
	require.NoError(t, err)
	require.Equal(t, []string{"r1"}, roles)
}

func TestClearAwardedRoleRecordsEmpty(t *testing.T) {
	repo := newTestRepo(t)

	cleared, err := repo.ClearAwardedRoleRecords(context.Background(), "u1")
	require.NoError(t, err)
	require.Empty(t, cleared)
}

func TestSnapshotRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, _, err := repo.Snapshot(ctx, "oak1")
	require.ErrorIs(t, err, ErrNoSnapshot)

	first := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, repo.UpsertSnapshot(ctx, "oak1", []byte(`{"v":1}`), first))

	payload, at, err := repo.Snapshot(ctx, "oak1")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":1}`, string(payload))
	require.True(t, at.Equal(first))

	// Upsert replaces, never duplicates
	second := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.UpsertSnapshot(ctx, "oak1", []byte(`{"v":2}`), second))

	payload, at, err = repo.Snapshot(ctx, "oak1")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":2}`, string(payload))
	require.True(t, at.After(first))
}

func TestStaffLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ok, err := repo.IsStaff(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, repo.AddStaff(ctx, "u1", "owner"))
	// Re-adding is a no-op, not an error
	require.NoError(t, repo.AddStaff(ctx, "u1", "owner"))

	ok, err = repo.IsStaff(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)

	staff, err := repo.ListStaff(ctx)
	require.NoError(t, err)
	require.Len(t, staff, 1)
	require.Equal(t, "owner", staff[0].AddedBy)

	removed, err := repo.RemoveStaff(ctx, "u1")
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = repo.RemoveStaff(ctx, "u1")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestContentLimitsRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.ContentLimitsRow(ctx)
	require.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, repo.SaveContentLimits(ctx, &ContentLimits{
		TotalMaps:         82,
		TotalAchievements: 153,
		LastChecked:       time.Now(),
	}))

	row, err := repo.ContentLimitsRow(ctx)
	require.NoError(t, err)
	require.Equal(t, 82, row.TotalMaps)
	require.Equal(t, 153, row.TotalAchievements)

	// Saving again overwrites the single row
	require.NoError(t, repo.SaveContentLimits(ctx, &ContentLimits{
		TotalMaps:         83,
		TotalAchievements: 155,
		LastChecked:       time.Now(),
	}))

	row, err = repo.ContentLimitsRow(ctx)
	require.NoError(t, err)
	require.Equal(t, 83, row.TotalMaps)
	require.Equal(t, 155, row.TotalAchievements)
}

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oakroles/discord-bot/internal/roles"
)

type stubLister struct {
	ids []string
	err error
}

func (s *stubLister) UsersWithAccounts(context.Context) ([]string, error) {
	return s.ids, s.err
}

type recordingEvaluator struct {
	evaluated []string
	forced    []bool
	diffs     map[string]roles.RoleDiff
}

func (r *recordingEvaluator) EvaluateRoles(_ context.Context, discordID string, forceRefresh bool) roles.RoleDiff {
	r.evaluated = append(r.evaluated, discordID)
	r.forced = append(r.forced, forceRefresh)
	return r.diffs[discordID]
}

type recordingApplier struct {
	applied []string
	failFor map[string]error
}

func (r *recordingApplier) ApplyRoleChanges(_ context.Context, discordID string, _ roles.RoleDiff, _, _ bool) error {
	if err := r.failFor[discordID]; err != nil {
		return err
	}
	r.applied = append(r.applied, discordID)
	return nil
}

type stubChecker struct {
	grew  bool
	err   error
	calls int
}

func (s *stubChecker) CheckForNewContent(context.Context) (bool, error) {
	s.calls++
	return s.grew, s.err
}

func newTestScheduler(lister IdentityLister, evaluator Evaluator, applier Applier, checker ContentChecker) *Scheduler {
	return New(lister, evaluator, applier, checker, nil, time.Hour, time.Hour)
}

func TestRunSyncProcessesEveryIdentity(t *testing.T) {
	lister := &stubLister{ids: []string{"u1", "u2", "u3"}}
	evaluator := &recordingEvaluator{}
	applier := &recordingApplier{}

	s := newTestScheduler(lister, evaluator, applier, &stubChecker{})
	s.RunSync(context.Background())

	require.Equal(t, []string{"u1", "u2", "u3"}, evaluator.evaluated)
	require.Equal(t, []string{"u1", "u2", "u3"}, applier.applied)
	require.Equal(t, []bool{false, false, false}, evaluator.forced)
}

func TestRunSyncOneFailureContinues(t *testing.T) {
	lister := &stubLister{ids: []string{"u1", "u2", "u3"}}
	evaluator := &recordingEvaluator{}
	applier := &recordingApplier{failFor: map[string]error{"u2": errors.New("gateway error")}}

	s := newTestScheduler(lister, evaluator, applier, &stubChecker{})
	s.RunSync(context.Background())

	require.Equal(t, []string{"u1", "u2", "u3"}, evaluator.evaluated)
	require.Equal(t, []string{"u1", "u3"}, applier.applied)
}

func TestRunSyncListFailure(t *testing.T) {
	lister := &stubLister{err: errors.New("db closed")}
	evaluator := &recordingEvaluator{}

	s := newTestScheduler(lister, evaluator, &recordingApplier{}, &stubChecker{})
	s.RunSync(context.Background())

	require.Empty(t, evaluator.evaluated)
}

func TestRunSyncStopsOnCancelledContext(t *testing.T) {
	lister := &stubLister{ids: []string{"u1", "u2"}}
	evaluator := &recordingEvaluator{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestScheduler(lister, evaluator, &recordingApplier{}, &stubChecker{})
	s.RunSync(ctx)

	require.Empty(t, evaluator.evaluated)
}

func TestReevaluateAllForcesRefresh(t *testing.T) {
	lister := &stubLister{ids: []string{"u1"}}
	evaluator := &recordingEvaluator{}

	s := newTestScheduler(lister, evaluator, &recordingApplier{}, &stubChecker{})
	s.ReevaluateAll(context.Background())

	require.Equal(t, []bool{true}, evaluator.forced)
}

func TestContentGrowthTriggersReevaluation(t *testing.T) {
	lister := &stubLister{ids: []string{"u1", "u2"}}
	evaluator := &recordingEvaluator{}
	checker := &stubChecker{grew: true}

	s := newTestScheduler(lister, evaluator, &recordingApplier{}, checker)
	s.runContentCheck(context.Background())

	require.Equal(t, 1, checker.calls)
	require.Equal(t, []string{"u1", "u2"}, evaluator.evaluated)
	require.Equal(t, []bool{true, true}, evaluator.forced)
}

func TestNoContentGrowthNoReevaluation(t *testing.T) {
	evaluator := &recordingEvaluator{}
	checker := &stubChecker{grew: false}

	s := newTestScheduler(&stubLister{ids: []string{"u1"}}, evaluator, &recordingApplier{}, checker)
	s.runContentCheck(context.Background())

	require.Empty(t, evaluator.evaluated)
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler(&stubLister{}, &recordingEvaluator{}, &recordingApplier{}, &stubChecker{})

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	// Give the loop a moment to come up, then stop it
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

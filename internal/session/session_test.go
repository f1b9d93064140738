package session

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"llm-aeo-tracker/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingJob returns the upper-cased input once release is closed, or the
// context error when the run is canceled first.
func blockingJob(release <-chan struct{}, canceled *atomic.Int32) Job[string, string] {
	return func(ctx context.Context, in string) (string, error) {
		select {
		case <-release:
			return strings.ToUpper(in), nil
		case <-ctx.Done():
			canceled.Add(1)
			return "", ctx.Err()
		}
	}
}

func nonEmpty(in string) error {
	if strings.TrimSpace(in) == "" {
		return common.ValidationError("input is required")
	}
	return nil
}

func wait(t *testing.T, s *Session[string, string]) Snapshot[string, string] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := s.Wait(ctx)
	require.NoError(t, err)
	return snap
}

func TestSession_SubmitSucceeds(t *testing.T) {
	release := make(chan struct{})
	var canceled atomic.Int32
	s := New("s1", blockingJob(release, &canceled), nonEmpty)

	assert.Equal(t, StateIdle, s.Snapshot().State)

	snap, err := s.Submit(context.Background(), "tesla")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, snap.State)
	assert.Equal(t, "tesla", snap.Input)

	close(release)
	done := wait(t, s)

	assert.Equal(t, StateSucceeded, done.State)
	assert.Equal(t, "TESLA", done.Result)
	assert.NoError(t, done.Err)
	assert.False(t, done.FinishedAt.IsZero())
	// the earlier snapshot is unchanged
	assert.Equal(t, StateRunning, snap.State)
	assert.Empty(t, snap.Result)
}

func TestSession_JobErrorFails(t *testing.T) {
	boom := errors.New("boom")
	s := New("s1", func(context.Context, string) (string, error) { return "", boom }, nil)

	_, err := s.Submit(context.Background(), "x")
	require.NoError(t, err)
	snap := wait(t, s)

	assert.Equal(t, StateFailed, snap.State)
	assert.ErrorIs(t, snap.Err, boom)
	assert.Equal(t, "boom", snap.Error)
}

func TestSession_GuardRejects(t *testing.T) {
	var calls atomic.Int32
	s := New("s1", func(context.Context, string) (string, error) {
		calls.Add(1)
		return "", nil
	}, nonEmpty)

	snap, err := s.Submit(context.Background(), "  ")

	assert.True(t, errors.Is(err, common.ErrValidation))
	assert.Equal(t, StateIdle, snap.State)
	assert.Zero(t, calls.Load())
}

func TestSession_NewSubmitCancelsPrevious(t *testing.T) {
	var canceled atomic.Int32
	first := make(chan struct{})
	second := make(chan struct{})
	var runs atomic.Int32
	s := New("s1", func(ctx context.Context, in string) (string, error) {
		release := first
		if runs.Add(1) == 2 {
			release = second
		}
		return blockingJob(release, &canceled)(ctx, in)
	}, nil)

	_, err := s.Submit(context.Background(), "old")
	require.NoError(t, err)
	snap, err := s.Submit(context.Background(), "new")
	require.NoError(t, err)
	assert.Equal(t, "new", snap.Input)

	// releasing the first run must not leak its result
	close(first)
	close(second)
	done := wait(t, s)

	assert.Equal(t, StateSucceeded, done.State)
	assert.Equal(t, "NEW", done.Result)
}

func TestSession_StaleResultDiscarded(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	// ignores cancellation, so only the generation check protects the state
	s := New("s1", func(ctx context.Context, in string) (string, error) {
		<-release
		defer close(finished)
		return "stale", nil
	}, nil)

	_, err := s.Submit(context.Background(), "x")
	require.NoError(t, err)
	canceledSnap := s.Cancel()
	close(release)
	<-finished
	time.Sleep(10 * time.Millisecond)

	after := s.Snapshot()
	assert.Equal(t, StateFailed, canceledSnap.State)
	assert.Equal(t, StateFailed, after.State)
	assert.Empty(t, after.Result)
	assert.True(t, errors.Is(after.Err, common.ErrCanceled))
}

func TestSession_Cancel(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	var canceled atomic.Int32
	s := New("s1", blockingJob(release, &canceled), nil)

	_, err := s.Submit(context.Background(), "x")
	require.NoError(t, err)
	snap := s.Cancel()

	assert.Equal(t, StateFailed, snap.State)
	assert.True(t, errors.Is(snap.Err, common.ErrCanceled))
	assert.Eventually(t, func() bool { return canceled.Load() == 1 }, time.Second, 5*time.Millisecond)

	// no-op outside running
	assert.Equal(t, snap.Generation, s.Cancel().Generation)
}

func TestSession_Reset(t *testing.T) {
	release := make(chan struct{})
	var canceled atomic.Int32
	s := New("s1", blockingJob(release, &canceled), nil)

	_, err := s.Submit(context.Background(), "x")
	require.NoError(t, err)
	snap := s.Reset()

	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Input)
	assert.Eventually(t, func() bool { return canceled.Load() == 1 }, time.Second, 5*time.Millisecond)

	close(release)
	_, err = s.Submit(context.Background(), "y")
	require.NoError(t, err)
	done := wait(t, s)
	assert.Equal(t, StateSucceeded, done.State)

	assert.Equal(t, StateIdle, s.Reset().State)
}

func TestSession_SubmitDetachedFromCallerContext(t *testing.T) {
	release := make(chan struct{})
	var canceled atomic.Int32
	s := New("s1", blockingJob(release, &canceled), nil)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := s.Submit(ctx, "x")
	require.NoError(t, err)
	cancel()

	close(release)
	done := wait(t, s)
	assert.Equal(t, StateSucceeded, done.State)
	assert.Zero(t, canceled.Load())
}

func TestSession_WaitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	var canceled atomic.Int32
	s := New("s1", blockingJob(release, &canceled), nil)
	_, err := s.Submit(context.Background(), "x")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	snap, err := s.Wait(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateRunning, snap.State)
}

func TestStore(t *testing.T) {
	st := NewStore[string, string](func(_ context.Context, in string) (string, error) { return in, nil }, nil)

	a := st.Create()
	b := st.Create()
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, st.Len())

	got, ok := st.Get(a.ID())
	require.True(t, ok)
	assert.Same(t, a, got)

	assert.True(t, st.Delete(a.ID()))
	assert.False(t, st.Delete(a.ID()))
	_, ok = st.Get(a.ID())
	assert.False(t, ok)
	assert.Equal(t, 1, st.Len())
}

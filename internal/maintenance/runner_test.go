package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testRunner(tasks ...Task) *Runner {
	return &Runner{
		Interval: time.Hour,
		Tasks:    tasks,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return testNow },
	}
}

// --- RunOnce ---

func TestRunOnce_ThresholdFromMaxAge(t *testing.T) {
	ctrl := gomock.NewController(t)
	auths := NewMockPruner(ctrl)
	tokens := NewMockPruner(ctrl)

	auths.EXPECT().Prune(gomock.Any(), testNow.Add(-48*time.Hour)).Return(2, nil)
	tokens.EXPECT().Prune(gomock.Any(), testNow.Add(-time.Hour)).Return(3, nil)

	r := testRunner(
		Task{Kind: "authorization", Pruner: auths, MaxAge: 48 * time.Hour},
		Task{Kind: "token", Pruner: tokens, MaxAge: time.Hour},
	)

	pruned := make(map[string]int)
	r.OnPruned = func(kind string, n int) { pruned[kind] += n }

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, map[string]int{"authorization": 2, "token": 3}, pruned)
}

func TestRunOnce_FailureDoesNotStopOtherTasks(t *testing.T) {
	ctrl := gomock.NewController(t)
	auths := NewMockPruner(ctrl)
	tokens := NewMockPruner(ctrl)

	boom := errors.New("boom")
	gomock.InOrder(
		auths.EXPECT().Prune(gomock.Any(), gomock.Any()).Return(0, boom),
		tokens.EXPECT().Prune(gomock.Any(), gomock.Any()).Return(4, nil),
	)

	r := testRunner(
		Task{Kind: "authorization", Pruner: auths, MaxAge: time.Hour},
		Task{Kind: "token", Pruner: tokens, MaxAge: time.Hour},
	)

	var kinds []string
	r.OnPruned = func(kind string, _ int) { kinds = append(kinds, kind) }

	n, err := r.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "pruning authorization")
	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"token"}, kinds)
}

func TestRunOnce_CancelledSkipsTasks(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := NewMockPruner(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := testRunner(Task{Kind: "token", Pruner: p, MaxAge: time.Hour})

	n, err := r.RunOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}

// --- Run ---

func TestRun_PrunesUntilCancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := NewMockPruner(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu    sync.Mutex
		calls int
	)
	p.EXPECT().Prune(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, time.Time) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 3 {
			cancel()
		}
		return 1, nil
	}).MinTimes(3)

	r := testRunner(Task{Kind: "token", Pruner: p, MaxAge: time.Hour})
	r.Interval = 5 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRun_ErrorsDoNotStopLoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := NewMockPruner(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu    sync.Mutex
		calls int
	)
	p.EXPECT().Prune(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, time.Time) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 2 {
			cancel()
		}
		return 0, errors.New("transient")
	}).MinTimes(2)

	r := testRunner(Task{Kind: "authorization", Pruner: p, MaxAge: time.Hour})
	r.Interval = 5 * time.Millisecond

	require.NoError(t, r.Run(ctx))
}

func TestRun_InvalidInterval(t *testing.T) {
	r := testRunner()
	r.Interval = 0

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval")
}

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"soilgate/backend"
	"soilgate/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// countingFetcher は呼び出し回数を数え、release が閉じられるまで応答を保留します。
type countingFetcher struct {
	calls   int32
	release chan struct{}
	state   *backend.GameState
	err     error
}

func (f *countingFetcher) GetGameState(ctx context.Context, gameID string) (*backend.GameState, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	s := *f.state
	s.Game.GameID = gameID
	return &s, nil
}

func gameState(capital float64) *backend.GameState {
	return &backend.GameState{
		Game: models.GameSnapshot{
			Status:             models.GameStatusInProgress,
			CurrentRoundNumber: 1,
			Players:            map[string]models.PlayerSummary{"p1": {DisplayName: "Anna", Capital: capital}},
		},
		PlayerState: models.PlayerState{
			UID:          "p1",
			Capital:      capital,
			CurrentRound: 1,
			History:      []models.Round{{Number: 0, Result: &models.RoundResult{Capital: capital}}},
		},
	}
}

var key = Key{GameID: "g1", PlayerID: "p1"}

func TestLoadCoalescesConcurrentCalls(t *testing.T) {
	f := &countingFetcher{release: make(chan struct{}), state: gameState(1000)}
	c := New(f, zap.NewNop())

	const n = 8
	var wg sync.WaitGroup
	entries := make([]Entry, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries[i], errs[i] = c.Load(context.Background(), key)
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&f.calls) == 1 }, time.Second, time.Millisecond)
	// 全員が待機に入るまで少し待つ
	time.Sleep(10 * time.Millisecond)
	close(f.release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&f.calls))
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, entries[0].Version, entries[i].Version)
		assert.Equal(t, 1000.0, entries[i].Player.Capital)
	}
}

func TestLoadCancelledCallerDoesNotFailOthers(t *testing.T) {
	f := &countingFetcher{release: make(chan struct{}), state: gameState(1000)}
	c := New(f, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error)
	go func() {
		_, err := c.Load(ctx, key)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&f.calls) == 1 }, time.Second, time.Millisecond)

	type result struct {
		entry Entry
		err   error
	}
	second := make(chan result)
	go func() {
		e, err := c.Load(context.Background(), key)
		second <- result{e, err}
	}()
	time.Sleep(10 * time.Millisecond)

	cancel()
	err := <-firstErr
	var ferr *models.FetchError
	require.True(t, errors.As(err, &ferr))
	assert.ErrorIs(t, err, context.Canceled)

	close(f.release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, 1000.0, got.entry.Player.Capital)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.calls))
}

func TestLoadFailureKeepsPriorEntry(t *testing.T) {
	f := &countingFetcher{state: gameState(1000)}
	c := New(f, zap.NewNop())

	first, err := c.Load(context.Background(), key)
	require.NoError(t, err)

	f.err = errors.New("backend unavailable")
	_, err = c.Load(context.Background(), key)
	var ferr *models.FetchError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, "g1", ferr.GameID)

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, first.Version, got.Version)
	assert.Equal(t, 1000.0, got.Player.Capital)
}

func TestGetReturnsIsolatedCopies(t *testing.T) {
	c := New(&countingFetcher{state: gameState(1000)}, zap.NewNop())
	_, err := c.Load(context.Background(), key)
	require.NoError(t, err)

	e, _ := c.Get(key)
	e.Player.History[0].Result.Capital = -1
	e.Game.Players["p1"] = models.PlayerSummary{Capital: -1}

	again, _ := c.Get(key)
	assert.Equal(t, 1000.0, again.Player.History[0].Result.Capital)
	assert.Equal(t, 1000.0, again.Game.Players["p1"].Capital)
}

func TestOverwrite(t *testing.T) {
	c := New(&countingFetcher{state: gameState(1000)}, zap.NewNop())

	_, err := c.Overwrite(key, models.PlayerState{}, SnapshotDelta{})
	assert.ErrorIs(t, err, models.ErrNotCached)

	before, err := c.Load(context.Background(), key)
	require.NoError(t, err)

	player := before.Player
	player.Capital = 1100
	player.CurrentRound = 2
	round := 2
	status := models.GameStatusCompleted
	after, err := c.Overwrite(key, player, SnapshotDelta{
		Status:             &status,
		CurrentRoundNumber: &round,
		Players:            map[string]models.PlayerSummary{"p1": {DisplayName: "Anna", Capital: 1100}},
	})
	require.NoError(t, err)

	assert.Greater(t, after.Version, before.Version)
	assert.Equal(t, 1100.0, after.Player.Capital)
	assert.Equal(t, models.GameStatusCompleted, after.Game.Status)
	assert.Equal(t, 2, after.Game.CurrentRoundNumber)
	assert.Equal(t, 1100.0, after.Game.Players["p1"].Capital)

	got, _ := c.Get(key)
	assert.Equal(t, after, got)
}

func TestApplyErrorLeavesEntryUntouched(t *testing.T) {
	c := New(&countingFetcher{state: gameState(1000)}, zap.NewNop())
	before, err := c.Load(context.Background(), key)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = c.Apply(key, func(cur Entry) (models.PlayerState, SnapshotDelta, error) {
		cur.Player.Capital = 5
		return cur.Player, SnapshotDelta{}, boom
	})
	assert.ErrorIs(t, err, boom)

	got, _ := c.Get(key)
	assert.Equal(t, before, got)
}

func TestLoadStartedBeforeOverwriteDoesNotClobber(t *testing.T) {
	f := &countingFetcher{state: gameState(1000)}
	c := New(f, zap.NewNop())
	_, err := c.Load(context.Background(), key)
	require.NoError(t, err)

	// 取得を保留したまま上書きする
	f.release = make(chan struct{})
	done := make(chan Entry)
	go func() {
		e, err := c.Load(context.Background(), key)
		assert.NoError(t, err)
		done <- e
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&f.calls) == 2 }, time.Second, time.Millisecond)

	cur, _ := c.Get(key)
	cur.Player.Capital = 1100
	written, err := c.Overwrite(key, cur.Player, SnapshotDelta{})
	require.NoError(t, err)

	close(f.release)
	loaded := <-done

	assert.Equal(t, written.Version, loaded.Version)
	assert.Equal(t, 1100.0, loaded.Player.Capital)
	got, _ := c.Get(key)
	assert.Equal(t, 1100.0, got.Player.Capital)
}

func TestListenersAndEvict(t *testing.T) {
	c := New(&countingFetcher{state: gameState(1000)}, zap.NewNop())

	var mu sync.Mutex
	var seen []uint64
	c.OnUpdate(func(k Key, e Entry) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, key, k)
		seen = append(seen, e.Version)
	})

	e, err := c.Load(context.Background(), key)
	require.NoError(t, err)
	_, err = c.Overwrite(key, e.Player, SnapshotDelta{})
	require.NoError(t, err)

	mu.Lock()
	assert.Len(t, seen, 2)
	mu.Unlock()

	assert.Equal(t, 1, c.Len())
	assert.Zero(t, c.Evict(time.Hour))
	time.Sleep(2 * time.Millisecond)
	assert.Equal(t, 1, c.Evict(time.Millisecond))
	assert.Zero(t, c.Len())
}

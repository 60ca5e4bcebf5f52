// Package cache はプレイヤーごとのゲーム状態スナップショットを保持します。
package cache

import (
	"context"
	"sync"
	"time"

	"soilgate/backend"
	"soilgate/models"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Key はキャッシュのキーです。ゲートウェイは複数のプレイヤーを扱うため、
// ゲームIDにプレイヤーIDを組み合わせます。
type Key struct {
	GameID   string
	PlayerID string
}

func (k Key) String() string {
	return k.GameID + "/" + k.PlayerID
}

// Entry はある時点のゲームとプレイヤーの状態です。格納後は変更されません。
type Entry struct {
	Game      models.GameSnapshot
	Player    models.PlayerState
	Version   uint64
	FetchedAt time.Time
}

func (e *Entry) clone() Entry {
	return Entry{
		Game:      e.Game.Clone(),
		Player:    e.Player.Clone(),
		Version:   e.Version,
		FetchedAt: e.FetchedAt,
	}
}

// SnapshotDelta はOverwrite時にゲームスナップショットへ適用する差分です。
type SnapshotDelta struct {
	Status             *models.GameStatus
	CurrentRoundNumber *int
	Players            map[string]models.PlayerSummary
}

// Fetcher はバックエンドから状態を取得します。
type Fetcher interface {
	GetGameState(ctx context.Context, gameID string) (*backend.GameState, error)
}

// Listener はエントリが置き換えられた後に呼ばれます。
type Listener func(key Key, entry Entry)

// Cache はゲーム状態の共有キャッシュです。
// 変更は Load と Overwrite のみで、どちらもエントリを丸ごと差し替えます。
type Cache struct {
	fetcher Fetcher
	logger  *zap.Logger
	group   singleflight.Group

	mu        sync.RWMutex
	entries   map[Key]*Entry
	version   uint64
	listeners []Listener
}

func New(fetcher Fetcher, logger *zap.Logger) *Cache {
	return &Cache{
		fetcher: fetcher,
		logger:  logger,
		entries: make(map[Key]*Entry),
	}
}

// OnUpdate は更新通知を登録します。
func (c *Cache) OnUpdate(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Get はキャッシュ済みの状態を返します。取得処理は行いません。
func (c *Cache) Get(key Key) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Load はバックエンドから状態を取得してエントリを置き換えます。
// 同じキーの取得が実行中なら、その結果を共有します。
// 失敗した場合は既存のエントリを残して FetchError を返します。
// 取得は呼び出し元のキャンセルから切り離され、ctx が終わった呼び出し元だけが先に戻ります。
func (c *Cache) Load(ctx context.Context, key Key) (Entry, error) {
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key.String(), func() (interface{}, error) {
		return c.load(fetchCtx, key)
	})

	select {
	case <-ctx.Done():
		return Entry{}, &models.FetchError{GameID: key.GameID, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return Entry{}, res.Err
		}
		if res.Shared {
			c.logger.Debug("game state load coalesced", zap.String("key", key.String()))
		}
		e := res.Val.(*Entry)
		return e.clone(), nil
	}
}

func (c *Cache) load(ctx context.Context, key Key) (*Entry, error) {
	c.mu.RLock()
	startVersion := c.currentVersion(key)
	c.mu.RUnlock()

	state, err := c.fetcher.GetGameState(ctx, key.GameID)
	if err != nil {
		c.logger.Warn("game state load failed", zap.String("key", key.String()), zap.Error(err))
		return nil, &models.FetchError{GameID: key.GameID, Err: err}
	}

	c.mu.Lock()
	// 取得中にOverwriteされていた場合は新しい方を残す
	if current, ok := c.entries[key]; ok && current.Version != startVersion {
		c.mu.Unlock()
		c.logger.Debug("discarding load older than overwrite", zap.String("key", key.String()))
		return current, nil
	}
	c.version++
	e := &Entry{
		Game:      state.Game.Clone(),
		Player:    state.PlayerState.Clone(),
		Version:   c.version,
		FetchedAt: time.Now(),
	}
	c.entries[key] = e
	listeners := c.listeners
	c.mu.Unlock()

	c.notify(listeners, key, e)
	return e, nil
}

// Overwrite は送信結果などの確定した状態でエントリを置き換えます。
// エントリが存在しない場合は ErrNotCached を返します。
func (c *Cache) Overwrite(key Key, player models.PlayerState, delta SnapshotDelta) (Entry, error) {
	return c.Apply(key, func(Entry) (models.PlayerState, SnapshotDelta, error) {
		return player, delta, nil
	})
}

// Apply は現在のエントリから新しい状態を計算し、ロックを保持したまま置き換えます。
// fn がエラーを返した場合、エントリは変更されません。
func (c *Cache) Apply(key Key, fn func(current Entry) (models.PlayerState, SnapshotDelta, error)) (Entry, error) {
	c.mu.Lock()
	current, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return Entry{}, models.ErrNotCached
	}

	player, delta, err := fn(current.clone())
	if err != nil {
		c.mu.Unlock()
		return Entry{}, err
	}

	game := current.Game.Clone()
	if delta.Status != nil {
		game.Status = *delta.Status
	}
	if delta.CurrentRoundNumber != nil {
		game.CurrentRoundNumber = *delta.CurrentRoundNumber
	}
	if len(delta.Players) > 0 {
		if game.Players == nil {
			game.Players = make(map[string]models.PlayerSummary, len(delta.Players))
		}
		for id, p := range delta.Players {
			game.Players[id] = p
		}
	}

	c.version++
	e := &Entry{
		Game:      game,
		Player:    player.Clone(),
		Version:   c.version,
		FetchedAt: time.Now(),
	}
	c.entries[key] = e
	listeners := c.listeners
	c.mu.Unlock()

	c.notify(listeners, key, e)
	return e.clone(), nil
}

// Evict は olderThan より古いエントリを削除し、削除数を返します。
func (c *Cache) Evict(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if e.FetchedAt.Before(cutoff) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) currentVersion(key Key) uint64 {
	if e, ok := c.entries[key]; ok {
		return e.Version
	}
	return 0
}

func (c *Cache) notify(listeners []Listener, key Key, e *Entry) {
	for _, l := range listeners {
		l(key, e.clone())
	}
}

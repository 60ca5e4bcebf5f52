// Package submission はラウンドの決定をバックエンドに送信し、結果をキャッシュに反映します。
package submission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"soilgate/backend"
	"soilgate/models"
	"soilgate/soil/cache"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Submitter は決定をバックエンドに送信します。
type Submitter interface {
	SubmitDecision(ctx context.Context, req backend.SubmitRequest) (*backend.SubmitResponse, error)
}

// Options はリトライの設定です。
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultOptions() Options {
	return Options{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 4 * time.Second}
}

// Outcome は送信またはポーリングの結果です。
type Outcome struct {
	Status backend.SubmitStatus `json:"status"`
	Round  int                  `json:"round"`
	Result *models.RoundResult  `json:"result,omitempty"`
	Entry  cache.Entry          `json:"-"`
}

// Waiting は他のプレイヤーの決定待ちかどうかを返します。
func (o *Outcome) Waiting() bool {
	return o.Status == backend.StatusPending
}

type pendingKey struct {
	key   cache.Key
	round int
}

// Coordinator は (ゲーム, プレイヤー, ラウンド) ごとに送信を1件に制限します。
type Coordinator struct {
	submitter Submitter
	cache     *cache.Cache
	opts      Options
	logger    *zap.Logger
	group     singleflight.Group

	// テストで差し替えます
	sleep      func(ctx context.Context, d time.Duration) error
	beforeJoin func()

	mu      sync.Mutex
	pending map[pendingKey]models.Decision
}

func NewCoordinator(submitter Submitter, c *cache.Cache, opts Options, logger *zap.Logger) *Coordinator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Coordinator{
		submitter: submitter,
		cache:     c,
		opts:      opts,
		logger:    logger,
		sleep:     sleepContext,
		pending:   make(map[pendingKey]models.Decision),
	}
}

// Submit は round に対する決定を送信します。
// 同じラウンドへの同時送信はバックエンドへの1回の呼び出しを共有し、
// 既に計算済みまたは待機中のラウンドには再送せずキャッシュの結果を返します。
// 失敗した場合はキャッシュを変更せず、呼び出し元の決定もそのまま残ります。
func (c *Coordinator) Submit(ctx context.Context, key cache.Key, round int, d models.Decision) (*Outcome, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	entry, ok := c.cache.Get(key)
	if !ok {
		var err error
		if entry, err = c.cache.Load(ctx, key); err != nil {
			return nil, err
		}
	}

	if out, done := c.settled(key, entry, round); done {
		c.logger.Info("round already submitted",
			zap.String("key", key.String()), zap.Int("round", round), zap.String("status", string(out.Status)))
		return out, nil
	}
	if round != entry.Player.CurrentRound {
		return nil, &models.ValidationError{
			Field:  "round",
			Reason: fmt.Sprintf("decision built for round %d but current round is %d", round, entry.Player.CurrentRound),
		}
	}

	if c.beforeJoin != nil {
		c.beforeJoin()
	}

	decision := d.Clone()
	v, err, shared := c.group.Do(fmt.Sprintf("%s#%d", key, round), func() (interface{}, error) {
		// 直前に完了した送信があれば再送しない
		if cur, ok := c.cache.Get(key); ok {
			if out, done := c.settled(key, cur, round); done {
				return out, nil
			}
		}
		return c.submit(ctx, key, round, decision)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("submission coalesced", zap.String("key", key.String()), zap.Int("round", round))
	}
	out := *v.(*Outcome)
	return &out, nil
}

// Poll は状態を再取得して、待機中のラウンドが計算されたかを確認します。再送はしません。
func (c *Coordinator) Poll(ctx context.Context, key cache.Key) (*Outcome, error) {
	entry, err := c.cache.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for pk := range c.pending {
		if pk.key != key {
			continue
		}
		if resolvedRound(entry.Player, pk.round) != nil || pk.round < entry.Player.CurrentRound {
			delete(c.pending, pk)
			continue
		}
		return &Outcome{Status: backend.StatusPending, Round: pk.round, Entry: entry}, nil
	}

	out := &Outcome{Status: backend.StatusCalculated, Round: entry.Player.CurrentRound, Entry: entry}
	if last, ok := entry.Player.LastRound(); ok && last.Result != nil {
		out.Round = last.Number
		out.Result = last.Result
	}
	return out, nil
}

func (c *Coordinator) submit(ctx context.Context, key cache.Key, round int, d models.Decision) (*Outcome, error) {
	req := backend.SubmitRequest{GameID: key.GameID, Round: round, Decision: d}

	var lastErr error
	attempts := 0
	for attempts < c.opts.MaxAttempts {
		attempts++
		resp, err := c.submitter.SubmitDecision(ctx, req)
		if err == nil {
			return c.reconcile(key, round, d, resp)
		}
		lastErr = err
		c.logger.Warn("decision submission failed",
			zap.String("key", key.String()),
			zap.Int("round", round),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)
		if !backend.Retryable(err) || attempts == c.opts.MaxAttempts {
			break
		}
		if err := c.sleep(ctx, c.backoff(attempts)); err != nil {
			lastErr = err
			break
		}
	}
	return nil, &models.SubmissionError{GameID: key.GameID, Round: round, Attempts: attempts, Err: lastErr}
}

// reconcile はバックエンドの応答でキャッシュを置き換えます。
func (c *Coordinator) reconcile(key cache.Key, round int, d models.Decision, resp *backend.SubmitResponse) (*Outcome, error) {
	switch resp.Status {
	case backend.StatusCalculated:
		if resp.NextRound == nil || resp.NextRound.Result == nil {
			return nil, &models.SubmissionError{GameID: key.GameID, Round: round, Attempts: 1,
				Err: errors.New("calculated response without round result")}
		}
	case backend.StatusPending:
	default:
		return nil, &models.SubmissionError{GameID: key.GameID, Round: round, Attempts: 1,
			Err: fmt.Errorf("unknown submission status %q", resp.Status)}
	}

	entry, err := c.cache.Apply(key, func(cur cache.Entry) (models.PlayerState, cache.SnapshotDelta, error) {
		return applyResponse(cur, key.PlayerID, round, d, resp)
	})
	if err != nil {
		return nil, &models.SubmissionError{GameID: key.GameID, Round: round, Attempts: 1, Err: err}
	}

	out := &Outcome{Status: resp.Status, Round: round, Entry: entry}
	c.mu.Lock()
	if resp.Status == backend.StatusPending {
		c.pending[pendingKey{key, round}] = d
	} else {
		delete(c.pending, pendingKey{key, round})
		out.Result = resolvedRound(entry.Player, round).Result
	}
	c.mu.Unlock()

	c.logger.Info("decision submitted",
		zap.String("key", key.String()), zap.Int("round", round), zap.String("status", string(resp.Status)))
	return out, nil
}

// applyResponse は送信結果を反映したプレイヤー状態と差分を計算します。
// history[i].Number == i を保ち、結果のないラウンドは最後の要素だけです。
func applyResponse(cur cache.Entry, playerID string, round int, d models.Decision, resp *backend.SubmitResponse) (models.PlayerState, cache.SnapshotDelta, error) {
	player := cur.Player
	var delta cache.SnapshotDelta

	if len(player.History) < round || len(player.History) > round+1 {
		return player, delta, fmt.Errorf("history has %d rounds, cannot place round %d", len(player.History), round)
	}

	var next models.Round
	if resp.NextRound != nil {
		next = resp.NextRound.Clone()
	}
	next.Number = round
	if next.Decision.Parcels == nil {
		next.Decision = d.Clone()
	}
	if next.ParcelsSnapshot == nil {
		next.ParcelsSnapshot = openingParcels(player, round)
	}
	if resp.Status == backend.StatusPending {
		next.Result = nil
	}

	if len(player.History) == round+1 {
		player.History[round] = next
	} else {
		player.History = append(player.History, next)
	}

	if resp.Status == backend.StatusCalculated {
		player.Capital = next.Result.Capital
		player.CurrentRound = round + 1
		if cur.Game.CurrentRoundNumber <= round {
			n := round + 1
			delta.CurrentRoundNumber = &n
		}
		summary := cur.Game.Players[playerID]
		if summary.DisplayName == "" {
			summary.DisplayName = player.DisplayName
		}
		summary.Capital = player.Capital
		delta.Players = map[string]models.PlayerSummary{playerID: summary}
	}
	return player, delta, nil
}

// Prune は現在のラウンドを過ぎた待機中の記録と、キャッシュから消えたプレイヤーの記録を削除します。
func (c *Coordinator) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for pk := range c.pending {
		entry, ok := c.cache.Get(pk.key)
		if ok && pk.round >= entry.Player.CurrentRound && resolvedRound(entry.Player, pk.round) == nil {
			continue
		}
		delete(c.pending, pk)
		removed++
	}
	return removed
}

// settled は既に送信済みのラウンドかを判定します。
func (c *Coordinator) settled(key cache.Key, entry cache.Entry, round int) (*Outcome, bool) {
	if r := resolvedRound(entry.Player, round); r != nil {
		return &Outcome{Status: backend.StatusCalculated, Round: round, Result: r.Result, Entry: entry}, true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[pendingKey{key, round}]; ok {
		return &Outcome{Status: backend.StatusPending, Round: round, Entry: entry}, true
	}
	return nil, false
}

func (c *Coordinator) backoff(attempt int) time.Duration {
	d := c.opts.BaseDelay << (attempt - 1)
	if d <= 0 || (c.opts.MaxDelay > 0 && d > c.opts.MaxDelay) {
		return c.opts.MaxDelay
	}
	return d
}

func resolvedRound(p models.PlayerState, round int) *models.Round {
	if round < 0 || round >= len(p.History) {
		return nil
	}
	r := p.History[round]
	if r.Result == nil {
		return nil
	}
	return &r
}

// openingParcels は応答に区画がない場合に、直前のラウンドの区画を引き継ぎます。
func openingParcels(p models.PlayerState, round int) []models.Parcel {
	if round < len(p.History) && p.History[round].ParcelsSnapshot != nil {
		return p.History[round].Clone().ParcelsSnapshot
	}
	if round > 0 && round-1 < len(p.History) {
		return p.History[round-1].Clone().ParcelsSnapshot
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package utils

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// 長期間更新されていない設定の保持期間
const preferenceRetention = 180 * 24 * time.Hour

// 使われていないセッションガードと組み立て中の決定の保持期間
const guardIdle = 30 * time.Minute

// Evicter は古いキャッシュエントリを削除します。
type Evicter interface {
	Evict(olderThan time.Duration) int
}

// Pruner は idle 以上使われていないものを削除します。
type Pruner interface {
	Prune(idle time.Duration) int
}

// Settler は解決済みの待機中ラウンドの記録を削除します。
type Settler interface {
	Prune() int
}

// Purger は古い設定を削除します。
type Purger interface {
	PurgeStale(olderThan time.Duration) (int64, error)
}

// CronCleaner は定期的なクリーンアップジョブを登録して開始します。
// 返したスケジューラは呼び出し元が Stop します。
func CronCleaner(entries Evicter, guards, builders Pruner, pending Settler, prefs Purger, cacheTTL time.Duration, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New()

	// キャッシュとガードの掃除（5分ごと）
	if _, err := c.AddFunc("@every 5m", func() {
		evicted := entries.Evict(cacheTTL)
		settled := pending.Prune()
		pruned := guards.Prune(guardIdle)
		dropped := builders.Prune(guardIdle)
		if evicted > 0 || settled > 0 || pruned > 0 || dropped > 0 {
			logger.Info("キャッシュとガードの掃除完了",
				zap.Int("entries_evicted", evicted),
				zap.Int("pending_settled", settled),
				zap.Int("guards_pruned", pruned),
				zap.Int("builders_dropped", dropped),
			)
		}
	}); err != nil {
		return nil, err
	}

	// 古い設定を削除するジョブ（"分 時 日 月 曜日"）
	if prefs != nil {
		if _, err := c.AddFunc("0 3 * * *", func() {
			logger.Info("古い設定を削除する処理を開始")
			n, err := prefs.PurgeStale(preferenceRetention)
			if err != nil {
				logger.Error("古い設定の削除に失敗しました", zap.Error(err))
				return
			}
			logger.Info("古い設定の削除完了", zap.Int64("preferences_deleted", n))
		}); err != nil {
			return nil, err
		}
	}

	c.Start()
	return c, nil
}

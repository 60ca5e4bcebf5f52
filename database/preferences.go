package database

import (
	"context"
	"errors"
	"time"

	"soilgate/models"
	"soilgate/preferences"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PreferenceStore はGORMで設定値を保存する preferences.Store です。
type PreferenceStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewPreferenceStore(db *gorm.DB, logger *zap.Logger) *PreferenceStore {
	return &PreferenceStore{db: db, logger: logger}
}

func (s *PreferenceStore) Get(ctx context.Context, owner string, key preferences.Key) (string, bool, error) {
	var pref models.Preference
	err := s.db.WithContext(ctx).Where("owner_id = ? AND pref_key = ?", owner, string(key)).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		s.logger.Error("Failed to read preference", zap.String("owner", owner), zap.String("key", string(key)), zap.Error(err))
		return "", false, err
	}
	return pref.Value, true, nil
}

func (s *PreferenceStore) Set(ctx context.Context, owner string, key preferences.Key, value string) error {
	pref := models.Preference{OwnerID: owner, Key: string(key), Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "pref_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&pref).Error
	if err != nil {
		s.logger.Error("Failed to save preference", zap.String("owner", owner), zap.String("key", string(key)), zap.Error(err))
	}
	return err
}

// PurgeStale は olderThan 以上更新されていない設定を物理削除します。
func (s *PreferenceStore) PurgeStale(olderThan time.Duration) (int64, error) {
	result := s.db.Unscoped().
		Where("updated_at <= ?", time.Now().Add(-olderThan)).
		Delete(&models.Preference{})
	return result.RowsAffected, result.Error
}

package models

import (
	"gorm.io/gorm"
)

// Preference モデルの定義
// クライアント専用の設定（ツアー既読、描画品質、言語）を1キー1行で保存します。
type Preference struct {
	gorm.Model
	OwnerID string `gorm:"not null;uniqueIndex:idx_owner_key"` // セッションの利用者ID
	Key     string `gorm:"column:pref_key;not null;uniqueIndex:idx_owner_key"`
	Value   string `gorm:"not null"`
}

package models

import "time"

// Config 構造体はゲートウェイ全体の設定情報を保持します。
// config.json から読み込み、環境変数で上書きされます。
type Config struct {
	// データベース（クライアント設定の保存先）
	DBDriver   string `json:"db_driver"` // "postgres" または "sqlite"
	DBHost     string `json:"db_host"`
	DBUser     string `json:"db_user"`
	DBPassword string `json:"db_password"`
	DBName     string `json:"db_name"`
	DBSSLMode  string `json:"db_sslmode"`
	DBPath     string `json:"db_path"` // sqlite用のファイルパス

	// Redis（セッション保存先）
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	// HTTPサーバー
	ListenAddr   string   `json:"listen_addr"`
	AllowOrigins []string `json:"allow_origins"`

	// 認証
	JWTSecret       string `json:"jwt_secret"`
	GuardTimeoutSec int    `json:"guard_timeout_sec"`

	// シミュレーションバックエンド
	BackendURL        string `json:"backend_url"`
	BackendTimeoutSec int    `json:"backend_timeout_sec"`

	// 決定送信のリトライ設定
	SubmitMaxAttempts int `json:"submit_max_attempts"`
	SubmitBaseDelayMs int `json:"submit_base_delay_ms"`
	SubmitMaxDelayMs  int `json:"submit_max_delay_ms"`

	// キャッシュ
	CacheTTLMin int `json:"cache_ttl_min"`

	// アドバイザーの閾値ファイル（YAML）
	InsightsPath string `json:"insights_path"`
}

// GuardTimeout はセッション再検証のタイムアウトを返します。
func (c Config) GuardTimeout() time.Duration {
	return time.Duration(c.GuardTimeoutSec) * time.Second
}

func (c Config) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutSec) * time.Second
}

func (c Config) SubmitBaseDelay() time.Duration {
	return time.Duration(c.SubmitBaseDelayMs) * time.Millisecond
}

func (c Config) SubmitMaxDelay() time.Duration {
	return time.Duration(c.SubmitMaxDelayMs) * time.Millisecond
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMin) * time.Minute
}

// DefaultConfig はファイルに値がない場合の既定値です。
func DefaultConfig() Config {
	return Config{
		DBDriver:          "postgres",
		DBSSLMode:         "disable",
		DBPath:            "soilgate.db",
		RedisAddr:         "localhost:6379",
		ListenAddr:        ":8080",
		GuardTimeoutSec:   5,
		BackendTimeoutSec: 10,
		SubmitMaxAttempts: 3,
		SubmitBaseDelayMs: 500,
		SubmitMaxDelayMs:  4000,
		CacheTTLMin:       30,
	}
}

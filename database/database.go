package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"soilgate/models"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// LoadConfig は config.json を読み込み、.env と環境変数で上書きします。
// ファイルが存在しない場合は既定値と環境変数だけを使います。
func LoadConfig(filename string) (models.Config, error) {
	config := models.DefaultConfig()

	configFile, err := os.Open(filename)
	if err == nil {
		defer configFile.Close()
		jsonParser := json.NewDecoder(configFile)
		if err := jsonParser.Decode(&config); err != nil {
			return config, fmt.Errorf("decode %s: %w", filename, err)
		}
	} else if !os.IsNotExist(err) {
		return config, err
	}

	// .env があれば環境変数として読み込む（既存の環境変数は上書きしない）
	_ = godotenv.Load()
	applyEnv(&config)
	return config, nil
}

func applyEnv(c *models.Config) {
	setString(&c.DBDriver, "DB_DRIVER")
	setString(&c.DBHost, "DB_HOST")
	setString(&c.DBUser, "DB_USER")
	setString(&c.DBPassword, "DB_PASSWORD")
	setString(&c.DBName, "DB_NAME")
	setString(&c.DBSSLMode, "DB_SSLMODE")
	setString(&c.DBPath, "DB_PATH")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.RedisPassword, "REDIS_PASSWORD")
	setInt(&c.RedisDB, "REDIS_DB")
	setString(&c.ListenAddr, "LISTEN_ADDR")
	setString(&c.JWTSecret, "JWT_SECRET")
	setString(&c.BackendURL, "BACKEND_URL")
	setString(&c.InsightsPath, "INSIGHTS_PATH")
	setInt(&c.SubmitMaxAttempts, "SUBMIT_MAX_ATTEMPTS")
	if v := os.Getenv("ALLOW_ORIGINS"); v != "" {
		c.AllowOrigins = strings.Split(v, ",")
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// InitDatabase は設定に応じてPostgreSQLかSQLiteに接続し、テーブルを作成します。
func InitDatabase(config models.Config, logger *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch config.DBDriver {
	case "sqlite":
		dialector = sqlite.Open(config.DBPath)
	default:
		dsn := fmt.Sprintf("host=%s user=%s dbname=%s password=%s sslmode=%s",
			config.DBHost, config.DBUser, config.DBName, config.DBPassword, config.DBSSLMode)
		dialector = postgres.Open(dsn)
	}

	const maxRetries = 3
	const retryInterval = 5 * time.Second
	var err error
	for i := 0; i <= maxRetries; i++ {
		var gormDB *gorm.DB
		gormDB, err = gorm.Open(dialector, &gorm.Config{})
		if err == nil {
			if err = AutoMigrate(gormDB); err != nil {
				return nil, err
			}
			logger.Info("Connected to database", zap.String("driver", config.DBDriver))
			return gormDB, nil
		}
		logger.Error("データベース接続のリトライ", zap.Int("retry", i), zap.Error(err))
		if i < maxRetries {
			time.Sleep(retryInterval)
		}
	}
	return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
}

// AutoMigrate はテーブルを作成します。
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Preference{}); err != nil {
		return fmt.Errorf("migrate preferences: %w", err)
	}
	return nil
}

func InitRedis(config models.Config, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	// Redisへの接続テスト
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		logger.Error("Failed to connect to Redis", zap.Error(err))
		return nil, err
	}

	logger.Info("Connected to Redis")
	return rdb, nil
}

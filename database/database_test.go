package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"soilgate/models"
	"soilgate/preferences"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func TestPreferenceStore(t *testing.T) {
	ctx := context.Background()
	store := NewPreferenceStore(newTestDB(t), zap.NewNop())

	_, ok, err := store.Get(ctx, "u1", preferences.KeyTourSeen)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, preferences.Set(ctx, store, "u1", preferences.KeyTourSeen, "true"))
	require.NoError(t, preferences.Set(ctx, store, "u1", preferences.KeyTourSeen, "false"))
	require.NoError(t, preferences.Set(ctx, store, "u2", preferences.KeyTourSeen, "true"))

	v, ok, err := store.Get(ctx, "u1", preferences.KeyTourSeen)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "false", v)

	all, err := preferences.All(ctx, store, "u2")
	require.NoError(t, err)
	assert.Equal(t, "true", all[preferences.KeyTourSeen])
	assert.Equal(t, "de", all[preferences.KeyPreferredLanguage])
}

func TestPreferenceStorePurgeStale(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := NewPreferenceStore(db, zap.NewNop())

	require.NoError(t, store.Set(ctx, "old", preferences.KeyTourSeen, "true"))
	require.NoError(t, store.Set(ctx, "new", preferences.KeyTourSeen, "true"))
	require.NoError(t, db.Model(&models.Preference{}).
		Where("owner_id = ?", "old").
		UpdateColumn("updated_at", time.Now().Add(-48*time.Hour)).Error)

	n, err := store.PurgeStale(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok, err := store.Get(ctx, "old", preferences.KeyTourSeen)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = store.Get(ctx, "new", preferences.KeyTourSeen)
	require.NoError(t, err)
	assert.True(t, ok)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	store := NewSessionStore(rdb, zap.NewNop())

	p := &models.Principal{ID: "p1", Role: models.RolePlayer, GameID: "g1"}
	info, err := store.Create(ctx, p)
	require.NoError(t, err)
	require.NotEmpty(t, info.SessionID)
	assert.True(t, mr.Exists("session:"+info.SessionID))
	assert.Equal(t, SessionTTL, mr.TTL("session:"+info.SessionID))

	got, err := store.Lookup(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, p, got.Principal())

	require.NoError(t, store.Delete(ctx, info.SessionID))
	_, err = store.Lookup(ctx, info.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = store.Lookup(ctx, "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionExpires(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	store := NewSessionStore(rdb, zap.NewNop())

	info, err := store.Create(ctx, &models.Principal{ID: "a1", Role: models.RoleAdmin})
	require.NoError(t, err)

	mr.FastForward(SessionTTL + time.Second)
	_, err = store.Lookup(ctx, info.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := models.DefaultConfig()
	cfg.RedisAddr = mr.Addr()

	rdb, err := InitRedis(cfg, zap.NewNop())
	require.NoError(t, err)
	defer rdb.Close()
	assert.NoError(t, rdb.Ping(context.Background()).Err())
}

func TestInitDatabaseSQLite(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.DBDriver = "sqlite"
	cfg.DBPath = filepath.Join(t.TempDir(), "soilgate.db")

	db, err := InitDatabase(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, db.Migrator().HasTable(&models.Preference{}))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"backend_url":"http://backend:9000","submit_max_attempts":5,"cache_ttl_min":10}`), 0o600))

	t.Setenv("BACKEND_URL", "http://override:9000")
	t.Setenv("ALLOW_ORIGINS", "http://a,http://b")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://override:9000", cfg.BackendURL)
	assert.Equal(t, 5, cfg.SubmitMaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL())
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.AllowOrigins)
	assert.Equal(t, 5*time.Second, cfg.GuardTimeout())

	cfg, err = LoadConfig(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
}

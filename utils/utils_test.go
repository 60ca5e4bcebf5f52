package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	router := gin.New()
	router.Use(RequestLogger(zap.New(core)))
	router.GET("/ping", func(c *gin.Context) {
		c.Set("locale", "en")
		c.String(http.StatusTeapot, "pong")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusTeapot, w.Code)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/ping", fields["path"])
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, "en", fields["locale"])
}

type fakeEvicter struct{ olderThan time.Duration }

func (f *fakeEvicter) Evict(d time.Duration) int {
	f.olderThan = d
	return 0
}

type fakePruner struct{}

func (fakePruner) Prune(time.Duration) int { return 0 }

type fakeSettler struct{}

func (fakeSettler) Prune() int { return 0 }

type fakePurger struct{}

func (fakePurger) PurgeStale(time.Duration) (int64, error) { return 0, nil }

func TestCronCleanerSchedulesJobs(t *testing.T) {
	c, err := CronCleaner(&fakeEvicter{}, fakePruner{}, fakePruner{}, fakeSettler{}, fakePurger{}, time.Minute, zap.NewNop())
	require.NoError(t, err)
	defer c.Stop()
	assert.Len(t, c.Entries(), 2)

	c2, err := CronCleaner(&fakeEvicter{}, fakePruner{}, fakePruner{}, fakeSettler{}, nil, time.Minute, zap.NewNop())
	require.NoError(t, err)
	defer c2.Stop()
	assert.Len(t, c2.Entries(), 1)
}

func TestInitLogger(t *testing.T) {
	for _, debug := range []bool{true, false} {
		logger, err := InitLogger(debug)
		require.NoError(t, err)
		assert.Equal(t, debug, logger.Core().Enabled(zapcore.DebugLevel))
	}
}

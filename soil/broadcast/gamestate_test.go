package broadcast

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"soilgate/models"
	"soilgate/soil/cache"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var key = cache.Key{GameID: "g1", PlayerID: "p1"}

func entry(capital float64, version uint64) cache.Entry {
	return cache.Entry{
		Game: models.GameSnapshot{GameID: "g1", Status: models.GameStatusInProgress, CurrentRoundNumber: 1},
		Player: models.PlayerState{
			Capital:      capital,
			CurrentRound: 1,
			History:      []models.Round{{Number: 0, Result: &models.RoundResult{Capital: capital}}},
		},
		Version: version,
	}
}

func TestNewGameStateMessage(t *testing.T) {
	msg := NewGameStateMessage(entry(1000, 3))
	assert.Equal(t, "gameState", msg.Type)
	assert.Equal(t, "g1", msg.GameID)
	assert.Equal(t, uint64(3), msg.Version)
	require.NotNil(t, msg.LastRound)
	assert.Equal(t, 0, msg.LastRound.Number)

	empty := NewGameStateMessage(cache.Entry{})
	assert.Nil(t, empty.LastRound)
}

func TestHubPushesUpdates(t *testing.T) {
	hub := NewHub(zap.NewNop())
	upgrader := websocket.Upgrader{}
	registered := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := hub.Register(conn, key)
		close(registered)
		initial := entry(1000, 1)
		hub.Serve(client, &initial)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg GameStateMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, 1000.0, msg.Capital)

	<-registered
	assert.Equal(t, 1, hub.Count(key))

	// 別のキーへの更新は届かない
	hub.BroadcastGameState(cache.Key{GameID: "g1", PlayerID: "p2"}, entry(5, 9))
	hub.BroadcastGameState(key, entry(1100, 2))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, 1100.0, msg.Capital)
	assert.Equal(t, uint64(2), msg.Version)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Count(key) == 0 }, 2*time.Second, 5*time.Millisecond)
}

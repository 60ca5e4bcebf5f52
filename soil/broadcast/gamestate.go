// Package broadcast はキャッシュの更新をWebSocketでブラウザに通知します。
package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"soilgate/models"
	"soilgate/soil/cache"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingPeriod   = 10 * time.Second // 10秒ごとにPingを送信
	readDeadline = 60 * time.Second // 60秒の読み取りデッドライン
	writeWait    = 10 * time.Second
	sendBuffer   = 8
)

// Client は1つのWebSocket接続です。
type Client struct {
	Conn *websocket.Conn
	Key  cache.Key
	send chan []byte
	once sync.Once
}

// GameStateMessage はクライアントに送るゲーム状態です。
type GameStateMessage struct {
	Type         string            `json:"type"`
	GameID       string            `json:"gameId"`
	Status       models.GameStatus `json:"status"`
	CurrentRound int               `json:"currentRound"`
	Capital      float64           `json:"capital"`
	Version      uint64            `json:"version"`
	LastRound    *models.Round     `json:"lastRound,omitempty"`
}

// Hub はキーごとに接続中のクライアントを管理します。
type Hub struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[cache.Key]map[*Client]bool
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[cache.Key]map[*Client]bool)}
}

func (h *Hub) Register(conn *websocket.Conn, key cache.Key) *Client {
	c := &Client{Conn: conn, Key: key, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[key] == nil {
		h.clients[key] = make(map[*Client]bool)
	}
	h.clients[key][c] = true
	h.logger.Info("New client added", zap.String("key", key.String()))
	return c
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[c.Key]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.Key)
		}
	}
	c.once.Do(func() { close(c.send) })
}

// Count はキーに接続中のクライアント数を返します。
func (h *Hub) Count(key cache.Key) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[key])
}

// BroadcastGameState はゲームの状態をブロードキャストします。cache.Listener として登録します。
func (h *Hub) BroadcastGameState(key cache.Key, entry cache.Entry) {
	msg := NewGameStateMessage(entry)
	messageJSON, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal game state", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[key] {
		select {
		case c.send <- messageJSON:
		default:
			// 送信が詰まっているクライアントはスキップ（次の更新で追いつく）
			h.logger.Warn("Dropping game state for slow client", zap.String("key", key.String()))
		}
	}
}

func NewGameStateMessage(entry cache.Entry) GameStateMessage {
	msg := GameStateMessage{
		Type:         "gameState",
		GameID:       entry.Game.GameID,
		Status:       entry.Game.Status,
		CurrentRound: entry.Player.CurrentRound,
		Capital:      entry.Player.Capital,
		Version:      entry.Version,
	}
	if last, ok := entry.Player.LastRound(); ok {
		msg.LastRound = &last
	}
	return msg
}

// Serve はクライアントの接続を維持し、Ping/Pongで生存確認をします。
// 接続が切れるまでブロックします。
func (h *Hub) Serve(c *Client, initial *cache.Entry) {
	defer func() {
		h.Unregister(c)
		c.Conn.Close()
		h.logger.Info("Client removed", zap.String("key", c.Key.String()))
	}()

	// 読み取りゴルーチン: Closeの検知とPongの処理
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		c.Conn.SetReadDeadline(time.Now().Add(readDeadline))
		c.Conn.SetPongHandler(func(string) error {
			return c.Conn.SetReadDeadline(time.Now().Add(readDeadline))
		})
		for {
			if _, _, err := c.Conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if initial != nil {
		if err := c.write(websocket.TextMessage, mustJSON(NewGameStateMessage(*initial))); err != nil {
			h.logger.Error("Error sending initial state", zap.Error(err))
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.write(websocket.CloseMessage, nil)
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				h.logger.Error("Failed to broadcast game state", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				h.logger.Error("Error sending ping", zap.Error(err))
				return
			}
		case <-closed:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(messageType, data)
}

func mustJSON(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}

package backend

import (
	"context"

	"soilgate/models"
)

// SubmitStatus は決定送信後のラウンドの状態です。
type SubmitStatus string

const (
	// 全員の決定が揃い、ラウンドが計算済み
	StatusCalculated SubmitStatus = "calculated"
	// 他のプレイヤーの決定待ち
	StatusPending SubmitStatus = "pending"
)

// RPCメソッド名
const (
	MethodGetGameState   = "getGameState"
	MethodSubmitDecision = "submitDecision"
	MethodCreateGame     = "createGame"
	MethodGetAdminGames  = "getAdminGames"
	MethodGetUserStatus  = "getUserStatus"
)

type GameStateRequest struct {
	GameID string `json:"gameId"`
}

type GameState struct {
	Game        models.GameSnapshot `json:"game"`
	PlayerState models.PlayerState  `json:"playerState"`
	LastRound   *models.Round       `json:"lastRound,omitempty"`
}

type SubmitRequest struct {
	GameID   string          `json:"gameId"`
	Round    int             `json:"round"`
	Decision models.Decision `json:"decision"`
}

type SubmitResponse struct {
	Status    SubmitStatus  `json:"status"`
	NextRound *models.Round `json:"nextRound,omitempty"`
}

type CreateGameRequest struct {
	Name     string              `json:"name" binding:"required"`
	Players  int                 `json:"numberOfPlayers" binding:"required,min=1"`
	Settings models.GameSettings `json:"settings"`
	Config   models.GameConfig   `json:"config"`
}

type CreateGameResponse struct {
	GameID   string `json:"gameId"`
	Password string `json:"password"`
}

type AdminGamesRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

type AdminGames struct {
	Games []models.GameSnapshot `json:"games"`
	Total int                   `json:"total"`
}

// UserStatus はバックエンドが保持する利用者の状態です。
type UserStatus struct {
	Role   string `json:"role"`
	Status string `json:"status"`
}

// UserStatusActive は有効な利用者を表します。
const UserStatusActive = "active"

// Client はシミュレーションバックエンドのRPCです。
// 呼び出し元のトークンは WithToken で ctx に載せます。
type Client interface {
	GetGameState(ctx context.Context, gameID string) (*GameState, error)
	SubmitDecision(ctx context.Context, req SubmitRequest) (*SubmitResponse, error)
	CreateGame(ctx context.Context, req CreateGameRequest) (*CreateGameResponse, error)
	GetAdminGames(ctx context.Context, req AdminGamesRequest) (*AdminGames, error)
	GetUserStatus(ctx context.Context) (*UserStatus, error)
}

type tokenKey struct{}

// WithToken は呼び出し元のトークンを ctx に設定します。
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

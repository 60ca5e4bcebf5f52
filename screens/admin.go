package screens

import (
	"net/http"
	"strconv"

	"soilgate/backend"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// AdminGames は管理画面のゲーム一覧を返します。
func (a *App) AdminGames(c *gin.Context) {
	req := backend.AdminGamesRequest{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "pageSize", defaultPageSize),
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > maxPageSize {
		req.PageSize = defaultPageSize
	}

	games, err := a.Backend.GetAdminGames(backendContext(c), req)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"games":    games.Games,
		"total":    games.Total,
		"page":     req.Page,
		"pageSize": req.PageSize,
	})
}

// CreateGame は新しいゲームを作成します。
func (a *App) CreateGame(c *gin.Context) {
	var req backend.CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.Logger.Error("Failed to bind create game request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"status": "validation_error", "error": "Invalid request body"})
		return
	}

	created, err := a.Backend.CreateGame(backendContext(c), req)
	if err != nil {
		a.respondError(c, err)
		return
	}
	a.Logger.Info("Game created", zap.String("gameID", created.GameID), zap.Int("players", req.Players))
	c.JSON(http.StatusCreated, gin.H{
		"status":   "success",
		"gameId":   created.GameID,
		"password": created.Password,
	})
}

func queryInt(c *gin.Context, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

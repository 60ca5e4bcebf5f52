package screens

import (
	"context"
	"errors"
	"net/http"

	"soilgate/auth"
	"soilgate/backend"
	"soilgate/middlewares"
	"soilgate/models"
	"soilgate/preferences"
	"soilgate/soil/broadcast"
	"soilgate/soil/cache"
	"soilgate/soil/decision"
	"soilgate/soil/history"
	"soilgate/soil/submission"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SessionStore はセッションの発行と削除を行います。
type SessionStore interface {
	Create(ctx context.Context, p *models.Principal) (*models.SessionInfo, error)
	Delete(ctx context.Context, sessionID string) error
}

// App は画面ごとのハンドラが使う依存関係をまとめたものです。
type App struct {
	Backend     backend.Client
	Cache       *cache.Cache
	Coordinator *submission.Coordinator
	Decisions   *decision.Registry
	Sessions    SessionStore
	Validator   auth.Validator
	Guards      *middlewares.GuardRegistry
	Preferences preferences.Store
	Hub         *broadcast.Hub
	Thresholds  history.Thresholds
	Upgrader    websocket.Upgrader
	Logger      *zap.Logger
}

// 言語プレフィックス。"" は言語指定なし。
var localePrefixes = []string{"", "/de", "/en"}

// Register は各HTTPリクエストのルーティングを設定します。
func (a *App) Register(router *gin.Engine) {
	router.Use(middlewares.Locale())

	for _, prefix := range localePrefixes {
		root := router.Group(prefix)

		// 認証不要
		root.POST("/session", a.OpenSession)
		root.DELETE("/session", a.CloseSession)
		root.GET("/frontpage/overview", a.FrontpageOverview)
		root.GET("/admin/login", a.AdminLogin)
		root.GET("/preferences", a.GetPreferences)
		root.GET("/preferences/:key", a.GetPreference)
		root.PUT("/preferences/:key", a.PutPreference)

		// プレイヤー
		player := root.Group("/game", middlewares.RequireRole(a.Guards, models.RolePlayer, a.Logger))
		player.GET("", a.GameBoard)
		player.GET("/:gameId/player/:playerId", a.GameBoard)
		player.GET("/decision", a.GetDecision)
		player.PUT("/decision", a.PutDecision)
		player.PUT("/decision/parcels", a.PutParcels)
		player.DELETE("/decision", a.ResetDecision)
		player.POST("/submit", a.SubmitDecision)
		player.GET("/poll", a.Poll)
		player.GET("/history", a.History)
		player.GET("/ws", a.GameSocket)

		// 管理者
		admin := root.Group("/admin", middlewares.RequireRole(a.Guards, models.RoleAdmin, a.Logger))
		admin.GET("", a.AdminGames)
		admin.GET("/:playerId", a.AdminGames)
		admin.POST("/games", a.CreateGame)

		superuser := root.Group("/superuser", middlewares.RequireRole(a.Guards, models.RoleSuperuser, a.Logger))
		superuser.GET("/:playerId", a.AdminGames)
	}

	// それ以外のルートは管理者のみ。権限がなければリダイレクト
	router.NoRoute(middlewares.RequireRole(a.Guards, models.RoleAdmin, a.Logger), func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"status": "not_found", "path": c.Request.URL.Path})
	})
}

// backendContext は呼び出し元のトークンを載せた ctx を返します。
func backendContext(c *gin.Context) context.Context {
	cred := middlewares.GetCredentials(c)
	return backend.WithToken(c.Request.Context(), cred.Token)
}

// respondError はエラーの種類に応じて回復可能な状態を返します。
func (a *App) respondError(c *gin.Context, err error) {
	var (
		verr *models.ValidationError
		ferr *models.FetchError
		serr *models.SubmissionError
		aerr *models.AuthError
		berr *backend.StatusError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"status": "validation_error", "field": verr.Field, "error": verr.Reason})
	case errors.As(err, &ferr):
		a.Logger.Warn("Failed to load game state", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"status": "fetch_error", "retry": true, "error": err.Error()})
	case errors.As(err, &serr):
		a.Logger.Error("Failed to submit decision", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "submission_error", "retry": true, "attempts": serr.Attempts})
	case errors.As(err, &aerr):
		c.Redirect(http.StatusFound, middlewares.LocalizedPath(c, auth.UnauthenticatedRoute))
	case errors.As(err, &berr):
		a.Logger.Warn("Backend returned error", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"status": "backend_error", "code": berr.Code})
	default:
		a.Logger.Error("Unexpected error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "internal_error"})
	}
}

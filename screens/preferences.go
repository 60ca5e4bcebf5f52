package screens

import (
	"errors"
	"net/http"

	"soilgate/auth"
	"soilgate/middlewares"
	"soilgate/preferences"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 設定の保存先を識別するヘッダー。ログイン前の利用者が使います。
const clientIDHeader = "X-Client-ID"

// preferenceOwner は設定の持ち主を決めます。トークンの利用者を優先します。
func preferenceOwner(c *gin.Context) string {
	cred := middlewares.Credentials(c)
	if cred.Token != "" {
		if claims, _, err := auth.ParseToken(cred.Token); err == nil && claims.UserID != "" {
			return "user:" + claims.UserID
		}
	}
	if id := c.GetHeader(clientIDHeader); id != "" {
		return "client:" + id
	}
	return ""
}

// GetPreferences はすべての設定値を返します。持ち主がいない場合は既定値です。
func (a *App) GetPreferences(c *gin.Context) {
	owner := preferenceOwner(c)
	values, err := preferences.All(c.Request.Context(), a.Preferences, owner)
	if err != nil {
		a.Logger.Error("Failed to read preferences", zap.String("owner", owner), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "preferences_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "preferences": values})
}

// GetPreference は1つの設定値を返します。
func (a *App) GetPreference(c *gin.Context) {
	owner := preferenceOwner(c)
	key := preferences.Key(c.Param("key"))
	value, err := preferences.Get(c.Request.Context(), a.Preferences, owner, key)
	if errors.Is(err, preferences.ErrUnknownKey) {
		c.JSON(http.StatusNotFound, gin.H{"status": "unknown_preference", "key": key})
		return
	}
	if err != nil {
		a.Logger.Error("Failed to read preference", zap.String("owner", owner), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "preferences_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "key": key, "value": value})
}

// PreferenceRequest は設定値の変更です。描画品質は FPS から決めることもできます。
type PreferenceRequest struct {
	Value string   `json:"value"`
	FPS   *float64 `json:"fps"`
}

func (a *App) PutPreference(c *gin.Context) {
	owner := preferenceOwner(c)
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "validation_error", "error": "missing client id"})
		return
	}

	var req PreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.Logger.Error("Failed to bind preference request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"status": "validation_error", "error": "Invalid request body"})
		return
	}

	key := preferences.Key(c.Param("key"))
	value := req.Value
	if key == preferences.KeyPerformanceTier && req.FPS != nil {
		value = string(preferences.TierFromFPS(*req.FPS))
	}

	if err := preferences.Set(c.Request.Context(), a.Preferences, owner, key, value); err != nil {
		var invalid *preferences.InvalidValueError
		switch {
		case errors.Is(err, preferences.ErrUnknownKey):
			c.JSON(http.StatusNotFound, gin.H{"status": "unknown_preference", "key": key})
		case errors.As(err, &invalid):
			c.JSON(http.StatusBadRequest, gin.H{"status": "validation_error", "error": err.Error()})
		default:
			a.Logger.Error("Failed to save preference", zap.String("owner", owner), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"status": "preferences_error"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "key": key, "value": value})
}

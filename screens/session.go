package screens

import (
	"net/http"

	"soilgate/auth"
	"soilgate/middlewares"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OpenSession はトークンを検証してセッションを発行し、ロールと最初の遷移先を返します。
func (a *App) OpenSession(c *gin.Context) {
	cred := middlewares.Credentials(c)
	cred.SessionID = ""

	principal, err := a.Validator.Validate(c.Request.Context(), cred)
	if err != nil {
		a.Logger.Info("Session rejected", zap.Error(err))
		res := auth.Resolve(nil)
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":       "token_validation_error",
			"role":         res.Role,
			"landingRoute": middlewares.LocalizedPath(c, res.LandingRoute),
		})
		return
	}

	info, err := a.Sessions.Create(c.Request.Context(), principal)
	if err != nil {
		a.Logger.Error("Failed to create session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "session_error",
			"error":  "セッションの作成に失敗しました",
		})
		return
	}

	res := auth.Resolve(principal)
	c.JSON(http.StatusOK, gin.H{
		"status":       "success",
		"sessionID":    info.SessionID,
		"role":         res.Role,
		"landingRoute": middlewares.LocalizedPath(c, res.LandingRoute),
	})
}

// CloseSession はセッションを削除し、未認証の遷移先を返します。
func (a *App) CloseSession(c *gin.Context) {
	cred := middlewares.Credentials(c)
	if cred.SessionID != "" {
		if err := a.Sessions.Delete(c.Request.Context(), cred.SessionID); err != nil {
			a.Logger.Warn("Failed to delete session", zap.String("sessionID", cred.SessionID), zap.Error(err))
		}
		a.Guards.Forget(cred.SessionID)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "logged_out",
		"landingRoute": middlewares.LocalizedPath(c, auth.UnauthenticatedRoute),
	})
}

// FrontpageOverview は未認証の利用者向けのトップ画面です。
func (a *App) FrontpageOverview(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"page":   "frontpage_overview",
		"locale": c.GetString(middlewares.ContextLocale),
	})
}

func (a *App) AdminLogin(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"page":   "admin_login",
		"locale": c.GetString(middlewares.ContextLocale),
	})
}

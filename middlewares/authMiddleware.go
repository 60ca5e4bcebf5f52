package middlewares

import (
	"net/http"
	"time"

	"soilgate/auth"
	"soilgate/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// gin.Context に保存するキー
	ContextPrincipal   = "principal"
	ContextCredentials = "credentials"

	// 更新トークンの有効期限
	refreshedTokenTTL = 24 * time.Hour
)

// Credentials はリクエストヘッダーから認証情報を取り出します。
func Credentials(c *gin.Context) auth.Credentials {
	return auth.Credentials{
		Token:     auth.BearerToken(c.GetHeader("Authorization")),
		SessionID: c.GetHeader("SessionID"),
	}
}

// RequireRole はセッションガードで遷移を判定するミドルウェアです。
func RequireRole(guards *GuardRegistry, role models.Role, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		cred := Credentials(c)
		guard := guards.For(cred.SessionID)

		redirected := false
		principal, ok := guard.Enter(c.Request.Context(), role, cred, func(route string) {
			redirected = true
			c.Redirect(http.StatusFound, LocalizedPath(c, route))
			c.Abort()
		})
		if !ok {
			if !redirected {
				// 新しい遷移に追い越された拒否はリダイレクトしない
				logger.Debug("guard evaluation superseded", zap.String("path", c.Request.URL.Path))
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"status": "superseded"})
			}
			return
		}

		c.Set(ContextPrincipal, principal)
		c.Set(ContextCredentials, cred)
		refreshTokenIfNeeded(c, cred.Token, logger)
		c.Next()
	}
}

// GetPrincipal はガードを通過したPrincipalを返します。
func GetPrincipal(c *gin.Context) (*models.Principal, bool) {
	v, ok := c.Get(ContextPrincipal)
	if !ok {
		return nil, false
	}
	p, ok := v.(*models.Principal)
	return p, ok && p != nil
}

func GetCredentials(c *gin.Context) auth.Credentials {
	if v, ok := c.Get(ContextCredentials); ok {
		if cred, ok := v.(auth.Credentials); ok {
			return cred
		}
	}
	return Credentials(c)
}

// トークンの有効期限が近い場合は新しいトークンをレスポンスヘッダーに追加
func refreshTokenIfNeeded(c *gin.Context, tokenString string, logger *zap.Logger) {
	claims, needUpdate, err := auth.ParseToken(tokenString)
	if err != nil || !needUpdate {
		return
	}
	newToken, err := auth.RefreshToken(claims, refreshedTokenTTL)
	if err != nil {
		logger.Error("Failed to refresh token", zap.Error(err))
		return
	}
	c.Header("Authorization", newToken)
}

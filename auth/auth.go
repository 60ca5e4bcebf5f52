package auth

import (
	"fmt"
	"strings"
	"time"

	"soilgate/models"

	jwt "github.com/dgrijalva/jwt-go"
)

// JwtKey は署名用のシークレットキーです。main で設定ファイルの値に置き換えます。
var JwtKey = []byte("change_me")

// 有効期限がこれを下回るとトークンを更新します。
const refreshWindow = time.Hour

func SetJwtKey(secret string) {
	if secret != "" {
		JwtKey = []byte(secret)
	}
}

// BearerToken はAuthorizationヘッダーからBearerプレフィックスを取り除きます。
func BearerToken(header string) string {
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// GenerateToken はPrincipalのJWTトークンを生成します。
func GenerateToken(p models.Principal, ttl time.Duration) (string, error) {
	claims := &models.MyClaims{
		UserID: p.ID,
		Role:   string(p.Role),
		GameID: p.GameID,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(ttl).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(JwtKey)
}

// ParseToken はトークンを検証し、クレームと更新の要否を返します。
func ParseToken(tokenString string) (*models.MyClaims, bool, error) {
	if tokenString == "" {
		return nil, false, &models.AuthError{Reason: "token is required"}
	}

	claims := &models.MyClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return JwtKey, nil
	})
	if err != nil {
		return nil, false, &models.AuthError{Reason: "token parse failed", Err: err}
	}
	if !token.Valid {
		return nil, false, &models.AuthError{Reason: "invalid token"}
	}

	// トークンの有効期限が1時間未満の場合、更新が必要
	needUpdate := time.Until(time.Unix(claims.ExpiresAt, 0)) < refreshWindow
	return claims, needUpdate, nil
}

// RefreshToken は同じPrincipalで有効期限を延ばしたトークンを発行します。
func RefreshToken(claims *models.MyClaims, ttl time.Duration) (string, error) {
	return GenerateToken(*claims.Principal(), ttl)
}

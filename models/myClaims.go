package models

import (
	jwt "github.com/dgrijalva/jwt-go"
)

// MyClaims はJWTクレームの構造体定義です。
type MyClaims struct {
	UserID string `json:"userid"`
	Role   string `json:"role"`
	GameID string `json:"gameId,omitempty"`
	jwt.StandardClaims
}

// Principal はクレームからPrincipalを組み立てます。
func (c *MyClaims) Principal() *Principal {
	return &Principal{
		ID:     c.UserID,
		Role:   ParseRole(c.Role),
		GameID: c.GameID,
	}
}

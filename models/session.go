package models

import (
	"time"
)

// SessionInfo はRedisに保存するセッション情報です。
type SessionInfo struct {
	SessionID string    `json:"sessionID"`
	UserID    string    `json:"userID"`
	Role      Role      `json:"role"`
	GameID    string    `json:"gameID,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Principal はセッション情報からPrincipalを組み立てます。
func (s SessionInfo) Principal() *Principal {
	return &Principal{ID: s.UserID, Role: s.Role, GameID: s.GameID}
}

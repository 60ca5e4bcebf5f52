package models

// Role はセッションの権限区分です。
type Role string

const (
	RolePlayer    Role = "PLAYER"
	RoleAdmin     Role = "ADMIN"
	RoleSuperuser Role = "SUPERUSER"
	RoleAnonymous Role = "ANONYMOUS"
)

// ParseRole は未知の値をすべて RoleAnonymous に落とします。
func ParseRole(s string) Role {
	switch Role(s) {
	case RolePlayer, RoleAdmin, RoleSuperuser:
		return Role(s)
	}
	return RoleAnonymous
}

// Principal は認証済みの利用者を表します。GameID はプレイヤーの場合のみ設定されます。
type Principal struct {
	ID     string `json:"id"`
	Role   Role   `json:"role"`
	GameID string `json:"gameId,omitempty"`
}

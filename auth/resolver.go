package auth

import (
	"net/url"

	"soilgate/models"
)

// UnauthenticatedRoute は未認証時の遷移先です。
const UnauthenticatedRoute = "/frontpage/overview"

// Resolution はロール判定の結果です。
type Resolution struct {
	Role         models.Role `json:"role"`
	LandingRoute string      `json:"landingRoute"`
}

var anonymous = Resolution{Role: models.RoleAnonymous, LandingRoute: UnauthenticatedRoute}

// Resolve はPrincipalのロールと最初の遷移先を決めます。
// 情報が欠けている場合は必ず未認証として扱います。
func Resolve(p *models.Principal) Resolution {
	if p == nil || p.ID == "" {
		return anonymous
	}
	id := url.PathEscape(p.ID)

	switch p.Role {
	case models.RolePlayer:
		if p.GameID == "" {
			return anonymous
		}
		return Resolution{
			Role:         models.RolePlayer,
			LandingRoute: "/game/" + url.PathEscape(p.GameID) + "/player/" + id,
		}
	case models.RoleAdmin:
		return Resolution{Role: models.RoleAdmin, LandingRoute: "/admin/" + id}
	case models.RoleSuperuser:
		return Resolution{Role: models.RoleSuperuser, LandingRoute: "/superuser/" + id}
	}
	return anonymous
}

// Permits はルートに必要なロールと判定結果が一致するかを返します。
func Permits(required, actual models.Role) bool {
	return actual != models.RoleAnonymous && required == actual
}

package auth

import (
	"context"

	"soilgate/backend"
	"soilgate/models"

	"go.uber.org/zap"
)

// Credentials はリクエストから取り出した認証情報です。
type Credentials struct {
	Token     string
	SessionID string
}

// Validator はセッションを非同期に再検証します。
type Validator interface {
	Validate(ctx context.Context, cred Credentials) (*models.Principal, error)
}

// StatusChecker はバックエンドに利用者の状態を問い合わせます。
type StatusChecker interface {
	GetUserStatus(ctx context.Context) (*backend.UserStatus, error)
}

// SessionLookup はセッションIDからセッション情報を取得します。
type SessionLookup interface {
	Lookup(ctx context.Context, sessionID string) (*models.SessionInfo, error)
}

// TokenValidator はJWTの検証、セッションの照合、バックエンドでの状態確認を順に行います。
type TokenValidator struct {
	Status   StatusChecker
	Sessions SessionLookup
	Logger   *zap.Logger
}

func (v *TokenValidator) Validate(ctx context.Context, cred Credentials) (*models.Principal, error) {
	claims, _, err := ParseToken(cred.Token)
	if err != nil {
		return nil, err
	}
	principal := claims.Principal()

	// セッションIDがある場合はトークンの利用者と一致するか確認
	if cred.SessionID != "" && v.Sessions != nil {
		info, err := v.Sessions.Lookup(ctx, cred.SessionID)
		if err != nil {
			return nil, &models.AuthError{Reason: "session lookup failed", Err: err}
		}
		if info.UserID != principal.ID {
			v.Logger.Warn("session does not belong to token owner",
				zap.String("sessionID", cred.SessionID), zap.String("userID", principal.ID))
			return nil, &models.AuthError{Reason: "session mismatch"}
		}
	}

	if v.Status == nil {
		return principal, nil
	}

	status, err := v.Status.GetUserStatus(backend.WithToken(ctx, cred.Token))
	if err != nil {
		return nil, &models.AuthError{Reason: "user status check failed", Err: err}
	}
	if status.Status != backend.UserStatusActive {
		return nil, &models.AuthError{Reason: "user is " + status.Status}
	}
	if models.ParseRole(status.Role) != principal.Role {
		return nil, &models.AuthError{Reason: "role changed"}
	}
	return principal, nil
}

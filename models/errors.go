package models

import (
	"errors"
	"fmt"
)

// ErrNotCached はキャッシュにエントリが存在しない場合に返されます。
var ErrNotCached = errors.New("game state not cached")

// AuthError はセッションが無効または期限切れの場合のエラーです。
// セッションガードの外には出さず、必ずリダイレクトとして処理します。
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError は状態の読み込みに失敗した場合のエラーです。キャッシュは変更されません。
type FetchError struct {
	GameID string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch game %s: %v", e.GameID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ValidationError は不正な入力で、ネットワーク呼び出しの前に返されます。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SubmissionError はリトライを使い切った後の送信失敗です。
type SubmissionError struct {
	GameID   string
	Round    int
	Attempts int
	Err      error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit game %s round %d failed after %d attempts: %v", e.GameID, e.Round, e.Attempts, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// StatusError はバックエンドが2xx以外を返した場合のエラーです。
type StatusError struct {
	Method  string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %s: status %d: %s", e.Method, e.Code, e.Message)
}

// DecodeError は2xxの応答本文を読めなかった場合のエラーです。
// バックエンドは要求を処理済みの可能性があります。
type DecodeError struct {
	Method string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.Method, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Retryable は再送で回復する可能性のあるエラーかどうかを返します。
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	// 通信エラーやタイムアウトは再送対象
	return true
}

// HTTPClient は単一のPOSTエンドポイントにJSONを送るRPCクライアントです。
type HTTPClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *HTTPClient) GetGameState(ctx context.Context, gameID string) (*GameState, error) {
	var out GameState
	if err := c.call(ctx, MethodGetGameState, GameStateRequest{GameID: gameID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) SubmitDecision(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	var out SubmitResponse
	if err := c.call(ctx, MethodSubmitDecision, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CreateGame(ctx context.Context, req CreateGameRequest) (*CreateGameResponse, error) {
	var out CreateGameResponse
	if err := c.call(ctx, MethodCreateGame, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetAdminGames(ctx context.Context, req AdminGamesRequest) (*AdminGames, error) {
	var out AdminGames
	if err := c.call(ctx, MethodGetAdminGames, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetUserStatus(ctx context.Context) (*UserStatus, error) {
	var out UserStatus
	if err := c.call(ctx, MethodGetUserStatus, struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// call はリクエストをJSONで送信し、レスポンスを out にデコードします。
func (c *HTTPClient) call(ctx context.Context, method string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := TokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed", zap.String("method", method), zap.Error(err))
		return fmt.Errorf("backend %s: %w", method, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request",
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Method: method, Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &DecodeError{Method: method, Err: err}
	}
	return nil
}

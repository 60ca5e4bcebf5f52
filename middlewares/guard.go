package middlewares

import (
	"context"
	"sync"
	"time"

	"soilgate/auth"
	"soilgate/models"

	"go.uber.org/zap"
)

// GuardState はセッションガードの状態です。
type GuardState int

const (
	StateUnchecked GuardState = iota
	StateValidating
	StateAuthorized
	StateDenied
)

func (s GuardState) String() string {
	switch s {
	case StateValidating:
		return "VALIDATING"
	case StateAuthorized:
		return "AUTHORIZED"
	case StateDenied:
		return "DENIED"
	}
	return "UNCHECKED"
}

// SessionGuard はロールが必要な画面への遷移を判定します。
// 遷移ごとに試行番号を採番します。古い試行はリダイレクトも状態更新も行いません。
type SessionGuard struct {
	validator auth.Validator
	timeout   time.Duration
	logger    *zap.Logger

	mu        sync.Mutex
	attempt   uint64
	state     GuardState
	principal *models.Principal
	lastUsed  time.Time
}

func NewSessionGuard(validator auth.Validator, timeout time.Duration, logger *zap.Logger) *SessionGuard {
	return &SessionGuard{
		validator: validator,
		timeout:   timeout,
		logger:    logger,
		lastUsed:  time.Now(),
	}
}

// CanEnter は required のロールで入場できるかを返します。
// 拒否した場合は redirect を未認証ページで呼び出します。
func (g *SessionGuard) CanEnter(ctx context.Context, required models.Role, cred auth.Credentials, redirect func(route string)) bool {
	_, ok := g.Enter(ctx, required, cred, redirect)
	return ok
}

// Enter は CanEnter と同じ判定を行い、許可した場合はPrincipalも返します。
// 新しい試行に追い越された拒否は false を返しますが、redirect は呼びません。
func (g *SessionGuard) Enter(ctx context.Context, required models.Role, cred auth.Credentials, redirect func(route string)) (*models.Principal, bool) {
	ticket := g.begin()

	if cred.Token == "" {
		g.deny(ticket, required, "no session token", nil, redirect)
		return nil, false
	}

	principal, err := g.validate(ctx, cred)
	if err != nil {
		g.deny(ticket, required, "revalidation failed", err, redirect)
		return nil, false
	}

	res := auth.Resolve(principal)
	if !auth.Permits(required, res.Role) {
		g.deny(ticket, required, "role mismatch", nil, redirect)
		return nil, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.attempt != ticket {
		// 追い越された判定でも許可は有効。状態は新しい試行に任せる
		return principal, true
	}
	g.state = StateAuthorized
	g.principal = principal
	return principal, true
}

// State は最新の試行の状態を返します。
func (g *SessionGuard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *SessionGuard) idleSince() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastUsed
}

func (g *SessionGuard) begin() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attempt++
	g.state = StateValidating
	g.principal = nil
	g.lastUsed = time.Now()
	return g.attempt
}

// validate は再検証をタイムアウト付きで実行します。
func (g *SessionGuard) validate(ctx context.Context, cred auth.Credentials) (*models.Principal, error) {
	vctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		principal *models.Principal
		err       error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := g.validator.Validate(vctx, cred)
		ch <- result{p, err}
	}()

	select {
	case r := <-ch:
		if r.err == nil && r.principal == nil {
			return nil, &models.AuthError{Reason: "empty principal"}
		}
		return r.principal, r.err
	case <-vctx.Done():
		return nil, &models.AuthError{Reason: "revalidation timed out", Err: vctx.Err()}
	}
}

func (g *SessionGuard) deny(ticket uint64, required models.Role, reason string, err error, redirect func(string)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.attempt != ticket {
		// 新しい試行が始まっているので何もしない
		return
	}
	g.state = StateDenied
	g.principal = nil
	g.logger.Info("guard denied entry",
		zap.String("required", string(required)),
		zap.String("reason", reason),
		zap.Error(err),
	)
	if redirect != nil {
		redirect(auth.UnauthenticatedRoute)
	}
}

// GuardRegistry はセッションIDごとにガードを保持します。
type GuardRegistry struct {
	validator auth.Validator
	timeout   time.Duration
	logger    *zap.Logger

	mu     sync.Mutex
	guards map[string]*SessionGuard
}

func NewGuardRegistry(validator auth.Validator, timeout time.Duration, logger *zap.Logger) *GuardRegistry {
	return &GuardRegistry{
		validator: validator,
		timeout:   timeout,
		logger:    logger,
		guards:    make(map[string]*SessionGuard),
	}
}

// For はセッションのガードを返します。セッションIDが空の場合は使い捨てのガードです。
func (r *GuardRegistry) For(sessionID string) *SessionGuard {
	if sessionID == "" {
		return NewSessionGuard(r.validator, r.timeout, r.logger)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guards[sessionID]
	if !ok {
		g = NewSessionGuard(r.validator, r.timeout, r.logger)
		r.guards[sessionID] = g
	}
	return g
}

func (r *GuardRegistry) Forget(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.guards, sessionID)
}

// Prune は idle 以上使われていないガードを削除し、削除数を返します。
func (r *GuardRegistry) Prune(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-idle)
	removed := 0
	for id, g := range r.guards {
		if g.idleSince().Before(cutoff) {
			delete(r.guards, id)
			removed++
		}
	}
	return removed
}

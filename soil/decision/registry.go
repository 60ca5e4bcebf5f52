package decision

import (
	"sync"
	"time"
)

type registryKey struct {
	gameID   string
	playerID string
}

type registryEntry struct {
	builder  *Builder
	lastUsed time.Time
}

// Registry はプレイヤーのゲームごとに、進行中のラウンドの Builder を1つだけ保持します。
type Registry struct {
	mu       sync.Mutex
	builders map[registryKey]*registryEntry
}

func NewRegistry() *Registry {
	return &Registry{builders: make(map[registryKey]*registryEntry)}
}

// For は round の Builder を返します。
// より新しいラウンドなら保持中の Builder を置き換えます。
// 古いラウンドの場合は保持中の Builder を残し、保存しない Builder を返します。
func (r *Registry) For(gameID, playerID string, round int) *Builder {
	k := registryKey{gameID, playerID}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.builders[k]
	if ok && e.builder.round >= round {
		if e.builder.round > round {
			return NewBuilder(gameID, round)
		}
		e.lastUsed = time.Now()
		return e.builder
	}
	b := NewBuilder(gameID, round)
	r.builders[k] = &registryEntry{builder: b, lastUsed: time.Now()}
	return b
}

// Peek は保持している Builder を返します。
func (r *Registry) Peek(gameID, playerID string) (*Builder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.builders[registryKey{gameID, playerID}]
	if !ok {
		return nil, false
	}
	return e.builder, true
}

func (r *Registry) Drop(gameID, playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.builders, registryKey{gameID, playerID})
}

// Prune は idle 以上使われていない Builder を削除し、削除数を返します。
func (r *Registry) Prune(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-idle)
	removed := 0
	for k, e := range r.builders {
		if e.lastUsed.Before(cutoff) {
			delete(r.builders, k)
			removed++
		}
	}
	return removed
}

// Package preferences はクライアント専用の設定値（ツアー既読、描画品質、言語）を扱います。
// 保存先は Store として注入し、キーと既定値はここで列挙します。
package preferences

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
)

type Key string

const (
	KeyTourSeen          Key = "tourSeen"
	KeyPerformanceTier   Key = "performanceTier"
	KeyPreferredLanguage Key = "preferredLanguage"
)

// Tier は描画品質の段階です。
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// フレームレートによる段階の境界
const (
	HighTierMinFPS   = 50.0
	MediumTierMinFPS = 30.0
)

var ErrUnknownKey = errors.New("unknown preference key")

type spec struct {
	def     string
	allowed map[string]bool
}

var specs = map[Key]spec{
	KeyTourSeen:          {def: "false", allowed: map[string]bool{"true": true, "false": true}},
	KeyPerformanceTier:   {def: string(TierHigh), allowed: map[string]bool{string(TierHigh): true, string(TierMedium): true, string(TierLow): true}},
	KeyPreferredLanguage: {def: "de", allowed: map[string]bool{"de": true, "en": true}},
}

// InvalidValueError は許可されていない値です。
type InvalidValueError struct {
	Key   Key
	Value string
}

func (e *InvalidValueError) Error() string {
	return "invalid value " + strconv.Quote(e.Value) + " for " + string(e.Key)
}

// Keys は定義済みのキーを返します。
func Keys() []Key {
	keys := make([]Key, 0, len(specs))
	for k := range specs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func Default(k Key) (string, error) {
	s, ok := specs[k]
	if !ok {
		return "", ErrUnknownKey
	}
	return s.def, nil
}

// Validate はキーと値の組み合わせを検証します。
func Validate(k Key, value string) error {
	s, ok := specs[k]
	if !ok {
		return ErrUnknownKey
	}
	if !s.allowed[value] {
		return &InvalidValueError{Key: k, Value: value}
	}
	return nil
}

// TierFromFPS は計測したフレームレートから描画品質を決めます。
func TierFromFPS(fps float64) Tier {
	switch {
	case fps >= HighTierMinFPS:
		return TierHigh
	case fps >= MediumTierMinFPS:
		return TierMedium
	}
	return TierLow
}

// Store は利用者ごとの設定の保存先です。未保存のキーは ok=false を返します。
type Store interface {
	Get(ctx context.Context, owner string, key Key) (value string, ok bool, err error)
	Set(ctx context.Context, owner string, key Key, value string) error
}

// Get は保存値、なければ既定値を返します。
func Get(ctx context.Context, s Store, owner string, k Key) (string, error) {
	def, err := Default(k)
	if err != nil {
		return "", err
	}
	v, ok, err := s.Get(ctx, owner, k)
	if err != nil {
		return "", err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// All はすべてのキーの値を返します。
func All(ctx context.Context, s Store, owner string) (map[Key]string, error) {
	out := make(map[Key]string, len(specs))
	for _, k := range Keys() {
		v, err := Get(ctx, s, owner, k)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// Set は検証してから保存します。
func Set(ctx context.Context, s Store, owner string, k Key, value string) error {
	if err := Validate(k, value); err != nil {
		return err
	}
	return s.Set(ctx, owner, k, value)
}

// MemoryStore はプロセス内の Store です。
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]map[Key]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]map[Key]string)}
}

func (m *MemoryStore) Get(_ context.Context, owner string, k Key) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[owner][k]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, owner string, k Key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[owner] == nil {
		m.values[owner] = make(map[Key]string)
	}
	m.values[owner][k] = value
	return nil
}

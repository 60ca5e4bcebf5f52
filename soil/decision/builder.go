// Package decision はラウンドの決定を送信前に組み立てます。
package decision

import (
	"fmt"
	"sync"

	"soilgate/models"
)

// Builder は1ラウンド分の決定をメモリ上に蓄積します。
// どの操作も検証を先に行い、失敗した場合は状態を変更しません。
type Builder struct {
	gameID string
	round  int

	mu          sync.Mutex
	parcels     map[int]models.CropType
	machines    float64
	fertilizer  *bool
	priceFixing map[models.CropType]bool
}

func NewBuilder(gameID string, round int) *Builder {
	return &Builder{
		gameID:      gameID,
		round:       round,
		parcels:     make(map[int]models.CropType),
		priceFixing: make(map[models.CropType]bool),
	}
}

func (b *Builder) GameID() string { return b.gameID }

// Round は決定の対象ラウンドです。
func (b *Builder) Round() int { return b.round }

func (b *Builder) Set(index int, crop models.CropType) error {
	return b.SetRange(index, index, crop)
}

// SetRange は start から end まで（両端を含む）の区画に作物を設定します。
func (b *Builder) SetRange(start, end int, crop models.CropType) error {
	if start > end {
		return &models.ValidationError{Field: "parcels", Reason: fmt.Sprintf("start %d is after end %d", start, end)}
	}
	if err := checkIndex(start); err != nil {
		return err
	}
	if err := checkIndex(end); err != nil {
		return err
	}
	if !crop.Valid() {
		return &models.ValidationError{Field: "crop", Reason: "unknown crop " + string(crop)}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i := start; i <= end; i++ {
		b.parcels[i] = crop
	}
	return nil
}

// Clear は区画の設定を取り消し、「変更なし」に戻します。
func (b *Builder) Clear(index int) error {
	if err := checkIndex(index); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.parcels, index)
	return nil
}

func (b *Builder) SetMachines(n float64) error {
	if n < 0 {
		return &models.ValidationError{Field: "machines", Reason: "must not be negative"}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.machines = n
	return nil
}

func (b *Builder) SetFertilizer(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fertilizer = &on
}

func (b *Builder) SetPriceFixing(crop models.CropType, on bool) error {
	if !crop.Valid() {
		return &models.ValidationError{Field: "priceFixing", Reason: "unknown crop " + string(crop)}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.priceFixing[crop] = on
	return nil
}

// Build は現在の決定のコピーを返します。バックエンドやキャッシュには触れません。
func (b *Builder) Build() models.Decision {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := models.Decision{
		Parcels:  make(map[int]models.CropType, len(b.parcels)),
		Machines: b.machines,
	}
	for i, c := range b.parcels {
		d.Parcels[i] = c
	}
	if b.fertilizer != nil {
		f := *b.fertilizer
		d.Fertilizer = &f
	}
	if len(b.priceFixing) > 0 {
		d.PriceFixing = make(map[models.CropType]bool, len(b.priceFixing))
		for c, on := range b.priceFixing {
			d.PriceFixing[c] = on
		}
	}
	return d
}

func (b *Builder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parcels = make(map[int]models.CropType)
	b.machines = 0
	b.fertilizer = nil
	b.priceFixing = make(map[models.CropType]bool)
}

func checkIndex(i int) error {
	if i < 0 || i >= models.ParcelCount {
		return &models.ValidationError{Field: "parcels", Reason: fmt.Sprintf("index %d outside 0..%d", i, models.ParcelCount-1)}
	}
	return nil
}

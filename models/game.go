package models

// ParcelCount は1ラウンドあたりの区画数です。
const ParcelCount = 40

// Soil と Nutrition の範囲
const (
	MinParcelValue = 0
	MaxParcelValue = 100
)

type GameStatus string

const (
	GameStatusPending    GameStatus = "pending"
	GameStatusInProgress GameStatus = "in_progress"
	GameStatusCompleted  GameStatus = "completed"
)

// CropType は区画に植える作物です。
type CropType string

const (
	CropFallow    CropType = "Fallow"
	CropGrass     CropType = "Grass"
	CropWheat     CropType = "Wheat"
	CropBarley    CropType = "Barley"
	CropOat       CropType = "Oat"
	CropRye       CropType = "Rye"
	CropCorn      CropType = "Corn"
	CropPea       CropType = "Pea"
	CropPotato    CropType = "Potato"
	CropSugarbeet CropType = "Sugarbeet"
)

var knownCrops = map[CropType]bool{
	CropFallow: true, CropGrass: true, CropWheat: true, CropBarley: true, CropOat: true,
	CropRye: true, CropCorn: true, CropPea: true, CropPotato: true, CropSugarbeet: true,
}

// Valid は既知の作物かどうかを返します。
func (c CropType) Valid() bool {
	return knownCrops[c]
}

type GameSettings struct {
	Length     int    `json:"length"`
	Difficulty string `json:"difficulty"`
}

// GameConfig はゲーム単位の機能フラグです。
type GameConfig struct {
	AdvisorEnabled bool `json:"advisorEnabled"`
	WeatherEnabled bool `json:"weatherEnabled"`
	VerminEnabled  bool `json:"verminEnabled"`
}

type PlayerSummary struct {
	DisplayName string  `json:"displayName"`
	Capital     float64 `json:"capital"`
}

// GameSnapshot はゲーム全体の状態のスナップショットです。
// キャッシュ内では丸ごと置き換えられ、部分的に書き換えられることはありません。
type GameSnapshot struct {
	GameID             string                   `json:"gameId"`
	Status             GameStatus               `json:"status"`
	CurrentRoundNumber int                      `json:"currentRoundNumber"`
	Settings           GameSettings             `json:"settings"`
	Config             GameConfig               `json:"config"`
	Players            map[string]PlayerSummary `json:"players"`
}

func (g GameSnapshot) Clone() GameSnapshot {
	out := g
	if g.Players != nil {
		out.Players = make(map[string]PlayerSummary, len(g.Players))
		for id, p := range g.Players {
			out.Players[id] = p
		}
	}
	return out
}

type Parcel struct {
	Index     int      `json:"index"`
	Crop      CropType `json:"crop"`
	Soil      float64  `json:"soil"`
	Nutrition float64  `json:"nutrition"`
	Yield     *float64 `json:"yield,omitempty"`
}

type RoundEvents struct {
	Weather string `json:"weather,omitempty"`
	Vermin  string `json:"vermin,omitempty"`
}

type Expenses struct {
	Items map[string]float64 `json:"items"`
	Total float64            `json:"total"`
}

// RoundResult はバックエンドが計算した結果で、クライアント側では計算しません。
type RoundResult struct {
	Profit         float64              `json:"profit"`
	Capital        float64              `json:"capital"`
	HarvestSummary map[CropType]float64 `json:"harvestSummary"`
	Expenses       Expenses             `json:"expenses"`
	Income         float64              `json:"income"`
	Events         RoundEvents          `json:"events"`
}

func (r *RoundResult) Clone() *RoundResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.HarvestSummary != nil {
		out.HarvestSummary = make(map[CropType]float64, len(r.HarvestSummary))
		for k, v := range r.HarvestSummary {
			out.HarvestSummary[k] = v
		}
	}
	if r.Expenses.Items != nil {
		out.Expenses.Items = make(map[string]float64, len(r.Expenses.Items))
		for k, v := range r.Expenses.Items {
			out.Expenses.Items[k] = v
		}
	}
	return &out
}

// Round は1ラウンド分の記録です。Result は決定中のラウンドでのみ nil になります。
type Round struct {
	Number          int          `json:"number"`
	ParcelsSnapshot []Parcel     `json:"parcelsSnapshot"`
	Decision        Decision     `json:"decision"`
	Result          *RoundResult `json:"result,omitempty"`
}

func (r Round) Clone() Round {
	out := r
	if r.ParcelsSnapshot != nil {
		out.ParcelsSnapshot = make([]Parcel, len(r.ParcelsSnapshot))
		for i, p := range r.ParcelsSnapshot {
			if p.Yield != nil {
				y := *p.Yield
				p.Yield = &y
			}
			out.ParcelsSnapshot[i] = p
		}
	}
	out.Decision = r.Decision.Clone()
	out.Result = r.Result.Clone()
	return out
}

// Resolved は結果が確定しているかを返します。
func (r Round) Resolved() bool {
	return r.Result != nil
}

type PlayerState struct {
	UID          string  `json:"uid"`
	DisplayName  string  `json:"displayName"`
	Capital      float64 `json:"capital"`
	CurrentRound int     `json:"currentRound"`
	History      []Round `json:"history"`
}

func (p PlayerState) Clone() PlayerState {
	out := p
	if p.History != nil {
		out.History = make([]Round, len(p.History))
		for i, r := range p.History {
			out.History[i] = r.Clone()
		}
	}
	return out
}

// LastRound は履歴の最後のラウンドを返します。
func (p PlayerState) LastRound() (Round, bool) {
	if len(p.History) == 0 {
		return Round{}, false
	}
	return p.History[len(p.History)-1], true
}

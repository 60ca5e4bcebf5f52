// Package history は確定したラウンドの履歴から財務集計とアドバイザーの所見を導きます。
// どの関数もプレイヤー状態から毎回計算し直し、状態は保持しません。
package history

import (
	"soilgate/models"
)

// Rounds は履歴のコピーを返します。長さは CurrentRound+1 を超えません。
func Rounds(p models.PlayerState) []models.Round {
	n := len(p.History)
	if limit := p.CurrentRound + 1; limit >= 0 && n > limit {
		n = limit
	}
	out := make([]models.Round, n)
	for i := 0; i < n; i++ {
		out[i] = p.History[i].Clone()
	}
	return out
}

// Resolved は結果が確定したラウンドだけを順番に返します。
func Resolved(rounds []models.Round) []models.Round {
	out := make([]models.Round, 0, len(rounds))
	for _, r := range rounds {
		if r.Result != nil {
			out = append(out, r)
		}
	}
	return out
}

// FinanceRow は財務画面の1行です。
type FinanceRow struct {
	Round    int                `json:"round"`
	Income   float64            `json:"income"`
	Expenses float64            `json:"expenses"`
	Items    map[string]float64 `json:"items,omitempty"`
	Profit   float64            `json:"profit"`
	Capital  float64            `json:"capital"`
}

type FinanceSummary struct {
	Rows          []FinanceRow `json:"rows"`
	TotalIncome   float64      `json:"totalIncome"`
	TotalExpenses float64      `json:"totalExpenses"`
	TotalProfit   float64      `json:"totalProfit"`
	Capital       float64      `json:"capital"`
}

// Finance は確定したラウンドの収支をまとめます。
func Finance(rounds []models.Round) FinanceSummary {
	var s FinanceSummary
	for _, r := range Resolved(rounds) {
		res := r.Result
		row := FinanceRow{
			Round:    r.Number,
			Income:   res.Income,
			Expenses: res.Expenses.Total,
			Profit:   res.Profit,
			Capital:  res.Capital,
		}
		if len(res.Expenses.Items) > 0 {
			row.Items = make(map[string]float64, len(res.Expenses.Items))
			for k, v := range res.Expenses.Items {
				row.Items[k] = v
			}
		}
		s.Rows = append(s.Rows, row)
		s.TotalIncome += row.Income
		s.TotalExpenses += row.Expenses
		s.TotalProfit += row.Profit
		s.Capital = row.Capital
	}
	return s
}

// AverageSoil は区画の土壌品質の平均です。区画がない場合は ok=false です。
func AverageSoil(parcels []models.Parcel) (float64, bool) {
	return average(parcels, func(p models.Parcel) float64 { return p.Soil })
}

func AverageNutrition(parcels []models.Parcel) (float64, bool) {
	return average(parcels, func(p models.Parcel) float64 { return p.Nutrition })
}

func average(parcels []models.Parcel, field func(models.Parcel) float64) (float64, bool) {
	if len(parcels) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, p := range parcels {
		sum += clamp(field(p))
	}
	return sum / float64(len(parcels)), true
}

func clamp(v float64) float64 {
	if v < models.MinParcelValue {
		return models.MinParcelValue
	}
	if v > models.MaxParcelValue {
		return models.MaxParcelValue
	}
	return v
}

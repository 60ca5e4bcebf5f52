package history

import (
	"fmt"
	"os"

	"soilgate/models"

	"gopkg.in/yaml.v3"
)

type InsightKind string

const (
	InsightHighLoss           InsightKind = "High Loss"
	InsightSoilDeclining      InsightKind = "Soil Quality Declining"
	InsightNutritionDeclining InsightKind = "Nutrition Declining"
	InsightWeatherEvent       InsightKind = "Weather Event"
	InsightVerminEvent        InsightKind = "Vermin Infestation"
	InsightProfitGrowth       InsightKind = "Profit Growth"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Insight は直近のラウンドから導いた分類です。
type Insight struct {
	Kind     InsightKind `json:"kind"`
	Severity Severity    `json:"severity"`
	Round    int         `json:"round"`
	Value    float64     `json:"value"`
}

// 既定の閾値。Thresholds で上書きできます。
const (
	DefaultHighLossProfit        = -5000.0
	DefaultCriticalLossProfit    = -20000.0
	DefaultSoilDeclineDelta      = 1.0
	DefaultNutritionDeclineDelta = 1.0
	DefaultProfitGrowthRatio     = 0.2
)

// Thresholds は所見の判定に使う閾値です。
type Thresholds struct {
	// 利益がこれを下回ると High Loss
	HighLossProfit float64 `yaml:"high_loss_profit"`
	// 利益がこれを下回ると critical
	CriticalLossProfit float64 `yaml:"critical_loss_profit"`
	// 平均土壌品質の低下幅
	SoilDeclineDelta float64 `yaml:"soil_decline_delta"`
	// 平均栄養値の低下幅
	NutritionDeclineDelta float64 `yaml:"nutrition_decline_delta"`
	// 前ラウンド比の利益増加率
	ProfitGrowthRatio float64 `yaml:"profit_growth_ratio"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		HighLossProfit:        DefaultHighLossProfit,
		CriticalLossProfit:    DefaultCriticalLossProfit,
		SoilDeclineDelta:      DefaultSoilDeclineDelta,
		NutritionDeclineDelta: DefaultNutritionDeclineDelta,
		ProfitGrowthRatio:     DefaultProfitGrowthRatio,
	}
}

// LoadThresholds はYAMLファイルから閾値を読み込みます。ファイルにない値は既定値のままです。
func LoadThresholds(path string) (Thresholds, error) {
	t := DefaultThresholds()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read thresholds: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return DefaultThresholds(), fmt.Errorf("parse thresholds: %w", err)
	}
	return t, nil
}

// Insights は直近2つの確定ラウンドから所見を導きます。
// 確定ラウンドが1つの場合は、そのラウンドだけで判断できるものを返します。
func Insights(rounds []models.Round, t Thresholds) []Insight {
	resolved := Resolved(rounds)
	if len(resolved) == 0 {
		return nil
	}
	last := resolved[len(resolved)-1]
	res := last.Result
	var out []Insight

	if res.Profit < t.HighLossProfit {
		sev := SeverityWarning
		if res.Profit < t.CriticalLossProfit {
			sev = SeverityCritical
		}
		out = append(out, Insight{Kind: InsightHighLoss, Severity: sev, Round: last.Number, Value: res.Profit})
	}
	if res.Events.Weather != "" {
		out = append(out, Insight{Kind: InsightWeatherEvent, Severity: SeverityInfo, Round: last.Number})
	}
	if res.Events.Vermin != "" {
		out = append(out, Insight{Kind: InsightVerminEvent, Severity: SeverityWarning, Round: last.Number})
	}

	if len(resolved) < 2 {
		return out
	}
	prev := resolved[len(resolved)-2]

	if cur, ok := AverageSoil(last.ParcelsSnapshot); ok {
		if before, ok := AverageSoil(prev.ParcelsSnapshot); ok && before-cur >= t.SoilDeclineDelta {
			out = append(out, Insight{Kind: InsightSoilDeclining, Severity: SeverityWarning, Round: last.Number, Value: cur - before})
		}
	}
	if cur, ok := AverageNutrition(last.ParcelsSnapshot); ok {
		if before, ok := AverageNutrition(prev.ParcelsSnapshot); ok && before-cur >= t.NutritionDeclineDelta {
			out = append(out, Insight{Kind: InsightNutritionDeclining, Severity: SeverityWarning, Round: last.Number, Value: cur - before})
		}
	}
	if p := prev.Result.Profit; p > 0 && res.Profit > p*(1+t.ProfitGrowthRatio) {
		out = append(out, Insight{Kind: InsightProfitGrowth, Severity: SeverityInfo, Round: last.Number, Value: res.Profit - p})
	}
	return out
}

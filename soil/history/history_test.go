package history

import (
	"os"
	"path/filepath"
	"testing"

	"soilgate/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parcels(soil, nutrition float64) []models.Parcel {
	out := make([]models.Parcel, 4)
	for i := range out {
		out[i] = models.Parcel{Index: i, Soil: soil, Nutrition: nutrition}
	}
	return out
}

func resolvedRound(n int, profit, capital, soil, nutrition float64) models.Round {
	return models.Round{
		Number:          n,
		ParcelsSnapshot: parcels(soil, nutrition),
		Result: &models.RoundResult{
			Profit:   profit,
			Capital:  capital,
			Income:   profit + 500,
			Expenses: models.Expenses{Items: map[string]float64{"seed": 300, "machines": 200}, Total: 500},
		},
	}
}

func TestRoundsBoundedByCurrentRound(t *testing.T) {
	p := models.PlayerState{
		CurrentRound: 1,
		History: []models.Round{
			resolvedRound(0, 100, 1100, 80, 70),
			{Number: 1},
			{Number: 2},
		},
	}
	rounds := Rounds(p)
	require.Len(t, rounds, 2)
	assert.Len(t, Resolved(rounds), 1)

	rounds[0].Result.Capital = 0
	assert.Equal(t, 1100.0, p.History[0].Result.Capital)
}

func TestFinance(t *testing.T) {
	rounds := []models.Round{
		resolvedRound(0, 100, 1100, 80, 70),
		resolvedRound(1, -50, 1050, 80, 70),
		{Number: 2},
	}
	s := Finance(rounds)
	require.Len(t, s.Rows, 2)
	assert.Equal(t, 50.0, s.TotalProfit)
	assert.Equal(t, 1000.0, s.TotalExpenses)
	assert.Equal(t, 1050.0, s.TotalIncome)
	assert.Equal(t, 1050.0, s.Capital)
	assert.Equal(t, 300.0, s.Rows[1].Items["seed"])
}

func TestAverages(t *testing.T) {
	_, ok := AverageSoil(nil)
	assert.False(t, ok)

	avg, ok := AverageSoil([]models.Parcel{{Soil: 150}, {Soil: 50}})
	require.True(t, ok)
	assert.Equal(t, 75.0, avg)

	avg, ok = AverageNutrition([]models.Parcel{{Nutrition: -10}, {Nutrition: 30}})
	require.True(t, ok)
	assert.Equal(t, 15.0, avg)
}

func kinds(in []Insight) []InsightKind {
	out := make([]InsightKind, 0, len(in))
	for _, i := range in {
		out = append(out, i.Kind)
	}
	return out
}

func TestInsights(t *testing.T) {
	th := DefaultThresholds()

	t.Run("no resolved rounds", func(t *testing.T) {
		assert.Empty(t, Insights([]models.Round{{Number: 0}}, th))
	})

	t.Run("single round loss and events", func(t *testing.T) {
		r := resolvedRound(0, -6000, 4000, 80, 70)
		r.Result.Events = models.RoundEvents{Weather: "Drought", Vermin: "Aphids"}
		got := Insights([]models.Round{r}, th)
		assert.Equal(t, []InsightKind{InsightHighLoss, InsightWeatherEvent, InsightVerminEvent}, kinds(got))
		assert.Equal(t, SeverityWarning, got[0].Severity)
	})

	t.Run("critical loss", func(t *testing.T) {
		got := Insights([]models.Round{resolvedRound(0, -25000, 0, 80, 70)}, th)
		require.Len(t, got, 1)
		assert.Equal(t, SeverityCritical, got[0].Severity)
	})

	t.Run("declining soil and nutrition", func(t *testing.T) {
		got := Insights([]models.Round{
			resolvedRound(0, 100, 1100, 80, 70),
			resolvedRound(1, 100, 1200, 75, 60),
		}, th)
		assert.Equal(t, []InsightKind{InsightSoilDeclining, InsightNutritionDeclining}, kinds(got))
		assert.Equal(t, -5.0, got[0].Value)
		assert.Equal(t, 1, got[0].Round)
	})

	t.Run("profit growth", func(t *testing.T) {
		got := Insights([]models.Round{
			resolvedRound(0, 1000, 2000, 80, 70),
			resolvedRound(1, 1500, 3500, 80, 70),
			{Number: 2},
		}, th)
		assert.Equal(t, []InsightKind{InsightProfitGrowth}, kinds(got))
		assert.Equal(t, 500.0, got[0].Value)
	})
}

func TestLoadThresholds(t *testing.T) {
	t.Run("empty path uses defaults", func(t *testing.T) {
		th, err := LoadThresholds("")
		require.NoError(t, err)
		assert.Equal(t, DefaultThresholds(), th)
	})

	t.Run("partial file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "insights.yaml")
		require.NoError(t, os.WriteFile(path, []byte("high_loss_profit: -1000\nprofit_growth_ratio: 0.5\n"), 0o600))

		th, err := LoadThresholds(path)
		require.NoError(t, err)
		assert.Equal(t, -1000.0, th.HighLossProfit)
		assert.Equal(t, 0.5, th.ProfitGrowthRatio)
		assert.Equal(t, DefaultCriticalLossProfit, th.CriticalLossProfit)
		assert.Equal(t, DefaultSoilDeclineDelta, th.SoilDeclineDelta)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadThresholds(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("high_loss_profit: [1, 2"), 0o600))
		_, err := LoadThresholds(path)
		assert.Error(t, err)
	})
}

package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	assert.Equal(t, RolePlayer, ParseRole("PLAYER"))
	assert.Equal(t, RoleSuperuser, ParseRole("SUPERUSER"))
	assert.Equal(t, RoleAnonymous, ParseRole("player"))
	assert.Equal(t, RoleAnonymous, ParseRole(""))
}

func TestDecisionValidate(t *testing.T) {
	assert.NoError(t, Decision{}.Validate())

	var verr *ValidationError
	bad := []Decision{
		{Parcels: map[int]CropType{-1: CropWheat}},
		{Parcels: map[int]CropType{0: "Tobacco"}},
		{Machines: -1},
		{PriceFixing: map[CropType]bool{"Tobacco": true}},
	}
	for _, d := range bad {
		assert.True(t, errors.As(d.Validate(), &verr), "%+v", d)
	}
}

func TestPlayerStateCloneIsDeep(t *testing.T) {
	y := 3.5
	on := true
	p := PlayerState{
		Capital: 1000,
		History: []Round{{
			Number:          0,
			ParcelsSnapshot: []Parcel{{Index: 0, Yield: &y}},
			Decision:        Decision{Parcels: map[int]CropType{0: CropRye}, Fertilizer: &on},
			Result:          &RoundResult{Capital: 1000, HarvestSummary: map[CropType]float64{CropRye: 2}},
		}},
	}

	c := p.Clone()
	*c.History[0].ParcelsSnapshot[0].Yield = 0
	c.History[0].Decision.Parcels[0] = CropCorn
	*c.History[0].Decision.Fertilizer = false
	c.History[0].Result.HarvestSummary[CropRye] = 0

	assert.Equal(t, 3.5, *p.History[0].ParcelsSnapshot[0].Yield)
	assert.Equal(t, CropRye, p.History[0].Decision.Parcels[0])
	assert.True(t, *p.History[0].Decision.Fertilizer)
	assert.Equal(t, 2.0, p.History[0].Result.HarvestSummary[CropRye])

	last, ok := p.LastRound()
	require.True(t, ok)
	assert.True(t, last.Resolved())
	_, ok = PlayerState{}.LastRound()
	assert.False(t, ok)
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")
	assert.ErrorIs(t, &FetchError{GameID: "g", Err: cause}, cause)
	assert.ErrorIs(t, &SubmissionError{GameID: "g", Round: 1, Attempts: 3, Err: cause}, cause)
	assert.ErrorIs(t, &AuthError{Reason: "x", Err: cause}, cause)
	assert.Equal(t, "auth: expired", (&AuthError{Reason: "expired"}).Error())
}

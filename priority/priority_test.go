package priority

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromBandRoundTrip(t *testing.T) {
	tests := []struct {
		band Band
		rank Rank
	}{
		{BandUnimportant, RankUnimportant},
		{BandLow, RankLow},
		{BandMedium, RankMedium},
		{BandHigh, RankHigh},
		{BandCritical, RankCritical},
	}

	for _, tt := range tests {
		t.Run(tt.band.String(), func(t *testing.T) {
			p := FromBand(tt.band)
			assert.Equal(t, tt.rank, p.Rank())
			assert.Equal(t, tt.band, p.Band())
		})
	}
}

func TestFromRankRoundTrip(t *testing.T) {
	for r := 0; r <= 255; r++ {
		p := FromRank(Rank(r))
		assert.Equal(t, Rank(r), p.Rank())
	}
}

func TestCustomBand(t *testing.T) {
	p := FromRank(100)
	assert.Equal(t, BandCustom, p.Band())
}

func TestIncreaseSaturatesAtCritical(t *testing.T) {
	p := FromBand(BandCritical)
	changed := p.Increase()
	assert.False(t, changed)
	assert.Equal(t, RankCritical, p.Rank())
}

func TestDecreaseSaturatesAtUnimportant(t *testing.T) {
	p := FromBand(BandUnimportant)
	changed := p.Decrease()
	assert.False(t, changed)
	assert.Equal(t, RankUnimportant, p.Rank())
}

func TestIncreaseWalksBands(t *testing.T) {
	p := FromBand(BandLow)

	assert.True(t, p.Increase())
	assert.Equal(t, BandMedium, p.Band())

	assert.True(t, p.Increase())
	assert.Equal(t, BandHigh, p.Band())

	assert.True(t, p.Increase())
	assert.Equal(t, BandCritical, p.Band())

	assert.False(t, p.Increase())
	assert.Equal(t, BandCritical, p.Band())
}

func TestDecreaseWalksBands(t *testing.T) {
	p := FromBand(BandCritical)

	assert.True(t, p.Decrease())
	assert.Equal(t, BandHigh, p.Band())

	assert.True(t, p.Decrease())
	assert.Equal(t, BandMedium, p.Band())

	assert.True(t, p.Decrease())
	assert.Equal(t, BandLow, p.Band())

	assert.True(t, p.Decrease())
	assert.Equal(t, BandUnimportant, p.Band())

	assert.False(t, p.Decrease())
}

func TestIncreaseFromCustomRank(t *testing.T) {
	p := FromRank(100) // between low and medium
	assert.True(t, p.Increase())
	assert.Equal(t, RankMedium, p.Rank())
}

func TestDecreaseFromCustomRank(t *testing.T) {
	p := FromRank(200) // between high and critical
	assert.True(t, p.Decrease())
	assert.Equal(t, RankHigh, p.Rank())
}

func TestCompareAndLess(t *testing.T) {
	low := FromBand(BandLow)
	high := FromBand(BandHigh)

	assert.Equal(t, -1, low.Compare(high))
	assert.Equal(t, 1, high.Compare(low))
	assert.Equal(t, 0, low.Compare(low))
	assert.True(t, low.Less(high))
	assert.False(t, high.Less(low))
}

func TestString(t *testing.T) {
	p := FromBand(BandHigh)
	assert.Equal(t, "high(192)", p.String())
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func rarityPtr(r Rarity) *Rarity { return &r }

func TestComputeRank(t *testing.T) {
	tests := []struct {
		name     string
		counts   map[Rarity]int
		previous *Rarity
		want     *Rarity
	}{
		{"no votes", map[Rarity]int{}, rarityPtr(RarityEpic), nil},
		{"single vote", map[Rarity]int{RarityRare: 1}, nil, rarityPtr(RarityRare)},
		{"plurality", map[Rarity]int{RarityRare: 2, RarityEpic: 1}, nil, rarityPtr(RarityRare)},
		{"tie keeps previous", map[Rarity]int{RarityRare: 1, RarityEpic: 1}, rarityPtr(RarityRare), rarityPtr(RarityRare)},
		{"tie keeps previous outside tie", map[Rarity]int{RarityRare: 1, RarityEpic: 1}, rarityPtr(RarityLegendary), rarityPtr(RarityLegendary)},
		{"tie with no previous", map[Rarity]int{RarityRare: 1, RarityEpic: 1}, nil, nil},
		{"higher count breaks earlier tie", map[Rarity]int{RarityCommon: 1, RarityUncommon: 1, RarityLegendary: 2}, nil, rarityPtr(RarityLegendary)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeRank(tt.counts, tt.previous))
		})
	}
}

func TestNextVote(t *testing.T) {
	assert.Nil(t, NextVote(rarityPtr(RarityRare), nil))
	assert.Nil(t, NextVote(rarityPtr(RarityRare), rarityPtr(RarityRare)))
	assert.Equal(t, rarityPtr(RarityEpic), NextVote(rarityPtr(RarityRare), rarityPtr(RarityEpic)))
	assert.Equal(t, rarityPtr(RarityEpic), NextVote(nil, rarityPtr(RarityEpic)))
}

func TestParseRarity(t *testing.T) {
	r, ok := ParseRarity("legendary")
	assert.True(t, ok)
	assert.Equal(t, RarityLegendary, r)

	_, ok = ParseRarity("Legendary")
	assert.False(t, ok)
}

package domain

import "time"

// Rarity is a community-voted tier.
type Rarity string

// Tiers, lowest first.
const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// RarityTiers lists every tier in ascending order.
var RarityTiers = []Rarity{RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary}

// ParseRarity validates a tier name.
func ParseRarity(s string) (Rarity, bool) {
	for _, r := range RarityTiers {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// Vote is one user's current choice on one quote.
type Vote struct {
	QuoteID string    `json:"quote_id"`
	UserID  string    `json:"user_id"`
	Rarity  Rarity    `json:"rarity"`
	CastAt  time.Time `json:"cast_at"`
}

// Voter names who cast a vote.
type Voter struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RankTally is the vote count for one tier.
type RankTally struct {
	Rarity Rarity  `json:"rarity"`
	Count  int     `json:"count"`
	Voters []Voter `json:"voters"`
}

// NextVote applies toggle semantics: choosing nil or the current tier clears
// the vote, anything else replaces it.
func NextVote(current, choice *Rarity) *Rarity {
	if choice == nil {
		return nil
	}
	if current != nil && *current == *choice {
		return nil
	}
	c := *choice
	return &c
}

// ComputeRank returns the tier with a strict plurality of votes. With no
// votes the rank is nil. When the top count is shared the previous rank is
// kept unchanged.
func ComputeRank(counts map[Rarity]int, previous *Rarity) *Rarity {
	var (
		best  Rarity
		top   int
		tied  bool
		total int
	)
	for _, tier := range RarityTiers {
		n := counts[tier]
		total += n
		switch {
		case n > top:
			best, top, tied = tier, n, false
		case n == top && n > 0:
			tied = true
		}
	}
	if total == 0 {
		return nil
	}
	if tied {
		return previous
	}
	return &best
}

// VoteOutcome is the result of casting a vote.
type VoteOutcome struct {
	MyVote  *Rarity     `json:"my_vote"`
	Rank    *Rarity     `json:"rank"`
	Tallies []RankTally `json:"rank_votes"`
}

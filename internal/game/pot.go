package game

import "sort"

// Pot is the main pot or a side pot. Eligible holds the positions of the
// seats that can win it.
type Pot struct {
	Amount   int   `json:"amount"`
	Eligible []int `json:"eligible"`
}

// BuildPots splits everything committed this hand into a main pot and side
// pots. Each distinct contribution level among non-folded seats closes a pot
// that only seats contributing at least that much can win. Chips folded seats
// put in above the highest level go to the last pot.
func BuildPots(seats []*Seat) []Pot {
	levelSet := make(map[int]bool)
	for _, s := range seats {
		if !s.Folded && s.TotalBet > 0 {
			levelSet[s.TotalBet] = true
		}
	}
	if len(levelSet) == 0 {
		return nil
	}
	levels := make([]int, 0, len(levelSet))
	for l := range levelSet {
		levels = append(levels, l)
	}
	sort.Ints(levels)

	var pots []Pot
	prev := 0
	for i, level := range levels {
		var pot Pot
		for pos, s := range seats {
			pot.Amount += min(s.TotalBet, level) - min(s.TotalBet, prev)
			if i == len(levels)-1 && s.TotalBet > level {
				pot.Amount += s.TotalBet - level
			}
			if !s.Folded && s.TotalBet >= level {
				pot.Eligible = append(pot.Eligible, pos)
			}
		}
		if pot.Amount > 0 {
			pots = append(pots, pot)
		}
		prev = level
	}
	return pots
}

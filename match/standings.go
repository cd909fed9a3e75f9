package match

import "sort"

// Standing is one player's accumulated result over the completed rounds.
type Standing struct {
	PlayerID    PlayerID `json:"player_id"`
	TotalPoints int      `json:"total_points"`
	RoundsWon   int      `json:"rounds_won"`
	WeightSum   int      `json:"weight_sum"`
}

// Standings orders players by total points, then rounds won, then the same
// fallback as round ties: cumulative face weight, then lowest player id.
// Only COMPLETE rounds count.
func Standings(st *MatchState) []Standing {
	idx := make(map[PlayerID]int, len(st.Players))
	out := make([]Standing, len(st.Players))
	for i, p := range st.Players {
		idx[p] = i
		out[i].PlayerID = p
	}
	for _, r := range st.Rounds {
		if r.Phase != PhaseComplete {
			continue
		}
		for _, p := range r.TurnOrder {
			i, ok := idx[p]
			t := r.Turns[p]
			if !ok || t == nil {
				continue
			}
			out[i].TotalPoints += t.Score
			out[i].WeightSum += t.Hand.WeightSum()
		}
		if i, ok := idx[r.WinnerID]; ok {
			out[i].RoundsWon++
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return standingBeats(out[i], out[j]) })
	return out
}

func standingBeats(a, b Standing) bool {
	if a.TotalPoints != b.TotalPoints {
		return a.TotalPoints > b.TotalPoints
	}
	if a.RoundsWon != b.RoundsWon {
		return a.RoundsWon > b.RoundsWon
	}
	return beats(0, a.WeightSum, a.PlayerID, 0, b.WeightSum, b.PlayerID)
}

// ComputeGameWinner requires every one of TotalRounds rounds to be COMPLETE.
func ComputeGameWinner(st *MatchState) (Standing, error) {
	if len(st.Rounds) != st.TotalRounds {
		return Standing{}, ErrInvalidState("not every round has been played")
	}
	for _, r := range st.Rounds {
		if r.Phase != PhaseComplete {
			return Standing{}, ErrInvalidState("round not complete")
		}
	}
	all := Standings(st)
	if len(all) == 0 {
		return Standing{}, ErrInvalidState("no players")
	}
	return all[0], nil
}

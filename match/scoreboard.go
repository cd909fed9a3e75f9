package match

import "sort"

type ScoreEntry struct {
	PlayerID PlayerID `json:"player_id"`
	Points   int      `json:"points"`
	Weight   int      `json:"weight"`
}

// Scoreboard is an ordered read-model over (player, points). It is always
// rebuilt from RoundState/MatchState and never consulted as a source of truth.
type Scoreboard struct {
	entries []ScoreEntry
}

func NewScoreboard() *Scoreboard { return &Scoreboard{} }

func (s *Scoreboard) InsertOrUpdate(p PlayerID, points, weight int) {
	for i := range s.entries {
		if s.entries[i].PlayerID == p {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	e := ScoreEntry{PlayerID: p, Points: points, Weight: weight}
	i := sort.Search(len(s.entries), func(i int) bool { return entryBeats(e, s.entries[i]) })
	s.entries = append(s.entries, ScoreEntry{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = e
}

func (s *Scoreboard) TopN(n int) []ScoreEntry {
	if n <= 0 {
		return nil
	}
	if n > len(s.entries) {
		n = len(s.entries)
	}
	return append([]ScoreEntry(nil), s.entries[:n]...)
}

// RankOf returns the 1-based position of p.
func (s *Scoreboard) RankOf(p PlayerID) (int, bool) {
	for i, e := range s.entries {
		if e.PlayerID == p {
			return i + 1, true
		}
	}
	return 0, false
}

func (s *Scoreboard) Len() int { return len(s.entries) }

func (s *Scoreboard) Entries() []ScoreEntry { return s.TopN(len(s.entries)) }

func entryBeats(a, b ScoreEntry) bool {
	return beats(a.Points, a.Weight, a.PlayerID, b.Points, b.Weight, b.PlayerID)
}

// RoundScoreboard ranks the locked-in scores of one round. Players still to
// finish are listed with zero points.
func RoundScoreboard(r *RoundState) *Scoreboard {
	sb := NewScoreboard()
	if r == nil {
		return sb
	}
	for _, p := range r.TurnOrder {
		t := r.Turns[p]
		if t == nil || !t.Finished {
			sb.InsertOrUpdate(p, 0, 0)
			continue
		}
		sb.InsertOrUpdate(p, t.Score, t.Hand.WeightSum())
	}
	return sb
}

// MatchScoreboard accumulates finished turns across every round so far.
func MatchScoreboard(st *MatchState) *Scoreboard {
	points := make(map[PlayerID]int, len(st.Players))
	weight := make(map[PlayerID]int, len(st.Players))
	for _, r := range st.Rounds {
		for _, p := range r.TurnOrder {
			if t := r.Turns[p]; t != nil && t.Finished {
				points[p] += t.Score
				weight[p] += t.Hand.WeightSum()
			}
		}
	}
	sb := NewScoreboard()
	for _, p := range st.Players {
		sb.InsertOrUpdate(p, points[p], weight[p])
	}
	return sb
}

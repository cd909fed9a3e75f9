package match

import "fmt"

// Snapshot returns a deep copy of the match state. Callers can read it freely
// without holding the match lock.
func (m *Match) Snapshot() *MatchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

func (m *Match) RoundScoreboard() *Scoreboard {
	m.mu.Lock()
	defer m.mu.Unlock()
	return RoundScoreboard(m.state.CurrentRound())
}

func (m *Match) MatchScoreboard() *Scoreboard {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MatchScoreboard(m.state)
}

func (s *MatchState) Clone() *MatchState {
	if s == nil {
		return nil
	}
	out := *s
	out.Players = append([]PlayerID(nil), s.Players...)
	out.Rounds = make([]*RoundState, 0, len(s.Rounds))
	for _, r := range s.Rounds {
		out.Rounds = append(out.Rounds, r.clone())
	}
	out.Departed = make(map[PlayerID]bool, len(s.Departed))
	for p, v := range s.Departed {
		if v {
			out.Departed[p] = true
		}
	}
	return &out
}

func validateState(st *MatchState) error {
	if st == nil {
		return fmt.Errorf("nil match state")
	}
	if st.ID == "" {
		return fmt.Errorf("match state has no id")
	}
	if len(st.Players) < 2 || st.TotalRounds < 1 {
		return fmt.Errorf("match %s: bad shape players=%d rounds=%d", st.ID, len(st.Players), st.TotalRounds)
	}
	if st.Status != StatusActive && st.Status != StatusFinished {
		return fmt.Errorf("match %s: unknown status %d", st.ID, st.Status)
	}
	if len(st.Rounds) > st.TotalRounds {
		return fmt.Errorf("match %s: %d rounds recorded, only %d allowed", st.ID, len(st.Rounds), st.TotalRounds)
	}
	for i, r := range st.Rounds {
		if r == nil {
			return fmt.Errorf("match %s: round %d missing", st.ID, i+1)
		}
		if r.Number != i+1 {
			return fmt.Errorf("match %s: round %d numbered %d", st.ID, i+1, r.Number)
		}
		if i < len(st.Rounds)-1 && r.Phase != PhaseComplete {
			return fmt.Errorf("match %s: round %d not complete but a later round exists", st.ID, r.Number)
		}
		if len(r.TurnOrder) != len(st.Players) || len(r.Turns) != len(st.Players) {
			return fmt.Errorf("match %s: round %d turn count mismatch", st.ID, r.Number)
		}
		for _, p := range r.TurnOrder {
			t := r.Turns[p]
			if t == nil || t.PlayerID != p {
				return fmt.Errorf("match %s: round %d missing turn for player %d", st.ID, r.Number, p)
			}
		}
	}
	return nil
}

package match

import (
	"pokerdice/dice"
)

// startRound seats every player in the supplied order and deals each a fresh
// hand. The round leaves AWAITING_TURN_ORDER as soon as the order is set.
func startRound(number int, seating []PlayerID, roller *dice.Roller) *RoundState {
	r := &RoundState{
		Number: number,
		Phase:  PhaseAwaitingTurnOrder,
		Turns:  make(map[PlayerID]*TurnState, len(seating)),
	}
	r.TurnOrder = append([]PlayerID(nil), seating...)
	for _, p := range r.TurnOrder {
		r.Turns[p] = &TurnState{PlayerID: p, Hand: roller.Fresh()}
	}
	r.Phase = PhaseInProgress
	return r
}

// CurrentPlayer is the first unfinished player in turn order.
func (r *RoundState) CurrentPlayer() (PlayerID, bool) {
	if r.Phase != PhaseInProgress {
		return 0, false
	}
	for _, p := range r.TurnOrder {
		if t := r.Turns[p]; t != nil && !t.Finished {
			return p, true
		}
	}
	return 0, false
}

// ownTurn runs the ownership checks shared by every player action.
func (r *RoundState) ownTurn(p PlayerID) (*TurnState, error) {
	t, ok := r.Turns[p]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Finished {
		return nil, ErrTurnAlreadyFinished
	}
	if r.Phase != PhaseInProgress {
		return nil, ErrInvalidState("round " + r.Phase.String())
	}
	cur, ok := r.CurrentPlayer()
	if !ok || cur != p {
		return nil, ErrNotYourTurn
	}
	return t, nil
}

func (r *RoundState) Roll(roller *dice.Roller, p PlayerID, held []int, maxRolls int) (*TurnState, error) {
	t, err := r.ownTurn(p)
	if err != nil {
		return nil, err
	}
	if t.RollCount >= maxRolls {
		return nil, ErrRollLimitExceeded
	}
	next, err := roller.Roll(t.Hand, held)
	if err != nil {
		return nil, ErrInvalidRequest
	}
	t.Hand = next
	t.RollCount++
	return t, nil
}

// Hold marks the held set without rolling. It does not spend a roll.
func (r *RoundState) Hold(p PlayerID, held []int) (*TurnState, error) {
	t, err := r.ownTurn(p)
	if err != nil {
		return nil, err
	}
	next, err := t.Hand.WithHeld(held)
	if err != nil {
		return nil, ErrInvalidRequest
	}
	t.Hand = next
	return t, nil
}

func (r *RoundState) FinishTurn(p PlayerID) (*TurnState, error) {
	t, err := r.ownTurn(p)
	if err != nil {
		return nil, err
	}
	r.finishLocked(t, false)
	return t, nil
}

// ForceFinish closes p's turn with the hand as-is, regardless of whose turn
// it is. Returns false if there was nothing to finish.
func (r *RoundState) ForceFinish(p PlayerID) (*TurnState, bool) {
	if r.Phase != PhaseInProgress {
		return nil, false
	}
	t, ok := r.Turns[p]
	if !ok || t.Finished {
		return nil, false
	}
	r.finishLocked(t, true)
	return t, true
}

func (r *RoundState) finishLocked(t *TurnState, forced bool) {
	t.Rank = dice.Evaluate(t.Hand)
	t.Score = t.Rank.Score()
	t.Finished = true
	t.Forced = forced
	if r.allFinished() {
		r.Phase = PhaseResolving
	}
}

func (r *RoundState) allFinished() bool {
	for _, p := range r.TurnOrder {
		if t := r.Turns[p]; t == nil || !t.Finished {
			return false
		}
	}
	return true
}

// Leader picks the best finished turn: score, then face-weight sum, then the
// lowest player id.
func (r *RoundState) Leader() (PlayerID, bool) {
	var best *TurnState
	for _, p := range r.TurnOrder {
		t := r.Turns[p]
		if t == nil || !t.Finished {
			continue
		}
		if best == nil || beats(t.Score, t.Hand.WeightSum(), t.PlayerID, best.Score, best.Hand.WeightSum(), best.PlayerID) {
			best = t
		}
	}
	if best == nil {
		return 0, false
	}
	return best.PlayerID, true
}

// ResolveWinner picks the round winner and completes the round. reward runs
// at most once per round; if it fails the round stays RESOLVING with no
// winner recorded so the call can be retried.
func (r *RoundState) ResolveWinner(reward func(winner PlayerID) error) (PlayerID, error) {
	switch r.Phase {
	case PhaseComplete:
		return r.WinnerID, nil
	case PhaseResolving:
	default:
		return 0, ErrInvalidState("round " + r.Phase.String())
	}

	winner, ok := r.Leader()
	if !ok {
		return 0, ErrInvalidState("round has no finished turns")
	}
	if !r.RewardPaid && reward != nil {
		if err := reward(winner); err != nil {
			return 0, err
		}
	}
	r.RewardPaid = true
	r.WinnerID = winner
	r.Phase = PhaseComplete
	return winner, nil
}

func beats(score, weight int, id PlayerID, otherScore, otherWeight int, otherID PlayerID) bool {
	if score != otherScore {
		return score > otherScore
	}
	if weight != otherWeight {
		return weight > otherWeight
	}
	return id < otherID
}

func (r *RoundState) clone() *RoundState {
	if r == nil {
		return nil
	}
	out := *r
	out.TurnOrder = append([]PlayerID(nil), r.TurnOrder...)
	out.Turns = make(map[PlayerID]*TurnState, len(r.Turns))
	for id, t := range r.Turns {
		tc := *t
		out.Turns[id] = &tc
	}
	return &out
}

package match

import (
	"time"

	"pokerdice/dice"
)

type EventType string

const (
	EventRoundStarted       EventType = "round_started"
	EventDiceRolled         EventType = "dice_rolled"
	EventPlayerFinishedTurn EventType = "player_finished_turn"
	EventRoundEnded         EventType = "round_ended"
	EventGameEnded          EventType = "game_ended"
)

// Event is emitted for every state transition. Seq is per match and strictly
// increasing, so a consumer can detect gaps after a reconnect.
type Event struct {
	Seq     uint64    `json:"seq"`
	MatchID string    `json:"match_id"`
	Type    EventType `json:"type"`
	Round   int       `json:"round,omitempty"`

	PlayerID  PlayerID      `json:"player_id,omitempty"`
	TurnOrder []PlayerID    `json:"turn_order,omitempty"`
	Hand      *dice.Hand    `json:"hand,omitempty"`
	RollCount int           `json:"roll_count,omitempty"`
	Forced    bool          `json:"forced,omitempty"`
	Score     int           `json:"score"`
	HandRank  dice.HandRank `json:"hand_rank"`

	WinnerID    PlayerID `json:"winner_id,omitempty"`
	TotalPoints int      `json:"total_points,omitempty"`
	RoundsWon   int      `json:"rounds_won,omitempty"`

	At time.Time `json:"at"`
}

func (m *Match) emitLocked(ev Event) Event {
	m.state.EventSeq++
	ev.Seq = m.state.EventSeq
	ev.MatchID = m.state.ID
	ev.At = m.now()
	return ev
}

func (m *Match) turnEventLocked(typ EventType, round int, t *TurnState) Event {
	h := t.Hand
	ev := Event{
		Type:      typ,
		Round:     round,
		PlayerID:  t.PlayerID,
		Hand:      &h,
		RollCount: t.RollCount,
		Forced:    t.Forced,
	}
	if t.Finished {
		ev.Score = t.Score
		ev.HandRank = t.Rank
	}
	return m.emitLocked(ev)
}

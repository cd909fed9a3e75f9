package match

import (
	"fmt"
	"time"

	"pokerdice/dice"
)

// PlayerID 0 is never a seated player.
type PlayerID uint64

type Status byte

const (
	StatusActive Status = iota + 1
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusFinished:
		return "FINISHED"
	}
	return fmt.Sprintf("Status(%d)", byte(s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "ACTIVE":
		*s = StatusActive
	case "FINISHED":
		*s = StatusFinished
	default:
		return fmt.Errorf("unknown status %q", string(b))
	}
	return nil
}

// RoundPhase AWAITING_TURN_ORDER -> IN_PROGRESS -> RESOLVING -> COMPLETE
type RoundPhase byte

const (
	PhaseAwaitingTurnOrder RoundPhase = iota
	PhaseInProgress
	PhaseResolving
	PhaseComplete
)

var roundPhaseNames = map[RoundPhase]string{
	PhaseAwaitingTurnOrder: "AWAITING_TURN_ORDER",
	PhaseInProgress:        "IN_PROGRESS",
	PhaseResolving:         "RESOLVING",
	PhaseComplete:          "COMPLETE",
}

func (p RoundPhase) String() string {
	if name, ok := roundPhaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("RoundPhase(%d)", byte(p))
}

func (p RoundPhase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *RoundPhase) UnmarshalText(b []byte) error {
	for phase, name := range roundPhaseNames {
		if name == string(b) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown round phase %q", string(b))
}

// TurnState is one player's turn within one round.
type TurnState struct {
	PlayerID  PlayerID  `json:"player_id"`
	Hand      dice.Hand `json:"hand"`
	RollCount int       `json:"roll_count"`
	Finished  bool      `json:"finished"`
	// Forced is set when the turn was closed by a departure or a timeout.
	Forced bool `json:"forced"`
	// Score and Rank are only meaningful once Finished.
	Score int           `json:"score"`
	Rank  dice.HandRank `json:"rank"`
}

type RoundState struct {
	Number     int                     `json:"number"`
	Phase      RoundPhase              `json:"phase"`
	TurnOrder  []PlayerID              `json:"turn_order"`
	Turns      map[PlayerID]*TurnState `json:"turns"`
	WinnerID   PlayerID                `json:"winner_id"`
	RewardPaid bool                    `json:"reward_paid"`
}

type MatchState struct {
	ID          string `json:"id"`
	TotalRounds int    `json:"total_rounds"`
	// Seating order; also the turn order of every round.
	Players []PlayerID    `json:"players"`
	Rounds  []*RoundState `json:"rounds"`
	Status  Status        `json:"status"`

	WinnerID  PlayerID          `json:"winner_id"`
	EntryPaid bool              `json:"entry_paid"`
	Settled   bool              `json:"settled"`
	Departed  map[PlayerID]bool `json:"departed"`

	EventSeq  uint64    `json:"event_seq"`
	Version   uint64    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CurrentRound returns the most recently started round, or nil.
func (s *MatchState) CurrentRound() *RoundState {
	if len(s.Rounds) == 0 {
		return nil
	}
	return s.Rounds[len(s.Rounds)-1]
}

func (s *MatchState) Seated(p PlayerID) bool {
	for _, id := range s.Players {
		if id == p {
			return true
		}
	}
	return false
}

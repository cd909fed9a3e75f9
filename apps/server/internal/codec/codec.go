package codec

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"pokerdice/dice"
	"pokerdice/match"
)

// Wire layout, protobuf compatible:
//
//	message Match {
//	  string id = 1;            uint32 total_rounds = 2;
//	  repeated uint64 players = 3 [packed];
//	  repeated Round rounds = 4; uint32 status = 5;
//	  uint64 winner_id = 6;     bool entry_paid = 7;   bool settled = 8;
//	  repeated uint64 departed = 9 [packed];
//	  uint64 event_seq = 10;    uint64 version = 11;
//	  int64 created_at_ns = 12; int64 updated_at_ns = 13;
//	}
//	message Round {
//	  uint32 number = 1; uint32 phase = 2; repeated uint64 turn_order = 3 [packed];
//	  repeated Turn turns = 4; uint64 winner_id = 5; bool reward_paid = 6;
//	}
//	message Turn {
//	  uint64 player_id = 1; bytes faces = 2; uint32 held_mask = 3; uint32 roll_count = 4;
//	  bool finished = 5; bool forced = 6; uint32 score = 7; uint32 rank = 8;
//	}
const (
	fMatchID          protowire.Number = 1
	fMatchTotalRounds protowire.Number = 2
	fMatchPlayers     protowire.Number = 3
	fMatchRounds      protowire.Number = 4
	fMatchStatus      protowire.Number = 5
	fMatchWinner      protowire.Number = 6
	fMatchEntryPaid   protowire.Number = 7
	fMatchSettled     protowire.Number = 8
	fMatchDeparted    protowire.Number = 9
	fMatchEventSeq    protowire.Number = 10
	fMatchVersion     protowire.Number = 11
	fMatchCreatedAt   protowire.Number = 12
	fMatchUpdatedAt   protowire.Number = 13

	fRoundNumber     protowire.Number = 1
	fRoundPhase      protowire.Number = 2
	fRoundTurnOrder  protowire.Number = 3
	fRoundTurns      protowire.Number = 4
	fRoundWinner     protowire.Number = 5
	fRoundRewardPaid protowire.Number = 6

	fTurnPlayer   protowire.Number = 1
	fTurnFaces    protowire.Number = 2
	fTurnHeld     protowire.Number = 3
	fTurnRolls    protowire.Number = 4
	fTurnFinished protowire.Number = 5
	fTurnForced   protowire.Number = 6
	fTurnScore    protowire.Number = 7
	fTurnRank     protowire.Number = 8
)

var ErrMalformed = errors.New("malformed match snapshot")

// EncodeMatch serializes a match state. Departed players are written in
// seating order so the encoding is deterministic.
func EncodeMatch(st *match.MatchState) []byte {
	var b []byte
	b = appendString(b, fMatchID, st.ID)
	b = appendVarint(b, fMatchTotalRounds, uint64(st.TotalRounds))
	b = appendPacked(b, fMatchPlayers, st.Players)
	for _, r := range st.Rounds {
		b = protowire.AppendTag(b, fMatchRounds, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeRound(r))
	}
	b = appendVarint(b, fMatchStatus, uint64(st.Status))
	b = appendVarint(b, fMatchWinner, uint64(st.WinnerID))
	b = appendBool(b, fMatchEntryPaid, st.EntryPaid)
	b = appendBool(b, fMatchSettled, st.Settled)
	var departed []match.PlayerID
	for _, p := range st.Players {
		if st.Departed[p] {
			departed = append(departed, p)
		}
	}
	b = appendPacked(b, fMatchDeparted, departed)
	b = appendVarint(b, fMatchEventSeq, st.EventSeq)
	b = appendVarint(b, fMatchVersion, st.Version)
	b = appendVarint(b, fMatchCreatedAt, uint64(timeToNanos(st.CreatedAt)))
	b = appendVarint(b, fMatchUpdatedAt, uint64(timeToNanos(st.UpdatedAt)))
	return b
}

func encodeRound(r *match.RoundState) []byte {
	var b []byte
	b = appendVarint(b, fRoundNumber, uint64(r.Number))
	b = appendVarint(b, fRoundPhase, uint64(r.Phase))
	b = appendPacked(b, fRoundTurnOrder, r.TurnOrder)
	for _, p := range r.TurnOrder {
		t := r.Turns[p]
		if t == nil {
			continue
		}
		b = protowire.AppendTag(b, fRoundTurns, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeTurn(t))
	}
	b = appendVarint(b, fRoundWinner, uint64(r.WinnerID))
	b = appendBool(b, fRoundRewardPaid, r.RewardPaid)
	return b
}

func encodeTurn(t *match.TurnState) []byte {
	faces := make([]byte, dice.HandSize)
	var held uint64
	for i, d := range t.Hand.Dice {
		faces[i] = byte(d.Face)
		if t.Hand.Held[i] {
			held |= 1 << i
		}
	}
	var b []byte
	b = appendVarint(b, fTurnPlayer, uint64(t.PlayerID))
	b = protowire.AppendTag(b, fTurnFaces, protowire.BytesType)
	b = protowire.AppendBytes(b, faces)
	b = appendVarint(b, fTurnHeld, held)
	b = appendVarint(b, fTurnRolls, uint64(t.RollCount))
	b = appendBool(b, fTurnFinished, t.Finished)
	b = appendBool(b, fTurnForced, t.Forced)
	b = appendVarint(b, fTurnScore, uint64(t.Score))
	b = appendVarint(b, fTurnRank, uint64(t.Rank))
	return b
}

func DecodeMatch(b []byte) (*match.MatchState, error) {
	st := &match.MatchState{Departed: make(map[match.PlayerID]bool)}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case fMatchID:
			st.ID = string(raw)
		case fMatchTotalRounds:
			st.TotalRounds = int(v)
		case fMatchPlayers:
			ids, err := unpack(typ, v, raw)
			if err != nil {
				return err
			}
			st.Players = append(st.Players, ids...)
		case fMatchRounds:
			r, err := decodeRound(raw)
			if err != nil {
				return err
			}
			st.Rounds = append(st.Rounds, r)
		case fMatchStatus:
			st.Status = match.Status(v)
		case fMatchWinner:
			st.WinnerID = match.PlayerID(v)
		case fMatchEntryPaid:
			st.EntryPaid = v != 0
		case fMatchSettled:
			st.Settled = v != 0
		case fMatchDeparted:
			ids, err := unpack(typ, v, raw)
			if err != nil {
				return err
			}
			for _, p := range ids {
				st.Departed[p] = true
			}
		case fMatchEventSeq:
			st.EventSeq = v
		case fMatchVersion:
			st.Version = v
		case fMatchCreatedAt:
			st.CreatedAt = nanosToTime(int64(v))
		case fMatchUpdatedAt:
			st.UpdatedAt = nanosToTime(int64(v))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if st.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	return st, nil
}

func decodeRound(b []byte) (*match.RoundState, error) {
	r := &match.RoundState{Turns: make(map[match.PlayerID]*match.TurnState)}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case fRoundNumber:
			r.Number = int(v)
		case fRoundPhase:
			r.Phase = match.RoundPhase(v)
		case fRoundTurnOrder:
			ids, err := unpack(typ, v, raw)
			if err != nil {
				return err
			}
			r.TurnOrder = append(r.TurnOrder, ids...)
		case fRoundTurns:
			t, err := decodeTurn(raw)
			if err != nil {
				return err
			}
			r.Turns[t.PlayerID] = t
		case fRoundWinner:
			r.WinnerID = match.PlayerID(v)
		case fRoundRewardPaid:
			r.RewardPaid = v != 0
		}
		return nil
	})
	return r, err
}

func decodeTurn(b []byte) (*match.TurnState, error) {
	t := &match.TurnState{}
	var held uint64
	var faces []byte
	err := walk(b, func(num protowire.Number, _ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case fTurnPlayer:
			t.PlayerID = match.PlayerID(v)
		case fTurnFaces:
			faces = raw
		case fTurnHeld:
			held = v
		case fTurnRolls:
			t.RollCount = int(v)
		case fTurnFinished:
			t.Finished = v != 0
		case fTurnForced:
			t.Forced = v != 0
		case fTurnScore:
			t.Score = int(v)
		case fTurnRank:
			t.Rank = dice.HandRank(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(faces) != dice.HandSize {
		return nil, fmt.Errorf("%w: turn %d has %d faces", ErrMalformed, t.PlayerID, len(faces))
	}
	for i, f := range faces {
		face := dice.Face(f)
		if !face.Valid() {
			return nil, fmt.Errorf("%w: turn %d die %d face %d", ErrMalformed, t.PlayerID, i, f)
		}
		t.Hand.Dice[i] = dice.Die{Index: i, Face: face}
		t.Hand.Held[i] = held&(1<<i) != 0
	}
	return t, nil
}

// walk visits every field. Varint fields arrive in v, length-delimited ones
// in raw. Unknown wire types are skipped.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		var (
			v   uint64
			raw []byte
		)
		switch typ {
		case protowire.VarintType:
			v, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			raw, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(num, typ, v, raw); err != nil {
			return err
		}
	}
	return nil
}

// unpack accepts both packed and unpacked repeated varints.
func unpack(typ protowire.Type, v uint64, raw []byte) ([]match.PlayerID, error) {
	if typ == protowire.VarintType {
		return []match.PlayerID{match.PlayerID(v)}, nil
	}
	var out []match.PlayerID
	for len(raw) > 0 {
		x, n := protowire.ConsumeVarint(raw)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		out = append(out, match.PlayerID(x))
		raw = raw[n:]
	}
	return out, nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, 1)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendPacked(b []byte, num protowire.Number, ids []match.PlayerID) []byte {
	if len(ids) == 0 {
		return b
	}
	var packed []byte
	for _, id := range ids {
		packed = protowire.AppendVarint(packed, uint64(id))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func timeToNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func nanosToTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

package match

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pokerdice/dice"
)

// alice: NINE NINE ACE KING QUEEN, keeps {0,1} and rolls TEN TEN TEN.
// bob:   ACE ACE KING QUEEN JACK.
var fullHouseVsPair = []dice.Face{
	dice.Nine, dice.Nine, dice.Ace, dice.King, dice.Queen,
	dice.Ace, dice.Ace, dice.King, dice.Queen, dice.Jack,
	dice.Ten, dice.Ten, dice.Ten,
}

func TestScenario_SingleRoundFullHouseBeatsPair(t *testing.T) {
	ctx := context.Background()
	bal := newFakeBalances(100, alice, bob)
	m := mustNew(t, scriptedConfig(fullHouseVsPair...), bal, 1, alice, bob)

	started := mustStart(t, m)
	if diff := cmp.Diff([]EventType{EventRoundStarted}, eventTypes(started)); diff != "" {
		t.Fatalf("start events (-want +got):\n%s", diff)
	}
	if started[0].Seq != 1 || !cmp.Equal(started[0].TurnOrder, []PlayerID{alice, bob}) {
		t.Fatalf("unexpected round start %+v", started[0])
	}
	if bal.balance(alice) != 90 || bal.balance(bob) != 90 {
		t.Fatalf("entry not charged: alice=%d bob=%d", bal.balance(alice), bal.balance(bob))
	}

	rolled, err := m.Roll(alice, []int{0, 1})
	if err != nil {
		t.Fatalf("Roll err: %v", err)
	}
	if got := rolled[0].Hand.Faces(); !cmp.Equal(got, []dice.Face{dice.Nine, dice.Nine, dice.Ten, dice.Ten, dice.Ten}) {
		t.Fatalf("unexpected hand after roll: %v", got)
	}
	if rolled[0].RollCount != 1 {
		t.Fatalf("expected roll count 1, got %d", rolled[0].RollCount)
	}

	if _, err := m.FinishTurn(ctx, alice); err != nil {
		t.Fatalf("alice FinishTurn err: %v", err)
	}
	events, err := m.FinishTurn(ctx, bob)
	if err != nil {
		t.Fatalf("bob FinishTurn err: %v", err)
	}
	want := []EventType{EventPlayerFinishedTurn, EventRoundEnded, EventGameEnded}
	if diff := cmp.Diff(want, eventTypes(events)); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}

	bobTurn, roundEnded, gameEnded := events[0], events[1], events[2]
	if bobTurn.HandRank != dice.RankOnePair || bobTurn.Score != 10 {
		t.Fatalf("bob expected ONE_PAIR/10, got %s/%d", bobTurn.HandRank, bobTurn.Score)
	}
	if roundEnded.WinnerID != alice || roundEnded.Score != 25 || roundEnded.HandRank != dice.RankFullHouse {
		t.Fatalf("unexpected ROUND_ENDED %+v", roundEnded)
	}
	if gameEnded.WinnerID != alice || gameEnded.TotalPoints != 25 || gameEnded.RoundsWon != 1 {
		t.Fatalf("unexpected GAME_ENDED %+v", gameEnded)
	}
	if roundEnded.Seq+1 != gameEnded.Seq {
		t.Fatalf("expected consecutive seq, got %d then %d", roundEnded.Seq, gameEnded.Seq)
	}

	// 90 + round reward 2 + pot 20
	if bal.balance(alice) != 112 || bal.balance(bob) != 90 {
		t.Fatalf("unexpected balances alice=%d bob=%d", bal.balance(alice), bal.balance(bob))
	}
	snap := m.Snapshot()
	if snap.Status != StatusFinished || !snap.Settled || snap.WinnerID != alice {
		t.Fatalf("unexpected final state status=%s settled=%v winner=%d", snap.Status, snap.Settled, snap.WinnerID)
	}
}

func TestRoll_NotYourTurnLeavesStateUnchanged(t *testing.T) {
	m := mustNew(t, scriptedConfig(fullHouseVsPair...), newFakeBalances(100, alice, bob), 1, alice, bob)
	mustStart(t, m)

	before := m.Snapshot()
	if _, err := m.Roll(bob, nil); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	if _, err := m.FinishTurn(context.Background(), bob); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	if err := m.Hold(bob, []int{0}); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	if diff := cmp.Diff(before, m.Snapshot()); diff != "" {
		t.Fatalf("state changed (-before +after):\n%s", diff)
	}
}

func TestRoll_FourthRollFails(t *testing.T) {
	m := mustNew(t, scriptedConfig(), newFakeBalances(100, alice, bob), 1, alice, bob)
	mustStart(t, m)

	for i := 1; i <= DefaultMaxRolls; i++ {
		evs, err := m.Roll(alice, nil)
		if err != nil {
			t.Fatalf("roll %d err: %v", i, err)
		}
		if evs[0].RollCount != i {
			t.Fatalf("expected roll count %d, got %d", i, evs[0].RollCount)
		}
	}
	before := m.Snapshot()
	if _, err := m.Roll(alice, nil); !errors.Is(err, ErrRollLimitExceeded) {
		t.Fatalf("expected ErrRollLimitExceeded, got %v", err)
	}
	if diff := cmp.Diff(before, m.Snapshot()); diff != "" {
		t.Fatalf("state changed (-before +after):\n%s", diff)
	}
	if _, err := m.FinishTurn(context.Background(), alice); err != nil {
		t.Fatalf("finish after limit err: %v", err)
	}
}

func TestRoll_BadDieIndexIsInvalidRequest(t *testing.T) {
	m := mustNew(t, scriptedConfig(), newFakeBalances(100, alice, bob), 1, alice, bob)
	mustStart(t, m)
	if _, err := m.Roll(alice, []int{5}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if m.Snapshot().CurrentRound().Turns[alice].RollCount != 0 {
		t.Fatalf("rejected roll was counted")
	}
}

func TestHold_KeepsDiceAcrossRoll(t *testing.T) {
	m := mustNew(t, scriptedConfig(fullHouseVsPair...), newFakeBalances(100, alice, bob), 1, alice, bob)
	mustStart(t, m)

	if err := m.Hold(alice, []int{0, 1}); err != nil {
		t.Fatalf("Hold err: %v", err)
	}
	turn := m.Snapshot().CurrentRound().Turns[alice]
	if !cmp.Equal(turn.Hand.HeldIndices(), []int{0, 1}) || turn.RollCount != 0 {
		t.Fatalf("unexpected turn after hold: held=%v rolls=%d", turn.Hand.HeldIndices(), turn.RollCount)
	}
}

func TestFinishTurn_TwiceIsTurnAlreadyFinished(t *testing.T) {
	m := mustNew(t, scriptedConfig(), newFakeBalances(100, alice, bob), 1, alice, bob)
	mustStart(t, m)
	if _, err := m.FinishTurn(context.Background(), alice); err != nil {
		t.Fatal(err)
	}
	if _, err := m.FinishTurn(context.Background(), alice); !errors.Is(err, ErrTurnAlreadyFinished) {
		t.Fatalf("expected ErrTurnAlreadyFinished, got %v", err)
	}
	if _, err := m.Roll(alice, nil); !errors.Is(err, ErrTurnAlreadyFinished) {
		t.Fatalf("expected ErrTurnAlreadyFinished, got %v", err)
	}
}

func TestUnknownPlayerIsNotFound(t *testing.T) {
	m := mustNew(t, scriptedConfig(), newFakeBalances(100, alice, bob), 1, alice, bob)
	mustStart(t, m)
	if _, err := m.Roll(carol, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.Leave(context.Background(), carol); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNew_RejectsBadSeating(t *testing.T) {
	bal := newFakeBalances(100, alice, bob)
	cases := []struct {
		name    string
		players []PlayerID
		rounds  int
	}{
		{"one player", []PlayerID{alice}, 1},
		{"zero rounds", []PlayerID{alice, bob}, 0},
		{"duplicate", []PlayerID{alice, alice}, 1},
		{"zero id", []PlayerID{alice, 0}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(DefaultConfig(), "m", tc.players, tc.rounds, bal); !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestStart_InsufficientFundsChargesNobody(t *testing.T) {
	bal := newFakeBalances(100, alice, bob)
	bal.bal[bob] = 5
	m := mustNew(t, scriptedConfig(), bal, 2, alice, bob)

	if _, err := m.Start(context.Background()); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if bal.balance(alice) != 100 || bal.balance(bob) != 5 {
		t.Fatalf("balances mutated: alice=%d bob=%d", bal.balance(alice), bal.balance(bob))
	}
	snap := m.Snapshot()
	if snap.EntryPaid || len(snap.Rounds) != 0 {
		t.Fatalf("match advanced despite failed entry: paid=%v rounds=%d", snap.EntryPaid, len(snap.Rounds))
	}
}

func TestSettlementFailure_RoundStaysResolvingUntilRetry(t *testing.T) {
	ctx := context.Background()
	bal := newFakeBalances(100, alice, bob)
	m := mustNew(t, scriptedConfig(fullHouseVsPair...), bal, 2, alice, bob)
	mustStart(t, m)

	if _, err := m.FinishTurn(ctx, alice); err != nil {
		t.Fatal(err)
	}
	bal.failCredit = errLedgerDown
	events, err := m.FinishTurn(ctx, bob)
	if !errors.Is(err, ErrSettlementFailed) || !errors.Is(err, errLedgerDown) {
		t.Fatalf("expected settlement failure, got %v", err)
	}
	if diff := cmp.Diff([]EventType{EventPlayerFinishedTurn}, eventTypes(events)); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	snap := m.Snapshot()
	if len(snap.Rounds) != 1 || snap.Rounds[0].Phase != PhaseResolving || snap.Rounds[0].WinnerID != 0 {
		t.Fatalf("round moved on without settlement: rounds=%d phase=%s", len(snap.Rounds), snap.Rounds[0].Phase)
	}
	if _, err := m.Roll(alice, nil); !errors.Is(err, ErrTurnAlreadyFinished) {
		t.Fatalf("expected ErrTurnAlreadyFinished while resolving, got %v", err)
	}

	bal.failCredit = nil
	events, err = m.Advance(ctx)
	if err != nil {
		t.Fatalf("Advance err: %v", err)
	}
	if diff := cmp.Diff([]EventType{EventRoundEnded, EventRoundStarted}, eventTypes(events)); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	if n := bal.count(MemoRoundReward); n != 1 {
		t.Fatalf("expected one round reward, got %d", n)
	}
	if _, err := m.Advance(ctx); err == nil {
		t.Fatalf("expected Advance to refuse an in-progress round")
	}
}

func TestPayout_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	bal := newFakeBalances(100, alice, bob)
	m := mustNew(t, scriptedConfig(), bal, 1, alice, bob)
	mustStart(t, m)
	finishAll(t, m)

	if !m.Finished() {
		t.Fatalf("expected finished match")
	}
	if _, err := m.Advance(ctx); !errors.Is(err, ErrMatchFinished) {
		t.Fatalf("expected ErrMatchFinished, got %v", err)
	}
	if _, err := m.Start(ctx); !errors.Is(err, ErrMatchFinished) {
		t.Fatalf("expected ErrMatchFinished, got %v", err)
	}
	if _, err := m.Roll(alice, nil); !errors.Is(err, ErrMatchFinished) {
		t.Fatalf("expected ErrMatchFinished, got %v", err)
	}
	if _, err := m.FinishTurn(ctx, bob); !errors.Is(err, ErrMatchFinished) {
		t.Fatalf("expected ErrMatchFinished, got %v", err)
	}
	if n := bal.count(MemoPayout); n != 1 {
		t.Fatalf("expected one payout, got %d", n)
	}
	if bal.balance(alice)+bal.balance(bob) != 200+DefaultRoundReward {
		t.Fatalf("money not conserved: alice=%d bob=%d", bal.balance(alice), bal.balance(bob))
	}
}

func TestMultiRound_PlaysExactlyTotalRounds(t *testing.T) {
	bal := newFakeBalances(100, alice, bob, carol)
	m := mustNew(t, scriptedConfig(), bal, 3, alice, bob, carol)
	mustStart(t, m)

	ended := 0
	for !m.Finished() {
		for _, ev := range finishAll(t, m) {
			if ev.Type == EventRoundEnded {
				ended++
			}
		}
	}
	snap := m.Snapshot()
	if ended != 3 || len(snap.Rounds) != 3 {
		t.Fatalf("expected 3 rounds, ended=%d recorded=%d", ended, len(snap.Rounds))
	}
	for _, r := range snap.Rounds {
		if r.Phase != PhaseComplete || !r.RewardPaid {
			t.Fatalf("round %d left %s paid=%v", r.Number, r.Phase, r.RewardPaid)
		}
		if !cmp.Equal(r.TurnOrder, []PlayerID{alice, bob, carol}) {
			t.Fatalf("turn order changed in round %d: %v", r.Number, r.TurnOrder)
		}
	}
	winner, err := ComputeGameWinner(snap)
	if err != nil {
		t.Fatal(err)
	}
	if winner.PlayerID != snap.WinnerID {
		t.Fatalf("winner mismatch %d vs %d", winner.PlayerID, snap.WinnerID)
	}
	if bal.count(MemoRoundReward) != 3 {
		t.Fatalf("expected 3 round rewards, got %d", bal.count(MemoRoundReward))
	}
}

func TestLeave_ForceFinishesNowAndLater(t *testing.T) {
	ctx := context.Background()
	bal := newFakeBalances(100, alice, bob, carol)
	m := mustNew(t, scriptedConfig(), bal, 2, alice, bob, carol)
	mustStart(t, m)

	// bob leaves while it is alice's turn
	events, err := m.Leave(ctx, bob)
	if err != nil {
		t.Fatalf("Leave err: %v", err)
	}
	if len(events) != 1 || events[0].PlayerID != bob || !events[0].Forced {
		t.Fatalf("expected forced finish for bob, got %+v", events)
	}
	if p, _ := m.CurrentPlayer(); p != alice {
		t.Fatalf("expected alice to keep the turn, got %d", p)
	}
	if _, err := m.FinishTurn(ctx, alice); err != nil {
		t.Fatal(err)
	}
	events, err = m.FinishTurn(ctx, carol)
	if err != nil {
		t.Fatal(err)
	}
	want := []EventType{EventPlayerFinishedTurn, EventRoundEnded, EventRoundStarted, EventPlayerFinishedTurn}
	if diff := cmp.Diff(want, eventTypes(events)); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	if events[3].PlayerID != bob || !events[3].Forced {
		t.Fatalf("expected bob auto-finished in round 2, got %+v", events[3])
	}
	if _, err := m.Leave(ctx, bob); err != nil {
		t.Fatalf("second Leave err: %v", err)
	}
}

func TestLeave_LastUnfinishedPlayerClosesRound(t *testing.T) {
	ctx := context.Background()
	m := mustNew(t, scriptedConfig(), newFakeBalances(100, alice, bob), 1, alice, bob)
	mustStart(t, m)
	if _, err := m.FinishTurn(ctx, alice); err != nil {
		t.Fatal(err)
	}
	events, err := m.Leave(ctx, bob)
	if err != nil {
		t.Fatal(err)
	}
	want := []EventType{EventPlayerFinishedTurn, EventRoundEnded, EventGameEnded}
	if diff := cmp.Diff(want, eventTypes(events)); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

func TestForceFinishCurrent_TimesOutCurrentPlayer(t *testing.T) {
	m := mustNew(t, scriptedConfig(), newFakeBalances(100, alice, bob), 1, alice, bob)
	mustStart(t, m)
	p, events, err := m.ForceFinishCurrent(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if p != alice || len(events) != 1 || !events[0].Forced {
		t.Fatalf("unexpected timeout result p=%d events=%+v", p, events)
	}
	if m.Snapshot().Departed[alice] {
		t.Fatalf("timeout must not mark the player departed")
	}
	if cur, _ := m.CurrentPlayer(); cur != bob {
		t.Fatalf("expected bob's turn, got %d", cur)
	}
}

func TestConcurrentFinish_OnlyCurrentPlayerAccepted(t *testing.T) {
	players := []PlayerID{alice, bob, carol}
	m := mustNew(t, scriptedConfig(), newFakeBalances(100, players...), 1, players...)
	mustStart(t, m)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := make(map[PlayerID]int)
	for i := 0; i < 50; i++ {
		for _, p := range players {
			wg.Add(1)
			go func(p PlayerID) {
				defer wg.Done()
				_, err := m.FinishTurn(context.Background(), p)
				switch {
				case err == nil:
					mu.Lock()
					accepted[p]++
					mu.Unlock()
				case errors.Is(err, ErrNotYourTurn), errors.Is(err, ErrTurnAlreadyFinished), errors.Is(err, ErrMatchFinished):
				default:
					t.Errorf("unexpected err: %v", err)
				}
			}(p)
		}
	}
	wg.Wait()
	for _, p := range players {
		if accepted[p] != 1 {
			t.Fatalf("player %d accepted %d times", p, accepted[p])
		}
	}
	if !m.Finished() {
		t.Fatalf("expected the match to finish")
	}
}

func TestExactlyOneCurrentPlayerWhileInProgress(t *testing.T) {
	players := []PlayerID{alice, bob, carol}
	m := mustNew(t, scriptedConfig(), newFakeBalances(100, players...), 2, players...)
	mustStart(t, m)
	for !m.Finished() {
		snap := m.Snapshot()
		r := snap.CurrentRound()
		if r.Phase == PhaseInProgress {
			unfinished := 0
			for _, p := range r.TurnOrder {
				if !r.Turns[p].Finished {
					unfinished++
				}
			}
			cur, ok := r.CurrentPlayer()
			if !ok || unfinished == 0 || r.Turns[cur].Finished {
				t.Fatalf("bad current player %d ok=%v unfinished=%d", cur, ok, unfinished)
			}
		}
		p, _ := m.CurrentPlayer()
		if _, err := m.Roll(p, []int{0}); err != nil {
			t.Fatal(err)
		}
		if _, err := m.FinishTurn(context.Background(), p); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRestore_ContinuesFromSnapshot(t *testing.T) {
	ctx := context.Background()
	bal := newFakeBalances(100, alice, bob)
	m := mustNew(t, scriptedConfig(), bal, 2, alice, bob)
	mustStart(t, m)
	if _, err := m.FinishTurn(ctx, alice); err != nil {
		t.Fatal(err)
	}
	snap := m.Snapshot()

	restored, err := Restore(scriptedConfig(), snap, bal)
	if err != nil {
		t.Fatalf("Restore err: %v", err)
	}
	if diff := cmp.Diff(snap, restored.Snapshot()); diff != "" {
		t.Fatalf("restored state differs (-want +got):\n%s", diff)
	}
	events, err := restored.FinishTurn(ctx, bob)
	if err != nil {
		t.Fatal(err)
	}
	if events[0].Seq != snap.EventSeq+1 {
		t.Fatalf("expected seq to continue from %d, got %d", snap.EventSeq, events[0].Seq)
	}
	if bal.count(MemoEntry) != 1 {
		t.Fatalf("restore must not charge entry again")
	}
}

func TestRestore_RejectsCorruptState(t *testing.T) {
	m := mustNew(t, scriptedConfig(), newFakeBalances(100, alice, bob), 1, alice, bob)
	mustStart(t, m)
	snap := m.Snapshot()
	delete(snap.Rounds[0].Turns, bob)
	if _, err := Restore(scriptedConfig(), snap, newFakeBalances(0)); err == nil {
		t.Fatalf("expected error for missing turn")
	}
}

func TestRefund_ReturnsEntry(t *testing.T) {
	bal := newFakeBalances(100, alice, bob)
	m := mustNew(t, scriptedConfig(), bal, 1, alice, bob)
	mustStart(t, m)
	if err := m.Refund(context.Background()); err != nil {
		t.Fatal(err)
	}
	if bal.balance(alice) != 100 || bal.balance(bob) != 100 {
		t.Fatalf("refund incomplete: alice=%d bob=%d", bal.balance(alice), bal.balance(bob))
	}
	if m.Snapshot().EntryPaid {
		t.Fatalf("entry still marked paid")
	}
}

func TestRoundEnded_CarriesZeroScore(t *testing.T) {
	// both hands are five distinct faces with a gap: NO_VALUE
	noValue := []dice.Face{dice.Ace, dice.King, dice.Queen, dice.Jack, dice.Nine}
	cfg := scriptedConfig(append(append([]dice.Face(nil), noValue...), noValue...)...)
	m := mustNew(t, cfg, newFakeBalances(100, 1, 2), 2, 1, 2)
	mustStart(t, m)

	var ended *Event
	for _, ev := range finishAll(t, m) {
		if ev.Type == EventRoundEnded {
			ev := ev
			ended = &ev
		}
	}
	if ended == nil {
		t.Fatalf("round did not end")
	}
	if ended.WinnerID != 1 || ended.Score != 0 || ended.HandRank != dice.RankNoValue {
		t.Fatalf("unexpected round_ended %+v", ended)
	}

	data, err := json.Marshal(ended)
	if err != nil {
		t.Fatalf("marshal err: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}
	if fields["score"] != float64(0) || fields["hand_rank"] != "NO_VALUE" {
		t.Fatalf("round_ended must carry score and hand_rank: %s", data)
	}
}

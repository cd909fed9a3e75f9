package dice

import "testing"

func TestEvaluate_Ranks(t *testing.T) {
	cases := []struct {
		name  string
		faces []Face
		want  HandRank
	}{
		{"five of a kind", []Face{Nine, Nine, Nine, Nine, Nine}, RankFiveOfAKind},
		{"four of a kind", []Face{Ace, Ace, Ace, Ace, King}, RankFourOfAKind},
		{"full house", []Face{Queen, Queen, Queen, Ten, Ten}, RankFullHouse},
		{"low straight", []Face{Ten, Ace, Jack, King, Queen}, RankStraight},
		{"high straight", []Face{Nine, King, Ten, Queen, Jack}, RankStraight},
		{"three of a kind", []Face{Jack, Jack, Jack, Ace, Nine}, RankThreeOfAKind},
		{"two pair", []Face{Ace, Ace, King, King, Nine}, RankTwoPair},
		{"one pair", []Face{Ten, Ten, Ace, King, Nine}, RankOnePair},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Evaluate(MustHand(tc.faces...)); got != tc.want {
				t.Fatalf("Evaluate(%v) = %s, want %s", tc.faces, got, tc.want)
			}
		})
	}
}

// Five distinct faces only count as a straight when the missing face is an
// end of the run (ACE or NINE). A gap in the middle is deliberately NO_VALUE.
func TestEvaluate_StraightNeedsContiguousRun(t *testing.T) {
	for _, missing := range []Face{King, Queen, Jack, Ten} {
		faces := make([]Face, 0, HandSize)
		for _, f := range Faces {
			if f != missing {
				faces = append(faces, f)
			}
		}
		if got := Evaluate(MustHand(faces...)); got != RankNoValue {
			t.Fatalf("missing %s: expected NO_VALUE, got %s", missing, got)
		}
	}
}

func TestScore_MonotonicInRank(t *testing.T) {
	for i := 1; i < len(HandRanks); i++ {
		lo, hi := HandRanks[i-1], HandRanks[i]
		if hi.Score() < lo.Score() {
			t.Fatalf("score of %s (%d) below %s (%d)", hi, hi.Score(), lo, lo.Score())
		}
	}
	if RankFullHouse.Score() != 25 || RankOnePair.Score() != 10 {
		t.Fatalf("unexpected scores: full house=%d one pair=%d", RankFullHouse.Score(), RankOnePair.Score())
	}
}

func TestEvaluate_EveryHandHasOneRank(t *testing.T) {
	if testing.Short() {
		t.Skip("skip exhaustive hand coverage in short mode")
	}
	seen := make(map[HandRank]int)
	var faces [HandSize]Face
	var walk func(pos int)
	walk = func(pos int) {
		if pos == HandSize {
			h := MustHand(faces[:]...)
			rank := Evaluate(h)
			if _, ok := handRankNames[rank]; !ok {
				t.Fatalf("unknown rank %d for %v", rank, h)
			}
			if Score(h) != rank.Score() {
				t.Fatalf("Score(%v)=%d, rank score=%d", h, Score(h), rank.Score())
			}
			seen[rank]++
			return
		}
		for _, f := range Faces {
			faces[pos] = f
			walk(pos + 1)
		}
	}
	walk(0)

	total := 0
	for _, n := range seen {
		total += n
	}
	if total != 6*6*6*6*6 {
		t.Fatalf("expected 7776 hands, got %d", total)
	}
	for _, r := range HandRanks {
		if seen[r] == 0 {
			t.Fatalf("rank %s never produced", r)
		}
	}
	// 2 straights x 5! orderings
	if seen[RankStraight] != 240 {
		t.Fatalf("expected 240 straight hands, got %d", seen[RankStraight])
	}
}

func TestWeightSum(t *testing.T) {
	nines := MustHand(Nine, Nine, Nine, Ace, Ace)
	kings := MustHand(King, King, King, Ace, Ace)
	if nines.WeightSum() != 20 {
		t.Fatalf("expected 20, got %d", nines.WeightSum())
	}
	if kings.WeightSum() != 8 {
		t.Fatalf("expected 8, got %d", kings.WeightSum())
	}
	if Evaluate(nines) != Evaluate(kings) {
		t.Fatalf("expected equal ranks")
	}
}

func TestEvaluate_IncompleteHandHasNoValue(t *testing.T) {
	var h Hand
	for i, f := range []Face{Ace, Ace, Ace, FaceInvalid, FaceInvalid} {
		h.Dice[i] = Die{Index: i, Face: f}
	}
	if got := Evaluate(h); got != RankNoValue {
		t.Fatalf("partial hand evaluated to %s", got)
	}
	if got := Evaluate(Hand{}); got != RankNoValue {
		t.Fatalf("empty hand evaluated to %s", got)
	}
	if Score(Hand{}) != 0 {
		t.Fatalf("empty hand should score 0")
	}

	full := MustHand(Ace, Ace, Ace, King, King)
	if !full.Complete() {
		t.Fatalf("MustHand should build a complete hand")
	}
	if got := Evaluate(full); got != RankFullHouse {
		t.Fatalf("full hand evaluated to %s", got)
	}
}

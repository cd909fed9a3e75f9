package dice

import (
	"fmt"
	"sort"
)

// HandRank 牌型
type HandRank byte

const (
	RankNoValue HandRank = iota
	RankOnePair
	RankTwoPair
	RankThreeOfAKind
	RankStraight
	RankFullHouse
	RankFourOfAKind
	RankFiveOfAKind
)

var handRankNames = map[HandRank]string{
	RankNoValue:      "NO_VALUE",
	RankOnePair:      "ONE_PAIR",
	RankTwoPair:      "TWO_PAIR",
	RankThreeOfAKind: "THREE_OF_A_KIND",
	RankStraight:     "STRAIGHT",
	RankFullHouse:    "FULL_HOUSE",
	RankFourOfAKind:  "FOUR_OF_A_KIND",
	RankFiveOfAKind:  "FIVE_OF_A_KIND",
}

// Round score bound to each rank. Strictly increasing with rank.
var handRankScores = map[HandRank]int{
	RankNoValue:      0,
	RankOnePair:      10,
	RankTwoPair:      15,
	RankThreeOfAKind: 18,
	RankStraight:     20,
	RankFullHouse:    25,
	RankFourOfAKind:  40,
	RankFiveOfAKind:  50,
}

// HandRanks lists every rank from weakest to strongest.
var HandRanks = []HandRank{
	RankNoValue, RankOnePair, RankTwoPair, RankThreeOfAKind,
	RankStraight, RankFullHouse, RankFourOfAKind, RankFiveOfAKind,
}

func (r HandRank) String() string {
	if name, ok := handRankNames[r]; ok {
		return name
	}
	return fmt.Sprintf("HandRank(%d)", byte(r))
}

func (r HandRank) Score() int { return handRankScores[r] }

func (r HandRank) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *HandRank) UnmarshalText(b []byte) error {
	for rank, name := range handRankNames {
		if name == string(b) {
			*r = rank
			return nil
		}
	}
	return fmt.Errorf("unknown hand rank %q", string(b))
}

// Evaluate classifies a five-dice hand. A hand with a missing or invalid die
// has no value.
func Evaluate(h Hand) HandRank {
	if !h.Complete() {
		return RankNoValue
	}
	var perFace [FaceCount + 1]int
	for _, d := range h.Dice {
		perFace[d.Face]++
	}

	counts := make([]int, 0, FaceCount)
	for _, f := range Faces {
		if perFace[f] > 0 {
			counts = append(counts, perFace[f])
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(counts)))

	switch {
	case counts[0] == 5:
		return RankFiveOfAKind
	case counts[0] == 4:
		return RankFourOfAKind
	case counts[0] == 3 && counts[1] == 2:
		return RankFullHouse
	case isStraight(perFace):
		return RankStraight
	case counts[0] == 3:
		return RankThreeOfAKind
	case counts[0] == 2 && counts[1] == 2:
		return RankTwoPair
	case counts[0] == 2:
		return RankOnePair
	}
	return RankNoValue
}

// isStraight: five distinct faces forming a contiguous run of the face order.
// With six faces that leaves exactly two straights, ACE..TEN and KING..NINE;
// any other five distinct faces (a gap in the middle) score nothing.
func isStraight(perFace [FaceCount + 1]int) bool {
	run, best, distinct := 0, 0, 0
	for _, f := range Faces {
		if perFace[f] > 1 {
			return false
		}
		if perFace[f] == 1 {
			distinct++
			run++
			if run > best {
				best = run
			}
			continue
		}
		run = 0
	}
	return distinct == HandSize && best == HandSize
}

// Score is the numeric round score of the hand.
func Score(h Hand) int {
	return Evaluate(h).Score()
}

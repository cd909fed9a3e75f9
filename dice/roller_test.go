package dice

import (
	"errors"
	"testing"
)

func TestRoll_HeldDiceNeverChange(t *testing.T) {
	r := NewRoller(7)
	h := MustHand(Ace, King, Queen, Jack, Ten)
	for i := 0; i < 200; i++ {
		out, err := r.Roll(h, []int{0, 2, 4})
		if err != nil {
			t.Fatalf("Roll err: %v", err)
		}
		for _, idx := range []int{0, 2, 4} {
			if out.Dice[idx] != h.Dice[idx] {
				t.Fatalf("held die %d changed: %v -> %v", idx, h.Dice[idx], out.Dice[idx])
			}
		}
		for i, d := range out.Dice {
			if d.Index != i || !d.Face.Valid() {
				t.Fatalf("bad die at %d: %+v", i, d)
			}
		}
	}
}

func TestRoll_FullyHeldIsNoop(t *testing.T) {
	r := NewRoller(1)
	h := MustHand(Nine, Nine, Ace, Ace, Ten)
	out, err := r.Roll(h, []int{0, 1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Roll err: %v", err)
	}
	if out.Dice != h.Dice {
		t.Fatalf("expected unchanged dice, got %v", out)
	}
	if len(out.HeldIndices()) != HandSize {
		t.Fatalf("expected every die held, got %v", out.HeldIndices())
	}
}

func TestRoll_InvalidIndexRejected(t *testing.T) {
	r := NewRoller(1)
	h := MustHand(Nine, Nine, Ace, Ace, Ten)
	for _, idx := range []int{-1, 5, 17} {
		if _, err := r.Roll(h, []int{idx}); !errors.Is(err, ErrInvalidDieIndex) {
			t.Fatalf("index %d: expected ErrInvalidDieIndex, got %v", idx, err)
		}
	}
}

func TestRoller_ScriptConsumedFirst(t *testing.T) {
	r := NewRoller(3, Nine, Nine, Nine, Ace, Ace, King)
	h := r.Fresh()
	if got := h.Faces(); got[0] != Nine || got[3] != Ace || got[4] != Ace {
		t.Fatalf("unexpected scripted hand %v", h)
	}
	if r.Remaining() != 1 {
		t.Fatalf("expected 1 scripted face left, got %d", r.Remaining())
	}
	out, err := r.Roll(h, []int{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Roll err: %v", err)
	}
	if out.Dice[0].Face != King {
		t.Fatalf("expected scripted KING on die 0, got %s", out.Dice[0].Face)
	}
}

func TestRoller_FacesAreUniformish(t *testing.T) {
	r := NewRoller(42)
	counts := make(map[Face]int)
	const n = 60000
	for i := 0; i < n; i++ {
		counts[r.Face()]++
	}
	for _, f := range Faces {
		if c := counts[f]; c < n/6-1000 || c > n/6+1000 {
			t.Fatalf("face %s drawn %d times out of %d", f, c, n)
		}
	}
}

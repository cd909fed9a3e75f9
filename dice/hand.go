package dice

import (
	"errors"
	"fmt"
	"strings"
)

// HandSize is the number of dice a player controls.
const HandSize = 5

var ErrInvalidDieIndex = errors.New("die index out of range")

type Die struct {
	Index int  `json:"index"`
	Face  Face `json:"face"`
}

// Hand is five dice plus the subset marked as held.
// Held dice are never changed by a roll.
type Hand struct {
	Dice [HandSize]Die  `json:"dice"`
	Held [HandSize]bool `json:"held"`
}

// NewHand builds an unheld hand from exactly five faces.
func NewHand(faces ...Face) (Hand, error) {
	var h Hand
	if len(faces) != HandSize {
		return h, fmt.Errorf("hand needs %d faces, got %d", HandSize, len(faces))
	}
	for i, f := range faces {
		if !f.Valid() {
			return h, fmt.Errorf("invalid face %d at index %d", byte(f), i)
		}
		h.Dice[i] = Die{Index: i, Face: f}
	}
	return h, nil
}

// MustHand is NewHand for fixtures.
func MustHand(faces ...Face) Hand {
	h, err := NewHand(faces...)
	if err != nil {
		panic(err)
	}
	return h
}

func (h Hand) Faces() []Face {
	out := make([]Face, 0, HandSize)
	for _, d := range h.Dice {
		out = append(out, d.Face)
	}
	return out
}

// HeldIndices returns the held positions in ascending order.
func (h Hand) HeldIndices() []int {
	out := make([]int, 0, HandSize)
	for i, held := range h.Held {
		if held {
			out = append(out, i)
		}
	}
	return out
}

// WithHeld returns a copy of h whose held set is exactly indices.
func (h Hand) WithHeld(indices []int) (Hand, error) {
	var held [HandSize]bool
	for _, i := range indices {
		if i < 0 || i >= HandSize {
			return h, fmt.Errorf("%w: %d", ErrInvalidDieIndex, i)
		}
		held[i] = true
	}
	h.Held = held
	return h, nil
}

// WeightSum is the sum of the face weights of all five dice.
func (h Hand) WeightSum() int {
	sum := 0
	for _, d := range h.Dice {
		sum += d.Face.Weight()
	}
	return sum
}

// Complete reports whether every die carries a valid face.
func (h Hand) Complete() bool {
	for i, d := range h.Dice {
		if d.Index != i || !d.Face.Valid() {
			return false
		}
	}
	return true
}

func (h Hand) String() string {
	parts := make([]string, 0, HandSize)
	for i, d := range h.Dice {
		s := d.Face.String()
		if h.Held[i] {
			s += "*"
		}
		parts = append(parts, s)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

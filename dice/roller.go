package dice

import (
	"math/rand"
	"sync"
	"time"
)

// Roller draws faces uniformly from the six faces.
//
// A scripted prefix of faces can be supplied for deterministic play; it is
// consumed first, then the seeded generator takes over.
type Roller struct {
	mu     sync.Mutex
	rng    *rand.Rand
	script []Face
}

// NewRoller creates a roller. seed 0 => time-based.
func NewRoller(seed int64, script ...Face) *Roller {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Roller{
		rng:    rand.New(rand.NewSource(seed)),
		script: append([]Face(nil), script...),
	}
}

// Face draws a single face.
func (r *Roller) Face() Face {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextLocked()
}

func (r *Roller) nextLocked() Face {
	for len(r.script) > 0 {
		f := r.script[0]
		r.script = r.script[1:]
		if f.Valid() {
			return f
		}
	}
	return Faces[r.rng.Intn(FaceCount)]
}

// Fresh rolls five new dice with nothing held.
func (r *Roller) Fresh() Hand {
	r.mu.Lock()
	defer r.mu.Unlock()

	var h Hand
	for i := range h.Dice {
		h.Dice[i] = Die{Index: i, Face: r.nextLocked()}
	}
	return h
}

// Roll re-rolls every die not listed in held. The held set of the returned
// hand is exactly held; held dice are copied unchanged.
func (r *Roller) Roll(h Hand, held []int) (Hand, error) {
	out, err := h.WithHeld(held)
	if err != nil {
		return h, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range out.Dice {
		if out.Held[i] {
			continue
		}
		out.Dice[i] = Die{Index: i, Face: r.nextLocked()}
	}
	return out, nil
}

// Remaining reports how many scripted faces are still queued.
func (r *Roller) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.script)
}

package match

import (
	"fmt"

	"pokerdice/dice"
)

type Config struct {
	// Turn
	MaxRolls int

	// Money
	EntryCost   int64
	RoundReward int64

	// RNG seed (0 => time-based)
	Seed int64
	// Optional: faces consumed before the seeded generator, for replayable matches.
	FaceScript []dice.Face
}

const (
	DefaultMaxRolls    = 3
	DefaultRoundReward = 2
)

func DefaultConfig() Config {
	return Config{
		MaxRolls:    DefaultMaxRolls,
		EntryCost:   10,
		RoundReward: DefaultRoundReward,
	}
}

func (c Config) validate() error {
	if c.MaxRolls <= 0 {
		return fmt.Errorf("MaxRolls must be > 0")
	}
	if c.EntryCost < 0 {
		return fmt.Errorf("EntryCost must be >= 0")
	}
	if c.RoundReward < 0 {
		return fmt.Errorf("RoundReward must be >= 0")
	}
	for i, f := range c.FaceScript {
		if !f.Valid() {
			return fmt.Errorf("FaceScript[%d] is not a valid face", i)
		}
	}
	return nil
}

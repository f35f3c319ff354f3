package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Rand is the randomness source used for stock generation.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
	Float64() float64
}

const (
	maxDiceCount = 100
	maxDiceSides = 1000
)

var dicePattern = regexp.MustCompile(`^(\d+)[dD](\d+)(?:-(\d+))?$`)

// DiceRoll is a parsed quantity expression: NdM, NdM-K or a literal
type DiceRoll struct {
	Count    int
	Sides    int
	Modifier int
	Literal  int
	IsFixed  bool
}

// ParseDice parses NdM, NdM-K or a bare non-negative integer
func ParseDice(notation string) (DiceRoll, error) {
	s := strings.TrimSpace(notation)

	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return DiceRoll{}, fmt.Errorf("%w: %q", ErrInvalidDiceNotation, notation)
		}
		return DiceRoll{Literal: n, IsFixed: true}, nil
	}

	m := dicePattern.FindStringSubmatch(s)
	if m == nil {
		return DiceRoll{}, fmt.Errorf("%w: %q", ErrInvalidDiceNotation, notation)
	}

	count, err := strconv.Atoi(m[1])
	if err != nil {
		return DiceRoll{}, fmt.Errorf("%w: %q: %v", ErrInvalidDiceNotation, notation, err)
	}
	sides, err := strconv.Atoi(m[2])
	if err != nil {
		return DiceRoll{}, fmt.Errorf("%w: %q: %v", ErrInvalidDiceNotation, notation, err)
	}
	if count < 1 || count > maxDiceCount || sides < 1 || sides > maxDiceSides {
		return DiceRoll{}, fmt.Errorf("%w: %q out of range", ErrInvalidDiceNotation, notation)
	}

	roll := DiceRoll{Count: count, Sides: sides}
	if m[3] != "" {
		if roll.Modifier, err = strconv.Atoi(m[3]); err != nil {
			return DiceRoll{}, fmt.Errorf("%w: %q: %v", ErrInvalidDiceNotation, notation, err)
		}
	}
	return roll, nil
}

// Roll sums Count dice of Sides faces, subtracts Modifier and floors at zero.
// Literal expressions return their value unchanged.
func (d DiceRoll) Roll(rng Rand) int {
	if d.IsFixed {
		return d.Literal
	}
	total := 0
	for i := 0; i < d.Count; i++ {
		total += rng.IntN(d.Sides) + 1
	}
	total -= d.Modifier
	if total < 0 {
		return 0
	}
	return total
}

// RollDice parses and rolls notation in one step
func RollDice(notation string, rng Rand) (int, error) {
	d, err := ParseDice(notation)
	if err != nil {
		return 0, err
	}
	return d.Roll(rng), nil
}

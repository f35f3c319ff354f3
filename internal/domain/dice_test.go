package domain

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRand replays fixed values. IntN returns the next value modulo n.
type scriptedRand struct {
	ints   []int
	floats []float64
}

func (r *scriptedRand) IntN(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	return v % n
}

func (r *scriptedRand) Float64() float64 {
	if len(r.floats) == 0 {
		return 0
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

func TestParseDice(t *testing.T) {
	tests := []struct {
		input    string
		expected DiceRoll
		wantErr  bool
	}{
		{input: "1d4", expected: DiceRoll{Count: 1, Sides: 4}},
		{input: "3D6-2", expected: DiceRoll{Count: 3, Sides: 6, Modifier: 2}},
		{input: " 5 ", expected: DiceRoll{Literal: 5, IsFixed: true}},
		{input: "0", expected: DiceRoll{IsFixed: true}},
		{input: "d6", wantErr: true},
		{input: "0d6", wantErr: true},
		{input: "1d0", wantErr: true},
		{input: "101d6", wantErr: true},
		{input: "2d6+1", wantErr: true},
		{input: "-3", wantErr: true},
		{input: "1d6-99999999999999999999", wantErr: true},
		{input: "99999999999999999999d6", wantErr: true},
		{input: "1d99999999999999999999", wantErr: true},
		{input: "99999999999999999999", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDice(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDiceNotation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDiceRoll_Roll(t *testing.T) {
	t.Run("sums dice", func(t *testing.T) {
		rng := &scriptedRand{ints: []int{0, 3, 5}}
		d, err := ParseDice("3d6")
		require.NoError(t, err)
		assert.Equal(t, 1+4+6, d.Roll(rng))
	})

	t.Run("modifier floors at zero", func(t *testing.T) {
		rng := &scriptedRand{ints: []int{0}}
		d, err := ParseDice("1d4-3")
		require.NoError(t, err)
		assert.Equal(t, 0, d.Roll(rng))
	})

	t.Run("literal ignores rng", func(t *testing.T) {
		got, err := RollDice("7", &scriptedRand{})
		require.NoError(t, err)
		assert.Equal(t, 7, got)
	})

	t.Run("range", func(t *testing.T) {
		rng := rand.New(rand.NewPCG(1, 2))
		d, err := ParseDice("2d6-1")
		require.NoError(t, err)
		for i := 0; i < 500; i++ {
			v := d.Roll(rng)
			require.GreaterOrEqual(t, v, 1)
			require.LessOrEqual(t, v, 11)
		}
	})
}

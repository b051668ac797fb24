// Package dice implements the dice-rolling logic used by combat resolution.
package dice

import (
	"errors"
	"math/rand/v2"
)

const (
	// MaxCount 单次最多掷骰数量
	MaxCount = 100
	// MaxSides 骰子最大面数
	MaxSides = 1000
)

// ErrInvalidDiceSpec indicates a dice request has out-of-range count or sides.
var ErrInvalidDiceSpec = errors.New("dice must have positive sides and count")

// Source is the random source dice are drawn from.
// *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	IntN(n int) int
}

// Roll captures a resolved roll: the individual dice, the modifier and the total.
type Roll struct {
	Dice     []int `json:"dice"`
	Sides    int   `json:"sides"`
	Modifier int   `json:"modifier"`
	Total    int   `json:"total"`
}

// RollDice rolls count independent dice in [1, sides], sums them and adds modifier.
//
// RollDice has no side effects beyond drawing from src, so given a source in
// the same state it always produces the same Roll.
//
//   - count must be in [1, MaxCount] and sides in [1, MaxSides], otherwise
//     ErrInvalidDiceSpec is returned.
func RollDice(src Source, count, sides, modifier int) (Roll, error) {
	if count <= 0 || count > MaxCount || sides <= 0 || sides > MaxSides {
		return Roll{}, ErrInvalidDiceSpec
	}

	results := make([]int, count)
	total := 0
	for i := range count {
		value := rollDie(src, sides)
		results[i] = value
		total += value
	}

	return Roll{
		Dice:     results,
		Sides:    sides,
		Modifier: modifier,
		Total:    total + modifier,
	}, nil
}

// Magnitude returns the roll total floored at zero.
func (r Roll) Magnitude() int {
	if r.Total < 0 {
		return 0
	}
	return r.Total
}

// NewSeeded returns a deterministic source for the given seed.
func NewSeeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// rollDie rolls a single die with the provided number of sides.
func rollDie(src Source, sides int) int {
	return src.IntN(sides) + 1
}

// Package dice implements the positive/negative d6 pool mechanic. The roll
// performs no comparison against difficulty: the formatted report is handed
// to the narrator, which adjudicates the stated threshold itself.
package dice

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

const sides = 6

// Roll holds the raw results of one dice action.
//
// Total == sum(Positive) - sum(Negative) + Modifier.
type Roll struct {
	Positive []int `json:"positive"`
	Negative []int `json:"negative"`
	Modifier int   `json:"modifier"`
	Total    int   `json:"total"`
}

// Roller draws die results from an injectable source so tests can pin the
// sequence.
type Roller struct {
	intN func(n int) int
}

// NewRoller returns a roller backed by the shared math/rand source.
func NewRoller() *Roller {
	return &Roller{intN: rand.IntN}
}

// NewRollerWithSource returns a roller drawing from src.
func NewRollerWithSource(src rand.Source) *Roller {
	r := rand.New(src)
	return &Roller{intN: r.IntN}
}

// Roll draws numPos positive and numNeg negative dice plus a modifier of any
// sign. Pool sizes below 1 are raised to 1.
func (r *Roller) Roll(numPos, numNeg, modifier int) Roll {
	if numPos < 1 {
		numPos = 1
	}
	if numNeg < 1 {
		numNeg = 1
	}

	roll := Roll{
		Positive: make([]int, numPos),
		Negative: make([]int, numNeg),
		Modifier: modifier,
	}
	for i := range roll.Positive {
		roll.Positive[i] = r.intN(sides) + 1
	}
	for i := range roll.Negative {
		roll.Negative[i] = r.intN(sides) + 1
	}
	roll.Total = sum(roll.Positive) - sum(roll.Negative) + modifier
	return roll
}

// Report renders the fixed-structure text block that is submitted into the
// conversation as if it were a player action.
func (r Roll) Report() string {
	var b strings.Builder
	b.WriteString("🎲 **DICE ROLL**:\n")
	fmt.Fprintf(&b, "Positive: [%s] (sum: %d)\n", joinInts(r.Positive), sum(r.Positive))
	fmt.Fprintf(&b, "Negative: [%s] (sum: %d)\n", joinInts(r.Negative), sum(r.Negative))
	fmt.Fprintf(&b, "Modifier applied: **%+d**\n", r.Modifier)
	fmt.Fprintf(&b, "FINAL RESULT: **%d**", r.Total)
	return b.String()
}

func sum(vals []int) int {
	total := 0
	for _, v := range vals {
		total += v
	}
	return total
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

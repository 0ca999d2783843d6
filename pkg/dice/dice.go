// Package dice implements the roll-and-keep dice pool used for initiative,
// ability checks and death saves.
package dice

import (
	"errors"
	"math/rand"
	"slices"
	"sync"
)

// Sides is the face count of every pool die.
const Sides = 10

// maxExplosions bounds how often one die may re-roll on its maximum face.
const maxExplosions = 20

// ErrMissingDice indicates a roll request had no dice.
var ErrMissingDice = errors.New("at least one die must be rolled")

// ErrInvalidKeep indicates the keep count is not positive.
var ErrInvalidKeep = errors.New("keep must be at least one")

// Result captures one roll-and-keep throw.
//
// Dice holds the final value of every die (after explosions) in roll order,
// Exploded reports per die whether it exploded at least once, and Kept is
// the sorted-descending subset summed into Total.
type Result struct {
	Total        int    `json:"total"`
	Dice         []int  `json:"dice"`
	Kept         []int  `json:"kept"`
	Exploded     []bool `json:"exploded"`
	TargetNumber int    `json:"target_number,omitempty"`
	Success      bool   `json:"success"`
}

// Roller rolls dice pools. Implementations must be safe for concurrent use.
type Roller interface {
	Roll(numDice, keep, targetNumber int) (Result, error)
}

// SeededRoller is a deterministic Roller driven by a math/rand source.
type SeededRoller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

var _ Roller = (*SeededRoller)(nil)

// NewSeededRoller creates a roller whose sequence depends only on seed.
func NewSeededRoller(seed int64) *SeededRoller {
	return &SeededRoller{rng: rand.New(rand.NewSource(seed))}
}

// Roll throws numDice exploding d10s and keeps the highest keep of them.
//
// A keep larger than the pool is reduced to the pool size. When
// targetNumber is positive, Success reports Total >= targetNumber;
// otherwise Success is always true.
func (r *SeededRoller) Roll(numDice, keep, targetNumber int) (Result, error) {
	if numDice <= 0 {
		return Result{}, ErrMissingDice
	}
	if keep <= 0 {
		return Result{}, ErrInvalidKeep
	}

	r.mu.Lock()
	values := make([]int, numDice)
	exploded := make([]bool, numDice)
	for i := range values {
		values[i], exploded[i] = rollExploding(r.rng)
	}
	r.mu.Unlock()

	return Evaluate(values, exploded, keep, targetNumber), nil
}

func rollExploding(rng *rand.Rand) (int, bool) {
	total := 0
	exploded := false
	for i := 0; i <= maxExplosions; i++ {
		face := rng.Intn(Sides) + 1
		total += face
		if face != Sides {
			break
		}
		exploded = true
	}
	return total, exploded
}

// Evaluate keeps the highest keep values and scores them against targetNumber.
// It is deterministic and used by Roll as well as by callers replaying a throw.
func Evaluate(values []int, exploded []bool, keep, targetNumber int) Result {
	keep = min(keep, len(values))

	sorted := slices.Clone(values)
	slices.SortFunc(sorted, func(a, b int) int { return b - a })
	kept := sorted[:keep]

	total := 0
	for _, v := range kept {
		total += v
	}

	if exploded == nil {
		exploded = make([]bool, len(values))
	}

	return Result{
		Total:        total,
		Dice:         slices.Clone(values),
		Kept:         slices.Clone(kept),
		Exploded:     slices.Clone(exploded),
		TargetNumber: targetNumber,
		Success:      targetNumber <= 0 || total >= targetNumber,
	}
}

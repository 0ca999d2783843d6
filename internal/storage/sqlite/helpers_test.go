package sqlite

import (
	"github.com/jwebster45206/combat-ledger/pkg/actor"
	"github.com/jwebster45206/combat-ledger/pkg/dice"
)

type sheet struct {
	id      string
	mastery int
	scores  map[string]int
}

func (s *sheet) ID() string                      { return s.id }
func (s *sheet) IsPC() bool                      { return true }
func (s *sheet) MasteryRank() int                { return s.mastery }
func (s *sheet) Attribute(a actor.Attribute) int { return s.scores[string(a)] }

type fixedRoller struct{}

func (fixedRoller) Roll(numDice, keep, targetNumber int) (dice.Result, error) {
	return dice.Evaluate(make([]int, numDice), nil, keep, targetNumber), nil
}

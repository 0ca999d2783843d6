package ledger

import "github.com/jwebster45206/combat-ledger/pkg/actor"

// HealthLevel is one tier of damage boxes.
type HealthLevel struct {
	Name        string `json:"name"`
	Boxes       int    `json:"boxes"`
	DamageBoxes int    `json:"damage_boxes"`
	Penalty     int    `json:"penalty"`
	Scarred     bool   `json:"scarred"`
}

// HealthLevels is the ordered wound ladder of an actor, top level first.
type HealthLevels struct {
	Levels []HealthLevel `json:"levels"`
}

// NewHealthLevels builds an undamaged ladder with Vitality x 2 boxes per
// level (at least one box, so a level can always be filled).
func NewHealthLevels(vitality int) HealthLevels {
	boxes := max(1, actor.BoxesPerLevel(vitality))
	levels := make([]HealthLevel, len(actor.HealthLevelNames))
	for i, name := range actor.HealthLevelNames {
		levels[i] = HealthLevel{Name: name, Boxes: boxes, Penalty: actor.HealthLevelPenalties[i]}
	}
	return HealthLevels{Levels: levels}
}

func (h HealthLevels) clone() HealthLevels {
	levels := make([]HealthLevel, len(h.Levels))
	copy(levels, h.Levels)
	return HealthLevels{Levels: levels}
}

// CurrentLevel is the index of the first level that is not scarred, or
// the last index when every level is scarred. -1 for an empty ladder.
func (h HealthLevels) CurrentLevel() int {
	for i, lvl := range h.Levels {
		if !lvl.Scarred {
			return i
		}
	}
	return len(h.Levels) - 1
}

// Incapacitated reports whether the last level has taken any damage.
func (h HealthLevels) Incapacitated() bool {
	if len(h.Levels) == 0 {
		return false
	}
	return h.Levels[len(h.Levels)-1].DamageBoxes > 0
}

// Penalty sums the penalties of every damaged level.
func (h HealthLevels) Penalty() int {
	total := 0
	for _, lvl := range h.Levels {
		if lvl.DamageBoxes > 0 {
			total += lvl.Penalty
		}
	}
	return total
}

// Damaged reports whether any box is filled.
func (h HealthLevels) Damaged() bool {
	for _, lvl := range h.Levels {
		if lvl.DamageBoxes > 0 {
			return true
		}
	}
	return false
}

// Damage fills n boxes top-down. A level scars exactly when it is full.
// Damage beyond the last box is discarded; applied reports what landed.
func (h HealthLevels) Damage(n int) (out HealthLevels, applied int) {
	out = h.clone()
	for i := range out.Levels {
		if n == 0 {
			break
		}
		lvl := &out.Levels[i]
		free := lvl.Boxes - lvl.DamageBoxes
		if free <= 0 {
			lvl.Scarred = true
			continue
		}
		take := min(free, n)
		lvl.DamageBoxes += take
		lvl.Scarred = lvl.DamageBoxes == lvl.Boxes
		n -= take
		applied += take
	}
	return out, applied
}

// Heal clears up to n boxes in the current level only. Scarred levels are
// never healed and healing never moves on to another level.
func (h HealthLevels) Heal(n int) (out HealthLevels, healed int) {
	out = h.clone()
	idx := out.CurrentLevel()
	if idx < 0 || n <= 0 {
		return out, 0
	}
	lvl := &out.Levels[idx]
	if lvl.Scarred {
		return out, 0
	}
	healed = min(n, lvl.DamageBoxes)
	lvl.DamageBoxes -= healed
	return out, healed
}

// RecoverScar is the special recovery that clears the deepest scarred
// level. It reports false when nothing is scarred or a deeper level still
// carries damage.
func (h HealthLevels) RecoverScar() (HealthLevels, bool) {
	out := h.clone()
	deepest := -1
	for i, lvl := range out.Levels {
		if lvl.Scarred {
			deepest = i
		}
	}
	if deepest < 0 {
		return out, false
	}
	for _, lvl := range out.Levels[deepest+1:] {
		if lvl.DamageBoxes > 0 {
			return out, false
		}
	}
	out.Levels[deepest].DamageBoxes = 0
	out.Levels[deepest].Scarred = false
	return out, true
}

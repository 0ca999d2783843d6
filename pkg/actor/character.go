package actor

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/jwebster45206/d20"
)

// Attribute names one of the six stone-bearing attributes
type Attribute string

const (
	Might     Attribute = "might"
	Agility   Attribute = "agility"
	Vitality  Attribute = "vitality"
	Intellect Attribute = "intellect"
	Resolve   Attribute = "resolve"
	Influence Attribute = "influence"
)

// Attributes lists every attribute in sheet order
var Attributes = []Attribute{Might, Agility, Vitality, Intellect, Resolve, Influence}

// Valid reports whether a is one of the six sheet attributes
func (a Attribute) Valid() bool {
	switch a {
	case Might, Agility, Vitality, Intellect, Resolve, Influence:
		return true
	}
	return false
}

// masteryKey is the d20 attribute slot holding the Mastery Rank
const masteryKey = "mastery_rank"

// Scores holds the six attribute ratings of a character sheet
type Scores struct {
	Might     int `json:"might"`
	Agility   int `json:"agility"`
	Vitality  int `json:"vitality"`
	Intellect int `json:"intellect"`
	Resolve   int `json:"resolve"`
	Influence int `json:"influence"`
}

// ToAttributes converts Scores to a map for d20.Actor compatibility
func (s *Scores) ToAttributes() map[string]int {
	return map[string]int{
		string(Might):     s.Might,
		string(Agility):   s.Agility,
		string(Vitality):  s.Vitality,
		string(Intellect): s.Intellect,
		string(Resolve):   s.Resolve,
		string(Influence): s.Influence,
	}
}

// CharacterSpec is the serializable character sheet
type CharacterSpec struct {
	ID              string         `json:"id"`
	Name            string         `json:"name,omitempty"`
	IsPC            bool           `json:"is_pc,omitempty"`
	MasteryRank     int            `json:"mastery_rank,omitempty"`
	Scores          Scores         `json:"scores"`
	CombatModifiers map[string]int `json:"combat_modifiers,omitempty"`
}

// Character is the runtime representation of a combatant
type Character struct {
	Spec  *CharacterSpec
	Actor *d20.Actor // Built at runtime from CharacterSpec
}

// NewCharacterFromSpec creates a Character from a CharacterSpec
func NewCharacterFromSpec(spec *CharacterSpec) (*Character, error) {
	if spec == nil {
		return nil, fmt.Errorf("spec cannot be nil")
	}
	if strings.TrimSpace(spec.ID) == "" {
		return nil, fmt.Errorf("character id is required")
	}
	if spec.MasteryRank < 0 {
		return nil, fmt.Errorf("mastery rank cannot be negative: %d", spec.MasteryRank)
	}

	attrs := spec.Scores.ToAttributes()
	for k, v := range attrs {
		if v < 0 {
			return nil, fmt.Errorf("attribute %s cannot be negative: %d", k, v)
		}
	}
	maps.Copy(attrs, map[string]int{masteryKey: spec.MasteryRank})

	// HP tracks the total health boxes; the wound ladder owns the real state
	actor, err := d20.NewActor(spec.ID).
		WithHP(max(1, TotalHealthBoxes(spec.Scores.Vitality))).
		WithAC(0).
		WithAttributes(attrs).
		WithCombatModifiers(spec.CombatModifiers).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build actor: %w", err)
	}

	return &Character{Spec: spec, Actor: actor}, nil
}

// LoadCharacter reads a character sheet from a JSON file.
// The filename (without .json extension) overrides any ID in the JSON
func LoadCharacter(path string) (*Character, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read character file: %w", err)
	}

	var spec CharacterSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal character spec: %w", err)
	}
	spec.ID = strings.TrimSuffix(filepath.Base(path), ".json")

	return NewCharacterFromSpec(&spec)
}

func (c *Character) ID() string {
	if c == nil || c.Spec == nil {
		return ""
	}
	return c.Spec.ID
}

func (c *Character) Name() string {
	if c == nil || c.Spec == nil {
		return ""
	}
	if c.Spec.Name == "" {
		return c.Spec.ID
	}
	return c.Spec.Name
}

func (c *Character) IsPC() bool {
	return c != nil && c.Spec != nil && c.Spec.IsPC
}

// MasteryRank returns the character's progression tier
func (c *Character) MasteryRank() int {
	return c.attr(masteryKey)
}

// Attribute returns the rating of a, or 0 if unknown
func (c *Character) Attribute(a Attribute) int {
	return c.attr(string(a))
}

func (c *Character) attr(key string) int {
	if c == nil || c.Actor == nil {
		return 0
	}
	if val, ok := c.Actor.Attribute(key); ok {
		return val
	}
	return 0
}

// HealthLevelNames is the fixed wound ladder, top to bottom
var HealthLevelNames = []string{"Bruised", "Scratched", "Hurt", "Injured", "Wounded", "Maimed", "Incapacitated"}

// HealthLevelPenalties holds the dice penalty for each level in HealthLevelNames
var HealthLevelPenalties = []int{0, -1, -1, -2, -2, -3, -4}

// BoxesPerLevel returns the health boxes in every level for a Vitality rating
func BoxesPerLevel(vitality int) int {
	return vitality * 2
}

// TotalHealthBoxes returns the total boxes across the whole ladder
func TotalHealthBoxes(vitality int) int {
	return BoxesPerLevel(vitality) * len(HealthLevelNames)
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jwebster45206/combat-ledger/pkg/actor"
	"github.com/jwebster45206/combat-ledger/pkg/ledger"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <character.json>...\n", os.Args[0])
		os.Exit(1)
	}

	failed := false
	for _, filename := range os.Args[1:] {
		v := &CharacterValidator{}
		if err := v.validateFile(filename); err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			failed = true
			continue
		}
		fmt.Printf("%s is valid!\n", filename)
	}
	if failed {
		os.Exit(1)
	}
}

type CharacterValidator struct {
	errors []string
}

func (v *CharacterValidator) validateFile(filename string) error {
	fmt.Printf("Validating %s...\n", filename)

	baseName := filepath.Base(filename)
	if !strings.HasSuffix(baseName, ".json") {
		return fmt.Errorf("character file must have .json extension: %s", baseName)
	}
	id := strings.TrimSuffix(baseName, ".json")
	if !isValidID(id) {
		return fmt.Errorf("character filename '%s' must be lowercase snake_case (e.g., kara_venn.json)", baseName)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	if !json.Valid(data) {
		return fmt.Errorf("file %s contains invalid JSON", filename)
	}

	var spec actor.CharacterSpec
	decoder := json.NewDecoder(strings.NewReader(string(data)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&spec); err != nil {
		return fmt.Errorf("file %s failed strict JSON unmarshaling: %w", filename, err)
	}
	spec.ID = id

	v.errors = nil
	v.validateSpec(&spec)
	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", filename, strings.Join(v.errors, "\n"))
	}

	c, err := actor.NewCharacterFromSpec(&spec)
	if err != nil {
		return fmt.Errorf("file %s does not build a character: %w", filename, err)
	}
	printSummary(c)
	return nil
}

func (v *CharacterValidator) validateSpec(spec *actor.CharacterSpec) {
	if strings.TrimSpace(spec.Name) == "" {
		v.addError("name is empty")
	}
	if spec.MasteryRank < 0 {
		v.addError(fmt.Sprintf("mastery_rank %d is negative", spec.MasteryRank))
	}
	if spec.IsPC && spec.MasteryRank == 0 {
		v.addError("a PC needs a mastery_rank of at least 1 to regenerate stones")
	}
	for attr, score := range spec.Scores.ToAttributes() {
		if score < 0 {
			v.addError(fmt.Sprintf("%s score %d is negative", attr, score))
		}
	}
	if spec.Scores.Vitality == 0 {
		fmt.Println("  warning: vitality 0 leaves one box per health level")
	}
}

func (v *CharacterValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

func printSummary(c *actor.Character) {
	role := "NPC"
	if c.IsPC() {
		role = "PC"
	}
	fmt.Printf("  %s (%s, mastery %d)\n", c.Name(), role, c.MasteryRank())
	fmt.Print("  stones:")
	for _, a := range actor.Attributes {
		fmt.Printf(" %s %d", a, c.Attribute(a))
	}
	fmt.Println()
	fmt.Print("  health:")
	for _, lvl := range ledger.NewHealthLevels(c.Attribute(actor.Vitality)).Levels {
		fmt.Printf(" %s %d(%d)", lvl.Name, lvl.Boxes, lvl.Penalty)
	}
	fmt.Println()
}

var validIDRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)

func isValidID(id string) bool {
	return validIDRegex.MatchString(id)
}

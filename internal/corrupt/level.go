package corrupt

import (
	"fmt"
	"math/rand/v2"
)

// Level selects one corruption rule from the fixed table. The mapping from
// level to rule never changes; level 0 leaves the text untouched.
type Level int

const (
	MinLevel Level = 0
	MaxLevel Level = 9
)

var transforms = [...]transform{
	identity,
	moveOne,
	moveMany,
	removeOne,
	removeMany,
	insertMarks,
	randomCase,
	stripPunctuation,
	stripPunctuationLower,
	combo,
}

var levelNames = [...]string{
	"identity",
	"move_one",
	"move_many",
	"remove_one",
	"remove_many",
	"insert_marks",
	"random_case",
	"strip_punct",
	"strip_punct_lower",
	"combo",
}

// Valid reports whether l maps to a rule
func (l Level) Valid() bool {
	return l >= MinLevel && l <= MaxLevel
}

// String returns the rule name, used as a metrics label
func (l Level) String() string {
	if !l.Valid() {
		return fmt.Sprintf("level_%d", int(l))
	}
	return levelNames[l]
}

// Apply runs the rule for level on text. Every random choice comes from rng,
// so a fixed seed reproduces identical output.
func Apply(rng *rand.Rand, text string, level Level) (string, error) {
	if !level.Valid() {
		return "", fmt.Errorf("corrupt level %d outside [%d, %d]", int(level), int(MinLevel), int(MaxLevel))
	}
	return transforms[level](rng, text), nil
}

// PickLevel draws a level uniformly from [lo, hi]
func PickLevel(rng *rand.Rand, lo, hi Level) Level {
	return lo + Level(rng.IntN(int(hi-lo)+1))
}

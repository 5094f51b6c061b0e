package corrupt

import (
	"math/rand/v2"
	"slices"
	"strings"
	"unicode"
)

// punctuation is the set of marks the rules move, remove, and insert
var punctuation = []rune{',', '.', '?', ':', '!'}

func isPunct(r rune) bool {
	switch r {
	case ',', '.', '?', ':', '!':
		return true
	}
	return false
}

func isWordRune(r rune) bool {
	// ASCII alphanumerics only; accented letters do not open an insertion point
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// punctuationPositions returns the index of every punctuation rune
func punctuationPositions(runes []rune) []int {
	var positions []int
	for i, r := range runes {
		if isPunct(r) {
			positions = append(positions, i)
		}
	}
	return positions
}

// naturalPositions returns the insertion points that sit directly after a word
// rune and before whitespace or the end of the text
func naturalPositions(runes []rune) []int {
	var positions []int
	for i := 1; i <= len(runes); i++ {
		if !isWordRune(runes[i-1]) {
			continue
		}
		if i == len(runes) || unicode.IsSpace(runes[i]) {
			positions = append(positions, i)
		}
	}
	return positions
}

func countPunctuation(runes []rune) int {
	count := 0
	for _, r := range runes {
		if isPunct(r) {
			count++
		}
	}
	return count
}

type transform func(rng *rand.Rand, text string) string

func identity(_ *rand.Rand, text string) string {
	return text
}

// moveOne removes a random punctuation mark and re-inserts it at a random
// natural position. The mark is lost when the shortened text has none.
func moveOne(rng *rand.Rand, text string) string {
	runes := []rune(text)
	positions := punctuationPositions(runes)
	if len(positions) == 0 {
		return text
	}
	pos := positions[rng.IntN(len(positions))]
	char := runes[pos]
	runes = slices.Delete(runes, pos, pos+1)
	valid := naturalPositions(runes)
	if len(valid) > 0 {
		newPos := valid[rng.IntN(len(valid))]
		runes = slices.Insert(runes, newPos, char)
	}
	return string(runes)
}

// moveMany moves between one and three marks, leaving texts with at most one
// mark untouched
func moveMany(rng *rand.Rand, text string) string {
	total := countPunctuation([]rune(text))
	if total <= 1 {
		return text
	}
	num := 1 + rng.IntN(min(3, total-1))
	for i := 0; i < num; i++ {
		text = moveOne(rng, text)
	}
	return text
}

func removeOne(rng *rand.Rand, text string) string {
	runes := []rune(text)
	positions := punctuationPositions(runes)
	if len(positions) == 0 {
		return text
	}
	pos := positions[rng.IntN(len(positions))]
	return string(slices.Delete(runes, pos, pos+1))
}

func removeMany(rng *rand.Rand, text string) string {
	total := countPunctuation([]rune(text))
	if total == 0 {
		return text
	}
	num := 1 + rng.IntN(min(3, total))
	for i := 0; i < num; i++ {
		text = removeOne(rng, text)
	}
	return text
}

// insertMarks inserts one to five random marks at natural positions. Earlier
// positions stay eligible after an insert, so marks can stack.
func insertMarks(rng *rand.Rand, text string) string {
	runes := []rune(text)
	num := 1 + rng.IntN(5)
	valid := naturalPositions(runes)
	if len(valid) == 0 {
		return text
	}
	for i := 0; i < num; i++ {
		if len(valid) == 0 {
			break
		}
		pos := valid[rng.IntN(len(valid))]
		char := punctuation[rng.IntN(len(punctuation))]
		runes = slices.Insert(runes, pos, char)
		for j, p := range valid {
			if p >= pos {
				valid[j] = p + 1
			}
		}
	}
	return string(runes)
}

// randomCase uppercases each rune with probability 0.3 and lowercases it otherwise
func randomCase(rng *rand.Rand, text string) string {
	runes := []rune(text)
	for i, r := range runes {
		if rng.Float64() < 0.3 {
			runes[i] = unicode.ToUpper(r)
		} else {
			runes[i] = unicode.ToLower(r)
		}
	}
	return string(runes)
}

func stripPunctuation(_ *rand.Rand, text string) string {
	return strings.Map(func(r rune) rune {
		if isPunct(r) {
			return -1
		}
		return r
	}, text)
}

func stripPunctuationLower(rng *rand.Rand, text string) string {
	return strings.ToLower(stripPunctuation(rng, text))
}

// comboRules are the transforms combo draws pairs from
var comboRules = []transform{
	moveOne,
	moveMany,
	removeOne,
	removeMany,
	insertMarks,
	randomCase,
	stripPunctuation,
	stripPunctuationLower,
}

// combo chains two distinct rules, retrying with a fresh pair up to five times
// until the text actually changes
func combo(rng *rand.Rand, text string) string {
	for attempt := 0; attempt < 5; attempt++ {
		i := rng.IntN(len(comboRules))
		j := rng.IntN(len(comboRules) - 1)
		if j >= i {
			j++
		}
		modified := comboRules[j](rng, comboRules[i](rng, text))
		if modified != text {
			return modified
		}
	}
	return text
}

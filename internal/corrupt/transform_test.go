package corrupt

import (
	"math/rand/v2"
	"strings"
	"testing"
	"unicode/utf8"
)

func newRng(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func TestIdentityLevelLeavesTextUnchanged(t *testing.T) {
	text := "Hello world"
	got, err := Apply(newRng(1), text, 0)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got != text {
		t.Errorf("level 0 changed text: %q", got)
	}
}

func TestApplyRejectsOutOfRangeLevel(t *testing.T) {
	for _, level := range []Level{-1, 10, 42} {
		if _, err := Apply(newRng(1), "tekst", level); err == nil {
			t.Errorf("expected error for level %d", int(level))
		}
	}
}

func TestApplyDeterministicForFixedSeed(t *testing.T) {
	text := "Dette er ein lang setning, med fleire teikn. Er det sant? Ja: det er sant!"
	for level := MinLevel; level <= MaxLevel; level++ {
		first, err := Apply(newRng(42), text, level)
		if err != nil {
			t.Fatalf("Apply level %d failed: %v", int(level), err)
		}
		second, err := Apply(newRng(42), text, level)
		if err != nil {
			t.Fatalf("Apply level %d failed: %v", int(level), err)
		}
		if first != second {
			t.Errorf("level %d not deterministic for fixed seed:\n%q\n%q", int(level), first, second)
		}
	}
}

func TestApplyNonEmptyForAllLevels(t *testing.T) {
	text := "Nokre ord her, og nokre fleire der. Slik vert det ein tekst!"
	for level := MinLevel; level <= MaxLevel; level++ {
		for seed := uint64(0); seed < 25; seed++ {
			got, err := Apply(newRng(seed), text, level)
			if err != nil {
				t.Fatalf("Apply level %d failed: %v", int(level), err)
			}
			if got == "" {
				t.Fatalf("level %d seed %d produced empty text", int(level), seed)
			}
		}
	}
}

func TestMoveOnePreservesMarkCount(t *testing.T) {
	text := "Hei på deg, verden. No er det slutt."
	before := countPunctuation([]rune(text))
	for seed := uint64(0); seed < 20; seed++ {
		got := moveOne(newRng(seed), text)
		after := countPunctuation([]rune(got))
		if after != before {
			t.Errorf("seed %d: expected %d marks, got %d in %q", seed, before, after, got)
		}
	}
}

func TestMoveOneWithoutMarksIsNoop(t *testing.T) {
	text := "ingen teikn her"
	if got := moveOne(newRng(3), text); got != text {
		t.Errorf("expected unchanged text, got %q", got)
	}
}

func TestMoveManyNoopWithSingleMark(t *testing.T) {
	text := "Hello world."
	for seed := uint64(0); seed < 10; seed++ {
		if got := moveMany(newRng(seed), text); got != text {
			t.Errorf("seed %d changed text with one mark: %q", seed, got)
		}
	}
}

func TestRemoveOneDropsExactlyOneMark(t *testing.T) {
	text := "Ei setning, med teikn. Og meir?"
	before := countPunctuation([]rune(text))
	for seed := uint64(0); seed < 20; seed++ {
		got := removeOne(newRng(seed), text)
		if after := countPunctuation([]rune(got)); after != before-1 {
			t.Errorf("seed %d: expected %d marks, got %d", seed, before-1, after)
		}
	}
}

func TestRemoveManyDropsOneToThreeMarks(t *testing.T) {
	text := "Ein, to, tre, fire, fem. Seks!"
	before := countPunctuation([]rune(text))
	for seed := uint64(0); seed < 20; seed++ {
		got := removeMany(newRng(seed), text)
		removed := before - countPunctuation([]rune(got))
		if removed < 1 || removed > 3 {
			t.Errorf("seed %d: removed %d marks, want 1..3", seed, removed)
		}
	}
}

func TestInsertMarksAddsOneToFive(t *testing.T) {
	text := "dette er ein test av systemet"
	for seed := uint64(0); seed < 20; seed++ {
		got := insertMarks(newRng(seed), text)
		added := countPunctuation([]rune(got))
		if added < 1 || added > 5 {
			t.Errorf("seed %d: inserted %d marks, want 1..5", seed, added)
		}
	}
}

func TestInsertMarksWithoutPositionsIsNoop(t *testing.T) {
	// No ASCII alphanumeric followed by space or end, so nowhere to insert.
	text := "æøå æøå"
	if got := insertMarks(newRng(7), text); got != text {
		t.Errorf("expected unchanged text, got %q", got)
	}
}

func TestRandomCaseOnlyChangesCasing(t *testing.T) {
	text := "Blandet Tekst, med Teikn og tal 123."
	for seed := uint64(0); seed < 20; seed++ {
		got := randomCase(newRng(seed), text)
		if !strings.EqualFold(got, text) {
			t.Errorf("seed %d: letters changed: %q", seed, got)
		}
		if utf8.RuneCountInString(got) != utf8.RuneCountInString(text) {
			t.Errorf("seed %d: length changed: %q", seed, got)
		}
	}
}

func TestStripPunctuationRemovesAllMarks(t *testing.T) {
	got := stripPunctuation(newRng(1), "Hei, verden. Kva no? Slik: ja!")
	if countPunctuation([]rune(got)) != 0 {
		t.Errorf("marks remain in %q", got)
	}
	if !strings.Contains(got, "Hei verden") {
		t.Errorf("words damaged: %q", got)
	}
}

func TestStripPunctuationLowercases(t *testing.T) {
	got := stripPunctuationLower(newRng(1), "Hei, Verden!")
	if got != "hei verden" {
		t.Errorf("expected %q, got %q", "hei verden", got)
	}
}

func TestComboProducesChangeAcrossSeeds(t *testing.T) {
	text := "Dette er ein rik tekst, med mange teikn. Er det nok? Ja: heilt sikkert!"
	changed := 0
	for seed := uint64(0); seed < 50; seed++ {
		got := combo(newRng(seed), text)
		if got == "" {
			t.Fatalf("seed %d produced empty text", seed)
		}
		if got != text {
			changed++
		}
	}
	if changed == 0 {
		t.Error("combo never changed the text across 50 seeds")
	}
}

func TestPickLevelStaysWithinBounds(t *testing.T) {
	rng := newRng(9)
	for i := 0; i < 500; i++ {
		level := PickLevel(rng, 3, 7)
		if level < 3 || level > 7 {
			t.Fatalf("draw %d: level %d outside [3, 7]", i, int(level))
		}
	}
	for i := 0; i < 10; i++ {
		if level := PickLevel(rng, 4, 4); level != 4 {
			t.Fatalf("expected fixed level 4, got %d", int(level))
		}
	}
}

func TestNaturalPositionsUseASCIIWordBoundaries(t *testing.T) {
	positions := naturalPositions([]rune("Hei på deg"))
	// After "Hei" (index 3) and at end of text (index 10); "på" ends in a
	// non-ASCII rune and does not qualify.
	want := []int{3, 10}
	if len(positions) != len(want) {
		t.Fatalf("expected positions %v, got %v", want, positions)
	}
	for i := range want {
		if positions[i] != want[i] {
			t.Fatalf("expected positions %v, got %v", want, positions)
		}
	}
}

func TestPunctuationPositions(t *testing.T) {
	positions := punctuationPositions([]rune("a,b.c"))
	if len(positions) != 2 || positions[0] != 1 || positions[1] != 3 {
		t.Fatalf("expected [1 3], got %v", positions)
	}
}

func TestLevelNames(t *testing.T) {
	if MinLevel.String() != "identity" {
		t.Errorf("unexpected name for level 0: %s", MinLevel)
	}
	if MaxLevel.String() != "combo" {
		t.Errorf("unexpected name for level 9: %s", MaxLevel)
	}
	if Level(12).String() != "level_12" {
		t.Errorf("unexpected name for out-of-range level: %s", Level(12))
	}
}

package split

import (
	"fmt"
	"math/rand/v2"
	"testing"
)

func TestParseSpecs(t *testing.T) {
	specs, err := ParseSpecs("train=1000000, validation=10000,test=rest")
	if err != nil {
		t.Fatalf("ParseSpecs failed: %v", err)
	}
	want := []Spec{
		{Name: "train", Count: 1000000},
		{Name: "validation", Count: 10000},
		{Name: "test", Count: Rest},
	}
	if len(specs) != len(want) {
		t.Fatalf("expected %d specs, got %d", len(want), len(specs))
	}
	for i := range want {
		if specs[i] != want[i] {
			t.Errorf("spec %d: expected %+v, got %+v", i, want[i], specs[i])
		}
	}
}

func TestParseSpecsRejectsBadInput(t *testing.T) {
	bad := []string{
		"",
		"train",
		"train=",
		"train=0",
		"train=-5",
		"train=abc",
		"train=10,train=20",
		"a=rest,b=rest",
		"../evil=10",
		"a/b=10",
		"=10",
	}
	for _, input := range bad {
		if _, err := ParseSpecs(input); err == nil {
			t.Errorf("expected error for %q", input)
		}
	}
}

func TestPartitionDeclaredOrder(t *testing.T) {
	allocs, shortfall := Partition(15, []Spec{{Name: "a", Count: 10}, {Name: "b", Count: 10}})
	if allocs[0].Count != 10 || allocs[1].Count != 5 {
		t.Errorf("expected counts [10 5], got [%d %d]", allocs[0].Count, allocs[1].Count)
	}
	if shortfall["b"] != 5 {
		t.Errorf("expected shortfall 5 for b, got %d", shortfall["b"])
	}
	if _, found := shortfall["a"]; found {
		t.Error("a should not be short")
	}
}

func TestPartitionExactFit(t *testing.T) {
	allocs, shortfall := Partition(20, []Spec{{Name: "a", Count: 10}, {Name: "b", Count: 10}})
	if allocs[0].Count != 10 || allocs[1].Count != 10 {
		t.Errorf("expected counts [10 10], got [%d %d]", allocs[0].Count, allocs[1].Count)
	}
	if len(shortfall) != 0 {
		t.Errorf("expected no shortfall, got %v", shortfall)
	}
}

func TestPartitionRestTakesRemainder(t *testing.T) {
	specs := []Spec{{Name: "test", Count: 250}, {Name: "validation", Count: 250}, {Name: "train", Count: Rest}}
	allocs, shortfall := Partition(10000, specs)
	if allocs[0].Count != 250 || allocs[1].Count != 250 || allocs[2].Count != 9500 {
		t.Errorf("expected counts [250 250 9500], got %+v", allocs)
	}
	if len(shortfall) != 0 {
		t.Errorf("expected no shortfall, got %v", shortfall)
	}
}

func TestPartitionRestNeverShort(t *testing.T) {
	allocs, shortfall := Partition(10, []Spec{{Name: "a", Count: 10}, {Name: "b", Count: Rest}})
	if allocs[1].Count != 0 {
		t.Errorf("expected rest split to get 0, got %d", allocs[1].Count)
	}
	if len(shortfall) != 0 {
		t.Errorf("rest split must not count as short, got %v", shortfall)
	}
}

func TestPartitionExhaustedInput(t *testing.T) {
	allocs, shortfall := Partition(5, []Spec{{Name: "a", Count: 10}, {Name: "b", Count: 3}})
	if allocs[0].Count != 5 || allocs[1].Count != 0 {
		t.Errorf("expected counts [5 0], got %+v", allocs)
	}
	if shortfall["a"] != 5 || shortfall["b"] != 3 {
		t.Errorf("expected shortfall a=5 b=3, got %v", shortfall)
	}
}

func TestShuffleIsDeterministicPermutation(t *testing.T) {
	makeLines := func() [][]byte {
		lines := make([][]byte, 100)
		for i := range lines {
			lines[i] = []byte(fmt.Sprintf(`{"i":%d}`, i))
		}
		return lines
	}

	a := makeLines()
	b := makeLines()
	Shuffle(rand.New(rand.NewPCG(7, 7)), a)
	Shuffle(rand.New(rand.NewPCG(7, 7)), b)

	for i := range a {
		if string(a[i]) != string(b[i]) {
			t.Fatalf("same seed produced different orders at %d", i)
		}
	}

	counts := make(map[string]int)
	for _, line := range a {
		counts[string(line)]++
	}
	if len(counts) != 100 {
		t.Fatalf("expected 100 distinct lines after shuffle, got %d", len(counts))
	}
	for line, n := range counts {
		if n != 1 {
			t.Fatalf("line %s appears %d times", line, n)
		}
	}

	moved := 0
	original := makeLines()
	for i := range a {
		if string(a[i]) != string(original[i]) {
			moved++
		}
	}
	if moved == 0 {
		t.Error("shuffle left every line in place")
	}
}

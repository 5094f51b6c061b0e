package split

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

// Rest marks a split that takes every record left after the fixed-size splits
const Rest = -1

// Spec describes one named split target in declared order
type Spec struct {
	Name  string
	Count int
}

// Allocation is the record count a split actually receives
type Allocation struct {
	Name  string
	Count int
}

// ParseSpecs parses a split list like "train=1000000,validation=10000,test=rest".
// Names must be unique and safe to use as file names; at most one split may
// take the rest.
func ParseSpecs(s string) ([]Spec, error) {
	seen := make(map[string]bool)
	restSeen := false
	var specs []Spec

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, found := strings.Cut(part, "=")
		if !found {
			return nil, fmt.Errorf("split %q must look like name=count", part)
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name == "" {
			return nil, fmt.Errorf("split %q has an empty name", part)
		}
		if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
			return nil, fmt.Errorf("split name %q is not a safe file name", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate split name %q", name)
		}
		seen[name] = true

		if value == "rest" {
			if restSeen {
				return nil, fmt.Errorf("only one split can take the rest")
			}
			restSeen = true
			specs = append(specs, Spec{Name: name, Count: Rest})
			continue
		}
		count, err := strconv.Atoi(value)
		if err != nil || count <= 0 {
			return nil, fmt.Errorf("split %q needs a positive count or 'rest'", name)
		}
		specs = append(specs, Spec{Name: name, Count: count})
	}

	if len(specs) == 0 {
		return nil, fmt.Errorf("no splits given")
	}
	return specs, nil
}

// Partition assigns n records to the specs in declared order. Each split takes
// the next spec.Count records while they last; a Rest split takes everything
// still unassigned. The shortfall map records how many records each
// under-filled split is missing.
func Partition(n int, specs []Spec) ([]Allocation, map[string]int) {
	remaining := n
	allocs := make([]Allocation, 0, len(specs))
	shortfall := make(map[string]int)

	for _, spec := range specs {
		want := spec.Count
		if want == Rest {
			want = remaining
		}
		actual := min(want, remaining)
		if actual < want {
			shortfall[spec.Name] = want - actual
		}
		allocs = append(allocs, Allocation{Name: spec.Name, Count: actual})
		remaining -= actual
	}
	return allocs, shortfall
}

// Shuffle permutes lines in place with an unbiased Fisher-Yates pass driven by rng
func Shuffle(rng *rand.Rand, lines [][]byte) {
	rng.Shuffle(len(lines), func(i, j int) {
		lines[i], lines[j] = lines[j], lines[i]
	})
}

package split

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/simeneide/djuplet/internal/jsonl"
	"github.com/simeneide/djuplet/internal/metrics"
	"github.com/simeneide/djuplet/pkg/models"
)

// ManifestName is the metadata file written next to the split files
const ManifestName = "dataset_info.json"

// Options configures one shuffle-and-split run
type Options struct {
	InputPath   string
	OutputDir   string
	Specs       []Spec
	Seed        uint64
	Description string
	Citation    string
	License     string
}

func (o Options) validate() error {
	if o.InputPath == "" {
		return fmt.Errorf("input path is required")
	}
	if o.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if len(o.Specs) == 0 {
		return fmt.Errorf("at least one split is required")
	}
	return nil
}

// Run loads the whole input file, shuffles it, writes one JSONL file per split
// and a dataset_info.json manifest. Splits are filled in declared order; when
// records run out the remaining splits are filled as far as possible and the
// shortage is logged and recorded in the stats.
func Run(ctx context.Context, opts Options, logger *slog.Logger, collector *metrics.Collector) (*models.StageStats, error) {
	stats := models.NewStageStats()
	defer func() { stats.EndTime = time.Now() }()

	if err := opts.validate(); err != nil {
		return stats, err
	}

	lines, err := jsonl.ReadAll(opts.InputPath)
	if err != nil {
		return stats, err
	}
	stats.Read = len(lines)

	logger.Info("Shuffling dataset", "records", len(lines), "seed", opts.Seed)
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	Shuffle(rng, lines)

	allocs, shortfall := Partition(len(lines), opts.Specs)
	for name, missing := range shortfall {
		stats.Shortfall[name] = missing
		logger.Warn("Split is short of records", "split", name, "missing", missing)
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return stats, fmt.Errorf("failed to create output directory: %w", err)
	}

	total := 0
	for _, alloc := range allocs {
		total += alloc.Count
	}
	bar := progressbar.Default(int64(total), "Writing splits")

	index := 0
	for _, alloc := range allocs {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		path := filepath.Join(opts.OutputDir, alloc.Name+".jsonl")
		w, err := jsonl.Create(path)
		if err != nil {
			return stats, err
		}
		for i := 0; i < alloc.Count; i++ {
			if err := w.WriteLine(lines[index]); err != nil {
				w.Close()
				return stats, err
			}
			index++
			stats.Written++
			bar.Add(1)
		}
		if err := w.Close(); err != nil {
			return stats, err
		}
		collector.RecordOutcome("split", "written")
		logger.Info("Wrote split", "split", alloc.Name, "records", alloc.Count, "path", path)
	}
	bar.Finish()

	manifest := BuildManifest(allocs, InferFeatures(firstLine(lines)), opts)
	if err := WriteManifest(filepath.Join(opts.OutputDir, ManifestName), manifest); err != nil {
		return stats, err
	}

	logger.Info("Split complete",
		"records", stats.Read,
		"assigned", stats.Written,
		"unassigned", stats.Read-stats.Written,
		"splits", len(allocs))
	return stats, nil
}

func firstLine(lines [][]byte) []byte {
	if len(lines) == 0 {
		return nil
	}
	return lines[0]
}

// BuildManifest assembles the dataset_info.json content for the given allocations
func BuildManifest(allocs []Allocation, features map[string]string, opts Options) models.Manifest {
	manifest := models.Manifest{
		Splits:      make([]models.SplitInfo, 0, len(allocs)),
		Format:      "jsonl",
		Features:    features,
		Description: opts.Description,
		Citation:    opts.Citation,
		License:     opts.License,
	}
	for _, alloc := range allocs {
		manifest.Splits = append(manifest.Splits, models.SplitInfo{
			Name:        alloc.Name,
			Path:        alloc.Name + ".jsonl",
			NumExamples: alloc.Count,
		})
		manifest.TotalSamples += alloc.Count
	}
	return manifest
}

// WriteManifest writes the manifest as indented JSON
func WriteManifest(path string, manifest models.Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// InferFeatures maps field names of the first record to JSON type names
func InferFeatures(line []byte) map[string]string {
	if len(line) == 0 {
		return nil
	}
	var rec map[string]any
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil
	}
	features := make(map[string]string, len(rec))
	for key, value := range rec {
		features[key] = jsonTypeName(value)
	}
	return features
}

func jsonTypeName(v any) string {
	switch t := v.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	case float64:
		if t == math.Trunc(t) {
			return "int64"
		}
		return "float64"
	case []any:
		return "list"
	case map[string]any:
		return "struct"
	default:
		return "null"
	}
}

package reason

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pemistahl/lingua-go"
	"github.com/schollz/progressbar/v3"

	"github.com/simeneide/djuplet/internal/jsonl"
	"github.com/simeneide/djuplet/internal/metrics"
	"github.com/simeneide/djuplet/pkg/models"
)

// Drop reasons reported by the filter stage.
const (
	DropInvalidJSON      = "invalid_json"
	DropMissingReasoning = "missing_reasoning"
	DropWrongLanguage    = "wrong_language"
	DropUndetected       = "undetected"
	DropLowConfidence    = "low_confidence"
)

// languageNames maps config names to lingua languages. Norwegian is split
// into its two written standards, so "norwegian" is deliberately absent.
var languageNames = map[string]lingua.Language{
	"bokmal":  lingua.Bokmal,
	"nb":      lingua.Bokmal,
	"nynorsk": lingua.Nynorsk,
	"nn":      lingua.Nynorsk,
	"english": lingua.English,
	"en":      lingua.English,
	"danish":  lingua.Danish,
	"da":      lingua.Danish,
	"swedish": lingua.Swedish,
	"sv":      lingua.Swedish,
	"german":  lingua.German,
	"de":      lingua.German,
}

// contrastLanguages are always part of the detector. Bokmål's closest
// relatives have to be candidates or the detector would label everything
// Norwegian by default.
var contrastLanguages = []lingua.Language{
	lingua.Bokmal,
	lingua.Nynorsk,
	lingua.English,
	lingua.Danish,
	lingua.Swedish,
	lingua.German,
}

// FilterOptions configures the language filter stage.
type FilterOptions struct {
	InputPath  string
	OutputPath string
	// Languages lists the names of languages to keep, e.g. ["bokmal"].
	Languages []string
	// MinConfidence additionally requires the detector's confidence for the
	// detected language to reach this value. Zero disables the check.
	MinConfidence float64
}

func (o FilterOptions) validate() error {
	if o.InputPath == "" {
		return fmt.Errorf("input path is required")
	}
	if o.OutputPath == "" {
		return fmt.Errorf("output path is required")
	}
	if len(o.Languages) == 0 {
		return fmt.Errorf("at least one language to keep is required")
	}
	if o.MinConfidence < 0 || o.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be between 0.0 and 1.0, got %g", o.MinConfidence)
	}
	return nil
}

// parseLanguages resolves config names to the keep set.
func parseLanguages(names []string) (map[lingua.Language]bool, error) {
	keep := make(map[lingua.Language]bool, len(names))
	for _, name := range names {
		lang, ok := languageNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			known := make([]string, 0, len(languageNames))
			for n := range languageNames {
				known = append(known, n)
			}
			sort.Strings(known)
			return nil, fmt.Errorf("unknown language %q, known names: %s", name, strings.Join(known, ", "))
		}
		keep[lang] = true
	}
	return keep, nil
}

// Filter keeps only records whose reasoning is written in one of the wanted
// languages. Kept lines are copied through byte for byte so fields this stage
// does not know about survive.
func Filter(ctx context.Context, opts FilterOptions, logger *slog.Logger, collector *metrics.Collector) (*models.StageStats, error) {
	stats := models.NewStageStats()
	defer func() { stats.EndTime = time.Now() }()

	if err := opts.validate(); err != nil {
		return stats, err
	}

	keep, err := parseLanguages(opts.Languages)
	if err != nil {
		return stats, err
	}

	candidates := make([]lingua.Language, 0, len(contrastLanguages)+len(keep))
	seen := make(map[lingua.Language]bool)
	for _, lang := range contrastLanguages {
		candidates = append(candidates, lang)
		seen[lang] = true
	}
	for lang := range keep {
		if !seen[lang] {
			candidates = append(candidates, lang)
		}
	}

	logger.Info("Building language detector", "candidates", len(candidates))
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(candidates...).
		Build()

	in, err := os.Open(opts.InputPath)
	if err != nil {
		return stats, fmt.Errorf("failed to open input file: %w", err)
	}
	defer in.Close()

	out, err := jsonl.Create(opts.OutputPath)
	if err != nil {
		return stats, fmt.Errorf("failed to create output file: %w", err)
	}

	logger.Info("Filtering by reasoning language",
		"input", opts.InputPath,
		"languages", opts.Languages,
		"min_confidence", opts.MinConfidence)

	bar := progressbar.Default(-1, "Filtering records")
	reader := jsonl.NewReader(in)
	for {
		select {
		case <-ctx.Done():
			out.Close()
			return stats, ctx.Err()
		default:
		}

		line, ok := reader.Next()
		if !ok {
			break
		}
		stats.Read++
		_ = bar.Add(1)

		var rec struct {
			Reasoning string `json:"reasoning"`
		}
		if err := json.Unmarshal(line, &rec); err != nil {
			stats.Drop(DropInvalidJSON)
			collector.RecordOutcome("filter", DropInvalidJSON)
			logger.Warn("Skipping malformed record", "line", reader.Line(), "error", err)
			continue
		}
		if rec.Reasoning == "" {
			stats.Drop(DropMissingReasoning)
			collector.RecordOutcome("filter", DropMissingReasoning)
			continue
		}

		lang, detected := detector.DetectLanguageOf(rec.Reasoning)
		if !detected {
			stats.Drop(DropUndetected)
			collector.RecordOutcome("filter", DropUndetected)
			continue
		}
		if !keep[lang] {
			stats.Drop(DropWrongLanguage)
			collector.RecordOutcome("filter", DropWrongLanguage)
			logger.Debug("Dropping record in wrong language",
				"line", reader.Line(),
				"detected", lang.String())
			continue
		}
		if opts.MinConfidence > 0 {
			confidence := detector.ComputeLanguageConfidence(rec.Reasoning, lang)
			if confidence < opts.MinConfidence {
				stats.Drop(DropLowConfidence)
				collector.RecordOutcome("filter", DropLowConfidence)
				continue
			}
		}

		if err := out.WriteLine(line); err != nil {
			out.Close()
			return stats, fmt.Errorf("failed to write record: %w", err)
		}
		stats.Written++
		collector.RecordOutcome("filter", "written")
	}
	if err := reader.Err(); err != nil {
		out.Close()
		return stats, fmt.Errorf("failed to read input: %w", err)
	}

	if err := out.Close(); err != nil {
		return stats, fmt.Errorf("failed to close output file: %w", err)
	}

	logger.Info("Language filter complete",
		"read", stats.Read,
		"written", stats.Written,
		"dropped", stats.DroppedTotal(),
		"duration", stats.Duration().Round(time.Millisecond))
	return stats, nil
}

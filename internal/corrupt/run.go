package corrupt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/simeneide/djuplet/internal/jsonl"
	"github.com/simeneide/djuplet/internal/metrics"
	"github.com/simeneide/djuplet/pkg/models"
)

// Options configures one corruption run
type Options struct {
	InputPath  string
	OutputPath string
	MinWords   int
	MinLevel   Level
	MaxLevel   Level
	Seed       uint64
}

func (o Options) validate() error {
	if o.InputPath == "" {
		return fmt.Errorf("input path is required")
	}
	if o.OutputPath == "" {
		return fmt.Errorf("output path is required")
	}
	if !o.MinLevel.Valid() || !o.MaxLevel.Valid() {
		return fmt.Errorf("level bounds [%d, %d] outside [%d, %d]",
			int(o.MinLevel), int(o.MaxLevel), int(MinLevel), int(MaxLevel))
	}
	if o.MinLevel > o.MaxLevel {
		return fmt.Errorf("min level %d exceeds max level %d", int(o.MinLevel), int(o.MaxLevel))
	}
	return nil
}

// Run reads paragraph records from the input file, draws a corruption level
// for each and writes corrupted records to the output file. Unusable records
// are dropped and counted; read or write failures abort the run. The returned
// stats are valid even when the error is not nil.
func Run(ctx context.Context, opts Options, logger *slog.Logger, collector *metrics.Collector) (*models.StageStats, error) {
	stats := models.NewStageStats()
	defer func() { stats.EndTime = time.Now() }()

	if err := opts.validate(); err != nil {
		return stats, err
	}
	minWords := opts.MinWords
	if minWords < 1 {
		minWords = 1
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))

	in, err := os.Open(opts.InputPath)
	if err != nil {
		return stats, fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	out, err := jsonl.Create(opts.OutputPath)
	if err != nil {
		return stats, err
	}
	defer out.Close()

	logger.Info("Corrupting paragraphs",
		"input", opts.InputPath,
		"output", opts.OutputPath,
		"min_level", int(opts.MinLevel),
		"max_level", int(opts.MaxLevel),
		"seed", opts.Seed)

	bar := progressbar.Default(-1, "Corrupting")
	reader := jsonl.NewReader(in)

	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		line, ok := reader.Next()
		if !ok {
			break
		}
		stats.Read++

		var rec models.ParagraphRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			stats.Drop(DropInvalidJSON)
			collector.RecordOutcome("corrupt", "dropped")
			logger.Debug("Skipping malformed line", "line", reader.Line(), "error", err)
			continue
		}

		rec.Text = Clean(rec.Text)
		if reason, usable := Validate(rec.Text, minWords); !usable {
			stats.Drop(reason)
			collector.RecordOutcome("corrupt", "dropped")
			logger.Debug("Dropping paragraph", "line", reader.Line(), "reason", reason)
			continue
		}

		level := PickLevel(rng, opts.MinLevel, opts.MaxLevel)
		corrupted, err := Apply(rng, rec.Text, level)
		if err != nil {
			return stats, err
		}
		if corrupted == "" {
			stats.Drop(DropEmptyCorrupt)
			collector.RecordOutcome("corrupt", "dropped")
			continue
		}

		if err := out.Write(models.CorruptRecord{
			Text:            rec.Text,
			URL:             rec.URL,
			ParagraphNumber: rec.ParagraphNumber,
			Corrupt:         corrupted,
			CorruptLevel:    int(level),
		}); err != nil {
			return stats, err
		}
		stats.Written++
		collector.RecordOutcome("corrupt", "written")
		collector.RecordCorruptLevel(level.String())
		bar.Add(1)
	}

	if err := reader.Err(); err != nil {
		return stats, err
	}
	if err := out.Close(); err != nil {
		return stats, err
	}
	bar.Finish()

	logger.Info("Corruption complete",
		"read", stats.Read,
		"written", stats.Written,
		"dropped", stats.DroppedTotal())
	return stats, nil
}

package reason

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/simeneide/djuplet/internal/jsonl"
	"github.com/simeneide/djuplet/internal/metrics"
	"github.com/simeneide/djuplet/pkg/models"
)

// DropErrorReasoning counts records skipped because the fetch stage stored
// an error sentinel instead of a trace.
const DropErrorReasoning = "error_reasoning"

// PromptOptions configures the prompt assembly stage.
type PromptOptions struct {
	InputPath  string
	OutputPath string
	// Template is the literal instruction text placed before the corrupted
	// paragraph. It is prepended as-is, without any placeholder expansion.
	Template string
}

func (o PromptOptions) validate() error {
	if o.InputPath == "" {
		return fmt.Errorf("input path is required")
	}
	if o.OutputPath == "" {
		return fmt.Errorf("output path is required")
	}
	return nil
}

// BuildPrompts rewrites each reasoned record into a training example: the
// text field becomes instruction, corrupted paragraph, the reasoning wrapped
// in <think> tags and finally the clean paragraph. Records whose reasoning
// contains "ERROR" are skipped. Every other field is carried through
// unchanged.
func BuildPrompts(ctx context.Context, opts PromptOptions, logger *slog.Logger, collector *metrics.Collector) (*models.StageStats, error) {
	stats := models.NewStageStats()
	defer func() { stats.EndTime = time.Now() }()

	if err := opts.validate(); err != nil {
		return stats, err
	}

	in, err := os.Open(opts.InputPath)
	if err != nil {
		return stats, fmt.Errorf("failed to open input file: %w", err)
	}
	defer in.Close()

	out, err := jsonl.Create(opts.OutputPath)
	if err != nil {
		return stats, fmt.Errorf("failed to create output file: %w", err)
	}

	logger.Info("Assembling training prompts",
		"input", opts.InputPath,
		"output", opts.OutputPath)

	bar := progressbar.Default(-1, "Building prompts")
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

		var record map[string]any
		if err := json.Unmarshal(line, &record); err != nil {
			stats.Drop(DropInvalidJSON)
			collector.RecordOutcome("prompt", DropInvalidJSON)
			logger.Warn("Skipping malformed record", "line", reader.Line(), "error", err)
			continue
		}

		reasoning, _ := record["reasoning"].(string)
		if strings.Contains(reasoning, "ERROR") {
			stats.Drop(DropErrorReasoning)
			collector.RecordOutcome("prompt", DropErrorReasoning)
			continue
		}

		corrupt, _ := record["corrupt"].(string)
		original, _ := record["original_text"].(string)
		record["text"] = opts.Template + corrupt + "<think>" + reasoning + "</think>" + original

		if err := out.Write(record); err != nil {
			out.Close()
			return stats, fmt.Errorf("failed to write record: %w", err)
		}
		stats.Written++
		collector.RecordOutcome("prompt", "written")
	}
	if err := reader.Err(); err != nil {
		out.Close()
		return stats, fmt.Errorf("failed to read input: %w", err)
	}

	if err := out.Close(); err != nil {
		return stats, fmt.Errorf("failed to close output file: %w", err)
	}

	logger.Info("Prompt assembly complete",
		"read", stats.Read,
		"written", stats.Written,
		"skipped_errors", stats.Dropped[DropErrorReasoning],
		"duration", stats.Duration().Round(time.Millisecond))
	return stats, nil
}

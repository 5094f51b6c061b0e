// Package reason implements the reasoning track: fetching chain-of-thought
// traces from an OpenAI-compatible API, filtering them by language, and
// assembling final training prompts.
package reason

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/simeneide/djuplet/internal/api"
	"github.com/simeneide/djuplet/internal/config"
	"github.com/simeneide/djuplet/internal/jsonl"
	"github.com/simeneide/djuplet/internal/metrics"
	"github.com/simeneide/djuplet/internal/util"
	"github.com/simeneide/djuplet/pkg/models"
)

// APIErrorSentinel is stored in the reasoning field when a request fails
// after all retries. Downstream stages drop any record whose reasoning
// contains "ERROR", so failed rows never reach the final dataset but still
// occupy their line, which keeps resume-by-line-count exact.
const APIErrorSentinel = "ERROR: Failed to get response from API"

// emptyReasoningSentinel marks responses that came back without any usable
// reasoning text.
const emptyReasoningSentinel = "ERROR: reasoning missing from response"

// Completer is the part of the API client the fetch stage uses.
type Completer interface {
	Complete(ctx context.Context, modelCfg config.ModelConfig, apiKey string, messages []api.Message) (*api.ChatCompletionResponse, error)
}

// FetchOptions configures the reasoning fetch stage.
type FetchOptions struct {
	InputPath    string
	OutputPath   string
	Model        config.ModelConfig
	APIKey       string
	SystemPrompt string
	Template     string
	Concurrency  int
}

func (o FetchOptions) validate() error {
	if o.InputPath == "" {
		return fmt.Errorf("input path is required")
	}
	if o.OutputPath == "" {
		return fmt.Errorf("output path is required")
	}
	if o.Concurrency < 1 || o.Concurrency > config.MaxConcurrency {
		return fmt.Errorf("concurrency must be between 1 and %d, got %d", config.MaxConcurrency, o.Concurrency)
	}
	if o.Template == "" {
		return fmt.Errorf("prompt template is required")
	}
	return nil
}

// Fetch requests a reasoning trace for every record in the input file and
// writes one output record per input line, in input order. If the output
// file already exists its line count determines how many input records are
// skipped, so an interrupted run can be resumed by running it again.
func Fetch(ctx context.Context, client Completer, opts FetchOptions, logger *slog.Logger, collector *metrics.Collector) (*models.StageStats, error) {
	stats := models.NewStageStats()
	defer func() { stats.EndTime = time.Now() }()

	if err := opts.validate(); err != nil {
		return stats, err
	}

	// Fail fast on template errors before any API traffic.
	if _, err := util.RenderTemplate(opts.Template, promptData{Text: "probe"}); err != nil {
		return stats, fmt.Errorf("invalid prompt template: %w", err)
	}

	total, err := jsonl.CountLines(opts.InputPath)
	if err != nil {
		return stats, fmt.Errorf("failed to count input records: %w", err)
	}

	processed, err := jsonl.CountLines(opts.OutputPath)
	if err != nil {
		return stats, fmt.Errorf("failed to inspect output file: %w", err)
	}
	if processed > total {
		return stats, fmt.Errorf("output has %d records but input only %d, refusing to resume", processed, total)
	}

	if processed == total {
		logger.Info("All records already processed, nothing to do", "records", total)
		return stats, nil
	}

	var out *jsonl.Writer
	if processed > 0 {
		logger.Info("Resuming reasoning fetch",
			"already_processed", processed,
			"remaining", total-processed)
		out, err = jsonl.Append(opts.OutputPath)
	} else {
		out, err = jsonl.Create(opts.OutputPath)
	}
	if err != nil {
		return stats, fmt.Errorf("failed to open output file: %w", err)
	}

	in, err := os.Open(opts.InputPath)
	if err != nil {
		out.Close()
		return stats, fmt.Errorf("failed to open input file: %w", err)
	}
	defer in.Close()

	logger.Info("Fetching reasoning traces",
		"model", opts.Model.ModelName,
		"base_url", opts.Model.BaseURL,
		"records", total-processed,
		"concurrency", opts.Concurrency)

	bar := progressbar.Default(int64(total), "Fetching reasoning")
	if processed > 0 {
		_ = bar.Add(processed)
	}

	jobs := make(chan models.FetchJob, opts.Concurrency*2)
	results := make(chan models.FetchResult, opts.Concurrency*2)
	produceErr := make(chan error, 1)

	collector.SetActiveWorkers("fetch", opts.Concurrency)
	defer collector.SetActiveWorkers("fetch", 0)

	var wg sync.WaitGroup
	wg.Add(opts.Concurrency)
	for i := range opts.Concurrency {
		go fetchWorker(ctx, client, opts, jobs, results, &wg,
			logger.With("worker_id", i))
	}

	go produceJobs(ctx, in, processed, jobs, produceErr, collector)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Results arrive in completion order. Buffer them until the next
	// expected index shows up so the output file mirrors the input order.
	pending := make(map[int]models.FetchResult)
	next := processed
	var writeErr error
	for result := range results {
		pending[result.Job.Index] = result
		for {
			r, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			stats.Read++

			if writeErr != nil {
				continue
			}
			if r.Err != nil {
				stats.Failed++
				collector.RecordOutcome("fetch", "failed")
				logger.Warn("Reasoning request failed",
					"index", r.Job.Index,
					"duration", r.Duration,
					"error", r.Err)
			} else {
				collector.RecordOutcome("fetch", "written")
			}
			if err := out.Write(reasonedRecord(r)); err != nil {
				writeErr = fmt.Errorf("failed to write record %d: %w", r.Job.Index, err)
				continue
			}
			stats.Written++
			_ = bar.Add(1)
		}
	}

	if err := <-produceErr; err != nil && writeErr == nil {
		writeErr = err
	}
	if err := out.Close(); err != nil && writeErr == nil {
		writeErr = fmt.Errorf("failed to close output file: %w", err)
	}
	if writeErr != nil {
		return stats, writeErr
	}
	if err := ctx.Err(); err != nil {
		logger.Info("Fetch interrupted, rerun to resume",
			"written", stats.Written,
			"remaining", total-processed-stats.Written)
		return stats, err
	}

	logger.Info("Reasoning fetch complete",
		"written", stats.Written,
		"failed", stats.Failed,
		"resumed_from", processed,
		"duration", stats.Duration().Round(time.Millisecond))
	return stats, nil
}

// produceJobs reads input records and feeds them to the workers, skipping
// the first skip lines. A record that does not parse aborts the run: the
// input is produced by earlier stages and a bad line means the file is
// corrupt, not that one row is odd.
func produceJobs(ctx context.Context, in *os.File, skip int, jobs chan<- models.FetchJob, produceErr chan<- error, collector *metrics.Collector) {
	defer close(jobs)

	reader := jsonl.NewReader(in)
	index := 0
	for {
		line, ok := reader.Next()
		if !ok {
			break
		}
		if index < skip {
			index++
			continue
		}

		var rec models.CorruptRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			produceErr <- fmt.Errorf("invalid JSON on input line %d: %w", reader.Line(), err)
			return
		}

		select {
		case jobs <- models.FetchJob{Index: index, Record: rec}:
			collector.SetWorkerQueueDepth("fetch", len(jobs))
		case <-ctx.Done():
			produceErr <- nil
			return
		}
		index++
	}
	produceErr <- reader.Err()
}

func fetchWorker(ctx context.Context, client Completer, opts FetchOptions, jobs <-chan models.FetchJob, results chan<- models.FetchResult, wg *sync.WaitGroup, logger *slog.Logger) {
	defer wg.Done()
	logger.Debug("Worker started")

	for job := range jobs {
		select {
		case <-ctx.Done():
			logger.Debug("Worker cancelled")
			// Drain so the producer never blocks on a full channel.
			for range jobs {
			}
			return
		default:
		}

		start := time.Now()
		result := fetchOne(ctx, client, opts, job, logger)
		result.Duration = time.Since(start)
		results <- result
	}

	logger.Debug("Worker finished")
}

type promptData struct {
	Text string
}

func fetchOne(ctx context.Context, client Completer, opts FetchOptions, job models.FetchJob, logger *slog.Logger) models.FetchResult {
	result := models.FetchResult{Job: job}

	if job.Record.Text == "" {
		result.Err = fmt.Errorf("record %d has no text", job.Index)
		result.Reasoning = APIErrorSentinel
		return result
	}

	prompt, err := util.RenderTemplate(opts.Template, promptData{Text: job.Record.Text})
	if err != nil {
		result.Err = fmt.Errorf("failed to render prompt: %w", err)
		result.Reasoning = APIErrorSentinel
		return result
	}

	resp, err := client.Complete(ctx, opts.Model, opts.APIKey, []api.Message{
		{Role: "system", Content: opts.SystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		result.Err = err
		result.Reasoning = APIErrorSentinel
		return result
	}

	result.Reasoning = extractReasoning(resp.Choices[0].Message)
	if result.Reasoning == "" {
		result.Err = fmt.Errorf("response for record %d contained no reasoning", job.Index)
		result.Reasoning = emptyReasoningSentinel
		return result
	}

	logger.Debug("Reasoning received",
		"index", job.Index,
		"preview", util.TruncateString(result.Reasoning, 80))
	return result
}

// extractReasoning pulls the chain-of-thought out of a completion. Reasoning
// models expose it either as a dedicated reasoning_content field, inside
// <think> tags in the content, or as the content itself.
func extractReasoning(msg api.Message) string {
	if msg.ReasoningContent != "" {
		return strings.TrimSpace(msg.ReasoningContent)
	}
	if util.ContainsThinkTags(msg.Content) {
		return util.ExtractThinkContent(msg.Content)
	}
	return strings.TrimSpace(msg.Content)
}

// reasonedRecord converts a fetch result into the output row. The corrupted
// text moves from text to text_result and original_text so the text field is
// free for the final prompt assembly.
func reasonedRecord(r models.FetchResult) models.ReasonedRecord {
	return models.ReasonedRecord{
		URL:             r.Job.Record.URL,
		ParagraphNumber: r.Job.Record.ParagraphNumber,
		Corrupt:         r.Job.Record.Corrupt,
		CorruptLevel:    r.Job.Record.CorruptLevel,
		Reasoning:       r.Reasoning,
		TextResult:      r.Job.Record.Text,
		OriginalText:    r.Job.Record.Text,
	}
}

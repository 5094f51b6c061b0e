// Package report writes the end-of-run summary every pipeline stage emits.
// The summary is both logged and persisted next to the stage output, so no
// dropped record ever disappears silently.
package report

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/simeneide/djuplet/pkg/models"
)

// Summary is the persisted record of one stage run
type Summary struct {
	RunID      string         `json:"run_id"`
	Stage      string         `json:"stage"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Duration   string         `json:"duration"`
	Read       int            `json:"read"`
	Written    int            `json:"written"`
	Failed     int            `json:"failed,omitempty"`
	Dropped    map[string]int `json:"dropped,omitempty"`
	Shortfall  map[string]int `json:"shortfall,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// New builds a summary from the stage stats. A new UUID identifies the run;
// runErr, when not nil, is recorded so a partial run is distinguishable from
// a clean one.
func New(stage string, stats *models.StageStats, runErr error) Summary {
	s := Summary{
		RunID:      uuid.New().String(),
		Stage:      stage,
		StartedAt:  stats.StartTime,
		FinishedAt: stats.EndTime,
		Duration:   stats.Duration().Round(time.Millisecond).String(),
		Read:       stats.Read,
		Written:    stats.Written,
		Failed:     stats.Failed,
	}
	if len(stats.Dropped) > 0 {
		s.Dropped = stats.Dropped
	}
	if len(stats.Shortfall) > 0 {
		s.Shortfall = stats.Shortfall
	}
	if runErr != nil {
		s.Error = runErr.Error()
	}
	return s
}

// Path returns where the summary for an output file lives
func Path(outputPath string) string {
	return outputPath + ".summary.json"
}

// Write persists the summary as indented JSON at path
func (s Summary) Write(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// Log emits the summary through the logger, warning when records were lost
func (s Summary) Log(logger *slog.Logger) {
	attrs := []any{
		"run_id", s.RunID,
		"stage", s.Stage,
		"duration", s.Duration,
		"read", s.Read,
		"written", s.Written,
	}
	if s.Failed > 0 {
		attrs = append(attrs, "failed", s.Failed)
	}
	logger.Info("Run summary", attrs...)

	for reason, n := range s.Dropped {
		logger.Warn("Records dropped", "reason", reason, "count", n)
	}
	for split, n := range s.Shortfall {
		logger.Warn("Split shortfall", "split", split, "missing", n)
	}
}

package models

import "time"

// ParagraphRecord represents a single paragraph extracted from a Wikipedia page
type ParagraphRecord struct {
	Text            string `json:"text"`
	URL             string `json:"url"`
	ParagraphNumber int    `json:"paragraph_number"`
}

// CorruptRecord represents a paragraph together with its corrupted variant
type CorruptRecord struct {
	Text            string `json:"text"`
	URL             string `json:"url"`
	ParagraphNumber int    `json:"paragraph_number"`
	Corrupt         string `json:"corrupt"`
	CorruptLevel    int    `json:"corrupt_level"` // 0 = unchanged, must serialize even when zero
}

// ReasonedRecord represents a corrupted paragraph after reasoning augmentation.
// The fetch stage moves the original text into OriginalText and TextResult;
// the prompt stage fills Text with the assembled training prompt.
type ReasonedRecord struct {
	Text            string `json:"text,omitempty"`
	URL             string `json:"url"`
	ParagraphNumber int    `json:"paragraph_number"`
	Corrupt         string `json:"corrupt"`
	CorruptLevel    int    `json:"corrupt_level"`
	Reasoning       string `json:"reasoning"`
	TextResult      string `json:"text_result"`
	OriginalText    string `json:"original_text"`
}

// FetchJob represents one reasoning request for a corrupted paragraph
type FetchJob struct {
	Index  int // position in the input stream, results are emitted in this order
	Record CorruptRecord
}

// FetchResult represents the outcome of one reasoning request
type FetchResult struct {
	Job       FetchJob
	Reasoning string
	Err       error
	Duration  time.Duration
}

// SplitInfo describes one named split in the dataset manifest
type SplitInfo struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	NumExamples int    `json:"num_examples"`
}

// Manifest is the dataset_info.json written next to the split files
type Manifest struct {
	Splits       []SplitInfo       `json:"splits"`
	TotalSamples int               `json:"total_samples"`
	Format       string            `json:"format"`
	Features     map[string]string `json:"features,omitempty"`
	Description  string            `json:"description,omitempty"`
	Citation     string            `json:"citation,omitempty"`
	License      string            `json:"license,omitempty"`
}

// StageStats tracks counters for a single pipeline stage run
type StageStats struct {
	StartTime time.Time
	EndTime   time.Time
	Read      int
	Written   int
	Failed    int
	Dropped   map[string]int // drop reason -> count
	Shortfall map[string]int // split name -> records short of target
}

// NewStageStats returns stats with the start time set
func NewStageStats() *StageStats {
	return &StageStats{
		StartTime: time.Now(),
		Dropped:   make(map[string]int),
		Shortfall: make(map[string]int),
	}
}

// Drop counts one dropped record under the given reason
func (s *StageStats) Drop(reason string) {
	s.Dropped[reason]++
}

// DroppedTotal returns the number of dropped records across all reasons
func (s *StageStats) DroppedTotal() int {
	total := 0
	for _, n := range s.Dropped {
		total += n
	}
	return total
}

// Duration returns the elapsed stage time, using now when EndTime is unset
func (s *StageStats) Duration() time.Duration {
	end := s.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartTime)
}

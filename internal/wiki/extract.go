package wiki

import (
	"compress/bzip2"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/schollz/progressbar/v3"

	"github.com/simeneide/djuplet/internal/jsonl"
	"github.com/simeneide/djuplet/internal/metrics"
	"github.com/simeneide/djuplet/pkg/models"
)

// DefaultExcludedPrefixes are the non-article namespaces of Norwegian dumps
var DefaultExcludedPrefixes = []string{
	"Wikipedia:", "Kategori:", "Fil:", "Mal:", "Hjelp:", "MediaWiki:", "Brukar:", "Diskusjon:",
}

// DefaultSkipTitles are single pages that carry no article prose
var DefaultSkipTitles = []string{"Hovudside"}

const (
	// DefaultMaxParagraphs caps a full extraction run
	DefaultMaxParagraphs = 10_000_000
	// DefaultMinWords is the shortest paragraph worth keeping
	DefaultMinWords = 15
)

// Drop reasons counted by the extract stage
const (
	DropExcludedTitle = "excluded_title"
	DropEmptyPage     = "empty_page"
)

var paragraphSplitRE = regexp.MustCompile(`\n{2,}`)

// Options configures one extraction run
type Options struct {
	Language         string
	DumpPath         string
	OutputPath       string
	MaxParagraphs    int
	MinWords         int
	ExcludedPrefixes []string
	SkipTitles       []string
}

func (o Options) validate() error {
	if o.Language == "" {
		return fmt.Errorf("language is required")
	}
	if o.DumpPath == "" {
		return fmt.Errorf("dump path is required")
	}
	if o.OutputPath == "" {
		return fmt.Errorf("output path is required")
	}
	return nil
}

// page is the slice of the dump schema the extractor needs. Element names are
// matched without their namespace, so any export version works.
type page struct {
	Title    string `xml:"title"`
	Revision struct {
		Text string `xml:"text"`
	} `xml:"revision"`
}

// Run downloads the dump when it is missing, then streams pages out of it and
// writes paragraph records until the cap is reached
func Run(ctx context.Context, opts Options, logger *slog.Logger, collector *metrics.Collector) (*models.StageStats, error) {
	stats := models.NewStageStats()
	defer func() { stats.EndTime = time.Now() }()

	if err := opts.validate(); err != nil {
		return stats, err
	}
	if opts.MaxParagraphs <= 0 {
		opts.MaxParagraphs = DefaultMaxParagraphs
	}
	if opts.MinWords <= 0 {
		opts.MinWords = DefaultMinWords
	}
	if opts.ExcludedPrefixes == nil {
		opts.ExcludedPrefixes = DefaultExcludedPrefixes
	}
	if opts.SkipTitles == nil {
		opts.SkipTitles = DefaultSkipTitles
	}

	if NeedsDownload(opts.DumpPath) {
		if err := DownloadDump(ctx, opts.Language, opts.DumpPath, logger); err != nil {
			return stats, err
		}
	} else {
		logger.Info("Using existing dump", "path", opts.DumpPath)
	}

	dump, err := os.Open(opts.DumpPath)
	if err != nil {
		return stats, fmt.Errorf("failed to open dump: %w", err)
	}
	defer dump.Close()

	out, err := jsonl.Create(opts.OutputPath)
	if err != nil {
		return stats, err
	}
	defer out.Close()

	logger.Info("Extracting paragraphs",
		"dump", opts.DumpPath,
		"output", opts.OutputPath,
		"min_words", opts.MinWords,
		"max_paragraphs", opts.MaxParagraphs)

	if err := extractStream(ctx, bzip2.NewReader(dump), out, opts, stats, collector); err != nil {
		return stats, err
	}
	if err := out.Close(); err != nil {
		return stats, err
	}

	logger.Info("Extraction complete",
		"pages", stats.Read,
		"paragraphs", stats.Written,
		"skipped_pages", stats.DroppedTotal())
	return stats, nil
}

// extractStream walks the decompressed dump XML and writes paragraph records
func extractStream(ctx context.Context, r io.Reader, out *jsonl.Writer, opts Options, stats *models.StageStats, collector *metrics.Collector) error {
	decoder := xml.NewDecoder(r)
	bar := progressbar.Default(-1, "Parsing pages")
	defer bar.Finish()

	for stats.Written < opts.MaxParagraphs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		tok, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to parse dump: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "page" {
			continue
		}

		var pg page
		if err := decoder.DecodeElement(&pg, &start); err != nil {
			return fmt.Errorf("failed to decode page: %w", err)
		}
		stats.Read++
		bar.Add(1)

		if !validArticle(pg.Title, opts.ExcludedPrefixes, opts.SkipTitles) {
			stats.Drop(DropExcludedTitle)
			collector.RecordOutcome("extract", "dropped")
			continue
		}
		if strings.TrimSpace(pg.Revision.Text) == "" {
			stats.Drop(DropEmptyPage)
			collector.RecordOutcome("extract", "dropped")
			continue
		}

		url := fmt.Sprintf("https://%s.wikipedia.org/wiki/%s",
			opts.Language, strings.ReplaceAll(pg.Title, " ", "_"))
		for i, paragraph := range ExtractParagraphs(pg.Revision.Text, opts.MinWords) {
			if stats.Written >= opts.MaxParagraphs {
				break
			}
			record := models.ParagraphRecord{
				Text:            paragraph,
				URL:             url,
				ParagraphNumber: i + 1,
			}
			if err := out.Write(record); err != nil {
				return err
			}
			stats.Written++
			collector.RecordOutcome("extract", "written")
		}
	}
	return nil
}

// ExtractParagraphs pulls dataset-worthy paragraphs out of raw wikitext
func ExtractParagraphs(wikitext string, minWords int) []string {
	plain := StripWikitext(wikitext)
	var paragraphs []string
	for _, part := range paragraphSplitRE.Split(plain, -1) {
		p := strings.Join(strings.Fields(part), " ")
		p = strings.ReplaceAll(p, ", (),", "")
		p = strings.ReplaceAll(p, "() ", "")
		if keepParagraph(p, minWords) {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// keepParagraph applies the prose quality gate: starts like a sentence, long
// enough, ends in a clause mark, and free of truncation or image residue
func keepParagraph(p string, minWords int) bool {
	if p == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(p)
	if !unicode.IsUpper(first) || strings.HasPrefix(p, "(") {
		return false
	}
	if len(strings.Fields(p)) < minWords {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(p)
	switch last {
	case '.', '!', '?', ',':
	default:
		return false
	}
	if strings.Contains(p, "...") || strings.Contains(p, "…") {
		return false
	}
	if strings.Contains(strings.ToLower(p), "thumb|") {
		return false
	}
	return true
}

func validArticle(title string, excludedPrefixes, skipTitles []string) bool {
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(title, prefix) {
			return false
		}
	}
	for _, skip := range skipTitles {
		if title == skip {
			return false
		}
	}
	return true
}

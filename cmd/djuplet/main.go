package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/simeneide/djuplet/internal/api"
	"github.com/simeneide/djuplet/internal/config"
	"github.com/simeneide/djuplet/internal/corrupt"
	"github.com/simeneide/djuplet/internal/hfhub"
	"github.com/simeneide/djuplet/internal/metrics"
	"github.com/simeneide/djuplet/internal/reason"
	"github.com/simeneide/djuplet/internal/report"
	"github.com/simeneide/djuplet/internal/split"
	"github.com/simeneide/djuplet/internal/wiki"
	"github.com/simeneide/djuplet/pkg/models"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath    string
	envFile       string
	verbose       bool
	metricsListen bool
	metricsAddr   string

	inputPath  string
	outputPath string
	outputDir  string

	language      string
	dumpPath      string
	maxParagraphs int
	minWords      int

	minLevel int
	maxLevel int
	seed     uint64

	splitList string
	push      bool
	repoID    string

	templateFile  string
	concurrency   int
	languages     []string
	minConfidence float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "djuplet",
		Short: "djuplet - Wikipedia text corruption dataset pipeline",
		Long: `djuplet builds a synthetic-reasoning text dataset from Wikipedia:
extract paragraphs from a dump, corrupt them at randomized levels, collect
reasoning traces from an LLM API, and publish shuffled splits to the
Hugging Face Hub. Every stage reads and writes line-delimited JSON.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&metricsListen, "metrics-listen", false, "Serve Prometheus metrics while the stage runs")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Metrics listen address")

	extractCmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract paragraphs from a Wikipedia dump",
		Long: `Download the latest pages-articles dump for a language (skipped when
the dump file already exists), strip wikitext and write one paragraph
record per line.`,
		RunE: runExtract,
	}
	extractCmd.Flags().StringVar(&outputPath, "output", "", "Output JSONL file (required)")
	extractCmd.Flags().StringVar(&language, "language", "", "Wikipedia language code, e.g. nn")
	extractCmd.Flags().StringVar(&dumpPath, "dump", "", "Local dump path (default: {language}wiki-latest-pages-articles.xml.bz2)")
	extractCmd.Flags().IntVar(&maxParagraphs, "max-paragraphs", 0, "Stop after this many paragraphs")
	extractCmd.Flags().IntVar(&minWords, "min-words", 0, "Minimum words per paragraph")
	_ = extractCmd.MarkFlagRequired("output")

	corruptCmd := &cobra.Command{
		Use:   "corrupt",
		Short: "Add corrupted text variants to extracted paragraphs",
		Long: `Validate and clean each paragraph, draw a corruption level uniformly
from the configured bounds and append the corrupted variant. Unusable
records are dropped and counted, never fatal.`,
		RunE: runCorrupt,
	}
	corruptCmd.Flags().StringVar(&inputPath, "input", "", "Input JSONL file (required)")
	corruptCmd.Flags().StringVar(&outputPath, "output", "", "Output JSONL file (required)")
	corruptCmd.Flags().IntVar(&minWords, "min-words", 0, "Minimum words per paragraph")
	corruptCmd.Flags().IntVar(&minLevel, "min-level", -1, "Lowest corruption level to draw")
	corruptCmd.Flags().IntVar(&maxLevel, "max-level", -1, "Highest corruption level to draw")
	corruptCmd.Flags().Uint64Var(&seed, "seed", 0, "RNG seed for reproducible runs")
	_ = corruptCmd.MarkFlagRequired("input")
	_ = corruptCmd.MarkFlagRequired("output")

	splitCmd := &cobra.Command{
		Use:   "split",
		Short: "Shuffle the corpus and write named splits",
		Long: `Shuffle the full corpus with a seeded Fisher-Yates pass, partition it
into the declared splits in order and write one JSONL file per split plus a
dataset_info.json manifest. With --push the files are uploaded to the
configured Hugging Face dataset repository.`,
		RunE: runSplit,
	}
	splitCmd.Flags().StringVar(&inputPath, "input", "", "Input JSONL file (required)")
	splitCmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for split files (required)")
	splitCmd.Flags().StringVar(&splitList, "splits", "", "Comma-separated name=count pairs, one count may be 'rest'")
	splitCmd.Flags().Uint64Var(&seed, "seed", 0, "Shuffle seed")
	splitCmd.Flags().BoolVar(&push, "push", false, "Upload splits to the Hugging Face Hub after writing")
	splitCmd.Flags().StringVar(&repoID, "repo-id", "", "Hugging Face dataset repository, e.g. user/dataset")
	_ = splitCmd.MarkFlagRequired("input")
	_ = splitCmd.MarkFlagRequired("output-dir")

	reasonCmd := &cobra.Command{
		Use:   "reason",
		Short: "Build the reasoning-augmented dataset",
		Long:  "Collect reasoning traces from an LLM API, filter them by language and assemble training prompts",
	}

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch a reasoning trace for every corrupted paragraph",
		Long: `Send each corrupted paragraph to the configured reasoning model and
store the trace. Output lines mirror input order, so an interrupted run
resumes where it stopped when run again with the same files.`,
		RunE: runFetch,
	}
	fetchCmd.Flags().StringVar(&inputPath, "input", "", "Input JSONL file (required)")
	fetchCmd.Flags().StringVar(&outputPath, "output", "", "Output JSONL file (required)")
	fetchCmd.Flags().StringVar(&templateFile, "template-file", "", "Prompt template file, {{.Text}} is the paragraph")
	fetchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "Parallel fetch workers")
	_ = fetchCmd.MarkFlagRequired("input")
	_ = fetchCmd.MarkFlagRequired("output")

	filterCmd := &cobra.Command{
		Use:   "filter",
		Short: "Keep only records whose reasoning is in the wanted language",
		RunE:  runFilter,
	}
	filterCmd.Flags().StringVar(&inputPath, "input", "", "Input JSONL file (required)")
	filterCmd.Flags().StringVar(&outputPath, "output", "", "Output JSONL file (required)")
	filterCmd.Flags().StringSliceVar(&languages, "languages", nil, "Languages to keep, e.g. bokmal,nynorsk")
	filterCmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "Minimum detection confidence, 0 keeps the top match")
	_ = filterCmd.MarkFlagRequired("input")
	_ = filterCmd.MarkFlagRequired("output")

	promptCmd := &cobra.Command{
		Use:   "prompt",
		Short: "Assemble training prompts from fetched reasoning",
		Long: `Rewrite each reasoned record into a training example: instruction,
corrupted paragraph, the reasoning wrapped in <think> tags and the clean
paragraph. Records whose fetch failed are skipped and counted.`,
		RunE: runPrompt,
	}
	promptCmd.Flags().StringVar(&inputPath, "input", "", "Input JSONL file (required)")
	promptCmd.Flags().StringVar(&outputPath, "output", "", "Output JSONL file (required)")
	promptCmd.Flags().StringVar(&templateFile, "template-file", "", "Instruction text file prepended to each prompt")
	_ = promptCmd.MarkFlagRequired("input")
	_ = promptCmd.MarkFlagRequired("output")

	reasonCmd.AddCommand(fetchCmd)
	reasonCmd.AddCommand(filterCmd)
	reasonCmd.AddCommand(promptCmd)

	uploadCmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a directory of split files to the Hugging Face Hub",
		RunE:  runUpload,
	}
	uploadCmd.Flags().StringVar(&outputDir, "dir", "", "Directory holding split files and dataset_info.json (required)")
	uploadCmd.Flags().StringVar(&repoID, "repo-id", "", "Hugging Face dataset repository, e.g. user/dataset")
	_ = uploadCmd.MarkFlagRequired("dir")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(corruptCmd)
	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(reasonCmd)
	rootCmd.AddCommand(uploadCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the environment file, configuration and secrets, and builds the
// logger and metrics collector every stage shares. Configuration problems
// surface here, before any processing starts.
func setup() (*config.Config, *config.Secrets, *slog.Logger, *metrics.Collector, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load env file %s: %v\n", envFile, err)
		}
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, secrets, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	collector := metrics.NewCollector(logger)
	if metricsListen {
		metrics.Serve(metricsAddr, logger)
	}
	return cfg, secrets, logger, collector, nil
}

// finishStage logs the run summary and persists it next to the stage output.
// The stage error wins over a summary write failure.
func finishStage(logger *slog.Logger, stage, summaryPath string, stats *models.StageStats, runErr error) error {
	summary := report.New(stage, stats, runErr)
	summary.Log(logger)
	if err := summary.Write(report.Path(summaryPath)); err != nil {
		if runErr == nil {
			return err
		}
		logger.Warn("Failed to write run summary", "error", err)
	}
	return runErr
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, _, logger, collector, err := setup()
	if err != nil {
		return err
	}

	opts := wiki.Options{
		Language:      cfg.Extract.Language,
		DumpPath:      cfg.Extract.DumpPath,
		OutputPath:    outputPath,
		MaxParagraphs: cfg.Extract.MaxParagraphs,
		MinWords:      cfg.Extract.MinWords,
	}
	if language != "" {
		opts.Language = language
	}
	if dumpPath != "" {
		opts.DumpPath = dumpPath
	}
	if maxParagraphs > 0 {
		opts.MaxParagraphs = maxParagraphs
	}
	if minWords > 0 {
		opts.MinWords = minWords
	}
	if opts.DumpPath == "" {
		opts.DumpPath = fmt.Sprintf("%swiki-latest-pages-articles.xml.bz2", opts.Language)
	}

	stats, err := wiki.Run(cmd.Context(), opts, logger, collector)
	return finishStage(logger, "extract", outputPath, stats, err)
}

func runCorrupt(cmd *cobra.Command, args []string) error {
	cfg, _, logger, collector, err := setup()
	if err != nil {
		return err
	}

	opts := corrupt.Options{
		InputPath:  inputPath,
		OutputPath: outputPath,
		MinWords:   cfg.Extract.MinWords,
		MinLevel:   corrupt.Level(cfg.Corrupt.MinLevel),
		MaxLevel:   corrupt.Level(cfg.Corrupt.MaxLevel),
		Seed:       uint64(cfg.Corrupt.Seed),
	}
	if minWords > 0 {
		opts.MinWords = minWords
	}
	if minLevel >= 0 {
		opts.MinLevel = corrupt.Level(minLevel)
	}
	if maxLevel >= 0 {
		opts.MaxLevel = corrupt.Level(maxLevel)
	}
	if seed != 0 {
		opts.Seed = seed
	}

	stats, err := corrupt.Run(cmd.Context(), opts, logger, collector)
	return finishStage(logger, "corrupt", outputPath, stats, err)
}

func runSplit(cmd *cobra.Command, args []string) error {
	cfg, secrets, logger, collector, err := setup()
	if err != nil {
		return err
	}

	list := cfg.Split.Splits
	if splitList != "" {
		list = splitList
	}
	specs, err := split.ParseSpecs(list)
	if err != nil {
		return err
	}

	opts := split.Options{
		InputPath:   inputPath,
		OutputDir:   outputDir,
		Specs:       specs,
		Seed:        uint64(cfg.Split.Seed),
		Description: cfg.Split.Description,
		Citation:    cfg.Split.Citation,
		License:     cfg.Split.License,
	}
	if seed != 0 {
		opts.Seed = seed
	}

	stats, err := split.Run(cmd.Context(), opts, logger, collector)
	if err := finishStage(logger, "split", filepath.Join(outputDir, "split"), stats, err); err != nil {
		return err
	}

	if !push {
		return nil
	}
	return uploadDir(cmd, cfg, secrets, logger, collector, outputDir)
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, secrets, logger, collector, err := setup()
	if err != nil {
		return err
	}

	modelCfg, err := cfg.ReasonModel()
	if err != nil {
		return err
	}

	template := cfg.Reason.PromptTemplate
	file := cfg.Reason.TemplateFile
	if templateFile != "" {
		file = templateFile
	}
	if file != "" {
		template, err = readTemplateFile(file)
		if err != nil {
			return err
		}
	}

	opts := reason.FetchOptions{
		InputPath:    inputPath,
		OutputPath:   outputPath,
		Model:        modelCfg,
		APIKey:       secrets.GetAPIKey(modelCfg.BaseURL),
		SystemPrompt: cfg.Reason.SystemPrompt,
		Template:     template,
		Concurrency:  cfg.Reason.Concurrency,
	}
	if concurrency > 0 {
		opts.Concurrency = concurrency
	}

	client := api.NewClient(logger, collector)
	stats, err := reason.Fetch(cmd.Context(), client, opts, logger, collector)
	return finishStage(logger, "reason_fetch", outputPath, stats, err)
}

func runFilter(cmd *cobra.Command, args []string) error {
	cfg, _, logger, collector, err := setup()
	if err != nil {
		return err
	}

	opts := reason.FilterOptions{
		InputPath:     inputPath,
		OutputPath:    outputPath,
		Languages:     cfg.Reason.Languages,
		MinConfidence: cfg.Reason.MinConfidence,
	}
	if len(languages) > 0 {
		opts.Languages = languages
	}
	if minConfidence > 0 {
		opts.MinConfidence = minConfidence
	}

	stats, err := reason.Filter(cmd.Context(), opts, logger, collector)
	return finishStage(logger, "reason_filter", outputPath, stats, err)
}

func runPrompt(cmd *cobra.Command, args []string) error {
	cfg, _, logger, collector, err := setup()
	if err != nil {
		return err
	}

	template := cfg.Reason.PromptPrefix
	if templateFile != "" {
		template, err = readTemplateFile(templateFile)
		if err != nil {
			return err
		}
	}

	opts := reason.PromptOptions{
		InputPath:  inputPath,
		OutputPath: outputPath,
		Template:   template,
	}

	stats, err := reason.BuildPrompts(cmd.Context(), opts, logger, collector)
	return finishStage(logger, "reason_prompt", outputPath, stats, err)
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg, secrets, logger, collector, err := setup()
	if err != nil {
		return err
	}
	return uploadDir(cmd, cfg, secrets, logger, collector, outputDir)
}

func uploadDir(cmd *cobra.Command, cfg *config.Config, secrets *config.Secrets, logger *slog.Logger, collector *metrics.Collector, dir string) error {
	repo := cfg.HuggingFace.RepoID
	if repoID != "" {
		repo = repoID
	}
	if repo == "" {
		return fmt.Errorf("a repository is required: set --repo-id or huggingface.repo_id")
	}
	if secrets.HuggingFaceToken == "" {
		return fmt.Errorf("HF_TOKEN or HUGGING_FACE_TOKEN must be set to upload")
	}

	uploader := hfhub.NewUploader(secrets.HuggingFaceToken, logger, collector)
	return uploader.UploadDataset(cmd.Context(), repo, dir)
}

func readTemplateFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read template file: %w", err)
	}
	if len(data) > config.MaxTemplateSize {
		return "", fmt.Errorf("template file %s exceeds %d bytes", path, config.MaxTemplateSize)
	}
	return string(data), nil
}

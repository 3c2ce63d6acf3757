package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v3"

	"github.com/KyrieTangSheng/file-seek/pkg/archive"
	"github.com/KyrieTangSheng/file-seek/pkg/config"
	"github.com/KyrieTangSheng/file-seek/pkg/detector"
	"github.com/KyrieTangSheng/file-seek/pkg/extract"
	"github.com/KyrieTangSheng/file-seek/pkg/llm"
	"github.com/KyrieTangSheng/file-seek/pkg/ocr"
	"github.com/KyrieTangSheng/file-seek/pkg/processor"
	"github.com/KyrieTangSheng/file-seek/pkg/reconcile"
	"github.com/KyrieTangSheng/file-seek/pkg/store"
	"github.com/KyrieTangSheng/file-seek/pkg/watch"
)

const usage = `fileseek - index your documents and search them semantically

Usage:
  fileseek <command> [flags] [args]

Commands:
  process   Index files or directories, retiring records for deleted files
  watch     Watch directories and keep the index in sync
  search    Semantic search over indexed documents
  similar   Find documents similar to an indexed file
  list      List indexed documents
  status    Show index statistics
  validate  Validate configuration and cross-check paths against the index
  config    Print the effective configuration

Run 'fileseek <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "process":
		err = cmdProcess(os.Args[2:])
	case "watch":
		err = cmdWatch(os.Args[2:])
	case "search":
		err = cmdSearch(os.Args[2:])
	case "similar":
		err = cmdSimilar(os.Args[2:])
	case "list":
		err = cmdList(os.Args[2:])
	case "status":
		err = cmdStatus(os.Args[2:])
	case "validate":
		err = cmdValidate(os.Args[2:])
	case "config":
		err = cmdConfig(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

type commonFlags struct {
	configPath string
	verbose    bool
}

func registerCommon(fs *flag.FlagSet) *commonFlags {
	var cf commonFlags
	fs.StringVar(&cf.configPath, "config", "", "Path to config file")
	fs.BoolVar(&cf.verbose, "verbose", false, "Enable debug logging")
	return &cf
}

func (cf *commonFlags) logger() *slog.Logger {
	level := slog.LevelInfo
	if cf.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (cf *commonFlags) load() (*config.Config, error) {
	cfg, err := config.LoadConfig(cf.configPath)
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %v", errs[0])
	}
	return cfg, nil
}

// buildArchivist wires the full pipeline and returns the classifier it uses,
// so commands that also reconcile share the exact same classification rules.
// The returned close function releases the database pool.
func buildArchivist(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*archive.Archivist, *detector.Detector, func(), error) {
	var ocrProcessor *ocr.Processor
	if cfg.OCR.Enabled {
		var err error
		ocrProcessor, err = ocr.NewProcessor(ocr.ProcessorConfig{
			Languages:           cfg.OCR.Languages,
			ConfidenceThreshold: cfg.OCR.ConfidenceThreshold,
			Preprocess:          cfg.OCR.Preprocess,
			MaxWorkers:          cfg.OCR.MaxWorkers,
			DPI:                 cfg.OCR.DPI,
			MaxPages:            cfg.OCR.MaxPages,
			TesseractPath:       cfg.OCR.TesseractPath,
			PdftoppmPath:        cfg.OCR.PdftoppmPath,
			PdftotextPath:       cfg.OCR.PdftotextPath,
		}, logger)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   cfg.Embedder.Model,
		BaseURL: cfg.Embedder.BaseURL,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	vectorStore, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		VectorDim:  cfg.Database.VectorDim,
		BatchSize:  cfg.Database.BatchSize,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize vector store: %v", err)
	}

	cls := detector.NewWithConfig(detector.DetectorConfig{
		AllowedExtensions: cfg.Processing.AllowedExtensions,
		ExcludedPatterns:  cfg.Processing.ExcludedPatterns,
		SkipHidden:        true,
	})

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    cfg.Processing.ChunkSize,
		ChunkOverlap: cfg.Processing.ChunkOverlap,
	})

	archivist := archive.New(cls, extract.New(ocrProcessor), &proc, embedder, vectorStore, logger)
	return archivist, cls, vectorStore.Close, nil
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func cmdProcess(args []string) error {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	cf := registerCommon(fs)
	recursive := fs.Bool("recursive", true, "Descend into subdirectories")
	dryRun := fs.Bool("dry-run", false, "Show the plan without executing it")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("process requires at least one path")
	}

	cfg, err := cf.load()
	if err != nil {
		return err
	}
	logger := cf.logger()

	ctx := context.Background()
	archivist, cls, closeStore, err := buildArchivist(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	rec := reconcile.New(cls, archivist, logger)
	plan := rec.Plan(ctx, reconcile.Scope{Roots: fs.Args(), Recursive: *recursive})

	color.Blue("\nPlan: %d files to process, %d records to retire\n", len(plan.ToProcess), len(plan.ToRetire))

	if *dryRun {
		for path := range plan.ToProcess {
			fmt.Printf("  process %s\n", path)
		}
		for path := range plan.ToRetire {
			fmt.Printf("  retire  %s\n", path)
		}
		return nil
	}

	var failed int

	if len(plan.ToProcess) > 0 {
		bar := getProgressBar(len(plan.ToProcess), "Indexing files...")
		start := time.Now()
		var done int
		for path := range plan.ToProcess {
			if err := archivist.Ingest(ctx, path); err != nil {
				logger.Error("ingest failed", "path", path, "error", err)
				failed++
			}
			done++
			bar.Add(1)

			elapsed := time.Since(start).Seconds()
			rate := float64(done) / elapsed
			bar.Describe(color.BlueString("Indexing files... (%.1f files/sec)", rate))
		}
		bar.Finish()
	}

	for path := range plan.ToRetire {
		if err := archivist.Retire(ctx, path); err != nil {
			logger.Error("retire failed", "path", path, "error", err)
			failed++
		}
	}

	if failed > 0 {
		color.Yellow("\nDone with %d failures\n", failed)
		return nil
	}

	color.Green("\nDone: %d indexed, %d retired\n", len(plan.ToProcess), len(plan.ToRetire))
	return nil
}

func cmdWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	cf := registerCommon(fs)
	recursive := fs.Bool("recursive", true, "Watch subdirectories too")
	pattern := fs.String("pattern", "", "Comma-separated base name globs to watch (default: allowed extensions)")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("watch requires at least one directory")
	}

	cfg, err := cf.load()
	if err != nil {
		return err
	}
	logger := cf.logger()

	ctx := context.Background()
	archivist, _, closeStore, err := buildArchivist(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	patterns := extensionPatterns(cfg.Processing.AllowedExtensions)
	if *pattern != "" {
		patterns = strings.Split(*pattern, ",")
	}

	dispatcher := watch.NewDispatcher(watch.DispatcherConfig{
		Paths:          fs.Args(),
		Patterns:       patterns,
		IgnorePatterns: cfg.Processing.ExcludedPatterns,
		Recursive:      *recursive,
		RateLimit:      cfg.Watch.RateLimit,
	}, archivist.Ingest, archivist.Retire, logger)

	if err := dispatcher.Start(); err != nil {
		return err
	}

	color.Cyan("Watching %d root(s), press Ctrl-C to stop\n", fs.NArg())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	color.Yellow("\nShutting down...\n")
	dispatcher.Stop()
	return nil
}

func extensionPatterns(extensions []string) []string {
	patterns := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		patterns = append(patterns, "*"+ext)
	}
	return patterns
}

func cmdSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	cf := registerCommon(fs)
	limit := fs.Int("limit", 5, "Maximum number of results")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("search requires a query")
	}

	cfg, err := cf.load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	archivist, _, closeStore, err := buildSearchArchivist(ctx, cfg, cf.logger())
	if err != nil {
		return err
	}
	defer closeStore()

	query := fs.Arg(0)
	results, err := archivist.Search(ctx, query, *limit)
	if err != nil {
		return err
	}

	printResults(results)
	return nil
}

func cmdSimilar(args []string) error {
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	cf := registerCommon(fs)
	limit := fs.Int("limit", 5, "Maximum number of results")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("similar requires a file path")
	}

	cfg, err := cf.load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	archivist, _, closeStore, err := buildSearchArchivist(ctx, cfg, cf.logger())
	if err != nil {
		return err
	}
	defer closeStore()

	results, err := archivist.Similar(ctx, fs.Arg(0), *limit)
	if err != nil {
		return err
	}

	printResults(results)
	return nil
}

// buildSearchArchivist builds a pipeline without OCR. Read-only commands
// never extract text, so a missing tesseract must not stop them.
func buildSearchArchivist(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*archive.Archivist, *detector.Detector, func(), error) {
	readCfg := *cfg
	readCfg.OCR.Enabled = false
	return buildArchivist(ctx, &readCfg, logger)
}

func printResults(results []store.SearchResult) {
	if len(results) == 0 {
		color.Yellow("No results\n")
		return
	}

	for i, r := range results {
		color.Green("%d. %s", i+1, r.Path)
		fmt.Printf("   distance %.4f\n", r.Distance)
		if r.ChunkText != "" {
			snippet := r.ChunkText
			if len(snippet) > 200 {
				snippet = snippet[:200] + "..."
			}
			fmt.Printf("   %s\n", snippet)
		}
	}
}

func cmdList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	cf := registerCommon(fs)
	sortBy := fs.String("sort", "date", "Sort order: date or name")
	fs.Parse(args)

	cfg, err := cf.load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	archivist, _, closeStore, err := buildSearchArchivist(ctx, cfg, cf.logger())
	if err != nil {
		return err
	}
	defer closeStore()

	docs, err := archivist.List(ctx)
	if err != nil {
		return err
	}

	if *sortBy == "name" {
		sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	}

	if len(docs) == 0 {
		color.Yellow("No documents indexed\n")
		return nil
	}

	for _, doc := range docs {
		fmt.Printf("%s  %s\n", doc.CreatedAt.Format("2006-01-02 15:04"), doc.Path)
	}
	color.Blue("\n%d document(s)\n", len(docs))
	return nil
}

func cmdStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cf := registerCommon(fs)
	fs.Parse(args)

	cfg, err := cf.load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	archivist, _, closeStore, err := buildSearchArchivist(ctx, cfg, cf.logger())
	if err != nil {
		return err
	}
	defer closeStore()

	status, err := archivist.Status(ctx)
	if err != nil {
		return err
	}

	color.Cyan("Index status")
	fmt.Printf("  documents: %d\n", status.Documents)
	fmt.Printf("  vectors:   %d\n", status.Vectors)

	if ok, _ := ocr.CheckInstallation(cfg.OCR.TesseractPath); ok {
		color.Green("  ocr:       available")
	} else {
		color.Yellow("  ocr:       tesseract not found")
	}
	return nil
}

// cmdValidate checks configuration and, when paths are given, cross-checks
// the files on disk against the store's records.
func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cf := registerCommon(fs)
	recursive := fs.Bool("recursive", true, "Descend into subdirectories")
	fs.Parse(args)

	cfg, err := config.LoadConfig(cf.configPath)
	if err != nil {
		return err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("  %s: %s", e.Field, e.Message)
		}
		return fmt.Errorf("%d configuration error(s)", len(errs))
	}
	color.Green("Configuration is valid")

	if fs.NArg() == 0 {
		return nil
	}

	logger := cf.logger()
	ctx := context.Background()
	archivist, cls, closeStore, err := buildSearchArchivist(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	rec := reconcile.New(cls, archivist, logger)
	plan := rec.Plan(ctx, reconcile.Scope{Roots: fs.Args(), Recursive: *recursive})

	var missing, stale, current int
	for path := range plan.ToProcess {
		doc, err := archivist.DocumentByPath(ctx, path)
		if err != nil {
			missing++
			fmt.Printf("  not indexed:  %s\n", path)
			continue
		}
		if info, err := os.Stat(path); err == nil && info.ModTime().After(doc.ModTime) {
			stale++
			fmt.Printf("  maybe stale:  %s\n", path)
			continue
		}
		current++
	}
	for path := range plan.ToRetire {
		fmt.Printf("  orphaned:     %s\n", path)
	}

	status, err := archivist.Status(ctx)
	if err != nil {
		return err
	}

	color.Cyan("\nValidation summary")
	fmt.Printf("  up to date:   %d\n", current)
	fmt.Printf("  not indexed:  %d\n", missing)
	fmt.Printf("  maybe stale:  %d\n", stale)
	fmt.Printf("  orphaned:     %d\n", len(plan.ToRetire))
	fmt.Printf("  vectors:      %d\n", status.Vectors)

	if missing+len(plan.ToRetire) > 0 {
		color.Yellow("\nRun 'fileseek process' on these paths to reconcile\n")
	}
	return nil
}

func cmdConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	cf := registerCommon(fs)
	fs.Parse(args)

	cfg, err := config.LoadConfig(cf.configPath)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Print(string(out))

	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Fprintln(os.Stderr)
		for _, e := range errs {
			color.Red("  %s: %s", e.Field, e.Message)
		}
	}
	return nil
}

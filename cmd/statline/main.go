package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/statline/statline/internal/clean"
	"github.com/statline/statline/internal/config"
	"github.com/statline/statline/internal/dates"
	"github.com/statline/statline/internal/embed"
	"github.com/statline/statline/internal/group"
	"github.com/statline/statline/internal/ingest"
	"github.com/statline/statline/internal/llm"
	"github.com/statline/statline/internal/mcp"
	"github.com/statline/statline/internal/observe"
	"github.com/statline/statline/internal/pipeline"
	"github.com/statline/statline/internal/scope"
	"github.com/statline/statline/internal/store"
)

const version = "0.1.0"

func main() {
	// A .env next to the binary is a convenience for API keys; absence is
	// not an error.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "import":
		err = runImport(os.Args[2:])
	case "clean":
		err = runClean(os.Args[2:])
	case "validate":
		err = runValidate(os.Args[2:])
	case "dates":
		err = runDates(os.Args[2:])
	case "group":
		err = runGroup(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "mcp":
		err = runMCP(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("statline %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	configPath string
	dbPath     string
	llmFlag    string
	embedFlag  string
	batch      string
}

// parseFlags splits args into common flags, command-specific booleans, and
// positional arguments. Both "--flag value" and "--flag=value" forms work.
func parseFlags(args []string, bools map[string]*bool) (commonFlags, []string, error) {
	var cf commonFlags
	var positional []string

	valueFlags := map[string]*string{
		"--config": &cf.configPath,
		"--db":     &cf.dbPath,
		"--llm":    &cf.llmFlag,
		"--embed":  &cf.embedFlag,
		"--batch":  &cf.batch,
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if b, ok := bools[arg]; ok {
			*b = true
			continue
		}

		if name, value, found := strings.Cut(arg, "="); found {
			if dst, ok := valueFlags[name]; ok {
				*dst = value
				continue
			}
		}
		if dst, ok := valueFlags[arg]; ok {
			if i+1 >= len(args) {
				return cf, nil, fmt.Errorf("flag %s requires a value", arg)
			}
			i++
			*dst = args[i]
			continue
		}

		if strings.HasPrefix(arg, "-") {
			return cf, nil, fmt.Errorf("unknown flag: %s", arg)
		}
		positional = append(positional, arg)
	}
	return cf, positional, nil
}

func resolveConfig(cf commonFlags) (config.ResolvedConfig, error) {
	return config.ResolveConfig(config.ResolveOptions{
		ConfigPath: cf.configPath,
		CLILLM:     cf.llmFlag,
		CLIEmbed:   cf.embedFlag,
		CLIDBPath:  cf.dbPath,
		CLIBatch:   cf.batch,
	})
}

func openStore(cfg config.ResolvedConfig) (store.Store, error) {
	s, err := store.NewStore(store.Config{DBPath: cfg.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

// buildOracle constructs the LLM provider, or returns nil when it cannot
// be configured. Components treat a nil oracle as "use the fallback path",
// so a missing API key downgrades behavior instead of failing the run.
func buildOracle(cfg config.ResolvedConfig) llm.Provider {
	pc, err := llm.ParseProviderFlag(cfg.LLMProvider.Value)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Note: oracle disabled: %v\n", err)
		return nil
	}
	if key := cfg.APIKeyForProvider(pc.Provider).Value; key != "" {
		pc.APIKey = key
	}
	provider, err := llm.NewProvider(pc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Note: oracle disabled: %v\n", err)
		return nil
	}
	return provider
}

// buildCleaner assembles the cleaning engine with whatever matcher
// capabilities the configuration enables.
func buildCleaner(cfg config.ResolvedConfig) *clean.Engine {
	opts := []clean.Option{clean.WithFuzzyScorer(clean.WuzzyScorer{})}

	if cfg.EmbedDedupEnabled() {
		embedder, err := buildEmbedder(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Note: embedding dedup disabled: %v\n", err)
		} else if embedder != nil {
			opts = append(opts, clean.WithEmbedMatcher(clean.NewEmbedMatcher(embedder, 0)))
		}
	}
	return clean.NewEngine(opts...)
}

func buildEmbedder(cfg config.ResolvedConfig) (embed.Embedder, error) {
	flag := cfg.EmbedProvider.Value
	if flag == "" {
		return nil, nil
	}
	ec, err := embed.ParseFlag(flag)
	if err != nil {
		return nil, err
	}
	if ec.Provider == "local" {
		modelPath := cfg.EmbedModelPath.Value
		if modelPath == "" {
			modelPath = ec.ModelPath
		}
		return embed.NewLocalEmbedder(modelPath, cfg.EmbedTokenizerPath.Value)
	}
	if cfg.EmbedEndpoint.Value != "" {
		ec.Endpoint = cfg.EmbedEndpoint.Value
	}
	if cfg.EmbedAPIKey.Value != "" {
		ec.APIKey = cfg.EmbedAPIKey.Value
	}
	return embed.NewClient(ec)
}

func buildRunner(cfg config.ResolvedConfig, s store.Store) *pipeline.Runner {
	oracle := buildOracle(cfg)
	grouper := group.NewEngine(oracle,
		group.WithBatchSize(cfg.GroupBatch(group.DefaultBatchSize)),
		group.WithMaxRetries(cfg.GroupRetries(group.DefaultMaxRetries)),
	)
	return pipeline.NewRunner(s,
		buildCleaner(cfg),
		scope.NewValidator(oracle),
		dates.NewEnricher(),
		dates.NewRecoverer(oracle),
		grouper,
		pipeline.WithMetrics(observe.NewMetrics(prometheus.DefaultRegisterer)),
		pipeline.WithProgress(func(p pipeline.Progress) {
			fmt.Printf("  %s: %d processed, %d failed\n", p.Phase, p.Processed, p.Failed)
		}),
	)
}

// newPhaseJob creates a job whose stop flag is wired to SIGINT, so an
// interrupted run halts at the next batch boundary instead of mid-write.
func newPhaseJob(phase string) (*pipeline.Job, func()) {
	job := pipeline.NewJob(phase)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		if _, ok := <-sigCh; ok {
			fmt.Fprintln(os.Stderr, "Interrupt received; stopping at the next batch boundary...")
			job.Stop()
		}
	}()
	cancel := func() {
		signal.Stop(sigCh)
		close(sigCh)
	}
	return job, cancel
}

func printReport(report *pipeline.PhaseReport) {
	fmt.Printf("\nPhase %s: %d processed, %d failed\n", report.Phase, report.Processed, report.Failed)
	if report.Rejected > 0 {
		fmt.Printf("  rejected:  %d\n", report.Rejected)
	}
	if report.Purged > 0 {
		fmt.Printf("  purged:    %d\n", report.Purged)
	}
	if report.Enriched > 0 {
		fmt.Printf("  enriched:  %d\n", report.Enriched)
	}
	if report.Recovered > 0 {
		fmt.Printf("  recovered: %d\n", report.Recovered)
	}
	if report.Groups > 0 {
		fmt.Printf("  groups:    %d\n", report.Groups)
	}
	if report.Fallbacks > 0 {
		fmt.Printf("  rule-pass batches: %d\n", report.Fallbacks)
	}
	for _, err := range report.Errors {
		fmt.Fprintf(os.Stderr, "  error: %v\n", err)
	}
}

func runImport(args []string) error {
	var recursive, dryRun bool
	cf, paths, err := parseFlags(args, map[string]*bool{
		"--recursive": &recursive, "-r": &recursive,
		"--dry-run": &dryRun, "-n": &dryRun,
	})
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("usage: statline import <path> [--recursive] [--dry-run]")
	}

	cfg, err := resolveConfig(cf)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if dryRun {
		fmt.Println("Dry run mode — no changes will be written")
		fmt.Println()
	}

	engine := ingest.NewEngine(s)
	ctx := context.Background()
	total := &ingest.ImportResult{}

	for _, path := range paths {
		fmt.Printf("Importing %s...\n", path)
		result, err := engine.ImportPath(ctx, path, ingest.ImportOptions{
			Recursive: recursive,
			DryRun:    dryRun,
			ProgressFn: func(current, totalFiles int, file string) {
				fmt.Printf("  [%d/%d] %s\n", current, totalFiles, file)
			},
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "  Error: %v\n", err)
			continue
		}
		total.Add(result)
	}

	fmt.Println()
	fmt.Print(ingest.FormatImportResult(total))
	return nil
}

func runClean(args []string) error {
	cf, _, err := parseFlags(args, nil)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(cf)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	job, done := newPhaseJob("clean")
	defer done()

	report, err := buildRunner(cfg, s).CleanAll(context.Background(), job)
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

func runValidate(args []string) error {
	var purge bool
	cf, _, err := parseFlags(args, map[string]*bool{"--purge": &purge})
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(cf)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	job, done := newPhaseJob("validate")
	defer done()

	report, err := buildRunner(cfg, s).ValidateAll(context.Background(), job, purge)
	if err != nil {
		return err
	}
	printReport(report)
	if report.Rejected > 0 && !purge {
		fmt.Println("\nRe-run with --purge to delete the rejected documents.")
	}
	return nil
}

func runDates(args []string) error {
	var recoverDates bool
	cf, _, err := parseFlags(args, map[string]*bool{"--recover": &recoverDates})
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(cf)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	job, done := newPhaseJob("dates")
	defer done()

	report, err := buildRunner(cfg, s).EnrichDates(context.Background(), job, recoverDates)
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

func runGroup(args []string) error {
	cf, _, err := parseFlags(args, nil)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(cf)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	job, done := newPhaseJob("group")
	defer done()

	report, err := buildRunner(cfg, s).GroupAll(context.Background(), job)
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

func runStats(args []string) error {
	cf, _, err := parseFlags(args, nil)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(cf)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.Stats(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Documents:     %d\n", stats.DocumentCount)
	fmt.Printf("Groups:        %d\n", stats.GroupCount)
	fmt.Printf("Jurisdictions: %d\n", stats.Jurisdictions)
	fmt.Printf("DB size:       %d bytes\n", stats.DBSizeBytes)
	return nil
}

func runMCP(args []string) error {
	cf, _, err := parseFlags(args, nil)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(cf)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	srv := mcp.NewServer(mcp.ServerConfig{Store: s, Version: version})
	return mcpserver.ServeStdio(srv)
}

func printUsage() {
	fmt.Printf(`statline %s — statute corpus pipeline

Usage:
  statline <command> [arguments]

Commands:
  import <path>   Import raw statute JSON into the store
  clean           Run the field-cleaning phase
  validate        Flag out-of-scope documents (--purge to delete them)
  dates           Merge date fields (--recover to fill gaps from text)
  group           Build versioned lineage groups
  stats           Show corpus statistics
  mcp             Serve the review surface over MCP stdio
  version         Print version

Common Flags:
  --config <path>   Config file (default ~/.statline/config.yaml)
  --db <path>       Database path
  --llm <p/model>   Oracle provider/model (google, openrouter)
  --embed <p/model> Embedding provider/model for cleaning dedup
  --batch <n>       Grouping oracle batch size

Import Flags:
  -r, --recursive   Recurse into directories
  -n, --dry-run     Show what would be imported without writing

Flags:
  -h, --help        Show this help message
  -v, --version     Print version
`, version)
}

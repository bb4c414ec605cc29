// Package main is the Kioku CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/keyword"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/provenance"
	"github.com/hyperjump/kioku/internal/search"
	"github.com/hyperjump/kioku/internal/security"
	"github.com/hyperjump/kioku/internal/storage"
	"github.com/hyperjump/kioku/internal/trust"
	"github.com/hyperjump/kioku/internal/vector"
	"github.com/hyperjump/kioku/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kioku/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used instead.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// components bundles everything a subcommand needs against one store.
type components struct {
	Storage *storage.Store
	Engine  *search.Engine
	Tracker *provenance.Tracker
	Scorer  *trust.Scorer
	Backend vector.Backend
}

func (c *components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	store, err := storage.Open(cfg.Storage.DatabasePath, cfg.Storage.VecExtensionPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	backend := vector.Select(store, logger)
	keywordIndex := keyword.NewIndex(store.DB(), logger)
	tracker := provenance.NewTracker(store, logger)
	scorer := trust.NewScorer(store, trust.Config{
		HalfLifeDays:         cfg.Trust.HalfLifeDays,
		ContradictionPenalty: cfg.Trust.ContradictionPenalty,
		DefaultTrust:         cfg.Trust.DefaultTrust,
	}, logger)
	engine := search.NewEngine(backend, keywordIndex, scorer, security.NewValidator(), &cfg.Search, logger)

	return &components{
		Storage: store,
		Engine:  engine,
		Tracker: tracker,
		Scorer:  scorer,
		Backend: backend,
	}, nil
}

// setup loads config, builds the logger, and initializes components. Every
// subcommand goes through here.
func setup(configPath string) (*config.Config, *zap.Logger, *components) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, comps
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "search":
		runSearch()
	case "record":
		runRecord()
	case "verify":
		runVerify()
	case "contradict":
		runContradict()
	case "provenance":
		runProvenance()
	case "trust":
		runTrust()
	case "delete":
		runDelete()
	case "stats":
		runStats()
	case "version", "--version", "-v":
		fmt.Printf("kioku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`Usage: kioku <command> [flags]

Commands:
  search      hybrid vector + keyword search over stored chunks
  record      record or refresh provenance for a chunk
  verify      mark a chunk as verified, raising its trust toward the cap
  contradict  record a contradiction against a chunk
  provenance  print the provenance record for a chunk
  trust       print the current effective trust score for a chunk
  delete      delete all chunks for a source tag
  stats       print store statistics
  version     print version
`)
}

// readEmbedding parses a JSON array of numbers from path into a query vector.
func readEmbedding(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("embedding file must be a JSON array of numbers: %w", err)
	}
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

func splitSources(csv string) []string {
	if csv == "" {
		return nil
	}
	var sources []string
	for _, s := range strings.Split(csv, ",") {
		if s = strings.TrimSpace(s); s != "" {
			sources = append(sources, s)
		}
	}
	return sources
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	model := fs.String("model", "", "embedding model the stored vectors belong to (required)")
	embeddingPath := fs.String("embedding", "", "path to the query embedding as a JSON array of numbers")
	limit := fs.Int("limit", 0, "number of results (0 = config default)")
	sourcesCSV := fs.String("sources", "", "comma-separated source tags to restrict the search to")
	vectorWeight := fs.Float64("vector-weight", -1, "weight of the vector score (-1 = config default)")
	textWeight := fs.Float64("text-weight", -1, "weight of the keyword score (-1 = config default)")
	trustWeight := fs.Float64("trust-weight", 0, "blend of effective trust into the final ranking (0 = off)")
	scan := fs.Bool("scan", false, "scan result content for adversarial patterns and attach warnings")
	outputJSON := fs.Bool("json", false, "print results as JSON")
	_ = fs.Parse(os.Args[2:])

	queryText := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if *model == "" {
		fmt.Fprintln(os.Stderr, "search requires -model")
		os.Exit(1)
	}
	if *embeddingPath == "" && queryText == "" {
		fmt.Fprintln(os.Stderr, "search needs query text, an -embedding file, or both")
		os.Exit(1)
	}

	cfg, logger, comps := setup(*configPath)
	defer logger.Sync()
	defer comps.Close()

	query := &models.SearchQuery{
		QueryText: queryText,
		Model:     *model,
		Sources:   splitSources(*sourcesCSV),
		Limit:     *limit,
	}
	if *embeddingPath != "" {
		vec, err := readEmbedding(*embeddingPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read embedding: %v\n", err)
			os.Exit(1)
		}
		query.QueryVector = vec
	}
	if *vectorWeight >= 0 {
		query.VectorWeight = *vectorWeight
	} else {
		query.VectorWeight = cfg.Search.VectorWeight
	}
	if *textWeight >= 0 {
		query.TextWeight = *textWeight
	} else {
		query.TextWeight = cfg.Search.TextWeight
	}
	if *trustWeight > 0 || *scan {
		query.Trust = &models.TrustOptions{TrustWeight: *trustWeight, ScanContent: *scan}
	}

	results, err := comps.Engine.Search(context.Background(), query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}

	if *outputJSON {
		printJSON(results)
		return
	}
	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}
	for i, r := range results {
		fmt.Printf("%2d. %s:%d-%d  fused=%.4f", i+1, r.Path, r.StartLine, r.EndLine, r.FusedScore)
		if query.Trust != nil && query.Trust.TrustWeight > 0 {
			fmt.Printf("  trust=%.4f  combined=%.4f", r.TrustScore, r.CombinedScore)
		}
		fmt.Printf("  [%s]\n", r.ChunkID)
		if r.Snippet != "" {
			fmt.Printf("    %s\n", r.Snippet)
		}
		for _, w := range r.Warnings {
			fmt.Printf("    ! %s\n", w)
		}
	}
}

func runRecord() {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	kind := fs.String("kind", "", "source kind: authored, system, or external")
	metaCSV := fs.String("meta", "", "comma-separated key=value metadata pairs")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 || *kind == "" {
		fmt.Fprintln(os.Stderr, "Usage: kioku record -kind <kind> [-meta k=v,...] <chunk-id>")
		os.Exit(1)
	}

	metadata := map[string]string{}
	for _, pair := range splitSources(*metaCSV) {
		if k, v, ok := strings.Cut(pair, "="); ok {
			metadata[k] = v
		}
	}

	_, logger, comps := setup(*configPath)
	defer logger.Sync()
	defer comps.Close()

	rec, err := comps.Tracker.RecordProvenance(context.Background(), fs.Arg(0), *kind, metadata)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to record provenance: %v\n", err)
		os.Exit(1)
	}
	printJSON(rec)
}

func runVerify() {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	verifier := fs.String("by", "", "identity of the verifier (required)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 || *verifier == "" {
		fmt.Fprintln(os.Stderr, "Usage: kioku verify -by <who> <chunk-id>")
		os.Exit(1)
	}

	_, logger, comps := setup(*configPath)
	defer logger.Sync()
	defer comps.Close()

	ctx := context.Background()
	if err := comps.Tracker.VerifyChunk(ctx, fs.Arg(0), *verifier); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to verify chunk: %v\n", err)
		os.Exit(1)
	}
	rec, err := comps.Tracker.Get(ctx, fs.Arg(0))
	if err == nil {
		fmt.Printf("Verified %s: base trust now %.2f (cap %.2f)\n", rec.ChunkID, rec.BaseTrust, rec.TrustCap)
	}
}

func runContradict() {
	fs := flag.NewFlagSet("contradict", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: kioku contradict <chunk-id>")
		os.Exit(1)
	}

	_, logger, comps := setup(*configPath)
	defer logger.Sync()
	defer comps.Close()

	if err := comps.Tracker.RecordContradiction(context.Background(), fs.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to record contradiction: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Recorded contradiction against %s\n", fs.Arg(0))
}

func runProvenance() {
	fs := flag.NewFlagSet("provenance", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: kioku provenance <chunk-id>")
		os.Exit(1)
	}

	_, logger, comps := setup(*configPath)
	defer logger.Sync()
	defer comps.Close()

	rec, err := comps.Tracker.Get(context.Background(), fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get provenance: %v\n", err)
		os.Exit(1)
	}
	printJSON(rec)
}

func runTrust() {
	fs := flag.NewFlagSet("trust", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: kioku trust <chunk-id>")
		os.Exit(1)
	}

	_, logger, comps := setup(*configPath)
	defer logger.Sync()
	defer comps.Close()

	score, err := comps.Scorer.EffectiveTrustScore(context.Background(), fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to compute trust score: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%.4f\n", score)
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	source := fs.String("source", "", "source tag whose chunks should be removed (required)")
	_ = fs.Parse(os.Args[2:])

	if *source == "" {
		fmt.Fprintln(os.Stderr, "Usage: kioku delete -source <tag>")
		os.Exit(1)
	}

	_, logger, comps := setup(*configPath)
	defer logger.Sync()
	defer comps.Close()

	if err := comps.Storage.DeleteChunksBySource(context.Background(), *source); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to delete chunks: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted chunks for source %q\n", *source)
}

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputJSON := fs.Bool("json", false, "print stats as JSON")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, comps := setup(*configPath)
	defer logger.Sync()
	defer comps.Close()

	count, err := comps.Storage.CountChunks(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to count chunks: %v\n", err)
		os.Exit(1)
	}

	stats := struct {
		Chunks        int64  `json:"chunks"`
		VectorBackend string `json:"vector_backend"`
		DatabasePath  string `json:"database_path"`
	}{count, comps.Backend.Name(), cfg.Storage.DatabasePath}

	if *outputJSON {
		printJSON(stats)
		return
	}
	fmt.Printf("Chunks:         %d\n", stats.Chunks)
	fmt.Printf("Vector backend: %s\n", stats.VectorBackend)
	fmt.Printf("Database:       %s\n", stats.DatabasePath)
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

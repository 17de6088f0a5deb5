package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"palaestra/internal/checkpoint"
	"palaestra/internal/evo"
	"palaestra/internal/match"
	"palaestra/internal/storage"
	palapi "palaestra/pkg/palaestra"
)

const (
	defaultCheckpointDir = "checkpoints"
	defaultExportsDir    = "exports"
	defaultDBPath        = "palaestra.db"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "train":
		return runTrain(ctx, args[1:])
	case "inspect":
		return runInspect(ctx, args[1:])
	case "stats":
		return runStats(ctx, args[1:])
	case "backup":
		return runBackup(ctx, args[1:])
	case "archive":
		return runArchive(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional client config JSON path")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	dir := fs.String("dir", defaultCheckpointDir, "checkpoint directory")
	size := fs.Int("size", 0, "population size (0 uses the client default)")
	genes := fs.Int("genes", 0, "flat genome length")
	layers := fs.String("layers", "", "comma-separated layer sizes, e.g. 32,16,4")
	seed := fs.Int64("seed", 0, "rng seed (0 seeds from the clock)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	opts, err := loadOrDefaultOptions(*configPath)
	if err != nil {
		return err
	}
	if err := overrideFromFlags(&opts, setFlags, map[string]any{
		"store":   *storeKind,
		"db-path": *dbPath,
		"dir":     *dir,
		"size":    *size,
		"genes":   *genes,
		"layers":  *layers,
		"seed":    *seed,
	}); err != nil {
		return err
	}

	opts.Logger = cliLogger()

	client, err := palapi.New(opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	kind := opts.StoreKind
	if kind == "" {
		kind = storage.DefaultStoreKind()
	}
	if opts.GenomeLength == 0 && len(opts.LayerSizes) == 0 {
		fmt.Printf("initialized store=%s\n", kind)
		return nil
	}

	pop, err := client.Population()
	if err != nil {
		return err
	}
	if err := pop.Save(); err != nil {
		return err
	}
	fmt.Printf("initialized store=%s checkpoint=%s individuals=%d generation=%d\n",
		kind, pop.Dir(), pop.Size(), pop.Generation())
	return nil
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional client config JSON path")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	dir := fs.String("dir", defaultCheckpointDir, "checkpoint directory")
	size := fs.Int("size", 0, "population size (0 uses the client default)")
	genes := fs.Int("genes", 0, "flat genome length")
	layers := fs.String("layers", "", "comma-separated layer sizes, e.g. 2,2,1")
	seed := fs.Int64("seed", 0, "rng seed (0 seeds from the clock)")
	runID := fs.String("run-id", "", "run id (defaults to a fresh UUID)")
	matches := fs.Int("matches", 0, "match bound (0 means unbounded)")
	gens := fs.Int("gens", 1, "generation bound (0 means unbounded)")
	task := fs.String("task", "target", "built-in match engine: target|xor")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	opts, err := loadOrDefaultOptions(*configPath)
	if err != nil {
		return err
	}
	if err := overrideFromFlags(&opts, setFlags, map[string]any{
		"store":   *storeKind,
		"db-path": *dbPath,
		"dir":     *dir,
		"size":    *size,
		"genes":   *genes,
		"layers":  *layers,
		"seed":    *seed,
	}); err != nil {
		return err
	}
	opts.TrainMode = true
	opts.Logger = cliLogger()

	req := palapi.TrainRequest{RunID: *runID, Matches: *matches, Generations: *gens}
	switch *task {
	case "target":
		length := opts.GenomeLength
		if length == 0 && len(opts.LayerSizes) > 0 {
			if length, err = evo.WeightCount(opts.LayerSizes); err != nil {
				return err
			}
		}
		if length == 0 {
			return errors.New("the target task needs --genes or --layers")
		}
		runner, err := match.NewTargetRunner(length, opts.Seed)
		if err != nil {
			return err
		}
		req.Runner = runner
	case "xor":
		if len(opts.LayerSizes) == 0 {
			return errors.New("the xor task needs --layers, e.g. --layers 2,2,1")
		}
		req.Runner = &match.XORRunner{LayerSizes: opts.LayerSizes}
	default:
		return fmt.Errorf("unknown task: %s", *task)
	}

	client, err := palapi.New(opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	summary, err := client.Train(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("trained run_id=%s matches=%d gens=%d best_fitness=%s\n",
		summary.RunID, summary.Matches, summary.Generations, formatFitness(summary.BestFitness))
	return nil
}

func runInspect(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	dir := fs.String("dir", defaultCheckpointDir, "checkpoint directory")
	jsonOut := fs.Bool("json", !stdoutIsTTY(), "emit the snapshot as JSON (default when piped)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	snap, err := checkpoint.Inspect(*dir)
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	if !snap.HasCounter && len(snap.Individuals) == 0 {
		fmt.Printf("checkpoint=%s empty=true\n", snap.Root)
		return nil
	}

	fmt.Printf("checkpoint=%s generation=%d counter=%d streak=%d individuals=%s stats_records=%s stats_size=%s\n",
		snap.Root,
		snap.State.Generation,
		snap.State.Counter,
		snap.State.Streak,
		humanize.Comma(int64(len(snap.Individuals))),
		humanize.Comma(int64(snap.StatsRecords)),
		humanize.IBytes(uint64(snap.StatsBytes)),
	)
	for _, ind := range snap.Individuals {
		fmt.Printf("rank=%d genes=%s size=%s fitness=%s\n",
			ind.Rank,
			humanize.Comma(int64(ind.Genes)),
			humanize.IBytes(uint64(ind.Bytes)),
			formatFitness(ind.Fitness),
		)
	}
	return nil
}

func runStats(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	dir := fs.String("dir", defaultCheckpointDir, "checkpoint directory")
	limit := fs.Int("limit", 0, "print only the last N records (0 prints all)")
	jsonOut := fs.Bool("json", !stdoutIsTTY(), "emit records as JSON (default when piped)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*dir); err != nil {
		return err
	}

	ckpt, err := checkpoint.Open(*dir, 0)
	if err != nil {
		return err
	}
	records, err := ckpt.ReadStats()
	if err != nil {
		return err
	}
	if *limit > 0 && len(records) > *limit {
		records = records[len(records)-*limit:]
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Println("no stats recorded")
		return nil
	}
	for i, rec := range records {
		fmt.Printf("record=%d wins=%d goal_wins=%d max_fitness=%d losses=%d min_goal_moves=%d max_goal_moves=%d longest_streak=%d\n",
			i+1,
			rec.Wins,
			rec.GoalWins,
			rec.MaxFitness,
			rec.Losses,
			rec.MinGoalMoves,
			rec.MaxGoalMoves,
			rec.LongestStreak,
		)
	}
	return nil
}

func runBackup(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	dir := fs.String("dir", defaultCheckpointDir, "checkpoint directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	snap, err := checkpoint.Inspect(*dir)
	if err != nil {
		return err
	}
	if !snap.HasCounter {
		return fmt.Errorf("no counter record in %s, nothing to back up", *dir)
	}

	ckpt, err := checkpoint.Open(*dir, 0)
	if err != nil {
		return err
	}
	if err := ckpt.Backup(len(snap.Individuals)); err != nil {
		return err
	}

	fmt.Printf("backup written dir=%s individuals=%d\n", ckpt.BackupPath(), len(snap.Individuals))
	return nil
}

func runArchive(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("archive", flag.ContinueOnError)
	dir := fs.String("dir", defaultCheckpointDir, "checkpoint directory")
	runID := fs.String("run-id", "", "run id (defaults to a fresh UUID)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := palapi.New(palapi.Options{StoreKind: *storeKind, DBPath: *dbPath, Logger: cliLogger()})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	archived, err := client.Archive(ctx, palapi.ArchiveRequest{Dir: *dir, RunID: *runID})
	if err != nil {
		return err
	}
	fmt.Printf("archived run_id=%s records=%d\n", archived.RunID, archived.Records)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", !stdoutIsTTY(), "emit runs as JSON (default when piped)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := palapi.New(palapi.Options{StoreKind: *storeKind, DBPath: *dbPath, Logger: cliLogger()})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	runs, err := client.Runs(ctx, *limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	for _, r := range runs {
		completed := "n/a"
		if !r.CompletedAt.IsZero() {
			completed = r.CompletedAt.UTC().Format(time.RFC3339)
		}
		fmt.Printf("run_id=%s started_at=%s completed_at=%s matches=%s gens=%d best_fitness=%s\n",
			r.ID,
			r.StartedAt.UTC().Format(time.RFC3339),
			completed,
			humanize.Comma(int64(r.Matches)),
			r.Generations,
			formatFitness(r.BestFitness),
		)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent archived run")
	outDir := fs.String("out", defaultExportsDir, "export output directory")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := palapi.New(palapi.Options{StoreKind: *storeKind, DBPath: *dbPath, ExportsDir: *outDir, Logger: cliLogger()})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	exported, err := client.Export(ctx, palapi.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}

	fmt.Printf("exported run_id=%s to=%s\n", exported.RunID, filepath.Clean(exported.Directory))
	return nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: palaestractl <init|train|inspect|stats|backup|archive|runs|export> [flags]", msg)
}

func cliLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func stdoutIsTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func formatFitness(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

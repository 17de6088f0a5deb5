// Package palaestra is the embedding API for the generational trainer. It
// wires a checkpointed population, the match loop, and the run archive
// behind one client so hosts and the CLI share the same entry points.
package palaestra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"

	"palaestra/internal/checkpoint"
	"palaestra/internal/evo"
	"palaestra/internal/model"
	"palaestra/internal/stats"
	"palaestra/internal/storage"
	"palaestra/internal/trainer"
)

const (
	defaultCheckpointDir  = "checkpoints"
	defaultExportsDir     = "exports"
	defaultDBPath         = "palaestra.db"
	defaultPopulationSize = 16
)

type Options struct {
	// CheckpointDir holds the population files. An existing directory is
	// resumed, an empty one starts a fresh population.
	CheckpointDir string
	// PopulationSize must be even. Zero selects the default.
	PopulationSize int

	// GenomeLength spawns flat genomes of that many genes. LayerSizes
	// spawns genomes sized for a fully connected feed-forward net. One of
	// the two is required before the population can be used.
	GenomeLength int
	LayerSizes   []int

	// TrainMode selects counter-driven sampling and enables evolution.
	TrainMode bool
	TrainSlot int

	MutationWeight  float32
	MutationBias    float32
	StatsLimitBytes int64

	// Strategy picks the match participants per counter position.
	// Defaults to self-play.
	Strategy evo.GeneticStrategy

	// StoreKind selects the run archive backend. DBPath only applies to
	// the sqlite backend.
	StoreKind string
	DBPath    string

	ExportsDir string

	Logger *slog.Logger
	// Seed fixes spawning and mutation for reproducible runs. Zero seeds
	// from the clock.
	Seed int64
}

type Client struct {
	store  storage.Store
	logger *slog.Logger
	pop    *evo.Population

	checkpointDir   string
	populationSize  int
	genomeLength    int
	layerSizes      []int
	trainMode       bool
	trainSlot       int
	mutationWeight  float32
	mutationBias    float32
	statsLimitBytes int64
	strategy        evo.GeneticStrategy
	exportsDir      string
	seed            int64
}

func New(opts Options) (*Client, error) {
	if opts.GenomeLength > 0 && len(opts.LayerSizes) > 0 {
		return nil, errors.New("genome length and layer sizes are mutually exclusive")
	}
	if opts.CheckpointDir == "" {
		opts.CheckpointDir = defaultCheckpointDir
	}
	if opts.PopulationSize == 0 {
		opts.PopulationSize = defaultPopulationSize
	}
	if opts.ExportsDir == "" {
		opts.ExportsDir = defaultExportsDir
	}
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:           store,
		logger:          logger,
		checkpointDir:   opts.CheckpointDir,
		populationSize:  opts.PopulationSize,
		genomeLength:    opts.GenomeLength,
		layerSizes:      opts.LayerSizes,
		trainMode:       opts.TrainMode,
		trainSlot:       opts.TrainSlot,
		mutationWeight:  opts.MutationWeight,
		mutationBias:    opts.MutationBias,
		statsLimitBytes: opts.StatsLimitBytes,
		strategy:        opts.Strategy,
		exportsDir:      opts.ExportsDir,
		seed:            opts.Seed,
	}, nil
}

// Init prepares the run archive. Call it once before Train, Runs or Export.
func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Population loads or spawns the population on first use. Hosts that drive
// matches themselves use it instead of Train.
func (c *Client) Population() (*evo.Population, error) {
	return c.ensurePopulation()
}

func (c *Client) ensurePopulation() (*evo.Population, error) {
	if c.pop != nil {
		return c.pop, nil
	}

	var rng *rand.Rand
	if c.seed != 0 {
		rng = rand.New(rand.NewSource(c.seed))
	}

	var (
		spawner evo.Spawner
		err     error
	)
	switch {
	case c.genomeLength > 0:
		spawner, err = evo.GaussianSpawner(c.genomeLength, rng)
	case len(c.layerSizes) > 0:
		spawner, err = evo.LayerSpawner(c.layerSizes, rng)
	default:
		return nil, errors.New("a genome length or layer sizes are required")
	}
	if err != nil {
		return nil, err
	}

	pop, err := evo.NewPopulation(evo.Config{
		Size:            c.populationSize,
		Spawner:         spawner,
		Dir:             c.checkpointDir,
		Strategy:        c.strategy,
		TrainMode:       c.trainMode,
		TrainSlot:       c.trainSlot,
		MutationWeight:  c.mutationWeight,
		MutationBias:    c.mutationBias,
		StatsLimitBytes: c.statsLimitBytes,
		Logger:          c.logger,
		RNG:             rng,
	})
	if err != nil {
		return nil, err
	}
	c.pop = pop
	return c.pop, nil
}

type TrainRequest struct {
	// RunID defaults to a fresh UUID.
	RunID string
	// Matches and Generations bound the run. Zero means unbounded, at
	// least one of the two must be set.
	Matches     int
	Generations int
	Runner      trainer.MatchRunner
}

type TrainSummary struct {
	RunID       string
	Matches     int
	Generations int
	BestFitness float64
}

func (c *Client) Train(ctx context.Context, req TrainRequest) (TrainSummary, error) {
	pop, err := c.ensurePopulation()
	if err != nil {
		return TrainSummary{}, err
	}
	tr, err := trainer.New(trainer.Config{
		Population:  pop,
		Runner:      req.Runner,
		Store:       c.store,
		RunID:       req.RunID,
		Matches:     req.Matches,
		Generations: req.Generations,
		Logger:      c.logger,
	})
	if err != nil {
		return TrainSummary{}, err
	}
	summary, err := tr.Run(ctx)
	if err != nil {
		return TrainSummary{}, err
	}
	return TrainSummary(summary), nil
}

// Snapshot reports the checkpoint files currently on disk without loading
// the population.
func (c *Client) Snapshot() (checkpoint.Snapshot, error) {
	return checkpoint.Inspect(c.checkpointDir)
}

// Runs lists archived runs newest first. A limit of zero returns all.
func (c *Client) Runs(ctx context.Context, limit int) ([]model.TrainingRun, error) {
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

type ArchiveRequest struct {
	// Dir is the checkpoint directory whose stats log is imported. Defaults
	// to the client checkpoint directory.
	Dir string
	// RunID defaults to a fresh UUID.
	RunID string
}

type ArchiveSummary struct {
	RunID   string
	Records int
}

// Archive imports the stats log of an existing checkpoint directory into
// the run archive, one row per generation record. Hosts that train without
// a store use it to backfill runs.
func (c *Client) Archive(ctx context.Context, req ArchiveRequest) (ArchiveSummary, error) {
	dir := req.Dir
	if dir == "" {
		dir = c.checkpointDir
	}
	if _, err := os.Stat(dir); err != nil {
		return ArchiveSummary{}, err
	}
	ckpt, err := checkpoint.Open(dir, c.statsLimitBytes)
	if err != nil {
		return ArchiveSummary{}, err
	}
	records, err := ckpt.ReadStats()
	if err != nil {
		return ArchiveSummary{}, err
	}
	if len(records) == 0 {
		return ArchiveSummary{}, fmt.Errorf("no stats records in %s", dir)
	}

	state, hasCounter, err := ckpt.LoadCounter()
	if err != nil {
		return ArchiveSummary{}, err
	}
	// The stats log may be trimmed, so the counter file is the better
	// generation witness when it exists.
	generations := len(records)
	if hasCounter {
		generations = int(state.Generation)
	}
	best := records[0].MaxFitness
	for _, rec := range records[1:] {
		if rec.MaxFitness > best {
			best = rec.MaxFitness
		}
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	now := time.Now().UTC()
	run := model.TrainingRun{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:            runID,
		CheckpointDir: dir,
		StartedAt:     now,
		CompletedAt:   now,
		Generations:   generations,
		BestFitness:   float64(best),
	}
	if err := c.store.SaveRun(ctx, run); err != nil {
		return ArchiveSummary{}, fmt.Errorf("archive run %s: %w", runID, err)
	}
	if err := c.store.SaveGenerationStats(ctx, runID, records); err != nil {
		return ArchiveSummary{}, fmt.Errorf("archive generation stats: %w", err)
	}
	return ArchiveSummary{RunID: runID, Records: len(records)}, nil
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

// Export materializes an archived run as summary and series artifacts and
// records it in the export index.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	runID := req.RunID
	if req.Latest {
		runs, err := c.store.ListRuns(ctx)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(runs) == 0 {
			return ExportSummary{}, errors.New("no archived runs")
		}
		runID = runs[len(runs)-1].ID
	}
	if runID == "" {
		return ExportSummary{}, errors.New("a run id is required")
	}

	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	if !ok {
		return ExportSummary{}, fmt.Errorf("run not found: %s", runID)
	}
	series, _, err := c.store.GetGenerationStats(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}

	outDir := req.OutDir
	if outDir == "" {
		outDir = c.exportsDir
	}
	summary := stats.RunSummary{
		RunID:         run.ID,
		CheckpointDir: run.CheckpointDir,
		StartedAtUTC:  run.StartedAt.UTC().Format(time.RFC3339),
		Matches:       run.Matches,
		Generations:   run.Generations,
		BestFitness:   run.BestFitness,
	}
	if !run.CompletedAt.IsZero() {
		summary.CompletedAtUTC = run.CompletedAt.UTC().Format(time.RFC3339)
	}
	dir, err := stats.WriteRunArtifacts(outDir, summary, series)
	if err != nil {
		return ExportSummary{}, err
	}
	if err := stats.AppendRunIndex(outDir, stats.RunIndexEntry{
		RunID:        run.ID,
		Matches:      run.Matches,
		Generations:  run.Generations,
		BestFitness:  run.BestFitness,
		CreatedAtUTC: summary.StartedAtUTC,
	}); err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: run.ID, Directory: dir}, nil
}

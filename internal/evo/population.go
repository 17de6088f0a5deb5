package evo

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"

	"palaestra/internal/checkpoint"
	"palaestra/internal/container"
	"palaestra/internal/model"
)

// ErrEmptyPopulation reports a sample from a population with no individuals.
var ErrEmptyPopulation = errors.New("population holds no individuals")

// Bound on spawner retries when a fresh genome collides with one already in
// the population.
const spawnAttempts = 100

// CorruptionError reports a genome record that cannot be used at its rank.
type CorruptionError struct {
	Rank   int
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupt genome at rank %d: %s", e.Rank, e.Reason)
}

// Config carries the construction inputs of a Population.
type Config struct {
	// Size is the fixed number of individuals. Must be even.
	Size int
	// Spawner supplies fresh genomes for cold starts and respawns.
	Spawner Spawner
	// Dir is the checkpoint directory, created when absent.
	Dir string
	// Strategy selects training match slots. Defaults to SelfPlayStrategy.
	Strategy GeneticStrategy
	// TrainMode enables evolution; outside training the population only
	// serves its fittest genome.
	TrainMode bool
	// TrainSlot is the match slot holding this trainer's genome.
	TrainSlot int
	// MutationWeight scales the Gaussian perturbation. Defaults to 1.
	MutationWeight float32
	// MutationBias shifts the Gaussian perturbation. Defaults to 0.
	MutationBias float32
	// StatsLimitBytes bounds the stats log before compaction. Defaults to
	// checkpoint.DefaultStatsLimitBytes.
	StatsLimitBytes int64
	// Logger receives generation summaries and recovery notices. Defaults
	// to a discard logger.
	Logger *slog.Logger
	// RNG drives mutation. Defaults to a time-seeded source.
	RNG *rand.Rand
}

// Population owns a fixed set of individuals, the evolutionary loop and its
// checkpoint. Not safe for concurrent use; one external harness is expected
// to alternate Sample and Evolve calls.
type Population struct {
	size      int
	survivors int
	spawner   Spawner
	strategy  GeneticStrategy
	trainMode bool
	trainSlot int
	mutWeight float32
	mutBias   float32
	rng       *rand.Rand
	logger    *slog.Logger
	ckpt      *checkpoint.Dir

	individuals *container.IndexedMap[string, model.Individual]

	counter    int
	streak     int
	generation int

	wins          int
	goalWins      int
	losses        int
	minGoalMoves  int
	maxGoalMoves  int
	longestStreak int
	maxFitness    float32

	lastStats model.GenerationStats
	hasStats  bool
}

// NewPopulation loads the population from its checkpoint directory, or
// initializes it fresh when any individual record is entirely absent. Fresh
// initialization writes nothing; the first checkpoint lands at the first
// generation boundary.
func NewPopulation(cfg Config) (*Population, error) {
	if cfg.Size < 0 {
		return nil, fmt.Errorf("population size must be >= 0, got %d", cfg.Size)
	}
	if cfg.Size%2 != 0 {
		return nil, fmt.Errorf("population size must be even, got %d", cfg.Size)
	}
	if cfg.Spawner == nil {
		return nil, errors.New("genome spawner is required")
	}
	if cfg.TrainSlot < 0 {
		return nil, fmt.Errorf("train slot must be >= 0, got %d", cfg.TrainSlot)
	}
	if cfg.Strategy == nil {
		cfg.Strategy = SelfPlayStrategy{}
	}
	if cfg.MutationWeight == 0 {
		cfg.MutationWeight = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ckpt, err := checkpoint.Open(cfg.Dir, cfg.StatsLimitBytes)
	if err != nil {
		return nil, err
	}

	p := &Population{
		size:        cfg.Size,
		survivors:   cfg.Size / 2,
		spawner:     cfg.Spawner,
		strategy:    cfg.Strategy,
		trainMode:   cfg.TrainMode,
		trainSlot:   cfg.TrainSlot,
		mutWeight:   cfg.MutationWeight,
		mutBias:     cfg.MutationBias,
		rng:         ensureRNG(cfg.RNG),
		logger:      cfg.Logger,
		ckpt:        ckpt,
		individuals: container.NewIndexedMap[string, model.Individual](),
	}
	p.resetStats()

	loaded, err := p.loadAll()
	if err != nil {
		return nil, err
	}
	if !loaded {
		if err := p.initializeFresh(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Sample returns the genome to evaluate next: the strategy-selected training
// genome in training mode, the fittest individual otherwise.
func (p *Population) Sample() (model.Genome, error) {
	if p.trainMode {
		return p.selectTraining()
	}
	return p.selectFittest()
}

// Evolve records a finished match. Outside training mode it is a no-op. The
// returned flag reports whether the evaluation slot advanced, telling the
// caller to request a fresh Sample.
func (p *Population) Evolve(result MatchResult, eval EvaluationResult) (bool, error) {
	if !p.trainMode {
		return false, nil
	}

	key := result.Genome.Key()
	ind, ok := p.individuals.Get(key)
	if !ok {
		return false, fmt.Errorf("match result genome is not in the population")
	}
	ind.Fitness = eval.Fitness
	p.individuals.Put(key, ind)

	advanced := false
	boundary := false
	if eval.CounterDelta != 0 {
		p.counter += eval.CounterDelta
		advanced = true
		boundary = eval.SkipToNextGeneration || p.counter >= p.size
		if p.streak > p.longestStreak {
			p.longestStreak = p.streak
		}
		p.streak = 0
	} else {
		p.streak++
	}

	switch {
	case result.Won && result.InGoal:
		if result.Turn < p.minGoalMoves {
			p.minGoalMoves = result.Turn
		}
		if result.Turn > p.maxGoalMoves {
			p.maxGoalMoves = result.Turn
		}
		p.goalWins++
	case result.Won:
		p.wins++
	default:
		p.losses++
	}

	if boundary {
		if err := p.nextGeneration(); err != nil {
			return advanced, err
		}
	}
	return advanced, nil
}

// Save rewrites every individual record and the counter file. Generation
// boundaries persist automatically; Save exists for explicit cold-start
// materialization.
func (p *Population) Save() error {
	for i := 0; i < p.individuals.Len(); i++ {
		ind, err := p.individuals.ValueAt(i)
		if err != nil {
			return err
		}
		if err := p.ckpt.SaveIndividual(i, ind.Genome, ind.Fitness); err != nil {
			return fmt.Errorf("save individual %d: %w", i, err)
		}
	}
	if err := p.ckpt.SaveCounter(p.counterState()); err != nil {
		return fmt.Errorf("save counter: %w", err)
	}
	return nil
}

func (p *Population) Size() int {
	return p.individuals.Len()
}

func (p *Population) Generation() int {
	return p.generation
}

func (p *Population) Counter() int {
	return p.counter
}

func (p *Population) Streak() int {
	return p.streak
}

func (p *Population) Dir() string {
	return p.ckpt.Root()
}

// GenomeAt returns a copy of the genome at the given rank.
func (p *Population) GenomeAt(rank int) (model.Genome, error) {
	ind, err := p.individuals.ValueAt(rank)
	if err != nil {
		return nil, err
	}
	return ind.Genome.Clone(), nil
}

// FitnessAt returns the fitness at the given rank.
func (p *Population) FitnessAt(rank int) (float32, error) {
	ind, err := p.individuals.ValueAt(rank)
	if err != nil {
		return 0, err
	}
	return ind.Fitness, nil
}

// Fitness returns the recorded fitness of a genome, matched by content.
func (p *Population) Fitness(g model.Genome) (float32, bool) {
	ind, ok := p.individuals.Get(g.Key())
	if !ok {
		return 0, false
	}
	return ind.Fitness, true
}

// LastGenerationStats returns the stats record appended at the most recent
// generation boundary of this process.
func (p *Population) LastGenerationStats() (model.GenerationStats, bool) {
	return p.lastStats, p.hasStats
}

func (p *Population) selectTraining() (model.Genome, error) {
	n := p.individuals.Len()
	if n == 0 {
		return nil, ErrEmptyPopulation
	}
	if p.counter < 0 || p.counter >= n {
		p.counter = 0
	}
	slots := p.strategy.SelectTrainingGenes(p, p.counter)
	if p.trainSlot >= len(slots) {
		return nil, fmt.Errorf("train slot %d outside the %d selected match slots", p.trainSlot, len(slots))
	}
	return slots[p.trainSlot], nil
}

func (p *Population) selectFittest() (model.Genome, error) {
	n := p.individuals.Len()
	if n == 0 {
		return nil, ErrEmptyPopulation
	}
	best, err := p.individuals.ValueAt(0)
	if err != nil {
		return nil, err
	}
	for i := 1; i < n; i++ {
		ind, err := p.individuals.ValueAt(i)
		if err != nil {
			return nil, err
		}
		if ind.Fitness > best.Fitness {
			best = ind
		}
	}
	return best.Genome.Clone(), nil
}

func (p *Population) nextGeneration() error {
	p.strategy.OnPreNextGeneration(p)

	p.individuals.SortByValue(func(a, b model.Individual) bool {
		return a.Fitness > b.Fitness
	})
	top, err := p.individuals.ValueAt(0)
	if err != nil {
		return err
	}
	p.maxFitness = top.Fitness

	p.counter = 0
	p.streak = 0
	p.generation++

	p.logSummary()

	if err := p.copyMutate(); err != nil {
		return err
	}
	if err := p.saveAll(); err != nil {
		return err
	}

	p.resetStats()
	p.strategy.OnPostNextGeneration(p)
	return nil
}

// copyMutate regenerates the bottom half from the elite half: each survivor
// genome is copied gene by gene with an additive Gaussian perturbation, and
// the new individual starts unevaluated.
func (p *Population) copyMutate() error {
	for i := 0; i < p.survivors; i++ {
		target := p.survivors + i
		src, err := p.individuals.ValueAt(i)
		if err != nil {
			return err
		}
		dst, err := p.individuals.ValueAt(target)
		if err != nil {
			return err
		}
		if len(src.Genome) != len(dst.Genome) {
			return &CorruptionError{
				Rank:   target,
				Reason: fmt.Sprintf("source holds %d genes, target %d", len(src.Genome), len(dst.Genome)),
			}
		}

		mutated := make(model.Genome, len(src.Genome))
		for j, gene := range src.Genome {
			mutated[j] = p.mutateGene(gene)
		}
		ind := model.Individual{Genome: mutated, Fitness: model.UnevaluatedFitness}
		if err := p.individuals.PutAt(target, mutated.Key(), ind); err != nil {
			return &CorruptionError{Rank: target, Reason: err.Error()}
		}
	}
	return nil
}

func (p *Population) mutateGene(x float32) float32 {
	return x + float32(p.rng.NormFloat64())*p.mutWeight + p.mutBias
}

func (p *Population) saveAll() error {
	if err := p.Save(); err != nil {
		return err
	}

	rec := p.statsRecord()
	if err := p.ckpt.AppendStats(rec, p.generation); err != nil {
		return fmt.Errorf("append stats: %w", err)
	}
	p.lastStats = rec
	p.hasStats = true

	if p.generation > 200 && p.generation%100 == 0 {
		if err := p.ckpt.Backup(p.individuals.Len()); err != nil {
			return err
		}
	}
	return nil
}

func (p *Population) loadAll() (bool, error) {
	for rank := 0; rank < p.size; rank++ {
		genome, fitness, ok, err := p.ckpt.LoadIndividual(rank)
		if err == nil && !ok {
			return false, nil
		}
		if err == nil {
			ind := model.Individual{Genome: genome, Fitness: fitness}
			if putErr := p.individuals.PutAt(rank, genome.Key(), ind); putErr == nil {
				continue
			} else {
				err = putErr
			}
		}

		p.logger.Warn("respawning unreadable individual", "rank", rank, "error", err)
		g, key, spawnErr := p.spawnDistinct()
		if spawnErr != nil {
			return false, spawnErr
		}
		ind := model.Individual{Genome: g, Fitness: model.UnevaluatedFitness}
		if err := p.individuals.PutAt(rank, key, ind); err != nil {
			return false, err
		}
	}

	st, ok, err := p.ckpt.LoadCounter()
	if !ok {
		if err != nil {
			p.logger.Warn("counter file unreadable, starting from zero state", "error", err)
		}
		st = model.CounterState{}
		if err := p.ckpt.SaveCounter(st); err != nil {
			return false, fmt.Errorf("re-save counter: %w", err)
		}
	}
	p.applyCounterState(st)
	return true, nil
}

func (p *Population) initializeFresh() error {
	p.individuals.Clear()
	for i := 0; i < p.size; i++ {
		g, key, err := p.spawnDistinct()
		if err != nil {
			return err
		}
		p.individuals.Put(key, model.Individual{Genome: g, Fitness: model.UnevaluatedFitness})
	}
	return nil
}

func (p *Population) spawnDistinct() (model.Genome, string, error) {
	for attempt := 0; attempt < spawnAttempts; attempt++ {
		g := p.spawner()
		key := g.Key()
		if _, ok := p.individuals.Get(key); !ok {
			return g, key, nil
		}
	}
	return nil, "", errors.New("spawner keeps producing genomes already in the population")
}

func (p *Population) logSummary() {
	p.logger.Info("generation complete",
		"generation", p.generation,
		"max_fitness", float64(p.maxFitness),
		"wins", p.wins,
		"goal_wins", p.goalWins,
		"losses", p.losses,
		"min_goal_moves", p.minGoalMoves,
		"max_goal_moves", p.maxGoalMoves,
		"longest_streak", p.longestStreak,
	)

	vals := make([]float64, 0, p.individuals.Len())
	for _, ind := range p.individuals.Values() {
		vals = append(vals, float64(ind.Fitness))
	}
	p.logger.Debug("population fitness", "fitness", vals)
}

func (p *Population) statsRecord() model.GenerationStats {
	return model.GenerationStats{
		Wins:          int32(p.wins),
		GoalWins:      int32(p.goalWins),
		MaxFitness:    model.TruncateFitness(p.maxFitness),
		Losses:        int32(p.losses),
		MinGoalMoves:  int32(p.minGoalMoves),
		MaxGoalMoves:  int32(p.maxGoalMoves),
		LongestStreak: int32(p.longestStreak),
	}
}

func (p *Population) counterState() model.CounterState {
	return model.CounterState{
		Counter:       int32(p.counter),
		Streak:        int32(p.streak),
		Generation:    int32(p.generation),
		Wins:          int32(p.wins),
		GoalWins:      int32(p.goalWins),
		Losses:        int32(p.losses),
		MinGoalMoves:  int32(p.minGoalMoves),
		MaxGoalMoves:  int32(p.maxGoalMoves),
		LongestStreak: int32(p.longestStreak),
	}
}

func (p *Population) applyCounterState(st model.CounterState) {
	p.counter = int(st.Counter)
	p.streak = int(st.Streak)
	p.generation = int(st.Generation)
	p.wins = int(st.Wins)
	p.goalWins = int(st.GoalWins)
	p.losses = int(st.Losses)
	p.minGoalMoves = int(st.MinGoalMoves)
	p.maxGoalMoves = int(st.MaxGoalMoves)
	p.longestStreak = int(st.LongestStreak)
}

func (p *Population) resetStats() {
	p.wins = 0
	p.goalWins = 0
	p.losses = 0
	p.longestStreak = 0
	p.minGoalMoves = math.MaxInt32
	p.maxGoalMoves = math.MinInt32
	p.maxFitness = model.UnevaluatedFitness
}

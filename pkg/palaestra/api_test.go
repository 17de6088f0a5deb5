package palaestra

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"palaestra/internal/checkpoint"
	"palaestra/internal/evo"
	"palaestra/internal/model"
	"palaestra/internal/stats"
)

type scriptedRunner struct {
	n int
}

func (r *scriptedRunner) RunMatch(_ context.Context, genome model.Genome) (evo.MatchResult, evo.EvaluationResult, error) {
	r.n++
	return evo.MatchResult{Genome: genome, Won: true, InGoal: true, Turn: 10 + r.n},
		evo.EvaluationResult{Fitness: float32(r.n), CounterDelta: 1},
		nil
}

func newTestClient(t *testing.T, base string) *Client {
	t.Helper()
	client, err := New(Options{
		CheckpointDir:  filepath.Join(base, "checkpoints"),
		PopulationSize: 4,
		GenomeLength:   3,
		TrainMode:      true,
		StoreKind:      "memory",
		ExportsDir:     filepath.Join(base, "exports"),
		Seed:           7,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	if err := client.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return client
}

func TestClientTrainRunsAndExport(t *testing.T) {
	base := t.TempDir()
	client := newTestClient(t, base)
	ctx := context.Background()

	summary, err := client.Train(ctx, TrainRequest{
		RunID:       "run-api-1",
		Generations: 2,
		Runner:      &scriptedRunner{},
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if summary.RunID != "run-api-1" {
		t.Fatalf("run id = %q, want run-api-1", summary.RunID)
	}
	if summary.Generations != 2 || summary.Matches != 8 {
		t.Fatalf("got %d generations over %d matches, want 2 over 8",
			summary.Generations, summary.Matches)
	}
	if summary.BestFitness <= 0 {
		t.Fatalf("best fitness = %v, want positive", summary.BestFitness)
	}

	runs, err := client.Runs(ctx, 0)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-api-1" {
		t.Fatalf("runs = %+v, want the single archived run", runs)
	}
	if runs[0].CheckpointDir != filepath.Join(base, "checkpoints") {
		t.Fatalf("checkpoint dir = %q", runs[0].CheckpointDir)
	}

	exported, err := client.Export(ctx, ExportRequest{Latest: true})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exported.RunID != "run-api-1" {
		t.Fatalf("exported run id = %q", exported.RunID)
	}
	for _, name := range []string{"summary.json", "series.csv"} {
		if _, err := os.Stat(filepath.Join(exported.Directory, name)); err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
	}

	index, err := stats.ListRunIndex(filepath.Join(base, "exports"))
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(index) != 1 || index[0].RunID != "run-api-1" {
		t.Fatalf("run index = %+v", index)
	}

	series, ok, err := stats.ReadSeries(filepath.Join(base, "exports"), "run-api-1")
	if err != nil || !ok {
		t.Fatalf("read series: ok=%v err=%v", ok, err)
	}
	if len(series) != 2 {
		t.Fatalf("series holds %d records, want 2", len(series))
	}
}

func TestClientExportToExplicitDir(t *testing.T) {
	base := t.TempDir()
	client := newTestClient(t, base)
	ctx := context.Background()

	if _, err := client.Train(ctx, TrainRequest{
		RunID:       "run-api-2",
		Generations: 1,
		Runner:      &scriptedRunner{},
	}); err != nil {
		t.Fatalf("train: %v", err)
	}

	outDir := filepath.Join(base, "elsewhere")
	exported, err := client.Export(ctx, ExportRequest{RunID: "run-api-2", OutDir: outDir})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exported.Directory != filepath.Join(outDir, "run-api-2") {
		t.Fatalf("export directory = %q", exported.Directory)
	}
	if _, err := os.Stat(filepath.Join(exported.Directory, "summary.json")); err != nil {
		t.Fatalf("stat summary: %v", err)
	}
}

func TestClientExportUnknownRun(t *testing.T) {
	base := t.TempDir()
	client := newTestClient(t, base)

	if _, err := client.Export(context.Background(), ExportRequest{Latest: true}); err == nil {
		t.Fatal("export with no archived runs succeeded")
	}
	_, err := client.Export(context.Background(), ExportRequest{RunID: "ghost"})
	if err == nil || !strings.Contains(err.Error(), "run not found") {
		t.Fatalf("export of missing run: %v", err)
	}
}

func TestClientArchive(t *testing.T) {
	base := t.TempDir()
	client := newTestClient(t, base)
	ctx := context.Background()

	dir := filepath.Join(base, "imported")
	ckpt, err := checkpoint.Open(dir, 0)
	if err != nil {
		t.Fatalf("open checkpoint: %v", err)
	}
	if err := ckpt.AppendStats(model.GenerationStats{Wins: 3, MaxFitness: 40}, 1); err != nil {
		t.Fatalf("append stats: %v", err)
	}
	if err := ckpt.AppendStats(model.GenerationStats{Wins: 5, MaxFitness: 90}, 2); err != nil {
		t.Fatalf("append stats: %v", err)
	}

	summary, err := client.Archive(ctx, ArchiveRequest{Dir: dir, RunID: "imported-1"})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if summary.RunID != "imported-1" || summary.Records != 2 {
		t.Fatalf("summary = %+v, want imported-1 with 2 records", summary)
	}

	runs, err := client.Runs(ctx, 0)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("archived runs = %d, want 1", len(runs))
	}
	run := runs[0]
	if run.CheckpointDir != dir || run.Generations != 2 || run.BestFitness != 90 {
		t.Fatalf("archived run = %+v, want dir %s with 2 generations and best 90", run, dir)
	}

	second, err := client.Archive(ctx, ArchiveRequest{Dir: dir})
	if err != nil {
		t.Fatalf("archive without run id: %v", err)
	}
	if second.RunID == "" || second.RunID == "imported-1" {
		t.Fatalf("minted run id = %q, want a fresh one", second.RunID)
	}
}

func TestClientArchiveRejectsEmptyCheckpoints(t *testing.T) {
	base := t.TempDir()
	client := newTestClient(t, base)
	ctx := context.Background()

	if _, err := client.Archive(ctx, ArchiveRequest{Dir: filepath.Join(base, "missing")}); err == nil {
		t.Fatal("archived a missing directory")
	}

	dir := filepath.Join(base, "empty")
	if _, err := checkpoint.Open(dir, 0); err != nil {
		t.Fatalf("open checkpoint: %v", err)
	}
	_, err := client.Archive(ctx, ArchiveRequest{Dir: dir})
	if err == nil || !strings.Contains(err.Error(), "no stats records") {
		t.Fatalf("archive of empty checkpoint: %v", err)
	}
}

func TestClientSnapshot(t *testing.T) {
	base := t.TempDir()
	client := newTestClient(t, base)

	if _, err := client.Train(context.Background(), TrainRequest{
		Generations: 1,
		Runner:      &scriptedRunner{},
	}); err != nil {
		t.Fatalf("train: %v", err)
	}

	snap, err := client.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.HasCounter {
		t.Fatal("snapshot is missing the counter record")
	}
	if snap.State.Generation != 1 {
		t.Fatalf("generation = %d, want 1", snap.State.Generation)
	}
	if len(snap.Individuals) != 4 {
		t.Fatalf("snapshot holds %d individuals, want 4", len(snap.Individuals))
	}
}

func TestClientPopulationAccess(t *testing.T) {
	client := newTestClient(t, t.TempDir())

	pop, err := client.Population()
	if err != nil {
		t.Fatalf("population: %v", err)
	}
	if pop.Size() != 4 {
		t.Fatalf("population size = %d, want 4", pop.Size())
	}
}

func TestNewValidation(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		opts Options
	}{
		{"both spawner shapes", Options{CheckpointDir: dir, GenomeLength: 3, LayerSizes: []int{2, 2}}},
		{"unknown store", Options{CheckpointDir: dir, GenomeLength: 3, StoreKind: "etcd"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.opts); err == nil {
				t.Fatal("constructor accepted invalid options")
			}
		})
	}
}

func TestPopulationValidation(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		opts Options
	}{
		{"no spawner shape", Options{CheckpointDir: dir, StoreKind: "memory"}},
		{"odd population", Options{CheckpointDir: dir, GenomeLength: 3, PopulationSize: 5, StoreKind: "memory"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := New(tc.opts)
			if err != nil {
				t.Fatalf("new client: %v", err)
			}
			if _, err := client.Population(); err == nil {
				t.Fatal("population loaded from invalid options")
			}
		})
	}
}

func TestTrainValidation(t *testing.T) {
	client := newTestClient(t, t.TempDir())

	_, err := client.Train(context.Background(), TrainRequest{Runner: &scriptedRunner{}})
	if err == nil {
		t.Fatal("train without bounds succeeded")
	}
	_, err = client.Train(context.Background(), TrainRequest{Generations: 1})
	if err == nil {
		t.Fatal("train without a runner succeeded")
	}
}

package checkpoint

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"palaestra/internal/model"
)

func openDir(t *testing.T, limit int64) *Dir {
	t.Helper()
	d, err := Open(t.TempDir(), limit)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return d
}

func TestOpenCreatesDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "checkpoints")
	if _, err := Open(root, 0); err != nil {
		t.Fatalf("open: %v", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("checkpoint root is not a directory")
	}

	if _, err := Open("", 0); err == nil {
		t.Fatalf("expected error for empty root")
	}
}

func TestIndividualRoundTrip(t *testing.T) {
	d := openDir(t, 0)
	genome := model.Genome{1.25, -7.5, 0, float32(math.Inf(-1)), 3.14159}
	fitness := float32(-42.5)

	if err := d.SaveIndividual(3, genome, fitness); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, gotFit, ok, err := d.LoadIndividual(3)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatalf("record reported missing")
	}
	if gotFit != fitness {
		t.Fatalf("fitness = %v, want %v", gotFit, fitness)
	}
	if len(got) != len(genome) {
		t.Fatalf("genome length = %d, want %d", len(got), len(genome))
	}
	for i := range genome {
		if math.Float32bits(got[i]) != math.Float32bits(genome[i]) {
			t.Fatalf("gene %d = %v, want %v (bit-for-bit)", i, got[i], genome[i])
		}
	}
}

func TestIndividualFileLayoutIsBigEndian(t *testing.T) {
	d := openDir(t, 0)
	if err := d.SaveIndividual(0, model.Genome{1.0}, 2.0); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(d.IndividualPath(0))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	want := []byte{0x40, 0x00, 0x00, 0x00, 0x3f, 0x80, 0x00, 0x00}
	if len(data) != len(want) {
		t.Fatalf("file holds %d bytes, want %d", len(data), len(want))
	}
	for i := range want {
		if data[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, data[i], want[i])
		}
	}
}

func TestLoadIndividualMissing(t *testing.T) {
	d := openDir(t, 0)
	_, _, ok, err := d.LoadIndividual(0)
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if ok {
		t.Fatalf("missing record reported present")
	}
}

func TestLoadIndividualCorrupt(t *testing.T) {
	d := openDir(t, 0)

	// Too short for the fitness field.
	if err := os.WriteFile(d.IndividualPath(0), []byte{1, 2}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, _, err := d.LoadIndividual(0); err == nil {
		t.Fatalf("expected error for truncated fitness")
	}

	// Fitness plus a partial trailing gene.
	if err := os.WriteFile(d.IndividualPath(1), []byte{0, 0, 0, 0, 0xaa, 0xbb}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, _, err := d.LoadIndividual(1); err == nil {
		t.Fatalf("expected error for partial trailing gene")
	}
}

func TestLoadIndividualZeroGenes(t *testing.T) {
	d := openDir(t, 0)
	if err := d.SaveIndividual(0, nil, 5); err != nil {
		t.Fatalf("save: %v", err)
	}
	g, fit, ok, err := d.LoadIndividual(0)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if len(g) != 0 {
		t.Fatalf("genome length = %d, want 0", len(g))
	}
	if fit != 5 {
		t.Fatalf("fitness = %v, want 5", fit)
	}
}

func TestBackupSnapshotsFiles(t *testing.T) {
	d := openDir(t, 0)
	if err := d.SaveCounter(model.CounterState{Generation: 7}); err != nil {
		t.Fatalf("save counter: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := d.SaveIndividual(i, model.Genome{float32(i)}, float32(i)); err != nil {
			t.Fatalf("save individual %d: %v", i, err)
		}
	}

	if err := d.Backup(3); err != nil {
		t.Fatalf("backup: %v", err)
	}

	live, err := os.ReadFile(d.CounterPath())
	if err != nil {
		t.Fatalf("read live counter: %v", err)
	}
	snap, err := os.ReadFile(filepath.Join(d.BackupPath(), "Counter"))
	if err != nil {
		t.Fatalf("read backup counter: %v", err)
	}
	if string(live) != string(snap) {
		t.Fatalf("backup counter differs from live file")
	}

	for i := 0; i < 3; i++ {
		liveInd, err := os.ReadFile(d.IndividualPath(i))
		if err != nil {
			t.Fatalf("read live individual %d: %v", i, err)
		}
		snapInd, err := os.ReadFile(filepath.Join(d.BackupPath(), individualName(i)))
		if err != nil {
			t.Fatalf("read backup individual %d: %v", i, err)
		}
		if string(liveInd) != string(snapInd) {
			t.Fatalf("backup individual %d differs from live file", i)
		}
	}
}

func TestBackupOverwritesPreviousSnapshot(t *testing.T) {
	d := openDir(t, 0)
	if err := d.SaveCounter(model.CounterState{Generation: 1}); err != nil {
		t.Fatalf("save counter: %v", err)
	}
	if err := d.SaveIndividual(0, model.Genome{1}, 1); err != nil {
		t.Fatalf("save individual: %v", err)
	}
	if err := d.Backup(1); err != nil {
		t.Fatalf("first backup: %v", err)
	}

	if err := d.SaveCounter(model.CounterState{Generation: 2}); err != nil {
		t.Fatalf("save counter again: %v", err)
	}
	if err := d.Backup(1); err != nil {
		t.Fatalf("second backup: %v", err)
	}

	st, ok, err := (&Dir{root: d.BackupPath(), statsLimit: DefaultStatsLimitBytes}).LoadCounter()
	if err != nil || !ok {
		t.Fatalf("load backup counter: ok=%v err=%v", ok, err)
	}
	if st.Generation != 2 {
		t.Fatalf("backup generation = %d, want 2", st.Generation)
	}
}

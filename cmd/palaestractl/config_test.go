package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	palapi "palaestra/pkg/palaestra"
)

func writeConfig(t *testing.T, payload map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.json")
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOptionsFromConfig(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"checkpoint_dir":    "state/ckpt",
		"population_size":   8,
		"genome_length":     32,
		"train_mode":        true,
		"train_slot":        1,
		"mutation_weight":   0.5,
		"mutation_bias":     0.1,
		"stats_limit_bytes": 4096,
		"store_kind":        "sqlite",
		"db_path":           "state/palaestra.db",
		"exports_dir":       "state/exports",
		"seed":              42,
	})

	opts, err := loadOptionsFromConfig(path)
	if err != nil {
		t.Fatalf("load options: %v", err)
	}
	if opts.CheckpointDir != "state/ckpt" || opts.PopulationSize != 8 || opts.GenomeLength != 32 {
		t.Fatalf("unexpected population fields: %+v", opts)
	}
	if !opts.TrainMode || opts.TrainSlot != 1 {
		t.Fatalf("unexpected train fields: %+v", opts)
	}
	if opts.MutationWeight != 0.5 || opts.MutationBias != 0.1 {
		t.Fatalf("unexpected mutation fields: %+v", opts)
	}
	if opts.StatsLimitBytes != 4096 || opts.Seed != 42 {
		t.Fatalf("unexpected limits: %+v", opts)
	}
	if opts.StoreKind != "sqlite" || opts.DBPath != "state/palaestra.db" || opts.ExportsDir != "state/exports" {
		t.Fatalf("unexpected store fields: %+v", opts)
	}
}

func TestLoadOptionsFromConfigLayerSizes(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"layer_sizes": []any{32, 16, 4},
	})

	opts, err := loadOptionsFromConfig(path)
	if err != nil {
		t.Fatalf("load options: %v", err)
	}
	if !reflect.DeepEqual(opts.LayerSizes, []int{32, 16, 4}) {
		t.Fatalf("unexpected layer sizes: %v", opts.LayerSizes)
	}
	if opts.GenomeLength != 0 {
		t.Fatalf("genome length should stay unset: %d", opts.GenomeLength)
	}
}

func TestLoadOrDefaultOptionsEmptyPath(t *testing.T) {
	opts, err := loadOrDefaultOptions("")
	if err != nil {
		t.Fatalf("load options: %v", err)
	}
	if !reflect.DeepEqual(opts, palapi.Options{}) {
		t.Fatalf("expected zero options, got %+v", opts)
	}
}

func TestLoadOrDefaultOptionsMissingFile(t *testing.T) {
	if _, err := loadOrDefaultOptions(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("missing config file loaded")
	}
}

func TestOverrideFromFlagsBeatsConfig(t *testing.T) {
	opts := palapi.Options{
		CheckpointDir:  "from-config",
		PopulationSize: 8,
		GenomeLength:   16,
		Seed:           1,
	}

	err := overrideFromFlags(&opts, map[string]bool{
		"dir":    true,
		"size":   true,
		"layers": true,
		"genes":  true,
		"seed":   true,
	}, map[string]any{
		"dir":    "from-flag",
		"size":   4,
		"layers": "8,4,2",
		"genes":  0,
		"seed":   int64(9),
	})
	if err != nil {
		t.Fatalf("override: %v", err)
	}

	if opts.CheckpointDir != "from-flag" || opts.PopulationSize != 4 || opts.Seed != 9 {
		t.Fatalf("flags did not win: %+v", opts)
	}
	if opts.GenomeLength != 0 || !reflect.DeepEqual(opts.LayerSizes, []int{8, 4, 2}) {
		t.Fatalf("unexpected spawner shape: %+v", opts)
	}
}

func TestOverrideFromFlagsIgnoresUnsetFlags(t *testing.T) {
	opts := palapi.Options{CheckpointDir: "from-config"}

	err := overrideFromFlags(&opts, map[string]bool{}, map[string]any{
		"dir": "from-flag",
	})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if opts.CheckpointDir != "from-config" {
		t.Fatalf("unset flag overrode config: %+v", opts)
	}
}

func TestParseLayers(t *testing.T) {
	cases := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"", nil, false},
		{"32,16,4", []int{32, 16, 4}, false},
		{" 8, 4 ", []int{8, 4}, false},
		{"8,x", nil, true},
	}
	for _, tc := range cases {
		got, err := parseLayers(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseLayers(%q) accepted bad input", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseLayers(%q): %v", tc.in, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("parseLayers(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

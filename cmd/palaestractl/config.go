package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	palapi "palaestra/pkg/palaestra"
)

func loadOptionsFromConfig(path string) (palapi.Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return palapi.Options{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return palapi.Options{}, err
	}

	var opts palapi.Options
	if v, ok := asString(raw["checkpoint_dir"]); ok {
		opts.CheckpointDir = v
	}
	if v, ok := asInt(raw["population_size"]); ok {
		opts.PopulationSize = v
	}
	if v, ok := asInt(raw["genome_length"]); ok {
		opts.GenomeLength = v
	}
	if v, ok := asIntSlice(raw["layer_sizes"]); ok {
		opts.LayerSizes = v
	}
	if v, ok := asBool(raw["train_mode"]); ok {
		opts.TrainMode = v
	}
	if v, ok := asInt(raw["train_slot"]); ok {
		opts.TrainSlot = v
	}
	if v, ok := asFloat64(raw["mutation_weight"]); ok {
		opts.MutationWeight = float32(v)
	}
	if v, ok := asFloat64(raw["mutation_bias"]); ok {
		opts.MutationBias = float32(v)
	}
	if v, ok := asInt64(raw["stats_limit_bytes"]); ok {
		opts.StatsLimitBytes = v
	}
	if v, ok := asString(raw["store_kind"]); ok {
		opts.StoreKind = v
	}
	if v, ok := asString(raw["db_path"]); ok {
		opts.DBPath = v
	}
	if v, ok := asString(raw["exports_dir"]); ok {
		opts.ExportsDir = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		opts.Seed = v
	}
	return opts, nil
}

func loadOrDefaultOptions(configPath string) (palapi.Options, error) {
	if configPath == "" {
		return palapi.Options{}, nil
	}
	opts, err := loadOptionsFromConfig(configPath)
	if err != nil {
		return palapi.Options{}, fmt.Errorf("load config: %w", err)
	}
	return opts, nil
}

func overrideFromFlags(opts *palapi.Options, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "dir":
			opts.CheckpointDir = v.(string)
		case "size":
			opts.PopulationSize = v.(int)
		case "genes":
			opts.GenomeLength = v.(int)
		case "layers":
			sizes, err := parseLayers(v.(string))
			if err != nil {
				return err
			}
			opts.LayerSizes = sizes
		case "store":
			opts.StoreKind = v.(string)
		case "db-path":
			opts.DBPath = v.(string)
		case "out":
			opts.ExportsDir = v.(string)
		case "seed":
			opts.Seed = v.(int64)
		}
	}
	return nil
}

func parseLayers(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	sizes := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid layer size %q", part)
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func asIntSlice(v any) ([]int, bool) {
	xs, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]int, 0, len(xs))
	for _, item := range xs {
		n, ok := asInt(item)
		if !ok {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}

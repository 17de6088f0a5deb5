package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"palaestra/internal/model"
)

const (
	runIndexFile = "run_index.json"
	summaryFile  = "summary.json"
	seriesFile   = "series.csv"
)

// RunSummary is the JSON artifact describing one exported run.
type RunSummary struct {
	RunID          string  `json:"run_id"`
	CheckpointDir  string  `json:"checkpoint_dir"`
	StartedAtUTC   string  `json:"started_at_utc"`
	CompletedAtUTC string  `json:"completed_at_utc,omitempty"`
	Matches        int     `json:"matches"`
	Generations    int     `json:"generations"`
	BestFitness    float64 `json:"best_fitness"`
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Matches      int     `json:"matches"`
	Generations  int     `json:"generations"`
	BestFitness  float64 `json:"best_fitness"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

// WriteRunArtifacts materializes one run directory under baseDir holding the
// summary JSON and the per-generation stats series.
func WriteRunArtifacts(baseDir string, summary RunSummary, series []model.GenerationStats) (string, error) {
	if summary.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, summary.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, summaryFile), summary); err != nil {
		return "", err
	}
	if err := writeSeries(filepath.Join(runDir, seriesFile), series); err != nil {
		return "", err
	}
	return runDir, nil
}

func ReadRunSummary(baseDir, runID string) (RunSummary, bool, error) {
	path := filepath.Join(baseDir, runID, summaryFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunSummary{}, false, nil
		}
		return RunSummary{}, false, err
	}

	var summary RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return RunSummary{}, false, err
	}
	return summary, true, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies one run directory from baseDir into outDir.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	if err := copyFile(filepath.Join(src, summaryFile), filepath.Join(dst, summaryFile)); err != nil {
		return "", err
	}
	seriesPath := filepath.Join(src, seriesFile)
	if _, err := os.Stat(seriesPath); err == nil {
		if err := copyFile(seriesPath, filepath.Join(dst, seriesFile)); err != nil {
			return "", err
		}
	} else if err != nil && !os.IsNotExist(err) {
		return "", err
	}

	return dst, nil
}

func writeSeries(path string, series []model.GenerationStats) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"generation", "wins", "goal_wins", "max_fitness", "losses", "min_goal_moves", "max_goal_moves", "longest_streak"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for i, rec := range series {
		row := []string{
			strconv.Itoa(i + 1),
			formatInt32(rec.Wins),
			formatInt32(rec.GoalWins),
			formatInt32(rec.MaxFitness),
			formatInt32(rec.Losses),
			formatInt32(rec.MinGoalMoves),
			formatInt32(rec.MaxGoalMoves),
			formatInt32(rec.LongestStreak),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadSeries loads the per-generation stats series of an exported run.
func ReadSeries(baseDir, runID string) ([]model.GenerationStats, bool, error) {
	path := filepath.Join(baseDir, runID, seriesFile)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.GenerationStats{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 8 {
		return nil, false, fmt.Errorf("series header must have at least 8 columns")
	}

	series := make([]model.GenerationStats, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 8 {
			return nil, false, fmt.Errorf("series row must have at least 8 columns")
		}
		var fields [7]int32
		for i := range fields {
			value, err := strconv.ParseInt(record[i+1], 10, 32)
			if err != nil {
				return nil, false, err
			}
			fields[i] = int32(value)
		}
		series = append(series, model.GenerationStats{
			Wins:          fields[0],
			GoalWins:      fields[1],
			MaxFitness:    fields[2],
			Losses:        fields[3],
			MinGoalMoves:  fields[4],
			MaxGoalMoves:  fields[5],
			LongestStreak: fields[6],
		})
	}
	return series, true, nil
}

func formatInt32(v int32) string {
	return strconv.FormatInt(int64(v), 10)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

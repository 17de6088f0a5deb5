package checkpoint

import (
	"fmt"
	"os"

	"palaestra/internal/model"
)

// Snapshot is a read-only view of a checkpoint directory.
type Snapshot struct {
	Root         string             `json:"root"`
	HasCounter   bool               `json:"has_counter"`
	State        model.CounterState `json:"state"`
	Individuals  []IndividualInfo   `json:"individuals"`
	StatsRecords int                `json:"stats_records"`
	StatsBytes   int64              `json:"stats_bytes"`
}

// IndividualInfo describes one individual record on disk.
type IndividualInfo struct {
	Rank    int     `json:"rank"`
	Genes   int     `json:"genes"`
	Fitness float64 `json:"-"`
	Bytes   int64   `json:"bytes"`
	Corrupt bool    `json:"corrupt,omitempty"`
}

// Inspect reads a checkpoint directory without mutating it. Individual
// records are scanned in rank order until the first missing rank; corrupt
// records are reported, not repaired.
func Inspect(root string) (Snapshot, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return Snapshot{}, err
	}
	if !fi.IsDir() {
		return Snapshot{}, fmt.Errorf("%s is not a directory", root)
	}

	d := &Dir{root: root, statsLimit: DefaultStatsLimitBytes}
	snap := Snapshot{Root: root}

	if st, ok, _ := d.LoadCounter(); ok {
		snap.State = st
		snap.HasCounter = true
	}

	for rank := 0; ; rank++ {
		info, err := os.Stat(d.IndividualPath(rank))
		if err != nil {
			if os.IsNotExist(err) {
				break
			}
			return Snapshot{}, err
		}
		ind := IndividualInfo{Rank: rank, Bytes: info.Size()}
		genome, fitness, ok, err := d.LoadIndividual(rank)
		if err == nil && ok {
			ind.Genes = len(genome)
			ind.Fitness = float64(fitness)
		} else {
			ind.Corrupt = true
			if info.Size() >= 4 {
				ind.Genes = int((info.Size() - 4) / 4)
			}
		}
		snap.Individuals = append(snap.Individuals, ind)
	}

	if info, err := os.Stat(d.StatsPath()); err == nil {
		snap.StatsBytes = info.Size()
		snap.StatsRecords = int(info.Size() / StatsRecordBytes)
	} else if !os.IsNotExist(err) {
		return Snapshot{}, err
	}

	return snap, nil
}

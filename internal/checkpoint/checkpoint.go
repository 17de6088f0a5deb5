package checkpoint

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"palaestra/internal/container"
	"palaestra/internal/model"
)

// Checkpoint file names, fixed by the on-disk format.
const (
	counterFile      = "Counter"
	statsFile        = "Stats"
	individualPrefix = "Individual"
	backupFolder     = "Backup"
)

// DefaultStatsLimitBytes is the stats-log size above which compaction kicks
// in at the next thousandth generation.
const DefaultStatsLimitBytes = 100000

// Dir is a population checkpoint directory. All operations are synchronous
// whole-file rewrites or appends; the directory is assumed exclusively owned
// by a single writer for the process lifetime.
type Dir struct {
	root       string
	statsLimit int64
}

// Open prepares a checkpoint directory, creating it when absent. A missing
// or empty directory is a valid cold-start state.
func Open(root string, statsLimitBytes int64) (*Dir, error) {
	if root == "" {
		return nil, errors.New("checkpoint directory is required")
	}
	if statsLimitBytes <= 0 {
		statsLimitBytes = DefaultStatsLimitBytes
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	return &Dir{root: root, statsLimit: statsLimitBytes}, nil
}

func (d *Dir) Root() string {
	return d.root
}

func (d *Dir) CounterPath() string {
	return filepath.Join(d.root, counterFile)
}

func (d *Dir) StatsPath() string {
	return filepath.Join(d.root, statsFile)
}

func (d *Dir) BackupPath() string {
	return filepath.Join(d.root, backupFolder)
}

func (d *Dir) IndividualPath(rank int) string {
	return filepath.Join(d.root, individualName(rank))
}

func individualName(rank int) string {
	return individualPrefix + strconv.Itoa(rank)
}

// SaveIndividual rewrites the record at the given rank: one big-endian
// 32-bit fitness followed by one 32-bit float per gene.
func (d *Dir) SaveIndividual(rank int, genome model.Genome, fitness float32) error {
	if rank < 0 {
		return fmt.Errorf("rank must be >= 0, got %d", rank)
	}
	buf := make([]byte, 4*(len(genome)+1))
	binary.BigEndian.PutUint32(buf, math.Float32bits(fitness))
	for i, gene := range genome {
		binary.BigEndian.PutUint32(buf[4*(i+1):], math.Float32bits(gene))
	}
	return os.WriteFile(d.IndividualPath(rank), buf, 0o644)
}

// LoadIndividual reads the record at the given rank. A missing file returns
// ok=false with a nil error; any short or unreadable record returns an
// error so the caller can respawn that one individual.
func (d *Dir) LoadIndividual(rank int) (model.Genome, float32, bool, error) {
	f, err := os.Open(d.IndividualPath(rank))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, false, nil
		}
		return nil, 0, false, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var word [4]byte
	if _, err := io.ReadFull(r, word[:]); err != nil {
		return nil, 0, false, fmt.Errorf("read fitness of individual %d: %w", rank, err)
	}
	fitness := math.Float32frombits(binary.BigEndian.Uint32(word[:]))

	genes := container.NewBuffer[float32]()
	for {
		if _, err := io.ReadFull(r, word[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, 0, false, fmt.Errorf("read gene %d of individual %d: %w", genes.Len(), rank, err)
		}
		genes.Push(math.Float32frombits(binary.BigEndian.Uint32(word[:])))
	}
	return model.Genome(genes.Values()), fitness, true, nil
}

// Backup snapshots the counter file and the first n individual records into
// the backup subdirectory, overwriting any previous snapshot.
func (d *Dir) Backup(n int) error {
	dst := d.BackupPath()
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	if err := copyFile(d.CounterPath(), filepath.Join(dst, counterFile)); err != nil {
		return fmt.Errorf("backup counter: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := copyFile(d.IndividualPath(i), filepath.Join(dst, individualName(i))); err != nil {
			return fmt.Errorf("backup individual %d: %w", i, err)
		}
	}
	return nil
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

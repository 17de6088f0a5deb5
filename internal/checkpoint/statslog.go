package checkpoint

import (
	"encoding/binary"
	"fmt"
	"os"

	"palaestra/internal/model"
)

const statsRecordFields = 7

// StatsRecordBytes is the fixed size of one stats-log record.
const StatsRecordBytes = 4 * statsRecordFields

// AppendStats writes one record to the end of the stats log. When the given
// generation is a multiple of 1000 and the log already existed before this
// append, an over-limit log is first compacted by dropping its oldest whole
// records.
func (d *Dir) AppendStats(rec model.GenerationStats, generation int) error {
	path := d.StatsPath()
	existed := false
	var size int64
	if info, err := os.Stat(path); err == nil {
		existed = true
		size = info.Size()
	} else if !os.IsNotExist(err) {
		return err
	}

	if generation%1000 == 0 && existed && size > d.statsLimit {
		if err := d.compactStats(); err != nil {
			return fmt.Errorf("compact stats log: %w", err)
		}
	}

	fields := statsFields(rec)
	buf := make([]byte, StatsRecordBytes)
	for i, v := range fields {
		binary.BigEndian.PutUint32(buf[4*i:], uint32(v))
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// compactStats drops the oldest whole records until the log is strictly
// under the limit, never cutting a record in half.
func (d *Dir) compactStats() error {
	data, err := os.ReadFile(d.StatsPath())
	if err != nil {
		return err
	}
	size := int64(len(data))
	if size <= d.statsLimit {
		return nil
	}
	drop := int((size-d.statsLimit)/StatsRecordBytes) + 1
	if n := drop * StatsRecordBytes; n < len(data) {
		data = data[n:]
	} else {
		data = nil
	}
	return os.WriteFile(d.StatsPath(), data, 0o644)
}

// ReadStats decodes all whole records of the stats log in append order. A
// missing log reads as empty; trailing bytes short of a whole record are
// ignored.
func (d *Dir) ReadStats() ([]model.GenerationStats, error) {
	data, err := os.ReadFile(d.StatsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	n := len(data) / StatsRecordBytes
	out := make([]model.GenerationStats, 0, n)
	for i := 0; i < n; i++ {
		rec := data[i*StatsRecordBytes:]
		out = append(out, model.GenerationStats{
			Wins:          int32(binary.BigEndian.Uint32(rec[0:])),
			GoalWins:      int32(binary.BigEndian.Uint32(rec[4:])),
			MaxFitness:    int32(binary.BigEndian.Uint32(rec[8:])),
			Losses:        int32(binary.BigEndian.Uint32(rec[12:])),
			MinGoalMoves:  int32(binary.BigEndian.Uint32(rec[16:])),
			MaxGoalMoves:  int32(binary.BigEndian.Uint32(rec[20:])),
			LongestStreak: int32(binary.BigEndian.Uint32(rec[24:])),
		})
	}
	return out, nil
}

func statsFields(rec model.GenerationStats) [statsRecordFields]int32 {
	return [statsRecordFields]int32{
		rec.Wins,
		rec.GoalWins,
		rec.MaxFitness,
		rec.Losses,
		rec.MinGoalMoves,
		rec.MaxGoalMoves,
		rec.LongestStreak,
	}
}

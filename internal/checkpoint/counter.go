package checkpoint

import (
	"encoding/binary"
	"fmt"
	"os"

	"palaestra/internal/model"
)

// Counter file schema, version 1: nine sequential big-endian 32-bit integers
// in CounterState field order. Whole fields absent from shorter files read
// as zero; a trailing partial field reads as zero.
const counterFieldsV1 = 9

// SaveCounter rewrites the counter file with all nine schema fields.
func (d *Dir) SaveCounter(st model.CounterState) error {
	fields := counterFields(st)
	buf := make([]byte, 4*counterFieldsV1)
	for i, v := range fields {
		binary.BigEndian.PutUint32(buf[4*i:], uint32(v))
	}
	return os.WriteFile(d.CounterPath(), buf, 0o644)
}

// LoadCounter reads the counter file. A missing file returns ok=false with a
// nil error; a file too short to hold even the first field returns ok=false
// with the cause. Either way the caller is expected to fall back to zero
// state and re-save.
func (d *Dir) LoadCounter() (model.CounterState, bool, error) {
	data, err := os.ReadFile(d.CounterPath())
	if err != nil {
		if os.IsNotExist(err) {
			return model.CounterState{}, false, nil
		}
		return model.CounterState{}, false, err
	}
	if len(data) < 4 {
		return model.CounterState{}, false, fmt.Errorf("counter file holds %d bytes, want at least 4", len(data))
	}

	var fields [counterFieldsV1]int32
	for i := 0; i < counterFieldsV1 && 4*(i+1) <= len(data); i++ {
		fields[i] = int32(binary.BigEndian.Uint32(data[4*i:]))
	}
	return model.CounterState{
		Counter:       fields[0],
		Streak:        fields[1],
		Generation:    fields[2],
		Wins:          fields[3],
		GoalWins:      fields[4],
		Losses:        fields[5],
		MinGoalMoves:  fields[6],
		MaxGoalMoves:  fields[7],
		LongestStreak: fields[8],
	}, true, nil
}

func counterFields(st model.CounterState) [counterFieldsV1]int32 {
	return [counterFieldsV1]int32{
		st.Counter,
		st.Streak,
		st.Generation,
		st.Wins,
		st.GoalWins,
		st.Losses,
		st.MinGoalMoves,
		st.MaxGoalMoves,
		st.LongestStreak,
	}
}

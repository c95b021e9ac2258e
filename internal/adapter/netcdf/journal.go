package netcdf

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"

	"github.com/couchcryptid/hydro-etl/internal/domain"
	"github.com/couchcryptid/hydro-etl/internal/grid"
)

const journalSuffix = ".journal"

// JournalPath returns the path of the durability journal kept beside an output.
func JournalPath(path string) string { return path + journalSuffix }

// journalEntry is one line of the journal: a single Write made before a Sync.
type journalEntry struct {
	Variable string         `json:"variable"`
	Begin    []int          `json:"begin"`
	Shape    []int          `json:"shape"`
	Values   []journalValue `json:"values"`
}

// journalValue is a float64 whose JSON form also carries the values
// encoding/json refuses: NaN is written as null, infinities as "+Inf"/"-Inf".
type journalValue float64

func (v journalValue) MarshalJSON() ([]byte, error) {
	f := float64(v)
	switch {
	case math.IsNaN(f):
		return []byte("null"), nil
	case math.IsInf(f, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Inf"`), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

func (v *journalValue) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "null":
		*v = journalValue(math.NaN())
		return nil
	case `"+Inf"`:
		*v = journalValue(math.Inf(1))
		return nil
	case `"-Inf"`:
		*v = journalValue(math.Inf(-1))
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("journal value %s: %w", b, err)
	}
	*v = journalValue(f)
	return nil
}

func newJournalEntry(name string, begin []int, data domain.Array) journalEntry {
	values := make([]journalValue, len(data.Values))
	for i, v := range data.Values {
		values[i] = journalValue(v)
	}
	return journalEntry{
		Variable: name,
		Begin:    append([]int(nil), begin...),
		Shape:    append([]int(nil), data.Shape...),
		Values:   values,
	}
}

func (e journalEntry) record() domain.WriteRecord {
	values := make([]float64, len(e.Values))
	for i, v := range e.Values {
		values[i] = float64(v)
	}
	return domain.WriteRecord{Variable: e.Variable, Begin: e.Begin, Data: domain.Array{Shape: e.Shape, Values: values}}
}

// ReadJournal returns the writes synced to the journal of the output at path.
// A missing journal yields no records. A final line without its newline was
// cut short by a crash during Sync and is ignored.
func (s *Storage) ReadJournal(path string) ([]domain.WriteRecord, error) {
	f, err := os.Open(JournalPath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var records []domain.WriteRecord
	r := bufio.NewReader(f)
	for n := 1; ; n++ {
		line, err := r.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			if len(bytes.TrimSpace(line)) > 0 {
				slog.Warn("ignoring torn journal line", "path", JournalPath(path), "line", n)
			}
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read journal %s: %w", path, err)
		}
		var e journalEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("journal %s line %d: %w", path, n, err)
		}
		if len(e.Values) != grid.Size(e.Shape) || len(e.Begin) != len(e.Shape) {
			return nil, fmt.Errorf("journal %s line %d: %s holds %d values for shape %v", path, n, e.Variable, len(e.Values), e.Shape)
		}
		records = append(records, e.record())
	}
}

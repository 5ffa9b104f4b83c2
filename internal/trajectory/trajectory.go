// Package trajectory exports the per-iteration states of a scenario run as
// an Arrow IPC file: one int64 "iteration" column and one float64 column per
// node, in document order.
package trajectory

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nvandessel/cogmap/internal/models"
)

// IterationColumn names the step index column.
const IterationColumn = "iteration"

// Schema metadata keys.
const (
	metaScenarioID = "cogmap.scenario_id"
	metaConverged  = "cogmap.converged"
)

// Trajectory is a dense view of a run's history. States[k][i] is the state
// of NodeIDs[i] after k iterations; row 0 is the initial vector.
type Trajectory struct {
	ScenarioID string
	Converged  bool
	NodeIDs    []string
	States     [][]float64
}

// FromScenario builds the trajectory of a scenario's stored result. Node
// order follows doc; nodes missing from the history (added after the run)
// are left out.
func FromScenario(doc *models.CognitiveMap, s models.Scenario) (*Trajectory, error) {
	if s.Result == nil || len(s.Result.History) == 0 {
		return nil, &models.InvalidStateError{Op: "export", Reason: fmt.Sprintf("scenario %q has no recorded run", s.ID)}
	}
	first := s.Result.History[0]

	t := &Trajectory{ScenarioID: s.ID, Converged: s.Result.Converged}
	for _, n := range doc.Nodes {
		if _, ok := first[n.ID]; ok {
			t.NodeIDs = append(t.NodeIDs, n.ID)
		}
	}
	t.States = make([][]float64, len(s.Result.History))
	for k, step := range s.Result.History {
		row := make([]float64, len(t.NodeIDs))
		for i, id := range t.NodeIDs {
			row[i] = step[id]
		}
		t.States[k] = row
	}
	return t, nil
}

func (t *Trajectory) schema() *arrow.Schema {
	fields := make([]arrow.Field, 0, len(t.NodeIDs)+1)
	fields = append(fields, arrow.Field{Name: IterationColumn, Type: arrow.PrimitiveTypes.Int64})
	for _, id := range t.NodeIDs {
		fields = append(fields, arrow.Field{Name: id, Type: arrow.PrimitiveTypes.Float64})
	}
	md := arrow.NewMetadata(
		[]string{metaScenarioID, metaConverged},
		[]string{t.ScenarioID, strconv.FormatBool(t.Converged)},
	)
	return arrow.NewSchema(fields, &md)
}

// Write encodes t as an Arrow IPC file: an int64 iteration column followed
// by one float64 column per node, in document order. The file footer points
// back into the body, so w must be seekable.
func Write(w io.WriteSeeker, t *Trajectory) error {
	mem := memory.NewGoAllocator()
	schema := t.schema()

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	iter := b.Field(0).(*array.Int64Builder)
	for k := range t.States {
		iter.Append(int64(k))
	}
	for i := range t.NodeIDs {
		col := b.Field(i + 1).(*array.Float64Builder)
		for _, row := range t.States {
			col.Append(row[i])
		}
	}
	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("creating arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("writing trajectory: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("finalizing trajectory: %w", err)
	}
	return nil
}

// Encode returns t as Arrow IPC file bytes. The file is assembled in a
// temporary file and removed afterwards.
func Encode(t *Trajectory) ([]byte, error) {
	f, err := os.CreateTemp("", "cogmap-trajectory-*.arrow")
	if err != nil {
		return nil, fmt.Errorf("creating temporary trajectory file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if err := Write(f, t); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding trajectory file: %w", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading trajectory file: %w", err)
	}
	return data, nil
}

// WriteFile writes t to path, replacing any existing file.
func WriteFile(path string, t *Trajectory) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating trajectory file: %w", err)
	}
	if err := Write(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile loads a trajectory written by WriteFile.
func ReadFile(path string) (*Trajectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trajectory file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a trajectory written by Write.
func Read(src ipc.ReadAtSeeker) (*Trajectory, error) {
	r, err := ipc.NewFileReader(src, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("reading arrow file: %w", err)
	}
	defer r.Close()

	schema := r.Schema()
	fields := schema.Fields()
	if len(fields) == 0 || fields[0].Name != IterationColumn {
		return nil, fmt.Errorf("trajectory file has no %q column", IterationColumn)
	}

	t := &Trajectory{}
	md := schema.Metadata()
	if i := md.FindKey(metaScenarioID); i >= 0 {
		t.ScenarioID = md.Values()[i]
	}
	if i := md.FindKey(metaConverged); i >= 0 {
		t.Converged, _ = strconv.ParseBool(md.Values()[i])
	}
	for _, fld := range fields[1:] {
		t.NodeIDs = append(t.NodeIDs, fld.Name)
	}

	for n := 0; n < r.NumRecords(); n++ {
		rec, err := r.Record(n)
		if err != nil {
			return nil, fmt.Errorf("reading record %d: %w", n, err)
		}
		cols := make([]*array.Float64, len(t.NodeIDs))
		for i := range cols {
			col, ok := rec.Column(i + 1).(*array.Float64)
			if !ok {
				return nil, fmt.Errorf("column %q is not float64", t.NodeIDs[i])
			}
			cols[i] = col
		}
		for row := 0; row < int(rec.NumRows()); row++ {
			states := make([]float64, len(cols))
			for i, col := range cols {
				states[i] = col.Value(row)
			}
			t.States = append(t.States, states)
		}
	}
	return t, nil
}

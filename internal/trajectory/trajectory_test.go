package trajectory

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nvandessel/cogmap/internal/fcm"
	"github.com/nvandessel/cogmap/internal/models"
)

func chainDoc() *models.CognitiveMap {
	doc := models.NewCognitiveMap()
	for _, id := range []string{"A", "B", "C"} {
		doc.Nodes = append(doc.Nodes, models.Node{ID: id, Label: id})
	}
	doc.Edges = []models.Edge{
		{Source: "A", Target: "B", Weight: 0.5},
		{Source: "B", Target: "C", Weight: -0.3},
	}
	return doc
}

func TestFromScenario_NoResult(t *testing.T) {
	_, err := FromScenario(chainDoc(), models.Scenario{ID: "s1"})
	if !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("FromScenario() error = %v, want ErrInvalidState", err)
	}
}

func TestFromScenario_SkipsNodesAddedAfterRun(t *testing.T) {
	doc := chainDoc()
	doc.Nodes = append([]models.Node{{ID: "late"}}, doc.Nodes...)
	s := models.Scenario{ID: "s1", Result: &models.ScenarioResult{
		History: []map[string]float64{
			{"A": 1, "B": 0, "C": 0},
			{"A": 1, "B": 0.4, "C": 0},
		},
	}}

	tr, err := FromScenario(doc, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.NodeIDs) != 3 || tr.NodeIDs[0] != "A" {
		t.Errorf("NodeIDs = %v, want [A B C]", tr.NodeIDs)
	}
	if tr.States[1][1] != 0.4 {
		t.Errorf("States[1][B] = %v, want 0.4", tr.States[1][1])
	}
}

func TestWriteReadFile_RoundTrip(t *testing.T) {
	doc := chainDoc()
	params := models.ScenarioParams{
		Name:          "push A",
		IterationMode: models.IterationFixed,
		MaxIterations: 3,
		InitialStates: map[string]float64{"A": 1},
	}
	result, err := fcm.NewEngine(fcm.DefaultConfig()).Run(context.Background(), doc, params)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	tr, err := FromScenario(doc, models.Scenario{ID: "scn-1", Params: params, Result: result})
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "run.arrow")
	if err := WriteFile(path, tr); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	if got.ScenarioID != "scn-1" || got.Converged != result.Converged {
		t.Errorf("metadata = (%q, %v), want (scn-1, %v)", got.ScenarioID, got.Converged, result.Converged)
	}
	if len(got.NodeIDs) != 3 || got.NodeIDs[2] != "C" {
		t.Errorf("NodeIDs = %v", got.NodeIDs)
	}
	if len(got.States) != result.IterationsCount+1 {
		t.Fatalf("rows = %d, want %d", len(got.States), result.IterationsCount+1)
	}
	for k, row := range got.States {
		for i, id := range got.NodeIDs {
			if row[i] != result.History[k][id] {
				t.Errorf("row %d %s = %v, want %v", k, id, row[i], result.History[k][id])
			}
		}
	}
}

func TestReadFile_Missing(t *testing.T) {
	if _, err := ReadFile(filepath.Join(t.TempDir(), "absent.arrow")); err == nil {
		t.Error("ReadFile() should fail for a missing file")
	}
}

func TestEncodeRead(t *testing.T) {
	tr := &Trajectory{
		ScenarioID: "mem",
		Converged:  true,
		NodeIDs:    []string{"X", "Y"},
		States:     [][]float64{{1, 0}, {1, 0.5}},
	}
	data, err := Encode(tr)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Read(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !got.Converged || got.States[1][1] != 0.5 {
		t.Errorf("Read() = %+v", got)
	}
	if _, err := Read(bytes.NewReader([]byte("not arrow"))); err == nil {
		t.Error("Read() should reject non-arrow input")
	}
}

package store

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nvandessel/cogmap/internal/models"
)

// chainMap builds A -> B -> C with the given weights.
func chainMap(t *testing.T, ab, bc float64) *models.CognitiveMap {
	t.Helper()
	m := models.NewCognitiveMap()
	m.Nodes = []models.Node{
		{ID: "A", Label: "A"},
		{ID: "B", Label: "B"},
		{ID: "C", Label: "C"},
	}
	m.Edges = []models.Edge{
		{Source: "A", Target: "B", Weight: ab},
		{Source: "B", Target: "C", Weight: bc},
	}
	return m
}

func canonical(t *testing.T, m *models.CognitiveMap) []byte {
	t.Helper()
	data, err := models.CanonicalBytes(m)
	if err != nil {
		t.Fatalf("CanonicalBytes() error = %v", err)
	}
	return data
}

func TestMapStore_ReplaceGetIsNoOp(t *testing.T) {
	s := New()
	if _, err := s.Replace(chainMap(t, 0.5, -0.3)); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	before := s.Info()

	if _, err := s.Replace(s.Get()); err != nil {
		t.Fatalf("Replace(Get()) error = %v", err)
	}
	after := s.Info()

	if after.HistoryLength != before.HistoryLength || after.CurrentIndex != before.CurrentIndex {
		t.Errorf("Replace(Get()) changed history: before %+v, after %+v", before, after)
	}
}

func TestMapStore_MutationsAdvanceIndex(t *testing.T) {
	s := New()
	const n = 5
	for i := 1; i <= n; i++ {
		if _, err := s.Replace(chainMap(t, float64(i)/10, 0)); err != nil {
			t.Fatalf("Replace(%d) error = %v", i, err)
		}
	}
	info := s.Info()
	if info.CurrentIndex != n {
		t.Errorf("CurrentIndex = %d, want %d", info.CurrentIndex, n)
	}
	if info.HistoryLength != n+1 {
		t.Errorf("HistoryLength = %d, want %d", info.HistoryLength, n+1)
	}
	if !info.CanUndo || info.CanRedo {
		t.Errorf("CanUndo/CanRedo = %v/%v, want true/false", info.CanUndo, info.CanRedo)
	}
}

func TestMapStore_UndoRedoByteIdentical(t *testing.T) {
	s := New()
	var states [][]byte
	states = append(states, canonical(t, s.Get()))
	for i := 1; i <= 4; i++ {
		doc, err := s.Replace(chainMap(t, float64(i)/10, -float64(i)/10))
		if err != nil {
			t.Fatalf("Replace() error = %v", err)
		}
		states = append(states, canonical(t, doc))
	}

	for k := 1; k <= 4; k++ {
		doc, err := s.Undo()
		if err != nil {
			t.Fatalf("Undo() #%d error = %v", k, err)
		}
		if want := states[4-k]; !bytes.Equal(canonical(t, doc), want) {
			t.Errorf("after %d undos got %s, want %s", k, canonical(t, doc), want)
		}
	}
	for k := 1; k <= 4; k++ {
		doc, err := s.Redo()
		if err != nil {
			t.Fatalf("Redo() #%d error = %v", k, err)
		}
		if want := states[k]; !bytes.Equal(canonical(t, doc), want) {
			t.Errorf("after %d redos got %s, want %s", k, canonical(t, doc), want)
		}
	}
}

func TestMapStore_ExhaustionLeavesStateUnchanged(t *testing.T) {
	s := New()
	before := s.Info()

	_, err := s.Undo()
	var ise *models.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("Undo() on fresh store error = %v, want InvalidStateError", err)
	}
	_, err = s.Redo()
	if !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("Redo() on fresh store error = %v, want ErrInvalidState", err)
	}
	if s.Info() != before {
		t.Errorf("info changed: before %+v, after %+v", before, s.Info())
	}
}

func TestMapStore_CommitTruncatesRedoTail(t *testing.T) {
	s := New()
	s.Replace(chainMap(t, 0.1, 0))
	s.Replace(chainMap(t, 0.2, 0))
	if _, err := s.Undo(); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if _, err := s.Replace(chainMap(t, 0.9, 0)); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	info := s.Info()
	if info.CanRedo {
		t.Error("redo tail should be discarded after a new commit")
	}
	if info.HistoryLength != 3 {
		t.Errorf("HistoryLength = %d, want 3", info.HistoryLength)
	}
}

func TestMapStore_DefaultLimitAllowsTwentyUndos(t *testing.T) {
	s := New()
	for i := 1; i <= 30; i++ {
		if _, err := s.Replace(chainMap(t, float64(i)/100, 0)); err != nil {
			t.Fatal(err)
		}
	}
	undos := 0
	for s.Info().CanUndo {
		if _, err := s.Undo(); err != nil {
			t.Fatal(err)
		}
		undos++
	}
	if undos != 20 {
		t.Errorf("undid %d steps, want 20", undos)
	}
}

func TestMapStore_HistoryLimit(t *testing.T) {
	s := New(WithHistoryLimit(3))
	for i := 1; i <= 6; i++ {
		if _, err := s.Replace(chainMap(t, float64(i)/10, 0)); err != nil {
			t.Fatalf("Replace() error = %v", err)
		}
	}
	info := s.Info()
	if info.HistoryLength != 3 {
		t.Errorf("HistoryLength = %d, want 3", info.HistoryLength)
	}
	if info.CurrentIndex != 2 {
		t.Errorf("CurrentIndex = %d, want 2", info.CurrentIndex)
	}
	if info.Limit != 3 {
		t.Errorf("Limit = %d, want 3", info.Limit)
	}

	// Oldest surviving snapshot is the 4th commit.
	s.Undo()
	doc, err := s.Undo()
	if err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if got := doc.Edges[0].Weight; got != 0.4 {
		t.Errorf("oldest weight = %v, want 0.4", got)
	}
	if _, err := s.Undo(); err == nil {
		t.Error("expected undo past the limit to fail")
	}
}

func TestMapStore_HistoryUnbounded(t *testing.T) {
	s := New(WithHistoryLimit(0))
	for i := 1; i <= DefaultHistoryLimit+5; i++ {
		s.Replace(chainMap(t, float64(i)/100, 0))
	}
	if got := s.Info().HistoryLength; got != DefaultHistoryLimit+6 {
		t.Errorf("HistoryLength = %d, want %d", got, DefaultHistoryLimit+6)
	}
}

func TestMapStore_RejectionLeavesStateUntouched(t *testing.T) {
	s := New()
	if _, err := s.Replace(chainMap(t, 0.5, -0.3)); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	before := canonical(t, s.Get())
	beforeInfo := s.Info()

	bad := chainMap(t, 0.5, -0.3)
	bad.Edges = append(bad.Edges, models.Edge{Source: "A", Target: "Z", Weight: 0.1})

	_, err := s.Replace(bad)
	var ve *models.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Replace() error = %v, want ValidationError", err)
	}
	if ve.Issue != "dangling" {
		t.Errorf("Issue = %q, want dangling", ve.Issue)
	}
	if !bytes.Equal(canonical(t, s.Get()), before) {
		t.Error("document changed after rejected replace")
	}
	if s.Info() != beforeInfo {
		t.Error("history changed after rejected replace")
	}
}

func TestMapStore_ReturnsCopies(t *testing.T) {
	s := New()
	s.Replace(chainMap(t, 0.5, -0.3))

	got := s.Get()
	got.Nodes[0].Label = "mutated"
	got.Edges[0].Weight = 1

	if again := s.Get(); again.Nodes[0].Label != "A" || again.Edges[0].Weight != 0.5 {
		t.Error("mutating a returned document changed the stored snapshot")
	}
}

func TestMapStore_Update(t *testing.T) {
	s := New()
	s.Replace(chainMap(t, 0.5, -0.3))

	doc, err := s.Update(func(m *models.CognitiveMap) error {
		m.Edges[0].Weight = 0.7
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if doc.Edges[0].Weight != 0.7 {
		t.Errorf("Weight = %v, want 0.7", doc.Edges[0].Weight)
	}
	if s.Info().CurrentIndex != 2 {
		t.Errorf("CurrentIndex = %d, want 2", s.Info().CurrentIndex)
	}

	sentinel := errors.New("abort")
	_, err = s.Update(func(m *models.CognitiveMap) error {
		m.Edges[0].Weight = 0.1
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Update() error = %v, want sentinel", err)
	}
	if s.Get().Edges[0].Weight != 0.7 {
		t.Error("aborted update leaked into the store")
	}
}

func TestMapStore_DirtyTracksBaseline(t *testing.T) {
	s := New()
	if s.Dirty() {
		t.Error("fresh store should be clean")
	}

	s.Replace(chainMap(t, 0.5, -0.3))
	if !s.Dirty() {
		t.Error("store should be dirty after a commit")
	}

	_, hash := s.Snapshot()
	s.MarkSaved(hash)
	if s.Dirty() {
		t.Error("store should be clean after MarkSaved")
	}

	s.Replace(chainMap(t, 0.6, -0.3))
	if !s.Dirty() {
		t.Error("store should be dirty after another commit")
	}
	s.Undo()
	if s.Dirty() {
		t.Error("undoing back to saved content should be clean")
	}
}

func TestMapStore_Reset(t *testing.T) {
	s := New()
	s.Replace(chainMap(t, 0.1, 0))
	s.Replace(chainMap(t, 0.2, 0))

	if err := s.Reset(chainMap(t, 0.9, 0.9)); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	info := s.Info()
	if info.CurrentIndex != 0 || info.HistoryLength != 1 {
		t.Errorf("info = %+v, want single snapshot", info)
	}
	if info.Dirty {
		t.Error("Reset should set the saved baseline")
	}

	bad := chainMap(t, 2, 0)
	if err := s.Reset(bad); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Reset(invalid) error = %v, want ErrValidation", err)
	}
	if s.Get().Edges[0].Weight != 0.9 {
		t.Error("invalid Reset changed the document")
	}
}

func TestMapStore_OnCommit(t *testing.T) {
	s := New()
	var got []models.HistoryInfo
	s.OnCommit(func(info models.HistoryInfo) { got = append(got, info) })

	s.Replace(chainMap(t, 0.5, 0))
	s.Replace(s.Get()) // no-op, no event
	s.Undo()

	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].CurrentIndex != 1 || got[1].CurrentIndex != 0 {
		t.Errorf("event indices = %d,%d, want 1,0", got[0].CurrentIndex, got[1].CurrentIndex)
	}
}

func TestMapStore_ExclusiveHoldsOffCommits(t *testing.T) {
	s := New()
	if _, err := s.Replace(chainMap(t, 0.5, -0.3)); err != nil {
		t.Fatal(err)
	}
	var events []models.HistoryInfo
	s.OnCommit(func(info models.HistoryInfo) { events = append(events, info) })

	committed := make(chan error, 1)
	err := s.Exclusive(func(tx *Txn) error {
		go func() {
			_, err := s.Replace(chainMap(t, 0.9, 0.9))
			committed <- err
		}()
		time.Sleep(20 * time.Millisecond)

		doc, hash := tx.Snapshot()
		if doc.Edges[0].Weight != 0.5 {
			t.Errorf("commit landed inside Exclusive: weight %v", doc.Edges[0].Weight)
		}
		if !tx.Dirty() {
			t.Error("Dirty() = false before MarkSaved")
		}
		tx.MarkSaved(hash)
		return tx.Reset(chainMap(t, 0.1, 0.1))
	})
	if err != nil {
		t.Fatalf("Exclusive() error = %v", err)
	}
	if err := <-committed; err != nil {
		t.Fatalf("Replace() after Exclusive error = %v", err)
	}

	// The held-off commit lands on top of the reset document.
	info := s.Info()
	if info.HistoryLength != 2 || !info.Dirty {
		t.Errorf("Info() = %+v, want reset baseline plus one commit", info)
	}
	if len(events) != 2 || events[0].HistoryLength != 1 || events[0].Dirty {
		t.Errorf("events = %+v, want one clean reset event then the commit", events)
	}
}

func TestMapStore_ExclusiveErrorKeepsState(t *testing.T) {
	s := New()
	s.Replace(chainMap(t, 0.5, -0.3))
	before := s.Info()
	sentinel := errors.New("stop")

	err := s.Exclusive(func(tx *Txn) error {
		if err := tx.Reset(&models.CognitiveMap{Nodes: []models.Node{{ID: ""}}}); err == nil {
			t.Error("Reset() accepted an invalid document")
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Exclusive() error = %v", err)
	}
	if after := s.Info(); after != before {
		t.Errorf("Info() changed: %+v -> %+v", before, after)
	}
}

func TestCheckMap(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *models.CognitiveMap)
		field  string
		issue  string
	}{
		{"valid", func(m *models.CognitiveMap) {}, "", ""},
		{"empty node id", func(m *models.CognitiveMap) { m.Nodes[0].ID = "" }, "nodes[0].id", "missing"},
		{"duplicate node", func(m *models.CognitiveMap) { m.Nodes[2].ID = "A" }, "nodes[2].id", "duplicate"},
		{"bad preferred state", func(m *models.CognitiveMap) { m.Nodes[1].PreferredState = "up" }, "nodes[1].preferred_state", "invalid"},
		{"weight too large", func(m *models.CognitiveMap) { m.Edges[0].Weight = 1.5 }, "edges[0].weight", "out-of-range"},
		{"confidence negative", func(m *models.CognitiveMap) { m.Edges[1].Confidence = models.Float(-0.1) }, "edges[1].confidence", "out-of-range"},
		{"duplicate edge", func(m *models.CognitiveMap) {
			m.Edges = append(m.Edges, models.Edge{Source: "A", Target: "B", Weight: 0.1})
		}, "edges[2]", "duplicate"},
		{"state range inverted", func(m *models.CognitiveMap) { m.FCM.StateRange = models.StateRange{1, -1} }, "fcm.state_range", "invalid"},
		{"lambda zero", func(m *models.CognitiveMap) { m.FCM.Activation.Lambda = 0 }, "fcm.activation.lambda", "out-of-range"},
		{"unknown activation", func(m *models.CognitiveMap) { m.FCM.Activation.Type = "relu" }, "fcm.activation.type", "invalid"},
		{"auto without threshold", func(m *models.CognitiveMap) {
			m.FCM.Scenarios = []models.Scenario{{ID: "s", Params: models.ScenarioParams{
				Name: "s", IterationMode: models.IterationAuto, MaxIterations: 10,
			}}}
		}, "fcm.scenarios[0].params.convergence_threshold", "missing"},
		{"iterations over ceiling", func(m *models.CognitiveMap) {
			m.FCM.Scenarios = []models.Scenario{{ID: "s", Params: models.ScenarioParams{
				Name: "s", IterationMode: models.IterationFixed, MaxIterations: DefaultMaxIterationsCeiling + 1,
			}}}
		}, "fcm.scenarios[0].params.max_iterations", "out-of-range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := chainMap(t, 0.5, -0.3)
			tt.mutate(m)
			errs := CheckMap(m, 0)
			if tt.field == "" {
				if len(errs) != 0 {
					t.Fatalf("expected no errors, got %v", errs)
				}
				return
			}
			if len(errs) == 0 {
				t.Fatalf("expected %s/%s, got no errors", tt.field, tt.issue)
			}
			if errs[0].Field != tt.field || errs[0].Issue != tt.issue {
				t.Errorf("got %s/%s, want %s/%s", errs[0].Field, errs[0].Issue, tt.field, tt.issue)
			}
		})
	}
}

func TestCheckMap_ReportsEveryViolation(t *testing.T) {
	m := chainMap(t, 2, -2)
	m.Edges = append(m.Edges, models.Edge{Source: "X", Target: "Y"})
	// two weights plus two dangling endpoints
	if got := len(CheckMap(m, 0)); got != 4 {
		t.Errorf("len(CheckMap) = %d, want 4", got)
	}
}

func TestCheckInitialStates(t *testing.T) {
	m := chainMap(t, 0.5, -0.3)
	tests := []struct {
		initial map[string]float64
		issue   string
	}{
		{map[string]float64{"A": 1}, ""},
		{map[string]float64{"Q": 1}, "dangling"},
		{map[string]float64{"A": 1.5}, "out-of-range"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.initial), func(t *testing.T) {
			err := ValidateInitialStates(m, tt.initial)
			if tt.issue == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *models.ValidationError
			if !errors.As(err, &ve) || ve.Issue != tt.issue {
				t.Errorf("error = %v, want issue %q", err, tt.issue)
			}
		})
	}
}

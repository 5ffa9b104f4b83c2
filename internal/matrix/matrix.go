// Package matrix presents the edges of a cognitive map as an adjacency
// matrix and applies single-cell edits back onto the edge list.
package matrix

import (
	"fmt"

	"github.com/nvandessel/cogmap/internal/models"
)

// View is the adjacency matrix of a document. Rows are sources, columns are
// targets, both in node order. Absent edges are nil.
type View struct {
	NodesOrder []string     `json:"nodes_order"`
	Matrix     [][]*float64 `json:"matrix"`
	Confidence [][]*float64 `json:"confidence"`
}

// Cell is an edit to one matrix cell. A nil Weight deletes the edge.
type Cell struct {
	SourceIndex int      `json:"source_index"`
	TargetIndex int      `json:"target_index"`
	Weight      *float64 `json:"weight"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// Build returns the matrix view of doc. Edges whose endpoints are not nodes
// of doc are skipped.
func Build(doc *models.CognitiveMap) View {
	n := len(doc.Nodes)
	v := View{
		NodesOrder: make([]string, n),
		Matrix:     make([][]*float64, n),
		Confidence: make([][]*float64, n),
	}
	index := make(map[string]int, n)
	for i, node := range doc.Nodes {
		v.NodesOrder[i] = node.ID
		v.Matrix[i] = make([]*float64, n)
		v.Confidence[i] = make([]*float64, n)
		index[node.ID] = i
	}

	for _, e := range doc.Edges {
		src, ok := index[e.Source]
		if !ok {
			continue
		}
		tgt, ok := index[e.Target]
		if !ok {
			continue
		}
		v.Matrix[src][tgt] = models.Float(e.Weight)
		if e.Confidence != nil {
			v.Confidence[src][tgt] = models.Float(*e.Confidence)
		}
	}
	return v
}

// SetCell applies c to doc in place. Diagonal cells are locked. New edges
// get confidence 1.0 unless one is given; existing edges keep theirs.
func SetCell(doc *models.CognitiveMap, c Cell) error {
	n := len(doc.Nodes)
	if c.SourceIndex < 0 || c.SourceIndex >= n {
		return &models.ValidationError{Field: "source_index", Issue: "out-of-range",
			Detail: fmt.Sprintf("index %d outside [0, %d)", c.SourceIndex, n)}
	}
	if c.TargetIndex < 0 || c.TargetIndex >= n {
		return &models.ValidationError{Field: "target_index", Issue: "out-of-range",
			Detail: fmt.Sprintf("index %d outside [0, %d)", c.TargetIndex, n)}
	}
	if c.SourceIndex == c.TargetIndex {
		return &models.ValidationError{Field: "target_index", Issue: "invalid",
			Detail: "diagonal cells are locked"}
	}

	source := doc.Nodes[c.SourceIndex].ID
	target := doc.Nodes[c.TargetIndex].ID
	i := doc.FindEdge(source, target)

	if c.Weight == nil {
		if i >= 0 {
			doc.Edges = append(doc.Edges[:i], doc.Edges[i+1:]...)
		}
		return nil
	}

	w := *c.Weight
	if w < -1 || w > 1 {
		return &models.ValidationError{Field: "weight", Issue: "out-of-range",
			Detail: fmt.Sprintf("weight %g outside [-1, 1]", w)}
	}
	if c.Confidence != nil && (*c.Confidence < 0 || *c.Confidence > 1) {
		return &models.ValidationError{Field: "confidence", Issue: "out-of-range",
			Detail: fmt.Sprintf("confidence %g outside [0, 1]", *c.Confidence)}
	}

	if i >= 0 {
		doc.Edges[i].Weight = w
		if c.Confidence != nil {
			doc.Edges[i].Confidence = models.Float(*c.Confidence)
		}
		return nil
	}

	conf := 1.0
	if c.Confidence != nil {
		conf = *c.Confidence
	}
	doc.Edges = append(doc.Edges, models.Edge{
		Source:     source,
		Target:     target,
		Weight:     w,
		Confidence: models.Float(conf),
	})
	return nil
}

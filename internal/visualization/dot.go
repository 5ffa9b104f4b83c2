// Package visualization renders cognitive maps for external viewers.
package visualization

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/nvandessel/cogmap/internal/metrics"
	"github.com/nvandessel/cogmap/internal/models"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// nodeColors maps metrics types to DOT fill colors.
var nodeColors = map[metrics.NodeType]string{
	metrics.Driver:   "mediumseagreen",
	metrics.Receiver: "tomato",
	metrics.Mediator: "steelblue",
	metrics.Isolated: "lightgray",
}

const (
	positiveEdgeColor = "darkgreen"
	negativeEdgeColor = "firebrick"
)

// lowConfidence marks edges drawn dashed.
const lowConfidence = 0.5

// Render produces doc in the requested format.
func Render(doc *models.CognitiveMap, format Format) ([]byte, error) {
	switch format {
	case FormatDOT, "":
		return []byte(RenderDOT(doc)), nil
	case FormatJSON:
		data, err := json.MarshalIndent(RenderJSON(doc), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal graph: %w", err)
		}
		return append(data, '\n'), nil
	}
	return nil, fmt.Errorf("unknown format %q (want dot or json)", format)
}

// RenderDOT produces a Graphviz DOT representation of the map. Nodes are
// filled by their metrics type, edges are colored by sign and labeled with
// their weight.
func RenderDOT(doc *models.CognitiveMap) string {
	report := metrics.Compute(doc)

	var b strings.Builder
	b.WriteString("digraph cogmap {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=ellipse, style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	for i, node := range doc.Nodes {
		m := report.Metrics[i]
		label := node.Label
		if label == "" {
			label = node.ID
		}
		fmt.Fprintf(&b, "  %q [label=%q, fillcolor=%q, tooltip=%q",
			node.ID, truncate(label, 40), nodeColors[m.Type],
			fmt.Sprintf("%s, centrality=%.2f", m.Type, m.Centrality))
		switch node.PreferredState {
		case models.PreferIncrease:
			b.WriteString(", peripheries=2, xlabel=\"+\"")
		case models.PreferDecrease:
			b.WriteString(", peripheries=2, xlabel=\"-\"")
		}
		b.WriteString("];\n")
	}
	if len(doc.Edges) > 0 {
		b.WriteString("\n")
	}

	for _, e := range doc.Edges {
		color := positiveEdgeColor
		if e.Weight < 0 {
			color = negativeEdgeColor
		}
		style := "solid"
		if e.Confidence != nil && *e.Confidence < lowConfidence {
			style = "dashed"
		}
		fmt.Fprintf(&b, "  %q -> %q [label=\"%+.2f\", color=%s, fontcolor=%s, style=%s, penwidth=%.1f];\n",
			e.Source, e.Target, e.Weight, color, color, style, 1+2*math.Abs(e.Weight))
	}

	b.WriteString("}\n")
	return b.String()
}

// GraphNode is a node in the JSON rendering.
type GraphNode struct {
	ID             string                `json:"id"`
	Label          string                `json:"label"`
	Type           metrics.NodeType      `json:"type"`
	Centrality     float64               `json:"centrality"`
	PageRank       float64               `json:"pagerank"`
	PreferredState models.PreferredState `json:"preferred_state,omitempty"`
}

// GraphEdge is an edge in the JSON rendering.
type GraphEdge struct {
	Source     string   `json:"source"`
	Target     string   `json:"target"`
	Weight     float64  `json:"weight"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Graph is the JSON rendering of a map, enriched with metrics.
type Graph struct {
	Nodes     []GraphNode `json:"nodes"`
	Edges     []GraphEdge `json:"edges"`
	NodeCount int         `json:"node_count"`
	EdgeCount int         `json:"edge_count"`
}

// RenderJSON produces a node/edge list with per-node metrics.
func RenderJSON(doc *models.CognitiveMap) Graph {
	report := metrics.Compute(doc)

	g := Graph{
		Nodes: make([]GraphNode, len(doc.Nodes)),
		Edges: make([]GraphEdge, len(doc.Edges)),
	}
	for i, node := range doc.Nodes {
		m := report.Metrics[i]
		g.Nodes[i] = GraphNode{
			ID:             node.ID,
			Label:          node.Label,
			Type:           m.Type,
			Centrality:     m.Centrality,
			PageRank:       m.PageRank,
			PreferredState: node.PreferredState,
		}
	}
	for i, e := range doc.Edges {
		g.Edges[i] = GraphEdge{Source: e.Source, Target: e.Target, Weight: e.Weight, Confidence: e.Confidence}
	}
	g.NodeCount = len(g.Nodes)
	g.EdgeCount = len(g.Edges)
	return g
}

// truncate shortens s to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

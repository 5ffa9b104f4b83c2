// Package metrics classifies the nodes of a cognitive map by how influence
// flows through them.
package metrics

import (
	"math"

	"github.com/nvandessel/cogmap/internal/models"
)

// NodeType is the structural role of a node.
type NodeType string

const (
	Driver   NodeType = "driver"   // more outgoing than incoming edges
	Receiver NodeType = "receiver" // more incoming than outgoing edges
	Mediator NodeType = "mediator" // balanced, at least one edge
	Isolated NodeType = "isolated" // no edges
)

// NodeMetrics describes one node. Centrality is the sum of absolute weights
// of all incident edges, rounded to 2 decimals.
type NodeMetrics struct {
	NodeID     string   `json:"node_id"`
	Indegree   int      `json:"indegree"`
	Outdegree  int      `json:"outdegree"`
	Centrality float64  `json:"centrality"`
	Type       NodeType `json:"type"`
	PageRank   float64  `json:"pagerank"`
}

// Statistics counts nodes per type.
type Statistics struct {
	Drivers   int `json:"drivers"`
	Receivers int `json:"receivers"`
	Mediators int `json:"mediators"`
	Isolated  int `json:"isolated"`
}

// Report is the metrics view of a document, in node order.
type Report struct {
	Metrics    []NodeMetrics `json:"metrics"`
	Statistics Statistics    `json:"statistics"`
}

// Classify returns the type for the given degrees.
func Classify(indegree, outdegree int) NodeType {
	switch {
	case indegree == 0 && outdegree == 0:
		return Isolated
	case outdegree > indegree:
		return Driver
	case indegree > outdegree:
		return Receiver
	}
	return Mediator
}

// Compute builds the metrics report for doc. Edges that do not resolve to
// nodes of doc are ignored.
func Compute(doc *models.CognitiveMap) Report {
	n := len(doc.Nodes)
	index := doc.NodeIndex()

	in := make([]int, n)
	out := make([]int, n)
	weighted := make([]float64, n)
	for _, e := range doc.Edges {
		src, ok := index[e.Source]
		if !ok {
			continue
		}
		tgt, ok := index[e.Target]
		if !ok {
			continue
		}
		out[src]++
		in[tgt]++
		weighted[src] += math.Abs(e.Weight)
		weighted[tgt] += math.Abs(e.Weight)
	}

	ranks := PageRank(doc, DefaultPageRankConfig())

	r := Report{Metrics: make([]NodeMetrics, n)}
	for i, node := range doc.Nodes {
		typ := Classify(in[i], out[i])
		switch typ {
		case Driver:
			r.Statistics.Drivers++
		case Receiver:
			r.Statistics.Receivers++
		case Mediator:
			r.Statistics.Mediators++
		case Isolated:
			r.Statistics.Isolated++
		}
		r.Metrics[i] = NodeMetrics{
			NodeID:     node.ID,
			Indegree:   in[i],
			Outdegree:  out[i],
			Centrality: math.Round(weighted[i]*100) / 100,
			Type:       typ,
			PageRank:   ranks[i],
		}
	}
	return r
}

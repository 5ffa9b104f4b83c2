package metrics

import (
	"math"

	"github.com/nvandessel/cogmap/internal/models"
)

// PageRankConfig holds configuration for PageRank computation.
type PageRankConfig struct {
	// DampingFactor (d) is the probability of following an edge vs. teleporting.
	// Standard value: 0.85.
	DampingFactor float64

	// MaxIterations is the maximum number of power iteration steps. Default: 100.
	MaxIterations int

	// Tolerance is the convergence threshold. Default: 1e-6.
	Tolerance float64
}

// DefaultPageRankConfig returns the default PageRank configuration.
func DefaultPageRankConfig() PageRankConfig {
	return PageRankConfig{
		DampingFactor: 0.85,
		MaxIterations: 100,
		Tolerance:     1e-6,
	}
}

// PageRank scores every node of doc by power iteration over the directed
// edge set, ignoring weights and signs. Scores are indexed in node order
// and normalized so the highest is 1.0.
//
//	PR(v) = (1-d)/N + d * (sum(PR(u)/outDegree(u)) for u -> v + dangling/N)
//
// where dangling is the score held by nodes without outgoing edges.
func PageRank(doc *models.CognitiveMap, config PageRankConfig) []float64 {
	n := len(doc.Nodes)
	if n == 0 {
		return []float64{}
	}
	index := doc.NodeIndex()

	inbound := make([][]int, n)
	outDegree := make([]int, n)
	for _, e := range doc.Edges {
		src, ok := index[e.Source]
		if !ok {
			continue
		}
		tgt, ok := index[e.Target]
		if !ok || src == tgt {
			continue
		}
		inbound[tgt] = append(inbound[tgt], src)
		outDegree[src]++
	}

	d := config.DampingFactor
	nf := float64(n)
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = 1.0 / nf
	}
	next := make([]float64, n)

	for iter := 0; iter < config.MaxIterations; iter++ {
		dangling := 0.0
		for i, deg := range outDegree {
			if deg == 0 {
				dangling += scores[i]
			}
		}

		maxDelta := 0.0
		for v := range n {
			sum := 0.0
			for _, u := range inbound[v] {
				sum += scores[u] / float64(outDegree[u])
			}
			next[v] = (1.0-d)/nf + d*(sum+dangling/nf)
			if delta := math.Abs(next[v] - scores[v]); delta > maxDelta {
				maxDelta = delta
			}
		}
		scores, next = next, scores

		if maxDelta < config.Tolerance {
			break
		}
	}

	maxScore := 0.0
	for _, s := range scores {
		maxScore = math.Max(maxScore, s)
	}
	if maxScore > 0 {
		for i := range scores {
			scores[i] /= maxScore
		}
	}
	return scores
}

package graph

import "math"

// PageRank computes node importance over the current edges. Damping 0.85,
// at least 30 iterations with an l1 convergence tolerance of 1e-6. Dangling
// nodes redistribute their rank uniformly, so ranks always sum to ~1.
func PageRank(nodes []Node, edges []Edge) map[string]float64 {
	const (
		dampingFactor = 0.85
		minIterations = 30
		maxIterations = 100
		epsilon       = 1e-6
	)

	n := len(nodes)
	if n == 0 {
		return map[string]float64{}
	}

	idToIdx := make(map[string]int, n)
	for i, node := range nodes {
		idToIdx[node.ID] = i
	}

	outLinks := make([][]int, n)
	inLinks := make([][]int, n)
	for _, e := range edges {
		if !e.IsCurrent() {
			continue
		}
		from, ok1 := idToIdx[e.Source]
		to, ok2 := idToIdx[e.Target]
		if ok1 && ok2 && from != to {
			outLinks[from] = append(outLinks[from], to)
			inLinks[to] = append(inLinks[to], from)
		}
	}

	scores := make([]float64, n)
	initial := 1.0 / float64(n)
	for i := range scores {
		scores[i] = initial
	}

	for iter := 0; iter < maxIterations; iter++ {
		// Rank held by dangling nodes is spread uniformly.
		dangling := 0.0
		for i := 0; i < n; i++ {
			if len(outLinks[i]) == 0 {
				dangling += scores[i]
			}
		}
		danglingShare := dampingFactor * dangling / float64(n)

		newScores := make([]float64, n)
		l1Delta := 0.0
		for i := 0; i < n; i++ {
			sum := 0.0
			for _, j := range inLinks[i] {
				sum += scores[j] / float64(len(outLinks[j]))
			}
			newScores[i] = (1-dampingFactor)/float64(n) + dampingFactor*sum + danglingShare
			l1Delta += math.Abs(newScores[i] - scores[i])
		}

		scores = newScores
		if iter+1 >= minIterations && l1Delta < epsilon {
			break
		}
	}

	ranks := make(map[string]float64, n)
	for i, node := range nodes {
		ranks[node.ID] = scores[i]
	}
	return ranks
}

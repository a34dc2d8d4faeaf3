// Package compactor allocates the token budgets of the four long-lived memory
// streams. Per-stream signal counts feed an affinity matrix; Sinkhorn-Knopp
// iteration makes it doubly stochastic and its diagonal becomes the budget
// split.
package compactor

import "math"

// Stream indices in every 4-vector and 4x4 matrix.
const (
	StreamIdentity = iota
	StreamProjects
	StreamTasks
	StreamFlow
	streamCount
)

// StreamNames maps indices to stream names.
var StreamNames = [streamCount]string{"identity", "projects", "tasks", "flow"}

// semanticAdjacency encodes the fixed cross-stream affinity. Neighbors on the
// identity→projects→tasks→flow chain couple strongest.
var semanticAdjacency = [streamCount][streamCount]float64{
	{0, 0.5, 0.2, 0.1},
	{0.5, 0, 0.5, 0.2},
	{0.2, 0.5, 0, 0.5},
	{0.1, 0.2, 0.5, 0},
}

const (
	sinkhornTolerance = 1e-6
	sinkhornMaxIters  = 200
	sinkhornEpsilon   = 1e-9 // guards zero rows/columns
)

// SinkhornResult carries the doubly-stochastic matrix and convergence info.
type SinkhornResult struct {
	Matrix     [streamCount][streamCount]float64
	Converged  bool
	Iterations int
}

// BuildAffinity constructs the affinity matrix from per-stream signal counts:
// self-affinity 1+c_i on the diagonal, fixed semantic adjacency off it.
func BuildAffinity(signalCounts [streamCount]int) [streamCount][streamCount]float64 {
	var a [streamCount][streamCount]float64
	for i := 0; i < streamCount; i++ {
		for j := 0; j < streamCount; j++ {
			if i == j {
				a[i][j] = 1 + float64(signalCounts[i])
			} else {
				a[i][j] = semanticAdjacency[i][j]
			}
		}
	}
	return a
}

// Sinkhorn alternately normalizes rows and columns until both sum to 1
// within tolerance, bailing after the iteration cap. The last matrix is
// returned even when unconverged.
func Sinkhorn(a [streamCount][streamCount]float64) SinkhornResult {
	m := a
	// Epsilon floor prevents zero rows/columns from collapsing the iteration.
	for i := range m {
		for j := range m[i] {
			if m[i][j] < sinkhornEpsilon {
				m[i][j] = sinkhornEpsilon
			}
		}
	}

	res := SinkhornResult{}
	for iter := 0; iter < sinkhornMaxIters; iter++ {
		res.Iterations = iter + 1

		for i := 0; i < streamCount; i++ {
			sum := 0.0
			for j := 0; j < streamCount; j++ {
				sum += m[i][j]
			}
			for j := 0; j < streamCount; j++ {
				m[i][j] /= sum
			}
		}
		for j := 0; j < streamCount; j++ {
			sum := 0.0
			for i := 0; i < streamCount; i++ {
				sum += m[i][j]
			}
			for i := 0; i < streamCount; i++ {
				m[i][j] /= sum
			}
		}

		maxDev := 0.0
		for i := 0; i < streamCount; i++ {
			rowSum, colSum := 0.0, 0.0
			for j := 0; j < streamCount; j++ {
				rowSum += m[i][j]
				colSum += m[j][i]
			}
			maxDev = math.Max(maxDev, math.Abs(rowSum-1))
			maxDev = math.Max(maxDev, math.Abs(colSum-1))
		}
		if maxDev < sinkhornTolerance {
			res.Converged = true
			break
		}
	}

	res.Matrix = m
	return res
}

// AllocateBudgets turns the doubly-stochastic diagonal into integer token
// budgets: floor(total * diag_i / sum(diag)) plus largest-remainder redistribution so the
// budgets sum exactly to total.
func AllocateBudgets(total int, m [streamCount][streamCount]float64) [streamCount]int {
	diagSum := 0.0
	for i := 0; i < streamCount; i++ {
		diagSum += m[i][i]
	}
	if diagSum == 0 {
		diagSum = 1
	}

	var budgets [streamCount]int
	var remainders [streamCount]float64
	allocated := 0
	for i := 0; i < streamCount; i++ {
		share := float64(total) * m[i][i] / diagSum
		budgets[i] = int(math.Floor(share))
		remainders[i] = share - float64(budgets[i])
		allocated += budgets[i]
	}

	for allocated < total {
		best := 0
		for i := 1; i < streamCount; i++ {
			if remainders[i] > remainders[best] {
				best = i
			}
		}
		budgets[best]++
		remainders[best] = 0
		allocated++
	}
	return budgets
}

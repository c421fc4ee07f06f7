package feature

import "math"

// solveAssignment solves the rectangular minimum-cost assignment problem.
// The matrix is padded to square with a constant cost exceeding any real
// entry, which preserves the optimum on n != m. Returns, for each row of
// the original matrix, the assigned column or -1 when the row landed on a
// padded column.
func solveAssignment(cost [][]float64) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	if m == 0 {
		out := make([]int, n)
		for i := range out {
			out[i] = -1
		}
		return out
	}

	size := n
	if m > size {
		size = m
	}

	padCost := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			if cost[i][j] > padCost {
				padCost = cost[i][j]
			}
		}
	}
	padCost++

	square := make([][]float64, size)
	for i := 0; i < size; i++ {
		square[i] = make([]float64, size)
		for j := 0; j < size; j++ {
			if i < n && j < m {
				square[i][j] = cost[i][j]
			} else {
				square[i][j] = padCost
			}
		}
	}

	cols := hungarian(square)

	out := make([]int, n)
	for i := 0; i < n; i++ {
		if cols[i] < m {
			out[i] = cols[i]
		} else {
			out[i] = -1
		}
	}
	return out
}

// hungarian is the O(n^3) Kuhn-Munkres algorithm with row/column potentials
// over a square matrix. Returns the column assigned to each row.
func hungarian(cost [][]float64) []int {
	n := len(cost)

	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1)
	way := make([]int, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := range minv {
			minv[j] = math.Inf(1)
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := math.Inf(1)
			j1 := 0
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	cols := make([]int, n)
	for j := 1; j <= n; j++ {
		if p[j] > 0 {
			cols[p[j]-1] = j - 1
		}
	}
	return cols
}

package rfm

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Quintiles is the number of score bins per metric.
const Quintiles = 5

// ErrInsufficientPopulation is returned when the customer base is too small, or
// its Recency values too repetitive, to form five distinct quintiles.
var ErrInsufficientPopulation = errors.New("insufficient customer population for quintile scoring")

// QuintileBin maps a zero-based rank position to its quintile (1..5) for a
// population of n. Edges sit at the linearly interpolated 20/40/60/80% points of
// the rank sequence; a rank on an edge belongs to the lower bin. Bin sizes never
// differ by more than one. n must be at least Quintiles.
func QuintileBin(pos, n int) int {
	bin := (Quintiles*pos + n - 2) / (n - 1)
	if bin < 1 {
		return 1
	}
	if bin > Quintiles {
		return Quintiles
	}
	return bin
}

// rankPositions orders the customers by less, breaking ties by first-seen
// sequence, and returns each customer's rank position indexed like customers.
func rankPositions(customers []*CustomerRFM, less func(a, b *CustomerRFM) bool) []int {
	order := make([]int, len(customers))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := customers[order[i]], customers[order[j]]
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return a.Seq < b.Seq
	})

	pos := make([]int, len(customers))
	for rank, idx := range order {
		pos[idx] = rank
	}
	return pos
}

// ScoreQuintiles assigns R, F and M scores and the composite code to every
// customer. Smaller Recency scores higher; larger Frequency and Monetary score
// higher. The whole population must be present before scoring.
func ScoreQuintiles(customers []*CustomerRFM) error {
	n := len(customers)
	if n < Quintiles {
		return fmt.Errorf("ScoreQuintiles: %d customers, need at least %d: %w", n, Quintiles, ErrInsufficientPopulation)
	}
	if edges := recencyEdges(customers); !strictlyIncreasing(edges) {
		return fmt.Errorf("ScoreQuintiles: recency quintile edges %s are not distinct: %w", formatEdges(edges), ErrInsufficientPopulation)
	}

	rPos := rankPositions(customers, func(a, b *CustomerRFM) bool { return a.Recency < b.Recency })
	fPos := rankPositions(customers, func(a, b *CustomerRFM) bool { return a.Frequency < b.Frequency })
	mPos := rankPositions(customers, func(a, b *CustomerRFM) bool { return a.Monetary.LessThan(b.Monetary) })

	for i, c := range customers {
		c.RScore = Quintiles + 1 - QuintileBin(rPos[i], n)
		c.FScore = QuintileBin(fPos[i], n)
		c.MScore = QuintileBin(mPos[i], n)
		c.Code = ScoreCode(c.RScore, c.FScore, c.MScore)
	}
	return nil
}

// recencyEdges returns the 0/20/40/60/80/100% quantiles of the raw Recency
// values, linearly interpolated and scaled by Quintiles so they stay integral.
// Frequency and Monetary are binned on ranks only and need no such check.
func recencyEdges(customers []*CustomerRFM) []int {
	values := make([]int, len(customers))
	for i, c := range customers {
		values[i] = c.Recency
	}
	sort.Ints(values)

	n := len(values)
	edges := make([]int, Quintiles+1)
	for k := range edges {
		h := (n - 1) * k
		lo, frac := h/Quintiles, h%Quintiles
		edges[k] = Quintiles * values[lo]
		if frac > 0 {
			edges[k] += frac * (values[lo+1] - values[lo])
		}
	}
	return edges
}

func strictlyIncreasing(edges []int) bool {
	for i := 1; i < len(edges); i++ {
		if edges[i] <= edges[i-1] {
			return false
		}
	}
	return true
}

// formatEdges renders scaled edges in days, e.g. [0 0 0.8 2 4 9].
func formatEdges(edges []int) string {
	parts := make([]string, len(edges))
	for i, e := range edges {
		parts[i] = strconv.FormatFloat(float64(e)/Quintiles, 'f', -1, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// ScoreCode concatenates the three scores, e.g. 5,4,1 -> "541".
func ScoreCode(r, f, m int) string {
	return strconv.Itoa(r) + strconv.Itoa(f) + strconv.Itoa(m)
}

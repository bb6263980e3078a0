package tree

import (
	"math"
	"sort"
)

// Split criteria accepted by DecisionTreeRegressor.
const (
	CriterionSquaredError  = "squared_error"
	CriterionFriedmanMSE   = "friedman_mse"
	CriterionAbsoluteError = "absolute_error"
	CriterionPoisson       = "poisson"
)

// criterion scores candidate splits of a node whose targets are given in
// feature-sorted order. gains[k] is the decrease of the node's total
// impurity when y[:k] goes left and y[k:] goes right; positions that are not
// admissible are -Inf.
type criterion interface {
	gains(y []float64) []float64
	leafValue(y []float64) float64
}

func newCriterion(name string) (criterion, bool) {
	switch name {
	case CriterionSquaredError:
		return squaredError{}, true
	case CriterionFriedmanMSE:
		return friedmanMSE{}, true
	case CriterionAbsoluteError:
		return absoluteError{}, true
	case CriterionPoisson:
		return poisson{}, true
	}
	return nil, false
}

func meanOf(y []float64) float64 {
	var s float64
	for _, v := range y {
		s += v
	}
	return s / float64(len(y))
}

func medianOf(y []float64) float64 {
	sorted := append([]float64(nil), y...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func prefixSums(y []float64) []float64 {
	ps := make([]float64, len(y)+1)
	for i, v := range y {
		ps[i+1] = ps[i] + v
	}
	return ps
}

type squaredError struct{}

// SSE reduction: sumL²/nL + sumR²/nR - S²/n
func (squaredError) gains(y []float64) []float64 {
	n := len(y)
	ps := prefixSums(y)
	total := ps[n]
	base := total * total / float64(n)
	g := make([]float64, n+1)
	g[0], g[n] = math.Inf(-1), math.Inf(-1)
	for k := 1; k < n; k++ {
		l, r := ps[k], total-ps[k]
		g[k] = l*l/float64(k) + r*r/float64(n-k) - base
	}
	return g
}

func (squaredError) leafValue(y []float64) float64 { return meanOf(y) }

type friedmanMSE struct{}

// Friedman's improvement: nL*nR/n * (meanL - meanR)²
func (friedmanMSE) gains(y []float64) []float64 {
	n := len(y)
	ps := prefixSums(y)
	total := ps[n]
	g := make([]float64, n+1)
	g[0], g[n] = math.Inf(-1), math.Inf(-1)
	for k := 1; k < n; k++ {
		nl, nr := float64(k), float64(n-k)
		diff := ps[k]/nl - (total-ps[k])/nr
		g[k] = nl * nr / float64(n) * diff * diff
	}
	return g
}

func (friedmanMSE) leafValue(y []float64) float64 { return meanOf(y) }

type absoluteError struct{}

// absDevCosts returns c[k] = Σ|y_i - median(y[:k])| over y[:k] for k in [0, n].
func absDevCosts(y []float64) []float64 {
	costs := make([]float64, len(y)+1)
	sorted := make([]float64, 0, len(y))
	for k, v := range y {
		pos := sort.SearchFloat64s(sorted, v)
		sorted = append(sorted, 0)
		copy(sorted[pos+1:], sorted[pos:])
		sorted[pos] = v

		m := len(sorted)
		med := sorted[m/2]
		if m%2 == 0 {
			med = (sorted[m/2-1] + sorted[m/2]) / 2
		}
		var c float64
		for _, s := range sorted {
			c += math.Abs(s - med)
		}
		costs[k+1] = c
	}
	return costs
}

func (absoluteError) gains(y []float64) []float64 {
	n := len(y)
	left := absDevCosts(y)
	rev := make([]float64, n)
	for i := range y {
		rev[i] = y[n-1-i]
	}
	right := absDevCosts(rev)

	g := make([]float64, n+1)
	g[0], g[n] = math.Inf(-1), math.Inf(-1)
	for k := 1; k < n; k++ {
		g[k] = left[n] - left[k] - right[n-k]
	}
	return g
}

func (absoluteError) leafValue(y []float64) float64 { return medianOf(y) }

type poisson struct{}

// Half Poisson deviance of a node is Σy·log y - S·log(S/n); the first term
// does not depend on the split, so the gain is
// S_L·log(S_L/n_L) + S_R·log(S_R/n_R) - S·log(S/n).
// A child with a zero sum would predict 0 and is not admissible.
func (poisson) gains(y []float64) []float64 {
	n := len(y)
	ps := prefixSums(y)
	total := ps[n]
	xlogx := func(s, cnt float64) float64 { return s * math.Log(s/cnt) }
	base := xlogx(total, float64(n))

	g := make([]float64, n+1)
	g[0], g[n] = math.Inf(-1), math.Inf(-1)
	for k := 1; k < n; k++ {
		l, r := ps[k], total-ps[k]
		if l <= 0 || r <= 0 {
			g[k] = math.Inf(-1)
			continue
		}
		g[k] = xlogx(l, float64(k)) + xlogx(r, float64(n-k)) - base
	}
	return g
}

func (poisson) leafValue(y []float64) float64 { return meanOf(y) }

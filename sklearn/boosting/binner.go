package boosting

import (
	"sort"
)

// DefaultMaxBin is the default number of histogram bins per feature
const DefaultMaxBin = 64

// Binner はヒストグラム学習のために各特徴量を高々MaxBin個のビンに量子化する
//
// Cuts[j] は特徴量jの昇順の境界値。x <= Cuts[j][b] となる最小の b がビン番号で、
// どの境界より大きい値は最後のビン len(Cuts[j]) に入る。境界値は隣接する
// 異なる値の中点なので、そのまま木の分岐閾値として使える。
type Binner struct {
	MaxBin int
	Cuts   [][]float64
}

// NewBinner creates a binner with at most maxBin bins per feature
func NewBinner(maxBin int) *Binner {
	if maxBin < 2 {
		maxBin = DefaultMaxBin
	}
	return &Binner{MaxBin: maxBin}
}

// Fit computes the cut points of every feature
func (b *Binner) Fit(cols [][]float64) {
	b.Cuts = make([][]float64, len(cols))
	for j, col := range cols {
		b.Cuts[j] = b.findCuts(col)
	}
}

// findCuts は分位点ベースでビン境界を求める
func (b *Binner) findCuts(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	unique := []float64{sorted[0]}
	for _, v := range sorted[1:] {
		if v != unique[len(unique)-1] {
			unique = append(unique, v)
		}
	}

	// ユニーク値がMaxBin以下なら全ての隙間を境界にする
	if len(unique) <= b.MaxBin {
		cuts := make([]float64, 0, len(unique)-1)
		for i := 1; i < len(unique); i++ {
			cuts = append(cuts, midpoint(unique[i-1], unique[i]))
		}
		return cuts
	}

	var cuts []float64
	for i := 1; i < b.MaxBin; i++ {
		v := sorted[(len(sorted)-1)*i/b.MaxBin]
		p := sort.SearchFloat64s(unique, v)
		if p+1 >= len(unique) {
			continue
		}
		c := midpoint(unique[p], unique[p+1])
		if len(cuts) == 0 || c > cuts[len(cuts)-1] {
			cuts = append(cuts, c)
		}
	}
	return cuts
}

func midpoint(lo, hi float64) float64 {
	m := lo + (hi-lo)/2
	if m >= hi {
		return lo
	}
	return m
}

// NumBins returns the number of bins of feature j
func (b *Binner) NumBins(j int) int {
	return len(b.Cuts[j]) + 1
}

// Bin returns the bin index of x for feature j
func (b *Binner) Bin(j int, x float64) int {
	return sort.SearchFloat64s(b.Cuts[j], x)
}

// Transform maps feature-major columns to bin indices
func (b *Binner) Transform(cols [][]float64) [][]uint8 {
	out := make([][]uint8, len(cols))
	for j, col := range cols {
		bins := make([]uint8, len(col))
		for i, v := range col {
			bins[i] = uint8(b.Bin(j, v))
		}
		out[j] = bins
	}
	return out
}

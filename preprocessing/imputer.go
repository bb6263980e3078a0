package preprocessing

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/examscore/core/model"
	esErrors "github.com/YuminosukeSato/examscore/pkg/errors"
)

// Imputation strategies.
const (
	StrategyMean         = "mean"
	StrategyMedian       = "median"
	StrategyMostFrequent = "most_frequent"
)

var _ model.Transformer = (*SimpleImputer)(nil)

// SimpleImputer はscikit-learn互換の数値欠損値補完器
// NaNを欠損値とみなし、列ごとの統計量で置き換える
type SimpleImputer struct {
	model.BaseEstimator

	// Strategy は "mean" または "median"
	Strategy string

	// Statistics は各列の補完値
	Statistics []float64

	// NFeatures は特徴量の数
	NFeatures int
}

// NewSimpleImputer は新しいSimpleImputerを作成する
//
// 使用例:
//
//	imputer := preprocessing.NewSimpleImputer(preprocessing.StrategyMedian)
//	XFilled, err := imputer.FitTransform(X)
func NewSimpleImputer(strategy string) *SimpleImputer {
	return &SimpleImputer{Strategy: strategy}
}

// Fit は各列の非欠損値から補完値を計算する
func (s *SimpleImputer) Fit(X mat.Matrix) error {
	if s.Strategy != StrategyMean && s.Strategy != StrategyMedian {
		return esErrors.NewValidationError("strategy", "must be mean or median", s.Strategy)
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return esErrors.NewModelError("SimpleImputer.Fit", "empty data", esErrors.ErrEmptyData)
	}

	stats := make([]float64, c)
	observed := make([]float64, 0, r)
	for j := 0; j < c; j++ {
		observed = observed[:0]
		for i := 0; i < r; i++ {
			if v := X.At(i, j); !math.IsNaN(v) {
				observed = append(observed, v)
			}
		}
		if len(observed) == 0 {
			return esErrors.NewValueError("SimpleImputer.Fit", fmt.Sprintf("column %d has no observed values", j))
		}
		if s.Strategy == StrategyMedian {
			stats[j] = median(observed)
		} else {
			stats[j] = mean(observed)
		}
	}

	s.Statistics = stats
	s.NFeatures = c
	s.SetFitted()
	return nil
}

// Transform はNaNを補完値で置き換えた新しい行列を返す
func (s *SimpleImputer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !s.IsFitted() {
		return nil, esErrors.NewNotFittedError("SimpleImputer", "Transform")
	}
	r, c := X.Dims()
	if c != s.NFeatures {
		return nil, esErrors.NewDimensionError("SimpleImputer.Transform", s.NFeatures, c, 1)
	}
	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, v float64) float64 {
		if math.IsNaN(v) {
			return s.Statistics[j]
		}
		return v
	}, X)
	return out, nil
}

// FitTransform は学習と変換を同時に行う
func (s *SimpleImputer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// median は値のコピーをソートして中央値を返す。偶数個なら中央2値の平均
func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// CategoricalImputer は文字列カテゴリの最頻値補完器
// 空文字列を欠損値とみなす。最頻値が複数ある場合は辞書順で最小の値を選ぶ
type CategoricalImputer struct {
	model.BaseEstimator

	// Statistics は各列の最頻値
	Statistics []string

	// NFeatures は特徴量の数
	NFeatures int
}

// NewCategoricalImputer は新しいCategoricalImputerを作成する
func NewCategoricalImputer() *CategoricalImputer {
	return &CategoricalImputer{}
}

// Fit は各列の最頻値を計算する
//
// パラメータ:
//   - data: n_samples × n_features の文字列スライス
func (c *CategoricalImputer) Fit(data [][]string) error {
	if len(data) == 0 || len(data[0]) == 0 {
		return esErrors.NewModelError("CategoricalImputer.Fit", "empty data", esErrors.ErrEmptyData)
	}
	nFeatures := len(data[0])
	for i, row := range data {
		if len(row) != nFeatures {
			return esErrors.NewDimensionError("CategoricalImputer.Fit", nFeatures, len(row), i)
		}
	}

	stats := make([]string, nFeatures)
	for j := 0; j < nFeatures; j++ {
		counts := make(map[string]int)
		for _, row := range data {
			if row[j] != "" {
				counts[row[j]]++
			}
		}
		if len(counts) == 0 {
			return esErrors.NewValueError("CategoricalImputer.Fit", fmt.Sprintf("column %d has no observed values", j))
		}
		best, bestCount := "", 0
		for v, n := range counts {
			if n > bestCount || (n == bestCount && v < best) {
				best, bestCount = v, n
			}
		}
		stats[j] = best
	}

	c.Statistics = stats
	c.NFeatures = nFeatures
	c.SetFitted()
	return nil
}

// Transform は空文字列を最頻値で置き換えた新しいスライスを返す
func (c *CategoricalImputer) Transform(data [][]string) ([][]string, error) {
	if !c.IsFitted() {
		return nil, esErrors.NewNotFittedError("CategoricalImputer", "Transform")
	}
	out := make([][]string, len(data))
	for i, row := range data {
		if len(row) != c.NFeatures {
			return nil, esErrors.NewDimensionError("CategoricalImputer.Transform", c.NFeatures, len(row), 1)
		}
		filled := make([]string, len(row))
		for j, v := range row {
			if v == "" {
				v = c.Statistics[j]
			}
			filled[j] = v
		}
		out[i] = filled
	}
	return out, nil
}

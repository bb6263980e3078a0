package boosting

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/examscore/core/model"
	"github.com/YuminosukeSato/examscore/pkg/errors"
	"github.com/YuminosukeSato/examscore/sklearn/tree"
)

var _ model.Regressor = (*CatBoostRegressor)(nil)

// maxObliviousDepth matches CatBoost's depth limit
const maxObliviousDepth = 16

// ObliviousTree applies the same split to every node of a level, so a
// sample's leaf is the bit pattern of its answers: bit i is set when
// x[Features[i]] > Thresholds[i].
type ObliviousTree struct {
	Features   []int
	Thresholds []float64
	LeafValues []float64
}

// LeafIndex returns the leaf a feature vector falls into
func (t *ObliviousTree) LeafIndex(x []float64) int {
	leaf := 0
	for level, f := range t.Features {
		if x[f] > t.Thresholds[level] {
			leaf |= 1 << level
		}
	}
	return leaf
}

// CatBoostRegressor は対称木（oblivious tree）による勾配ブースティング
//
// 各レベルで全リーフに共通の分岐を一つ選ぶ。スコアは分岐後の各リーフの
// Σ(残差)²/(件数+l2_leaf_reg) の総和で、リーフ値は
// learning_rate·Σ残差/(件数+l2_leaf_reg)。
type CatBoostRegressor struct {
	model.BaseEstimator

	Iterations   int
	LearningRate float64
	Depth        int
	L2LeafReg    float64
	BorderCount  int

	BaseScore float64
	Trees     []ObliviousTree
	NFeatures int
}

// CatBoostOption configures a CatBoostRegressor
type CatBoostOption func(*CatBoostRegressor)

// NewCatBoostRegressor creates a booster with CatBoost-like defaults
func NewCatBoostRegressor(opts ...CatBoostOption) *CatBoostRegressor {
	cb := &CatBoostRegressor{
		Iterations:   1000,
		LearningRate: 0.03,
		Depth:        6,
		L2LeafReg:    3,
		BorderCount:  DefaultMaxBin,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// WithIterations sets the number of trees
func WithIterations(n int) CatBoostOption {
	return func(cb *CatBoostRegressor) { cb.Iterations = n }
}

// WithCatLearningRate sets the shrinkage
func WithCatLearningRate(lr float64) CatBoostOption {
	return func(cb *CatBoostRegressor) { cb.LearningRate = lr }
}

// WithDepth sets the depth of every oblivious tree
func WithDepth(depth int) CatBoostOption {
	return func(cb *CatBoostRegressor) { cb.Depth = depth }
}

func (cb *CatBoostRegressor) validate() error {
	switch {
	case cb.Iterations < 1:
		return errors.NewValidationError("iterations", "must be >= 1", cb.Iterations)
	case cb.LearningRate <= 0:
		return errors.NewValidationError("learning_rate", "must be > 0", cb.LearningRate)
	case cb.Depth < 1 || cb.Depth > maxObliviousDepth:
		return errors.NewValidationError("depth", fmt.Sprintf("must be in [1, %d]", maxObliviousDepth), cb.Depth)
	case cb.L2LeafReg < 0:
		return errors.NewValidationError("l2_leaf_reg", "must be >= 0", cb.L2LeafReg)
	case cb.BorderCount < 2 || cb.BorderCount > 256:
		return errors.NewValidationError("border_count", "must be in [2, 256]", cb.BorderCount)
	}
	return nil
}

// Fit trains the booster
func (cb *CatBoostRegressor) Fit(X mat.Matrix, y mat.Vector) (err error) {
	defer errors.Recover(&err, "CatBoostRegressor.Fit")

	r, c, err := model.CheckFitInput("CatBoostRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	if err := cb.validate(); err != nil {
		return err
	}

	cols := tree.Columns(X)
	ys := model.VecToSlice(y)
	binner := NewBinner(cb.BorderCount)
	binner.Fit(cols)
	bins := binner.Transform(cols)

	cb.BaseScore = floats.Sum(ys) / float64(r)
	pred := make([]float64, r)
	for i := range pred {
		pred[i] = cb.BaseScore
	}
	residual := make([]float64, r)
	leafOf := make([]int, r)

	cb.Trees = make([]ObliviousTree, 0, cb.Iterations)
	for it := 0; it < cb.Iterations; it++ {
		floats.SubTo(residual, ys, pred)
		for i := range leafOf {
			leafOf[i] = 0
		}

		var t ObliviousTree
		for level := 0; level < cb.Depth; level++ {
			f, b, ok := cb.bestLevelSplit(binner, bins, residual, leafOf, 1<<level)
			if !ok {
				break
			}
			for i := range leafOf {
				if int(bins[f][i]) > b {
					leafOf[i] |= 1 << level
				}
			}
			t.Features = append(t.Features, f)
			t.Thresholds = append(t.Thresholds, binner.Cuts[f][b])
		}

		nLeaves := 1 << len(t.Features)
		sums := make([]float64, nLeaves)
		counts := make([]float64, nLeaves)
		for i, l := range leafOf {
			sums[l] += residual[i]
			counts[l]++
		}
		t.LeafValues = make([]float64, nLeaves)
		for l := range t.LeafValues {
			t.LeafValues[l] = cb.LearningRate * sums[l] / (counts[l] + cb.L2LeafReg)
		}
		for i, l := range leafOf {
			pred[i] += t.LeafValues[l]
		}
		cb.Trees = append(cb.Trees, t)
	}

	cb.NFeatures = c
	cb.SetFitted()
	return nil
}

// bestLevelSplit picks the (feature, bin) split that maximises the summed
// leaf score over all current leaves. It fails when no split improves on
// the unsplit level.
func (cb *CatBoostRegressor) bestLevelSplit(binner *Binner, bins [][]uint8, residual []float64, leafOf []int, nLeaves int) (feature, bin int, ok bool) {
	lambda := cb.L2LeafReg
	score := func(s, n float64) float64 { return s * s / (n + lambda) }

	totS := make([]float64, nLeaves)
	totN := make([]float64, nLeaves)
	for i, l := range leafOf {
		totS[l] += residual[i]
		totN[l]++
	}
	best := 0.0
	for l := range totS {
		best += score(totS[l], totN[l])
	}
	best += minSplitGain

	cumS := make([]float64, nLeaves)
	cumN := make([]float64, nLeaves)
	for f, fbins := range bins {
		nb := binner.NumBins(f)
		if nb < 2 {
			continue
		}
		histS := make([]float64, nLeaves*nb)
		histN := make([]float64, nLeaves*nb)
		for i, l := range leafOf {
			histS[l*nb+int(fbins[i])] += residual[i]
			histN[l*nb+int(fbins[i])]++
		}

		for l := range cumS {
			cumS[l], cumN[l] = 0, 0
		}
		for b := 0; b < nb-1; b++ {
			var s float64
			for l := 0; l < nLeaves; l++ {
				cumS[l] += histS[l*nb+b]
				cumN[l] += histN[l*nb+b]
				s += score(cumS[l], cumN[l]) + score(totS[l]-cumS[l], totN[l]-cumN[l])
			}
			if s > best {
				best = s
				feature, bin, ok = f, b, true
			}
		}
	}
	return feature, bin, ok
}

// Predict returns base score plus the sum of all tree outputs
func (cb *CatBoostRegressor) Predict(X mat.Matrix) (*mat.VecDense, error) {
	r, err := model.CheckPredictInput("CatBoostRegressor", cb.IsFitted(), cb.NFeatures, X)
	if err != nil {
		return nil, err
	}
	pred := mat.NewVecDense(r, nil)
	row := make([]float64, cb.NFeatures)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		v := cb.BaseScore
		for t := range cb.Trees {
			v += cb.Trees[t].LeafValues[cb.Trees[t].LeafIndex(row)]
		}
		pred.SetVec(i, v)
	}
	return pred, nil
}

// GetParams returns the model hyperparameters
func (cb *CatBoostRegressor) GetParams() model.Params {
	return model.Params{
		"iterations":    cb.Iterations,
		"learning_rate": cb.LearningRate,
		"depth":         cb.Depth,
		"l2_leaf_reg":   cb.L2LeafReg,
		"border_count":  cb.BorderCount,
	}
}

// SetParams sets the model hyperparameters
func (cb *CatBoostRegressor) SetParams(params model.Params) error {
	if err := params.CheckKeys("CatBoostRegressor",
		"iterations", "learning_rate", "depth", "l2_leaf_reg", "border_count"); err != nil {
		return err
	}
	var err error
	if cb.Iterations, err = params.GetInt("iterations", cb.Iterations); err != nil {
		return err
	}
	if cb.LearningRate, err = params.GetFloat64("learning_rate", cb.LearningRate); err != nil {
		return err
	}
	if cb.Depth, err = params.GetInt("depth", cb.Depth); err != nil {
		return err
	}
	if cb.L2LeafReg, err = params.GetFloat64("l2_leaf_reg", cb.L2LeafReg); err != nil {
		return err
	}
	if cb.BorderCount, err = params.GetInt("border_count", cb.BorderCount); err != nil {
		return err
	}
	return cb.validate()
}

func (cb *CatBoostRegressor) String() string {
	return fmt.Sprintf("CatBoostRegressor(iterations=%d, learning_rate=%g, depth=%d)",
		cb.Iterations, cb.LearningRate, cb.Depth)
}

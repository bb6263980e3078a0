package boosting

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/examscore/core/model"
	"github.com/YuminosukeSato/examscore/pkg/errors"
	"github.com/YuminosukeSato/examscore/sklearn/tree"
)

var _ model.Regressor = (*XGBRegressor)(nil)

// minSplitGain is the smallest regularised loss reduction accepted for a split
const minSplitGain = 1e-10

// XGBRegressor is a second-order gradient boosted tree ensemble for the
// squared error objective, grown depth-wise over histogram bins.
//
// Split gain and leaf weights follow the regularised objective
//
//	gain = ½·[G_L²/(H_L+λ) + G_R²/(H_R+λ) − G²/(H+λ)] − γ
//	w    = −G/(H+λ)
//
// and every leaf weight is shrunk by the learning rate.
type XGBRegressor struct {
	model.BaseEstimator

	NEstimators    int
	LearningRate   float64
	MaxDepth       int // 0 = unlimited
	RegLambda      float64
	Gamma          float64
	MinChildWeight float64
	MaxBin         int

	BaseScore float64
	Trees     [][]tree.Node
	NFeatures int
}

// XGBOption configures an XGBRegressor
type XGBOption func(*XGBRegressor)

// NewXGBRegressor creates a booster with XGBoost's defaults
func NewXGBRegressor(opts ...XGBOption) *XGBRegressor {
	xgb := &XGBRegressor{
		NEstimators:    100,
		LearningRate:   0.3,
		MaxDepth:       6,
		RegLambda:      1,
		MinChildWeight: 1,
		MaxBin:         DefaultMaxBin,
	}
	for _, opt := range opts {
		opt(xgb)
	}
	return xgb
}

// WithXGBNEstimators sets the number of boosting rounds
func WithXGBNEstimators(n int) XGBOption {
	return func(x *XGBRegressor) { x.NEstimators = n }
}

// WithXGBLearningRate sets the leaf shrinkage (eta)
func WithXGBLearningRate(lr float64) XGBOption {
	return func(x *XGBRegressor) { x.LearningRate = lr }
}

// WithXGBMaxDepth sets the depth limit of each tree
func WithXGBMaxDepth(depth int) XGBOption {
	return func(x *XGBRegressor) { x.MaxDepth = depth }
}

// WithRegLambda sets the L2 penalty on leaf weights
func WithRegLambda(lambda float64) XGBOption {
	return func(x *XGBRegressor) { x.RegLambda = lambda }
}

func (x *XGBRegressor) validate() error {
	switch {
	case x.NEstimators < 1:
		return errors.NewValidationError("n_estimators", "must be >= 1", x.NEstimators)
	case x.LearningRate <= 0:
		return errors.NewValidationError("learning_rate", "must be > 0", x.LearningRate)
	case x.MaxDepth < 0:
		return errors.NewValidationError("max_depth", "must be >= 0", x.MaxDepth)
	case x.RegLambda < 0:
		return errors.NewValidationError("reg_lambda", "must be >= 0", x.RegLambda)
	case x.Gamma < 0:
		return errors.NewValidationError("gamma", "must be >= 0", x.Gamma)
	case x.MinChildWeight < 0:
		return errors.NewValidationError("min_child_weight", "must be >= 0", x.MinChildWeight)
	case x.MaxBin < 2 || x.MaxBin > 256:
		return errors.NewValidationError("max_bin", "must be in [2, 256]", x.MaxBin)
	}
	return nil
}

// xgbGrower builds one tree from the current gradients
type xgbGrower struct {
	x      *XGBRegressor
	binner *Binner
	bins   [][]uint8
	grad   []float64
	hess   []float64
	pred   []float64
	nodes  []tree.Node
}

// Fit trains the booster
func (x *XGBRegressor) Fit(X mat.Matrix, y mat.Vector) (err error) {
	defer errors.Recover(&err, "XGBRegressor.Fit")

	r, c, err := model.CheckFitInput("XGBRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	if err := x.validate(); err != nil {
		return err
	}

	cols := tree.Columns(X)
	ys := model.VecToSlice(y)
	binner := NewBinner(x.MaxBin)
	binner.Fit(cols)

	g := &xgbGrower{
		x:      x,
		binner: binner,
		bins:   binner.Transform(cols),
		grad:   make([]float64, r),
		hess:   make([]float64, r),
		pred:   make([]float64, r),
	}

	x.BaseScore = floats.Sum(ys) / float64(r)
	for i := range g.pred {
		g.pred[i] = x.BaseScore
	}

	all := make([]int, r)
	for i := range all {
		all[i] = i
	}

	x.Trees = make([][]tree.Node, 0, x.NEstimators)
	for round := 0; round < x.NEstimators; round++ {
		// squared error: g = ŷ - y, h = 1
		floats.SubTo(g.grad, g.pred, ys)
		for i := range g.hess {
			g.hess[i] = 1
		}
		g.nodes = nil
		g.build(all, 0)
		x.Trees = append(x.Trees, g.nodes)
	}

	x.NFeatures = c
	x.SetFitted()
	return nil
}

func (g *xgbGrower) build(idx []int, depth int) int {
	var G, H float64
	for _, i := range idx {
		G += g.grad[i]
		H += g.hess[i]
	}

	id := len(g.nodes)
	g.nodes = append(g.nodes, tree.Node{
		Feature:  -1,
		Left:     -1,
		Right:    -1,
		Value:    -G / (H + g.x.RegLambda) * g.x.LearningRate,
		NSamples: len(idx),
		Depth:    depth,
	})

	if g.x.MaxDepth == 0 || depth < g.x.MaxDepth {
		if feature, bin, ok := g.bestSplit(idx, G, H); ok {
			var left, right []int
			for _, i := range idx {
				if int(g.bins[feature][i]) <= bin {
					left = append(left, i)
				} else {
					right = append(right, i)
				}
			}
			l := g.build(left, depth+1)
			r := g.build(right, depth+1)
			g.nodes[id].Feature = feature
			g.nodes[id].Threshold = g.binner.Cuts[feature][bin]
			g.nodes[id].Left = l
			g.nodes[id].Right = r
			return id
		}
	}

	for _, i := range idx {
		g.pred[i] += g.nodes[id].Value
	}
	return id
}

// bestSplit scans the gradient histogram of every feature
func (g *xgbGrower) bestSplit(idx []int, G, H float64) (feature, bin int, ok bool) {
	lambda := g.x.RegLambda
	parent := G * G / (H + lambda)
	best := minSplitGain

	for f, fbins := range g.bins {
		nb := g.binner.NumBins(f)
		if nb < 2 {
			continue
		}
		histG := make([]float64, nb)
		histH := make([]float64, nb)
		for _, i := range idx {
			histG[fbins[i]] += g.grad[i]
			histH[fbins[i]] += g.hess[i]
		}

		var GL, HL float64
		for b := 0; b < nb-1; b++ {
			GL += histG[b]
			HL += histH[b]
			GR, HR := G-GL, H-HL
			if HL < g.x.MinChildWeight || HR < g.x.MinChildWeight || HL == 0 || HR == 0 {
				continue
			}
			gain := 0.5*(GL*GL/(HL+lambda)+GR*GR/(HR+lambda)-parent) - g.x.Gamma
			if gain > best {
				best = gain
				feature, bin, ok = f, b, true
			}
		}
	}
	return feature, bin, ok
}

// Predict returns base score plus the sum of all tree outputs
func (x *XGBRegressor) Predict(X mat.Matrix) (*mat.VecDense, error) {
	r, err := model.CheckPredictInput("XGBRegressor", x.IsFitted(), x.NFeatures, X)
	if err != nil {
		return nil, err
	}
	pred := mat.NewVecDense(r, nil)
	row := make([]float64, x.NFeatures)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		v := x.BaseScore
		for _, nodes := range x.Trees {
			v += tree.PredictNodes(nodes, row)
		}
		pred.SetVec(i, v)
	}
	return pred, nil
}

// GetParams returns the model hyperparameters
func (x *XGBRegressor) GetParams() model.Params {
	return model.Params{
		"n_estimators":     x.NEstimators,
		"learning_rate":    x.LearningRate,
		"max_depth":        x.MaxDepth,
		"reg_lambda":       x.RegLambda,
		"gamma":            x.Gamma,
		"min_child_weight": x.MinChildWeight,
		"max_bin":          x.MaxBin,
	}
}

// SetParams sets the model hyperparameters
func (x *XGBRegressor) SetParams(params model.Params) error {
	if err := params.CheckKeys("XGBRegressor", "n_estimators", "learning_rate", "max_depth",
		"reg_lambda", "gamma", "min_child_weight", "max_bin"); err != nil {
		return err
	}
	var err error
	if x.NEstimators, err = params.GetInt("n_estimators", x.NEstimators); err != nil {
		return err
	}
	if x.LearningRate, err = params.GetFloat64("learning_rate", x.LearningRate); err != nil {
		return err
	}
	if x.MaxDepth, err = params.GetInt("max_depth", x.MaxDepth); err != nil {
		return err
	}
	if x.RegLambda, err = params.GetFloat64("reg_lambda", x.RegLambda); err != nil {
		return err
	}
	if x.Gamma, err = params.GetFloat64("gamma", x.Gamma); err != nil {
		return err
	}
	if x.MinChildWeight, err = params.GetFloat64("min_child_weight", x.MinChildWeight); err != nil {
		return err
	}
	if x.MaxBin, err = params.GetInt("max_bin", x.MaxBin); err != nil {
		return err
	}
	return x.validate()
}

func (x *XGBRegressor) String() string {
	return fmt.Sprintf("XGBRegressor(n_estimators=%d, learning_rate=%g, max_depth=%d)",
		x.NEstimators, x.LearningRate, x.MaxDepth)
}

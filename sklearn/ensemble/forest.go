package ensemble

import (
	"context"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/examscore/core/model"
	"github.com/YuminosukeSato/examscore/core/parallel"
	"github.com/YuminosukeSato/examscore/pkg/errors"
	"github.com/YuminosukeSato/examscore/sklearn/tree"
)

var _ model.Regressor = (*RandomForestRegressor)(nil)

// RandomForestRegressor averages regression trees fitted on bootstrap samples
type RandomForestRegressor struct {
	model.BaseEstimator

	// Hyperparameters
	NEstimators     int
	MaxDepth        int // 0 = unlimited
	MinSamplesSplit int
	MinSamplesLeaf  int
	Bootstrap       bool
	RandomState     int64
	NJobs           int // <= 0 uses every CPU

	// Fitted state
	Trees     []*tree.DecisionTreeRegressor
	NFeatures int
}

// ForestOption configures a RandomForestRegressor
type ForestOption func(*RandomForestRegressor)

// NewRandomForestRegressor creates a forest with scikit-learn's defaults
func NewRandomForestRegressor(opts ...ForestOption) *RandomForestRegressor {
	rf := &RandomForestRegressor{
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       true,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// WithNEstimators sets the number of trees
func WithNEstimators(n int) ForestOption {
	return func(rf *RandomForestRegressor) { rf.NEstimators = n }
}

// WithForestMaxDepth sets the depth limit of every tree
func WithForestMaxDepth(depth int) ForestOption {
	return func(rf *RandomForestRegressor) { rf.MaxDepth = depth }
}

// WithBootstrap toggles bootstrap sampling
func WithBootstrap(b bool) ForestOption {
	return func(rf *RandomForestRegressor) { rf.Bootstrap = b }
}

// WithForestRandomState sets the seed of the bootstrap draws
func WithForestRandomState(seed int64) ForestOption {
	return func(rf *RandomForestRegressor) { rf.RandomState = seed }
}

// WithNJobs bounds the number of trees fitted concurrently
func WithNJobs(n int) ForestOption {
	return func(rf *RandomForestRegressor) { rf.NJobs = n }
}

func (rf *RandomForestRegressor) validate() error {
	if rf.NEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", rf.NEstimators)
	}
	return nil
}

// Fit trains the forest
func (rf *RandomForestRegressor) Fit(X mat.Matrix, y mat.Vector) (err error) {
	defer errors.Recover(&err, "RandomForestRegressor.Fit")

	r, c, err := model.CheckFitInput("RandomForestRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	if err := rf.validate(); err != nil {
		return err
	}

	cols := tree.Columns(X)
	ys := model.VecToSlice(y)

	// Bootstrap samples are drawn up front from one stream so the forest
	// does not depend on which worker fits which tree.
	rng := rand.New(rand.NewPCG(uint64(rf.RandomState), 0))
	samples := make([][]int, rf.NEstimators)
	for t := range samples {
		idx := make([]int, r)
		for i := range idx {
			if rf.Bootstrap {
				idx[i] = rng.IntN(r)
			} else {
				idx[i] = i
			}
		}
		samples[t] = idx
	}

	trees := make([]*tree.DecisionTreeRegressor, rf.NEstimators)
	err = parallel.ForEach(context.Background(), rf.NEstimators, rf.NJobs, func(t int) error {
		dt := tree.NewDecisionTreeRegressor(
			tree.WithMaxDepth(rf.MaxDepth),
			tree.WithMinSamplesSplit(rf.MinSamplesSplit),
			tree.WithMinSamplesLeaf(rf.MinSamplesLeaf),
		)
		if err := dt.FitColumns(cols, ys, samples[t]); err != nil {
			return errors.Wrapf(err, "tree %d", t)
		}
		trees[t] = dt
		return nil
	})
	if err != nil {
		return err
	}

	rf.Trees = trees
	rf.NFeatures = c
	rf.SetFitted()
	return nil
}

// Predict returns the mean prediction of all trees
func (rf *RandomForestRegressor) Predict(X mat.Matrix) (*mat.VecDense, error) {
	r, err := model.CheckPredictInput("RandomForestRegressor", rf.IsFitted(), rf.NFeatures, X)
	if err != nil {
		return nil, err
	}
	pred := mat.NewVecDense(r, nil)
	row := make([]float64, rf.NFeatures)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		var sum float64
		for _, t := range rf.Trees {
			sum += t.PredictRow(row)
		}
		pred.SetVec(i, sum/float64(len(rf.Trees)))
	}
	return pred, nil
}

// FeatureImportances averages the normalised importances of the trees
func (rf *RandomForestRegressor) FeatureImportances() []float64 {
	out := make([]float64, rf.NFeatures)
	if len(rf.Trees) == 0 {
		return out
	}
	for _, t := range rf.Trees {
		for j, v := range t.FeatureImportances {
			out[j] += v / float64(len(rf.Trees))
		}
	}
	return out
}

// GetParams returns the model hyperparameters
func (rf *RandomForestRegressor) GetParams() model.Params {
	return model.Params{
		"n_estimators":      rf.NEstimators,
		"max_depth":         rf.MaxDepth,
		"min_samples_split": rf.MinSamplesSplit,
		"min_samples_leaf":  rf.MinSamplesLeaf,
		"random_state":      int(rf.RandomState),
	}
}

// SetParams sets the model hyperparameters
func (rf *RandomForestRegressor) SetParams(params model.Params) error {
	if err := params.CheckKeys("RandomForestRegressor",
		"n_estimators", "max_depth", "min_samples_split", "min_samples_leaf", "random_state"); err != nil {
		return err
	}
	var err error
	if rf.NEstimators, err = params.GetInt("n_estimators", rf.NEstimators); err != nil {
		return err
	}
	if rf.MaxDepth, err = params.GetInt("max_depth", rf.MaxDepth); err != nil {
		return err
	}
	if rf.MinSamplesSplit, err = params.GetInt("min_samples_split", rf.MinSamplesSplit); err != nil {
		return err
	}
	if rf.MinSamplesLeaf, err = params.GetInt("min_samples_leaf", rf.MinSamplesLeaf); err != nil {
		return err
	}
	seed, err := params.GetInt("random_state", int(rf.RandomState))
	if err != nil {
		return err
	}
	rf.RandomState = int64(seed)
	return rf.validate()
}

func (rf *RandomForestRegressor) String() string {
	return fmt.Sprintf("RandomForestRegressor(n_estimators=%d, max_depth=%d)", rf.NEstimators, rf.MaxDepth)
}

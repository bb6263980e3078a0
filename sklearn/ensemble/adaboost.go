package ensemble

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/examscore/core/model"
	"github.com/YuminosukeSato/examscore/pkg/errors"
	"github.com/YuminosukeSato/examscore/sklearn/tree"
)

var _ model.Regressor = (*AdaBoostRegressor)(nil)

// AdaBoostRegressor implements AdaBoost.R2 with the linear loss.
//
// Each stage fits a depth-3 tree on a weighted bootstrap sample, and the
// ensemble predicts the weighted median of the stage predictions.
type AdaBoostRegressor struct {
	model.BaseEstimator

	NEstimators  int
	LearningRate float64
	MaxDepth     int
	RandomState  int64

	Estimators       []*tree.DecisionTreeRegressor
	EstimatorWeights []float64
	EstimatorErrors  []float64
	NFeatures        int
}

// AdaBoostOption configures an AdaBoostRegressor
type AdaBoostOption func(*AdaBoostRegressor)

// NewAdaBoostRegressor creates an AdaBoost.R2 ensemble with scikit-learn's defaults
func NewAdaBoostRegressor(opts ...AdaBoostOption) *AdaBoostRegressor {
	ab := &AdaBoostRegressor{
		NEstimators:  50,
		LearningRate: 1.0,
		MaxDepth:     3,
	}
	for _, opt := range opts {
		opt(ab)
	}
	return ab
}

// WithAdaNEstimators sets the maximum number of stages
func WithAdaNEstimators(n int) AdaBoostOption {
	return func(ab *AdaBoostRegressor) { ab.NEstimators = n }
}

// WithAdaLearningRate sets the weight shrinkage
func WithAdaLearningRate(lr float64) AdaBoostOption {
	return func(ab *AdaBoostRegressor) { ab.LearningRate = lr }
}

// WithAdaRandomState sets the seed of the weighted bootstrap
func WithAdaRandomState(seed int64) AdaBoostOption {
	return func(ab *AdaBoostRegressor) { ab.RandomState = seed }
}

func (ab *AdaBoostRegressor) validate() error {
	if ab.NEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", ab.NEstimators)
	}
	if ab.LearningRate <= 0 {
		return errors.NewValidationError("learning_rate", "must be > 0", ab.LearningRate)
	}
	return nil
}

// Fit trains the ensemble. Boosting stops early on a perfect stage or when a
// later stage is no better than chance (average loss >= 0.5).
func (ab *AdaBoostRegressor) Fit(X mat.Matrix, y mat.Vector) (err error) {
	defer errors.Recover(&err, "AdaBoostRegressor.Fit")

	r, c, err := model.CheckFitInput("AdaBoostRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	if err := ab.validate(); err != nil {
		return err
	}

	cols := tree.Columns(X)
	ys := model.VecToSlice(y)
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = model.RowToSlice(X, i)
	}

	weights := make([]float64, r)
	for i := range weights {
		weights[i] = 1 / float64(r)
	}
	rng := rand.New(rand.NewPCG(uint64(ab.RandomState), 0))
	cdf := make([]float64, r)
	loss := make([]float64, r)

	ab.Estimators = ab.Estimators[:0]
	ab.EstimatorWeights = ab.EstimatorWeights[:0]
	ab.EstimatorErrors = ab.EstimatorErrors[:0]

	for stage := 0; stage < ab.NEstimators; stage++ {
		floats.CumSum(cdf, weights)
		total := cdf[r-1]
		idx := make([]int, r)
		for i := range idx {
			j := sort.SearchFloat64s(cdf, rng.Float64()*total)
			idx[i] = min(j, r-1)
		}

		dt := tree.NewDecisionTreeRegressor(tree.WithMaxDepth(ab.MaxDepth))
		if err := dt.FitColumns(cols, ys, idx); err != nil {
			return errors.Wrapf(err, "stage %d", stage)
		}

		for i, row := range rows {
			loss[i] = math.Abs(dt.PredictRow(row) - ys[i])
		}
		if maxLoss := floats.Max(loss); maxLoss > 0 {
			floats.Scale(1/maxLoss, loss)
		}
		estErr := floats.Dot(weights, loss) / total

		if estErr <= 0 {
			ab.Estimators = append(ab.Estimators, dt)
			ab.EstimatorWeights = append(ab.EstimatorWeights, 1)
			ab.EstimatorErrors = append(ab.EstimatorErrors, 0)
			break
		}
		if estErr >= 0.5 {
			if len(ab.Estimators) == 0 {
				ab.Estimators = append(ab.Estimators, dt)
				ab.EstimatorWeights = append(ab.EstimatorWeights, 1)
				ab.EstimatorErrors = append(ab.EstimatorErrors, estErr)
			}
			break
		}

		beta := estErr / (1 - estErr)
		ab.Estimators = append(ab.Estimators, dt)
		ab.EstimatorWeights = append(ab.EstimatorWeights, ab.LearningRate*math.Log(1/beta))
		ab.EstimatorErrors = append(ab.EstimatorErrors, estErr)

		for i := range weights {
			weights[i] *= math.Pow(beta, (1-loss[i])*ab.LearningRate)
		}
		sum := floats.Sum(weights)
		if sum <= 0 {
			break
		}
		floats.Scale(1/sum, weights)
	}

	ab.NFeatures = c
	ab.SetFitted()
	return nil
}

// Predict returns the weighted median of the stage predictions
func (ab *AdaBoostRegressor) Predict(X mat.Matrix) (*mat.VecDense, error) {
	r, err := model.CheckPredictInput("AdaBoostRegressor", ab.IsFitted(), ab.NFeatures, X)
	if err != nil {
		return nil, err
	}

	type stagePred struct {
		value, weight float64
	}
	preds := make([]stagePred, len(ab.Estimators))
	out := mat.NewVecDense(r, nil)
	row := make([]float64, ab.NFeatures)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		var total float64
		for s, est := range ab.Estimators {
			preds[s] = stagePred{value: est.PredictRow(row), weight: ab.EstimatorWeights[s]}
			total += ab.EstimatorWeights[s]
		}
		sort.SliceStable(preds, func(a, b int) bool { return preds[a].value < preds[b].value })

		median := preds[len(preds)-1].value
		var cum float64
		for _, p := range preds {
			cum += p.weight
			if cum >= 0.5*total {
				median = p.value
				break
			}
		}
		out.SetVec(i, median)
	}
	return out, nil
}

// GetParams returns the model hyperparameters
func (ab *AdaBoostRegressor) GetParams() model.Params {
	return model.Params{
		"n_estimators":  ab.NEstimators,
		"learning_rate": ab.LearningRate,
		"random_state":  int(ab.RandomState),
	}
}

// SetParams sets the model hyperparameters
func (ab *AdaBoostRegressor) SetParams(params model.Params) error {
	if err := params.CheckKeys("AdaBoostRegressor", "n_estimators", "learning_rate", "random_state"); err != nil {
		return err
	}
	var err error
	if ab.NEstimators, err = params.GetInt("n_estimators", ab.NEstimators); err != nil {
		return err
	}
	if ab.LearningRate, err = params.GetFloat64("learning_rate", ab.LearningRate); err != nil {
		return err
	}
	seed, err := params.GetInt("random_state", int(ab.RandomState))
	if err != nil {
		return err
	}
	ab.RandomState = int64(seed)
	return ab.validate()
}

func (ab *AdaBoostRegressor) String() string {
	return fmt.Sprintf("AdaBoostRegressor(n_estimators=%d, learning_rate=%g)", ab.NEstimators, ab.LearningRate)
}

package neighbors

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/examscore/core/model"
	"github.com/YuminosukeSato/examscore/core/parallel"
	"github.com/YuminosukeSato/examscore/pkg/errors"
)

var _ model.Regressor = (*KNeighborsRegressor)(nil)

// Weighting schemes
const (
	WeightsUniform  = "uniform"
	WeightsDistance = "distance"
)

// KNeighborsRegressor predicts the (weighted) mean target of the k nearest
// training rows under the Euclidean distance. Equal distances are broken by
// training row order.
type KNeighborsRegressor struct {
	model.BaseEstimator

	NNeighbors int
	Weights    string

	// EffectiveK is NNeighbors clamped to the number of training rows
	EffectiveK int
	TrainX     [][]float64
	TrainY     []float64
	NFeatures  int
}

// Option configures a KNeighborsRegressor
type Option func(*KNeighborsRegressor)

// NewKNeighborsRegressor creates a regressor with k = 5 and uniform weights
func NewKNeighborsRegressor(opts ...Option) *KNeighborsRegressor {
	knn := &KNeighborsRegressor{
		NNeighbors: 5,
		Weights:    WeightsUniform,
	}
	for _, opt := range opts {
		opt(knn)
	}
	return knn
}

// WithNNeighbors sets k
func WithNNeighbors(k int) Option {
	return func(knn *KNeighborsRegressor) { knn.NNeighbors = k }
}

// WithWeights sets the weighting scheme
func WithWeights(w string) Option {
	return func(knn *KNeighborsRegressor) { knn.Weights = w }
}

func (knn *KNeighborsRegressor) validate() error {
	if knn.NNeighbors < 1 {
		return errors.NewValidationError("n_neighbors", "must be >= 1", knn.NNeighbors)
	}
	if knn.Weights != WeightsUniform && knn.Weights != WeightsDistance {
		return errors.NewValidationError("weights", "must be uniform or distance", knn.Weights)
	}
	return nil
}

// Fit stores the training data
func (knn *KNeighborsRegressor) Fit(X mat.Matrix, y mat.Vector) error {
	r, c, err := model.CheckFitInput("KNeighborsRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	if err := knn.validate(); err != nil {
		return err
	}

	knn.EffectiveK = knn.NNeighbors
	if knn.NNeighbors > r {
		knn.EffectiveK = r
		errors.Warn(errors.NewParameterAdjustedWarning("KNeighborsRegressor", "n_neighbors", knn.NNeighbors, r))
	}

	knn.TrainX = make([][]float64, r)
	for i := range knn.TrainX {
		knn.TrainX[i] = model.RowToSlice(X, i)
	}
	knn.TrainY = model.VecToSlice(y)
	knn.NFeatures = c
	knn.SetFitted()
	return nil
}

type neighbor struct {
	dist  float64
	index int
}

func (knn *KNeighborsRegressor) predictRow(x []float64) float64 {
	nbrs := make([]neighbor, len(knn.TrainX))
	for j, xj := range knn.TrainX {
		nbrs[j] = neighbor{dist: floats.Distance(x, xj, 2), index: j}
	}
	sort.SliceStable(nbrs, func(a, b int) bool { return nbrs[a].dist < nbrs[b].dist })
	nbrs = nbrs[:knn.EffectiveK]

	if knn.Weights == WeightsDistance {
		// 距離0の近傍があればそれらの平均を返す
		var sum float64
		var exact int
		for _, n := range nbrs {
			if n.dist == 0 {
				sum += knn.TrainY[n.index]
				exact++
			}
		}
		if exact > 0 {
			return sum / float64(exact)
		}
		var wsum float64
		for _, n := range nbrs {
			w := 1 / n.dist
			sum += w * knn.TrainY[n.index]
			wsum += w
		}
		return sum / wsum
	}

	var sum float64
	for _, n := range nbrs {
		sum += knn.TrainY[n.index]
	}
	return sum / float64(len(nbrs))
}

// Predict returns the neighbour average for every row of X
func (knn *KNeighborsRegressor) Predict(X mat.Matrix) (*mat.VecDense, error) {
	r, err := model.CheckPredictInput("KNeighborsRegressor", knn.IsFitted(), knn.NFeatures, X)
	if err != nil {
		return nil, err
	}

	// 並列処理の閾値（この値以下の行数では逐次処理を使用）
	const parallelThreshold = 64

	out := make([]float64, r)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = knn.predictRow(model.RowToSlice(X, i))
		}
	})
	return mat.NewVecDense(r, out), nil
}

// GetParams returns the model hyperparameters
func (knn *KNeighborsRegressor) GetParams() model.Params {
	return model.Params{
		"n_neighbors": knn.NNeighbors,
		"weights":     knn.Weights,
	}
}

// SetParams sets the model hyperparameters
func (knn *KNeighborsRegressor) SetParams(params model.Params) error {
	if err := params.CheckKeys("KNeighborsRegressor", "n_neighbors", "weights"); err != nil {
		return err
	}
	var err error
	if knn.NNeighbors, err = params.GetInt("n_neighbors", knn.NNeighbors); err != nil {
		return err
	}
	if knn.Weights, err = params.GetString("weights", knn.Weights); err != nil {
		return err
	}
	return knn.validate()
}

func (knn *KNeighborsRegressor) String() string {
	return fmt.Sprintf("KNeighborsRegressor(n_neighbors=%d, weights=%s)", knn.NNeighbors, knn.Weights)
}

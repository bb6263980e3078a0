package neighbors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/examscore/core/model"
	"github.com/YuminosukeSato/examscore/pkg/errors"
)

func lineData() (*mat.Dense, *mat.VecDense) {
	X := mat.NewDense(6, 1, []float64{0, 1, 2, 3, 4, 5})
	y := mat.NewVecDense(6, []float64{0, 10, 20, 30, 40, 50})
	return X, y
}

func TestKNeighborsRegressor_Uniform(t *testing.T) {
	X, y := lineData()

	knn := NewKNeighborsRegressor(WithNNeighbors(3))
	require.NoError(t, knn.Fit(X, y))

	pred, err := knn.Predict(mat.NewDense(2, 1, []float64{2.1, 10}))
	require.NoError(t, err)
	assert.InDelta(t, 20.0, pred.AtVec(0), 1e-12) // neighbours 2, 1, 3
	assert.InDelta(t, 40.0, pred.AtVec(1), 1e-12) // neighbours 5, 4, 3
}

func TestKNeighborsRegressor_TieBreaksByTrainingOrder(t *testing.T) {
	X, y := lineData()

	knn := NewKNeighborsRegressor(WithNNeighbors(1))
	require.NoError(t, knn.Fit(X, y))

	// 1.5 is equidistant from rows 1 and 2
	pred, err := knn.Predict(mat.NewDense(1, 1, []float64{1.5}))
	require.NoError(t, err)
	assert.Equal(t, 10.0, pred.AtVec(0))
}

func TestKNeighborsRegressor_DistanceWeights(t *testing.T) {
	X, y := lineData()

	knn := NewKNeighborsRegressor(WithNNeighbors(2), WithWeights(WeightsDistance))
	require.NoError(t, knn.Fit(X, y))

	pred, err := knn.Predict(mat.NewDense(2, 1, []float64{1.25, 4}))
	require.NoError(t, err)
	// weights 1/0.25 and 1/0.75
	assert.InDelta(t, (4*10.0+20.0*4.0/3.0)/(4+4.0/3.0), pred.AtVec(0), 1e-9)
	// exact match wins
	assert.Equal(t, 40.0, pred.AtVec(1))
}

func TestKNeighborsRegressor_ClampsK(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	X := mat.NewDense(3, 1, []float64{0, 1, 2})
	y := mat.NewVecDense(3, []float64{3, 6, 9})

	knn := NewKNeighborsRegressor(WithNNeighbors(11))
	require.NoError(t, knn.Fit(X, y))
	assert.Equal(t, 3, knn.EffectiveK)
	assert.Equal(t, 11, knn.NNeighbors)

	require.Len(t, warnings, 1)
	var adjusted *errors.ParameterAdjustedWarning
	assert.True(t, errors.As(warnings[0], &adjusted))

	pred, err := knn.Predict(mat.NewDense(1, 1, []float64{100}))
	require.NoError(t, err)
	assert.InDelta(t, 6.0, pred.AtVec(0), 1e-12)
}

func TestKNeighborsRegressor_Params(t *testing.T) {
	knn := NewKNeighborsRegressor()
	require.NoError(t, knn.SetParams(model.Params{"n_neighbors": 9}))
	assert.Equal(t, model.Params{"n_neighbors": 9, "weights": "uniform"}, knn.GetParams())

	var vErr *errors.ValidationError
	assert.True(t, errors.As(knn.SetParams(model.Params{"n_neighbors": 0}), &vErr))
	assert.True(t, errors.As(knn.SetParams(model.Params{"n_neighbors": 5, "weights": "gaussian"}), &vErr))
	assert.True(t, errors.As(knn.SetParams(model.Params{"p": 1}), &vErr))
}

func TestKNeighborsRegressor_Errors(t *testing.T) {
	knn := NewKNeighborsRegressor()
	_, err := knn.Predict(mat.NewDense(1, 1, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	X, y := lineData()
	require.NoError(t, knn.Fit(X, y))
	_, err = knn.Predict(mat.NewDense(1, 2, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

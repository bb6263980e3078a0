package boosting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/examscore/core/model"
	"github.com/YuminosukeSato/examscore/metrics"
	"github.com/YuminosukeSato/examscore/pkg/errors"
)

func stepData() (*mat.Dense, *mat.VecDense) {
	X := mat.NewDense(8, 1, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	y := mat.NewVecDense(8, []float64{1, 1, 1, 1, 10, 10, 10, 10})
	return X, y
}

func quadratic(n int) (*mat.Dense, *mat.VecDense) {
	X := mat.NewDense(n, 2, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i%2))
		y.SetVec(i, float64(i*i)+5*float64(i%2))
	}
	return X, y
}

func TestBinner(t *testing.T) {
	t.Run("few unique values", func(t *testing.T) {
		b := NewBinner(8)
		b.Fit([][]float64{{1, 2, 2, 3}, {7, 7, 7, 7}})

		assert.Equal(t, []float64{1.5, 2.5}, b.Cuts[0])
		assert.Empty(t, b.Cuts[1])
		assert.Equal(t, 1, b.NumBins(1))

		bins := b.Transform([][]float64{{1, 2, 2, 3}, {7, 7, 7, 7}})
		assert.Equal(t, []uint8{0, 1, 1, 2}, bins[0])
		assert.Equal(t, []uint8{0, 0, 0, 0}, bins[1])
		assert.Equal(t, 0, b.Bin(0, -100))
		assert.Equal(t, 2, b.Bin(0, 100))
	})

	t.Run("quantile cuts", func(t *testing.T) {
		values := make([]float64, 100)
		for i := range values {
			values[i] = float64(i)
		}
		b := NewBinner(4)
		b.Fit([][]float64{values})

		cuts := b.Cuts[0]
		require.NotEmpty(t, cuts)
		assert.LessOrEqual(t, b.NumBins(0), 4)
		for i := 1; i < len(cuts); i++ {
			assert.Greater(t, cuts[i], cuts[i-1])
		}
	})
}

func TestXGBRegressor_StepFunction(t *testing.T) {
	X, y := stepData()

	xgb := NewXGBRegressor(WithXGBNEstimators(50))
	require.NoError(t, xgb.Fit(X, y))
	assert.Equal(t, 5.5, xgb.BaseScore)
	assert.Equal(t, 4.5, xgb.Trees[0][0].Threshold)

	pred, err := xgb.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		assert.InDelta(t, y.AtVec(i), pred.AtVec(i), 1e-3)
	}
}

func TestXGBRegressor_Quadratic(t *testing.T) {
	X, y := quadratic(30)

	xgb := NewXGBRegressor(WithXGBNEstimators(64), WithXGBLearningRate(0.1), WithXGBMaxDepth(3))
	require.NoError(t, xgb.Fit(X, y))
	pred, err := xgb.Predict(X)
	require.NoError(t, err)
	r2, err := metrics.R2Score(y, pred)
	require.NoError(t, err)
	assert.Greater(t, r2, 0.95)
}

func TestXGBRegressor_RegLambdaShrinksLeaves(t *testing.T) {
	X, y := stepData()

	weak := NewXGBRegressor(WithXGBNEstimators(1), WithRegLambda(100))
	strong := NewXGBRegressor(WithXGBNEstimators(1), WithRegLambda(0))
	require.NoError(t, weak.Fit(X, y))
	require.NoError(t, strong.Fit(X, y))

	xHigh := mat.NewDense(1, 1, []float64{8})
	pw, err := weak.Predict(xHigh)
	require.NoError(t, err)
	ps, err := strong.Predict(xHigh)
	require.NoError(t, err)
	assert.Less(t, pw.AtVec(0), ps.AtVec(0))
}

func TestObliviousTree_LeafIndex(t *testing.T) {
	tr := ObliviousTree{
		Features:   []int{0, 1},
		Thresholds: []float64{0.5, 10},
		LeafValues: []float64{1, 2, 3, 4},
	}
	assert.Equal(t, 0, tr.LeafIndex([]float64{0, 0}))
	assert.Equal(t, 1, tr.LeafIndex([]float64{1, 0}))
	assert.Equal(t, 2, tr.LeafIndex([]float64{0, 11}))
	assert.Equal(t, 3, tr.LeafIndex([]float64{1, 11}))
}

func TestCatBoostRegressor_StepFunction(t *testing.T) {
	X, y := stepData()

	cb := NewCatBoostRegressor(WithIterations(200), WithCatLearningRate(0.1), WithDepth(2))
	require.NoError(t, cb.Fit(X, y))

	// the second level cannot improve on two constant halves
	first := cb.Trees[0]
	assert.Equal(t, []int{0}, first.Features)
	assert.Equal(t, []float64{4.5}, first.Thresholds)
	assert.Len(t, first.LeafValues, 2)

	pred, err := cb.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		assert.InDelta(t, y.AtVec(i), pred.AtVec(i), 1e-3)
	}
}

func TestCatBoostRegressor_Quadratic(t *testing.T) {
	X, y := quadratic(30)

	cb := NewCatBoostRegressor(WithIterations(100), WithCatLearningRate(0.1), WithDepth(6))
	require.NoError(t, cb.Fit(X, y))
	for _, tr := range cb.Trees {
		assert.LessOrEqual(t, len(tr.Features), 6)
		assert.Len(t, tr.LeafValues, 1<<len(tr.Features))
	}

	pred, err := cb.Predict(X)
	require.NoError(t, err)
	r2, err := metrics.R2Score(y, pred)
	require.NoError(t, err)
	assert.Greater(t, r2, 0.9)
}

func TestBoosting_Params(t *testing.T) {
	cb := NewCatBoostRegressor()
	require.NoError(t, cb.SetParams(model.Params{"depth": 8, "learning_rate": 0.05, "iterations": 30}))
	assert.Equal(t, 8, cb.Depth)
	assert.Equal(t, 30, cb.Iterations)

	var vErr *errors.ValidationError
	assert.True(t, errors.As(cb.SetParams(model.Params{"depth": 17}), &vErr))
	assert.True(t, errors.As(cb.SetParams(model.Params{"n_estimators": 10}), &vErr))

	xgb := NewXGBRegressor()
	require.NoError(t, xgb.SetParams(model.Params{"learning_rate": 0.01, "n_estimators": 8}))
	assert.Equal(t, 0.01, xgb.GetParams()["learning_rate"])
	assert.True(t, errors.As(xgb.SetParams(model.Params{"max_bin": 1000}), &vErr))
}

func TestBoosting_RoundTripAndNotFitted(t *testing.T) {
	X, y := quadratic(12)

	for _, tc := range []struct {
		name     string
		est      model.Regressor
		restored model.Regressor
	}{
		{"xgb", NewXGBRegressor(WithXGBNEstimators(8)), &XGBRegressor{}},
		{"catboost", NewCatBoostRegressor(WithIterations(8)), &CatBoostRegressor{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.est.Predict(X)
			var nf *errors.NotFittedError
			assert.True(t, errors.As(err, &nf))

			require.NoError(t, tc.est.Fit(X, y))
			want, err := tc.est.Predict(X)
			require.NoError(t, err)

			require.NoError(t, model.Clone(tc.est, tc.restored))
			got, err := tc.restored.Predict(X)
			require.NoError(t, err)
			assert.True(t, mat.Equal(want, got))
		})
	}
}

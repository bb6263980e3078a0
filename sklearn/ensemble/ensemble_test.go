package ensemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/examscore/core/model"
	"github.com/YuminosukeSato/examscore/metrics"
	"github.com/YuminosukeSato/examscore/pkg/errors"
	"github.com/YuminosukeSato/examscore/sklearn/tree"
)

// curve returns n rows of x in [0, n) with y = f(x)
func curve(n int, f func(x float64) float64) (*mat.Dense, *mat.VecDense) {
	X := mat.NewDense(n, 2, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		x := float64(i)
		X.Set(i, 0, x)
		X.Set(i, 1, float64(i%3))
		y.SetVec(i, f(x))
	}
	return X, y
}

func trainR2(t *testing.T, est model.Regressor, X mat.Matrix, y mat.Vector) float64 {
	t.Helper()
	require.NoError(t, est.Fit(X, y))
	pred, err := est.Predict(X)
	require.NoError(t, err)
	r2, err := metrics.R2Score(y, pred)
	require.NoError(t, err)
	return r2
}

func predictions(t *testing.T, est model.Regressor, X mat.Matrix, y mat.Vector) *mat.VecDense {
	t.Helper()
	require.NoError(t, est.Fit(X, y))
	pred, err := est.Predict(X)
	require.NoError(t, err)
	return pred
}

func TestRandomForestRegressor_Fit(t *testing.T) {
	X, y := curve(20, func(x float64) float64 { return 2 * x })

	rf := NewRandomForestRegressor(WithNEstimators(10), WithForestRandomState(42))
	r2 := trainR2(t, rf, X, y)
	assert.Greater(t, r2, 0.9)
	assert.Len(t, rf.Trees, 10)

	importances := rf.FeatureImportances()
	assert.InDelta(t, 1.0, importances[0]+importances[1], 1e-9)
	assert.Greater(t, importances[0], importances[1])
}

func TestRandomForestRegressor_Deterministic(t *testing.T) {
	X, y := curve(20, func(x float64) float64 { return x * x })

	a := predictions(t, NewRandomForestRegressor(WithNEstimators(8), WithForestRandomState(42), WithNJobs(1)), X, y)
	b := predictions(t, NewRandomForestRegressor(WithNEstimators(8), WithForestRandomState(42), WithNJobs(4)), X, y)
	assert.True(t, mat.Equal(a, b), "same seed must give the same forest regardless of worker count")
}

func TestRandomForestRegressor_NoBootstrapMatchesTree(t *testing.T) {
	X, y := curve(15, func(x float64) float64 { return x*x - 3*x })

	rf := NewRandomForestRegressor(WithNEstimators(3), WithBootstrap(false))
	forest := predictions(t, rf, X, y)
	single := predictions(t, tree.NewDecisionTreeRegressor(), X, y)
	assert.True(t, mat.EqualApprox(forest, single, 1e-12))
}

func TestGradientBoostingRegressor_Fit(t *testing.T) {
	X, y := curve(20, func(x float64) float64 { return x * x })

	gb := NewGradientBoostingRegressor(WithGBNEstimators(100), WithGBLearningRate(0.1))
	r2 := trainR2(t, gb, X, y)
	assert.Greater(t, r2, 0.95)
	require.Len(t, gb.TrainScore, 100)

	// with every row in-bag the squared loss never increases
	for i := 1; i < len(gb.TrainScore); i++ {
		assert.LessOrEqual(t, gb.TrainScore[i], gb.TrainScore[i-1]+1e-9, "stage %d", i)
	}
}

func TestGradientBoostingRegressor_Subsample(t *testing.T) {
	X, y := curve(20, func(x float64) float64 { return 3*x + 1 })

	newGB := func() *GradientBoostingRegressor {
		return NewGradientBoostingRegressor(
			WithGBNEstimators(30), WithSubsample(0.6), WithGBRandomState(42))
	}
	a := predictions(t, newGB(), X, y)
	b := predictions(t, newGB(), X, y)
	assert.True(t, mat.Equal(a, b))

	gb := newGB()
	require.NoError(t, gb.Fit(X, y))
	assert.Len(t, gb.Trees, 30)
	for _, dt := range gb.Trees {
		assert.Equal(t, 12, dt.Nodes[0].NSamples)
	}
}

func TestGradientBoostingRegressor_Params(t *testing.T) {
	gb := NewGradientBoostingRegressor()
	require.NoError(t, gb.SetParams(model.Params{"learning_rate": 0.05, "subsample": 0.8, "n_estimators": 16}))
	assert.Equal(t, 0.05, gb.LearningRate)
	assert.Equal(t, 0.8, gb.Subsample)
	assert.Equal(t, 16, gb.NEstimators)

	var vErr *errors.ValidationError
	assert.True(t, errors.As(gb.SetParams(model.Params{"subsample": 1.5}), &vErr))
	assert.True(t, errors.As(gb.SetParams(model.Params{"loss": "huber"}), &vErr))
}

func TestAdaBoostRegressor_Fit(t *testing.T) {
	X, y := curve(20, func(x float64) float64 { return x })

	ab := NewAdaBoostRegressor(WithAdaNEstimators(16), WithAdaRandomState(42))
	r2 := trainR2(t, ab, X, y)
	assert.Greater(t, r2, 0.8)

	require.NotEmpty(t, ab.Estimators)
	assert.LessOrEqual(t, len(ab.Estimators), 16)
	assert.Len(t, ab.EstimatorWeights, len(ab.Estimators))
	for _, w := range ab.EstimatorWeights {
		assert.Greater(t, w, 0.0)
	}

	pred, err := ab.Predict(X)
	require.NoError(t, err)
	for i := 0; i < pred.Len(); i++ {
		assert.GreaterOrEqual(t, pred.AtVec(i), 0.0)
		assert.LessOrEqual(t, pred.AtVec(i), 19.0)
	}
}

func TestAdaBoostRegressor_Deterministic(t *testing.T) {
	X, y := curve(20, func(x float64) float64 { return x*x - 10*x })

	newAB := func() *AdaBoostRegressor {
		return NewAdaBoostRegressor(WithAdaNEstimators(8), WithAdaLearningRate(0.5), WithAdaRandomState(42))
	}
	assert.True(t, mat.Equal(predictions(t, newAB(), X, y), predictions(t, newAB(), X, y)))
}

func TestEnsembles_NotFitted(t *testing.T) {
	X := mat.NewDense(1, 2, []float64{1, 2})
	for _, est := range []model.Regressor{
		NewRandomForestRegressor(),
		NewGradientBoostingRegressor(),
		NewAdaBoostRegressor(),
	} {
		_, err := est.Predict(X)
		var nf *errors.NotFittedError
		assert.True(t, errors.As(err, &nf), "%T", est)
	}
}

func TestEnsembles_GobRoundTrip(t *testing.T) {
	X, y := curve(12, func(x float64) float64 { return 5 - x })

	rf := NewRandomForestRegressor(WithNEstimators(4), WithForestRandomState(42))
	want := predictions(t, rf, X, y)

	var restored RandomForestRegressor
	require.NoError(t, model.Clone(rf, &restored))
	got, err := restored.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}

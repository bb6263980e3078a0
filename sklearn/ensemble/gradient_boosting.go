package ensemble

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/examscore/core/model"
	"github.com/YuminosukeSato/examscore/pkg/errors"
	"github.com/YuminosukeSato/examscore/sklearn/tree"
)

var _ model.Regressor = (*GradientBoostingRegressor)(nil)

// GradientBoostingRegressor は二乗誤差の勾配ブースティング
//
// 初期予測はyの平均。各ステージで残差に friedman_mse の回帰木を当て、
// learning_rate を掛けて加算する。subsample < 1 のときは各ステージで
// 非復元抽出した行のみで木を学習する（確率的勾配ブースティング）。
type GradientBoostingRegressor struct {
	model.BaseEstimator

	NEstimators  int
	LearningRate float64
	Subsample    float64
	MaxDepth     int
	RandomState  int64

	InitValue  float64
	Trees      []*tree.DecisionTreeRegressor
	TrainScore []float64 // in-bag MSE after each stage
	NFeatures  int
}

// GBOption configures a GradientBoostingRegressor
type GBOption func(*GradientBoostingRegressor)

// NewGradientBoostingRegressor creates a booster with scikit-learn's defaults
func NewGradientBoostingRegressor(opts ...GBOption) *GradientBoostingRegressor {
	gb := &GradientBoostingRegressor{
		NEstimators:  100,
		LearningRate: 0.1,
		Subsample:    1.0,
		MaxDepth:     3,
	}
	for _, opt := range opts {
		opt(gb)
	}
	return gb
}

// WithGBNEstimators sets the number of boosting stages
func WithGBNEstimators(n int) GBOption {
	return func(gb *GradientBoostingRegressor) { gb.NEstimators = n }
}

// WithGBLearningRate sets the shrinkage applied to each stage
func WithGBLearningRate(lr float64) GBOption {
	return func(gb *GradientBoostingRegressor) { gb.LearningRate = lr }
}

// WithSubsample sets the row fraction used by each stage
func WithSubsample(s float64) GBOption {
	return func(gb *GradientBoostingRegressor) { gb.Subsample = s }
}

// WithGBRandomState sets the seed of the row subsampling
func WithGBRandomState(seed int64) GBOption {
	return func(gb *GradientBoostingRegressor) { gb.RandomState = seed }
}

func (gb *GradientBoostingRegressor) validate() error {
	if gb.NEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", gb.NEstimators)
	}
	if gb.LearningRate <= 0 {
		return errors.NewValidationError("learning_rate", "must be > 0", gb.LearningRate)
	}
	if gb.Subsample <= 0 || gb.Subsample > 1 {
		return errors.NewValidationError("subsample", "must be in (0, 1]", gb.Subsample)
	}
	if gb.MaxDepth < 0 {
		return errors.NewValidationError("max_depth", "must be >= 0", gb.MaxDepth)
	}
	return nil
}

// Fit はブースティングでモデルを学習する
func (gb *GradientBoostingRegressor) Fit(X mat.Matrix, y mat.Vector) (err error) {
	defer errors.Recover(&err, "GradientBoostingRegressor.Fit")

	r, c, err := model.CheckFitInput("GradientBoostingRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	if err := gb.validate(); err != nil {
		return err
	}

	cols := tree.Columns(X)
	ys := model.VecToSlice(y)
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = model.RowToSlice(X, i)
	}

	gb.InitValue = floats.Sum(ys) / float64(r)
	raw := make([]float64, r)
	for i := range raw {
		raw[i] = gb.InitValue
	}

	nInBag := max(1, int(gb.Subsample*float64(r)))
	rng := rand.New(rand.NewPCG(uint64(gb.RandomState), 0))
	residual := make([]float64, r)

	gb.Trees = make([]*tree.DecisionTreeRegressor, 0, gb.NEstimators)
	gb.TrainScore = make([]float64, 0, gb.NEstimators)
	for stage := 0; stage < gb.NEstimators; stage++ {
		floats.SubTo(residual, ys, raw)

		var idx []int
		if nInBag < r {
			idx = rng.Perm(r)[:nInBag]
			sort.Ints(idx)
		} else {
			idx = make([]int, r)
			for i := range idx {
				idx[i] = i
			}
		}

		dt := tree.NewDecisionTreeRegressor(
			tree.WithCriterion(tree.CriterionFriedmanMSE),
			tree.WithMaxDepth(gb.MaxDepth),
		)
		if err := dt.FitColumns(cols, residual, idx); err != nil {
			return errors.Wrapf(err, "stage %d", stage)
		}
		for i, row := range rows {
			raw[i] += gb.LearningRate * dt.PredictRow(row)
		}
		gb.Trees = append(gb.Trees, dt)

		var loss float64
		for _, i := range idx {
			d := ys[i] - raw[i]
			loss += d * d
		}
		gb.TrainScore = append(gb.TrainScore, loss/float64(len(idx)))
	}

	gb.NFeatures = c
	gb.SetFitted()
	return nil
}

// Predict は入力データに対する予測を行う
func (gb *GradientBoostingRegressor) Predict(X mat.Matrix) (*mat.VecDense, error) {
	r, err := model.CheckPredictInput("GradientBoostingRegressor", gb.IsFitted(), gb.NFeatures, X)
	if err != nil {
		return nil, err
	}
	pred := mat.NewVecDense(r, nil)
	row := make([]float64, gb.NFeatures)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		v := gb.InitValue
		for _, t := range gb.Trees {
			v += gb.LearningRate * t.PredictRow(row)
		}
		pred.SetVec(i, v)
	}
	return pred, nil
}

// GetParams はハイパーパラメータを返す
func (gb *GradientBoostingRegressor) GetParams() model.Params {
	return model.Params{
		"n_estimators":  gb.NEstimators,
		"learning_rate": gb.LearningRate,
		"subsample":     gb.Subsample,
		"max_depth":     gb.MaxDepth,
		"random_state":  int(gb.RandomState),
	}
}

// SetParams はハイパーパラメータを設定する
func (gb *GradientBoostingRegressor) SetParams(params model.Params) error {
	if err := params.CheckKeys("GradientBoostingRegressor",
		"n_estimators", "learning_rate", "subsample", "max_depth", "random_state"); err != nil {
		return err
	}
	var err error
	if gb.NEstimators, err = params.GetInt("n_estimators", gb.NEstimators); err != nil {
		return err
	}
	if gb.LearningRate, err = params.GetFloat64("learning_rate", gb.LearningRate); err != nil {
		return err
	}
	if gb.Subsample, err = params.GetFloat64("subsample", gb.Subsample); err != nil {
		return err
	}
	if gb.MaxDepth, err = params.GetInt("max_depth", gb.MaxDepth); err != nil {
		return err
	}
	seed, err := params.GetInt("random_state", int(gb.RandomState))
	if err != nil {
		return err
	}
	gb.RandomState = int64(seed)
	return gb.validate()
}

func (gb *GradientBoostingRegressor) String() string {
	return fmt.Sprintf("GradientBoostingRegressor(n_estimators=%d, learning_rate=%g, subsample=%g)",
		gb.NEstimators, gb.LearningRate, gb.Subsample)
}

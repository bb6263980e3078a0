package linear

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/examscore/core/model"
	"github.com/YuminosukeSato/examscore/core/parallel"
	"github.com/YuminosukeSato/examscore/metrics"
	"github.com/YuminosukeSato/examscore/pkg/errors"
)

var (
	_ model.Regressor   = (*LinearRegression)(nil)
	_ model.LinearModel = (*LinearRegression)(nil)
)

// LinearRegression は最小二乗法による線形回帰モデル
//
// 係数は中心化したXとyに対する最小二乗問題をSVDで解いて求める。
// One-Hot列のように多重共線性があってランク落ちしていても、
// 最小ノルム解を返すので正規方程式の逆行列のように失敗しない。
type LinearRegression struct {
	model.BaseEstimator // BaseEstimatorを埋め込み

	Coef         []float64 // 重み（係数）
	InterceptVal float64   // 切片
	NFeatures    int       // 特徴量の数
	Rank         int       // 中心化したXの実効ランク

	FitIntercept bool
}

// NewLinearRegression は新しい線形回帰モデルを作成する
func NewLinearRegression(opts ...Option) *LinearRegression {
	lr := &LinearRegression{FitIntercept: true}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Fit はモデルを訓練データで学習させる
func (lr *LinearRegression) Fit(X mat.Matrix, y mat.Vector) (err error) {
	defer errors.Recover(&err, "LinearRegression.Fit")

	r, c, err := model.CheckFitInput("LinearRegression.Fit", X, y)
	if err != nil {
		return err
	}

	xMean := make([]float64, c)
	yMean := 0.0
	if lr.FitIntercept {
		for j := 0; j < c; j++ {
			xMean[j] = floats.Sum(mat.Col(nil, j, X)) / float64(r)
		}
		yMean = floats.Sum(model.VecToSlice(y)) / float64(r)
	}

	// 並列処理の閾値（この値以下の行数では逐次処理を使用）
	const parallelThreshold = 1000

	Xc := mat.NewDense(r, c, nil)
	yc := mat.NewVecDense(r, nil)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < c; j++ {
				Xc.Set(i, j, X.At(i, j)-xMean[j])
			}
			yc.SetVec(i, y.AtVec(i)-yMean)
		}
	})

	var svd mat.SVD
	if ok := svd.Factorize(Xc, mat.SVDThin); !ok {
		return errors.NewModelError("LinearRegression.Fit", "SVD did not converge", errors.ErrSingularMatrix)
	}

	// numpy.linalg.lstsq と同じ打ち切り: eps * max(n_samples, n_features)
	rcond := math.Nextafter(1, 2) - 1
	rcond *= float64(max(r, c))
	rank := 0
	if values := svd.Values(nil); len(values) > 0 && values[0] > 0 {
		rank = svd.Rank(rcond)
	}
	if rank == 0 {
		// 全列が定数。切片のみのモデル
		lr.Coef = make([]float64, c)
	} else {
		w := mat.NewVecDense(c, nil)
		svd.SolveVecTo(w, yc, rank)
		lr.Coef = model.VecToSlice(w)
	}
	if err := errors.CheckMatrix("LinearRegression.Fit", mat.NewVecDense(c, lr.Coef), c, 1, -1); err != nil {
		return err
	}

	lr.InterceptVal = yMean - floats.Dot(xMean, lr.Coef)
	lr.NFeatures = c
	lr.Rank = rank
	lr.SetFitted()
	return nil
}

// Predict は入力データに対する予測を行う
func (lr *LinearRegression) Predict(X mat.Matrix) (*mat.VecDense, error) {
	r, err := model.CheckPredictInput("LinearRegression", lr.IsFitted(), lr.NFeatures, X)
	if err != nil {
		return nil, err
	}

	// 予測: y = X * weights + intercept
	pred := mat.NewVecDense(r, nil)
	pred.MulVec(X, mat.NewVecDense(lr.NFeatures, lr.Coef))
	for i := 0; i < r; i++ {
		pred.SetVec(i, pred.AtVec(i)+lr.InterceptVal)
	}
	return pred, nil
}

// Weights は学習された重み（係数）のコピーを返す
func (lr *LinearRegression) Weights() []float64 {
	return append([]float64(nil), lr.Coef...)
}

// Intercept は学習された切片を返す
func (lr *LinearRegression) Intercept() float64 {
	return lr.InterceptVal
}

// Score はモデルの決定係数（R²）を計算する
func (lr *LinearRegression) Score(X mat.Matrix, y mat.Vector) (float64, error) {
	yPred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2Score(y, yPred)
}

// GetParams はハイパーパラメータを返す。探索対象のパラメータはない
func (lr *LinearRegression) GetParams() model.Params {
	return model.Params{}
}

// SetParams はハイパーパラメータを設定する。空以外はエラー
func (lr *LinearRegression) SetParams(params model.Params) error {
	return params.CheckKeys("LinearRegression")
}

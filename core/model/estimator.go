package model

import (
	"gonum.org/v1/gonum/mat"

	esErrors "github.com/YuminosukeSato/examscore/pkg/errors"
)

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X mat.Matrix, y mat.Vector) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データの各行に対する予測値を返す
	Predict(X mat.Matrix) (*mat.VecDense, error)
}

// Regressor は回帰モデルのインターフェース。
// カタログの全ての候補モデルがこれを実装する。
type Regressor interface {
	Fitter
	Predictor

	// GetParams は現在のハイパーパラメータのコピーを返す
	GetParams() Params

	// SetParams はハイパーパラメータを設定する。未知のキーや不正な値はエラー
	SetParams(params Params) error

	// IsFitted はモデルが学習済みかどうかを返す
	IsFitted() bool
}

// Factory は未学習の回帰モデルを既定のハイパーパラメータで生成する。
// グリッドサーチは各ジョブで新しいインスタンスを生成するため、
// Factory は呼び出しごとに独立した値を返さなければならない。
type Factory func() Regressor

// LinearModel は線形モデルのインターフェース
type LinearModel interface {
	// Weights は学習された重み（係数）を返す
	Weights() []float64
	// Intercept は学習された切片を返す
	Intercept() float64
}

// CheckFitInput はFitの入力を検証し、サンプル数と特徴量数を返す
func CheckFitInput(op string, X mat.Matrix, y mat.Vector) (int, int, error) {
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return 0, 0, esErrors.Wrapf(esErrors.ErrEmptyData, "%s", op)
	}
	if y.Len() != rows {
		return 0, 0, esErrors.NewDimensionError(op, rows, y.Len(), 0)
	}
	if err := esErrors.CheckMatrix(op, X, rows, cols, -1); err != nil {
		return 0, 0, err
	}
	if err := esErrors.CheckMatrix(op, y, rows, 1, -1); err != nil {
		return 0, 0, err
	}
	return rows, cols, nil
}

// CheckPredictInput は学習済みであることと特徴量数の一致を検証し、サンプル数を返す
func CheckPredictInput(modelName string, fitted bool, nFeatures int, X mat.Matrix) (int, error) {
	if !fitted {
		return 0, esErrors.NewNotFittedError(modelName, "Predict")
	}
	rows, cols := X.Dims()
	if cols != nFeatures {
		return 0, esErrors.NewDimensionError(modelName+".Predict", nFeatures, cols, 1)
	}
	if rows == 0 {
		return 0, esErrors.Wrapf(esErrors.ErrEmptyData, "%s.Predict", modelName)
	}
	return rows, nil
}

// VecToSlice はベクトルの値を新しいスライスにコピーする
func VecToSlice(v mat.Vector) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// RowToSlice は行列のi行目を新しいスライスにコピーする
func RowToSlice(X mat.Matrix, i int) []float64 {
	_, cols := X.Dims()
	out := make([]float64, cols)
	for j := range out {
		out[j] = X.At(i, j)
	}
	return out
}

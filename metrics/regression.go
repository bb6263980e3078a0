// Package metrics は回帰モデルの評価指標を提供する
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/examscore/pkg/errors"
)

func checkPair(op string, yTrue, yPred mat.Vector) (int, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// residuals は yTrue - yPred を返す
func residuals(yTrue, yPred mat.Vector, n int) []float64 {
	r := make([]float64, n)
	for i := range r {
		r[i] = yTrue.AtVec(i) - yPred.AtVec(i)
	}
	return r
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred mat.Vector) (float64, error) {
	n, err := checkPair("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	r := residuals(yTrue, yPred, n)
	return floats.Dot(r, r) / float64(n), nil
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred mat.Vector) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred mat.Vector) (float64, error) {
	n, err := checkPair("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return floats.Norm(residuals(yTrue, yPred, n), 1) / float64(n), nil
}

// R2Score は決定係数（R²）を計算する
//
// yTrueの全変動が0の場合、R²は定義できない。このときは
// 予測が完全一致なら1、そうでなければ0を返し、UndefinedMetricWarningを発する。
// グリッドサーチ中に1サンプルの検証foldが生じても学習ランを止めないため。
func R2Score(yTrue, yPred mat.Vector) (float64, error) {
	n, err := checkPair("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	yt := make([]float64, n)
	for i := range yt {
		yt[i] = yTrue.AtVec(i)
	}
	mean := floats.Sum(yt) / float64(n)

	var tss float64
	for _, v := range yt {
		tss += (v - mean) * (v - mean)
	}
	r := residuals(yTrue, yPred, n)
	rss := floats.Dot(r, r)

	if tss == 0 {
		result := 0.0
		if rss == 0 {
			result = 1.0
		}
		errors.Warn(errors.NewUndefinedMetricWarning("R2Score", "zero variance in y_true", result))
		return result, nil
	}

	// R² = 1 - RSS/TSS
	return 1 - rss/tss, nil
}

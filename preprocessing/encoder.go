package preprocessing

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/examscore/core/model"
	esErrors "github.com/YuminosukeSato/examscore/pkg/errors"
)

// OneHotEncoder はscikit-learn互換のOne-Hotエンコーダー
// カテゴリカルな文字列データを0/1のバイナリベクトルに変換する。
// 学習時に見ていないカテゴリはその特徴量のブロックが全て0になる（handle_unknown="ignore"）
type OneHotEncoder struct {
	model.BaseEstimator

	// Categories は各特徴量のカテゴリ一覧（ソート済み）
	Categories [][]string

	// CategoryToIdx は各特徴量のカテゴリ→インデックスマップ
	CategoryToIdx []map[string]int

	// NFeatures は入力特徴量数
	NFeatures int

	// NOutputs は出力特徴量数（全カテゴリの合計数）
	NOutputs int
}

// NewOneHotEncoder は新しいOneHotEncoderを作成する
//
// 使用例:
//
//	encoder := preprocessing.NewOneHotEncoder()
//	err := encoder.Fit(data)
//	encoded, err := encoder.Transform(data)
func NewOneHotEncoder() *OneHotEncoder {
	return &OneHotEncoder{}
}

// Fit は訓練データからカテゴリ情報を学習する
//
// パラメータ:
//   - data: 訓練データ (n_samples × n_features の文字列スライス)
func (e *OneHotEncoder) Fit(data [][]string) (err error) {
	defer esErrors.Recover(&err, "OneHotEncoder.Fit")
	if len(data) == 0 || len(data[0]) == 0 {
		return esErrors.NewModelError("OneHotEncoder.Fit", "empty data", esErrors.ErrEmptyData)
	}

	nFeatures := len(data[0])
	for i, row := range data {
		if len(row) != nFeatures {
			return esErrors.NewDimensionError("OneHotEncoder.Fit", nFeatures, len(row), i)
		}
	}

	e.NFeatures = nFeatures
	e.Categories = make([][]string, nFeatures)
	e.CategoryToIdx = make([]map[string]int, nFeatures)
	e.NOutputs = 0

	for j := 0; j < nFeatures; j++ {
		seen := make(map[string]bool)
		for _, row := range data {
			seen[row[j]] = true
		}
		categories := make([]string, 0, len(seen))
		for category := range seen {
			categories = append(categories, category)
		}
		sort.Strings(categories)

		index := make(map[string]int, len(categories))
		for idx, category := range categories {
			index[category] = idx
		}
		e.Categories[j] = categories
		e.CategoryToIdx[j] = index
		e.NOutputs += len(categories)
	}

	e.SetFitted()
	return nil
}

// Transform は学習済みのカテゴリ情報を使ってデータをone-hot encodingする
func (e *OneHotEncoder) Transform(data [][]string) (_ *mat.Dense, err error) {
	defer esErrors.Recover(&err, "OneHotEncoder.Transform")
	if !e.IsFitted() {
		return nil, esErrors.NewNotFittedError("OneHotEncoder", "Transform")
	}
	if len(data) == 0 {
		return nil, esErrors.NewModelError("OneHotEncoder.Transform", "empty data", esErrors.ErrEmptyData)
	}

	result := mat.NewDense(len(data), e.NOutputs, nil)
	for i, row := range data {
		if len(row) != e.NFeatures {
			return nil, esErrors.NewDimensionError("OneHotEncoder.Transform", e.NFeatures, len(row), 1)
		}
		offset := 0
		for j, category := range row {
			if idx, ok := e.CategoryToIdx[j][category]; ok {
				result.Set(i, offset+idx, 1.0)
			}
			offset += len(e.Categories[j])
		}
	}
	return result, nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (e *OneHotEncoder) FitTransform(data [][]string) (*mat.Dense, error) {
	if err := e.Fit(data); err != nil {
		return nil, err
	}
	return e.Transform(data)
}

// GetFeatureNamesOut は変換後の特徴量の名前を返す
//
// 例:
//   - 入力特徴量名が["gender", "lunch"]の場合
//   - 出力: ["gender_female", "gender_male", "lunch_free/reduced", "lunch_standard"]
func (e *OneHotEncoder) GetFeatureNamesOut(inputFeatures []string) []string {
	if !e.IsFitted() {
		return nil
	}

	var out []string
	for i, categories := range e.Categories {
		name := fmt.Sprintf("x%d", i)
		if i < len(inputFeatures) {
			name = inputFeatures[i]
		}
		for _, category := range categories {
			out = append(out, name+"_"+category)
		}
	}
	return out
}

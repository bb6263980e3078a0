// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// 学習・選択・永続化・推論の各境界で発生するエラーを型付きで表現し、
// cockroachdb/errors によるスタックトレースを保持したまま呼び出し元へ伝播させます。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler func(w error)
	defaultHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("examscore-warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler はライブラリ全体の警告ハンドラを設定します。
// 設定されたハンドラはzerolog出力より優先されます。nilを渡すと既定の動作に戻ります。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// 明示的なハンドラ、zerolog、標準logの順に使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	switch {
	case warningHandler != nil:
		warningHandler(w)
	case zerologWarnFunc != nil:
		zerologWarnFunc(w)
	default:
		defaultHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// UndefinedMetricWarning は評価指標が定義できない場合に発生する警告です。
// 例えば、正解値の分散が0のときの決定係数など。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64 // この条件で返される値
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result).
		Str("type", "UndefinedMetricWarning")
}

// NewUndefinedMetricWarning は新しいUndefinedMetricWarningを作成します。
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// ParameterAdjustedWarning はハイパーパラメータがデータに合わせて補正された場合の警告です。
// 例えば、近傍数が学習サンプル数を超えた場合など。
type ParameterAdjustedWarning struct {
	Estimator string
	Param     string
	From      interface{}
	To        interface{}
}

func (w *ParameterAdjustedWarning) Error() string {
	return fmt.Sprintf("%s: parameter '%s' adjusted from %v to %v to fit the training data", w.Estimator, w.Param, w.From, w.To)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *ParameterAdjustedWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("estimator", w.Estimator).
		Str("param", w.Param).
		Interface("from", w.From).
		Interface("to", w.To).
		Str("type", "ParameterAdjustedWarning")
}

// NewParameterAdjustedWarning は新しいParameterAdjustedWarningを作成します。
func NewParameterAdjustedWarning(estimator, param string, from, to interface{}) *ParameterAdjustedWarning {
	return &ParameterAdjustedWarning{Estimator: estimator, Param: param, From: from, To: to}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で `Predict` や `Transform` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("examscore: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("examscore: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("examscore: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("examscore: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ModelError は機械学習モデルに関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("examscore: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("examscore: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	modelErr := &ModelError{Op: op, Kind: kind, Err: err}
	return errors.WithStack(modelErr)
}

// ===========================================================================
//
//	学習パイプライン固有のエラー型
//
// ===========================================================================

// SchemaError は必須カラムの欠落や不正な値など、入力テーブルがスキーマに
// 合致しない場合のエラーです。
type SchemaError struct {
	Op     string
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("examscore: %s: schema violation on column '%s': %s", e.Op, e.Column, e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *SchemaError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("column", e.Column).
		Str("reason", e.Reason).
		Str("type", "SchemaError")
}

// NewSchemaError は新しいSchemaErrorを作成し、スタックトレースを付与します。
func NewSchemaError(op, column, reason string) error {
	err := &SchemaError{Op: op, Column: column, Reason: reason}
	return errors.WithStack(err)
}

// NoAcceptableModelError は最良モデルのテストスコアが受け入れ閾値を下回った場合のエラーです。
// 低品質なモデルが黙ってデプロイされないよう、学習ランはここで停止します。
type NoAcceptableModelError struct {
	BestModel string
	BestScore float64
	Threshold float64
}

func (e *NoAcceptableModelError) Error() string {
	return fmt.Sprintf("examscore: no acceptable model found: best candidate '%s' scored %.4f, below threshold %.4f",
		e.BestModel, e.BestScore, e.Threshold)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NoAcceptableModelError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("best_model", e.BestModel).
		Float64("best_score", e.BestScore).
		Float64("threshold", e.Threshold).
		Str("type", "NoAcceptableModelError")
}

// NewNoAcceptableModelError は新しいNoAcceptableModelErrorを作成し、スタックトレースを付与します。
func NewNoAcceptableModelError(bestModel string, bestScore, threshold float64) error {
	err := &NoAcceptableModelError{BestModel: bestModel, BestScore: bestScore, Threshold: threshold}
	return errors.WithStack(err)
}

// ArtifactNotFoundError は永続化されたアーティファクトが指定パスに存在しない場合のエラーです。
type ArtifactNotFoundError struct {
	Path string
}

func (e *ArtifactNotFoundError) Error() string {
	return fmt.Sprintf("examscore: artifact not found at '%s'", e.Path)
}

// NewArtifactNotFoundError は新しいArtifactNotFoundErrorを作成し、スタックトレースを付与します。
func NewArtifactNotFoundError(path string) error {
	return errors.WithStack(&ArtifactNotFoundError{Path: path})
}

// CorruptArtifactError はアーティファクトのデシリアライズに失敗した場合のエラーです。
// 失敗を握りつぶさず、必ず呼び出し元へ伝播させます。
type CorruptArtifactError struct {
	Path string
	Err  error
}

func (e *CorruptArtifactError) Error() string {
	return fmt.Sprintf("examscore: corrupt artifact at '%s': %v", e.Path, e.Err)
}

func (e *CorruptArtifactError) Unwrap() error {
	return e.Err
}

// NewCorruptArtifactError は新しいCorruptArtifactErrorを作成し、スタックトレースを付与します。
func NewCorruptArtifactError(path string, err error) error {
	return errors.WithStack(&CorruptArtifactError{Path: path, Err: err})
}

// InferenceError は推論中に発生したあらゆる失敗をラップするエラーです。
// 元のエラー（とそのスタックトレース）は Unwrap で取り出せます。
type InferenceError struct {
	Op  string
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("examscore: inference failed in %s: %v", e.Op, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InferenceError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("cause", e.Err.Error()).
		Str("type", "InferenceError")
}

// NewInferenceError は新しいInferenceErrorを作成し、スタックトレースを付与します。
func NewInferenceError(op string, err error) error {
	return errors.WithStack(&InferenceError{Op: op, Err: err})
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix は特異行列の場合のエラーです。
	ErrSingularMatrix = New("singular matrix")
)

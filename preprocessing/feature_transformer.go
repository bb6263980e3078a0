package preprocessing

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/examscore/core/model"
	"github.com/YuminosukeSato/examscore/dataset"
	esErrors "github.com/YuminosukeSato/examscore/pkg/errors"
	"github.com/YuminosukeSato/examscore/pkg/log"
)

// FeatureTransformer turns a raw student Frame into the model's feature
// matrix, the way a scikit-learn ColumnTransformer would:
//
//	numeric     → median imputation → standard scaling
//	categorical → most-frequent imputation → one-hot → standard scaling
//
// Output columns are the numeric block followed by the categorical block;
// the layout is fixed by Fit and never changes afterwards. Transform does not
// mutate the receiver, so a fitted transformer may be shared by concurrent
// callers.
type FeatureTransformer struct {
	model.BaseEstimator

	NumericColumns     []string
	CategoricalColumns []string

	NumericImputer     *SimpleImputer
	NumericScaler      *StandardScaler
	CategoricalImputer *CategoricalImputer
	Encoder            *OneHotEncoder
	CategoricalScaler  *StandardScaler

	// OutputNames names every output column, e.g. "writing_score", "lunch_standard".
	OutputNames []string
}

// NewFeatureTransformer returns an unfit transformer wired for the student schema.
func NewFeatureTransformer() *FeatureTransformer {
	return NewFeatureTransformerFor(dataset.NumericColumns(), dataset.CategoricalColumns())
}

// NewFeatureTransformerFor returns an unfit transformer over the given columns.
func NewFeatureTransformerFor(numeric, categorical []string) *FeatureTransformer {
	return &FeatureTransformer{
		NumericColumns:     append([]string(nil), numeric...),
		CategoricalColumns: append([]string(nil), categorical...),
	}
}

// Fit learns imputation statistics, the vocabulary and scaling statistics
// from frame. A previously fitted state is replaced only on success.
func (t *FeatureTransformer) Fit(frame *dataset.Frame) (err error) {
	defer esErrors.Recover(&err, "FeatureTransformer.Fit")
	const op = "FeatureTransformer.Fit"

	if frame.Len() == 0 {
		return esErrors.NewModelError(op, "empty data", esErrors.ErrEmptyData)
	}

	numeric, err := t.numericMatrix(op, frame)
	if err != nil {
		return err
	}
	categorical, err := t.categoricalRows(op, frame)
	if err != nil {
		return err
	}

	numImputer := NewSimpleImputer(StrategyMedian)
	filled, err := numImputer.FitTransform(numeric)
	if err != nil {
		return esErrors.Wrapf(err, "%s: impute numeric columns %v", op, t.NumericColumns)
	}
	numScaler := NewStandardScalerDefault()
	if err := numScaler.Fit(filled); err != nil {
		return esErrors.Wrapf(err, "%s: scale numeric columns", op)
	}

	catImputer := NewCategoricalImputer()
	if err := catImputer.Fit(categorical); err != nil {
		return esErrors.Wrapf(err, "%s: impute categorical columns %v", op, t.CategoricalColumns)
	}
	imputed, err := catImputer.Transform(categorical)
	if err != nil {
		return err
	}
	encoder := NewOneHotEncoder()
	encoded, err := encoder.FitTransform(imputed)
	if err != nil {
		return esErrors.Wrapf(err, "%s: one-hot encode", op)
	}
	catScaler := NewStandardScalerDefault()
	if err := catScaler.Fit(encoded); err != nil {
		return esErrors.Wrapf(err, "%s: scale indicator columns", op)
	}

	t.NumericImputer = numImputer
	t.NumericScaler = numScaler
	t.CategoricalImputer = catImputer
	t.Encoder = encoder
	t.CategoricalScaler = catScaler
	t.OutputNames = append(append([]string(nil), t.NumericColumns...), encoder.GetFeatureNamesOut(t.CategoricalColumns)...)
	t.SetFitted()

	log.GetLoggerWithName("FeatureTransformer").Debug("Transformer fitted",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, frame.Len(),
		log.FeaturesKey, len(t.OutputNames),
		log.ScalerKey, numScaler.String(),
	)
	return nil
}

// Transform applies the learned statistics to frame. Extra columns are
// ignored; an absent or malformed feature column is a SchemaError.
func (t *FeatureTransformer) Transform(frame *dataset.Frame) (_ *mat.Dense, err error) {
	defer esErrors.Recover(&err, "FeatureTransformer.Transform")
	const op = "FeatureTransformer.Transform"

	if !t.IsFitted() {
		return nil, esErrors.NewNotFittedError("FeatureTransformer", "Transform")
	}
	if frame.Len() == 0 {
		return nil, esErrors.NewModelError(op, "empty data", esErrors.ErrEmptyData)
	}

	numeric, err := t.numericMatrix(op, frame)
	if err != nil {
		return nil, err
	}
	categorical, err := t.categoricalRows(op, frame)
	if err != nil {
		return nil, err
	}

	filled, err := t.NumericImputer.Transform(numeric)
	if err != nil {
		return nil, err
	}
	numScaled, err := t.NumericScaler.Transform(filled)
	if err != nil {
		return nil, err
	}
	imputed, err := t.CategoricalImputer.Transform(categorical)
	if err != nil {
		return nil, err
	}
	encoded, err := t.Encoder.Transform(imputed)
	if err != nil {
		return nil, err
	}
	catScaled, err := t.CategoricalScaler.Transform(encoded)
	if err != nil {
		return nil, err
	}

	rows := frame.Len()
	nNum := len(t.NumericColumns)
	out := mat.NewDense(rows, len(t.OutputNames), nil)
	out.Slice(0, rows, 0, nNum).(*mat.Dense).Copy(numScaled)
	out.Slice(0, rows, nNum, len(t.OutputNames)).(*mat.Dense).Copy(catScaled)

	if err := esErrors.CheckMatrix(op, out, rows, len(t.OutputNames), -1); err != nil {
		return nil, err
	}
	return out, nil
}

// FitTransform fits on frame and transforms it.
func (t *FeatureTransformer) FitTransform(frame *dataset.Frame) (*mat.Dense, error) {
	if err := t.Fit(frame); err != nil {
		return nil, err
	}
	return t.Transform(frame)
}

// FeatureNames returns the output column names; nil before Fit.
func (t *FeatureTransformer) FeatureNames() []string {
	return append([]string(nil), t.OutputNames...)
}

// NumFeatures returns the output width; 0 before Fit.
func (t *FeatureTransformer) NumFeatures() int {
	return len(t.OutputNames)
}

func (t *FeatureTransformer) numericMatrix(op string, frame *dataset.Frame) (*mat.Dense, error) {
	X := mat.NewDense(frame.Len(), len(t.NumericColumns), nil)
	for j, name := range t.NumericColumns {
		if !frame.Has(name) {
			return nil, esErrors.NewSchemaError(op, name, "column is missing")
		}
		cells, _ := frame.Column(name)
		for i, cell := range cells {
			v, missing, err := dataset.ParseNumeric(op, name, cell)
			if err != nil {
				return nil, err
			}
			if missing {
				v = math.NaN()
			}
			X.Set(i, j, v)
		}
	}
	return X, nil
}

func (t *FeatureTransformer) categoricalRows(op string, frame *dataset.Frame) ([][]string, error) {
	rows := make([][]string, frame.Len())
	for i := range rows {
		rows[i] = make([]string, len(t.CategoricalColumns))
	}
	for j, name := range t.CategoricalColumns {
		if !frame.Has(name) {
			return nil, esErrors.NewSchemaError(op, name, "column is missing")
		}
		cells, _ := frame.Column(name)
		for i, cell := range cells {
			rows[i][j] = strings.TrimSpace(cell)
		}
	}
	return rows, nil
}

// TransformerParams is a deep copy of everything a fitted
// FeatureTransformer has learned.
type TransformerParams struct {
	Medians          []float64
	NumericMean      []float64
	NumericScale     []float64
	MostFrequent     []string
	Categories       [][]string
	CategoricalMean  []float64
	CategoricalScale []float64
	OutputNames      []string
}

// Params returns a snapshot of the learned statistics, or NotFittedError.
func (t *FeatureTransformer) Params() (TransformerParams, error) {
	if !t.IsFitted() {
		return TransformerParams{}, esErrors.NewNotFittedError("FeatureTransformer", "Params")
	}
	cats := make([][]string, len(t.Encoder.Categories))
	for i, c := range t.Encoder.Categories {
		cats[i] = append([]string(nil), c...)
	}
	return TransformerParams{
		Medians:          append([]float64(nil), t.NumericImputer.Statistics...),
		NumericMean:      append([]float64(nil), t.NumericScaler.Mean...),
		NumericScale:     append([]float64(nil), t.NumericScaler.Scale...),
		MostFrequent:     append([]string(nil), t.CategoricalImputer.Statistics...),
		Categories:       cats,
		CategoricalMean:  append([]float64(nil), t.CategoricalScaler.Mean...),
		CategoricalScale: append([]float64(nil), t.CategoricalScaler.Scale...),
		OutputNames:      t.FeatureNames(),
	}, nil
}

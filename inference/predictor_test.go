package inference

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/examscore/artifact"
	"github.com/YuminosukeSato/examscore/config"
	"github.com/YuminosukeSato/examscore/dataset"
	"github.com/YuminosukeSato/examscore/dataset/datasettest"
	"github.com/YuminosukeSato/examscore/linear"
	"github.com/YuminosukeSato/examscore/pkg/errors"
	"github.com/YuminosukeSato/examscore/preprocessing"
)

// writeArtifacts fits a transformer and a linear model on 20 students and
// saves both under cfg.ArtifactDir.
func writeArtifacts(t *testing.T, cfg *config.Config) {
	t.Helper()
	frame := datasettest.StudentFrame(20)
	tr := preprocessing.NewFeatureTransformer()
	X, err := tr.FitTransform(frame)
	require.NoError(t, err)
	target, err := frame.Target(dataset.Target)
	require.NoError(t, err)

	lr := linear.NewLinearRegression()
	require.NoError(t, lr.Fit(X, mat.NewVecDense(len(target), target)))

	now := time.Now().UTC()
	require.NoError(t, artifact.SaveTransformer(cfg.PreprocessorPath(), &artifact.TransformerArtifact{
		RunID: "run-test", CreatedAt: now, Transformer: tr,
	}))
	require.NoError(t, artifact.SaveModel(cfg.ModelPath(), &artifact.ModelArtifact{
		RunID:        "run-test",
		Name:         "Linear Regression",
		Params:       lr.GetParams(),
		TestScore:    0.99,
		FeatureNames: tr.FeatureNames(),
		CreatedAt:    now,
		Model:        lr,
	}))
}

func newConfig(t *testing.T) *config.Config {
	return config.Default().WithArtifactDir(t.TempDir())
}

func TestPredictor_Predict(t *testing.T) {
	cfg := newConfig(t)
	writeArtifacts(t, cfg)
	p := NewPredictor(cfg)

	for _, rec := range datasettest.StudentRecords(24)[20:] {
		got, err := p.Predict(rec)
		require.NoError(t, err)
		assert.InDelta(t, datasettest.MathScore(rec.Gender, rec.ReadingScore, rec.WritingScore), got, 1e-6)
	}

	info, err := p.Info()
	require.NoError(t, err)
	assert.Equal(t, ModelInfo{RunID: "run-test", Name: "Linear Regression", TestScore: 0.99}, info)
}

func TestPredictor_PredictFrame(t *testing.T) {
	cfg := newConfig(t)
	writeArtifacts(t, cfg)
	p := NewPredictor(cfg)

	recs := datasettest.StudentRecords(5)
	frame := datasettest.StudentFrame(5)
	got, err := p.PredictFrame(frame)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i, rec := range recs {
		single, err := p.Predict(rec)
		require.NoError(t, err)
		assert.InDelta(t, single, got[i], 1e-9)
	}
}

func TestPredictor_MissingCategoryAccepted(t *testing.T) {
	cfg := newConfig(t)
	writeArtifacts(t, cfg)

	rec, err := dataset.RecordFromForm(func(key string) string {
		if key == dataset.FormReadingScore {
			return "70"
		}
		return ""
	})
	require.NoError(t, err)
	assert.Equal(t, dataset.MissingCategory, rec.Gender)

	got, err := NewPredictor(cfg).Predict(rec)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(got))
}

func TestPredictor_MissingArtifact(t *testing.T) {
	p := NewPredictor(newConfig(t))
	_, err := p.Predict(datasettest.StudentRecords(1)[0])

	var infErr *errors.InferenceError
	require.True(t, errors.As(err, &infErr))
	var notFound *errors.ArtifactNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestPredictor_LoadRetriesAfterFailure(t *testing.T) {
	cfg := newConfig(t)
	p := NewPredictor(cfg)
	require.Error(t, p.Load())

	writeArtifacts(t, cfg)
	require.NoError(t, p.Load())
	_, err := p.Predict(datasettest.StudentRecords(1)[0])
	assert.NoError(t, err)
}

func TestPredictor_CorruptArtifact(t *testing.T) {
	cfg := newConfig(t)
	writeArtifacts(t, cfg)
	require.NoError(t, os.WriteFile(cfg.ModelPath(), []byte("garbage"), 0o644))

	err := NewPredictor(cfg).Load()
	var infErr *errors.InferenceError
	require.True(t, errors.As(err, &infErr))
	var corrupt *errors.CorruptArtifactError
	assert.True(t, errors.As(err, &corrupt))
}

func TestPredictor_MismatchedArtifacts(t *testing.T) {
	cfg := newConfig(t)
	writeArtifacts(t, cfg)

	m, err := artifact.LoadModel(cfg.ModelPath())
	require.NoError(t, err)
	m.FeatureNames = m.FeatureNames[1:]
	require.NoError(t, artifact.SaveModel(cfg.ModelPath(), m))

	err = NewPredictor(cfg).Load()
	var corrupt *errors.CorruptArtifactError
	assert.True(t, errors.As(err, &corrupt))
}

func TestPredictor_SchemaErrorWrapped(t *testing.T) {
	cfg := newConfig(t)
	writeArtifacts(t, cfg)

	frame, err := dataset.NewFrame([]string{dataset.Gender}, [][]string{{"male"}})
	require.NoError(t, err)
	_, err = NewPredictor(cfg).PredictFrame(frame)

	var infErr *errors.InferenceError
	require.True(t, errors.As(err, &infErr))
	var schemaErr *errors.SchemaError
	assert.True(t, errors.As(err, &schemaErr))
}

func TestPredictor_Concurrent(t *testing.T) {
	cfg := newConfig(t)
	writeArtifacts(t, cfg)
	p := NewPredictor(cfg)
	recs := datasettest.StudentRecords(16)

	want := make([]float64, len(recs))
	for i, r := range recs {
		want[i] = datasettest.MathScore(r.Gender, r.ReadingScore, r.WritingScore)
	}

	got := make([]float64, len(recs))
	errs := make([]error, len(recs))
	var wg sync.WaitGroup
	for i := range recs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], errs[i] = p.Predict(recs[i])
		}(i)
	}
	wg.Wait()

	for i := range recs {
		require.NoError(t, errs[i])
		assert.InDelta(t, want[i], got[i], 1e-6)
	}
}

func TestNewPredictorPaths(t *testing.T) {
	cfg := newConfig(t)
	p := NewPredictor(cfg)
	assert.Equal(t, filepath.Join(cfg.ArtifactDir, config.PreprocessorFile), p.preprocessorPath)
	assert.Equal(t, filepath.Join(cfg.ArtifactDir, config.ModelFile), p.modelPath)
}

package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/examscore/dataset"
	"github.com/YuminosukeSato/examscore/dataset/datasettest"
	"github.com/YuminosukeSato/examscore/linear"
	"github.com/YuminosukeSato/examscore/pkg/errors"
	"github.com/YuminosukeSato/examscore/preprocessing"
	"github.com/YuminosukeSato/examscore/sklearn/ensemble"
)

func fittedTransformer(t *testing.T) (*preprocessing.FeatureTransformer, *dataset.Frame) {
	t.Helper()
	frame := datasettest.StudentFrame(12)
	tr := preprocessing.NewFeatureTransformer()
	require.NoError(t, tr.Fit(frame))
	return tr, frame
}

func TestTransformerRoundTrip(t *testing.T) {
	tr, frame := fittedTransformer(t)
	path := filepath.Join(t.TempDir(), "nested", "artifact", "preprocessor.gob")

	require.NoError(t, SaveTransformer(path, &TransformerArtifact{
		RunID:       "run-1",
		CreatedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Transformer: tr,
	}))

	loaded, err := LoadTransformer(path)
	require.NoError(t, err)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.True(t, loaded.CreatedAt.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.Equal(t, tr.FeatureNames(), loaded.Transformer.FeatureNames())

	want, err := tr.Transform(frame)
	require.NoError(t, err)
	got, err := loaded.Transformer.Transform(frame)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}

func TestModelRoundTrip(t *testing.T) {
	tr, frame := fittedTransformer(t)
	X, err := tr.Transform(frame)
	require.NoError(t, err)
	target, err := frame.Target(dataset.Target)
	require.NoError(t, err)
	y := mat.NewVecDense(len(target), target)

	rf := ensemble.NewRandomForestRegressor(ensemble.WithNEstimators(4), ensemble.WithForestRandomState(42))
	require.NoError(t, rf.Fit(X, y))

	path := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, SaveModel(path, &ModelArtifact{
		RunID:        "run-2",
		Name:         "Random Forest",
		Params:       rf.GetParams(),
		CVScore:      0.8,
		TestScore:    0.9,
		FeatureNames: tr.FeatureNames(),
		CreatedAt:    time.Now().UTC(),
		Model:        rf,
	}))

	loaded, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, "Random Forest", loaded.Name)
	assert.Equal(t, 4, loaded.Params["n_estimators"])
	assert.Equal(t, 0.9, loaded.TestScore)
	assert.Equal(t, tr.FeatureNames(), loaded.FeatureNames)

	want, err := rf.Predict(X)
	require.NoError(t, err)
	got, err := loaded.Model.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}

func TestSaveLeavesNoTemporaryFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "value.gob")

	require.NoError(t, Save(path, map[string]int{"a": 1}))
	require.NoError(t, Save(path, map[string]int{"a": 2}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "value.gob", entries[0].Name())

	var got map[string]int
	require.NoError(t, Load(path, &got))
	assert.Equal(t, 2, got["a"])
}

func TestSaveFailureRemovesTemporaryFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.gob")

	// channels cannot be gob-encoded
	err := Save(path, make(chan int))
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	var notFound *errors.ArtifactNotFoundError
	_, err := LoadModel(filepath.Join(dir, "missing.gob"))
	assert.True(t, errors.As(err, &notFound))

	corrupt := filepath.Join(dir, "corrupt.gob")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a gob stream"), 0o644))
	var corruptErr *errors.CorruptArtifactError
	_, err = LoadTransformer(corrupt)
	assert.True(t, errors.As(err, &corruptErr))
}

func TestLoadRejectsEmptyArtifacts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.gob")
	require.NoError(t, Save(path, &ModelArtifact{Name: "empty"}))

	var corruptErr *errors.CorruptArtifactError
	_, err := LoadModel(path)
	assert.True(t, errors.As(err, &corruptErr))
}

func TestSaveRejectsUnfitted(t *testing.T) {
	dir := t.TempDir()

	var nf *errors.NotFittedError
	err := SaveModel(filepath.Join(dir, "model.gob"), &ModelArtifact{Model: linear.NewLinearRegression()})
	assert.True(t, errors.As(err, &nf))

	err = SaveTransformer(filepath.Join(dir, "preprocessor.gob"),
		&TransformerArtifact{Transformer: preprocessing.NewFeatureTransformer()})
	assert.True(t, errors.As(err, &nf))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

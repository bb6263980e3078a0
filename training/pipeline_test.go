package training

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/examscore/artifact"
	"github.com/YuminosukeSato/examscore/config"
	"github.com/YuminosukeSato/examscore/dataset"
	"github.com/YuminosukeSato/examscore/dataset/datasettest"
	"github.com/YuminosukeSato/examscore/history"
	"github.com/YuminosukeSato/examscore/inference"
	"github.com/YuminosukeSato/examscore/pkg/errors"
	"github.com/YuminosukeSato/examscore/pkg/log"
	"github.com/YuminosukeSato/examscore/preprocessing"
	"github.com/YuminosukeSato/examscore/registry"
)

func writeStudents(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stud.csv")
	require.NoError(t, dataset.WriteCSVFile(path, datasettest.StudentFrame(n)))
	return path
}

func pipelineConfig(t *testing.T, dataPath string) *config.Config {
	t.Helper()
	cfg := config.Default().WithArtifactDir(filepath.Join(t.TempDir(), "artifact"))
	cfg.DataPath = dataPath
	cfg.History = false
	cfg.ReportChart = false
	cfg.NJobs = 2
	return cfg
}

func quickCandidates(t *testing.T) []registry.Candidate {
	t.Helper()
	var out []registry.Candidate
	for _, name := range []string{registry.RandomForest, registry.DecisionTree, registry.LinearRegression, registry.KNeighbors} {
		c, ok := registry.Lookup(registry.Default(), name)
		require.True(t, ok)
		out = append(out, c)
	}
	return out
}

func gobFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.gob"))
	require.NoError(t, err)
	return matches
}

func TestPipeline_EndToEnd(t *testing.T) {
	cfg := pipelineConfig(t, writeStudents(t, 20))
	cfg.History = true
	cfg.ReportChart = true
	logger := log.NewTestLogger(log.LevelInfo)

	res, err := NewPipeline(cfg, WithPipelineLogger(logger)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 16, res.TrainRows)
	assert.Equal(t, 4, res.TestRows)
	assert.Equal(t, registry.Names(registry.Default()), namesOf(res.Report))
	assert.GreaterOrEqual(t, res.Model.TestScore, cfg.AcceptanceThreshold)
	best, ok := res.Report.Best()
	require.True(t, ok)
	assert.Equal(t, best.Name, res.Model.Name)

	assert.Len(t, gobFiles(t, cfg.ArtifactDir), 2)
	for _, p := range []string{cfg.RawPath(), cfg.TrainPath(), cfg.TestPath(), cfg.ChartPath(), cfg.HistoryPath()} {
		assert.FileExists(t, p)
	}
	train, err := dataset.ReadCSVFile(cfg.TrainPath())
	require.NoError(t, err)
	assert.Equal(t, 16, train.Len())
	test, err := dataset.ReadCSVFile(cfg.TestPath())
	require.NoError(t, err)
	assert.Equal(t, 4, test.Len())

	m, err := artifact.LoadModel(cfg.ModelPath())
	require.NoError(t, err)
	assert.Equal(t, res.RunID, m.RunID)
	assert.Equal(t, res.Model.Name, m.Name)
	assert.Equal(t, res.FeatureNames, m.FeatureNames)

	tr, err := artifact.LoadTransformer(cfg.PreprocessorPath())
	require.NoError(t, err)
	X, err := tr.Transformer.Transform(test)
	require.NoError(t, err)
	pred, err := m.Model.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, 4, pred.Len())

	// 推論アダプタはメモリ上の最良モデルと同じ予測を返す
	fitted := preprocessing.NewFeatureTransformer()
	require.NoError(t, fitted.Fit(train))
	row := test.Select([]int{0})
	XRow, err := fitted.Transform(row)
	require.NoError(t, err)
	want, err := res.Model.Model.Predict(XRow)
	require.NoError(t, err)

	got, err := inference.NewPredictor(cfg).Predict(recordFromRow(t, row))
	require.NoError(t, err)
	assert.InDelta(t, want.AtVec(0), got, 1e-9)

	store, err := history.Open(cfg.HistoryPath())
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, history.StatusAccepted, runs[0].Status)
	assert.Equal(t, res.Model.Name, runs[0].Winner)
	assert.Len(t, runs[0].Entries, 8)

	assert.True(t, logger.ContainsMessage("Training run finished"))
	assert.True(t, logger.ContainsField(log.RunIDKey, res.RunID))
}

func TestPipeline_TrainerLogsUnderOwnComponent(t *testing.T) {
	var buf bytes.Buffer
	prev := log.GetProvider()
	log.SetProvider(log.NewZerologProviderWithWriter(&buf, log.LevelInfo))
	defer log.SetProvider(prev)

	cfg := pipelineConfig(t, writeStudents(t, 20))
	cfg.NJobs = 1
	res, err := NewPipeline(cfg, WithCandidates(quickCandidates(t))).Run(context.Background())
	require.NoError(t, err)

	var selected map[string]interface{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		assert.Equal(t, 1, bytes.Count(line, []byte(`"`+log.ComponentKey+`"`)), "line %s", line)
		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &rec))
		if rec["message"] == "Model selected" {
			selected = rec
		}
	}
	require.NotNil(t, selected)
	assert.Equal(t, "Trainer", selected[log.ComponentKey])
	assert.Equal(t, res.RunID, selected[log.RunIDKey])
}

func TestPipeline_Deterministic(t *testing.T) {
	data := writeStudents(t, 30)

	run := func(workers int) *Result {
		cfg := pipelineConfig(t, data)
		cfg.NJobs = workers
		res, err := NewPipeline(cfg, WithCandidates(quickCandidates(t))).Run(context.Background())
		require.NoError(t, err)
		return res
	}
	a, b := run(1), run(4)

	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, a.Report, b.Report)
	assert.Equal(t, a.Model.Name, b.Model.Name)
	assert.Equal(t, a.Model.Params, b.Model.Params)
	assert.Equal(t, a.FeatureNames, b.FeatureNames)
}

func TestPipeline_ThresholdFailureWritesNoModel(t *testing.T) {
	cfg := pipelineConfig(t, writeStudents(t, 20))
	cfg.AcceptanceThreshold = 1.5
	cfg.History = true

	res, err := NewPipeline(cfg, WithCandidates(quickCandidates(t))).Run(context.Background())
	assert.Nil(t, res)
	var rejected *errors.NoAcceptableModelError
	require.True(t, errors.As(err, &rejected))

	assert.Empty(t, gobFiles(t, cfg.ArtifactDir))
	_, statErr := os.Stat(cfg.ModelPath())
	assert.True(t, os.IsNotExist(statErr))

	store, err := history.Open(cfg.HistoryPath())
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, history.StatusRejected, runs[0].Status)
	assert.Equal(t, rejected.BestModel, runs[0].Winner)
}

func TestPipeline_SchemaErrors(t *testing.T) {
	full := datasettest.StudentFrame(20)

	tests := []struct {
		name  string
		frame *dataset.Frame
	}{
		{"missing column", full.Drop(dataset.WritingScore)},
		{"missing target", full.Drop(dataset.Target)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "stud.csv")
			require.NoError(t, dataset.WriteCSVFile(path, tt.frame))
			cfg := pipelineConfig(t, path)

			_, err := NewPipeline(cfg, WithCandidates(quickCandidates(t))).Run(context.Background())
			var schemaErr *errors.SchemaError
			assert.True(t, errors.As(err, &schemaErr), "got %v", err)
			assert.Empty(t, gobFiles(t, cfg.ArtifactDir))
		})
	}
}

func TestPipeline_ExtraColumnRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stud.csv")
	content := "gender,race_ethnicity,parental_level_of_education,lunch,test_preparation_course,math_score,reading_score,writing_score,student_id\n" +
		"female,group B,bachelor's degree,standard,none,72,72,74,1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := NewPipeline(pipelineConfig(t, path)).Run(context.Background())
	var schemaErr *errors.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "student_id", schemaErr.Column)
}

func TestPipeline_InvalidConfig(t *testing.T) {
	cfg := pipelineConfig(t, writeStudents(t, 20))
	cfg.CVFolds = 1

	_, err := NewPipeline(cfg).Run(context.Background())
	var vErr *errors.ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func namesOf(r *Report) []string {
	out := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = e.Name
	}
	return out
}

// recordFromRow decodes the first row of frame the way the prediction form would.
func recordFromRow(t *testing.T, frame *dataset.Frame) dataset.Record {
	t.Helper()
	columns := map[string]string{
		dataset.FormGender:            dataset.Gender,
		dataset.FormEthnicity:         dataset.RaceEthnicity,
		dataset.FormParentalEducation: dataset.ParentalEducation,
		dataset.FormLunch:             dataset.Lunch,
		dataset.FormTestPreparation:   dataset.TestPreparation,
		dataset.FormReadingScore:      dataset.ReadingScore,
		dataset.FormWritingScore:      dataset.WritingScore,
	}
	cells := make(map[string]string, len(columns))
	for key, column := range columns {
		values, err := frame.Column(column)
		require.NoError(t, err)
		cells[key] = values[0]
	}
	rec, err := dataset.RecordFromForm(func(key string) string { return cells[key] })
	require.NoError(t, err)
	return rec
}

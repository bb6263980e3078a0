package history

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/examscore/core/model"
	"github.com/YuminosukeSato/examscore/pkg/errors"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ledger", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRun(id string, started time.Time) *Run {
	return &Run{
		ID:         id,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		DataPath:   "notebook/data/stud.csv",
		Status:     StatusAccepted,
		Winner:     "Linear Regression",
		TestScore:  0.88,
		Threshold:  0.6,
		TrainRows:  800,
		TestRows:   200,
		Entries: []Entry{
			{Name: "Random Forest", TestScore: 0.85, CVScore: 0.84, RMSE: 6.1, MAE: 4.7, Params: model.Params{"n_estimators": 64}},
			{Name: "Linear Regression", TestScore: 0.88, CVScore: 0.87, RMSE: 5.4, MAE: 4.2, Params: model.Params{}},
		},
	}
}

func TestRecordAndGet(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	started := time.Date(2024, 5, 1, 10, 0, 0, 123, time.UTC)

	require.NoError(t, s.Record(ctx, sampleRun("run-a", started)))

	got, err := s.Get(ctx, "run-a")
	require.NoError(t, err)
	assert.True(t, got.StartedAt.Equal(started))
	assert.True(t, got.FinishedAt.Equal(started.Add(3*time.Second)))
	assert.Equal(t, "Linear Regression", got.Winner)
	assert.Equal(t, StatusAccepted, got.Status)
	assert.Equal(t, 0.88, got.TestScore)
	assert.Equal(t, 800, got.TrainRows)

	require.Len(t, got.Entries, 2)
	assert.Equal(t, "Random Forest", got.Entries[0].Name)
	assert.Equal(t, 64.0, got.Entries[0].Params["n_estimators"])
	assert.Equal(t, 4.2, got.Entries[1].MAE)
	assert.Empty(t, got.Entries[1].Params)
}

func TestGetUnknown(t *testing.T) {
	s := openTemp(t)
	_, err := s.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, sampleRun("first", base)))
	require.NoError(t, s.Record(ctx, sampleRun("third", base.Add(2*time.Hour))))
	require.NoError(t, s.Record(ctx, sampleRun("second", base.Add(time.Hour+500*time.Millisecond))))

	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "third", runs[0].ID)
	assert.Equal(t, "second", runs[1].ID)
	assert.Equal(t, "first", runs[2].ID)
	for _, r := range runs {
		assert.Len(t, r.Entries, 2)
	}

	runs, err = s.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "third", runs[0].ID)
}

func TestRejectedRunKeepsNaNScores(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	run := sampleRun("rejected", time.Now())
	run.Status = StatusRejected
	run.Winner = ""
	run.TestScore = math.NaN()
	run.Entries[0].TestScore = math.NaN()
	require.NoError(t, s.Record(ctx, run))

	got, err := s.Get(ctx, "rejected")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)
	assert.Empty(t, got.Winner)
	assert.True(t, math.IsNaN(got.TestScore))
	assert.True(t, math.IsNaN(got.Entries[0].TestScore))
	assert.Equal(t, 0.88, got.Entries[1].TestScore)
}

func TestRecordDuplicateIDRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	started := time.Now()

	require.NoError(t, s.Record(ctx, sampleRun("dup", started)))
	assert.Error(t, s.Record(ctx, sampleRun("dup", started)))

	got, err := s.Get(ctx, "dup")
	require.NoError(t, err)
	assert.Len(t, got.Entries, 2)
}

func TestRecordRequiresID(t *testing.T) {
	s := openTemp(t)
	var vErr *errors.ValidationError
	assert.True(t, errors.As(s.Record(context.Background(), &Run{}), &vErr))
}

func TestReopenKeepsRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, sampleRun("persisted", time.Now())))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "persisted", runs[0].ID)
}

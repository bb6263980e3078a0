package log

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	esErrors "github.com/YuminosukeSato/examscore/pkg/errors"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestZerologProviderWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	provider := NewZerologProviderWithWriter(&buf, LevelInfo)

	logger := provider.GetLoggerWithName("Trainer").With(ModelNameKey, "Random Forest")
	logger.Debug("hidden")
	logger.Info("Grid search finished", OperationKey, OperationFit, CVScoreKey, 0.84)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "Grid search finished", lines[0]["message"])
	assert.Equal(t, "Trainer", lines[0][ComponentKey])
	assert.Equal(t, "Random Forest", lines[0][ModelNameKey])
	assert.Equal(t, OperationFit, lines[0][OperationKey])
	assert.InDelta(t, 0.84, lines[0][CVScoreKey], 1e-12)
}

func TestZerologErrorAttachesStack(t *testing.T) {
	var buf bytes.Buffer
	provider := NewZerologProviderWithWriter(&buf, LevelDebug)

	err := esErrors.NewSchemaError("FeatureTransformer.Transform", "lunch", "column is missing")
	provider.GetLogger().Error("Transform failed", err, PhaseKey, PhaseInference)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0]["error"], "lunch")
	assert.Contains(t, lines[0][StacktraceKey], "log_test.go")
	assert.Equal(t, PhaseInference, lines[0][PhaseKey])
}

func TestZerologProviderSetLevel(t *testing.T) {
	var buf bytes.Buffer
	provider := NewZerologProviderWithWriter(&buf, LevelInfo)
	provider.SetLevel(LevelError)

	logger := provider.GetLogger()
	assert.False(t, logger.Enabled(context.Background(), LevelWarn))
	assert.True(t, logger.Enabled(context.Background(), LevelError))

	logger.Warn("dropped")
	logger.Error("kept")
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["message"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{" warn ", LevelWarn, false},
		{"error", LevelError, false},
		{"", LevelInfo, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, ToLogLevel(tt.in))
		})
	}
}

func TestTestLoggerCapturesAcrossWith(t *testing.T) {
	logger := NewTestLogger(LevelInfo)
	child := logger.With(RunIDKey, "run-1")

	child.Info("Model accepted", R2ScoreKey, 0.91)
	logger.Debug("not captured")
	child.Error("Save failed", esErrors.New("disk full"))

	entries, err := logger.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, logger.ContainsMessage("Model accepted"))
	assert.True(t, logger.ContainsField(RunIDKey, "run-1"))
	assert.True(t, logger.ContainsField(R2ScoreKey, 0.91))
	assert.Equal(t, "disk full", entries[1]["error"])

	logger.Clear()
	assert.Empty(t, logger.Output())
}

func TestTestLoggerConcurrentWrites(t *testing.T) {
	logger := NewTestLogger(LevelDebug)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			logger.With(FoldsKey, i).Debug("fold done")
		}(i)
	}
	wg.Wait()

	entries, err := logger.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 8)
}

func TestGlobalProviderRoutesWarnings(t *testing.T) {
	provider := NewTestLoggerProvider(LevelDebug)
	prev := GetProvider()
	SetProvider(provider)
	defer SetProvider(prev)

	esErrors.Warn(esErrors.NewParameterAdjustedWarning("KNeighborsRegressor", "n_neighbors", 11, 10))

	assert.True(t, provider.Logger.ContainsMessage("adjusted from 11 to 10"))
	assert.True(t, provider.Logger.ContainsField(ComponentKey, "warnings"))
}

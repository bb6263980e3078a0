package training

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/examscore/artifact"
	"github.com/YuminosukeSato/examscore/config"
	"github.com/YuminosukeSato/examscore/dataset"
	"github.com/YuminosukeSato/examscore/history"
	"github.com/YuminosukeSato/examscore/model_selection"
	"github.com/YuminosukeSato/examscore/pkg/errors"
	"github.com/YuminosukeSato/examscore/pkg/log"
	"github.com/YuminosukeSato/examscore/preprocessing"
	"github.com/YuminosukeSato/examscore/registry"
)

// Result summarises a successful pipeline run.
type Result struct {
	RunID        string
	Model        *TrainedModel
	Report       *Report
	FeatureNames []string
	TrainRows    int
	TestRows     int
}

// Pipeline is the training entry point: ingest, split, fit the
// transformer, select a model and persist both artifacts.
type Pipeline struct {
	cfg        *config.Config
	candidates []registry.Candidate
	logger     log.Logger
	injected   bool
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithCandidates replaces the default catalog
func WithCandidates(candidates []registry.Candidate) PipelineOption {
	return func(p *Pipeline) { p.candidates = candidates }
}

// WithPipelineLogger replaces the pipeline's logger
func WithPipelineLogger(l log.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger, p.injected = l, true }
}

// NewPipeline creates a pipeline over registry.Default()
func NewPipeline(cfg *config.Config, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		cfg:        cfg,
		candidates: registry.Default(),
		logger:     log.GetLoggerWithName("Pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// trainerLogger names the Trainer's own component. An injected pipeline
// logger is reused as is.
func (p *Pipeline) trainerLogger(runID string) log.Logger {
	if p.injected {
		return p.logger.With(log.RunIDKey, runID)
	}
	return log.GetLoggerWithName("Trainer").With(log.RunIDKey, runID)
}

type splitData struct {
	train, test *dataset.Frame
}

// Run executes one training run. Artifacts are written only after a model
// has been accepted, so a failed run leaves no model artifact behind.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	started := time.Now()
	logger := p.logger.With(log.RunIDKey, runID)
	logger.Info("Training run started",
		log.PathKey, p.cfg.DataPath,
		log.RandomSeedKey, p.cfg.RandomSeed,
	)

	split, err := p.ingest(logger)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	transformer := preprocessing.NewFeatureTransformer()
	XTrain, err := transformer.FitTransform(split.train)
	if err != nil {
		return nil, errors.Wrap(err, "preprocess train split")
	}
	XTest, err := transformer.Transform(split.test)
	if err != nil {
		return nil, errors.Wrap(err, "preprocess test split")
	}
	yTrain, err := targetVector(split.train)
	if err != nil {
		return nil, err
	}
	yTest, err := targetVector(split.test)
	if err != nil {
		return nil, err
	}
	logger.Info("Features prepared",
		log.PhaseKey, log.PhasePreprocessing,
		log.FeaturesKey, transformer.NumFeatures(),
	)

	trainer := NewTrainer(p.cfg, WithLogger(p.trainerLogger(runID)))
	trained, report, err := trainer.Train(ctx, XTrain, yTrain, XTest, yTest, p.candidates)
	if err != nil {
		var rejected *errors.NoAcceptableModelError
		if errors.As(err, &rejected) && report != nil {
			p.recordRejected(ctx, logger, runID, started, split, report)
		}
		return nil, err
	}

	if err := p.persist(logger, runID, transformer, trained); err != nil {
		return nil, err
	}

	if p.cfg.ReportChart {
		if err := SaveReportChart(report, p.cfg.AcceptanceThreshold, p.cfg.ChartPath()); err != nil {
			return nil, err
		}
	}
	if p.cfg.History {
		run := p.historyRun(runID, started, split, report)
		run.Status = history.StatusAccepted
		run.Winner = trained.Name
		run.TestScore = trained.TestScore
		if err := p.record(ctx, run); err != nil {
			return nil, err
		}
	}

	logger.Info("Training run finished",
		log.ModelNameKey, trained.Name,
		log.R2ScoreKey, trained.TestScore,
		log.DurationMsKey, time.Since(started).Milliseconds(),
	)
	return &Result{
		RunID:        runID,
		Model:        trained,
		Report:       report,
		FeatureNames: transformer.FeatureNames(),
		TrainRows:    split.train.Len(),
		TestRows:     split.test.Len(),
	}, nil
}

// ingest reads the input, keeps a raw copy and writes the train/test splits
func (p *Pipeline) ingest(logger log.Logger) (*splitData, error) {
	frame, err := dataset.ReadCSVFile(p.cfg.DataPath)
	if err != nil {
		return nil, err
	}
	if err := frame.RequireExactly("Pipeline.Run", dataset.TrainingColumns()); err != nil {
		return nil, err
	}
	if err := dataset.WriteCSVFile(p.cfg.RawPath(), frame); err != nil {
		return nil, err
	}

	trainIdx, testIdx, err := model_selection.TrainTestSplit(frame.Len(), p.cfg.TestSize, p.cfg.RandomSeed)
	if err != nil {
		return nil, errors.Wrapf(err, "split %d rows", frame.Len())
	}
	split := &splitData{train: frame.Select(trainIdx), test: frame.Select(testIdx)}
	if err := dataset.WriteCSVFile(p.cfg.TrainPath(), split.train); err != nil {
		return nil, err
	}
	if err := dataset.WriteCSVFile(p.cfg.TestPath(), split.test); err != nil {
		return nil, err
	}

	logger.Info("Data ingested",
		log.PhaseKey, log.PhaseIngestion,
		log.SamplesKey, frame.Len(),
		"train_rows", split.train.Len(),
		"test_rows", split.test.Len(),
	)
	return split, nil
}

func (p *Pipeline) persist(logger log.Logger, runID string, transformer *preprocessing.FeatureTransformer, trained *TrainedModel) error {
	now := time.Now().UTC()
	if err := artifact.SaveTransformer(p.cfg.PreprocessorPath(), &artifact.TransformerArtifact{
		RunID:       runID,
		CreatedAt:   now,
		Transformer: transformer,
	}); err != nil {
		return err
	}
	if err := artifact.SaveModel(p.cfg.ModelPath(), &artifact.ModelArtifact{
		RunID:        runID,
		Name:         trained.Name,
		Params:       trained.Params,
		CVScore:      trained.CVScore,
		TestScore:    trained.TestScore,
		FeatureNames: transformer.FeatureNames(),
		CreatedAt:    now,
		Model:        trained.Model,
	}); err != nil {
		return err
	}
	logger.Info("Artifacts saved",
		log.PhaseKey, log.PhasePersistence,
		log.PathKey, p.cfg.ArtifactDir,
	)
	return nil
}

func (p *Pipeline) historyRun(runID string, started time.Time, split *splitData, report *Report) *history.Run {
	entries := make([]history.Entry, len(report.Entries))
	for i, e := range report.Entries {
		entries[i] = history.Entry{
			Name:      e.Name,
			TestScore: e.TestScore,
			CVScore:   e.CVScore,
			RMSE:      e.RMSE,
			MAE:       e.MAE,
			Params:    e.BestParams,
		}
	}
	return &history.Run{
		ID:         runID,
		StartedAt:  started,
		FinishedAt: time.Now(),
		DataPath:   p.cfg.DataPath,
		Threshold:  p.cfg.AcceptanceThreshold,
		TrainRows:  split.train.Len(),
		TestRows:   split.test.Len(),
		Entries:    entries,
	}
}

func (p *Pipeline) record(ctx context.Context, run *history.Run) error {
	store, err := history.Open(p.cfg.HistoryPath())
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Record(ctx, run)
}

// recordRejected keeps the report of a run whose best candidate missed the
// threshold. A ledger failure is logged and never masks the rejection.
func (p *Pipeline) recordRejected(ctx context.Context, logger log.Logger, runID string, started time.Time,
	split *splitData, report *Report) {
	if !p.cfg.History {
		return
	}
	run := p.historyRun(runID, started, split, report)
	run.Status = history.StatusRejected
	if best, ok := report.Best(); ok {
		run.Winner = best.Name
		run.TestScore = best.TestScore
	}
	if err := p.record(ctx, run); err != nil {
		logger.Error("Failed to record rejected run", err)
	}
}

func targetVector(frame *dataset.Frame) (*mat.VecDense, error) {
	y, err := frame.Target(dataset.Target)
	if err != nil {
		return nil, err
	}
	return mat.NewVecDense(len(y), y), nil
}

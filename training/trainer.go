// Package training selects the best regressor from the candidate catalog and
// runs the end-to-end training pipeline that produces the persisted
// artifacts.
package training

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/examscore/config"
	"github.com/YuminosukeSato/examscore/core/model"
	"github.com/YuminosukeSato/examscore/metrics"
	"github.com/YuminosukeSato/examscore/model_selection"
	"github.com/YuminosukeSato/examscore/pkg/errors"
	"github.com/YuminosukeSato/examscore/pkg/log"
	"github.com/YuminosukeSato/examscore/registry"
)

// TrainedModel is the winner of a training run.
type TrainedModel struct {
	Name      string
	Params    model.Params
	Model     model.Regressor
	CVScore   float64
	TestScore float64
}

// Trainer runs a cross-validated grid search per candidate and picks the
// candidate with the best held-out R².
type Trainer struct {
	cfg    *config.Config
	logger log.Logger
}

// TrainerOption configures a Trainer
type TrainerOption func(*Trainer)

// WithLogger replaces the trainer's logger
func WithLogger(l log.Logger) TrainerOption {
	return func(t *Trainer) { t.logger = l }
}

// NewTrainer creates a trainer using cfg.CVFolds, cfg.NJobs and cfg.AcceptanceThreshold
func NewTrainer(cfg *config.Config, opts ...TrainerOption) *Trainer {
	t := &Trainer{
		cfg:    cfg,
		logger: log.GetLoggerWithName("Trainer"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train evaluates every candidate and returns the winner with the Selection
// Report. Candidates run one after another; the grid search inside each
// candidate is parallel.
//
// If the best test score is below the acceptance threshold the report is
// still returned, together with a NoAcceptableModelError. Any fitting or
// scoring error aborts the whole run.
func (t *Trainer) Train(ctx context.Context, XTrain mat.Matrix, yTrain mat.Vector,
	XTest mat.Matrix, yTest mat.Vector, candidates []registry.Candidate) (*TrainedModel, *Report, error) {
	if len(candidates) == 0 {
		return nil, nil, errors.NewValueError("Trainer.Train", "no candidates to train")
	}
	if _, _, err := model.CheckFitInput("Trainer.Train", XTrain, yTrain); err != nil {
		return nil, nil, err
	}
	if _, _, err := model.CheckFitInput("Trainer.Train", XTest, yTest); err != nil {
		return nil, nil, err
	}

	report := &Report{Entries: make([]ReportEntry, 0, len(candidates))}
	fitted := make([]model.Regressor, 0, len(candidates))

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		entry, est, err := t.evaluate(ctx, c, XTrain, yTrain, XTest, yTest)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "candidate %q", c.Name)
		}
		report.Entries = append(report.Entries, entry)
		fitted = append(fitted, est)
	}

	idx := report.bestIndex()
	if idx < 0 {
		return nil, report, errors.NewNoAcceptableModelError("", 0, t.cfg.AcceptanceThreshold)
	}
	best := report.Entries[idx]
	if best.TestScore < t.cfg.AcceptanceThreshold {
		t.logger.Warn("No candidate reached the acceptance threshold",
			log.PhaseKey, log.PhaseSelection,
			log.ModelNameKey, best.Name,
			log.R2ScoreKey, best.TestScore,
			log.ThresholdKey, t.cfg.AcceptanceThreshold,
		)
		return nil, report, errors.NewNoAcceptableModelError(best.Name, best.TestScore, t.cfg.AcceptanceThreshold)
	}

	t.logger.Info("Model selected",
		log.PhaseKey, log.PhaseSelection,
		log.ModelNameKey, best.Name,
		log.R2ScoreKey, best.TestScore,
		log.CVScoreKey, best.CVScore,
		log.HyperParamsKey, best.BestParams.String(),
	)
	return &TrainedModel{
		Name:      best.Name,
		Params:    best.BestParams,
		Model:     fitted[idx],
		CVScore:   best.CVScore,
		TestScore: best.TestScore,
	}, report, nil
}

func (t *Trainer) evaluate(ctx context.Context, c registry.Candidate, XTrain mat.Matrix, yTrain mat.Vector,
	XTest mat.Matrix, yTest mat.Vector) (ReportEntry, model.Regressor, error) {
	start := time.Now()
	logger := t.logger.With(log.ModelNameKey, c.Name)

	gs := model_selection.NewGridSearchCV(c.New, c.Grid,
		model_selection.WithCV(t.cfg.CVFolds),
		model_selection.WithNJobs(t.cfg.NJobs),
		model_selection.WithLogger(logger),
	)
	if err := gs.Fit(ctx, XTrain, yTrain); err != nil {
		return ReportEntry{}, nil, err
	}

	pred, err := gs.BestEstimator.Predict(XTest)
	if err != nil {
		return ReportEntry{}, nil, errors.Wrap(err, "predict test split")
	}
	r2, err := metrics.R2Score(yTest, pred)
	if err != nil {
		return ReportEntry{}, nil, err
	}
	rmse, err := metrics.RMSE(yTest, pred)
	if err != nil {
		return ReportEntry{}, nil, err
	}
	mae, err := metrics.MAE(yTest, pred)
	if err != nil {
		return ReportEntry{}, nil, err
	}

	logger.Info("Candidate evaluated",
		log.PhaseKey, log.PhaseTraining,
		log.CombinationsKey, len(gs.Results),
		log.CVScoreKey, gs.BestScore,
		log.R2ScoreKey, r2,
		log.HyperParamsKey, gs.BestParams.String(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return ReportEntry{
		Name:       c.Name,
		TestScore:  r2,
		CVScore:    gs.BestScore,
		BestParams: gs.BestParams,
		RMSE:       rmse,
		MAE:        mae,
	}, gs.BestEstimator, nil
}

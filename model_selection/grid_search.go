package model_selection

import (
	"context"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/examscore/core/model"
	"github.com/YuminosukeSato/examscore/core/parallel"
	"github.com/YuminosukeSato/examscore/metrics"
	"github.com/YuminosukeSato/examscore/pkg/errors"
	"github.com/YuminosukeSato/examscore/pkg/log"
)

// Scorer computes a higher-is-better score
type Scorer func(yTrue, yPred mat.Vector) (float64, error)

// CVResult is the cross-validation outcome of one parameter combination
type CVResult struct {
	Params     model.Params
	FoldScores []float64
	MeanScore  float64
	StdScore   float64
	Rank       int
}

// GridSearchCV evaluates every combination of a ParamGrid with k-fold
// cross-validation and optionally refits the best one on all data.
//
// Each (combination, fold) job builds a fresh estimator from Factory and
// only reads the shared fold matrices, so jobs run concurrently on at most
// NJobs workers. Scores are reduced in enumeration order: the first
// combination with the highest mean score wins.
type GridSearchCV struct {
	Factory model.Factory
	Grid    ParamGrid
	CV      *KFold
	NJobs   int
	Scoring Scorer
	Refit   bool
	Logger  log.Logger

	Results       []CVResult
	BestIndex     int
	BestParams    model.Params
	BestScore     float64
	BestEstimator model.Regressor
}

// GridSearchOption configures a GridSearchCV
type GridSearchOption func(*GridSearchCV)

// NewGridSearchCV creates a search with 3-fold unshuffled CV, R² scoring and refit
func NewGridSearchCV(factory model.Factory, grid ParamGrid, opts ...GridSearchOption) *GridSearchCV {
	gs := &GridSearchCV{
		Factory: factory,
		Grid:    grid,
		CV:      NewKFold(3, false, 0),
		Scoring: metrics.R2Score,
		Refit:   true,
		Logger:  log.GetLoggerWithName("GridSearchCV"),
	}
	for _, opt := range opts {
		opt(gs)
	}
	return gs
}

// WithCV sets the number of unshuffled folds
func WithCV(nSplits int) GridSearchOption {
	return func(gs *GridSearchCV) { gs.CV = NewKFold(nSplits, false, 0) }
}

// WithSplitter sets a custom splitter
func WithSplitter(kf *KFold) GridSearchOption {
	return func(gs *GridSearchCV) { gs.CV = kf }
}

// WithNJobs bounds the number of concurrent jobs (<= 0 uses every CPU)
func WithNJobs(n int) GridSearchOption {
	return func(gs *GridSearchCV) { gs.NJobs = n }
}

// WithScoring replaces the R² scorer
func WithScoring(s Scorer) GridSearchOption {
	return func(gs *GridSearchCV) { gs.Scoring = s }
}

// WithRefit toggles refitting the best combination on the full data
func WithRefit(refit bool) GridSearchOption {
	return func(gs *GridSearchCV) { gs.Refit = refit }
}

// WithLogger sets the logger
func WithLogger(l log.Logger) GridSearchOption {
	return func(gs *GridSearchCV) { gs.Logger = l }
}

type foldData struct {
	XTrain, XTest *mat.Dense
	yTrain, yTest *mat.VecDense
}

// SelectRows copies the listed rows of X into a new matrix
func SelectRows(X mat.Matrix, rows []int) *mat.Dense {
	_, c := X.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		for j := 0; j < c; j++ {
			out.Set(i, j, X.At(r, j))
		}
	}
	return out
}

// SelectVec copies the listed entries of y into a new vector
func SelectVec(y mat.Vector, rows []int) *mat.VecDense {
	out := mat.NewVecDense(len(rows), nil)
	for i, r := range rows {
		out.SetVec(i, y.AtVec(r))
	}
	return out
}

// Fit runs the search. Any failing job aborts the search; the error names
// the parameter combination and fold.
func (gs *GridSearchCV) Fit(ctx context.Context, X mat.Matrix, y mat.Vector) error {
	if gs.Factory == nil {
		return errors.NewValueError("GridSearchCV.Fit", "estimator factory is nil")
	}
	if err := gs.Grid.Validate(); err != nil {
		return err
	}
	r, _ := X.Dims()
	if y.Len() != r {
		return errors.NewDimensionError("GridSearchCV.Fit", r, y.Len(), 0)
	}

	folds, err := gs.CV.Split(r)
	if err != nil {
		return err
	}
	data := make([]foldData, len(folds))
	for i, f := range folds {
		data[i] = foldData{
			XTrain: SelectRows(X, f.TrainIndices),
			XTest:  SelectRows(X, f.TestIndices),
			yTrain: SelectVec(y, f.TrainIndices),
			yTest:  SelectVec(y, f.TestIndices),
		}
	}

	combos := gs.Grid.Combinations()
	nFolds := len(folds)
	scores := make([]float64, len(combos)*nFolds)
	start := time.Now()

	gs.Logger.Debug("Grid search started",
		log.CombinationsKey, len(combos),
		log.FoldsKey, nFolds,
		log.WorkersKey, parallel.Workers(gs.NJobs),
		log.SamplesKey, r,
	)

	err = parallel.ForEach(ctx, len(scores), gs.NJobs, func(job int) error {
		params := combos[job/nFolds]
		fold := data[job%nFolds]

		est, err := gs.newEstimator(params)
		if err != nil {
			return err
		}
		if err := est.Fit(fold.XTrain, fold.yTrain); err != nil {
			return errors.Wrapf(err, "fit failed for params %s on fold %d", params, job%nFolds)
		}
		pred, err := est.Predict(fold.XTest)
		if err != nil {
			return errors.Wrapf(err, "predict failed for params %s on fold %d", params, job%nFolds)
		}
		score, err := gs.Scoring(fold.yTest, pred)
		if err != nil {
			return errors.Wrapf(err, "scoring failed for params %s on fold %d", params, job%nFolds)
		}
		scores[job] = score
		return nil
	})
	if err != nil {
		return err
	}

	gs.Results = make([]CVResult, len(combos))
	gs.BestIndex = 0
	for i, p := range combos {
		fs := scores[i*nFolds : (i+1)*nFolds]
		mean, std := stat.PopMeanStdDev(fs, nil)
		gs.Results[i] = CVResult{Params: p, FoldScores: append([]float64(nil), fs...), MeanScore: mean, StdScore: std}
		if mean > gs.Results[gs.BestIndex].MeanScore {
			gs.BestIndex = i
		}
	}
	assignRanks(gs.Results)
	gs.BestParams = gs.Results[gs.BestIndex].Params.Copy()
	gs.BestScore = gs.Results[gs.BestIndex].MeanScore

	gs.Logger.Debug("Grid search finished",
		log.HyperParamsKey, gs.BestParams.String(),
		log.CVScoreKey, gs.BestScore,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)

	if !gs.Refit {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	best, err := gs.newEstimator(gs.BestParams)
	if err != nil {
		return err
	}
	if err := best.Fit(X, y); err != nil {
		return errors.Wrapf(err, "refit failed for params %s", gs.BestParams)
	}
	gs.BestEstimator = best
	return nil
}

func (gs *GridSearchCV) newEstimator(params model.Params) (model.Regressor, error) {
	est := gs.Factory()
	if err := est.SetParams(params); err != nil {
		return nil, errors.Wrapf(err, "invalid params %s", params)
	}
	return est, nil
}

// assignRanks ranks by descending mean score; equal scores share the lowest rank
func assignRanks(results []CVResult) {
	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return results[order[a]].MeanScore > results[order[b]].MeanScore
	})
	for pos, i := range order {
		if pos > 0 && results[i].MeanScore == results[order[pos-1]].MeanScore {
			results[i].Rank = results[order[pos-1]].Rank
			continue
		}
		results[i].Rank = pos + 1
	}
}

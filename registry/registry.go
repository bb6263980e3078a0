// Package registry holds the fixed, ordered catalog of candidate regressors
// and their hyperparameter grids.
package registry

import (
	"encoding/gob"

	"github.com/YuminosukeSato/examscore/core/model"
	"github.com/YuminosukeSato/examscore/linear"
	"github.com/YuminosukeSato/examscore/model_selection"
	"github.com/YuminosukeSato/examscore/sklearn/boosting"
	"github.com/YuminosukeSato/examscore/sklearn/ensemble"
	"github.com/YuminosukeSato/examscore/sklearn/neighbors"
	"github.com/YuminosukeSato/examscore/sklearn/tree"
)

// RandomState seeds every randomised candidate
const RandomState = 42

// Candidate names, in catalog order.
const (
	RandomForest     = "Random Forest"
	DecisionTree     = "Decision Tree"
	GradientBoosting = "Gradient Boosting"
	LinearRegression = "Linear Regression"
	KNeighbors       = "K-Neighbors Regressor"
	XGBoost          = "XGBRegressor"
	CatBoost         = "CatBoosting Regressor"
	AdaBoost         = "AdaBoost Regressor"
)

// Candidate is one catalog entry. New must return a fresh, unfitted
// estimator on every call.
type Candidate struct {
	Name string
	New  model.Factory
	Grid model_selection.ParamGrid
}

func init() {
	// モデル成果物はmodel.Regressorのインターフェース値としてgobに書かれる
	gob.Register(&linear.LinearRegression{})
	gob.Register(&tree.DecisionTreeRegressor{})
	gob.Register(&ensemble.RandomForestRegressor{})
	gob.Register(&ensemble.GradientBoostingRegressor{})
	gob.Register(&ensemble.AdaBoostRegressor{})
	gob.Register(&neighbors.KNeighborsRegressor{})
	gob.Register(&boosting.XGBRegressor{})
	gob.Register(&boosting.CatBoostRegressor{})
}

var nEstimators = []interface{}{8, 16, 32, 64, 128, 256}

// Default returns the candidate catalog. Order matters only for breaking
// exact ties between test scores.
func Default() []Candidate {
	return []Candidate{
		{
			Name: RandomForest,
			New: func() model.Regressor {
				return ensemble.NewRandomForestRegressor(ensemble.WithForestRandomState(RandomState))
			},
			Grid: model_selection.ParamGrid{
				"n_estimators": nEstimators,
			},
		},
		{
			Name: DecisionTree,
			New:  func() model.Regressor { return tree.NewDecisionTreeRegressor() },
			Grid: model_selection.ParamGrid{
				"criterion": {
					tree.CriterionSquaredError,
					tree.CriterionFriedmanMSE,
					tree.CriterionAbsoluteError,
					tree.CriterionPoisson,
				},
			},
		},
		{
			Name: GradientBoosting,
			New: func() model.Regressor {
				return ensemble.NewGradientBoostingRegressor(ensemble.WithGBRandomState(RandomState))
			},
			Grid: model_selection.ParamGrid{
				"learning_rate": {0.1, 0.01, 0.05, 0.001},
				"subsample":     {0.6, 0.7, 0.75, 0.8, 0.85, 0.9},
				"n_estimators":  nEstimators,
			},
		},
		{
			Name: LinearRegression,
			New:  func() model.Regressor { return linear.NewLinearRegression() },
		},
		{
			Name: KNeighbors,
			New:  func() model.Regressor { return neighbors.NewKNeighborsRegressor() },
			Grid: model_selection.ParamGrid{
				"n_neighbors": {5, 7, 9, 11},
			},
		},
		{
			Name: XGBoost,
			New:  func() model.Regressor { return boosting.NewXGBRegressor() },
			Grid: model_selection.ParamGrid{
				"learning_rate": {0.1, 0.01, 0.05, 0.001},
				"n_estimators":  nEstimators,
			},
		},
		{
			Name: CatBoost,
			New:  func() model.Regressor { return boosting.NewCatBoostRegressor() },
			Grid: model_selection.ParamGrid{
				"depth":         {6, 8, 10},
				"learning_rate": {0.01, 0.05, 0.1},
				"iterations":    {30, 50, 100},
			},
		},
		{
			Name: AdaBoost,
			New: func() model.Regressor {
				return ensemble.NewAdaBoostRegressor(ensemble.WithAdaRandomState(RandomState))
			},
			Grid: model_selection.ParamGrid{
				"learning_rate": {0.1, 0.01, 0.5, 0.001},
				"n_estimators":  nEstimators,
			},
		},
	}
}

// Names returns the candidate names in catalog order
func Names(candidates []Candidate) []string {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	return names
}

// Lookup returns the candidate with the given name
func Lookup(candidates []Candidate, name string) (Candidate, bool) {
	for _, c := range candidates {
		if c.Name == name {
			return c, true
		}
	}
	return Candidate{}, false
}

// Package examscore trains and serves a regression model that predicts a
// student's math exam score from five categorical attributes and the
// reading and writing scores.
//
// The module is organised the way a scikit-learn project would be, with
// estimators over gonum matrices and a small pipeline on top.
//
// # Training
//
// The train command reads a CSV with exactly eight columns (seven features
// plus math_score), splits it 80/20 with seed 42, fits the feature
// transformer on the train split and runs a 3-fold grid search for every
// candidate in the catalog. The candidate with the highest held-out R² wins;
// when even the winner scores below 0.6 the run fails and no model artifact
// is written.
//
//	go run ./cmd/train -data notebook/data/stud.csv
//
// The same run from Go:
//
//	cfg := config.Default()
//	cfg.DataPath = "notebook/data/stud.csv"
//	res, err := training.NewPipeline(cfg).Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Model.Name, res.Model.TestScore)
//
// # Prediction
//
//	p := inference.NewPredictor(config.Default())
//	score, err := p.Predict(dataset.Record{
//	    Gender:                   "female",
//	    RaceEthnicity:            "group B",
//	    ParentalLevelOfEducation: "bachelor's degree",
//	    Lunch:                    "standard",
//	    TestPreparationCourse:    "none",
//	    ReadingScore:             72,
//	    WritingScore:             74,
//	})
//
// Every prediction failure is an *errors.InferenceError wrapping the cause.
// cmd/server serves the same predictor behind an HTML form.
//
// # Packages
//
//   - dataset: fixed schema, Frame, Record, CSV input/output
//   - preprocessing: imputers, OneHotEncoder, StandardScaler, FeatureTransformer
//   - linear, sklearn/tree, sklearn/ensemble, sklearn/boosting, sklearn/neighbors: candidate regressors
//   - model_selection: KFold, ParamGrid, GridSearchCV, TrainTestSplit
//   - registry: the ordered candidate catalog
//   - training: Trainer, Selection Report, report chart, Pipeline
//   - artifact: gob artifact store
//   - inference: Predictor
//   - history: SQLite ledger of training runs
//   - metrics: R², MSE, RMSE, MAE
//   - core/model, core/parallel: estimator interfaces and worker helpers
//   - pkg/errors, pkg/log: typed errors and structured logging
//   - config: YAML and environment configuration
package examscore

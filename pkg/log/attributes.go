package log

// Standard attribute keys. They follow a hierarchical naming convention
// ("model.name", "data.samples") so that training logs can be filtered per
// candidate, per stage and per run.

// Model and operation context.
const (
	// ModelNameKey identifies a candidate or estimator, e.g. "Random Forest", "FeatureTransformer".
	ModelNameKey = "model.name"

	// RunIDKey identifies one training run; the same id is written into the model artifact.
	RunIDKey = "run.id"

	// OperationKey is one of the Operation* values below.
	OperationKey = "ml.operation"

	// ComponentKey identifies the package or service that logged, e.g. "Trainer".
	ComponentKey = "ml.component"

	// PhaseKey is one of the Phase* values below.
	PhaseKey = "ml.phase"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	ColumnKey   = "data.column"
	PathKey     = "data.path"
)

// ScalerKey describes a fitted scaler, e.g. "StandardScaler(with_mean=true, ...)".
const ScalerKey = "preprocessing.scaler"

// Metrics and timing.
const (
	DurationMsKey = "perf.duration_ms"

	// R2ScoreKey records a held-out coefficient of determination.
	R2ScoreKey = "metrics.r2_score"

	// CVScoreKey records the best mean cross-validation score of a grid search.
	CVScoreKey = "metrics.cv_score"

	// ThresholdKey records the acceptance threshold the winner is checked against.
	ThresholdKey = "metrics.threshold"
)

// Search context.
const (
	HyperParamsKey  = "model.hyperparams"
	CombinationsKey = "search.combinations"
	FoldsKey        = "search.folds"
	WorkersKey      = "search.workers"
	RandomSeedKey   = "config.random_seed"
)

// Error context.
const (
	ErrorTypeKey  = "error.type"
	StacktraceKey = "error.stacktrace"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationScore     = "score"
	OperationSave      = "save"
	OperationLoad      = "load"

	PhaseIngestion     = "ingestion"
	PhasePreprocessing = "preprocessing"
	PhaseTraining      = "training"
	PhaseSelection     = "selection"
	PhasePersistence   = "persistence"
	PhaseInference     = "inference"
)

// Package inference is the prediction path: it loads the persisted
// transformer and model once and scores raw student records with them.
package inference

import (
	"sync"
	"sync/atomic"

	"github.com/YuminosukeSato/examscore/artifact"
	"github.com/YuminosukeSato/examscore/config"
	"github.com/YuminosukeSato/examscore/dataset"
	"github.com/YuminosukeSato/examscore/pkg/errors"
	"github.com/YuminosukeSato/examscore/pkg/log"
)

// ModelInfo describes the loaded model.
type ModelInfo struct {
	RunID     string
	Name      string
	TestScore float64
}

type loaded struct {
	transformer *artifact.TransformerArtifact
	model       *artifact.ModelArtifact
}

// Predictor scores records with the artifacts of the last training run.
//
// Artifacts are read lazily on first use and cached after a successful
// load; a failed load is retried by the next call. Once loaded, Predict
// takes no locks and may be called from many goroutines.
type Predictor struct {
	preprocessorPath string
	modelPath        string
	logger           log.Logger

	mu    sync.Mutex
	state atomic.Pointer[loaded]
}

// NewPredictor creates a predictor reading cfg.PreprocessorPath and cfg.ModelPath
func NewPredictor(cfg *config.Config) *Predictor {
	return &Predictor{
		preprocessorPath: cfg.PreprocessorPath(),
		modelPath:        cfg.ModelPath(),
		logger:           log.GetLoggerWithName("Predictor"),
	}
}

// Load reads both artifacts if they are not cached yet
func (p *Predictor) Load() error {
	_, err := p.load()
	return err
}

func (p *Predictor) load() (*loaded, error) {
	if s := p.state.Load(); s != nil {
		return s, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if s := p.state.Load(); s != nil {
		return s, nil
	}

	const op = "Predictor.Load"
	tr, err := artifact.LoadTransformer(p.preprocessorPath)
	if err != nil {
		return nil, errors.NewInferenceError(op, err)
	}
	m, err := artifact.LoadModel(p.modelPath)
	if err != nil {
		return nil, errors.NewInferenceError(op, err)
	}
	if err := checkLayout(tr, m, p.modelPath); err != nil {
		return nil, errors.NewInferenceError(op, err)
	}

	s := &loaded{transformer: tr, model: m}
	p.state.Store(s)
	p.logger.Info("Artifacts loaded",
		log.PhaseKey, log.PhaseInference,
		log.OperationKey, log.OperationLoad,
		log.ModelNameKey, m.Name,
		log.RunIDKey, m.RunID,
		log.FeaturesKey, len(m.FeatureNames),
	)
	return s, nil
}

// both artifacts must come from the same training run
func checkLayout(tr *artifact.TransformerArtifact, m *artifact.ModelArtifact, modelPath string) error {
	names := tr.Transformer.FeatureNames()
	if len(names) != len(m.FeatureNames) {
		return errors.NewCorruptArtifactError(modelPath,
			errors.Newf("model expects %d features, transformer produces %d", len(m.FeatureNames), len(names)))
	}
	for i := range names {
		if names[i] != m.FeatureNames[i] {
			return errors.NewCorruptArtifactError(modelPath,
				errors.Newf("feature %d is %q in the model but %q in the transformer", i, m.FeatureNames[i], names[i]))
		}
	}
	return nil
}

// Info returns the loaded model's identity, loading the artifacts if needed
func (p *Predictor) Info() (ModelInfo, error) {
	s, err := p.load()
	if err != nil {
		return ModelInfo{}, err
	}
	return ModelInfo{RunID: s.model.RunID, Name: s.model.Name, TestScore: s.model.TestScore}, nil
}

// Predict returns the predicted math score for one record
func (p *Predictor) Predict(record dataset.Record) (float64, error) {
	out, err := p.predict("Predictor.Predict", record.Frame())
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// PredictFrame returns one prediction per row of frame. Columns other than
// the seven features are ignored.
func (p *Predictor) PredictFrame(frame *dataset.Frame) ([]float64, error) {
	return p.predict("Predictor.PredictFrame", frame)
}

func (p *Predictor) predict(op string, frame *dataset.Frame) ([]float64, error) {
	s, err := p.load()
	if err != nil {
		return nil, err
	}
	X, err := s.transformer.Transformer.Transform(frame)
	if err != nil {
		return nil, errors.NewInferenceError(op, err)
	}
	pred, err := s.model.Model.Predict(X)
	if err != nil {
		return nil, errors.NewInferenceError(op, err)
	}
	out := make([]float64, pred.Len())
	for i := range out {
		out[i] = pred.AtVec(i)
	}
	return out, nil
}

// Package artifact persists the fitted feature transformer and the selected
// model as self-describing gob files and loads them back.
//
// Writes are atomic: the value is encoded into a temporary file in the
// destination directory, synced, closed and renamed over the target, so a
// reader never observes a half-written artifact.
package artifact

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/examscore/core/model"
	"github.com/YuminosukeSato/examscore/pkg/errors"
	"github.com/YuminosukeSato/examscore/pkg/log"
	"github.com/YuminosukeSato/examscore/preprocessing"

	// concrete regressors must be registered before a ModelArtifact is decoded
	_ "github.com/YuminosukeSato/examscore/registry"
)

// TransformerArtifact is the persisted form of a fitted FeatureTransformer
type TransformerArtifact struct {
	RunID       string
	CreatedAt   time.Time
	Transformer *preprocessing.FeatureTransformer
}

// ModelArtifact is the persisted form of the selected model
type ModelArtifact struct {
	RunID        string
	Name         string
	Params       model.Params
	CVScore      float64
	TestScore    float64
	FeatureNames []string
	CreatedAt    time.Time
	Model        model.Regressor
}

// Save writes v to path atomically, creating parent directories as needed
func Save(path string, v interface{}) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create artifact directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return errors.Wrapf(err, "create temporary artifact in %s", dir)
	}
	tmpName := tmp.Name()
	closed := false
	defer func() {
		if !closed {
			_ = tmp.Close()
		}
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if err := model.Encode(tmp, v); err != nil {
		return errors.Wrapf(err, "encode artifact %s", path)
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrapf(err, "sync artifact %s", path)
	}
	closed = true
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close artifact %s", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "rename artifact into %s", path)
	}

	log.GetLoggerWithName("artifact").Debug("Artifact saved",
		log.OperationKey, log.OperationSave,
		log.PathKey, path,
	)
	return nil
}

// Load decodes the artifact at path into v. A missing file yields
// ArtifactNotFoundError and a decoding failure CorruptArtifactError.
func Load(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errors.NewArtifactNotFoundError(path)
		}
		return errors.Wrapf(err, "open artifact %s", path)
	}
	defer f.Close()

	if err := model.Decode(f, v); err != nil {
		return errors.NewCorruptArtifactError(path, err)
	}
	return nil
}

// SaveTransformer persists a fitted transformer
func SaveTransformer(path string, a *TransformerArtifact) error {
	if a == nil || a.Transformer == nil || !a.Transformer.IsFitted() {
		return errors.NewNotFittedError("FeatureTransformer", "SaveTransformer")
	}
	return Save(path, a)
}

// LoadTransformer loads a transformer artifact and checks it is usable
func LoadTransformer(path string) (*TransformerArtifact, error) {
	var a TransformerArtifact
	if err := Load(path, &a); err != nil {
		return nil, err
	}
	if a.Transformer == nil || !a.Transformer.IsFitted() {
		return nil, errors.NewCorruptArtifactError(path, errors.New("transformer is missing or not fitted"))
	}
	return &a, nil
}

// SaveModel persists the selected model
func SaveModel(path string, a *ModelArtifact) error {
	if a == nil || a.Model == nil || !a.Model.IsFitted() {
		return errors.NewNotFittedError("model", "SaveModel")
	}
	return Save(path, a)
}

// LoadModel loads a model artifact and checks it is usable
func LoadModel(path string) (*ModelArtifact, error) {
	var a ModelArtifact
	if err := Load(path, &a); err != nil {
		return nil, err
	}
	if a.Model == nil || !a.Model.IsFitted() {
		return nil, errors.NewCorruptArtifactError(path, errors.New("model is missing or not fitted"))
	}
	return &a, nil
}

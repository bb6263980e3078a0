package model_selection

import (
	"math/rand/v2"

	"github.com/YuminosukeSato/examscore/pkg/errors"
)

// CVFold represents a single fold in cross-validation
type CVFold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold implements k-fold cross-validation splitter
type KFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewKFold creates a new k-fold splitter
func NewKFold(nSplits int, shuffle bool, randomSeed uint64) *KFold {
	return &KFold{
		NSplits:    nSplits,
		Shuffle:    shuffle,
		RandomSeed: randomSeed,
	}
}

// GetNSplits returns the number of splits
func (kf *KFold) GetNSplits() int {
	return kf.NSplits
}

// Split generates train/test indices for each fold.
//
// Test folds are contiguous blocks of the (optionally shuffled) index order;
// the first nSamples % NSplits folds hold one extra sample. Train indices
// keep that order.
func (kf *KFold) Split(nSamples int) ([]CVFold, error) {
	if kf.NSplits < 2 {
		return nil, errors.NewValidationError("n_splits", "must be >= 2", kf.NSplits)
	}
	if nSamples < kf.NSplits {
		return nil, errors.NewValueError("KFold.Split",
			"cannot have number of splits greater than the number of samples")
	}

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}
	if kf.Shuffle {
		r := rand.New(rand.NewPCG(kf.RandomSeed, kf.RandomSeed))
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	folds := make([]CVFold, kf.NSplits)
	foldSize := nSamples / kf.NSplits
	remainder := nSamples % kf.NSplits

	current := 0
	for i := range folds {
		testSize := foldSize
		if i < remainder {
			testSize++
		}
		test := append([]int(nil), indices[current:current+testSize]...)
		train := make([]int, 0, nSamples-testSize)
		train = append(train, indices[:current]...)
		train = append(train, indices[current+testSize:]...)

		folds[i] = CVFold{TrainIndices: train, TestIndices: test}
		current += testSize
	}
	return folds, nil
}

package model_selection

import (
	"math"
	"math/rand/v2"

	"github.com/YuminosukeSato/examscore/pkg/errors"
)

// TrainTestSplit shuffles the row indices [0, nSamples) with a seeded PCG
// stream and returns ceil(testSize·nSamples) test rows and the rest as
// train rows, both in shuffled order.
//
// The same (nSamples, testSize, seed) always yields the same partition.
func TrainTestSplit(nSamples int, testSize float64, seed uint64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, errors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}
	nTest := int(math.Ceil(testSize * float64(nSamples)))
	nTrain := nSamples - nTest
	if nTest < 1 || nTrain < 1 {
		return nil, nil, errors.NewValueError("TrainTestSplit",
			"the resulting train or test set would be empty")
	}

	r := rand.New(rand.NewPCG(seed, seed))
	perm := r.Perm(nSamples)
	return perm[nTest:], perm[:nTest], nil
}

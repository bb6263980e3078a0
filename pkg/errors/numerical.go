package errors

import (
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
)

// NumericalInstabilityError is returned when a computation produced NaN or Inf.
type NumericalInstabilityError struct {
	Operation string    // where it happened, e.g. "FeatureTransformer.Transform"
	Values    []float64 // offending values (at most 10 are collected)
	Iteration int       // boosting round or row index, -1 when not applicable
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("examscore: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// NewNumericalInstabilityError creates a NumericalInstabilityError with a stack trace.
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	return errors.WithStack(&NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Iteration: iteration,
	})
}

// CheckMatrix checks all values in a matrix for numerical instability.
func CheckMatrix(operation string, matrix interface{ At(int, int) float64 }, rows, cols, iteration int) error {
	var unstableValues []float64

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := matrix.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				unstableValues = append(unstableValues, v)
				if len(unstableValues) >= 10 {
					break
				}
			}
		}
		if len(unstableValues) > 0 {
			break
		}
	}

	if len(unstableValues) > 0 {
		return NewNumericalInstabilityError(operation, unstableValues, iteration)
	}

	return nil
}

package model_selection

import (
	"sort"

	"github.com/YuminosukeSato/examscore/core/model"
	"github.com/YuminosukeSato/examscore/pkg/errors"
)

// ParamGrid maps a hyperparameter name to the values to try. An empty or nil
// grid has exactly one combination: the estimator's defaults.
type ParamGrid map[string][]interface{}

// Keys returns the parameter names in ascending order
func (g ParamGrid) Keys() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate rejects names without candidate values
func (g ParamGrid) Validate() error {
	for _, k := range g.Keys() {
		if len(g[k]) == 0 {
			return errors.NewValidationError(k, "parameter grid value list must not be empty", g[k])
		}
	}
	return nil
}

// Size returns the number of combinations
func (g ParamGrid) Size() int {
	n := 1
	for _, values := range g {
		n *= len(values)
	}
	return n
}

// Combinations enumerates the Cartesian product with parameter names in
// ascending order and the last name varying fastest, so the enumeration
// order is stable across runs.
func (g ParamGrid) Combinations() []model.Params {
	keys := g.Keys()
	out := make([]model.Params, 0, g.Size())

	counters := make([]int, len(keys))
	for {
		p := make(model.Params, len(keys))
		for i, k := range keys {
			if len(g[k]) == 0 {
				return nil
			}
			p[k] = g[k][counters[i]]
		}
		out = append(out, p)

		// odometer: advance the last key first
		i := len(keys) - 1
		for ; i >= 0; i-- {
			counters[i]++
			if counters[i] < len(g[keys[i]]) {
				break
			}
			counters[i] = 0
		}
		if i < 0 {
			return out
		}
	}
}

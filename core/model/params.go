package model

import (
	"fmt"
	"sort"
	"strings"

	esErrors "github.com/YuminosukeSato/examscore/pkg/errors"
)

// Params はハイパーパラメータ名から値への対応。値は int, float64, string のいずれか。
//
//	model.Params{
//	    "n_estimators":  64,
//	    "learning_rate": 0.1,
//	    "criterion":     "friedman_mse",
//	}
type Params map[string]interface{}

// Copy はパラメータの浅いコピーを返す。値はスカラーのみなので十分
func (p Params) Copy() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge はpにotherを上書きした新しいParamsを返す
func (p Params) Merge(other Params) Params {
	out := p.Copy()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Keys はパラメータ名を昇順で返す
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String はキー順に並べた安定な表現を返す。ログとレポートで使う
func (p Params) String() string {
	if len(p) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(p))
	for _, k := range p.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%v", k, p[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// GetInt は整数パラメータを返す。存在しなければ既定値
func (p Params) GetInt(name string, _default int) (int, error) {
	val, ok := p[name]
	if !ok {
		return _default, nil
	}
	switch v := val.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	}
	return _default, esErrors.NewValidationError(name, "must be an integer", val)
}

// GetFloat64 は実数パラメータを返す。整数値も受け付ける
func (p Params) GetFloat64(name string, _default float64) (float64, error) {
	val, ok := p[name]
	if !ok {
		return _default, nil
	}
	switch v := val.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return _default, esErrors.NewValidationError(name, "must be a number", val)
}

// GetString は文字列パラメータを返す
func (p Params) GetString(name string, _default string) (string, error) {
	val, ok := p[name]
	if !ok {
		return _default, nil
	}
	if s, ok := val.(string); ok {
		return s, nil
	}
	return _default, esErrors.NewValidationError(name, "must be a string", val)
}

// CheckKeys はallowed以外のキーが含まれていればValidationErrorを返す
func (p Params) CheckKeys(estimator string, allowed ...string) error {
	for _, k := range p.Keys() {
		found := false
		for _, a := range allowed {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			return esErrors.NewValidationError(k,
				fmt.Sprintf("unknown parameter for %s (valid: %s)", estimator, strings.Join(allowed, ", ")), p[k])
		}
	}
	return nil
}

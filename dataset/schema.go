// Package dataset defines the fixed student-performance schema and the
// tabular Frame handed to the feature transformer, plus CSV input/output and
// form decoding for single records.
package dataset

import (
	"math"
	"strconv"
	"strings"

	esErrors "github.com/YuminosukeSato/examscore/pkg/errors"
)

// Column names as they appear in the CSV header.
const (
	Gender            = "gender"
	RaceEthnicity     = "race_ethnicity"
	ParentalEducation = "parental_level_of_education"
	Lunch             = "lunch"
	TestPreparation   = "test_preparation_course"
	ReadingScore      = "reading_score"
	WritingScore      = "writing_score"

	// Target is present only in training data.
	Target = "math_score"
)

// MissingCategory is the value the web form submits for an unanswered
// categorical field. It is never part of a fitted vocabulary.
const MissingCategory = "nan"

// NumericColumns lists the numeric features in transformer output order.
func NumericColumns() []string {
	return []string{WritingScore, ReadingScore}
}

// CategoricalColumns lists the categorical features in transformer output order.
func CategoricalColumns() []string {
	return []string{Gender, RaceEthnicity, ParentalEducation, Lunch, TestPreparation}
}

// FeatureColumns lists all seven input columns in CSV order.
func FeatureColumns() []string {
	return []string{Gender, RaceEthnicity, ParentalEducation, Lunch, TestPreparation, ReadingScore, WritingScore}
}

// TrainingColumns lists the eight columns a training CSV must contain.
func TrainingColumns() []string {
	return append(FeatureColumns(), Target)
}

var missingNumeric = map[string]bool{
	"":     true,
	"nan":  true,
	"NaN":  true,
	"NA":   true,
	"null": true,
}

// ParseNumeric parses a numeric cell. Missing markers yield missing=true; any
// other non-numeric text is a SchemaError.
func ParseNumeric(op, column, cell string) (value float64, missing bool, err error) {
	s := strings.TrimSpace(cell)
	if missingNumeric[s] {
		return 0, true, nil
	}
	v, perr := strconv.ParseFloat(s, 64)
	if perr != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false, esErrors.NewSchemaError(op, column, "malformed numeric value "+strconv.Quote(cell))
	}
	return v, false, nil
}

package dataset

import (
	"strconv"
	"strings"

	esErrors "github.com/YuminosukeSato/examscore/pkg/errors"
)

// Record is one student's raw input fields.
type Record struct {
	Gender                   string
	RaceEthnicity            string
	ParentalLevelOfEducation string
	Lunch                    string
	TestPreparationCourse    string
	ReadingScore             int
	WritingScore             int
}

func (r Record) cells() []string {
	return []string{
		r.Gender,
		r.RaceEthnicity,
		r.ParentalLevelOfEducation,
		r.Lunch,
		r.TestPreparationCourse,
		strconv.Itoa(r.ReadingScore),
		strconv.Itoa(r.WritingScore),
	}
}

// RecordsFrame builds a single frame with one row per record.
func RecordsFrame(records ...Record) *Frame {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = r.cells()
	}
	f, _ := NewFrame(FeatureColumns(), rows)
	return f
}

// Frame returns the record as a one-row frame.
func (r Record) Frame() *Frame {
	return RecordsFrame(r)
}

// Form field names submitted by the prediction page. The form calls the
// ethnicity field "ethnicity"; everything else matches the column names.
const (
	FormGender            = "gender"
	FormEthnicity         = "ethnicity"
	FormParentalEducation = "parental_level_of_education"
	FormLunch             = "lunch"
	FormTestPreparation   = "test_preparation_course"
	FormReadingScore      = "reading_score"
	FormWritingScore      = "writing_score"
)

// RecordFromForm decodes a submitted form. Absent categorical fields become
// MissingCategory and absent scores become 0; a score that is present but not
// an integer is a SchemaError.
func RecordFromForm(get func(key string) string) (Record, error) {
	category := func(key string) string {
		v := strings.TrimSpace(get(key))
		if v == "" {
			return MissingCategory
		}
		return v
	}
	score := func(key, column string) (int, error) {
		v := strings.TrimSpace(get(key))
		if v == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			f, ferr := strconv.ParseFloat(v, 64)
			if ferr != nil || f != float64(int(f)) {
				return 0, esErrors.NewSchemaError("RecordFromForm", column, "score must be an integer, got "+strconv.Quote(v))
			}
			n = int(f)
		}
		return n, nil
	}

	rec := Record{
		Gender:                   category(FormGender),
		RaceEthnicity:            category(FormEthnicity),
		ParentalLevelOfEducation: category(FormParentalEducation),
		Lunch:                    category(FormLunch),
		TestPreparationCourse:    category(FormTestPreparation),
	}
	var err error
	if rec.ReadingScore, err = score(FormReadingScore, ReadingScore); err != nil {
		return Record{}, err
	}
	if rec.WritingScore, err = score(FormWritingScore, WritingScore); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Package datasettest builds small deterministic student tables for tests.
package datasettest

import (
	"strconv"

	"github.com/YuminosukeSato/examscore/dataset"
)

// MathScore is the noiseless target used by StudentFrame.
func MathScore(gender string, reading, writing int) float64 {
	score := 0.5*float64(reading) + 0.4*float64(writing)
	if gender == "male" {
		score += 5
	}
	return score
}

// StudentRecords returns n records whose categories cycle through two values
// per column and whose scores do not repeat.
func StudentRecords(n int) []dataset.Record {
	genders := []string{"female", "male"}
	races := []string{"group A", "group B"}
	parents := []string{"bachelor's degree", "some college"}
	lunches := []string{"standard", "free/reduced"}
	preps := []string{"none", "completed"}

	out := make([]dataset.Record, n)
	for i := range out {
		lunch := 0
		if i%3 == 0 {
			lunch = 1
		}
		out[i] = dataset.Record{
			Gender:                   genders[i%2],
			RaceEthnicity:            races[(i/2)%2],
			ParentalLevelOfEducation: parents[(i/4)%2],
			Lunch:                    lunches[lunch],
			TestPreparationCourse:    preps[(i/5)%2],
			ReadingScore:             40 + (i*7)%50,
			WritingScore:             35 + (i*13)%55,
		}
	}
	return out
}

// StudentFrame returns n training rows with all eight columns, the target
// computed by MathScore.
func StudentFrame(n int) *dataset.Frame {
	recs := StudentRecords(n)
	rows := make([][]string, n)
	for i, r := range recs {
		target := MathScore(r.Gender, r.ReadingScore, r.WritingScore)
		rows[i] = []string{
			r.Gender,
			r.RaceEthnicity,
			r.ParentalLevelOfEducation,
			r.Lunch,
			r.TestPreparationCourse,
			strconv.FormatFloat(target, 'f', -1, 64),
			strconv.Itoa(r.ReadingScore),
			strconv.Itoa(r.WritingScore),
		}
	}
	f, err := dataset.NewFrame([]string{
		dataset.Gender,
		dataset.RaceEthnicity,
		dataset.ParentalEducation,
		dataset.Lunch,
		dataset.TestPreparation,
		dataset.Target,
		dataset.ReadingScore,
		dataset.WritingScore,
	}, rows)
	if err != nil {
		panic(err)
	}
	return f
}

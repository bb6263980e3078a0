package main

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/examscore/dataset"
	"github.com/YuminosukeSato/examscore/pkg/errors"
)

type fakeScorer struct {
	got   dataset.Record
	score float64
	err   error
}

func (f *fakeScorer) Predict(rec dataset.Record) (float64, error) {
	f.got = rec
	return f.score, f.err
}

func postForm(h http.Handler, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/predict-data", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIndexAndForm(t *testing.T) {
	h := newHandler(&fakeScorer{})

	for _, path := range []string{"/", "/predict-data"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/predict-data", nil))
	assert.Contains(t, rec.Body.String(), `name="ethnicity"`)
	assert.NotContains(t, rec.Body.String(), "The prediction is")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPredictRoundsResult(t *testing.T) {
	fake := &fakeScorer{score: 71.23456}
	rec := postForm(newHandler(fake), url.Values{
		"gender":                      {"female"},
		"ethnicity":                   {"group B"},
		"parental_level_of_education": {"bachelor's degree"},
		"lunch":                       {"standard"},
		"test_preparation_course":     {"none"},
		"reading_score":               {"72"},
		"writing_score":               {"74"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "The prediction is 71.23")
	assert.Equal(t, dataset.Record{
		Gender:                   "female",
		RaceEthnicity:            "group B",
		ParentalLevelOfEducation: "bachelor's degree",
		Lunch:                    "standard",
		TestPreparationCourse:    "none",
		ReadingScore:             72,
		WritingScore:             74,
	}, fake.got)
}

func TestPredictDefaultsMissingFields(t *testing.T) {
	fake := &fakeScorer{score: 50}
	rec := postForm(newHandler(fake), url.Values{"gender": {"male"}})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "male", fake.got.Gender)
	assert.Equal(t, dataset.MissingCategory, fake.got.RaceEthnicity)
	assert.Equal(t, 0, fake.got.ReadingScore)
	assert.Contains(t, rec.Body.String(), "The prediction is 50")
}

func TestPredictFailures(t *testing.T) {
	rec := postForm(newHandler(&fakeScorer{}), url.Values{"reading_score": {"seventy"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, rec.Body.String(), "The prediction is")

	failing := &fakeScorer{err: errors.NewInferenceError("Predictor.Load", errors.NewArtifactNotFoundError("artifact/model.gob"))}
	rec = postForm(newHandler(failing), url.Values{"gender": {"male"}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Prediction failed.")
	assert.NotContains(t, rec.Body.String(), "artifact/model.gob")
}

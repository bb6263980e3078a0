package training

import (
	"math"

	"github.com/YuminosukeSato/examscore/core/model"
)

// ReportEntry is the outcome of one candidate.
type ReportEntry struct {
	Name string
	// TestScore is the held-out R² of the refitted best combination.
	TestScore float64
	// CVScore is the best mean cross-validation R².
	CVScore    float64
	BestParams model.Params
	RMSE       float64
	MAE        float64
}

// Report is the Selection Report: one entry per candidate, in catalog order.
type Report struct {
	Entries []ReportEntry
}

// Scores maps each candidate name to its test score
func (r *Report) Scores() map[string]float64 {
	out := make(map[string]float64, len(r.Entries))
	for _, e := range r.Entries {
		out[e.Name] = e.TestScore
	}
	return out
}

// Best returns the entry with the strictly highest test score. Exact ties go
// to the earlier entry and NaN scores never win.
func (r *Report) Best() (ReportEntry, bool) {
	best := r.bestIndex()
	if best < 0 {
		return ReportEntry{}, false
	}
	return r.Entries[best], true
}

func (r *Report) bestIndex() int {
	best := -1
	for i, e := range r.Entries {
		if math.IsNaN(e.TestScore) {
			continue
		}
		if best < 0 || e.TestScore > r.Entries[best].TestScore {
			best = i
		}
	}
	return best
}

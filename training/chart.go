package training

import (
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/examscore/pkg/errors"
)

// chartFloor is the lowest R² drawn; worse scores are clipped to it.
const chartFloor = -1.0

// SaveReportChart renders the test scores of report as a bar chart with the
// acceptance threshold drawn as a dashed line. The image format follows the
// file extension (png, svg, pdf, ...).
func SaveReportChart(report *Report, threshold float64, path string) error {
	if report == nil || len(report.Entries) == 0 {
		return errors.NewValueError("SaveReportChart", "report has no entries")
	}

	p := plot.New()
	p.Title.Text = "Test R² by candidate"
	p.Y.Label.Text = "R²"
	p.Y.Min = math.Min(0, chartFloor)
	p.Y.Max = 1

	values := make(plotter.Values, len(report.Entries))
	names := make([]string, len(report.Entries))
	for i, e := range report.Entries {
		names[i] = e.Name
		v := e.TestScore
		if math.IsNaN(v) || v < chartFloor {
			v = chartFloor
		}
		values[i] = v
	}

	bars, err := plotter.NewBarChart(values, vg.Points(24))
	if err != nil {
		return errors.Wrap(err, "build bar chart")
	}
	bars.Color = color.RGBA{R: 66, G: 133, B: 244, A: 255}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)

	n := float64(len(report.Entries))
	line, err := plotter.NewLine(plotter.XYs{{X: -0.5, Y: threshold}, {X: n - 0.5, Y: threshold}})
	if err != nil {
		return errors.Wrap(err, "build threshold line")
	}
	line.Color = color.RGBA{R: 219, G: 68, B: 55, A: 255}
	line.Dashes = []vg.Length{vg.Points(6), vg.Points(3)}
	p.Add(line)
	p.Legend.Add("threshold", line)
	p.Legend.Top = true

	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 6
	p.X.Tick.Label.XAlign = text.XRight

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create chart directory for %s", path)
	}
	width := vg.Length(math.Max(6, n)) * vg.Inch
	if err := p.Save(width, 5*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save chart %s", path)
	}
	return nil
}

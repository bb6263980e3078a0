package dataset

import (
	"fmt"

	esErrors "github.com/YuminosukeSato/examscore/pkg/errors"
)

// Frame is an immutable table of raw string cells with named columns.
// Cells keep their textual form; parsing and imputation belong to the
// transformer so that training and inference share one code path.
type Frame struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// NewFrame builds a Frame. Every row must have one cell per column and column
// names must be unique. The rows are copied.
func NewFrame(columns []string, rows [][]string) (*Frame, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return nil, esErrors.NewSchemaError("NewFrame", c, "duplicate column")
		}
		index[c] = i
	}
	cp := make([][]string, len(rows))
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, esErrors.NewSchemaError("NewFrame", fmt.Sprintf("row %d", i),
				fmt.Sprintf("expected %d cells, got %d", len(columns), len(r)))
		}
		cp[i] = append([]string(nil), r...)
	}
	return &Frame{
		columns: append([]string(nil), columns...),
		index:   index,
		rows:    cp,
	}, nil
}

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.columns...)
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.rows) }

// Has reports whether the frame has the named column.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns a copy of the named column's cells, or a SchemaError when the
// column is absent.
func (f *Frame) Column(name string) ([]string, error) {
	j, ok := f.index[name]
	if !ok {
		return nil, esErrors.NewSchemaError("Frame.Column", name, "column is missing")
	}
	out := make([]string, len(f.rows))
	for i, r := range f.rows {
		out[i] = r[j]
	}
	return out, nil
}

// Row returns a copy of row i.
func (f *Frame) Row(i int) []string {
	return append([]string(nil), f.rows[i]...)
}

// Select returns a new frame with the given rows in the given order.
func (f *Frame) Select(rows []int) *Frame {
	out := &Frame{columns: f.columns, index: f.index, rows: make([][]string, len(rows))}
	for i, r := range rows {
		out.rows[i] = f.rows[r]
	}
	return out
}

// Drop returns a new frame without the named columns. Absent names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	var keep []int
	var cols []string
	for j, c := range f.columns {
		if !drop[c] {
			keep = append(keep, j)
			cols = append(cols, c)
		}
	}
	rows := make([][]string, len(f.rows))
	for i, r := range f.rows {
		row := make([]string, len(keep))
		for k, j := range keep {
			row[k] = r[j]
		}
		rows[i] = row
	}
	out, _ := NewFrame(cols, rows)
	return out
}

// Target parses the named column as the numeric regression target. Missing or
// malformed target cells are schema violations.
func (f *Frame) Target(name string) ([]float64, error) {
	cells, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(cells))
	for i, c := range cells {
		v, missing, err := ParseNumeric("Frame.Target", name, c)
		if err != nil {
			return nil, err
		}
		if missing {
			return nil, esErrors.NewSchemaError("Frame.Target", name, fmt.Sprintf("missing target in row %d", i))
		}
		out[i] = v
	}
	return out, nil
}

// RequireExactly fails unless the frame has exactly the given columns, in any order.
func (f *Frame) RequireExactly(op string, columns []string) error {
	want := make(map[string]bool, len(columns))
	for _, c := range columns {
		want[c] = true
		if !f.Has(c) {
			return esErrors.NewSchemaError(op, c, "column is missing")
		}
	}
	for _, c := range f.columns {
		if !want[c] {
			return esErrors.NewSchemaError(op, c, "unexpected column")
		}
	}
	return nil
}

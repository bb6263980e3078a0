package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	esErrors "github.com/YuminosukeSato/examscore/pkg/errors"
)

// ReadCSV reads a header row followed by data rows. Header names are trimmed.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, esErrors.Wrap(err, "dataset: read csv")
	}
	if len(records) == 0 {
		return nil, esErrors.Wrap(esErrors.ErrEmptyData, "dataset: csv has no header")
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return NewFrame(header, records[1:])
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, esErrors.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close()

	frame, err := ReadCSV(f)
	if err != nil {
		return nil, esErrors.Wrapf(err, "dataset: %s", path)
	}
	return frame, nil
}

// WriteCSV writes the header and all rows.
func WriteCSV(w io.Writer, frame *Frame) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(frame.columns); err != nil {
		return esErrors.Wrap(err, "dataset: write csv header")
	}
	if err := writer.WriteAll(frame.rows); err != nil {
		return esErrors.Wrap(err, "dataset: write csv rows")
	}
	return nil
}

// WriteCSVFile writes frame to path, creating the parent directory.
func WriteCSVFile(path string, frame *Frame) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return esErrors.Wrapf(err, "dataset: create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return esErrors.Wrapf(err, "dataset: create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = esErrors.Wrapf(cerr, "dataset: close %s", path)
		}
	}()
	return WriteCSV(f, frame)
}

// Package spreadsheet turns an uploaded workbook into test case rows.
package spreadsheet

import (
	"io"
	"strings"

	"testbridge/internal/dashboard/model"
	appErr "testbridge/pkg/errors"

	"github.com/xuri/excelize/v2"
)

// RequiredColumns is the number of leading columns mapped to id, description
// and status. Extra columns are ignored.
const RequiredColumns = 3

// Options tunes how a sheet is read.
type Options struct {
	// HeaderRows is the number of leading rows skipped before data.
	HeaderRows int
	// Sheet selects a sheet by name; the first sheet is used when empty.
	Sheet string
	// UnzipSizeLimit caps the decompressed workbook size in bytes (0 keeps the library default).
	UnzipSizeLimit int64
}

// DefaultOptions skips a single header row on the first sheet.
func DefaultOptions() Options {
	return Options{HeaderRows: 1}
}

// Parse reads the workbook in r and returns its rows as test cases.
//
// The sheet must have at least RequiredColumns columns, counting the header
// rows. Rows that are entirely blank are dropped and short rows are padded
// with empty strings.
func Parse(r io.Reader, opts Options) (model.TestCaseSet, error) {
	if opts.HeaderRows < 0 {
		opts.HeaderRows = 0
	}
	var xopts []excelize.Options
	if opts.UnzipSizeLimit > 0 {
		xo := excelize.Options{UnzipSizeLimit: opts.UnzipSizeLimit}
		// excelize rejects a total limit below its per-part XML limit
		if opts.UnzipSizeLimit < excelize.StreamChunkSize {
			xo.UnzipXMLSizeLimit = opts.UnzipSizeLimit
		}
		xopts = append(xopts, xo)
	}
	f, err := excelize.OpenReader(r, xopts...)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidFormat, "Invalid file format. Not a readable .xlsx workbook")
	}
	defer func() {
		_ = f.Close()
	}()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, appErr.New(appErr.InvalidFormat).WithMessage("Invalid file format. Workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidFormat, "Invalid file format. Cannot read sheet %q", sheet)
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	if width < RequiredColumns {
		return nil, appErr.New(appErr.InvalidFormat).
			WithMessage("Invalid file format. Ensure at least three columns: id, description, status.").
			WithDetail("columns", width)
	}

	cases := model.TestCaseSet{}
	if opts.HeaderRows >= len(rows) {
		return cases, nil
	}
	for _, row := range rows[opts.HeaderRows:] {
		if isBlank(row) {
			continue
		}
		cells := make([]string, RequiredColumns)
		copy(cells, row)
		cases = append(cases, model.TestCase{
			ID:          cells[0],
			Description: cells[1],
			Status:      cells[2],
		})
	}
	return cases, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

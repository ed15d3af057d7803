package importer

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrEmptyWorkbook means the uploaded file opened but contains no sheets.
	ErrEmptyWorkbook = errors.New("workbook has no sheets")
	// ErrNoRows means the first sheet has no data rows below the header.
	ErrNoRows = errors.New("worksheet has no data rows")
)

// ReadWorkbook parses the first sheet of an xlsx stream into header-keyed
// rows. The first sheet row is the header; every data row is returned with
// all header labels present, missing cells mapped to the empty string.
func ReadWorkbook(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}

	raw, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(raw) < 2 {
		return nil, ErrNoRows
	}

	headers := make([]string, len(raw[0]))
	for i, label := range raw[0] {
		headers[i] = strings.TrimPrefix(strings.TrimSpace(label), "\ufeff")
	}

	rows := make([]Row, 0, len(raw)-1)
	for _, cells := range raw[1:] {
		row := make(Row, len(headers))
		for i, label := range headers {
			if label == "" {
				continue
			}
			if i < len(cells) {
				row[label] = cells[i]
			} else {
				row[label] = ""
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

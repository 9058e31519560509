// Package parser reads uploaded files as a stream of header-keyed rows
// so the raw-save stage doesn't care what format the upload came in.
package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// RowReader yields one row at a time keyed by header. Next returns
// io.EOF when the file is exhausted.
type RowReader interface {
	Headers() []string
	Next() (map[string]string, error)
}

// CSVReader reads comma or tab separated files. The first row is the
// header; short rows pad with empty strings and long rows error.
type CSVReader struct {
	reader  *csv.Reader
	headers []string
}

// NewCSVReader creates a reader and consumes the header row.
func NewCSVReader(r io.Reader, delimiter rune) (*CSVReader, error) {
	cr := csv.NewReader(r)
	if delimiter != 0 {
		cr.Comma = delimiter
	}
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	headers, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	return &CSVReader{
		reader:  cr,
		headers: headers,
	}, nil
}

// Headers returns the header row.
func (r *CSVReader) Headers() []string {
	return r.headers
}

// Next returns the next row keyed by header.
func (r *CSVReader) Next() (map[string]string, error) {
	record, err := r.reader.Read()
	if err != nil {
		return nil, err
	}
	if len(record) > len(r.headers) {
		return nil, fmt.Errorf("row has %d cells but header has %d", len(record), len(r.headers))
	}

	row := make(map[string]string, len(r.headers))
	for i, header := range r.headers {
		if i < len(record) {
			row[header] = record[i]
		} else {
			row[header] = ""
		}
	}
	return row, nil
}

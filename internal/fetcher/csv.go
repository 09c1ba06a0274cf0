// Package fetcher opens local and remote inputs and decodes them
// incrementally from CSV, XML, JSON and XLSX.
package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the CSV reader.
type CSVOptions struct {
	Delimiter  rune // default ','
	HasHeader  bool // if true, the first row is returned by Header instead of Next
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
}

// CSVReader reads rows one at a time.
type CSVReader struct {
	r      *csv.Reader
	opts   CSVOptions
	header []string
	read   bool
}

// NewCSVReader returns a reader over r.
func NewCSVReader(r io.Reader, opts CSVOptions) *CSVReader {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1 // allow variable fields
	return &CSVReader{r: reader, opts: opts}
}

// Header returns the header row. It is nil when HasHeader is false or the
// input is empty.
func (c *CSVReader) Header() ([]string, error) {
	if err := c.readHeader(); err != nil {
		return nil, err
	}
	return c.header, nil
}

func (c *CSVReader) readHeader() error {
	if c.read || !c.opts.HasHeader {
		c.read = true
		return nil
	}
	c.read = true
	row, err := c.row()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	c.header = row
	return nil
}

// Next returns the next data row, or io.EOF.
func (c *CSVReader) Next(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "csv: context cancelled")
	}
	if err := c.readHeader(); err != nil {
		return nil, err
	}
	return c.row()
}

func (c *CSVReader) row() ([]string, error) {
	record, err := c.r.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read row")
	}
	if c.opts.TrimSpace {
		for i, field := range record {
			record[i] = strings.TrimSpace(field)
		}
	}
	return record, nil
}

// ColumnIndex returns the position of name in header, matched
// case-insensitively after trimming, or -1.
func ColumnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), name) {
			return i
		}
	}
	return -1
}

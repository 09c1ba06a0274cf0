package pipeline

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/txscreen/internal/model"
)

// CSVSink writes results as CSV rows: a header first, then one row per
// result with the columns of model.Columns and, optionally, a reason column.
type CSVSink struct {
	name          string
	out           io.WriteCloser
	w             *csv.Writer
	includeReason bool
	rows          int64
	mu            sync.Mutex
	closed        bool
}

// CSVSinkOptions configures a CSVSink.
type CSVSinkOptions struct {
	// IncludeReason appends a "reason" column joining the result's reasons.
	IncludeReason bool
}

// CreateCSVSink creates (or truncates) the file at path and writes the header.
func CreateCSVSink(path string, opts CSVSinkOptions) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, model.NewError(model.KindSinkWrite, "create "+path, err)
	}
	s, err := NewCSVSink(path, f, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// NewCSVSink writes the header to out and returns a sink over it. Closing
// the sink closes out.
func NewCSVSink(name string, out io.WriteCloser, opts CSVSinkOptions) (*CSVSink, error) {
	s := &CSVSink{
		name:          name,
		out:           out,
		w:             csv.NewWriter(out),
		includeReason: opts.IncludeReason,
	}

	header := append([]string(nil), model.Columns...)
	if s.includeReason {
		header = append(header, "reason")
	}
	if err := s.w.Write(header); err != nil {
		return nil, model.NewError(model.KindSinkWrite, "write header to "+name, err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return nil, model.NewError(model.KindSinkWrite, "write header to "+name, err)
	}
	return s, nil
}

// WriteBatch appends results and flushes them to the underlying writer.
func (s *CSVSink) WriteBatch(_ context.Context, results []model.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.NewError(model.KindSinkWrite, "write to closed sink "+s.name, nil)
	}

	for _, r := range results {
		rec := r.Transaction.Record()
		if s.includeReason {
			rec = append(rec, strings.Join(r.Reasons, "; "))
		}
		if err := s.w.Write(rec); err != nil {
			return model.NewError(model.KindSinkWrite, "write row to "+s.name, err)
		}
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return model.NewError(model.KindSinkWrite, "flush "+s.name, err)
	}
	s.rows += int64(len(results))
	return nil
}

// Rows returns the number of data rows written.
func (s *CSVSink) Rows() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Close flushes and closes the underlying writer. It is safe to call twice.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.w.Flush()
	flushErr := s.w.Error()
	if err := s.out.Close(); err != nil {
		return eris.Wrapf(err, "pipeline: close %s", s.name)
	}
	if flushErr != nil {
		return eris.Wrapf(flushErr, "pipeline: flush %s", s.name)
	}
	return nil
}

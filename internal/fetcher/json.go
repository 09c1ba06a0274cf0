package fetcher

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// JSONArrayReader decodes the elements of a JSON array one at a time, so
// the array is never resident in memory. The array is either the top-level
// value or sits under a dotted key path such as "transactions" or
// "data.transactions". Sibling values skipped on the way to the array are
// decoded and discarded.
type JSONArrayReader[T any] struct {
	dec     *json.Decoder
	path    []string
	started bool
	done    bool
}

// NewJSONArrayReader returns a reader over r. An empty path means the
// document itself must be the array; with a path, a top-level array is
// also accepted.
func NewJSONArrayReader[T any](r io.Reader, path string) *JSONArrayReader[T] {
	var segs []string
	if path != "" {
		segs = strings.Split(path, ".")
	}
	return &JSONArrayReader[T]{dec: json.NewDecoder(r), path: segs}
}

// Next returns the next array element, or io.EOF after the last one.
func (j *JSONArrayReader[T]) Next(ctx context.Context) (T, error) {
	var item T
	if err := ctx.Err(); err != nil {
		return item, eris.Wrap(err, "json: context cancelled")
	}
	if j.done {
		return item, io.EOF
	}
	if !j.started {
		j.started = true
		if err := j.seek(); err != nil {
			j.done = true
			return item, err
		}
	}

	if !j.dec.More() {
		j.done = true
		if _, err := j.dec.Token(); err != nil && err != io.EOF {
			return item, eris.Wrap(err, "json: read closing token")
		}
		return item, io.EOF
	}

	if err := j.dec.Decode(&item); err != nil {
		j.done = true
		return item, eris.Wrap(err, "json: decode element")
	}
	return item, nil
}

// seek positions the decoder just inside the target array.
func (j *JSONArrayReader[T]) seek() error {
	tok, err := j.dec.Token()
	if err != nil {
		if err == io.EOF {
			return eris.New("json: empty document")
		}
		return eris.Wrap(err, "json: read opening token")
	}
	if delim, ok := tok.(json.Delim); ok && delim == '[' {
		return nil
	}

	for i, key := range j.path {
		if delim, ok := tok.(json.Delim); !ok || delim != '{' {
			return eris.Errorf("json: expected object above %q, got %v", key, tok)
		}
		if err := j.findKey(key); err != nil {
			return err
		}
		tok, err = j.dec.Token()
		if err != nil {
			return eris.Wrapf(err, "json: read value of %q", key)
		}
		if i == len(j.path)-1 {
			if delim, ok := tok.(json.Delim); !ok || delim != '[' {
				return eris.Errorf("json: expected '[' at %q, got %v", strings.Join(j.path, "."), tok)
			}
			return nil
		}
	}
	return eris.Errorf("json: expected '[', got %v", tok)
}

// findKey advances through the current object until key's value is next.
func (j *JSONArrayReader[T]) findKey(key string) error {
	for j.dec.More() {
		tok, err := j.dec.Token()
		if err != nil {
			return eris.Wrap(err, "json: read object key")
		}
		name, ok := tok.(string)
		if !ok {
			return eris.Errorf("json: expected object key, got %v", tok)
		}
		if name == key {
			return nil
		}
		var skip json.RawMessage
		if err := j.dec.Decode(&skip); err != nil {
			return eris.Wrapf(err, "json: skip value of %q", name)
		}
	}
	return eris.Errorf("json: key %q not found", key)
}

package fetcher

import (
	"context"
	"encoding/xml"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// XMLElementReader decodes every element with a given local name, at any
// depth, one at a time. T must be a struct with appropriate xml tags.
type XMLElementReader[T any] struct {
	dec         *xml.Decoder
	elementName string
	done        bool
}

// NewXMLElementReader returns a reader over r. Documents declaring a
// non-UTF-8 encoding are transcoded.
func NewXMLElementReader[T any](r io.Reader, elementName string) *XMLElementReader[T] {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return &XMLElementReader[T]{dec: dec, elementName: elementName}
}

// Next returns the next matching element, or io.EOF when the document ends.
func (x *XMLElementReader[T]) Next(ctx context.Context) (T, error) {
	var item T
	if x.done {
		return item, io.EOF
	}
	for {
		if err := ctx.Err(); err != nil {
			return item, eris.Wrap(err, "xml: context cancelled")
		}

		tok, err := x.dec.Token()
		if err == io.EOF {
			x.done = true
			return item, io.EOF
		}
		if err != nil {
			x.done = true
			return item, eris.Wrap(err, "xml: read token")
		}

		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != x.elementName {
			continue
		}

		if err := x.dec.DecodeElement(&item, &se); err != nil {
			x.done = true
			return item, eris.Wrap(err, "xml: decode element")
		}
		return item, nil
	}
}

package refdata

import (
	"context"
	"encoding/json"
	"io"

	"go.uber.org/zap"

	"github.com/sells-group/txscreen/internal/fetcher"
	"github.com/sells-group/txscreen/internal/model"
)

// DefaultTransactionsKey is the key the transaction array is expected under.
const DefaultTransactionsKey = "transactions"

// TransactionSource streams transactions from a JSON document.
type TransactionSource struct {
	location string
	body     io.ReadCloser
	reader   *fetcher.JSONArrayReader[json.RawMessage]
	read     int64
}

// OpenTransactions opens location and positions a reader on the
// transaction array found at key (a dotted path; a top-level array is also
// accepted).
func OpenTransactions(ctx context.Context, o *fetcher.Opener, location, key string) (*TransactionSource, error) {
	body, err := o.Open(ctx, location)
	if err != nil {
		return nil, model.NewError(model.KindSourceRead, "open "+location, err)
	}
	return NewTransactionSource(body, location, key), nil
}

// NewTransactionSource wraps an already open stream.
func NewTransactionSource(body io.ReadCloser, location, key string) *TransactionSource {
	return &TransactionSource{
		location: location,
		body:     body,
		reader:   fetcher.NewJSONArrayReader[json.RawMessage](body, key),
	}
}

// Next returns the next transaction, or io.EOF after the last one. Only
// failures of the JSON stream itself are KindSourceRead errors; an element
// with wrongly typed values is returned with Invalid set.
func (s *TransactionSource) Next(ctx context.Context) (model.Transaction, error) {
	raw, err := s.reader.Next(ctx)
	if err == io.EOF {
		return model.Transaction{}, io.EOF
	}
	if err != nil {
		return model.Transaction{}, model.NewError(model.KindSourceRead, "decode "+s.location, err)
	}
	s.read++

	tx := model.DecodeTransaction(raw)
	if len(tx.Invalid) > 0 {
		zap.L().Warn("refdata: transaction has invalid fields",
			zap.String("location", s.location),
			zap.Int64("element", s.read-1),
			zap.String("transaction_id", tx.ID),
			zap.Strings("fields", tx.Invalid),
		)
	}
	return tx, nil
}

// Read returns the number of transactions decoded so far.
func (s *TransactionSource) Read() int64 { return s.read }

// Close releases the underlying stream.
func (s *TransactionSource) Close() error {
	return s.body.Close()
}

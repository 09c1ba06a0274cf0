// Package model defines the records that flow through the screening pipeline.
package model

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// Columns is the output field set written to the flagged and review sinks.
var Columns = []string{
	"transaction_id",
	"sender_name",
	"receiver_name",
	"sender_address",
	"receiver_address",
	"amount",
}

// Transaction is a single decoded input record. It is read-only once the
// source has produced it.
type Transaction struct {
	ID              string `json:"transaction_id"`
	SenderName      string `json:"sender_name"`
	ReceiverName    string `json:"receiver_name"`
	SenderAddress   string `json:"sender_address"`
	ReceiverAddress string `json:"receiver_address"`
	Amount          string `json:"amount"` // decimal text as it appeared in the input

	// Invalid lists input keys whose value had the wrong JSON type; those
	// fields are left empty. "record" means the element was not an object.
	Invalid []string `json:"-"`
}

// Missing returns the names of required fields that are empty after
// trimming. The transaction ID is not required.
func (t Transaction) Missing() []string {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"sender_name", t.SenderName},
		{"receiver_name", t.ReceiverName},
		{"sender_address", t.SenderAddress},
		{"receiver_address", t.ReceiverAddress},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Problems returns the reasons the record is malformed: "invalid <key>"
// for each wrongly typed value, then "missing <field>" for each empty
// required field. It is empty for a well-formed record.
func (t Transaction) Problems() []string {
	var out []string
	for _, k := range t.Invalid {
		out = append(out, "invalid "+k)
	}
	for _, f := range t.Missing() {
		out = append(out, "missing "+f)
	}
	return out
}

// Record returns the transaction as a row ordered like Columns.
func (t Transaction) Record() []string {
	return []string{t.ID, t.SenderName, t.ReceiverName, t.SenderAddress, t.ReceiverAddress, t.Amount}
}

// text decodes a JSON string or number into its literal text.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return eris.Wrap(err, "model: decode string field")
		}
		*t = text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return eris.Wrapf(err, "model: field is neither string nor number: %s", string(b))
	}
	*t = text(n.String())
	return nil
}

type rawParty struct {
	Name    text `json:"name"`
	Address text `json:"address"`
}

// decodeFields decodes a transaction object key by key. Keys whose value
// has the wrong type are skipped and returned in invalid. err is set only
// when b is not a JSON object.
func decodeFields(b []byte) (t Transaction, invalid []string, err error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return Transaction{}, nil, eris.Wrap(err, "model: decode transaction")
	}
	if fields == nil {
		return Transaction{}, nil, eris.New("model: transaction is null")
	}

	str := func(key string) string {
		raw, ok := fields[key]
		if !ok {
			return ""
		}
		var v text
		if err := json.Unmarshal(raw, &v); err != nil {
			invalid = append(invalid, key)
			return ""
		}
		return string(v)
	}
	party := func(key string) rawParty {
		raw, ok := fields[key]
		if !ok || string(raw) == "null" {
			return rawParty{}
		}
		var p rawParty
		if err := json.Unmarshal(raw, &p); err != nil {
			invalid = append(invalid, key)
			return rawParty{}
		}
		return p
	}

	t = Transaction{
		ID:              str("transaction_id"),
		SenderName:      str("sender_name"),
		ReceiverName:    str("receiver_name"),
		SenderAddress:   str("sender_address"),
		ReceiverAddress: str("receiver_address"),
		Amount:          str("amount"),
	}
	altAmount := str("transaction_amount")
	if t.Amount == "" {
		t.Amount = altAmount
	}
	sender, receiver := party("sender"), party("receiver")
	t.SenderName = firstNonEmpty(t.SenderName, string(sender.Name))
	t.SenderAddress = firstNonEmpty(t.SenderAddress, string(sender.Address))
	t.ReceiverName = firstNonEmpty(t.ReceiverName, string(receiver.Name))
	t.ReceiverAddress = firstNonEmpty(t.ReceiverAddress, string(receiver.Address))
	return t, invalid, nil
}

// UnmarshalJSON accepts the flat layout (sender_name, sender_address, ...)
// and the nested one (sender: {name, address}). The amount may be named
// either amount or transaction_amount. A value of the wrong type is an
// error; DecodeTransaction is the lenient form.
func (t *Transaction) UnmarshalJSON(b []byte) error {
	tx, invalid, err := decodeFields(b)
	if err != nil {
		return err
	}
	if len(invalid) > 0 {
		return eris.Errorf("model: invalid transaction fields: %s", strings.Join(invalid, ", "))
	}
	*t = tx
	return nil
}

// DecodeTransaction decodes one element of a transaction feed. It never
// fails: wrongly typed values are recorded in Invalid so the record can be
// screened as malformed instead of stopping the feed.
func DecodeTransaction(raw json.RawMessage) Transaction {
	tx, invalid, err := decodeFields(raw)
	if err != nil {
		return Transaction{Invalid: []string{"record"}}
	}
	tx.Invalid = invalid
	return tx
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// BlacklistEntry is a sanctioned entity. Meta carries any other attributes
// of the source record; matching only looks at Name.
type BlacklistEntry struct {
	Name string            `json:"name" yaml:"name"`
	Meta map[string]string `json:"meta,omitempty" yaml:"meta,omitempty"`
}

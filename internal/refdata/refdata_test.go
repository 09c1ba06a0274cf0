package refdata

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/txscreen/internal/fetcher"
	"github.com/sells-group/txscreen/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func names(entries []model.BlacklistEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestLoadCountries(t *testing.T) {
	got, err := LoadCountries(strings.NewReader("\ufeffIran\n\n  North Korea  \r\nSyria\n   \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Iran", "North Korea", "Syria"}, got)

	got, err = LoadCountries(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadJurisdictions(t *testing.T) {
	sanctioned := writeFile(t, "sanctioned.txt", "Iran\nAtlantis\n")
	all := writeFile(t, "all.txt", "Iran\nCanada\nFrance\n")

	j, err := LoadJurisdictions(context.Background(), &fetcher.Opener{}, sanctioned, all)
	require.NoError(t, err)
	assert.True(t, j.IsSanctioned("Iran"))
	assert.True(t, j.IsSanctioned("Atlantis"))
	assert.True(t, j.IsKnown("Canada"))
	assert.Equal(t, []string{"Atlantis"}, j.Orphans())
}

func TestLoadJurisdictions_MissingFile(t *testing.T) {
	all := writeFile(t, "all.txt", "Canada\n")
	_, err := LoadJurisdictions(context.Background(), &fetcher.Opener{}, filepath.Join(t.TempDir(), "missing.txt"), all)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindReferenceData))
}

func TestLoadBlacklist_XML(t *testing.T) {
	path := writeFile(t, "blacklist.xml", `<?xml version="1.0"?>
<blacklist>
  <individual id="7">
    <name> Osama bin Laden </name>
    <program>SDGT</program>
  </individual>
  <individual name="Viktor Bout"/>
  <individual><program>no name</program></individual>
</blacklist>`)

	entries, err := LoadBlacklist(context.Background(), &fetcher.Opener{}, path, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Osama bin Laden", entries[0].Name)
	assert.Equal(t, map[string]string{"id": "7", "program": "SDGT"}, entries[0].Meta)
	assert.Equal(t, "Viktor Bout", entries[1].Name)
	assert.Nil(t, entries[1].Meta)
}

func TestLoadBlacklist_XMLCustomElement(t *testing.T) {
	path := writeFile(t, "list.xml", `<list><entity><name>Acme Shell Co</name></entity><individual><name>Skipped</name></individual></list>`)

	entries, err := LoadBlacklist(context.Background(), &fetcher.Opener{}, path, "entity")
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Shell Co"}, names(entries))
}

func TestLoadBlacklist_JSON(t *testing.T) {
	keyed := writeFile(t, "keyed.json", `{"source":"ofac","blacklist":[{"name":"Osama bin Laden","rank":1},{"alias":"x"}]}`)
	entries, err := LoadBlacklist(context.Background(), &fetcher.Opener{}, keyed, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Osama bin Laden", entries[0].Name)
	assert.Equal(t, "1", entries[0].Meta["rank"])

	bare := writeFile(t, "bare.json", `[{"name":"A"},{"name":"B"}]`)
	entries, err = LoadBlacklist(context.Background(), &fetcher.Opener{}, bare, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names(entries))
}

func TestLoadBlacklist_CSV(t *testing.T) {
	path := writeFile(t, "blacklist.csv", "id,Name,program\n1,Osama bin Laden,SDGT\n2,,none\n3,Viktor Bout,\n")

	entries, err := LoadBlacklist(context.Background(), &fetcher.Opener{}, path, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Osama bin Laden", entries[0].Name)
	assert.Equal(t, map[string]string{"id": "1", "program": "SDGT"}, entries[0].Meta)
	assert.Equal(t, map[string]string{"id": "3"}, entries[1].Meta)
}

func TestLoadBlacklist_CSVWithoutNameColumn(t *testing.T) {
	path := writeFile(t, "blacklist.csv", "id,alias\n1,x\n")

	_, err := LoadBlacklist(context.Background(), &fetcher.Opener{}, path, "")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindReferenceData))
	assert.Contains(t, err.Error(), "no name column")
}

func TestLoadBlacklist_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("SDN")
	require.NoError(t, err)
	for _, r := range [][]string{{"name", "program"}, {"Osama bin Laden", "SDGT"}, {"Viktor Bout", "UKRAINE-EO13660"}} {
		row := sheet.AddRow()
		for _, c := range r {
			row.AddCell().SetString(c)
		}
	}
	path := filepath.Join(t.TempDir(), "blacklist.xlsx")
	require.NoError(t, f.Save(path))

	entries, err := LoadBlacklist(context.Background(), &fetcher.Opener{}, path, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Osama bin Laden", "Viktor Bout"}, names(entries))
	assert.Equal(t, "SDGT", entries[0].Meta["program"])
}

func TestLoadBlacklist_PlainText(t *testing.T) {
	path := writeFile(t, "blacklist.txt", "Osama bin Laden\n\nViktor Bout\n")

	entries, err := LoadBlacklist(context.Background(), &fetcher.Opener{}, path, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Osama bin Laden", "Viktor Bout"}, names(entries))
}

func TestLoadBlacklist_NoneConfigured(t *testing.T) {
	entries, err := LoadBlacklist(context.Background(), &fetcher.Opener{}, "", "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadBlacklist_MalformedXML(t *testing.T) {
	path := writeFile(t, "blacklist.xml", `<blacklist><individual><name>A</name></individual><individual><name>B`)

	_, err := LoadBlacklist(context.Background(), &fetcher.Opener{}, path, "")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindReferenceData))
}

func TestTransactionSource(t *testing.T) {
	doc := `{"transactions":[
		{"transaction_id":"T1","sender_name":"Alice","receiver_name":"Bob","sender_address":"Canada","receiver_address":"France","amount":100.50},
		{"transaction_id":"T2","sender":{"name":"Carol","address":"Iran"},"receiver":{"name":"Dan","address":"Canada"},"transaction_amount":"7"}
	]}`
	src := NewTransactionSource(io.NopCloser(strings.NewReader(doc)), "inline", DefaultTransactionsKey)
	defer src.Close() //nolint:errcheck

	tx, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T1", tx.ID)
	assert.Equal(t, "100.50", tx.Amount)

	tx, err = src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Carol", tx.SenderName)
	assert.Equal(t, "Iran", tx.SenderAddress)

	_, err = src.Next(context.Background())
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, int64(2), src.Read())
}

func TestTransactionSource_DecodeError(t *testing.T) {
	src := NewTransactionSource(io.NopCloser(strings.NewReader(`{"transactions":[{"transaction_id":"T1"},{bad`)), "inline", "transactions")

	_, err := src.Next(context.Background())
	require.NoError(t, err)

	_, err = src.Next(context.Background())
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindSourceRead))
}

func TestTransactionSource_BadlyTypedRecordDoesNotStopFeed(t *testing.T) {
	doc := `{"transactions":[
		{"transaction_id":"T1","sender_name":"Alice","receiver_name":"Bob","sender_address":"Canada","receiver_address":"France"},
		{"transaction_id":"T2","sender_name":["x"],"receiver_name":"Bob","sender_address":"Canada","receiver_address":"France"},
		1,
		{"transaction_id":"T3","sender_name":"Carol","receiver_name":"Dan","sender_address":"Canada","receiver_address":"France"}
	]}`
	src := NewTransactionSource(io.NopCloser(strings.NewReader(doc)), "inline", DefaultTransactionsKey)
	defer src.Close() //nolint:errcheck

	var got []model.Transaction
	for {
		tx, err := src.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, tx)
	}

	require.Len(t, got, 4)
	assert.Empty(t, got[0].Invalid)
	assert.Equal(t, "T2", got[1].ID)
	assert.Equal(t, []string{"sender_name"}, got[1].Invalid)
	assert.Equal(t, "Bob", got[1].ReceiverName)
	assert.Equal(t, []string{"record"}, got[2].Invalid)
	assert.Equal(t, "T3", got[3].ID)
	assert.Empty(t, got[3].Invalid)
	assert.Equal(t, int64(4), src.Read())
}

func TestOpenTransactions_Missing(t *testing.T) {
	_, err := OpenTransactions(context.Background(), &fetcher.Opener{}, filepath.Join(t.TempDir(), "none.json"), "transactions")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindSourceRead))
}

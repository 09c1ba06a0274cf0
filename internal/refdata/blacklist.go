package refdata

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/txscreen/internal/fetcher"
	"github.com/sells-group/txscreen/internal/model"
)

// DefaultBlacklistElement is the XML element holding one blacklist entry.
const DefaultBlacklistElement = "individual"

// xmlEntry captures an entry element generically: the name comes from a
// <name> child (or a name attribute); every other child or attribute
// becomes metadata.
type xmlEntry struct {
	Attrs  []xml.Attr `xml:",any,attr"`
	Fields []xmlField `xml:",any"`
}

type xmlField struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

func (e xmlEntry) entry() model.BlacklistEntry {
	var out model.BlacklistEntry
	meta := map[string]string{}
	for _, a := range e.Attrs {
		if a.Name.Local == "name" && out.Name == "" {
			out.Name = strings.TrimSpace(a.Value)
			continue
		}
		meta[a.Name.Local] = a.Value
	}
	for _, f := range e.Fields {
		v := strings.TrimSpace(f.Value)
		if f.XMLName.Local == "name" {
			out.Name = v
			continue
		}
		if v != "" {
			meta[f.XMLName.Local] = v
		}
	}
	if len(meta) > 0 {
		out.Meta = meta
	}
	return out
}

// LoadBlacklist loads blacklist entries from location, choosing the format
// by extension: .xml, .json, .csv, .xlsx, anything else is read as plain
// text with one name per line. An empty location yields an empty list.
// Entries without a name are skipped.
func LoadBlacklist(ctx context.Context, o *fetcher.Opener, location, element string) ([]model.BlacklistEntry, error) {
	if location == "" {
		zap.L().Warn("refdata: no blacklist configured, name screening disabled")
		return nil, nil
	}
	if element == "" {
		element = DefaultBlacklistElement
	}

	var (
		entries []model.BlacklistEntry
		err     error
	)
	ext := fetcher.Ext(location)
	if ext == ".xlsx" {
		entries, err = loadXLSXBlacklist(ctx, o, location)
	} else {
		entries, err = loadStreamBlacklist(ctx, o, location, ext, element)
	}
	if err != nil {
		return nil, model.NewError(model.KindReferenceData, "load blacklist "+location, err)
	}

	zap.L().Info("refdata: blacklist loaded",
		zap.String("location", location),
		zap.Int("entries", len(entries)),
	)
	return entries, nil
}

func loadStreamBlacklist(ctx context.Context, o *fetcher.Opener, location, ext, element string) ([]model.BlacklistEntry, error) {
	rc, err := o.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	switch ext {
	case ".xml":
		return readXMLBlacklist(ctx, rc, element)
	case ".json":
		return readJSONBlacklist(ctx, rc)
	case ".csv":
		return readCSVBlacklist(ctx, rc)
	default:
		names, err := readLines(rc)
		if err != nil {
			return nil, eris.Wrap(err, "refdata: read blacklist lines")
		}
		entries := make([]model.BlacklistEntry, len(names))
		for i, n := range names {
			entries[i] = model.BlacklistEntry{Name: n}
		}
		return entries, nil
	}
}

func readXMLBlacklist(ctx context.Context, r io.Reader, element string) ([]model.BlacklistEntry, error) {
	xr := fetcher.NewXMLElementReader[xmlEntry](r, element)
	var entries []model.BlacklistEntry
	for {
		raw, err := xr.Next(ctx)
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		if e := raw.entry(); e.Name != "" {
			entries = append(entries, e)
		}
	}
}

// jsonEntry accepts any object with a name; other scalar members become
// metadata.
type jsonEntry map[string]any

func (j jsonEntry) entry() model.BlacklistEntry {
	var out model.BlacklistEntry
	meta := map[string]string{}
	for k, v := range j {
		s, ok := scalarText(v)
		if !ok {
			continue
		}
		if k == "name" {
			out.Name = strings.TrimSpace(s)
			continue
		}
		meta[k] = s
	}
	if len(meta) > 0 {
		out.Meta = meta
	}
	return out
}

func scalarText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		b, _ := json.Marshal(t)
		return string(b), true
	case bool:
		if t {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}

func readJSONBlacklist(ctx context.Context, r io.Reader) ([]model.BlacklistEntry, error) {
	jr := fetcher.NewJSONArrayReader[jsonEntry](r, "blacklist")
	var entries []model.BlacklistEntry
	for {
		raw, err := jr.Next(ctx)
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		if e := raw.entry(); e.Name != "" {
			entries = append(entries, e)
		}
	}
}

func readCSVBlacklist(ctx context.Context, r io.Reader) ([]model.BlacklistEntry, error) {
	cr := fetcher.NewCSVReader(r, fetcher.CSVOptions{HasHeader: true, TrimSpace: true, LazyQuotes: true})
	header, err := cr.Header()
	if err != nil {
		return nil, err
	}
	var rows [][]string
	for {
		row, err := cr.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return entriesFromRows(header, rows)
}

func loadXLSXBlacklist(ctx context.Context, o *fetcher.Opener, location string) ([]model.BlacklistEntry, error) {
	path, cleanup, err := o.LocalPath(ctx, location)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return entriesFromRows(rows[0], rows[1:])
}

// entriesFromRows maps tabular rows to entries using the "name" column of
// header; the other columns become metadata.
func entriesFromRows(header []string, rows [][]string) ([]model.BlacklistEntry, error) {
	if header == nil {
		return nil, nil
	}
	nameCol := fetcher.ColumnIndex(header, "name")
	if nameCol < 0 {
		return nil, eris.Errorf("refdata: blacklist header has no name column: %v", header)
	}

	var entries []model.BlacklistEntry
	for _, row := range rows {
		if nameCol >= len(row) {
			continue
		}
		name := strings.TrimSpace(row[nameCol])
		if name == "" {
			continue
		}
		e := model.BlacklistEntry{Name: name}
		for i, v := range row {
			if i == nameCol || i >= len(header) || v == "" {
				continue
			}
			if e.Meta == nil {
				e.Meta = map[string]string{}
			}
			e.Meta[strings.ToLower(strings.TrimSpace(header[i]))] = v
		}
		entries = append(entries, e)
	}
	return entries, nil
}

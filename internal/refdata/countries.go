// Package refdata loads the reference lists a screening run depends on
// (jurisdictions and the blacklist) and exposes the transaction feed as a
// pipeline source.
package refdata

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/txscreen/internal/fetcher"
	"github.com/sells-group/txscreen/internal/model"
	"github.com/sells-group/txscreen/internal/screen"
)

// LoadCountries reads one country name per line. Lines are trimmed and
// blank lines are skipped; order is preserved and duplicates are kept.
func LoadCountries(r io.Reader) ([]string, error) {
	names, err := readLines(r)
	if err != nil {
		return nil, eris.Wrap(err, "refdata: read countries")
	}
	return names, nil
}

func readLines(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

func loadCountriesFrom(ctx context.Context, o *fetcher.Opener, location string) ([]string, error) {
	rc, err := o.Open(ctx, location)
	if err != nil {
		return nil, model.NewError(model.KindReferenceData, "open "+location, err)
	}
	defer rc.Close() //nolint:errcheck

	names, err := LoadCountries(rc)
	if err != nil {
		return nil, model.NewError(model.KindReferenceData, "read "+location, err)
	}
	return names, nil
}

// LoadJurisdictions loads the sanctioned and known country lists and builds
// the jurisdiction sets. Sanctioned names absent from the known list are
// logged as a warning but kept.
func LoadJurisdictions(ctx context.Context, o *fetcher.Opener, sanctionedLoc, allLoc string) (*screen.Jurisdictions, error) {
	sanctioned, err := loadCountriesFrom(ctx, o, sanctionedLoc)
	if err != nil {
		return nil, err
	}
	all, err := loadCountriesFrom(ctx, o, allLoc)
	if err != nil {
		return nil, err
	}

	j := screen.NewJurisdictions(sanctioned, all)
	if orphans := j.Orphans(); len(orphans) > 0 {
		zap.L().Warn("refdata: sanctioned countries missing from the known list",
			zap.Strings("countries", orphans),
		)
	}

	nSanctioned, nAll := j.Len()
	zap.L().Info("refdata: jurisdictions loaded",
		zap.Int("sanctioned", nSanctioned),
		zap.Int("known", nAll),
	)
	return j, nil
}

// Package screen classifies transactions against sanctioned jurisdictions
// and a blacklist of sanctioned entities.
package screen

import (
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Jurisdictions holds the known-country and sanctioned-country sets for a
// run. It is immutable after construction and safe for concurrent reads.
type Jurisdictions struct {
	all        map[string]struct{}
	sanctioned map[string]struct{}
}

// NewJurisdictions builds the sets from already-trimmed country names.
// Empty names are ignored.
func NewJurisdictions(sanctioned, all []string) *Jurisdictions {
	return &Jurisdictions{
		all:        toSet(all),
		sanctioned: toSet(sanctioned),
	}
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		set[n] = struct{}{}
	}
	return set
}

// IsSanctioned reports whether name is a sanctioned country.
func (j *Jurisdictions) IsSanctioned(name string) bool {
	_, ok := j.sanctioned[name]
	return ok
}

// IsKnown reports whether name is in the known-country set.
func (j *Jurisdictions) IsKnown(name string) bool {
	_, ok := j.all[name]
	return ok
}

// Orphans returns sanctioned countries missing from the known-country set,
// sorted. Extraction still reports them as sanctioned.
func (j *Jurisdictions) Orphans() []string {
	var out []string
	for name := range j.sanctioned {
		if _, ok := j.all[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Len returns the sizes of the sanctioned and known sets.
func (j *Jurisdictions) Len() (sanctioned, all int) {
	return len(j.sanctioned), len(j.all)
}

// ExtractionMode selects how unrecognized address parts are treated.
type ExtractionMode string

const (
	// ExtractStrict stops at the first unrecognized part from the right.
	ExtractStrict ExtractionMode = "strict"
	// ExtractLenient skips unrecognized parts and only reports one when no
	// part of the address is a known country.
	ExtractLenient ExtractionMode = "lenient"
)

// Extractor pulls a country token out of a free-text address.
type Extractor struct {
	j    *Jurisdictions
	mode ExtractionMode
}

// NewExtractor returns an Extractor over j. An empty mode means ExtractStrict.
func NewExtractor(j *Jurisdictions, mode ExtractionMode) *Extractor {
	if mode == "" {
		mode = ExtractStrict
	}
	return &Extractor{j: j, mode: mode}
}

// splitAddress splits on commas and semicolons and drops empty parts.
func splitAddress(address string) []string {
	fields := strings.FieldsFunc(address, func(r rune) bool { return r == ',' || r == ';' })
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if p := strings.TrimSpace(f); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// Extract scans the address parts right to left, since the trailing
// component of a postal address is conventionally the country. It returns
// the first part that is a sanctioned country or that is not a known
// country at all. Known, non-sanctioned countries are skipped. ok is false
// when no part produced a signal.
func (e *Extractor) Extract(address string) (token string, ok bool) {
	parts := splitAddress(address)

	if e.mode == ExtractLenient {
		return e.extractLenient(address, parts)
	}

	for i := len(parts) - 1; i >= 0; i-- {
		part := parts[i]
		if e.j.IsSanctioned(part) {
			zap.L().Debug("screen: sanctioned country in address",
				zap.String("address", address),
				zap.String("country", part),
			)
			return part, true
		}
		if !e.j.IsKnown(part) {
			return part, true
		}
	}
	return "", false
}

func (e *Extractor) extractLenient(address string, parts []string) (string, bool) {
	var unresolved string
	known := false
	for i := len(parts) - 1; i >= 0; i-- {
		part := parts[i]
		switch {
		case e.j.IsSanctioned(part):
			zap.L().Debug("screen: sanctioned country in address",
				zap.String("address", address),
				zap.String("country", part),
			)
			return part, true
		case e.j.IsKnown(part):
			known = true
		case unresolved == "":
			unresolved = part
		}
	}
	if known || unresolved == "" {
		return "", false
	}
	return unresolved, true
}

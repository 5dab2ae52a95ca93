package extract

import (
	"fmt"
	"strings"

	"golang.org/x/net/idna"

	"github.com/cognicore/ifice/pkg/ifice/config"
	"github.com/cognicore/ifice/pkg/ifice/ingest"
	"github.com/cognicore/ifice/pkg/ifice/internalerr"
)

// Index is the taxonomy compiled into lookup structures. It is immutable
// after NewIndex and shared by every extractor.
type Index struct {
	taxonomy *config.Taxonomy

	industries *Matcher // industry keywords
	regions    *Matcher // province names, aliases, cities
	gazetteer  *Matcher // regions plus districts

	displayNames map[string]string // normalized industry display name → code
	districts    map[string][]Entry

	mobile   map[string]string // 7-digit segment → region
	area     map[string]string // landline area code → region
	country  map[string]string // international dialing code → region
	carriers map[string]string

	emailDomains  map[string]string
	emailSuffixes map[string]string
}

// NewIndex compiles a validated taxonomy. Contact tables that assign one
// prefix or domain to two regions are rejected.
func NewIndex(tax *config.Taxonomy) (*Index, error) {
	if tax == nil {
		return nil, fmt.Errorf("%w: nil taxonomy", internalerr.ErrInvalidConfig)
	}
	idx := &Index{
		taxonomy:      tax,
		industries:    newMatcher(),
		regions:       newMatcher(),
		gazetteer:     newMatcher(),
		displayNames:  make(map[string]string),
		districts:     make(map[string][]Entry),
		mobile:        make(map[string]string),
		area:          make(map[string]string),
		country:       make(map[string]string),
		carriers:      make(map[string]string),
		emailDomains:  make(map[string]string),
		emailSuffixes: make(map[string]string),
	}

	for _, ind := range tax.Industries {
		idx.displayNames[ingest.Normalize(ind.Name)] = ind.Code
		for _, kw := range ind.Keywords {
			idx.industries.add(kw, Entry{Kind: KindIndustry, Code: ind.Code})
		}
	}

	for _, reg := range tax.Regions {
		province := Entry{Kind: KindProvince, Code: reg.Code}
		for _, term := range append([]string{reg.Name}, reg.Aliases...) {
			idx.regions.add(term, province)
			idx.gazetteer.add(term, province)
		}
		for city, districts := range reg.Cities {
			ce := Entry{Kind: KindCity, Code: reg.Code, City: city}
			idx.regions.add(city, ce)
			idx.gazetteer.add(city, ce)
			for _, d := range districts {
				de := Entry{Kind: KindDistrict, Code: reg.Code, City: city}
				idx.gazetteer.add(d, de)
				key := ingest.Normalize(d)
				idx.districts[key] = append(idx.districts[key], de)
			}
		}

		if err := claim(idx.mobile, reg.MobilePrefixes, reg.Code, "mobile prefix"); err != nil {
			return nil, err
		}
		if err := claim(idx.area, reg.AreaCodes, reg.Code, "area code"); err != nil {
			return nil, err
		}
		if err := claim(idx.country, reg.CountryCodes, reg.Code, "country code"); err != nil {
			return nil, err
		}
		if err := claim(idx.emailDomains, normalizeDomains(reg.EmailDomains), reg.Code, "email domain"); err != nil {
			return nil, err
		}
		if err := claim(idx.emailSuffixes, normalizeDomains(reg.EmailSuffixes), reg.Code, "email suffix"); err != nil {
			return nil, err
		}
	}

	for prefix, carrier := range tax.Carriers {
		idx.carriers[prefix] = carrier
	}
	return idx, nil
}

func claim(table map[string]string, keys []string, code, what string) error {
	for _, k := range keys {
		if k == "" {
			continue
		}
		if owner, ok := table[k]; ok && owner != code {
			return fmt.Errorf("%w: %s %q claimed by both %s and %s", internalerr.ErrInvalidConfig, what, k, owner, code)
		}
		table[k] = code
	}
	return nil
}

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		if n, ok := normalizeDomain(d); ok {
			out = append(out, n)
		}
	}
	return out
}

// normalizeDomain lower-cases a host name and converts it to its ASCII
// (punycode) form. Leading dots are tolerated so ".sd.cn" and "sd.cn" agree.
func normalizeDomain(d string) (string, bool) {
	d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), ".")
	if d == "" {
		return "", false
	}
	ascii, err := idna.Lookup.ToASCII(d)
	if err != nil {
		return "", false
	}
	return ascii, true
}

// Taxonomy returns the taxonomy the index was built from.
func (idx *Index) Taxonomy() *config.Taxonomy {
	return idx.taxonomy
}

// IndustryLabel returns the display name of an industry code.
func (idx *Index) IndustryLabel(code string) string {
	return idx.taxonomy.IndustryName(code)
}

// RegionLabel returns the display name of a region code.
func (idx *Index) RegionLabel(code string) string {
	return idx.taxonomy.RegionName(code)
}

// uniqueDistrict returns the single region a district name belongs to.
// Districts shared by several cities (西湖区, 和平区) are not evidence.
func (idx *Index) uniqueDistrict(term string) (Entry, bool) {
	entries := idx.districts[term]
	if len(entries) != 1 {
		return Entry{}, false
	}
	return entries[0], true
}

package extract

import (
	"fmt"
	"strings"

	"github.com/cognicore/ifice/pkg/ifice/config"
	"github.com/cognicore/ifice/pkg/ifice/ingest"
	"github.com/cognicore/ifice/pkg/ifice/signals"
)

// AddressExtractor splits an address on province, city and district
// boundaries and emits region signals only.
//
// An explicit province wins and absorbs any city or district consistent with
// it into its reasoning. A city that contradicts the province becomes a
// separate, weaker signal. Without a province each city region is evidence,
// and without either a district counts only when its name is unique.
type AddressExtractor struct {
	idx *Index
	w   config.Weights
}

func NewAddressExtractor(idx *Index, w config.Weights) *AddressExtractor {
	return &AddressExtractor{idx: idx, w: w}
}

func (e *AddressExtractor) Source() signals.Source { return signals.SourceAddress }

type place struct {
	term  string
	entry Entry
}

type parsedAddress struct {
	provinces []place
	cities    []place
	districts []Match
}

func (e *AddressExtractor) parse(addr string) parsedAddress {
	var p parsedAddress
	for _, m := range e.idx.gazetteer.Scan(addr) {
		if entry, ok := only(m.Entries, KindProvince); ok {
			p.provinces = append(p.provinces, place{m.Term, entry})
			continue
		}
		if entry, ok := only(m.Entries, KindCity); ok {
			p.cities = append(p.cities, place{m.Term, entry})
			continue
		}
		if hasKind(m.Entries, KindDistrict) {
			p.districts = append(p.districts, m)
		}
	}
	return p
}

func (e *AddressExtractor) Extract(in ingest.RegistrationInput) []signals.Signal {
	addr := ingest.Normalize(in.Address)
	if addr == "" {
		return nil
	}
	p := e.parse(addr)

	switch {
	case len(p.provinces) > 0:
		return e.withProvince(p)
	case len(p.cities) > 0:
		return e.citiesOnly(p)
	default:
		return e.districtsOnly(p)
	}
}

func (e *AddressExtractor) withProvince(p parsedAddress) []signals.Signal {
	province := p.provinces[0]
	code := province.entry.Code

	parts := []string{fmt.Sprintf("address names province %q", province.term)}
	var conflicting []place
	for _, c := range p.cities {
		if c.entry.Code == code {
			parts = append(parts, fmt.Sprintf("city %q", c.term))
		} else {
			conflicting = append(conflicting, c)
		}
	}
	for _, d := range p.districts {
		if districtIn(d, code) {
			parts = append(parts, fmt.Sprintf("district %q", d.Term))
		}
	}

	out := []signals.Signal{e.signal(code, e.w.AddressProvince, strings.Join(parts, ", "))}
	seen := map[string]bool{code: true}
	for _, c := range conflicting {
		if seen[c.entry.Code] {
			continue
		}
		seen[c.entry.Code] = true
		out = append(out, e.signal(c.entry.Code, e.w.AddressCity,
			fmt.Sprintf("address city %q belongs to %s, not province %q", c.term, e.idx.RegionLabel(c.entry.Code), province.term)))
	}
	return out
}

func (e *AddressExtractor) citiesOnly(p parsedAddress) []signals.Signal {
	var out []signals.Signal
	seen := make(map[string]bool)
	for _, c := range p.cities {
		code := c.entry.Code
		if seen[code] {
			continue
		}
		seen[code] = true
		parts := []string{fmt.Sprintf("address names city %q", c.term)}
		for _, d := range p.districts {
			if districtIn(d, code) {
				parts = append(parts, fmt.Sprintf("district %q", d.Term))
			}
		}
		out = append(out, e.signal(code, e.w.AddressCity, strings.Join(parts, ", ")))
	}
	return out
}

func (e *AddressExtractor) districtsOnly(p parsedAddress) []signals.Signal {
	var out []signals.Signal
	seen := make(map[string]bool)
	for _, d := range p.districts {
		entry, ok := e.idx.uniqueDistrict(d.Term)
		if !ok || seen[entry.Code] {
			continue
		}
		seen[entry.Code] = true
		out = append(out, e.signal(entry.Code, e.w.AddressDistrict,
			fmt.Sprintf("address names district %q of %s", d.Term, entry.City)))
	}
	return out
}

func (e *AddressExtractor) signal(code string, weight float64, reason string) signals.Signal {
	return signals.Signal{
		Source:    signals.SourceAddress,
		Dimension: signals.DimensionRegion,
		Code:      code,
		Label:     e.idx.RegionLabel(code),
		Weight:    round(weight),
		Reasoning: reason,
	}
}

// only returns the entry of the given kind when every entry of that kind
// agrees on one region.
func only(entries []Entry, kind Kind) (Entry, bool) {
	var found Entry
	ok := false
	for _, e := range entries {
		if e.Kind != kind {
			continue
		}
		if ok && e.Code != found.Code {
			return Entry{}, false
		}
		found, ok = e, true
	}
	return found, ok
}

func hasKind(entries []Entry, kind Kind) bool {
	for _, e := range entries {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

func districtIn(m Match, code string) bool {
	for _, e := range m.Entries {
		if e.Kind == KindDistrict && e.Code == code {
			return true
		}
	}
	return false
}

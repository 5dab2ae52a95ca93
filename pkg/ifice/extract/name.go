package extract

import (
	"fmt"
	"strings"

	"github.com/cognicore/ifice/pkg/ifice/config"
	"github.com/cognicore/ifice/pkg/ifice/ingest"
	"github.com/cognicore/ifice/pkg/ifice/signals"
)

// NameExtractor scans the company name for industry keywords and, in a
// separate pass, for province and city names.
type NameExtractor struct {
	idx *Index
	w   config.Weights
}

func NewNameExtractor(idx *Index, w config.Weights) *NameExtractor {
	return &NameExtractor{idx: idx, w: w}
}

func (e *NameExtractor) Source() signals.Source { return signals.SourceName }

func (e *NameExtractor) Extract(in ingest.RegistrationInput) []signals.Signal {
	name := ingest.Normalize(in.Name)
	if name == "" {
		return nil
	}
	out := e.industry(name)
	return append(out, e.region(name)...)
}

// KeywordWeight grows with keyword length so 火锅底料 outweighs 火锅.
func (e *NameExtractor) KeywordWeight(keyword string) float64 {
	w := e.w.NameBase + e.w.NamePerRune*float64(ingest.RuneLen(keyword))
	if w > e.w.NameMax {
		w = e.w.NameMax
	}
	return round(w)
}

func (e *NameExtractor) industry(name string) []signals.Signal {
	var hits []keywordHit
	seen := make(map[keywordHit]bool)
	for _, m := range e.idx.industries.Scan(name) {
		for _, entry := range m.Entries {
			h := keywordHit{entry.Code, m.Term}
			if !seen[h] {
				seen[h] = true
				hits = append(hits, h)
			}
		}
	}

	var out []signals.Signal
	for _, h := range hits {
		if containedIn(h, hits) {
			continue
		}
		out = append(out, signals.Signal{
			Source:    signals.SourceName,
			Dimension: signals.DimensionIndustry,
			Code:      h.code,
			Label:     e.idx.IndustryLabel(h.code),
			Weight:    e.KeywordWeight(h.term),
			Reasoning: fmt.Sprintf("company name contains industry keyword %q", h.term),
		})
	}
	return out
}

type keywordHit struct{ code, term string }

// containedIn reports whether another hit for the same code has a longer
// keyword that contains this one.
func containedIn(h keywordHit, all []keywordHit) bool {
	for _, o := range all {
		if o.code == h.code && o.term != h.term && strings.Contains(o.term, h.term) {
			return true
		}
	}
	return false
}

func (e *NameExtractor) region(name string) []signals.Signal {
	type key struct{ code, term string }
	seen := make(map[key]bool)
	var out []signals.Signal
	for _, m := range e.idx.regions.Scan(name) {
		best, ok := strongestPlace(m.Entries)
		if !ok {
			continue
		}
		k := key{best.Code, m.Term}
		if seen[k] {
			continue
		}
		seen[k] = true

		weight, what := e.w.NameCity, "city"
		if best.Kind == KindProvince {
			weight, what = e.w.NameProvince, "province"
		}
		out = append(out, signals.Signal{
			Source:    signals.SourceName,
			Dimension: signals.DimensionRegion,
			Code:      best.Code,
			Label:     e.idx.RegionLabel(best.Code),
			Weight:    round(weight),
			Reasoning: fmt.Sprintf("company name contains %s name %q", what, m.Term),
		})
	}
	return out
}

// strongestPlace picks the province reading of a term over its city reading.
// Terms that name places in more than one region are ignored.
func strongestPlace(entries []Entry) (Entry, bool) {
	var best Entry
	found := false
	for _, e := range entries {
		if e.Kind != KindProvince && e.Kind != KindCity {
			continue
		}
		if found && e.Code != best.Code {
			return Entry{}, false
		}
		if !found || e.Kind == KindProvince {
			best = e
		}
		found = true
	}
	return best, found
}

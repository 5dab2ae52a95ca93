// Package analytics summarizes a batch of classifications so taxonomy gaps
// show up before they become review backlog.
package analytics

import (
	"sort"

	"github.com/cognicore/ifice/pkg/ifice"
	"github.com/cognicore/ifice/pkg/ifice/config"
	"github.com/cognicore/ifice/pkg/ifice/signals"
)

// Analyzer aggregates classification outcomes.
type Analyzer struct {
	tax              *config.Taxonomy
	total            int64
	needsReview      int64
	ambiguous        int64
	industryDefault  int64
	regionDefault    int64
	industryCounts   map[string]int64
	regionCounts     map[string]int64
	sourceSignals    map[signals.Source]int64
	confidenceBucket [10]int64
}

// NewAnalyzer creates an empty analyzer for tax.
func NewAnalyzer(tax *config.Taxonomy) *Analyzer {
	return &Analyzer{
		tax:            tax,
		industryCounts: make(map[string]int64),
		regionCounts:   make(map[string]int64),
		sourceSignals:  make(map[signals.Source]int64),
	}
}

// Process consumes one classification.
func (a *Analyzer) Process(c ifice.Classification) {
	a.total++
	if c.NeedsConfirmation {
		a.needsReview++
	}
	if c.Ambiguous {
		a.ambiguous++
	}
	if c.Industry.Defaulted {
		a.industryDefault++
	}
	if c.Region.Defaulted {
		a.regionDefault++
	}
	a.industryCounts[c.Industry.Code]++
	a.regionCounts[c.Region.Code]++
	for _, s := range c.Signals {
		a.sourceSignals[s.Source]++
	}

	bucket := int(c.Confidence * 10)
	if bucket > 9 {
		bucket = 9
	}
	if bucket < 0 {
		bucket = 0
	}
	a.confidenceBucket[bucket]++
}

// CodeCount is one code and how often it was assigned.
type CodeCount struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Report is a snapshot of the accumulated statistics.
type Report struct {
	Total             int64                    `json:"total"`
	NeedsReview       int64                    `json:"needsReview"`
	Ambiguous         int64                    `json:"ambiguous"`
	IndustryDefaulted int64                    `json:"industryDefaulted"`
	RegionDefaulted   int64                    `json:"regionDefaulted"`
	Industries        []CodeCount              `json:"industries"`
	Regions           []CodeCount              `json:"regions"`
	SignalsBySource   map[signals.Source]int64 `json:"signalsBySource"`
	// ConfidenceHistogram[i] counts confidences in [i/10, (i+1)/10); the
	// last bucket includes 1.0.
	ConfidenceHistogram [10]int64 `json:"confidenceHistogram"`
	// Unused lists taxonomy codes never assigned; with enough traffic they
	// point at missing keywords or gazetteer entries.
	UnusedIndustries []string `json:"unusedIndustries"`
	UnusedRegions    []string `json:"unusedRegions"`
}

// ReviewRate is the share of classifications that need confirmation.
func (r Report) ReviewRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.NeedsReview) / float64(r.Total)
}

// Snapshot returns the report for everything processed so far.
func (a *Analyzer) Snapshot() Report {
	r := Report{
		Total:               a.total,
		NeedsReview:         a.needsReview,
		Ambiguous:           a.ambiguous,
		IndustryDefaulted:   a.industryDefault,
		RegionDefaulted:     a.regionDefault,
		Industries:          a.ranked(a.industryCounts, a.tax.IndustryName),
		Regions:             a.ranked(a.regionCounts, a.tax.RegionName),
		SignalsBySource:     make(map[signals.Source]int64, len(a.sourceSignals)),
		ConfidenceHistogram: a.confidenceBucket,
		UnusedIndustries:    []string{},
		UnusedRegions:       []string{},
	}
	for src, n := range a.sourceSignals {
		r.SignalsBySource[src] = n
	}
	for _, ind := range a.tax.Industries {
		if a.industryCounts[ind.Code] == 0 {
			r.UnusedIndustries = append(r.UnusedIndustries, ind.Code)
		}
	}
	for _, reg := range a.tax.Regions {
		if a.regionCounts[reg.Code] == 0 {
			r.UnusedRegions = append(r.UnusedRegions, reg.Code)
		}
	}
	sort.Strings(r.UnusedIndustries)
	sort.Strings(r.UnusedRegions)
	return r
}

// ranked orders codes by count descending, then code.
func (a *Analyzer) ranked(counts map[string]int64, name func(string) string) []CodeCount {
	out := make([]CodeCount, 0, len(counts))
	for code, n := range counts {
		out = append(out, CodeCount{Code: code, Name: name(code), Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Code < out[j].Code
	})
	return out
}

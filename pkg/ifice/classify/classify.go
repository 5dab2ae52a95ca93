// Package classify ranks the candidate codes of one dimension.
package classify

import (
	"math"
	"sort"

	"github.com/cognicore/ifice/pkg/ifice/config"
	"github.com/cognicore/ifice/pkg/ifice/signals"
)

// epsilon absorbs float noise when comparing summed weights.
const epsilon = 1e-9

// Result is the outcome for one dimension.
type Result struct {
	Dimension     signals.Dimension `json:"dimension"`
	Code          string            `json:"code"`
	Label         string            `json:"label"`
	Confidence    float64           `json:"confidence"`
	Score         float64           `json:"score"`
	RunnerUp      string            `json:"runnerUp,omitempty"`
	RunnerUpScore float64           `json:"runnerUpScore,omitempty"`
	Margin        float64           `json:"margin"` // (Score-RunnerUpScore)/saturation
	Defaulted     bool              `json:"defaulted"`
	Reasoning     []string          `json:"reasoning"`
}

// Classifier picks the winning code of one dimension.
type Classifier struct {
	dim        signals.Dimension
	saturation float64
	fallback   config.CodeRef
}

// New creates a classifier. saturation is the summed weight that counts as
// certain; fallback is returned when no signal of the dimension exists.
func New(dim signals.Dimension, saturation float64, fallback config.CodeRef) *Classifier {
	return &Classifier{dim: dim, saturation: saturation, fallback: fallback}
}

// NewIndustry builds the industry classifier from loaded configuration.
func NewIndustry(tax *config.Taxonomy, cfg config.Classification) *Classifier {
	return New(signals.DimensionIndustry, cfg.IndustrySaturation, tax.Defaults.Industry)
}

// NewRegion builds the region classifier from loaded configuration.
func NewRegion(tax *config.Taxonomy, cfg config.Classification) *Classifier {
	return New(signals.DimensionRegion, cfg.RegionSaturation, tax.Defaults.Region)
}

// Dimension returns the dimension this classifier ranks.
func (c *Classifier) Dimension() signals.Dimension {
	return c.dim
}

type candidate struct {
	code    string
	label   string
	sum     float64
	max     float64
	primary bool
	signals []signals.Signal
}

// Classify groups the dimension's signals by code and sums their weights.
// Highest sum wins. Ties go to the code backed by a hint or name signal, then
// to the one with the strongest single signal, then to the smallest code.
// Signals of other dimensions are ignored.
func (c *Classifier) Classify(in []signals.Signal) Result {
	byCode := make(map[string]*candidate)
	for _, s := range in {
		if s.Dimension != c.dim || s.Weight <= 0 || s.Code == "" {
			continue
		}
		cand, ok := byCode[s.Code]
		if !ok {
			cand = &candidate{code: s.Code, label: s.Label}
			byCode[s.Code] = cand
		}
		cand.sum += s.Weight
		cand.max = math.Max(cand.max, s.Weight)
		cand.primary = cand.primary || s.Source.Primary()
		cand.signals = append(cand.signals, s)
	}

	if len(byCode) == 0 {
		return Result{
			Dimension: c.dim,
			Code:      c.fallback.Code,
			Label:     c.fallback.Name,
			Defaulted: true,
			Reasoning: []string{},
		}
	}

	ranked := make([]*candidate, 0, len(byCode))
	for _, cand := range byCode {
		ranked = append(ranked, cand)
	}
	sort.Slice(ranked, func(i, j int) bool { return ahead(ranked[i], ranked[j]) })

	win := ranked[0]
	res := Result{
		Dimension:  c.dim,
		Code:       win.code,
		Label:      win.label,
		Score:      round(win.sum),
		Confidence: round(math.Min(1, win.sum/c.saturation)),
		Reasoning:  reasoning(win.signals),
	}
	runnerUp := 0.0
	if len(ranked) > 1 {
		res.RunnerUp = ranked[1].code
		res.RunnerUpScore = round(ranked[1].sum)
		runnerUp = ranked[1].sum
	}
	res.Margin = round((win.sum - runnerUp) / c.saturation)
	return res
}

func ahead(a, b *candidate) bool {
	if d := a.sum - b.sum; math.Abs(d) > epsilon {
		return d > 0
	}
	if a.primary != b.primary {
		return a.primary
	}
	if d := a.max - b.max; math.Abs(d) > epsilon {
		return d > 0
	}
	return a.code < b.code
}

// reasoning orders the winner's evidence most specific first: heavier
// signals, then the more authoritative source, then text.
func reasoning(in []signals.Signal) []string {
	sorted := append([]signals.Signal(nil), in...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if d := a.Weight - b.Weight; math.Abs(d) > epsilon {
			return d > 0
		}
		if a.Source.Priority() != b.Source.Priority() {
			return a.Source.Priority() < b.Source.Priority()
		}
		return a.Reasoning < b.Reasoning
	})
	out := make([]string, len(sorted))
	for i, s := range sorted {
		out[i] = s.Reasoning
	}
	return out
}

func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

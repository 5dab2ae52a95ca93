// Package confidence merges the per-dimension results into the overall
// confidence and decides whether a human should review the identifier.
package confidence

import (
	"fmt"
	"math"

	"github.com/cognicore/ifice/pkg/ifice/classify"
	"github.com/cognicore/ifice/pkg/ifice/config"
)

// Warning kinds, used as metric labels.
const (
	KindDefaulted     = "defaulted"
	KindAmbiguous     = "ambiguous"
	KindLowConfidence = "low_confidence"
	KindOverflow      = "sequence_overflow"
)

// Warning is one review note attached to an identifier.
type Warning struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Outcome is the merged verdict.
type Outcome struct {
	Confidence        float64   `json:"confidence"`
	NeedsConfirmation bool      `json:"needsConfirmation"`
	Warnings          []Warning `json:"warnings"`
	Ambiguous         bool      `json:"ambiguous"`
}

// Messages returns the warning texts in order.
func (o Outcome) Messages() []string {
	out := make([]string, len(o.Warnings))
	for i, w := range o.Warnings {
		out[i] = w.Message
	}
	return out
}

// Aggregator applies the configured shares and thresholds.
type Aggregator struct {
	cfg config.Classification
}

func NewAggregator(cfg config.Classification) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Aggregate combines the industry and region results.
//
// A defaulted dimension or a confidence under the threshold requires review.
// A close runner-up only adds a warning; it never forces review by itself.
func (a *Aggregator) Aggregate(industry, region classify.Result) Outcome {
	conf := a.cfg.IndustryShare*industry.Confidence + a.cfg.RegionShare*region.Confidence
	conf = math.Round(conf*1e6) / 1e6

	out := Outcome{Confidence: conf, Warnings: []Warning{}}
	for _, r := range []classify.Result{industry, region} {
		if r.Defaulted {
			out.NeedsConfirmation = true
			out.Warnings = append(out.Warnings, Warning{
				Kind:    KindDefaulted,
				Message: fmt.Sprintf("no %s evidence found; defaulted to %s", r.Dimension, r.Code),
			})
		}
	}
	if conf < a.cfg.ConfirmationThreshold {
		out.NeedsConfirmation = true
		out.Warnings = append(out.Warnings, Warning{
			Kind:    KindLowConfidence,
			Message: fmt.Sprintf("confidence %.2f is below the review threshold %.2f", conf, a.cfg.ConfirmationThreshold),
		})
	}
	for _, r := range []classify.Result{industry, region} {
		if r.RunnerUp != "" && r.Margin < a.cfg.AmbiguityMargin {
			out.Ambiguous = true
			out.Warnings = append(out.Warnings, Warning{
				Kind: KindAmbiguous,
				Message: fmt.Sprintf("%s %s (%.2f) is too close to %s (%.2f)",
					r.Dimension, r.Code, r.Score, r.RunnerUp, r.RunnerUpScore),
			})
		}
	}
	return out
}

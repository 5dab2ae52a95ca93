package extract

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/cognicore/ifice/pkg/ifice/config"
	"github.com/cognicore/ifice/pkg/ifice/ingest"
	"github.com/cognicore/ifice/pkg/ifice/signals"
)

// Pipeline runs every extractor over one registration:
// hint → name → address → phone → email.
// Output order is the extractor order regardless of scheduling.
type Pipeline struct {
	extractors []Extractor
	parallel   bool
}

// NewPipeline wires the standard extractors over idx.
func NewPipeline(idx *Index, w config.Weights, parallel bool) *Pipeline {
	return &Pipeline{
		extractors: []Extractor{
			NewHintExtractor(idx, w),
			NewNameExtractor(idx, w),
			NewAddressExtractor(idx, w),
			NewPhoneExtractor(idx, w),
			NewEmailExtractor(idx, w),
		},
		parallel: parallel,
	}
}

// NewCustomPipeline runs the given extractors in the given order.
func NewCustomPipeline(parallel bool, extractors ...Extractor) *Pipeline {
	return &Pipeline{extractors: extractors, parallel: parallel}
}

// Extract collects signals from all extractors. The only error is the
// context's: extractors themselves cannot fail.
func (p *Pipeline) Extract(ctx context.Context, in ingest.RegistrationInput) ([]signals.Signal, error) {
	results := make([][]signals.Signal, len(p.extractors))

	if p.parallel {
		g, ctx := errgroup.WithContext(ctx)
		for i, ex := range p.extractors {
			i, ex := i, ex
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				results[i] = ex.Extract(in)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, ex := range p.extractors {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results[i] = ex.Extract(in)
		}
	}

	var out []signals.Signal
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

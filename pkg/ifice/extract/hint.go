package extract

import (
	"fmt"
	"strings"

	"github.com/cognicore/ifice/pkg/ifice/config"
	"github.com/cognicore/ifice/pkg/ifice/ingest"
	"github.com/cognicore/ifice/pkg/ifice/signals"
)

// HintExtractor reads the industry the operator declared. Declared intent
// outranks anything inferred, so it emits at most one high-weight signal.
type HintExtractor struct {
	idx *Index
	w   config.Weights
}

func NewHintExtractor(idx *Index, w config.Weights) *HintExtractor {
	return &HintExtractor{idx: idx, w: w}
}

func (e *HintExtractor) Source() signals.Source { return signals.SourceHint }

func (e *HintExtractor) Extract(in ingest.RegistrationInput) []signals.Signal {
	hint := ingest.Normalize(in.IndustryHint)
	if hint == "" {
		return nil
	}

	if code, ok := e.idx.displayNames[hint]; ok {
		return []signals.Signal{e.signal(code, e.w.HintExact,
			fmt.Sprintf("declared industry %q matches %s", in.IndustryHint, code))}
	}
	if code := strings.ToUpper(hint); e.idx.taxonomy.IndustryName(code) != "" && code != e.idx.taxonomy.Defaults.Industry.Code {
		return []signals.Signal{e.signal(code, e.w.HintExact,
			fmt.Sprintf("declared industry code %s", code))}
	}

	// Longest keyword wins; on equal length the earliest, then smallest code.
	var best *Match
	var bestCode string
	for _, m := range e.idx.industries.Scan(hint) {
		for _, entry := range m.Entries {
			switch {
			case best == nil,
				ingest.RuneLen(m.Term) > ingest.RuneLen(best.Term),
				m.Term == best.Term && entry.Code < bestCode:
				mm := m
				best, bestCode = &mm, entry.Code
			}
		}
	}
	if best == nil {
		return nil
	}
	return []signals.Signal{e.signal(bestCode, e.w.HintKeyword,
		fmt.Sprintf("declared industry %q contains keyword %q", in.IndustryHint, best.Term))}
}

func (e *HintExtractor) signal(code string, weight float64, reason string) signals.Signal {
	if weight < config.MinHintWeight {
		weight = config.MinHintWeight
	}
	return signals.Signal{
		Source:    signals.SourceHint,
		Dimension: signals.DimensionIndustry,
		Code:      code,
		Label:     e.idx.IndustryLabel(code),
		Weight:    round(weight),
		Reasoning: reason,
	}
}

package extract

import (
	"fmt"
	"strings"

	"github.com/cognicore/ifice/pkg/ifice/config"
	"github.com/cognicore/ifice/pkg/ifice/ingest"
	"github.com/cognicore/ifice/pkg/ifice/signals"
)

// EmailExtractor recognizes regional mail domains. Unknown domains, which
// are most of them, emit nothing.
type EmailExtractor struct {
	idx *Index
	w   config.Weights
}

func NewEmailExtractor(idx *Index, w config.Weights) *EmailExtractor {
	return &EmailExtractor{idx: idx, w: w}
}

func (e *EmailExtractor) Source() signals.Source { return signals.SourceEmail }

func (e *EmailExtractor) Extract(in ingest.RegistrationInput) []signals.Signal {
	addr := strings.TrimSpace(in.ContactEmail)
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return nil
	}
	domain, ok := normalizeDomain(addr[at+1:])
	if !ok {
		return nil
	}

	// Exact domain, or a subdomain of one (mail.tsingtao.com.cn).
	for d := domain; d != ""; d = parent(d) {
		if code, ok := e.idx.emailDomains[d]; ok {
			return []signals.Signal{e.signal(code, e.w.EmailDomain,
				fmt.Sprintf("email domain %s is registered to %s", d, e.idx.RegionLabel(code)))}
		}
	}
	// Longest regional suffix: parent() walks from longest to shortest.
	for d := parent(domain); d != ""; d = parent(d) {
		if code, ok := e.idx.emailSuffixes[d]; ok {
			return []signals.Signal{e.signal(code, e.w.EmailSuffix,
				fmt.Sprintf("email domain %s ends in regional suffix .%s", domain, d))}
		}
	}
	return nil
}

func parent(domain string) string {
	i := strings.IndexByte(domain, '.')
	if i < 0 {
		return ""
	}
	return domain[i+1:]
}

func (e *EmailExtractor) signal(code string, weight float64, reason string) signals.Signal {
	if weight > config.MaxEmailWeight {
		weight = config.MaxEmailWeight
	}
	return signals.Signal{
		Source:    signals.SourceEmail,
		Dimension: signals.DimensionRegion,
		Code:      code,
		Label:     e.idx.RegionLabel(code),
		Weight:    round(weight),
		Reasoning: reason,
	}
}

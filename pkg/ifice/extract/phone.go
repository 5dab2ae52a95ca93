package extract

import (
	"fmt"
	"strings"

	"github.com/cognicore/ifice/pkg/ifice/config"
	"github.com/cognicore/ifice/pkg/ifice/ingest"
	"github.com/cognicore/ifice/pkg/ifice/signals"
)

// PhoneExtractor maps a contact number to the region that issued it. Numbers
// are portable, so the signal is capped at config.MaxPhoneWeight.
type PhoneExtractor struct {
	idx *Index
	w   config.Weights
}

func NewPhoneExtractor(idx *Index, w config.Weights) *PhoneExtractor {
	return &PhoneExtractor{idx: idx, w: w}
}

func (e *PhoneExtractor) Source() signals.Source { return signals.SourcePhone }

func (e *PhoneExtractor) Extract(in ingest.RegistrationInput) []signals.Signal {
	raw := strings.TrimSpace(in.ContactPhone)
	digits := ingest.Digits(raw)
	if digits == "" {
		return nil
	}

	international := strings.HasPrefix(ingest.Normalize(raw), "+")
	if strings.HasPrefix(digits, "00") {
		international = true
		digits = digits[2:]
	}
	if international {
		if !strings.HasPrefix(digits, "86") {
			return e.foreign(digits)
		}
		// Dialed from abroad, landlines drop the trunk 0 (+86 10 ... for 010).
		digits = digits[2:]
		if !isMobile(digits) && !strings.HasPrefix(digits, "0") {
			digits = "0" + digits
		}
	}

	switch {
	case isMobile(digits):
		return e.mobile(digits)
	case len(digits) >= 10 && digits[0] == '0':
		return e.landline(digits)
	}
	return nil
}

func isMobile(digits string) bool {
	return len(digits) == 11 && digits[0] == '1'
}

func (e *PhoneExtractor) mobile(digits string) []signals.Signal {
	code, ok := e.idx.mobile[digits[:7]]
	if !ok {
		return nil
	}
	reason := fmt.Sprintf("mobile segment %s is registered in %s", digits[:7], e.idx.RegionLabel(code))
	if carrier := e.idx.carriers[digits[:3]]; carrier != "" {
		reason += fmt.Sprintf(" (%s)", carrier)
	}
	return []signals.Signal{e.signal(code, e.w.PhoneMobile, reason)}
}

func (e *PhoneExtractor) landline(digits string) []signals.Signal {
	for _, n := range []int{4, 3} {
		if len(digits) <= n {
			continue
		}
		if code, ok := e.idx.area[digits[:n]]; ok {
			return []signals.Signal{e.signal(code, e.w.PhoneLandline,
				fmt.Sprintf("landline area code %s belongs to %s", digits[:n], e.idx.RegionLabel(code)))}
		}
	}
	return nil
}

func (e *PhoneExtractor) foreign(digits string) []signals.Signal {
	for _, n := range []int{3, 2, 1} {
		if len(digits) <= n {
			continue
		}
		if code, ok := e.idx.country[digits[:n]]; ok {
			return []signals.Signal{e.signal(code, e.w.PhoneLandline,
				fmt.Sprintf("dialing code +%s belongs to %s", digits[:n], e.idx.RegionLabel(code)))}
		}
	}
	return nil
}

func (e *PhoneExtractor) signal(code string, weight float64, reason string) signals.Signal {
	if weight > config.MaxPhoneWeight {
		weight = config.MaxPhoneWeight
	}
	return signals.Signal{
		Source:    signals.SourcePhone,
		Dimension: signals.DimensionRegion,
		Code:      code,
		Label:     e.idx.RegionLabel(code),
		Weight:    round(weight),
		Reasoning: reason,
	}
}

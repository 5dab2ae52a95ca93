// Package signals defines the unit of evidence exchanged between the
// extractors and the classifiers.
package signals

// Source identifies which registration field produced a signal.
type Source string

const (
	SourceName    Source = "name"
	SourceHint    Source = "hint"
	SourceAddress Source = "address"
	SourcePhone   Source = "phone"
	SourceEmail   Source = "email"
)

// Primary reports whether the source reflects what the operator typed about
// the factory itself (its name or declared industry) rather than contact data.
func (s Source) Primary() bool {
	return s == SourceName || s == SourceHint
}

// Priority orders sources for display: lower is more authoritative.
func (s Source) Priority() int {
	switch s {
	case SourceHint:
		return 0
	case SourceName:
		return 1
	case SourceAddress:
		return 2
	case SourcePhone:
		return 3
	case SourceEmail:
		return 4
	}
	return 5
}

// Dimension is the identifier component a signal votes for.
type Dimension string

const (
	DimensionIndustry Dimension = "industry"
	DimensionRegion   Dimension = "region"
)

// Signal is one piece of weighted evidence for a candidate code.
type Signal struct {
	Source    Source    `json:"source"`
	Dimension Dimension `json:"dimension"`
	Code      string    `json:"code"`
	Label     string    `json:"label"`
	Weight    float64   `json:"weight"` // 0..1
	Reasoning string    `json:"reasoning"`
}

// Filter returns the signals of one dimension, preserving order.
func Filter(in []Signal, dim Dimension) []Signal {
	out := make([]Signal, 0, len(in))
	for _, s := range in {
		if s.Dimension == dim {
			out = append(out, s)
		}
	}
	return out
}

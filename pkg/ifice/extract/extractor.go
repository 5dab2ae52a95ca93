// Package extract turns registration fields into weighted classification
// signals. Extractors are pure functions over a compiled taxonomy: they never
// fail, and a field they cannot read simply contributes nothing.
package extract

import (
	"math"

	"github.com/cognicore/ifice/pkg/ifice/ingest"
	"github.com/cognicore/ifice/pkg/ifice/signals"
)

// Extractor reads one registration field.
type Extractor interface {
	Source() signals.Source
	Extract(in ingest.RegistrationInput) []signals.Signal
}

// round keeps weights free of float noise such as 0.30000000000000004 so
// reasoning output and comparisons stay stable.
func round(w float64) float64 {
	return math.Round(w*1e6) / 1e6
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/ifice/pkg/ifice/internalerr"
)

// Hard ceilings for contact-derived evidence. Configured weights above these
// are clamped rather than rejected.
const (
	MaxPhoneWeight = 0.4
	MaxEmailWeight = 0.3
	MinHintWeight  = 0.8
)

// Engine holds every tunable number of the classification engine.
type Engine struct {
	Weights        Weights        `yaml:"weights"`
	Classification Classification `yaml:"classification"`
	Sequence       Sequence       `yaml:"sequence"`
	// ParallelExtract runs the extractors concurrently.
	ParallelExtract bool `yaml:"parallelExtract"`
}

// Weights are the per-signal weights emitted by the extractors.
type Weights struct {
	NameBase        float64 `yaml:"nameBase"`
	NamePerRune     float64 `yaml:"namePerRune"`
	NameMax         float64 `yaml:"nameMax"`
	NameProvince    float64 `yaml:"nameProvince"`
	NameCity        float64 `yaml:"nameCity"`
	HintExact       float64 `yaml:"hintExact"`
	HintKeyword     float64 `yaml:"hintKeyword"`
	AddressProvince float64 `yaml:"addressProvince"`
	AddressCity     float64 `yaml:"addressCity"`
	AddressDistrict float64 `yaml:"addressDistrict"`
	PhoneMobile     float64 `yaml:"phoneMobile"`
	PhoneLandline   float64 `yaml:"phoneLandline"`
	EmailDomain     float64 `yaml:"emailDomain"`
	EmailSuffix     float64 `yaml:"emailSuffix"`
}

// Classification configures scoring and the review thresholds.
type Classification struct {
	IndustrySaturation    float64 `yaml:"industrySaturation"`
	RegionSaturation      float64 `yaml:"regionSaturation"`
	IndustryShare         float64 `yaml:"industryShare"`
	RegionShare           float64 `yaml:"regionShare"`
	ConfirmationThreshold float64 `yaml:"confirmationThreshold"`
	AmbiguityMargin       float64 `yaml:"ambiguityMargin"`
}

// Sequence configures allocation retries for optimistic backends.
type Sequence struct {
	MaxRetries     int           `yaml:"maxRetries"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
	MaxBackoff     time.Duration `yaml:"maxBackoff"`
}

// DefaultEngine returns the settings the engine ships with.
func DefaultEngine() Engine {
	return Engine{
		Weights: Weights{
			NameBase:        0.3,
			NamePerRune:     0.1,
			NameMax:         0.7,
			NameProvince:    0.6,
			NameCity:        0.5,
			HintExact:       0.95,
			HintKeyword:     0.85,
			AddressProvince: 0.9,
			AddressCity:     0.6,
			AddressDistrict: 0.4,
			PhoneMobile:     0.25,
			PhoneLandline:   0.4,
			EmailDomain:     0.3,
			EmailSuffix:     0.2,
		},
		Classification: Classification{
			IndustrySaturation:    1.2,
			RegionSaturation:      1.2,
			IndustryShare:         0.5,
			RegionShare:           0.5,
			ConfirmationThreshold: 0.6,
			AmbiguityMargin:       0.1,
		},
		Sequence: Sequence{
			MaxRetries:     5,
			InitialBackoff: 5 * time.Millisecond,
			MaxBackoff:     200 * time.Millisecond,
		},
		ParallelExtract: true,
	}
}

// LoadEngine reads engine settings from YAML. Fields missing from the file
// keep their defaults.
func LoadEngine(path string) (Engine, error) {
	cfg := DefaultEngine()
	data, err := os.ReadFile(path)
	if err != nil {
		return Engine{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Engine{}, fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}
	if err := cfg.Normalize(); err != nil {
		return Engine{}, err
	}
	return cfg, nil
}

// Normalize clamps weights to their documented bounds and rejects settings
// that would make scoring meaningless.
func (e *Engine) Normalize() error {
	w := &e.Weights
	w.PhoneMobile = clamp(w.PhoneMobile, 0, MaxPhoneWeight)
	w.PhoneLandline = clamp(w.PhoneLandline, 0, MaxPhoneWeight)
	w.EmailDomain = clamp(w.EmailDomain, 0, MaxEmailWeight)
	w.EmailSuffix = clamp(w.EmailSuffix, 0, MaxEmailWeight)
	w.HintExact = clamp(w.HintExact, MinHintWeight, 1)
	w.HintKeyword = clamp(w.HintKeyword, MinHintWeight, 1)
	w.NameMax = clamp(w.NameMax, 0, 1)
	w.NameProvince = clamp(w.NameProvince, 0, 1)
	w.NameCity = clamp(w.NameCity, 0, 1)
	w.AddressProvince = clamp(w.AddressProvince, 0, 1)
	w.AddressCity = clamp(w.AddressCity, 0, 1)
	w.AddressDistrict = clamp(w.AddressDistrict, 0, 1)

	c := &e.Classification
	if c.IndustrySaturation <= 0 || c.RegionSaturation <= 0 {
		return fmt.Errorf("%w: saturation weights must be positive", internalerr.ErrInvalidConfig)
	}
	if c.IndustryShare < 0 || c.RegionShare < 0 || c.IndustryShare+c.RegionShare == 0 {
		return fmt.Errorf("%w: dimension shares must be non-negative and not both zero", internalerr.ErrInvalidConfig)
	}
	total := c.IndustryShare + c.RegionShare
	c.IndustryShare /= total
	c.RegionShare /= total
	if c.ConfirmationThreshold < 0 || c.ConfirmationThreshold > 1 {
		return fmt.Errorf("%w: confirmation threshold must be within [0,1]", internalerr.ErrInvalidConfig)
	}
	if c.AmbiguityMargin < 0 {
		return fmt.Errorf("%w: ambiguity margin must not be negative", internalerr.ErrInvalidConfig)
	}

	s := &e.Sequence
	if s.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", internalerr.ErrInvalidConfig)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

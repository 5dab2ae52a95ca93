package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cognicore/ifice/pkg/ifice/internalerr"
)

func TestDefaultEngineIsNormalized(t *testing.T) {
	cfg := DefaultEngine()
	before := cfg
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("defaults should normalize: %v", err)
	}
	if cfg != before {
		t.Errorf("defaults changed under Normalize: %+v", cfg)
	}
}

func TestLoadEnginePartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	content := `
weights:
  phoneMobile: 0.9
  emailDomain: 0.8
  hintKeyword: 0.5
classification:
  confirmationThreshold: 0.7
  industryShare: 3
  regionShare: 1
sequence:
  initialBackoff: 10ms
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadEngine(path)
	if err != nil {
		t.Fatalf("LoadEngine: %v", err)
	}
	if cfg.Weights.PhoneMobile != MaxPhoneWeight {
		t.Errorf("phone weight should clamp to %v, got %v", MaxPhoneWeight, cfg.Weights.PhoneMobile)
	}
	if cfg.Weights.EmailDomain != MaxEmailWeight {
		t.Errorf("email weight should clamp to %v, got %v", MaxEmailWeight, cfg.Weights.EmailDomain)
	}
	if cfg.Weights.HintKeyword != MinHintWeight {
		t.Errorf("hint weight should clamp up to %v, got %v", MinHintWeight, cfg.Weights.HintKeyword)
	}
	if cfg.Classification.ConfirmationThreshold != 0.7 {
		t.Errorf("threshold = %v", cfg.Classification.ConfirmationThreshold)
	}
	if cfg.Classification.IndustryShare != 0.75 || cfg.Classification.RegionShare != 0.25 {
		t.Errorf("shares should normalize to 0.75/0.25, got %v/%v",
			cfg.Classification.IndustryShare, cfg.Classification.RegionShare)
	}
	if cfg.Sequence.InitialBackoff != 10*time.Millisecond {
		t.Errorf("backoff = %v", cfg.Sequence.InitialBackoff)
	}
	if cfg.Weights.AddressProvince != DefaultEngine().Weights.AddressProvince {
		t.Error("unset fields should keep defaults")
	}
}

func TestEngineNormalizeRejects(t *testing.T) {
	cases := map[string]func(*Engine){
		"zero saturation":  func(e *Engine) { e.Classification.RegionSaturation = 0 },
		"zero shares":      func(e *Engine) { e.Classification.IndustryShare, e.Classification.RegionShare = 0, 0 },
		"threshold > 1":    func(e *Engine) { e.Classification.ConfirmationThreshold = 1.5 },
		"negative margin":  func(e *Engine) { e.Classification.AmbiguityMargin = -0.1 },
		"negative retries": func(e *Engine) { e.Sequence.MaxRetries = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultEngine()
			mutate(&cfg)
			if err := cfg.Normalize(); !errors.Is(err, internalerr.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

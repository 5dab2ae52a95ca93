package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/ifice/pkg/ifice/internalerr"
)

//go:embed taxonomy.yaml
var defaultTaxonomy []byte

// SupportedTaxonomy is the range of taxonomy versions this build understands.
const SupportedTaxonomy = ">= 1.0.0, < 2.0.0"

var (
	industryCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)
	regionCodePattern   = regexp.MustCompile(`^[A-Z]{2}$`)
)

// Taxonomy is the versioned reference data the extractors match against.
type Taxonomy struct {
	Version    string            `yaml:"version" json:"version"`
	Defaults   Defaults          `yaml:"defaults" json:"defaults"`
	Industries []Industry        `yaml:"industries" json:"industries"`
	Regions    []Region          `yaml:"regions" json:"regions"`
	Carriers   map[string]string `yaml:"carriers" json:"carriers"` // 3-digit mobile prefix → carrier
}

// Defaults names the codes used when a dimension has no evidence at all.
type Defaults struct {
	Industry CodeRef `yaml:"industry" json:"industry"`
	Region   CodeRef `yaml:"region" json:"region"`
}

// CodeRef is a bare code with its display name.
type CodeRef struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
}

// Industry is one industry code and the keywords that indicate it.
type Industry struct {
	Code     string   `yaml:"code" json:"code"`
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Region is one province-level region with its gazetteer and contact tables.
type Region struct {
	Code           string              `yaml:"code" json:"code"`
	Name           string              `yaml:"name" json:"name"`
	Aliases        []string            `yaml:"aliases" json:"aliases"`
	Cities         map[string][]string `yaml:"cities" json:"cities"` // city → districts
	AreaCodes      []string            `yaml:"areaCodes" json:"areaCodes"`
	MobilePrefixes []string            `yaml:"mobilePrefixes" json:"mobilePrefixes"`
	CountryCodes   []string            `yaml:"countryCodes" json:"countryCodes"`
	EmailSuffixes  []string            `yaml:"emailSuffixes" json:"emailSuffixes"`
	EmailDomains   []string            `yaml:"emailDomains" json:"emailDomains"`
}

// DefaultTaxonomy returns the taxonomy compiled into the binary.
func DefaultTaxonomy() (*Taxonomy, error) {
	return ParseTaxonomy(bytes.NewReader(defaultTaxonomy))
}

// LoadTaxonomy loads a taxonomy from a YAML (or JSON) file
func LoadTaxonomy(path string) (*Taxonomy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseTaxonomy(f)
}

// ParseTaxonomy decodes and validates a taxonomy document. Unknown fields are
// rejected so typos in a hand-edited file fail loudly.
func ParseTaxonomy(r io.Reader) (*Taxonomy, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var tax Taxonomy
	if err := dec.Decode(&tax); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty taxonomy", internalerr.ErrInvalidConfig)
		}
		return nil, fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}
	if err := tax.Validate(); err != nil {
		return nil, err
	}
	return &tax, nil
}

// Validate checks code shapes, uniqueness and the version range.
func (t *Taxonomy) Validate() error {
	v, err := semver.NewVersion(t.Version)
	if err != nil {
		return fmt.Errorf("%w: taxonomy version %q: %v", internalerr.ErrInvalidConfig, t.Version, err)
	}
	supported, err := semver.NewConstraint(SupportedTaxonomy)
	if err != nil {
		return err
	}
	if !supported.Check(v) {
		return fmt.Errorf("%w: taxonomy version %s outside %s", internalerr.ErrInvalidConfig, v, SupportedTaxonomy)
	}

	if !industryCodePattern.MatchString(t.Defaults.Industry.Code) {
		return fmt.Errorf("%w: default industry code %q must be 3 uppercase letters", internalerr.ErrInvalidConfig, t.Defaults.Industry.Code)
	}
	if !regionCodePattern.MatchString(t.Defaults.Region.Code) {
		return fmt.Errorf("%w: default region code %q must be 2 uppercase letters", internalerr.ErrInvalidConfig, t.Defaults.Region.Code)
	}

	seen := map[string]struct{}{t.Defaults.Industry.Code: {}}
	for _, ind := range t.Industries {
		if !industryCodePattern.MatchString(ind.Code) {
			return fmt.Errorf("%w: industry code %q must be 3 uppercase letters", internalerr.ErrInvalidConfig, ind.Code)
		}
		if _, dup := seen[ind.Code]; dup {
			return fmt.Errorf("%w: industry code %s declared twice", internalerr.ErrInvalidConfig, ind.Code)
		}
		seen[ind.Code] = struct{}{}
		if strings.TrimSpace(ind.Name) == "" {
			return fmt.Errorf("%w: industry %s has no name", internalerr.ErrInvalidConfig, ind.Code)
		}
	}

	seen = map[string]struct{}{t.Defaults.Region.Code: {}}
	for _, reg := range t.Regions {
		if !regionCodePattern.MatchString(reg.Code) {
			return fmt.Errorf("%w: region code %q must be 2 uppercase letters", internalerr.ErrInvalidConfig, reg.Code)
		}
		if _, dup := seen[reg.Code]; dup {
			return fmt.Errorf("%w: region code %s declared twice", internalerr.ErrInvalidConfig, reg.Code)
		}
		seen[reg.Code] = struct{}{}
		if strings.TrimSpace(reg.Name) == "" {
			return fmt.Errorf("%w: region %s has no name", internalerr.ErrInvalidConfig, reg.Code)
		}
		for _, p := range reg.MobilePrefixes {
			if len(p) != 7 || !allDigits(p) {
				return fmt.Errorf("%w: region %s mobile prefix %q must be 7 digits", internalerr.ErrInvalidConfig, reg.Code, p)
			}
		}
		for _, ac := range reg.AreaCodes {
			if len(ac) < 3 || len(ac) > 4 || ac[0] != '0' || !allDigits(ac) {
				return fmt.Errorf("%w: region %s area code %q", internalerr.ErrInvalidConfig, reg.Code, ac)
			}
		}
	}

	for prefix := range t.Carriers {
		if len(prefix) != 3 || !allDigits(prefix) {
			return fmt.Errorf("%w: carrier prefix %q must be 3 digits", internalerr.ErrInvalidConfig, prefix)
		}
	}
	return nil
}

// IndustryName returns the display name for an industry code, including the default.
func (t *Taxonomy) IndustryName(code string) string {
	if code == t.Defaults.Industry.Code {
		return t.Defaults.Industry.Name
	}
	for _, ind := range t.Industries {
		if ind.Code == code {
			return ind.Name
		}
	}
	return ""
}

// RegionName returns the display name for a region code, including the default.
func (t *Taxonomy) RegionName(code string) string {
	if code == t.Defaults.Region.Code {
		return t.Defaults.Region.Name
	}
	for _, reg := range t.Regions {
		if reg.Code == code {
			return reg.Name
		}
	}
	return ""
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// Package identifier composes and parses factory identifiers.
//
// Composite form: III-GG-YYYY-NNN, e.g. BEV-SD-2025-001. The sequence is
// zero-padded to three digits and grows wider past 999.
//
// Legacy form: F + YYYY + GG + III + sequence zero-padded to four digits,
// e.g. F2025SDBEV0001. It is derived from the same four components and is
// never counted separately, so either form converts to the other.
package identifier

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/cognicore/ifice/pkg/ifice/internalerr"
)

// DisplayWidth is the zero-padded width of the composite sequence field.
const DisplayWidth = 3

const legacyWidth = 4

var (
	industryPattern  = regexp.MustCompile(`^[A-Z]{3}$`)
	regionPattern    = regexp.MustCompile(`^[A-Z]{2}$`)
	compositePattern = regexp.MustCompile(`^([A-Z]{3})-([A-Z]{2})-([0-9]{4})-([0-9]{3,})$`)
	legacyPattern    = regexp.MustCompile(`^F([0-9]{4})([A-Z]{2})([A-Z]{3})([0-9]{4,})$`)
)

// Parts are the four components both forms are built from.
type Parts struct {
	Industry string `json:"industryCode"`
	Region   string `json:"regionCode"`
	Year     int    `json:"factoryYear"`
	Sequence int64  `json:"sequenceNumber"`
}

// Validate rejects components that cannot form an identifier.
func (p Parts) Validate() error {
	switch {
	case !industryPattern.MatchString(p.Industry):
		return fmt.Errorf("%w: industry code %q must be 3 uppercase letters", internalerr.ErrInvalidIdentifier, p.Industry)
	case !regionPattern.MatchString(p.Region):
		return fmt.Errorf("%w: region code %q must be 2 uppercase letters", internalerr.ErrInvalidIdentifier, p.Region)
	case p.Year < 1000 || p.Year > 9999:
		return fmt.Errorf("%w: year %d must have four digits", internalerr.ErrInvalidIdentifier, p.Year)
	case p.Sequence < 1:
		return fmt.Errorf("%w: sequence %d must be positive", internalerr.ErrInvalidIdentifier, p.Sequence)
	}
	return nil
}

// Composite renders III-GG-YYYY-NNN. Parts must be valid.
func (p Parts) Composite() string {
	return fmt.Sprintf("%s-%s-%04d-%0*d", p.Industry, p.Region, p.Year, DisplayWidth, p.Sequence)
}

// Legacy renders the pre-engine identifier. Parts must be valid.
func (p Parts) Legacy() string {
	return fmt.Sprintf("F%04d%s%s%0*d", p.Year, p.Region, p.Industry, legacyWidth, p.Sequence)
}

// Overflows reports whether the sequence no longer fits the display width.
func (p Parts) Overflows() bool {
	return p.Sequence > 999
}

// Compose validates the components and renders both identifier forms.
func Compose(industry, region string, year int, seq int64) (composite, legacy string, err error) {
	p := Parts{Industry: industry, Region: region, Year: year, Sequence: seq}
	if err := p.Validate(); err != nil {
		return "", "", err
	}
	return p.Composite(), p.Legacy(), nil
}

// ParseComposite recovers the components of a composite identifier.
func ParseComposite(id string) (Parts, error) {
	m := compositePattern.FindStringSubmatch(id)
	if m == nil {
		return Parts{}, fmt.Errorf("%w: %q is not III-GG-YYYY-NNN", internalerr.ErrInvalidIdentifier, id)
	}
	return build(id, m[1], m[2], m[3], m[4], DisplayWidth)
}

// ParseLegacy recovers the components of a legacy identifier.
func ParseLegacy(id string) (Parts, error) {
	m := legacyPattern.FindStringSubmatch(id)
	if m == nil {
		return Parts{}, fmt.Errorf("%w: %q is not a legacy identifier", internalerr.ErrInvalidIdentifier, id)
	}
	return build(id, m[3], m[2], m[1], m[4], legacyWidth)
}

// Parse accepts either form.
func Parse(id string) (Parts, error) {
	if p, err := ParseComposite(id); err == nil {
		return p, nil
	}
	if p, err := ParseLegacy(id); err == nil {
		return p, nil
	}
	return Parts{}, fmt.Errorf("%w: %q is neither a composite nor a legacy identifier", internalerr.ErrInvalidIdentifier, id)
}

func build(id, industry, region, year, seq string, width int) (Parts, error) {
	y, _ := strconv.Atoi(year)
	n, err := strconv.ParseInt(seq, 10, 64)
	if err != nil {
		return Parts{}, fmt.Errorf("%w: %q sequence: %v", internalerr.ErrInvalidIdentifier, id, err)
	}
	// Padding is canonical: 0001 is fine, 00001 would render differently.
	if len(seq) > width && seq[0] == '0' {
		return Parts{}, fmt.Errorf("%w: %q has a non-canonical sequence", internalerr.ErrInvalidIdentifier, id)
	}
	p := Parts{Industry: industry, Region: region, Year: y, Sequence: n}
	if err := p.Validate(); err != nil {
		return Parts{}, err
	}
	return p, nil
}

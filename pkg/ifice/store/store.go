package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/cognicore/ifice/pkg/ifice/internalerr"
)

// Allocator hands out sequence numbers per scope. Implementations must be
// safe for concurrent use: two callers never receive the same number for one
// scope, numbers only grow, and the first allocation in a scope returns 1.
type Allocator interface {
	Allocate(ctx context.Context, scope Scope) (int64, error)
	// Current returns the last number handed out, 0 for an unused scope.
	Current(ctx context.Context, scope Scope) (int64, error)
	Close() error
}

// Ledger keeps every identifier issued so low-confidence ones can be
// reviewed later.
type Ledger interface {
	// Record stores an issued identifier. A composite ID seen before yields
	// internalerr.ErrDuplicate.
	Record(ctx context.Context, r Record) error
	// Get finds a record by composite ID or internalerr.ErrNotFound.
	Get(ctx context.Context, compositeID string) (Record, error)
	// Pending lists records that need confirmation, oldest first.
	Pending(ctx context.Context, limit int) ([]Record, error)
	// Confirm clears the review flag once a human accepted the
	// classification. Unknown IDs yield internalerr.ErrNotFound.
	Confirm(ctx context.Context, compositeID string) error
	Close() error
}

// Store is a backend that provides both.
type Store interface {
	Allocator
	Ledger
}

// Scope keys a sequence counter.
type Scope struct {
	Industry string
	Region   string
	Year     int
}

var (
	industryPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	regionPattern   = regexp.MustCompile(`^[A-Z]{2}$`)
)

// Key is the stable string form, e.g. BEV-SD-2025.
func (s Scope) Key() string {
	return fmt.Sprintf("%s-%s-%04d", s.Industry, s.Region, s.Year)
}

func (s Scope) String() string { return s.Key() }

// Validate rejects scopes that could not produce a valid identifier.
func (s Scope) Validate() error {
	if !industryPattern.MatchString(s.Industry) || !regionPattern.MatchString(s.Region) || s.Year < 1000 || s.Year > 9999 {
		return fmt.Errorf("%w: scope %q", internalerr.ErrInvalidInput, s.Key())
	}
	return nil
}

// Record is one issued identifier as persisted in the ledger.
type Record struct {
	ID                string
	CompositeID       string
	LegacyID          string
	Scope             Scope
	Sequence          int64
	Confidence        float64
	NeedsConfirmation bool
	Reasoning         Reasoning
	TaxonomyVersion   string
	IssuedAt          time.Time
}

// Reasoning is the audit trail stored with a record.
type Reasoning struct {
	Industry []string `json:"industry"`
	Region   []string `json:"region"`
	Warnings []string `json:"warnings"`
}

// DefaultPendingLimit is used when Pending is called with limit <= 0.
const DefaultPendingLimit = 50

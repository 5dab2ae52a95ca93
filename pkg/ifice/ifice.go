package ifice

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/cognicore/ifice/internal/metrics"
	"github.com/cognicore/ifice/pkg/ifice/classify"
	"github.com/cognicore/ifice/pkg/ifice/config"
	"github.com/cognicore/ifice/pkg/ifice/confidence"
	"github.com/cognicore/ifice/pkg/ifice/extract"
	"github.com/cognicore/ifice/pkg/ifice/identifier"
	"github.com/cognicore/ifice/pkg/ifice/ingest"
	"github.com/cognicore/ifice/pkg/ifice/internalerr"
	"github.com/cognicore/ifice/pkg/ifice/signals"
	"github.com/cognicore/ifice/pkg/ifice/store"
)

// Engine is the classification and issuance facade
type Engine struct {
	tax      *config.Taxonomy
	pipeline *extract.Pipeline
	industry *classify.Classifier
	region   *classify.Classifier
	agg      *confidence.Aggregator
	store    store.Store
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu      sync.Mutex // guards entropy
	entropy io.Reader
}

// Options configures an Engine
type Options struct {
	Taxonomy *config.Taxonomy // nil: built-in taxonomy
	Config   *config.Engine   // nil: config.DefaultEngine
	Store    store.Store      // required
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Clock    func() time.Time
	Entropy  io.Reader // ULID entropy; nil: monotonic over crypto/rand
}

// New creates an Engine with the given dependencies
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: engine requires a store", internalerr.ErrInvalidConfig)
	}
	tax := opts.Taxonomy
	if tax == nil {
		var err error
		if tax, err = config.DefaultTaxonomy(); err != nil {
			return nil, err
		}
	}
	cfg := config.DefaultEngine()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	idx, err := extract.NewIndex(tax)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		tax:      tax,
		pipeline: extract.NewPipeline(idx, cfg.Weights, cfg.ParallelExtract),
		industry: classify.NewIndustry(tax, cfg.Classification),
		region:   classify.NewRegion(tax, cfg.Classification),
		agg:      confidence.NewAggregator(cfg.Classification),
		store:    opts.Store,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Clock,
		entropy:  opts.Entropy,
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.metrics == nil {
		e.metrics = metrics.New(nil)
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.entropy == nil {
		e.entropy = ulid.Monotonic(rand.Reader, 0)
	}
	return e, nil
}

// NewFromComponents builds an Engine from loaded configuration
func NewFromComponents(comp *config.Components, opts Options) (*Engine, error) {
	opts.Taxonomy = comp.Taxonomy
	eng := comp.Engine
	opts.Config = &eng
	return New(opts)
}

// Close cleanly shuts down the Engine
func (e *Engine) Close() error {
	return e.store.Close()
}

// Taxonomy returns the taxonomy the engine classifies against.
func (e *Engine) Taxonomy() *config.Taxonomy {
	return e.tax
}

// Reasoning is the audit trail attached to an identifier.
type Reasoning = store.Reasoning

// FactoryIdentifier is one issued identifier with its decision trail.
type FactoryIdentifier struct {
	ID                string    `json:"id"`
	IndustryCode      string    `json:"industryCode"`
	IndustryName      string    `json:"industryName"`
	RegionCode        string    `json:"regionCode"`
	RegionName        string    `json:"regionName"`
	FactoryYear       int       `json:"factoryYear"`
	SequenceNumber    int64     `json:"sequenceNumber"`
	CompositeID       string    `json:"compositeId"`
	LegacyID          string    `json:"legacyId"`
	Confidence        float64   `json:"confidence"`
	NeedsConfirmation bool      `json:"needsConfirmation"`
	Reasoning         Reasoning `json:"reasoning"`
	TaxonomyVersion   string    `json:"taxonomyVersion"`
	IssuedAt          time.Time `json:"issuedAt"`
}

// Classification is a full decision without an allocated sequence.
type Classification struct {
	Industry          classify.Result      `json:"industry"`
	Region            classify.Result      `json:"region"`
	Confidence        float64              `json:"confidence"`
	NeedsConfirmation bool                 `json:"needsConfirmation"`
	Ambiguous         bool                 `json:"ambiguous"`
	Warnings          []confidence.Warning `json:"warnings"`
	Signals           []signals.Signal     `json:"signals"`
	TaxonomyVersion   string               `json:"taxonomyVersion"`
}

// Classify runs extraction, classification and aggregation without
// allocating a sequence number.
func (e *Engine) Classify(ctx context.Context, in ingest.RegistrationInput) (Classification, error) {
	if err := in.Validate(); err != nil {
		return Classification{}, err
	}
	start := time.Now()
	defer e.metrics.ObserveClassify(start)

	sigs, err := e.pipeline.Extract(ctx, in)
	if err != nil {
		return Classification{}, err
	}
	ind := e.industry.Classify(sigs)
	reg := e.region.Classify(sigs)
	out := e.agg.Aggregate(ind, reg)

	return Classification{
		Industry:          ind,
		Region:            reg,
		Confidence:        out.Confidence,
		NeedsConfirmation: out.NeedsConfirmation,
		Ambiguous:         out.Ambiguous,
		Warnings:          out.Warnings,
		Signals:           sigs,
		TaxonomyVersion:   e.tax.Version,
	}, nil
}

// ClassifyAndAllocate classifies a registration, allocates the next
// sequence number in its scope and records the issued identifier.
// The engine does not retry; a conflict surfaces as a retryable error.
func (e *Engine) ClassifyAndAllocate(ctx context.Context, in ingest.RegistrationInput) (FactoryIdentifier, error) {
	c, err := e.Classify(ctx, in)
	if err != nil {
		return FactoryIdentifier{}, err
	}
	return e.Allocate(ctx, c)
}

// Allocate issues an identifier for a classification produced by Classify.
// Cancellation is honoured up to the sequence allocation; after that the
// ledger write completes regardless.
func (e *Engine) Allocate(ctx context.Context, c Classification) (FactoryIdentifier, error) {
	// A caller that gave up must not burn a sequence number.
	if err := ctx.Err(); err != nil {
		return FactoryIdentifier{}, err
	}

	now := e.now().UTC()
	scope := store.Scope{Industry: c.Industry.Code, Region: c.Region.Code, Year: now.Year()}
	seq, err := e.store.Allocate(ctx, scope)
	if err != nil {
		e.metrics.IncrementAllocationFailure(failureReason(err))
		e.log.Error("sequence allocation failed",
			zap.String("scope", scope.Key()),
			zap.Bool("retryable", internalerr.IsRetryable(err)),
			zap.Error(err))
		return FactoryIdentifier{}, fmt.Errorf("allocate %s: %w", scope, err)
	}

	parts := identifier.Parts{Industry: scope.Industry, Region: scope.Region, Year: scope.Year, Sequence: seq}
	if err := parts.Validate(); err != nil {
		return FactoryIdentifier{}, err
	}
	warnings := append([]confidence.Warning{}, c.Warnings...)
	if parts.Overflows() {
		warnings = append(warnings, confidence.Warning{
			Kind:    confidence.KindOverflow,
			Message: fmt.Sprintf("sequence %d exceeds %d display digits", seq, identifier.DisplayWidth),
		})
	}

	id, err := e.newID(now)
	if err != nil {
		return FactoryIdentifier{}, err
	}
	rec := store.Record{
		ID:                id,
		CompositeID:       parts.Composite(),
		LegacyID:          parts.Legacy(),
		Scope:             scope,
		Sequence:          seq,
		Confidence:        c.Confidence,
		NeedsConfirmation: c.NeedsConfirmation,
		Reasoning: Reasoning{
			Industry: c.Industry.Reasoning,
			Region:   c.Region.Reasoning,
			Warnings: messages(warnings),
		},
		TaxonomyVersion: e.tax.Version,
		IssuedAt:        now,
	}
	// The number is spent; a late deadline must not orphan it.
	if err := e.store.Record(context.WithoutCancel(ctx), rec); err != nil {
		e.log.Error("ledger write failed",
			zap.String("composite_id", rec.CompositeID),
			zap.Error(err))
		return FactoryIdentifier{}, fmt.Errorf("record %s: %w", rec.CompositeID, err)
	}

	e.metrics.IncrementIssued(rec.NeedsConfirmation)
	e.metrics.ObserveConfidence(rec.Confidence)
	for _, w := range warnings {
		e.metrics.IncrementWarning(w.Kind)
	}
	fields := []zap.Field{
		zap.String("composite_id", rec.CompositeID),
		zap.String("legacy_id", rec.LegacyID),
		zap.Float64("confidence", rec.Confidence),
		zap.Bool("needs_confirmation", rec.NeedsConfirmation),
	}
	if rec.NeedsConfirmation {
		e.log.Warn("identifier issued for review", append(fields, zap.Strings("warnings", rec.Reasoning.Warnings))...)
	} else {
		e.log.Info("identifier issued", fields...)
	}
	return e.fromRecord(rec), nil
}

// Lookup is a parsed identifier, plus its ledger entry when one exists.
type Lookup struct {
	Parts       identifier.Parts   `json:"components"`
	CompositeID string             `json:"compositeId"`
	LegacyID    string             `json:"legacyId"`
	Issued      *FactoryIdentifier `json:"issued,omitempty"`
}

// Lookup parses a composite or legacy ID and looks it up in the ledger.
// An ID that parses but was never issued is not an error.
func (e *Engine) Lookup(ctx context.Context, id string) (Lookup, error) {
	parts, err := identifier.Parse(id)
	if err != nil {
		return Lookup{}, err
	}
	out := Lookup{Parts: parts, CompositeID: parts.Composite(), LegacyID: parts.Legacy()}
	rec, err := e.store.Get(ctx, out.CompositeID)
	switch {
	case err == nil:
		fi := e.fromRecord(rec)
		out.Issued = &fi
	case !errors.Is(err, internalerr.ErrNotFound):
		return Lookup{}, err
	}
	return out, nil
}

// Pending lists identifiers awaiting confirmation, oldest first.
func (e *Engine) Pending(ctx context.Context, limit int) ([]FactoryIdentifier, error) {
	recs, err := e.store.Pending(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]FactoryIdentifier, len(recs))
	for i, r := range recs {
		out[i] = e.fromRecord(r)
	}
	return out, nil
}

// Confirm marks a flagged identifier as reviewed. Either ID form is accepted.
func (e *Engine) Confirm(ctx context.Context, id string) error {
	parts, err := identifier.Parse(id)
	if err != nil {
		return err
	}
	if err := e.store.Confirm(ctx, parts.Composite()); err != nil {
		return err
	}
	e.log.Info("identifier confirmed", zap.String("composite_id", parts.Composite()))
	return nil
}

func (e *Engine) newID(t time.Time) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(t), e.entropy)
	if err != nil {
		return "", fmt.Errorf("issue id: %w", err)
	}
	return id.String(), nil
}

func (e *Engine) fromRecord(r store.Record) FactoryIdentifier {
	return FactoryIdentifier{
		ID:                r.ID,
		IndustryCode:      r.Scope.Industry,
		IndustryName:      e.tax.IndustryName(r.Scope.Industry),
		RegionCode:        r.Scope.Region,
		RegionName:        e.tax.RegionName(r.Scope.Region),
		FactoryYear:       r.Scope.Year,
		SequenceNumber:    r.Sequence,
		CompositeID:       r.CompositeID,
		LegacyID:          r.LegacyID,
		Confidence:        r.Confidence,
		NeedsConfirmation: r.NeedsConfirmation,
		Reasoning:         r.Reasoning,
		TaxonomyVersion:   r.TaxonomyVersion,
		IssuedAt:          r.IssuedAt,
	}
}

func messages(ws []confidence.Warning) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Message
	}
	return out
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, internalerr.ErrAllocationConflict):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, internalerr.ErrStoreUnavailable):
		return "unavailable"
	}
	return "other"
}

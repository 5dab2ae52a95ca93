// Package storetest is the behavioural suite every store backend must pass.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/cognicore/ifice/pkg/ifice/internalerr"
	"github.com/cognicore/ifice/pkg/ifice/store"
)

// Suite exercises a store.Store. NewStore is called before every test and
// must return an empty store.
type Suite struct {
	suite.Suite
	NewStore func() store.Store
	// Workers is the concurrency used by the uniqueness test.
	Workers int

	st store.Store
}

func (s *Suite) SetupTest() {
	s.st = s.NewStore()
}

func (s *Suite) TearDownTest() {
	s.NoError(s.st.Close())
}

var scope = store.Scope{Industry: "BEV", Region: "SD", Year: 2025}

// TestAllocateStartsAtOne verifies a fresh scope begins at 1 and counts up.
func (s *Suite) TestAllocateStartsAtOne() {
	ctx := context.Background()

	cur, err := s.st.Current(ctx, scope)
	s.Require().NoError(err)
	s.Equal(int64(0), cur)

	for want := int64(1); want <= 3; want++ {
		got, err := s.st.Allocate(ctx, scope)
		s.Require().NoError(err)
		s.Equal(want, got)
	}

	cur, err = s.st.Current(ctx, scope)
	s.Require().NoError(err)
	s.Equal(int64(3), cur)
}

// TestScopesAreIndependent verifies counters do not leak between scopes.
func (s *Suite) TestScopesAreIndependent() {
	ctx := context.Background()
	other := []store.Scope{
		{Industry: "BEV", Region: "SD", Year: 2026},
		{Industry: "BEV", Region: "BJ", Year: 2025},
		{Industry: "CAT", Region: "SD", Year: 2025},
	}

	_, err := s.st.Allocate(ctx, scope)
	s.Require().NoError(err)
	_, err = s.st.Allocate(ctx, scope)
	s.Require().NoError(err)

	for _, sc := range other {
		got, err := s.st.Allocate(ctx, sc)
		s.Require().NoError(err)
		s.Equal(int64(1), got, sc.Key())
	}
}

// TestAllocateRejectsBadScope verifies malformed scopes never reach storage.
func (s *Suite) TestAllocateRejectsBadScope() {
	_, err := s.st.Allocate(context.Background(), store.Scope{Industry: "bev", Region: "SD", Year: 2025})
	s.ErrorIs(err, internalerr.ErrInvalidInput)
}

// TestConcurrentAllocationIsUnique verifies N concurrent callers receive
// exactly the numbers 1..N.
func (s *Suite) TestConcurrentAllocationIsUnique() {
	workers := s.Workers
	if workers == 0 {
		workers = 50
	}
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		got  []int64
		errs []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.st.Allocate(ctx, scope)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			got = append(got, n)
		}()
	}
	wg.Wait()

	s.Require().Empty(errs)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	for i, n := range got {
		s.Require().Equal(int64(i+1), n, "sequence numbers must be distinct and consecutive")
	}
}

// TestCanceledContext verifies a canceled caller gets no number.
func (s *Suite) TestCanceledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.st.Allocate(ctx, scope)
	s.Require().Error(err)

	cur, err := s.st.Current(context.Background(), scope)
	s.Require().NoError(err)
	s.Equal(int64(0), cur, "canceled allocation must not advance the counter")
}

func record(seq int64, needsConfirmation bool, issuedAt time.Time) store.Record {
	return store.Record{
		ID:                fmt.Sprintf("01J0000000000000000000%04d", seq),
		CompositeID:       fmt.Sprintf("BEV-SD-2025-%03d", seq),
		LegacyID:          fmt.Sprintf("F2025SDBEV%04d", seq),
		Scope:             scope,
		Sequence:          seq,
		Confidence:        0.42,
		NeedsConfirmation: needsConfirmation,
		Reasoning: store.Reasoning{
			Industry: []string{"company name contains industry keyword \"啤酒\""},
			Region:   []string{},
			Warnings: []string{"no region evidence found; defaulted to XX"},
		},
		TaxonomyVersion: "1.3.0",
		IssuedAt:        issuedAt.UTC().Truncate(time.Millisecond),
	}
}

// TestLedgerRoundTrip verifies a recorded identifier reads back intact.
func (s *Suite) TestLedgerRoundTrip() {
	ctx := context.Background()
	rec := record(1, true, time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))

	s.Require().NoError(s.st.Record(ctx, rec))

	got, err := s.st.Get(ctx, rec.CompositeID)
	s.Require().NoError(err)
	s.Equal(rec.ID, got.ID)
	s.Equal(rec.LegacyID, got.LegacyID)
	s.Equal(rec.Scope, got.Scope)
	s.Equal(rec.Sequence, got.Sequence)
	s.InDelta(rec.Confidence, got.Confidence, 1e-9)
	s.True(got.NeedsConfirmation)
	s.Equal(rec.Reasoning, got.Reasoning)
	s.Equal(rec.TaxonomyVersion, got.TaxonomyVersion)
	s.True(rec.IssuedAt.Equal(got.IssuedAt), "issued at %v, got %v", rec.IssuedAt, got.IssuedAt)
}

// TestLedgerRejectsDuplicates verifies a composite ID is recorded once.
func (s *Suite) TestLedgerRejectsDuplicates() {
	ctx := context.Background()
	rec := record(1, false, time.Now())

	s.Require().NoError(s.st.Record(ctx, rec))
	dup := rec
	dup.ID = "01J00000000000000000009999"
	s.ErrorIs(s.st.Record(ctx, dup), internalerr.ErrDuplicate)
}

// TestLedgerGetMissing verifies unknown IDs report ErrNotFound.
func (s *Suite) TestLedgerGetMissing() {
	_, err := s.st.Get(context.Background(), "BEV-SD-2025-404")
	s.ErrorIs(err, internalerr.ErrNotFound)
}

// TestLedgerPending verifies the review queue holds only flagged records,
// oldest first, and honours the limit.
func (s *Suite) TestLedgerPending() {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	s.Require().NoError(s.st.Record(ctx, record(3, true, base.Add(2*time.Hour))))
	s.Require().NoError(s.st.Record(ctx, record(1, true, base)))
	s.Require().NoError(s.st.Record(ctx, record(2, false, base.Add(time.Hour))))
	s.Require().NoError(s.st.Record(ctx, record(4, true, base.Add(3*time.Hour))))

	pending, err := s.st.Pending(ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(pending, 3)
	s.Equal("BEV-SD-2025-001", pending[0].CompositeID)
	s.Equal("BEV-SD-2025-003", pending[1].CompositeID)
	s.Equal("BEV-SD-2025-004", pending[2].CompositeID)

	limited, err := s.st.Pending(ctx, 2)
	s.Require().NoError(err)
	s.Len(limited, 2)
}

// TestLedgerConfirm verifies confirmed records leave the review queue.
func (s *Suite) TestLedgerConfirm() {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	s.Require().NoError(s.st.Record(ctx, record(1, true, base)))
	s.Require().NoError(s.st.Record(ctx, record(2, true, base.Add(time.Minute))))

	s.Require().NoError(s.st.Confirm(ctx, "BEV-SD-2025-001"))

	got, err := s.st.Get(ctx, "BEV-SD-2025-001")
	s.Require().NoError(err)
	s.False(got.NeedsConfirmation)

	pending, err := s.st.Pending(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal("BEV-SD-2025-002", pending[0].CompositeID)

	s.ErrorIs(s.st.Confirm(ctx, "BEV-SD-2025-404"), internalerr.ErrNotFound)
}

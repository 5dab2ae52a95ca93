package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/ifice/internal/metrics"
	"github.com/cognicore/ifice/pkg/ifice"
	"github.com/cognicore/ifice/pkg/ifice/ingest"
	"github.com/cognicore/ifice/pkg/ifice/internalerr"
	"github.com/cognicore/ifice/pkg/ifice/store/memstore"
)

func newTestRouter(t *testing.T) (http.Handler, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	engine, err := ifice.New(ifice.Options{
		Store:   memstore.New(),
		Metrics: metrics.New(reg),
		Clock:   func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return New(engine, Options{Gatherer: reg, Timeout: 5 * time.Second}).Router(), reg
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

const tsingtaoBody = `{"name":"青岛啤酒股份有限公司","industry":"啤酒制造","address":"山东省青岛市市南区"}`

func TestCreateFactoryCode(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/v1/factory-codes", tsingtaoBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		CompositeID       string         `json:"compositeId"`
		IntelligentCoding map[string]any `json:"intelligentCoding"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "BEV-SD-2025-001", resp.CompositeID)

	keys := make([]string, 0, len(resp.IntelligentCoding))
	for k := range resp.IntelligentCoding {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []string{
		"industryCode", "industryName", "regionCode", "regionName", "factoryYear",
		"sequenceNumber", "confidence", "needsConfirmation", "legacyId", "reasoning",
	}, keys)
	assert.Equal(t, "F2025SDBEV0001", resp.IntelligentCoding["legacyId"])
	assert.Equal(t, false, resp.IntelligentCoding["needsConfirmation"])

	reasoning := resp.IntelligentCoding["reasoning"].(map[string]any)
	assert.Equal(t, []any{}, reasoning["warnings"])
}

func TestCreateRejectsBadInput(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, body := range []string{`{`, `{"name":""}`, `{"name":"  "}`} {
		rec := do(t, router, http.MethodPost, "/v1/factory-codes", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestCreateIgnoresUnusableOptionalFields(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"name":"青岛啤酒股份有限公司","address":"山东省青岛市市南区","employeeCount":-5,"subscriptionPlan":"gold"}`
	rec := do(t, router, http.MethodPost, "/v1/factory-codes", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		CompositeID string `json:"compositeId"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "BEV-SD-2025-001", resp.CompositeID)
}

func TestPreviewDoesNotAllocate(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/v1/factory-codes/preview", tsingtaoBody)
	require.Equal(t, http.StatusOK, rec.Code)
	var c ifice.Classification
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&c))
	assert.Equal(t, "BEV", c.Industry.Code)

	rec = do(t, router, http.MethodPost, "/v1/factory-codes", tsingtaoBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "BEV-SD-2025-001")
}

func TestLookupEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/v1/factory-codes", tsingtaoBody).Code)

	rec := do(t, router, http.MethodGet, "/v1/factory-codes/F2025SDBEV0001", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out ifice.Lookup
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "BEV-SD-2025-001", out.CompositeID)
	require.NotNil(t, out.Issued)
	assert.Equal(t, "SD", out.Issued.RegionCode)

	rec = do(t, router, http.MethodGet, "/v1/factory-codes/BEV-SD-2025-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPendingAndConfirmEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/v1/factory-codes", `{"name":"某某有限公司"}`).Code)

	rec := do(t, router, http.MethodGet, "/v1/factory-codes/pending?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Items []ifice.FactoryIdentifier `json:"items"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.Len(t, page.Items, 1)
	id := page.Items[0].CompositeID

	rec = do(t, router, http.MethodPost, "/v1/factory-codes/"+id+"/confirm", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodGet, "/v1/factory-codes/pending", "")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Empty(t, page.Items)

	rec = do(t, router, http.MethodPost, "/v1/factory-codes/OTH-XX-2025-500/confirm", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/v1/factory-codes/pending?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/v1/factory-codes", tsingtaoBody).Code)

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/healthz", "").Code)

	rec := do(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `ifice_identifiers_issued_total{needs_confirmation="false"} 1`))
}

// stubService fails every call with err.
type stubService struct {
	err error
}

func (s stubService) ClassifyAndAllocate(context.Context, ingest.RegistrationInput) (ifice.FactoryIdentifier, error) {
	return ifice.FactoryIdentifier{}, s.err
}

func (s stubService) Classify(context.Context, ingest.RegistrationInput) (ifice.Classification, error) {
	return ifice.Classification{}, s.err
}

func (s stubService) Lookup(context.Context, string) (ifice.Lookup, error) {
	return ifice.Lookup{}, s.err
}

func (s stubService) Pending(context.Context, int) ([]ifice.FactoryIdentifier, error) {
	return nil, s.err
}

func (s stubService) Confirm(context.Context, string) error { return s.err }

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{internalerr.ErrAllocationConflict, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{internalerr.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		router := New(stubService{err: tc.err}, Options{RetryAfter: 2 * time.Second}).Router()
		rec := do(t, router, http.MethodPost, "/v1/factory-codes", `{"name":"x"}`)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		if errors.Is(tc.err, internalerr.ErrAllocationConflict) {
			assert.Equal(t, "2", rec.Header().Get("Retry-After"))
			assert.Contains(t, rec.Body.String(), `"retryable":true`)
		}
	}
}

func TestMetricsRouteOptional(t *testing.T) {
	router := New(stubService{}, Options{}).Router()
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/metrics", "").Code)
}

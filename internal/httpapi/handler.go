// Package httpapi exposes the engine over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cognicore/ifice/pkg/ifice"
	"github.com/cognicore/ifice/pkg/ifice/ingest"
	"github.com/cognicore/ifice/pkg/ifice/internalerr"
)

// maxBody bounds a registration payload.
const maxBody = 1 << 20

// Service is the engine surface the handlers need.
type Service interface {
	ClassifyAndAllocate(ctx context.Context, in ingest.RegistrationInput) (ifice.FactoryIdentifier, error)
	Classify(ctx context.Context, in ingest.RegistrationInput) (ifice.Classification, error)
	Lookup(ctx context.Context, id string) (ifice.Lookup, error)
	Pending(ctx context.Context, limit int) ([]ifice.FactoryIdentifier, error)
	Confirm(ctx context.Context, id string) error
}

// Handler serves the factory-code endpoints.
type Handler struct {
	svc        Service
	logger     *zap.Logger
	gatherer   prometheus.Gatherer
	timeout    time.Duration
	retryAfter time.Duration
}

// Options configures a Handler.
type Options struct {
	Logger     *zap.Logger
	Gatherer   prometheus.Gatherer // nil: no /metrics route
	Timeout    time.Duration       // per-request deadline; 0 disables
	RetryAfter time.Duration       // hint sent with 503; default 1s
}

// New creates a Handler.
func New(svc Service, opts Options) *Handler {
	h := &Handler{
		svc:        svc,
		logger:     opts.Logger,
		gatherer:   opts.Gatherer,
		timeout:    opts.Timeout,
		retryAfter: opts.RetryAfter,
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.retryAfter <= 0 {
		h.retryAfter = time.Second
	}
	return h
}

// Router builds the chi router with every route mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/healthz", h.handleHealth)
	if h.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1/factory-codes", func(r chi.Router) {
		if h.timeout > 0 {
			r.Use(h.deadline)
		}
		r.Post("/", h.handleCreate)
		r.Post("/preview", h.handlePreview)
		r.Get("/pending", h.handlePending)
		r.Get("/{id}", h.handleLookup)
		r.Post("/{id}/confirm", h.handleConfirm)
	})
	return r
}

// intelligentCoding is the block embedded in the created factory record.
type intelligentCoding struct {
	IndustryCode      string          `json:"industryCode"`
	IndustryName      string          `json:"industryName"`
	RegionCode        string          `json:"regionCode"`
	RegionName        string          `json:"regionName"`
	FactoryYear       int             `json:"factoryYear"`
	SequenceNumber    int64           `json:"sequenceNumber"`
	Confidence        float64         `json:"confidence"`
	NeedsConfirmation bool            `json:"needsConfirmation"`
	LegacyID          string          `json:"legacyId"`
	Reasoning         ifice.Reasoning `json:"reasoning"`
}

type createResponse struct {
	ID                string            `json:"id"`
	CompositeID       string            `json:"compositeId"`
	IssuedAt          time.Time         `json:"issuedAt"`
	TaxonomyVersion   string            `json:"taxonomyVersion"`
	IntelligentCoding intelligentCoding `json:"intelligentCoding"`
}

func newCreateResponse(fi ifice.FactoryIdentifier) createResponse {
	return createResponse{
		ID:              fi.ID,
		CompositeID:     fi.CompositeID,
		IssuedAt:        fi.IssuedAt,
		TaxonomyVersion: fi.TaxonomyVersion,
		IntelligentCoding: intelligentCoding{
			IndustryCode:      fi.IndustryCode,
			IndustryName:      fi.IndustryName,
			RegionCode:        fi.RegionCode,
			RegionName:        fi.RegionName,
			FactoryYear:       fi.FactoryYear,
			SequenceNumber:    fi.SequenceNumber,
			Confidence:        fi.Confidence,
			NeedsConfirmation: fi.NeedsConfirmation,
			LegacyID:          fi.LegacyID,
			Reasoning:         fi.Reasoning,
		},
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decode(w, r)
	if !ok {
		return
	}
	fi, err := h.svc.ClassifyAndAllocate(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newCreateResponse(fi))
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decode(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Classify(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	items, err := h.svc.Pending(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Items []ifice.FactoryIdentifier `json:"items"`
	}{Items: items})
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Confirm(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (ingest.RegistrationInput, bool) {
	var in ingest.RegistrationInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(&in); err != nil {
		h.logger.Warn("invalid registration body",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Error(err))
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return in, false
	}
	return in, true
}

type errorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// writeError maps engine errors onto status codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Error: "internal error"}
	switch {
	case errors.Is(err, internalerr.ErrInvalidInput), errors.Is(err, internalerr.ErrInvalidIdentifier):
		status, body.Error = http.StatusBadRequest, err.Error()
	case errors.Is(err, internalerr.ErrNotFound):
		status, body.Error = http.StatusNotFound, err.Error()
	case internalerr.IsRetryable(err):
		status, body = http.StatusServiceUnavailable, errorBody{Error: "sequence allocation contended, retry", Retryable: true}
		w.Header().Set("Retry-After", strconv.Itoa(int(h.retryAfter.Round(time.Second)/time.Second)))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status, body.Error = http.StatusGatewayTimeout, "request timed out before allocation"
	case errors.Is(err, internalerr.ErrStoreUnavailable):
		status, body.Error = http.StatusServiceUnavailable, "store unavailable"
	}

	log := h.logger.Warn
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		log = h.logger.Error
	}
	log("request failed",
		zap.String("request_id", chimw.GetReqID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err))
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

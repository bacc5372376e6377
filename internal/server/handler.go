package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/corner4world/deepdetect/internal/bus"
	"github.com/corner4world/deepdetect/internal/config"
	"github.com/corner4world/deepdetect/internal/measure"
	"github.com/corner4world/deepdetect/internal/metrics"
	apperrors "github.com/corner4world/deepdetect/internal/pkg/errors"
	"github.com/corner4world/deepdetect/internal/pkg/hash"
	"github.com/corner4world/deepdetect/internal/pkg/logger"
	"github.com/corner4world/deepdetect/internal/pkg/security"
	"github.com/corner4world/deepdetect/internal/output"
	"github.com/corner4world/deepdetect/internal/result"
	"github.com/corner4world/deepdetect/internal/simsearch"
)

const (
	defaultService = "default"
	maxBodyBytes   = 64 << 20
)

// TestSet is one evaluation pass of a measure request.
type TestSet struct {
	Name  string         `json:"name,omitempty"`
	Batch *measure.Batch `json:"batch" validate:"required"`
}

// MeasureRequest asks for the metrics of one or more test sets.
type MeasureRequest struct {
	Service string    `json:"service,omitempty"`
	Measure []string  `json:"measure"`
	Tests   []TestSet `json:"tests" validate:"required,min=1,dive"`

	// Aggregate reports the mean over the test sets as the measure.
	Aggregate bool `json:"aggregate,omitempty"`
}

// AggregateRequest averages records computed earlier.
type AggregateRequest struct {
	Service  string            `json:"service,omitempty"`
	Measures []*measure.Record `json:"measures" validate:"required,min=1"`
}

// FinalizeRequest renders backend predictions.
type FinalizeRequest struct {
	Service     string              `json:"service,omitempty"`
	Predictions []result.Prediction `json:"predictions"`
	Output      output.OutputParams `json:"output"`
}

// Handler serves the output connector API.
type Handler struct {
	cfg      config.OutputConfig
	engine   *measure.Engine
	indexes  simsearch.Engine
	history  metrics.History
	metrics  *metrics.Metrics
	notifier *bus.Notifier
	log      *logger.Logger
	validate *validator.Validate

	mu       sync.Mutex
	managers map[string]*simsearch.Manager
}

// HandlerDeps are the collaborators of a Handler. Indexes, History, Metrics
// and Notifier may be nil.
type HandlerDeps struct {
	Output   config.OutputConfig
	Indexes  simsearch.Engine
	History  metrics.History
	Metrics  *metrics.Metrics
	Notifier *bus.Notifier
	Log      *logger.Logger
}

// NewHandler creates the API handler.
func NewHandler(deps HandlerDeps) *Handler {
	log := deps.Log
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		cfg:      deps.Output,
		engine:   measure.NewEngine(log),
		indexes:  deps.Indexes,
		history:  deps.History,
		metrics:  deps.Metrics,
		notifier: deps.Notifier,
		log:      log.WithComponent("api"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		managers: make(map[string]*simsearch.Manager),
	}
}

// RegisterRoutes registers the API routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/measure", h.handleMeasure)
	mux.HandleFunc("POST /v1/measure/aggregate", h.handleAggregate)
	mux.HandleFunc("GET /v1/measure/history", h.handleHistory)
	mux.HandleFunc("POST /v1/predict/finalize", h.handleFinalize)
}

// Close releases the similarity indexes.
func (h *Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, m := range h.managers {
		if err := m.Close(); err != nil {
			h.log.Warn("Failed to close index", "service", name, "error", err.Error())
		}
	}
	h.managers = make(map[string]*simsearch.Manager)
	return nil
}

// IndexStatus describes a created similarity index.
type IndexStatus struct {
	Service string `json:"service"`
	Dim     int    `json:"dim"`
}

// Indexes lists the created similarity indexes, ordered by service.
func (h *Handler) Indexes() []IndexStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := []IndexStatus{}
	for name, m := range h.managers {
		if m.Created() {
			out = append(out, IndexStatus{Service: name, Dim: m.Dim()})
		}
	}
	slices.SortFunc(out, func(a, b IndexStatus) int {
		return strings.Compare(a.Service, b.Service)
	})
	return out
}

func serviceName(s string) (string, error) {
	if s == "" {
		return defaultService, nil
	}
	if err := security.ValidateServiceName(s); err != nil {
		return "", apperrors.Wrap(apperrors.CodeBadParam, "invalid service name", err)
	}
	return s, nil
}

// manager returns the similarity index of service, or nil without an
// index engine.
func (h *Handler) manager(service string) *simsearch.Manager {
	if h.indexes == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.managers[service]
	if !ok {
		m = simsearch.NewManager(h.indexes, service, h.log)
		h.managers[service] = m
	}
	return m
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidRequest, "reading request body", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidRequest, "invalid JSON body", err)
	}
	if err := h.validate.Struct(v); err != nil {
		return apperrors.Wrap(apperrors.CodeBadParam, "invalid request", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) handleMeasure(w http.ResponseWriter, r *http.Request) {
	var req MeasureRequest
	if err := h.decode(w, r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	resp, err := h.Measure(r.Context(), req)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Measure computes every test set of req in order. The first failing test
// set aborts the request.
func (h *Handler) Measure(ctx context.Context, req MeasureRequest) (output.Response, error) {
	service, err := serviceName(req.Service)
	if err != nil {
		return output.Response{}, err
	}
	mreq := measure.ParseRequest(req.Measure)

	var resp output.Response
	for id, ts := range req.Tests {
		start := time.Now()
		rec, err := h.engine.Run(ts.Batch, mreq, id, ts.Name)
		h.metrics.RecordMeasure(time.Since(start), recordLen(rec), measure.Skipped(ts.Batch, mreq), err)
		if err != nil {
			return output.Response{}, err
		}
		output.AppendMeasure(&resp, rec, id)

		h.remember(ctx, service, id, ts, rec)
		h.notifier.MeasureCompleted(ctx, bus.MeasurePayload{TestID: id, TestName: ts.Name, Measure: rec})
	}

	if req.Aggregate && len(resp.Measures) > 1 {
		output.AggregateMultipleTestsets(&resp)
		h.notifier.MeasureAggregated(ctx, bus.MeasurePayload{Measure: resp.Measure})
	}
	if len(resp.Measures) == 1 {
		resp.Measures = nil
	}
	return resp, nil
}

func recordLen(rec *measure.Record) int {
	if rec == nil {
		return 0
	}
	return rec.Len()
}

// remember stores rec in the history, keyed by the digest of the batch it
// was computed on. Failures are logged only.
func (h *Handler) remember(ctx context.Context, service string, testID int, ts TestSet, rec *measure.Record) {
	if h.history == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err == nil {
		err = h.history.Append(ctx, metrics.HistoryEntry{
			Service:  service,
			TestID:   testID,
			TestName: ts.Name,
			Digest:   batchDigest(ts.Batch),
			Recorded: time.Now(),
			Measure:  data,
		})
	}
	if err != nil {
		h.log.WithContext(ctx).Warn("Failed to store measure history", "service", service, "error", err.Error())
	}
}

func batchDigest(b *measure.Batch) string {
	data, err := json.Marshal(b)
	if err != nil {
		return ""
	}
	return hash.BatchDigest(data)
}

func (h *Handler) handleAggregate(w http.ResponseWriter, r *http.Request) {
	var req AggregateRequest
	if err := h.decode(w, r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	resp := output.Response{Measures: req.Measures}
	output.AggregateMultipleTestsets(&resp)
	h.notifier.MeasureAggregated(r.Context(), bus.MeasurePayload{Measure: resp.Measure})
	writeJSON(w, http.StatusOK, resp)
}

// HistoryResponse lists stored measure records.
type HistoryResponse struct {
	Service string                 `json:"service"`
	Entries []metrics.HistoryEntry `json:"entries"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		apperrors.WriteError(w, apperrors.ServiceUnavailableError("measure history"))
		return
	}
	q := r.URL.Query()
	service, err := serviceName(q.Get("service"))
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	var since time.Time
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			apperrors.WriteError(w, apperrors.BadParamError("since must be an RFC3339 time"))
			return
		}
		since = t
	}
	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			apperrors.WriteError(w, apperrors.BadParamError("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	entries, err := h.history.Range(r.Context(), service, since, limit)
	if err != nil {
		apperrors.WriteError(w, apperrors.InternalError("loading measure history", err))
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Service: service, Entries: entries})
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req FinalizeRequest
	if err := h.decode(w, r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	resp, err := h.Finalize(r.Context(), req)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Finalize aggregates req's predictions and renders them.
func (h *Handler) Finalize(ctx context.Context, req FinalizeRequest) (output.Response, error) {
	service, err := serviceName(req.Service)
	if err != nil {
		return output.Response{}, err
	}
	if err := security.ValidateSearchNN(req.Output.SearchNN); err != nil {
		return output.Response{}, apperrors.Wrap(apperrors.CodeBadParam, "invalid output parameters", err)
	}
	for _, p := range req.Predictions {
		if err := security.ValidateURI(p.URI); err != nil {
			return output.Response{}, apperrors.Wrap(apperrors.CodeBadParam, "invalid prediction", err)
		}
	}
	start := time.Now()

	agg := result.NewAggregator(h.log)
	if err := agg.AddResults(req.Predictions); err != nil {
		h.metrics.RecordFinalize(time.Since(start), 0, 0, false, err)
		return output.Response{}, err
	}

	f := output.NewFinalizer(h.cfg, h.manager(service), h.log)
	resp, err := f.Finalize(ctx, agg.Set(), req.Output)

	indexed := 0
	for _, p := range resp.Predictions {
		if p.Indexed {
			indexed++
		}
	}
	h.metrics.RecordFinalize(time.Since(start), len(resp.Predictions), indexed, req.Output.Search, err)
	if err != nil {
		return output.Response{}, err
	}

	h.notifier.PredictionsFinalized(ctx, bus.FinalizedPayload{
		Predictions: len(resp.Predictions),
		Indexed:     indexed,
		Searched:    req.Output.Search,
	})
	return resp, nil
}

package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lynxdb/lynx/pkg/core"
	"github.com/lynxdb/lynx/pkg/lynx"
	"github.com/lynxdb/lynx/pkg/observability"
)

// Handler exposes a database handle over HTTP.
type Handler struct {
	db      lynx.VectorDatabase
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewHandler creates the REST handler. logger and metrics may be nil.
func NewHandler(db lynx.VectorDatabase, logger *observability.Logger, metrics *observability.Metrics) *Handler {
	return &Handler{db: db, logger: logger, metrics: metrics}
}

type vectorPayload struct {
	ID       uint64    `json:"id"`
	Vector   []float32 `json:"vector"`
	Metadata string    `json:"metadata,omitempty"`
}

type searchRequest struct {
	Vector   []float32 `json:"vector"`
	K        int       `json:"k"`
	EfSearch int       `json:"ef_search,omitempty"`
	NProbe   int       `json:"n_probe,omitempty"`
}

type searchResponseItem struct {
	ID       uint64  `json:"id"`
	Distance float32 `json:"distance"`
}

type searchResponse struct {
	Items           []searchResponseItem `json:"items"`
	TotalCandidates uint64               `json:"total_candidates"`
	QueryTimeMs     float64              `json:"query_time_ms"`
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]interface{}{
		"status":  "ok",
		"version": h.db.Version(),
		"size":    h.db.Size(),
	}, http.StatusOK)
}

// Insert handles POST /v1/vectors.
func (h *Handler) Insert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req vectorPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	record := core.VectorRecord{ID: req.ID, Vector: req.Vector}
	if req.Metadata != "" {
		record.Metadata = []byte(req.Metadata)
	}
	if err := h.db.Insert(record); err != nil {
		h.writeDBError(w, "insert", err)
		return
	}
	if h.metrics != nil {
		h.metrics.VectorsInserted.Inc()
	}
	writeJSON(w, map[string]interface{}{"inserted": req.ID}, http.StatusCreated)
}

// BatchInsert handles POST /v1/vectors/batch.
func (h *Handler) BatchInsert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req []vectorPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	records := make([]core.VectorRecord, len(req))
	for i, p := range req {
		records[i] = core.VectorRecord{ID: p.ID, Vector: p.Vector}
		if p.Metadata != "" {
			records[i].Metadata = []byte(p.Metadata)
		}
	}
	if err := h.db.BatchInsert(records); err != nil {
		h.writeDBError(w, "batch_insert", err)
		return
	}
	if h.metrics != nil {
		h.metrics.VectorsInserted.Add(float64(len(records)))
		h.metrics.BatchInsertSize.Observe(float64(len(records)))
	}
	writeJSON(w, map[string]interface{}{"inserted": len(records)}, http.StatusCreated)
}

// Vector handles GET and DELETE on /v1/vectors/{id}.
func (h *Handler) Vector(w http.ResponseWriter, r *http.Request) {
	idText := strings.TrimPrefix(r.URL.Path, "/v1/vectors/")
	id, err := strconv.ParseUint(idText, 10, 64)
	if err != nil {
		writeError(w, "invalid vector id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		rec, err := h.db.Get(id)
		if err != nil {
			h.writeDBError(w, "get", err)
			return
		}
		writeJSON(w, vectorPayload{ID: rec.ID, Vector: rec.Vector, Metadata: string(rec.Metadata)}, http.StatusOK)
	case http.MethodDelete:
		if err := h.db.Remove(id); err != nil {
			h.writeDBError(w, "remove", err)
			return
		}
		if h.metrics != nil {
			h.metrics.VectorsRemoved.Inc()
		}
		writeJSON(w, map[string]interface{}{"removed": id}, http.StatusOK)
	default:
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Search handles POST /v1/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.K <= 0 {
		writeError(w, "k must be positive", http.StatusBadRequest)
		return
	}

	start := time.Now()
	var params *core.SearchParams
	if req.EfSearch > 0 || req.NProbe > 0 {
		params = &core.SearchParams{EfSearch: req.EfSearch, NProbe: req.NProbe}
	}
	result, err := h.db.Search(req.Vector, req.K, params)
	if err != nil {
		h.writeDBError(w, "search", err)
		return
	}
	if h.metrics != nil {
		h.metrics.SearchesTotal.Inc()
		h.metrics.SearchLatency.Observe(time.Since(start).Seconds())
		h.metrics.SearchResultSize.Observe(float64(len(result.Items)))
	}

	resp := searchResponse{
		Items:           make([]searchResponseItem, len(result.Items)),
		TotalCandidates: result.TotalCandidates,
		QueryTimeMs:     result.QueryTimeMs,
	}
	for i, item := range result.Items {
		resp.Items[i] = searchResponseItem{ID: item.ID, Distance: item.Distance}
	}
	writeJSON(w, resp, http.StatusOK)
}

// Stats handles GET /v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats := h.db.Stats()
	if h.metrics != nil {
		h.metrics.IndexSize.Set(float64(stats.VectorCount))
		h.metrics.IndexMemoryBytes.Set(float64(stats.IndexMemoryBytes))
	}
	writeJSON(w, map[string]interface{}{
		"vector_count":       stats.VectorCount,
		"dimension":          stats.Dimension,
		"memory_usage_bytes": stats.MemoryUsageBytes,
		"index_memory_bytes": stats.IndexMemoryBytes,
		"avg_query_time_ms":  stats.AvgQueryTimeMs,
		"total_queries":      stats.TotalQueries,
		"total_inserts":      stats.TotalInserts,
	}, http.StatusOK)
}

// Optimize handles POST /v1/optimize.
func (h *Handler) Optimize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()
	if err := h.db.OptimizeIndex(); err != nil {
		if h.metrics != nil {
			h.metrics.OptimizeAborts.Inc()
		}
		h.writeDBError(w, "optimize", err)
		return
	}
	if h.metrics != nil {
		h.metrics.OptimizeRuns.Inc()
		h.metrics.OptimizeSeconds.Observe(time.Since(start).Seconds())
	}
	writeJSON(w, map[string]interface{}{"optimized": true}, http.StatusOK)
}

// Flush handles POST /v1/flush.
func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.db.Flush(); err != nil {
		h.writeDBError(w, "flush", err)
		return
	}
	writeJSON(w, map[string]interface{}{"flushed": true}, http.StatusOK)
}

// writeDBError maps a database error code to an HTTP status.
func (h *Handler) writeDBError(w http.ResponseWriter, method string, err error) {
	code := core.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case core.DimensionMismatch, core.InvalidParameter:
		status = http.StatusBadRequest
	case core.VectorNotFound:
		status = http.StatusNotFound
	case core.InvalidState:
		status = http.StatusConflict
	case core.Busy:
		status = http.StatusTooManyRequests
	case core.NotImplemented:
		status = http.StatusNotImplemented
	}
	if h.metrics != nil {
		h.metrics.RequestErrors.WithLabelValues(method, code.String()).Inc()
	}
	if h.logger != nil {
		h.logger.Warn("request failed", map[string]interface{}{
			"method": method,
			"error":  err.Error(),
		})
	}
	writeError(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, v interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, map[string]interface{}{"error": message, "status": status}, status)
}

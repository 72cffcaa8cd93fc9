package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/djlord-it/easy-relay/internal/domain"
	"github.com/djlord-it/easy-relay/internal/ledger"
	"github.com/djlord-it/easy-relay/internal/worker"
)

// Pagination defaults and limits for request history.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Worker is the producer side of the delivery worker.
type Worker interface {
	Submit(req domain.DeliveryRequest) error
	QueueDepth() (ready, parked int)
	Stopped() bool
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	worker Worker
	reader ledger.Reader // nil when the ledger backend cannot serve reads
	db     HealthChecker
	logger *zap.Logger
	router chi.Router
}

func NewHandler(w Worker) *Handler {
	h := &Handler{worker: w, logger: zap.NewNop()}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", h.health)
	r.Route("/v1/requests", func(r chi.Router) {
		r.Post("/", h.submit)
		r.Get("/{id}", h.getRequest)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	h.router = r

	return h
}

// WithReader enables GET /v1/requests/{id}.
func (h *Handler) WithReader(reader ledger.Reader) *Handler {
	h.reader = reader
	return h
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

func (h *Handler) WithLogger(logger *zap.Logger) *Handler {
	if logger != nil {
		h.logger = logger.Named("api")
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ready, parked := h.worker.QueueDepth()
	resp := HealthResponse{Status: "ok", QueueDepth: ready, Parked: parked}

	if h.worker.Stopped() {
		resp.Status = "stopping"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	verbose := r.URL.Query().Get("verbose") == "true"
	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Components = make(map[string]string)

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var sub domain.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := sub.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := sub.Request()
	if err := h.worker.Submit(req); err != nil {
		if errors.Is(err, worker.ErrStopped) {
			writeError(w, http.StatusServiceUnavailable, "worker is stopping")
			return
		}
		h.logger.Error("submit failed", zap.String("request_id", req.ID.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to submit request")
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitResponse{ID: req.ID.String()})
}

func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusNotImplemented, "ledger backend does not support reads")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	latest, err := h.reader.Get(r.Context(), id)
	if err != nil {
		h.readError(w, id, err)
		return
	}

	history, err := h.reader.History(r.Context(), id)
	if err != nil {
		h.readError(w, id, err)
		return
	}

	resp := RequestResponse{
		ID:                latest.RequestID.String(),
		PayloadCode:       latest.PayloadCode,
		PayloadUniqueCode: latest.PayloadUniqueCode,
		ScheduledAt:       latest.ScheduledAt,
		Latest:            toRecordResponse(latest),
		TotalRecords:      len(history),
		History:           []RecordResponse{},
	}
	for _, rec := range page(history, limit, offset) {
		resp.History = append(resp.History, toRecordResponse(rec))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) readError(w http.ResponseWriter, id uuid.UUID, err error) {
	if errors.Is(err, ledger.ErrNotFound) {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	h.logger.Error("ledger read failed", zap.String("request_id", id.String()), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "failed to read ledger")
}

func page(records []domain.LedgerRecord, limit, offset int) []domain.LedgerRecord {
	if offset >= len(records) {
		return nil
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// parsePagination extracts and validates limit/offset query parameters.
// Returns DefaultLimit if limit is not specified, and 0 for offset if not specified.
// Returns an error if limit exceeds MaxLimit or if values are negative/invalid.
func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = DefaultLimit
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}
		if limit < 0 {
			return 0, 0, strconv.ErrRange
		}
		if limit > MaxLimit {
			return 0, 0, &limitExceededError{max: MaxLimit}
		}
		if limit == 0 {
			limit = DefaultLimit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}
		if offset < 0 {
			return 0, 0, strconv.ErrRange
		}
	}

	return limit, offset, nil
}

type limitExceededError struct {
	max int
}

func (e *limitExceededError) Error() string {
	return "limit exceeds maximum of " + strconv.Itoa(e.max)
}

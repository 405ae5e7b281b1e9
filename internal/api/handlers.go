package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stashkv/stash/internal/auth"
	"github.com/stashkv/stash/internal/directory"
	"github.com/stashkv/stash/internal/service"
	"github.com/stashkv/stash/internal/storage"
)

// healthProbeTimeout bounds each backend ping during a health check.
const healthProbeTimeout = 2 * time.Second

// Handlers holds the HTTP handlers for the Stash API.
type Handlers struct {
	svc           *service.Service
	store         storage.RecordStore
	dir           directory.Directory
	maxRequestTTL int64
	version       string
	mode          string
	logger        *slog.Logger
}

// NewHandlers creates the handler set. maxRequestTTL bounds the ttl and
// extra_time request fields, in seconds.
func NewHandlers(svc *service.Service, store storage.RecordStore, dir directory.Directory, maxRequestTTL int64, version, mode string, logger *slog.Logger) *Handlers {
	return &Handlers{
		svc:           svc,
		store:         store,
		dir:           dir,
		maxRequestTTL: maxRequestTTL,
		version:       version,
		mode:          mode,
		logger:        logger,
	}
}

// Root handles GET / with a minimal service banner.
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, RootResponse{
		Status:  "ok",
		Message: "Stash working memory API",
		Mode:    h.mode,
	})
}

// Health handles GET /health. It reports per-backend connectivity and an
// overall status of "healthy" or "degraded". Always returns 200 so that
// load balancers can read the body instead of guessing from the code.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Mode:      h.mode,
		Redis:     "connected",
		Directory: "connected",
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("health check: redis unreachable", "error", err)
		resp.Redis = "disconnected"
		resp.Status = "degraded"
	}
	if err := h.dir.Ping(ctx); err != nil {
		h.logger.Warn("health check: directory unreachable", "error", err)
		resp.Directory = "disconnected"
		resp.Status = "degraded"
	}

	respondJSON(w, http.StatusOK, resp)
}

// Stash handles POST /stash.
func (h *Handlers) Stash(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, ErrorResponse{Error: "Missing credentials", Code: CodeUnauthenticated})
		return
	}

	var req StashRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if len(req.Data) == 0 {
		respondError(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: "Field 'data' is required",
			Code:  CodeValidation,
		})
		return
	}

	var requested time.Duration
	if req.TTL != nil {
		if !h.validSeconds(*req.TTL) {
			respondError(w, http.StatusUnprocessableEntity, ErrorResponse{
				Error: fmt.Sprintf("Field 'ttl' must be between 1 and %d seconds", h.maxRequestTTL),
				Code:  CodeValidation,
			})
			return
		}
		requested = time.Duration(*req.TTL) * time.Second
	}

	result, err := h.svc.Stash(r.Context(), principal, req.Data, requested)
	if err != nil {
		h.respondServiceError(w, err, "")
		return
	}

	respondJSON(w, http.StatusOK, StashResponse{
		MemoryID:  result.MemoryID,
		TTL:       int64(result.TTL / time.Second),
		ExpiresAt: result.ExpiresAt.UTC(),
	})
}

// Recall handles GET /recall/{memory_id}.
func (h *Handlers) Recall(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, ErrorResponse{Error: "Missing credentials", Code: CodeUnauthenticated})
		return
	}
	memoryID := r.PathValue("memory_id")

	rec, err := h.svc.Recall(r.Context(), principal, memoryID)
	if err != nil {
		h.respondServiceError(w, err, memoryID)
		return
	}

	respondJSON(w, http.StatusOK, RecallResponse{
		MemoryID:     rec.MemoryID,
		Data:         rec.Data,
		TTLRemaining: int64(rec.TTLRemaining / time.Second),
	})
}

// Update handles PATCH /update/{memory_id}.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, ErrorResponse{Error: "Missing credentials", Code: CodeUnauthenticated})
		return
	}
	memoryID := r.PathValue("memory_id")

	var req UpdateRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	// An explicit JSON null is the same as leaving data out; it must not
	// overwrite the stored payload.
	if bytes.Equal(bytes.TrimSpace(req.Data), []byte("null")) {
		req.Data = nil
	}
	if len(req.Data) == 0 && req.ExtraTime == nil {
		respondError(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: "Provide 'data', 'extra_time', or both",
			Code:  CodeValidation,
		})
		return
	}

	var extra time.Duration
	if req.ExtraTime != nil {
		if !h.validSeconds(*req.ExtraTime) {
			respondError(w, http.StatusUnprocessableEntity, ErrorResponse{
				Error: fmt.Sprintf("Field 'extra_time' must be between 1 and %d seconds", h.maxRequestTTL),
				Code:  CodeValidation,
			})
			return
		}
		extra = time.Duration(*req.ExtraTime) * time.Second
	}

	rec, err := h.svc.Update(r.Context(), principal, memoryID, req.Data, extra)
	if err != nil {
		h.respondServiceError(w, err, memoryID)
		return
	}

	respondJSON(w, http.StatusOK, UpdateResponse{
		MemoryID:     rec.MemoryID,
		Data:         rec.Data,
		TTLRemaining: int64(rec.TTLRemaining / time.Second),
		ExpiresAt:    time.Now().Add(rec.TTLRemaining).UTC(),
	})
}

// Forget handles DELETE /stash/{memory_id}. A record that is absent,
// expired, or owned by someone else yields the same 404.
func (h *Handlers) Forget(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, ErrorResponse{Error: "Missing credentials", Code: CodeUnauthenticated})
		return
	}
	memoryID := r.PathValue("memory_id")

	existed, err := h.svc.Forget(r.Context(), principal, memoryID)
	if err != nil {
		h.respondServiceError(w, err, memoryID)
		return
	}
	if !existed {
		respondError(w, http.StatusNotFound, ErrorResponse{
			Error: fmt.Sprintf("Memory '%s' not found or expired", memoryID),
			Code:  CodeNotFound,
		})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MethodNotAllowed answers wrong-verb requests on known paths with the
// standard JSON error shape instead of the mux's plain-text 405.
func (h *Handlers) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusMethodNotAllowed, ErrorResponse{
		Error: fmt.Sprintf("Method %s not allowed on %s", r.Method, r.URL.Path),
		Code:  CodeMethodNotAllowed,
	})
}

// NotFound answers unmatched paths with the standard JSON error shape.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusNotFound, ErrorResponse{
		Error: "Not found",
		Code:  CodeNotFound,
	})
}

// decodeBody parses the JSON request body into dst. On failure it writes
// the error response and returns false.
func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		respondError(w, http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: "Request body too large",
			Code:  CodePayloadTooLarge,
			Limit: maxBytesErr.Limit,
		})
		return false
	}

	respondError(w, http.StatusBadRequest, ErrorResponse{
		Error: "Invalid JSON in request body",
		Code:  CodeValidation,
	})
	return false
}

func (h *Handlers) validSeconds(v int64) bool {
	return v >= 1 && v <= h.maxRequestTTL
}

// respondServiceError maps service and storage errors onto HTTP responses.
func (h *Handlers) respondServiceError(w http.ResponseWriter, err error, memoryID string) {
	var policyErr *service.PolicyError
	if errors.As(err, &policyErr) {
		switch policyErr.Category {
		case service.CategoryPayloadTooLarge:
			respondError(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error: policyErr.Detail,
				Code:  CodePayloadTooLarge,
				Limit: policyErr.Limit,
			})
		default:
			respondError(w, http.StatusUnprocessableEntity, ErrorResponse{
				Error: policyErr.Detail,
				Code:  CodeValidation,
			})
		}
		return
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		msg := "Memory not found or expired"
		if memoryID != "" {
			msg = fmt.Sprintf("Memory '%s' not found or expired", memoryID)
		}
		respondError(w, http.StatusNotFound, ErrorResponse{Error: msg, Code: CodeNotFound})
	case errors.Is(err, storage.ErrUnavailable), errors.Is(err, directory.ErrUnavailable):
		respondError(w, http.StatusServiceUnavailable, ErrorResponse{
			Error: "Storage backend unavailable, retry shortly",
			Code:  CodeUnavailable,
		})
	case errors.Is(err, storage.ErrInvalidInput):
		respondError(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: "Invalid request",
			Code:  CodeValidation,
		})
	default:
		h.logger.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, ErrorResponse{
			Error: "Internal server error",
			Code:  CodeInternal,
		})
	}
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers already sent, nothing more to do.
		slog.Default().Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, resp ErrorResponse) {
	respondJSON(w, statusCode, resp)
}

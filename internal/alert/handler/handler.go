package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"govern/internal/alert"
	"govern/internal/entity"
	"govern/pkg/httputil"
	"govern/pkg/requestcontext"
)

// Engine defines the alert engine operations the handler exposes.
type Engine interface {
	EvaluateEntity(ctx context.Context, entityType string, snapshot entity.Snapshot, entityID string) ([]*alert.Alert, error)
	EvaluateBatch(ctx context.Context, entityType string, records []alert.EntityRecord) (alert.BatchResult, error)
	AutoResolve(ctx context.Context, entityID, entityType string) (int, error)
	CleanupOldAlerts(ctx context.Context, retentionDays int) (int, error)
}

// Handler wires alert evaluation and lifecycle endpoints to the engine.
type Handler struct {
	engine Engine
	logger *slog.Logger
}

// New constructs an alert handler with its dependencies.
func New(engine Engine, logger *slog.Logger) *Handler {
	return &Handler{
		engine: engine,
		logger: logger,
	}
}

// Register mounts alert endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/evaluate/{entityType}", h.HandleEvaluate)
	r.Post("/evaluate/{entityType}/batch", h.HandleEvaluateBatch)
	r.Post("/alerts/{entityID}/resolve", h.HandleResolve)
	r.Post("/maintenance/cleanup", h.HandleCleanup)
}

// HandleEvaluate handles POST /evaluate/{entityType} requests.
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	entityType := chi.URLParam(r, "entityType")
	if entityType == "" {
		httputil.WriteError(w, httputil.Validation("entity type is required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[EvaluateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	created, err := h.engine.EvaluateEntity(ctx, entityType, req.Data, req.EntityID)
	if err != nil {
		h.logger.ErrorContext(ctx, "entity evaluation failed",
			"request_id", requestID,
			"entity_type", entityType,
			"entity_id", req.EntityID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "entity evaluated",
		"request_id", requestID,
		"entity_type", entityType,
		"entity_id", req.EntityID,
		"alerts_created", len(created),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, EvaluateResponse{Alerts: fromAlerts(created)})
}

// HandleEvaluateBatch handles POST /evaluate/{entityType}/batch requests.
func (h *Handler) HandleEvaluateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	entityType := chi.URLParam(r, "entityType")
	if entityType == "" {
		httputil.WriteError(w, httputil.Validation("entity type is required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[BatchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.engine.EvaluateBatch(ctx, entityType, req.Records())
	if err != nil {
		h.logger.ErrorContext(ctx, "batch evaluation failed",
			"request_id", requestID,
			"entity_type", entityType,
			"batch_size", len(req.Entities),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "batch evaluated",
		"request_id", requestID,
		"entity_type", entityType,
		"processed", result.Processed,
		"errors", result.Errors,
		"alerts_created", len(result.Alerts),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, BatchResponse{
		Processed: result.Processed,
		Errors:    result.Errors,
		Alerts:    fromAlerts(result.Alerts),
	})
}

// HandleResolve handles POST /alerts/{entityID}/resolve requests.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	entityID := chi.URLParam(r, "entityID")
	if entityID == "" {
		httputil.WriteError(w, httputil.Validation("entity id is required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[ResolveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	resolved, err := h.engine.AutoResolve(ctx, entityID, req.EntityType)
	if err != nil {
		h.logger.ErrorContext(ctx, "alert auto-resolve failed",
			"request_id", requestID,
			"entity_id", entityID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ResolveResponse{Resolved: resolved})
}

// HandleCleanup handles POST /maintenance/cleanup requests.
func (h *Handler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CleanupRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	deleted, err := h.engine.CleanupOldAlerts(ctx, req.RetentionDays)
	if err != nil {
		h.logger.ErrorContext(ctx, "alert cleanup failed",
			"request_id", requestID,
			"retention_days", req.RetentionDays,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, CleanupResponse{Deleted: deleted})
}
